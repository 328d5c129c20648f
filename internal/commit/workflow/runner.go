package workflow

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	sdkworkflow "go.temporal.io/sdk/workflow"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/platform/envutil"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/store"
)

// Runner starts a Temporal worker polling TaskQueue, mirroring the
// teacher's internal/temporalx/temporalworker.Runner.
type Runner struct {
	log  *logger.Logger
	tc   temporalsdkclient.Client
	acts *Activities
}

// NewRunner binds a worker to tc; pool and blobs back the activities it
// registers. tc must be non-nil.
func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, pool *store.Pool, blobs blob.Store) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("commit/workflow: temporal client is not configured")
	}
	return &Runner{log: log, tc: tc, acts: NewActivities(pool, blobs, log)}, nil
}

// Start registers DerivedArtifactsWorkflow and its activities and begins
// polling TaskQueue. The worker stops when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	concurrency := envutil.Int("WORKER_CONCURRENCY", 4)
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	w.RegisterWorkflowWithOptions(DerivedArtifactsWorkflow, sdkworkflow.RegisterOptions{Name: WorkflowName})
	w.RegisterActivity(r.acts.GenerateSelectionTree)
	w.RegisterActivity(r.acts.GenerateWebStash)

	if err := w.Start(); err != nil {
		return fmt.Errorf("commit/workflow: start worker: %w", err)
	}
	if r.log != nil {
		r.log.Info("Temporal worker started", "task_queue", TaskQueue)
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
