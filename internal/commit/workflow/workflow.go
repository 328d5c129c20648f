// Package workflow wraps the commit protocol's derived-artifact phase
// (4.4 step 6, 6.4: GEN_SEL_TREE -> GEN_WEB_STASH -> COMPLETE) as a
// Temporal workflow, so a crash between the two phases resumes from
// Temporal's persisted history rather than stranding a revision in an
// intermediate status with no in-memory graph left to finish it.
// Grounded on internal/temporalx's client wiring and on the teacher's
// internal/jobs/orchestrator package, which drives the same kind of
// multi-stage pass over one aggregate as an explicit job. internal/commit
// uses this package when a Temporal client is configured and falls back
// to running the same two phases in-process otherwise (DOMAIN STACK).
package workflow

import (
	"time"

	"go.temporal.io/sdk/workflow"

	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/scene/node"
)

// TaskQueue is the queue a worker must poll to run DerivedArtifactsWorkflow.
const TaskQueue = "modelengine-commit"

// WorkflowName is the registered name of DerivedArtifactsWorkflow.
const WorkflowName = "DerivedArtifactsWorkflow"

// activities is a zero-value instance used only so workflow code can
// refer to the method as a value; the SDK resolves the activity to run by
// name, not by this particular receiver.
var activities = &Activities{}

// DerivedArtifactsInput is the workflow's sole argument. The graphs
// themselves never cross the workflow boundary — Temporal serialises
// workflow input into its event history, and a scene graph is both large
// and not meaningfully replayable. Each activity reloads what it needs
// from the project's .scene/.stash collections instead.
type DerivedArtifactsInput struct {
	Database    string
	Project     string
	Model       string
	RevisionID  ids.UUID
	WorldOffset ids.Vec3
}

// DerivedArtifactsResult is the status (6.4) to persist on the revision.
type DerivedArtifactsResult struct {
	Status node.UploadStatus
}

// DerivedArtifactsWorkflow runs GenerateSelectionTree then GenerateWebStash
// as two independently-retried activities (4.4 step 6).
func DerivedArtifactsWorkflow(ctx workflow.Context, in DerivedArtifactsInput) (DerivedArtifactsResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
	})

	if err := workflow.ExecuteActivity(ctx, activities.GenerateSelectionTree, SelectionTreeInput{
		Database: in.Database,
		Project:  in.Project,
	}).Get(ctx, nil); err != nil {
		return DerivedArtifactsResult{Status: node.StatusError}, err
	}

	var webResult WebStashResult
	if err := workflow.ExecuteActivity(ctx, activities.GenerateWebStash, WebStashInput{
		Database:    in.Database,
		Project:     in.Project,
		Model:       in.Model,
		RevisionID:  in.RevisionID,
		WorldOffset: in.WorldOffset,
	}).Get(ctx, &webResult); err != nil {
		return DerivedArtifactsResult{Status: node.StatusError}, err
	}

	return DerivedArtifactsResult{Status: webResult.Status}, nil
}
