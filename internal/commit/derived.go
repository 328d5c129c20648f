package commit

import (
	"context"

	temporalsdkclient "go.temporal.io/sdk/client"

	wf "github.com/brightforge/modelengine/internal/commit/workflow"
	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/obs"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/selection"
	"github.com/brightforge/modelengine/internal/store"
	"github.com/brightforge/modelengine/internal/webexport"
)

// runDerivedArtifacts runs the selection-tree phase and then the
// web-export phase (4.4 step 6, 6.4), persisting the selection tree and
// the web export bundles as it goes, and returns the revision's final
// status. The revision document is not rewritten between the two phases:
// it stays GEN_SEL_TREE until the caller stores the returned status, so
// GEN_WEB_STASH is never persisted on this path. A failure in either phase
// reports the error to the caller so it can be recorded on the revision
// and in the project's error marker; a web-export phase that completes
// only partially (some supermeshes failed to export) reports
// MISSING_BUNDLES instead of failing outright, matching 6.4's explicit
// "readers can opt in to MISSING_BUNDLES to (re)generate web assets".
//
// When m.temporal is set, both phases run as DerivedArtifactsWorkflow on
// that client instead of in-process, so the same two phases survive a
// process crash by resuming from Temporal's workflow history rather than
// depending on def/optimized still being in memory.
func (m *Manager) runDerivedArtifacts(ctx context.Context, db store.DocumentStore, req Request, revisionID ids.UUID, def, optimized *graph.Graph, model string) (node.UploadStatus, error) {
	if m.temporal != nil {
		return m.runDerivedArtifactsWorkflow(ctx, req, revisionID, model)
	}

	if err := m.generateSelectionTree(ctx, db, req.Database, req.Project, def); err != nil {
		return node.StatusError, err
	}

	status, err := m.generateWebStash(ctx, db, req.Database, req.Project, model, revisionID, req.WorldOffset, optimized)
	if err != nil {
		return node.StatusError, err
	}
	return status, nil
}

// runDerivedArtifactsWorkflow starts DerivedArtifactsWorkflow and blocks
// for its result, keeping Commit's synchronous return contract while
// letting Temporal own retries and crash recovery for the two phases.
func (m *Manager) runDerivedArtifactsWorkflow(ctx context.Context, req Request, revisionID ids.UUID, model string) (node.UploadStatus, error) {
	var result node.UploadStatus
	err := obs.WithSpan(ctx, "commit.runDerivedArtifactsWorkflow", func(ctx context.Context) error {
		run, err := m.temporal.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
			ID:        "derived-artifacts-" + revisionID.String(),
			TaskQueue: wf.TaskQueue,
		}, wf.DerivedArtifactsWorkflow, wf.DerivedArtifactsInput{
			Database:    req.Database,
			Project:     req.Project,
			Model:       model,
			RevisionID:  revisionID,
			WorldOffset: req.WorldOffset,
		})
		if err != nil {
			return modelerr.Wrap(modelerr.CodeStorageFailure, "commit.runDerivedArtifactsWorkflow", err)
		}
		var wfResult wf.DerivedArtifactsResult
		if err := run.Get(ctx, &wfResult); err != nil {
			return modelerr.Wrap(modelerr.CodeStorageFailure, "commit.runDerivedArtifactsWorkflow", err)
		}
		result = wfResult.Status
		return nil
	})
	if err != nil {
		return node.StatusError, err
	}
	return result, nil
}

// generateSelectionTree implements 4.7 H: one TreeNode per root of the
// default graph, persisted as a document per root subtree in the
// project's .tree collection.
func (m *Manager) generateSelectionTree(ctx context.Context, db store.DocumentStore, database, project string, def *graph.Graph) error {
	return obs.WithSpan(ctx, "commit.generateSelectionTree", func(ctx context.Context) error {
		trees := selection.Generate(def)
		coll := project + store.CollTreeSuffix
		for _, t := range trees {
			if _, err := db.UpsertDocument(ctx, database, coll, selection.Serialise(t), true); err != nil {
				return err
			}
		}
		return nil
	})
}

// generateWebStash implements 4.7 I: export every supermesh in optimized
// into an asset blob + JSON mapping, then persist the revision's manifest
// (6.3) into the project's .assets collection. Returns MISSING_BUNDLES if
// at least one supermesh exported but at least one other failed, COMPLETE
// if every supermesh exported (including the degenerate case of none at
// all), and propagates the error if every supermesh failed.
func (m *Manager) generateWebStash(ctx context.Context, db store.DocumentStore, database, project, model string, revisionID ids.UUID, offset ids.Vec3, optimized *graph.Graph) (node.UploadStatus, error) {
	var status node.UploadStatus
	var outerErr error
	err := obs.WithSpan(ctx, "commit.generateWebStash", func(ctx context.Context) error {
		var assets, jsonFiles []string
		var metas []webexport.AssetMeta
		var failures int
		var lastErr error

		for _, n := range optimized.AllNodes() {
			if n.Kind != node.KindSupermesh {
				continue
			}
			assetPath, jsonPath, meta, err := webexport.ExportSupermesh(ctx, m.blobs, optimized, n, database, project)
			if err != nil {
				failures++
				lastErr = err
				continue
			}
			assets = append(assets, assetPath)
			jsonFiles = append(jsonFiles, jsonPath)
			metas = append(metas, meta)
		}

		if failures > 0 && len(assets) == 0 {
			return modelerr.Wrap(modelerr.CodeStorageFailure, "commit.generateWebStash", lastErr)
		}

		manifest := webexport.BuildManifest(revisionID, database, model, offset, assets, jsonFiles, metas)
		coll := project + store.CollAssetsSuffix
		if _, err := db.UpsertDocument(ctx, database, coll, webexport.ManifestDocument(manifest), true); err != nil {
			return err
		}

		if failures > 0 {
			status = node.StatusMissingBundles
			return nil
		}
		status = node.StatusComplete
		return nil
	})
	if err != nil {
		outerErr = err
	}
	return status, outerErr
}

// Resume re-runs the web-export phase for a revision already in
// MISSING_BUNDLES or GEN_WEB_STASH, the idempotent-resume path 4.4
// describes ("if it is in an intermediate state, missing artifacts are
// regenerated"). It is the non-Temporal counterpart to the crash recovery
// a Temporal-backed deployment gets for free by replaying
// DerivedArtifactsWorkflow's history; callers with no Temporal client
// configured use this instead to retry a revision a prior process left
// unfinished.
func (m *Manager) Resume(ctx context.Context, req Request, revisionID ids.UUID) error {
	model := req.Model
	if model == "" {
		model = req.Project
	}
	return m.pool.With(ctx, func(db store.DocumentStore) error {
		history := req.Project + store.CollHistorySuffix
		doc, err := db.FindOneByUniqueID(ctx, req.Database, history, revisionID)
		if err != nil {
			return err
		}
		r := document.NewReader(doc, nil, nil)
		rev, err := node.Deserialise(ctx, r, doc)
		if err != nil {
			return err
		}
		if rev.Revision == nil {
			return modelerr.New(modelerr.CodeInvalidInput, "commit.Resume", "document is not a revision", nil)
		}
		switch rev.Revision.Status {
		case node.StatusMissingBundles, node.StatusGenWebStash:
		default:
			return modelerr.New(modelerr.CodeInvalidInput, "commit.Resume", "revision is not in an intermediate state", nil)
		}
		optimized, err := loadOptimized(ctx, db, req.Database, req.Project)
		if err != nil {
			return err
		}
		return m.regenerateMissingBundles(ctx, db, history, req.Database, req.Project, model, rev, optimized)
	})
}

// regenerateMissingBundles re-runs generateWebStash for a revision already
// in MISSING_BUNDLES, the idempotent-resume path 4.4 describes ("if it is
// in an intermediate state, missing artifacts are regenerated").
func (m *Manager) regenerateMissingBundles(ctx context.Context, db store.DocumentStore, history, database, project, model string, rev *node.Node, optimized *graph.Graph) error {
	status, err := m.generateWebStash(ctx, db, database, project, model, rev.UniqueID, rev.Revision.WorldOffset, optimized)
	if err != nil {
		return err
	}
	rev.Revision.Status = status
	_, err = db.UpsertDocument(ctx, database, history, node.Serialise(rev, database, project), true)
	return err
}

// loadOptimized reloads a revision's optimized graph from its stash
// collection, used by the resume path when a caller re-triggers generation
// without the in-memory optimizer output at hand.
func loadOptimized(ctx context.Context, db store.DocumentStore, database, project string) (*graph.Graph, error) {
	coll := project + store.CollStashSuffix
	docs, err := db.GetAllFromCollectionTailable(ctx, database, coll, 0, "", store.SortAscending)
	if err != nil {
		return nil, err
	}
	out := graph.New()
	for _, doc := range docs {
		r := document.NewReader(doc, nil, nil)
		n, err := node.Deserialise(ctx, r, doc)
		if err != nil {
			return nil, err
		}
		out.AddNode(n)
	}
	return out, nil
}
