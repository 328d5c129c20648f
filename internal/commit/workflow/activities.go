package workflow

import (
	"context"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/obs"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/selection"
	"github.com/brightforge/modelengine/internal/store"
	"github.com/brightforge/modelengine/internal/webexport"
)

// Activities binds the derived-artifact phase's storage dependencies to
// the two activities DerivedArtifactsWorkflow drives. A worker registers
// a live *Activities (NewRunner builds it from the same pool and blob
// store cmd/modelengine hands to the commit manager); workflow code itself only ever
// touches the zero-value receiver in this package to resolve activity
// names, per the SDK's reflection-based registration.
type Activities struct {
	pool  *store.Pool
	blobs blob.Store
	log   *logger.Logger
}

// NewActivities builds the Activities a worker registers for TaskQueue.
func NewActivities(pool *store.Pool, blobs blob.Store, log *logger.Logger) *Activities {
	return &Activities{pool: pool, blobs: blobs, log: log.With("component", "commit/workflow.Activities")}
}

// SelectionTreeInput is GenerateSelectionTree's activity input.
type SelectionTreeInput struct {
	Database string
	Project  string
}

// GenerateSelectionTree reloads the default graph from the project's
// scene collection and persists one TreeNode document per root, same as
// 4.7 H. Reloading rather than carrying the graph across the workflow
// boundary keeps the activity input small and lets Temporal retry it
// independently of the web-export phase.
func (a *Activities) GenerateSelectionTree(ctx context.Context, in SelectionTreeInput) error {
	return a.pool.With(ctx, func(db store.DocumentStore) error {
		return obs.WithSpan(ctx, "commit/workflow.GenerateSelectionTree", func(ctx context.Context) error {
			def, err := loadGraph(ctx, db, in.Database, in.Project+store.CollSceneSuffix)
			if err != nil {
				return err
			}
			trees := selection.Generate(def)
			coll := in.Project + store.CollTreeSuffix
			for _, t := range trees {
				if _, err := db.UpsertDocument(ctx, in.Database, coll, selection.Serialise(t), true); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// WebStashInput is GenerateWebStash's activity input.
type WebStashInput struct {
	Database    string
	Project     string
	Model       string
	RevisionID  ids.UUID
	WorldOffset ids.Vec3
}

// WebStashResult reports whether every supermesh exported (6.4:
// COMPLETE) or only some did (MISSING_BUNDLES).
type WebStashResult struct {
	Status node.UploadStatus
}

// GenerateWebStash reloads the optimized graph from the project's stash
// collection, exports every supermesh, and persists the revision
// manifest (4.7 I, 6.3).
func (a *Activities) GenerateWebStash(ctx context.Context, in WebStashInput) (WebStashResult, error) {
	var result WebStashResult
	err := a.pool.With(ctx, func(db store.DocumentStore) error {
		return obs.WithSpan(ctx, "commit/workflow.GenerateWebStash", func(ctx context.Context) error {
			optimized, err := loadGraph(ctx, db, in.Database, in.Project+store.CollStashSuffix)
			if err != nil {
				return err
			}

			var assets, jsonFiles []string
			var metas []webexport.AssetMeta
			var failures int
			var lastErr error

			for _, n := range optimized.AllNodes() {
				if n.Kind != node.KindSupermesh {
					continue
				}
				assetPath, jsonPath, meta, err := webexport.ExportSupermesh(ctx, a.blobs, optimized, n, in.Database, in.Project)
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
				return modelerr.Wrap(modelerr.CodeStorageFailure, "commit/workflow.GenerateWebStash", lastErr)
			}

			manifest := webexport.BuildManifest(in.RevisionID, in.Database, in.Model, in.WorldOffset, assets, jsonFiles, metas)
			coll := in.Project + store.CollAssetsSuffix
			if _, err := db.UpsertDocument(ctx, in.Database, coll, webexport.ManifestDocument(manifest), true); err != nil {
				return err
			}

			if failures > 0 {
				result.Status = node.StatusMissingBundles
				return nil
			}
			result.Status = node.StatusComplete
			return nil
		})
	})
	if err != nil {
		return WebStashResult{Status: node.StatusError}, err
	}
	return result, nil
}

// loadGraph rebuilds a Graph from every document in coll, the shared
// reload path both activities use.
func loadGraph(ctx context.Context, db store.DocumentStore, database, coll string) (*graph.Graph, error) {
	docs, err := db.GetAllFromCollectionTailable(ctx, database, coll, 0, "", store.SortAscending)
	if err != nil {
		return nil, err
	}
	g := graph.New()
	for _, doc := range docs {
		r := document.NewReader(doc, nil, nil)
		n, err := node.Deserialise(ctx, r, doc)
		if err != nil {
			return nil, err
		}
		g.AddNode(n)
	}
	return g, nil
}
