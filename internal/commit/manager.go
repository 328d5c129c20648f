// Package commit implements the commit protocol and revision status
// machine (4.4, L): diff the default graph, build a revision node, divert
// binary payloads to the blob store, upsert nodes and the revision
// document, then drive the derived-artifact phase (selection tree, web
// export) that advances the revision through its status machine (6.4).
// Grounded on 9's explicit redesign note ("Singleton handler... Re-express
// as an explicit context struct carrying document-store and blob-store
// interfaces, passed by reference") and on the teacher's
// internal/jobs/orchestrator/engine.go, which drives a multi-stage pass
// over one aggregate through an explicit status field the same way this
// manager drives a revision through UploadStatus.
package commit

import (
	"context"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/multipart"
	"github.com/brightforge/modelengine/internal/notify"
	"github.com/brightforge/modelengine/internal/obs"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/store"
)

// MasterBranch is the special UUID denoting branch "master" (3.5).
var MasterBranch = ids.Nil

// Manager owns the dependencies the commit protocol consumes: the
// document-store pool, the blob store, and an optional status notifier.
// It replaces the source's process-global handler singleton (9) with an
// explicit struct passed by reference.
type Manager struct {
	pool     *store.Pool
	blobs    blob.Store
	log      *logger.Logger
	notif    *notify.Notifier
	temporal temporalsdkclient.Client
}

// New builds a Manager. notif may be nil (nil-safe: no-op notifications).
func New(pool *store.Pool, blobs blob.Store, log *logger.Logger, notif *notify.Notifier) *Manager {
	return &Manager{pool: pool, blobs: blobs, log: log.With("component", "commit.Manager"), notif: notif}
}

// WithTemporal routes the derived-artifact phase (4.4 step 6) through
// DerivedArtifactsWorkflow on c instead of running it in-process, so a
// crash between GEN_SEL_TREE and GEN_WEB_STASH resumes from Temporal's
// history. A worker must already be polling workflow.TaskQueue with
// workflow.Activities registered (cmd/modelengine wires this). c may be
// nil, in which case Commit keeps running the phase in-process.
func (m *Manager) WithTemporal(c temporalsdkclient.Client) *Manager {
	m.temporal = c
	return m
}

// Request is the commit protocol's input (4.4).
type Request struct {
	Database string
	Project  string
	Branch   ids.UUID // defaults to MasterBranch if Nil
	Author   string
	Message  string
	Tag      string
	Files    []string
	// WorldOffset is persisted on the revision node (3.3).
	WorldOffset ids.Vec3
	// Default is the scene to commit; must have at least one node (4.4
	// precondition).
	Default *graph.Graph
	// Model names the manifest's "model" field (6.3); defaults to Project
	// if empty.
	Model string
}

// Result is the commit protocol's output.
type Result struct {
	RevisionID ids.UUID
	Status     node.UploadStatus
}

// Commit runs the full protocol (4.4 steps 1-7): atomic at the document
// level, best-effort across the derived-artifact phase, resumable via the
// revision's persisted status.
func (m *Manager) Commit(ctx context.Context, req Request) (*Result, error) {
	if req.Default == nil || req.Default.Count() == 0 {
		return nil, modelerr.New(modelerr.CodeInvalidInput, "commit.Commit", "scene has no nodes", nil)
	}
	model := req.Model
	if model == "" {
		model = req.Project
	}
	branch := req.Branch
	if branch == ids.Nil {
		branch = MasterBranch
	}

	var result *Result
	err := m.pool.With(ctx, func(db store.DocumentStore) error {
		return obs.WithSpan(ctx, "commit.Commit", func(ctx context.Context) error {
			history := req.Project + store.CollHistorySuffix

			// Step 1: diff the default graph (4.4 step 1).
			diff := req.Default.Diff()

			// Resolve old head so the new revision can chain onto it (3.5).
			var parents []ids.UUID
			oldHead, err := findHead(ctx, db, req.Database, history, branch)
			if err == nil {
				parents = []ids.UUID{oldHead.UniqueID}
			} else if !modelerr.Is(err, modelerr.CodeNotFound) {
				return err
			}

			// Step 2: build the revision node (4.4 step 2).
			rev := &node.Node{
				Base: node.Base{UniqueID: ids.New(), SharedID: branch, Kind: node.KindRevision, Parents: parents},
				Revision: &node.Revision{
					Author: req.Author, Message: req.Message, Tag: req.Tag,
					TimestampMS: time.Now().UnixMilli(),
					WorldOffset: req.WorldOffset, Files: req.Files,
					Status: node.StatusGenSelTree,
				},
			}

			appender := blob.NewAppender(m.blobs, req.Database, req.Project)

			// Step 3: blob pre-commit + step 4: node upsert, default graph.
			toUpsert := collectByUnique(req.Default, diff.Added, diff.Modified)
			sceneColl := req.Project + store.CollSceneSuffix
			if err := m.upsertAll(ctx, appender, db, req.Database, sceneColl, req.Project, toUpsert); err != nil {
				return err
			}

			// Step 4: optimized graph (4.2, 4.4 step 1: "all nodes from the
			// optimized graph if present").
			var optimized *graph.Graph
			opt, err := multipart.Optimize(req.Default)
			if err != nil {
				return err
			}
			optimized = opt.Graph
			if opt.MissingNodes {
				req.Default.Status |= graph.StatusMissingNodes
			}
			stashColl := req.Project + store.CollStashSuffix
			if err := m.upsertAll(ctx, appender, db, req.Database, stashColl, req.Project, optimized.AllNodes()); err != nil {
				return err
			}

			if err := appender.Flush(ctx); err != nil {
				return modelerr.Wrap(modelerr.CodeStorageFailure, "commit.Commit", err)
			}

			// Step 5: revision upsert, status GEN_SEL_TREE.
			revDoc := node.Serialise(rev, req.Database, req.Project)
			if _, err := db.InsertDocument(ctx, req.Database, history, revDoc); err != nil {
				return err
			}

			// Step 6: derived artifacts.
			status, derr := m.runDerivedArtifacts(ctx, db, req, rev.UniqueID, req.Default, optimized, model)
			rev.Revision.Status = status
			if derr != nil {
				if err := m.writeErrorMarker(ctx, db, req.Database, req.Project, derr); err != nil {
					m.log.Warn("failed to write error marker", "error", err)
				}
			}
			if _, err := db.UpsertDocument(ctx, req.Database, history, node.Serialise(rev, req.Database, req.Project), true); err != nil {
				return err
			}
			m.notify(ctx, req.Database, req.Project, rev.UniqueID, status)

			// Step 7: remove (soft-delete) nodes marked removed.
			if err := m.removeDeleted(ctx, db, req, oldHead, req.Default.ToDelete()); err != nil {
				return err
			}

			result = &Result{RevisionID: rev.UniqueID, Status: status}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// collectByUnique resolves a set of shared ids (added+modified) to their
// current node pointers in def (4.4 step 1).
func collectByUnique(def *graph.Graph, added, modified []ids.UUID) []*node.Node {
	seen := map[ids.UUID]struct{}{}
	var out []*node.Node
	add := func(shared ids.UUID) {
		n, ok := def.NodeBySharedID(shared)
		if !ok {
			return
		}
		if _, dup := seen[n.UniqueID]; dup {
			return
		}
		seen[n.UniqueID] = struct{}{}
		out = append(out, n)
	}
	for _, s := range added {
		add(s)
	}
	for _, s := range modified {
		add(s)
	}
	return out
}

// upsertAll serialises and upserts every node in nodes into coll, diverting
// every binary side-channel payload through appender first (4.4 steps 3-4).
func (m *Manager) upsertAll(ctx context.Context, appender *blob.Appender, db store.DocumentStore, database, coll, project string, nodes []*node.Node) error {
	for _, n := range nodes {
		doc := node.Serialise(n, database, project)
		if err := blob.DivertDocument(ctx, doc, appender); err != nil {
			return modelerr.Wrap(modelerr.CodeStorageFailure, "commit.upsertAll", err)
		}
		if _, err := db.UpsertDocument(ctx, database, coll, doc, true); err != nil {
			return err
		}
	}
	return nil
}

// findHead resolves the latest revision on branch whose status is COMPLETE
// (6.4: "Only COMPLETE revisions are returned by default queries for
// 'head'"). branch is the revision's shared_id (3.5).
func findHead(ctx context.Context, db store.DocumentStore, database, history string, branch ids.UUID) (*node.Node, error) {
	docs, err := db.FindAllByCriteria(ctx, database, history, store.Criteria{"shared_id": branch, "status": string(node.StatusComplete)})
	if err != nil {
		return nil, err
	}
	var doc *document.Document
	for _, d := range docs {
		if doc == nil || store.SortValue(d, "timestamp") > store.SortValue(doc, "timestamp") {
			doc = d
		}
	}
	if doc == nil {
		return nil, modelerr.New(modelerr.CodeNotFound, "commit.findHead", "no COMPLETE head for branch", nil)
	}
	r := document.NewReader(doc, nil, nil)
	n, err := node.Deserialise(ctx, r, doc)
	if err != nil {
		return nil, err
	}
	if n.Revision == nil || n.Revision.Status != node.StatusComplete {
		return nil, modelerr.New(modelerr.CodeNotFound, "commit.findHead", "no COMPLETE head for branch", nil)
	}
	return n, nil
}

func (m *Manager) notify(ctx context.Context, database, project string, revisionID ids.UUID, status node.UploadStatus) {
	if m.notif == nil {
		return
	}
	m.notif.Publish(ctx, notify.StatusEvent{
		Database: database, Project: project, RevisionID: revisionID, Status: string(status),
	})
}

// writeErrorMarker annotates project settings with a human-readable error
// (4.4 step 6, 7: "Failure sets ERROR and writes an error marker to
// project settings").
func (m *Manager) writeErrorMarker(ctx context.Context, db store.DocumentStore, database, project string, cause error) error {
	doc := document.NewBuilder(project).
		AppendString("_id", project).
		AppendString("project", project).
		AppendString("error", cause.Error()).
		AppendTimeStamp("at").
		Finalize()
	_, err := db.UpsertDocument(ctx, database, store.CollSettingsProjects, doc, true)
	return err
}
