package commit

import (
	"context"

	"github.com/brightforge/modelengine/internal/scene/node"
	"github.com/brightforge/modelengine/internal/store"
)

// removeDeleted implements 4.4 step 7: nodes queued by RemoveNode are
// dropped from the live scene collection and soft-deleted by moving their
// document into the history collection keyed by the prior revision, rather
// than being destroyed outright (4.4: "soft-delete: the document is moved
// to a history collection keyed by the prior revision").
func (m *Manager) removeDeleted(ctx context.Context, db store.DocumentStore, req Request, oldHead *node.Node, toDelete []*node.Node) error {
	if len(toDelete) == 0 {
		return nil
	}
	sceneColl := req.Project + store.CollSceneSuffix
	historyColl := req.Project + store.CollHistorySuffix
	priorRevision := ""
	if oldHead != nil {
		priorRevision = oldHead.UniqueID.String()
	}

	for _, n := range toDelete {
		doc := node.Serialise(n, req.Database, req.Project)
		if _, err := db.DropDocument(ctx, req.Database, sceneColl, doc); err != nil {
			return err
		}
		archived := *doc
		archived.ID = priorRevision + ":" + doc.ID
		if _, err := db.UpsertDocument(ctx, req.Database, historyColl, &archived, true); err != nil {
			return err
		}
	}
	return nil
}
