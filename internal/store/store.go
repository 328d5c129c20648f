// Package store defines the document store contract (6.1) and the
// connection-pool handler abstraction the core borrows workers through
// (5: "Connection pool"). Concrete backends: postgres (production) and
// memstore (in-memory fake for tests).
package store

import (
	"context"
	"fmt"

	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
)

// SortOrder controls getAllFromCollectionTailable ordering (6.1).
type SortOrder int

const (
	SortAscending SortOrder = iota
	SortDescending
)

// Criteria is an opaque equality filter: field label -> expected value.
// findAllByCriteria (6.1) matches documents where every entry holds.
type Criteria map[string]any

// DocumentStore is the document store contract the core consumes (6.1).
// Each backend's handler (one pool-leased connection) implements this
// directly.
type DocumentStore interface {
	CountItemsInCollection(ctx context.Context, db, coll string) (uint64, error)
	GetAllFromCollectionTailable(ctx context.Context, db, coll string, skip int, sortField string, order SortOrder) ([]*document.Document, error)
	GetCollections(ctx context.Context, db string) ([]string, error)
	GetDatabases(ctx context.Context, sorted bool) ([]string, error)
	FindAllByUniqueIDs(ctx context.Context, db, coll string, uniqueIDs []ids.UUID) ([]*document.Document, error)
	FindAllByCriteria(ctx context.Context, db, coll string, criteria Criteria) ([]*document.Document, error)
	FindOneBySharedID(ctx context.Context, db, coll string, sharedID ids.UUID, sortField string) (*document.Document, error)
	FindOneByUniqueID(ctx context.Context, db, coll string, uniqueID ids.UUID) (*document.Document, error)
	InsertDocument(ctx context.Context, db, coll string, doc *document.Document) (bool, error)
	UpsertDocument(ctx context.Context, db, coll string, doc *document.Document, overwrite bool) (bool, error)
	DropDocument(ctx context.Context, db, coll string, doc *document.Document) (bool, error)
	DropCollection(ctx context.Context, db, coll string) (bool, error)
	DropDatabase(ctx context.Context, db string) (bool, error)
	InsertRawFile(ctx context.Context, db, coll, name string, bytes []byte) (bool, error)
	GetRawFile(ctx context.Context, db, coll, name string) ([]byte, error)
	// Liveness is used by the pool to decide whether a leased handler must
	// be reconnected before being handed to a caller (5: pool "pop").
	Liveness(ctx context.Context) error
	// Close releases whatever underlying connection this handler owns.
	Close() error
}

// MatchesCriteria reports whether doc holds every label/value pair in
// criteria (6.1 findAllByCriteria: "matches documents where every entry
// holds"), used by both the postgres and memstore backends so the
// documents-aren't-a-query-language equality check lives in one place.
func MatchesCriteria(doc *document.Document, criteria Criteria) bool {
	for label, want := range criteria {
		f, ok := doc.Get(label)
		if !ok || f.Value != want {
			return false
		}
	}
	return true
}

// SortValue derives a lexicographically-sortable string key for doc's
// field, shared by the postgres and memstore backends' descending-sort
// handling of findOneBySharedID/getAllFromCollectionTailable (6.1).
// Timestamp/int fields are zero-padded so lexicographic order matches
// numeric order; anything else falls back to the document's own id.
func SortValue(doc *document.Document, field string) string {
	if field == "" {
		return doc.ID
	}
	f, ok := doc.Get(field)
	if !ok {
		return doc.ID
	}
	switch v := f.Value.(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%020d", v)
	case int32:
		return fmt.Sprintf("%020d", v)
	default:
		return doc.ID
	}
}

// Collection suffix conventions (6.1). The spec names .scene/.history/
// .stash/.stash.json_mpc/.refs/settings* explicitly; .tree and .assets are
// this engine's own extension of the same convention for the two derived
// artifacts 6.1 doesn't pin a collection to (the selection tree of 4.7 H
// and the per-revision manifest of 6.3), decided here rather than left
// unstated (see DESIGN.md).
const (
	CollSceneSuffix         = ".scene"
	CollHistorySuffix       = ".history"
	CollStashSuffix         = ".stash"
	CollStashJSONMPCSuffix  = ".stash.json_mpc"
	CollRefsSuffix          = ".refs"
	CollTreeSuffix          = ".tree"
	CollAssetsSuffix        = ".assets"
	CollSettings            = "settings"
	CollSettingsProjects    = "settings.projects"
	CollSettingsRoles       = "settings.roles"
)
