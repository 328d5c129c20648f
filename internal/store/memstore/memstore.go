// Package memstore is an in-memory store.DocumentStore fake used by tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/store"
)

type key struct {
	db, coll, id string
}

// Store backs store.DocumentStore with an in-process map, shared across
// every handler obtained from the same Store (so concurrent requests in a
// test observe each other's writes, as the real document store would).
type Store struct {
	mu   sync.RWMutex
	docs map[key]*document.Document
}

func New() *Store {
	return &Store{docs: make(map[key]*document.Document)}
}

// Handler returns a store.DocumentStore bound to this Store.
func (s *Store) Handler() store.DocumentStore {
	return &handler{s: s}
}

// Factory returns a store.Factory that always hands back a handler bound to
// this Store, for use with store.NewPool in tests.
func (s *Store) Factory() store.Factory {
	return func(_ context.Context) (store.DocumentStore, error) {
		return s.Handler(), nil
	}
}

type handler struct {
	s *Store
}

func (h *handler) CountItemsInCollection(_ context.Context, db, coll string) (uint64, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	var n uint64
	for k := range h.s.docs {
		if k.db == db && k.coll == coll {
			n++
		}
	}
	return n, nil
}

func (h *handler) GetAllFromCollectionTailable(_ context.Context, db, coll string, skip int, sortField string, order store.SortOrder) ([]*document.Document, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	var out []*document.Document
	for k, d := range h.s.docs {
		if k.db == db && k.coll == coll {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		vi := store.SortValue(out[i], sortField)
		vj := store.SortValue(out[j], sortField)
		if order == store.SortDescending {
			return vi > vj
		}
		return vi < vj
	})
	if skip >= len(out) {
		return nil, nil
	}
	return out[skip:], nil
}

func (h *handler) GetCollections(_ context.Context, db string) ([]string, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	seen := map[string]struct{}{}
	for k := range h.s.docs {
		if k.db == db {
			seen[k.coll] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (h *handler) GetDatabases(_ context.Context, sorted bool) ([]string, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	seen := map[string]struct{}{}
	for k := range h.s.docs {
		seen[k.db] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	if sorted {
		sort.Strings(out)
	}
	return out, nil
}

func (h *handler) FindAllByUniqueIDs(_ context.Context, db, coll string, uniqueIDs []ids.UUID) ([]*document.Document, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	out := make([]*document.Document, 0, len(uniqueIDs))
	for _, id := range uniqueIDs {
		if d, ok := h.s.docs[key{db, coll, id.String()}]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (h *handler) FindAllByCriteria(_ context.Context, db, coll string, criteria store.Criteria) ([]*document.Document, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	var out []*document.Document
	for k, d := range h.s.docs {
		if k.db != db || k.coll != coll {
			continue
		}
		if store.MatchesCriteria(d, criteria) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (h *handler) FindOneBySharedID(_ context.Context, db, coll string, sharedID ids.UUID, sortField string) (*document.Document, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	var best *document.Document
	var bestVal string
	for k, d := range h.s.docs {
		if k.db != db || k.coll != coll {
			continue
		}
		f, ok := d.Get("shared_id")
		if !ok {
			continue
		}
		id, ok := f.Value.(ids.UUID)
		if !ok || id != sharedID {
			continue
		}
		v := store.SortValue(d, sortField)
		if best == nil || v > bestVal {
			best, bestVal = d, v
		}
	}
	if best == nil {
		return nil, modelerr.New(modelerr.CodeNotFound, "memstore.FindOneBySharedID", "no document for shared id", nil)
	}
	return best, nil
}

func (h *handler) FindOneByUniqueID(_ context.Context, db, coll string, uniqueID ids.UUID) (*document.Document, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	d, ok := h.s.docs[key{db, coll, uniqueID.String()}]
	if !ok {
		return nil, modelerr.New(modelerr.CodeNotFound, "memstore.FindOneByUniqueID", "no document for unique id", nil)
	}
	return d, nil
}

func (h *handler) InsertDocument(_ context.Context, db, coll string, doc *document.Document) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	k := key{db, coll, doc.ID}
	if _, exists := h.s.docs[k]; exists {
		return false, modelerr.New(modelerr.CodeConflict, "memstore.InsertDocument", "document already exists", nil)
	}
	h.s.docs[k] = doc
	return true, nil
}

func (h *handler) UpsertDocument(_ context.Context, db, coll string, doc *document.Document, overwrite bool) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	k := key{db, coll, doc.ID}
	if _, exists := h.s.docs[k]; exists && !overwrite {
		return false, nil
	}
	h.s.docs[k] = doc
	return true, nil
}

func (h *handler) DropDocument(_ context.Context, db, coll string, doc *document.Document) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	k := key{db, coll, doc.ID}
	if _, exists := h.s.docs[k]; !exists {
		return false, nil
	}
	delete(h.s.docs, k)
	return true, nil
}

func (h *handler) DropCollection(_ context.Context, db, coll string) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	for k := range h.s.docs {
		if k.db == db && k.coll == coll {
			delete(h.s.docs, k)
		}
	}
	return true, nil
}

func (h *handler) DropDatabase(_ context.Context, db string) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	for k := range h.s.docs {
		if k.db == db {
			delete(h.s.docs, k)
		}
	}
	return true, nil
}

func (h *handler) InsertRawFile(_ context.Context, db, coll, name string, bytes []byte) (bool, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.docs[key{db, coll, "raw:" + name}] = &document.Document{
		ID:     "raw:" + name,
		Binary: map[string]document.BinaryPayload{"raw": {LogicalName: name, Bytes: bytes}},
	}
	return true, nil
}

func (h *handler) GetRawFile(_ context.Context, db, coll, name string) ([]byte, error) {
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	d, ok := h.s.docs[key{db, coll, "raw:" + name}]
	if !ok {
		return nil, modelerr.New(modelerr.CodeNotFound, "memstore.GetRawFile", "no raw file: "+name, nil)
	}
	return d.Binary["raw"].Bytes, nil
}

func (h *handler) Liveness(_ context.Context) error { return nil }
func (h *handler) Close() error                     { return nil }
