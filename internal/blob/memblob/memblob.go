// Package memblob is an in-memory blob.Store fake used by tests and by
// memstore-backed local runs of the document store.
package memblob

import (
	"context"
	"sync"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/modelerr"
)

var _ blob.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func New() *Store {
	return &Store{objects: make(map[string][]byte)}
}

func (s *Store) Put(_ context.Context, logicalName string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[logicalName] = cp
	return nil
}

func (s *Store) Get(_ context.Context, logicalName string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[logicalName]
	if !ok {
		return nil, modelerr.New(modelerr.CodeNotFound, "memblob.Get", "blob not found: "+logicalName, nil)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *Store) GetRange(ctx context.Context, logicalName string, offset, length int64) ([]byte, error) {
	data, err := s.Get(ctx, logicalName)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset > int64(len(data)) {
		return nil, modelerr.New(modelerr.CodeInvalidInput, "memblob.GetRange", "offset out of range", nil)
	}
	end := int64(len(data))
	if length > 0 && offset+length < end {
		end = offset + length
	}
	return data[offset:end], nil
}

func (s *Store) Delete(_ context.Context, logicalName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[logicalName]; !ok {
		return modelerr.New(modelerr.CodeNotFound, "memblob.Delete", "blob not found: "+logicalName, nil)
	}
	delete(s.objects, logicalName)
	return nil
}
