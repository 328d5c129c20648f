package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/platform/logger"
	"github.com/brightforge/modelengine/internal/store"
	"github.com/brightforge/modelengine/internal/store/memstore"
)

func TestInsertAndFindOneByUniqueID(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	h := s.Handler()

	id := ids.New()
	doc := document.NewBuilder(id.String()).AppendString("name", "widget").Finalize()

	ok, err := h.InsertDocument(ctx, "proj", "proj.scene", doc)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := h.FindOneByUniqueID(ctx, "proj", "proj.scene", id)
	require.NoError(t, err)
	name, err := document.NewReader(got, nil, nil).GetString("name")
	require.NoError(t, err)
	require.Equal(t, "widget", name)
}

func TestInsertDocumentRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	h := memstore.New().Handler()
	doc := document.NewBuilder("dup").Finalize()

	ok, err := h.InsertDocument(ctx, "proj", "proj.scene", doc)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.InsertDocument(ctx, "proj", "proj.scene", doc)
	require.Error(t, err)
	require.False(t, ok)
}

func TestUpsertDocumentRespectsOverwriteFlag(t *testing.T) {
	ctx := context.Background()
	h := memstore.New().Handler()
	doc := document.NewBuilder("up").AppendInt32("v", 1).Finalize()
	_, err := h.InsertDocument(ctx, "proj", "proj.scene", doc)
	require.NoError(t, err)

	updated := document.NewBuilder("up").AppendInt32("v", 2).Finalize()
	ok, err := h.UpsertDocument(ctx, "proj", "proj.scene", updated, false)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = h.UpsertDocument(ctx, "proj", "proj.scene", updated, true)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := h.FindOneByUniqueID(ctx, "proj", "proj.scene", ids.UUID{})
	require.Error(t, err)
	require.Nil(t, got)
}

func TestDropCollectionRemovesAllDocuments(t *testing.T) {
	ctx := context.Background()
	h := memstore.New().Handler()
	for i := 0; i < 3; i++ {
		doc := document.NewBuilder(ids.New().String()).Finalize()
		_, err := h.InsertDocument(ctx, "proj", "proj.scene", doc)
		require.NoError(t, err)
	}
	n, err := h.CountItemsInCollection(ctx, "proj", "proj.scene")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	ok, err := h.DropCollection(ctx, "proj", "proj.scene")
	require.NoError(t, err)
	require.True(t, ok)

	n, err = h.CountItemsInCollection(ctx, "proj", "proj.scene")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRawFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := memstore.New().Handler()
	ok, err := h.InsertRawFile(ctx, "proj", "assets", "foo.bin", []byte{1, 2, 3})
	require.NoError(t, err)
	require.True(t, ok)

	got, err := h.GetRawFile(ctx, "proj", "assets", "foo.bin")
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
}

func TestPoolFactoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	log, err := logger.New("development")
	require.NoError(t, err)
	s := memstore.New()
	pool, err := store.NewPool(ctx, store.DefaultPoolConfig(2), s.Factory(), log)
	require.NoError(t, err)
	defer pool.Close()

	err = pool.With(ctx, func(h store.DocumentStore) error {
		_, err := h.InsertDocument(ctx, "proj", "proj.scene", document.NewBuilder("x").Finalize())
		return err
	})
	require.NoError(t, err)
}
