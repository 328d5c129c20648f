package blob_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/blob"
	"github.com/brightforge/modelengine/internal/blob/memblob"
)

func TestAppenderPacksPayloadsIntoOneBlob(t *testing.T) {
	ctx := context.Background()
	store := memblob.New()
	app := blob.NewAppender(store, "mydb", "proj1")

	refA, err := app.Append(ctx, []byte("hello"))
	require.NoError(t, err)
	refB, err := app.Append(ctx, []byte("world!"))
	require.NoError(t, err)
	require.Equal(t, refA.FileName, refB.FileName)
	require.Equal(t, int64(0), refA.Offset)
	require.Equal(t, int64(5), refB.Offset)

	require.NoError(t, app.Flush(ctx))

	blobBytes, err := store.Get(ctx, refA.FileName)
	require.NoError(t, err)
	require.Equal(t, "helloworld!", string(blobBytes))

	got, err := store.GetRange(ctx, refB.FileName, refB.Offset, refB.Length)
	require.NoError(t, err)
	require.Equal(t, "world!", string(got))
}

func TestAppenderRollsOverWhenBlobFull(t *testing.T) {
	ctx := context.Background()
	store := memblob.New()
	app := blob.NewAppender(store, "mydb", "proj1")

	first := make([]byte, blob.MaxActiveBlobBytes-1)
	refFirst, err := app.Append(ctx, first)
	require.NoError(t, err)

	second := []byte("overflow")
	refSecond, err := app.Append(ctx, second)
	require.NoError(t, err)

	require.NotEqual(t, refFirst.FileName, refSecond.FileName)
	require.Equal(t, int64(0), refSecond.Offset)

	require.NoError(t, app.Flush(ctx))

	got, err := store.Get(ctx, refSecond.FileName)
	require.NoError(t, err)
	require.Equal(t, "overflow", string(got))
}
