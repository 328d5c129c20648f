package document_test

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
)

func float32sToBytes(vs []float32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func TestBuilderFinalizeRoundTrip(t *testing.T) {
	id := ids.New()
	b := document.NewBuilder("doc-1").
		AppendString("na.me", "hello").
		AppendInt32("count", 3).
		AppendUUID("owner", id).
		AppendVec3("offset", ids.Vec3{X: 1, Y: 2, Z: 3}, true)

	doc := b.Finalize()
	require.Equal(t, "doc-1", doc.ID)

	f, ok := doc.Get("na:me")
	require.True(t, ok, "label should be sanitised")
	require.Equal(t, "hello", f.Value)

	r := document.NewReader(doc, nil, nil)
	s, err := r.GetString("na:me")
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	n, err := r.GetInt("count")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	got, err := r.GetUUID("owner")
	require.NoError(t, err)
	require.Equal(t, id, got)

	v, err := r.GetVec3("offset")
	require.NoError(t, err)
	require.Equal(t, ids.Vec3{X: 1, Y: 2, Z: 3}, v)
}

func TestAppendLargeArrayAlwaysGoesToSideChannel(t *testing.T) {
	b := document.NewBuilder("doc-2").
		AppendLargeArray("vertices", "/db/proj/abc_vertices", float32sToBytes([]float32{1, 2, 3, 4}))
	doc := b.Finalize()

	f, ok := doc.Get("vertices")
	require.True(t, ok)
	require.Equal(t, document.KindBinaryName, f.Kind)

	payload, ok := doc.Binary["vertices"]
	require.True(t, ok)
	require.Len(t, payload.Bytes, 16)

	r := document.NewReader(doc, nil, nil)
	vec, err := document.GetBinaryFieldAsVector[float32](context.Background(), r, "vertices", 4)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, vec)
}

func TestGetBinaryFieldAsVectorTruncatesLongBuffer(t *testing.T) {
	b := document.NewBuilder("doc-3").
		AppendLargeArray("vertices", "/db/proj/abc_vertices", float32sToBytes([]float32{1, 2, 3, 4, 5, 6}))
	doc := b.Finalize()
	r := document.NewReader(doc, nil, nil)

	vec, err := document.GetBinaryFieldAsVector[float32](context.Background(), r, "vertices", 4)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3, 4}, vec)
}

func TestGetBinaryFieldAsVectorTolerateShortBuffer(t *testing.T) {
	b := document.NewBuilder("doc-4").
		AppendLargeArray("vertices", "/db/proj/abc_vertices", float32sToBytes([]float32{1, 2}))
	doc := b.Finalize()
	r := document.NewReader(doc, nil, nil)

	vec, err := document.GetBinaryFieldAsVector[float32](context.Background(), r, "vertices", 4)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 0, 0}, vec)
}

func TestApproxSizeDivertsLargeArraysToSideChannel(t *testing.T) {
	doc := document.NewBuilder("doc-5").
		AppendString("name", "mesh").
		AppendLargeArray("vertices", "/db/proj/abc_vertices", make([]byte, 1<<20)).
		Finalize()

	require.Less(t, doc.ApproxSize(), 1<<20)
}
