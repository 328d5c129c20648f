package bvh_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightforge/modelengine/internal/bvh"
	"github.com/brightforge/modelengine/internal/ids"
)

func box(x float32) ids.Bounds {
	return ids.Bounds{Min: ids.Vec3{X: x, Y: 0, Z: 0}, Max: ids.Vec3{X: x + 1, Y: 1, Z: 1}}
}

func TestBuildProducesLeafPerPrimitiveAtMaxLeafSizeOne(t *testing.T) {
	bounds := []ids.Bounds{box(0), box(10), box(20), box(30)}
	centroids := make([]ids.Vec3, len(bounds))
	for i, b := range bounds {
		centroids[i] = b.Center()
	}
	tree := bvh.Build(bounds, centroids, 1)
	require.Len(t, tree.Prims, 4)

	var leaves int
	for _, n := range tree.Nodes {
		if n.Left < 0 {
			leaves++
			require.Equal(t, int32(1), n.Count)
		}
	}
	require.Equal(t, 4, leaves)
}

func TestRefitUpdatesBoundsWithoutRestructuring(t *testing.T) {
	bounds := []ids.Bounds{box(0), box(10)}
	centroids := []ids.Vec3{bounds[0].Center(), bounds[1].Center()}
	tree := bvh.Build(bounds, centroids, 1)
	nodeCountBefore := len(tree.Nodes)

	tree.Refit(func(prims []int) ids.Bounds {
		require.Len(t, prims, 1)
		return box(float32(prims[0]) * 100)
	})
	require.Equal(t, nodeCountBefore, len(tree.Nodes))
	require.Equal(t, float32(0), tree.Nodes[tree.Root()].Bounds.Min.X)
}

func TestPairTraverseDistanceFindsClosestPair(t *testing.T) {
	aBounds := []ids.Bounds{box(0), box(10)}
	bBounds := []ids.Bounds{box(1), box(50)}
	a := bvh.Build(aBounds, []ids.Vec3{aBounds[0].Center(), aBounds[1].Center()}, 1)
	b := bvh.Build(bBounds, []ids.Vec3{bBounds[0].Center(), bBounds[1].Center()}, 1)

	var calls int
	result := bvh.PairTraverseDistance(a, b, 1000, func(ai, bj int) float32 {
		calls++
		return aBounds[ai].DistanceSqTo(bBounds[bj])
	})
	require.Greater(t, calls, 0)
	require.Equal(t, float32(0), result) // box(0) and box(1) overlap: distance 0
}

func TestPairTraverseIntersectInvokesOnOverlap(t *testing.T) {
	aBounds := []ids.Bounds{box(0)}
	bBounds := []ids.Bounds{box(0.5)}
	a := bvh.Build(aBounds, []ids.Vec3{aBounds[0].Center()}, 1)
	b := bvh.Build(bBounds, []ids.Vec3{bBounds[0].Center()}, 1)

	var hit bool
	bvh.PairTraverseIntersect(a, b, 0, func(ai, bj int) {
		hit = true
	})
	require.True(t, hit)
}

func TestPairTraverseIntersectPrunesDisjointBounds(t *testing.T) {
	aBounds := []ids.Bounds{box(0)}
	bBounds := []ids.Bounds{box(1000)}
	a := bvh.Build(aBounds, []ids.Vec3{aBounds[0].Center()}, 1)
	b := bvh.Build(bBounds, []ids.Vec3{bBounds[0].Center()}, 1)

	var hit bool
	bvh.PairTraverseIntersect(a, b, 0.01, func(ai, bj int) {
		hit = true
	})
	require.False(t, hit)
}
