// Package bvh implements the bounding volume hierarchy contract of 4.5:
// sweep-SAH build, bottom-up refit without restructuring, and the two
// pair-traversal operators the clash pipeline's broadphase and narrowphase
// stages share (top-level mesh-instance AABBs and per-mesh triangle AABBs
// alike). Grounded on the teacher's nowhere-else-present spatial-indexing
// need; the sweep/stack shape follows the same "sort, accumulate prefix
// bounds, pick the cheapest split" approach documented inline in 4.5
// rather than any one teacher file, since the teacher repo has no spatial
// index of its own.
package bvh

import "github.com/brightforge/modelengine/internal/ids"

// Node is one BVH node: an inner node if Left >= 0, otherwise a leaf
// referencing the contiguous primitive run Prims[Start : Start+Count]
// (4.5: "each leaf referencing a contiguous run of primitive indices").
type Node struct {
	Bounds      ids.Bounds
	Left, Right int32
	Start       int32
	Count       int32
}

// BVH is a binary tree over N primitives, built once by Build and
// thereafter only Refit (never restructured).
type BVH struct {
	Nodes []Node
	// Prims holds the original primitive indices in build order; a leaf's
	// run is a slice of this.
	Prims []int
}

// Root returns the index of the root node, or -1 if the tree is empty.
func (b *BVH) Root() int32 {
	if len(b.Nodes) == 0 {
		return -1
	}
	return 0
}

type buildPrim struct {
	index    int
	bounds   ids.Bounds
	centroid ids.Vec3
}

// Build constructs a BVH over bounds/centroids (one entry per primitive)
// via sweep SAH, with every leaf holding at most maxLeafSize primitives
// (4.5: "max_leaf_size = 1 in clash paths").
func Build(bounds []ids.Bounds, centroids []ids.Vec3, maxLeafSize int) *BVH {
	if maxLeafSize < 1 {
		maxLeafSize = 1
	}
	prims := make([]buildPrim, len(bounds))
	for i := range bounds {
		prims[i] = buildPrim{index: i, bounds: bounds[i], centroid: centroids[i]}
	}
	b := &BVH{Prims: make([]int, 0, len(bounds))}
	if len(prims) == 0 {
		return b
	}
	buildNode(b, prims, maxLeafSize)
	return b
}

func unionAll(prims []buildPrim) ids.Bounds {
	out := ids.EmptyBounds()
	for _, p := range prims {
		out = out.Union(p.bounds)
	}
	return out
}

func buildNode(b *BVH, prims []buildPrim, maxLeafSize int) int32 {
	nodeBounds := unionAll(prims)
	if len(prims) <= maxLeafSize {
		return appendLeaf(b, prims, nodeBounds)
	}

	axis, split, ok := bestSAHSplit(prims, nodeBounds)
	if !ok {
		return appendLeaf(b, prims, nodeBounds)
	}
	sortByAxis(prims, axis)
	left, right := prims[:split], prims[split:]
	if len(left) == 0 || len(right) == 0 {
		return appendLeaf(b, prims, nodeBounds)
	}

	idx := int32(len(b.Nodes))
	b.Nodes = append(b.Nodes, Node{Bounds: nodeBounds})
	leftIdx := buildNode(b, left, maxLeafSize)
	rightIdx := buildNode(b, right, maxLeafSize)
	b.Nodes[idx].Left = leftIdx
	b.Nodes[idx].Right = rightIdx
	return idx
}

func appendLeaf(b *BVH, prims []buildPrim, bounds ids.Bounds) int32 {
	idx := int32(len(b.Nodes))
	start := int32(len(b.Prims))
	for _, p := range prims {
		b.Prims = append(b.Prims, p.index)
	}
	b.Nodes = append(b.Nodes, Node{Bounds: bounds, Left: -1, Right: -1, Start: start, Count: int32(len(prims))})
	return idx
}

// sortByAxis orders prims by centroid component along axis, breaking ties
// on the original primitive index so repeated sorts of the same set are
// reproducible (4.5: "deterministic in node-visit order").
func sortByAxis(prims []buildPrim, axis int) {
	insertionSort(prims, func(i, j buildPrim) bool {
		ci, cj := component(i.centroid, axis), component(j.centroid, axis)
		if ci != cj {
			return ci < cj
		}
		return i.index < j.index
	})
}

// insertionSort is a small stable sort used for build-time ordering;
// build inputs are per-node subsets (already small after a few splits)
// so an O(n^2) worst case on the first call is acceptable, and it keeps
// the tie-break fully deterministic without relying on sort.Slice's
// unspecified-on-ties behaviour.
func insertionSort(s []buildPrim, less func(a, b buildPrim) bool) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func component(v ids.Vec3, axis int) float32 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// bestSAHSplit sweeps all three axes, evaluating the surface-area
// heuristic cost at every split position via prefix/suffix bounds, and
// returns the cheapest split found. ok is false when no split beats the
// cost of leaving the node unsplit.
func bestSAHSplit(prims []buildPrim, nodeBounds ids.Bounds) (axis int, split int, ok bool) {
	n := len(prims)
	bestCost := float32(n) * nodeBounds.SurfaceArea()
	bestAxis, bestSplit := -1, -1

	scratch := make([]buildPrim, n)
	for a := 0; a < 3; a++ {
		copy(scratch, prims)
		sortByAxis(scratch, a)

		suffixBounds := make([]ids.Bounds, n+1)
		suffixBounds[n] = ids.EmptyBounds()
		for i := n - 1; i >= 0; i-- {
			suffixBounds[i] = suffixBounds[i+1].Union(scratch[i].bounds)
		}

		prefix := ids.EmptyBounds()
		for i := 1; i < n; i++ {
			prefix = prefix.Union(scratch[i-1].bounds)
			cost := float32(i)*prefix.SurfaceArea() + float32(n-i)*suffixBounds[i].SurfaceArea()
			if cost < bestCost {
				bestCost = cost
				bestAxis = a
				bestSplit = i
			}
		}
	}
	if bestAxis < 0 {
		return 0, 0, false
	}
	return bestAxis, bestSplit, true
}

// Refit recomputes every node's bounds bottom-up without restructuring
// the tree (4.5: "Refit must not restructure the tree"). newLeafBounds is
// called once per leaf with the original primitive indices it holds
// (Prims[Start:Start+Count]) and must return that leaf's updated bounds
// after whatever transform the caller applied top-down.
func (b *BVH) Refit(newLeafBounds func(prims []int) ids.Bounds) {
	if len(b.Nodes) == 0 {
		return
	}
	b.refit(0, newLeafBounds)
}

func (b *BVH) refit(idx int32, newLeafBounds func(prims []int) ids.Bounds) ids.Bounds {
	n := &b.Nodes[idx]
	if n.Left < 0 {
		n.Bounds = newLeafBounds(b.Prims[n.Start : n.Start+n.Count])
		return n.Bounds
	}
	left := b.refit(n.Left, newLeafBounds)
	right := b.refit(n.Right, newLeafBounds)
	n.Bounds = left.Union(right)
	return n.Bounds
}

type pairEntry struct{ a, b int32 }

// PairTraverseDistance implements the distance-query pair traversal
// (4.5): stack-based, deterministic, pruning any node pair whose AABB
// distance exceeds the current bound. dInit seeds the bound; intersect is
// invoked for every primitive pair of a leaf pair whose AABB distance is
// within the running bound and returns a candidate distance that may lower the running bound. The
// final (possibly lowered) bound is returned.
func PairTraverseDistance(a, b *BVH, dInit float32, intersect func(ai, bj int) float32) float32 {
	ra, rb := a.Root(), b.Root()
	if ra < 0 || rb < 0 {
		return dInit
	}
	d := dInit
	stack := []pairEntry{{ra, rb}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		na, nb := &a.Nodes[e.a], &b.Nodes[e.b]
		if na.Bounds.DistanceSqTo(nb.Bounds) > d*d {
			continue
		}
		switch {
		case na.Left < 0 && nb.Left < 0:
			for i := na.Start; i < na.Start+na.Count; i++ {
				for j := nb.Start; j < nb.Start+nb.Count; j++ {
					if nd := intersect(a.Prims[i], b.Prims[j]); nd < d {
						d = nd
					}
				}
			}
		case na.Left < 0:
			stack = append(stack, pairEntry{e.a, nb.Left}, pairEntry{e.a, nb.Right})
		case nb.Left < 0:
			stack = append(stack, pairEntry{na.Left, e.b}, pairEntry{na.Right, e.b})
		default:
			stack = append(stack,
				pairEntry{na.Left, nb.Left}, pairEntry{na.Left, nb.Right},
				pairEntry{na.Right, nb.Left}, pairEntry{na.Right, nb.Right})
		}
	}
	return d
}

// PairTraverseIntersect implements the intersect-query pair traversal
// (4.5): prunes any node pair whose AABB overlap diagonal^2 does not
// exceed tau^2, invoking intersect for every primitive pair reaching two
// overlapping leaves that pass the tolerance.
func PairTraverseIntersect(a, b *BVH, tau float32, intersect func(ai, bj int)) {
	ra, rb := a.Root(), b.Root()
	if ra < 0 || rb < 0 {
		return
	}
	tauSq := tau * tau
	stack := []pairEntry{{ra, rb}}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		na, nb := &a.Nodes[e.a], &b.Nodes[e.b]
		diagSq, overlaps := na.Bounds.OverlapDiagonalSqWith(nb.Bounds)
		if !overlaps || diagSq <= tauSq {
			continue
		}
		switch {
		case na.Left < 0 && nb.Left < 0:
			for i := na.Start; i < na.Start+na.Count; i++ {
				for j := nb.Start; j < nb.Start+nb.Count; j++ {
					intersect(a.Prims[i], b.Prims[j])
				}
			}
		case na.Left < 0:
			stack = append(stack, pairEntry{e.a, nb.Left}, pairEntry{e.a, nb.Right})
		case nb.Left < 0:
			stack = append(stack, pairEntry{na.Left, e.b}, pairEntry{na.Right, e.b})
		default:
			stack = append(stack,
				pairEntry{na.Left, nb.Left}, pairEntry{na.Left, nb.Right},
				pairEntry{na.Right, nb.Left}, pairEntry{na.Right, nb.Right})
		}
	}
}
