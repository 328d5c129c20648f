// Package graph implements the scene graph and its diff tracking (3.4,
// 4.3): two independent instances of the same graph type model the
// default (authored) and optimized (post-multipart) scenes, rather than a
// conditional enum inside one graph (9: "Dual graph representations").
package graph

import (
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/scene/node"
)

// Status bits flag a scene's health (3.4).
type Status uint32

const (
	StatusHealthy             Status = 0
	StatusMissingTextureFile  Status = 1 << 0
	StatusMissingNodes        Status = 1 << 1
)

// Graph is one instance of the scene graph (default or optimized).
type Graph struct {
	// Roots holds transformation nodes with empty Parents.
	Roots []ids.UUID

	byUnique map[ids.UUID]*node.Node
	// bySharedLatest maps a shared id to the unique id of its latest node
	// in this revision.
	bySharedLatest map[ids.UUID]ids.UUID
	// children maps a parent shared id to its child nodes' unique ids.
	children map[ids.UUID][]ids.UUID
	// refScenes maps a reference node's unique id to its loaded sub-scene,
	// absent (nil entry never stored) until loaded.
	refScenes map[ids.UUID]*Graph

	added, modified, removed map[ids.UUID]struct{} // shared ids
	current                  map[ids.UUID]struct{} // unique ids
	// toDelete holds nodes removed via RemoveNode, retained until commit
	// (4.3: "enqueues for deletion at commit").
	toDelete []*node.Node

	Status Status
}

// New returns an empty graph ready for construction by an importer or a
// revision loader (3.4 Lifecycle).
func New() *Graph {
	return &Graph{
		byUnique:       make(map[ids.UUID]*node.Node),
		bySharedLatest: make(map[ids.UUID]ids.UUID),
		children:       make(map[ids.UUID][]ids.UUID),
		refScenes:      make(map[ids.UUID]*Graph),
		added:          make(map[ids.UUID]struct{}),
		modified:       make(map[ids.UUID]struct{}),
		removed:        make(map[ids.UUID]struct{}),
		current:        make(map[ids.UUID]struct{}),
	}
}

// NodeByUnique looks up a node by its unique id.
func (g *Graph) NodeByUnique(id ids.UUID) (*node.Node, bool) {
	n, ok := g.byUnique[id]
	return n, ok
}

// NodeBySharedID resolves a shared id to its latest unique-id node in this
// revision.
func (g *Graph) NodeBySharedID(shared ids.UUID) (*node.Node, bool) {
	uid, ok := g.bySharedLatest[shared]
	if !ok {
		return nil, false
	}
	return g.NodeByUnique(uid)
}

// Count returns the number of nodes currently in the graph, used by the
// commit protocol's precondition that a scene have at least one node
// (4.4).
func (g *Graph) Count() int {
	return len(g.current)
}

// AllNodes returns every node currently in the graph in unspecified order,
// used by the commit protocol to collect the optimized graph's nodes in
// full (4.4 step 1: "all nodes from the optimized graph if present").
func (g *Graph) AllNodes() []*node.Node {
	out := make([]*node.Node, 0, len(g.byUnique))
	for _, n := range g.byUnique {
		out = append(out, n)
	}
	return out
}

// Children returns the child nodes currently parented under shared.
func (g *Graph) Children(shared ids.UUID) []*node.Node {
	uids := g.children[shared]
	out := make([]*node.Node, 0, len(uids))
	for _, uid := range uids {
		if n, ok := g.byUnique[uid]; ok {
			out = append(out, n)
		}
	}
	return out
}

// AddNode inserts n into the indices, links it under each of its parents,
// and marks its shared id as added (4.3: addNode).
func (g *Graph) AddNode(n *node.Node) {
	g.byUnique[n.UniqueID] = n
	g.bySharedLatest[n.SharedID] = n.UniqueID
	for _, p := range n.Parents {
		g.children[p] = append(g.children[p], n.UniqueID)
	}
	if len(n.Parents) == 0 && n.Kind == node.KindTransformation {
		g.Roots = append(g.Roots, n.UniqueID)
	}
	delete(g.removed, n.SharedID)
	g.added[n.SharedID] = struct{}{}
	g.current[n.UniqueID] = struct{}{}
}

// RemoveNode removes the node for shared from all indices and disconnects
// it from parents and children. Children are left detached (Open Question,
// resolved per 9: the caller is responsible for re-parenting or removing
// them); the node itself is queued in toDelete for removal at commit.
func (g *Graph) RemoveNode(shared ids.UUID) {
	uid, ok := g.bySharedLatest[shared]
	if !ok {
		return
	}
	n := g.byUnique[uid]
	delete(g.byUnique, uid)
	delete(g.bySharedLatest, shared)
	delete(g.current, uid)
	delete(g.children, shared)
	for _, p := range n.Parents {
		g.children[p] = removeUUID(g.children[p], uid)
	}
	g.Roots = removeUUID(g.Roots, uid)
	if n != nil {
		g.toDelete = append(g.toDelete, n)
	}
	delete(g.added, shared)
	g.removed[shared] = struct{}{}
}

// AddInheritance inserts parent into child's Parents (idempotent) and
// links child under parent; unless noUpdate, marks child as modified
// (4.3: addInheritance). A child still in the added set stays there and is
// not also marked modified, so the diff sets stay disjoint.
func (g *Graph) AddInheritance(parent, child ids.UUID, noUpdate bool) {
	n, ok := g.bySharedLatest[child]
	if !ok {
		return
	}
	cn := g.byUnique[n]
	for _, p := range cn.Parents {
		if p == parent {
			return
		}
	}
	cn.Parents = append(cn.Parents, parent)
	g.children[parent] = append(g.children[parent], cn.UniqueID)
	if !noUpdate {
		g.markModified(child)
	}
}

// AbandonChild is the inverse of AddInheritance (4.3).
func (g *Graph) AbandonChild(parent, child ids.UUID, modifyParent, modifyChild bool) {
	uid, ok := g.bySharedLatest[child]
	if !ok {
		return
	}
	cn := g.byUnique[uid]
	cn.Parents = removeUUID(cn.Parents, parent)
	g.children[parent] = removeUUID(g.children[parent], uid)
	if modifyChild {
		g.markModified(child)
	}
	if modifyParent {
		g.markModified(parent)
	}
}

// ApplyScaleFactor scales every root's matrix by a uniform factor (4.3).
func (g *Graph) ApplyScaleFactor(s float32) {
	scale := ids.ScaleUniform4(s)
	for _, uid := range g.Roots {
		n := g.byUnique[uid]
		if n == nil || n.Transformation == nil {
			continue
		}
		n.Transformation.Matrix = scale.Mul(n.Transformation.Matrix)
		g.markModified(n.SharedID)
	}
}

// ReorientateDirectXModel prepends a -90deg rotation about X to every
// root's matrix (4.3).
func (g *Graph) ReorientateDirectXModel() {
	rot := ids.RotateXDeg(-90)
	for _, uid := range g.Roots {
		n := g.byUnique[uid]
		if n == nil || n.Transformation == nil {
			continue
		}
		n.Transformation.Matrix = rot.Mul(n.Transformation.Matrix)
		g.markModified(n.SharedID)
	}
}

func (g *Graph) markModified(shared ids.UUID) {
	if _, isAdded := g.added[shared]; isAdded {
		return
	}
	g.modified[shared] = struct{}{}
}

// Diff returns the current added/modified/removed/current sets (4.3).
type Diff struct {
	Added, Modified, Removed []ids.UUID // shared ids
	Current                  []ids.UUID // unique ids
}

func (g *Graph) Diff() Diff {
	toSlice := func(m map[ids.UUID]struct{}) []ids.UUID {
		out := make([]ids.UUID, 0, len(m))
		for k := range m {
			out = append(out, k)
		}
		return out
	}
	return Diff{
		Added:    toSlice(g.added),
		Modified: toSlice(g.modified),
		Removed:  toSlice(g.removed),
		Current:  toSlice(g.current),
	}
}

// ToDelete returns the nodes queued for removal at commit by RemoveNode.
func (g *Graph) ToDelete() []*node.Node {
	return g.toDelete
}

// SetReferenceScene records a reference node's loaded sub-scene.
func (g *Graph) SetReferenceScene(refUniqueID ids.UUID, sub *Graph) {
	g.refScenes[refUniqueID] = sub
}

// ReferenceScene returns the loaded sub-scene for a reference node, if any.
func (g *Graph) ReferenceScene(refUniqueID ids.UUID) (*Graph, bool) {
	sub, ok := g.refScenes[refUniqueID]
	return sub, ok
}

func removeUUID(s []ids.UUID, v ids.UUID) []ids.UUID {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
