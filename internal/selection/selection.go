// Package selection implements the selection-tree generator (4.7, H): a DFS
// of the default scene graph producing one small document tree per root,
// with metadata folded into the tree node of its owning parent rather than
// persisted as its own node. Grounded on 4.7's own description ("a JSON
// index derived by a DFS... output is a set of small documents grouped by
// root subtree"); there is no single teacher file to copy since the teacher
// has no equivalent index, so this follows the node/document shape already
// established by internal/scene/node.
package selection

import (
	"github.com/brightforge/modelengine/internal/document"
	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/scene/graph"
	"github.com/brightforge/modelengine/internal/scene/node"
)

// TreeNode is one entry of a selection tree: a non-metadata node carrying
// the metadata entries folded in from any metadata children, plus its own
// non-metadata children.
type TreeNode struct {
	UniqueID ids.UUID
	SharedID ids.UUID
	Kind     node.Kind
	Name     string
	Metadata []node.MetadataEntry
	Children []*TreeNode
}

// Generate derives one TreeNode per root in def, each the result of a DFS
// over that root's subtree (4.7). Material, texture, and reference
// children are not selectable objects in their own right and are skipped;
// metadata children fold their entries into the nearest TreeNode being
// built instead of gaining one of their own.
func Generate(def *graph.Graph) []*TreeNode {
	var out []*TreeNode
	for _, rootUID := range def.Roots {
		root, ok := def.NodeByUnique(rootUID)
		if !ok {
			continue
		}
		if t := build(def, root); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func build(def *graph.Graph, n *node.Node) *TreeNode {
	if n == nil {
		return nil
	}
	t := &TreeNode{UniqueID: n.UniqueID, SharedID: n.SharedID, Kind: n.Kind, Name: n.Name}
	for _, child := range def.Children(n.SharedID) {
		switch child.Kind {
		case node.KindMetadata:
			if child.Metadata != nil {
				t.Metadata = append(t.Metadata, child.Metadata.Entries...)
			}
		case node.KindMaterial, node.KindTexture, node.KindReference:
			continue
		default:
			if sub := build(def, child); sub != nil {
				t.Children = append(t.Children, sub)
			}
		}
	}
	return t
}

// Serialise encodes a TreeNode (and its full subtree) into a persistable
// Document, nesting children inline (4.1 AppendDocument: "callers are
// responsible for keeping nested documents small", which a selection
// subtree is by construction).
func Serialise(t *TreeNode) *document.Document {
	b := document.NewBuilder(t.UniqueID.String()).
		AppendUUID("_id", t.UniqueID).
		AppendUUID("shared_id", t.SharedID).
		AppendString("type", string(t.Kind))
	if t.Name != "" {
		b.AppendString("name", t.Name)
	}
	if len(t.Metadata) > 0 {
		entries := make([]document.Field, 0, len(t.Metadata))
		for _, e := range t.Metadata {
			entries = append(entries, document.Field{Label: e.Key, Kind: document.KindDocument, Value: metadataValueDocument(e.Key, e.Value)})
		}
		b.AppendArray("metadata", entries)
	}
	children := make([]document.Field, 0, len(t.Children))
	for _, c := range t.Children {
		children = append(children, document.Field{Label: "c", Kind: document.KindDocument, Value: Serialise(c)})
	}
	b.AppendArray("children", children)
	return b.Finalize()
}

// metadataValueDocument mirrors node's package-private variantToDocument:
// that helper is unexported, so the same {value, kind} shape is rebuilt
// here directly off ids.Variant's tagged fields.
func metadataValueDocument(key string, v ids.Variant) *document.Document {
	b := document.NewBuilder(key)
	switch v.Kind {
	case ids.VariantBool:
		b.AppendBool("value", v.B)
	case ids.VariantInt32:
		b.AppendInt32("value", v.I32)
	case ids.VariantInt64:
		b.AppendInt64("value", v.I64)
	case ids.VariantDouble:
		b.AppendDouble("value", v.F64)
	case ids.VariantString:
		b.AppendString("value", v.S)
	case ids.VariantUUID:
		b.AppendUUID("value", v.U)
	case ids.VariantTimestamp:
		b.AppendTime("value", v.T)
	}
	b.AppendString("kind", string(v.Kind))
	return b.Finalize()
}
