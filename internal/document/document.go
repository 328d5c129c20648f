// Package document implements the schema-tagged document encoding (3.2, 4.1):
// an ordered label->value mapping with a binary side-channel for payloads
// that would otherwise blow the document's on-wire size budget.
package document

import (
	"time"
)

// MaxDocumentBytes is the approximate on-wire size budget (3.2): fields
// that would push a document over this must be diverted to the blob store
// and replaced by a BlobRef.
const MaxDocumentBytes = 16 * 1024 * 1024

// FieldKind tags the concrete representation of a Field's Value.
type FieldKind string

const (
	KindBool      FieldKind = "bool"
	KindInt32     FieldKind = "int32"
	KindInt64     FieldKind = "int64"
	KindDouble    FieldKind = "double"
	KindString    FieldKind = "string"
	KindUUID      FieldKind = "uuid"
	KindTimestamp FieldKind = "timestamp"
	KindDocument  FieldKind = "document"
	KindArray     FieldKind = "array"
	KindMatrix4   FieldKind = "matrix4"
	KindVec3      FieldKind = "vec3"
	KindBlobRef   FieldKind = "blob_ref"
	// KindBinaryName marks a field whose bytes live only in the document's
	// binary side-channel, keyed by this field's Label; the Value carries
	// the deterministic logical file name assigned to the payload.
	KindBinaryName FieldKind = "binary_name"
)

// BlobRef is the on-wire replacement for a field whose payload was diverted
// to the blob store: {file name, byte offset, byte length} (3.2).
type BlobRef struct {
	FileName string
	Offset   int64
	Length   int64
}

// Field is one ordered label->value entry of a Document.
type Field struct {
	Label string
	Kind  FieldKind
	// Value holds the Go-native representation selected by Kind:
	// bool, int32, int64, float64, string, ids.UUID, int64 milliseconds
	// (KindTimestamp), *Document,
	// []Field (array), ids.Matrix4, ids.Vec3, BlobRef, or string (logical
	// binary name for KindBinaryName).
	Value any
	// VecAsObject marks a KindVec3 field that should render as
	// {x,y,z} rather than [x,y,z] on serialise (4.1: "chosen per call").
	VecAsObject bool
}

// BinaryPayload is one entry of a document's binary side-channel: the raw
// bytes destined for the blob store, keyed by logical file name (3.2).
type BinaryPayload struct {
	LogicalName string
	Bytes       []byte
}

// Document is an ordered mapping from string labels to typed values, plus
// its binary side-channel (3.2). ID is the document's "_id" (a UUID string
// form or a plain string key).
type Document struct {
	ID     string
	Fields []Field
	// Binary maps a field's Label to its side-channel payload. A field with
	// Kind==KindBinaryName always has a corresponding entry here until the
	// commit protocol's blob.DivertDocument replaces every such field with a
	// BlobRef, writes the bytes through the blob appender and clears this
	// map (4.4 step 3).
	Binary map[string]BinaryPayload
}

// Get returns the field with the given label, if present.
func (d *Document) Get(label string) (Field, bool) {
	if d == nil {
		return Field{}, false
	}
	for _, f := range d.Fields {
		if f.Label == label {
			return f, true
		}
	}
	return Field{}, false
}

// ApproxSize estimates the on-wire size of the document excluding anything
// held in the binary side-channel (4.1, 3.2).
func (d *Document) ApproxSize() int {
	if d == nil {
		return 0
	}
	size := len(d.ID)
	for _, f := range d.Fields {
		size += len(f.Label) + fieldValueSize(f)
	}
	return size
}

func fieldValueSize(f Field) int {
	switch f.Kind {
	case KindString:
		s, _ := f.Value.(string)
		return len(s)
	case KindBool:
		return 1
	case KindInt32, KindInt64:
		return 8
	case KindDouble:
		return 8
	case KindUUID:
		return 16
	case KindTimestamp:
		return 8
	case KindMatrix4:
		return 16 * 4
	case KindVec3:
		return 3 * 4
	case KindDocument:
		if nested, ok := f.Value.(*Document); ok {
			return nested.ApproxSize()
		}
		return 0
	case KindArray:
		arr, _ := f.Value.([]Field)
		size := 0
		for _, sub := range arr {
			size += fieldValueSize(sub)
		}
		return size
	case KindBlobRef:
		return 64
	case KindBinaryName:
		return 64
	default:
		return 0
	}
}

// sanitizeLabel replaces '$' and '.' with ':' so persisted labels never
// collide with the store's own reserved characters (3.2 invariant).
func sanitizeLabel(label string) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		if r == '$' || r == '.' {
			out = append(out, ':')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// nowMillis converts a time.Time to the millisecond-precision wire form
// used by AppendTimeStamp (4.1: "seconds -> milliseconds").
func nowMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis is the inverse of nowMillis, used by the reader.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
