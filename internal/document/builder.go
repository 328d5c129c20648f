package document

import (
	"time"

	"github.com/brightforge/modelengine/internal/ids"
)

// Builder assembles a Document one field at a time (4.1). Nothing is
// encoded until Finalize; callers append fields in whatever order they
// like and the Document preserves it.
type Builder struct {
	id     string
	fields []Field
	binary map[string]BinaryPayload
}

// NewBuilder starts a Builder for the document identified by id.
func NewBuilder(id string) *Builder {
	return &Builder{id: id, binary: make(map[string]BinaryPayload)}
}

func (b *Builder) append(label string, kind FieldKind, value any) *Builder {
	b.fields = append(b.fields, Field{Label: sanitizeLabel(label), Kind: kind, Value: value})
	return b
}

func (b *Builder) AppendBool(label string, v bool) *Builder       { return b.append(label, KindBool, v) }
func (b *Builder) AppendInt32(label string, v int32) *Builder     { return b.append(label, KindInt32, v) }
func (b *Builder) AppendInt64(label string, v int64) *Builder     { return b.append(label, KindInt64, v) }
func (b *Builder) AppendDouble(label string, v float64) *Builder  { return b.append(label, KindDouble, v) }
func (b *Builder) AppendString(label string, v string) *Builder   { return b.append(label, KindString, v) }
func (b *Builder) AppendUUID(label string, v ids.UUID) *Builder   { return b.append(label, KindUUID, v) }
func (b *Builder) AppendMatrix4(label string, m ids.Matrix4) *Builder {
	return b.append(label, KindMatrix4, m)
}

// AppendVec3 encodes v as a field whose serialised form is {x,y,z} when
// asObject is true, or [x,y,z] otherwise (4.1: "chosen per call").
func (b *Builder) AppendVec3(label string, v ids.Vec3, asObject bool) *Builder {
	b.fields = append(b.fields, Field{
		Label:       sanitizeLabel(label),
		Kind:        KindVec3,
		Value:       v,
		VecAsObject: asObject,
	})
	return b
}

// AppendTimeStamp records "now" in milliseconds (4.1).
func (b *Builder) AppendTimeStamp(label string) *Builder {
	return b.append(label, KindTimestamp, nowMillis(time.Now()))
}

// AppendTime records an explicit time.Time in milliseconds.
func (b *Builder) AppendTime(label string, t time.Time) *Builder {
	return b.append(label, KindTimestamp, nowMillis(t))
}

// AppendDocument nests another document inline (not diverted to the
// binary side-channel regardless of size; callers are responsible for
// keeping nested documents small).
func (b *Builder) AppendDocument(label string, nested *Document) *Builder {
	return b.append(label, KindDocument, nested)
}

// AppendArray stores an ordered sequence of sub-fields under one label.
func (b *Builder) AppendArray(label string, items []Field) *Builder {
	return b.append(label, KindArray, items)
}

// AppendLargeArray always routes bytes through the binary side-channel and
// never inlines them (4.1). logicalName is the deterministic blob path the
// caller has already computed for this payload (blob.LogicalName).
func (b *Builder) AppendLargeArray(label, logicalName string, payload []byte) *Builder {
	label = sanitizeLabel(label)
	b.binary[label] = BinaryPayload{LogicalName: logicalName, Bytes: payload}
	return b.append(label, KindBinaryName, logicalName)
}

// Finalize returns the encoded Document plus its binary side-channel
// mapping (4.1).
func (b *Builder) Finalize() *Document {
	fields := make([]Field, len(b.fields))
	copy(fields, b.fields)
	binary := make(map[string]BinaryPayload, len(b.binary))
	for k, v := range b.binary {
		binary[k] = v
	}
	return &Document{ID: b.id, Fields: fields, Binary: binary}
}
