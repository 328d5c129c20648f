package document

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/brightforge/modelengine/internal/ids"
	"github.com/brightforge/modelengine/internal/modelerr"
	"github.com/brightforge/modelengine/internal/platform/logger"
)

// BlobGetter is the subset of blob.Store the reader needs to dereference a
// BlobRef field lazily. Declared locally (rather than importing blob) to
// keep document free of a dependency on the blob store.
type BlobGetter interface {
	Get(ctx context.Context, logicalName string) ([]byte, error)
	GetRange(ctx context.Context, logicalName string, offset, length int64) ([]byte, error)
}

// Reader exposes typed getters over a Document, lazily dereferencing
// binary-side-channel and blob-store-backed fields on demand (4.1).
type Reader struct {
	doc   *Document
	blobs BlobGetter
	log   *logger.Logger
}

// NewReader wraps doc for typed access. blobs may be nil if the document is
// known not to carry any KindBlobRef fields.
func NewReader(doc *Document, blobs BlobGetter, log *logger.Logger) *Reader {
	return &Reader{doc: doc, blobs: blobs, log: log}
}

func (r *Reader) field(label string) (Field, error) {
	f, ok := r.doc.Get(label)
	if !ok {
		return Field{}, modelerr.New(modelerr.CodeNotFound, "document.Reader", "field not found: "+label, nil)
	}
	return f, nil
}

func (r *Reader) GetString(label string) (string, error) {
	f, err := r.field(label)
	if err != nil {
		return "", err
	}
	s, ok := f.Value.(string)
	if !ok {
		return "", modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a string: "+label, nil)
	}
	return s, nil
}

func (r *Reader) GetInt(label string) (int64, error) {
	f, err := r.field(label)
	if err != nil {
		return 0, err
	}
	switch v := f.Value.(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	}
	return 0, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not an int: "+label, nil)
}

func (r *Reader) GetDouble(label string) (float64, error) {
	f, err := r.field(label)
	if err != nil {
		return 0, err
	}
	v, ok := f.Value.(float64)
	if !ok {
		return 0, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a double: "+label, nil)
	}
	return v, nil
}

func (r *Reader) GetBool(label string) (bool, error) {
	f, err := r.field(label)
	if err != nil {
		return false, err
	}
	v, ok := f.Value.(bool)
	if !ok {
		return false, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a bool: "+label, nil)
	}
	return v, nil
}

func (r *Reader) GetUUID(label string) (ids.UUID, error) {
	f, err := r.field(label)
	if err != nil {
		return ids.UUID{}, err
	}
	v, ok := f.Value.(ids.UUID)
	if !ok {
		return ids.UUID{}, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a uuid: "+label, nil)
	}
	return v, nil
}

func (r *Reader) GetMatrix4(label string) (ids.Matrix4, error) {
	f, err := r.field(label)
	if err != nil {
		return ids.Matrix4{}, err
	}
	v, ok := f.Value.(ids.Matrix4)
	if !ok {
		return ids.Matrix4{}, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a matrix4: "+label, nil)
	}
	return v, nil
}

func (r *Reader) GetVec3(label string) (ids.Vec3, error) {
	f, err := r.field(label)
	if err != nil {
		return ids.Vec3{}, err
	}
	v, ok := f.Value.(ids.Vec3)
	if !ok {
		return ids.Vec3{}, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a vec3: "+label, nil)
	}
	return v, nil
}

// GetBoundsField reads a {min, max} pair of vec3 sub-fields nested under an
// array field, used for persisted node/mesh bounds.
func (r *Reader) GetBoundsField(label string) (ids.Bounds, error) {
	f, err := r.field(label)
	if err != nil {
		return ids.Bounds{}, err
	}
	arr, ok := f.Value.([]Field)
	if !ok || len(arr) != 2 {
		return ids.Bounds{}, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a bounds pair: "+label, nil)
	}
	min, ok1 := arr[0].Value.(ids.Vec3)
	max, ok2 := arr[1].Value.(ids.Vec3)
	if !ok1 || !ok2 {
		return ids.Bounds{}, modelerr.New(modelerr.CodeCorruption, "document.Reader", "bounds pair has non-vec3 entries: "+label, nil)
	}
	return ids.Bounds{Min: min, Max: max}, nil
}

func (r *Reader) GetTimeStampField(label string) (int64, error) {
	f, err := r.field(label)
	if err != nil {
		return 0, err
	}
	ms, ok := f.Value.(int64)
	if !ok {
		return 0, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a timestamp: "+label, nil)
	}
	return ms, nil
}

func (r *Reader) GetFloatArray(label string) ([]float64, error) {
	f, err := r.field(label)
	if err != nil {
		return nil, err
	}
	arr, ok := f.Value.([]Field)
	if !ok {
		return nil, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not an array: "+label, nil)
	}
	out := make([]float64, 0, len(arr))
	for _, sub := range arr {
		v, ok := sub.Value.(float64)
		if !ok {
			return nil, modelerr.New(modelerr.CodeCorruption, "document.Reader", "array element is not a double: "+label, nil)
		}
		out = append(out, v)
	}
	return out, nil
}

// GetArray returns the raw ordered sub-fields of an array field, letting
// callers decode nested documents/arrays that the scalar getters above do
// not cover directly (e.g. mesh_map entries, metadata entries).
func (r *Reader) GetArray(label string) ([]Field, error) {
	f, err := r.field(label)
	if err != nil {
		return nil, err
	}
	arr, ok := f.Value.([]Field)
	if !ok {
		return nil, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not an array: "+label, nil)
	}
	return arr, nil
}

// GetRawBinary resolves a binary-side-channel or blob-ref field to its raw
// bytes without decoding it as a numeric vector, used for opaque payloads
// like texture bytes and packed face-index buffers.
func (r *Reader) GetRawBinary(ctx context.Context, label string) ([]byte, error) {
	return r.resolveBinary(ctx, label)
}

// resolveBinary returns the raw bytes backing a binary-side-channel or
// blob-ref field, fetching from the blob store when the field has already
// been committed (KindBlobRef) or reading directly from the in-memory
// side-channel when it has not (KindBinaryName).
func (r *Reader) resolveBinary(ctx context.Context, label string) ([]byte, error) {
	f, err := r.field(label)
	if err != nil {
		return nil, err
	}
	switch f.Kind {
	case KindBinaryName:
		payload, ok := r.doc.Binary[f.Label]
		if !ok {
			return nil, modelerr.New(modelerr.CodeCorruption, "document.Reader", "missing side-channel payload for: "+label, nil)
		}
		return payload.Bytes, nil
	case KindBlobRef:
		ref, ok := f.Value.(BlobRef)
		if !ok {
			return nil, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field is not a blob ref: "+label, nil)
		}
		if r.blobs == nil {
			return nil, modelerr.New(modelerr.CodeInvalidInput, "document.Reader", "no blob store configured to resolve: "+label, nil)
		}
		if ref.Length == 0 {
			return r.blobs.Get(ctx, ref.FileName)
		}
		return r.blobs.GetRange(ctx, ref.FileName, ref.Offset, ref.Length)
	default:
		return nil, modelerr.New(modelerr.CodeCorruption, "document.Reader", "field has no binary payload: "+label, nil)
	}
}

// Numeric is the set of element types GetBinaryFieldAsVector can decode.
type Numeric interface {
	~float32 | ~float64 | ~int32 | ~int64 | ~uint32
}

func sizeOfNumeric[T Numeric]() int {
	var zero T
	switch any(zero).(type) {
	case float32, int32, uint32:
		return 4
	case float64, int64:
		return 8
	default:
		return 0
	}
}

func decodeNumeric[T Numeric](b []byte) T {
	var zero T
	switch any(zero).(type) {
	case float32:
		v := math.Float32frombits(binary.LittleEndian.Uint32(b))
		return any(v).(T)
	case float64:
		v := math.Float64frombits(binary.LittleEndian.Uint64(b))
		return any(v).(T)
	case int32:
		v := int32(binary.LittleEndian.Uint32(b))
		return any(v).(T)
	case int64:
		v := int64(binary.LittleEndian.Uint64(b))
		return any(v).(T)
	case uint32:
		v := binary.LittleEndian.Uint32(b)
		return any(v).(T)
	}
	return zero
}

// GetBinaryFieldAsVector decodes a binary-side-channel field into a vector
// of expectedCount elements of T. A buffer shorter than expected is
// tolerated: available elements are copied and the remainder left zero,
// with a warning logged. A longer buffer is tolerated by copying only the
// expected prefix (4.1).
func GetBinaryFieldAsVector[T Numeric](ctx context.Context, r *Reader, label string, expectedCount int) ([]T, error) {
	raw, err := r.resolveBinary(ctx, label)
	if err != nil {
		return nil, err
	}
	elemSize := sizeOfNumeric[T]()
	if elemSize == 0 {
		return nil, fmt.Errorf("document: unsupported numeric type for field %s", label)
	}
	available := len(raw) / elemSize
	count := expectedCount
	if available < count {
		if r.log != nil {
			r.log.Warn("binary field shorter than expected, copying available prefix",
				"label", label, "expected", expectedCount, "available", available)
		}
		count = available
	}
	out := make([]T, expectedCount)
	for i := 0; i < count; i++ {
		out[i] = decodeNumeric[T](raw[i*elemSize : (i+1)*elemSize])
	}
	return out, nil
}
