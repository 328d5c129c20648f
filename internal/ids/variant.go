package ids

import "time"

// VariantKind tags the concrete type held by a Variant.
type VariantKind string

const (
	VariantBool      VariantKind = "bool"
	VariantInt32     VariantKind = "int32"
	VariantInt64     VariantKind = "int64"
	VariantDouble    VariantKind = "double"
	VariantString    VariantKind = "string"
	VariantUUID      VariantKind = "uuid"
	VariantTimestamp VariantKind = "timestamp"
)

// Variant is a tagged union over the scalar value kinds metadata entries
// may carry (3.3 Metadata node: {key, value} where value is one of
// {bool, int32, int64, double, string, timestamp, UUID}).
type Variant struct {
	Kind VariantKind
	B    bool
	I32  int32
	I64  int64
	F64  float64
	S    string
	U    UUID
	T    time.Time
}

func NewBoolVariant(v bool) Variant      { return Variant{Kind: VariantBool, B: v} }
func NewInt32Variant(v int32) Variant    { return Variant{Kind: VariantInt32, I32: v} }
func NewInt64Variant(v int64) Variant    { return Variant{Kind: VariantInt64, I64: v} }
func NewDoubleVariant(v float64) Variant { return Variant{Kind: VariantDouble, F64: v} }
func NewStringVariant(v string) Variant  { return Variant{Kind: VariantString, S: v} }
func NewUUIDVariant(v UUID) Variant      { return Variant{Kind: VariantUUID, U: v} }
func NewTimestampVariant(v time.Time) Variant {
	return Variant{Kind: VariantTimestamp, T: v}
}
