package document

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/brightforge/modelengine/internal/ids"
)

// jsonField is the wire form of a Field: Value is deferred as RawMessage so
// unmarshalField can dispatch on Kind before decoding it into the matching
// Go-native type.
type jsonField struct {
	Label       string          `json:"label"`
	Kind        FieldKind       `json:"kind"`
	Value       json.RawMessage `json:"value"`
	VecAsObject bool            `json:"vec_as_object,omitempty"`
}

type jsonBinaryPayload struct {
	LogicalName string `json:"logical_name"`
	Bytes       string `json:"bytes"`
}

type jsonDocument struct {
	ID     string                       `json:"id"`
	Fields []jsonField                  `json:"fields"`
	Binary map[string]jsonBinaryPayload `json:"binary,omitempty"`
}

// MarshalJSON encodes the document for JSONB persistence (6.2), tagging
// every field's value with its Kind so UnmarshalJSON can reconstruct the
// exact Go-native representation rather than guessing from the JSON shape.
func (d *Document) MarshalJSON() ([]byte, error) {
	jd := jsonDocument{ID: d.ID, Fields: make([]jsonField, 0, len(d.Fields))}
	for _, f := range d.Fields {
		jf, err := marshalField(f)
		if err != nil {
			return nil, err
		}
		jd.Fields = append(jd.Fields, jf)
	}
	if len(d.Binary) > 0 {
		jd.Binary = make(map[string]jsonBinaryPayload, len(d.Binary))
		for k, v := range d.Binary {
			jd.Binary[k] = jsonBinaryPayload{
				LogicalName: v.LogicalName,
				Bytes:       base64.StdEncoding.EncodeToString(v.Bytes),
			}
		}
	}
	return json.Marshal(jd)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (d *Document) UnmarshalJSON(data []byte) error {
	var jd jsonDocument
	if err := json.Unmarshal(data, &jd); err != nil {
		return err
	}
	d.ID = jd.ID
	d.Fields = make([]Field, 0, len(jd.Fields))
	for _, jf := range jd.Fields {
		f, err := unmarshalField(jf)
		if err != nil {
			return err
		}
		d.Fields = append(d.Fields, f)
	}
	if len(jd.Binary) == 0 {
		return nil
	}
	d.Binary = make(map[string]BinaryPayload, len(jd.Binary))
	for k, v := range jd.Binary {
		raw, err := base64.StdEncoding.DecodeString(v.Bytes)
		if err != nil {
			return fmt.Errorf("document: decode binary payload %q: %w", k, err)
		}
		d.Binary[k] = BinaryPayload{LogicalName: v.LogicalName, Bytes: raw}
	}
	return nil
}

func marshalField(f Field) (jsonField, error) {
	var raw json.RawMessage
	var err error
	switch f.Kind {
	case KindBool, KindInt32, KindInt64, KindDouble, KindString, KindTimestamp, KindBinaryName:
		raw, err = json.Marshal(f.Value)
	case KindUUID:
		u, _ := f.Value.(ids.UUID)
		raw, err = json.Marshal(u.String())
	case KindMatrix4:
		m, _ := f.Value.(ids.Matrix4)
		raw, err = json.Marshal(m)
	case KindVec3:
		v, _ := f.Value.(ids.Vec3)
		raw, err = json.Marshal(v)
	case KindBlobRef:
		ref, _ := f.Value.(BlobRef)
		raw, err = json.Marshal(ref)
	case KindDocument:
		nested, _ := f.Value.(*Document)
		raw, err = json.Marshal(nested)
	case KindArray:
		arr, _ := f.Value.([]Field)
		jarr := make([]jsonField, 0, len(arr))
		for _, sub := range arr {
			jsub, subErr := marshalField(sub)
			if subErr != nil {
				return jsonField{}, subErr
			}
			jarr = append(jarr, jsub)
		}
		raw, err = json.Marshal(jarr)
	default:
		return jsonField{}, fmt.Errorf("document: unknown field kind %q for label %q", f.Kind, f.Label)
	}
	if err != nil {
		return jsonField{}, err
	}
	return jsonField{Label: f.Label, Kind: f.Kind, Value: raw, VecAsObject: f.VecAsObject}, nil
}

func unmarshalField(jf jsonField) (Field, error) {
	f := Field{Label: jf.Label, Kind: jf.Kind, VecAsObject: jf.VecAsObject}
	switch jf.Kind {
	case KindBool:
		var v bool
		if err := json.Unmarshal(jf.Value, &v); err != nil {
			return f, err
		}
		f.Value = v
	case KindInt32:
		var v int32
		if err := json.Unmarshal(jf.Value, &v); err != nil {
			return f, err
		}
		f.Value = v
	case KindInt64, KindTimestamp:
		var v int64
		if err := json.Unmarshal(jf.Value, &v); err != nil {
			return f, err
		}
		f.Value = v
	case KindDouble:
		var v float64
		if err := json.Unmarshal(jf.Value, &v); err != nil {
			return f, err
		}
		f.Value = v
	case KindString, KindBinaryName:
		var v string
		if err := json.Unmarshal(jf.Value, &v); err != nil {
			return f, err
		}
		f.Value = v
	case KindUUID:
		var s string
		if err := json.Unmarshal(jf.Value, &s); err != nil {
			return f, err
		}
		u, err := ids.Parse(s)
		if err != nil {
			return f, err
		}
		f.Value = u
	case KindMatrix4:
		var m ids.Matrix4
		if err := json.Unmarshal(jf.Value, &m); err != nil {
			return f, err
		}
		f.Value = m
	case KindVec3:
		var v ids.Vec3
		if err := json.Unmarshal(jf.Value, &v); err != nil {
			return f, err
		}
		f.Value = v
	case KindBlobRef:
		var ref BlobRef
		if err := json.Unmarshal(jf.Value, &ref); err != nil {
			return f, err
		}
		f.Value = ref
	case KindDocument:
		var nested Document
		if err := json.Unmarshal(jf.Value, &nested); err != nil {
			return f, err
		}
		f.Value = &nested
	case KindArray:
		var jarr []jsonField
		if err := json.Unmarshal(jf.Value, &jarr); err != nil {
			return f, err
		}
		arr := make([]Field, 0, len(jarr))
		for _, sub := range jarr {
			subF, err := unmarshalField(sub)
			if err != nil {
				return f, err
			}
			arr = append(arr, subF)
		}
		f.Value = arr
	default:
		return f, fmt.Errorf("document: unknown field kind %q for label %q", jf.Kind, jf.Label)
	}
	return f, nil
}
