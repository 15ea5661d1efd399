package spack

import "fmt"

// FieldType names the primitive type of one task schema field.
type FieldType uint8

const (
	FieldInt FieldType = iota
	FieldFloat
	FieldString
	FieldBool
	FieldBytes
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int"
	case FieldFloat:
		return "float"
	case FieldString:
		return "string"
	case FieldBool:
		return "bool"
	case FieldBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// FieldSchema describes one named, typed field of a task.
type FieldSchema struct {
	Name string
	Type FieldType
}

// TaskSchema is the descriptor a PushSchemas datagram distributes and
// that a SendMetrics datagram is later decoded against (the "task
// descriptor" of spec.md §4.4).
type TaskSchema struct {
	Name   string
	Fields []FieldSchema
}

// PackedTaskCollection is the packed SPACK form of a task-name →
// TaskSchema map. It is an opaque wrapper so that IsSPACKTaskCollection
// can distinguish "already packed" inputs from plain Go maps without
// inspecting SPACK bytes.
type PackedTaskCollection struct {
	value Value
}

// IsSPACKTaskCollection reports whether x is already a packed task
// collection, as opposed to an unpacked map[string]TaskSchema that
// still needs packing.
func IsSPACKTaskCollection(x interface{}) bool {
	_, ok := x.(*PackedTaskCollection)
	return ok
}

// PackTaskSchemas packs a map[string]TaskSchema into a
// PackedTaskCollection. Passing an already-packed *PackedTaskCollection
// is idempotent, matching the IsSPACKTaskCollection contract in
// spec.md §6.
func PackTaskSchemas(x interface{}) (*PackedTaskCollection, error) {
	if packed, ok := x.(*PackedTaskCollection); ok {
		return packed, nil
	}

	schemas, ok := x.(map[string]TaskSchema)
	if !ok {
		return nil, fmt.Errorf("spack: PackTaskSchemas: unsupported input type %T", x)
	}

	m := make(map[string]Value, len(schemas))
	for name, schema := range schemas {
		m[name] = encodeTaskSchema(schema)
	}
	return &PackedTaskCollection{value: m}, nil
}

// UnpackTaskSchemas reverses PackTaskSchemas.
func UnpackTaskSchemas(packed *PackedTaskCollection) (map[string]TaskSchema, error) {
	m, ok := packed.value.(map[string]Value)
	if !ok {
		return nil, fmt.Errorf("spack: UnpackTaskSchemas: packed value is not a map")
	}

	out := make(map[string]TaskSchema, len(m))
	for name, v := range m {
		schema, err := decodeTaskSchema(v)
		if err != nil {
			return nil, fmt.Errorf("spack: UnpackTaskSchemas: task %q: %w", name, err)
		}
		out[name] = schema
	}
	return out, nil
}

// Bytes serializes the packed collection to its SPACK wire form, the
// input PushSchemas.Serialize encrypts as the inner payload.
func (p *PackedTaskCollection) Bytes() ([]byte, error) {
	return SerializeSPACK(p.value)
}

// ParsePackedTaskCollection rebuilds a PackedTaskCollection from
// SPACK-encoded bytes, the counterpart DeserializePushSchemas calls
// after the inner AEAD record has been opened.
func ParsePackedTaskCollection(b []byte) (*PackedTaskCollection, error) {
	v, err := DeserializeSPACK(b)
	if err != nil {
		return nil, err
	}
	return &PackedTaskCollection{value: v}, nil
}

func encodeTaskSchema(schema TaskSchema) Value {
	fields := make([]Value, len(schema.Fields))
	for i, f := range schema.Fields {
		fields[i] = map[string]Value{
			"name": f.Name,
			"type": int64(f.Type),
		}
	}
	return map[string]Value{
		"name":   schema.Name,
		"fields": fields,
	}
}

func decodeTaskSchema(v Value) (TaskSchema, error) {
	m, ok := v.(map[string]Value)
	if !ok {
		return TaskSchema{}, fmt.Errorf("schema is not a map")
	}

	name, _ := m["name"].(string)

	fieldsVal, ok := m["fields"].([]Value)
	if !ok {
		return TaskSchema{}, fmt.Errorf("schema.fields is not a list")
	}

	fields := make([]FieldSchema, len(fieldsVal))
	for i, fv := range fieldsVal {
		fm, ok := fv.(map[string]Value)
		if !ok {
			return TaskSchema{}, fmt.Errorf("schema.fields[%d] is not a map", i)
		}
		fname, _ := fm["name"].(string)
		ftype, _ := fm["type"].(int64)
		fields[i] = FieldSchema{Name: fname, Type: FieldType(ftype)}
	}

	return TaskSchema{Name: name, Fields: fields}, nil
}
