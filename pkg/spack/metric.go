package spack

import "fmt"

// Metric is a decoded set of field values for one task, keyed by
// field name. Field value types are constrained by the bound
// TaskSchema: int64, float64, string, bool, or []byte.
type Metric map[string]Value

// SerializeTaskMetric packs metric into SPACK bytes, validating that
// every field the TaskSchema declares is present and of the declared
// type. descriptor is the "task descriptor" spec.md §4.4 requires for
// interpreting field types on the wire.
func SerializeTaskMetric(metric Metric, descriptor TaskSchema) ([]byte, error) {
	m := make(map[string]Value, len(descriptor.Fields))
	for _, field := range descriptor.Fields {
		v, present := metric[field.Name]
		if !present {
			return nil, fmt.Errorf("spack: metric missing field %q declared by task %q", field.Name, descriptor.Name)
		}
		if err := checkFieldType(field, v); err != nil {
			return nil, err
		}
		m[field.Name] = v
	}
	return SerializeSPACK(m)
}

// DeserializeTaskMetric reverses SerializeTaskMetric, interpreting the
// decoded field values against descriptor.
func DeserializeTaskMetric(b []byte, descriptor TaskSchema) (Metric, error) {
	v, err := DeserializeSPACK(b)
	if err != nil {
		return nil, err
	}

	m, ok := v.(map[string]Value)
	if !ok {
		return nil, fmt.Errorf("spack: metric payload is not a map")
	}

	out := make(Metric, len(descriptor.Fields))
	for _, field := range descriptor.Fields {
		fv, present := m[field.Name]
		if !present {
			return nil, fmt.Errorf("spack: decoded metric missing field %q declared by task %q", field.Name, descriptor.Name)
		}
		if err := checkFieldType(field, fv); err != nil {
			return nil, err
		}
		out[field.Name] = fv
	}
	return out, nil
}

func checkFieldType(field FieldSchema, v Value) error {
	ok := false
	switch field.Type {
	case FieldInt:
		_, ok = v.(int64)
	case FieldFloat:
		_, ok = v.(float64)
	case FieldString:
		_, ok = v.(string)
	case FieldBool:
		_, ok = v.(bool)
	case FieldBytes:
		_, ok = v.([]byte)
	}
	if !ok {
		return fmt.Errorf("spack: field %q expected type %s, got %T", field.Name, field.Type, v)
	}
	return nil
}
