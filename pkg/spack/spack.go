// Package spack implements SPACK, the compact self-describing binary
// object format carried inside PushSchemas and SendMetrics datagrams.
// spec.md treats SPACK's schema language as an external collaborator;
// this package supplies the codec contract the datagram core relies
// on: a typed value graph, task-schema packing, and task-descriptor-bound
// metric packing.
package spack

import (
	"fmt"
	"math"
	"sort"

	"github.com/nettask-project/nettask/internal/wire"
)

// Value tag bytes for the self-describing value graph.
const (
	tagNull uint8 = iota
	tagBool
	tagInt
	tagFloat
	tagString
	tagBytes
	tagList
	tagMap
)

// Value is any value a SPACK object graph can hold: nil, bool, int64,
// float64, string, []byte, []Value, or map[string]Value.
type Value interface{}

// SerializeSPACK encodes a Value into its wire form.
func SerializeSPACK(v Value) ([]byte, error) {
	w := wire.NewWriter()
	if err := encodeValue(w, v); err != nil {
		return nil, err
	}
	return w.Finish(), nil
}

// DeserializeSPACK decodes a wire-form byte slice back into a Value.
func DeserializeSPACK(b []byte) (Value, error) {
	r := wire.NewReader(b)
	v, err := decodeValue(r)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("spack: %d trailing bytes after value", r.Remaining())
	}
	return v, nil
}

func encodeValue(w *wire.Writer, v Value) error {
	switch val := v.(type) {
	case nil:
		w.WriteUint8(tagNull)
	case bool:
		w.WriteUint8(tagBool)
		if val {
			w.WriteUint8(1)
		} else {
			w.WriteUint8(0)
		}
	case int:
		return encodeValue(w, int64(val))
	case int64:
		w.WriteUint8(tagInt)
		w.WriteUint64(uint64(val))
	case float64:
		w.WriteUint8(tagFloat)
		w.WriteUint64(math.Float64bits(val))
	case string:
		w.WriteUint8(tagString)
		w.WriteLenPrefixed([]byte(val))
	case []byte:
		w.WriteUint8(tagBytes)
		w.WriteLenPrefixed(val)
	case []Value:
		w.WriteUint8(tagList)
		w.WriteUint32(uint32(len(val)))
		for _, item := range val {
			if err := encodeValue(w, item); err != nil {
				return err
			}
		}
	case map[string]Value:
		w.WriteUint8(tagMap)
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys) // deterministic encoding
		w.WriteUint32(uint32(len(keys)))
		for _, k := range keys {
			w.WriteLenPrefixed([]byte(k))
			if err := encodeValue(w, val[k]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("spack: unsupported value type %T", v)
	}
	return nil
}

func decodeValue(r *wire.Reader) (Value, error) {
	tag, err := r.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("spack: read tag: %w", err)
	}

	switch tag {
	case tagNull:
		return nil, nil
	case tagBool:
		b, err := r.ReadUint8()
		if err != nil {
			return nil, fmt.Errorf("spack: read bool: %w", err)
		}
		return b != 0, nil
	case tagInt:
		n, err := r.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("spack: read int: %w", err)
		}
		return int64(n), nil
	case tagFloat:
		n, err := r.ReadUint64()
		if err != nil {
			return nil, fmt.Errorf("spack: read float: %w", err)
		}
		return math.Float64frombits(n), nil
	case tagString:
		b, err := r.ReadLenPrefixed()
		if err != nil {
			return nil, fmt.Errorf("spack: read string: %w", err)
		}
		return string(b), nil
	case tagBytes:
		b, err := r.ReadLenPrefixed()
		if err != nil {
			return nil, fmt.Errorf("spack: read bytes: %w", err)
		}
		return append([]byte{}, b...), nil
	case tagList:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("spack: read list length: %w", err)
		}
		list := make([]Value, n)
		for i := range list {
			item, err := decodeValue(r)
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case tagMap:
		n, err := r.ReadUint32()
		if err != nil {
			return nil, fmt.Errorf("spack: read map length: %w", err)
		}
		m := make(map[string]Value, n)
		for i := uint32(0); i < n; i++ {
			keyBytes, err := r.ReadLenPrefixed()
			if err != nil {
				return nil, fmt.Errorf("spack: read map key: %w", err)
			}
			val, err := decodeValue(r)
			if err != nil {
				return nil, err
			}
			m[string(keyBytes)] = val
		}
		return m, nil
	default:
		return nil, fmt.Errorf("spack: unknown tag %d", tag)
	}
}
