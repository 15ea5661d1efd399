package spack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeValueRoundTrip(t *testing.T) {
	v := map[string]Value{
		"name":    "cpu",
		"usage":   0.42,
		"count":   int64(7),
		"enabled": true,
		"tags":    []Value{"a", "b", "c"},
		"raw":     []byte{0x01, 0x02, 0x03},
		"empty":   nil,
	}

	b, err := SerializeSPACK(v)
	require.NoError(t, err)

	got, err := DeserializeSPACK(b)
	require.NoError(t, err)

	assert.Equal(t, v, got)
}

func cpuMemSchemas() map[string]TaskSchema {
	return map[string]TaskSchema{
		"cpu": {
			Name: "cpu",
			Fields: []FieldSchema{
				{Name: "usage", Type: FieldFloat},
				{Name: "ts", Type: FieldInt},
			},
		},
		"mem": {
			Name: "mem",
			Fields: []FieldSchema{
				{Name: "bytes_used", Type: FieldInt},
			},
		},
	}
}

// S2 — PushSchemas round-trip: packing then unpacking a task map
// yields the same keys and equal schemas.
func TestPackUnpackTaskSchemasRoundTrip(t *testing.T) {
	schemas := cpuMemSchemas()

	packed, err := PackTaskSchemas(schemas)
	require.NoError(t, err)
	assert.True(t, IsSPACKTaskCollection(packed))

	b, err := packed.Bytes()
	require.NoError(t, err)

	reparsed, err := ParsePackedTaskCollection(b)
	require.NoError(t, err)

	unpacked, err := UnpackTaskSchemas(reparsed)
	require.NoError(t, err)

	assert.Equal(t, schemas, unpacked)
}

func TestPackTaskSchemasIsIdempotentOnPackedInput(t *testing.T) {
	schemas := cpuMemSchemas()
	packed, err := PackTaskSchemas(schemas)
	require.NoError(t, err)

	packedAgain, err := PackTaskSchemas(packed)
	require.NoError(t, err)
	assert.Same(t, packed, packedAgain)
}

func TestIsSPACKTaskCollectionPredicate(t *testing.T) {
	schemas := cpuMemSchemas()
	assert.False(t, IsSPACKTaskCollection(schemas))

	packed, err := PackTaskSchemas(schemas)
	require.NoError(t, err)
	assert.True(t, IsSPACKTaskCollection(packed))
}

// S3 — Metric round-trip bound to a task descriptor.
func TestSerializeDeserializeTaskMetricRoundTrip(t *testing.T) {
	descriptor := cpuMemSchemas()["cpu"]
	metric := Metric{
		"usage": 0.42,
		"ts":    int64(1_700_000_000),
	}

	b, err := SerializeTaskMetric(metric, descriptor)
	require.NoError(t, err)

	got, err := DeserializeTaskMetric(b, descriptor)
	require.NoError(t, err)

	assert.Equal(t, metric, got)
}

func TestSerializeTaskMetricRejectsWrongFieldType(t *testing.T) {
	descriptor := cpuMemSchemas()["cpu"]
	metric := Metric{
		"usage": "not-a-float",
		"ts":    int64(1),
	}

	_, err := SerializeTaskMetric(metric, descriptor)
	assert.Error(t, err)
}

func TestSerializeTaskMetricRejectsMissingField(t *testing.T) {
	descriptor := cpuMemSchemas()["cpu"]
	metric := Metric{
		"usage": 0.1,
	}

	_, err := SerializeTaskMetric(metric, descriptor)
	assert.Error(t, err)
}
