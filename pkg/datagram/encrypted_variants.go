package datagram

import (
	"fmt"

	"github.com/nettask-project/nettask/internal/wire"
	"github.com/nettask-project/nettask/pkg/ecdhe"
	"github.com/nettask-project/nettask/pkg/spack"
)

// PushSchemas is S→A (or A→S), carried with cryptoMark=CC once the
// session is Established: a map of task name to task schema. Schemas
// may be an already-packed *spack.PackedTaskCollection or a plain
// map[string]spack.TaskSchema — spack.PackTaskSchemas accepts both.
type PushSchemas struct {
	Header
	Schemas interface{}
}

func (d *PushSchemas) Type() Type    { return TypePushSchemas }
func (d *PushSchemas) Base() Header { return d.Header }

// Serialize encrypts and frames the datagram under sess. sess is
// passed by reference rather than stored on the datagram value, per
// spec.md §9's binding-to-session design note.
func (d *PushSchemas) Serialize(sess *ecdhe.Session) ([]byte, error) {
	packed, err := spack.PackTaskSchemas(d.Schemas)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	spackBytes, err := packed.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	w := wire.NewWriter()
	w.WriteLenPrefixed(spackBytes)

	return buildEncryptedFrame(d.Header, TypePushSchemas, sess, w.Finish())
}

// DeserializePushSchemas reads the inner cleartext (already decrypted
// by the top-level Deserialize dispatcher) and unpacks the task map.
func DeserializePushSchemas(pub *PublicHeader, priv *PrivateHeader, ir *wire.Reader) (*PushSchemas, error) {
	if priv.Type != TypePushSchemas {
		return nil, ErrWrongType
	}

	spackBytes, err := ir.ReadLenPrefixed()
	if err != nil {
		return nil, ErrMalformedPayload
	}

	packed, err := spack.ParsePackedTaskCollection(spackBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	schemas, err := spack.UnpackTaskSchemas(packed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return &PushSchemas{
		Header:  headerFrom(pub, priv),
		Schemas: schemas,
	}, nil
}

// SendMetrics carries one task's reported metric values, bound to a
// task descriptor the receiver must already hold (spec.md §4.4).
type SendMetrics struct {
	Header
	TaskID string
	Metric spack.Metric
}

func (d *SendMetrics) Type() Type    { return TypeSendMetrics }
func (d *SendMetrics) Base() Header { return d.Header }

// Serialize encrypts and frames the datagram under sess, packing
// Metric against descriptor to validate field types before sealing.
func (d *SendMetrics) Serialize(sess *ecdhe.Session, descriptor spack.TaskSchema) ([]byte, error) {
	spackBytes, err := spack.SerializeTaskMetric(d.Metric, descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	w := wire.NewWriter()
	w.WriteLenPrefixed([]byte(d.TaskID))
	w.WriteLenPrefixed(spackBytes)

	return buildEncryptedFrame(d.Header, TypeSendMetrics, sess, w.Finish())
}

// DeserializeSendMetrics reads the inner cleartext and decodes the
// metric against the task descriptor descriptors[taskId]. If taskId is
// not present, it fails with ErrUnknownTask.
func DeserializeSendMetrics(pub *PublicHeader, priv *PrivateHeader, ir *wire.Reader, descriptors map[string]spack.TaskSchema) (*SendMetrics, error) {
	if priv.Type != TypeSendMetrics {
		return nil, ErrWrongType
	}

	taskIDBytes, err := ir.ReadLenPrefixed()
	if err != nil {
		return nil, ErrMalformedPayload
	}
	taskID := string(taskIDBytes)

	spackBytes, err := ir.ReadLenPrefixed()
	if err != nil {
		return nil, ErrMalformedPayload
	}

	descriptor, known := descriptors[taskID]
	if !known {
		return nil, ErrUnknownTask
	}

	metric, err := spack.DeserializeTaskMetric(spackBytes, descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return &SendMetrics{
		Header: headerFrom(pub, priv),
		TaskID: taskID,
		Metric: metric,
	}, nil
}
