package datagram

import (
	"github.com/nettask-project/nettask/internal/wire"
	"github.com/nettask-project/nettask/pkg/ecdhe"
	"github.com/nettask-project/nettask/pkg/spack"
)

// Datagram is the common shape of all six variants: a stable type tag
// and the shared Header fields (sessionId, sequence/ack, fragmented).
type Datagram interface {
	Type() Type
	Base() Header
}

// Deserialize parses a single wire frame into its typed variant. hashLen
// is the configured sessionId width. sess and descriptors are only
// consulted for encrypted variants (PushSchemas, SendMetrics); pass nil
// for sess when the caller only expects cleartext handshake traffic —
// any CC frame then fails with ErrNotLinked.
//
// This is the entry point spec.md §5 describes: callers hand raw bytes
// here, then type-switch on the returned Datagram.
func Deserialize(data []byte, hashLen int, sess *ecdhe.Session, descriptors map[string]spack.TaskSchema) (Datagram, error) {
	r := wire.NewReader(data)

	pub, err := deserializePublicHeader(r, hashLen)
	if err != nil {
		return nil, err
	}

	body, err := r.Read(int(pub.PayloadSize))
	if err != nil {
		return nil, ErrTruncatedFrame
	}

	if pub.CryptoMark == CryptoMarkClear {
		return deserializeClearVariant(pub, body)
	}
	return deserializeEncryptedVariant(pub, body, sess, descriptors)
}

func deserializeClearVariant(pub *PublicHeader, body []byte) (Datagram, error) {
	br := wire.NewReader(body)
	priv, err := deserializePrivateHeader(br)
	if err != nil {
		return nil, err
	}

	if priv.Type.encrypted() {
		// cryptoMark says NC but the type belongs to the CC class:
		// the header's own invariant (spec.md §3) is violated.
		return nil, ErrInvalidCryptoMark
	}

	switch priv.Type {
	case TypeRequestRegister:
		return DeserializeRequestRegister(pub, priv, br)
	case TypeRegisterChallenge:
		return DeserializeRegisterChallenge(pub, priv, br)
	case TypeRegisterChallenge2:
		return DeserializeRegisterChallenge2(pub, priv, br)
	case TypeConnectionRejected:
		return DeserializeConnectionRejected(pub, priv, br)
	default:
		return nil, ErrMalformedPayload
	}
}

func deserializeEncryptedVariant(pub *PublicHeader, body []byte, sess *ecdhe.Session, descriptors map[string]spack.TaskSchema) (Datagram, error) {
	if sess == nil {
		return nil, ErrNotLinked
	}

	outerRec, err := ecdhe.DeserializeEncryptedMessage(body)
	if err != nil {
		return nil, ErrMalformedPayload
	}

	payload, err := sess.OpenEnvelope(outerRec)
	if err != nil {
		return nil, ErrCryptoFailure
	}

	pr := wire.NewReader(payload)
	priv, err := deserializePrivateHeader(pr)
	if err != nil {
		return nil, err
	}
	if !priv.Type.encrypted() {
		return nil, ErrInvalidCryptoMark
	}

	innerEnc, err := pr.ReadLenPrefixed()
	if err != nil {
		return nil, ErrMalformedPayload
	}
	innerRec, err := ecdhe.DeserializeEncryptedMessage(innerEnc)
	if err != nil {
		return nil, ErrMalformedPayload
	}
	innerPlain, err := sess.Decrypt(innerRec)
	if err != nil {
		return nil, ErrCryptoFailure
	}

	ir := wire.NewReader(innerPlain)
	switch priv.Type {
	case TypePushSchemas:
		return DeserializePushSchemas(pub, priv, ir)
	case TypeSendMetrics:
		return DeserializeSendMetrics(pub, priv, ir, descriptors)
	default:
		return nil, ErrMalformedPayload
	}
}
