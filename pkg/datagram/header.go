// Package datagram implements the NetTask wire-level datagram protocol's
// core: public/private header framing, the six datagram variants, the
// encrypted-envelope serialize/deserialize pipeline, and the handshake
// state machine. Everything below it (buffer codec, ECDHE session,
// SPACK codec) is a leaf dependency this package composes.
package datagram

import (
	"fmt"

	"github.com/nettask-project/nettask/internal/wire"
	"github.com/nettask-project/nettask/pkg/ecdhe"
)

// Wire constants, spec.md §6.
const (
	Signature           = "NTTK"
	CryptoMarkEncrypted = "CC"
	CryptoMarkClear     = "NC"
	Version             = uint32(1)
)

// Type is the datagram-type enumeration, stable across wire versions.
type Type uint32

const (
	TypeRequestRegister    Type = 0
	TypeRegisterChallenge  Type = 1
	TypeRegisterChallenge2 Type = 2
	TypeConnectionRejected Type = 3
	TypePushSchemas        Type = 4
	TypeSendMetrics        Type = 5
)

func (t Type) String() string {
	switch t {
	case TypeRequestRegister:
		return "RequestRegister"
	case TypeRegisterChallenge:
		return "RegisterChallenge"
	case TypeRegisterChallenge2:
		return "RegisterChallenge2"
	case TypeConnectionRejected:
		return "ConnectionRejected"
	case TypePushSchemas:
		return "PushSchemas"
	case TypeSendMetrics:
		return "SendMetrics"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// encrypted reports whether the crypto mark this type carries is CC.
func (t Type) encrypted() bool {
	return t == TypePushSchemas || t == TypeSendMetrics
}

// PublicHeader is always cleartext: 4 + HASH_LEN + 2 + 4 bytes.
type PublicHeader struct {
	SessionID   []byte
	CryptoMark  string
	PayloadSize uint32
}

// PrivateHeader is cleartext when CryptoMark is NC, otherwise it lives
// inside the AEAD envelope. 17 bytes on the wire.
type PrivateHeader struct {
	Version               uint32
	SequenceNumber        uint32
	AcknowledgementNumber uint32
	Fragmented            uint8
	Type                  Type
}

// Header is the set of fields every variant constructor takes, shared
// across the tagged union (spec.md §9's "shared Header record").
type Header struct {
	SessionID  []byte
	Seq        uint32
	Ack        uint32
	Fragmented uint8
}

func (h Header) privateHeader(t Type) PrivateHeader {
	return PrivateHeader{
		Version:               Version,
		SequenceNumber:        h.Seq,
		AcknowledgementNumber: h.Ack,
		Fragmented:            h.Fragmented,
		Type:                  t,
	}
}

func serializePublicHeader(h PublicHeader) []byte {
	w := wire.NewWriter()
	w.WriteBytes([]byte(Signature))
	w.WriteBytes(h.SessionID)
	w.WriteBytes([]byte(h.CryptoMark))
	w.WriteUint32(h.PayloadSize)
	return w.Finish()
}

func serializePrivateHeader(h PrivateHeader) []byte {
	w := wire.NewWriter()
	w.WriteUint32(h.Version)
	w.WriteUint32(h.SequenceNumber)
	w.WriteUint32(h.AcknowledgementNumber)
	w.WriteUint8(h.Fragmented)
	w.WriteUint32(uint32(h.Type))
	return w.Finish()
}

// verifySignature consumes the next 4 bytes of r and reports whether
// they equal the NetTask signature. It returns ErrTruncatedFrame if
// fewer than 4 bytes remain — distinct from a signature mismatch,
// which the caller reports as ErrInvalidSignature.
func verifySignature(r *wire.Reader) (bool, error) {
	b, err := r.Read(len(Signature))
	if err != nil {
		return false, ErrTruncatedFrame
	}
	return string(b) == Signature, nil
}

// deserializePublicHeader reads a PublicHeader off r. hashLen is the
// caller-configured sessionId width (spec.md's HASH_LEN); it is not
// self-describing on the wire.
func deserializePublicHeader(r *wire.Reader, hashLen int) (*PublicHeader, error) {
	ok, err := verifySignature(r)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidSignature
	}

	sessionID, err := r.Read(hashLen)
	if err != nil {
		return nil, ErrTruncatedFrame
	}

	markBytes, err := r.Read(2)
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	mark := string(markBytes)
	if mark != CryptoMarkClear && mark != CryptoMarkEncrypted {
		return nil, ErrInvalidCryptoMark
	}

	payloadSize, err := r.ReadUint32()
	if err != nil {
		return nil, ErrTruncatedFrame
	}

	return &PublicHeader{
		SessionID:   append([]byte{}, sessionID...),
		CryptoMark:  mark,
		PayloadSize: payloadSize,
	}, nil
}

// deserializePrivateHeader reads a PrivateHeader off r, rejecting any
// version other than 1.
func deserializePrivateHeader(r *wire.Reader) (*PrivateHeader, error) {
	version, err := r.ReadUint32()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}
	seq, err := r.ReadUint32()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	ack, err := r.ReadUint32()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	fragmented, err := r.ReadUint8()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	typ, err := r.ReadUint32()
	if err != nil {
		return nil, ErrTruncatedFrame
	}

	return &PrivateHeader{
		Version:               version,
		SequenceNumber:        seq,
		AcknowledgementNumber: ack,
		Fragmented:            fragmented,
		Type:                  Type(typ),
	}, nil
}

// buildClearFrame assembles a complete NC datagram: PublicHeader
// followed by a cleartext PrivateHeader and payload.
func buildClearFrame(h Header, t Type, payload []byte) []byte {
	priv := serializePrivateHeader(h.privateHeader(t))
	body := append(priv, payload...)
	pub := PublicHeader{
		SessionID:   h.SessionID,
		CryptoMark:  CryptoMarkClear,
		PayloadSize: uint32(len(body)),
	}
	return append(serializePublicHeader(pub), body...)
}

// buildEncryptedFrame implements spec.md §4.4's double-AEAD structure:
// the inner plaintext is sealed under the session's encrypt context,
// then the PrivateHeader plus the serialized inner record are sealed
// together under the envelope context, binding the metadata to the
// session key.
func buildEncryptedFrame(h Header, t Type, sess *ecdhe.Session, innerPlain []byte) ([]byte, error) {
	if sess == nil {
		return nil, ErrNotLinked
	}

	innerRec, err := sess.Encrypt(innerPlain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	innerEnc := ecdhe.SerializeEncryptedMessage(innerRec)

	w := wire.NewWriter()
	w.WriteBytes(serializePrivateHeader(h.privateHeader(t)))
	w.WriteLenPrefixed(innerEnc)

	outerRec, err := sess.Envelope(w.Finish())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	outerEnc := ecdhe.SerializeEncryptedMessage(outerRec)

	pub := PublicHeader{
		SessionID:   h.SessionID,
		CryptoMark:  CryptoMarkEncrypted,
		PayloadSize: uint32(len(outerEnc)),
	}
	return append(serializePublicHeader(pub), outerEnc...), nil
}
