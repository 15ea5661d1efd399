package datagram

import (
	"github.com/nettask-project/nettask/internal/wire"
)

// RequestRegister is A→S, message 1 of the handshake: A's ephemeral
// public key, sent against a session id of the caller's choosing
// (conventionally HASH_LEN zero bytes — spec.md §9's open question).
type RequestRegister struct {
	Header
	PublicKey []byte
}

func (d *RequestRegister) Type() Type    { return TypeRequestRegister }
func (d *RequestRegister) Base() Header { return d.Header }

func (d *RequestRegister) Serialize() ([]byte, error) {
	w := wire.NewWriter()
	w.WriteLenPrefixed(d.PublicKey)
	return buildClearFrame(d.Header, TypeRequestRegister, w.Finish()), nil
}

// DeserializeRequestRegister reconstructs a RequestRegister from the
// bytes remaining after the private header.
func DeserializeRequestRegister(pub *PublicHeader, priv *PrivateHeader, r *wire.Reader) (*RequestRegister, error) {
	if priv.Type != TypeRequestRegister {
		return nil, ErrWrongType
	}
	pk, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	return &RequestRegister{
		Header:    headerFrom(pub, priv),
		PublicKey: append([]byte{}, pk...),
	}, nil
}

// RegisterChallenge is S→A, message 2: S's ephemeral public key, a
// fresh challenge nonce, and a fresh salt. sessionId is now the
// canonical identifier S has chosen for this session.
type RegisterChallenge struct {
	Header
	PublicKey []byte
	Challenge []byte
	Salt      []byte
}

func (d *RegisterChallenge) Type() Type    { return TypeRegisterChallenge }
func (d *RegisterChallenge) Base() Header { return d.Header }

func (d *RegisterChallenge) Serialize() ([]byte, error) {
	w := wire.NewWriter()
	w.WriteLenPrefixed(d.PublicKey)
	w.WriteLenPrefixed(d.Challenge)
	w.WriteLenPrefixed(d.Salt)
	return buildClearFrame(d.Header, TypeRegisterChallenge, w.Finish()), nil
}

func DeserializeRegisterChallenge(pub *PublicHeader, priv *PrivateHeader, r *wire.Reader) (*RegisterChallenge, error) {
	if priv.Type != TypeRegisterChallenge {
		return nil, ErrWrongType
	}
	pk, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	ch, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	salt, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	return &RegisterChallenge{
		Header:    headerFrom(pub, priv),
		PublicKey: append([]byte{}, pk...),
		Challenge: append([]byte{}, ch...),
		Salt:      append([]byte{}, salt...),
	}, nil
}

// RegisterChallenge2 is A→S, message 3: proof of possession of the
// derived shared secret, bound to the handshake transcript. Carried
// cleartext despite proving a secret derivation.
type RegisterChallenge2 struct {
	Header
	ChallengeResponse []byte
}

func (d *RegisterChallenge2) Type() Type    { return TypeRegisterChallenge2 }
func (d *RegisterChallenge2) Base() Header { return d.Header }

func (d *RegisterChallenge2) Serialize() ([]byte, error) {
	w := wire.NewWriter()
	w.WriteLenPrefixed(d.ChallengeResponse)
	return buildClearFrame(d.Header, TypeRegisterChallenge2, w.Finish()), nil
}

func DeserializeRegisterChallenge2(pub *PublicHeader, priv *PrivateHeader, r *wire.Reader) (*RegisterChallenge2, error) {
	if priv.Type != TypeRegisterChallenge2 {
		return nil, ErrWrongType
	}
	resp, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, ErrTruncatedFrame
	}
	return &RegisterChallenge2{
		Header:            headerFrom(pub, priv),
		ChallengeResponse: append([]byte{}, resp...),
	}, nil
}

// ConnectionRejected carries no payload; either peer may send it from
// any non-terminal phase to signal termination.
type ConnectionRejected struct {
	Header
}

func (d *ConnectionRejected) Type() Type    { return TypeConnectionRejected }
func (d *ConnectionRejected) Base() Header { return d.Header }

func (d *ConnectionRejected) Serialize() ([]byte, error) {
	return buildClearFrame(d.Header, TypeConnectionRejected, nil), nil
}

func DeserializeConnectionRejected(pub *PublicHeader, priv *PrivateHeader, r *wire.Reader) (*ConnectionRejected, error) {
	if priv.Type != TypeConnectionRejected {
		return nil, ErrWrongType
	}
	if r.Remaining() != 0 {
		return nil, ErrMalformedPayload
	}
	return &ConnectionRejected{Header: headerFrom(pub, priv)}, nil
}

func headerFrom(pub *PublicHeader, priv *PrivateHeader) Header {
	return Header{
		SessionID:  pub.SessionID,
		Seq:        priv.SequenceNumber,
		Ack:        priv.AcknowledgementNumber,
		Fragmented: priv.Fragmented,
	}
}
