// Package ecdhe implements the ECDHE collaborator contract that
// spec.md §6 describes by interface only: ephemeral X25519 key
// agreement, shared-secret derivation bound to a handshake salt and
// challenge, and two independently-keyed AEAD contexts — "envelope"
// (protects a PrivateHeader plus its encrypted body) and "encrypt"
// (protects the SPACK payload carried inside it).
package ecdhe

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/cipher"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/nettask-project/nettask/internal/wire"
)

const (
	keyLen   = chacha20poly1305.KeySize
	nonceLen = chacha20poly1305.NonceSizeX

	envelopeInfo = "nettask-envelope-v1"
	encryptInfo  = "nettask-encrypt-v1"
	confirmInfo  = "nettask-confirm-v1"
)

// Session holds one peer's ephemeral keypair and, once
// DeriveSharedSecret has run, the envelope and encrypt AEAD contexts
// derived from it (both peers derive the same keys for each).
type Session struct {
	private *ecdh.PrivateKey
	public  *ecdh.PublicKey

	prk          []byte // HKDF pseudorandom key, kept for challenge-response confirmation
	envelopeAEAD cipher.AEAD
	encryptAEAD  cipher.AEAD
}

// EncryptedRecord is the self-describing wire form of an AEAD-sealed
// message: a fresh nonce, the detached authentication tag, and the
// ciphertext, matching spec.md §6's {iv, tag, ciphertext} contract.
type EncryptedRecord struct {
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte
}

// GenerateKeyPair creates a fresh ephemeral X25519 keypair. The
// returned Session has no shared secret yet; call DeriveSharedSecret
// once the peer's public key, salt, and challenge material are known.
func GenerateKeyPair() (*Session, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ecdhe: generate key pair: %w", err)
	}
	return &Session{private: priv, public: priv.PublicKey()}, nil
}

// PublicKey returns the session's ephemeral public key bytes.
func (s *Session) PublicKey() []byte {
	return s.public.Bytes()
}

// DeriveSharedSecret combines the ECDH output with a pre-shared
// secret, salt, and the handshake challenge to derive the envelope
// and encrypt AEAD keys. salt and challenge bind the derivation to a
// single handshake transcript so that replaying a stale RegisterChallenge
// against a fresh RequestRegister cannot produce a matching session.
func (s *Session) DeriveSharedSecret(peerPublicKey, salt, challenge, preSharedSecret []byte) error {
	peerKey, err := ecdh.X25519().NewPublicKey(peerPublicKey)
	if err != nil {
		return fmt.Errorf("ecdhe: invalid peer public key: %w", err)
	}

	ecdhSecret, err := s.private.ECDH(peerKey)
	if err != nil {
		return fmt.Errorf("ecdhe: key agreement failed: %w", err)
	}

	ikm := make([]byte, 0, len(ecdhSecret)+len(preSharedSecret))
	ikm = append(ikm, ecdhSecret...)
	ikm = append(ikm, preSharedSecret...)

	combinedSalt := sha256.Sum256(append(append([]byte{}, salt...), challenge...))
	prk := hkdf.Extract(sha256.New, ikm, combinedSalt[:])
	s.prk = prk

	envelopeKey, err := expandKey(prk, envelopeInfo)
	if err != nil {
		return err
	}
	encryptKey, err := expandKey(prk, encryptInfo)
	if err != nil {
		return err
	}

	s.envelopeAEAD, err = chacha20poly1305.NewX(envelopeKey)
	if err != nil {
		return fmt.Errorf("ecdhe: build envelope AEAD: %w", err)
	}
	s.encryptAEAD, err = chacha20poly1305.NewX(encryptKey)
	if err != nil {
		return fmt.Errorf("ecdhe: build encrypt AEAD: %w", err)
	}

	return nil
}

func expandKey(prk []byte, info string) ([]byte, error) {
	r := hkdf.Expand(sha256.New, prk, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("ecdhe: expand %s key: %w", info, err)
	}
	return key, nil
}

// ChallengeResponse proves possession of the derived shared secret,
// binding it to the challenge nonce issued in RegisterChallenge.
func (s *Session) ChallengeResponse(challenge []byte) ([]byte, error) {
	if s.prk == nil {
		return nil, fmt.Errorf("ecdhe: shared secret not derived")
	}
	r := hkdf.Expand(sha256.New, s.prk, []byte(confirmInfo))
	confirmKey := make([]byte, 32)
	if _, err := io.ReadFull(r, confirmKey); err != nil {
		return nil, fmt.Errorf("ecdhe: derive confirmation key: %w", err)
	}
	mac := hmac.New(sha256.New, confirmKey)
	mac.Write(challenge)
	return mac.Sum(nil), nil
}

// VerifyChallengeResponse checks a peer-supplied response against the
// locally derived shared secret in constant time.
func (s *Session) VerifyChallengeResponse(challenge, response []byte) bool {
	expected, err := s.ChallengeResponse(challenge)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, response)
}

func seal(aead cipher.AEAD, plain []byte) (*EncryptedRecord, error) {
	if aead == nil {
		return nil, fmt.Errorf("ecdhe: session has no derived shared secret")
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("ecdhe: generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plain, nil)
	tagStart := len(sealed) - aead.Overhead()
	return &EncryptedRecord{
		Nonce:      nonce,
		Tag:        sealed[tagStart:],
		Ciphertext: sealed[:tagStart],
	}, nil
}

func open(aead cipher.AEAD, rec *EncryptedRecord) ([]byte, error) {
	if aead == nil {
		return nil, fmt.Errorf("ecdhe: session has no derived shared secret")
	}
	sealed := append(append([]byte{}, rec.Ciphertext...), rec.Tag...)
	plain, err := aead.Open(nil, rec.Nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("ecdhe: open failed: %w", err)
	}
	return plain, nil
}

// Envelope seals plain under the envelope AEAD context. Used for the
// outer record protecting a PrivateHeader plus its encrypted body.
func (s *Session) Envelope(plain []byte) (*EncryptedRecord, error) {
	return seal(s.envelopeAEAD, plain)
}

// OpenEnvelope reverses Envelope.
func (s *Session) OpenEnvelope(rec *EncryptedRecord) ([]byte, error) {
	return open(s.envelopeAEAD, rec)
}

// Encrypt seals plain under the encrypt AEAD context. Used for the
// inner record protecting the SPACK payload.
func (s *Session) Encrypt(plain []byte) (*EncryptedRecord, error) {
	return seal(s.encryptAEAD, plain)
}

// Decrypt reverses Encrypt.
func (s *Session) Decrypt(rec *EncryptedRecord) ([]byte, error) {
	return open(s.encryptAEAD, rec)
}

// SerializeEncryptedMessage renders rec to its self-describing byte form.
func SerializeEncryptedMessage(rec *EncryptedRecord) []byte {
	w := wire.NewWriter()
	w.WriteLenPrefixed(rec.Nonce)
	w.WriteLenPrefixed(rec.Tag)
	w.WriteLenPrefixed(rec.Ciphertext)
	return w.Finish()
}

// DeserializeEncryptedMessage reverses SerializeEncryptedMessage.
func DeserializeEncryptedMessage(b []byte) (*EncryptedRecord, error) {
	r := wire.NewReader(b)

	nonce, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, fmt.Errorf("ecdhe: read nonce: %w", err)
	}
	tag, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, fmt.Errorf("ecdhe: read tag: %w", err)
	}
	ciphertext, err := r.ReadLenPrefixed()
	if err != nil {
		return nil, fmt.Errorf("ecdhe: read ciphertext: %w", err)
	}

	return &EncryptedRecord{
		Nonce:      append([]byte{}, nonce...),
		Tag:        append([]byte{}, tag...),
		Ciphertext: append([]byte{}, ciphertext...),
	}, nil
}

// ComputeSessionID derives the canonical session identifier the server
// chooses in RegisterChallenge, per spec.md §4.3: a hash of both
// ephemeral public keys and the pre-shared secret, truncated to
// hashLen bytes.
func ComputeSessionID(peerPublicKeyA, peerPublicKeyS, preSharedSecret []byte, hashLen int) []byte {
	h := sha256.New()
	h.Write(peerPublicKeyA)
	h.Write(peerPublicKeyS)
	h.Write(preSharedSecret)
	sum := h.Sum(nil)
	if hashLen >= len(sum) {
		return sum
	}
	return sum[:hashLen]
}
