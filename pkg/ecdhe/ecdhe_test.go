package ecdhe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func establishedPair(t *testing.T) (agent, server *Session, salt, challenge, psk []byte) {
	t.Helper()

	agent, err := GenerateKeyPair()
	require.NoError(t, err)
	server, err = GenerateKeyPair()
	require.NoError(t, err)

	salt = []byte("handshake-salt")
	challenge = []byte("handshake-challenge")
	psk = []byte("shared-bootstrap-secret")

	require.NoError(t, agent.DeriveSharedSecret(server.PublicKey(), salt, challenge, psk))
	require.NoError(t, server.DeriveSharedSecret(agent.PublicKey(), salt, challenge, psk))

	return agent, server, salt, challenge, psk
}

func TestDeriveSharedSecretSymmetric(t *testing.T) {
	agent, server, _, challenge, _ := establishedPair(t)

	resp, err := agent.ChallengeResponse(challenge)
	require.NoError(t, err)
	assert.True(t, server.VerifyChallengeResponse(challenge, resp))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	agent, server, _, _, _ := establishedPair(t)

	plain := []byte("private-header-and-body")
	rec, err := agent.Envelope(plain)
	require.NoError(t, err)

	got, err := server.OpenEnvelope(rec)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEncryptRoundTrip(t *testing.T) {
	agent, server, _, _, _ := establishedPair(t)

	plain := []byte("spack-payload")
	rec, err := agent.Encrypt(plain)
	require.NoError(t, err)

	got, err := server.Decrypt(rec)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestEnvelopeAndEncryptAreDistinctContexts(t *testing.T) {
	agent, server, _, _, _ := establishedPair(t)

	plain := []byte("same-bytes")
	envRec, err := agent.Envelope(plain)
	require.NoError(t, err)

	// The encrypt AEAD must not be able to open an envelope record.
	_, err = server.Decrypt(envRec)
	assert.Error(t, err)
}

func TestTamperedEnvelopeFailsToOpen(t *testing.T) {
	agent, server, _, _, _ := establishedPair(t)

	rec, err := agent.Envelope([]byte("sensitive"))
	require.NoError(t, err)

	tampered := append([]byte{}, rec.Ciphertext...)
	tampered[0] ^= 0xFF
	rec.Ciphertext = tampered

	_, err = server.OpenEnvelope(rec)
	assert.Error(t, err)
}

func TestSerializeEncryptedMessageRoundTrip(t *testing.T) {
	agent, _, _, _, _ := establishedPair(t)

	rec, err := agent.Envelope([]byte("round-trip me"))
	require.NoError(t, err)

	b := SerializeEncryptedMessage(rec)
	got, err := DeserializeEncryptedMessage(b)
	require.NoError(t, err)

	assert.Equal(t, rec.Nonce, got.Nonce)
	assert.Equal(t, rec.Tag, got.Tag)
	assert.Equal(t, rec.Ciphertext, got.Ciphertext)
}

func TestComputeSessionIDDeterministic(t *testing.T) {
	agent, server, _, _, psk := establishedPair(t)

	id1 := ComputeSessionID(agent.PublicKey(), server.PublicKey(), psk, 32)
	id2 := ComputeSessionID(agent.PublicKey(), server.PublicKey(), psk, 32)
	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 32)
}

func TestOperationsWithoutDerivedSecretFail(t *testing.T) {
	s, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = s.Envelope([]byte("x"))
	assert.Error(t, err)

	_, err = s.Encrypt([]byte("x"))
	assert.Error(t, err)

	_, err = s.ChallengeResponse([]byte("c"))
	assert.Error(t, err)
}
