package datagram

import (
	"testing"

	"github.com/nettask-project/nettask/pkg/ecdhe"
	"github.com/stretchr/testify/require"
)

const testHashLen = 32

// establishedPair returns two ECDHE sessions that have completed key
// agreement and therefore share both the envelope and encrypt AEAD
// contexts — standing in for an Established NetTask session.
func establishedPair(t *testing.T) (agent, server *ecdhe.Session) {
	t.Helper()

	a, err := ecdhe.GenerateKeyPair()
	require.NoError(t, err)
	s, err := ecdhe.GenerateKeyPair()
	require.NoError(t, err)

	salt := []byte("test-salt")
	challenge := []byte("test-challenge")
	psk := []byte("pre-shared-secret")

	require.NoError(t, a.DeriveSharedSecret(s.PublicKey(), salt, challenge, psk))
	require.NoError(t, s.DeriveSharedSecret(a.PublicKey(), salt, challenge, psk))

	return a, s
}

func zeroSessionID() []byte {
	return make([]byte, testHashLen)
}
