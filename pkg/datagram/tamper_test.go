package datagram

import (
	"testing"

	"github.com/nettask-project/nettask/pkg/spack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// S4 / testable property 4 — flipping any bit after the public header
// of an encrypted datagram must fail AEAD authentication.
func TestTamperedEnvelopeFailsWithCryptoFailure(t *testing.T) {
	agentSess, serverSess := establishedPair(t)
	sid := sessionID(42)

	d := &PushSchemas{
		Header: Header{SessionID: sid},
		Schemas: map[string]spack.TaskSchema{
			"cpu": {Name: "cpu", Fields: []spack.FieldSchema{{Name: "usage", Type: spack.FieldFloat}}},
		},
	}
	b, err := d.Serialize(agentSess)
	require.NoError(t, err)

	tampered := append([]byte{}, b...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = Deserialize(tampered, testHashLen, serverSess, nil)
	assert.ErrorIs(t, err, ErrCryptoFailure)
}

// TestTamperedCiphertextContentFails flips bytes within the outer
// record's nonce/tag/ciphertext *content* (skipping the u32 length
// prefixes framing them, which are not AEAD-protected themselves and
// would instead surface as ErrMalformedPayload) to check property 4
// holds everywhere the AEAD primitive actually covers.
func TestTamperedCiphertextContentFails(t *testing.T) {
	agentSess, serverSess := establishedPair(t)
	sid := sessionID(43)

	d := &PushSchemas{
		Header:  Header{SessionID: sid},
		Schemas: map[string]spack.TaskSchema{"cpu": {Name: "cpu"}},
	}
	b, err := d.Serialize(agentSess)
	require.NoError(t, err)

	headerLen := 4 + testHashLen + 2 + 4
	outer := b[headerLen:]

	// u32 nonceLen | nonce | u32 tagLen | tag | u32 ciphertextLen | ciphertext
	nonceLen := be32(outer[0:4])
	pos := 4 + nonceLen
	tagLen := be32(outer[pos : pos+4])
	pos += 4 + tagLen
	pos += 4 // skip ciphertextLen field itself

	contentStart := headerLen + 4

	for _, off := range []int{contentStart, headerLen + 4 + nonceLen + 4, headerLen + pos, headerLen + len(outer) - 1} {
		tampered := append([]byte{}, b...)
		tampered[off] ^= 0x01
		_, err := Deserialize(tampered, testHashLen, serverSess, nil)
		assert.ErrorIs(t, err, ErrCryptoFailure, "byte offset %d", off)
	}
}

func be32(b []byte) int {
	return int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
}
