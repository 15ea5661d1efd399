package datagram

import (
	"testing"

	"github.com/nettask-project/nettask/pkg/spack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Testable property 6: for every serialized datagram b and every
// k < len(b), parsing b[:k] yields either ErrInvalidSignature (when k
// is too small to even disagree on the signature meaningfully) or
// ErrTruncatedFrame.
func TestTruncationTable(t *testing.T) {
	agentSess, _ := establishedPair(t)
	sid := sessionID(11)

	frames := map[string][]byte{}

	rr := &RequestRegister{Header: Header{SessionID: sid}, PublicKey: []byte("pk")}
	b, err := rr.Serialize()
	require.NoError(t, err)
	frames["RequestRegister"] = b

	rc := &RegisterChallenge{Header: Header{SessionID: sid}, PublicKey: []byte("pk"), Challenge: []byte("ch"), Salt: []byte("salt")}
	b, err = rc.Serialize()
	require.NoError(t, err)
	frames["RegisterChallenge"] = b

	rc2 := &RegisterChallenge2{Header: Header{SessionID: sid}, ChallengeResponse: []byte("resp")}
	b, err = rc2.Serialize()
	require.NoError(t, err)
	frames["RegisterChallenge2"] = b

	cr := &ConnectionRejected{Header: Header{SessionID: sid}}
	b, err = cr.Serialize()
	require.NoError(t, err)
	frames["ConnectionRejected"] = b

	ps := &PushSchemas{Header: Header{SessionID: sid}, Schemas: map[string]spack.TaskSchema{"cpu": {Name: "cpu"}}}
	b, err = ps.Serialize(agentSess)
	require.NoError(t, err)
	frames["PushSchemas"] = b

	// Every prefix of a legitimately-signed frame is missing bytes, not
	// carrying a corrupted signature, so truncation always surfaces as
	// ErrTruncatedFrame here. ErrInvalidSignature is reserved for frames
	// whose first four bytes are themselves wrong (see
	// TestInvalidSignatureDroppedSilently) — property 6's "small k"
	// case is about hand-crafted garbage, not valid-frame truncation.
	for name, full := range frames {
		for k := 0; k < len(full); k++ {
			prefix := full[:k]
			_, err := Deserialize(prefix, testHashLen, agentSess, nil)
			require.Error(t, err, "%s prefix k=%d should error", name, k)
			assert.ErrorIs(t, err, ErrTruncatedFrame, "%s prefix k=%d", name, k)
		}
	}
}
