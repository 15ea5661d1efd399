package datagram

import (
	"encoding/binary"
	"testing"

	"github.com/nettask-project/nettask/pkg/spack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionID(b byte) []byte {
	id := make([]byte, testHashLen)
	for i := range id {
		id[i] = b
	}
	return id
}

// assertHeaderIntegrity checks testable property 2: the serialized
// frame's first four bytes are the signature, the next HASH_LEN are
// the session id, the next two are the crypto mark, and the u32 BE at
// that offset equals the length of everything after it.
func assertHeaderIntegrity(t *testing.T, b []byte, wantSessionID []byte, wantMark string) {
	t.Helper()
	require.GreaterOrEqual(t, len(b), 4+testHashLen+2+4)

	assert.Equal(t, Signature, string(b[0:4]))
	assert.Equal(t, wantSessionID, b[4:4+testHashLen])

	markOffset := 4 + testHashLen
	assert.Equal(t, wantMark, string(b[markOffset:markOffset+2]))

	sizeOffset := markOffset + 2
	gotSize := binary.BigEndian.Uint32(b[sizeOffset : sizeOffset+4])
	assert.Equal(t, uint32(len(b)-sizeOffset-4), gotSize)
}

func TestRequestRegisterRoundTrip(t *testing.T) {
	sid := sessionID(0)
	d := &RequestRegister{
		Header:    Header{SessionID: sid, Seq: 1, Ack: 0, Fragmented: 0},
		PublicKey: []byte("agent-ephemeral-pubkey"),
	}

	b, err := d.Serialize()
	require.NoError(t, err)
	assertHeaderIntegrity(t, b, sid, CryptoMarkClear)

	got, err := Deserialize(b, testHashLen, nil, nil)
	require.NoError(t, err)

	rr, ok := got.(*RequestRegister)
	require.True(t, ok)
	assert.Equal(t, d.PublicKey, rr.PublicKey)
	assert.Equal(t, sid, rr.Base().SessionID)
	assert.Equal(t, uint32(1), rr.Base().Seq)
}

func TestRegisterChallengeRoundTrip(t *testing.T) {
	sid := sessionID(7)
	d := &RegisterChallenge{
		Header:    Header{SessionID: sid, Seq: 1, Ack: 1, Fragmented: 0},
		PublicKey: []byte("server-ephemeral-pubkey"),
		Challenge: []byte("challenge-nonce"),
		Salt:      []byte("handshake-salt"),
	}

	b, err := d.Serialize()
	require.NoError(t, err)
	assertHeaderIntegrity(t, b, sid, CryptoMarkClear)

	got, err := Deserialize(b, testHashLen, nil, nil)
	require.NoError(t, err)

	rc, ok := got.(*RegisterChallenge)
	require.True(t, ok)
	assert.Equal(t, d.PublicKey, rc.PublicKey)
	assert.Equal(t, d.Challenge, rc.Challenge)
	assert.Equal(t, d.Salt, rc.Salt)
}

func TestRegisterChallenge2RoundTrip(t *testing.T) {
	sid := sessionID(9)
	d := &RegisterChallenge2{
		Header:            Header{SessionID: sid, Seq: 2, Ack: 1, Fragmented: 0},
		ChallengeResponse: []byte("hmac-response"),
	}

	b, err := d.Serialize()
	require.NoError(t, err)
	assertHeaderIntegrity(t, b, sid, CryptoMarkClear)

	got, err := Deserialize(b, testHashLen, nil, nil)
	require.NoError(t, err)

	rc2, ok := got.(*RegisterChallenge2)
	require.True(t, ok)
	assert.Equal(t, d.ChallengeResponse, rc2.ChallengeResponse)
}

func TestConnectionRejectedRoundTrip(t *testing.T) {
	sid := sessionID(1)
	d := &ConnectionRejected{Header: Header{SessionID: sid, Seq: 5, Ack: 5}}

	b, err := d.Serialize()
	require.NoError(t, err)
	assertHeaderIntegrity(t, b, sid, CryptoMarkClear)

	got, err := Deserialize(b, testHashLen, nil, nil)
	require.NoError(t, err)
	_, ok := got.(*ConnectionRejected)
	require.True(t, ok)
}

func TestPushSchemasRoundTrip(t *testing.T) {
	agentSess, serverSess := establishedPair(t)
	sid := sessionID(3)

	schemas := map[string]spack.TaskSchema{
		"cpu": {Name: "cpu", Fields: []spack.FieldSchema{{Name: "usage", Type: spack.FieldFloat}}},
		"mem": {Name: "mem", Fields: []spack.FieldSchema{{Name: "bytes_used", Type: spack.FieldInt}}},
	}

	d := &PushSchemas{
		Header:  Header{SessionID: sid, Seq: 10, Ack: 9},
		Schemas: schemas,
	}

	b, err := d.Serialize(agentSess)
	require.NoError(t, err)
	assertHeaderIntegrity(t, b, sid, CryptoMarkEncrypted)

	got, err := Deserialize(b, testHashLen, serverSess, nil)
	require.NoError(t, err)

	ps, ok := got.(*PushSchemas)
	require.True(t, ok)
	assert.Equal(t, schemas, ps.Schemas)
}

func TestSendMetricsRoundTrip(t *testing.T) {
	agentSess, serverSess := establishedPair(t)
	sid := sessionID(4)

	descriptor := spack.TaskSchema{
		Name: "cpu",
		Fields: []spack.FieldSchema{
			{Name: "usage", Type: spack.FieldFloat},
			{Name: "ts", Type: spack.FieldInt},
		},
	}
	metric := spack.Metric{"usage": 0.42, "ts": int64(1_700_000_000)}

	d := &SendMetrics{
		Header: Header{SessionID: sid, Seq: 11, Ack: 10},
		TaskID: "cpu",
		Metric: metric,
	}

	b, err := d.Serialize(agentSess, descriptor)
	require.NoError(t, err)
	assertHeaderIntegrity(t, b, sid, CryptoMarkEncrypted)

	descriptors := map[string]spack.TaskSchema{"cpu": descriptor}
	got, err := Deserialize(b, testHashLen, serverSess, descriptors)
	require.NoError(t, err)

	sm, ok := got.(*SendMetrics)
	require.True(t, ok)
	assert.Equal(t, "cpu", sm.TaskID)
	assert.Equal(t, metric, sm.Metric)
}

func TestSendMetricsUnknownTask(t *testing.T) {
	agentSess, serverSess := establishedPair(t)
	descriptor := spack.TaskSchema{Name: "cpu", Fields: []spack.FieldSchema{{Name: "usage", Type: spack.FieldFloat}}}

	d := &SendMetrics{
		Header: Header{SessionID: sessionID(5)},
		TaskID: "cpu",
		Metric: spack.Metric{"usage": 0.1},
	}
	b, err := d.Serialize(agentSess, descriptor)
	require.NoError(t, err)

	_, err = Deserialize(b, testHashLen, serverSess, map[string]spack.TaskSchema{})
	assert.ErrorIs(t, err, ErrUnknownTask)
}

// Testable property 3: cryptoMark = CC iff type ∈ {PushSchemas, SendMetrics}.
func TestCryptoMarkDiscipline(t *testing.T) {
	agentSess, _ := establishedPair(t)
	sid := sessionID(6)

	clear := []Datagram{
		&RequestRegister{Header: Header{SessionID: sid}, PublicKey: []byte("k")},
		&RegisterChallenge{Header: Header{SessionID: sid}, PublicKey: []byte("k"), Challenge: []byte("c"), Salt: []byte("s")},
		&RegisterChallenge2{Header: Header{SessionID: sid}, ChallengeResponse: []byte("r")},
		&ConnectionRejected{Header: Header{SessionID: sid}},
	}
	for _, d := range clear {
		b, err := d.(interface{ Serialize() ([]byte, error) }).Serialize()
		require.NoError(t, err)
		mark := string(b[4+testHashLen : 4+testHashLen+2])
		assert.Equal(t, CryptoMarkClear, mark, "%s should be NC", d.Type())
	}

	push := &PushSchemas{Header: Header{SessionID: sid}, Schemas: map[string]spack.TaskSchema{}}
	b, err := push.Serialize(agentSess)
	require.NoError(t, err)
	assert.Equal(t, CryptoMarkEncrypted, string(b[4+testHashLen:4+testHashLen+2]))
}

// Testable property 5: any version other than 1 yields InvalidVersion.
func TestVersionRejection(t *testing.T) {
	sid := sessionID(2)
	d := &RequestRegister{Header: Header{SessionID: sid}, PublicKey: []byte("k")}
	b, err := d.Serialize()
	require.NoError(t, err)

	versionOffset := 4 + testHashLen + 2 + 4
	binary.BigEndian.PutUint32(b[versionOffset:versionOffset+4], 2)

	_, err = Deserialize(b, testHashLen, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

// S5 — wrong cryptoMark.
func TestWrongCryptoMark(t *testing.T) {
	sid := sessionID(2)
	d := &RequestRegister{Header: Header{SessionID: sid}, PublicKey: []byte("k")}
	b, err := d.Serialize()
	require.NoError(t, err)

	markOffset := 4 + testHashLen
	b[markOffset] = 'X'
	b[markOffset+1] = 'X'

	_, err = Deserialize(b, testHashLen, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidCryptoMark)
}

func TestInvalidSignatureDroppedSilently(t *testing.T) {
	sid := sessionID(2)
	d := &RequestRegister{Header: Header{SessionID: sid}, PublicKey: []byte("k")}
	b, err := d.Serialize()
	require.NoError(t, err)

	b[0] = 'X'

	_, err = Deserialize(b, testHashLen, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
