package datagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Testable property 7: from Idle, only sending RequestRegister (agent)
// is legal; every other send or receive yields ErrWrongType, and the
// machine never returns to a prior phase.
func TestHandshakeMonotonicityAgent(t *testing.T) {
	illegal := []Type{TypeRegisterChallenge, TypeRegisterChallenge2, TypePushSchemas, TypeSendMetrics}

	for _, typ := range illegal {
		s := NewAgentSession(zeroSessionID())
		assert.ErrorIs(t, s.OnSend(typ), ErrWrongType)
		assert.Equal(t, PhaseIdle, s.Phase)
	}
	for _, typ := range illegal {
		s := NewAgentSession(zeroSessionID())
		assert.ErrorIs(t, s.OnReceive(typ), ErrWrongType)
		assert.Equal(t, PhaseIdle, s.Phase)
	}

	s := NewAgentSession(zeroSessionID())
	require := assert.New(t)
	require.NoError(s.OnSend(TypeRequestRegister))
	require.Equal(PhaseAwaitChallenge, s.Phase)
}

func TestHandshakeMonotonicityServer(t *testing.T) {
	illegal := []Type{TypeRegisterChallenge2, TypePushSchemas, TypeSendMetrics}
	for _, typ := range illegal {
		s := NewServerSession()
		assert.ErrorIs(t, s.OnReceive(typ), ErrWrongType)
		assert.Equal(t, PhaseIdle, s.Phase)
	}

	s := NewServerSession()
	assert.NoError(t, s.OnReceive(TypeRequestRegister))
	assert.Equal(t, PhaseAwaitChallenge2, s.Phase)

	// the machine never returns to a prior phase: a second
	// RequestRegister in AwaitChallenge2 is illegal.
	assert.ErrorIs(t, s.OnReceive(TypeRequestRegister), ErrWrongType)
	assert.Equal(t, PhaseAwaitChallenge2, s.Phase)
}

// Any state (except the terminal Rejected→Rejected self-loop, which is
// idempotent) transitions to Rejected on ConnectionRejected.
func TestConnectionRejectedFromAnyState(t *testing.T) {
	phases := []Phase{PhaseIdle, PhaseAwaitChallenge, PhaseAwaitChallenge2, PhaseAwaitEstablished, PhaseEstablished}
	for _, p := range phases {
		s := &SessionState{Role: RoleAgent, Phase: p}
		assert.NoError(t, s.OnReceive(TypeConnectionRejected))
		assert.Equal(t, PhaseRejected, s.Phase)
	}
}

func TestRejectedIsTerminal(t *testing.T) {
	s := &SessionState{Role: RoleAgent, Phase: PhaseRejected}
	assert.ErrorIs(t, s.OnReceive(TypePushSchemas), ErrWrongType)
	assert.Equal(t, PhaseRejected, s.Phase)
}
