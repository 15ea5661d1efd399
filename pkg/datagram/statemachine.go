package datagram

import (
	"github.com/nettask-project/nettask/pkg/ecdhe"
	"github.com/nettask-project/nettask/pkg/spack"
)

// Role identifies which side of the handshake a SessionState belongs
// to; the legal transition table differs by role.
type Role int

const (
	RoleAgent Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "agent"
}

// Phase is one state of the handshake state machine, spec.md §4.3.
// PhaseIdle doubles as the diagram's "Listen" for the server role —
// both name "hasn't started registering yet".
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitChallenge
	PhaseAwaitChallenge2
	PhaseAwaitEstablished
	PhaseEstablished
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseAwaitChallenge:
		return "AwaitChallenge"
	case PhaseAwaitChallenge2:
		return "AwaitChallenge2"
	case PhaseAwaitEstablished:
		return "AwaitEstablished"
	case PhaseEstablished:
		return "Established"
	case PhaseRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// SessionState is the per-session state spec.md §3 describes: role,
// phase, the bound key-agreement object, last sequence/ack numbers,
// and (for metric decoding) the bound task configuration. The
// handshake is single-shot — Established is entered once and never
// re-entered for a given SessionID; a fresh registration always gets a
// new SessionState with a new SessionID.
type SessionState struct {
	Role      Role
	Phase     Phase
	SessionID []byte
	Session   *ecdhe.Session

	LastSentSeq uint32
	LastSentAck uint32
	LastRecvSeq uint32
	LastRecvAck uint32

	TaskConfig map[string]spack.TaskSchema
}

// NewAgentSession starts a fresh Idle session for the initiating peer.
// sessionID is the placeholder value sent in RequestRegister —
// conventionally HASH_LEN zero bytes (spec.md §9).
func NewAgentSession(sessionID []byte) *SessionState {
	return &SessionState{Role: RoleAgent, Phase: PhaseIdle, SessionID: sessionID}
}

// NewServerSession starts a fresh Listen-phase session for the
// responding peer. Its SessionID is unset until the server chooses one
// on receipt of RequestRegister.
func NewServerSession() *SessionState {
	return &SessionState{Role: RoleServer, Phase: PhaseIdle}
}

// OnSend validates t against the current phase and, if legal, applies
// the resulting local transition. Call before Serialize.
func (s *SessionState) OnSend(t Type) error {
	if t == TypeConnectionRejected {
		s.Phase = PhaseRejected
		return nil
	}
	if s.Phase == PhaseRejected {
		return ErrWrongType
	}

	switch s.Role {
	case RoleAgent:
		switch s.Phase {
		case PhaseIdle:
			if t == TypeRequestRegister {
				s.Phase = PhaseAwaitChallenge
				return nil
			}
		case PhaseAwaitEstablished:
			if t == TypeRegisterChallenge2 {
				s.Phase = PhaseEstablished
				return nil
			}
		case PhaseEstablished:
			if t == TypePushSchemas || t == TypeSendMetrics {
				return nil
			}
		}
	case RoleServer:
		switch s.Phase {
		case PhaseAwaitChallenge2:
			// OnReceive(RequestRegister) already moved the server here;
			// the RegisterChallenge reply leaves the phase unchanged.
			if t == TypeRegisterChallenge {
				return nil
			}
		case PhaseEstablished:
			if t == TypePushSchemas || t == TypeSendMetrics {
				return nil
			}
		}
	}
	return ErrWrongType
}

// OnReceive validates t against the current phase and, if legal,
// applies the resulting transition. A receive that is illegal for the
// current phase returns ErrWrongType; per spec.md §4.3 the caller
// responds by sending ConnectionRejected and calling Reject.
func (s *SessionState) OnReceive(t Type) error {
	if t == TypeConnectionRejected {
		s.Phase = PhaseRejected
		return nil
	}
	if s.Phase == PhaseRejected {
		return ErrWrongType
	}

	switch s.Role {
	case RoleAgent:
		switch s.Phase {
		case PhaseAwaitChallenge:
			if t == TypeRegisterChallenge {
				s.Phase = PhaseAwaitEstablished
				return nil
			}
		case PhaseEstablished:
			if t == TypePushSchemas || t == TypeSendMetrics {
				return nil
			}
		}
	case RoleServer:
		switch s.Phase {
		case PhaseIdle:
			if t == TypeRequestRegister {
				s.Phase = PhaseAwaitChallenge2
				return nil
			}
		case PhaseAwaitChallenge2:
			if t == TypeRegisterChallenge2 {
				s.Phase = PhaseEstablished
				return nil
			}
		case PhaseEstablished:
			if t == TypePushSchemas || t == TypeSendMetrics {
				return nil
			}
		}
	}
	return ErrWrongType
}

// Reject forces the session into the terminal Rejected phase — the
// local peer's own decision to terminate, as opposed to receiving a
// ConnectionRejected from the other side.
func (s *SessionState) Reject() {
	s.Phase = PhaseRejected
}
