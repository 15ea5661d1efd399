// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package session owns the server-side map of live NetTask
// SessionStates, keyed by sessionId. It supplements the wire-level
// handshake state machine in pkg/datagram with the persistence and
// expiry concerns spec.md §1 calls out of scope for the core.
package session

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nettask-project/nettask/config"
	"github.com/nettask-project/nettask/internal/metrics"
	"github.com/nettask-project/nettask/pkg/datagram"
)

// entry pairs a SessionState with the bookkeeping the Manager needs to
// expire it: when it was created and when it was last touched.
// connectionID is a process-local correlation id for log lines — it is
// never the wire sessionId and is never sent to a peer.
type entry struct {
	state        *datagram.SessionState
	connectionID string
	createdAt    time.Time
	lastActive   time.Time
	messages     int
}

// Manager tracks every session a server peer has open, evicting ones
// that exceed MaxAge or go idle past IdleTimeout.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	cfg      config.SessionConfig

	// creating collapses concurrent Create calls racing on the same
	// sessionId (e.g. a duplicate RequestRegister handled by two
	// goroutines before the first has registered its entry) into one.
	creating singleflight.Group

	stop chan struct{}
	done chan struct{}
}

// NewManager starts a Manager with its background cleanup loop
// running. Call Stop to stop it.
func NewManager(cfg *config.SessionConfig) *Manager {
	m := &Manager{
		sessions: make(map[string]*entry),
		cfg:      *cfg,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

func sessionKey(sessionID []byte) string {
	return hex.EncodeToString(sessionID)
}

// Create registers a brand-new SessionState under sessionId. Returns
// false without replacing anything if the id is already in use — the
// handshake is single-shot, so a collision here is the caller's bug.
func (m *Manager) Create(state *datagram.SessionState) bool {
	key := sessionKey(state.SessionID)

	v, _, _ := m.creating.Do(key, func() (interface{}, error) {
		now := time.Now()

		m.mu.Lock()
		defer m.mu.Unlock()

		if _, exists := m.sessions[key]; exists {
			metrics.SessionsCreated.WithLabelValues("failure").Inc()
			return false, nil
		}
		m.sessions[key] = &entry{
			state:        state,
			connectionID: uuid.NewString(),
			createdAt:    now,
			lastActive:   now,
		}
		metrics.SessionsCreated.WithLabelValues("success").Inc()
		metrics.SessionsActive.Inc()
		return true, nil
	})
	return v.(bool)
}

// ConnectionID returns the process-local correlation id Create
// assigned to sessionId, for attaching to log lines.
func (m *Manager) ConnectionID(sessionID []byte) (string, bool) {
	key := sessionKey(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.sessions[key]
	if !exists {
		return "", false
	}
	return e.connectionID, true
}

// Get returns the SessionState for sessionId, refreshing its
// lastActive timestamp on access. ok is false if no session exists
// under that id (it may have expired or never existed).
func (m *Manager) Get(sessionID []byte) (state *datagram.SessionState, ok bool) {
	key := sessionKey(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.sessions[key]
	if !exists {
		return nil, false
	}
	e.lastActive = time.Now()
	return e.state, true
}

// Touch records that a message of frameSize bytes was exchanged on
// sessionId, for MaxMessages enforcement and SessionMessageSize
// accounting. It returns false if the session's message budget is
// exhausted, in which case the caller should reject and close the
// session.
func (m *Manager) Touch(sessionID []byte, frameSize int) bool {
	key := sessionKey(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.sessions[key]
	if !exists {
		return false
	}
	e.lastActive = time.Now()
	e.messages++
	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(frameSize))
	if m.cfg.MaxMessages > 0 && e.messages > m.cfg.MaxMessages {
		return false
	}
	return true
}

// Close removes sessionId from the manager, marking the datagram
// SessionState Rejected if it is still present. The phase it was in
// at removal (Established for a graceful close, Rejected if the
// handshake never completed) and its lifetime are both recorded.
func (m *Manager) Close(sessionID []byte) {
	key := sessionKey(sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.sessions[key]
	if !exists {
		return
	}
	metrics.SessionsClosed.WithLabelValues(e.state.Phase.String()).Inc()
	metrics.SessionDuration.WithLabelValues("closed").Observe(time.Since(e.createdAt).Seconds())
	e.state.Reject()
	delete(m.sessions, key)
	metrics.SessionsActive.Dec()
}

// Healthy reports whether the background cleanup loop is still
// running, for wiring into internal/metrics.RegisterHealthCheck. A
// closed done channel means cleanupLoop already exited.
func (m *Manager) Healthy() error {
	select {
	case <-m.done:
		return fmt.Errorf("session manager cleanup loop has stopped")
	default:
		return nil
	}
}

// Len returns the number of sessions currently tracked.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stop halts the background cleanup loop and returns once it has
// exited.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Manager) cleanupLoop() {
	defer close(m.done)

	interval := m.cfg.IdleTimeout
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanupExpired()
		}
	}
}

func (m *Manager) cleanupExpired() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.sessions {
		expiredByAge := m.cfg.MaxAge > 0 && now.Sub(e.createdAt) > m.cfg.MaxAge
		expiredByIdle := m.cfg.IdleTimeout > 0 && now.Sub(e.lastActive) > m.cfg.IdleTimeout
		if expiredByAge || expiredByIdle {
			metrics.SessionsClosed.WithLabelValues(e.state.Phase.String()).Inc()
			metrics.SessionDuration.WithLabelValues("expired").Observe(now.Sub(e.createdAt).Seconds())
			e.state.Reject()
			delete(m.sessions, key)
			metrics.SessionsExpired.Inc()
			metrics.SessionsActive.Dec()
		}
	}
}
