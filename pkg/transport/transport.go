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

// Package transport supplies the message-framed channel spec.md §1
// treats as an external collaborator: NetTask never defines its own
// transport, only that one carries whole datagram frames. This package
// binds that contract to a WebSocket connection, the one concrete
// transport the demo binaries in cmd/ need.
package transport

import "context"

// MessageTransport is the minimal surface the datagram layer needs
// from any underlying channel: send and receive whole frames, with no
// knowledge of what's inside them.
type MessageTransport interface {
	// Send writes one complete datagram frame.
	Send(ctx context.Context, frame []byte) error
	// Receive blocks for the next complete datagram frame.
	Receive(ctx context.Context) ([]byte, error)
	// Close releases the underlying connection.
	Close() error
}
