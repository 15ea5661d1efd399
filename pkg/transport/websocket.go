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

package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketTransport carries NetTask frames as binary WebSocket
// messages, one frame per message — gorilla/websocket already
// preserves message boundaries, so no additional framing is needed.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial opens a WebSocket connection to addr as the agent side.
func Dial(ctx context.Context, addr string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &WebSocketTransport{conn: conn}, nil
}

// Upgrade promotes an inbound HTTP request to a WebSocketTransport, the
// server side's counterpart to Dial.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocketTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	return &WebSocketTransport{conn: conn}, nil
}

// Send writes frame as a single binary WebSocket message.
func (t *WebSocketTransport) Send(ctx context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("transport: set write deadline: %w", err)
		}
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Receive blocks for the next binary WebSocket message and returns its
// raw bytes as one datagram frame.
func (t *WebSocketTransport) Receive(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("transport: set read deadline: %w", err)
		}
	}
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("transport: receive: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("transport: unexpected message type %d", msgType)
	}
	return data, nil
}

// Close closes the underlying WebSocket connection.
func (t *WebSocketTransport) Close() error {
	return t.conn.Close()
}
