// SPDX-License-Identifier: AGPL-3.0-or-later
// DMRHub - Run a DMR network server in a single binary
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/dvm-project/fne>

// Package rpcserver implements the administrative RPC sub-protocol: a
// parallel UDP channel carrying CRC-checked, AES-wrapped JSON request/reply
// pairs, with handlers registered by 14-bit opcode and one-shot reply
// correlation for requests this side originates.
package rpcserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/dvm-project/fne/internal/frame/rpcwire"
	"github.com/dvm-project/fne/internal/frameerr"
	"github.com/dvm-project/fne/internal/transport"
)

// Status codes carried in the default/error reply body.
const (
	StatusOK                = 200
	StatusBadRequest         = 400
	StatusInvalidArgs        = 401
	StatusUnhandledRequest   = 402
)

const maxDatagram = 8192

// statusReply is the generic {status, message} reply shape sent when a
// handler is missing or a frame fails to parse.
type statusReply struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// StatusReply builds the generic {status, message} reply shape a Handler
// can return directly, for handlers that only ever report a status code.
func StatusReply(status int, message string) any {
	return statusReply{Status: status, Message: message}
}

// Handler processes a decoded JSON request body and returns the JSON value
// to reply with.
type Handler func(req json.RawMessage) (reply any, err error)

// ReplyHandler processes a reply to a request this side originated.
type ReplyHandler func(reply json.RawMessage)

// Server is one endpoint of the RPC sub-protocol, bound to its own UDP
// socket (optionally AES-wrapped with a key derived from the shared
// password, per spec.md section 4.7).
type Server struct {
	socket *transport.Socket
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[uint16]Handler
	pending  map[uint16]ReplyHandler
}

// New binds an RPC server socket at addr. password, if non-empty, derives
// the AES-256 wrap key as SHA-256(password).
func New(addr, password string, logger *slog.Logger) (*Server, error) {
	socket, err := transport.NewSocket(addr, password)
	if err != nil {
		return nil, fmt.Errorf("rpcserver: bind: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socket:   socket,
		logger:   logger,
		handlers: make(map[uint16]Handler),
		pending:  make(map[uint16]ReplyHandler),
	}, nil
}

// Handle registers a persistent handler for opcode.
func (s *Server) Handle(opcode uint16, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[opcode] = h
}

// Close closes the server's underlying socket.
func (s *Server) Close() error { return s.socket.Close() }

// LocalUDPAddr returns the server's bound local address.
func (s *Server) LocalUDPAddr() *net.UDPAddr {
	return s.socket.LocalAddr().(*net.UDPAddr)
}

// Request sends a JSON request for opcode to addr, optionally registering a
// one-shot handler for the matching reply.
func (s *Server) Request(opcode uint16, addr *net.UDPAddr, req any, onReply ReplyHandler) error {
	payload, err := marshalNUL(req)
	if err != nil {
		return fmt.Errorf("rpcserver: marshal request: %w", err)
	}

	if onReply != nil {
		s.mu.Lock()
		s.pending[opcode] = onReply
		s.mu.Unlock()
	}

	return s.send(rpcwire.Header{Opcode: opcode, Reply: false}, payload, addr)
}

// Serve reads and dispatches RPC datagrams until the socket is closed.
func (s *Server) Serve() error {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := s.socket.ReadFrom(buf)
		if err != nil {
			return err
		}
		s.handleDatagram(buf[:n], addr)
	}
}

func (s *Server) handleDatagram(data []byte, addr *net.UDPAddr) {
	hdr, payload, err := rpcwire.Decode(data)
	if err != nil {
		kind := frameerr.KindFrameMalformed
		if errors.Is(err, rpcwire.ErrChecksum) {
			kind = frameerr.KindCRCMismatch
		}
		s.logger.Warn("rpc: dropping malformed frame", "error", frameerr.Wrap(kind, err), "remote", addr)
		return
	}

	body := bytes.TrimRight(payload, "\x00")

	if hdr.Reply {
		s.mu.Lock()
		handler, ok := s.pending[hdr.Opcode]
		if ok {
			delete(s.pending, hdr.Opcode)
		}
		s.mu.Unlock()
		if ok {
			handler(json.RawMessage(body))
		}
		return
	}

	s.mu.Lock()
	handler, ok := s.handlers[hdr.Opcode]
	s.mu.Unlock()

	var reply any
	if !ok {
		reply = statusReply{Status: StatusUnhandledRequest, Message: "unhandled request"}
	} else {
		r, err := handler(json.RawMessage(body))
		if err != nil {
			reply = statusReply{Status: StatusBadRequest, Message: err.Error()}
		} else {
			reply = r
		}
	}

	replyPayload, err := marshalNUL(reply)
	if err != nil {
		s.logger.Error("rpc: marshal reply", "error", err)
		return
	}

	if err := s.send(rpcwire.Header{Opcode: hdr.Opcode, Reply: true}, replyPayload, addr); err != nil {
		s.logger.Error("rpc: send reply", "error", err, "remote", addr)
	}
}

func (s *Server) send(hdr rpcwire.Header, payload []byte, addr *net.UDPAddr) error {
	buf := make([]byte, rpcwire.HeaderLength+len(payload))
	if _, err := hdr.Encode(buf, payload); err != nil {
		return fmt.Errorf("rpcserver: encode: %w", err)
	}
	_, err := s.socket.WriteTo(buf, addr)
	return err
}

// marshalNUL serializes v as JSON with a trailing NUL terminator, per
// spec.md section 4.1's "nul-terminated text" RPC payload rule.
func marshalNUL(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(body, 0), nil
}
