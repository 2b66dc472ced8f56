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

// Package transport owns the UDP sockets the FNE listens on, the optional
// AES-256-GCM datagram wrap used when a preshared key is configured, and the
// bounded per-destination outbound queues that sit in front of each socket.
package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/dvm-project/fne/internal/frameerr"
)

// ErrCiphertextTooShort is returned when an inbound datagram is too small to
// contain a GCM nonce and authentication tag.
var ErrCiphertextTooShort = errors.New("transport: ciphertext shorter than nonce+tag")

// Socket wraps a UDP connection, transparently sealing and opening datagrams
// when a preshared key is configured.
type Socket struct {
	conn   *net.UDPConn
	aesGCM cipher.AEAD
}

// NewSocket binds a UDP socket at addr. If presharedKey is non-empty,
// outbound datagrams are sealed and inbound datagrams are opened with
// AES-256-GCM keyed by SHA-256(presharedKey), mirroring the peer
// authentication challenge's hash-of-secret construction.
func NewSocket(addr string, presharedKey string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}

	s := &Socket{conn: conn}
	if presharedKey != "" {
		key := sha256.Sum256([]byte(presharedKey))
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return nil, fmt.Errorf("transport: new cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("transport: new gcm: %w", err)
		}
		s.aesGCM = gcm
	}
	return s, nil
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// ReadFrom reads one datagram into buf, opening it first if wrapping is
// enabled, and returns the plaintext length and sender address.
func (s *Socket) ReadFrom(buf []byte) (int, *net.UDPAddr, error) {
	scratch := buf
	if s.aesGCM != nil {
		scratch = make([]byte, len(buf)+s.aesGCM.NonceSize()+s.aesGCM.Overhead())
	}

	n, addr, err := s.conn.ReadFromUDP(scratch)
	if err != nil {
		return 0, nil, err
	}

	if s.aesGCM == nil {
		return n, addr, nil
	}

	plain, err := s.open(scratch[:n])
	if err != nil {
		return 0, addr, frameerr.Wrap(frameerr.KindFrameMalformed, err)
	}
	copy(buf, plain)
	return len(plain), addr, nil
}

// WriteTo seals data (if wrapping is enabled) and sends it to addr.
func (s *Socket) WriteTo(data []byte, addr *net.UDPAddr) (int, error) {
	if s.aesGCM == nil {
		return s.conn.WriteToUDP(data, addr)
	}
	sealed, err := s.seal(data)
	if err != nil {
		return 0, err
	}
	return s.conn.WriteToUDP(sealed, addr)
}

// Close closes the underlying UDP connection.
func (s *Socket) Close() error {
	return s.conn.Close()
}

func (s *Socket) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("transport: generate nonce: %w", err)
	}
	return s.aesGCM.Seal(nonce, nonce, plain, nil), nil
}

func (s *Socket) open(sealed []byte) ([]byte, error) {
	nonceSize := s.aesGCM.NonceSize()
	if len(sealed) < nonceSize+s.aesGCM.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	return s.aesGCM.Open(nil, nonce, ciphertext, nil)
}
