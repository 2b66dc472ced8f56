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

package peer

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/dvm-project/fne/internal/frameerr"
)

var (
	// ErrUnknownPeer is returned for any handshake step on a peer id the
	// manager has never seen a login attempt from.
	ErrUnknownPeer = errors.New("peer: unknown peer id")
	// ErrWrongState is returned when a handshake packet arrives out of
	// sequence for the peer's current state.
	ErrWrongState = errors.New("peer: packet received in wrong state")
	// ErrBadChallengeResponse is returned when a peer's RPTK hash does not
	// match the salt/password combination.
	ErrBadChallengeResponse = errors.New("peer: challenge response does not match")
	// ErrPeerNotAllowed is returned when AuthFunc rejects a peer id outright
	// (unknown to the ACL), distinct from a known peer with a bad password.
	ErrPeerNotAllowed = errors.New("peer: not permitted by peer list")
)

const max32Bit = 1 << 32

// AuthFunc resolves a peer id to the shared password it should be
// challenged against. ok is false if the peer id is not present in the
// configured peer list at all.
type AuthFunc func(peerID uint32) (password string, ok bool)

// Manager owns the live peer connection table. The map is guarded by a
// plain sync.RWMutex rather than a concurrent map, since every session
// mutation here is a multi-field state transition that must be applied
// atomically — an xsync map would only protect individual field writes.
type Manager struct {
	mu      sync.RWMutex
	peers   map[uint32]*Session
	auth    AuthFunc
	pingTTL time.Duration
}

// NewManager creates a peer manager. auth resolves peer ids to passwords;
// pingTTL is how long a peer may go without a ping before PrunePings drops
// it.
func NewManager(auth AuthFunc, pingTTL time.Duration) *Manager {
	return &Manager{
		peers:   make(map[uint32]*Session),
		auth:    auth,
		pingTTL: pingTTL,
	}
}

// Get returns a snapshot copy of peerID's session, if known.
func (m *Manager) Get(peerID uint32) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.peers[peerID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Running returns a snapshot of every peer currently in the Running state.
func (m *Manager) Running() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.peers))
	for _, s := range m.peers {
		if s.State == Running {
			out = append(out, *s)
		}
	}
	return out
}

// All returns a snapshot of every known peer, regardless of handshake state,
// for the admin surface's peer listing.
func (m *Manager) All() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.peers))
	for _, s := range m.peers {
		out = append(out, *s)
	}
	return out
}

// HandleLogin processes an RPTL-equivalent login request: it creates or
// resets peerID's session, issues a random 32-bit salt, and advances the
// session to WaitingAuth. It returns the salt to send back as the
// challenge, or an error if the peer id is not permitted at all.
func (m *Manager) HandleLogin(peerID uint32, protocol string, remoteAddr *net.UDPAddr) (uint32, error) {
	if _, ok := m.auth(peerID); !ok {
		return 0, frameerr.Wrap(frameerr.KindPeerACLDenied, ErrPeerNotAllowed)
	}

	saltBig, err := rand.Int(rand.Reader, big.NewInt(max32Bit))
	if err != nil {
		return 0, err
	}
	salt := uint32(saltBig.Uint64())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[peerID] = &Session{
		PeerID:     peerID,
		State:      WaitingAuth,
		Salt:       salt,
		RemoteAddr: remoteAddr,
		Protocol:   protocol,
		Connected:  now(),
		LastPing:   now(),
	}
	return salt, nil
}

// HandleChallengeResponse processes an RPTK-equivalent packet: it verifies
// that rxHash equals SHA-256(salt || password) for the peer's assigned
// salt, and on success advances the session to WaitingConfig.
func (m *Manager) HandleChallengeResponse(peerID uint32, rxHash [32]byte) error {
	password, ok := m.auth(peerID)
	if !ok {
		return frameerr.Wrap(frameerr.KindPeerACLDenied, ErrPeerNotAllowed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.peers[peerID]
	if !ok {
		return frameerr.Wrap(frameerr.KindPeerNotConnected, ErrUnknownPeer)
	}
	if s.State != WaitingAuth {
		return frameerr.Wrap(frameerr.KindPeerNotConnected, ErrWrongState)
	}

	saltBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(saltBytes, s.Salt)
	want := sha256.Sum256(append(saltBytes, []byte(password)...))
	if subtle.ConstantTimeCompare(want[:], rxHash[:]) != 1 {
		return frameerr.Wrap(frameerr.KindAuthFailed, ErrBadChallengeResponse)
	}

	s.State = WaitingConfig
	s.LastPing = now()
	return nil
}

// HandleConfig processes an RPTC-equivalent packet carrying the peer's
// identity configuration block, recording its callsign and advancing the
// session to Running.
func (m *Manager) HandleConfig(peerID uint32, callsign string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.peers[peerID]
	if !ok {
		return frameerr.Wrap(frameerr.KindPeerNotConnected, ErrUnknownPeer)
	}
	if s.State != WaitingConfig {
		return frameerr.Wrap(frameerr.KindPeerNotConnected, ErrWrongState)
	}

	s.Callsign = callsign
	s.State = Running
	s.LastPing = now()
	return nil
}

// Ping records a keep-alive from peerID, returning false if the peer is
// unknown.
func (m *Manager) Ping(peerID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.peers[peerID]
	if !ok {
		return false
	}
	s.LastPing = now()
	return true
}

// Disconnect removes peerID from the table, reporting whether it was
// present.
func (m *Manager) Disconnect(peerID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[peerID]; !ok {
		return false
	}
	delete(m.peers, peerID)
	return true
}

// PrunePings drops every peer whose last ping is older than the manager's
// configured TTL and returns the pruned peer ids.
func (m *Manager) PrunePings() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pruned []uint32
	cutoff := now().Add(-m.pingTTL)
	for id, s := range m.peers {
		if s.LastPing.Before(cutoff) {
			pruned = append(pruned, id)
			delete(m.peers, id)
		}
	}
	return pruned
}

// now is a seam so tests can avoid depending on wall-clock timing; it is
// always time.Now in production.
var now = time.Now
