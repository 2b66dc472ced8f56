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

package peer_test

import (
	"crypto/sha256"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/dvm-project/fne/internal/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "s3cr37"

func authAllowing(ids ...uint32) peer.AuthFunc {
	allowed := make(map[uint32]bool)
	for _, id := range ids {
		allowed[id] = true
	}
	return func(peerID uint32) (string, bool) {
		if !allowed[peerID] {
			return "", false
		}
		return testPassword, true
	}
}

func challengeHash(salt uint32) [32]byte {
	saltBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(saltBytes, salt)
	return sha256.Sum256(append(saltBytes, []byte(testPassword)...))
}

func TestFullHandshakeReachesRunning(t *testing.T) {
	m := peer.NewManager(authAllowing(12345), time.Minute)
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 62031}

	salt, err := m.HandleLogin(12345, "dmr", addr)
	require.NoError(t, err)

	session, ok := m.Get(12345)
	require.True(t, ok)
	assert.Equal(t, peer.WaitingAuth, session.State)

	require.NoError(t, m.HandleChallengeResponse(12345, challengeHash(salt)))
	session, _ = m.Get(12345)
	assert.Equal(t, peer.WaitingConfig, session.State)

	require.NoError(t, m.HandleConfig(12345, "W1AW"))
	session, _ = m.Get(12345)
	assert.Equal(t, peer.Running, session.State)
	assert.Equal(t, "W1AW", session.Callsign)

	running := m.Running()
	require.Len(t, running, 1)
	assert.Equal(t, uint32(12345), running[0].PeerID)
}

func TestLoginRejectsUnknownPeer(t *testing.T) {
	m := peer.NewManager(authAllowing(1), time.Minute)
	_, err := m.HandleLogin(999, "dmr", nil)
	assert.ErrorIs(t, err, peer.ErrPeerNotAllowed)
}

func TestChallengeResponseRejectsBadHash(t *testing.T) {
	m := peer.NewManager(authAllowing(12345), time.Minute)
	_, err := m.HandleLogin(12345, "dmr", nil)
	require.NoError(t, err)

	err = m.HandleChallengeResponse(12345, [32]byte{0xFF})
	assert.ErrorIs(t, err, peer.ErrBadChallengeResponse)
}

func TestChallengeResponseUnknownPeerRejected(t *testing.T) {
	m := peer.NewManager(authAllowing(12345), time.Minute)
	err := m.HandleChallengeResponse(12345, [32]byte{})
	assert.ErrorIs(t, err, peer.ErrUnknownPeer)
}

func TestPrunePingsKeepsFreshPeers(t *testing.T) {
	m := peer.NewManager(authAllowing(1, 2), time.Minute)
	_, err := m.HandleLogin(1, "dmr", nil)
	require.NoError(t, err)
	salt, err := m.HandleLogin(2, "dmr", nil)
	require.NoError(t, err)
	require.NoError(t, m.HandleChallengeResponse(2, challengeHash(salt)))

	assert.True(t, m.Ping(2))
	pruned := m.PrunePings()
	assert.Empty(t, pruned)

	_, ok := m.Get(1)
	assert.True(t, ok)
}

func TestDisconnectRemovesPeer(t *testing.T) {
	m := peer.NewManager(authAllowing(1), time.Minute)
	_, err := m.HandleLogin(1, "dmr", nil)
	require.NoError(t, err)

	assert.True(t, m.Disconnect(1))
	_, ok := m.Get(1)
	assert.False(t, ok)
	assert.False(t, m.Disconnect(1))
}
