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

package router_test

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvm-project/fne/internal/affiliation"
	"github.com/dvm-project/fne/internal/frame/rtpfne"
	"github.com/dvm-project/fne/internal/lookup"
	"github.com/dvm-project/fne/internal/peer"
	"github.com/dvm-project/fne/internal/router"
	"github.com/dvm-project/fne/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	sessions []peer.Session
}

func (f fakeDirectory) Running() []peer.Session { return f.sessions }

func addrFor(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func writeRules(t *testing.T, rules string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "talkgroups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rules), 0o600))
	return path
}

func dmrPayload(dstID, srcID uint32, slot uint8, frameType, dataType uint8) []byte {
	payload := make([]byte, 40)
	bits := byte(0)
	if slot == 1 {
		bits |= 0x80
	}
	bits |= (frameType & 0x3) << 4
	bits |= dataType & 0x0F
	payload[0] = bits
	payload[1] = byte(srcID >> 16)
	payload[2] = byte(srcID >> 8)
	payload[3] = byte(srcID)
	payload[4] = byte(dstID >> 16)
	payload[5] = byte(dstID >> 8)
	payload[6] = byte(dstID)
	return payload
}

func newDMRRouter(t *testing.T, rulesYAML string, sessions []peer.Session) *router.DMRRouter {
	t.Helper()
	path := writeRules(t, rulesYAML)
	table, err := lookup.LoadTalkgroupTable(path)
	require.NoError(t, err)
	queue := transport.NewFrameQueue(16)
	grants := affiliation.New("dmr", 4, 10)
	return router.NewDMR(queue, table, fakeDirectory{sessions}, grants, 2*time.Second)
}

func TestDMRRouteFansOutToOtherPeers(t *testing.T) {
	r := newDMRRouter(t, "rules:\n  - tgid: 100\n    slot: 1\n    active: true\n", []peer.Session{
		{PeerID: 1, RemoteAddr: addrFor(62001)},
		{PeerID: 2, RemoteAddr: addrFor(62002)},
	})

	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 555}}
	payload := dmrPayload(100, 3001, 1, 0, 0)

	n, err := r.Process(1, hdr, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, n) // peer 1 is the originator, excluded
}

func TestDMRRouteDeniedWhenTalkgroupInactive(t *testing.T) {
	r := newDMRRouter(t, "rules: []\n", []peer.Session{{PeerID: 2, RemoteAddr: addrFor(62002)}})

	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 1}}
	payload := dmrPayload(200, 3001, 1, 0, 0)

	_, err := r.Process(1, hdr, payload)
	assert.ErrorIs(t, err, router.ErrDestinationDenied)
}

func TestDMRContentionRejectsSecondStream(t *testing.T) {
	r := newDMRRouter(t, "rules:\n  - tgid: 100\n    slot: 1\n    active: true\n", []peer.Session{
		{PeerID: 2, RemoteAddr: addrFor(62002)},
	})

	hdr1 := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 1}}
	_, err := r.Process(1, hdr1, dmrPayload(100, 3001, 1, 0, 0))
	require.NoError(t, err)

	hdr2 := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 2}}
	_, err = r.Process(9, hdr2, dmrPayload(100, 4002, 1, 0, 0))
	assert.ErrorIs(t, err, router.ErrCallContention)

	// The terminator from the original stream clears admission for the
	// destination so a later, unrelated stream can claim it.
	term := dmrPayload(100, 3001, 1, 2, 2)
	_, err = r.Process(1, hdr1, term)
	require.NoError(t, err)

	_, err = r.Process(9, hdr2, dmrPayload(100, 4002, 1, 0, 0))
	assert.NoError(t, err)
}

func TestDMRExclusionListBlocksPeer(t *testing.T) {
	r := newDMRRouter(t, "rules:\n  - tgid: 100\n    slot: 1\n    active: true\n    exclusion: [2]\n", []peer.Session{
		{PeerID: 2, RemoteAddr: addrFor(62002)},
	})

	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 1}}
	_, err := r.Process(1, hdr, dmrPayload(100, 3001, 1, 0, 0))
	assert.ErrorIs(t, err, router.ErrNoSubscribers)
}

func TestDMRParrotDestinationRecordsAndReplays(t *testing.T) {
	r := newDMRRouter(t, "rules: []\n", nil)

	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 77}}
	_, err := r.Process(1, hdr, dmrPayload(9990, 3001, 1, 0, 0))
	require.NoError(t, err)

	term := dmrPayload(9990, 3001, 1, 2, 2)
	_, err = r.Process(1, hdr, term)
	require.NoError(t, err)

	frames := r.ReplayParrot(77)
	assert.Len(t, frames, 2)
	assert.True(t, frames[1].EndOfCall)
}

func TestDMRRouteRewritesDestinationTGID(t *testing.T) {
	path := writeRules(t, "rules:\n"+
		"  - tgid: 100\n"+
		"    slot: 1\n"+
		"    active: true\n"+
		"    rewrites:\n"+
		"      - peerId: 2\n"+
		"        fromTgid: 100\n"+
		"        fromSlot: 1\n"+
		"        toTgid: 200\n"+
		"        toSlot: 0\n")
	table, err := lookup.LoadTalkgroupTable(path)
	require.NoError(t, err)
	queue := transport.NewFrameQueue(16)
	grants := affiliation.New("dmr", 4, 10)
	r := router.NewDMR(queue, table, fakeDirectory{[]peer.Session{
		{PeerID: 2, RemoteAddr: addrFor(62002)},
	}}, grants, 2*time.Second)

	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 555}}
	payload := dmrPayload(100, 3001, 1, 0, 0)

	n, routeErr := r.Process(1, hdr, payload)
	require.NoError(t, routeErr)
	assert.Equal(t, 1, n)

	datagrams := queue.Drain(addrFor(62002).String())
	require.Len(t, datagrams, 1)
	forwarded := datagrams[0][rtpfne.HeaderLength:]
	assert.Equal(t, byte(0), forwarded[4])
	assert.Equal(t, byte(0), forwarded[5])
	assert.Equal(t, byte(200), forwarded[6])
	assert.Equal(t, byte(0), forwarded[0]&0x80) // rewritten from slot 1 to slot 0
}

func TestDMRUnlinkClearsGroupAffiliations(t *testing.T) {
	path := writeRules(t, "rules: []\n")
	table, err := lookup.LoadTalkgroupTable(path)
	require.NoError(t, err)
	queue := transport.NewFrameQueue(16)
	grants := affiliation.New("dmr", 4, 10)
	grants.GroupAff(3001, 200)
	r := router.NewDMR(queue, table, fakeDirectory{}, grants, time.Second)

	// A group-voice frame to the reserved unlink destination never reaches
	// the rule table; it clears every group affiliation instead.
	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 1}}
	_, routeErr := r.Process(1, hdr, dmrPayload(4000, 3001, 1, 0, 0))
	require.NoError(t, routeErr)
	assert.False(t, grants.IsGroupAff(3001, 200))
}
