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

package transport_test

import (
	"testing"

	"github.com/dvm-project/fne/internal/frame/rtpfne"
	"github.com/dvm-project/fne/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameQueueAssignsSequentialSequence(t *testing.T) {
	fq := transport.NewFrameQueue(0)
	fq.BeginStream(100)

	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{Function: rtpfne.FuncProtocol, StreamID: 100}}

	_, err := fq.Enqueue("peer-1", hdr, []byte{0xAA}, false)
	require.NoError(t, err)
	_, err = fq.Enqueue("peer-1", hdr, []byte{0xBB}, false)
	require.NoError(t, err)

	datagrams := fq.Drain("peer-1")
	require.Len(t, datagrams, 2)

	first, _, err := rtpfne.Decode(datagrams[0])
	require.NoError(t, err)
	second, _, err := rtpfne.Decode(datagrams[1])
	require.NoError(t, err)

	assert.EqualValues(t, 1, first.RTP.Sequence)
	assert.EqualValues(t, 2, second.RTP.Sequence)
}

func TestFrameQueueEndOfCallForcesReservedSequence(t *testing.T) {
	fq := transport.NewFrameQueue(0)
	fq.BeginStream(7)

	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{StreamID: 7}}
	_, err := fq.Enqueue("peer-1", hdr, nil, true)
	require.NoError(t, err)

	datagrams := fq.Drain("peer-1")
	require.Len(t, datagrams, 1)

	got, _, err := rtpfne.Decode(datagrams[0])
	require.NoError(t, err)
	assert.Equal(t, rtpfne.EndOfCallSequence, got.RTP.Sequence)
}
