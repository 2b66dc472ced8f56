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

package rtpfne_test

import (
	"testing"

	"github.com/dvm-project/fne/internal/frame/rtpfne"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	want := rtpfne.Header{
		RTP: rtpfne.RTPHeader{
			PayloadType: 0,
			Sequence:    1234,
			Timestamp:   987654,
			SSRC:        123456,
		},
		FNE: rtpfne.FNEHeader{
			Function:    rtpfne.FuncProtocol,
			SubFunction: rtpfne.SubProtoDMR,
			PeerID:      123456,
			StreamID:    0xAABBCCDD,
		},
	}

	buf := make([]byte, rtpfne.HeaderLength+4)
	copy(buf[rtpfne.HeaderLength:], []byte{1, 2, 3, 4})

	n, err := want.Encode(buf)
	require.NoError(t, err)
	assert.Equal(t, rtpfne.HeaderLength, n)

	got, payload, err := rtpfne.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, want.RTP.Sequence, got.RTP.Sequence)
	assert.Equal(t, want.RTP.Timestamp, got.RTP.Timestamp)
	assert.Equal(t, want.RTP.SSRC, got.RTP.SSRC)
	assert.Equal(t, want.FNE, got.FNE)
	assert.Equal(t, []byte{1, 2, 3, 4}, payload)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, _, err := rtpfne.Decode(make([]byte, 10))
	require.ErrorIs(t, err, rtpfne.ErrShortHeader)
}

func TestNextSequenceWraparound(t *testing.T) {
	assert.EqualValues(t, 1, rtpfne.NextSequence(rtpfne.EndOfCallSequence-1))
	assert.EqualValues(t, 1, rtpfne.NextSequence(0))
	assert.EqualValues(t, 2, rtpfne.NextSequence(1))
}

func TestSeqGap(t *testing.T) {
	assert.EqualValues(t, 1, rtpfne.SeqGap(1, 0))
	assert.EqualValues(t, 2, rtpfne.SeqGap(0, 0xFFFE))
}
