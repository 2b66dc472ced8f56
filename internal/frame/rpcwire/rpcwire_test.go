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

package rpcwire_test

import (
	"testing"

	"github.com/dvm-project/fne/internal/frame/rpcwire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := append([]byte(`{"ok":true}`), 0)
	hdr := rpcwire.Header{Opcode: 42}

	buf := make([]byte, rpcwire.HeaderLength+len(payload))
	n, err := hdr.Encode(buf, payload)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)

	got, gotPayload, err := rpcwire.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), got.Opcode)
	assert.False(t, got.Reply)
	assert.Equal(t, payload, gotPayload)
}

func TestReplyBitRoundTrip(t *testing.T) {
	hdr := rpcwire.Header{Opcode: 7, Reply: true}
	buf := make([]byte, rpcwire.HeaderLength)
	_, err := hdr.Encode(buf, nil)
	require.NoError(t, err)

	got, payload, err := rpcwire.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), got.Opcode)
	assert.True(t, got.Reply)
	assert.Empty(t, payload)
}

func TestReplyOpcode(t *testing.T) {
	req := rpcwire.Header{Opcode: 5}
	rep := rpcwire.Header{Opcode: 5, Reply: true}

	buf := make([]byte, rpcwire.HeaderLength)
	_, err := req.Encode(buf, nil)
	require.NoError(t, err)
	gotReq, _, err := rpcwire.Decode(buf)
	require.NoError(t, err)

	_, err = rep.Encode(buf, nil)
	require.NoError(t, err)
	gotRep, _, err := rpcwire.Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, rpcwire.ReplyOpcode(gotReq.Opcode), rpcwire.ReplyOpcode(gotRep.Opcode)|0)
	assert.NotEqual(t, gotReq.Reply, gotRep.Reply)
}

func TestDecodeChecksumMismatch(t *testing.T) {
	hdr := rpcwire.Header{Opcode: 1}
	buf := make([]byte, rpcwire.HeaderLength)
	_, err := hdr.Encode(buf, nil)
	require.NoError(t, err)

	buf[0] ^= 0xFF
	_, _, err = rpcwire.Decode(buf)
	require.ErrorIs(t, err, rpcwire.ErrChecksum)
}

func TestDecodeShortHeader(t *testing.T) {
	_, _, err := rpcwire.Decode(make([]byte, 4))
	require.ErrorIs(t, err, rpcwire.ErrShortHeader)
}

func TestDecodeShortPayload(t *testing.T) {
	hdr := rpcwire.Header{Opcode: 1}
	buf := make([]byte, rpcwire.HeaderLength+4)
	_, err := hdr.Encode(buf, []byte{1, 2, 3, 4})
	require.NoError(t, err)

	_, _, err = rpcwire.Decode(buf[:rpcwire.HeaderLength+2])
	require.ErrorIs(t, err, rpcwire.ErrShortPayload)
}

func TestCRC16CCITTKnownVector(t *testing.T) {
	// "123456789" -> 0x29B1 is the standard CRC-16/CCITT-FALSE test vector.
	assert.Equal(t, uint16(0x29B1), rpcwire.CRC16CCITT([]byte("123456789")))
}
