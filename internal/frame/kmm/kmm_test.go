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

package kmm_test

import (
	"testing"

	"github.com/dvm-project/fne/internal/frame/kmm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseHeader() kmm.Header {
	return kmm.Header{
		RespKind: kmm.RespImmediate,
		Complete: true,
		DstLLID:  0x00ABCD,
		SrcLLID:  0x1234,
	}
}

func roundTrip(t *testing.T, f kmm.Frame) kmm.Frame {
	t.Helper()
	buf := make([]byte, f.Length())
	n, err := f.Encode(buf)
	require.NoError(t, err)
	assert.Equal(t, f.Length(), n)

	got, err := kmm.Decode(buf)
	require.NoError(t, err)
	return got
}

func TestModifyKeyCmdRoundTrip(t *testing.T) {
	f := kmm.ModifyKeyCmdFrame{
		Hdr:        baseHeader(),
		DecryptFmt: kmm.DecryptInfoMI,
		AlgID:      0x81,
		KeyID:      0x1122,
		Keyset: kmm.Keyset{
			KeysetID:  1,
			AlgID:     0x81,
			KeyLength: 4,
			Keys: []kmm.Key{
				{Format: 1, SLN: 100, KeyID: 200, Material: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
				{Format: 1, SLN: 101, KeyID: 201, Material: []byte{1, 2, 3, 4}},
			},
		},
	}

	assert.Equal(t, kmm.HeaderLength+4+kmm.MIBytes+4+2*9, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.ModifyKeyCmdFrame)
	require.True(t, ok)
	assert.Equal(t, f.AlgID, gf.AlgID)
	assert.Equal(t, f.KeyID, gf.KeyID)
	assert.Equal(t, f.Keyset, gf.Keyset)
	assert.True(t, gf.Header().Complete)
}

func TestInventoryCmdRoundTrip(t *testing.T) {
	f := kmm.InventoryCmdFrame{Hdr: baseHeader(), Type: kmm.ListActiveKeyIDs}
	assert.Equal(t, 10, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.InventoryCmdFrame)
	require.True(t, ok)
	assert.Equal(t, f.Type, gf.Type)
}

func TestInventoryRspKeysetIDsRoundTrip(t *testing.T) {
	f := kmm.InventoryRspFrame{
		Hdr:       baseHeader(),
		Type:      kmm.ListActiveKeysetIDs,
		KeysetIDs: []uint8{1, 2, 3},
	}
	assert.Equal(t, 12+3, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.InventoryRspFrame)
	require.True(t, ok)
	assert.Equal(t, f.KeysetIDs, gf.KeysetIDs)
}

func TestInventoryRspKeyIDsRoundTrip(t *testing.T) {
	f := kmm.InventoryRspFrame{
		Hdr:         baseHeader(),
		Type:        kmm.ListActiveKeyIDs,
		KeyKeysetID: 1,
		KeyAlgID:    0x81,
		KeyIDs:      []uint16{10, 20, 30},
	}
	assert.Equal(t, 12+3+6, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.InventoryRspFrame)
	require.True(t, ok)
	assert.Equal(t, f.KeyIDs, gf.KeyIDs)
	assert.Equal(t, f.KeyKeysetID, gf.KeyKeysetID)
	assert.Equal(t, f.KeyAlgID, gf.KeyAlgID)
}

func TestRegistrationRoundTrip(t *testing.T) {
	f := kmm.RegistrationFrame{Hdr: baseHeader(), Deregister: false, BodyFormat: 1, KMFRSI: 0x00FEDC}
	assert.Equal(t, 13, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.RegistrationFrame)
	require.True(t, ok)
	assert.Equal(t, f.KMFRSI, gf.KMFRSI)
	assert.False(t, gf.Deregister)

	d := kmm.RegistrationFrame{Hdr: baseHeader(), Deregister: true, KMFRSI: 1}
	got2 := roundTrip(t, d)
	gd, ok := got2.(kmm.RegistrationFrame)
	require.True(t, ok)
	assert.True(t, gd.Deregister)
}

func TestRegistrationRspRoundTrip(t *testing.T) {
	f := kmm.RegistrationRspFrame{Hdr: baseHeader(), Status: 0}
	assert.Equal(t, 10, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.RegistrationRspFrame)
	require.True(t, ok)
	assert.Equal(t, f.Status, gf.Status)
}

func TestHelloRoundTrip(t *testing.T) {
	f := kmm.HelloFrame{Hdr: baseHeader(), Flag: 1}
	assert.Equal(t, 10, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.HelloFrame)
	require.True(t, ok)
	assert.Equal(t, f.Flag, gf.Flag)
}

func TestHeaderOnlyFrames(t *testing.T) {
	for _, id := range []kmm.MessageID{kmm.NoService, kmm.Zeroize} {
		hdr := baseHeader()
		hdr.MessageID = id
		f := kmm.HeaderOnlyFrame{Hdr: hdr}
		assert.Equal(t, 9, f.Length())

		buf := make([]byte, f.Length())
		_, err := f.Encode(buf)
		require.NoError(t, err)

		got, err := kmm.Decode(buf)
		require.NoError(t, err)
		gf, ok := got.(kmm.HeaderOnlyFrame)
		require.True(t, ok)
		assert.Equal(t, id, gf.Header().MessageID)
	}
}

func TestNakRoundTrip(t *testing.T) {
	f := kmm.NakFrame{Hdr: baseHeader(), ReferencedMessageID: kmm.RegCmd, MessageNo: 42, Status: 7}
	assert.Equal(t, 13, f.Length())

	got := roundTrip(t, f)
	gf, ok := got.(kmm.NakFrame)
	require.True(t, ok)
	assert.Equal(t, f.ReferencedMessageID, gf.ReferencedMessageID)
	assert.Equal(t, f.MessageNo, gf.MessageNo)
	assert.Equal(t, f.Status, gf.Status)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := kmm.Decode(make([]byte, 3))
	require.ErrorIs(t, err, kmm.ErrShortFrame)
}

func TestDecodeUnknownMessageID(t *testing.T) {
	buf := make([]byte, kmm.HeaderLength)
	buf[0] = 0xFF
	_, err := kmm.Decode(buf)
	require.ErrorIs(t, err, kmm.ErrUnknownMessageID)
}
