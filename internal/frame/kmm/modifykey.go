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

package kmm

import "encoding/binary"

// DecryptInfoFormat selects whether a ModifyKey frame carries a message
// indicator ahead of its keyset.
type DecryptInfoFormat uint8

const (
	DecryptInfoNone DecryptInfoFormat = 0
	DecryptInfoMI   DecryptInfoFormat = 1
)

// MIBytes is the length in bytes of a message indicator.
const MIBytes = 9

// Key is a single keyset entry: a format tag, storage location number, key
// id, and the key material itself.
type Key struct {
	Format uint8
	SLN    uint16
	KeyID  uint16
	Material []byte
}

func (k Key) length() int {
	return 5 + len(k.Material)
}

// Keyset bundles one or more keys for a given algorithm under a keyset id.
type Keyset struct {
	KeysetID  uint8
	AlgID     uint8
	KeyLength uint8
	Keys      []Key
}

func (ks Keyset) length() int {
	n := 4
	for _, k := range ks.Keys {
		n += k.length()
	}
	return n
}

// ModifyKeyCmdFrame loads or replaces a keyset on a remote unit.
type ModifyKeyCmdFrame struct {
	Hdr          Header
	DecryptFmt   DecryptInfoFormat
	AlgID        uint8
	KeyID        uint16
	MI           [MIBytes]byte
	Keyset       Keyset
}

func decodeModifyKey(hdr Header, data []byte) (Frame, error) {
	off := HeaderLength
	if len(data) < off+4 {
		return nil, ErrShortFrame
	}
	f := ModifyKeyCmdFrame{Hdr: hdr}
	f.DecryptFmt = DecryptInfoFormat(data[off])
	f.AlgID = data[off+1]
	f.KeyID = binary.BigEndian.Uint16(data[off+2 : off+4])
	off += 4

	if f.DecryptFmt == DecryptInfoMI {
		if len(data) < off+MIBytes {
			return nil, ErrShortFrame
		}
		copy(f.MI[:], data[off:off+MIBytes])
		off += MIBytes
	}

	if len(data) < off+4 {
		return nil, ErrShortFrame
	}
	f.Keyset.KeysetID = data[off]
	f.Keyset.AlgID = data[off+1]
	f.Keyset.KeyLength = data[off+2]
	keyCount := int(data[off+3])
	off += 4

	f.Keyset.Keys = make([]Key, 0, keyCount)
	for i := 0; i < keyCount; i++ {
		if len(data) < off+5+int(f.Keyset.KeyLength) {
			return nil, ErrShortFrame
		}
		var k Key
		k.Format = data[off]
		k.SLN = binary.BigEndian.Uint16(data[off+1 : off+3])
		k.KeyID = binary.BigEndian.Uint16(data[off+3 : off+5])
		k.Material = append([]byte(nil), data[off+5:off+5+int(f.Keyset.KeyLength)]...)
		off += 5 + int(f.Keyset.KeyLength)
		f.Keyset.Keys = append(f.Keyset.Keys, k)
	}

	return f, nil
}

func (f ModifyKeyCmdFrame) Header() Header { return f.Hdr }

func (f ModifyKeyCmdFrame) Length() int {
	n := HeaderLength + 4
	if f.DecryptFmt == DecryptInfoMI {
		n += MIBytes
	}
	n += f.Keyset.length()
	return n
}

func (f ModifyKeyCmdFrame) Encode(dst []byte) (int, error) {
	n := f.Length()
	if len(dst) < n {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	hdr.MessageID = ModifyKeyCmd
	hdr.Length = uint16(n)
	hdr.encode(dst)

	off := HeaderLength
	dst[off] = byte(f.DecryptFmt)
	dst[off+1] = f.AlgID
	binary.BigEndian.PutUint16(dst[off+2:off+4], f.KeyID)
	off += 4

	if f.DecryptFmt == DecryptInfoMI {
		copy(dst[off:off+MIBytes], f.MI[:])
		off += MIBytes
	}

	dst[off] = f.Keyset.KeysetID
	dst[off+1] = f.Keyset.AlgID
	dst[off+2] = f.Keyset.KeyLength
	dst[off+3] = uint8(len(f.Keyset.Keys))
	off += 4

	for _, k := range f.Keyset.Keys {
		dst[off] = k.Format
		binary.BigEndian.PutUint16(dst[off+1:off+3], k.SLN)
		binary.BigEndian.PutUint16(dst[off+3:off+5], k.KeyID)
		copy(dst[off+5:off+5+len(k.Material)], k.Material)
		off += 5 + len(k.Material)
	}

	return n, nil
}
