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

// InventoryType selects what an Inventory exchange enumerates.
type InventoryType uint8

const (
	ListActiveKeysetIDs InventoryType = 1
	ListActiveKeyIDs    InventoryType = 2
)

// InventoryCmdFrame requests an inventory listing from a remote unit.
type InventoryCmdFrame struct {
	Hdr  Header
	Type InventoryType
}

func decodeInventoryCmd(hdr Header, data []byte) (Frame, error) {
	if len(data) < HeaderLength+1 {
		return nil, ErrShortFrame
	}
	return InventoryCmdFrame{Hdr: hdr, Type: InventoryType(data[HeaderLength])}, nil
}

func (f InventoryCmdFrame) Header() Header { return f.Hdr }
func (f InventoryCmdFrame) Length() int    { return HeaderLength + 1 }

func (f InventoryCmdFrame) Encode(dst []byte) (int, error) {
	n := f.Length()
	if len(dst) < n {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	hdr.MessageID = InventoryCmd
	hdr.Length = uint16(n)
	hdr.encode(dst)
	dst[HeaderLength] = byte(f.Type)
	return n, nil
}

// InventoryRspFrame answers an InventoryCmdFrame. Exactly one of
// KeysetIDs/KeyIDs is populated depending on Type.
type InventoryRspFrame struct {
	Hdr       Header
	Type      InventoryType
	KeysetIDs []uint8

	KeyAlgID uint8
	KeyIDs   []uint16
	KeyKeysetID uint8
}

const inventoryRspHeaderLength = HeaderLength + 3

func decodeInventoryRsp(hdr Header, data []byte) (Frame, error) {
	if len(data) < inventoryRspHeaderLength {
		return nil, ErrShortFrame
	}
	f := InventoryRspFrame{Hdr: hdr}
	off := HeaderLength
	f.Type = InventoryType(data[off])
	count := int(binary.BigEndian.Uint16(data[off+1 : off+3]))
	off += 3

	switch f.Type {
	case ListActiveKeysetIDs:
		if len(data) < off+count {
			return nil, ErrShortFrame
		}
		f.KeysetIDs = append([]uint8(nil), data[off:off+count]...)
	case ListActiveKeyIDs:
		if len(data) < off+3 {
			return nil, ErrShortFrame
		}
		f.KeyKeysetID = data[off]
		f.KeyAlgID = data[off+1]
		n := int(data[off+2])
		off += 3
		if len(data) < off+2*n {
			return nil, ErrShortFrame
		}
		f.KeyIDs = make([]uint16, n)
		for i := 0; i < n; i++ {
			f.KeyIDs[i] = binary.BigEndian.Uint16(data[off+2*i : off+2*i+2])
		}
	}

	return f, nil
}

func (f InventoryRspFrame) Header() Header { return f.Hdr }

func (f InventoryRspFrame) Length() int {
	switch f.Type {
	case ListActiveKeysetIDs:
		return inventoryRspHeaderLength + len(f.KeysetIDs)
	case ListActiveKeyIDs:
		return inventoryRspHeaderLength + 3 + 2*len(f.KeyIDs)
	default:
		return inventoryRspHeaderLength
	}
}

func (f InventoryRspFrame) Encode(dst []byte) (int, error) {
	n := f.Length()
	if len(dst) < n {
		return 0, ErrShortFrame
	}
	hdr := f.Hdr
	hdr.MessageID = InventoryRsp
	hdr.Length = uint16(n)
	hdr.encode(dst)

	off := HeaderLength
	dst[off] = byte(f.Type)

	switch f.Type {
	case ListActiveKeysetIDs:
		binary.BigEndian.PutUint16(dst[off+1:off+3], uint16(len(f.KeysetIDs)))
		copy(dst[off+3:], f.KeysetIDs)
	case ListActiveKeyIDs:
		binary.BigEndian.PutUint16(dst[off+1:off+3], uint16(len(f.KeyIDs)))
		off += 3
		dst[off] = f.KeyKeysetID
		dst[off+1] = f.KeyAlgID
		dst[off+2] = uint8(len(f.KeyIDs))
		off += 3
		for i, id := range f.KeyIDs {
			binary.BigEndian.PutUint16(dst[off+2*i:off+2*i+2], id)
		}
	}

	return n, nil
}
