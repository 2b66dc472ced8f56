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

// Package rpcwire encodes and decodes the administrative RPC sub-protocol's
// 8-byte header: a CRC-16-CCITT checksum, a 16-bit function field carrying a
// 14-bit opcode plus a reply marker bit, and a 32-bit payload length. The
// payload itself is NUL-terminated JSON, optionally AES-wrapped by the
// transport layer using a key derived from SHA-256(password).
package rpcwire

import (
	"encoding/binary"
	"errors"
)

// HeaderLength is the size in bytes of the RPC header.
const HeaderLength = 8

// replyBit marks a function field as carrying a reply rather than a request.
const replyBit = uint16(1) << 15

// opcodeMask isolates the 14-bit opcode from the function field.
const opcodeMask = uint16(0x3FFF)

var (
	// ErrShortHeader is returned when a buffer is too small to contain an
	// RPC header.
	ErrShortHeader = errors.New("rpcwire: buffer shorter than header")
	// ErrShortPayload is returned when a buffer's declared length exceeds
	// the bytes actually available.
	ErrShortPayload = errors.New("rpcwire: buffer shorter than declared payload length")
	// ErrChecksum is returned when a decoded frame's CRC does not match its
	// payload.
	ErrChecksum = errors.New("rpcwire: checksum mismatch")
)

// Header is the fixed 8-byte RPC frame header.
type Header struct {
	Opcode uint16
	Reply  bool
	Length uint32
}

func (h Header) function() uint16 {
	f := h.Opcode & opcodeMask
	if h.Reply {
		f |= replyBit
	}
	return f
}

// Encode writes a full RPC frame (header + payload) into dst, computing the
// CRC-16-CCITT over the payload bytes only, per spec.md section 4.7's "CRC-16
// … over the serialized JSON bytes (including terminating NUL)".
func (h Header) Encode(dst []byte, payload []byte) (int, error) {
	total := HeaderLength + len(payload)
	if len(dst) < total {
		return 0, ErrShortHeader
	}

	binary.BigEndian.PutUint16(dst[2:4], h.function())
	binary.BigEndian.PutUint32(dst[4:8], uint32(len(payload)))
	copy(dst[HeaderLength:total], payload)

	crc := CRC16CCITT(dst[HeaderLength:total])
	binary.BigEndian.PutUint16(dst[0:2], crc)

	return total, nil
}

// Decode parses an RPC frame from src, verifies its checksum, and returns
// the header and payload slice.
func Decode(src []byte) (Header, []byte, error) {
	if len(src) < HeaderLength {
		return Header{}, nil, ErrShortHeader
	}

	crc := binary.BigEndian.Uint16(src[0:2])
	function := binary.BigEndian.Uint16(src[2:4])
	length := binary.BigEndian.Uint32(src[4:8])

	total := HeaderLength + int(length)
	if len(src) < total {
		return Header{}, nil, ErrShortPayload
	}

	if got := CRC16CCITT(src[HeaderLength:total]); got != crc {
		return Header{}, nil, ErrChecksum
	}

	h := Header{
		Opcode: function & opcodeMask,
		Reply:  function&replyBit != 0,
		Length: length,
	}
	return h, src[HeaderLength:total], nil
}

// ReplyOpcode returns the opcode with the reply bit set, the function-field
// value a reply to opcode carries on the wire.
func ReplyOpcode(opcode uint16) uint16 {
	return opcode | replyBit
}

// CRC16CCITT computes the CRC-16/CCITT-FALSE checksum (polynomial 0x1021,
// initial value 0xFFFF, no input/output reflection) used to guard RPC
// frames.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
