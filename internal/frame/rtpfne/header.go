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

// Package rtpfne encodes and decodes the 23-byte composite header that
// prefixes every FNE datagram: a 12-byte RTP-like header followed by an
// 11-byte FNE extension header.
package rtpfne

import (
	"encoding/binary"
	"errors"
)

// RTPHeaderLength is the size in bytes of the RTP-like header.
const RTPHeaderLength = 12

// FNEHeaderLength is the size in bytes of the FNE extension header.
const FNEHeaderLength = 11

// HeaderLength is the combined size of the composite header.
const HeaderLength = RTPHeaderLength + FNEHeaderLength

// EndOfCallSequence is the reserved RTP sequence value marking end-of-call.
// It never participates in sequence wraparound arithmetic.
const EndOfCallSequence uint16 = 0xFFFF

// RTPVersion is the fixed RTP version carried on the wire.
const RTPVersion = 2

// ErrShortHeader is returned when a buffer is too small to contain a
// composite header.
var ErrShortHeader = errors.New("rtpfne: buffer shorter than composite header")

// Function is the FNE function opcode (8-bit).
type Function uint8

// FNE function opcodes, per the wire format table.
const (
	FuncProtocol    Function = 0x00
	FuncMaster      Function = 0x01
	FuncInCallCtrl  Function = 0x02
	FuncKeyRsp      Function = 0x03
	FuncRPTL        Function = 0x04
	FuncRPTK        Function = 0x05
	FuncRPTC        Function = 0x06
	FuncRPTPing     Function = 0x07
	FuncPong        Function = 0x08
	FuncMasterDisc  Function = 0x09
	FuncRptDisc     Function = 0x0A
	FuncACK         Function = 0x0B
	FuncNAK         Function = 0x0C
	FuncTransfer    Function = 0x0D
)

// SubFunction identifies the LMR protocol carried by a PROTOCOL frame, or the
// kind of TRANSFER line carried by a diagnostics frame.
type SubFunction uint8

const (
	SubProtoDMR  SubFunction = 0
	SubProtoP25  SubFunction = 1
	SubProtoNXDN SubFunction = 2

	SubTransferActivity   SubFunction = 1
	SubTransferDiagnostic SubFunction = 2
)

// RTPHeader is the 12-byte RTP-like header.
type RTPHeader struct {
	Version   uint8
	PayloadType uint8
	Sequence  uint16
	Timestamp uint32
	SSRC      uint32 // the remote peer id once a session is established
}

// FNEHeader is the 11-byte FNE extension header.
type FNEHeader struct {
	Function    Function
	SubFunction SubFunction
	PeerID      uint32
	StreamID    uint32
}

// Header is the full composite header attached to every FNE datagram.
type Header struct {
	RTP RTPHeader
	FNE FNEHeader
}

// Encode writes the composite header into dst, which must be at least
// HeaderLength bytes, and returns the number of bytes written.
func (h Header) Encode(dst []byte) (int, error) {
	if len(dst) < HeaderLength {
		return 0, ErrShortHeader
	}

	dst[0] = (RTPVersion << 6)
	dst[1] = h.RTP.PayloadType
	binary.BigEndian.PutUint16(dst[2:4], h.RTP.Sequence)
	binary.BigEndian.PutUint32(dst[4:8], h.RTP.Timestamp)
	binary.BigEndian.PutUint32(dst[8:12], h.RTP.SSRC)

	dst[12] = byte(h.FNE.Function)
	dst[13] = byte(h.FNE.SubFunction)
	binary.BigEndian.PutUint32(dst[14:18], h.FNE.PeerID)
	binary.BigEndian.PutUint32(dst[18:22], h.FNE.StreamID)
	dst[22] = 0 // reserved

	return HeaderLength, nil
}

// Decode parses the composite header from src and returns the remaining
// payload bytes (everything after the 23-byte header).
func Decode(src []byte) (Header, []byte, error) {
	if len(src) < HeaderLength {
		return Header{}, nil, ErrShortHeader
	}

	var h Header
	h.RTP.Version = src[0] >> 6
	h.RTP.PayloadType = src[1]
	h.RTP.Sequence = binary.BigEndian.Uint16(src[2:4])
	h.RTP.Timestamp = binary.BigEndian.Uint32(src[4:8])
	h.RTP.SSRC = binary.BigEndian.Uint32(src[8:12])

	h.FNE.Function = Function(src[12])
	h.FNE.SubFunction = SubFunction(src[13])
	h.FNE.PeerID = binary.BigEndian.Uint32(src[14:18])
	h.FNE.StreamID = binary.BigEndian.Uint32(src[18:22])

	return h, src[HeaderLength:], nil
}

// NextSequence returns the sequence that should follow seq on an outbound
// stream, applying the spec's wraparound and end-of-call discipline: 0xFFFF
// is reserved and never returned, and the sequence after 0xFFFE wraps to 1,
// skipping both 0xFFFF and 0.
func NextSequence(seq uint16) uint16 {
	if seq == EndOfCallSequence-1 {
		// wrapping into the reserved marker is skipped; go straight to reset
		return 1
	}
	next := seq + 1
	if next == EndOfCallSequence {
		return 1
	}
	return next
}

// SeqGap computes the modular forward distance from b to a on a 16-bit
// sequence space, per spec.md's "gap = (a - b) & 0xFFFF" rule. Direct
// subtraction would mis-detect wraparound near 0xFFFF.
func SeqGap(a, b uint16) uint16 {
	return (a - b) & 0xFFFF
}
