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

// Package kmm implements the P25 Key Management Message frame family as a
// tagged sum with a decode factory, replacing the source's virtual
// decode/encode dispatch (see the design notes on dynamic dispatch).
package kmm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLength is the size in bytes of the common KMM header.
const HeaderLength = 9

// MessageID identifies the concrete KMM frame variant.
type MessageID uint8

const (
	ModifyKeyCmd MessageID = 0x01
	InventoryCmd MessageID = 0x02
	InventoryRsp MessageID = 0x03
	RegCmd       MessageID = 0x04
	RegRsp       MessageID = 0x05
	DeregCmd     MessageID = 0x06
	DeregRsp     MessageID = 0x07
	Hello        MessageID = 0x08
	NoService    MessageID = 0x09
	Zeroize      MessageID = 0x0A
	NegativeAck  MessageID = 0x0B
)

// ResponseKind is the KMM response-kind field.
type ResponseKind uint8

const (
	RespNone      ResponseKind = 0
	RespDelayed   ResponseKind = 1
	RespImmediate ResponseKind = 2
)

var (
	// ErrShortFrame is returned when a buffer is too small for its declared
	// or minimum variant length.
	ErrShortFrame = errors.New("kmm: buffer too short")
	// ErrUnknownMessageID is returned by Decode for an unrecognized message id.
	ErrUnknownMessageID = errors.New("kmm: unknown message id")
)

// Header is the 9-byte header common to every KMM frame: message id, total
// message length, response kind, 24-bit destination LLID, and a 16-bit
// source LLID. The complete-flag is packed into bit 7 of the response-kind
// byte. The source's internal message-number/MAC pair is not part of the
// wire encoding (it exists only to correlate in-flight requests with
// replies) and is carried out-of-band by the RPC/session layer, not by this
// codec.
type Header struct {
	MessageID   MessageID
	Length      uint16
	RespKind    ResponseKind
	Complete    bool
	DstLLID     uint32 // 24-bit
	SrcLLID     uint32 // 16-bit on this wire path
}

func (h Header) encode(dst []byte) {
	dst[0] = byte(h.MessageID)
	binary.BigEndian.PutUint16(dst[1:3], h.Length)
	rk := byte(h.RespKind) & 0x7F
	if h.Complete {
		rk |= 0x80
	}
	dst[3] = rk
	dst[4] = byte(h.DstLLID >> 16)
	dst[5] = byte(h.DstLLID >> 8)
	dst[6] = byte(h.DstLLID)
	binary.BigEndian.PutUint16(dst[7:9], uint16(h.SrcLLID))
}

func decodeHeader(src []byte) (Header, error) {
	if len(src) < HeaderLength {
		return Header{}, ErrShortFrame
	}
	var h Header
	h.MessageID = MessageID(src[0])
	h.Length = binary.BigEndian.Uint16(src[1:3])
	h.RespKind = ResponseKind(src[3] & 0x7F)
	h.Complete = src[3]&0x80 != 0
	h.DstLLID = uint32(src[4])<<16 | uint32(src[5])<<8 | uint32(src[6])
	h.SrcLLID = uint32(binary.BigEndian.Uint16(src[7:9]))
	return h, nil
}

// Frame is implemented by every concrete KMM frame variant.
type Frame interface {
	Header() Header
	// Length returns the total encoded length of this frame in bytes.
	Length() int
	// Encode writes the frame to dst, which must be at least Length() bytes.
	Encode(dst []byte) (int, error)
}

// Decode reads the message id from data[0] and dispatches to the matching
// variant decoder, returning a tagged Frame value. This is the factory
// called out in the design notes in place of virtual decode/encode.
func Decode(data []byte) (Frame, error) {
	if len(data) < HeaderLength {
		return nil, ErrShortFrame
	}
	hdr, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	switch hdr.MessageID {
	case ModifyKeyCmd:
		return decodeModifyKey(hdr, data)
	case InventoryCmd:
		return decodeInventoryCmd(hdr, data)
	case InventoryRsp:
		return decodeInventoryRsp(hdr, data)
	case RegCmd, DeregCmd:
		return decodeRegistration(hdr, data)
	case RegRsp, DeregRsp:
		return decodeRegistrationResponse(hdr, data)
	case Hello:
		return decodeHello(hdr, data)
	case NoService, Zeroize:
		return decodeHeaderOnly(hdr, data)
	case NegativeAck:
		return decodeNak(hdr, data)
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownMessageID, hdr.MessageID)
	}
}
