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

package router

import (
	"errors"
	"time"

	"github.com/dvm-project/fne/internal/affiliation"
	"github.com/dvm-project/fne/internal/frame/rtpfne"
	"github.com/dvm-project/fne/internal/lookup"
	"github.com/dvm-project/fne/internal/transport"
)

// DMR frame/data type values, matching the bit-packed byte the reference
// HomeBrew repeater protocol carries at the head of every DMRD payload:
// high bit is the timeslot, the next is "not a group call", the following
// two are the frame type, and the low nibble is the data type (for a voice
// header/terminator) or the embedded voice sequence number.
const (
	dmrFrameVoice     = 0x0
	dmrFrameVoiceSync = 0x1
	dmrFrameDataSync  = 0x2

	dmrDTypeVoiceHead = 0x1
	dmrDTypeVoiceTerm = 0x2
)

// dmrParrotDest and dmrUnlinkDest are the conventional reserved talkgroup
// ids used across DVM-FNE deployments: 9990 loops a call back to its
// originator, and a group call to 4000 clears every group affiliation held
// in the router's grant engine.
const (
	dmrParrotDest = 9990
	dmrUnlinkDest = 4000
)

// dmrPayloadLength is the minimum size of a DMR router payload: a 1-byte
// bit-packed header, two 24-bit addresses, and a 33-byte voice/data frame.
const dmrPayloadLength = 1 + 3 + 3 + 33

var errShortDMRPayload = errors.New("router: dmr payload shorter than expected")

// dmrFields is the addressing and framing information a DMR payload carries
// ahead of the opaque voice/data bytes.
type dmrFields struct {
	dstID     uint32
	srcID     uint32
	slot      uint8
	groupCall bool
	frameType uint8
	dataType  uint8
}

func decodeDMR(payload []byte) (dmrFields, error) {
	if len(payload) < dmrPayloadLength {
		return dmrFields{}, errShortDMRPayload
	}
	bits := payload[0]
	f := dmrFields{
		slot:      0,
		groupCall: bits&0x40 == 0,
		frameType: (bits & 0x30) >> 4,
		dataType:  bits & 0x0F,
		srcID:     uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3]),
		dstID:     uint32(payload[4])<<16 | uint32(payload[5])<<8 | uint32(payload[6]),
	}
	if bits&0x80 != 0 {
		f.slot = 1
	}
	return f, nil
}

func isDMREndOfCall(payload []byte) bool {
	f, err := decodeDMR(payload)
	if err != nil {
		return false
	}
	return f.frameType == dmrFrameDataSync && f.dataType == dmrDTypeVoiceTerm
}

// rewriteDMRSlot rewrites the destination id at payload[4:7] to the rule's
// target TGID and flips the slot marker bit (bit 7 of the header byte) to
// match the target slot, leaving everything else intact. payload is the
// engine's private per-call copy, safe to mutate in place.
func rewriteDMRSlot(payload []byte, target lookup.RewriteTarget) []byte {
	if len(payload) < dmrPayloadLength {
		return payload
	}
	if target.ToSlot == 1 {
		payload[0] |= 0x80
	} else {
		payload[0] &^= 0x80
	}
	writeDstID24(payload, 4, target.ToTGID)
	return payload
}

// DMRRouter is the DMR traffic router: the shared Engine bound to DMR's
// payload framing and reserved destinations.
type DMRRouter struct {
	*Engine
}

// NewDMR creates a DMR traffic router.
func NewDMR(queue *transport.FrameQueue, rules *lookup.TalkgroupTable, peers PeerDirectory, grants *affiliation.Engine, callTimeout time.Duration) *DMRRouter {
	return &DMRRouter{
		Engine: New("dmr", queue, rules, peers, grants, rewriteDMRSlot, isDMREndOfCall, dmrParrotDest, dmrUnlinkDest, callTimeout),
	}
}

// Process decodes a DMR frame's addressing from payload and routes it.
func (r *DMRRouter) Process(srcPeerID uint32, hdr rtpfne.Header, payload []byte) (int, error) {
	f, err := decodeDMR(payload)
	if err != nil {
		return 0, err
	}
	callType := GroupVoice
	if !f.groupCall {
		callType = PrivateVoice
	}
	return r.Route(srcPeerID, f.dstID, f.srcID, f.slot, callType, hdr, payload)
}
