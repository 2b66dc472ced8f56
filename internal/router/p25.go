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

// P25 DUID (Data Unit Identifier) values, naming the voice/control/trunking
// unit carried by the frame.
const (
	p25DUIDHDU   = 0x00
	p25DUIDTDU   = 0x03
	p25DUIDLDU1  = 0x05
	p25DUIDPDU   = 0x06
	p25DUITSDU   = 0x07
	p25DUIDLDU2  = 0x0A
	p25DUIDTDULC = 0x0F
)

// p25LCOCallTerm is the Link Control Opcode marking a TDULC as call
// termination, the P25 analogue of a DMR voice terminator.
const p25LCOCallTerm = 0x2F

// p25PrivateFlag marks a unit-to-unit (rather than group) call; it is
// carried in the high bit of the LCO byte since P25's own LCO field never
// sets it.
const p25PrivateFlag = 0x80

// p25PayloadLength is the minimum size of a P25 router payload: DUID, two
// 24-bit addresses, and an LCO/flags byte ahead of the opaque IMBE/TSBK
// frame bytes.
const p25PayloadLength = 1 + 3 + 3 + 1

var errShortP25Payload = errors.New("router: p25 payload shorter than expected")

type p25Fields struct {
	duid      uint8
	dstID     uint32
	srcID     uint32
	lco       uint8
	groupCall bool
}

func decodeP25(payload []byte) (p25Fields, error) {
	if len(payload) < p25PayloadLength {
		return p25Fields{}, errShortP25Payload
	}
	flags := payload[7]
	return p25Fields{
		duid:      payload[0],
		dstID:     uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3]),
		srcID:     uint32(payload[4])<<16 | uint32(payload[5])<<8 | uint32(payload[6]),
		lco:       flags &^ p25PrivateFlag,
		groupCall: flags&p25PrivateFlag == 0,
	}, nil
}

func isP25EndOfCall(payload []byte) bool {
	f, err := decodeP25(payload)
	if err != nil {
		return false
	}
	return f.duid == p25DUIDTDU || (f.duid == p25DUIDTDULC && f.lco == p25LCOCallTerm)
}

// rewriteP25 rewrites the destination id at payload[1:4] to the rule's
// target TGID. P25 carries no DMR-style timeslot, so ToSlot is ignored.
// payload is the engine's private per-call copy, safe to mutate in place.
func rewriteP25(payload []byte, target lookup.RewriteTarget) []byte {
	if len(payload) < p25PayloadLength {
		return payload
	}
	writeDstID24(payload, 1, target.ToTGID)
	return payload
}

// P25Router is the P25 traffic router.
type P25Router struct {
	*Engine
}

// NewP25 creates a P25 traffic router.
func NewP25(queue *transport.FrameQueue, rules *lookup.TalkgroupTable, peers PeerDirectory, grants *affiliation.Engine, callTimeout time.Duration) *P25Router {
	return &P25Router{
		Engine: New("p25", queue, rules, peers, grants, rewriteP25, isP25EndOfCall, dmrParrotDest, dmrUnlinkDest, callTimeout),
	}
}

// Process decodes a P25 frame's addressing from payload and routes it. P25
// has no timeslot, so the rule lookup always uses slot 0.
func (r *P25Router) Process(srcPeerID uint32, hdr rtpfne.Header, payload []byte) (int, error) {
	f, err := decodeP25(payload)
	if err != nil {
		return 0, err
	}
	callType := GroupVoice
	if !f.groupCall {
		callType = PrivateVoice
	}
	return r.Route(srcPeerID, f.dstID, f.srcID, 0, callType, hdr, payload)
}
