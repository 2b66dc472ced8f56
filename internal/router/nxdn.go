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

// NXDN message types carried in the lead byte of a router payload.
const (
	nxdnMsgVoiceHead = 0x01
	nxdnMsgVoice     = 0x02
	nxdnMsgTerm      = 0x08
)

// nxdnPayloadLength is the minimum size of an NXDN router payload: a
// message-type byte, two 24-bit addresses, and a group-call flag byte
// ahead of the opaque AMBE frame bytes.
const nxdnPayloadLength = 1 + 3 + 3 + 1

var errShortNXDNPayload = errors.New("router: nxdn payload shorter than expected")

type nxdnFields struct {
	msgType   uint8
	dstID     uint32
	srcID     uint32
	groupCall bool
}

func decodeNXDN(payload []byte) (nxdnFields, error) {
	if len(payload) < nxdnPayloadLength {
		return nxdnFields{}, errShortNXDNPayload
	}
	return nxdnFields{
		msgType:   payload[0],
		dstID:     uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3]),
		srcID:     uint32(payload[4])<<16 | uint32(payload[5])<<8 | uint32(payload[6]),
		groupCall: payload[7] == 0,
	}, nil
}

func isNXDNEndOfCall(payload []byte) bool {
	f, err := decodeNXDN(payload)
	if err != nil {
		return false
	}
	return f.msgType == nxdnMsgTerm
}

// rewriteNXDN rewrites the destination id at payload[1:4] to the rule's
// target TGID. NXDN carries no DMR-style timeslot, so ToSlot is ignored.
// payload is the engine's private per-call copy, safe to mutate in place.
func rewriteNXDN(payload []byte, target lookup.RewriteTarget) []byte {
	if len(payload) < nxdnPayloadLength {
		return payload
	}
	writeDstID24(payload, 1, target.ToTGID)
	return payload
}

// NXDNRouter is the NXDN traffic router.
type NXDNRouter struct {
	*Engine
}

// NewNXDN creates an NXDN traffic router.
func NewNXDN(queue *transport.FrameQueue, rules *lookup.TalkgroupTable, peers PeerDirectory, grants *affiliation.Engine, callTimeout time.Duration) *NXDNRouter {
	return &NXDNRouter{
		Engine: New("nxdn", queue, rules, peers, grants, rewriteNXDN, isNXDNEndOfCall, dmrParrotDest, dmrUnlinkDest, callTimeout),
	}
}

// Process decodes an NXDN frame's addressing from payload and routes it.
// NXDN has no timeslot, so the rule lookup always uses slot 0.
func (r *NXDNRouter) Process(srcPeerID uint32, hdr rtpfne.Header, payload []byte) (int, error) {
	f, err := decodeNXDN(payload)
	if err != nil {
		return 0, err
	}
	callType := GroupVoice
	if !f.groupCall {
		callType = PrivateVoice
	}
	return r.Route(srcPeerID, f.dstID, f.srcID, 0, callType, hdr, payload)
}
