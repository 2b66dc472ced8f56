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
	"sync"

	"github.com/dvm-project/fne/internal/frame/rtpfne"
)

// ParrotFrame is one recorded frame of a parrot loopback stream.
type ParrotFrame struct {
	Header    rtpfne.Header
	Payload   []byte
	EndOfCall bool
}

// parrotBuffer records frames sent to the parrot destination, keyed by
// stream id, for later replay back to the originator.
type parrotBuffer struct {
	mu      sync.Mutex
	streams map[uint32][]ParrotFrame
}

func newParrotBuffer() *parrotBuffer {
	return &parrotBuffer{streams: make(map[uint32][]ParrotFrame)}
}

func (p *parrotBuffer) record(streamID uint32, hdr rtpfne.Header, payload []byte, endOfCall bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := append([]byte(nil), payload...)
	p.streams[streamID] = append(p.streams[streamID], ParrotFrame{Header: hdr, Payload: cp, EndOfCall: endOfCall})
}

// take returns and forgets every frame recorded for streamID.
func (p *parrotBuffer) take(streamID uint32) []ParrotFrame {
	p.mu.Lock()
	defer p.mu.Unlock()
	frames := p.streams[streamID]
	delete(p.streams, streamID)
	return frames
}
