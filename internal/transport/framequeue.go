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

package transport

import (
	"fmt"
	"sync"

	"github.com/dvm-project/fne/internal/frame/rtpfne"
)

// FrameQueue sits on top of a RawQueue, attaching the RTP+FNE composite
// header to outbound payloads and tracking each outbound stream's next
// sequence number so callers never have to reason about wraparound
// themselves.
type FrameQueue struct {
	raw *RawQueue

	mu   sync.Mutex
	next map[uint32]uint16 // stream id -> next outbound sequence
}

// NewFrameQueue creates a FrameQueue backed by a RawQueue bounded to
// maxDepth datagrams per destination key.
func NewFrameQueue(maxDepth int) *FrameQueue {
	return &FrameQueue{
		raw:  NewRawQueue(maxDepth),
		next: make(map[uint32]uint16),
	}
}

// OnDepthChanged forwards to the underlying RawQueue.
func (f *FrameQueue) OnDepthChanged(fn DepthObserver) { f.raw.OnDepthChanged(fn) }

// OnDrop forwards to the underlying RawQueue.
func (f *FrameQueue) OnDrop(fn DropObserver) { f.raw.OnDrop(fn) }

// BeginStream resets the outbound sequence counter for streamID to its
// initial value of 1, as used when a new call opens.
func (f *FrameQueue) BeginStream(streamID uint32) {
	f.mu.Lock()
	f.next[streamID] = 1
	f.mu.Unlock()
}

// EndStream forgets streamID's sequence counter. Callers still enqueue one
// final frame carrying rtpfne.EndOfCallSequence themselves.
func (f *FrameQueue) EndStream(streamID uint32) {
	f.mu.Lock()
	delete(f.next, streamID)
	f.mu.Unlock()
}

// Enqueue assigns hdr.RTP.Sequence the next sequence number for
// hdr.FNE.StreamID (unless endOfCall is set, in which case it is forced to
// rtpfne.EndOfCallSequence), encodes the composite header and payload, and
// pushes the result onto destKey's outbound queue.
func (f *FrameQueue) Enqueue(destKey string, hdr rtpfne.Header, payload []byte, endOfCall bool) (int, error) {
	if endOfCall {
		hdr.RTP.Sequence = rtpfne.EndOfCallSequence
	} else {
		f.mu.Lock()
		seq, ok := f.next[hdr.FNE.StreamID]
		if !ok {
			seq = 1
		}
		hdr.RTP.Sequence = seq
		f.next[hdr.FNE.StreamID] = rtpfne.NextSequence(seq)
		f.mu.Unlock()
	}

	buf := make([]byte, rtpfne.HeaderLength+len(payload))
	if _, err := hdr.Encode(buf); err != nil {
		return 0, fmt.Errorf("transport: encode frame header: %w", err)
	}
	copy(buf[rtpfne.HeaderLength:], payload)

	return f.raw.Push(destKey, buf), nil
}

// Drain returns and removes every queued datagram for destKey.
func (f *FrameQueue) Drain(destKey string) [][]byte {
	return f.raw.Drain(destKey)
}

// Delete removes destKey's queue without returning its contents.
func (f *FrameQueue) Delete(destKey string) {
	f.raw.Delete(destKey)
}

// Depth returns the current queued-datagram count for destKey.
func (f *FrameQueue) Depth(destKey string) int {
	return f.raw.Depth(destKey)
}
