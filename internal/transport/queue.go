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

import "sync"

// DepthObserver receives the current depth of a key's queue after every
// push, so a caller can feed it to a gauge without this package depending on
// the metrics package.
type DepthObserver func(key string, depth int)

// DropObserver is notified when a push drops the oldest queued datagram
// because a key's queue was at capacity.
type DropObserver func(key string)

// RawQueue is a bounded, per-key queue of outbound datagrams. Unlike the
// source queue this generalizes, it is safe for concurrent use and enforces
// a maximum depth per key, dropping the oldest entry on overflow rather than
// growing without bound, since a wedged peer must never exhaust memory for
// the whole FNE.
type RawQueue struct {
	mu       sync.Mutex
	data     map[string][][]byte
	maxDepth int

	onDepth DepthObserver
	onDrop  DropObserver
}

// NewRawQueue creates a queue that retains at most maxDepth datagrams per
// key. A maxDepth of zero or less disables the bound.
func NewRawQueue(maxDepth int) *RawQueue {
	return &RawQueue{
		data:     make(map[string][][]byte),
		maxDepth: maxDepth,
	}
}

// OnDepthChanged registers a callback invoked after each push with the
// queue's new depth for that key.
func (q *RawQueue) OnDepthChanged(fn DepthObserver) { q.onDepth = fn }

// OnDrop registers a callback invoked whenever a push drops the oldest
// queued datagram due to the queue being at capacity.
func (q *RawQueue) OnDrop(fn DropObserver) { q.onDrop = fn }

// Push appends value to key's queue, dropping the oldest entry first if the
// queue is already at its configured depth, and returns the resulting depth.
func (q *RawQueue) Push(key string, value []byte) int {
	q.mu.Lock()
	entries := q.data[key]
	if q.maxDepth > 0 && len(entries) >= q.maxDepth {
		entries = entries[1:]
		if q.onDrop != nil {
			q.onDrop(key)
		}
	}
	entries = append(entries, value)
	q.data[key] = entries
	depth := len(entries)
	q.mu.Unlock()

	if q.onDepth != nil {
		q.onDepth(key, depth)
	}
	return depth
}

// Drain returns and removes every queued datagram for key.
func (q *RawQueue) Drain(key string) [][]byte {
	q.mu.Lock()
	values := q.data[key]
	delete(q.data, key)
	q.mu.Unlock()
	return values
}

// Delete removes key's queue without returning its contents.
func (q *RawQueue) Delete(key string) {
	q.mu.Lock()
	delete(q.data, key)
	q.mu.Unlock()
}

// Depth returns the current number of queued datagrams for key.
func (q *RawQueue) Depth(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.data[key])
}
