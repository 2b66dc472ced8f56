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

package transport_test

import (
	"testing"

	"github.com/dvm-project/fne/internal/transport"
	"github.com/stretchr/testify/assert"
)

func TestRawQueuePushDrain(t *testing.T) {
	q := transport.NewRawQueue(0)
	q.Push("peer-1", []byte{1})
	q.Push("peer-1", []byte{2})

	got := q.Drain("peer-1")
	assert.Equal(t, [][]byte{{1}, {2}}, got)
	assert.Equal(t, 0, q.Depth("peer-1"))
}

func TestRawQueueDropsOldestOnOverflow(t *testing.T) {
	var dropped []string
	q := transport.NewRawQueue(2)
	q.OnDrop(func(key string) { dropped = append(dropped, key) })

	q.Push("peer-1", []byte{1})
	q.Push("peer-1", []byte{2})
	q.Push("peer-1", []byte{3})

	assert.Equal(t, [][]byte{{2}, {3}}, q.Drain("peer-1"))
	assert.Equal(t, []string{"peer-1"}, dropped)
}

func TestRawQueueDepthObserver(t *testing.T) {
	var depths []int
	q := transport.NewRawQueue(0)
	q.OnDepthChanged(func(_ string, depth int) { depths = append(depths, depth) })

	q.Push("peer-1", []byte{1})
	q.Push("peer-1", []byte{2})

	assert.Equal(t, []int{1, 2}, depths)
}

func TestRawQueueDelete(t *testing.T) {
	q := transport.NewRawQueue(0)
	q.Push("peer-1", []byte{1})
	q.Delete("peer-1")
	assert.Equal(t, 0, q.Depth("peer-1"))
}
