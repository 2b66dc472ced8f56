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

package affiliation

// ChannelPool hands out logical traffic channel numbers to the grant engine.
// It has no notion of RF hardware; a "channel" here is simply a slot in the
// configured Grant.InitialChannels pool that bounds how many simultaneous
// calls a protocol router may carry.
type ChannelPool struct {
	free []uint32
}

// NewChannelPool creates a pool of count channels numbered 1..count.
func NewChannelPool(count int) *ChannelPool {
	p := &ChannelPool{free: make([]uint32, 0, count)}
	for i := count; i >= 1; i-- {
		p.free = append(p.free, uint32(i))
	}
	return p
}

// Available reports whether any channel remains free.
func (p *ChannelPool) Available() bool {
	return len(p.free) > 0
}

// Take removes and returns the first free channel. Callers must check
// Available first.
func (p *ChannelPool) Take() uint32 {
	n := len(p.free)
	ch := p.free[n-1]
	p.free = p.free[:n-1]
	return ch
}

// Release returns a channel to the free pool.
func (p *ChannelPool) Release(ch uint32) {
	p.free = append(p.free, ch)
}
