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

// grantTimer is a millisecond countdown driven by explicit clock ticks
// rather than the wall clock, mirroring the reference implementation's
// Timer(1000, timeout)/clock(ms)/isRunning()/hasExpired() pattern so the
// grant clock's cadence is entirely controlled by whoever calls Clock.
type grantTimer struct {
	timeoutMs uint32
	elapsedMs uint32
	running   bool
}

func newGrantTimer(timeoutSeconds int) grantTimer {
	return grantTimer{timeoutMs: uint32(timeoutSeconds) * 1000}
}

func (t *grantTimer) start() {
	t.elapsedMs = 0
	t.running = true
}

func (t *grantTimer) stop() {
	t.running = false
}

func (t *grantTimer) clock(ms uint32) {
	if !t.running {
		return
	}
	t.elapsedMs += ms
}

func (t *grantTimer) isRunning() bool {
	return t.running
}

func (t *grantTimer) hasExpired() bool {
	return t.running && t.elapsedMs >= t.timeoutMs
}
