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

// Package affiliation tracks per-protocol unit registration, group
// affiliation, and channel grants, and ages out grants whose timers expire.
// All state lives behind a single mutex: the reference implementation's
// clock() walked and mutated the grant table without taking any lock at all
// (safe there only because it ran on a single-threaded event loop), which
// this port does not reproduce — every mutating method, including Clock,
// holds the same lock for the duration of its work.
package affiliation

import "sync"

// ReleaseFunc is invoked when a grant is released, naming the channel,
// destination id, and the reason code (0 for "timed out or force-released").
type ReleaseFunc func(chNo, dstID uint32, reason uint32)

// Engine is a single protocol's affiliation and grant table.
type Engine struct {
	name    string
	verbose bool

	mu sync.Mutex

	channels *ChannelPool

	unitReg    map[uint32]struct{}
	groupAff   map[uint32]uint32 // srcId -> dstId
	grantCh    map[uint32]uint32 // dstId -> channel
	grantSrc   map[uint32]uint32 // dstId -> srcId
	uuGranted  map[uint32]bool   // dstId -> true if unit-to-unit (not group)
	netGranted map[uint32]bool   // dstId -> true if network-originated
	timers     map[uint32]grantTimer

	defaultTimeoutSeconds int
	onRelease             ReleaseFunc
}

// New creates an affiliation engine backed by a channel pool of size
// channelCount, using defaultTimeoutSeconds for grants unless a caller
// specifies otherwise via GrantChannel.
func New(name string, channelCount, defaultTimeoutSeconds int) *Engine {
	return &Engine{
		name:                  name,
		channels:              NewChannelPool(channelCount),
		unitReg:               make(map[uint32]struct{}),
		groupAff:              make(map[uint32]uint32),
		grantCh:               make(map[uint32]uint32),
		grantSrc:              make(map[uint32]uint32),
		uuGranted:             make(map[uint32]bool),
		netGranted:            make(map[uint32]bool),
		timers:                make(map[uint32]grantTimer),
		defaultTimeoutSeconds: defaultTimeoutSeconds,
	}
}

// SetVerbose toggles per-operation logging by the caller's logger; the
// engine itself stays silent and leaves logging to whoever wires it up,
// unlike the reference implementation's direct LogMessage calls.
func (e *Engine) SetVerbose(v bool) { e.verbose = v }

// OnRelease registers the callback invoked whenever a grant is released.
func (e *Engine) OnRelease(fn ReleaseFunc) {
	e.mu.Lock()
	e.onRelease = fn
	e.mu.Unlock()
}

// UnitReg records a unit registration for srcID if it is not already
// registered.
func (e *Engine) UnitReg(srcID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.unitReg[srcID]; ok {
		return
	}
	e.unitReg[srcID] = struct{}{}
}

// UnitDereg removes srcID's unit registration, also clearing any group
// affiliation it holds, and reports whether it had been registered.
func (e *Engine) UnitDereg(srcID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.unitReg[srcID]; !ok {
		return false
	}
	delete(e.groupAff, srcID)
	delete(e.unitReg, srcID)
	return true
}

// IsUnitReg reports whether srcID is currently unit registered.
func (e *Engine) IsUnitReg(srcID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.unitReg[srcID]
	return ok
}

// ClearUnitReg drops every unit registration.
func (e *Engine) ClearUnitReg() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unitReg = make(map[uint32]struct{})
}

// GroupAff affiliates srcID with dstID, replacing any prior affiliation.
func (e *Engine) GroupAff(srcID, dstID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.groupAff[srcID]; ok && cur == dstID {
		return
	}
	e.groupAff[srcID] = dstID
}

// GroupUnaff removes srcID's group affiliation, reporting whether one
// existed.
func (e *Engine) GroupUnaff(srcID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.groupAff[srcID]; !ok {
		return false
	}
	delete(e.groupAff, srcID)
	return true
}

// HasGroupAff reports whether any unit is affiliated with dstID.
func (e *Engine) HasGroupAff(dstID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.groupAff {
		if d == dstID {
			return true
		}
	}
	return false
}

// IsGroupAff reports whether srcID is affiliated with dstID.
func (e *Engine) IsGroupAff(srcID, dstID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.groupAff[srcID]
	return ok && d == dstID
}

// ClearGroupAff removes affiliations for dstID (or every affiliation, if
// dstID is zero and releaseAll is set), returning the released source ids.
func (e *Engine) ClearGroupAff(dstID uint32, releaseAll bool) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dstID == 0 && !releaseAll {
		return nil
	}

	var toRelease []uint32
	for srcID, grpID := range e.groupAff {
		if (dstID == 0 && releaseAll) || grpID == dstID {
			toRelease = append(toRelease, srcID)
		}
	}
	for _, srcID := range toRelease {
		delete(e.groupAff, srcID)
	}
	return toRelease
}

// GrantChannel grants a traffic channel to dstID on behalf of srcID. grp
// distinguishes a group grant from a unit-to-unit grant; netGranted marks
// the grant as network- (rather than RF-) originated. grantTimeoutSeconds
// of zero uses the engine's configured default.
func (e *Engine) GrantChannel(dstID, srcID uint32, grantTimeoutSeconds int, grp, netGranted bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dstID == 0 {
		return false
	}
	if !e.channels.Available() {
		return false
	}

	chNo := e.channels.Take()
	e.grantCh[dstID] = chNo
	e.grantSrc[dstID] = srcID
	e.uuGranted[dstID] = !grp
	e.netGranted[dstID] = netGranted

	timeout := grantTimeoutSeconds
	if timeout <= 0 {
		timeout = e.defaultTimeoutSeconds
	}
	timer := newGrantTimer(timeout)
	timer.start()
	e.timers[dstID] = timer

	return true
}

// TouchGrant restarts dstID's grant timer, extending its lifetime, if it is
// currently granted.
func (e *Engine) TouchGrant(dstID uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dstID == 0 {
		return
	}
	if _, ok := e.grantCh[dstID]; !ok {
		return
	}
	t := e.timers[dstID]
	t.start()
	e.timers[dstID] = t
}

// ReleaseGrant releases dstID's channel grant (or every grant, if dstID is
// zero and releaseAll is set), invoking OnRelease for each one released, and
// reports whether anything was released. Each release removes the grant's
// channel, source, unit-to-unit flag, network-granted flag and timer and
// returns the channel to the pool, all under the engine lock in one step.
func (e *Engine) ReleaseGrant(dstID uint32, releaseAll bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releaseGrantLocked(dstID, releaseAll)
}

func (e *Engine) releaseGrantLocked(dstID uint32, releaseAll bool) bool {
	if dstID == 0 && !releaseAll {
		return false
	}

	if dstID == 0 && releaseAll {
		var toRelease []uint32
		for d := range e.grantCh {
			toRelease = append(toRelease, d)
		}
		for _, d := range toRelease {
			e.releaseGrantLocked(d, false)
		}
		return true
	}

	chNo, ok := e.grantCh[dstID]
	if !ok {
		return false
	}

	if e.onRelease != nil {
		e.onRelease(chNo, dstID, 0)
	}

	delete(e.grantCh, dstID)
	delete(e.grantSrc, dstID)
	delete(e.uuGranted, dstID)
	delete(e.netGranted, dstID)
	delete(e.timers, dstID)
	e.channels.Release(chNo)

	return true
}

// IsChBusy reports whether channel chNo is currently assigned to any grant.
func (e *Engine) IsChBusy(chNo uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if chNo == 0 {
		return false
	}
	for _, c := range e.grantCh {
		if c == chNo {
			return true
		}
	}
	return false
}

// IsGranted reports whether dstID currently holds a channel grant.
func (e *Engine) IsGranted(dstID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dstID == 0 {
		return false
	}
	_, ok := e.grantCh[dstID]
	return ok
}

// IsGroup reports whether dstID's grant is a group grant. An unknown or
// zero dstID is treated as a group, matching the engine's default
// assumption before any grant exists.
func (e *Engine) IsGroup(dstID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dstID == 0 {
		return true
	}
	uu, ok := e.uuGranted[dstID]
	if !ok {
		return true
	}
	return !uu
}

// IsNetGranted reports whether dstID's grant originated from the network
// rather than from RF.
func (e *Engine) IsNetGranted(dstID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dstID == 0 {
		return false
	}
	return e.netGranted[dstID]
}

// GetGrantedCh returns the channel granted to dstID, or zero.
func (e *Engine) GetGrantedCh(dstID uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dstID == 0 {
		return 0
	}
	return e.grantCh[dstID]
}

// GetGrantedSrcID returns the source id that holds dstID's grant, or zero.
func (e *Engine) GetGrantedSrcID(dstID uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dstID == 0 {
		return 0
	}
	return e.grantSrc[dstID]
}

// GrantCount returns the number of channel grants currently active, for the
// admin surface's stats snapshot.
func (e *Engine) GrantCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.grantCh)
}

// GetGrantedBySrcID returns the destination id granted to srcID, or zero.
func (e *Engine) GetGrantedBySrcID(srcID uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if srcID == 0 {
		return 0
	}
	for dstID, s := range e.grantSrc {
		if s == srcID {
			return dstID
		}
	}
	return 0
}

// Clock advances every running grant timer by ms milliseconds and releases
// any grant whose timer has expired. It is meant to be driven by a gocron
// job on a fixed tick, keeping grant aging entirely explicit rather than
// tied to wall-clock goroutine timers.
func (e *Engine) Clock(ms uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []uint32
	for dstID := range e.grantCh {
		t := e.timers[dstID]
		t.clock(ms)
		e.timers[dstID] = t
		if t.isRunning() && t.hasExpired() {
			expired = append(expired, dstID)
		}
	}

	for _, dstID := range expired {
		e.releaseGrantLocked(dstID, false)
	}
}
