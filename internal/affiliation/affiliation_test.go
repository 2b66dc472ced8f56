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

package affiliation_test

import (
	"testing"

	"github.com/dvm-project/fne/internal/affiliation"
	"github.com/stretchr/testify/assert"
)

func TestUnitRegDeregLifecycle(t *testing.T) {
	e := affiliation.New("test", 4, 10)

	e.UnitReg(100)
	assert.True(t, e.IsUnitReg(100))

	e.GroupAff(100, 1)
	assert.True(t, e.IsGroupAff(100, 1))

	assert.True(t, e.UnitDereg(100))
	assert.False(t, e.IsUnitReg(100))
	assert.False(t, e.IsGroupAff(100, 1))
	assert.False(t, e.UnitDereg(100))
}

func TestGroupAffiliationLifecycle(t *testing.T) {
	e := affiliation.New("test", 4, 10)

	e.GroupAff(100, 1)
	e.GroupAff(101, 1)
	e.GroupAff(102, 2)

	assert.True(t, e.HasGroupAff(1))
	assert.ElementsMatch(t, []uint32{100, 101}, e.ClearGroupAff(1, false))
	assert.False(t, e.HasGroupAff(1))
	assert.True(t, e.IsGroupAff(102, 2))
}

func TestClearGroupAffReleaseAll(t *testing.T) {
	e := affiliation.New("test", 4, 10)
	e.GroupAff(1, 10)
	e.GroupAff(2, 20)

	assert.ElementsMatch(t, []uint32{1, 2}, e.ClearGroupAff(0, true))
	assert.False(t, e.HasGroupAff(10))
	assert.False(t, e.HasGroupAff(20))
}

func TestGrantChannelExhaustsPool(t *testing.T) {
	e := affiliation.New("test", 1, 10)

	assert.True(t, e.GrantChannel(1, 100, 0, true, false))
	assert.False(t, e.GrantChannel(2, 200, 0, true, false))
	assert.True(t, e.IsGranted(1))
	assert.False(t, e.IsGranted(2))
}

func TestReleaseGrantFreesChannelForReuse(t *testing.T) {
	e := affiliation.New("test", 1, 10)
	var released []uint32
	e.OnRelease(func(chNo, dstID, _ uint32) { released = append(released, dstID) })

	require := assert.New(t)
	require.True(e.GrantChannel(1, 100, 0, true, false))
	require.True(e.ReleaseGrant(1, false))
	require.Equal([]uint32{1}, released)
	require.False(e.IsGranted(1))

	require.True(e.GrantChannel(2, 200, 0, true, false))
	require.True(e.IsGranted(2))
}

func TestReleaseGrantAll(t *testing.T) {
	e := affiliation.New("test", 2, 10)
	e.GrantChannel(1, 100, 0, true, false)
	e.GrantChannel(2, 200, 0, false, true)

	assert.True(t, e.ReleaseGrant(0, true))
	assert.False(t, e.IsGranted(1))
	assert.False(t, e.IsGranted(2))
}

func TestIsChBusy(t *testing.T) {
	e := affiliation.New("test", 2, 10)
	e.GrantChannel(1, 100, 0, true, false)
	ch := e.GetGrantedCh(1)

	assert.True(t, e.IsChBusy(ch))
	assert.False(t, e.IsChBusy(ch+100))
}

func TestGetGrantedLookups(t *testing.T) {
	e := affiliation.New("test", 2, 10)
	e.GrantChannel(5, 500, 0, false, true)

	assert.Equal(t, uint32(500), e.GetGrantedSrcID(5))
	assert.Equal(t, uint32(5), e.GetGrantedBySrcID(500))
	assert.False(t, e.IsGroup(5))
	assert.True(t, e.IsNetGranted(5))
}

func TestClockExpiresGrant(t *testing.T) {
	e := affiliation.New("test", 2, 1)
	var released []uint32
	e.OnRelease(func(_, dstID, _ uint32) { released = append(released, dstID) })

	e.GrantChannel(1, 100, 0, true, false)
	e.Clock(500)
	assert.True(t, e.IsGranted(1))

	e.Clock(600)
	assert.False(t, e.IsGranted(1))
	assert.Equal(t, []uint32{1}, released)
}

func TestTouchGrantResetsTimer(t *testing.T) {
	e := affiliation.New("test", 2, 1)
	e.GrantChannel(1, 100, 0, true, false)

	e.Clock(900)
	e.TouchGrant(1)
	e.Clock(900)

	assert.True(t, e.IsGranted(1))
}
