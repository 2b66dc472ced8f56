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

package lookup_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvm-project/fne/internal/lookup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tg100Active = `
rules:
  - tgid: 100
    slot: 1
    name: "Statewide"
    active: true
`

const tg100DeactivatedTG200Added = `
rules:
  - tgid: 100
    slot: 1
    name: "Statewide"
    active: false
  - tgid: 200
    slot: 1
    name: "Regional"
    active: true
`

func TestTalkgroupTableReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talkgroups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tg100Active), 0o600))

	table, err := lookup.LoadTalkgroupTable(path)
	require.NoError(t, err)

	_, ok := table.Lookup(100, 1)
	assert.True(t, ok)
	_, ok = table.Lookup(200, 1)
	assert.False(t, ok)

	// ensure the mtime actually advances on this filesystem.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(tg100DeactivatedTG200Added), 0o600))

	changed, err := table.Reload()
	require.NoError(t, err)
	assert.True(t, changed)

	_, ok = table.Lookup(100, 1)
	assert.False(t, ok)
	rule, ok := table.Lookup(200, 1)
	assert.True(t, ok)
	assert.Equal(t, "Regional", rule.Name)
}

func TestTalkgroupTableReloadNoChangeIsNoOp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "talkgroups.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tg100Active), 0o600))

	table, err := lookup.LoadTalkgroupTable(path)
	require.NoError(t, err)

	changed, err := table.Reload()
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestTalkgroupRuleInclusionWinsOverExclusion(t *testing.T) {
	rule := lookup.TalkgroupRule{
		Inclusion: []uint32{1, 2},
		Exclusion: []uint32{2},
	}
	assert.False(t, rule.Excluded(1))
	assert.True(t, rule.Excluded(3))
}

func TestPeerListAllowedAndPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.txt")
	contents := "# comment\n123456\n654321,secret\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	list, err := lookup.LoadPeerList(path)
	require.NoError(t, err)

	assert.True(t, list.Allowed(123456))
	assert.True(t, list.Allowed(654321))
	assert.False(t, list.Allowed(999999))

	_, ok := list.Password(123456)
	assert.False(t, ok)
	pw, ok := list.Password(654321)
	assert.True(t, ok)
	assert.Equal(t, "secret", pw)
}

func TestRadioListWhitelistAndBlacklist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "radios.yaml")
	require.NoError(t, os.WriteFile(path, []byte("blacklist: [666]\n"), 0o600))

	list, err := lookup.LoadRadioList(path)
	require.NoError(t, err)

	assert.True(t, list.Allowed(1))
	assert.False(t, list.Allowed(666))
}
