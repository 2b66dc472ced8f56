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

package lookup

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/mitchellh/hashstructure/v2"
	"gopkg.in/yaml.v3"
)

// talkgroupFile is the on-disk YAML shape of the talkgroup rules file.
type talkgroupFile struct {
	Rules []TalkgroupRule `yaml:"rules"`
}

type talkgroupSnapshot struct {
	byKey map[rulesKey]TalkgroupRule
	hash  uint64
}

// TalkgroupTable is the atomically-swapped, file-backed set of talkgroup
// rules. Readers call Lookup/Active without ever taking a lock; a reload
// builds a whole new snapshot and installs it with a single atomic.Value
// store so no reader ever observes a half-updated table.
type TalkgroupTable struct {
	path    string
	current atomic.Value // *talkgroupSnapshot
	modTime int64
}

// LoadTalkgroupTable performs the table's initial load from path.
func LoadTalkgroupTable(path string) (*TalkgroupTable, error) {
	t := &TalkgroupTable{path: path}
	if _, err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the talkgroup rules file if its modification time has
// changed since the last successful load, atomically swapping in the new
// table. It reports whether the table actually changed.
func (t *TalkgroupTable) Reload() (bool, error) {
	info, err := os.Stat(t.path)
	if err != nil {
		return false, fmt.Errorf("lookup: stat talkgroup rules: %w", err)
	}
	mtime := info.ModTime().UnixNano()
	if snap, ok := t.current.Load().(*talkgroupSnapshot); ok && mtime == t.modTime && snap != nil {
		return false, nil
	}

	raw, err := os.ReadFile(t.path)
	if err != nil {
		return false, fmt.Errorf("lookup: read talkgroup rules: %w", err)
	}

	var file talkgroupFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return false, fmt.Errorf("lookup: parse talkgroup rules: %w", err)
	}

	hash, err := hashstructure.Hash(file.Rules, hashstructure.FormatV2, nil)
	if err != nil {
		return false, fmt.Errorf("lookup: hash talkgroup rules: %w", err)
	}

	if prev, ok := t.current.Load().(*talkgroupSnapshot); ok && prev != nil && prev.hash == hash {
		t.modTime = mtime
		return false, nil
	}

	snap := &talkgroupSnapshot{byKey: make(map[rulesKey]TalkgroupRule, len(file.Rules)), hash: hash}
	for _, r := range file.Rules {
		snap.byKey[r.key()] = r
	}

	t.current.Store(snap)
	t.modTime = mtime
	return true, nil
}

// Lookup returns the rule for (tgid, slot), if one is configured and active.
func (t *TalkgroupTable) Lookup(tgid uint32, slot uint8) (TalkgroupRule, bool) {
	snap, _ := t.current.Load().(*talkgroupSnapshot)
	if snap == nil {
		return TalkgroupRule{}, false
	}
	r, ok := snap.byKey[rulesKey{tgid, slot}]
	if !ok || !r.Active {
		return TalkgroupRule{}, false
	}
	return r, true
}

// Active returns every currently active rule, for MASTER_SUBFUNC
// active/deactive-TG announcements.
func (t *TalkgroupTable) Active() []TalkgroupRule {
	snap, _ := t.current.Load().(*talkgroupSnapshot)
	if snap == nil {
		return nil
	}
	out := make([]TalkgroupRule, 0, len(snap.byKey))
	for _, r := range snap.byKey {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}
