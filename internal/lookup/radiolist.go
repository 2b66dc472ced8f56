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

	"gopkg.in/yaml.v3"
)

// radioIDFile is the on-disk YAML shape of the radio-ID ACL file. An empty
// Whitelist means "every RID is permitted except Blacklist"; a non-empty
// Whitelist means "only these RIDs are permitted".
type radioIDFile struct {
	Whitelist []uint32 `yaml:"whitelist"`
	Blacklist []uint32 `yaml:"blacklist"`
}

type radioListSnapshot struct {
	whitelist map[uint32]struct{}
	blacklist map[uint32]struct{}
}

// RadioList is the file-backed, atomically-swapped radio-ID allow/deny
// table. The host loads and periodically reloads it; the traffic routers do
// not consult it, so a frame's source RID is checked only against the
// matching talkgroup rule's permitted-RID list.
type RadioList struct {
	path    string
	current atomic.Value // *radioListSnapshot
	modTime int64
}

// LoadRadioList performs the table's initial load from path.
func LoadRadioList(path string) (*RadioList, error) {
	r := &RadioList{path: path}
	if _, err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the radio-ID ACL file if it has changed on disk.
func (r *RadioList) Reload() (bool, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return false, fmt.Errorf("lookup: stat radio id list: %w", err)
	}
	mtime := info.ModTime().UnixNano()
	if snap, ok := r.current.Load().(*radioListSnapshot); ok && snap != nil && mtime == r.modTime {
		return false, nil
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return false, fmt.Errorf("lookup: read radio id list: %w", err)
	}

	var file radioIDFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return false, fmt.Errorf("lookup: parse radio id list: %w", err)
	}

	snap := &radioListSnapshot{
		whitelist: toSet(file.Whitelist),
		blacklist: toSet(file.Blacklist),
	}
	r.current.Store(snap)
	r.modTime = mtime
	return true, nil
}

func toSet(ids []uint32) map[uint32]struct{} {
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Allowed reports whether rid is permitted to originate traffic.
func (r *RadioList) Allowed(rid uint32) bool {
	snap, _ := r.current.Load().(*radioListSnapshot)
	if snap == nil {
		return true
	}
	if len(snap.whitelist) > 0 {
		_, ok := snap.whitelist[rid]
		return ok
	}
	_, denied := snap.blacklist[rid]
	return !denied
}
