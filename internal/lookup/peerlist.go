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
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
)

// PeerEntry is one enrolled peer id, per spec.md section 3's PeerIdEntry.
type PeerEntry struct {
	PeerID              uint32
	Alias               string
	Password            string // optional; empty means "use the master password"
	PeerLink            bool
	CanRequestKeys      bool
	CanIssueInhibit     bool
}

type peerListSnapshot struct {
	byID map[uint32]PeerEntry
}

// PeerList is the file-backed, atomically-swapped set of enrolled peer ids
// used both as the peer allow-list and as the per-peer password override
// for the login challenge. A peer id absent from the table is denied.
type PeerList struct {
	path    string
	current atomic.Value // *peerListSnapshot
	modTime int64
}

// LoadPeerList performs the table's initial load from path. The file format
// is line-oriented: "peerId[,password]", with "#" starting a comment line,
// per spec.md section 6.
func LoadPeerList(path string) (*PeerList, error) {
	p := &PeerList{path: path}
	if _, err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload re-reads the peer list file if it has changed on disk.
func (p *PeerList) Reload() (bool, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return false, fmt.Errorf("lookup: stat peer list: %w", err)
	}
	mtime := info.ModTime().UnixNano()
	if snap, ok := p.current.Load().(*peerListSnapshot); ok && snap != nil && mtime == p.modTime {
		return false, nil
	}

	f, err := os.Open(p.path)
	if err != nil {
		return false, fmt.Errorf("lookup: open peer list: %w", err)
	}
	defer f.Close()

	snap := &peerListSnapshot{byID: make(map[uint32]PeerEntry)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, ",", 2)
		id, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		entry := PeerEntry{PeerID: uint32(id)}
		if len(fields) == 2 {
			entry.Password = fields[1]
		}
		snap.byID[entry.PeerID] = entry
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("lookup: scan peer list: %w", err)
	}

	p.current.Store(snap)
	p.modTime = mtime
	return true, nil
}

// Allowed reports whether peerID is enrolled.
func (p *PeerList) Allowed(peerID uint32) bool {
	snap, _ := p.current.Load().(*peerListSnapshot)
	if snap == nil {
		return false
	}
	_, ok := snap.byID[peerID]
	return ok
}

// Password returns peerID's per-peer password override, if one is set.
func (p *PeerList) Password(peerID uint32) (string, bool) {
	snap, _ := p.current.Load().(*peerListSnapshot)
	if snap == nil {
		return "", false
	}
	e, ok := snap.byID[peerID]
	if !ok || e.Password == "" {
		return "", false
	}
	return e.Password, true
}

// Save writes the table back to disk, sorted by peer id, matching the
// "saved sorted" persistence rule in spec.md section 6.
func (p *PeerList) Save() error {
	snap, _ := p.current.Load().(*peerListSnapshot)
	if snap == nil {
		return nil
	}

	ids := make([]uint32, 0, len(snap.byID))
	for id := range snap.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for _, id := range ids {
		e := snap.byID[id]
		if e.Password != "" {
			fmt.Fprintf(&b, "%d,%s\n", id, e.Password)
		} else {
			fmt.Fprintf(&b, "%d\n", id)
		}
	}

	return os.WriteFile(p.path, []byte(b.String()), 0o600)
}
