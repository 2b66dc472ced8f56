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

// Package lookup owns the file-backed talkgroup rule and ACL tables: the
// read side routers consult on every frame, and the reload side that
// watches each file's modification time and atomically swaps in a freshly
// parsed table. Readers never observe a half-updated table: a reload builds
// a complete replacement value and installs it with a single atomic.Value
// store, applying the atomic-singleton idiom to a periodically-refreshed
// table instead of a load-once value.
package lookup

// RewriteKey addresses a per-peer rewrite rule by the peer it applies to and
// the (TGID, slot) pair a frame arrived with.
type RewriteKey struct {
	PeerID   uint32
	FromTGID uint32
	FromSlot uint8
}

// RewriteTarget is the (TGID, slot) a matching frame is rewritten to.
type RewriteTarget struct {
	ToTGID uint32
	ToSlot uint8
}

// TalkgroupRule is one source (TGID, slot) rule group, per spec.md section 3.
type TalkgroupRule struct {
	TGID  uint32 `yaml:"tgid"`
	Slot  uint8  `yaml:"slot"`
	Name  string `yaml:"name"`

	Active     bool `yaml:"active"`
	Affiliated bool `yaml:"affiliated"`
	Parrot     bool `yaml:"parrot"`
	NonPreferred bool `yaml:"nonPreferred"`

	Inclusion []uint32 `yaml:"inclusion"`
	Exclusion []uint32 `yaml:"exclusion"`
	Always    []uint32 `yaml:"always"`
	Preferred []uint32 `yaml:"preferred"`

	PermittedRIDs []uint32 `yaml:"permittedRids"`

	Rewrites []struct {
		PeerID   uint32 `yaml:"peerId"`
		FromTGID uint32 `yaml:"fromTgid"`
		FromSlot uint8  `yaml:"fromSlot"`
		ToTGID   uint32 `yaml:"toTgid"`
		ToSlot   uint8  `yaml:"toSlot"`
	} `yaml:"rewrites"`
}

// key identifies a rule by its source (TGID, slot) pair.
func (t TalkgroupRule) key() rulesKey { return rulesKey{t.TGID, t.Slot} }

type rulesKey struct {
	tgid uint32
	slot uint8
}

// PermittedRID reports whether srcID may originate traffic under this rule.
// An empty permitted list means "any RID is permitted", matching the
// spec's inclusion-wins-over-exclusion precedent applied to the RID list.
func (t TalkgroupRule) PermittedRID(srcID uint32) bool {
	if len(t.PermittedRIDs) == 0 {
		return true
	}
	for _, r := range t.PermittedRIDs {
		if r == srcID {
			return true
		}
	}
	return false
}

// Rewrite returns the (TGID, slot) peerID's rule-specific rewrite maps
// (fromTGID, fromSlot) to, if one is configured.
func (t TalkgroupRule) Rewrite(peerID, fromTGID uint32, fromSlot uint8) (RewriteTarget, bool) {
	for _, rw := range t.Rewrites {
		if rw.PeerID == peerID && rw.FromTGID == fromTGID && rw.FromSlot == fromSlot {
			return RewriteTarget{ToTGID: rw.ToTGID, ToSlot: rw.ToSlot}, true
		}
	}
	return RewriteTarget{}, false
}

// inList reports whether id appears in ids.
func inList(ids []uint32, id uint32) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Excluded reports whether peerID is excluded from this rule's fan-out,
// per spec.md section 4.5: inclusion wins when both lists are non-empty.
func (t TalkgroupRule) Excluded(peerID uint32) bool {
	if len(t.Inclusion) > 0 {
		return !inList(t.Inclusion, peerID)
	}
	if len(t.Exclusion) > 0 {
		return inList(t.Exclusion, peerID)
	}
	return false
}

// AlwaysSend reports whether peerID is on this rule's always-send list,
// exempting it from the affiliated-peers-only restriction.
func (t TalkgroupRule) AlwaysSend(peerID uint32) bool {
	return inList(t.Always, peerID)
}
