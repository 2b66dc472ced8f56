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

// Package frameerr names the error kinds of spec.md section 7 as a small
// enum so logging and metrics across transport, peer session, and routing
// can key on "what kind of thing went wrong" without parsing error strings
// or importing one another's sentinel error variables. Packages keep their
// own local sentinel errors (ErrCallContention, ErrBadChallengeResponse,
// ...) for callers that want to compare with errors.Is; Wrap tags one of
// those with its Kind at the point it is returned, and KindOf recovers the
// tag at the logging boundary.
package frameerr

import "errors"

// Kind classifies an error by the section 7 table it corresponds to.
type Kind int

const (
	// KindUnknown marks an error that was never tagged with Wrap.
	KindUnknown Kind = iota
	// KindFrameMalformed: header decode failed or length below minimum.
	KindFrameMalformed
	// KindCRCMismatch: an RPC payload's CRC-16 did not verify.
	KindCRCMismatch
	// KindAuthFailed: the SHA-256 challenge response did not match.
	KindAuthFailed
	// KindPeerNotConnected: traffic arrived from a peer not in Running state.
	KindPeerNotConnected
	// KindPeerACLDenied: a peer or radio id was denied by a lookup table.
	KindPeerACLDenied
	// KindNoChannel: a channel grant was requested with an empty pool.
	KindNoChannel
	// KindStreamContention: a second stream tried to claim a busy destination.
	KindStreamContention
	// KindTimeout: a ping, stream, or grant timer expired.
	KindTimeout
	// KindListUnavailable: a lookup table needed for an announcement was missing.
	KindListUnavailable
	// KindInternal: an invariant was violated; logged, never panicked on.
	KindInternal
)

// String names Kind for log output.
func (k Kind) String() string {
	switch k {
	case KindFrameMalformed:
		return "frame-malformed"
	case KindCRCMismatch:
		return "crc-mismatch"
	case KindAuthFailed:
		return "auth-failed"
	case KindPeerNotConnected:
		return "peer-not-connected"
	case KindPeerACLDenied:
		return "peer-acl-denied"
	case KindNoChannel:
		return "no-channel"
	case KindStreamContention:
		return "stream-contention"
	case KindTimeout:
		return "timeout"
	case KindListUnavailable:
		return "list-unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// taggedError pairs an underlying error with the Kind it was Wrapped at.
type taggedError struct {
	kind Kind
	err  error
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }

// Wrap tags err with kind. Wrapping nil returns nil, so callers can wrap
// the direct return value of a fallible call without an extra nil check.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &taggedError{kind: kind, err: err}
}

// KindOf recovers the Kind err was Wrapped with, or KindUnknown if err (or
// none of the errors in its Unwrap chain) was ever tagged.
func KindOf(err error) Kind {
	var tagged *taggedError
	if errors.As(err, &tagged) {
		return tagged.kind
	}
	return KindUnknown
}
