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

// Package peer implements the master-side peer login/authentication
// handshake (the RPTL/RPTK/RPTC exchange generalized off DMR-only HomeBrew
// to any of the three LMR protocols) and the peer connection table that
// tracks each session's resulting state.
package peer

import (
	"net"
	"time"
)

// State is a peer session's position in the login handshake.
type State uint8

const (
	WaitingConnect State = iota
	WaitingLogin
	WaitingAuth
	WaitingConfig
	Running
)

func (s State) String() string {
	switch s {
	case WaitingConnect:
		return "waiting-connect"
	case WaitingLogin:
		return "waiting-login"
	case WaitingAuth:
		return "waiting-auth"
	case WaitingConfig:
		return "waiting-config"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// Session is one peer's connection state.
type Session struct {
	PeerID     uint32
	State      State
	Salt       uint32
	RemoteAddr *net.UDPAddr
	Protocol   string
	Callsign   string
	LastPing   time.Time
	Connected  time.Time
}
