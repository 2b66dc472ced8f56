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

package activity

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dvm-project/fne/internal/frame/rtpfne"
	"github.com/dvm-project/fne/internal/transport"
)

const maxDatagram = 8192

// recentLineCapacity bounds the in-memory tail buffer RecentLines serves to
// the admin surface.
const recentLineCapacity = 200

// LineFunc is invoked for every formatted diagnostic/activity line, in
// addition to it being appended to the rolling Logger file. Host uses this
// to republish each line on a pubsub topic per spec.md section 4.9.
type LineFunc func(line string)

// Channel is the optional second UDP port that peers forward TRANSFER
// frames over. Each datagram is the usual RTP+FNE composite header
// followed by one NUL-free text line; Channel decodes it and persists the
// line to the rolling Logger, tagged by peer id and sub-function.
type Channel struct {
	socket *transport.Socket
	logger *Logger
	slog   *slog.Logger
	onLine LineFunc

	mu      sync.Mutex
	recent  []string
}

// NewChannel binds the diagnostics/activity socket at addr and wires it to
// logger.
func NewChannel(addr string, logger *Logger, sl *slog.Logger) (*Channel, error) {
	socket, err := transport.NewSocket(addr, "")
	if err != nil {
		return nil, fmt.Errorf("activity: bind: %w", err)
	}
	if sl == nil {
		sl = slog.Default()
	}
	return &Channel{socket: socket, logger: logger, slog: sl}, nil
}

// OnLine registers a callback invoked with every formatted line, after it
// is appended to the rolling log file.
func (c *Channel) OnLine(fn LineFunc) { c.onLine = fn }

// RecentLines returns the most recently received lines, oldest first,
// bounded to recentLineCapacity, for the admin surface's tail endpoint.
func (c *Channel) RecentLines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.recent))
	copy(out, c.recent)
	return out
}

func (c *Channel) remember(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, line)
	if len(c.recent) > recentLineCapacity {
		c.recent = c.recent[len(c.recent)-recentLineCapacity:]
	}
}

// Close closes the channel's underlying socket.
func (c *Channel) Close() error { return c.socket.Close() }

// Serve reads and persists TRANSFER datagrams until the socket is closed.
func (c *Channel) Serve() error {
	buf := make([]byte, maxDatagram)
	for {
		n, _, err := c.socket.ReadFrom(buf)
		if err != nil {
			return err
		}
		c.handleDatagram(buf[:n])
	}
}

func (c *Channel) handleDatagram(data []byte) {
	hdr, payload, err := rtpfne.Decode(data)
	if err != nil {
		c.slog.Warn("activity: dropping malformed frame", "error", err)
		return
	}
	if hdr.FNE.Function != rtpfne.FuncTransfer {
		return
	}

	kind := "diagnostic"
	if hdr.FNE.SubFunction == rtpfne.SubTransferActivity {
		kind = "activity"
	}

	line := strings.TrimRight(string(payload), "\x00")
	formatted := fmt.Sprintf("[%s] peer=%d %s", kind, hdr.FNE.PeerID, line)
	if err := c.logger.Write(formatted); err != nil {
		c.slog.Error("activity: write log line", "error", err)
	}
	c.remember(formatted)
	if c.onLine != nil {
		c.onLine(formatted)
	}
}
