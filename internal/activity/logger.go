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

// Package activity implements the diagnostic/activity side channel: the
// optional second UDP port peers forward per-line diagnostic and activity
// logs over, and the daily-rolling append-only text log those lines are
// persisted to, per spec.md sections 4.9 and 6.
package activity

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dateFormat matches spec.md section 6's "YYYY-MM-DD.activity.log" rolling
// file name.
const dateFormat = "2006-01-02"

// Logger is an append-only, daily-rolling text log. A new file is opened
// automatically the first time a line is written after the date changes.
type Logger struct {
	dir string

	mu      sync.Mutex
	day     string
	file    *os.File
	nowFunc func() time.Time
}

// NewLogger creates a rolling logger that writes under dir, creating it if
// necessary.
func NewLogger(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("activity: create log dir: %w", err)
	}
	return &Logger{dir: dir, nowFunc: time.Now}, nil
}

// Write appends one line to today's activity log, rolling to a new file if
// the date has changed since the last write.
func (l *Logger) Write(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.nowFunc().Format(dateFormat)
	if day != l.day || l.file == nil {
		if l.file != nil {
			_ = l.file.Close()
		}
		path := filepath.Join(l.dir, day+".activity.log")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("activity: open %q: %w", path, err)
		}
		l.file = f
		l.day = day
	}

	_, err := fmt.Fprintln(l.file, line)
	return err
}

// Close closes the currently open log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
