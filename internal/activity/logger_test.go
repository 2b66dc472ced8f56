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

package activity_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvm-project/fne/internal/activity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesRollingFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := activity.NewLogger(dir)
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Write("hello"))
	require.NoError(t, logger.Write("world"))

	today := time.Now().Format("2006-01-02")
	contents, err := os.ReadFile(filepath.Join(dir, today+".activity.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(contents))
}
