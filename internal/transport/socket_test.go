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

package transport_test

import (
	"net"
	"testing"

	"github.com/dvm-project/fne/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPlaintextRoundTrip(t *testing.T) {
	server, err := transport.NewSocket("127.0.0.1:0", "")
	require.NoError(t, err)
	defer server.Close()

	client, err := transport.NewSocket("127.0.0.1:0", "")
	require.NoError(t, err)
	defer client.Close()

	serverAddr := server.LocalAddr().(*net.UDPAddr)
	_, err = client.WriteTo([]byte("hello"), serverAddr)
	require.NoError(t, err)

	buf := make([]byte, 1500)
	n, _, err := server.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestSocketEncryptedRoundTrip(t *testing.T) {
	server, err := transport.NewSocket("127.0.0.1:0", "s3cr37")
	require.NoError(t, err)
	defer server.Close()

	client, err := transport.NewSocket("127.0.0.1:0", "s3cr37")
	require.NoError(t, err)
	defer client.Close()

	serverAddr := server.LocalAddr().(*net.UDPAddr)
	_, err = client.WriteTo([]byte("secret payload"), serverAddr)
	require.NoError(t, err)

	buf := make([]byte, 1500)
	n, _, err := server.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, "secret payload", string(buf[:n]))
}

func TestSocketMismatchedKeyFailsToOpen(t *testing.T) {
	server, err := transport.NewSocket("127.0.0.1:0", "correct-key")
	require.NoError(t, err)
	defer server.Close()

	client, err := transport.NewSocket("127.0.0.1:0", "wrong-key")
	require.NoError(t, err)
	defer client.Close()

	serverAddr := server.LocalAddr().(*net.UDPAddr)
	_, err = client.WriteTo([]byte("secret payload"), serverAddr)
	require.NoError(t, err)

	buf := make([]byte, 1500)
	_, _, err = server.ReadFrom(buf)
	assert.Error(t, err)
}
