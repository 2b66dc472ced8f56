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

package rpcserver_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dvm-project/fne/internal/rpcserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingReq struct {
	Nonce int `json:"nonce"`
}

type pingReply struct {
	Echo int `json:"echo"`
}

func TestRequestReplyRoundTrip(t *testing.T) {
	serverA, err := rpcserver.New("127.0.0.1:0", "", nil)
	require.NoError(t, err)
	defer serverA.Close()

	serverB, err := rpcserver.New("127.0.0.1:0", "", nil)
	require.NoError(t, err)
	defer serverB.Close()

	const opcode = 0x01
	serverB.Handle(opcode, func(req json.RawMessage) (any, error) {
		var r pingReq
		if err := json.Unmarshal(req, &r); err != nil {
			return nil, err
		}
		return pingReply{Echo: r.Nonce}, nil
	})

	go serverA.Serve() //nolint:errcheck
	go serverB.Serve() //nolint:errcheck

	var wg sync.WaitGroup
	wg.Add(1)

	var got pingReply
	err = serverA.Request(opcode, serverB.LocalUDPAddr(), pingReq{Nonce: 42}, func(reply json.RawMessage) {
		_ = json.Unmarshal(reply, &got)
		wg.Done()
	})
	require.NoError(t, err)

	waitTimeout(t, &wg, time.Second)
	assert.Equal(t, 42, got.Echo)
}

func TestUnhandledRequestGetsDefaultReply(t *testing.T) {
	serverA, err := rpcserver.New("127.0.0.1:0", "", nil)
	require.NoError(t, err)
	defer serverA.Close()

	serverB, err := rpcserver.New("127.0.0.1:0", "", nil)
	require.NoError(t, err)
	defer serverB.Close()

	go serverA.Serve() //nolint:errcheck
	go serverB.Serve() //nolint:errcheck

	var wg sync.WaitGroup
	wg.Add(1)

	var status struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	}
	err = serverA.Request(0x99, serverB.LocalUDPAddr(), pingReq{Nonce: 1}, func(reply json.RawMessage) {
		_ = json.Unmarshal(reply, &status)
		wg.Done()
	})
	require.NoError(t, err)

	waitTimeout(t, &wg, time.Second)
	assert.Equal(t, rpcserver.StatusUnhandledRequest, status.Status)
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for reply")
	}
}
