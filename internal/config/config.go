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

package config

import "time"

// Config stores the FNE's application configuration. It is loaded from a YAML
// file via configulator; see SPEC_FULL.md section 6 for the schema.
type Config struct {
	NetworkName  string       `yaml:"networkName"`
	LogLevel     LogLevel     `yaml:"logLevel"`
	Listen       Listen       `yaml:"listen"`
	Auth         Auth         `yaml:"auth"`
	Lookups      Lookups      `yaml:"lookups"`
	Grant        Grant        `yaml:"grant"`
	Router       Router       `yaml:"router"`
	Parrot       Parrot       `yaml:"parrot"`
	Metrics      Metrics      `yaml:"metrics"`
	PProf        PProf        `yaml:"pprof"`
	Admin        Admin        `yaml:"admin"`
	Redis        Redis        `yaml:"redis"`
	Diagnostics  Diagnostics  `yaml:"diagnostics"`
}

// Listen configures the UDP ports the FNE binds.
type Listen struct {
	Host            string `yaml:"host"`
	TrafficPort     int    `yaml:"trafficPort"`
	RPCPort         int    `yaml:"rpcPort"`
	DiagnosticsPort int    `yaml:"diagnosticsPort"`
}

// Auth configures the peer login/auth handshake.
type Auth struct {
	// Password is the master's shared peer password, used in the
	// SHA-256(salt || password) challenge response.
	Password string `yaml:"password"`
	// PresharedKey, if set, enables AES-256 datagram wrapping on the traffic
	// and RPC sockets.
	PresharedKey string `yaml:"presharedKey"`
}

// Lookups configures the file-backed talkgroup rule and ACL tables.
type Lookups struct {
	TalkgroupRulesPath string        `yaml:"talkgroupRulesPath"`
	PeerListPath       string        `yaml:"peerListPath"`
	RadioIDPath        string        `yaml:"radioIDPath"`
	ReloadInterval     time.Duration `yaml:"reloadInterval"`
}

// Grant configures the affiliation/grant engine's channel pool.
type Grant struct {
	InitialChannels       int `yaml:"initialChannels"`
	DefaultTimeoutSeconds int `yaml:"defaultTimeoutSeconds"`
}

// Router configures the per-protocol traffic routers shared by DMR, P25,
// and NXDN.
type Router struct {
	// CallActivityTimeoutMs clears a destination's stream admission record
	// when no frame has arrived for it within this many milliseconds,
	// guarding against a lost end-of-call marker wedging the destination.
	CallActivityTimeoutMs int `yaml:"callActivityTimeoutMs"`
}

// Parrot configures the loopback/record-and-replay feature.
type Parrot struct {
	DelayMs              int `yaml:"delayMs"`
	PingIntervalSeconds  int `yaml:"pingIntervalSeconds"`
}

// Diagnostics configures the activity/diagnostic side channel.
type Diagnostics struct {
	Enabled bool   `yaml:"enabled"`
	LogDir  string `yaml:"logDir"`
}

// Metrics configures the Prometheus metrics server and optional OTLP tracing.
type Metrics struct {
	Enabled      bool   `yaml:"enabled"`
	Bind         string `yaml:"bind"`
	Port         int    `yaml:"port"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

// PProf configures the optional debug pprof server.
type PProf struct {
	Enabled        bool     `yaml:"enabled"`
	Bind           string   `yaml:"bind"`
	Port           int      `yaml:"port"`
	TrustedProxies []string `yaml:"trustedProxies"`
}

// Admin configures the operator-facing admin HTTP surface.
type Admin struct {
	Enabled   bool     `yaml:"enabled"`
	Bind      string   `yaml:"bind"`
	Port      int      `yaml:"port"`
	CORSHosts []string `yaml:"corsHosts"`
}

// Redis configures the optional KV/pubsub backend used for multi-instance
// peer ownership and diagnostic fan-out. When disabled both fall back to
// in-memory implementations suitable for a single-instance deployment.
type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
}
