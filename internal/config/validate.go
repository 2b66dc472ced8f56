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

import "errors"

var (
	// ErrInvalidLogLevel indicates that the provided log level is not valid.
	ErrInvalidLogLevel = errors.New("invalid log level provided")
	// ErrInvalidRedisHost indicates that the provided Redis host is not valid.
	ErrInvalidRedisHost = errors.New("invalid Redis host provided")
	// ErrInvalidRedisPort indicates that the provided Redis port is not valid.
	ErrInvalidRedisPort = errors.New("invalid Redis port provided")
	// ErrInvalidListenHost indicates that the provided listen host is not valid.
	ErrInvalidListenHost = errors.New("invalid listen host provided")
	// ErrInvalidTrafficPort indicates that the provided traffic port is not valid.
	ErrInvalidTrafficPort = errors.New("invalid traffic port provided")
	// ErrInvalidRPCPort indicates that the provided RPC port is not valid.
	ErrInvalidRPCPort = errors.New("invalid RPC port provided")
	// ErrAuthPasswordRequired indicates the peer auth password must be set.
	ErrAuthPasswordRequired = errors.New("auth password is required")
	// ErrInvalidTalkgroupRulesPath indicates the talkgroup rules path is missing.
	ErrInvalidTalkgroupRulesPath = errors.New("talkgroup rules path is required")
	// ErrInvalidPeerListPath indicates the peer list path is missing.
	ErrInvalidPeerListPath = errors.New("peer list path is required")
	// ErrInvalidGrantChannels indicates the initial channel count is not positive.
	ErrInvalidGrantChannels = errors.New("grant.initialChannels must be positive")
	// ErrParrotDelayExceedsPing is the Open Question #3 resolution: parrot
	// delay may not exceed the ping interval, and this is enforced only at
	// load time since parrot.delayMs has no hot-reconfiguration path.
	ErrParrotDelayExceedsPing = errors.New("parrot.delayMs must not exceed parrot.pingIntervalSeconds * 1000")
	// ErrInvalidMetricsBindAddress indicates that the provided metrics server bind address is not valid.
	ErrInvalidMetricsBindAddress = errors.New("invalid metrics server bind address provided")
	// ErrInvalidMetricsPort indicates that the provided metrics server port is not valid.
	ErrInvalidMetricsPort = errors.New("invalid metrics server port provided")
	// ErrInvalidPProfBindAddress indicates that the provided PProf server bind address is not valid.
	ErrInvalidPProfBindAddress = errors.New("invalid PProf server bind address provided")
	// ErrInvalidPProfPort indicates that the provided PProf server port is not valid.
	ErrInvalidPProfPort = errors.New("invalid PProf server port provided")
	// ErrInvalidAdminBindAddress indicates that the provided admin server bind address is not valid.
	ErrInvalidAdminBindAddress = errors.New("invalid admin server bind address provided")
	// ErrInvalidAdminPort indicates that the provided admin server port is not valid.
	ErrInvalidAdminPort = errors.New("invalid admin server port provided")
)

// Validate validates the Redis configuration.
func (r Redis) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.Host == "" {
		return ErrInvalidRedisHost
	}
	if r.Port <= 0 || r.Port > 65535 {
		return ErrInvalidRedisPort
	}
	return nil
}

// Validate validates the Listen configuration.
func (l Listen) Validate() error {
	if l.Host == "" {
		return ErrInvalidListenHost
	}
	if l.TrafficPort <= 0 || l.TrafficPort > 65535 {
		return ErrInvalidTrafficPort
	}
	if l.RPCPort <= 0 || l.RPCPort > 65535 {
		return ErrInvalidRPCPort
	}
	return nil
}

// Validate validates the Auth configuration.
func (a Auth) Validate() error {
	if a.Password == "" {
		return ErrAuthPasswordRequired
	}
	return nil
}

// Validate validates the Lookups configuration.
func (l Lookups) Validate() error {
	if l.TalkgroupRulesPath == "" {
		return ErrInvalidTalkgroupRulesPath
	}
	if l.PeerListPath == "" {
		return ErrInvalidPeerListPath
	}
	return nil
}

// Validate validates the Grant configuration.
func (g Grant) Validate() error {
	if g.InitialChannels <= 0 {
		return ErrInvalidGrantChannels
	}
	return nil
}

// Validate validates the Parrot configuration against the resolved Open
// Question: parrot delay must never exceed the ping interval.
func (p Parrot) Validate() error {
	if p.PingIntervalSeconds > 0 && p.DelayMs > p.PingIntervalSeconds*1000 {
		return ErrParrotDelayExceedsPing
	}
	return nil
}

// Validate validates the Metrics configuration.
func (m Metrics) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Bind == "" {
		return ErrInvalidMetricsBindAddress
	}
	if m.Port <= 0 || m.Port > 65535 {
		return ErrInvalidMetricsPort
	}
	return nil
}

// Validate validates the PProf configuration.
func (p PProf) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Bind == "" {
		return ErrInvalidPProfBindAddress
	}
	if p.Port <= 0 || p.Port > 65535 {
		return ErrInvalidPProfPort
	}
	return nil
}

// Validate validates the Admin configuration.
func (a Admin) Validate() error {
	if !a.Enabled {
		return nil
	}
	if a.Bind == "" {
		return ErrInvalidAdminBindAddress
	}
	if a.Port <= 0 || a.Port > 65535 {
		return ErrInvalidAdminPort
	}
	return nil
}

// Validate validates the full configuration tree.
func (c Config) Validate() error {
	if c.LogLevel != LogLevelDebug &&
		c.LogLevel != LogLevelInfo &&
		c.LogLevel != LogLevelWarn &&
		c.LogLevel != LogLevelError {
		return ErrInvalidLogLevel
	}

	if err := c.Listen.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Lookups.Validate(); err != nil {
		return err
	}
	if err := c.Grant.Validate(); err != nil {
		return err
	}
	if err := c.Parrot.Validate(); err != nil {
		return err
	}
	if err := c.Redis.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.PProf.Validate(); err != nil {
		return err
	}
	if err := c.Admin.Validate(); err != nil {
		return err
	}

	return nil
}
