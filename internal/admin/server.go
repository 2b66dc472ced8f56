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

// Package admin implements the operator-facing HTTP surface: a liveness
// check, a peer-connection-table snapshot, and a traffic/grant stats
// snapshot, plus the optional debug pprof routes. It depends only on the
// peer and affiliation packages' own types, not on internal/fne, so Host can
// wire this server in without an import cycle.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dvm-project/fne/internal/config"
	"github.com/dvm-project/fne/internal/httpmw"
	"github.com/dvm-project/fne/internal/peer"
	"github.com/gin-contrib/cors"
	ginpprof "github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const readHeaderTimeout = 3 * time.Second

// PeerDirectory reports every known peer, regardless of handshake state.
type PeerDirectory interface {
	All() []peer.Session
}

// Stats is the point-in-time snapshot served at GET /stats.
type Stats struct {
	PeersConnected int            `json:"peersConnected"`
	ActiveStreams  map[string]int `json:"activeStreams"`
	GrantsActive   map[string]int `json:"grantsActive"`
}

// StatsProvider produces the current Stats snapshot.
type StatsProvider interface {
	Stats() Stats
}

// ActivityProvider serves the most recent diagnostic/activity lines, oldest
// first. It is optional: New is called with a nil ActivityProvider when the
// diagnostics side channel is disabled, and GET /activity answers 404.
type ActivityProvider interface {
	RecentLines() []string
}

// Server is the admin HTTP surface's listener.
type Server struct {
	*http.Server
}

// peerView is the JSON shape of one peer in the GET /peers response.
type peerView struct {
	PeerID     uint32 `json:"peerId"`
	State      string `json:"state"`
	Callsign   string `json:"callsign,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
	Connected  string `json:"connected"`
	LastPing   string `json:"lastPing"`
}

// New builds the admin HTTP surface. It does not start listening; call
// Start. activity may be nil if the diagnostics side channel is disabled.
func New(cfg *config.Config, peers PeerDirectory, stats StatsProvider, activity ActivityProvider) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Metrics.OTLPEndpoint != "" {
		r.Use(otelgin.Middleware("admin"))
		r.Use(httpmw.TracingProvider(cfg.Metrics.OTLPEndpoint))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Admin.CORSHosts
	r.Use(cors.New(corsConfig))

	ginpprof.Register(r)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/peers", func(c *gin.Context) {
		sessions := peers.All()
		out := make([]peerView, 0, len(sessions))
		for _, s := range sessions {
			view := peerView{
				PeerID:   s.PeerID,
				State:    s.State.String(),
				Callsign: s.Callsign,
				Protocol: s.Protocol,
				Connected: s.Connected.UTC().Format(time.RFC3339),
				LastPing:  s.LastPing.UTC().Format(time.RFC3339),
			}
			if s.RemoteAddr != nil {
				view.RemoteAddr = s.RemoteAddr.String()
			}
			out = append(out, view)
		}
		c.JSON(http.StatusOK, out)
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Stats())
	})

	r.GET("/activity", func(c *gin.Context) {
		if activity == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "diagnostics side channel disabled"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"lines": activity.RecentLines()})
	})

	return &Server{
		Server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Admin.Bind, cfg.Admin.Port),
			Handler:           r,
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start serves the admin surface until Stop is called or the listener fails.
// http.ErrServerClosed is swallowed since that is the expected outcome of a
// graceful Stop.
func (s *Server) Start() error {
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin: serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the admin surface.
func (s *Server) Stop(ctx context.Context) error {
	return s.Shutdown(ctx)
}
