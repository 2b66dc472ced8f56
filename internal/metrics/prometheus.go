// SPDX-License-Identifier: AGPL-3.0-or-later
// DMRHub - Run a DMR network server in a single binary
// Copyright (C) 2023-2024 Jacob McSwain
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	// KV Store metrics
	KVOperationsTotal   *prometheus.CounterVec
	KVOperationDuration *prometheus.HistogramVec
	KVKeysTotal         prometheus.Gauge
	KVExpiredKeysTotal  prometheus.Counter
	KVCleanupDuration   prometheus.Histogram

	// FNE traffic-plane metrics
	FramesReceivedTotal  *prometheus.CounterVec
	FramesDroppedTotal   *prometheus.CounterVec
	OutboundQueueDepth   *prometheus.GaugeVec
	ActiveStreamsTotal   *prometheus.GaugeVec
	PeersConnectedTotal  prometheus.Gauge
	GrantsActiveTotal    *prometheus.GaugeVec
	GrantsDeniedTotal    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	metrics := &Metrics{
		KVOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kv_operations_total",
			Help: "The total number of KV operations performed",
		}, []string{"operation", "status"}),
		KVOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kv_operation_duration_seconds",
			Help:    "Duration of KV operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		KVKeysTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kv_keys_total",
			Help: "The current number of keys in the KV store",
		}),
		KVExpiredKeysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kv_expired_keys_total",
			Help: "The total number of expired keys cleaned up",
		}),
		KVCleanupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kv_cleanup_duration_seconds",
			Help:    "Duration of KV cleanup operations",
			Buckets: prometheus.DefBuckets,
		}),
		FramesReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fne_frames_received_total",
			Help: "The total number of inbound FNE frames received, by protocol",
		}, []string{"protocol"}),
		FramesDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fne_frames_dropped_total",
			Help: "The total number of frames dropped, by reason",
		}, []string{"reason"}),
		OutboundQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fne_outbound_queue_depth",
			Help: "The current depth of a peer's outbound datagram queue",
		}, []string{"peer"}),
		ActiveStreamsTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fne_active_streams",
			Help: "The current number of active traffic streams, by protocol",
		}, []string{"protocol"}),
		PeersConnectedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fne_peers_connected",
			Help: "The current number of peers in the Running state",
		}),
		GrantsActiveTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fne_grants_active",
			Help: "The current number of active channel grants, by protocol",
		}, []string{"protocol"}),
		GrantsDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fne_grants_denied_total",
			Help: "The total number of grant requests denied, by reason",
		}, []string{"reason"}),
	}
	metrics.register()
	return metrics
}

func (m *Metrics) register() {
	prometheus.MustRegister(m.KVOperationsTotal)
	prometheus.MustRegister(m.KVOperationDuration)
	prometheus.MustRegister(m.KVKeysTotal)
	prometheus.MustRegister(m.KVExpiredKeysTotal)
	prometheus.MustRegister(m.KVCleanupDuration)
	prometheus.MustRegister(m.FramesReceivedTotal)
	prometheus.MustRegister(m.FramesDroppedTotal)
	prometheus.MustRegister(m.OutboundQueueDepth)
	prometheus.MustRegister(m.ActiveStreamsTotal)
	prometheus.MustRegister(m.PeersConnectedTotal)
	prometheus.MustRegister(m.GrantsActiveTotal)
	prometheus.MustRegister(m.GrantsDeniedTotal)
}

// KV Store metrics methods
func (m *Metrics) RecordKVOperation(operation, status string, duration float64) {
	m.KVOperationsTotal.WithLabelValues(operation, status).Inc()
	m.KVOperationDuration.WithLabelValues(operation).Observe(duration)
}

func (m *Metrics) SetKVKeysTotal(count float64) {
	m.KVKeysTotal.Set(count)
}

func (m *Metrics) IncrementKVExpiredKeys(count float64) {
	m.KVExpiredKeysTotal.Add(count)
}

func (m *Metrics) RecordKVCleanup(duration float64) {
	m.KVCleanupDuration.Observe(duration)
}

// FNE traffic-plane metrics methods

func (m *Metrics) IncrementFramesReceived(protocol string) {
	m.FramesReceivedTotal.WithLabelValues(protocol).Inc()
}

func (m *Metrics) IncrementFramesDropped(reason string) {
	m.FramesDroppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetOutboundQueueDepth(peer string, depth float64) {
	m.OutboundQueueDepth.WithLabelValues(peer).Set(depth)
}

func (m *Metrics) DeleteOutboundQueueDepth(peer string) {
	m.OutboundQueueDepth.DeleteLabelValues(peer)
}

func (m *Metrics) SetActiveStreams(protocol string, count float64) {
	m.ActiveStreamsTotal.WithLabelValues(protocol).Set(count)
}

func (m *Metrics) SetPeersConnected(count float64) {
	m.PeersConnectedTotal.Set(count)
}

func (m *Metrics) SetGrantsActive(protocol string, count float64) {
	m.GrantsActiveTotal.WithLabelValues(protocol).Set(count)
}

func (m *Metrics) IncrementGrantsDenied(reason string) {
	m.GrantsDeniedTotal.WithLabelValues(reason).Inc()
}
