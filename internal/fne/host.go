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

// Package fne wires every subsystem into a single running master: the
// traffic and RPC sockets, the lookup tables and their reload schedule, the
// peer login state machine, the per-protocol affiliation engines and
// routers, and the diagnostics side channel. Host is the single owner of
// all of it, generalizing internal/dmr/hub/hub.go's Hub (one struct owning
// every live server, draining outstanding work before it stops) from a
// DMR-only repeater hub to all three LMR protocols at once.
package fne

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/dvm-project/fne/internal/activity"
	"github.com/dvm-project/fne/internal/admin"
	"github.com/dvm-project/fne/internal/affiliation"
	"github.com/dvm-project/fne/internal/config"
	"github.com/dvm-project/fne/internal/frame/kmm"
	"github.com/dvm-project/fne/internal/frame/rtpfne"
	"github.com/dvm-project/fne/internal/frameerr"
	"github.com/dvm-project/fne/internal/kv"
	"github.com/dvm-project/fne/internal/lookup"
	"github.com/dvm-project/fne/internal/metrics"
	"github.com/dvm-project/fne/internal/peer"
	"github.com/dvm-project/fne/internal/pubsub"
	"github.com/dvm-project/fne/internal/router"
	"github.com/dvm-project/fne/internal/rpcserver"
	"github.com/dvm-project/fne/internal/transport"
)

// NAK reason codes, per spec.md section 6's 16-bit enumeration.
const (
	nakModeNotEnabled   uint16 = 0
	nakIllegalPacket    uint16 = 1
	nakFNEUnauthorized  uint16 = 2
	nakBadConnState     uint16 = 3
	nakInvalidConfig    uint16 = 4
	nakFNEMaxConn       uint16 = 5
	nakPeerReset        uint16 = 6
	nakPeerACL          uint16 = 7
	nakGeneralFailure   uint16 = 8
)

// diagnosticsEnabledBit is bit 7 of an RPTC ACK's first payload byte,
// signaling that the diagnostics/activity channel is available.
const diagnosticsEnabledBit = 0x80

const maxDatagram = 8192

// defaultPingTTLFactor bounds how many missed ping intervals a peer may go
// before PrunePings drops it, since the config carries only the interval
// itself.
const defaultPingTTLFactor = 3

// activityTopic is the pubsub topic each diagnostics/activity line is
// republished on, per spec.md section 4.9. Nothing in this process
// subscribes to it; internal/admin's tail route serves the local
// activity.Channel's RecentLines buffer instead.
const activityTopic = "fne.activity"

// peerOwnerKeyPrefix namespaces the kv record claimed by whichever instance
// currently holds a peer's login, generalizing
// internal/dmr/hub/hub.go's in-process "is this repeater already connected
// to me" check to a cross-instance check backed by a shared kv store.
const peerOwnerKeyPrefix = "fne:peer-owner:"

func peerOwnerKey(peerID uint32) string {
	return fmt.Sprintf("%s%d", peerOwnerKeyPrefix, peerID)
}

// newInstanceID generates a random hex identifier distinguishing this
// process's peer-ownership claims from any other instance sharing the same
// kv store.
func newInstanceID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// peerConfig is the subset of spec.md section 4.4's RPTC JSON body this
// master actually consults.
type peerConfig struct {
	Identity string `json:"identity"`
}

// Host owns every live subsystem of one FNE master instance.
type Host struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	traffic  *transport.Socket
	queue    *transport.FrameQueue
	rpc      *rpcserver.Server
	activity *activity.Channel
	actLog   *activity.Logger
	admin    *admin.Server

	// kv and pubsub back the optional cross-instance peer-ownership record
	// (SPEC_FULL.md section 3's PeerOwnership) and the diagnostic-line fan-out
	// (section 4.9). Both fall back to an in-memory implementation when Redis
	// is not configured; the in-memory pubsub discards published messages.
	kv         kv.KV
	pubsub     pubsub.PubSub
	instanceID string

	peerList  *lookup.PeerList
	radioList *lookup.RadioList
	talkgroups *lookup.TalkgroupTable

	peers *peer.Manager

	dmrGrants  *affiliation.Engine
	p25Grants  *affiliation.Engine
	nxdnGrants *affiliation.Engine

	dmr  *router.DMRRouter
	p25  *router.P25Router
	nxdn *router.NXDNRouter

	scheduler gocron.Scheduler

	stopping atomic.Bool
	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
}

// New constructs a Host from cfg, wiring every subsystem but starting
// nothing. Call Start to begin serving.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}

	peerList, err := lookup.LoadPeerList(cfg.Lookups.PeerListPath)
	if err != nil {
		return nil, fmt.Errorf("fne: load peer list: %w", err)
	}

	var radioList *lookup.RadioList
	if cfg.Lookups.RadioIDPath != "" {
		radioList, err = lookup.LoadRadioList(cfg.Lookups.RadioIDPath)
		if err != nil {
			return nil, fmt.Errorf("fne: load radio id list: %w", err)
		}
	}

	talkgroups, err := lookup.LoadTalkgroupTable(cfg.Lookups.TalkgroupRulesPath)
	if err != nil {
		return nil, fmt.Errorf("fne: load talkgroup rules: %w", err)
	}

	traffic, err := transport.NewSocket(fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.TrafficPort), cfg.Auth.PresharedKey)
	if err != nil {
		return nil, fmt.Errorf("fne: bind traffic socket: %w", err)
	}

	rpc, err := rpcserver.New(fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.RPCPort), cfg.Auth.PresharedKey, logger)
	if err != nil {
		return nil, fmt.Errorf("fne: bind rpc server: %w", err)
	}

	var (
		actChannel *activity.Channel
		actLog     *activity.Logger
	)
	if cfg.Diagnostics.Enabled {
		actLog, err = activity.NewLogger(cfg.Diagnostics.LogDir)
		if err != nil {
			return nil, fmt.Errorf("fne: create activity logger: %w", err)
		}
		actChannel, err = activity.NewChannel(fmt.Sprintf("%s:%d", cfg.Listen.Host, cfg.Listen.DiagnosticsPort), actLog, logger)
		if err != nil {
			return nil, fmt.Errorf("fne: bind diagnostics channel: %w", err)
		}
	}

	authFn := func(peerID uint32) (string, bool) {
		if !peerList.Allowed(peerID) {
			return "", false
		}
		if pw, ok := peerList.Password(peerID); ok {
			return pw, true
		}
		return cfg.Auth.Password, true
	}
	pingTTL := time.Duration(cfg.Parrot.PingIntervalSeconds) * time.Second * defaultPingTTLFactor
	if pingTTL <= 0 {
		pingTTL = time.Minute
	}
	peers := peer.NewManager(authFn, pingTTL)

	queue := transport.NewFrameQueue(512)
	if m != nil {
		queue.OnDepthChanged(func(key string, depth int) { m.SetOutboundQueueDepth(key, float64(depth)) })
		queue.OnDrop(func(key string) { m.IncrementFramesDropped("queue-overflow") })
	}

	callTimeout := time.Duration(cfg.Router.CallActivityTimeoutMs) * time.Millisecond

	dmrGrants := affiliation.New("dmr", cfg.Grant.InitialChannels, cfg.Grant.DefaultTimeoutSeconds)
	p25Grants := affiliation.New("p25", cfg.Grant.InitialChannels, cfg.Grant.DefaultTimeoutSeconds)
	nxdnGrants := affiliation.New("nxdn", cfg.Grant.InitialChannels, cfg.Grant.DefaultTimeoutSeconds)

	dmrRouter := router.NewDMR(queue, talkgroups, peers, dmrGrants, callTimeout)
	p25Router := router.NewP25(queue, talkgroups, peers, p25Grants, callTimeout)
	nxdnRouter := router.NewNXDN(queue, talkgroups, peers, nxdnGrants, callTimeout)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("fne: create scheduler: %w", err)
	}

	ctx := context.Background()
	kvStore, err := kv.MakeKV(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fne: create kv store: %w", err)
	}
	ps, err := pubsub.MakePubSub(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fne: create pubsub: %w", err)
	}

	instanceID, err := newInstanceID()
	if err != nil {
		return nil, fmt.Errorf("fne: generate instance id: %w", err)
	}

	h := &Host{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		traffic:    traffic,
		queue:      queue,
		rpc:        rpc,
		activity:   actChannel,
		actLog:     actLog,
		kv:         kvStore,
		pubsub:     ps,
		instanceID: instanceID,
		peerList:   peerList,
		radioList:  radioList,
		talkgroups: talkgroups,
		peers:      peers,
		dmrGrants:  dmrGrants,
		p25Grants:  p25Grants,
		nxdnGrants: nxdnGrants,
		dmr:        dmrRouter,
		p25:        p25Router,
		nxdn:       nxdnRouter,
		scheduler:  scheduler,
		done:       make(chan struct{}),
	}

	if m != nil {
		h.dmr.OnDrop(func(reason string) { m.IncrementFramesDropped(reason) })
		h.p25.OnDrop(func(reason string) { m.IncrementFramesDropped(reason) })
		h.nxdn.OnDrop(func(reason string) { m.IncrementFramesDropped(reason) })
	}

	parrotDelay := time.Duration(cfg.Parrot.DelayMs) * time.Millisecond
	h.dmr.OnParrotEnd(h.scheduleParrotReplay(parrotDelay, h.dmr.ReplayParrot))
	h.p25.OnParrotEnd(h.scheduleParrotReplay(parrotDelay, h.p25.ReplayParrot))
	h.nxdn.OnParrotEnd(h.scheduleParrotReplay(parrotDelay, h.nxdn.ReplayParrot))

	// Per spec.md section 4.5, only the DMR and P25 routers answer a
	// contention drop with INCALL_CTRL(REJECT); NXDN has no such control
	// message.
	h.dmr.OnReject(h.rejectInCall)
	h.p25.OnReject(h.rejectInCall)

	h.registerRPCHandlers()

	if h.activity != nil {
		h.activity.OnLine(func(line string) {
			if err := h.pubsub.Publish(activityTopic, []byte(line)); err != nil {
				h.logger.Debug("fne: publish activity line", "error", err)
			}
		})
	}

	if cfg.Admin.Enabled {
		var activityProvider admin.ActivityProvider
		if h.activity != nil {
			activityProvider = h.activity
		}
		h.admin = admin.New(cfg, h.peers, h, activityProvider)
	}

	return h, nil
}

// Stats implements admin.StatsProvider, snapshotting peer and traffic-plane
// counts for the GET /stats route.
func (h *Host) Stats() admin.Stats {
	return admin.Stats{
		PeersConnected: len(h.peers.Running()),
		ActiveStreams: map[string]int{
			"dmr":  h.dmr.ActiveStreamCount(),
			"p25":  h.p25.ActiveStreamCount(),
			"nxdn": h.nxdn.ActiveStreamCount(),
		},
		GrantsActive: map[string]int{
			"dmr":  h.dmrGrants.GrantCount(),
			"p25":  h.p25Grants.GrantCount(),
			"nxdn": h.nxdnGrants.GrantCount(),
		},
	}
}

// replayFunc matches the shape of a protocol router's ReplayParrot method.
type replayFunc func(streamID uint32) []router.ParrotFrame

// parrotFrameInterval bounds the playback pacing a recorded parrot stream is
// replayed at, per spec.md section 4.5's "original timing preserved (20 ms
// per IMBE voice frame for P25, equivalent for DMR/NXDN)" and section 8
// scenario 4's "replayed at 20 ms intervals". All three LMR protocols in
// scope here carry one vocoder frame per router payload at this cadence, so
// one constant covers them; it is not derived per-frame from the recording
// since the recorded frames carry no timestamp of their own.
const parrotFrameInterval = 20 * time.Millisecond

// scheduleParrotReplay returns a router.ParrotEndFunc bound to one
// protocol's replay function, deferring the reply by delay before replaying
// the recorded stream back to its originator one frame at a time, paced at
// parrotFrameInterval rather than bursting every frame at once.
func (h *Host) scheduleParrotReplay(delay time.Duration, replay replayFunc) router.ParrotEndFunc {
	return func(srcPeerID, streamID uint32) {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-h.done:
				return
			}
			sess, ok := h.peers.Get(srcPeerID)
			if !ok || sess.State != peer.Running {
				return
			}

			frames := replay(streamID)
			h.queue.BeginStream(streamID)
			ticker := time.NewTicker(parrotFrameInterval)
			defer ticker.Stop()
			for i, f := range frames {
				_, _ = h.queue.Enqueue(sess.RemoteAddr.String(), f.Header, f.Payload, f.EndOfCall)
				h.flushPeer(sess)
				if i == len(frames)-1 {
					break
				}
				select {
				case <-ticker.C:
				case <-h.done:
					h.queue.EndStream(streamID)
					return
				}
			}
			h.queue.EndStream(streamID)
		}()
	}
}

// Start binds the background schedule and begins serving the traffic, RPC,
// and diagnostics sockets. It returns once every listener goroutine has
// been launched; Stop drains them.
func (h *Host) Start(ctx context.Context) error {
	if err := h.scheduleJobs(); err != nil {
		return err
	}
	h.scheduler.Start()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.serveTraffic(); err != nil && !h.stopping.Load() {
			h.logger.Error("fne: traffic socket closed", "error", err)
		}
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.rpc.Serve(); err != nil && !h.stopping.Load() {
			h.logger.Error("fne: rpc socket closed", "error", err)
		}
	}()

	if h.activity != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.activity.Serve(); err != nil && !h.stopping.Load() {
				h.logger.Error("fne: diagnostics socket closed", "error", err)
			}
		}()
	}

	if h.admin != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.admin.Start(); err != nil && !h.stopping.Load() {
				h.logger.Error("fne: admin server closed", "error", err)
			}
		}()
	}

	return nil
}

// scheduleJobs registers every periodic background task: grant timer
// ticks, lookup table reloads, stale-call eviction, and ping pruning.
func (h *Host) scheduleJobs() error {
	const grantTick = 100 * time.Millisecond
	if _, err := h.scheduler.NewJob(
		gocron.DurationJob(grantTick),
		gocron.NewTask(func() {
			ms := uint32(grantTick.Milliseconds())
			h.dmrGrants.Clock(ms)
			h.p25Grants.Clock(ms)
			h.nxdnGrants.Clock(ms)
		}),
	); err != nil {
		return fmt.Errorf("fne: schedule grant clock: %w", err)
	}

	reloadInterval := h.cfg.Lookups.ReloadInterval
	if reloadInterval <= 0 {
		reloadInterval = 30 * time.Second
	}
	if _, err := h.scheduler.NewJob(
		gocron.DurationJob(reloadInterval),
		gocron.NewTask(func() { h.reloadLookups() }),
	); err != nil {
		return fmt.Errorf("fne: schedule lookup reload: %w", err)
	}

	if h.cfg.Router.CallActivityTimeoutMs > 0 {
		pollInterval := time.Duration(h.cfg.Router.CallActivityTimeoutMs) * time.Millisecond / 2
		if _, err := h.scheduler.NewJob(
			gocron.DurationJob(pollInterval),
			gocron.NewTask(func() { h.pollStaleCalls() }),
		); err != nil {
			return fmt.Errorf("fne: schedule stale call poll: %w", err)
		}
	}

	pingInterval := time.Duration(h.cfg.Parrot.PingIntervalSeconds) * time.Second
	if pingInterval <= 0 {
		pingInterval = 10 * time.Second
	}
	if _, err := h.scheduler.NewJob(
		gocron.DurationJob(pingInterval),
		gocron.NewTask(func() {
			for _, id := range h.peers.PrunePings() {
				h.queue.Delete(fmt.Sprintf("%d", id))
				h.releasePeerOwnership(id)
				if h.metrics != nil {
					h.metrics.SetPeersConnected(float64(len(h.peers.Running())))
				}
				h.logger.Info("fne: pruned unresponsive peer", "peerId", id)
			}
		}),
	); err != nil {
		return fmt.Errorf("fne: schedule ping pruning: %w", err)
	}

	return nil
}

func (h *Host) reloadLookups() {
	if changed, err := h.talkgroups.Reload(); err != nil {
		h.logger.Error("fne: reload talkgroup rules", "error", err)
	} else if changed {
		h.logger.Info("fne: talkgroup rules reloaded")
	}
	if changed, err := h.peerList.Reload(); err != nil {
		h.logger.Error("fne: reload peer list", "error", err)
	} else if changed {
		h.logger.Info("fne: peer list reloaded")
	}
	if h.radioList != nil {
		if changed, err := h.radioList.Reload(); err != nil {
			h.logger.Error("fne: reload radio id list", "error", err)
		} else if changed {
			h.logger.Info("fne: radio id list reloaded")
		}
	}
}

// pollStaleCalls evicts wedged RxStatus records for every protocol and
// sends each one's final end-of-call marker downstream so a lost
// terminator never leaves a destination permanently unreachable.
func (h *Host) pollStaleCalls() {
	for _, stale := range h.dmr.PollStaleCalls() {
		h.logger.Warn("fne: dmr call activity timeout", "dstId", stale.DstID, "streamId", stale.StreamID)
	}
	for _, stale := range h.p25.PollStaleCalls() {
		h.logger.Warn("fne: p25 call activity timeout", "dstId", stale.DstID, "streamId", stale.StreamID)
	}
	for _, stale := range h.nxdn.PollStaleCalls() {
		h.logger.Warn("fne: nxdn call activity timeout", "dstId", stale.DstID, "streamId", stale.StreamID)
	}
}

// serveTraffic reads and dispatches composite-header datagrams from the
// traffic socket until it is closed.
func (h *Host) serveTraffic() error {
	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := h.traffic.ReadFrom(buf)
		if err != nil {
			return err
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		h.handleDatagram(data, addr)
	}
}

func (h *Host) handleDatagram(data []byte, addr *net.UDPAddr) {
	hdr, payload, err := rtpfne.Decode(data)
	if err != nil {
		h.logger.Warn("fne: dropping malformed frame", "error", err, "remote", addr)
		return
	}

	switch hdr.FNE.Function {
	case rtpfne.FuncRPTL:
		h.handleLogin(hdr, addr)
	case rtpfne.FuncRPTK:
		h.handleChallengeResponse(hdr, payload, addr)
	case rtpfne.FuncRPTC:
		h.handleConfig(hdr, payload, addr)
	case rtpfne.FuncRPTPing:
		h.handlePing(hdr, addr)
	case rtpfne.FuncMasterDisc, rtpfne.FuncRptDisc:
		h.handleDisconnect(hdr.FNE.PeerID)
	case rtpfne.FuncProtocol:
		h.handleProtocol(hdr, payload)
	case rtpfne.FuncKeyRsp:
		h.handleKeyResponse(hdr, payload)
	case rtpfne.FuncInCallCtrl:
		h.handleInCallCtrl(hdr, payload)
	default:
		h.logger.Debug("fne: unhandled function", "function", hdr.FNE.Function, "remote", addr)
	}
}

func (h *Host) handleLogin(hdr rtpfne.Header, addr *net.UDPAddr) {
	if !h.claimPeerOwnership(hdr.FNE.PeerID) {
		h.logger.Warn("fne: peer already owned by another instance", "peerId", hdr.FNE.PeerID)
		h.sendNAK(hdr.FNE.PeerID, addr, nakFNEMaxConn)
		return
	}

	salt, err := h.peers.HandleLogin(hdr.FNE.PeerID, "", addr)
	if err != nil {
		h.logger.Warn("fne: login rejected", "peerId", hdr.FNE.PeerID, "error", err)
		h.releasePeerOwnership(hdr.FNE.PeerID)
		h.sendNAK(hdr.FNE.PeerID, addr, nakPeerACL)
		return
	}
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, salt)
	h.sendFrame(rtpfne.FuncACK, hdr.FNE.PeerID, addr, payload)
}

func (h *Host) handleChallengeResponse(hdr rtpfne.Header, payload []byte, addr *net.UDPAddr) {
	if len(payload) < sha256.Size {
		h.sendNAK(hdr.FNE.PeerID, addr, nakIllegalPacket)
		return
	}
	var digest [32]byte
	copy(digest[:], payload[:sha256.Size])

	if err := h.peers.HandleChallengeResponse(hdr.FNE.PeerID, digest); err != nil {
		h.logger.Warn("fne: auth failed", "peerId", hdr.FNE.PeerID, "error", err)
		h.sendNAK(hdr.FNE.PeerID, addr, nakFNEUnauthorized)
		return
	}
	h.sendFrame(rtpfne.FuncACK, hdr.FNE.PeerID, addr, nil)
}

func (h *Host) handleConfig(hdr rtpfne.Header, payload []byte, addr *net.UDPAddr) {
	body := bytes.TrimRight(payload, "\x00")
	var cfg peerConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		h.sendNAK(hdr.FNE.PeerID, addr, nakInvalidConfig)
		return
	}

	if err := h.peers.HandleConfig(hdr.FNE.PeerID, cfg.Identity); err != nil {
		h.logger.Warn("fne: config rejected", "peerId", hdr.FNE.PeerID, "error", err)
		h.sendNAK(hdr.FNE.PeerID, addr, nakBadConnState)
		return
	}

	if h.metrics != nil {
		h.metrics.SetPeersConnected(float64(len(h.peers.Running())))
	}

	ackPayload := []byte{0}
	if h.activity != nil {
		ackPayload[0] |= diagnosticsEnabledBit
	}
	h.sendFrame(rtpfne.FuncACK, hdr.FNE.PeerID, addr, ackPayload)
	h.logger.Info("fne: peer running", "peerId", hdr.FNE.PeerID, "identity", cfg.Identity)
}

func (h *Host) handlePing(hdr rtpfne.Header, addr *net.UDPAddr) {
	if !h.peers.Ping(hdr.FNE.PeerID) {
		h.sendNAK(hdr.FNE.PeerID, addr, nakBadConnState)
		return
	}
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, uint64(time.Now().UnixMilli()))
	h.sendFrame(rtpfne.FuncPong, hdr.FNE.PeerID, addr, payload)
}

func (h *Host) handleDisconnect(peerID uint32) {
	if sess, ok := h.peers.Get(peerID); ok {
		h.queue.Delete(sess.RemoteAddr.String())
	}
	h.peers.Disconnect(peerID)
	h.releasePeerOwnership(peerID)
	if h.metrics != nil {
		h.metrics.SetPeersConnected(float64(len(h.peers.Running())))
	}
}

// claimPeerOwnership records this instance as the current owner of peerID in
// the shared kv store, refusing the claim if another live instance already
// holds it. With the in-memory kv backend (no Redis configured) this always
// succeeds locally, since Has/Get/Set/Expire still enforce the same
// single-owner invariant within one process. The claim expires after
// defaultPingTTLFactor ping intervals so a crashed instance's stale claim
// eventually clears without manual intervention.
func (h *Host) claimPeerOwnership(peerID uint32) bool {
	ctx := context.Background()
	key := peerOwnerKey(peerID)

	if owner, err := h.kv.Get(ctx, key); err == nil {
		if string(owner) != h.instanceID {
			return false
		}
	}

	ttl := time.Duration(h.cfg.Parrot.PingIntervalSeconds) * time.Second * defaultPingTTLFactor
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := h.kv.Set(ctx, key, []byte(h.instanceID)); err != nil {
		h.logger.Warn("fne: claim peer ownership", "peerId", peerID, "error", err)
		return true
	}
	if err := h.kv.Expire(ctx, key, ttl); err != nil {
		h.logger.Debug("fne: set peer ownership ttl", "peerId", peerID, "error", err)
	}
	return true
}

// releasePeerOwnership clears this instance's kv claim on peerID, if any, so
// another instance may immediately claim it.
func (h *Host) releasePeerOwnership(peerID uint32) {
	ctx := context.Background()
	key := peerOwnerKey(peerID)
	owner, err := h.kv.Get(ctx, key)
	if err != nil || string(owner) != h.instanceID {
		return
	}
	if err := h.kv.Delete(ctx, key); err != nil {
		h.logger.Debug("fne: release peer ownership", "peerId", peerID, "error", err)
	}
}

func (h *Host) handleProtocol(hdr rtpfne.Header, payload []byte) {
	sess, ok := h.peers.Get(hdr.FNE.PeerID)
	if !ok || sess.State != peer.Running {
		return
	}

	var (
		n        int
		err      error
		protocol string
	)
	switch hdr.FNE.SubFunction {
	case rtpfne.SubProtoDMR:
		protocol = "dmr"
		n, err = h.dmr.Process(hdr.FNE.PeerID, hdr, payload)
	case rtpfne.SubProtoP25:
		protocol = "p25"
		n, err = h.p25.Process(hdr.FNE.PeerID, hdr, payload)
	case rtpfne.SubProtoNXDN:
		protocol = "nxdn"
		n, err = h.nxdn.Process(hdr.FNE.PeerID, hdr, payload)
	default:
		return
	}

	if h.metrics != nil {
		h.metrics.IncrementFramesReceived(protocol)
	}
	if err != nil {
		h.logger.Debug("fne: frame dropped", "protocol", protocol, "kind", frameerr.KindOf(err).String(), "error", err, "peerId", hdr.FNE.PeerID)
		return
	}
	if n > 0 {
		h.flushAll()
	}
}

// flushAll drains and sends every running peer's outbound queue. A full
// fan-out calls this once per inbound frame rather than per enqueued
// datagram, since a single inbound frame can enqueue to many peers at once.
func (h *Host) flushAll() {
	for _, sess := range h.peers.Running() {
		h.flushPeer(sess)
	}
}

func (h *Host) flushPeer(sess peer.Session) {
	for _, datagram := range h.queue.Drain(sess.RemoteAddr.String()) {
		if _, err := h.traffic.WriteTo(datagram, sess.RemoteAddr); err != nil {
			h.logger.Warn("fne: send to peer failed", "peerId", sess.PeerID, "error", err)
		}
	}
}

func (h *Host) sendFrame(fn rtpfne.Function, peerID uint32, addr *net.UDPAddr, payload []byte) {
	hdr := rtpfne.Header{FNE: rtpfne.FNEHeader{Function: fn, PeerID: peerID}}
	buf := make([]byte, rtpfne.HeaderLength+len(payload))
	if _, err := hdr.Encode(buf); err != nil {
		h.logger.Error("fne: encode frame", "error", err)
		return
	}
	copy(buf[rtpfne.HeaderLength:], payload)
	if _, err := h.traffic.WriteTo(buf, addr); err != nil {
		h.logger.Warn("fne: send frame failed", "peerId", peerID, "error", err)
	}
}

func (h *Host) sendNAK(peerID uint32, addr *net.UDPAddr, reason uint16) {
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, reason)
	h.sendFrame(rtpfne.FuncNAK, peerID, addr, payload)
}

// inCallCtrl status values, per spec.md section 6's "Grant/deny commands
// with 24-bit dstId" note on FNE opcode 0x02.
const (
	inCallGrant  uint8 = 0
	inCallReject uint8 = 1
)

// rejectInCall answers a contention-dropped frame with INCALL_CTRL(REJECT)
// to the peer that lost the race, per spec.md section 4.5.
func (h *Host) rejectInCall(srcPeerID, dstID uint32) {
	sess, ok := h.peers.Get(srcPeerID)
	if !ok {
		return
	}
	payload := []byte{byte(dstID >> 16), byte(dstID >> 8), byte(dstID), inCallReject}
	h.sendFrame(rtpfne.FuncInCallCtrl, srcPeerID, sess.RemoteAddr, payload)
}

// handleInCallCtrl decodes an inbound INCALL_CTRL frame. The FNE core only
// originates these (reject replies to a stream-contention drop); an
// inbound one from a peer is logged and otherwise ignored, since no
// component in this FNE issues channel grants over this opcode today.
func (h *Host) handleInCallCtrl(hdr rtpfne.Header, payload []byte) {
	if len(payload) < 4 {
		h.logger.Debug("fne: short in-call control frame", "peerId", hdr.FNE.PeerID)
		return
	}
	dstID := uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])
	h.logger.Debug("fne: in-call control", "peerId", hdr.FNE.PeerID, "dstId", dstID, "status", payload[3])
}

// handleKeyResponse decodes an inbound KEY_RSP frame's KMM payload. Traffic
// encryption key distribution is administrative (driven by the RPC pushKey
// handler below); this path exists so a peer's key-management replies
// (Hello, inventory responses, NAKs) are parsed and logged rather than
// silently dropped, per spec.md section 1's "exchanges key-management
// messages for encrypted voice".
func (h *Host) handleKeyResponse(hdr rtpfne.Header, payload []byte) {
	frame, err := kmm.Decode(payload)
	if err != nil {
		h.logger.Warn("fne: dropping malformed kmm frame", "kind", frameerr.KindFrameMalformed.String(), "error", err, "peerId", hdr.FNE.PeerID)
		return
	}
	h.logger.Debug("fne: kmm key response", "peerId", hdr.FNE.PeerID, "messageId", frame.Header().MessageID)
}

// pushKeyRequest is the RPC sub-protocol request body for opcode
// rpcOpcodePushKey, carrying enough of a Keyset to build a MODIFY_KEY_CMD
// KMM frame addressed at one connected peer.
type pushKeyRequest struct {
	PeerID    uint32 `json:"peerId"`
	AlgID     uint8  `json:"algId"`
	KeyID     uint16 `json:"keyId"`
	KeysetID  uint8  `json:"keysetId"`
	KeyLength uint8  `json:"keyLength"`
	Keys      []struct {
		Format   uint8  `json:"format"`
		SLN      uint16 `json:"sln"`
		KeyID    uint16 `json:"keyId"`
		Material []byte `json:"material"`
	} `json:"keys"`
}

// rpcOpcodePushKey is the administrative RPC opcode that builds and sends a
// MODIFY_KEY_CMD KMM frame to a connected peer, per spec.md section 4.7's
// "administrative operations" scope and the KMM family's role distributing
// traffic-encryption keys (spec.md section 1).
const rpcOpcodePushKey uint16 = 0x0001

// registerRPCHandlers wires the administrative RPC opcodes this FNE answers.
func (h *Host) registerRPCHandlers() {
	h.rpc.Handle(rpcOpcodePushKey, h.handlePushKey)
}

func (h *Host) handlePushKey(req json.RawMessage) (any, error) {
	var body pushKeyRequest
	if err := json.Unmarshal(req, &body); err != nil {
		return rpcserver.StatusReply(rpcserver.StatusBadRequest, "malformed pushKey request"), nil
	}

	sess, ok := h.peers.Get(body.PeerID)
	if !ok || sess.State != peer.Running {
		return rpcserver.StatusReply(rpcserver.StatusInvalidArgs, "peer not connected"), nil
	}

	keys := make([]kmm.Key, 0, len(body.Keys))
	for _, k := range body.Keys {
		keys = append(keys, kmm.Key{Format: k.Format, SLN: k.SLN, KeyID: k.KeyID, Material: k.Material})
	}
	frame := kmm.ModifyKeyCmdFrame{
		Hdr:        kmm.Header{RespKind: kmm.RespNone, Complete: true, SrcLLID: uint32(body.PeerID)},
		DecryptFmt: kmm.DecryptInfoNone,
		AlgID:      body.AlgID,
		KeyID:      body.KeyID,
		Keyset: kmm.Keyset{
			KeysetID:  body.KeysetID,
			AlgID:     body.AlgID,
			KeyLength: body.KeyLength,
			Keys:      keys,
		},
	}

	buf := make([]byte, frame.Length())
	if _, err := frame.Encode(buf); err != nil {
		return rpcserver.StatusReply(rpcserver.StatusBadRequest, "failed to encode kmm frame"), nil
	}
	h.sendFrame(rtpfne.FuncKeyRsp, body.PeerID, sess.RemoteAddr, buf)
	return rpcserver.StatusReply(rpcserver.StatusOK, "key pushed"), nil
}

// Stop drains every background goroutine and closes every socket, matching
// internal/dmr/hub/hub.go's stop-once-and-wait draining discipline.
func (h *Host) Stop(ctx context.Context) error {
	var stopErr error
	h.stopOnce.Do(func() {
		h.stopping.Store(true)
		close(h.done)

		if err := h.scheduler.StopJobs(); err != nil {
			h.logger.Error("fne: stop scheduler jobs", "error", err)
		}
		if err := h.scheduler.Shutdown(); err != nil {
			h.logger.Error("fne: shutdown scheduler", "error", err)
		}

		_ = h.traffic.Close()
		_ = h.rpc.Close()
		if h.activity != nil {
			_ = h.activity.Close()
		}
		if h.admin != nil {
			if err := h.admin.Stop(ctx); err != nil {
				h.logger.Error("fne: stop admin server", "error", err)
			}
		}

		waited := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}

		if h.actLog != nil {
			if err := h.actLog.Close(); err != nil {
				h.logger.Error("fne: close activity log", "error", err)
			}
		}
		if err := h.pubsub.Close(); err != nil {
			h.logger.Error("fne: close pubsub", "error", err)
		}
		if err := h.kv.Close(); err != nil {
			h.logger.Error("fne: close kv store", "error", err)
		}
	})
	return stopErr
}
