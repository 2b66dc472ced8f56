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

// Package router implements the shared stream-routing engine used by all
// three LMR protocols: admission against the talkgroup rule table, rewrite
// and fan-out to subscribed peers, parrot record/replay, and end-of-call
// bookkeeping. Each protocol gets a thin wrapper (dmr.go, p25.go, nxdn.go)
// binding the shared Engine to its own reserved ids and its own framing for
// end-of-call detection and slot rewriting, since the engine itself treats
// an LMR payload as an opaque octet string.
package router

import (
	"errors"
	"sync"
	"time"

	"github.com/dvm-project/fne/internal/affiliation"
	"github.com/dvm-project/fne/internal/frame/rtpfne"
	"github.com/dvm-project/fne/internal/frameerr"
	"github.com/dvm-project/fne/internal/lookup"
	"github.com/dvm-project/fne/internal/peer"
	"github.com/dvm-project/fne/internal/transport"
)

// CallType distinguishes how a stream's destination id should be resolved.
type CallType uint8

const (
	GroupVoice CallType = iota
	PrivateVoice
	Data
)

// PeerDirectory reports the peers currently in the Running state.
type PeerDirectory interface {
	Running() []peer.Session
}

// RewriteFunc mutates a copy of payload to reflect a talkgroup rewrite
// rule: the destination id always, and for DMR the slot marker bit as
// well. Each protocol adapter knows its own payload's dst-id byte offset,
// since the engine treats the payload as opaque.
type RewriteFunc func(payload []byte, target lookup.RewriteTarget) []byte

// writeDstID24 overwrites the big-endian 24-bit destination id at offset in
// payload with tgid, per spec.md section 4.5's "mutate the destination id …
// before forwarding".
func writeDstID24(payload []byte, offset int, tgid uint32) {
	payload[offset] = byte(tgid >> 16)
	payload[offset+1] = byte(tgid >> 8)
	payload[offset+2] = byte(tgid)
}

// EndOfCallFunc reports whether payload carries this protocol's
// end-of-call marker (DMR/P25 TDU(LC), NXDN terminator).
type EndOfCallFunc func(payload []byte) bool

var (
	// ErrDestinationDenied is returned when the talkgroup rule table rejects
	// dstID (inactive, or the rule's permitted-RID list excludes srcID).
	ErrDestinationDenied = errors.New("router: destination denied by talkgroup rules")
	// ErrNoSubscribers is returned when a group call has no reachable,
	// eligible peers once exclusion/inclusion/affiliation is applied.
	ErrNoSubscribers = errors.New("router: no reachable subscribers for destination")
	// ErrPeerUnreachable is returned when a private call's destination peer
	// cannot be located.
	ErrPeerUnreachable = errors.New("router: destination peer unreachable")
	// ErrCallContention is returned when a second stream id tries to claim a
	// destination that already has an active inbound call.
	ErrCallContention = errors.New("router: destination already has an active call")
)

// DropFunc is notified whenever a frame is dropped, naming the reason so a
// caller can feed it to a metrics counter without this package depending on
// the metrics package.
type DropFunc func(reason string)

// RxStatus is the receive-side admission record for one destination's
// active inbound call, per spec.md section 4.5.
type RxStatus struct {
	CallStartTime time.Time
	SrcID         uint32
	DstID         uint32
	StreamID      uint32
}

// Engine is one protocol's routing engine. It holds no protocol-specific
// knowledge beyond the hooks and reserved ids configured on it.
type Engine struct {
	protocol  string
	queue     *transport.FrameQueue
	rules     *lookup.TalkgroupTable
	peers     PeerDirectory
	grants    *affiliation.Engine
	parrot    *parrotBuffer
	rewrite   RewriteFunc
	endOfCall EndOfCallFunc

	parrotDest  uint32
	unlinkDest  uint32
	callTimeout time.Duration

	rxMu     sync.Mutex
	rxStatus map[uint32]RxStatus

	onDrop      DropFunc
	onParrotEnd ParrotEndFunc
	onReject    RejectFunc
}

// ParrotEndFunc is invoked when a parrot-destination stream's end-of-call
// marker is recorded, naming the originating peer and stream so a caller can
// schedule ReplayParrot after its configured delay. The engine never replays
// on its own: doing so here would race a caller that wants to inspect the
// recorded frames first, as the test suite does.
type ParrotEndFunc func(srcPeerID, streamID uint32)

// RejectFunc is invoked when an inbound frame is dropped for stream
// contention, naming the peer that lost the race and the destination it
// was denied, so a caller can answer with INCALL_CTRL(REJECT) per spec.md
// section 4.5's "optionally respond with INCALL_CTRL(REJECT)" note.
type RejectFunc func(srcPeerID, dstID uint32)

// New creates a routing engine for one protocol.
func New(protocol string, queue *transport.FrameQueue, rules *lookup.TalkgroupTable, peers PeerDirectory, grants *affiliation.Engine, rewrite RewriteFunc, endOfCall EndOfCallFunc, parrotDest, unlinkDest uint32, callTimeout time.Duration) *Engine {
	return &Engine{
		protocol:    protocol,
		queue:       queue,
		rules:       rules,
		peers:       peers,
		grants:      grants,
		parrot:      newParrotBuffer(),
		rewrite:     rewrite,
		endOfCall:   endOfCall,
		parrotDest:  parrotDest,
		unlinkDest:  unlinkDest,
		callTimeout: callTimeout,
		rxStatus:    make(map[uint32]RxStatus),
	}
}

// OnDrop registers a callback invoked whenever a frame is dropped.
func (e *Engine) OnDrop(fn DropFunc) { e.onDrop = fn }

// OnParrotEnd registers a callback invoked whenever a parrot-destination
// stream's end-of-call marker is recorded.
func (e *Engine) OnParrotEnd(fn ParrotEndFunc) { e.onParrotEnd = fn }

// OnReject registers a callback invoked whenever an inbound frame is
// dropped for stream contention against a destination that already has an
// active call.
func (e *Engine) OnReject(fn RejectFunc) { e.onReject = fn }

func (e *Engine) drop(reason string) {
	if e.onDrop != nil {
		e.onDrop(reason)
	}
}

// Route admits and forwards one inbound frame. srcPeerID is the peer the
// frame arrived from (excluded from group fan-out unless the rule is
// marked parrot); dstID and srcID are the protocol payload's addressing
// fields, already parsed by the caller's protocol-specific adapter. slot is
// meaningful only for DMR; other protocols pass 0.
func (e *Engine) Route(srcPeerID, dstID, srcID uint32, slot uint8, callType CallType, hdr rtpfne.Header, payload []byte) (int, error) {
	endOfCall := e.endOfCall != nil && e.endOfCall(payload)
	streamID := hdr.FNE.StreamID

	if dstID == e.parrotDest && callType == GroupVoice {
		e.parrot.record(streamID, hdr, payload, endOfCall)
		if endOfCall {
			e.clearStream(dstID)
			if e.onParrotEnd != nil {
				e.onParrotEnd(srcPeerID, streamID)
			}
		}
		return 0, nil
	}

	if dstID == e.unlinkDest && callType == GroupVoice {
		e.grants.ClearGroupAff(0, true)
		return 0, nil
	}

	if !endOfCall && !e.admit(dstID, srcID, streamID) {
		e.drop("contention")
		if e.onReject != nil {
			e.onReject(srcPeerID, dstID)
		}
		return 0, frameerr.Wrap(frameerr.KindStreamContention, ErrCallContention)
	}

	rule, ok := e.rules.Lookup(dstID, slot)
	if !ok || (callType == GroupVoice && !rule.PermittedRID(srcID)) {
		e.drop("acl")
		e.clearStream(dstID)
		return 0, frameerr.Wrap(frameerr.KindPeerACLDenied, ErrDestinationDenied)
	}

	if e.grants != nil {
		e.grants.TouchGrant(dstID)
	}

	var (
		n   int
		err error
	)
	switch callType {
	case GroupVoice, Data:
		n, err = e.fanOutGroup(srcPeerID, dstID, slot, rule, hdr, payload, endOfCall)
	case PrivateVoice:
		n, err = e.deliverPrivate(dstID, hdr, payload, endOfCall)
	}

	if rule.Parrot {
		e.parrot.record(streamID, hdr, payload, endOfCall)
	}

	if endOfCall {
		e.clearStream(dstID)
	}
	return n, err
}

func (e *Engine) fanOutGroup(srcPeerID, dstID uint32, slot uint8, rule lookup.TalkgroupRule, hdr rtpfne.Header, payload []byte, endOfCall bool) (int, error) {
	delivered := 0
	for _, sess := range e.peers.Running() {
		if sess.PeerID == srcPeerID && !rule.Parrot {
			continue
		}
		if rule.Excluded(sess.PeerID) {
			continue
		}
		if rule.Affiliated && e.grants != nil && !e.grants.IsGroupAff(sess.PeerID, dstID) && !rule.AlwaysSend(sess.PeerID) {
			continue
		}

		outPayload := payload
		if target, ok := rule.Rewrite(sess.PeerID, dstID, slot); ok && e.rewrite != nil {
			outPayload = e.rewrite(append([]byte(nil), payload...), target)
		}

		if _, err := e.queue.Enqueue(sess.RemoteAddr.String(), hdr, outPayload, endOfCall); err == nil {
			delivered++
		}
	}
	if delivered == 0 {
		e.drop("no-subscribers")
		return 0, frameerr.Wrap(frameerr.KindPeerACLDenied, ErrNoSubscribers)
	}
	return delivered, nil
}

func (e *Engine) deliverPrivate(dstID uint32, hdr rtpfne.Header, payload []byte, endOfCall bool) (int, error) {
	for _, sess := range e.peers.Running() {
		if sess.PeerID != dstID {
			continue
		}
		if _, err := e.queue.Enqueue(sess.RemoteAddr.String(), hdr, payload, endOfCall); err != nil {
			return 0, err
		}
		return 1, nil
	}
	e.drop("peer-unreachable")
	return 0, frameerr.Wrap(frameerr.KindPeerACLDenied, ErrPeerUnreachable)
}

// admit enforces the at-most-one-concurrent-call-per-destination rule.
func (e *Engine) admit(dstID, srcID, streamID uint32) bool {
	e.rxMu.Lock()
	defer e.rxMu.Unlock()
	cur, ok := e.rxStatus[dstID]
	if ok && cur.StreamID != streamID {
		if e.callTimeout > 0 && time.Since(cur.CallStartTime) > e.callTimeout {
			ok = false
		} else {
			return false
		}
	}
	if ok {
		cur.CallStartTime = time.Now()
		e.rxStatus[dstID] = cur
		return true
	}
	e.rxStatus[dstID] = RxStatus{CallStartTime: time.Now(), SrcID: srcID, DstID: dstID, StreamID: streamID}
	return true
}

func (e *Engine) clearStream(dstID uint32) {
	e.rxMu.Lock()
	delete(e.rxStatus, dstID)
	e.rxMu.Unlock()
}

// PollStaleCalls evicts any RxStatus whose destination has seen no traffic
// within the configured call-activity timeout, returning the evicted
// records so the caller can emit each one's final 0xFFFF frame.
func (e *Engine) PollStaleCalls() []RxStatus {
	if e.callTimeout <= 0 {
		return nil
	}
	e.rxMu.Lock()
	defer e.rxMu.Unlock()
	var stale []RxStatus
	now := time.Now()
	for dst, st := range e.rxStatus {
		if now.Sub(st.CallStartTime) > e.callTimeout {
			stale = append(stale, st)
			delete(e.rxStatus, dst)
		}
	}
	return stale
}

// ActiveStreamCount returns the number of destinations with a currently
// admitted inbound call, for the admin surface's stats snapshot.
func (e *Engine) ActiveStreamCount() int {
	e.rxMu.Lock()
	defer e.rxMu.Unlock()
	return len(e.rxStatus)
}

// ReplayParrot returns the recorded frames for streamID and forgets them;
// callers schedule this after the configured parrot delay once the stream's
// end-of-call marker has been recorded.
func (e *Engine) ReplayParrot(streamID uint32) []ParrotFrame {
	return e.parrot.take(streamID)
}
