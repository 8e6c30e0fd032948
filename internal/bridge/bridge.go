// Package bridge defines the contract between the local compute engine and a
// remote orchestration node. Only the interfaces and a best-effort local
// buffer live here; the actual transport is owned by an external component.
// Loss of connectivity must never affect local simulation correctness, so
// every outbound emit is non-blocking and allowed to drop.
package bridge

import (
	"sync/atomic"
	"time"

	"plegma/internal/model"
)

type Heartbeat struct {
	NodeID string    `json:"node_id"`
	At     time.Time `json:"at"`
}

type MetricsPush struct {
	NodeID  string         `json:"node_id"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

type StatusPush struct {
	ClusterID string    `json:"cluster_id"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// Emitter sends outbound pushes to the remote orchestrator. Implementations
// must return immediately; dropping under pressure is the specified behavior.
type Emitter interface {
	EmitHeartbeat(Heartbeat)
	EmitMetrics(MetricsPush)
	EmitStatus(StatusPush)
}

// RuleSink accepts inbound rule-set pushes from the remote orchestrator.
// The engine facade implements it on top of the registry.
type RuleSink interface {
	ApplyRules(clusterID string, rule model.RuleSet) error
}

// Noop discards every push.
type Noop struct{}

func (Noop) EmitHeartbeat(Heartbeat) {}
func (Noop) EmitMetrics(MetricsPush) {}
func (Noop) EmitStatus(StatusPush)   {}

// Push is the tagged union a transport drains from a ChannelEmitter.
type Push struct {
	Heartbeat *Heartbeat
	Metrics   *MetricsPush
	Status    *StatusPush
}

// ChannelEmitter buffers pushes for an external transport goroutine. When
// the buffer is full the push is dropped and counted, never blocked on.
type ChannelEmitter struct {
	ch      chan Push
	dropped atomic.Uint64
}

func NewChannelEmitter(buffer int) *ChannelEmitter {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelEmitter{ch: make(chan Push, buffer)}
}

func (e *ChannelEmitter) Pushes() <-chan Push {
	return e.ch
}

func (e *ChannelEmitter) Dropped() uint64 {
	return e.dropped.Load()
}

func (e *ChannelEmitter) EmitHeartbeat(h Heartbeat) {
	e.offer(Push{Heartbeat: &h})
}

func (e *ChannelEmitter) EmitMetrics(m MetricsPush) {
	e.offer(Push{Metrics: &m})
}

func (e *ChannelEmitter) EmitStatus(s StatusPush) {
	e.offer(Push{Status: &s})
}

func (e *ChannelEmitter) offer(p Push) {
	select {
	case e.ch <- p:
	default:
		e.dropped.Add(1)
	}
}
