// Package emitter implements the pipeline's terminal stage (G): it
// publishes best-effort audit and heartbeat events without ever failing
// the RPC that triggered them, per spec.md §4.7.
package emitter

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// EventEnvelope is the payload published to aura.hive.events.<event_type>.
type EventEnvelope struct {
	Success      bool   `json:"success"`
	EventType    string `json:"event_type"`
	Timestamp    int64  `json:"timestamp"`
	SessionToken string `json:"session_token,omitempty"`
}

// Heartbeat is the payload published to aura.hive.heartbeat.
type Heartbeat struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Service   string `json:"service"`
}

// Clock matches util.Clock's surface without importing it, keeping this
// package's dependency graph a leaf.
type Clock interface {
	Now() time.Time
}

// Emitter queues and fans out events. Publication never blocks the
// caller: PublishEvent and PublishHeartbeat only enqueue; a background
// goroutine started by Run drains the queue onto the Hub.
type Emitter struct {
	queue   *Queue
	hub     *Hub
	clock   Clock
	service string
	log     *zap.SugaredLogger
}

func New(queue *Queue, hub *Hub, clock Clock, service string, log *zap.SugaredLogger) *Emitter {
	return &Emitter{queue: queue, hub: hub, clock: clock, service: service, log: log}
}

// PublishEvent enqueues an audit event for the given completed request.
// Marshal failures are logged and swallowed: per spec.md §4.7 a publish
// failure must never fail the RPC.
func (e *Emitter) PublishEvent(eventType string, success bool, sessionToken string) {
	env := EventEnvelope{
		Success:      success,
		EventType:    eventType,
		Timestamp:    e.clock.Now().Unix(),
		SessionToken: sessionToken,
	}
	data, err := json.Marshal(env)
	if err != nil {
		e.log.Warnw("emitter: marshal event failed", "error", err, "event_type", eventType)
		return
	}
	e.queue.Push("aura.hive.events."+eventType, data)
}

// PublishHeartbeat enqueues a liveness heartbeat.
func (e *Emitter) PublishHeartbeat() {
	hb := Heartbeat{
		Status:    "active",
		Timestamp: e.clock.Now().Unix(),
		Service:   e.service,
	}
	data, err := json.Marshal(hb)
	if err != nil {
		e.log.Warnw("emitter: marshal heartbeat failed", "error", err)
		return
	}
	e.queue.Push("aura.hive.heartbeat", data)
}

// Run drains the queue onto the hub on a fixed tick until ctx is
// cancelled. Draining on a tick rather than per-push keeps publish
// itself non-blocking and bounds worst-case fan-out latency.
func (e *Emitter) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = 200 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.flush()
			return
		case <-ticker.C:
			e.flush()
		}
	}
}

func (e *Emitter) flush() {
	for _, env := range e.queue.Drain() {
		e.hub.broadcastTo(env.channel, env.data)
	}
	if dropped := e.queue.Dropped(); dropped > 0 {
		e.log.Warnw("emitter: queue saturated, events dropped", "dropped_total", dropped)
	}
}
