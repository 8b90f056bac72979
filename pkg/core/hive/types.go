// Package hive implements the negotiation metabolism's Aggregator and
// Membrane: context assembly and deterministic safety enforcement,
// grounded on the original Python hive/aggregator.py and hive/membrane.py
// but re-architected per spec.md §9 (no exceptions-as-control-flow, a
// single Reasoner interface, an explicit wired context instead of
// globals).
package hive

import "github.com/auranet/aura-core/pkg/core/item"

// Action is the closed set of outcomes a Reasoner or Membrane may
// produce for a negotiation.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionCounter  Action = "counter"
	ActionReject   Action = "reject"
	ActionEscalate Action = "escalate"
)

// HealthStatus is the coarse verdict TelemetryCache reports.
type HealthStatus string

const (
	HealthOK      HealthStatus = "ok"
	HealthPartial HealthStatus = "partial"
	HealthUnknown HealthStatus = "unknown"
)

// SystemHealth is the Aggregator's telemetry snapshot, surfaced to both
// the Reasoner and the /v1/system/status endpoint.
type SystemHealth struct {
	Status     HealthStatus `json:"status"`
	CPUPercent float64      `json:"cpu_usage_percent"`
	MemoryMB   float64      `json:"memory_usage_mb"`
	Cached     bool         `json:"cached"`
	Warning    string       `json:"warning,omitempty"`
}

// NegotiationOffer is the validated inbound bid.
type NegotiationOffer struct {
	BidAmount  float64
	AgentDID   string
	Reputation float64
}

// HiveContext is the ephemeral per-request context the Aggregator
// builds and every downstream stage consumes.
type HiveContext struct {
	ItemID       string
	Offer        NegotiationOffer
	ItemSnapshot *item.Snapshot // nil when the item was not found
	SystemHealth SystemHealth
	RequestID    string
	Metadata     map[string]any
}

// Intent is the post-reasoning, pre-serialization decision.
type Intent struct {
	Action   Action
	Price    float64
	Message  string
	Thought  string
	Metadata map[string]any

	// Failed marks a FailureIntent: the Reasoner errored and Membrane's
	// failure-recovery rule must rewrite this before it reaches the
	// Connector. Carries no meaningful Action/Price/Message of its own.
	Failed bool
}

// NewFailureIntent builds the tagged variant the Reasoner returns in
// place of throwing, per spec.md §9.
func NewFailureIntent(reason string) Intent {
	return Intent{
		Failed:   true,
		Thought:  reason,
		Metadata: map[string]any{},
	}
}

func (i Intent) metadataOrNew() map[string]any {
	if i.Metadata == nil {
		return map[string]any{}
	}
	return i.Metadata
}
