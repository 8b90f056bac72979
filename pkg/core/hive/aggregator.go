package hive

import (
	"context"

	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/core/item"
)

// ItemLookup is the subset of *item.Store the Aggregator depends on.
type ItemLookup interface {
	Get(ctx context.Context, id string) (*item.Item, error)
}

// TelemetrySource is the subset of *telemetry.Cache the Aggregator
// depends on.
type TelemetrySource interface {
	Get(ctx context.Context) SystemHealth
}

// Aggregator assembles a HiveContext from a validated request, item
// store, and cached telemetry. Grounded on aggregator.py's perceive():
// item lookup, then system health, then assemble — and nothing else;
// the Aggregator never calls a Reasoner.
type Aggregator struct {
	items     ItemLookup
	telemetry TelemetrySource
	log       *zap.SugaredLogger
}

func NewAggregator(items ItemLookup, telemetry TelemetrySource, log *zap.SugaredLogger) *Aggregator {
	return &Aggregator{items: items, telemetry: telemetry, log: log}
}

// Perceive builds the HiveContext for one request. A missing item is
// not fatal here: item_snapshot is left nil and downstream stages
// decide (the Reasoner rejects with ITEM_NOT_FOUND).
func (a *Aggregator) Perceive(ctx context.Context, itemID string, offer NegotiationOffer, requestID string) HiveContext {
	hc := HiveContext{
		ItemID:    itemID,
		Offer:     offer,
		RequestID: requestID,
		Metadata:  map[string]any{},
	}

	it, err := a.items.Get(ctx, itemID)
	if err != nil {
		a.log.Warnw("item lookup failed", "item_id", itemID, "request_id", requestID, "error", err, "event", "aggregator_perceive")
	} else if it != nil {
		snap := it.ToSnapshot()
		hc.ItemSnapshot = &snap
	}

	hc.SystemHealth = a.telemetry.Get(ctx)

	return hc
}
