// Package engine wires the Aggregator, Reasoner, Membrane, Connector,
// and Emitter into the single negotiation pipeline spec.md §3 draws as
// A → T → Mₒ → C → G, and exposes it as the in-process "Core" surface
// the gateway calls. Grounded on the teacher's pkg/app wiring (core
// components constructed once in main, handed to the API layer as
// plain Go values — no RPC indirection between gateway and core since
// both run in the same process here).
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/core/connector"
	"github.com/auranet/aura-core/pkg/core/emitter"
	"github.com/auranet/aura-core/pkg/core/hive"
	"github.com/auranet/aura-core/pkg/core/item"
	"github.com/auranet/aura-core/pkg/core/market"
	"github.com/auranet/aura-core/pkg/core/reasoner"
)

// Engine is the orchestrator: Negotiate runs one request through every
// pipeline stage in order; Search, GetSystemStatus, and CheckDealStatus
// expose the remaining Core operations the gateway proxies.
type Engine struct {
	items      *item.Store
	telemetry  hive.TelemetrySource
	reasoner   reasoner.Reasoner
	aggregator *hive.Aggregator
	membrane   *hive.Membrane
	connector  *connector.Connector
	market     *market.Market
	emitter    *emitter.Emitter
	log        *zap.SugaredLogger
}

func New(
	items *item.Store,
	telemetry hive.TelemetrySource,
	rsn reasoner.Reasoner,
	aggregator *hive.Aggregator,
	membrane *hive.Membrane,
	conn *connector.Connector,
	mkt *market.Market,
	em *emitter.Emitter,
	log *zap.SugaredLogger,
) *Engine {
	return &Engine{
		items:      items,
		telemetry:  telemetry,
		reasoner:   rsn,
		aggregator: aggregator,
		membrane:   membrane,
		connector:  conn,
		market:     mkt,
		emitter:    em,
		log:        log,
	}
}

// Negotiate runs the full A → T → Mₒ → C → G pipeline for one inbound
// offer. Emitter publication is always attempted, win or lose, and
// never turns a pipeline error into a bigger one: publish failures are
// logged inside Emitter itself.
func (e *Engine) Negotiate(ctx context.Context, rawReq hive.InboundRequest, requestID string) (*connector.NegotiateResponse, error) {
	req, err := hive.InspectInbound(rawReq)
	if err != nil {
		e.emitter.PublishEvent("negotiate", false, "")
		return nil, fmt.Errorf("inbound validation failed: %w", err)
	}

	offer := hive.NegotiationOffer{BidAmount: req.BidAmount, AgentDID: req.AgentDID}
	hc := e.aggregator.Perceive(ctx, req.ItemID, offer, requestID)

	intent := e.reasoner.Think(ctx, hc)
	intent = e.membrane.Inspect(intent, hc)

	resp, err := e.connector.Act(ctx, intent, hc, req.AgentDID)
	if err != nil {
		e.emitter.PublishEvent("negotiate", false, "")
		return nil, fmt.Errorf("connector act failed: %w", err)
	}

	e.emitter.PublishEvent("negotiate", true, resp.SessionToken)
	e.emitter.PublishHeartbeat()
	return resp, nil
}

// Search runs a catalog similarity search, bypassing the negotiation
// pipeline entirely (no Reasoner, no Membrane — spec.md §4.2 treats
// Search as a pure ItemStore read).
func (e *Engine) Search(ctx context.Context, query []float32, limit int, minSimilarity float64) ([]item.ScoredItem, error) {
	return e.items.Search(ctx, query, limit, minSimilarity)
}

// GetSystemStatus surfaces the same TelemetryCache snapshot the
// Aggregator consumes, for the gateway's /v1/system/status endpoint.
func (e *Engine) GetSystemStatus(ctx context.Context) hive.SystemHealth {
	return e.telemetry.Get(ctx)
}

// CheckDealStatus proxies to Market's idempotent resolver.
func (e *Engine) CheckDealStatus(ctx context.Context, dealID uuid.UUID) (*market.StatusResult, error) {
	return e.market.CheckDealStatus(ctx, dealID)
}
