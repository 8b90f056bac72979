package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/core/connector"
	"github.com/auranet/aura-core/pkg/core/emitter"
	"github.com/auranet/aura-core/pkg/core/hive"
	"github.com/auranet/aura-core/pkg/core/item"
	"github.com/auranet/aura-core/pkg/core/reasoner"
)

type fakeItemRepo struct {
	items map[string]*item.Item
}

func (r *fakeItemRepo) SaveItem(it *item.Item) error { r.items[it.ID] = it; return nil }
func (r *fakeItemRepo) GetItem(id string) (*item.Item, error) { return r.items[id], nil }
func (r *fakeItemRepo) LoadAllItems() ([]*item.Item, error) {
	out := make([]*item.Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, nil
}

type fakeTelemetry struct{ health hive.SystemHealth }

func (f fakeTelemetry) Get(ctx context.Context) hive.SystemHealth { return f.health }

type scriptedReasoner struct{ intent hive.Intent }

func (r scriptedReasoner) Think(ctx context.Context, hc hive.HiveContext) hive.Intent { return r.intent }

type engineClock struct{ now time.Time }

func (c engineClock) Now() time.Time                        { return c.now }
func (c engineClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func newTestEngine(t *testing.T, rsn reasoner.Reasoner, seed *item.Item) *Engine {
	t.Helper()
	log := zap.NewNop().Sugar()

	repo := &fakeItemRepo{items: map[string]*item.Item{}}
	store := item.NewStore(repo, 4)
	if seed != nil {
		require.NoError(t, store.Seed(seed))
	}

	telemetry := fakeTelemetry{health: hive.SystemHealth{Status: hive.HealthOK}}
	aggregator := hive.NewAggregator(store, telemetry, log)
	membrane := hive.NewMembrane(hive.Rules{MinMargin: 0.10, MaxDiscountPercent: 0.30, AllowedAddons: []string{"breakfast"}})

	clock := engineClock{now: time.Unix(1_700_000_000, 0)}
	conv := connector.NewPriceConverter(100)
	conn := connector.New(conv, nil, false, "SOL", 10*time.Minute, clock, log)

	queue := emitter.NewQueue(16)
	hub := emitter.NewHub(log)
	em := emitter.New(queue, hub, clock, "aura-core", log)

	return New(store, telemetry, rsn, aggregator, membrane, conn, nil, em, log)
}

func hotelAlpha() *item.Item {
	return &item.Item{
		ID: "hotel_alpha", Name: "Hotel Alpha",
		BasePrice: 1000, FloorPrice: 800, Active: true,
		Meta: item.Meta{"internal_cost": 600.0},
	}
}

func TestEngine_Negotiate_AcceptInRange(t *testing.T) {
	rsn := scriptedReasoner{intent: hive.Intent{Action: hive.ActionAccept, Price: 900}}
	e := newTestEngine(t, rsn, hotelAlpha())

	resp, err := e.Negotiate(context.Background(), hive.InboundRequest{ItemID: "hotel_alpha", BidAmount: 900, AgentDID: "did:key:buyer"}, "req-1")
	require.NoError(t, err)
	assert.Equal(t, connector.StatusAccepted, resp.Status)
	require.NotNil(t, resp.Accepted)
	assert.Equal(t, 900.0, resp.Accepted.FinalPrice)
}

func TestEngine_Negotiate_MembraneOverridesBelowFloor(t *testing.T) {
	rsn := scriptedReasoner{intent: hive.Intent{Action: hive.ActionAccept, Price: 500}}
	e := newTestEngine(t, rsn, hotelAlpha())

	resp, err := e.Negotiate(context.Background(), hive.InboundRequest{ItemID: "hotel_alpha", BidAmount: 500, AgentDID: "did:key:buyer"}, "req-2")
	require.NoError(t, err)
	assert.Equal(t, connector.StatusCountered, resp.Status)
	require.NotNil(t, resp.Countered)
	assert.Equal(t, 840.0, resp.Countered.ProposedPrice)
	assert.Equal(t, "FLOOR_PRICE_VIOLATION", resp.Countered.ReasonCode)
}

// TestEngine_Negotiate_RealRuleReasonerBelowFloor runs the production
// reasoner (not a scripted stand-in) through the full pipeline, so the
// BELOW_FLOOR-at-exactly-floor-price path the Membrane must rewrite is
// exercised with the same wiring main.go constructs.
func TestEngine_Negotiate_RealRuleReasonerBelowFloor(t *testing.T) {
	rsn := reasoner.NewRuleReasoner(1000)
	e := newTestEngine(t, rsn, hotelAlpha())

	resp, err := e.Negotiate(context.Background(), hive.InboundRequest{ItemID: "hotel_alpha", BidAmount: 500, AgentDID: "did:key:buyer"}, "req-real-1")
	require.NoError(t, err)
	assert.Equal(t, connector.StatusCountered, resp.Status)
	require.NotNil(t, resp.Countered)
	assert.Equal(t, 840.0, resp.Countered.ProposedPrice)
	assert.Equal(t, "FLOOR_PRICE_VIOLATION", resp.Countered.ReasonCode)
}

func TestEngine_Negotiate_RejectsNonPositiveBid(t *testing.T) {
	rsn := scriptedReasoner{intent: hive.Intent{Action: hive.ActionAccept, Price: 900}}
	e := newTestEngine(t, rsn, hotelAlpha())

	_, err := e.Negotiate(context.Background(), hive.InboundRequest{ItemID: "hotel_alpha", BidAmount: -5, AgentDID: "did:key:buyer"}, "req-3")
	assert.Error(t, err)
}

func TestEngine_Negotiate_UnknownItemStillRunsPipeline(t *testing.T) {
	rsn := scriptedReasoner{intent: hive.Intent{Action: hive.ActionReject, Metadata: map[string]any{"reason_code": "ITEM_NOT_FOUND"}}}
	e := newTestEngine(t, rsn, nil)

	resp, err := e.Negotiate(context.Background(), hive.InboundRequest{ItemID: "does-not-exist", BidAmount: 50, AgentDID: "did:key:buyer"}, "req-4")
	require.NoError(t, err)
	assert.Equal(t, connector.StatusRejected, resp.Status)
}

func TestEngine_Search_DelegatesToItemStore(t *testing.T) {
	rsn := scriptedReasoner{}
	seed := hotelAlpha()
	seed.Embedding = []float32{1, 0}
	e := newTestEngine(t, rsn, seed)

	results, err := e.Search(context.Background(), []float32{1, 0}, 3, 0)
	require.NoError(t, err)
	if assert.Len(t, results, 1) {
		assert.Equal(t, "hotel_alpha", results[0].Item.ID)
	}
}

func TestEngine_GetSystemStatus_ReturnsTelemetrySnapshot(t *testing.T) {
	rsn := scriptedReasoner{}
	e := newTestEngine(t, rsn, nil)

	status := e.GetSystemStatus(context.Background())
	assert.Equal(t, hive.HealthOK, status.Status)
}
