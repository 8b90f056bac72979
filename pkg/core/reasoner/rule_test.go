package reasoner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/auranet/aura-core/pkg/core/hive"
	"github.com/auranet/aura-core/pkg/core/item"
)

func hotelAlphaSnapshot() *item.Snapshot {
	return &item.Snapshot{
		ID: "hotel_alpha", Name: "Hotel Alpha",
		BasePrice: 1000, FloorPrice: 800, Active: true,
		Meta: item.Meta{"internal_cost": 600.0},
	}
}

func TestRuleReasoner_RejectsUnknownItem(t *testing.T) {
	r := NewRuleReasoner(1000)
	out := r.Think(context.Background(), hive.HiveContext{ItemID: "missing"})

	assert.Equal(t, hive.ActionReject, out.Action)
	assert.Equal(t, "ITEM_NOT_FOUND", out.Metadata["reason_code"])
}

func TestRuleReasoner_EscalatesAboveTriggerPrice(t *testing.T) {
	r := NewRuleReasoner(1000)
	hc := hive.HiveContext{ItemSnapshot: hotelAlphaSnapshot(), Offer: hive.NegotiationOffer{BidAmount: 1200}}

	out := r.Think(context.Background(), hc)

	assert.Equal(t, hive.ActionEscalate, out.Action)
	assert.Equal(t, 1200.0, out.Price)
}

func TestRuleReasoner_CountersAtFloorWhenBelowFloor(t *testing.T) {
	r := NewRuleReasoner(1000)
	hc := hive.HiveContext{ItemSnapshot: hotelAlphaSnapshot(), Offer: hive.NegotiationOffer{BidAmount: 500}}

	out := r.Think(context.Background(), hc)

	assert.Equal(t, hive.ActionCounter, out.Action)
	assert.Equal(t, 800.0, out.Price)
	assert.Equal(t, "BELOW_FLOOR", out.Metadata["reason_code"])
}

func TestRuleReasoner_AcceptsWithinRange(t *testing.T) {
	r := NewRuleReasoner(1000)
	hc := hive.HiveContext{ItemSnapshot: hotelAlphaSnapshot(), Offer: hive.NegotiationOffer{BidAmount: 900}}

	out := r.Think(context.Background(), hc)

	assert.Equal(t, hive.ActionAccept, out.Action)
	assert.Equal(t, 900.0, out.Price)
}

func TestRuleReasoner_DefaultsTriggerPriceWhenNonPositive(t *testing.T) {
	r := NewRuleReasoner(0)
	assert.Equal(t, 1000.0, r.triggerPrice)
}

// TestRuleReasoner_BelowFloorThroughMembrane is the direct regression
// test for the wire invariant: RuleReasoner's BELOW_FLOOR branch
// counters at exactly floor_price, which is still below floor*1.05 and
// must be rewritten by the Membrane rather than pass through untouched.
func TestRuleReasoner_BelowFloorThroughMembrane(t *testing.T) {
	r := NewRuleReasoner(1000)
	m := hive.NewMembrane(hive.Rules{MinMargin: 0.10, MaxDiscountPercent: 0.30})
	hc := hive.HiveContext{ItemSnapshot: hotelAlphaSnapshot(), Offer: hive.NegotiationOffer{BidAmount: 500}}

	intent := r.Think(context.Background(), hc)
	out := m.Inspect(intent, hc)

	assert.Equal(t, hive.ActionCounter, out.Action)
	assert.InDelta(t, 840.0, out.Price, 0.001)
	assert.Equal(t, "FLOOR_PRICE_VIOLATION", out.Metadata["override_reason"])
}
