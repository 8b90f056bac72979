package reasoner

import (
	"context"
	"fmt"

	"github.com/auranet/aura-core/pkg/core/hive"
)

// RuleReasoner is the deterministic strategy from spec.md §4.3: no
// network call, no model, three ordered rules.
type RuleReasoner struct {
	triggerPrice float64
}

func NewRuleReasoner(triggerPrice float64) *RuleReasoner {
	if triggerPrice <= 0 {
		triggerPrice = 1000
	}
	return &RuleReasoner{triggerPrice: triggerPrice}
}

func (r *RuleReasoner) Think(_ context.Context, hc hive.HiveContext) hive.Intent {
	if hc.ItemSnapshot == nil {
		return hive.Intent{
			Action:  hive.ActionReject,
			Price:   0,
			Message: "This item is not available.",
			Thought: "ITEM_NOT_FOUND",
			Metadata: map[string]any{
				"reason_code": "ITEM_NOT_FOUND",
			},
		}
	}

	bid := hc.Offer.BidAmount
	floor := hc.ItemSnapshot.FloorPrice

	if bid > r.triggerPrice {
		return hive.Intent{
			Action:  hive.ActionEscalate,
			Price:   bid,
			Message: "Your offer requires confirmation before we can proceed.",
			Thought: "bid exceeds trigger_price, escalating to human-in-the-loop",
			Metadata: map[string]any{
				"template_id": "high_value_confirm",
			},
		}
	}

	if bid < floor {
		return hive.Intent{
			Action:  hive.ActionCounter,
			Price:   floor,
			Message: fmt.Sprintf("I can't go that low, but I can offer it at $%.2f.", floor),
			Thought: "BELOW_FLOOR",
			Metadata: map[string]any{
				"reason_code": "BELOW_FLOOR",
			},
		}
	}

	return hive.Intent{
		Action:  hive.ActionAccept,
		Price:   bid,
		Message: fmt.Sprintf("Deal! I accept your offer of $%.2f.", bid),
		Thought: "bid within acceptable range",
	}
}
