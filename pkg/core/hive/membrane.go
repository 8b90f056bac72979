package hive

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/auranet/aura-core/pkg/core/item"
)

// injectionPatterns is the closed set of known prompt-injection
// substrings the inbound membrane redacts, taken verbatim from the
// original hive/membrane.py inspect_inbound.
var injectionPatterns = []string{
	"ignore all previous instructions",
	"ignore previous instructions",
	"system override",
	"act as a",
	"you are now",
	"disregard",
}

const dlpBlockMessage = "I've reviewed the offer, and I've provided my best possible response. I cannot disclose internal pricing details."

// InboundRequest is the pre-Aggregator shape the gateway decodes a
// negotiate request into.
type InboundRequest struct {
	ItemID     string
	BidAmount  float64
	AgentDID   string
}

// InspectInbound rejects non-positive bids and redacts known
// prompt-injection patterns from free-form fields before they ever
// reach the Aggregator or a lookup.
func InspectInbound(req InboundRequest) (InboundRequest, error) {
	if req.BidAmount <= 0 {
		return req, fmt.Errorf("bid_amount must be > 0, got %v", req.BidAmount)
	}

	if containsInjection(req.ItemID) {
		req.ItemID = "INVALID_ID_POTENTIAL_INJECTION"
	}
	if containsInjection(req.AgentDID) {
		req.AgentDID = "REDACTED"
	}
	return req, nil
}

func containsInjection(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range injectionPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Rules holds the Membrane's configurable economic guardrails.
type Rules struct {
	MinMargin          float64
	MaxDiscountPercent float64
	AllowedAddons      []string
}

// Membrane is the deterministic post-processor that enforces the
// economic and data-leak invariants on every Intent a Reasoner
// produces. Runs after every Reasoner call; never calls the network.
type Membrane struct {
	rules Rules
}

func NewMembrane(rules Rules) *Membrane {
	return &Membrane{rules: rules}
}

// Inspect applies the Membrane's rule chain in order, rewriting intent
// as needed. All rewrites preserve the pre-rewrite action/price in
// metadata.original_action / metadata.original_price.
func (m *Membrane) Inspect(intent Intent, hc HiveContext) Intent {
	// Rule 1: failure recovery.
	if intent.Failed {
		return m.override(intent, hc, ActionCounter, floorTimes105(hc), "FAILURE_RECOVERY",
			"I'm unable to process this offer right now. Please try again shortly.")
	}

	// Rule 2: DLP.
	if strings.Contains(strings.ToLower(intent.Message), "floor_price") {
		intent.Message = dlpBlockMessage
		intent.Thought = strings.TrimSpace(intent.Thought + " [MEMBRANE: DLP block for 'floor_price' leak]")
	}

	// Rule 3: non-price actions skip the remaining rules.
	if intent.Action == ActionReject || intent.Action == ActionEscalate {
		return intent
	}

	if hc.ItemSnapshot == nil {
		return intent
	}
	floor := hc.ItemSnapshot.FloorPrice
	base := hc.ItemSnapshot.BasePrice
	internalCost := hc.ItemSnapshot.Meta.InternalCost()

	// Rule 4: floor breach. The wire invariant is price >= floor*1.05,
	// not price >= floor: a Reasoner that counters at exactly floor
	// (RuleReasoner's BELOW_FLOOR branch) must still be rewritten here.
	if intent.Price < floor*1.05 {
		return m.override(intent, hc, ActionCounter, floor*1.05, "FLOOR_PRICE_VIOLATION", "")
	}

	// Rule 5: minimum margin, fixed to margin-on-revenue — (price-cost)/price
	// — since that is the only reading consistent with both cost and
	// price moving together as price rises.
	minMargin := m.rules.MinMargin
	if minMargin < 0 || minMargin >= 1.0 {
		minMargin = 0.10
	}
	if internalCost > 0 {
		required := internalCost / (1 - minMargin)
		if intent.Price < required {
			return m.override(intent, hc, ActionCounter, required, "MIN_MARGIN_VIOLATION", "")
		}
	}

	// Rule 6: max discount.
	if base > 0 && (base-intent.Price)/base > m.rules.MaxDiscountPercent {
		return m.override(intent, hc, ActionCounter, base*(1-m.rules.MaxDiscountPercent), "DISCOUNT_LIMIT", "")
	}

	// Rule 7: addon whitelist.
	if addon, ok := m.disallowedAddonMentioned(intent.Message, hc.ItemSnapshot.Meta.ValueAddInventory()); ok {
		meta := intent.metadataOrNew()
		meta["disallowed_addon"] = addon
		intent.Metadata = meta
		return m.override(intent, hc, ActionCounter, floor*1.05, "ADDON_NOT_WHITELISTED", "")
	}

	return intent
}

func floorTimes105(hc HiveContext) float64 {
	if hc.ItemSnapshot == nil {
		return 0
	}
	return hc.ItemSnapshot.FloorPrice * 1.05
}

// override rewrites intent to a safe counter at price, recording the
// original action/price and the override reason in metadata, per
// spec.md §4.4's "all rewrites preserve the original action and price".
func (m *Membrane) override(intent Intent, hc HiveContext, action Action, price float64, reason, message string) Intent {
	meta := intent.metadataOrNew()
	meta["original_action"] = intent.Action
	meta["original_price"] = intent.Price
	meta["override_reason"] = reason

	if message == "" {
		message = fmt.Sprintf("I've reached my final limit for this item. My best offer is $%.2f.", price)
	}

	return Intent{
		Action:   action,
		Price:    price,
		Message:  message,
		Thought:  strings.TrimSpace(intent.Thought + " [MEMBRANE: " + reason + "]"),
		Metadata: meta,
	}
}

var wordSplitter = regexp.MustCompile(`[a-zA-Z0-9]+`)

// disallowedAddonMentioned returns the first addon item-name that
// appears (case-insensitive, whole-word) in message but is not present
// in the configured allowed-addons whitelist.
func (m *Membrane) disallowedAddonMentioned(message string, addons []item.AddOn) (string, bool) {
	if len(addons) == 0 {
		return "", false
	}
	words := make(map[string]bool)
	for _, w := range wordSplitter.FindAllString(strings.ToLower(message), -1) {
		words[w] = true
	}

	allowed := make(map[string]bool, len(m.rules.AllowedAddons))
	for _, a := range m.rules.AllowedAddons {
		allowed[strings.ToLower(strings.TrimSpace(a))] = true
	}

	for _, addon := range addons {
		name := strings.ToLower(addon.Item)
		if !mentionedAsWhole(words, name) {
			continue
		}
		if !allowed[name] {
			return addon.Item, true
		}
	}
	return "", false
}

func mentionedAsWhole(words map[string]bool, phrase string) bool {
	parts := wordSplitter.FindAllString(phrase, -1)
	if len(parts) == 0 {
		return false
	}
	for _, p := range parts {
		if !words[p] {
			return false
		}
	}
	return true
}
