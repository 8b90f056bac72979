// Package reasoner implements the pluggable Reasoner strategy: a closed
// tagged-variant enum {Rule, Structured, SelfTuned} selected by config,
// per spec.md §9's replacement for runtime reflection/plugin loading.
package reasoner

import (
	"context"

	"github.com/auranet/aura-core/pkg/core/hive"
)

// Reasoner picks an Intent from a HiveContext.
type Reasoner interface {
	Think(ctx context.Context, hc hive.HiveContext) hive.Intent
}

// Select builds the Reasoner named by model ("rule", "dspy", or an
// OpenAI-compatible model id), per spec.md §6's llm.model key.
func Select(model string, endpointURL, apiKey, compiledProgramPath string, temperature float64, triggerPrice float64) Reasoner {
	rule := NewRuleReasoner(triggerPrice)
	switch model {
	case "", "rule":
		return rule
	case "dspy":
		return NewSelfTunedReasoner(endpointURL, apiKey, compiledProgramPath, temperature, rule)
	default:
		return NewStructuredReasoner(endpointURL, apiKey, model, temperature)
	}
}
