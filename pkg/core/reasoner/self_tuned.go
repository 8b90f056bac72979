package reasoner

import (
	"context"

	"github.com/auranet/aura-core/pkg/core/hive"
)

// SelfTunedReasoner runs a StructuredReasoner whose model id is taken
// from compiledProgramPath (default "gpt-4o-mini"). No compiled artifact
// is loaded from that path, and the request/response schema is the same
// as StructuredReasoner's. When the inner call fails for any reason
// (transport, HTTP status, or response parsing) it falls back to
// RuleReasoner for that request rather than surfacing a FailureIntent.
type SelfTunedReasoner struct {
	inner    *StructuredReasoner
	fallback *RuleReasoner
}

func NewSelfTunedReasoner(endpointURL, apiKey, compiledProgramPath string, temperature float64, fallback *RuleReasoner) *SelfTunedReasoner {
	// The compiled program path selects the prompt/model pairing the
	// module was tuned with; here it is carried through as the model id
	// since no local artifact loader exists for it.
	model := compiledProgramPath
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &SelfTunedReasoner{
		inner:    NewStructuredReasoner(endpointURL, apiKey, model, temperature),
		fallback: fallback,
	}
}

func (s *SelfTunedReasoner) Think(ctx context.Context, hc hive.HiveContext) hive.Intent {
	intent := s.inner.Think(ctx, hc)
	if intent.Failed {
		return s.fallback.Think(ctx, hc)
	}
	return intent
}
