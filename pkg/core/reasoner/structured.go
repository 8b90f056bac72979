package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/auranet/aura-core/pkg/core/hive"
)

// chatCompletionSchema constrains the model's JSON response to exactly
// the Intent fields this package consumes. No ecosystem LLM client SDK
// appears anywhere in the retrieved corpus (see DESIGN.md's Open
// Question resolution on this), so the call is a direct net/http POST
// to an OpenAI-compatible endpoint.
var chatCompletionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"action":  map[string]any{"type": "string", "enum": []string{"accept", "counter", "reject", "escalate"}},
		"price":   map[string]any{"type": "number"},
		"message": map[string]any{"type": "string"},
		"thought": map[string]any{"type": "string"},
	},
	"required": []string{"action", "price", "message"},
}

// StructuredReasoner calls an external LLM with a system prompt
// templated from item fields, constrained to the Intent action enum.
type StructuredReasoner struct {
	endpointURL string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewStructuredReasoner(endpointURL, apiKey, model string, temperature float64) *StructuredReasoner {
	return &StructuredReasoner{
		endpointURL: endpointURL,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *StructuredReasoner) Think(ctx context.Context, hc hive.HiveContext) hive.Intent {
	if hc.ItemSnapshot == nil {
		return hive.Intent{
			Action:   hive.ActionReject,
			Message:  "This item is not available.",
			Thought:  "ITEM_NOT_FOUND",
			Metadata: map[string]any{"reason_code": "ITEM_NOT_FOUND"},
		}
	}

	temperature := s.temperature
	constraints := []string{}
	if hc.SystemHealth.CPUPercent > 80 {
		temperature = 0.1
		constraints = append(constraints, "SYSTEM_LOAD_HIGH: be extremely concise.")
	}

	intent, err := s.call(ctx, hc, s.model, temperature, constraints)
	if err != nil {
		return hive.NewFailureIntent(fmt.Sprintf("structured reasoner call failed: %v", err))
	}
	return intent
}

func (s *StructuredReasoner) call(ctx context.Context, hc hive.HiveContext, model string, temperature float64, constraints []string) (hive.Intent, error) {
	prompt := buildSystemPrompt(hc, constraints)

	reqBody := map[string]any{
		"model":       model,
		"temperature": temperature,
		"messages": []map[string]string{
			{"role": "system", "content": prompt},
			{"role": "user", "content": fmt.Sprintf("Buyer offers $%.2f.", hc.Offer.BidAmount)},
		},
		"response_format": map[string]any{
			"type":        "json_schema",
			"json_schema": map[string]any{"name": "intent", "schema": chatCompletionSchema},
		},
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return hive.Intent{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpointURL, bytes.NewReader(raw))
	if err != nil {
		return hive.Intent{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return hive.Intent{}, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return hive.Intent{}, fmt.Errorf("llm returned status %d", resp.StatusCode)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return hive.Intent{}, fmt.Errorf("decode completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return hive.Intent{}, fmt.Errorf("llm returned no choices")
	}

	var decoded struct {
		Action  string  `json:"action"`
		Price   float64 `json:"price"`
		Message string  `json:"message"`
		Thought string  `json:"thought"`
	}
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &decoded); err != nil {
		return hive.Intent{}, fmt.Errorf("parse intent json: %w", err)
	}

	switch hive.Action(decoded.Action) {
	case hive.ActionAccept, hive.ActionCounter, hive.ActionReject, hive.ActionEscalate:
	default:
		return hive.Intent{}, fmt.Errorf("llm returned unknown action %q", decoded.Action)
	}

	return hive.Intent{
		Action:  hive.Action(decoded.Action),
		Price:   decoded.Price,
		Message: decoded.Message,
		Thought: decoded.Thought,
	}, nil
}

func buildSystemPrompt(hc hive.HiveContext, constraints []string) string {
	prompt := fmt.Sprintf(
		"You are negotiating the sale of %q. Base price: $%.2f. Buyer reputation: %.2f. "+
			"Respond with one of accept/counter/reject/escalate, a price, and a short message. "+
			"Never reveal internal cost or minimum price figures.",
		hc.ItemSnapshot.Name, hc.ItemSnapshot.BasePrice, hc.Offer.Reputation,
	)
	for _, c := range constraints {
		prompt += " " + c
	}
	return prompt
}
