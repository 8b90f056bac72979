// Package connector implements the Connector (C) stage: it serializes a
// post-Membrane Intent into the wire response shape, and on a
// crypto-locked accept invokes Market to mint payment instructions in
// place of a plaintext reservation code.
package connector

import "github.com/auranet/aura-core/pkg/core/market"

// Status is the top-level discriminant of a NegotiateResponse, exactly
// one of whose payloads is populated.
type Status string

const (
	StatusAccepted   Status = "accepted"
	StatusCountered  Status = "countered"
	StatusRejected   Status = "rejected"
	StatusUIRequired Status = "ui_required"
)

// NegotiateResponse is the wire shape for POST /v1/negotiate.
type NegotiateResponse struct {
	SessionToken string             `json:"session_token"`
	Status       Status             `json:"status"`
	ValidUntil   int64              `json:"valid_until"`
	Accepted     *AcceptedPayload   `json:"accepted,omitempty"`
	Countered    *CounteredPayload  `json:"countered,omitempty"`
	Rejected     *RejectedPayload   `json:"rejected,omitempty"`
	UIRequired   *UIRequiredPayload `json:"ui_required,omitempty"`
}

// AcceptedPayload carries either a plaintext reservation code (no-crypto
// mode) or crypto payment instructions (crypto-lock mode), never both.
type AcceptedPayload struct {
	FinalPrice               float64                      `json:"final_price"`
	ReservationCode          string                       `json:"reservation_code,omitempty"`
	CryptoPaymentInstructions *market.PaymentInstructions `json:"crypto_payment_instructions,omitempty"`
}

type CounteredPayload struct {
	ProposedPrice float64 `json:"proposed_price"`
	Message       string  `json:"message"`
	ReasonCode    string  `json:"reason_code"`
}

type RejectedPayload struct {
	ReasonCode string `json:"reason_code"`
}

type UIRequiredPayload struct {
	TemplateID  string            `json:"template_id"`
	ContextData map[string]string `json:"context_data"`
}

const (
	ReasonOfferTooLow   = "OFFER_TOO_LOW"
	ReasonItemNotFound  = "ITEM_NOT_FOUND"
	ReasonInternalError = "INTERNAL_ERROR"
)
