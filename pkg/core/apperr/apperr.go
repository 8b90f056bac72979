// Package apperr defines the negotiation core's stable error kinds, used
// by the Gateway to map internal failures to HTTP status codes without
// leaking unrelated implementation detail to callers.
package apperr

import "errors"

// Kind is a stable, gateway-mappable error category. An error wrapped in
// an *Error carries its Kind, so callers can branch on category without
// pattern-matching on error strings; KindOf reports any other error as
// KindInternal.
type Kind string

const (
	KindSignatureInvalid     Kind = "SIGNATURE_INVALID"
	KindReplayWindow         Kind = "REPLAY_WINDOW"
	KindBadRequest           Kind = "BAD_REQUEST"
	KindItemNotFound         Kind = "ITEM_NOT_FOUND"
	KindTelemetryUnavailable Kind = "TELEMETRY_UNAVAILABLE"
	KindReasonerFailure      Kind = "REASONER_FAILURE"
	KindDealNotFound         Kind = "DEAL_NOT_FOUND"
	KindBadDealID            Kind = "BAD_DEAL_ID"
	KindPaymentNotFound      Kind = "PAYMENT_NOT_FOUND"
	KindOnChainFailure       Kind = "ON_CHAIN_FAILURE"
	KindCryptoDisabled       Kind = "CRYPTO_DISABLED"
	KindDBUnavailable        Kind = "DB_UNAVAILABLE"
	KindUnavailable          Kind = "UNAVAILABLE"
	KindInternal             Kind = "INTERNAL"
)

// Error wraps an underlying error with a stable Kind for gateway-level
// status mapping, and an event slug for grep-able structured logging.
type Error struct {
	Kind  Kind
	Event string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind and event slug wrapping err.
func New(kind Kind, event string, err error) *Error {
	return &Error{Kind: kind, Event: event, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err
// is not (or does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the HTTP status code the gateway should
// return, per the error-handling policy table.
func HTTPStatus(k Kind) int {
	switch k {
	case KindSignatureInvalid, KindReplayWindow:
		return 401
	case KindBadRequest, KindBadDealID:
		return 400
	case KindCryptoDisabled:
		return 501
	case KindUnavailable:
		return 503
	case KindDBUnavailable, KindInternal, KindReasonerFailure:
		return 500
	default:
		return 200
	}
}
