package connector

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/core/apperr"
	"github.com/auranet/aura-core/pkg/core/hive"
	"github.com/auranet/aura-core/pkg/core/item"
	"github.com/auranet/aura-core/pkg/core/market"
	"github.com/auranet/aura-core/pkg/util"
)

const sessionTTLSeconds = 600

// Connector maps a post-Membrane Intent into the gateway's wire
// response, and on a crypto-locked accept hands off to Market.
type Connector struct {
	converter     *PriceConverter
	market        *market.Market
	cryptoEnabled bool
	currency      string
	dealTTL       time.Duration
	clock         util.Clock
	log           *zap.SugaredLogger
}

func New(converter *PriceConverter, mkt *market.Market, cryptoEnabled bool, currency string, dealTTL time.Duration, clock util.Clock, log *zap.SugaredLogger) *Connector {
	return &Connector{
		converter:     converter,
		market:        mkt,
		cryptoEnabled: cryptoEnabled,
		currency:      currency,
		dealTTL:       dealTTL,
		clock:         clock,
		log:           log,
	}
}

// Act serializes intent into a NegotiateResponse, invoking Market on a
// crypto-locked accept.
func (c *Connector) Act(ctx context.Context, intent hive.Intent, hc hive.HiveContext, buyerDID string) (*NegotiateResponse, error) {
	now := c.clock.Now()
	resp := &NegotiateResponse{
		SessionToken: "sess_" + hc.RequestID,
		ValidUntil:   now.Unix() + sessionTTLSeconds,
	}

	switch intent.Action {
	case hive.ActionAccept:
		resp.Status = StatusAccepted
		if err := c.actAccept(ctx, intent, hc, buyerDID, resp); err != nil {
			return nil, err
		}

	case hive.ActionCounter:
		resp.Status = StatusCountered
		resp.Countered = &CounteredPayload{
			ProposedPrice: intent.Price,
			Message:       intent.Message,
			ReasonCode:    extractReasonCode(intent, ReasonInternalError),
		}

	case hive.ActionReject:
		resp.Status = StatusRejected
		resp.Rejected = &RejectedPayload{
			ReasonCode: extractReasonCode(intent, ReasonOfferTooLow),
		}

	case hive.ActionEscalate:
		resp.Status = StatusUIRequired
		resp.UIRequired = &UIRequiredPayload{
			TemplateID:  stringMeta(intent.Metadata, "template_id", "high_value_confirm"),
			ContextData: stringifyMetadata(intent.Metadata),
		}

	default:
		return nil, apperr.New(apperr.KindInternal, "connector_act", fmt.Errorf("unknown intent action %q", intent.Action))
	}

	return resp, nil
}

func (c *Connector) actAccept(ctx context.Context, intent hive.Intent, hc hive.HiveContext, buyerDID string, resp *NegotiateResponse) error {
	code, err := generateReservationCode()
	if err != nil {
		return apperr.New(apperr.KindInternal, "connector_act", err)
	}

	resp.Accepted = &AcceptedPayload{FinalPrice: intent.Price}

	if !c.cryptoEnabled {
		resp.Accepted.ReservationCode = code
		return nil
	}

	cryptoAmount, err := c.converter.ToCrypto(intent.Price, c.currency)
	if err != nil {
		return apperr.New(apperr.KindInternal, "connector_act", err)
	}

	itemName := hc.ItemID
	if hc.ItemSnapshot != nil {
		itemName = itemNameOr(hc.ItemSnapshot, itemName)
	}

	instr, err := c.market.CreateOffer(ctx, hc.ItemID, itemName, code, cryptoAmount, c.currency, buyerDID, c.dealTTL)
	if err != nil {
		return err
	}
	resp.Accepted.CryptoPaymentInstructions = instr
	return nil
}

func itemNameOr(snap *item.Snapshot, fallback string) string {
	if snap.Name != "" {
		return snap.Name
	}
	return fallback
}

func generateReservationCode() (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate reservation code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func extractReasonCode(intent hive.Intent, fallback string) string {
	if r, ok := intent.Metadata["override_reason"].(string); ok && r != "" {
		return r
	}
	if r, ok := intent.Metadata["reason_code"].(string); ok && r != "" {
		return r
	}
	return fallback
}

func stringMeta(meta map[string]any, key, fallback string) string {
	if v, ok := meta[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func stringifyMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
