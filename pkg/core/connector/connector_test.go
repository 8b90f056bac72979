package connector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/core/hive"
	"github.com/auranet/aura-core/pkg/core/item"
	"github.com/auranet/aura-core/pkg/core/market"
	"github.com/auranet/aura-core/pkg/crypto"
	"github.com/auranet/aura-core/pkg/util"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time                        { return c.now }
func (c fakeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

type fakeDealRepo struct {
	byID   map[uuid.UUID]*market.LockedDeal
	byMemo map[string]*market.LockedDeal
}

func newFakeDealRepo() *fakeDealRepo {
	return &fakeDealRepo{byID: map[uuid.UUID]*market.LockedDeal{}, byMemo: map[string]*market.LockedDeal{}}
}

func (r *fakeDealRepo) SaveDeal(d *market.LockedDeal) error {
	r.byID[d.ID] = d
	r.byMemo[d.PaymentMemo] = d
	return nil
}
func (r *fakeDealRepo) GetDeal(id uuid.UUID) (*market.LockedDeal, error) { return r.byID[id], nil }
func (r *fakeDealRepo) GetDealByMemo(memo string) (*market.LockedDeal, error) {
	return r.byMemo[memo], nil
}
func (r *fakeDealRepo) ListDealsByStatus(status market.Status) ([]*market.LockedDeal, error) {
	var out []*market.LockedDeal
	for _, d := range r.byID {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeCryptoProvider struct{}

func (fakeCryptoProvider) Address() string { return "WaLLeTAddre55" }
func (fakeCryptoProvider) Network() string { return "devnet" }
func (fakeCryptoProvider) VerifyPayment(ctx context.Context, amount float64, memo, currency string) (*crypto.PaymentProof, error) {
	return nil, nil
}

func testEncryption(t *testing.T) *crypto.SecretEncryption {
	t.Helper()
	key, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)
	enc, err := crypto.NewSecretEncryption(key)
	require.NoError(t, err)
	return enc
}

func newTestConnector(t *testing.T, cryptoEnabled bool) *Connector {
	t.Helper()
	log := zap.NewNop().Sugar()
	conv := NewPriceConverter(100)
	clock := fakeClock{now: time.Unix(1_700_000_000, 0)}

	var mkt *market.Market
	if cryptoEnabled {
		mkt = market.New(newFakeDealRepo(), fakeCryptoProvider{}, testEncryption(t), clock, log)
	}
	return New(conv, mkt, cryptoEnabled, "SOL", 10*time.Minute, clock, log)
}

func baseHiveContext() hive.HiveContext {
	snap := item.Snapshot{ID: "hotel_alpha", Name: "Hotel Alpha", BasePrice: 1000, FloorPrice: 800}
	return hive.HiveContext{ItemID: "hotel_alpha", ItemSnapshot: &snap, RequestID: "req-123"}
}

func TestConnector_Act_AcceptWithoutCrypto(t *testing.T) {
	c := newTestConnector(t, false)
	intent := hive.Intent{Action: hive.ActionAccept, Price: 900}

	resp, err := c.Act(context.Background(), intent, baseHiveContext(), "did:key:buyer")
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, resp.Status)
	assert.Equal(t, "sess_req-123", resp.SessionToken)
	require.NotNil(t, resp.Accepted)
	assert.Equal(t, 900.0, resp.Accepted.FinalPrice)
	assert.GreaterOrEqual(t, len(resp.Accepted.ReservationCode), 12)
	assert.Nil(t, resp.Accepted.CryptoPaymentInstructions)
}

func TestConnector_Act_AcceptWithCryptoLock(t *testing.T) {
	c := newTestConnector(t, true)
	intent := hive.Intent{Action: hive.ActionAccept, Price: 900}

	resp, err := c.Act(context.Background(), intent, baseHiveContext(), "did:key:buyer")
	require.NoError(t, err)

	assert.Equal(t, StatusAccepted, resp.Status)
	require.NotNil(t, resp.Accepted)
	assert.Empty(t, resp.Accepted.ReservationCode, "plaintext code must not survive crypto-lock mode")
	require.NotNil(t, resp.Accepted.CryptoPaymentInstructions)
	assert.InDelta(t, 9.0, resp.Accepted.CryptoPaymentInstructions.Amount, 0.0001)
	assert.Equal(t, "SOL", resp.Accepted.CryptoPaymentInstructions.Currency)
	assert.Equal(t, "WaLLeTAddre55", resp.Accepted.CryptoPaymentInstructions.WalletAddress)
	assert.Len(t, resp.Accepted.CryptoPaymentInstructions.Memo, 8)
}

func TestConnector_Act_Counter(t *testing.T) {
	c := newTestConnector(t, false)
	intent := hive.Intent{
		Action:  hive.ActionCounter,
		Price:   840,
		Message: "best I can do",
		Metadata: map[string]any{"override_reason": "FLOOR_PRICE_VIOLATION"},
	}

	resp, err := c.Act(context.Background(), intent, baseHiveContext(), "did:key:buyer")
	require.NoError(t, err)

	assert.Equal(t, StatusCountered, resp.Status)
	require.NotNil(t, resp.Countered)
	assert.Equal(t, 840.0, resp.Countered.ProposedPrice)
	assert.Equal(t, "FLOOR_PRICE_VIOLATION", resp.Countered.ReasonCode)
}

func TestConnector_Act_Reject(t *testing.T) {
	c := newTestConnector(t, false)
	intent := hive.Intent{
		Action:   hive.ActionReject,
		Metadata: map[string]any{"reason_code": "ITEM_NOT_FOUND"},
	}

	resp, err := c.Act(context.Background(), intent, baseHiveContext(), "did:key:buyer")
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, resp.Status)
	require.NotNil(t, resp.Rejected)
	assert.Equal(t, "ITEM_NOT_FOUND", resp.Rejected.ReasonCode)
}

func TestConnector_Act_Escalate(t *testing.T) {
	c := newTestConnector(t, false)
	intent := hive.Intent{
		Action:   hive.ActionEscalate,
		Price:    1200,
		Metadata: map[string]any{"template_id": "high_value_confirm"},
	}

	resp, err := c.Act(context.Background(), intent, baseHiveContext(), "did:key:buyer")
	require.NoError(t, err)

	assert.Equal(t, StatusUIRequired, resp.Status)
	require.NotNil(t, resp.UIRequired)
	assert.Equal(t, "high_value_confirm", resp.UIRequired.TemplateID)
}

func TestConnector_Act_UnknownActionFails(t *testing.T) {
	c := newTestConnector(t, false)
	_, err := c.Act(context.Background(), hive.Intent{Action: "bogus"}, baseHiveContext(), "did:key:buyer")
	assert.Error(t, err)
}

func TestNew_AcceptsInjectableClockType(t *testing.T) {
	var _ util.Clock = fakeClock{}
}
