package market

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/crypto"
)

type fakeRepo struct {
	byID   map[uuid.UUID]*LockedDeal
	byMemo map[string]*LockedDeal
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[uuid.UUID]*LockedDeal{}, byMemo: map[string]*LockedDeal{}}
}

func (r *fakeRepo) SaveDeal(d *LockedDeal) error {
	r.byID[d.ID] = d
	r.byMemo[d.PaymentMemo] = d
	return nil
}
func (r *fakeRepo) GetDeal(id uuid.UUID) (*LockedDeal, error) { return r.byID[id], nil }
func (r *fakeRepo) GetDealByMemo(memo string) (*LockedDeal, error) {
	return r.byMemo[memo], nil
}
func (r *fakeRepo) ListDealsByStatus(status Status) ([]*LockedDeal, error) {
	var out []*LockedDeal
	for _, d := range r.byID {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time                        { return c.now }
func (c *fakeClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (c *fakeClock) advance(d time.Duration)                { c.now = c.now.Add(d) }

type scriptedProvider struct {
	proof *crypto.PaymentProof
	err   error
}

func (p *scriptedProvider) Address() string { return "WaLLeT" }
func (p *scriptedProvider) Network() string { return "devnet" }
func (p *scriptedProvider) VerifyPayment(ctx context.Context, amount float64, memo, currency string) (*crypto.PaymentProof, error) {
	return p.proof, p.err
}

func testEncryption(t *testing.T) *crypto.SecretEncryption {
	t.Helper()
	key, err := crypto.GenerateEncryptionKey()
	require.NoError(t, err)
	enc, err := crypto.NewSecretEncryption(key)
	require.NoError(t, err)
	return enc
}

func TestMarket_CreateOfferRequiresEncryption(t *testing.T) {
	m := New(newFakeRepo(), &scriptedProvider{}, nil, &fakeClock{now: time.Now()}, zap.NewNop().Sugar())
	_, err := m.CreateOffer(context.Background(), "hotel_alpha", "Hotel Alpha", "code123", 9.0, "SOL", "did:key:buyer", time.Minute)
	assert.Error(t, err)
}

func TestMarket_CreateOfferAndPendingStatus(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &scriptedProvider{}
	m := New(newFakeRepo(), provider, testEncryption(t), clock, zap.NewNop().Sugar())

	instr, err := m.CreateOffer(context.Background(), "hotel_alpha", "Hotel Alpha", "reservation-code-123", 9.0, "SOL", "did:key:buyer", 10*time.Minute)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, instr.Amount, 0.0001)
	assert.Equal(t, "WaLLeT", instr.WalletAddress)
	assert.Len(t, instr.Memo, 8)

	result, err := m.CheckDealStatus(context.Background(), instr.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	require.NotNil(t, result.Instructions)
	assert.Equal(t, instr.Memo, result.Instructions.Memo)
}

func TestMarket_CheckDealStatus_PaidIsIdempotent(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &scriptedProvider{proof: &crypto.PaymentProof{TransactionHash: "tx123", ConfirmedAt: clock.now}}
	m := New(newFakeRepo(), provider, testEncryption(t), clock, zap.NewNop().Sugar())

	instr, err := m.CreateOffer(context.Background(), "hotel_alpha", "Hotel Alpha", "reservation-secret", 9.0, "SOL", "did:key:buyer", 10*time.Minute)
	require.NoError(t, err)

	first, err := m.CheckDealStatus(context.Background(), instr.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, first.Status)
	assert.Equal(t, "reservation-secret", first.Secret)
	assert.Equal(t, "tx123", first.Proof.TransactionHash)

	// Payment proof would no longer be found on a second chain query, but
	// the deal is already terminal: CheckDealStatus must not re-query and
	// must return byte-identical secret/proof.
	provider.proof = nil
	second, err := m.CheckDealStatus(context.Background(), instr.DealID)
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Secret, second.Secret)
	assert.Equal(t, first.Proof.TransactionHash, second.Proof.TransactionHash)
}

func TestMarket_CheckDealStatus_ExpiresOncePastTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := New(newFakeRepo(), &scriptedProvider{}, testEncryption(t), clock, zap.NewNop().Sugar())

	instr, err := m.CreateOffer(context.Background(), "hotel_alpha", "Hotel Alpha", "code", 9.0, "SOL", "did:key:buyer", time.Minute)
	require.NoError(t, err)

	clock.advance(2 * time.Minute)

	first, err := m.CheckDealStatus(context.Background(), instr.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, first.Status)

	second, err := m.CheckDealStatus(context.Background(), instr.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, second.Status)
}

func TestMarket_CheckDealStatus_UnknownDeal(t *testing.T) {
	m := New(newFakeRepo(), &scriptedProvider{}, testEncryption(t), &fakeClock{now: time.Now()}, zap.NewNop().Sugar())
	_, err := m.CheckDealStatus(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestMarket_SweepExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := New(newFakeRepo(), &scriptedProvider{}, testEncryption(t), clock, zap.NewNop().Sugar())

	_, err := m.CreateOffer(context.Background(), "a", "A", "code-a", 1, "SOL", "did:key:buyer", time.Minute)
	require.NoError(t, err)
	_, err = m.CreateOffer(context.Background(), "b", "B", "code-b", 1, "SOL", "did:key:buyer", time.Hour)
	require.NoError(t, err)

	clock.advance(2 * time.Minute)

	n, err := m.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
