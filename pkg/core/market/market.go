package market

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/auranet/aura-core/pkg/core/apperr"
	"github.com/auranet/aura-core/pkg/crypto"
	"github.com/auranet/aura-core/pkg/util"
)

// Repository persists LockedDeals. pkg/storage.Store satisfies this
// structurally.
type Repository interface {
	SaveDeal(d *LockedDeal) error
	GetDeal(id uuid.UUID) (*LockedDeal, error)
	GetDealByMemo(memo string) (*LockedDeal, error)
	ListDealsByStatus(status Status) ([]*LockedDeal, error)
}

// Market owns the LockedDeal lifecycle: creation, idempotent payment
// resolution, and secret release. Concurrency shape follows the
// teacher's AccountManager (a guarded map plus per-entity mutation),
// generalized to a per-deal exclusive lock (spec.md §4.6's
// "row-level lock") instead of one lock over the whole table.
type Market struct {
	repo       Repository
	provider   crypto.CryptoProvider
	encryption *crypto.SecretEncryption
	clock      util.Clock
	log        *zap.SugaredLogger

	lockTableMu sync.Mutex
	lockTable   map[uuid.UUID]*sync.Mutex
}

// New constructs a Market. encryption may be nil only if crypto-lock is
// never enabled; CreateOffer will fail loudly otherwise.
func New(repo Repository, provider crypto.CryptoProvider, encryption *crypto.SecretEncryption, clock util.Clock, log *zap.SugaredLogger) *Market {
	return &Market{
		repo:       repo,
		provider:   provider,
		encryption: encryption,
		clock:      clock,
		log:        log,
		lockTable:  make(map[uuid.UUID]*sync.Mutex),
	}
}

func (m *Market) lockFor(id uuid.UUID) *sync.Mutex {
	m.lockTableMu.Lock()
	defer m.lockTableMu.Unlock()
	l, ok := m.lockTable[id]
	if !ok {
		l = &sync.Mutex{}
		m.lockTable[id] = l
	}
	return l
}

// CreateOffer locks a deal: it generates a unique memo, encrypts the
// secret, and persists a PENDING LockedDeal with the given TTL.
func (m *Market) CreateOffer(ctx context.Context, itemID, itemName, secret string, cryptoAmount float64, currency, buyerDID string, ttl time.Duration) (*PaymentInstructions, error) {
	if m.encryption == nil {
		return nil, apperr.New(apperr.KindCryptoDisabled, "market_create_offer", fmt.Errorf("crypto-lock is not configured"))
	}

	ciphertext, err := m.encryption.Encrypt(secret)
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "market_create_offer", fmt.Errorf("encrypt secret: %w", err))
	}

	memo, err := m.uniqueMemo()
	if err != nil {
		return nil, apperr.New(apperr.KindInternal, "market_create_offer", err)
	}

	now := m.clock.Now()
	deal := &LockedDeal{
		ID:               uuid.New(),
		ItemID:           itemID,
		ItemName:         itemName,
		Currency:         currency,
		CryptoAmount:     cryptoAmount,
		PaymentMemo:      memo,
		SecretCiphertext: ciphertext,
		Status:           StatusPending,
		BuyerDID:         buyerDID,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		UpdatedAt:        now,
	}

	if err := m.repo.SaveDeal(deal); err != nil {
		return nil, apperr.New(apperr.KindDBUnavailable, "market_create_offer", err)
	}

	m.log.Infow("deal locked", "deal_id", deal.ID, "item_id", itemID, "memo", memo, "currency", currency)
	instr := deal.instructions()
	instr.WalletAddress = m.provider.Address()
	instr.Network = m.provider.Network()
	return &instr, nil
}

// uniqueMemo generates an 8-char URL-safe memo, retrying on collision
// against the repository's unique index.
func (m *Market) uniqueMemo() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		raw := make([]byte, 6)
		if _, err := rand.Read(raw); err != nil {
			return "", fmt.Errorf("generate memo: %w", err)
		}
		memo := base64.RawURLEncoding.EncodeToString(raw)
		if len(memo) > 8 {
			memo = memo[:8]
		}
		if existing, err := m.repo.GetDealByMemo(memo); err == nil && existing == nil {
			return memo, nil
		}
	}
	return "", fmt.Errorf("generate memo: exhausted retries on collision")
}

// CheckDealStatus is the idempotent resolver from spec.md §4.6: it
// serializes concurrent callers on the same deal through a per-deal
// lock, transitions PENDING to EXPIRED or PAID at most once, and
// returns the cached terminal result on every subsequent call.
func (m *Market) CheckDealStatus(ctx context.Context, id uuid.UUID) (*StatusResult, error) {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	deal, err := m.repo.GetDeal(id)
	if err != nil {
		return nil, apperr.New(apperr.KindDBUnavailable, "market_check_status", err)
	}
	if deal == nil {
		return nil, apperr.New(apperr.KindDealNotFound, "market_check_status", fmt.Errorf("deal %s not found", id))
	}

	now := m.clock.Now()

	switch deal.Status {
	case StatusPaid:
		secret, err := m.encryption.Decrypt(deal.SecretCiphertext)
		if err != nil {
			return nil, apperr.New(apperr.KindInternal, "market_check_status", fmt.Errorf("decrypt secret: %w", err))
		}
		return &StatusResult{
			Status: StatusPaid,
			Secret: secret,
			Proof: &crypto.PaymentProof{
				TransactionHash: deal.TxHash,
				BlockNumber:     deal.Block,
				FromAddress:     deal.FromAddress,
				ConfirmedAt:     derefTime(deal.PaidAt, deal.UpdatedAt),
			},
		}, nil

	case StatusExpired:
		return &StatusResult{Status: StatusExpired}, nil

	case StatusPending:
		if now.After(deal.ExpiresAt) {
			deal.Status = StatusExpired
			deal.UpdatedAt = now
			if err := m.repo.SaveDeal(deal); err != nil {
				return nil, apperr.New(apperr.KindDBUnavailable, "market_check_status", err)
			}
			return &StatusResult{Status: StatusExpired}, nil
		}

		proof, err := m.provider.VerifyPayment(ctx, deal.CryptoAmount, deal.PaymentMemo, deal.Currency)
		if err != nil {
			m.log.Warnw("on-chain verification failed", "deal_id", id, "error", err, "event", "market_check_status")
			instr := deal.instructions()
			instr.WalletAddress = m.provider.Address()
			instr.Network = m.provider.Network()
			return &StatusResult{Status: StatusPending, Instructions: &instr}, nil
		}
		if proof == nil {
			instr := deal.instructions()
			instr.WalletAddress = m.provider.Address()
			instr.Network = m.provider.Network()
			return &StatusResult{Status: StatusPending, Instructions: &instr}, nil
		}

		paidAt := proof.ConfirmedAt
		deal.Status = StatusPaid
		deal.TxHash = proof.TransactionHash
		deal.Block = proof.BlockNumber
		deal.FromAddress = proof.FromAddress
		deal.PaidAt = &paidAt
		deal.UpdatedAt = now
		if err := m.repo.SaveDeal(deal); err != nil {
			return nil, apperr.New(apperr.KindDBUnavailable, "market_check_status", err)
		}

		secret, err := m.encryption.Decrypt(deal.SecretCiphertext)
		if err != nil {
			return nil, apperr.New(apperr.KindInternal, "market_check_status", fmt.Errorf("decrypt secret: %w", err))
		}
		m.log.Infow("deal paid", "deal_id", id, "tx_hash", proof.TransactionHash)
		return &StatusResult{Status: StatusPaid, Secret: secret, Proof: proof}, nil

	default:
		return nil, apperr.New(apperr.KindInternal, "market_check_status", fmt.Errorf("unknown deal status %q", deal.Status))
	}
}

func derefTime(t *time.Time, fallback time.Time) time.Time {
	if t != nil {
		return *t
	}
	return fallback
}

// SweepExpired walks the PENDING status index and transitions any deal
// past its expires_at to EXPIRED. Intended to run on a periodic ticker
// from cmd/aura-core so deals expire even without a CheckDealStatus
// poll, using the same per-deal lock CheckDealStatus uses so a
// concurrent caller never observes a half-applied transition.
func (m *Market) SweepExpired(ctx context.Context) (int, error) {
	pending, err := m.repo.ListDealsByStatus(StatusPending)
	if err != nil {
		return 0, apperr.New(apperr.KindDBUnavailable, "market_sweep_expired", err)
	}

	now := m.clock.Now()
	expired := 0
	for _, deal := range pending {
		if !now.After(deal.ExpiresAt) {
			continue
		}
		lock := m.lockFor(deal.ID)
		lock.Lock()
		fresh, err := m.repo.GetDeal(deal.ID)
		if err == nil && fresh != nil && fresh.Status == StatusPending && now.After(fresh.ExpiresAt) {
			fresh.Status = StatusExpired
			fresh.UpdatedAt = now
			if saveErr := m.repo.SaveDeal(fresh); saveErr == nil {
				expired++
			}
		}
		lock.Unlock()

		select {
		case <-ctx.Done():
			return expired, ctx.Err()
		default:
		}
	}
	return expired, nil
}
