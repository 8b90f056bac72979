// Package market implements the LockedDeal state machine and its
// Solana payment verification loop, grounded on the teacher's
// AccountManager (sync.RWMutex-guarded map, pkg/app/core/account_manager.go)
// generalized to a per-deal row lock instead of a process-wide one.
package market

import (
	"time"

	"github.com/google/uuid"

	"github.com/auranet/aura-core/pkg/crypto"
)

// Status is a LockedDeal's lifecycle state. PAID and EXPIRED are
// terminal; PENDING is the only state from which either is reachable.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusExpired Status = "EXPIRED"
)

// LockedDeal is a finalized accept whose secret is withheld until
// on-chain payment confirms. Owned exclusively by Market; every other
// component reaches it only through Market's operations.
type LockedDeal struct {
	ID               uuid.UUID `json:"id"`
	ItemID           string    `json:"item_id"`
	ItemName         string    `json:"item_name"`
	FinalPrice       float64   `json:"final_price"`
	Currency         string    `json:"currency"`
	CryptoAmount     float64   `json:"crypto_amount"`
	PaymentMemo      string    `json:"payment_memo"`
	SecretCiphertext string    `json:"secret_ciphertext"`
	Status           Status    `json:"status"`
	BuyerDID         string    `json:"buyer_did,omitempty"`
	TxHash           string    `json:"tx_hash,omitempty"`
	Block            string    `json:"block,omitempty"`
	FromAddress      string    `json:"from_address,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PaymentInstructions is what the Connector hands back to a buyer on a
// crypto-locked accept.
type PaymentInstructions struct {
	DealID        uuid.UUID `json:"deal_id"`
	WalletAddress string    `json:"wallet_address"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Memo          string    `json:"memo"`
	Network       string    `json:"network"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (d *LockedDeal) instructions() PaymentInstructions {
	return PaymentInstructions{
		DealID:        d.ID,
		Amount:        d.CryptoAmount,
		Currency:      d.Currency,
		Memo:          d.PaymentMemo,
		ExpiresAt:     d.ExpiresAt,
	}
}

// StatusResult is what CheckDealStatus returns: enough to build either
// the pending-payment response or the revealed-secret response, never
// both.
type StatusResult struct {
	Status       Status
	Instructions *PaymentInstructions
	Secret       string
	Proof        *crypto.PaymentProof
}
