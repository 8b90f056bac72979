package crypto

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
)

// amountTolerance bounds the relative error allowed between an expected
// and observed payment amount, to absorb floating-point and lamport/atom
// rounding. Matches the Python provider's AMOUNT_TOLERANCE.
const amountTolerance = 0.0001

const lamportsPerSOL = 1_000_000_000

// PaymentProof is the evidence a CryptoProvider returns once it finds a
// matching on-chain payment.
type PaymentProof struct {
	TransactionHash string
	BlockNumber     string
	FromAddress     string
	ConfirmedAt     time.Time
}

// CryptoProvider verifies that a payment for a locked deal has landed
// on-chain. Market depends only on this interface, never on a concrete
// chain client, so a new chain can be added without touching the deal
// state machine.
type CryptoProvider interface {
	Address() string
	Network() string
	VerifyPayment(ctx context.Context, amount float64, memo, currency string) (*PaymentProof, error)
}

// SolanaProvider verifies SOL and USDC (SPL token) payments against a
// Solana RPC endpoint by scanning the wallet's recent finalized
// transaction history for one whose memo, amount, and currency match.
type SolanaProvider struct {
	client         *rpc.Client
	wallet         solana.PublicKey
	usdcMint       solana.PublicKey
	usdcATA        solana.PublicKey
	network        string
	signatureLimit int
}

// NewSolanaProvider derives the wallet's USDC associated token account
// and wraps an RPC client for payment verification.
func NewSolanaProvider(rpcURL, network, walletPubkey, usdcMint string) (*SolanaProvider, error) {
	wallet, err := solana.PublicKeyFromBase58(walletPubkey)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet public key: %w", err)
	}
	mint, err := solana.PublicKeyFromBase58(usdcMint)
	if err != nil {
		return nil, fmt.Errorf("invalid USDC mint: %w", err)
	}
	ata, _, err := associatedtokenaccount.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated token account: %w", err)
	}

	return &SolanaProvider{
		client:         rpc.New(rpcURL),
		wallet:         wallet,
		usdcMint:       mint,
		usdcATA:        ata,
		network:        network,
		signatureLimit: 100,
	}, nil
}

func (p *SolanaProvider) Address() string { return p.wallet.String() }
func (p *SolanaProvider) Network() string { return p.network }

// VerifyPayment scans the wallet's recent finalized transactions for one
// whose memo instruction matches memo and whose transfer amount to this
// wallet (SOL) or its associated token account (USDC) matches amount
// within amountTolerance.
func (p *SolanaProvider) VerifyPayment(ctx context.Context, amount float64, memo, currency string) (*PaymentProof, error) {
	limit := p.signatureLimit
	sigs, err := p.client.GetSignaturesForAddressWithOpts(ctx, p.wallet, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch recent signatures: %w", err)
	}
	if len(sigs) == 0 {
		return nil, nil
	}

	maxVersion := uint64(0)
	for _, sigInfo := range sigs {
		tx, err := p.client.GetTransaction(ctx, sigInfo.Signature, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     rpc.CommitmentFinalized,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		if err != nil || tx == nil || tx.Meta == nil {
			continue
		}

		decoded, err := tx.Transaction.GetTransaction()
		if err != nil || decoded == nil {
			continue
		}

		if !p.hasMemo(decoded, memo) {
			continue
		}

		var matched bool
		var fromAddress string
		switch currency {
		case "SOL":
			matched, fromAddress = p.hasSOLTransfer(decoded, tx.Meta, amount)
		case "USDC":
			matched, fromAddress = p.hasUSDCTransfer(decoded, tx.Meta, amount)
		default:
			return nil, fmt.Errorf("unsupported currency: %s", currency)
		}
		if !matched {
			continue
		}

		confirmedAt := time.Now().UTC()
		if tx.BlockTime != nil {
			confirmedAt = tx.BlockTime.Time().UTC()
		}
		return &PaymentProof{
			TransactionHash: sigInfo.Signature.String(),
			BlockNumber:     fmt.Sprintf("%d", tx.Slot),
			FromAddress:     orUnknown(fromAddress),
			ConfirmedAt:     confirmedAt,
		}, nil
	}

	return nil, nil
}

func (p *SolanaProvider) hasMemo(tx *solana.Transaction, expectedMemo string) bool {
	for _, instr := range tx.Message.Instructions {
		programID, err := tx.Message.Program(instr.ProgramIDIndex)
		if err != nil {
			continue
		}
		if !programID.Equals(solana.MemoProgramID) {
			continue
		}
		if string(instr.Data) == expectedMemo {
			return true
		}
	}
	return false
}

func (p *SolanaProvider) hasSOLTransfer(tx *solana.Transaction, meta *rpc.TransactionMeta, expectedAmount float64) (bool, string) {
	accountKeys := tx.Message.AccountKeys
	ourIdx := -1
	for idx, key := range accountKeys {
		if !key.Equals(p.wallet) {
			continue
		}
		if idx >= len(meta.PostBalances) || idx >= len(meta.PreBalances) {
			continue
		}
		received := float64(int64(meta.PostBalances[idx])-int64(meta.PreBalances[idx])) / lamportsPerSOL
		if amountMatches(received, expectedAmount) {
			ourIdx = idx
			break
		}
	}
	if ourIdx == -1 {
		return false, ""
	}

	sender := ""
	maxDecrease := int64(0)
	for idx, key := range accountKeys {
		if idx == ourIdx || idx >= len(meta.PreBalances) || idx >= len(meta.PostBalances) {
			continue
		}
		decrease := int64(meta.PreBalances[idx]) - int64(meta.PostBalances[idx])
		if decrease > maxDecrease {
			maxDecrease = decrease
			sender = key.String()
		}
	}
	return true, sender
}

// hasUSDCTransfer requires both a balance delta matching expectedAmount
// on our associated token account and at least one SPL Token program
// instruction in the transaction, so a balance change caused by some
// other program (e.g. a token burn or an unrelated multi-hop swap that
// happens to route through our ATA) can't be mistaken for a transfer.
func (p *SolanaProvider) hasUSDCTransfer(tx *solana.Transaction, meta *rpc.TransactionMeta, expectedAmount float64) (bool, string) {
	if !p.hasTokenProgramInstruction(tx) {
		return false, ""
	}

	post := indexTokenBalances(meta.PostTokenBalances)
	pre := indexTokenBalances(meta.PreTokenBalances)
	accountKeys := tx.Message.AccountKeys

	for idx, postBal := range post {
		if postBal.Mint != p.usdcMint {
			continue
		}
		if int(idx) >= len(accountKeys) || !accountKeys[idx].Equals(p.usdcATA) {
			continue
		}
		preAmount := uint64(0)
		if preBal, ok := pre[idx]; ok {
			preAmount = preBal.Amount
		}
		received := float64(postBal.Amount-preAmount) / pow10(postBal.Decimals)
		if amountMatches(received, expectedAmount) {
			return true, postBal.Owner
		}
	}
	return false, ""
}

func (p *SolanaProvider) hasTokenProgramInstruction(tx *solana.Transaction) bool {
	for _, instr := range tx.Message.Instructions {
		programID, err := tx.Message.Program(instr.ProgramIDIndex)
		if err != nil {
			continue
		}
		if programID.Equals(token.ProgramID) {
			return true
		}
	}
	return false
}

type tokenBalance struct {
	Mint     solana.PublicKey
	Owner    string
	Amount   uint64
	Decimals uint8
}

func indexTokenBalances(balances []rpc.TokenBalance) map[uint16]tokenBalance {
	out := make(map[uint16]tokenBalance, len(balances))
	for _, b := range balances {
		amount, _ := parseUint(b.UiTokenAmount.Amount)
		owner := ""
		if b.Owner != nil {
			owner = b.Owner.String()
		}
		out[b.AccountIndex] = tokenBalance{
			Mint:     b.Mint,
			Owner:    owner,
			Amount:   amount,
			Decimals: b.UiTokenAmount.Decimals,
		}
	}
	return out
}

func parseUint(s string) (uint64, error) {
	var n uint64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func pow10(n uint8) float64 {
	f := 1.0
	for i := uint8(0); i < n; i++ {
		f *= 10
	}
	return f
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// amountMatches compares received against expectedAmount within
// amountTolerance applied relative to expectedAmount, per spec.md §4.6's
// "within tolerance 1e-4 relative" rather than an absolute bound.
func amountMatches(received, expectedAmount float64) bool {
	if expectedAmount == 0 {
		return received == 0
	}
	return absFloat(received-expectedAmount)/absFloat(expectedAmount) < amountTolerance
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

