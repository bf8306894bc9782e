// Package ledger defines the capability surface of the external distributed
// ledger used for custody and settlement. The concrete backend is a thin REST
// adapter (horizon.go); tests substitute in-memory fakes.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/UHCToken/uhc-api/internal/models"
)

// MemoType selects how a payment memo is encoded on the ledger.
type MemoType string

const (
	MemoTypeText MemoType = "text"
	MemoTypeHash MemoType = "hash"
)

// Account is a live snapshot of a ledger account. Balance checks always use
// this, never locally cached state.
type Account struct {
	WalletId string
	Address  string
	Sequence string
	Balances []models.MonetaryAmount
}

// BalanceOf returns the account's balance for the given code, or zero when
// the account holds no trust line for it.
func (a *Account) BalanceOf(code string) decimal.Decimal {
	for _, b := range a.Balances {
		if b.Code == code {
			return b.Value
		}
	}
	return decimal.Zero
}

// HasTrustline reports whether the account can hold the given asset code.
func (a *Account) HasTrustline(code string) bool {
	for _, b := range a.Balances {
		if b.Code == code {
			return true
		}
	}
	return false
}

// AccountOptions are the mutable flags of a ledger account. Nil threshold
// fields are left untouched. Setting every weight and threshold to zero locks
// the account permanently (fixed supply).
type AccountOptions struct {
	HomeDomain    string
	MasterWeight  *int
	LowThreshold  *int
	MedThreshold  *int
	HighThreshold *int
}

// LockedOptions returns options that zero the signing thresholds so the
// account can never sign again.
func LockedOptions(homeDomain string) AccountOptions {
	zero := 0
	return AccountOptions{
		HomeDomain:    homeDomain,
		MasterWeight:  &zero,
		LowThreshold:  &zero,
		MedThreshold:  &zero,
		HighThreshold: &zero,
	}
}

// HistoryFilter narrows a transaction history query.
type HistoryFilter struct {
	Since time.Time
	Asset string
	Limit int
}

// HistoryEntry is one settled ledger operation involving a wallet.
type HistoryEntry struct {
	Ref         string
	Type        string
	From        string
	To          string
	Amount      models.MonetaryAmount
	Memo        string
	PostingDate time.Time
}

// Client is the ledger capability consumed by the token service and the
// transaction worker. Every call that touches the network takes a context and
// must be treated as blocking I/O; none of them are revocable.
type Client interface {
	// GenerateAccount creates a new keypair locally. No network call is made
	// and the account does not exist on the ledger until activated.
	GenerateAccount() (*models.Wallet, error)

	// IsActive reports whether the wallet's account exists on the ledger.
	IsActive(ctx context.Context, wallet *models.Wallet) (bool, error)

	// ActivateAccount creates the wallet's account on the ledger, funded with
	// amount of the network's base currency from the funding wallet.
	ActivateAccount(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, funding *models.Wallet) error

	// CreateTrust establishes a trust line from the wallet to the asset. A nil
	// limit trusts up to the network maximum.
	CreateTrust(ctx context.Context, wallet *models.Wallet, asset *models.Asset, limit *decimal.Decimal) error

	// CreatePayment submits a payment and returns the ledger transaction
	// reference. The ledger itself rejects overdrafts and duplicate
	// submissions; it is the source of truth for both.
	CreatePayment(ctx context.Context, from, to *models.Wallet, amount models.MonetaryAmount, memo string, memoType MemoType) (string, error)

	// SetOptions updates the wallet's account flags.
	SetOptions(ctx context.Context, wallet *models.Wallet, options AccountOptions) error

	// CreateSellOffer places a standing sell offer for the asset on the
	// wallet's account and returns the ledger offer id.
	CreateSellOffer(ctx context.Context, wallet *models.Wallet, offer *models.Offer, asset *models.Asset) (string, error)

	// GetAccount fetches the wallet's live account state.
	GetAccount(ctx context.Context, wallet *models.Wallet) (*Account, error)

	// GetTransactionHistory lists settled operations involving the wallet.
	GetTransactionHistory(ctx context.Context, wallet *models.Wallet, filter HistoryFilter) ([]HistoryEntry, error)

	// Assets is the client's in-memory registry of issued assets. Lookups by
	// code during validation and payment resolution go through it.
	Assets() *AssetCache
}
