package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseState is the lifecycle state of a Purchase. A purchase is created
// New (or Active for administrative entries) and reaches exactly one of the
// terminal states Complete or Reject.
type PurchaseState int

const (
	PurchaseStateNew PurchaseState = iota
	PurchaseStateActive
	PurchaseStateComplete
	PurchaseStateReject
)

func (s PurchaseState) String() string {
	switch s {
	case PurchaseStateNew:
		return "NEW"
	case PurchaseStateActive:
		return "ACTIVE"
	case PurchaseStateComplete:
		return "COMPLETE"
	case PurchaseStateReject:
		return "REJECT"
	}
	return "UNKNOWN"
}

// Terminal reports whether the state may never change again.
func (s PurchaseState) Terminal() bool {
	return s == PurchaseStateComplete || s == PurchaseStateReject
}

// TransactionState is the lifecycle state of a ledger-backed Transaction.
type TransactionState int

const (
	TransactionStatePending TransactionState = iota + 1
	TransactionStateActive
	TransactionStateComplete
	TransactionStateFailed
)

func (s TransactionState) String() string {
	switch s {
	case TransactionStatePending:
		return "PENDING"
	case TransactionStateActive:
		return "ACTIVE"
	case TransactionStateComplete:
		return "COMPLETE"
	case TransactionStateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

func (s TransactionState) Terminal() bool {
	return s == TransactionStateComplete || s == TransactionStateFailed
}

// TransactionType classifies a Transaction row.
type TransactionType string

const (
	TransactionTypePayment  TransactionType = "payment"
	TransactionTypePurchase TransactionType = "purchase"
	TransactionTypeRefund   TransactionType = "refund"
	TransactionTypeAirdrop  TransactionType = "airdrop"
	TransactionTypeFee      TransactionType = "fee"
)

// MonetaryAmount is a decimal value tagged with a currency or asset code.
// It is a value type; entities never share one by reference.
type MonetaryAmount struct {
	Value decimal.Decimal
	Code  string
}

func NewMonetaryAmount(value decimal.Decimal, code string) MonetaryAmount {
	return MonetaryAmount{Value: value, Code: code}
}

// IsZero reports whether neither value nor code has been set.
func (m MonetaryAmount) IsZero() bool {
	return m.Code == "" && m.Value.IsZero()
}

func (m MonetaryAmount) String() string {
	return m.Value.String() + " " + m.Code
}

// Asset is a tradable token issued on the ledger.
type Asset struct {
	Id             string    `db:"id"`
	Code           string    `db:"code" validate:"required"`
	Name           string    `db:"name"`
	Issuer         string    `db:"issuer"`
	DistWalletId   string    `db:"dist_wallet_id"`
	KycRequirement bool      `db:"kyc_requirement"`
	Locked         bool      `db:"locked"`
	CreatedAt      time.Time `db:"created_at"`

	// Offers supplied at issuance time, in order. Loaded explicitly, never lazily.
	Offers []*Offer
}

// Offer is a standing sale terms record for an asset. The active offer is the
// one whose date range covers now; at most one is considered current per asset.
type Offer struct {
	Id                   string          `db:"id"`
	AssetId              string          `db:"asset_id"`
	Amount               decimal.Decimal `db:"amount"`
	Price                *MonetaryAmount // nil means market-rate offer
	Public               bool            `db:"public"`
	UseDistributorWallet bool            `db:"use_distributor_wallet"`
	WalletId             string          `db:"wallet_id"`
	LedgerOfferId        string          `db:"ledger_offer_id"`
	StartDate            time.Time       `db:"start_date"`
	StopDate             time.Time       `db:"stop_date"`
}

// Wallet is a ledger account keypair held locally. System wallets (issuing,
// distributing, supply) have no UserId.
type Wallet struct {
	Id        string    `db:"id"`
	Address   string    `db:"address"`
	Seed      string    `db:"seed"`
	UserId    string    `db:"user_id"`
	NetworkId string    `db:"network_id"`
	CreatedAt time.Time `db:"created_at"`
}

// AssetQuote is a time-bounded price snapshot for an asset in a purchase
// currency. A purchase must reference a still-valid quote.
type AssetQuote struct {
	Id           string         `db:"id"`
	AssetId      string         `db:"asset_id"`
	Rate         MonetaryAmount // price per unit in the purchase currency
	CreationTime time.Time      `db:"creation_time"`
	Expiry       time.Time      `db:"expiry"`
}

// Expired reports whether the quote is no longer valid at the given instant.
func (q *AssetQuote) Expired(now time.Time) bool {
	return q.Expiry.Before(now)
}

// Transaction is a ledger-backed movement of value. A Transaction and its
// Purchase are inserted together and always updated together.
type Transaction struct {
	Id            string           `db:"id"`
	Type          TransactionType  `db:"type"`
	State         TransactionState `db:"state"`
	BatchId       string           `db:"batch_id"`
	PayorWalletId string           `db:"payor_wallet_id"`
	PayeeWalletId string           `db:"payee_wallet_id"`
	Amount        MonetaryAmount
	Memo          string    `db:"memo"`
	Ref           string    `db:"ref"`
	PostingDate   time.Time `db:"posting_date"`
	CreatedAt     time.Time `db:"created_at"`
}

// Purchase is a buyer's order for an asset against a quote. It shares its id
// with the Transaction row inserted alongside it.
type Purchase struct {
	Id                  string        `db:"id"`
	QuoteId             string        `db:"quote_id" validate:"required"`
	AssetId             string        `db:"asset_id" validate:"required"`
	Quantity            decimal.Decimal
	BuyerId             string        `db:"buyer_id"`
	InvoicedAmount      MonetaryAmount
	DistributorWalletId string        `db:"distributor_wallet_id"`
	State               PurchaseState `db:"state"`
	Ref                 string        `db:"ref"`
	Memo                string        `db:"memo"`
	EscrowTerm          string        `db:"escrow_term"`
	TransactionTime     time.Time     `db:"transaction_time"`
	CreatedAt           time.Time     `db:"created_at"`
}

// User is a buyer or issuer account known to the service.
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	WalletId  string    `db:"wallet_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ClaimKycLimit is the per-buyer maximum trade value, in the reference
// currency, attached to a user's identity claims.
const ClaimKycLimit = "kyc.limit"
