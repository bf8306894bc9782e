package token

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/rates"
	"github.com/UHCToken/uhc-api/internal/repository"
)

// fakeLedger is an in-memory ledger.Client. Balances and trust lines behave
// like the real network: payments debit and credit atomically, receiving an
// asset requires a trust line.
type fakeLedger struct {
	cache    *ledger.AssetCache
	active   map[string]bool
	balances map[string]map[string]decimal.Decimal

	payments   []fakePayment
	sellOffers []string
	options    map[string]ledger.AccountOptions

	failPayment error
	refCount    int
}

type fakePayment struct {
	FromId   string
	ToId     string
	Amount   models.MonetaryAmount
	Memo     string
	MemoType ledger.MemoType
}

var _ ledger.Client = (*fakeLedger)(nil)

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		cache:    ledger.NewAssetCache(nil),
		active:   make(map[string]bool),
		balances: make(map[string]map[string]decimal.Decimal),
		options:  make(map[string]ledger.AccountOptions),
	}
}

func (f *fakeLedger) GenerateAccount() (*models.Wallet, error) {
	f.refCount++
	return &models.Wallet{
		Address: fmt.Sprintf("GFAKE%d", f.refCount),
		Seed:    fmt.Sprintf("SFAKE%d", f.refCount),
	}, nil
}

func (f *fakeLedger) IsActive(ctx context.Context, wallet *models.Wallet) (bool, error) {
	return f.active[wallet.Address], nil
}

func (f *fakeLedger) ActivateAccount(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, funding *models.Wallet) error {
	f.active[wallet.Address] = true
	f.credit(wallet.Address, "XLM", amount)
	return nil
}

func (f *fakeLedger) CreateTrust(ctx context.Context, wallet *models.Wallet, asset *models.Asset, limit *decimal.Decimal) error {
	f.credit(wallet.Address, asset.Code, decimal.Zero)
	return nil
}

func (f *fakeLedger) CreatePayment(ctx context.Context, from, to *models.Wallet, amount models.MonetaryAmount, memo string, memoType ledger.MemoType) (string, error) {
	if f.failPayment != nil {
		return "", f.failPayment
	}
	f.credit(from.Address, amount.Code, amount.Value.Neg())
	f.credit(to.Address, amount.Code, amount.Value)
	f.payments = append(f.payments, fakePayment{
		FromId: from.Id, ToId: to.Id, Amount: amount, Memo: memo, MemoType: memoType,
	})
	f.refCount++
	return fmt.Sprintf("ref-%d", f.refCount), nil
}

func (f *fakeLedger) SetOptions(ctx context.Context, wallet *models.Wallet, options ledger.AccountOptions) error {
	f.options[wallet.Address] = options
	return nil
}

func (f *fakeLedger) CreateSellOffer(ctx context.Context, wallet *models.Wallet, offer *models.Offer, asset *models.Asset) (string, error) {
	id := fmt.Sprintf("sell-%d", len(f.sellOffers)+1)
	f.sellOffers = append(f.sellOffers, id)
	return id, nil
}

func (f *fakeLedger) GetAccount(ctx context.Context, wallet *models.Wallet) (*ledger.Account, error) {
	account := &ledger.Account{WalletId: wallet.Id, Address: wallet.Address}
	for code, value := range f.balances[wallet.Address] {
		account.Balances = append(account.Balances, models.NewMonetaryAmount(value, code))
	}
	return account, nil
}

func (f *fakeLedger) GetTransactionHistory(ctx context.Context, wallet *models.Wallet, filter ledger.HistoryFilter) ([]ledger.HistoryEntry, error) {
	var entries []ledger.HistoryEntry
	for _, p := range f.payments {
		if p.FromId == wallet.Id || p.ToId == wallet.Id {
			entries = append(entries, ledger.HistoryEntry{
				From: p.FromId, To: p.ToId, Amount: p.Amount, Memo: p.Memo,
			})
		}
	}
	return entries, nil
}

func (f *fakeLedger) Assets() *ledger.AssetCache {
	return f.cache
}

// credit adjusts a balance, creating the entry when absent. A zero credit
// models a bare trust line.
func (f *fakeLedger) credit(address, code string, delta decimal.Decimal) {
	if f.balances[address] == nil {
		f.balances[address] = make(map[string]decimal.Decimal)
	}
	f.balances[address][code] = f.balances[address][code].Add(delta)
}

// setBalance activates an address with an explicit balance.
func (f *fakeLedger) setBalance(address, code string, value decimal.Decimal) {
	f.active[address] = true
	if f.balances[address] == nil {
		f.balances[address] = make(map[string]decimal.Decimal)
	}
	f.balances[address][code] = value
}

// fakeRates returns a canned rate list per call.
type fakeRates struct {
	out   []decimal.Decimal
	err   error
	calls [][]rates.Hop
}

var _ rates.Source = (*fakeRates)(nil)

func (f *fakeRates) GetExchange(ctx context.Context, hops []rates.Hop) ([]decimal.Decimal, error) {
	f.calls = append(f.calls, hops)
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func setupTokenService(t *testing.T) (*Service, *fakeLedger, *fakeRates, *repository.Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	repo, err := repository.NewServiceWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	fakeLed := newFakeLedger()
	fakeRat := &fakeRates{}
	policy := common.DefaultPolicy()

	registry := NewProcessorRegistry()
	registry.Register(policy.BaseCurrency, NewNativeProcessor(repo, fakeLed, policy))
	registry.Register(policy.ReferenceCurrency, NewInvoiceProcessor(repo))

	service := NewService(Config{
		Repo:       repo,
		Ledger:     fakeLed,
		Rates:      fakeRat,
		Processors: registry,
		Policy:     policy,
		HomeDomain: "uhc.network",
	})

	cleanup := func() {
		db.Close()
	}
	return service, fakeLed, fakeRat, repo, cleanup
}
