package worker

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/repository"
)

// fakeLedger records payments and optionally fails them. When failMemo is
// set, only the payment carrying that memo fails.
type fakeLedger struct {
	cache    *ledger.AssetCache
	payments int
	fail     error
	failMemo string
}

var _ ledger.Client = (*fakeLedger)(nil)

func (f *fakeLedger) GenerateAccount() (*models.Wallet, error) { return &models.Wallet{}, nil }

func (f *fakeLedger) IsActive(ctx context.Context, wallet *models.Wallet) (bool, error) {
	return true, nil
}

func (f *fakeLedger) ActivateAccount(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, funding *models.Wallet) error {
	return nil
}

func (f *fakeLedger) CreateTrust(ctx context.Context, wallet *models.Wallet, asset *models.Asset, limit *decimal.Decimal) error {
	return nil
}

func (f *fakeLedger) CreatePayment(ctx context.Context, from, to *models.Wallet, amount models.MonetaryAmount, memo string, memoType ledger.MemoType) (string, error) {
	if f.fail != nil && (f.failMemo == "" || f.failMemo == memo) {
		return "", f.fail
	}
	f.payments++
	return fmt.Sprintf("ref-%d", f.payments), nil
}

func (f *fakeLedger) SetOptions(ctx context.Context, wallet *models.Wallet, options ledger.AccountOptions) error {
	return nil
}

func (f *fakeLedger) CreateSellOffer(ctx context.Context, wallet *models.Wallet, offer *models.Offer, asset *models.Asset) (string, error) {
	return "", nil
}

func (f *fakeLedger) GetAccount(ctx context.Context, wallet *models.Wallet) (*ledger.Account, error) {
	return &ledger.Account{WalletId: wallet.Id}, nil
}

func (f *fakeLedger) GetTransactionHistory(ctx context.Context, wallet *models.Wallet, filter ledger.HistoryFilter) ([]ledger.HistoryEntry, error) {
	return nil, nil
}

func (f *fakeLedger) Assets() *ledger.AssetCache {
	if f.cache == nil {
		f.cache = ledger.NewAssetCache(nil)
	}
	return f.cache
}

func setupWorker(t *testing.T) (*Worker, *fakeLedger, *repository.Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	repo, err := repository.NewServiceWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	fakeLed := &fakeLedger{}
	w := NewWorker(Config{Repo: repo, Ledger: fakeLed, QueueSize: 4})

	cleanup := func() {
		db.Close()
	}
	return w, fakeLed, repo, cleanup
}

func seedTransaction(t *testing.T, repo *repository.Service, state models.TransactionState, batchId, memo string) *models.Transaction {
	ctx := context.Background()
	payor, err := repo.InsertWallet(ctx, nil, &models.Wallet{Address: "GPAYOR"})
	if err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}
	payee, err := repo.InsertWallet(ctx, nil, &models.Wallet{Address: "GPAYEE"})
	if err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	txn, err := repo.InsertTransaction(ctx, nil, &models.Transaction{
		Type:          models.TransactionTypePayment,
		State:         state,
		BatchId:       batchId,
		PayorWalletId: payor.Id,
		PayeeWalletId: payee.Id,
		Amount:        models.NewMonetaryAmount(decimal.NewFromInt(5), "UHT"),
		Memo:          memo,
	})
	if err != nil {
		t.Fatalf("InsertTransaction failed: %v", err)
	}
	return txn
}

func TestBacklogSettlesRetryableTransactions(t *testing.T) {
	w, fakeLed, repo, cleanup := setupWorker(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pending := seedTransaction(t, repo, models.TransactionStatePending, "batch-a", "delivery")
	failed := seedTransaction(t, repo, models.TransactionStateFailed, "batch-b", "retry")

	w.Start(ctx)
	w.Submit(models.WorkRequest{Action: models.WorkActionBacklog})

	result := <-w.Results()
	if result.Err != nil {
		t.Fatalf("Backlog run failed: %v", result.Err)
	}
	w.Stop()

	if fakeLed.payments != 2 {
		t.Errorf("Expected 2 ledger payments, got %d", fakeLed.payments)
	}
	for _, id := range []string{pending.Id, failed.Id} {
		loaded, err := repo.GetTransaction(ctx, nil, id)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if loaded.State != models.TransactionStateComplete {
			t.Errorf("Expected transaction %s COMPLETE, got %s", id, loaded.State)
		}
		if loaded.Ref == "" || loaded.PostingDate.IsZero() {
			t.Errorf("Expected ref and posting date on %s", id)
		}
	}
}

func TestProcessBatch_TerminalRowsAreSkipped(t *testing.T) {
	w, fakeLed, repo, cleanup := setupWorker(t)
	defer cleanup()

	ctx := context.Background()
	seedTransaction(t, repo, models.TransactionStateComplete, "batch-done", "delivery")

	result := w.handle(ctx, models.WorkRequest{
		Action:  models.WorkActionProcess,
		WorkId:  "w1",
		BatchId: "batch-done",
	})
	if result.Err != nil {
		t.Fatalf("Expected terminal batch to be a no-op, got %v", result.Err)
	}
	if fakeLed.payments != 0 {
		t.Errorf("Expected zero ledger calls for a terminal batch, got %d", fakeLed.payments)
	}
}

func TestProcessBatch_LedgerFailureMarksFailed(t *testing.T) {
	w, fakeLed, repo, cleanup := setupWorker(t)
	defer cleanup()

	ctx := context.Background()
	txn := seedTransaction(t, repo, models.TransactionStatePending, "batch-x", "delivery")
	fakeLed.fail = errs.New(errs.CodeComFailure, "gateway down")

	result := w.handle(ctx, models.WorkRequest{
		Action:  models.WorkActionProcess,
		WorkId:  "w2",
		BatchId: "batch-x",
	})
	if !errs.HasCode(result.Err, errs.CodeComFailure) {
		t.Fatalf("Expected COM_FAILURE, got %v", result.Err)
	}

	loaded, err := repo.GetTransaction(ctx, nil, txn.Id)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if loaded.State != models.TransactionStateFailed {
		t.Errorf("Expected FAILED, got %s", loaded.State)
	}
	if loaded.PostingDate.IsZero() {
		t.Errorf("Expected the failure posting date to be recorded")
	}
}

func TestHandle_UnknownAction(t *testing.T) {
	w, _, _, cleanup := setupWorker(t)
	defer cleanup()

	result := w.handle(context.Background(), models.WorkRequest{Action: "compactLedger", WorkId: "w3"})
	if !errs.HasCode(result.Err, errs.CodeInvalidArgument) {
		t.Errorf("Expected INVALID_ARGUMENT for unknown action, got %v", result.Err)
	}
}

func TestProcessBatch_OneFailureDoesNotStopTheRest(t *testing.T) {
	w, fakeLed, repo, cleanup := setupWorker(t)
	defer cleanup()

	ctx := context.Background()
	first := seedTransaction(t, repo, models.TransactionStatePending, "batch-mixed", "leg-1")
	second := seedTransaction(t, repo, models.TransactionStatePending, "batch-mixed", "leg-2")
	third := seedTransaction(t, repo, models.TransactionStatePending, "batch-mixed", "leg-3")

	fakeLed.fail = errs.New(errs.CodeComFailure, "gateway down")
	fakeLed.failMemo = "leg-2"

	result := w.handle(ctx, models.WorkRequest{
		Action:  models.WorkActionProcess,
		WorkId:  "w5",
		BatchId: "batch-mixed",
	})
	if !errs.HasCode(result.Err, errs.CodeComFailure) {
		t.Fatalf("Expected the batch to report the failed leg, got %v", result.Err)
	}

	// The failure in the middle must not stop the sweep: both other legs
	// settle, the failed one is durably FAILED.
	if fakeLed.payments != 2 {
		t.Errorf("Expected 2 ledger payments around the failed leg, got %d", fakeLed.payments)
	}
	for _, tc := range []struct {
		id   string
		want models.TransactionState
	}{
		{first.Id, models.TransactionStateComplete},
		{second.Id, models.TransactionStateFailed},
		{third.Id, models.TransactionStateComplete},
	} {
		loaded, err := repo.GetTransaction(ctx, nil, tc.id)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if loaded.State != tc.want {
			t.Errorf("Expected transaction %s %s, got %s", tc.id, tc.want, loaded.State)
		}
	}
}

// seedInvoicedPurchase stores the rows an invoiced purchase leaves behind: a
// NEW purchase, its pending purchase-type invoice transaction and the pending
// asset-delivery payment queued for the worker.
func seedInvoicedPurchase(t *testing.T, repo *repository.Service) (*models.Purchase, *models.Transaction, *models.Transaction) {
	ctx := context.Background()
	buyer, err := repo.InsertWallet(ctx, nil, &models.Wallet{Address: "GBUYER"})
	if err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}
	dist, err := repo.InsertWallet(ctx, nil, &models.Wallet{Address: "GDIST"})
	if err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	invoice, err := repo.InsertTransaction(ctx, nil, &models.Transaction{
		Id:            "purchase-1",
		Type:          models.TransactionTypePurchase,
		State:         models.TransactionStatePending,
		BatchId:       "purchase-1",
		PayorWalletId: buyer.Id,
		PayeeWalletId: dist.Id,
		Amount:        models.NewMonetaryAmount(decimal.NewFromInt(50), "USDT"),
	})
	if err != nil {
		t.Fatalf("InsertTransaction failed: %v", err)
	}
	delivery, err := repo.InsertTransaction(ctx, nil, &models.Transaction{
		Type:          models.TransactionTypePayment,
		State:         models.TransactionStatePending,
		BatchId:       "purchase-1",
		PayorWalletId: dist.Id,
		PayeeWalletId: buyer.Id,
		Amount:        models.NewMonetaryAmount(decimal.NewFromInt(10), "UHT"),
		Memo:          "delivery",
	})
	if err != nil {
		t.Fatalf("InsertTransaction failed: %v", err)
	}
	purchase, err := repo.InsertPurchase(ctx, nil, &models.Purchase{
		Id:                  "purchase-1",
		QuoteId:             "quote-1",
		AssetId:             "asset-1",
		Quantity:            decimal.NewFromInt(10),
		InvoicedAmount:      models.NewMonetaryAmount(decimal.NewFromInt(50), "USDT"),
		DistributorWalletId: dist.Id,
		State:               models.PurchaseStateNew,
	})
	if err != nil {
		t.Fatalf("InsertPurchase failed: %v", err)
	}
	return purchase, invoice, delivery
}

func TestBacklogSettlesInvoicedPurchase(t *testing.T) {
	w, fakeLed, repo, cleanup := setupWorker(t)
	defer cleanup()

	ctx := context.Background()
	purchase, invoice, delivery := seedInvoicedPurchase(t, repo)

	result := w.handle(ctx, models.WorkRequest{
		Action: models.WorkActionBacklog,
		WorkId: "w6",
	})
	if result.Err != nil {
		t.Fatalf("Backlog run failed: %v", result.Err)
	}

	// Only the asset delivery goes on the ledger. The invoice row is fiat
	// collected out of band and must never be re-submitted as a payment.
	if fakeLed.payments != 1 {
		t.Fatalf("Expected exactly one ledger payment for the delivery, got %d", fakeLed.payments)
	}

	loadedDelivery, err := repo.GetTransaction(ctx, nil, delivery.Id)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if loadedDelivery.State != models.TransactionStateComplete || loadedDelivery.Ref == "" {
		t.Errorf("Expected the delivery COMPLETE with a ref, got %s %q", loadedDelivery.State, loadedDelivery.Ref)
	}

	// Settling the delivery advances the purchase and its invoice row.
	loadedPurchase, err := repo.GetPurchase(ctx, nil, purchase.Id)
	if err != nil {
		t.Fatalf("GetPurchase failed: %v", err)
	}
	if loadedPurchase.State != models.PurchaseStateComplete {
		t.Errorf("Expected the purchase COMPLETE after its delivery settled, got %s", loadedPurchase.State)
	}
	if loadedPurchase.Ref != loadedDelivery.Ref || loadedPurchase.TransactionTime.IsZero() {
		t.Errorf("Expected the purchase to carry the delivery ref and settlement time, got %q", loadedPurchase.Ref)
	}

	loadedInvoice, err := repo.GetTransaction(ctx, nil, invoice.Id)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if loadedInvoice.State != models.TransactionStateComplete {
		t.Errorf("Expected the invoice row COMPLETE, got %s", loadedInvoice.State)
	}
}

func TestProcessByTransactionIds(t *testing.T) {
	w, fakeLed, repo, cleanup := setupWorker(t)
	defer cleanup()

	ctx := context.Background()
	txn := seedTransaction(t, repo, models.TransactionStatePending, "", "delivery")

	result := w.handle(ctx, models.WorkRequest{
		Action:         models.WorkActionProcess,
		WorkId:         "w4",
		TransactionIds: []string{txn.Id},
	})
	if result.Err != nil {
		t.Fatalf("Expected id-addressed processing to pass, got %v", result.Err)
	}
	if fakeLed.payments != 1 {
		t.Errorf("Expected one ledger payment, got %d", fakeLed.payments)
	}
}
