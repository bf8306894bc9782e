package token

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/repository"
	"github.com/UHCToken/uhc-api/internal/security"
)

type purchaseFixture struct {
	buyerId string
	buyerW  *models.Wallet
	distW   *models.Wallet
	asset   *models.Asset
	quote   *models.AssetQuote
}

// seedPurchase stores an asset with a live offer sold from a distributor
// wallet, a funded buyer, and a valid quote priced in rateCode.
func seedPurchase(t *testing.T, repo *repository.Service, fakeLed *fakeLedger, rate decimal.Decimal, rateCode string) *purchaseFixture {
	ctx := context.Background()

	distW, err := repo.InsertWallet(ctx, nil, &models.Wallet{Address: "GDIST"})
	if err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}
	asset, err := repo.InsertAsset(ctx, nil, &models.Asset{
		Code: "UHT", Name: "Universal Health Token", Issuer: "GISSUING", DistWalletId: distW.Id,
	})
	if err != nil {
		t.Fatalf("InsertAsset failed: %v", err)
	}
	now := time.Now().UTC()
	offer := &models.Offer{
		Amount:    decimal.NewFromInt(1000),
		WalletId:  distW.Id,
		Public:    true,
		StartDate: now.AddDate(0, 0, -1),
		StopDate:  now.AddDate(0, 1, 0),
	}
	if _, err := repo.InsertOffer(ctx, nil, asset.Id, offer); err != nil {
		t.Fatalf("InsertOffer failed: %v", err)
	}

	buyer, err := repo.InsertUser(ctx, nil, &models.User{Name: "Buyer", Email: "buyer@example.com"})
	if err != nil {
		t.Fatalf("InsertUser failed: %v", err)
	}
	buyerW, err := repo.InsertWallet(ctx, nil, &models.Wallet{Address: "GBUYER", UserId: buyer.Id})
	if err != nil {
		t.Fatalf("InsertWallet failed: %v", err)
	}

	fakeLed.setBalance("GDIST", "UHT", decimal.NewFromInt(1000))
	fakeLed.setBalance("GBUYER", "XLM", decimal.NewFromInt(100))

	quote, err := repo.InsertQuote(ctx, nil, &models.AssetQuote{
		AssetId: asset.Id,
		Rate:    models.NewMonetaryAmount(rate, rateCode),
		Expiry:  now.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("InsertQuote failed: %v", err)
	}

	return &purchaseFixture{
		buyerId: buyer.Id, buyerW: buyerW, distW: distW, asset: asset, quote: quote,
	}
}

func TestCreatePurchase_NativeSettlement(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()
	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(2), "XLM")

	purchase, err := service.CreatePurchase(ctx, security.System(), &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(5),
		BuyerId:  fix.buyerId,
	})
	if err != nil {
		t.Fatalf("CreatePurchase failed: %v", err)
	}

	if purchase.State != models.PurchaseStateComplete {
		t.Errorf("Expected state COMPLETE, got %s", purchase.State)
	}
	if !purchase.InvoicedAmount.Value.Equal(decimal.NewFromInt(10)) || purchase.InvoicedAmount.Code != "XLM" {
		t.Errorf("Expected invoiced 10 XLM from quantity x rate, got %s", purchase.InvoicedAmount)
	}
	if purchase.Ref == "" {
		t.Errorf("Expected a ledger reference on the completed purchase")
	}

	// Collect leg and delivery leg.
	if len(fakeLed.payments) != 2 {
		t.Fatalf("Expected 2 ledger payments, got %d", len(fakeLed.payments))
	}
	collect, deliver := fakeLed.payments[0], fakeLed.payments[1]
	if collect.FromId != fix.buyerW.Id || !collect.Amount.Value.Equal(decimal.NewFromInt(10)) || collect.Memo != purchase.Id {
		t.Errorf("Unexpected collect payment %+v", collect)
	}
	if deliver.ToId != fix.buyerW.Id || deliver.Amount.Code != "UHT" || deliver.MemoType != ledger.MemoTypeHash {
		t.Errorf("Unexpected delivery payment %+v", deliver)
	}

	// Primary transaction completed, two linked settlement rows in the batch.
	batch, err := repo.GetTransactionsByBatch(ctx, nil, purchase.Id)
	if err != nil {
		t.Fatalf("GetTransactionsByBatch failed: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("Expected primary + 2 linked transactions, got %d", len(batch))
	}
	for _, txn := range batch {
		if txn.State != models.TransactionStateComplete {
			t.Errorf("Expected every transaction COMPLETE, got %s for %s", txn.State, txn.Id)
		}
	}
}

func TestCreatePurchase_BalanceBoundary(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(1), "XLM")
	fakeLed.setBalance("GDIST", "UHT", decimal.NewFromInt(5))

	// Exactly the held amount is allowed.
	purchase, err := service.CreatePurchase(context.Background(), security.System(), &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(5),
		BuyerId:  fix.buyerId,
	})
	if err != nil {
		t.Fatalf("Expected purchase of the full held amount to pass, got %v", err)
	}
	if purchase.State != models.PurchaseStateComplete {
		t.Errorf("Expected COMPLETE, got %s", purchase.State)
	}
}

func TestCreatePurchase_InsufficientOfferBalance(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(1), "XLM")
	fakeLed.setBalance("GDIST", "UHT", decimal.NewFromInt(3))

	_, err := service.CreatePurchase(context.Background(), security.System(), &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(5),
		BuyerId:  fix.buyerId,
	})
	if !errs.HasCode(err, errs.CodeInsufficientFunds) {
		t.Fatalf("Expected INSUFFICIENT_FUNDS, got %v", err)
	}
	if len(fakeLed.payments) != 0 {
		t.Errorf("Expected no ledger payments, got %d", len(fakeLed.payments))
	}
}

func TestCreatePurchase_ExpiredQuote(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()
	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(1), "XLM")

	expired, err := repo.InsertQuote(ctx, nil, &models.AssetQuote{
		AssetId: fix.asset.Id,
		Rate:    models.NewMonetaryAmount(decimal.NewFromInt(1), "XLM"),
		Expiry:  time.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("InsertQuote failed: %v", err)
	}

	_, err = service.CreatePurchase(ctx, security.System(), &models.Purchase{
		QuoteId:  expired.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(1),
		BuyerId:  fix.buyerId,
	})
	if !errs.HasCode(err, errs.CodeExpired) {
		t.Fatalf("Expected EXPIRED, got %v", err)
	}

	// Nothing was stored and nothing moved.
	pendings, err := repo.GetTransactionsByState(ctx, nil, models.TransactionStatePending)
	if err != nil {
		t.Fatalf("GetTransactionsByState failed: %v", err)
	}
	if len(pendings) != 0 || len(fakeLed.payments) != 0 {
		t.Errorf("Expected no rows and no payments for an expired quote, got %d rows, %d payments",
			len(pendings), len(fakeLed.payments))
	}
}

func TestCreatePurchase_UnsupportedCurrencyRejectsDurably(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()
	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(3), "EUR")

	_, err := service.CreatePurchase(ctx, security.System(), &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(2),
		BuyerId:  fix.buyerId,
	})
	if !errs.HasCode(err, errs.CodeUnsupportedCurrency) {
		t.Fatalf("Expected UNSUPPORTED_CURRENCY, got %v", err)
	}

	// The stored purchase survives as a durable REJECT.
	failed, err := repo.GetTransactionsByState(ctx, nil, models.TransactionStateFailed)
	if err != nil {
		t.Fatalf("GetTransactionsByState failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("Expected one failed transaction, got %d", len(failed))
	}
	purchase, err := repo.GetPurchase(ctx, nil, failed[0].Id)
	if err != nil {
		t.Fatalf("GetPurchase failed: %v", err)
	}
	if purchase.State != models.PurchaseStateReject {
		t.Errorf("Expected state REJECT, got %s", purchase.State)
	}
}

func TestCreatePurchase_KycLimitExceeded(t *testing.T) {
	service, fakeLed, fakeRat, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()
	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(2), "XLM")
	if err := repo.SetUserClaim(ctx, nil, fix.buyerId, models.ClaimKycLimit, "10"); err != nil {
		t.Fatalf("SetUserClaim failed: %v", err)
	}

	// 2 XLM per USDT: invoiced 100 XLM is worth 50 USDT, over the limit of 10.
	fakeRat.out = []decimal.Decimal{decimal.NewFromInt(2)}

	_, err := service.CreatePurchase(ctx, security.System(), &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(50),
		BuyerId:  fix.buyerId,
	})
	if !errs.HasCode(err, errs.CodeAmlCheck) {
		t.Fatalf("Expected AML_CHECK, got %v", err)
	}
	if len(fakeLed.payments) != 0 {
		t.Errorf("Expected no payments for an over-limit purchase, got %d", len(fakeLed.payments))
	}
}

func TestCreatePurchase_InvoicedCurrencyQueuesDelivery(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()
	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(3), "USDT")

	purchase, err := service.CreatePurchase(ctx, security.System(), &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(4),
		BuyerId:  fix.buyerId,
	})
	if err != nil {
		t.Fatalf("CreatePurchase failed: %v", err)
	}

	if purchase.State != models.PurchaseStateNew {
		t.Errorf("Expected state NEW while the invoice is outstanding, got %s", purchase.State)
	}
	if len(fakeLed.payments) != 0 {
		t.Errorf("Expected no ledger payments for an invoiced purchase, got %d", len(fakeLed.payments))
	}

	// Delivery is queued for the worker.
	pendings, err := repo.GetTransactionsByState(ctx, nil, models.TransactionStatePending)
	if err != nil {
		t.Fatalf("GetTransactionsByState failed: %v", err)
	}
	var delivery *models.Transaction
	for _, txn := range pendings {
		if txn.BatchId == purchase.Id && txn.Amount.Code == "UHT" {
			delivery = txn
		}
	}
	if delivery == nil {
		t.Fatalf("Expected a pending UHT delivery transaction in batch %s", purchase.Id)
	}
	if !delivery.Amount.Value.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected delivery of 4 UHT, got %s", delivery.Amount)
	}
}

func TestCreatePurchase_OwnerScopedPrincipal(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()
	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(1), "XLM")
	principal := security.ForUser(fix.buyerId, nil)

	// The supplied buyer id is scrubbed to the session's own user.
	purchase, err := service.CreatePurchase(ctx, principal, &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(1),
		BuyerId:  "someone-else",
	})
	if err != nil {
		t.Fatalf("CreatePurchase failed: %v", err)
	}
	if purchase.BuyerId != fix.buyerId {
		t.Errorf("Expected buyer id scrubbed to %s, got %s", fix.buyerId, purchase.BuyerId)
	}

	// Owner-scoped sessions may not record pre-settled purchases.
	_, err = service.CreatePurchase(ctx, principal, &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(1),
		State:    models.PurchaseStateActive,
	})
	if !errs.HasCode(err, errs.CodeSecurityError) {
		t.Errorf("Expected SECURITY_ERROR for owner-scoped ACTIVE purchase, got %v", err)
	}
}

func TestCreatePurchase_PreCollectedDeliversOnly(t *testing.T) {
	service, fakeLed, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()
	fix := seedPurchase(t, repo, fakeLed, decimal.NewFromInt(2), "XLM")

	purchase, err := service.CreatePurchase(ctx, security.System(), &models.Purchase{
		QuoteId:  fix.quote.Id,
		AssetId:  fix.asset.Id,
		Quantity: decimal.NewFromInt(3),
		BuyerId:  fix.buyerId,
		State:    models.PurchaseStateActive,
	})
	if err != nil {
		t.Fatalf("CreatePurchase failed: %v", err)
	}

	if purchase.State != models.PurchaseStateComplete {
		t.Errorf("Expected COMPLETE, got %s", purchase.State)
	}
	// Only the delivery leg runs; payment was collected out of band.
	if len(fakeLed.payments) != 1 {
		t.Fatalf("Expected exactly one delivery payment, got %d", len(fakeLed.payments))
	}
	deliver := fakeLed.payments[0]
	if deliver.ToId != fix.buyerW.Id || deliver.Amount.Code != "UHT" || !deliver.Amount.Value.Equal(decimal.NewFromInt(3)) {
		t.Errorf("Unexpected delivery payment %+v", deliver)
	}
}
