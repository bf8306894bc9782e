package token

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/repository"
)

func seedAssetWithOffer(t *testing.T, repo *repository.Service, code string, price *models.MonetaryAmount) (*models.Asset, *models.Offer) {
	ctx := context.Background()
	asset, err := repo.InsertAsset(ctx, nil, &models.Asset{Code: code, Name: code + " token"})
	if err != nil {
		t.Fatalf("InsertAsset failed: %v", err)
	}

	now := time.Now().UTC()
	offer := &models.Offer{
		Amount:    decimal.NewFromInt(1000),
		Price:     price,
		StartDate: now.AddDate(0, 0, -1),
		StopDate:  now.AddDate(0, 1, 0),
	}
	if _, err := repo.InsertOffer(ctx, nil, asset.Id, offer); err != nil {
		t.Fatalf("InsertOffer failed: %v", err)
	}
	return asset, offer
}

func TestCreateQuote_FixedPriceSameCurrency(t *testing.T) {
	service, _, fakeRat, repo, cleanup := setupTokenService(t)
	defer cleanup()

	price := models.NewMonetaryAmount(decimal.RequireFromString("0.5"), "USDT")
	_, offer := seedAssetWithOffer(t, repo, "UHT", &price)

	quote, err := service.CreateQuote(context.Background(), "UHT", "USDT", true)
	if err != nil {
		t.Fatalf("CreateQuote failed: %v", err)
	}

	if !quote.Rate.Value.Equal(price.Value) || quote.Rate.Code != "USDT" {
		t.Errorf("Expected rate 0.5 USDT, got %s", quote.Rate)
	}
	if !quote.Expiry.Equal(offer.StopDate) {
		t.Errorf("Expected expiry to track the offer stop date, got %s", quote.Expiry)
	}
	if len(fakeRat.calls) != 0 {
		t.Errorf("Expected no exchange calls for a same-currency fixed price, got %d", len(fakeRat.calls))
	}

	stored, err := repo.GetQuote(context.Background(), nil, quote.Id)
	if err != nil {
		t.Fatalf("Expected quote to be persisted: %v", err)
	}
	if !stored.Rate.Value.Equal(price.Value) {
		t.Errorf("Expected stored rate 0.5, got %s", stored.Rate.Value)
	}
}

func TestCreateQuote_FixedPriceBridgedConversion(t *testing.T) {
	service, _, fakeRat, repo, cleanup := setupTokenService(t)
	defer cleanup()

	price := models.NewMonetaryAmount(decimal.NewFromInt(12), "USDT")
	seedAssetWithOffer(t, repo, "UHT", &price)

	// Two bridged hops averaging to 3: the rate is price / average.
	fakeRat.out = []decimal.Decimal{decimal.NewFromInt(2), decimal.NewFromInt(4)}

	before := time.Now().UTC()
	quote, err := service.CreateQuote(context.Background(), "UHT", "PHP", false)
	if err != nil {
		t.Fatalf("CreateQuote failed: %v", err)
	}

	if !quote.Rate.Value.Equal(decimal.NewFromInt(4)) || quote.Rate.Code != "PHP" {
		t.Errorf("Expected rate 4 PHP, got %s", quote.Rate)
	}
	if len(fakeRat.calls) != 1 || len(fakeRat.calls[0]) != 2 {
		t.Fatalf("Expected one exchange call with 2 bridged hops, got %+v", fakeRat.calls)
	}
	if fakeRat.calls[0][0].Via[0] != "BTC" || fakeRat.calls[0][1].Via[0] != "ETH" {
		t.Errorf("Expected BTC and ETH bridges, got %+v", fakeRat.calls[0])
	}
	if quote.Expiry.Before(before.Add(29 * time.Minute)) {
		t.Errorf("Expected the configured validity window, got expiry %s", quote.Expiry)
	}
	if quote.Id != "" {
		t.Errorf("Expected unpersisted quote to carry no id, got %s", quote.Id)
	}
}

func TestCreateQuote_BridgeCurrencyGoesDirect(t *testing.T) {
	service, _, fakeRat, repo, cleanup := setupTokenService(t)
	defer cleanup()

	price := models.NewMonetaryAmount(decimal.NewFromInt(10), "USDT")
	seedAssetWithOffer(t, repo, "UHT", &price)
	fakeRat.out = []decimal.Decimal{decimal.NewFromInt(5)}

	quote, err := service.CreateQuote(context.Background(), "UHT", "BTC", false)
	if err != nil {
		t.Fatalf("CreateQuote failed: %v", err)
	}
	if !quote.Rate.Value.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Expected rate 2 BTC, got %s", quote.Rate)
	}
	if len(fakeRat.calls) != 1 || len(fakeRat.calls[0]) != 1 || len(fakeRat.calls[0][0].Via) != 0 {
		t.Errorf("Expected a single direct hop when buying in a bridge currency, got %+v", fakeRat.calls)
	}
}

func TestCreateQuote_MarketRateOffer(t *testing.T) {
	service, _, fakeRat, repo, cleanup := setupTokenService(t)
	defer cleanup()

	seedAssetWithOffer(t, repo, "UHT", nil)
	fakeRat.out = []decimal.Decimal{decimal.RequireFromString("0.25")}

	quote, err := service.CreateQuote(context.Background(), "UHT", "XLM", false)
	if err != nil {
		t.Fatalf("CreateQuote failed: %v", err)
	}
	if !quote.Rate.Value.Equal(decimal.RequireFromString("0.25")) || quote.Rate.Code != "XLM" {
		t.Errorf("Expected market rate 0.25 XLM, got %s", quote.Rate)
	}
	if fakeRat.calls[0][0].From != "UHT" || fakeRat.calls[0][0].To != "XLM" {
		t.Errorf("Expected a direct UHT->XLM hop, got %+v", fakeRat.calls[0][0])
	}
}

func TestCreateQuote_Failures(t *testing.T) {
	service, _, _, repo, cleanup := setupTokenService(t)
	defer cleanup()

	ctx := context.Background()

	if _, err := service.CreateQuote(ctx, "NOPE", "USDT", false); !errs.HasCode(err, errs.CodeRulesViolation) {
		t.Errorf("Expected RULES_VIOLATION for unknown asset, got %v", err)
	}

	// Asset without any offer.
	if _, err := repo.InsertAsset(ctx, nil, &models.Asset{Code: "BARE"}); err != nil {
		t.Fatalf("InsertAsset failed: %v", err)
	}
	if _, err := service.CreateQuote(ctx, "BARE", "USDT", false); !errs.HasCode(err, errs.CodeNoOffer) {
		t.Errorf("Expected NO_OFFER, got %v", err)
	}

	// Locked asset.
	if _, err := repo.InsertAsset(ctx, nil, &models.Asset{Code: "SHUT", Locked: true}); err != nil {
		t.Fatalf("InsertAsset failed: %v", err)
	}
	if _, err := service.CreateQuote(ctx, "SHUT", "USDT", false); !errs.HasCode(err, errs.CodeAssetLocked) {
		t.Errorf("Expected ASSET_LOCKED, got %v", err)
	}
}
