/**
 * Copyright 2018-present Universal Health Coin
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package token

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/rates"
	"github.com/UHCToken/uhc-api/internal/repository"
	"github.com/UHCToken/uhc-api/internal/security"
)

// CreatePurchase executes a buyer's order against a previously issued quote.
//
// A NEW purchase is validated, stored together with its transaction row, and
// settled by the payment processor registered for the invoiced currency. An
// ACTIVE purchase is an administrative entry asserting payment was already
// collected out of band; only the asset delivery runs.
//
// Settlement runs outside the local database transaction: if the ledger
// rejects, the purchase is durably marked REJECT before the error is
// re-raised, so a crash right after the failure cannot resurrect the order.
func (s *Service) CreatePurchase(ctx context.Context, principal *security.Principal, purchase *models.Purchase) (*models.Purchase, error) {
	result, err := s.createPurchase(ctx, principal, purchase)
	if err != nil {
		zap.L().Error("Error creating purchase",
			zap.String("quote_id", purchase.QuoteId),
			zap.String("asset_id", purchase.AssetId),
			zap.Error(err))
		cause := errs.RootCause(err)
		if code := errs.CodeOf(cause); code != errs.CodeUnknown {
			return nil, errs.Wrap(cause, code, "purchase failed")
		}
		return nil, errs.Wrap(cause, errs.CodeUnknown, "purchase failed")
	}
	return result, nil
}

func (s *Service) createPurchase(ctx context.Context, principal *security.Principal, purchase *models.Purchase) (*models.Purchase, error) {
	if principal == nil {
		return nil, errs.New(errs.CodeSecurityError, "purchase requires an authenticated session")
	}

	// Owner-scoped sessions always buy for themselves; whatever buyer id the
	// request carried is discarded, not rejected.
	if principal.OwnerOnly("purchase") {
		purchase.BuyerId = principal.UserId
	} else if purchase.BuyerId == "" {
		purchase.BuyerId = principal.UserId
	}

	if err := common.ValidateInput(purchase); err != nil {
		return nil, err
	}
	if !purchase.Quantity.IsPositive() {
		return nil, errs.New(errs.CodeInvalidArgument, "purchase quantity must be positive")
	}
	if purchase.State != models.PurchaseStateNew && purchase.State != models.PurchaseStateActive {
		return nil, errs.New(errs.CodeInvalidArgument,
			"a purchase can only be created NEW or ACTIVE, got %s", purchase.State)
	}
	if purchase.State == models.PurchaseStateActive && principal.OwnerOnly("purchase") {
		return nil, errs.New(errs.CodeSecurityError,
			"principal %s may not record pre-settled purchases", principal.UserId)
	}

	quote, err := s.repo.GetQuote(ctx, nil, purchase.QuoteId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "quote %s not found", purchase.QuoteId)
		}
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load quote %s", purchase.QuoteId)
	}
	if quote.AssetId != purchase.AssetId {
		return nil, errs.NewBusinessRule(errs.CodeDataError, errs.SeverityError,
			"quote %s does not price asset %s", quote.Id, purchase.AssetId)
	}
	if quote.Expired(time.Now().UTC()) {
		return nil, errs.New(errs.CodeExpired, "quote %s expired at %s", quote.Id, quote.Expiry)
	}

	if purchase.InvoicedAmount.IsZero() {
		purchase.InvoicedAmount = models.NewMonetaryAmount(
			purchase.Quantity.Mul(quote.Rate.Value), quote.Rate.Code)
	}

	buyer, err := s.repo.GetUser(ctx, nil, purchase.BuyerId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "buyer %s not found", purchase.BuyerId)
		}
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load buyer %s", purchase.BuyerId)
	}
	if principal.OwnerOnly("purchase") && buyer.Id != principal.UserId {
		return nil, errs.New(errs.CodeSecurityError,
			"principal %s may not purchase on behalf of %s", principal.UserId, buyer.Id)
	}
	buyerWallet, err := s.repo.GetWalletByUserId(ctx, nil, buyer.Id)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "buyer %s has no wallet", buyer.Id)
	}

	asset, err := s.repo.GetAsset(ctx, nil, purchase.AssetId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "asset %s not found", purchase.AssetId)
	}
	if asset.Locked {
		return nil, errs.New(errs.CodeAssetLocked,
			"selling of %s from this distributor is currently locked", asset.Code)
	}

	offer, err := s.repo.GetActiveOffer(ctx, nil, asset.Id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.NewBusinessRule(errs.CodeNoOffer, errs.SeverityError,
				"the requested asset is not for sale at the moment")
		}
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load active offer for %s", asset.Code)
	}

	offerWalletId := offer.WalletId
	if offerWalletId == "" {
		offerWalletId = asset.DistWalletId
	}
	purchase.DistributorWalletId = offerWalletId
	offerWallet, err := s.repo.GetWallet(ctx, nil, offerWalletId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeDataError, "offer wallet %s not found", offerWalletId)
	}

	// Advisory check against the live offer account; the ledger's atomic
	// debit remains the final arbiter at settlement time.
	offerAccount, err := s.ledger.GetAccount(ctx, offerWallet)
	if err != nil {
		return nil, err
	}
	if offerAccount.BalanceOf(asset.Code).LessThan(purchase.Quantity) {
		return nil, errs.New(errs.CodeInsufficientFunds,
			"offer wallet holds %s %s, %s requested",
			offerAccount.BalanceOf(asset.Code), asset.Code, purchase.Quantity)
	}

	if err := s.checkKycLimit(ctx, buyer.Id, purchase.InvoicedAmount); err != nil {
		return nil, err
	}

	// A purchase shares its id with the transaction row inserted alongside
	// it; the id doubles as the batch id for linked settlement transactions.
	txn := &models.Transaction{
		Id:            uuid.New().String(),
		Type:          models.TransactionTypePurchase,
		State:         models.TransactionStatePending,
		PayorWalletId: buyerWallet.Id,
		PayeeWalletId: offerWallet.Id,
		Amount:        purchase.InvoicedAmount,
		Memo:          purchase.Memo,
	}
	txn.BatchId = txn.Id
	purchase.Id = txn.Id

	err = s.repo.RunInTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}
		_, err := s.repo.InsertPurchase(ctx, tx, purchase)
		return err
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to store purchase")
	}

	if purchase.State == models.PurchaseStateActive {
		err = s.settlePreCollected(ctx, purchase, txn, buyerWallet, offerWallet, asset)
	} else {
		err = s.settleNew(ctx, purchase, txn, offerAccount)
	}
	if err != nil {
		s.rejectPurchase(ctx, purchase, txn)
		return nil, err
	}

	zap.L().Info("Created purchase",
		zap.String("purchase_id", purchase.Id),
		zap.String("asset_code", asset.Code),
		zap.String("quantity", purchase.Quantity.String()),
		zap.String("invoiced", purchase.InvoicedAmount.String()),
		zap.String("state", purchase.State.String()))
	return purchase, nil
}

// settleNew dispatches a NEW purchase to the payment processor registered for
// its invoiced currency and persists the outcome.
func (s *Service) settleNew(ctx context.Context, purchase *models.Purchase, txn *models.Transaction, offerAccount *ledger.Account) error {
	processor, err := s.processors.For(purchase.InvoicedAmount.Code)
	if err != nil {
		return err
	}

	result, err := processor.Process(ctx, purchase, offerAccount)
	if err != nil {
		return err
	}

	purchase.State = result.State
	purchase.Ref = result.Ref
	if result.State == models.PurchaseStateComplete {
		purchase.TransactionTime = time.Now().UTC()
		txn.State = models.TransactionStateComplete
		txn.Ref = result.Ref
		txn.PostingDate = purchase.TransactionTime
	}

	return s.repo.RunInTransaction(ctx, func(tx *sql.Tx) error {
		for _, linked := range result.Linked {
			if _, err := s.repo.InsertTransaction(ctx, tx, linked); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateTransaction(ctx, tx, txn); err != nil {
			return err
		}
		return s.repo.UpdatePurchase(ctx, tx, purchase)
	})
}

// settlePreCollected runs the delivery leg of an ACTIVE purchase. Payment was
// collected out of band, so only the asset moves on the ledger.
func (s *Service) settlePreCollected(ctx context.Context, purchase *models.Purchase, txn *models.Transaction, buyerWallet, offerWallet *models.Wallet, asset *models.Asset) error {
	if err := ensureReceivable(ctx, s.ledger, buyerWallet, offerWallet, asset, s.policy.BuyerFunding); err != nil {
		return err
	}

	ref, err := s.ledger.CreatePayment(ctx, offerWallet, buyerWallet,
		models.NewMonetaryAmount(purchase.Quantity, asset.Code), hashMemo(purchase.Id), ledger.MemoTypeHash)
	if err != nil {
		return err
	}

	purchase.State = models.PurchaseStateComplete
	purchase.Ref = ref
	purchase.TransactionTime = time.Now().UTC()
	txn.State = models.TransactionStateComplete
	txn.Ref = ref
	txn.PostingDate = purchase.TransactionTime

	return s.repo.RunInTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.repo.UpdateTransaction(ctx, tx, txn); err != nil {
			return err
		}
		return s.repo.UpdatePurchase(ctx, tx, purchase)
	})
}

// rejectPurchase durably records the rejection of a stored purchase after a
// settlement failure. The write must survive the error being re-raised, so it
// runs on the pool with a best-effort log on failure.
func (s *Service) rejectPurchase(ctx context.Context, purchase *models.Purchase, txn *models.Transaction) {
	purchase.State = models.PurchaseStateReject
	txn.State = models.TransactionStateFailed
	txn.PostingDate = time.Now().UTC()

	if err := s.repo.UpdatePurchase(ctx, nil, purchase); err != nil {
		zap.L().Error("Failed to record purchase rejection",
			zap.String("purchase_id", purchase.Id), zap.Error(err))
	}
	if err := s.repo.UpdateTransaction(ctx, nil, txn); err != nil {
		zap.L().Error("Failed to record transaction failure",
			zap.String("transaction_id", txn.Id), zap.Error(err))
	}
}

// checkKycLimit enforces a buyer's per-trade value ceiling. The limit claim
// is denominated in the reference currency; the invoiced amount is converted
// through the first bridge currency before comparison.
func (s *Service) checkKycLimit(ctx context.Context, buyerId string, invoiced models.MonetaryAmount) error {
	claims, err := s.repo.GetUserClaims(ctx, nil, buyerId)
	if err != nil {
		return errs.Wrap(err, errs.CodeDataError, "unable to load claims for buyer %s", buyerId)
	}
	limitStr, ok := claims[models.ClaimKycLimit]
	if !ok {
		return nil
	}
	limit, err := decimal.NewFromString(limitStr)
	if err != nil {
		return errs.Wrap(err, errs.CodeDataError,
			"buyer %s has malformed %s claim %q", buyerId, models.ClaimKycLimit, limitStr)
	}

	referenceValue := invoiced.Value
	if invoiced.Code != s.policy.ReferenceCurrency {
		hop := rates.Hop{From: s.policy.ReferenceCurrency, To: invoiced.Code}
		if len(s.policy.BridgeCurrencies) > 0 {
			hop.Via = []string{s.policy.BridgeCurrencies[0]}
		}
		exchange, err := s.rates.GetExchange(ctx, []rates.Hop{hop})
		if err != nil {
			return err
		}
		if len(exchange) == 0 || exchange[0].IsZero() {
			return errs.New(errs.CodeComFailure,
				"exchange service returned no usable rate for %s->%s",
				s.policy.ReferenceCurrency, invoiced.Code)
		}
		referenceValue = invoiced.Value.Div(exchange[0])
	}

	if referenceValue.GreaterThan(limit) {
		return errs.New(errs.CodeAmlCheck,
			"purchase value %s %s exceeds the buyer's verified limit of %s %s",
			referenceValue.StringFixed(2), s.policy.ReferenceCurrency, limit, s.policy.ReferenceCurrency)
	}
	return nil
}
