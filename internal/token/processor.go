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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/repository"
)

// ProcessResult is what a payment processor hands back to the orchestrator:
// the purchase state it produced, the ledger reference when settlement
// happened synchronously, and any linked transactions to be persisted
// alongside the purchase.
type ProcessResult struct {
	State  models.PurchaseState
	Ref    string
	Linked []*models.Transaction
}

// Processor settles a purchase invoiced in one particular currency. A
// returned error means settlement did not happen; the orchestrator records
// the rejection and re-raises.
type Processor interface {
	Process(ctx context.Context, purchase *models.Purchase, offerAccount *ledger.Account) (*ProcessResult, error)
}

// ProcessorRegistry maps invoiced currency codes to their payment handler.
// Handlers are registered at startup; lookups for unknown codes fail fast
// with UNSUPPORTED_CURRENCY rather than a dynamic load failure.
type ProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[string]Processor
}

func NewProcessorRegistry() *ProcessorRegistry {
	return &ProcessorRegistry{processors: make(map[string]Processor)}
}

func (r *ProcessorRegistry) Register(currencyCode string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[currencyCode] = p
}

func (r *ProcessorRegistry) For(currencyCode string) (Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.processors[currencyCode]
	if !ok {
		return nil, errs.New(errs.CodeUnsupportedCurrency,
			"no payment processor registered for currency %s", currencyCode)
	}
	return p, nil
}

// NativeProcessor settles purchases invoiced in the network's base currency
// entirely on the ledger: it collects the invoiced amount from the buyer's
// wallet, then delivers the asset from the distributor.
type NativeProcessor struct {
	repo   *repository.Service
	ledger ledger.Client
	policy common.Policy
}

func NewNativeProcessor(repo *repository.Service, ledgerClient ledger.Client, policy common.Policy) *NativeProcessor {
	return &NativeProcessor{repo: repo, ledger: ledgerClient, policy: policy}
}

func (p *NativeProcessor) Process(ctx context.Context, purchase *models.Purchase, offerAccount *ledger.Account) (*ProcessResult, error) {
	buyerWallet, err := p.repo.GetWalletByUserId(ctx, nil, purchase.BuyerId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "buyer %s has no wallet", purchase.BuyerId)
	}
	distributorWallet, err := p.repo.GetWallet(ctx, nil, purchase.DistributorWalletId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "distributor wallet %s not found", purchase.DistributorWalletId)
	}
	asset, err := p.repo.GetAsset(ctx, nil, purchase.AssetId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "asset %s not found", purchase.AssetId)
	}

	// Collect the invoiced payment from the buyer. The ledger enforces the
	// atomic debit; an overdraft surfaces here as a payment failure.
	collectRef, err := p.ledger.CreatePayment(ctx, buyerWallet, distributorWallet,
		purchase.InvoicedAmount, purchase.Id, ledger.MemoTypeText)
	if err != nil {
		return nil, err
	}

	linked := []*models.Transaction{{
		Type:          models.TransactionTypePayment,
		State:         models.TransactionStateComplete,
		BatchId:       purchase.Id,
		PayorWalletId: buyerWallet.Id,
		PayeeWalletId: distributorWallet.Id,
		Amount:        purchase.InvoicedAmount,
		Memo:          purchase.Id,
		Ref:           collectRef,
		PostingDate:   time.Now().UTC(),
	}}

	if err := ensureReceivable(ctx, p.ledger, buyerWallet, distributorWallet, asset, p.policy.BuyerFunding); err != nil {
		return nil, err
	}

	deliverRef, err := p.ledger.CreatePayment(ctx, distributorWallet, buyerWallet,
		models.NewMonetaryAmount(purchase.Quantity, asset.Code), hashMemo(purchase.Id), ledger.MemoTypeHash)
	if err != nil {
		return nil, err
	}

	linked = append(linked, &models.Transaction{
		Type:          models.TransactionTypePayment,
		State:         models.TransactionStateComplete,
		BatchId:       purchase.Id,
		PayorWalletId: distributorWallet.Id,
		PayeeWalletId: buyerWallet.Id,
		Amount:        models.NewMonetaryAmount(purchase.Quantity, asset.Code),
		Memo:          hashMemo(purchase.Id),
		Ref:           deliverRef,
		PostingDate:   time.Now().UTC(),
	})

	zap.L().Info("Settled purchase on ledger",
		zap.String("purchase_id", purchase.Id),
		zap.String("collect_ref", collectRef),
		zap.String("deliver_ref", deliverRef))

	return &ProcessResult{
		State:  models.PurchaseStateComplete,
		Ref:    deliverRef,
		Linked: linked,
	}, nil
}

// InvoiceProcessor handles purchases invoiced in a fiat currency that is
// collected out of band. It queues the asset delivery as a pending
// transaction for the worker and leaves the purchase pending.
type InvoiceProcessor struct {
	repo *repository.Service
}

func NewInvoiceProcessor(repo *repository.Service) *InvoiceProcessor {
	return &InvoiceProcessor{repo: repo}
}

func (p *InvoiceProcessor) Process(ctx context.Context, purchase *models.Purchase, offerAccount *ledger.Account) (*ProcessResult, error) {
	buyerWallet, err := p.repo.GetWalletByUserId(ctx, nil, purchase.BuyerId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "buyer %s has no wallet", purchase.BuyerId)
	}
	asset, err := p.repo.GetAsset(ctx, nil, purchase.AssetId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "asset %s not found", purchase.AssetId)
	}

	linked := []*models.Transaction{{
		Type:          models.TransactionTypePayment,
		State:         models.TransactionStatePending,
		BatchId:       purchase.Id,
		PayorWalletId: purchase.DistributorWalletId,
		PayeeWalletId: buyerWallet.Id,
		Amount:        models.NewMonetaryAmount(purchase.Quantity, asset.Code),
		Memo:          hashMemo(purchase.Id),
	}}

	zap.L().Info("Queued invoiced purchase for asynchronous settlement",
		zap.String("purchase_id", purchase.Id),
		zap.String("invoiced", purchase.InvoicedAmount.String()))

	return &ProcessResult{
		State:  models.PurchaseStateNew,
		Linked: linked,
	}, nil
}
