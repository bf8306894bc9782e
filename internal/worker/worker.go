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

// Package worker drives queued transactions to settlement. It owns no state
// beyond its channels; everything it touches goes through the repository and
// the ledger client handed to it at construction.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/repository"
	"github.com/UHCToken/uhc-api/internal/security"
)

// Worker consumes WorkRequests from its request channel and emits one
// WorkResult per request. Transactions already in a terminal state are
// skipped, which makes re-driving a batch idempotent.
type Worker struct {
	repo   *repository.Service
	ledger ledger.Client

	requests chan models.WorkRequest
	results  chan models.WorkResult

	wg sync.WaitGroup
}

// Config carries the worker's collaborators and channel sizing.
type Config struct {
	Repo      *repository.Service
	Ledger    ledger.Client
	QueueSize int
}

func NewWorker(cfg Config) *Worker {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Worker{
		repo:     cfg.Repo,
		ledger:   cfg.Ledger,
		requests: make(chan models.WorkRequest, queueSize),
		results:  make(chan models.WorkResult, queueSize),
	}
}

// Requests is the channel work is submitted on. It is closed by Stop, never
// by callers.
func (w *Worker) Requests() chan<- models.WorkRequest {
	return w.requests
}

// Results emits one WorkResult per consumed request, in completion order.
func (w *Worker) Results() <-chan models.WorkResult {
	return w.results
}

// Start launches the consume loop. The wait-group registration happens here,
// before the goroutine exists, so a Stop racing a fresh Start cannot close
// the result channel under an in-flight request.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// run consumes requests until the context is cancelled or Stop is called.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	zap.L().Info("Transaction worker started")
	for {
		select {
		case <-ctx.Done():
			zap.L().Info("Transaction worker stopping", zap.Error(ctx.Err()))
			return
		case request, ok := <-w.requests:
			if !ok {
				zap.L().Info("Transaction worker request channel closed")
				return
			}
			w.results <- w.handle(ctx, request)
		}
	}
}

// Stop closes the request channel and waits for in-flight work to finish.
func (w *Worker) Stop() {
	close(w.requests)
	w.wg.Wait()
	close(w.results)
}

// Submit enqueues a request, assigning a work id when the caller did not.
// It returns the work id used for correlation.
func (w *Worker) Submit(request models.WorkRequest) string {
	if request.WorkId == "" {
		request.WorkId = uuid.New().String()
	}
	w.requests <- request
	return request.WorkId
}

func (w *Worker) handle(ctx context.Context, request models.WorkRequest) models.WorkResult {
	result := models.WorkResult{WorkId: request.WorkId, BatchId: request.BatchId}

	// Worker-originated sessions run as the system principal.
	principal := security.System()
	if request.SessionUserId != "" && request.SessionUserId != security.NilUserId {
		claims, err := w.repo.GetUserClaims(ctx, nil, request.SessionUserId)
		if err != nil {
			result.Err = errs.Wrap(err, errs.CodeDataError,
				"unable to load session user %s", request.SessionUserId)
			return result
		}
		principal = security.ForUser(request.SessionUserId, claims)
	}

	switch request.Action {
	case models.WorkActionBacklog:
		result.Err = w.backlogTransactions(ctx, principal)
	case models.WorkActionProcess:
		result.Err = w.processTransactions(ctx, principal, request)
	default:
		result.Err = errs.New(errs.CodeInvalidArgument, "unknown work action %q", request.Action)
	}
	return result
}

// backlogTransactions sweeps every transaction left in a retryable state and
// re-drives it through the ledger. Pending rows were queued and never
// submitted; Failed rows are retried.
func (w *Worker) backlogTransactions(ctx context.Context, principal *security.Principal) error {
	var backlog []*models.Transaction
	for _, state := range []models.TransactionState{models.TransactionStatePending, models.TransactionStateFailed} {
		txns, err := w.repo.GetTransactionsByState(ctx, nil, state)
		if err != nil {
			return errs.Wrap(err, errs.CodeDataError, "unable to load %s transactions", state)
		}
		backlog = append(backlog, txns...)
	}

	if len(backlog) == 0 {
		zap.L().Debug("Transaction backlog empty")
		return nil
	}

	zap.L().Info("Processing transaction backlog", zap.Int("count", len(backlog)))
	return w.drive(ctx, principal, backlog)
}

// processTransactions re-drives an explicitly named set of transactions,
// resolved from an id list or a batch id.
func (w *Worker) processTransactions(ctx context.Context, principal *security.Principal, request models.WorkRequest) error {
	var (
		txns []*models.Transaction
		err  error
	)
	switch {
	case len(request.TransactionIds) > 0:
		for _, id := range request.TransactionIds {
			txn, err := w.repo.GetTransaction(ctx, nil, id)
			if err != nil {
				return errs.Wrap(err, errs.CodeNotFound, "transaction %s not found", id)
			}
			txns = append(txns, txn)
		}
	case request.BatchId != "":
		txns, err = w.repo.GetTransactionsByBatch(ctx, nil, request.BatchId)
		if err != nil {
			return errs.Wrap(err, errs.CodeDataError, "unable to load batch %s", request.BatchId)
		}
		if len(txns) == 0 {
			return errs.New(errs.CodeNotFound, "batch %s has no transactions", request.BatchId)
		}
	default:
		return errs.New(errs.CodeInvalidArgument,
			"processTransactions needs transaction ids or a batch id")
	}

	return w.drive(ctx, principal, txns)
}

// drive submits each transaction to the ledger, recording the state walk
// Active, then Complete or Failed, per transaction. One failure does not stop
// the rest of the set; the first error is reported after the sweep.
func (w *Worker) drive(ctx context.Context, principal *security.Principal, txns []*models.Transaction) error {
	var firstErr error
	for _, txn := range txns {
		if txn.State.Terminal() {
			zap.L().Info("Skipping terminal transaction",
				zap.String("transaction_id", txn.Id),
				zap.String("state", txn.State.String()))
			continue
		}
		// Only payment rows settle on the ledger. A purchase-type row is the
		// off-band invoice of its purchase; it completes when the purchase's
		// delivery payment does.
		if txn.Type != models.TransactionTypePayment {
			zap.L().Debug("Skipping off-ledger transaction",
				zap.String("transaction_id", txn.Id),
				zap.String("type", string(txn.Type)))
			continue
		}
		if err := w.submitOne(ctx, principal, txn); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			zap.L().Error("Transaction failed",
				zap.String("transaction_id", txn.Id),
				zap.Error(err))
		}
	}
	return firstErr
}

func (w *Worker) submitOne(ctx context.Context, principal *security.Principal, txn *models.Transaction) error {
	payor, err := w.repo.GetWallet(ctx, nil, txn.PayorWalletId)
	if err != nil {
		return w.fail(ctx, txn, errs.Wrap(err, errs.CodeDataError,
			"payor wallet %s not found", txn.PayorWalletId))
	}
	payee, err := w.repo.GetWallet(ctx, nil, txn.PayeeWalletId)
	if err != nil {
		return w.fail(ctx, txn, errs.Wrap(err, errs.CodeDataError,
			"payee wallet %s not found", txn.PayeeWalletId))
	}
	if principal.OwnerOnly("wallet") && payor.UserId != principal.UserId {
		return w.fail(ctx, txn, errs.New(errs.CodeSecurityError,
			"principal %s may not submit payments from wallet %s", principal.UserId, payor.Id))
	}

	// Mark Active before submitting so a crash between submit and the
	// Complete write is visible as an in-flight transaction.
	txn.State = models.TransactionStateActive
	if err := w.repo.UpdateTransaction(ctx, nil, txn); err != nil {
		return fmt.Errorf("failed to mark transaction %s active: %w", txn.Id, err)
	}

	ref, err := w.ledger.CreatePayment(ctx, payor, payee, txn.Amount, txn.Memo, ledger.MemoTypeText)
	if err != nil {
		return w.fail(ctx, txn, err)
	}

	txn.State = models.TransactionStateComplete
	txn.Ref = ref
	txn.PostingDate = time.Now().UTC()
	if err := w.repo.UpdateTransaction(ctx, nil, txn); err != nil {
		return fmt.Errorf("transaction %s settled as %s but state write failed: %w", txn.Id, ref, err)
	}

	if err := w.completeLinkedPurchase(ctx, txn); err != nil {
		return err
	}

	zap.L().Info("Transaction settled",
		zap.String("transaction_id", txn.Id),
		zap.String("ref", ref),
		zap.String("amount", txn.Amount.String()))
	return nil
}

// completeLinkedPurchase advances the purchase a settled delivery belongs to.
// A delivery's batch id is its purchase id; batches that are not purchases
// are left alone.
func (w *Worker) completeLinkedPurchase(ctx context.Context, delivery *models.Transaction) error {
	if delivery.BatchId == "" {
		return nil
	}
	purchase, err := w.repo.GetPurchase(ctx, nil, delivery.BatchId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return errs.Wrap(err, errs.CodeDataError,
			"unable to load purchase %s for settled delivery %s", delivery.BatchId, delivery.Id)
	}
	if purchase.State.Terminal() {
		return nil
	}

	purchase.State = models.PurchaseStateComplete
	purchase.Ref = delivery.Ref
	purchase.TransactionTime = delivery.PostingDate

	primary, err := w.repo.GetTransaction(ctx, nil, purchase.Id)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return errs.Wrap(err, errs.CodeDataError,
			"unable to load primary transaction for purchase %s", purchase.Id)
	}

	err = w.repo.RunInTransaction(ctx, func(tx *sql.Tx) error {
		if primary != nil && !primary.State.Terminal() {
			primary.State = models.TransactionStateComplete
			primary.Ref = delivery.Ref
			primary.PostingDate = delivery.PostingDate
			if err := w.repo.UpdateTransaction(ctx, tx, primary); err != nil {
				return err
			}
		}
		return w.repo.UpdatePurchase(ctx, tx, purchase)
	})
	if err != nil {
		return errs.Wrap(err, errs.CodeDataError,
			"delivery %s settled but purchase %s state write failed", delivery.Id, purchase.Id)
	}

	zap.L().Info("Purchase settled by worker",
		zap.String("purchase_id", purchase.Id),
		zap.String("ref", delivery.Ref))
	return nil
}

// fail records the failure durably and returns the cause for reporting.
func (w *Worker) fail(ctx context.Context, txn *models.Transaction, cause error) error {
	txn.State = models.TransactionStateFailed
	txn.PostingDate = time.Now().UTC()
	if err := w.repo.UpdateTransaction(ctx, nil, txn); err != nil {
		zap.L().Error("Failed to record transaction failure",
			zap.String("transaction_id", txn.Id), zap.Error(err))
	}
	return cause
}
