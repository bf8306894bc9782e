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

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/UHCToken/uhc-api/internal/models"
)

func (s *Service) InsertTransaction(ctx context.Context, tx Querier, txn *models.Transaction) (*models.Transaction, error) {
	if txn.Id == "" {
		txn.Id = uuid.New().String()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	var postingDate sql.NullTime
	if !txn.PostingDate.IsZero() {
		postingDate = sql.NullTime{Time: txn.PostingDate.UTC(), Valid: true}
	}

	_, err := s.q(tx).ExecContext(ctx, queryInsertTransaction,
		txn.Id, string(txn.Type), int(txn.State), txn.BatchId,
		txn.PayorWalletId, txn.PayeeWalletId,
		txn.Amount.Value.String(), txn.Amount.Code,
		txn.Memo, txn.Ref, postingDate, txn.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return txn, nil
}

// UpdateTransaction persists the mutable fields of a transaction: state, the
// ledger reference and the posting date.
func (s *Service) UpdateTransaction(ctx context.Context, tx Querier, txn *models.Transaction) error {
	var postingDate sql.NullTime
	if !txn.PostingDate.IsZero() {
		postingDate = sql.NullTime{Time: txn.PostingDate.UTC(), Valid: true}
	}

	_, err := s.q(tx).ExecContext(ctx, queryUpdateTransaction,
		int(txn.State), txn.Ref, postingDate, txn.Id)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

func (s *Service) GetTransaction(ctx context.Context, tx Querier, id string) (*models.Transaction, error) {
	txn, err := scanTransaction(s.q(tx).QueryRowContext(ctx, queryGetTransaction, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return txn, err
}

// GetTransactionsByBatch returns every transaction in a named batch, oldest
// first.
func (s *Service) GetTransactionsByBatch(ctx context.Context, tx Querier, batchId string) ([]*models.Transaction, error) {
	return s.queryTransactions(ctx, tx, queryGetTransactionsByBatch, batchId)
}

// GetTransactionsByState returns every transaction in the given state, oldest
// first. The worker's backlog sweep combines Pending and Failed result sets.
func (s *Service) GetTransactionsByState(ctx context.Context, tx Querier, state models.TransactionState) ([]*models.Transaction, error) {
	return s.queryTransactions(ctx, tx, queryGetTransactionsByState, int(state))
}

func (s *Service) queryTransactions(ctx context.Context, tx Querier, query string, args ...interface{}) ([]*models.Transaction, error) {
	rows, err := s.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []*models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		txn         models.Transaction
		txnType     string
		state       int
		amountValue string
		amountCode  string
		postingDate sql.NullTime
	)
	err := row.Scan(&txn.Id, &txnType, &state, &txn.BatchId,
		&txn.PayorWalletId, &txn.PayeeWalletId, &amountValue, &amountCode,
		&txn.Memo, &txn.Ref, &postingDate, &txn.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	value, err := decimal.NewFromString(amountValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction amount %q: %w", amountValue, err)
	}
	txn.Type = models.TransactionType(txnType)
	txn.State = models.TransactionState(state)
	txn.Amount = models.NewMonetaryAmount(value, amountCode)
	if postingDate.Valid {
		txn.PostingDate = postingDate.Time
	}
	return &txn, nil
}

func (s *Service) InsertPurchase(ctx context.Context, tx Querier, purchase *models.Purchase) (*models.Purchase, error) {
	if purchase.Id == "" {
		purchase.Id = uuid.New().String()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	var invoicedValue, invoicedCode sql.NullString
	if !purchase.InvoicedAmount.IsZero() {
		invoicedValue = sql.NullString{String: purchase.InvoicedAmount.Value.String(), Valid: true}
		invoicedCode = sql.NullString{String: purchase.InvoicedAmount.Code, Valid: true}
	}
	var transactionTime sql.NullTime
	if !purchase.TransactionTime.IsZero() {
		transactionTime = sql.NullTime{Time: purchase.TransactionTime.UTC(), Valid: true}
	}

	_, err := s.q(tx).ExecContext(ctx, queryInsertPurchase,
		purchase.Id, purchase.QuoteId, purchase.AssetId, purchase.Quantity.String(),
		purchase.BuyerId, invoicedValue, invoicedCode, purchase.DistributorWalletId,
		int(purchase.State), purchase.Ref, purchase.Memo, purchase.EscrowTerm,
		transactionTime, purchase.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}
	return purchase, nil
}

// UpdatePurchase persists the mutable fields of a purchase. It is also the
// compensating write used to durably record a REJECT before an error is
// re-raised.
func (s *Service) UpdatePurchase(ctx context.Context, tx Querier, purchase *models.Purchase) error {
	var invoicedValue, invoicedCode sql.NullString
	if !purchase.InvoicedAmount.IsZero() {
		invoicedValue = sql.NullString{String: purchase.InvoicedAmount.Value.String(), Valid: true}
		invoicedCode = sql.NullString{String: purchase.InvoicedAmount.Code, Valid: true}
	}
	var transactionTime sql.NullTime
	if !purchase.TransactionTime.IsZero() {
		transactionTime = sql.NullTime{Time: purchase.TransactionTime.UTC(), Valid: true}
	}

	_, err := s.q(tx).ExecContext(ctx, queryUpdatePurchase,
		invoicedValue, invoicedCode, purchase.DistributorWalletId,
		int(purchase.State), purchase.Ref, transactionTime, purchase.Id)
	if err != nil {
		return fmt.Errorf("failed to update purchase: %w", err)
	}
	return nil
}

func (s *Service) GetPurchase(ctx context.Context, tx Querier, id string) (*models.Purchase, error) {
	var (
		purchase                   models.Purchase
		quantityStr                string
		state                      int
		invoicedValue, invoicedCode sql.NullString
		transactionTime            sql.NullTime
	)
	err := s.q(tx).QueryRowContext(ctx, queryGetPurchase, id).Scan(
		&purchase.Id, &purchase.QuoteId, &purchase.AssetId, &quantityStr,
		&purchase.BuyerId, &invoicedValue, &invoicedCode, &purchase.DistributorWalletId,
		&state, &purchase.Ref, &purchase.Memo, &purchase.EscrowTerm,
		&transactionTime, &purchase.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	purchase.Quantity, err = decimal.NewFromString(quantityStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse purchase quantity %q: %w", quantityStr, err)
	}
	purchase.State = models.PurchaseState(state)
	if invoicedValue.Valid && invoicedCode.Valid {
		value, err := decimal.NewFromString(invoicedValue.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse invoiced amount %q: %w", invoicedValue.String, err)
		}
		purchase.InvoicedAmount = models.NewMonetaryAmount(value, invoicedCode.String)
	}
	if transactionTime.Valid {
		purchase.TransactionTime = transactionTime.Time
	}
	return &purchase, nil
}
