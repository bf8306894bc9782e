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

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx. Every repository method
// takes one so the same call works inside or outside a local transaction;
// passing nil runs against the pool.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Service is the local relational store for assets, offers, quotes, wallets,
// users, transactions and purchases.
type Service struct {
	db *sql.DB
}

func NewService(ctx context.Context, cfg models.DatabaseConfig) (*Service, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Repository service initialized successfully")
	return service, nil
}

// NewServiceWithDB wraps an already-open database handle. Used by tests with
// an in-memory SQLite instance.
func NewServiceWithDB(db *sql.DB) (*Service, error) {
	service := &Service{db: db}
	if err := service.initSchema(); err != nil {
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}
	return service, nil
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

// RunInTransaction runs fn inside a local database transaction. The handle it
// receives must be passed to every repository call made within fn; commit
// happens only when fn returns nil, otherwise everything rolls back.
func (s *Service) RunInTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// q resolves the querier for a call: the given transaction handle, or the
// connection pool when none is supplied.
func (s *Service) q(tx Querier) Querier {
	if tx == nil {
		return s.db
	}
	return tx
}

func (s *Service) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		issuer TEXT NOT NULL DEFAULT '',
		dist_wallet_id TEXT NOT NULL DEFAULT '',
		kyc_requirement INTEGER NOT NULL DEFAULT 0,
		locked INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_assets_code ON assets(code);

	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		amount TEXT NOT NULL,
		price_value TEXT,
		price_code TEXT,
		public INTEGER NOT NULL DEFAULT 0,
		use_distributor_wallet INTEGER NOT NULL DEFAULT 0,
		wallet_id TEXT NOT NULL DEFAULT '',
		ledger_offer_id TEXT NOT NULL DEFAULT '',
		start_date TIMESTAMP NOT NULL,
		stop_date TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_offers_asset_dates ON offers(asset_id, start_date, stop_date);

	CREATE TABLE IF NOT EXISTS asset_quotes (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL REFERENCES assets(id),
		rate_value TEXT NOT NULL,
		rate_code TEXT NOT NULL,
		creation_time TIMESTAMP NOT NULL,
		expiry TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_asset_quotes_asset ON asset_quotes(asset_id);

	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		seed TEXT NOT NULL DEFAULT '',
		user_id TEXT,
		network_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_wallets_user ON wallets(user_id);
	CREATE INDEX IF NOT EXISTS idx_wallets_address ON wallets(address);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL UNIQUE,
		wallet_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_claims (
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		claim TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (user_id, claim)
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		state INTEGER NOT NULL,
		batch_id TEXT NOT NULL DEFAULT '',
		payor_wallet_id TEXT NOT NULL DEFAULT '',
		payee_wallet_id TEXT NOT NULL DEFAULT '',
		amount_value TEXT NOT NULL,
		amount_code TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL DEFAULT '',
		posting_date TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_state ON transactions(state);
	CREATE INDEX IF NOT EXISTS idx_transactions_batch ON transactions(batch_id);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY REFERENCES transactions(id),
		quote_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		buyer_id TEXT NOT NULL,
		invoiced_value TEXT,
		invoiced_code TEXT,
		distributor_wallet_id TEXT NOT NULL DEFAULT '',
		state INTEGER NOT NULL,
		ref TEXT NOT NULL DEFAULT '',
		memo TEXT NOT NULL DEFAULT '',
		escrow_term TEXT NOT NULL DEFAULT '',
		transaction_time TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_purchases_buyer ON purchases(buyer_id);
	CREATE INDEX IF NOT EXISTS idx_purchases_asset ON purchases(asset_id);
	`

	_, err := s.db.Exec(schema)
	return err
}
