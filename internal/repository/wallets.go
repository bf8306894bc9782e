package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/UHCToken/uhc-api/internal/models"
)

func (s *Service) InsertWallet(ctx context.Context, tx Querier, wallet *models.Wallet) (*models.Wallet, error) {
	if wallet.Id == "" {
		wallet.Id = uuid.New().String()
	}
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = time.Now().UTC()
	}

	var userId sql.NullString
	if wallet.UserId != "" {
		userId = sql.NullString{String: wallet.UserId, Valid: true}
	}

	_, err := s.q(tx).ExecContext(ctx, queryInsertWallet,
		wallet.Id, wallet.Address, wallet.Seed, userId, wallet.NetworkId, wallet.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}
	return wallet, nil
}

func (s *Service) GetWallet(ctx context.Context, tx Querier, id string) (*models.Wallet, error) {
	return scanWallet(s.q(tx).QueryRowContext(ctx, queryGetWallet, id))
}

// GetWalletByUserId returns the user's most recent wallet, or ErrNotFound
// when the user has none.
func (s *Service) GetWalletByUserId(ctx context.Context, tx Querier, userId string) (*models.Wallet, error) {
	return scanWallet(s.q(tx).QueryRowContext(ctx, queryGetWalletByUserId, userId))
}

func scanWallet(row *sql.Row) (*models.Wallet, error) {
	var (
		wallet models.Wallet
		userId sql.NullString
	)
	err := row.Scan(&wallet.Id, &wallet.Address, &wallet.Seed, &userId,
		&wallet.NetworkId, &wallet.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	wallet.UserId = userId.String
	return &wallet, nil
}
