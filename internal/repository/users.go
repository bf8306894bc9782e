package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/UHCToken/uhc-api/internal/models"
)

func (s *Service) InsertUser(ctx context.Context, tx Querier, user *models.User) (*models.User, error) {
	if user.Id == "" {
		user.Id = uuid.New().String()
	}

	_, err := s.q(tx).ExecContext(ctx, queryInsertUser,
		user.Id, user.Name, user.Email, user.WalletId)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, tx Querier, id string) (*models.User, error) {
	var user models.User
	err := s.q(tx).QueryRowContext(ctx, queryGetUser, id).Scan(
		&user.Id, &user.Name, &user.Email, &user.WalletId, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *Service) SetUserWallet(ctx context.Context, tx Querier, userId, walletId string) error {
	_, err := s.q(tx).ExecContext(ctx, queryUpdateUserWallet, walletId, userId)
	if err != nil {
		return fmt.Errorf("failed to update user wallet: %w", err)
	}
	return nil
}

func (s *Service) SetUserClaim(ctx context.Context, tx Querier, userId, claim, value string) error {
	_, err := s.q(tx).ExecContext(ctx, querySetUserClaim, userId, claim, value)
	if err != nil {
		return fmt.Errorf("failed to set user claim: %w", err)
	}
	return nil
}

// GetUserClaims returns the user's identity claims as a map. Users without
// claims get an empty map, not an error.
func (s *Service) GetUserClaims(ctx context.Context, tx Querier, userId string) (map[string]string, error) {
	rows, err := s.q(tx).QueryContext(ctx, queryGetUserClaims, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to get user claims: %w", err)
	}
	defer rows.Close()

	claims := make(map[string]string)
	for rows.Next() {
		var claim, value string
		if err := rows.Scan(&claim, &value); err != nil {
			return nil, fmt.Errorf("failed to scan user claim: %w", err)
		}
		claims[claim] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claim rows: %w", err)
	}
	return claims, nil
}
