package token

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/repository"
	"github.com/UHCToken/uhc-api/internal/security"
)

// hashMemo derives the fixed-length ledger memo for a record id. Hash memos
// let a settled ledger entry be traced back to the local record without
// exposing the raw id on chain.
func hashMemo(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// ensureReceivable makes sure a wallet can receive the asset: the account is
// activated with the given base-currency funding if it does not exist yet,
// and a trust line for the asset is established if absent.
func ensureReceivable(ctx context.Context, client ledger.Client, wallet, funding *models.Wallet, asset *models.Asset, activation decimal.Decimal) error {
	active, err := client.IsActive(ctx, wallet)
	if err != nil {
		return err
	}
	if !active {
		if err := client.ActivateAccount(ctx, wallet, activation, funding); err != nil {
			return err
		}
		zap.L().Info("Activated wallet for asset delivery",
			zap.String("wallet_id", wallet.Id),
			zap.String("funding", activation.String()))
	}

	account, err := client.GetAccount(ctx, wallet)
	if err != nil {
		return err
	}
	if !account.HasTrustline(asset.Code) {
		if err := client.CreateTrust(ctx, wallet, asset, nil); err != nil {
			return err
		}
	}
	return nil
}

// ActivateWalletForUser provisions a ledger account for a user that does not
// have one yet: a keypair is generated, stored, bound to the user record and
// activated on the ledger funded from the configured initiator wallet.
// Calling it for a user that already has a wallet returns the existing one.
func (s *Service) ActivateWalletForUser(ctx context.Context, principal *security.Principal, userId string) (*models.Wallet, error) {
	if principal == nil {
		return nil, errs.New(errs.CodeSecurityError, "wallet activation requires an authenticated session")
	}
	if principal.OwnerOnly("wallet") && principal.UserId != userId {
		return nil, errs.New(errs.CodeSecurityError,
			"principal %s may not activate a wallet for another user", principal.UserId)
	}

	if _, err := s.repo.GetUser(ctx, nil, userId); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "user %s not found", userId)
		}
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load user %s", userId)
	}

	existing, err := s.repo.GetWalletByUserId(ctx, nil, userId)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load wallet for user %s", userId)
	}

	if s.policy.InitiatorWalletId == "" {
		return nil, errs.New(errs.CodeRulesViolation,
			"no initiator wallet configured, cannot fund account activation")
	}
	initiator, err := s.repo.GetWallet(ctx, nil, s.policy.InitiatorWalletId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeDataError, "initiator wallet %s not found", s.policy.InitiatorWalletId)
	}

	wallet, err := s.ledger.GenerateAccount()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeSecurityError, "unable to generate keypair")
	}
	wallet.UserId = userId

	err = s.repo.RunInTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := s.repo.InsertWallet(ctx, tx, wallet); err != nil {
			return err
		}
		return s.repo.SetUserWallet(ctx, tx, userId, wallet.Id)
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to store wallet for user %s", userId)
	}

	if err := s.ledger.ActivateAccount(ctx, wallet, s.policy.BuyerFunding, initiator); err != nil {
		return nil, errs.Wrap(err, errs.CodeComFailure,
			"wallet %s stored but ledger activation failed", wallet.Id)
	}

	zap.L().Info("Activated ledger wallet for user",
		zap.String("user_id", userId),
		zap.String("wallet_id", wallet.Id))
	return wallet, nil
}
