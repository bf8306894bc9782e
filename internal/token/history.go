package token

import (
	"context"
	"errors"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/repository"
	"github.com/UHCToken/uhc-api/internal/security"
)

// GetTransactionHistory lists the settled ledger operations involving a
// user's wallet. The history is read from the ledger, never from local rows;
// settled state on chain is the source of truth.
func (s *Service) GetTransactionHistory(ctx context.Context, principal *security.Principal, userId string, filter ledger.HistoryFilter) ([]ledger.HistoryEntry, error) {
	if principal == nil {
		return nil, errs.New(errs.CodeSecurityError, "history requires an authenticated session")
	}
	if principal.OwnerOnly("wallet") && principal.UserId != userId {
		return nil, errs.New(errs.CodeSecurityError,
			"principal %s may not read another user's history", principal.UserId)
	}

	wallet, err := s.repo.GetWalletByUserId(ctx, nil, userId)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.New(errs.CodeNotFound, "user %s has no wallet", userId)
		}
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load wallet for user %s", userId)
	}

	entries, err := s.ledger.GetTransactionHistory(ctx, wallet, filter)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeComFailure, "unable to read ledger history for user %s", userId)
	}
	return entries, nil
}
