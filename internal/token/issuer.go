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
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/repository"
	"github.com/UHCToken/uhc-api/internal/security"
)

// Ledger asset codes are alphanumeric, 3 to 12 characters.
var assetCodePattern = regexp.MustCompile(`^[A-Z0-9]{3,12}$`)

// initialDistributionMemo tags the payment moving the full supply from the
// issuing account to the distributor.
const initialDistributionMemo = "Initial Distribution"

// IssuanceRequest describes a new asset to be issued: the total supply, the
// sale offers it opens with, and whether the supply is fixed forever.
type IssuanceRequest struct {
	Code           string          `validate:"required"`
	Name           string          `validate:"required"`
	Supply         decimal.Decimal `validate:"required"`
	FixedSupply    bool
	KycRequirement bool
	IssuerId       string `validate:"required"`
	Offers         []*models.Offer
}

// IssueAsset creates a new asset: the issuing and distributing system wallets
// (plus a supply wallet when an off-exchange offer needs one), the asset and
// offer records, and the on-ledger provisioning sequence that activates the
// accounts, mints the supply and opens public sell offers.
//
// The local records commit first in one database transaction; the ledger
// sequence runs afterwards. If the ledger sequence fails, the in-memory asset
// cache is restored from its pre-issuance snapshot and the error is
// re-raised, leaving the stored asset for a manual retry of provisioning.
func (s *Service) IssueAsset(ctx context.Context, principal *security.Principal, request *IssuanceRequest) (*models.Asset, error) {
	asset, err := s.issueAsset(ctx, principal, request)
	if err != nil {
		zap.L().Error("Error issuing asset",
			zap.String("code", request.Code),
			zap.Error(err))
		if code := errs.CodeOf(err); code != errs.CodeUnknown {
			return nil, errs.Wrap(err, code, "error issuing asset %s", request.Code)
		}
		return nil, errs.Wrap(err, errs.CodeUnknown, "error issuing asset %s", request.Code)
	}
	return asset, nil
}

func (s *Service) issueAsset(ctx context.Context, principal *security.Principal, request *IssuanceRequest) (*models.Asset, error) {
	if principal == nil {
		return nil, errs.New(errs.CodeSecurityError, "issuance requires an authenticated session")
	}
	if err := common.ValidateInput(request); err != nil {
		return nil, err
	}
	if !assetCodePattern.MatchString(request.Code) {
		return nil, errs.New(errs.CodeInvalidName,
			"asset code %s is invalid, expected 3-12 uppercase letters or digits", request.Code)
	}
	if !request.Supply.IsPositive() {
		return nil, errs.New(errs.CodeInvalidArgument, "asset supply must be positive")
	}
	if existing := s.ledger.Assets().GetByCode(request.Code); existing != nil {
		return nil, errs.New(errs.CodeDuplicateName, "asset code %s is already issued", request.Code)
	}

	offersTotal := decimal.Zero
	for _, offer := range request.Offers {
		offersTotal = offersTotal.Add(offer.Amount)
	}
	if offersTotal.GreaterThan(request.Supply) {
		return nil, errs.NewBusinessRule(errs.CodeRulesViolation, errs.SeverityError,
			"offered amount %s exceeds the asset supply %s", offersTotal, request.Supply)
	}

	// The issuer funds the activation of every system account; verify the
	// reserve on the live account before any record is written.
	issuerWallet, err := s.repo.GetWalletByUserId(ctx, nil, request.IssuerId)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeNotFound, "issuer %s has no wallet", request.IssuerId)
	}
	active, err := s.ledger.IsActive(ctx, issuerWallet)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, errs.New(errs.CodeRulesViolation,
			"issuer wallet %s is not active on the ledger", issuerWallet.Id)
	}
	issuerAccount, err := s.ledger.GetAccount(ctx, issuerWallet)
	if err != nil {
		return nil, err
	}
	if issuerAccount.BalanceOf(s.policy.BaseCurrency).LessThan(s.policy.MinIssuerReserve) {
		return nil, errs.New(errs.CodeInsufficientFunds,
			"issuer wallet holds %s %s, %s required to issue an asset",
			issuerAccount.BalanceOf(s.policy.BaseCurrency), s.policy.BaseCurrency, s.policy.MinIssuerReserve)
	}

	issuingWallet, err := s.ledger.GenerateAccount()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeSecurityError, "unable to generate issuing keypair")
	}
	distributingWallet, err := s.ledger.GenerateAccount()
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeSecurityError, "unable to generate distributing keypair")
	}

	// A supply wallet only exists when some offer sells from this service
	// rather than the exchange and does not elect the distributor.
	var supplyWallet *models.Wallet
	for _, offer := range request.Offers {
		if (!offer.Public || request.KycRequirement) && !offer.UseDistributorWallet {
			supplyWallet, err = s.ledger.GenerateAccount()
			if err != nil {
				return nil, errs.Wrap(err, errs.CodeSecurityError, "unable to generate supply keypair")
			}
			break
		}
	}

	asset := &models.Asset{
		Code:           request.Code,
		Name:           request.Name,
		Issuer:         issuingWallet.Address,
		KycRequirement: request.KycRequirement,
	}

	err = s.repo.RunInTransaction(ctx, func(tx *sql.Tx) error {
		wallets := []*models.Wallet{issuingWallet, distributingWallet}
		if supplyWallet != nil {
			wallets = append(wallets, supplyWallet)
		}
		for _, wallet := range wallets {
			if _, err := s.repo.InsertWallet(ctx, tx, wallet); err != nil {
				return err
			}
		}
		asset.DistWalletId = distributingWallet.Id
		if _, err := s.repo.InsertAsset(ctx, tx, asset); err != nil {
			return err
		}
		for _, offer := range request.Offers {
			// Non-public or KYC-gated offers sell from this service, not the
			// exchange: home them on the distributor or the supply wallet.
			// Public offers carry no wallet and fall back to the distributor.
			if !offer.Public || request.KycRequirement {
				if offer.UseDistributorWallet {
					offer.WalletId = distributingWallet.Id
				} else {
					offer.WalletId = supplyWallet.Id
				}
			}
			if offer.StartDate.IsZero() {
				offer.StartDate = time.Now().UTC()
			}
			if offer.StopDate.IsZero() {
				offer.StopDate = offer.StartDate.AddDate(1, 0, 0)
			}
			if _, err := s.repo.InsertOffer(ctx, tx, asset.Id, offer); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to store asset records")
	}
	asset.Offers = request.Offers

	if err := s.provisionLedger(ctx, asset, issuerWallet, issuingWallet, distributingWallet, supplyWallet, request); err != nil {
		return nil, err
	}

	zap.L().Info("Issued asset",
		zap.String("asset_id", asset.Id),
		zap.String("code", asset.Code),
		zap.String("supply", request.Supply.String()),
		zap.Bool("fixed_supply", request.FixedSupply),
		zap.Int("offers", len(request.Offers)))
	return asset, nil
}

// provisionLedger runs the on-ledger side of issuance. The asset cache is
// snapshotted first and restored wholesale if any step fails, so concurrent
// lookups never see an asset whose provisioning did not complete.
func (s *Service) provisionLedger(ctx context.Context, asset *models.Asset,
	issuerWallet, issuingWallet, distributingWallet, supplyWallet *models.Wallet,
	request *IssuanceRequest) (err error) {

	snapshot := s.ledger.Assets().Snapshot()
	defer func() {
		if err != nil {
			s.ledger.Assets().Restore(snapshot)
			err = errs.Wrap(err, errs.CodeComFailure,
				"asset %s stored but ledger provisioning failed", asset.Code)
		}
	}()

	if err = s.ledger.ActivateAccount(ctx, issuingWallet, s.policy.IssuerFunding, issuerWallet); err != nil {
		return err
	}
	if err = s.ledger.ActivateAccount(ctx, distributingWallet, s.policy.DistributorFunding, issuerWallet); err != nil {
		return err
	}
	if supplyWallet != nil {
		if err = s.ledger.ActivateAccount(ctx, supplyWallet, s.policy.SupplyFunding, issuerWallet); err != nil {
			return err
		}
	}

	// Payments referencing the asset resolve its issuer through the cache;
	// register before the first trust line.
	s.ledger.Assets().Register(asset)

	supply := request.Supply
	if err = s.ledger.CreateTrust(ctx, distributingWallet, asset, &supply); err != nil {
		return err
	}
	if supplyWallet != nil {
		if err = s.ledger.CreateTrust(ctx, supplyWallet, asset, nil); err != nil {
			return err
		}
	}

	// The distributor receives the entire supply; tranches sold off-exchange
	// are forwarded to the supply wallet below.
	if _, err = s.ledger.CreatePayment(ctx, issuingWallet, distributingWallet,
		models.NewMonetaryAmount(supply, asset.Code), initialDistributionMemo, ledger.MemoTypeText); err != nil {
		return err
	}

	currentOffer, offerErr := s.repo.GetActiveOffer(ctx, nil, asset.Id)
	if offerErr != nil && !errors.Is(offerErr, repository.ErrNotFound) {
		err = offerErr
		return err
	}
	if currentOffer != nil && (!currentOffer.Public || asset.KycRequirement) && supplyWallet != nil {
		// The active off-exchange tranche moves to the supply wallet, tagged
		// with the asset's hash memo so it can be traced without exposing
		// the id.
		if _, err = s.ledger.CreatePayment(ctx, distributingWallet, supplyWallet,
			models.NewMonetaryAmount(currentOffer.Amount, asset.Code), hashMemo(asset.Id), ledger.MemoTypeHash); err != nil {
			return err
		}
	}

	options := ledger.AccountOptions{HomeDomain: s.homeDomain}
	if request.FixedSupply {
		// Zeroing the issuing account's thresholds makes further minting
		// impossible.
		options = ledger.LockedOptions(s.homeDomain)
	}
	if err = s.ledger.SetOptions(ctx, issuingWallet, options); err != nil {
		return err
	}

	for _, offer := range request.Offers {
		if !offer.Public || asset.KycRequirement {
			continue
		}
		sellingWallet := distributingWallet
		if supplyWallet != nil && offer.WalletId == supplyWallet.Id {
			sellingWallet = supplyWallet
		}
		offerId, sellErr := s.ledger.CreateSellOffer(ctx, sellingWallet, offer, asset)
		if sellErr != nil {
			err = sellErr
			return err
		}
		offer.LedgerOfferId = offerId
		if err = s.repo.UpdateOffer(ctx, nil, offer); err != nil {
			return err
		}
	}

	return nil
}
