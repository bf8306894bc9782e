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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/UHCToken/uhc-api/internal/models"
)

func (s *Service) InsertAsset(ctx context.Context, tx Querier, asset *models.Asset) (*models.Asset, error) {
	if asset.Id == "" {
		asset.Id = uuid.New().String()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}

	_, err := s.q(tx).ExecContext(ctx, queryInsertAsset,
		asset.Id, asset.Code, asset.Name, asset.Issuer, asset.DistWalletId,
		asset.KycRequirement, asset.Locked, asset.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("asset code %s: %w", asset.Code, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert asset: %w", err)
	}
	return asset, nil
}

func (s *Service) UpdateAsset(ctx context.Context, tx Querier, asset *models.Asset) error {
	_, err := s.q(tx).ExecContext(ctx, queryUpdateAsset,
		asset.Issuer, asset.DistWalletId, asset.Locked, asset.Id)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	return nil
}

func (s *Service) GetAsset(ctx context.Context, tx Querier, id string) (*models.Asset, error) {
	return s.scanAsset(s.q(tx).QueryRowContext(ctx, queryGetAsset, id))
}

func (s *Service) GetAssetByCode(ctx context.Context, tx Querier, code string) (*models.Asset, error) {
	return s.scanAsset(s.q(tx).QueryRowContext(ctx, queryGetAssetByCode, code))
}

// ListAssets returns every configured asset. Used to seed the ledger client's
// asset cache at startup.
func (s *Service) ListAssets(ctx context.Context, tx Querier) ([]*models.Asset, error) {
	rows, err := s.q(tx).QueryContext(ctx, queryListAssets)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		asset, err := s.scanAssetRow(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset rows: %w", err)
	}
	return assets, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Service) scanAsset(row *sql.Row) (*models.Asset, error) {
	asset, err := s.scanAssetRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return asset, err
}

func (s *Service) scanAssetRow(row rowScanner) (*models.Asset, error) {
	var asset models.Asset
	err := row.Scan(&asset.Id, &asset.Code, &asset.Name, &asset.Issuer,
		&asset.DistWalletId, &asset.KycRequirement, &asset.Locked, &asset.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}
	return &asset, nil
}

func (s *Service) InsertOffer(ctx context.Context, tx Querier, assetId string, offer *models.Offer) (*models.Offer, error) {
	if offer.Id == "" {
		offer.Id = uuid.New().String()
	}
	offer.AssetId = assetId

	var priceValue, priceCode sql.NullString
	if offer.Price != nil {
		priceValue = sql.NullString{String: offer.Price.Value.String(), Valid: true}
		priceCode = sql.NullString{String: offer.Price.Code, Valid: true}
	}

	_, err := s.q(tx).ExecContext(ctx, queryInsertOffer,
		offer.Id, offer.AssetId, offer.Amount.String(), priceValue, priceCode,
		offer.Public, offer.UseDistributorWallet, offer.WalletId, offer.LedgerOfferId,
		offer.StartDate.UTC(), offer.StopDate.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert offer: %w", err)
	}
	return offer, nil
}

func (s *Service) UpdateOffer(ctx context.Context, tx Querier, offer *models.Offer) error {
	_, err := s.q(tx).ExecContext(ctx, queryUpdateOffer,
		offer.Amount.String(), offer.WalletId, offer.LedgerOfferId,
		offer.StartDate.UTC(), offer.StopDate.UTC(), offer.Id)
	if err != nil {
		return fmt.Errorf("failed to update offer: %w", err)
	}
	return nil
}

func (s *Service) GetOffer(ctx context.Context, tx Querier, id string) (*models.Offer, error) {
	offer, err := scanOffer(s.q(tx).QueryRowContext(ctx, queryGetOffer, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return offer, err
}

// GetActiveOffer returns the offer whose date range covers now, or ErrNotFound
// when the asset has no current sale.
func (s *Service) GetActiveOffer(ctx context.Context, tx Querier, assetId string) (*models.Offer, error) {
	now := time.Now().UTC()
	offer, err := scanOffer(s.q(tx).QueryRowContext(ctx, queryGetActiveOffer, assetId, now, now))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return offer, err
}

func (s *Service) ListOffersByAsset(ctx context.Context, tx Querier, assetId string) ([]*models.Offer, error) {
	rows, err := s.q(tx).QueryContext(ctx, queryListOffersByAsset, assetId)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []*models.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offer rows: %w", err)
	}
	return offers, nil
}

func scanOffer(row rowScanner) (*models.Offer, error) {
	var (
		offer                 models.Offer
		amountStr             string
		priceValue, priceCode sql.NullString
	)
	err := row.Scan(&offer.Id, &offer.AssetId, &amountStr, &priceValue, &priceCode,
		&offer.Public, &offer.UseDistributorWallet, &offer.WalletId, &offer.LedgerOfferId,
		&offer.StartDate, &offer.StopDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan offer: %w", err)
	}

	offer.Amount, err = decimal.NewFromString(amountStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse offer amount %q: %w", amountStr, err)
	}
	if priceValue.Valid && priceCode.Valid {
		value, err := decimal.NewFromString(priceValue.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse offer price %q: %w", priceValue.String, err)
		}
		price := models.NewMonetaryAmount(value, priceCode.String)
		offer.Price = &price
	}
	return &offer, nil
}

func (s *Service) InsertQuote(ctx context.Context, tx Querier, quote *models.AssetQuote) (*models.AssetQuote, error) {
	if quote.Id == "" {
		quote.Id = uuid.New().String()
	}
	if quote.CreationTime.IsZero() {
		quote.CreationTime = time.Now().UTC()
	}

	_, err := s.q(tx).ExecContext(ctx, queryInsertQuote,
		quote.Id, quote.AssetId, quote.Rate.Value.String(), quote.Rate.Code,
		quote.CreationTime.UTC(), quote.Expiry.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert quote: %w", err)
	}
	return quote, nil
}

func (s *Service) GetQuote(ctx context.Context, tx Querier, id string) (*models.AssetQuote, error) {
	var (
		quote     models.AssetQuote
		rateValue string
		rateCode  string
	)
	err := s.q(tx).QueryRowContext(ctx, queryGetQuote, id).Scan(
		&quote.Id, &quote.AssetId, &rateValue, &rateCode, &quote.CreationTime, &quote.Expiry)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	value, err := decimal.NewFromString(rateValue)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote rate %q: %w", rateValue, err)
	}
	quote.Rate = models.NewMonetaryAmount(value, rateCode)
	return &quote, nil
}
