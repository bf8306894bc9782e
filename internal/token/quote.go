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
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/rates"
	"github.com/UHCToken/uhc-api/internal/repository"
)

// CreateQuote computes a time-bounded price for one unit of sellCode in
// buyCode. Unless persist is false the quote is stored and returned with a
// persistent id; purchase validation later re-fetches it by that id.
//
// Pricing policy, in priority order: a fixed offer price in the requested
// currency is used directly (expiry = the offer's stop date); a fixed price
// in another currency is converted through the configured bridge currencies
// and the bridged rates averaged; an offer without a fixed price takes the
// direct market rate. Converted and market quotes expire after the
// configured validity window.
func (s *Service) CreateQuote(ctx context.Context, sellCode, buyCode string, persist bool) (*models.AssetQuote, error) {
	quote, err := s.createQuote(ctx, sellCode, buyCode, persist)
	if err != nil {
		zap.L().Error("Error creating asset quote",
			zap.String("sell_code", sellCode),
			zap.String("buy_code", buyCode),
			zap.Error(err))
		if code := errs.CodeOf(err); code != errs.CodeUnknown {
			return nil, errs.Wrap(err, code, "error creating asset quote")
		}
		return nil, errs.Wrap(err, errs.CodeUnknown, "error creating asset quote")
	}
	return quote, nil
}

func (s *Service) createQuote(ctx context.Context, sellCode, buyCode string, persist bool) (*models.AssetQuote, error) {
	if sellCode == "" || buyCode == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "sell and buy currency codes are required")
	}

	asset, err := s.repo.GetAssetByCode(ctx, nil, sellCode)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.New(errs.CodeRulesViolation,
				"invalid asset %s, only assets configured on this service can be quoted", sellCode)
		}
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load asset %s", sellCode)
	}
	if asset.Locked {
		return nil, errs.New(errs.CodeAssetLocked,
			"selling of %s from this distributor is currently locked", asset.Code)
	}

	currentOffer, err := s.repo.GetActiveOffer(ctx, nil, asset.Id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.NewBusinessRule(errs.CodeNoOffer, errs.SeverityError,
				"the requested asset is not for sale at the moment")
		}
		return nil, errs.Wrap(err, errs.CodeDataError, "unable to load active offer for %s", asset.Code)
	}

	now := time.Now().UTC()
	quote := &models.AssetQuote{
		AssetId:      asset.Id,
		CreationTime: now,
	}

	switch {
	case currentOffer.Price != nil && currentOffer.Price.Code == buyCode:
		// Offer already priced in the purchase currency; no conversion needed.
		quote.Rate = models.NewMonetaryAmount(currentOffer.Price.Value, buyCode)
		quote.Expiry = currentOffer.StopDate

	case currentOffer.Price != nil:
		hops := bridgeHops(currentOffer.Price.Code, buyCode, s.policy.BridgeCurrencies)
		exchange, err := s.rates.GetExchange(ctx, hops)
		if err != nil {
			return nil, err
		}
		if len(exchange) == 0 {
			return nil, errs.New(errs.CodeComFailure,
				"exchange service returned no rates for %s->%s", currentOffer.Price.Code, buyCode)
		}
		average := rates.Average(exchange)
		if average.IsZero() {
			return nil, errs.New(errs.CodeComFailure,
				"exchange service returned a zero rate for %s->%s", currentOffer.Price.Code, buyCode)
		}
		quote.Rate = models.NewMonetaryAmount(currentOffer.Price.Value.Div(average), buyCode)
		quote.Expiry = now.Add(s.policy.QuoteValidity)

	default:
		// Market-rate offer; ask for the direct rate.
		exchange, err := s.rates.GetExchange(ctx, []rates.Hop{{From: asset.Code, To: buyCode}})
		if err != nil {
			return nil, err
		}
		if len(exchange) == 0 {
			return nil, errs.New(errs.CodeComFailure,
				"exchange service returned no rate for %s->%s", asset.Code, buyCode)
		}
		quote.Rate = models.NewMonetaryAmount(exchange[0], buyCode)
		quote.Expiry = now.Add(s.policy.QuoteValidity)
	}

	if persist {
		quote, err = s.repo.InsertQuote(ctx, nil, quote)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeDataError, "unable to store quote")
		}
	}

	zap.L().Info("Created asset quote",
		zap.String("asset_code", asset.Code),
		zap.String("buy_code", buyCode),
		zap.String("rate", quote.Rate.String()),
		zap.Time("expiry", quote.Expiry),
		zap.Bool("persisted", persist))
	return quote, nil
}

// bridgeHops builds the conversion paths for a fixed price in another
// currency. When the purchase currency is itself a bridge, a single direct
// hop suffices; otherwise one hop per bridge currency, averaged by the
// caller.
func bridgeHops(from, to string, bridges []string) []rates.Hop {
	for _, bridge := range bridges {
		if to == bridge {
			return []rates.Hop{{From: from, To: to}}
		}
	}
	hops := make([]rates.Hop, 0, len(bridges))
	for _, bridge := range bridges {
		hops = append(hops, rates.Hop{From: from, To: to, Via: []string{bridge}})
	}
	if len(hops) == 0 {
		hops = append(hops, rates.Hop{From: from, To: to})
	}
	return hops
}
