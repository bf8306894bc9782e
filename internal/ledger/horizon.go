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

package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/models"
)

// HorizonClient talks to a Horizon-style ledger gateway over REST. Transaction
// assembly and signing happen gateway-side; this adapter only maps the
// capability surface onto the gateway's JSON API.
type HorizonClient struct {
	baseURL    string
	networkId  string
	httpClient http.Client
	assets     *AssetCache
}

// Compile-time check: *HorizonClient must satisfy Client.
var _ Client = (*HorizonClient)(nil)

// NewHorizonClient creates a gateway client seeded with the already-issued
// assets so code lookups work before the first issuance.
func NewHorizonClient(cfg models.LedgerConfig, assets []*models.Asset) (*HorizonClient, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("ledger gateway URL cannot be empty")
	}

	httpClient, err := createGatewayHttpClient(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create gateway http client: %w", err)
	}

	return &HorizonClient{
		baseURL:    cfg.GatewayURL,
		networkId:  cfg.NetworkId,
		httpClient: httpClient,
		assets:     NewAssetCache(assets),
	}, nil
}

func createGatewayHttpClient(timeout time.Duration) (http.Client, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{Transport: tr, Timeout: timeout}, nil
}

var strkeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// GenerateAccount creates a keypair locally. The account only exists on the
// ledger once activated and funded.
func (c *HorizonClient) GenerateAccount() (*models.Wallet, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("unable to generate keypair: %w", err)
	}

	return &models.Wallet{
		Id:        uuid.New().String(),
		Address:   "G" + strkeyEncoding.EncodeToString(pub),
		Seed:      "S" + strkeyEncoding.EncodeToString(priv.Seed()),
		NetworkId: c.networkId,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type gatewayAccount struct {
	Address  string `json:"address"`
	Sequence string `json:"sequence"`
	Balances []struct {
		Code  string `json:"code"`
		Value string `json:"value"`
	} `json:"balances"`
}

func (c *HorizonClient) IsActive(ctx context.Context, wallet *models.Wallet) (bool, error) {
	var acct gatewayAccount
	err := c.get(ctx, "/accounts/"+url.PathEscape(wallet.Address), &acct)
	if err != nil {
		if errs.HasCode(err, errs.CodeNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *HorizonClient) GetAccount(ctx context.Context, wallet *models.Wallet) (*Account, error) {
	var acct gatewayAccount
	if err := c.get(ctx, "/accounts/"+url.PathEscape(wallet.Address), &acct); err != nil {
		return nil, err
	}

	account := &Account{
		WalletId: wallet.Id,
		Address:  acct.Address,
		Sequence: acct.Sequence,
		Balances: make([]models.MonetaryAmount, 0, len(acct.Balances)),
	}
	for _, b := range acct.Balances {
		value, err := decimal.NewFromString(b.Value)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeComFailure, "gateway returned malformed balance %q for %s", b.Value, b.Code)
		}
		account.Balances = append(account.Balances, models.NewMonetaryAmount(value, b.Code))
	}
	return account, nil
}

func (c *HorizonClient) ActivateAccount(ctx context.Context, wallet *models.Wallet, amount decimal.Decimal, funding *models.Wallet) error {
	req := map[string]string{
		"source_seed": funding.Seed,
		"destination": wallet.Address,
		"amount":      amount.String(),
	}
	if err := c.post(ctx, "/accounts", req, nil); err != nil {
		return err
	}
	zap.L().Info("Activated ledger account",
		zap.String("address", wallet.Address),
		zap.String("starting_balance", amount.String()))
	return nil
}

func (c *HorizonClient) CreateTrust(ctx context.Context, wallet *models.Wallet, asset *models.Asset, limit *decimal.Decimal) error {
	req := map[string]string{
		"source_seed": wallet.Seed,
		"code":        asset.Code,
		"issuer":      asset.Issuer,
	}
	if limit != nil {
		req["limit"] = limit.String()
	}
	if err := c.post(ctx, "/trust", req, nil); err != nil {
		return err
	}
	zap.L().Info("Established trust line",
		zap.String("address", wallet.Address),
		zap.String("asset_code", asset.Code))
	return nil
}

func (c *HorizonClient) CreatePayment(ctx context.Context, from, to *models.Wallet, amount models.MonetaryAmount, memo string, memoType MemoType) (string, error) {
	req := map[string]string{
		"source_seed": from.Seed,
		"destination": to.Address,
		"amount":      amount.Value.String(),
		"code":        amount.Code,
		"memo":        memo,
		"memo_type":   string(memoType),
	}
	if asset := c.assets.GetByCode(amount.Code); asset != nil {
		req["issuer"] = asset.Issuer
	}

	var resp struct {
		Ref string `json:"ref"`
	}
	if err := c.post(ctx, "/payments", req, &resp); err != nil {
		return "", err
	}

	zap.L().Info("Submitted ledger payment",
		zap.String("from", from.Address),
		zap.String("to", to.Address),
		zap.String("amount", amount.String()),
		zap.String("ref", resp.Ref))
	return resp.Ref, nil
}

func (c *HorizonClient) SetOptions(ctx context.Context, wallet *models.Wallet, options AccountOptions) error {
	req := map[string]interface{}{
		"source_seed": wallet.Seed,
	}
	if options.HomeDomain != "" {
		req["home_domain"] = options.HomeDomain
	}
	if options.MasterWeight != nil {
		req["master_weight"] = *options.MasterWeight
	}
	if options.LowThreshold != nil {
		req["low_threshold"] = *options.LowThreshold
	}
	if options.MedThreshold != nil {
		req["med_threshold"] = *options.MedThreshold
	}
	if options.HighThreshold != nil {
		req["high_threshold"] = *options.HighThreshold
	}
	return c.post(ctx, "/options", req, nil)
}

func (c *HorizonClient) CreateSellOffer(ctx context.Context, wallet *models.Wallet, offer *models.Offer, asset *models.Asset) (string, error) {
	if offer.Price == nil {
		return "", errs.New(errs.CodeInvalidArgument, "sell offer for %s has no fixed price", asset.Code)
	}

	req := map[string]string{
		"source_seed":    wallet.Seed,
		"selling_code":   asset.Code,
		"selling_issuer": asset.Issuer,
		"amount":         offer.Amount.String(),
		"price":          offer.Price.Value.String(),
		"price_code":     offer.Price.Code,
	}

	var resp struct {
		OfferId string `json:"offer_id"`
	}
	if err := c.post(ctx, "/offers", req, &resp); err != nil {
		return "", err
	}

	zap.L().Info("Placed ledger sell offer",
		zap.String("address", wallet.Address),
		zap.String("asset_code", asset.Code),
		zap.String("amount", offer.Amount.String()),
		zap.String("offer_id", resp.OfferId))
	return resp.OfferId, nil
}

func (c *HorizonClient) GetTransactionHistory(ctx context.Context, wallet *models.Wallet, filter HistoryFilter) ([]HistoryEntry, error) {
	path := "/accounts/" + url.PathEscape(wallet.Address) + "/transactions"
	params := url.Values{}
	if !filter.Since.IsZero() {
		params.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Asset != "" {
		params.Set("asset", filter.Asset)
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp struct {
		Records []struct {
			Ref         string    `json:"ref"`
			Type        string    `json:"type"`
			From        string    `json:"from"`
			To          string    `json:"to"`
			Amount      string    `json:"amount"`
			Code        string    `json:"code"`
			Memo        string    `json:"memo"`
			PostingDate time.Time `json:"posting_date"`
		} `json:"records"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(resp.Records))
	for _, r := range resp.Records {
		value, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeComFailure, "gateway returned malformed amount %q", r.Amount)
		}
		entries = append(entries, HistoryEntry{
			Ref:         r.Ref,
			Type:        r.Type,
			From:        r.From,
			To:          r.To,
			Amount:      models.NewMonetaryAmount(value, r.Code),
			Memo:        r.Memo,
			PostingDate: r.PostingDate,
		})
	}
	return entries, nil
}

func (c *HorizonClient) Assets() *AssetCache {
	return c.assets
}

func (c *HorizonClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errs.Wrap(err, errs.CodeComFailure, "unable to build gateway request")
	}
	return c.do(req, out)
}

func (c *HorizonClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.Wrap(err, errs.CodeComFailure, "unable to encode gateway request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errs.Wrap(err, errs.CodeComFailure, "unable to build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HorizonClient) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Wrap(err, errs.CodeComFailure, "ledger gateway unreachable")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close gateway response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return errs.New(errs.CodeNotFound, "ledger gateway: %s not found", req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errs.New(errs.CodeComFailure, "ledger gateway returned %d: %s", resp.StatusCode, string(detail))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(err, errs.CodeComFailure, "unable to decode gateway response")
	}
	return nil
}
