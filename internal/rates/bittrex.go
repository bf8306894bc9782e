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

package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/UHCToken/uhc-api/internal/errs"
	"github.com/UHCToken/uhc-api/internal/models"
)

// BittrexClient resolves exchange rates from the Bittrex market ticker API.
type BittrexClient struct {
	baseURL    string
	httpClient http.Client
}

// Compile-time check: *BittrexClient must satisfy Source.
var _ Source = (*BittrexClient)(nil)

func NewBittrexClient(cfg models.RatesConfig) (*BittrexClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rates base URL cannot be empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: 15 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   10 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure rates transport: %w", err)
	}

	return &BittrexClient{
		baseURL:    cfg.BaseURL,
		httpClient: http.Client{Transport: tr, Timeout: timeout},
	}, nil
}

// GetExchange resolves each hop to a rate. Hops with bridge currencies are
// chained: from -> via[0] -> ... -> to, multiplying the market rates.
func (c *BittrexClient) GetExchange(ctx context.Context, hops []Hop) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(hops))
	for _, hop := range hops {
		rate, err := c.resolveHop(ctx, hop)
		if err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, nil
}

func (c *BittrexClient) resolveHop(ctx context.Context, hop Hop) (decimal.Decimal, error) {
	if hop.From == "" || hop.To == "" {
		return decimal.Zero, errs.New(errs.CodeInvalidArgument, "exchange hop requires from and to codes")
	}

	legs := make([]string, 0, len(hop.Via)+2)
	legs = append(legs, hop.From)
	legs = append(legs, hop.Via...)
	legs = append(legs, hop.To)

	rate := decimal.NewFromInt(1)
	for i := 0; i < len(legs)-1; i++ {
		legRate, err := c.marketRate(ctx, legs[i], legs[i+1])
		if err != nil {
			return decimal.Zero, err
		}
		rate = rate.Mul(legRate)
	}

	zap.L().Debug("Resolved exchange hop",
		zap.String("from", hop.From),
		zap.String("to", hop.To),
		zap.Strings("via", hop.Via),
		zap.String("rate", rate.String()))
	return rate, nil
}

// marketRate fetches the last trade rate for the from-to market, falling back
// to the inverted to-from market when the direct one is not listed.
func (c *BittrexClient) marketRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	rate, err := c.ticker(ctx, from, to)
	if err == nil {
		return rate, nil
	}
	if !errs.HasCode(err, errs.CodeNotFound) {
		return decimal.Zero, err
	}

	inverse, invErr := c.ticker(ctx, to, from)
	if invErr != nil {
		return decimal.Zero, errs.Wrap(err, errs.CodeComFailure, "no market listed for %s-%s in either direction", from, to)
	}
	if inverse.IsZero() {
		return decimal.Zero, errs.New(errs.CodeComFailure, "market %s-%s reported a zero rate", to, from)
	}
	return decimal.NewFromInt(1).Div(inverse), nil
}

func (c *BittrexClient) ticker(ctx context.Context, from, to string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/markets/%s-%s/ticker", c.baseURL, from, to)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, errs.Wrap(err, errs.CodeComFailure, "unable to build ticker request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, errs.Wrap(err, errs.CodeComFailure, "exchange service unreachable")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close ticker response body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, errs.New(errs.CodeNotFound, "market %s-%s not listed", from, to)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errs.New(errs.CodeComFailure, "exchange service returned %d for %s-%s", resp.StatusCode, from, to)
	}

	var body struct {
		LastTradeRate string `json:"lastTradeRate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, errs.Wrap(err, errs.CodeComFailure, "unable to decode ticker response")
	}

	rate, err := decimal.NewFromString(body.LastTradeRate)
	if err != nil {
		return decimal.Zero, errs.Wrap(err, errs.CodeComFailure, "exchange service returned malformed rate %q", body.LastTradeRate)
	}
	return rate, nil
}
