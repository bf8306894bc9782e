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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/config"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/security"
	"github.com/UHCToken/uhc-api/internal/token"
)

// assetFile is the YAML issuance definition. Decimals and dates are strings;
// dates are RFC 3339.
type assetFile struct {
	Code           string      `yaml:"code"`
	Name           string      `yaml:"name"`
	Supply         string      `yaml:"supply"`
	FixedSupply    bool        `yaml:"fixed_supply"`
	KycRequirement bool        `yaml:"kyc_requirement"`
	IssuerId       string      `yaml:"issuer_id"`
	Offers         []offerFile `yaml:"offers"`
}

type offerFile struct {
	Amount               string `yaml:"amount"`
	PriceValue           string `yaml:"price_value"`
	PriceCode            string `yaml:"price_code"`
	Public               bool   `yaml:"public"`
	UseDistributorWallet bool   `yaml:"use_distributor_wallet"`
	StartDate            string `yaml:"start_date"`
	StopDate             string `yaml:"stop_date"`
}

func loadAssetFile(path string) (*token.IssuanceRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var file assetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	supply, err := decimal.NewFromString(file.Supply)
	if err != nil {
		return nil, fmt.Errorf("invalid supply %q: %w", file.Supply, err)
	}

	request := &token.IssuanceRequest{
		Code:           file.Code,
		Name:           file.Name,
		Supply:         supply,
		FixedSupply:    file.FixedSupply,
		KycRequirement: file.KycRequirement,
		IssuerId:       file.IssuerId,
	}

	for i, o := range file.Offers {
		amount, err := decimal.NewFromString(o.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount in offer %d: %w", i, err)
		}
		offer := &models.Offer{
			Amount:               amount,
			Public:               o.Public,
			UseDistributorWallet: o.UseDistributorWallet,
		}
		if o.PriceValue != "" {
			value, err := decimal.NewFromString(o.PriceValue)
			if err != nil {
				return nil, fmt.Errorf("invalid price in offer %d: %w", i, err)
			}
			price := models.NewMonetaryAmount(value, o.PriceCode)
			offer.Price = &price
		}
		if o.StartDate != "" {
			offer.StartDate, err = time.Parse(time.RFC3339, o.StartDate)
			if err != nil {
				return nil, fmt.Errorf("invalid start_date in offer %d: %w", i, err)
			}
		}
		if o.StopDate != "" {
			offer.StopDate, err = time.Parse(time.RFC3339, o.StopDate)
			if err != nil {
				return nil, fmt.Errorf("invalid stop_date in offer %d: %w", i, err)
			}
		}
		request.Offers = append(request.Offers, offer)
	}
	return request, nil
}

func main() {
	filePath := flag.String("file", "asset.yaml", "Path to the asset issuance definition")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	request, err := loadAssetFile(*filePath)
	if err != nil {
		zap.L().Fatal("Failed to load asset definition", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	tokenService := token.NewServiceFromServices(services, cfg.Ledger.HomeDomain)

	asset, err := tokenService.IssueAsset(ctx, security.System(), request)
	if err != nil {
		zap.L().Fatal("Issuance failed", zap.Error(err))
	}

	common.PrintHeader("ASSET ISSUED", common.DefaultWidth)
	fmt.Printf("ID:          %s\n", asset.Id)
	fmt.Printf("Code:        %s\n", asset.Code)
	fmt.Printf("Name:        %s\n", asset.Name)
	fmt.Printf("Issuer:      %s\n", asset.Issuer)
	fmt.Printf("Distributor: %s\n", asset.DistWalletId)
	fmt.Printf("Offers:      %d\n", len(asset.Offers))
	common.PrintFooter(fmt.Sprintf("Asset %s issued successfully", asset.Code), common.DefaultWidth)
}
