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
	"time"

	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/config"
	"github.com/UHCToken/uhc-api/internal/token"
)

func main() {
	assetCode := flag.String("asset", "", "Asset code to quote (required)")
	currency := flag.String("currency", "", "Purchase currency code (required)")
	persist := flag.Bool("persist", true, "Store the quote so it can back a purchase")
	flag.Parse()

	if *assetCode == "" || *currency == "" {
		fmt.Println("Both flags are required: --asset and --currency")
		return
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx := context.Background()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	tokenService := token.NewServiceFromServices(services, cfg.Ledger.HomeDomain)

	quote, err := tokenService.CreateQuote(ctx, *assetCode, *currency, *persist)
	if err != nil {
		zap.L().Fatal("Quote failed", zap.Error(err))
	}

	common.PrintHeader("ASSET QUOTE", common.DefaultWidth)
	if quote.Id != "" {
		fmt.Printf("Quote ID: %s\n", quote.Id)
	}
	fmt.Printf("Asset:    %s\n", *assetCode)
	fmt.Printf("Rate:     %s per unit\n", quote.Rate)
	fmt.Printf("Expires:  %s (%s from now)\n",
		quote.Expiry.Format(time.RFC3339), time.Until(quote.Expiry).Round(time.Second))
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
