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

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/config"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/security"
	"github.com/UHCToken/uhc-api/internal/token"
)

func main() {
	quoteId := flag.String("quote", "", "Quote id backing the purchase (required)")
	assetId := flag.String("asset", "", "Asset id being bought (required)")
	quantity := flag.String("quantity", "", "Units of the asset to buy (required)")
	buyerId := flag.String("buyer", "", "Buyer user id (required)")
	asUser := flag.Bool("as-user", false, "Run as an owner-scoped session for the buyer instead of the system principal")
	flag.Parse()

	if *quoteId == "" || *assetId == "" || *quantity == "" || *buyerId == "" {
		fmt.Println("Required flags: --quote, --asset, --quantity and --buyer")
		return
	}

	qty, err := decimal.NewFromString(*quantity)
	if err != nil {
		fmt.Printf("Invalid quantity %q: %v\n", *quantity, err)
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

	principal := security.System()
	if *asUser {
		claims, err := services.Repo.GetUserClaims(ctx, nil, *buyerId)
		if err != nil {
			zap.L().Fatal("Failed to load buyer claims", zap.Error(err))
		}
		principal = security.ForUser(*buyerId, claims)
	}

	purchase, err := tokenService.CreatePurchase(ctx, principal, &models.Purchase{
		QuoteId:  *quoteId,
		AssetId:  *assetId,
		Quantity: qty,
		BuyerId:  *buyerId,
	})
	if err != nil {
		zap.L().Fatal("Purchase failed", zap.Error(err))
	}

	common.PrintHeader("PURCHASE", common.DefaultWidth)
	fmt.Printf("ID:       %s\n", purchase.Id)
	fmt.Printf("State:    %s\n", purchase.State)
	fmt.Printf("Quantity: %s\n", purchase.Quantity)
	fmt.Printf("Invoiced: %s\n", purchase.InvoicedAmount)
	if purchase.Ref != "" {
		fmt.Printf("Ref:      %s\n", purchase.Ref)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
