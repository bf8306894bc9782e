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
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/config"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/security"
	"github.com/UHCToken/uhc-api/internal/token"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func main() {
	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	kycLimit := flag.String("kyc-limit", "", "Optional per-trade value limit in the reference currency")
	noWallet := flag.Bool("no-wallet", false, "Skip ledger wallet activation")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		fmt.Println("Both flags are required: --name and --email")
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

	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	user, err := services.Repo.InsertUser(ctx, nil, &models.User{
		Name:  *nameFlag,
		Email: *emailFlag,
	})
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	if *kycLimit != "" {
		if err := services.Repo.SetUserClaim(ctx, nil, user.Id, models.ClaimKycLimit, *kycLimit); err != nil {
			zap.L().Fatal("Failed to set KYC limit claim", zap.Error(err))
		}
	}

	walletAddress := "(none)"
	if !*noWallet {
		tokenService := token.NewServiceFromServices(services, cfg.Ledger.HomeDomain)
		wallet, err := tokenService.ActivateWalletForUser(ctx, security.System(), user.Id)
		if err != nil {
			zap.L().Warn("User created but wallet activation failed; re-run with an initiator wallet configured",
				zap.String("user_id", user.Id), zap.Error(err))
		} else {
			walletAddress = wallet.Address
		}
	}

	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:     %s\n", user.Id)
	fmt.Printf("Name:   %s\n", user.Name)
	fmt.Printf("Email:  %s\n", user.Email)
	fmt.Printf("Wallet: %s\n", walletAddress)
	if *kycLimit != "" {
		fmt.Printf("Limit:  %s %s\n", *kycLimit, services.Policy.ReferenceCurrency)
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()
}
