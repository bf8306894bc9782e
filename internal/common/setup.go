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

package common

import (
	"context"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/rates"
	"github.com/UHCToken/uhc-api/internal/repository"
)

// init loads environment variables from a .env file when present. Variables
// set via the shell or a container environment take effect either way.
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	}
}

// Services bundles the process-wide collaborators. It is constructed once at
// startup and passed by reference into every orchestrator and worker entry
// point; there are no global singletons.
type Services struct {
	Repo   *repository.Service
	Ledger ledger.Client
	Rates  rates.Source
	Policy Policy
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires repository, ledger client and rate source from the
// configuration. The ledger client's asset cache is seeded with every asset
// already issued through this service.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	repo, err := repository.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	assets, err := repo.ListAssets(ctx, nil)
	if err != nil {
		repo.Close()
		return nil, err
	}

	ledgerClient, err := ledger.NewHorizonClient(cfg.Ledger, assets)
	if err != nil {
		repo.Close()
		return nil, err
	}

	rateSource, err := rates.NewBittrexClient(cfg.Rates)
	if err != nil {
		repo.Close()
		return nil, err
	}

	policy, err := LoadPolicy(cfg.Policy.File)
	if err != nil {
		repo.Close()
		return nil, err
	}

	zap.L().Info("Services initialized",
		zap.Int("cached_assets", len(assets)),
		zap.String("ledger_gateway", cfg.Ledger.GatewayURL),
		zap.String("base_currency", policy.BaseCurrency))

	return &Services{
		Repo:   repo,
		Ledger: ledgerClient,
		Rates:  rateSource,
		Policy: policy,
	}, nil
}

func (s *Services) Close() {
	if s.Repo != nil {
		s.Repo.Close()
	}
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
