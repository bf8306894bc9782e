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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/config"
	"github.com/UHCToken/uhc-api/internal/models"
	"github.com/UHCToken/uhc-api/internal/worker"

	"go.uber.org/zap"
)

func main() {
	batchId := flag.String("batch", "", "Process a single batch and exit instead of running the sweep loop")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting transaction worker")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	w := worker.NewWorker(worker.Config{
		Repo:      services.Repo,
		Ledger:    services.Ledger,
		QueueSize: cfg.Worker.QueueSize,
	})
	w.Start(ctx)

	// Drain results; failures are logged with their originating work id.
	go func() {
		for result := range w.Results() {
			if result.Err != nil {
				zap.L().Error("Work item failed",
					zap.String("work_id", result.WorkId),
					zap.String("batch_id", result.BatchId),
					zap.Error(result.Err))
				continue
			}
			zap.L().Info("Work item completed", zap.String("work_id", result.WorkId))
		}
	}()

	if *batchId != "" {
		workId := w.Submit(models.WorkRequest{
			Action:  models.WorkActionProcess,
			BatchId: *batchId,
		})
		zap.L().Info("Submitted batch", zap.String("work_id", workId), zap.String("batch_id", *batchId))
		w.Stop()
		return
	}

	// Sweep immediately on startup, then on every tick.
	w.Submit(models.WorkRequest{Action: models.WorkActionBacklog})

	ticker := time.NewTicker(cfg.Worker.SweepInterval)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	zap.L().Info("Worker running",
		zap.Duration("sweep_interval", cfg.Worker.SweepInterval))
	zap.L().Info("Press Ctrl+C to stop")

	for {
		select {
		case <-ticker.C:
			w.Submit(models.WorkRequest{Action: models.WorkActionBacklog})
		case <-sigChan:
			zap.L().Info("Shutdown signal received, stopping worker...")
			w.Stop()
			cancel()
			return
		}
	}
}
