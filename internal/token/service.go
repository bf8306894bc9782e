// Package token holds the core business logic: asset issuance, quoting,
// purchase orchestration and transaction history. A single Service carries
// every collaborator; nothing here reaches for globals.
package token

import (
	"github.com/UHCToken/uhc-api/internal/common"
	"github.com/UHCToken/uhc-api/internal/ledger"
	"github.com/UHCToken/uhc-api/internal/rates"
	"github.com/UHCToken/uhc-api/internal/repository"
)

type Service struct {
	repo       *repository.Service
	ledger     ledger.Client
	rates      rates.Source
	processors *ProcessorRegistry
	policy     common.Policy
	homeDomain string
}

// Config lists the collaborators a Service needs. All fields are required
// except Processors, which defaults to an empty registry.
type Config struct {
	Repo       *repository.Service
	Ledger     ledger.Client
	Rates      rates.Source
	Processors *ProcessorRegistry
	Policy     common.Policy
	HomeDomain string
}

func NewService(cfg Config) *Service {
	processors := cfg.Processors
	if processors == nil {
		processors = NewProcessorRegistry()
	}
	return &Service{
		repo:       cfg.Repo,
		ledger:     cfg.Ledger,
		rates:      cfg.Rates,
		processors: processors,
		policy:     cfg.Policy,
		homeDomain: cfg.HomeDomain,
	}
}

// NewServiceFromServices wires a Service from the shared service bundle with
// the stock processor registry: on-ledger settlement for the base currency,
// invoiced settlement for the reference currency.
func NewServiceFromServices(services *common.Services, homeDomain string) *Service {
	registry := NewProcessorRegistry()
	registry.Register(services.Policy.BaseCurrency,
		NewNativeProcessor(services.Repo, services.Ledger, services.Policy))
	registry.Register(services.Policy.ReferenceCurrency,
		NewInvoiceProcessor(services.Repo))

	return NewService(Config{
		Repo:       services.Repo,
		Ledger:     services.Ledger,
		Rates:      services.Rates,
		Processors: registry,
		Policy:     services.Policy,
		HomeDomain: homeDomain,
	})
}

// Processors exposes the registry so startup code can register the
// currency-specific payment handlers.
func (s *Service) Processors() *ProcessorRegistry {
	return s.processors
}
