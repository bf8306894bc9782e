package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Policy is the issuance and settlement policy: role funding amounts, the
// reserve an issuer must hold, quote validity and the bridge currencies used
// for cross-currency pricing. Amounts are denominated in the network's base
// currency.
type Policy struct {
	BaseCurrency       string
	ReferenceCurrency  string
	BridgeCurrencies   []string
	MinIssuerReserve   decimal.Decimal
	IssuerFunding      decimal.Decimal
	DistributorFunding decimal.Decimal
	SupplyFunding      decimal.Decimal
	BuyerFunding       decimal.Decimal
	QuoteValidity      time.Duration
	InitiatorWalletId  string
}

type policyFile struct {
	BaseCurrency       string   `yaml:"base_currency"`
	ReferenceCurrency  string   `yaml:"reference_currency"`
	BridgeCurrencies   []string `yaml:"bridge_currencies"`
	MinIssuerReserve   string   `yaml:"min_issuer_reserve"`
	IssuerFunding      string   `yaml:"issuer_funding"`
	DistributorFunding string   `yaml:"distributor_funding"`
	SupplyFunding      string   `yaml:"supply_funding"`
	BuyerFunding       string   `yaml:"buyer_funding"`
	QuoteValidity      string   `yaml:"quote_validity"`
	InitiatorWalletId  string   `yaml:"initiator_wallet_id"`
}

// DefaultPolicy returns the stock testnet policy: 6 base units of issuer
// reserve, 1.1/5/5 role funding, 2 for buyer activation, 30 minute quotes,
// BTC and ETH as pricing bridges.
func DefaultPolicy() Policy {
	return Policy{
		BaseCurrency:       "XLM",
		ReferenceCurrency:  "USDT",
		BridgeCurrencies:   []string{"BTC", "ETH"},
		MinIssuerReserve:   decimal.NewFromInt(6),
		IssuerFunding:      decimal.RequireFromString("1.1"),
		DistributorFunding: decimal.NewFromInt(5),
		SupplyFunding:      decimal.NewFromInt(5),
		BuyerFunding:       decimal.NewFromInt(2),
		QuoteValidity:      30 * time.Minute,
	}
}

// LoadPolicy reads a policy YAML file, filling unset fields from the default
// policy. A missing file is not an error; the defaults apply wholesale.
func LoadPolicy(policyFilePath string) (Policy, error) {
	policy := DefaultPolicy()
	if policyFilePath == "" {
		return policy, nil
	}

	path := policyFilePath
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return Policy{}, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return policy, nil
		}
		return Policy{}, fmt.Errorf("unable to read %s: %w", policyFilePath, err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Policy{}, fmt.Errorf("unable to parse %s: %w", policyFilePath, err)
	}

	if file.BaseCurrency != "" {
		policy.BaseCurrency = file.BaseCurrency
	}
	if file.ReferenceCurrency != "" {
		policy.ReferenceCurrency = file.ReferenceCurrency
	}
	if len(file.BridgeCurrencies) > 0 {
		policy.BridgeCurrencies = file.BridgeCurrencies
	}
	if file.InitiatorWalletId != "" {
		policy.InitiatorWalletId = file.InitiatorWalletId
	}

	for _, field := range []struct {
		raw  string
		name string
		dst  *decimal.Decimal
	}{
		{file.MinIssuerReserve, "min_issuer_reserve", &policy.MinIssuerReserve},
		{file.IssuerFunding, "issuer_funding", &policy.IssuerFunding},
		{file.DistributorFunding, "distributor_funding", &policy.DistributorFunding},
		{file.SupplyFunding, "supply_funding", &policy.SupplyFunding},
		{file.BuyerFunding, "buyer_funding", &policy.BuyerFunding},
	} {
		if field.raw == "" {
			continue
		}
		value, err := decimal.NewFromString(field.raw)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid %s %q in %s: %w", field.name, field.raw, policyFilePath, err)
		}
		*field.dst = value
	}

	if file.QuoteValidity != "" {
		validity, err := time.ParseDuration(file.QuoteValidity)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid quote_validity %q in %s: %w", file.QuoteValidity, policyFilePath, err)
		}
		policy.QuoteValidity = validity
	}

	return policy, nil
}
