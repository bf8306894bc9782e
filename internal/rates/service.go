// Package rates provides currency conversion between asset and fiat codes,
// one or more hops at a time. Callers that request multiple bridged hops
// average the returned rates themselves.
package rates

import (
	"context"

	"github.com/shopspring/decimal"
)

// Hop describes one conversion path. An empty Via asks for the direct market
// rate; otherwise the rate is chained through each bridge currency in order.
type Hop struct {
	From string
	To   string
	Via  []string
}

// Source resolves a sequence of conversion hops to numeric rates, one per
// hop, in order.
type Source interface {
	GetExchange(ctx context.Context, hops []Hop) ([]decimal.Decimal, error)
}

// Average returns the mean of the given rates. It is the caller's policy for
// combining multiple bridged hops into a single usable rate.
func Average(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}
