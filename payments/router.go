package payments

import (
	"fmt"
	"sort"
	"strings"
)

type Provider string

const (
	ProviderStripe   Provider = "stripe"
	ProviderPaystack Provider = "paystack"
)

func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case ProviderStripe:
		return ProviderStripe, nil
	case ProviderPaystack:
		return ProviderPaystack, nil
	}
	return "", fmt.Errorf("unknown payout provider %q", s)
}

// DefaultRoutes is the currency table used when no override is configured.
func DefaultRoutes() map[string]Provider {
	return map[string]Provider{
		"NGN": ProviderPaystack,
		"GHS": ProviderPaystack,
		"ZAR": ProviderPaystack,
		"KES": ProviderPaystack,
		"USD": ProviderStripe,
		"EUR": ProviderStripe,
		"GBP": ProviderStripe,
		"CAD": ProviderStripe,
		"AUD": ProviderStripe,
	}
}

// Router maps a currency to the provider that pays out in it.
// The table is copied on construction and never mutated afterwards.
type Router struct {
	routes map[string]Provider
}

func NewRouter(routes map[string]Provider) *Router {
	table := make(map[string]Provider, len(routes))
	for currency, provider := range routes {
		table[strings.ToUpper(currency)] = provider
	}
	return &Router{routes: table}
}

func (r *Router) Route(currency string) (Provider, bool) {
	provider, ok := r.routes[strings.ToUpper(strings.TrimSpace(currency))]
	return provider, ok
}

func (r *Router) Currencies() []string {
	currencies := make([]string, 0, len(r.routes))
	for currency := range r.routes {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	return currencies
}

// ParseRoutes reads an override such as "NGN:paystack,USD:stripe".
func ParseRoutes(table string) (map[string]Provider, error) {
	routes := make(map[string]Provider)
	for _, pair := range strings.Split(table, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		currency, name, found := strings.Cut(pair, ":")
		if !found || len(strings.TrimSpace(currency)) != 3 {
			return nil, fmt.Errorf("invalid payout route %q", pair)
		}
		provider, err := ParseProvider(name)
		if err != nil {
			return nil, err
		}
		routes[strings.ToUpper(strings.TrimSpace(currency))] = provider
	}
	if len(routes) == 0 {
		return nil, fmt.Errorf("payout routes %q are empty", table)
	}
	return routes, nil
}
