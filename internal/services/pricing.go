package services

import (
	"fmt"

	"proxyflow/internal/config"
	"proxyflow/internal/models"
)

// PricingService resolves renewal prices from the configured price book,
// keyed by (proxy type, duration days). Lookups miss explicitly; there is
// no zero-price fallback.
type PricingService struct {
	book config.PricingConfig
}

// NewPricingService creates a pricing service from the configured table.
// An empty table falls back to the default book.
func NewPricingService(book config.PricingConfig) *PricingService {
	if len(book) == 0 {
		book = defaultPriceBook()
	}
	return &PricingService{book: book}
}

// RenewalCost returns the price to extend a lease of the given type by the
// given number of days.
func (s *PricingService) RenewalCost(proxyType string, durationDays int) (float64, error) {
	durations, ok := s.book[proxyType]
	if !ok {
		return 0, fmt.Errorf("%w: type %q", ErrPriceNotFound, proxyType)
	}

	price, ok := durations[durationDays]
	if !ok {
		return 0, fmt.Errorf("%w: type %q, %d days", ErrPriceNotFound, proxyType, durationDays)
	}

	return price, nil
}

func defaultPriceBook() config.PricingConfig {
	return config.PricingConfig{
		models.ProxyTypeISP: {
			7:  5.0,
			30: 15.0,
			90: 40.0,
		},
		models.ProxyTypeResidential: {
			7:  8.0,
			30: 25.0,
			90: 65.0,
		},
		models.ProxyTypeDatacenter: {
			7:  3.0,
			30: 9.0,
			90: 24.0,
		},
	}
}
