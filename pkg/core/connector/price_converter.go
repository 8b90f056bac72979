package connector

import "fmt"

// PriceConverter holds the fixed USD conversion rates spec.md §4.5
// names, overridable for SOL via config (crypto.sol_usd_rate).
type PriceConverter struct {
	solUSDRate float64
}

func NewPriceConverter(solUSDRate float64) *PriceConverter {
	if solUSDRate <= 0 {
		solUSDRate = 100.0
	}
	return &PriceConverter{solUSDRate: solUSDRate}
}

// ToCrypto converts a USD amount to native units of currency.
func (p *PriceConverter) ToCrypto(usd float64, currency string) (float64, error) {
	switch currency {
	case "SOL":
		return usd / p.solUSDRate, nil
	case "USDC":
		return usd, nil
	default:
		return 0, fmt.Errorf("unsupported currency: %s", currency)
	}
}
