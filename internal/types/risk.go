package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidateRiskLevels checks stop-loss and target against the current price for
// the order side. A BUY needs stop < price < target, a SELL the reverse.
// Absent levels are not checked.
func ValidateRiskLevels(side Side, price decimal.Decimal, stopLoss, target decimal.NullDecimal) error {
	if stopLoss.Valid {
		switch side {
		case SideBuy:
			if !stopLoss.Decimal.LessThan(price) {
				return fmt.Errorf("stop loss %s must be below price %s for BUY", stopLoss.Decimal, price)
			}
		case SideSell:
			if !stopLoss.Decimal.GreaterThan(price) {
				return fmt.Errorf("stop loss %s must be above price %s for SELL", stopLoss.Decimal, price)
			}
		}
	}
	if target.Valid {
		switch side {
		case SideBuy:
			if !target.Decimal.GreaterThan(price) {
				return fmt.Errorf("target %s must be above price %s for BUY", target.Decimal, price)
			}
		case SideSell:
			if !target.Decimal.LessThan(price) {
				return fmt.Errorf("target %s must be below price %s for SELL", target.Decimal, price)
			}
		}
	}
	return nil
}
