package settlement

import (
	"context"
	"fmt"

	"tradesync/internal/instrument"
	"tradesync/internal/types"

	"github.com/shopspring/decimal"
)

// ApplyRiskLevel sets a stop-loss or profit-target level on every
// non-closed record for the security. In auto mode the field is chosen by
// comparing price to each record's open price given its side. Advisory
// only: PnL and commission are untouched.
func (e *Engine) ApplyRiskLevel(ctx context.Context, subAccountID, securityID string, mode types.RiskLevelType, price decimal.Decimal) error {
	if subAccountID == "" {
		return ErrUnresolvedAccount
	}
	securityID = instrument.Normalize(securityID)

	unlock := e.locks.Lock(subAccountID, securityID)
	defer unlock()

	return e.store.InTx(ctx, func(tx StoreTx) error {
		open, err := tx.ListNotClosed(ctx, subAccountID, securityID)
		if err != nil {
			return err
		}
		for _, rec := range open {
			level := mode
			if level == types.RiskLevelAuto {
				level = classifyRiskLevel(rec.Side, rec.OpenPrice, price)
			}
			switch level {
			case types.RiskLevelStopLoss:
				rec.StopLoss = price
			case types.RiskLevelProfitTarget:
				rec.ProfitTarget = price
			default:
				return fmt.Errorf("invalid risk level type %q", mode)
			}
			if err := tx.Update(ctx, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// classifyRiskLevel: a price on the losing side of the open is a stop
// loss, anything else (equal included) a profit target.
func classifyRiskLevel(side types.Side, openPrice, price decimal.Decimal) types.RiskLevelType {
	if side == types.SideLong {
		if price.LessThan(openPrice) {
			return types.RiskLevelStopLoss
		}
		return types.RiskLevelProfitTarget
	}
	if price.GreaterThan(openPrice) {
		return types.RiskLevelStopLoss
	}
	return types.RiskLevelProfitTarget
}
