// Package commission resolves the fee charged for an execution leg from
// sub-account scoped rules. A caller-supplied commission always wins and
// a missing rule means zero commission, not an error.
package commission

import (
	"context"

	"tradesync/internal/instrument"
	"tradesync/internal/model"
	"tradesync/internal/types"

	"github.com/shopspring/decimal"
)

// Phase identifies which leg of a position the charge applies to.
type Phase string

const (
	PhaseEntry Phase = "entry"
	PhaseExit  Phase = "exit"
)

func (p Phase) apply() types.CommissionApply {
	if p == PhaseEntry {
		return types.CommissionApplyEntry
	}
	return types.CommissionApplyExit
}

// Store looks up commission rules. Both lookups filter on the applicable
// execution phases and return nil when nothing matches.
type Store interface {
	// FindRuleForSecurity matches by symbol: exact match for forex
	// symbols, 2- or 3-character prefix match for futures roots.
	FindRuleForSecurity(ctx context.Context, subAccountID, securityID string, assetType types.AssetType, applies []types.CommissionApply) (*model.CommissionRule, error)
	// FindFallbackRule matches an instrument-group rule with the "All"
	// symbol, or the global All/All rule when instrumentGroup is empty.
	FindFallbackRule(ctx context.Context, subAccountID, instrumentGroup string, applies []types.CommissionApply) (*model.CommissionRule, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Calculate resolves the fee for one execution leg. override, when
// non-zero, is taken as the full charge (absolute value).
func (r *Resolver) Calculate(ctx context.Context, securityID, subAccountID string, volume, override decimal.Decimal, phase Phase) (decimal.Decimal, error) {
	if !override.IsZero() {
		return override.Abs().Round(2), nil
	}

	applies := []types.CommissionApply{types.CommissionApplyAll, phase.apply()}
	assetType := instrument.AssetTypeOf(securityID)

	rule, err := r.store.FindRuleForSecurity(ctx, subAccountID, instrument.Normalize(securityID), assetType, applies)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if rule == nil {
		group := instrument.InstrumentGroup(securityID)
		rule, err = r.store.FindFallbackRule(ctx, subAccountID, group, applies)
		if err != nil {
			return decimal.Decimal{}, err
		}
	}
	if rule == nil {
		return decimal.Decimal{}, nil
	}

	charge := rule.Commission
	if rule.Mode == types.CommissionModePerContract || rule.Mode == types.CommissionModePerShare {
		charge = rule.Commission.Mul(volume.Abs())
	}
	return charge.Add(rule.Fee).Round(2), nil
}
