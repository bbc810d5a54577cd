package commission

import (
	"context"
	"testing"

	"tradesync/internal/model"
	"tradesync/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRuleStore struct {
	rules []model.CommissionRule
}

func appliesMatch(rule model.CommissionRule, applies []types.CommissionApply) bool {
	for _, a := range applies {
		if rule.Apply == a {
			return true
		}
	}
	return false
}

func (s *memRuleStore) FindRuleForSecurity(ctx context.Context, subAccountID, securityID string, assetType types.AssetType, applies []types.CommissionApply) (*model.CommissionRule, error) {
	for _, rule := range s.rules {
		if rule.SubAccountID != subAccountID || rule.Symbol == "All" || !appliesMatch(rule, applies) {
			continue
		}
		if assetType == types.AssetTypeForex {
			if rule.Symbol == securityID {
				return &rule, nil
			}
			continue
		}
		if len(securityID) >= 2 && len(rule.Symbol) >= 2 && rule.Symbol[:2] == securityID[:2] {
			return &rule, nil
		}
	}
	return nil, nil
}

func (s *memRuleStore) FindFallbackRule(ctx context.Context, subAccountID, instrumentGroup string, applies []types.CommissionApply) (*model.CommissionRule, error) {
	if instrumentGroup != "" {
		for _, rule := range s.rules {
			if rule.SubAccountID == subAccountID && rule.Instrument == instrumentGroup && rule.Symbol == "All" && appliesMatch(rule, applies) {
				return &rule, nil
			}
		}
	}
	for _, rule := range s.rules {
		if rule.SubAccountID == subAccountID && rule.Instrument == "All" && rule.Symbol == "All" && appliesMatch(rule, applies) {
			return &rule, nil
		}
	}
	return nil, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCalculateOverrideWins(t *testing.T) {
	r := NewResolver(&memRuleStore{rules: []model.CommissionRule{
		{SubAccountID: "sub1", Symbol: "ES", Apply: types.CommissionApplyAll, Mode: types.CommissionModePerContract, Commission: dec("2.5")},
	}})

	got, err := r.Calculate(context.Background(), "ESZ4", "sub1", dec("10"), dec("-7.77"), PhaseEntry)
	require.NoError(t, err)
	assert.Equal(t, "7.77", got.String())
}

func TestCalculatePerContract(t *testing.T) {
	r := NewResolver(&memRuleStore{rules: []model.CommissionRule{
		{SubAccountID: "sub1", Symbol: "ES", Apply: types.CommissionApplyAll, Mode: types.CommissionModePerContract, Commission: dec("2.25"), Fee: dec("0.5")},
	}})

	got, err := r.Calculate(context.Background(), "ESZ4", "sub1", dec("-4"), decimal.Decimal{}, PhaseExit)
	require.NoError(t, err)
	assert.Equal(t, "9.5", got.String())
}

func TestCalculateFlat(t *testing.T) {
	r := NewResolver(&memRuleStore{rules: []model.CommissionRule{
		{SubAccountID: "sub1", Symbol: "EURUSD", Apply: types.CommissionApplyEntry, Mode: types.CommissionModeFlat, Commission: dec("5"), Fee: dec("1.25")},
	}})

	got, err := r.Calculate(context.Background(), "EURUSD", "sub1", dec("3"), decimal.Decimal{}, PhaseEntry)
	require.NoError(t, err)
	assert.Equal(t, "6.25", got.String())
}

func TestCalculatePhaseFilter(t *testing.T) {
	r := NewResolver(&memRuleStore{rules: []model.CommissionRule{
		{SubAccountID: "sub1", Symbol: "EURUSD", Apply: types.CommissionApplyEntry, Mode: types.CommissionModeFlat, Commission: dec("5")},
	}})

	// An entry-only rule does not apply to the exit leg.
	got, err := r.Calculate(context.Background(), "EURUSD", "sub1", dec("3"), decimal.Decimal{}, PhaseExit)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestCalculateFallbackRule(t *testing.T) {
	r := NewResolver(&memRuleStore{rules: []model.CommissionRule{
		{SubAccountID: "sub1", Instrument: "All", Symbol: "All", Apply: types.CommissionApplyAll, Mode: types.CommissionModePerContract, Commission: dec("1.1")},
	}})

	got, err := r.Calculate(context.Background(), "ZZTOP", "sub1", dec("2"), decimal.Decimal{}, PhaseEntry)
	require.NoError(t, err)
	assert.Equal(t, "2.2", got.String())
}

func TestCalculateNoRule(t *testing.T) {
	r := NewResolver(&memRuleStore{})

	got, err := r.Calculate(context.Background(), "NQZ4", "sub1", dec("2"), decimal.Decimal{}, PhaseEntry)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
