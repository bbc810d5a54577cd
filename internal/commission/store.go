package commission

import (
	"context"
	"errors"

	"tradesync/internal/model"
	"tradesync/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore resolves commission rules from the commission_rules table.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const ruleColumns = "id, sub_account_id, instrument, symbol, apply, mode, commission, fee"

func applyStrings(applies []types.CommissionApply) []string {
	out := make([]string, 0, len(applies))
	for _, a := range applies {
		out = append(out, string(a))
	}
	return out
}

func (s *PgStore) FindRuleForSecurity(ctx context.Context, subAccountID, securityID string, assetType types.AssetType, applies []types.CommissionApply) (*model.CommissionRule, error) {
	var row pgx.Row
	if assetType == types.AssetTypeForex {
		row = s.pool.QueryRow(ctx, "select "+ruleColumns+" from commission_rules where sub_account_id = $1 and symbol = $2 and apply = any($3) limit 1",
			subAccountID, securityID, applyStrings(applies))
	} else {
		prefix2 := securityID
		if len(prefix2) > 2 {
			prefix2 = prefix2[:2]
		}
		prefix3 := securityID
		if len(prefix3) > 3 {
			prefix3 = prefix3[:3]
		}
		row = s.pool.QueryRow(ctx, "select "+ruleColumns+" from commission_rules where sub_account_id = $1 and (symbol like $2 || '%' or symbol like $3 || '%') and apply = any($4) limit 1",
			subAccountID, prefix2, prefix3, applyStrings(applies))
	}
	return scanRule(row)
}

func (s *PgStore) FindFallbackRule(ctx context.Context, subAccountID, instrumentGroup string, applies []types.CommissionApply) (*model.CommissionRule, error) {
	if instrumentGroup != "" {
		rule, err := scanRule(s.pool.QueryRow(ctx, "select "+ruleColumns+" from commission_rules where sub_account_id = $1 and instrument = $2 and symbol = 'All' and apply = any($3) limit 1",
			subAccountID, instrumentGroup, applyStrings(applies)))
		if err != nil {
			return nil, err
		}
		if rule != nil {
			return rule, nil
		}
	}
	return scanRule(s.pool.QueryRow(ctx, "select "+ruleColumns+" from commission_rules where sub_account_id = $1 and instrument = 'All' and symbol = 'All' and apply = any($2) limit 1",
		subAccountID, applyStrings(applies)))
}

func scanRule(row pgx.Row) (*model.CommissionRule, error) {
	var r model.CommissionRule
	var apply, mode string
	err := row.Scan(&r.ID, &r.SubAccountID, &r.Instrument, &r.Symbol, &apply, &mode, &r.Commission, &r.Fee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Apply = types.CommissionApply(apply)
	r.Mode = types.CommissionMode(mode)
	return &r, nil
}
