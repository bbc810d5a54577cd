// Package aggregation consolidates fragmented, fully closed journal
// records into reporting-level contracts: records for the same security
// and side whose lifetimes overlap in time are merged into one record
// with averaged prices and summed volumes and commissions.
package aggregation

import (
	"context"
	"sort"

	"tradesync/internal/instrument"
	"tradesync/internal/model"
	"tradesync/internal/settlement"
	"tradesync/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StoreTx is the aggregator's transactional view of the journal.
type StoreTx interface {
	ListClosed(ctx context.Context, subAccountID string) ([]model.Trade, error)
	// ReplaceGroup removes the grouped originals and inserts the
	// consolidated record atomically.
	ReplaceGroup(ctx context.Context, removeIDs []string, consolidated model.Trade) (model.Trade, error)
}

type Store interface {
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
}

type Aggregator struct {
	store Store
	locks *settlement.PairLocker
	log   zerolog.Logger
}

func NewAggregator(store Store, locks *settlement.PairLocker, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		store: store,
		locks: locks,
		log:   log.With().Str("component", "aggregation").Logger(),
	}
}

// AggregateContracts groups the sub-account's closed records and returns
// the resulting display rows: consolidated records for multi-member
// groups and pass-through records (with a guaranteed non-empty fragment
// list) for the rest. The grouped originals are replaced in the store;
// record-level atomicity means a concurrent fill never settles against a
// record mid-replacement.
func (a *Aggregator) AggregateContracts(ctx context.Context, subAccountID string) ([]model.Trade, error) {
	if subAccountID == "" {
		return nil, settlement.ErrUnresolvedAccount
	}

	// One aggregation pass per sub-account at a time. Settlement only
	// mutates non-closed records, so the closed set is stable inside the
	// transaction.
	unlock := a.locks.Lock(subAccountID, "aggregate")
	defer unlock()

	var out []model.Trade
	err := a.store.InTx(ctx, func(tx StoreTx) error {
		records, err := tx.ListClosed(ctx, subAccountID)
		if err != nil {
			return err
		}
		sort.SliceStable(records, func(i, j int) bool { return records[i].OpenTime.Before(records[j].OpenTime) })

		groups := groupByProximity(records)
		out = make([]model.Trade, 0, len(groups))
		merged := 0
		for _, group := range groups {
			if len(group) == 1 {
				out = append(out, withFragmentList(group[0]))
				continue
			}
			consolidated := consolidate(group)
			removeIDs := make([]string, 0, len(group))
			for _, member := range group {
				removeIDs = append(removeIDs, member.ID)
			}
			stored, err := tx.ReplaceGroup(ctx, removeIDs, consolidated)
			if err != nil {
				return err
			}
			out = append(out, stored)
			merged++
		}
		if merged > 0 {
			a.log.Info().Str("sub_account", subAccountID).Int("groups", merged).Msg("consolidated contracts")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, nil
}

// groupByProximity walks records oldest first and chains a record onto
// the previous one for its security when both share a side and the
// previous close time falls after the record's open time.
func groupByProximity(records []model.Trade) [][]model.Trade {
	var groups [][]model.Trade
	lastGroup := make(map[string]int)
	lastRecord := make(map[string]model.Trade)

	for _, rec := range records {
		prev, seen := lastRecord[rec.SecurityID]
		if seen && prev.Side == rec.Side && prev.CloseTime != nil && prev.CloseTime.After(rec.OpenTime) {
			idx := lastGroup[rec.SecurityID]
			groups[idx] = append(groups[idx], rec)
		} else {
			groups = append(groups, []model.Trade{rec})
			lastGroup[rec.SecurityID] = len(groups) - 1
		}
		lastRecord[rec.SecurityID] = rec
	}
	return groups
}

// consolidate merges a group into one record: simple-average prices,
// summed volumes and commissions, concatenated fragments. The first
// member is the primary and keeps identity fields.
func consolidate(group []model.Trade) model.Trade {
	primary := group[0]

	places := int32(2)
	if instrument.AssetTypeOf(primary.SecurityID) == types.AssetTypeForex {
		places = 5
	}

	count := decimal.NewFromInt(int64(len(group)))
	openSum := decimal.Decimal{}
	closeSum := decimal.Decimal{}
	out := primary
	out.ID = ""
	out.OpenVolume = decimal.Decimal{}
	out.CloseVolume = decimal.Decimal{}
	out.Commission = decimal.Decimal{}
	out.PnL = decimal.Decimal{}
	out.Contracts = nil

	for _, member := range group {
		openSum = openSum.Add(member.OpenPrice)
		closeSum = closeSum.Add(member.ClosePrice)
		out.OpenVolume = out.OpenVolume.Add(member.OpenVolume)
		out.CloseVolume = out.CloseVolume.Add(member.CloseVolume)
		out.Commission = out.Commission.Add(member.Commission)
		out.PnL = out.PnL.Add(member.PnL)
		if len(member.Contracts) == 0 {
			member = withFragmentList(member)
		}
		out.Contracts = append(out.Contracts, member.Contracts...)
		if member.OpenTime.Before(out.OpenTime) {
			out.OpenTime = member.OpenTime
		}
		if member.CloseTime != nil && (out.CloseTime == nil || member.CloseTime.After(*out.CloseTime)) {
			closeTime := *member.CloseTime
			out.CloseTime = &closeTime
		}
	}

	out.OpenPrice = openSum.Div(count).Round(places)
	out.ClosePrice = closeSum.Div(count).Round(places)
	out.Status = types.TradeStatusClosed
	return out
}

// withFragmentList guarantees a non-empty fragment list so single-member
// groups share the consolidated shape.
func withFragmentList(rec model.Trade) model.Trade {
	if len(rec.Contracts) > 0 {
		return rec
	}
	closeTime := rec.OpenTime
	if rec.CloseTime != nil {
		closeTime = *rec.CloseTime
	}
	rec.Contracts = []model.Fragment{{
		OpenTime:    rec.OpenTime,
		CloseTime:   closeTime,
		OpenPrice:   rec.OpenPrice,
		ClosePrice:  rec.ClosePrice,
		OpenVolume:  rec.OpenVolume,
		CloseVolume: rec.CloseVolume,
		PnL:         rec.PnL,
	}}
	return rec
}
