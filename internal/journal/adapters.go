package journal

import (
	"context"

	"tradesync/internal/aggregation"
	"tradesync/internal/settlement"
)

// SettlementStore exposes the journal under the settlement engine's
// transactional contract.
type SettlementStore struct {
	store *Store
}

func NewSettlementStore(store *Store) *SettlementStore {
	return &SettlementStore{store: store}
}

func (s *SettlementStore) InTx(ctx context.Context, fn func(tx settlement.StoreTx) error) error {
	return s.store.InTx(ctx, func(tx *Tx) error { return fn(tx) })
}

// AggregationStore exposes the journal under the contract aggregator's
// transactional contract.
type AggregationStore struct {
	store *Store
}

func NewAggregationStore(store *Store) *AggregationStore {
	return &AggregationStore{store: store}
}

func (s *AggregationStore) InTx(ctx context.Context, fn func(tx aggregation.StoreTx) error) error {
	return s.store.InTx(ctx, func(tx *Tx) error { return fn(tx) })
}
