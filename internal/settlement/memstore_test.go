package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tradesync/internal/model"
	"tradesync/internal/types"
)

// memStore is an in-memory journal with transactional semantics: a
// failed InTx leaves the committed state untouched.
type memStore struct {
	mu     sync.Mutex
	seq    int
	trades []model.Trade
}

type memTx struct {
	seq    int
	trades []model.Trade
}

func cloneTrades(in []model.Trade) []model.Trade {
	out := make([]model.Trade, len(in))
	for i, t := range in {
		out[i] = t
		out[i].Contracts = append([]model.Fragment(nil), t.Contracts...)
	}
	return out
}

func (s *memStore) InTx(ctx context.Context, fn func(tx StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memTx{seq: s.seq, trades: cloneTrades(s.trades)}
	if err := fn(tx); err != nil {
		return err
	}
	s.seq = tx.seq
	s.trades = tx.trades
	return nil
}

func (s *memStore) all() []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTrades(s.trades)
}

func (tx *memTx) FindOpenInventory(ctx context.Context, subAccountID, securityID string, openDirection types.Direction) ([]model.Trade, error) {
	side := types.SideForDirection(openDirection)
	var out []model.Trade
	for _, t := range tx.trades {
		if t.SubAccountID == subAccountID && t.SecurityID == securityID && t.Status != types.TradeStatusClosed && t.Side == side {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return cloneTrades(out), nil
}

func (tx *memTx) FindByExecutionID(ctx context.Context, subAccountID, execID string) (*model.Trade, error) {
	for _, t := range tx.trades {
		if t.SubAccountID == subAccountID && (t.OpenID == execID || t.CloseID == execID) {
			found := t
			return &found, nil
		}
	}
	return nil, nil
}

func (tx *memTx) ListNotClosed(ctx context.Context, subAccountID, securityID string) ([]model.Trade, error) {
	var out []model.Trade
	for _, t := range tx.trades {
		if t.SubAccountID == subAccountID && t.SecurityID == securityID && t.Status != types.TradeStatusClosed {
			out = append(out, t)
		}
	}
	return cloneTrades(out), nil
}

func (tx *memTx) Create(ctx context.Context, t model.Trade) (model.Trade, error) {
	tx.seq++
	t.ID = fmt.Sprintf("trade-%d", tx.seq)
	tx.trades = append(tx.trades, t)
	return t, nil
}

func (tx *memTx) Update(ctx context.Context, t model.Trade) error {
	for i := range tx.trades {
		if tx.trades[i].ID == t.ID {
			tx.trades[i] = t
			return nil
		}
	}
	return fmt.Errorf("trade %s not found", t.ID)
}
