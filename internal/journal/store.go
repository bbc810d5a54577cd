// Package journal persists ledger records in Postgres. Each record keeps
// its full payload in a jsonb column with the columns the settlement and
// aggregation queries filter on promoted alongside it.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tradesync/internal/model"
	"tradesync/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside one Serializable transaction. Settlement relies on
// this: a fill either commits every record it touched or none.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type Tx struct {
	tx pgx.Tx
}

const tradeColumns = "id, data"

func (t *Tx) FindOpenInventory(ctx context.Context, subAccountID, securityID string, openDirection types.Direction) ([]model.Trade, error) {
	side := types.SideForDirection(openDirection)
	rows, err := t.tx.Query(ctx, "select "+tradeColumns+" from journal_trades where sub_account_id = $1 and security_id = $2 and side = $3 and status != 'Closed' order by open_time asc, id asc for update",
		subAccountID, securityID, string(side))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (t *Tx) FindByExecutionID(ctx context.Context, subAccountID, execID string) (*model.Trade, error) {
	row := t.tx.QueryRow(ctx, "select "+tradeColumns+" from journal_trades where sub_account_id = $1 and (open_id = $2 or close_id = $2) limit 1",
		subAccountID, execID)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (t *Tx) ListNotClosed(ctx context.Context, subAccountID, securityID string) ([]model.Trade, error) {
	rows, err := t.tx.Query(ctx, "select "+tradeColumns+" from journal_trades where sub_account_id = $1 and security_id = $2 and status != 'Closed' order by open_time asc for update",
		subAccountID, securityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// ListClosed returns every fully closed record for the sub-account,
// oldest open time first. Used by the contract aggregator.
func (t *Tx) ListClosed(ctx context.Context, subAccountID string) ([]model.Trade, error) {
	rows, err := t.tx.Query(ctx, "select "+tradeColumns+" from journal_trades where sub_account_id = $1 and status = 'Closed' order by open_time asc, id asc for update",
		subAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func (t *Tx) Create(ctx context.Context, trade model.Trade) (model.Trade, error) {
	payload, err := json.Marshal(trade)
	if err != nil {
		return trade, err
	}
	err = t.tx.QueryRow(ctx, "insert into journal_trades (sub_account_id, security_id, side, status, open_id, close_id, open_time, close_time, data, created_at, updated_at) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) returning id",
		trade.SubAccountID, trade.SecurityID, string(trade.Side), string(trade.Status), trade.OpenID, trade.CloseID, trade.OpenTime, trade.CloseTime, payload, time.Now().UTC(), time.Now().UTC()).Scan(&trade.ID)
	if err != nil {
		return trade, err
	}
	// The payload embeds its own id for readers that only see the jsonb.
	return trade, t.writePayload(ctx, trade)
}

func (t *Tx) Update(ctx context.Context, trade model.Trade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, "update journal_trades set status = $1, close_id = $2, close_time = $3, data = $4, updated_at = $5 where id = $6",
		string(trade.Status), trade.CloseID, trade.CloseTime, payload, time.Now().UTC(), trade.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("trade not found")
	}
	return nil
}

// ReplaceGroup atomically removes the grouped originals and inserts their
// consolidated record. Runs inside the caller's transaction, so readers
// never observe a partial replacement.
func (t *Tx) ReplaceGroup(ctx context.Context, removeIDs []string, consolidated model.Trade) (model.Trade, error) {
	if len(removeIDs) > 0 {
		if _, err := t.tx.Exec(ctx, "delete from journal_trades where id = any($1)", removeIDs); err != nil {
			return consolidated, err
		}
	}
	return t.Create(ctx, consolidated)
}

func (t *Tx) writePayload(ctx context.Context, trade model.Trade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, "update journal_trades set data = $1 where id = $2", payload, trade.ID)
	return err
}

// ListBySubAccount is the read path for the trades API; status filters
// when non-empty.
func (s *Store) ListBySubAccount(ctx context.Context, subAccountID string, status types.TradeStatus, limit int) ([]model.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var rows pgx.Rows
	var err error
	if status != "" {
		rows, err = s.pool.Query(ctx, "select "+tradeColumns+" from journal_trades where sub_account_id = $1 and status = $2 order by open_time desc limit $3",
			subAccountID, string(status), limit)
	} else {
		rows, err = s.pool.Query(ctx, "select "+tradeColumns+" from journal_trades where sub_account_id = $1 order by open_time desc limit $2",
			subAccountID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var out []model.Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, trade)
	}
	return out, rows.Err()
}

func scanTrade(row pgx.Row) (model.Trade, error) {
	var trade model.Trade
	var id string
	var payload []byte
	if err := row.Scan(&id, &payload); err != nil {
		return trade, err
	}
	if err := json.Unmarshal(payload, &trade); err != nil {
		return trade, err
	}
	trade.ID = id
	return trade, nil
}
