package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradesync/internal/accounts"
	"tradesync/internal/model"
	"tradesync/internal/settlement"
	"tradesync/internal/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	writes []string
}

func (f *fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, nil }

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.writes = append(f.writes, string(data))
	return nil
}

func (f *fakeConn) Close() error { return nil }

type fakeResolver struct {
	resolution accounts.Resolution
	calls      []string
}

func (f *fakeResolver) Resolve(ctx context.Context, accountID, authKey, broker, alternateID string) (accounts.Resolution, error) {
	f.calls = append(f.calls, accountID+"|"+authKey+"|"+broker)
	return f.resolution, nil
}

type fakeSink struct {
	fills []settlement.Fill
	risks []string
}

func (f *fakeSink) ProcessFill(ctx context.Context, fill settlement.Fill) ([]model.Trade, error) {
	f.fills = append(f.fills, fill)
	return nil, nil
}

func (f *fakeSink) ApplyRiskLevel(ctx context.Context, subAccountID, securityID string, mode types.RiskLevelType, price decimal.Decimal) error {
	f.risks = append(f.risks, fmt.Sprintf("%s|%s|%s|%s", subAccountID, securityID, mode, price))
	return nil
}

func contractServer(t *testing.T, name string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/contract/item") {
			json.NewEncoder(w).Encode(Contract{ID: 77, Name: name})
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "client", "secret", "http://localhost/return")
}

func newTestSession(t *testing.T, conn *fakeConn, resolver *fakeResolver, sink *fakeSink) *Session {
	s := newSession(9001, "token-1", contractServer(t, "MESZ4"), resolver, sink, zerolog.Nop())
	s.conn = conn
	s.registerAccount(42, "token-1")
	return s
}

func aFrame(t *testing.T, responses ...frameResponse) []byte {
	t.Helper()
	body, err := json.Marshal(responses)
	require.NoError(t, err)
	return append([]byte("a"), body...)
}

func eventFrame(t *testing.T, requestID int64, entityType, eventType string, entity any) []byte {
	t.Helper()
	raw, err := json.Marshal(entity)
	require.NoError(t, err)
	data, err := json.Marshal(eventPayload{EntityType: entityType, EventType: eventType, Entity: raw})
	require.NoError(t, err)
	return aFrame(t, frameResponse{Status: 200, RequestID: requestID, Data: data})
}

func TestSessionHandshake(t *testing.T) {
	conn := &fakeConn{}
	resolver := &fakeResolver{resolution: accounts.Resolution{SubAccount: model.SubAccount{ID: "sub-1"}}}
	s := newTestSession(t, conn, resolver, &fakeSink{})
	ctx := context.Background()

	require.NoError(t, s.handleFrame(ctx, []byte("o")))
	require.Len(t, conn.writes, 1)
	assert.Equal(t, "authorize\n1\n\ntoken-1", conn.writes[0])

	require.NoError(t, s.handleFrame(ctx, []byte("h")))
	assert.Equal(t, "[]", conn.writes[1])

	require.NoError(t, s.handleFrame(ctx, aFrame(t, frameResponse{Status: 200, RequestID: 1})))
	require.Len(t, conn.writes, 3)
	assert.True(t, strings.HasPrefix(conn.writes[2], "user/syncrequest\n2\n\n"))
	assert.Contains(t, conn.writes[2], "9001")

	sync, err := json.Marshal(syncPayload{Accounts: []Account{
		{ID: 42, UserID: 9001, Name: "Demo123", Nickname: "demo"},
		{ID: 43, UserID: 9001, Name: "Untracked"},
	}})
	require.NoError(t, err)
	require.NoError(t, s.handleFrame(ctx, aFrame(t, frameResponse{Status: 200, RequestID: 2, Data: sync})))

	require.Len(t, resolver.calls, 1)
	assert.Equal(t, "Demo123|token-1|Ninja Trader", resolver.calls[0])
}

func TestSessionExecutionBecomesFill(t *testing.T) {
	conn := &fakeConn{}
	resolver := &fakeResolver{resolution: accounts.Resolution{SubAccount: model.SubAccount{ID: "sub-1"}}}
	sink := &fakeSink{}
	s := newTestSession(t, conn, resolver, sink)
	ctx := context.Background()

	s.refs[42] = resolver.resolution

	require.NoError(t, s.handleFrame(ctx, eventFrame(t, 0, "order", "Created", orderEntity{ID: 500, AccountID: 42, ContractID: 77})))

	require.NoError(t, s.handleFrame(ctx, eventFrame(t, 0, "executionReport", "Created", executionEntity{
		AccountID: 42, OrderID: 500, ContractID: 77,
		OrdStatus: "Filled", Action: "Buy",
		AvgPx: decimal.RequireFromString("4500.25"), CumQty: decimal.RequireFromString("2"),
	})))

	require.Len(t, sink.fills, 1)
	fill := sink.fills[0]
	assert.Equal(t, "sub-1", fill.SubAccount.ID)
	assert.Equal(t, "MESZ4", fill.SecurityID)
	assert.Equal(t, types.DirectionBuy, fill.Direction)
	assert.Equal(t, "500", fill.ExecutionID)
	assert.True(t, fill.Price.Equal(decimal.RequireFromString("4500.25")))
	assert.True(t, fill.Volume.Equal(decimal.NewFromInt(2)))

	// Order is removed once filled; a replayed report is dropped.
	require.NoError(t, s.handleFrame(ctx, eventFrame(t, 0, "executionReport", "Created", executionEntity{
		AccountID: 42, OrderID: 500, ContractID: 77, OrdStatus: "Filled", Action: "Buy",
	})))
	assert.Len(t, sink.fills, 1)
}

func TestSessionIgnoresUntrackedExecution(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSession(t, &fakeConn{}, &fakeResolver{}, sink)

	require.NoError(t, s.handleFrame(context.Background(), eventFrame(t, 0, "executionReport", "Created", executionEntity{
		AccountID: 42, OrderID: 600, ContractID: 77, OrdStatus: "Filled", Action: "Sell",
	})))
	assert.Empty(t, sink.fills)
}

func TestSessionOrderVersionAppliesRiskLevel(t *testing.T) {
	resolver := &fakeResolver{resolution: accounts.Resolution{SubAccount: model.SubAccount{ID: "sub-1"}}}
	sink := &fakeSink{}
	s := newTestSession(t, &fakeConn{}, resolver, sink)
	ctx := context.Background()
	s.refs[42] = resolver.resolution

	require.NoError(t, s.handleFrame(ctx, eventFrame(t, 0, "order", "Created", orderEntity{ID: 500, AccountID: 42, ContractID: 77})))

	require.NoError(t, s.handleFrame(ctx, eventFrame(t, 0, "orderVersion", "Created", orderVersionEntity{
		OrderID: 500, OrderType: "Stop", StopPrice: decimal.RequireFromString("4490"),
	})))
	require.Len(t, sink.risks, 1)
	assert.Equal(t, "sub-1|MESZ4|auto|4490", sink.risks[0])

	// Market orders carry no protective level.
	require.NoError(t, s.handleFrame(ctx, eventFrame(t, 0, "orderVersion", "Created", orderVersionEntity{
		OrderID: 500, OrderType: "Market",
	})))
	assert.Len(t, sink.risks, 1)
}

func TestSessionDropAccount(t *testing.T) {
	s := newTestSession(t, &fakeConn{}, &fakeResolver{}, &fakeSink{})
	s.registerAccount(43, "token-1")

	assert.False(t, s.dropAccount(42))
	assert.True(t, s.dropAccount(43))
}
