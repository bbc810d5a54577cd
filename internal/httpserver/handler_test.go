package httpserver

import (
	"encoding/json"
	"testing"
	"time"

	"tradesync/internal/model"
	"tradesync/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTradeRecordPayload(t *testing.T) {
	closeTime := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	trade := model.Trade{
		ID:           "t-1",
		SubAccountID: "sub-1",
		SecurityID:   "ESZ4",
		Side:         types.SideLong,
		Status:       types.TradeStatusClosed,
		OpenVolume:   dec("2"),
		CloseVolume:  dec("-2"),
		OpenPrice:    dec("4500"),
		ClosePrice:   dec("4500.5"),
		Commission:   dec("4"),
		PnL:          dec("46"),
		OpenTime:     closeTime.Add(-time.Hour),
		CloseTime:    &closeTime,
	}

	records := tradeRecords([]model.Trade{trade})
	require.Len(t, records, 1)

	raw, err := json.Marshal(records[0])
	require.NoError(t, err)
	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.JSONEq(t, `"50"`, string(payload["gross_pnl"]))
	assert.JSONEq(t, `"1"`, string(payload["points"]))
	assert.JSONEq(t, `"4"`, string(payload["ticks"]))
	assert.Contains(t, payload, "pnl")
	assert.Contains(t, payload, "security_id")
}

func TestTradeRecordPayloadOpenTrade(t *testing.T) {
	records := tradeRecords([]model.Trade{{
		SecurityID: "ESZ4",
		Side:       types.SideLong,
		Status:     types.TradeStatusOpen,
		OpenVolume: dec("2"),
		OpenPrice:  dec("4500"),
	}})
	require.Len(t, records, 1)
	assert.True(t, records[0].Points.IsZero())
	assert.True(t, records[0].Ticks.IsZero())
}
