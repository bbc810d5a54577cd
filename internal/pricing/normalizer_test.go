package pricing

import (
	"context"
	"testing"
	"time"

	"tradesync/internal/model"
	"tradesync/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedRates struct {
	rates map[string]decimal.Decimal
}

func (f fixedRates) Rate(ctx context.Context, quote string, date time.Time) (decimal.Decimal, error) {
	rate, ok := f.rates[quote]
	if !ok {
		return decimal.Decimal{}, ErrRateUnavailable
	}
	return rate, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFuturesAdjustedPrice(t *testing.T) {
	n := NewNormalizer(fixedRates{})

	// ES: tick 0.25 worth 12.50. A 0.50 move on 2 contracts is $50.
	got, err := n.AdjustedPrice(context.Background(), "ESZ4", dec("0.50"), time.Now(), dec("2"))
	require.NoError(t, err)
	assert.Equal(t, "50", got.String())

	// No tick table match: the delta is already monetary.
	got, err = n.AdjustedPrice(context.Background(), "UNKNOWN", dec("3.456"), time.Now(), dec("1"))
	require.NoError(t, err)
	assert.Equal(t, "3.46", got.String())
}

func TestForexAdjustedPrice(t *testing.T) {
	n := NewNormalizer(fixedRates{})

	// EURUSD, pip 0.0001 on a 100000 lot: 10 pips at $10/pip is $100.
	got, err := n.AdjustedPrice(context.Background(), "EURUSD", dec("0.0010"), time.Now(), dec("1"))
	require.NoError(t, err)
	assert.Equal(t, "100", got.String())
}

func TestForexAdjustedPriceNonUSDQuote(t *testing.T) {
	n := NewNormalizer(fixedRates{rates: map[string]decimal.Decimal{"JPY": dec("150")}})

	// USDJPY: pip 0.01, lot 100000, pip value (0.01/150)*100000 = 6.6667.
	got, err := n.AdjustedPrice(context.Background(), "USDJPY", dec("0.05"), time.Now(), dec("1"))
	require.NoError(t, err)
	assert.Equal(t, "33.3333", got.String())
}

func TestForexAdjustedPriceRateUnavailable(t *testing.T) {
	n := NewNormalizer(fixedRates{})

	_, err := n.AdjustedPrice(context.Background(), "USDJPY", dec("0.05"), time.Now(), dec("1"))
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestCryptoAdjustedPrice(t *testing.T) {
	n := NewNormalizer(fixedRates{})

	got, err := n.AdjustedPrice(context.Background(), "BTCUSD", dec("250.5"), time.Now(), dec("0.4"))
	require.NoError(t, err)
	assert.Equal(t, "100.2", got.String())
}

func TestDelta(t *testing.T) {
	n := NewNormalizer(fixedRates{})

	assert.Equal(t, "0.5", n.Delta("ESZ4", dec("4500.00"), dec("4500.50"), types.SideLong).String())
	assert.Equal(t, "-0.5", n.Delta("ESZ4", dec("4500.00"), dec("4500.50"), types.SideShort).String())
	assert.True(t, n.Delta("EURUSD", dec("1.1000"), dec("1.1010"), types.SideLong).Equal(dec("0.001")))
}

func TestExchangeRate(t *testing.T) {
	n := NewNormalizer(fixedRates{rates: map[string]decimal.Decimal{"JPY": dec("150")}})

	rate, err := n.ExchangeRate(context.Background(), "EURUSD", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "1", rate.String())

	rate, err = n.ExchangeRate(context.Background(), "USDJPY", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "150", rate.String())

	_, err = n.ExchangeRate(context.Background(), "EURGBP", time.Now())
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestPointsAndTicks(t *testing.T) {
	closeTime := time.Now()
	trade := model.Trade{
		SecurityID: "ESZ4",
		Side:       types.SideLong,
		OpenPrice:  dec("4500.00"),
		ClosePrice: dec("4501.00"),
		OpenVolume: dec("2"),
		CloseTime:  &closeTime,
	}

	assert.Equal(t, "2", Points(trade).String())
	assert.Equal(t, "8", Ticks(trade).String())

	trade.CloseTime = nil
	assert.True(t, Points(trade).IsZero())
}
