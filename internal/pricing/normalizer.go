// Package pricing converts raw price deltas into money using asset-class
// conventions: a tick table for futures and a pip table plus exchange
// rate for forex.
package pricing

import (
	"context"
	"errors"
	"time"

	"tradesync/internal/instrument"
	"tradesync/internal/model"
	"tradesync/internal/types"

	"github.com/shopspring/decimal"
)

// ReferenceCurrency is the currency all PnL is expressed in.
const ReferenceCurrency = "USD"

// ErrRateUnavailable is returned when a forex fragment cannot be valued
// because no exchange rate exists for its quote currency and date. The
// fragment's PnL must not be fabricated in that case.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// RateSource supplies the conversion rate from the reference currency
// into quote for a given date. Caching and refresh policy belong to the
// implementation.
type RateSource interface {
	Rate(ctx context.Context, quote string, date time.Time) (decimal.Decimal, error)
}

type Normalizer struct {
	rates RateSource
}

func NewNormalizer(rates RateSource) *Normalizer {
	return &Normalizer{rates: rates}
}

// Delta returns the raw price difference signed by side, rounded to the
// asset class's quote precision (5 decimals forex, 2 futures).
func (n *Normalizer) Delta(securityID string, openPrice, closePrice decimal.Decimal, side types.Side) decimal.Decimal {
	places := int32(2)
	if instrument.AssetTypeOf(securityID) == types.AssetTypeForex {
		places = 5
	}
	if side == types.SideShort {
		return openPrice.Sub(closePrice).Round(places)
	}
	return closePrice.Sub(openPrice).Round(places)
}

// AdjustedPrice converts a raw price delta into money for the given
// volume. Futures use the tick table; forex uses pip value with the
// exchange rate for date. Unmatched futures symbols treat the delta as
// already monetary.
func (n *Normalizer) AdjustedPrice(ctx context.Context, securityID string, price decimal.Decimal, date time.Time, volume decimal.Decimal) (decimal.Decimal, error) {
	if instrument.AssetTypeOf(securityID) == types.AssetTypeForex {
		return n.forexAdjustedPrice(ctx, securityID, price, date, volume)
	}
	return futuresAdjustedPrice(securityID, price).Mul(volume.Abs()), nil
}

// ExchangeRate returns the reference-to-quote conversion used to value a
// forex security on date. Securities quoted in the reference currency
// convert at 1.
func (n *Normalizer) ExchangeRate(ctx context.Context, securityID string, date time.Time) (decimal.Decimal, error) {
	return n.pairExchangeRate(ctx, instrument.CurrencyPair(securityID), date)
}

func (n *Normalizer) pairExchangeRate(ctx context.Context, pair []string, date time.Time) (decimal.Decimal, error) {
	if len(pair) < 2 || pair[1] == ReferenceCurrency {
		return decimal.NewFromInt(1), nil
	}
	rate, err := n.rates.Rate(ctx, pair[1], date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if rate.IsZero() {
		return decimal.Decimal{}, ErrRateUnavailable
	}
	return rate, nil
}

func (n *Normalizer) forexAdjustedPrice(ctx context.Context, securityID string, price decimal.Decimal, date time.Time, volume decimal.Decimal) (decimal.Decimal, error) {
	pair := instrument.CurrencyPair(securityID)
	if instrument.PairKindOf(pair) == types.PairKindCryptoPair {
		return volume.Mul(price).Round(4), nil
	}

	pip := instrument.PipInfoFor(pair)
	rate, err := n.pairExchangeRate(ctx, pair, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	lot := volume.Abs().Mul(pip.LotSize)
	pipValue := pip.PipSize.Div(rate).Mul(lot)
	pips := price.Div(pip.PipSize)
	return pipValue.Mul(pips).Round(4), nil
}

func futuresAdjustedPrice(securityID string, price decimal.Decimal) decimal.Decimal {
	info, ok := instrument.TickInfoFor(securityID)
	if !ok {
		return price.Round(2)
	}
	return price.Div(info.TickSize).Mul(info.TickValue).Round(2)
}

// Points is the closed price movement of a futures trade scaled by its
// open size, zero while the trade is still open.
func Points(t model.Trade) decimal.Decimal {
	if t.CloseTime == nil {
		return decimal.Decimal{}
	}
	if t.Side == types.SideShort {
		return t.OpenPrice.Sub(t.ClosePrice).Mul(t.OpenVolume.Abs())
	}
	return t.ClosePrice.Sub(t.OpenPrice).Mul(t.OpenVolume.Abs())
}

// Ticks converts Points into tick counts using the trade's tick size.
func Ticks(t model.Trade) decimal.Decimal {
	points := Points(t)
	if info, ok := instrument.TickInfoFor(t.SecurityID); ok {
		return points.Div(info.TickSize)
	}
	return points
}
