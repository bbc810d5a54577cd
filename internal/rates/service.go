// Package rates supplies daily currency conversion rates. Rates are
// cached in Postgres per (base currency, date); same-day rows refresh on
// a 30-minute window from the external free-currency API, historical
// rows are fetched once.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"tradesync/internal/pricing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const refreshWindow = 30 * time.Minute

// Client fetches conversion maps from the rate provider. Values are
// quoted as base-to-currency multipliers.
type Client interface {
	Latest(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error)
	Historical(ctx context.Context, baseCurrency string, date time.Time) (map[string]decimal.Decimal, error)
}

type Service struct {
	pool   *pgxpool.Pool
	client Client
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(pool *pgxpool.Pool, client Client, log zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		client: client,
		log:    log.With().Str("component", "rates").Logger(),
		now:    time.Now,
	}
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Rate implements pricing.RateSource for the USD reference currency.
func (s *Service) Rate(ctx context.Context, quote string, date time.Time) (decimal.Decimal, error) {
	conversion, err := s.conversionMap(ctx, pricing.ReferenceCurrency, date)
	if err != nil {
		return decimal.Decimal{}, err
	}
	rate, ok := conversion[quote]
	if !ok || rate.IsZero() {
		return decimal.Decimal{}, pricing.ErrRateUnavailable
	}
	return rate, nil
}

func (s *Service) conversionMap(ctx context.Context, base string, date time.Time) (map[string]decimal.Decimal, error) {
	day := dateKey(date)
	today := day == dateKey(s.now())

	cached, expiresAt, err := s.load(ctx, base, day)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		if !today || (expiresAt != nil && expiresAt.After(s.now())) {
			return cached, nil
		}
	}

	var fresh map[string]decimal.Decimal
	if today {
		fresh, err = s.client.Latest(ctx, base)
	} else {
		fresh, err = s.client.Historical(ctx, base, date)
	}
	if err != nil {
		if cached != nil {
			// Serve the stale row rather than failing the fragment.
			s.log.Warn().Err(err).Str("base", base).Str("date", day).Msg("rate refresh failed, serving cached row")
			return cached, nil
		}
		return nil, err
	}

	var expiry *time.Time
	if today {
		e := s.now().Add(refreshWindow)
		expiry = &e
	}
	if err := s.save(ctx, base, day, fresh, expiry); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *Service) load(ctx context.Context, base, day string) (map[string]decimal.Decimal, *time.Time, error) {
	var payload []byte
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, "select conversion, expires_at from currency_rates where base_currency = $1 and date = $2", base, day).
		Scan(&payload, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var conversion map[string]decimal.Decimal
	if err := json.Unmarshal(payload, &conversion); err != nil {
		return nil, nil, err
	}
	return conversion, expiresAt, nil
}

func (s *Service) save(ctx context.Context, base, day string, conversion map[string]decimal.Decimal, expiresAt *time.Time) error {
	payload, err := json.Marshal(conversion)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		insert into currency_rates (base_currency, date, conversion, expires_at, updated_at)
		values ($1,$2,$3,$4,$5)
		on conflict (base_currency, date) do update set conversion = $3, expires_at = $4, updated_at = $5`,
		base, day, payload, expiresAt, time.Now().UTC())
	return err
}
