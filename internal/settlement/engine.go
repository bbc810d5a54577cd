// Package settlement matches incoming fills against resting inventory,
// books realized PnL and commission, and maintains the journal's
// accounting invariants under partial, duplicate and oversized fills.
package settlement

import (
	"context"
	"fmt"
	"time"

	"tradesync/internal/commission"
	"tradesync/internal/instrument"
	"tradesync/internal/model"
	"tradesync/internal/pricing"
	"tradesync/internal/types"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type Engine struct {
	store      Store
	commission *commission.Resolver
	pricing    *pricing.Normalizer
	images     ImageStore
	locks      *PairLocker
	log        zerolog.Logger
	now        func() time.Time
}

func NewEngine(store Store, resolver *commission.Resolver, normalizer *pricing.Normalizer, images ImageStore, locks *PairLocker, log zerolog.Logger) *Engine {
	return &Engine{
		store:      store,
		commission: resolver,
		pricing:    normalizer,
		images:     images,
		locks:      locks,
		log:        log.With().Str("component", "settlement").Logger(),
		now:        time.Now,
	}
}

// Fill is one reported execution to settle into the journal.
type Fill struct {
	SubAccount   model.SubAccount
	SecurityID   string
	Direction    types.Direction
	Time         time.Time
	Price        decimal.Decimal
	Volume       decimal.Decimal
	Commission   decimal.Decimal // explicit override; zero means resolve by rule
	ExecutionID  string
	StopLoss     decimal.Decimal
	ProfitTarget decimal.Decimal
	Image        string
	CaptureEntry bool
	CaptureExit  bool
}

// ProcessFill settles one fill and returns every journal record it
// created or mutated, in settlement order. The whole fill commits
// atomically: a duplicate execution id or an unpriceable forex fragment
// leaves the journal unchanged.
func (e *Engine) ProcessFill(ctx context.Context, f Fill) ([]model.Trade, error) {
	if f.SubAccount.ID == "" {
		return nil, ErrUnresolvedAccount
	}
	securityID := instrument.Normalize(f.SecurityID)
	if securityID == "" {
		return nil, fmt.Errorf("security id required")
	}
	if f.Direction != types.DirectionBuy && f.Direction != types.DirectionSell {
		return nil, fmt.Errorf("invalid direction %q", f.Direction)
	}
	if f.Volume.IsNegative() {
		return nil, fmt.Errorf("volume must not be negative")
	}
	if f.Time.IsZero() {
		f.Time = e.now()
	}

	unlock := e.locks.Lock(f.SubAccount.ID, securityID)
	defer unlock()

	var touched []model.Trade
	err := e.store.InTx(ctx, func(tx StoreTx) error {
		if f.ExecutionID != "" {
			existing, err := tx.FindByExecutionID(ctx, f.SubAccount.ID, f.ExecutionID)
			if err != nil {
				return err
			}
			if existing != nil {
				return ErrDuplicateExecution
			}
		}
		if f.Volume.IsZero() {
			return nil
		}

		volumeToSettle := f.Volume.Abs()
		settle := true
		for {
			var candidates []model.Trade
			if settle {
				var err error
				candidates, err = tx.FindOpenInventory(ctx, f.SubAccount.ID, securityID, f.Direction.Opposite())
				if err != nil {
					return err
				}
			}
			if !settle || len(candidates) == 0 {
				created, err := e.openRecord(ctx, tx, f, securityID, volumeToSettle)
				if err != nil {
					return err
				}
				touched = append(touched, created)
				return nil
			}

			if f.SubAccount.CostingMode == types.CostingModeWeightedAverage {
				equalizeOpenPrices(candidates)
			}

			for i := range candidates {
				if volumeToSettle.IsZero() {
					break
				}
				updated, settled, err := e.settleAgainst(ctx, tx, f, securityID, candidates[i], volumeToSettle)
				if err != nil {
					return err
				}
				if settled.IsZero() {
					continue
				}
				touched = append(touched, updated)
				volumeToSettle = volumeToSettle.Sub(settled)
			}

			if volumeToSettle.IsZero() {
				return nil
			}
			// Oversized fill: the residual opens a fresh position in the
			// fill's own direction.
			settle = false
		}
	})
	if err != nil {
		return nil, err
	}

	e.log.Info().
		Str("sub_account", f.SubAccount.ID).
		Str("security", securityID).
		Str("direction", string(f.Direction)).
		Str("volume", f.Volume.String()).
		Int("records", len(touched)).
		Msg("fill settled")
	return touched, nil
}

func (e *Engine) openRecord(ctx context.Context, tx StoreTx, f Fill, securityID string, volume decimal.Decimal) (model.Trade, error) {
	side := types.SideForDirection(f.Direction)
	openVolume := volume
	if side == types.SideShort {
		openVolume = volume.Neg()
	}

	entryCommission, err := e.commission.Calculate(ctx, securityID, f.SubAccount.ID, volume, f.Commission, commission.PhaseEntry)
	if err != nil {
		return model.Trade{}, err
	}

	openID := f.ExecutionID
	if openID == "" {
		openID = uuid.NewString()
	}

	rec := model.Trade{
		SubAccountID: f.SubAccount.ID,
		SecurityID:   securityID,
		Side:         side,
		Status:       types.TradeStatusOpen,
		OpenID:       openID,
		OpenVolume:   openVolume,
		OpenPrice:    f.Price,
		Commission:   entryCommission,
		StopLoss:     f.StopLoss,
		ProfitTarget: f.ProfitTarget,
		OpenTime:     f.Time,
		Contracts:    []model.Fragment{},
	}
	if f.CaptureEntry && f.Image != "" && e.images != nil {
		ref, err := e.images.UploadBase64(ctx, f.Image, "entry.png")
		if err != nil {
			e.log.Warn().Err(err).Str("security", securityID).Msg("entry image upload failed")
		} else {
			rec.EntryImage = ref
		}
	}
	return tx.Create(ctx, rec)
}

// settleAgainst closes up to volumeToSettle of one resting candidate and
// returns the updated record and the settled size.
func (e *Engine) settleAgainst(ctx context.Context, tx StoreTx, f Fill, securityID string, cand model.Trade, volumeToSettle decimal.Decimal) (model.Trade, decimal.Decimal, error) {
	remaining := cand.RemainingVolume()
	if remaining.IsZero() {
		return cand, decimal.Decimal{}, nil
	}
	settled := decimal.Min(remaining, volumeToSettle)

	settledSigned := settled
	if cand.Side == types.SideLong {
		settledSigned = settled.Neg()
	}

	exitCommission, err := e.commission.Calculate(ctx, securityID, f.SubAccount.ID, settled, f.Commission, commission.PhaseExit)
	if err != nil {
		return cand, decimal.Decimal{}, err
	}

	delta := e.pricing.Delta(securityID, cand.OpenPrice, f.Price, cand.Side)
	gross, err := e.pricing.AdjustedPrice(ctx, securityID, delta, f.Time, settled)
	if err != nil {
		return cand, decimal.Decimal{}, err
	}

	// The record's entry commission is attributed to its first settling
	// fragment; later fragments only carry their own exit charge.
	fragCommission := exitCommission
	if len(cand.Contracts) == 0 {
		fragCommission = fragCommission.Add(cand.Commission)
	}
	pnl := gross.Sub(fragCommission)

	closeID := f.ExecutionID
	if closeID == "" {
		closeID = uuid.NewString()
	}

	cand.CloseID = closeID
	cand.ClosePrice = runningClosePrice(cand, f.Price, settled)
	cand.CloseVolume = cand.CloseVolume.Add(settledSigned)
	cand.Commission = cand.Commission.Add(exitCommission)
	cand.PnL = cand.PnL.Add(pnl)
	cand.Contracts = append(cand.Contracts, model.Fragment{
		OpenTime:    cand.OpenTime,
		CloseTime:   f.Time,
		OpenPrice:   cand.OpenPrice,
		ClosePrice:  f.Price,
		OpenVolume:  settledSigned.Neg(),
		CloseVolume: settledSigned,
		PnL:         pnl,
	})

	if instrument.AssetTypeOf(securityID) == types.AssetTypeForex {
		rate, err := e.pricing.ExchangeRate(ctx, securityID, f.Time)
		if err != nil {
			return cand, decimal.Decimal{}, err
		}
		cand.ExchangeRate = rate
	}

	cand.Status = cand.StatusFromVolumes()
	if cand.Status == types.TradeStatusClosed {
		closeTime := f.Time
		cand.CloseTime = &closeTime
		if f.CaptureExit && f.Image != "" && e.images != nil {
			ref, err := e.images.UploadBase64(ctx, f.Image, "exit.png")
			if err != nil {
				e.log.Warn().Err(err).Str("security", securityID).Msg("exit image upload failed")
			} else {
				cand.ExitImage = ref
			}
		}
	}

	if err := tx.Update(ctx, cand); err != nil {
		return cand, decimal.Decimal{}, err
	}
	return cand, settled, nil
}

// runningClosePrice folds the new fragment into the volume-weighted
// average of the record's prior close fragments.
func runningClosePrice(t model.Trade, price, volume decimal.Decimal) decimal.Decimal {
	prevClose := t.CloseVolume.Abs()
	if prevClose.IsZero() {
		return price
	}
	total := prevClose.Add(volume)
	return prevClose.Mul(t.ClosePrice).Add(volume.Mul(price)).Div(total)
}

// equalizeOpenPrices recomputes every candidate's open price as the
// volume-weighted average of the set's original open prices. The
// equalized prices live only for this settlement call; untouched
// candidates are not persisted with them.
func equalizeOpenPrices(candidates []model.Trade) {
	totalVolume := decimal.Decimal{}
	weighted := decimal.Decimal{}
	for _, c := range candidates {
		v := c.OpenVolume.Abs()
		totalVolume = totalVolume.Add(v)
		weighted = weighted.Add(c.OpenPrice.Mul(v))
	}
	if totalVolume.IsZero() {
		return
	}
	avg := weighted.Div(totalVolume)
	for i := range candidates {
		candidates[i].OpenPrice = avg
	}
}
