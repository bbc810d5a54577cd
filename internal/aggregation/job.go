package aggregation

import (
	"context"

	"github.com/rs/zerolog"
)

// SubAccountSource lists the sub-accounts to sweep.
type SubAccountSource interface {
	ListSubAccountIDs(ctx context.Context) ([]string, error)
}

// SweepJob consolidates closed records for every sub-account, scheduled
// nightly.
type SweepJob struct {
	Aggregator *Aggregator
	Accounts   SubAccountSource
	Log        zerolog.Logger
}

func (j SweepJob) Name() string { return "contract-aggregation" }

func (j SweepJob) Run(ctx context.Context) error {
	ids, err := j.Accounts.ListSubAccountIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := j.Aggregator.AggregateContracts(ctx, id); err != nil {
			j.Log.Error().Err(err).Str("sub_account", id).Msg("aggregation sweep failed")
		}
	}
	return nil
}
