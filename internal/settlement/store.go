package settlement

import (
	"context"

	"tradesync/internal/model"
	"tradesync/internal/types"
)

// Store is the journal the engine settles against. InTx runs fn inside
// one transaction: either every mutation fn performs becomes durable or
// none do.
type Store interface {
	InTx(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the record-granular view of the journal inside a
// transaction.
type StoreTx interface {
	// FindOpenInventory returns non-closed records for the security whose
	// opening direction matches openDirection, oldest open time first.
	FindOpenInventory(ctx context.Context, subAccountID, securityID string, openDirection types.Direction) ([]model.Trade, error)
	// FindByExecutionID returns the record referencing execID as its open
	// or close identifier, or nil.
	FindByExecutionID(ctx context.Context, subAccountID, execID string) (*model.Trade, error)
	// ListNotClosed returns every non-closed record for the security.
	ListNotClosed(ctx context.Context, subAccountID, securityID string) ([]model.Trade, error)
	Create(ctx context.Context, t model.Trade) (model.Trade, error)
	Update(ctx context.Context, t model.Trade) error
}

// ImageStore stores a captured entry/exit screenshot and returns its
// reference. The engine never inspects the reference.
type ImageStore interface {
	UploadBase64(ctx context.Context, data, fileName string) (string, error)
}
