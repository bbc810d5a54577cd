package model

import (
	"time"

	"tradesync/internal/types"

	"github.com/shopspring/decimal"
)

// Fragment is an immutable snapshot of one settling event appended to a
// trade's contract list.
type Fragment struct {
	OpenTime    time.Time       `json:"open_time"`
	CloseTime   time.Time       `json:"close_time"`
	OpenPrice   decimal.Decimal `json:"open_price"`
	ClosePrice  decimal.Decimal `json:"close_price"`
	OpenVolume  decimal.Decimal `json:"open_volume"`
	CloseVolume decimal.Decimal `json:"close_volume"`
	PnL         decimal.Decimal `json:"pnl"`
}

// Trade is the unit of inventory: an open, partially closed or closed
// position in a sub-account's journal. OpenVolume is signed by side
// (positive for LONG), CloseVolume accumulates with the opposite sign as
// fills settle against the record.
type Trade struct {
	ID           string            `json:"id"`
	SubAccountID string            `json:"sub_account_id"`
	SecurityID   string            `json:"security_id"`
	Side         types.Side        `json:"side"`
	Status       types.TradeStatus `json:"status"`
	OpenID       string            `json:"open_id"`
	CloseID      string            `json:"close_id"`
	OpenVolume   decimal.Decimal   `json:"open_volume"`
	CloseVolume  decimal.Decimal   `json:"close_volume"`
	OpenPrice    decimal.Decimal   `json:"open_price"`
	ClosePrice   decimal.Decimal   `json:"close_price"`
	Commission   decimal.Decimal   `json:"commission"`
	PnL          decimal.Decimal   `json:"pnl"`
	StopLoss     decimal.Decimal   `json:"stop_loss"`
	ProfitTarget decimal.Decimal   `json:"profit_target"`
	ExchangeRate decimal.Decimal   `json:"exchange_rate,omitempty"`
	OpenTime     time.Time         `json:"open_time"`
	CloseTime    *time.Time        `json:"close_time,omitempty"`
	EntryImage   string            `json:"entry_image,omitempty"`
	ExitImage    string            `json:"exit_image,omitempty"`
	Contracts    []Fragment        `json:"contracts"`
}

// RemainingVolume is the unsigned open size still available to settle.
func (t Trade) RemainingVolume() decimal.Decimal {
	return t.OpenVolume.Add(t.CloseVolume).Abs()
}

// StatusFromVolumes derives the record status purely from its volumes.
func (t Trade) StatusFromVolumes() types.TradeStatus {
	if t.RemainingVolume().IsZero() {
		return types.TradeStatusClosed
	}
	if t.CloseVolume.IsZero() {
		return types.TradeStatusOpen
	}
	return types.TradeStatusPartial
}

// GrossPnL is the realized PnL before commission.
func (t Trade) GrossPnL() decimal.Decimal {
	return t.PnL.Add(t.Commission.Abs())
}

// CommissionRule is a sub-account scoped fee rule resolved by the
// commission resolver. Symbol and Instrument may hold the wildcard "All".
type CommissionRule struct {
	ID           string                `json:"id"`
	SubAccountID string                `json:"sub_account_id"`
	Instrument   string                `json:"instrument"`
	Symbol       string                `json:"symbol"`
	Apply        types.CommissionApply `json:"apply"`
	Mode         types.CommissionMode  `json:"mode"`
	Commission   decimal.Decimal       `json:"commission"`
	Fee          decimal.Decimal       `json:"fee"`
}

// SubAccount is a user's trading sub-account; CostingMode selects FIFO or
// weighted-average entry-price equalization during settlement.
type SubAccount struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	TimeZone    string            `json:"time_zone"`
	CostingMode types.CostingMode `json:"costing_mode"`
}

// SubAccountReference links an external brokerage account to a
// sub-account. AuthKey is the broker access token used by the feed.
type SubAccountReference struct {
	ID           string    `json:"id"`
	SubAccountID string    `json:"sub_account_id"`
	AccountID    string    `json:"account_id"`
	AlternateID  string    `json:"alternate_id,omitempty"`
	Broker       string    `json:"broker"`
	AuthKey      string    `json:"auth_key"`
	Status       string    `json:"status"`
	BrokerUserID int64     `json:"broker_user_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// User is the owner of one or more sub-accounts.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	TimeZone string `json:"time_zone"`
}
