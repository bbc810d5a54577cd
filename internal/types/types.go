package types

type Side string

type Direction string

type TradeStatus string

type AssetType string

type PairKind string

type CommissionMode string

type CommissionApply string

type RiskLevelType string

type CostingMode string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

const (
	DirectionBuy  Direction = "Buy"
	DirectionSell Direction = "Sell"
)

const (
	TradeStatusOpen    TradeStatus = "Open"
	TradeStatusPartial TradeStatus = "Partial"
	TradeStatusClosed  TradeStatus = "Closed"
)

const (
	AssetTypeForex   AssetType = "forex"
	AssetTypeFutures AssetType = "futures"
)

const (
	PairKindNone         PairKind = "none"
	PairKindCurrencyPair PairKind = "currency_pair"
	PairKindCryptoPair   PairKind = "crypto_pair"
	PairKindCommodity    PairKind = "commodity"
)

const (
	CommissionModeFlat        CommissionMode = "flat"
	CommissionModePerContract CommissionMode = "per_contract"
	CommissionModePerShare    CommissionMode = "per_share"
)

const (
	CommissionApplyAll   CommissionApply = "on_all_executions"
	CommissionApplyEntry CommissionApply = "on_entry_executions"
	CommissionApplyExit  CommissionApply = "on_exit_executions"
)

const (
	RiskLevelAuto         RiskLevelType = "auto"
	RiskLevelStopLoss     RiskLevelType = "StopLoss"
	RiskLevelProfitTarget RiskLevelType = "ProfitTarget"
)

const (
	CostingModeFIFO            CostingMode = "fifo"
	CostingModeWeightedAverage CostingMode = "weighted_average"
)

// SideForDirection maps an incoming fill direction to the position side it opens.
func SideForDirection(d Direction) Side {
	if d == DirectionBuy {
		return SideLong
	}
	return SideShort
}

// Opposite returns the direction that settles against d.
func (d Direction) Opposite() Direction {
	if d == DirectionBuy {
		return DirectionSell
	}
	return DirectionBuy
}
