package instrument

import "github.com/shopspring/decimal"

// Static reference tables. These mirror the broker symbol universe the
// sync clients report against; unknown identifiers fall through to the
// futures tick table and, failing that, are treated as already monetary.

var currencies = []string{
	"USD", "EUR", "GBP", "JPY", "CHF", "AUD", "NZD", "CAD",
	"SEK", "NOK", "DKK", "SGD", "HKD", "MXN", "ZAR", "TRY",
	"PLN", "HUF", "CZK", "CNH", "THB", "ILS",
}

var cryptoCurrencies = []string{
	"BTC", "ETH", "LTC", "XRP", "BCH", "ADA", "DOT", "SOL",
	"DOGE", "LINK", "AVAX", "MATIC", "BNB", "USDT", "USDC",
}

var commodities = []string{
	"XAU", "XAG", "XPT", "XPD", "WTI", "BRENT", "NGAS",
}

// PipInfo describes the quotation increment and contract size used to
// convert a forex price delta into money.
type PipInfo struct {
	PipSize decimal.Decimal
	LotSize decimal.Decimal
}

const defaultPipKey = "Default"

// Pip table keys are matched against the decomposed pair members in
// pipKeys order; the first matching key wins, with "Default" as the
// fallback. Commodities outrank quote currencies so a metal pair keeps
// its contract size regardless of what it is quoted in.
var pipKeys = []string{"XAU", "XAG", "XPT", "WTI", "BRENT", "JPY", "HUF"}

var pipTable = map[string]PipInfo{
	"JPY":        {PipSize: decimal.NewFromFloat(0.01), LotSize: decimal.NewFromInt(100000)},
	"HUF":        {PipSize: decimal.NewFromFloat(0.01), LotSize: decimal.NewFromInt(100000)},
	"XAU":        {PipSize: decimal.NewFromFloat(0.01), LotSize: decimal.NewFromInt(100)},
	"XAG":        {PipSize: decimal.NewFromFloat(0.001), LotSize: decimal.NewFromInt(5000)},
	"XPT":        {PipSize: decimal.NewFromFloat(0.01), LotSize: decimal.NewFromInt(100)},
	"WTI":        {PipSize: decimal.NewFromFloat(0.01), LotSize: decimal.NewFromInt(1000)},
	"BRENT":      {PipSize: decimal.NewFromFloat(0.01), LotSize: decimal.NewFromInt(1000)},
	defaultPipKey: {PipSize: decimal.NewFromFloat(0.0001), LotSize: decimal.NewFromInt(100000)},
}

// TickInfo describes the minimum price increment and its dollar value for
// a futures contract family.
type TickInfo struct {
	TickSize  decimal.Decimal
	TickValue decimal.Decimal
}

// Tick table keyed by contract root; lookups strip the month/year suffix
// by longest-prefix matching, so "ESZ4" resolves through "ES".
var tickTable = map[string]TickInfo{
	"ES":  {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(12.5)},
	"MES": {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(1.25)},
	"NQ":  {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(5)},
	"MNQ": {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(0.5)},
	"YM":  {TickSize: decimal.NewFromInt(1), TickValue: decimal.NewFromFloat(5)},
	"MYM": {TickSize: decimal.NewFromInt(1), TickValue: decimal.NewFromFloat(0.5)},
	"RTY": {TickSize: decimal.NewFromFloat(0.1), TickValue: decimal.NewFromFloat(5)},
	"M2K": {TickSize: decimal.NewFromFloat(0.1), TickValue: decimal.NewFromFloat(0.5)},
	"CL":  {TickSize: decimal.NewFromFloat(0.01), TickValue: decimal.NewFromFloat(10)},
	"MCL": {TickSize: decimal.NewFromFloat(0.01), TickValue: decimal.NewFromFloat(1)},
	"QM":  {TickSize: decimal.NewFromFloat(0.025), TickValue: decimal.NewFromFloat(12.5)},
	"GC":  {TickSize: decimal.NewFromFloat(0.1), TickValue: decimal.NewFromFloat(10)},
	"MGC": {TickSize: decimal.NewFromFloat(0.1), TickValue: decimal.NewFromFloat(1)},
	"SI":  {TickSize: decimal.NewFromFloat(0.005), TickValue: decimal.NewFromFloat(25)},
	"HG":  {TickSize: decimal.NewFromFloat(0.0005), TickValue: decimal.NewFromFloat(12.5)},
	"NG":  {TickSize: decimal.NewFromFloat(0.001), TickValue: decimal.NewFromFloat(10)},
	"ZB":  {TickSize: decimal.NewFromFloat(0.03125), TickValue: decimal.NewFromFloat(31.25)},
	"ZN":  {TickSize: decimal.NewFromFloat(0.015625), TickValue: decimal.NewFromFloat(15.625)},
	"ZF":  {TickSize: decimal.NewFromFloat(0.0078125), TickValue: decimal.NewFromFloat(7.8125)},
	"ZC":  {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(12.5)},
	"ZS":  {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(12.5)},
	"ZW":  {TickSize: decimal.NewFromFloat(0.25), TickValue: decimal.NewFromFloat(12.5)},
	"6E":  {TickSize: decimal.NewFromFloat(0.00005), TickValue: decimal.NewFromFloat(6.25)},
	"6B":  {TickSize: decimal.NewFromFloat(0.0001), TickValue: decimal.NewFromFloat(6.25)},
	"6J":  {TickSize: decimal.NewFromFloat(0.0000005), TickValue: decimal.NewFromFloat(6.25)},
	"6A":  {TickSize: decimal.NewFromFloat(0.0001), TickValue: decimal.NewFromFloat(10)},
}

// Instrument groups used by commission rule fallback. Keyed by display
// name; values are the symbol roots belonging to the group.
var instrumentGroups = map[string][]string{
	"Equity Index":   {"ES", "MES", "NQ", "MNQ", "YM", "MYM", "RTY", "M2K"},
	"Energy":         {"CL", "MCL", "QM", "NG", "NGAS", "WTI", "BRENT"},
	"Metals":         {"GC", "MGC", "SI", "HG", "XAU", "XAG", "XPT", "XPD"},
	"Rates":          {"ZB", "ZN", "ZF"},
	"Agriculture":    {"ZC", "ZS", "ZW"},
	"Currencies":     {"6E", "6B", "6J", "6A"},
	"Forex Majors":   {"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "NZDUSD", "USDCAD"},
	"Crypto":         {"BTCUSD", "ETHUSD", "BTCUSDT", "ETHUSDT"},
}
