// Package instrument classifies security identifiers into asset classes
// and resolves the static pip and tick reference tables. It is pure and
// has no failure mode: identifiers that do not decompose into a known
// pair are treated as futures.
package instrument

import (
	"strings"

	"tradesync/internal/types"
)

// Normalize upper-cases a security identifier.
func Normalize(securityID string) string {
	return strings.ToUpper(strings.TrimSpace(securityID))
}

// NormalizeFutures additionally strips the leading "#" some platforms
// prefix onto futures symbols.
func NormalizeFutures(securityID string) string {
	return strings.TrimPrefix(Normalize(securityID), "#")
}

func inList(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func knownAsset(v string) bool {
	return inList(currencies, v) || inList(cryptoCurrencies, v) || inList(commodities, v)
}

// CurrencyPair decomposes a symbol into its pair members. Resolution
// order: 6-character base+quote split, whole-symbol commodity, then
// incremental substring split. Returns nil when nothing matches.
func CurrencyPair(securityID string) []string {
	symbol := Normalize(securityID)
	if symbol == "" {
		return nil
	}

	if len(symbol) == 6 {
		base := symbol[:3]
		quote := symbol[3:]
		if knownAsset(base) && knownAsset(quote) {
			return []string{base, quote}
		}
	}

	if inList(commodities, symbol) {
		return []string{symbol}
	}

	for i := 1; i < len(symbol); i++ {
		base := symbol[:i]
		quote := symbol[i:]
		if knownAsset(base) && knownAsset(quote) {
			return []string{base, quote}
		}
	}

	return nil
}

// PairKind classifies a decomposed pair. Crypto membership is checked
// before commodities so BTC-quoted metal symbols count as crypto pairs.
func PairKindOf(pair []string) types.PairKind {
	switch len(pair) {
	case 1:
		if inList(commodities, pair[0]) {
			return types.PairKindCommodity
		}
		return types.PairKindNone
	case 2:
		if inList(cryptoCurrencies, pair[0]) || inList(cryptoCurrencies, pair[1]) {
			return types.PairKindCryptoPair
		}
		if inList(commodities, pair[0]) || inList(commodities, pair[1]) {
			return types.PairKindCommodity
		}
		if inList(currencies, pair[0]) && inList(currencies, pair[1]) {
			return types.PairKindCurrencyPair
		}
	}
	return types.PairKindNone
}

// AssetType determines whether a security settles as forex or futures.
// Unmatched identifiers default to futures.
func AssetTypeOf(securityID string) types.AssetType {
	if len(CurrencyPair(securityID)) > 0 {
		return types.AssetTypeForex
	}
	return types.AssetTypeFutures
}

// PipInfoFor resolves pip data for a decomposed pair: the first pipKeys
// entry contained in the pair wins, with the Default entry as fallback.
func PipInfoFor(pair []string) PipInfo {
	for _, key := range pipKeys {
		if inList(pair, key) {
			return pipTable[key]
		}
	}
	return pipTable[defaultPipKey]
}

// TickInfoFor resolves tick data by longest-prefix match over the
// normalized, "#"-stripped identifier. ok is false when no contract root
// matches.
func TickInfoFor(securityID string) (TickInfo, bool) {
	symbol := NormalizeFutures(securityID)
	var bestKey string
	for key := range tickTable {
		if strings.HasPrefix(symbol, key) && len(key) > len(bestKey) {
			bestKey = key
		}
	}
	if bestKey == "" {
		return TickInfo{}, false
	}
	return tickTable[bestKey], true
}

// InstrumentGroup returns the commission instrument group a security
// belongs to, or "" when it is not part of any group. Futures match on
// their 2- and 3-character roots, forex on the exact pair symbol.
func InstrumentGroup(securityID string) string {
	symbol := NormalizeFutures(securityID)
	assetType := AssetTypeOf(securityID)
	for group, symbols := range instrumentGroups {
		for _, member := range symbols {
			if assetType == types.AssetTypeForex {
				if member == symbol {
					return group
				}
			} else if len(symbol) >= 2 && (strings.HasPrefix(member, symbol[:2]) ||
				(len(symbol) >= 3 && strings.HasPrefix(member, symbol[:3]))) {
				return group
			}
		}
	}
	return ""
}
