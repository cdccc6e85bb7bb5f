// Package cachekey derives the canonical cache key for a DataQuery (§4.3)
// and its SHA-256-truncated L2 form (§4.6).
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/wxxb789/vprism/types"
)

// Canonical derives "<asset>|<market>|<sorted,comma-joined symbols>|<timeframe>|<start-ISO>|<end-ISO>".
// Missing fields render as "None". Symbol order never affects the result (P8).
func Canonical(q types.DataQuery) string {
	asset := string(q.Asset)
	if asset == "" {
		asset = "None"
	}
	market := q.Market
	if market == "" {
		market = "None"
	}

	symbols := make([]string, len(q.Symbols))
	copy(symbols, q.Symbols)
	sort.Strings(symbols)
	symbolPart := "None"
	if len(symbols) > 0 {
		symbolPart = strings.Join(symbols, ",")
	}

	timeframe := string(q.Timeframe)
	if timeframe == "" {
		timeframe = "None"
	}

	start := "None"
	if !q.Start.IsZero() {
		start = q.Start.UTC().Format(time.RFC3339)
	}
	end := "None"
	if !q.End.IsZero() {
		end = q.End.UTC().Format(time.RFC3339)
	}

	return strings.Join([]string{asset, market, symbolPart, timeframe, start, end}, "|")
}

// L2Key hashes the canonical form with SHA-256 and truncates to 16 hex chars.
func L2Key(q types.DataQuery) string {
	sum := sha256.Sum256([]byte(Canonical(q)))
	return hex.EncodeToString(sum[:])[:16]
}
