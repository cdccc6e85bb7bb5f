package vprism

import (
	"fmt"
	"time"

	"github.com/wxxb789/vprism/types"
)

// Query is a fluent builder producing a types.DataQuery, validating enum
// values and ISO-8601 dates at build time (§6's "optional convenience").
type Query struct {
	q    types.DataQuery
	errs []error
}

// NewQuery starts a fluent DataQuery builder.
func NewQuery() *Query {
	return &Query{}
}

// Asset sets the asset kind, validated against the known enum at Build time.
func (b *Query) Asset(kind types.AssetKind) *Query {
	b.q.Asset = kind
	return b
}

// Market sets the market code (e.g. "cn", "us").
func (b *Query) Market(market string) *Query {
	b.q.Market = market
	return b
}

// Symbols sets the symbol list.
func (b *Query) Symbols(symbols ...string) *Query {
	b.q.Symbols = symbols
	return b
}

// Timeframe sets the bar period, validated against the known enum at Build time.
func (b *Query) Timeframe(tf types.Timeframe) *Query {
	b.q.Timeframe = tf
	return b
}

// StartDate parses an ISO-8601 ("2006-01-02") date string for the range start.
func (b *Query) StartDate(iso8601 string) *Query {
	t, err := time.Parse("2006-01-02", iso8601)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("start date %q: %w", iso8601, err))
		return b
	}
	b.q.Start = t
	return b
}

// EndDate parses an ISO-8601 ("2006-01-02") date string for the range end.
func (b *Query) EndDate(iso8601 string) *Query {
	t, err := time.Parse("2006-01-02", iso8601)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("end date %q: %w", iso8601, err))
		return b
	}
	b.q.End = t
	return b
}

// ProviderHint records a preferred provider name on the query. The router
// does not read it; provider selection ignores the hint.
func (b *Query) ProviderHint(name string) *Query {
	b.q.ProviderHint = name
	return b
}

// Limit caps the returned record count.
func (b *Query) Limit(n int) *Query {
	b.q.Limit = n
	return b
}

// Fields restricts which columns the caller wants back.
func (b *Query) Fields(fields ...string) *Query {
	b.q.Fields = fields
	return b
}

var validAssetKinds = map[types.AssetKind]bool{
	types.AssetStock: true, types.AssetBond: true, types.AssetFund: true,
	types.AssetFuture: true, types.AssetOption: true, types.AssetCrypto: true,
	types.AssetCurrency: true,
}

var validTimeframes = map[types.Timeframe]bool{
	types.TimeframeTick: true, types.Timeframe1Minute: true, types.Timeframe5Minute: true,
	types.Timeframe1Hour: true, types.TimeframeDaily: true, types.TimeframeWeekly: true,
	types.TimeframeMonthly: true,
}

// Build validates the accumulated fields and returns the DataQuery, or the
// first validation error encountered.
func (b *Query) Build() (types.DataQuery, error) {
	if len(b.errs) > 0 {
		return types.DataQuery{}, b.errs[0]
	}
	if b.q.Asset != "" && !validAssetKinds[b.q.Asset] {
		return types.DataQuery{}, fmt.Errorf("unknown asset kind %q", b.q.Asset)
	}
	if b.q.Timeframe != "" && !validTimeframes[b.q.Timeframe] {
		return types.DataQuery{}, fmt.Errorf("unknown timeframe %q", b.q.Timeframe)
	}
	if len(b.q.Symbols) == 0 {
		return types.DataQuery{}, fmt.Errorf("query requires at least one symbol")
	}
	if !b.q.Start.IsZero() && !b.q.End.IsZero() && b.q.Start.After(b.q.End) {
		return types.DataQuery{}, fmt.Errorf("start date %s is after end date %s", b.q.Start, b.q.End)
	}
	return b.q, nil
}
