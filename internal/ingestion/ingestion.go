// Package ingestion implements the raw-row validation, all-or-nothing commit
// rule, per-group quality scoring, and IQR outlier detection of §4.9, in a
// table-driven ordered-check style over whole batches, since the commit rule
// needs every issue before deciding written=0 vs all rows inserted.
package ingestion

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wxxb789/vprism/internal/metrics"
	"github.com/wxxb789/vprism/internal/repository"
	"github.com/wxxb789/vprism/types"
)

// Result is the IngestionResult of §4.9.
type Result struct {
	WrittenRows  int
	RejectedRows int
	BatchID      string
	DurationMs   float64
	Issues       []types.ValidationIssue
}

// Pipeline validates, scores, and persists batches of RawRecord.
type Pipeline struct {
	repo    *repository.Repository
	metrics *metrics.Metrics
}

// New builds a Pipeline backed by repo.
func New(repo *repository.Repository) *Pipeline {
	return &Pipeline{repo: repo}
}

// WithMetrics attaches a metrics.Metrics instance for the rejected-rows
// counter. Optional; a Pipeline without metrics behaves identically.
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

type symbolMarket struct{ symbol, market string }

// Ingest runs the §4.9 validation pass over records (all assumed to share
// tf), and — if the batch is clean — commits them to the repository and
// upserts one data_quality row per (symbol, market) group.
func (p *Pipeline) Ingest(records []types.RawRecord, tf types.Timeframe, batchID string) (Result, error) {
	start := time.Now()
	result := Result{BatchID: batchID}

	issues := validate(records)
	result.Issues = issues

	if len(issues) > 0 {
		result.RejectedRows = len(records)
		if p.metrics != nil {
			p.metrics.IngestRejected.Add(float64(len(records)))
		}
		result.DurationMs = float64(time.Since(start).Microseconds()) / 1000
		return result, nil
	}

	groups := make(map[symbolMarket][]types.RawRecord)
	var order []symbolMarket
	for _, r := range records {
		key := symbolMarket{r.Symbol, r.Market}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	var toWrite []types.DataRecord
	for _, r := range records {
		toWrite = append(toWrite, types.DataRecord{
			Symbol: r.Symbol, Market: r.Market, Timestamp: r.Timestamp,
			Open: *r.Open, High: *r.High, Low: *r.Low, Close: *r.Close,
			Volume: r.Volume, Timeframe: tf, Provider: r.SourceSystem,
		})
	}
	if err := p.repo.SaveOHLCV(toWrite); err != nil {
		return Result{}, fmt.Errorf("commit ingestion batch %s: %w", batchID, err)
	}

	for _, key := range order {
		group := groups[key]
		score := scoreGroup(group)
		start := group[0].Timestamp
		end := group[0].Timestamp
		for _, r := range group {
			if r.Timestamp.Before(start) {
				start = r.Timestamp
			}
			if r.Timestamp.After(end) {
				end = r.Timestamp
			}
		}
		if err := p.repo.SaveQuality(key.symbol, key.market, start, end, score); err != nil {
			return Result{}, fmt.Errorf("save quality for %s/%s: %w", key.symbol, key.market, err)
		}
	}

	result.WrittenRows = len(records)
	result.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	return result, nil
}

// validate runs the §4.9 checks in order: monotonicity, future timestamps,
// duplicates, negative volume, null prices, OHLC relationships (low, open and
// close each against high). Every issue found across the whole batch is
// returned; an empty result means the batch commits in full.
func validate(records []types.RawRecord) []types.ValidationIssue {
	return validateAt(records, time.Now())
}

// validateAt runs validate's checks against an explicit reference time so
// "timestamp in the future" (I1) is deterministic in tests.
func validateAt(records []types.RawRecord, now time.Time) []types.ValidationIssue {
	var issues []types.ValidationIssue

	lastTS := make(map[symbolMarket]time.Time)
	seen := make(map[string]bool)

	for _, r := range records {
		key := symbolMarket{r.Symbol, r.Market}

		if last, ok := lastTS[key]; ok && r.Timestamp.Before(last) {
			issues = append(issues, types.ValidationIssue{
				Field: "timestamp", Code: types.IssueNonMonotonic,
				Message: fmt.Sprintf("%s/%s: timestamp %s precedes prior %s", r.Symbol, r.Market, r.Timestamp, last),
			})
		}
		lastTS[key] = r.Timestamp

		if r.Timestamp.After(now) {
			issues = append(issues, types.ValidationIssue{
				Field: "timestamp", Code: types.IssueFutureStamp,
				Message: fmt.Sprintf("%s/%s: timestamp %s is in the future", r.Symbol, r.Market, r.Timestamp),
			})
		}

		dupKey := fmt.Sprintf("%s|%s|%s", r.Symbol, r.Market, r.Timestamp)
		if seen[dupKey] {
			issues = append(issues, types.ValidationIssue{
				Field: "timestamp", Code: types.IssueDuplicateRow,
				Message: fmt.Sprintf("%s/%s: duplicate row at %s", r.Symbol, r.Market, r.Timestamp),
			})
		}
		seen[dupKey] = true

		if r.Volume.IsNegative() {
			issues = append(issues, types.ValidationIssue{
				Field: "volume", Code: types.IssueNegativeVol,
				Message: fmt.Sprintf("%s/%s at %s: negative volume", r.Symbol, r.Market, r.Timestamp),
			})
		}

		if r.Open == nil || r.High == nil || r.Low == nil || r.Close == nil {
			issues = append(issues, types.ValidationIssue{
				Field: "price", Code: types.IssueNullPrice,
				Message: fmt.Sprintf("%s/%s at %s: null OHLC price", r.Symbol, r.Market, r.Timestamp),
			})
			continue
		}

		if r.Low.GreaterThan(*r.High) {
			issues = append(issues, types.ValidationIssue{
				Field: "low", Code: types.IssueLowGTHigh,
				Message: fmt.Sprintf("%s/%s at %s: low > high", r.Symbol, r.Market, r.Timestamp),
			})
		}
		if r.Open.GreaterThan(*r.High) {
			issues = append(issues, types.ValidationIssue{
				Field: "open", Code: types.IssueOpenGTHigh,
				Message: fmt.Sprintf("%s/%s at %s: open > high", r.Symbol, r.Market, r.Timestamp),
			})
		}
		if r.Close.GreaterThan(*r.High) {
			issues = append(issues, types.ValidationIssue{
				Field: "close", Code: types.IssueCloseGTHigh,
				Message: fmt.Sprintf("%s/%s at %s: close > high", r.Symbol, r.Market, r.Timestamp),
			})
		}
	}

	return issues
}

// scoreGroup computes a QualityScore for one (symbol, market) group per
// §4.9's weighted mean. completeness counts rows with a null price and
// accuracy counts rows failing the OHLC-against-high checks — the same
// conditions validate rejects — so on batches that already passed validate
// both are 1.
func scoreGroup(group []types.RawRecord) types.QualityScore {
	total := len(group)
	if total == 0 {
		return types.QualityScore{Level: types.QualityUnacceptable}
	}

	missing := 0
	anomalies := 0
	for _, r := range group {
		if r.Open == nil || r.High == nil || r.Low == nil || r.Close == nil {
			missing++
			continue
		}
		if r.Low.GreaterThan(*r.High) || r.Open.GreaterThan(*r.High) || r.Close.GreaterThan(*r.High) {
			anomalies++
		}
	}

	completeness := 1 - float64(missing)/float64(total)
	accuracy := 1 - float64(anomalies)/float64(total)
	consistency := 1.0 // placeholder; extended by the consistency validator

	// Timeliness isn't observed at this layer (no arrival latency signal),
	// so the weighted mean renormalizes over the other three components'
	// combined weight of 0.8, per §4.9's "mean of available components".
	overall := (completeness*0.4 + accuracy*0.3 + consistency*0.1) / 0.8

	return types.QualityScore{
		Completeness: completeness,
		Accuracy:     accuracy,
		Consistency:  consistency,
		Overall:      overall,
		Level:        types.LevelFor(overall),
	}
}

// DetectOutliers flags rows whose value in column falls outside
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR], per §4.9. column extracts the numeric field
// to test from each record (e.g. closing price); the returned indices refer
// to positions in records.
func DetectOutliers(records []types.DataRecord, column func(types.DataRecord) decimal.Decimal) []int {
	n := len(records)
	if n < 4 {
		return nil
	}

	values := make([]float64, n)
	for i, r := range records {
		v, _ := column(r).Float64()
		values[i] = v
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 0.25)
	q3 := percentile(sorted, 0.75)
	iqr := q3 - q1
	lower := q1 - 1.5*iqr
	upper := q3 + 1.5*iqr

	var flagged []int
	for i, v := range values {
		if v < lower || v > upper {
			flagged = append(flagged, i)
		}
	}
	return flagged
}

// percentile uses linear interpolation between closest ranks over an
// already-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := p * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
