// Package consistency implements the cross-source consistency validator of
// §4.10: align two DataResponses by date-truncated timestamp and compare
// OHLC columns within a relative-difference tolerance.
package consistency

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wxxb789/vprism/types"
)

const epsilon = 1e-9

// DefaultTolerance is §4.10's default relative-difference tolerance (1%).
const DefaultTolerance = 0.01

// Report is the §4.10 cross-source consistency report.
type Report struct {
	Total              int
	Matching           int
	Mismatching        int
	MissingInPrimary   int
	MissingInReference int
	AverageDiff        float64
	MaxDiff            float64
	ConsistencyPercent float64
	Issues             []string
}

// Check compares primary against reference, aligning rows by
// date-truncated timestamp, using tolerance as the maximum acceptable
// relative difference per column (0 selects DefaultTolerance).
func Check(primary, reference types.DataResponse, tolerance float64) Report {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	primaryByDate := indexByDate(primary.Data)
	referenceByDate := indexByDate(reference.Data)

	dates := make(map[string]bool)
	for d := range primaryByDate {
		dates[d] = true
	}
	for d := range referenceByDate {
		dates[d] = true
	}

	sortedDates := make([]string, 0, len(dates))
	for d := range dates {
		sortedDates = append(sortedDates, d)
	}
	sort.Strings(sortedDates)

	report := Report{}
	var diffSum float64
	var diffCount int

	for _, d := range sortedDates {
		p, inPrimary := primaryByDate[d]
		r, inReference := referenceByDate[d]

		switch {
		case !inPrimary:
			report.MissingInPrimary++
			report.Issues = append(report.Issues, fmt.Sprintf("%s: present in reference, missing in primary", d))
			continue
		case !inReference:
			report.MissingInReference++
			report.Issues = append(report.Issues, fmt.Sprintf("%s: present in primary, missing in reference", d))
			continue
		}

		report.Total++

		maxDiff := 0.0
		var mismatchedFields []string
		for _, col := range []struct {
			name    string
			primary float64
			ref     float64
		}{
			{"open", toFloat(p.Open), toFloat(r.Open)},
			{"high", toFloat(p.High), toFloat(r.High)},
			{"low", toFloat(p.Low), toFloat(r.Low)},
			{"close", toFloat(p.Close), toFloat(r.Close)},
		} {
			diff := relativeDiff(col.primary, col.ref)
			if diff > maxDiff {
				maxDiff = diff
			}
			if diff > tolerance {
				mismatchedFields = append(mismatchedFields, col.name)
			}
		}

		diffSum += maxDiff
		diffCount++
		if maxDiff > report.MaxDiff {
			report.MaxDiff = maxDiff
		}

		if len(mismatchedFields) > 0 {
			report.Mismatching++
			report.Issues = append(report.Issues, fmt.Sprintf("%s: mismatch in %v (max relative diff %.4f)", d, mismatchedFields, maxDiff))
		} else {
			report.Matching++
		}
	}

	if diffCount > 0 {
		report.AverageDiff = diffSum / float64(diffCount)
	}
	if report.Total > 0 {
		report.ConsistencyPercent = float64(report.Matching) / float64(report.Total) * 100
	}

	return report
}

func indexByDate(points []types.DataPoint) map[string]types.DataPoint {
	out := make(map[string]types.DataPoint, len(points))
	for _, p := range points {
		out[dateKey(p.Timestamp)] = p
	}
	return out
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func relativeDiff(a, b float64) float64 {
	denom := math.Max(math.Max(math.Abs(a), math.Abs(b)), epsilon)
	return math.Abs(a-b) / denom
}

func toFloat(d interface{ Float64() (float64, bool) }) float64 {
	v, _ := d.Float64()
	return v
}
