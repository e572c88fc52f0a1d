package score

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizlens/internal/domain"
)

const (
	bins     = 10
	binWidth = 10
)

// Value parses a raw score percentage. Numbers, decimals and numeric strings are accepted;
// nil, NaN, infinities and anything else are not.
func Value(v any) (float64, bool) {
	var f float64

	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case decimal.Decimal:
		f = x.InexactFloat64()
	case decimal.NullDecimal:
		if !x.Valid {
			return 0, false
		}
		f = x.Decimal.InexactFloat64()
	case json.Number:
		return Value(string(x))
	case []byte:
		return Value(string(x))
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Summarize counts, averages and bins the parseable score percentages. Values that do not parse
// are skipped entirely. The average is rounded to 2 decimals and null when nothing parsed.
func Summarize(values []any) domain.ScoreSummary {
	s := domain.ScoreSummary{
		Histogram: emptyHistogram(),
	}

	sum := decimal.Zero
	for _, v := range values {
		f, ok := Value(v)
		if !ok {
			continue
		}

		s.SubmissionsCount++
		sum = sum.Add(decimal.NewFromFloat(f))
		s.Histogram[bin(f)].Count++
	}

	if s.SubmissionsCount > 0 {
		s.AvgScorePct = decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(s.SubmissionsCount)).Round(2))
	}

	return s
}

// SummarizeScores summarizes the percentages of scores.
func SummarizeScores(scores []domain.Score) domain.ScoreSummary {
	values := make([]any, 0, len(scores))
	for _, sc := range scores {
		values = append(values, sc.ScorePct)
	}
	return Summarize(values)
}

func emptyHistogram() []domain.HistogramBin {
	h := make([]domain.HistogramBin, bins)
	for i := range h {
		h[i] = domain.HistogramBin{Start: i * binWidth, End: (i + 1) * binWidth}
	}
	return h
}

// bin clamps, so 100 lands in the last bin and out-of-range values in the edge bins.
func bin(f float64) int {
	return min(max(int(math.Floor(f/binWidth)), 0), bins-1)
}
