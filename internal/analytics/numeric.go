package analytics

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizlens/internal/domain"
)

// Missing is shown in place of a null statistic.
const Missing = "—"

// NumericRow is one row of the numeric stats view, or a question seeded with n = 0.
type NumericRow struct {
	StructureCode *string             `mapstructure:"structure_code"`
	QuestionID    string              `mapstructure:"question_id"`
	QuestionLabel string              `mapstructure:"question_label"`
	N             int64               `mapstructure:"n"`
	Total         decimal.NullDecimal `mapstructure:"total"`
	Min           decimal.NullDecimal `mapstructure:"min"`
	Max           decimal.NullDecimal `mapstructure:"max"`
}

// NumericStats merges the rows of every question into one stat for the population structure
// (nil for all of them): n and totals add up, min and max are taken over the rows and the
// average is recomputed from the merged total. A question whose rows all have n = 0 keeps null
// statistics.
func NumericStats(rows []NumericRow, structure *string) []domain.NumericStat {
	var (
		stats  []domain.NumericStat
		totals []decimal.Decimal
		index  = make(map[string]int)
	)

	for _, r := range rows {
		i, ok := index[r.QuestionID]
		if !ok {
			i = len(stats)
			index[r.QuestionID] = i
			stats = append(stats, domain.NumericStat{
				QuestionID:    r.QuestionID,
				Label:         r.QuestionLabel,
				StructureCode: structure,
			})
			totals = append(totals, decimal.Zero)
		}

		if r.N <= 0 {
			continue
		}

		st := &stats[i]
		st.N += r.N
		if r.Total.Valid {
			totals[i] = totals[i].Add(r.Total.Decimal)
		}
		st.Min = minNull(st.Min, r.Min)
		st.Max = maxNull(st.Max, r.Max)
	}

	for i := range stats {
		if stats[i].N > 0 {
			stats[i].Avg = decimal.NewNullDecimal(totals[i].Div(decimal.NewFromInt(stats[i].N)))
		}
	}

	if stats == nil {
		stats = []domain.NumericStat{}
	}

	slices.SortStableFunc(stats, func(a, b domain.NumericStat) int {
		return compareQuestions(a.Label, a.QuestionID, b.Label, b.QuestionID)
	})
	return stats
}

func minNull(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || (b.Valid && b.Decimal.LessThan(a.Decimal)) {
		return b
	}
	return a
}

func maxNull(a, b decimal.NullDecimal) decimal.NullDecimal {
	if !a.Valid || (b.Valid && b.Decimal.GreaterThan(a.Decimal)) {
		return b
	}
	return a
}

// FormatStat renders a statistic with 2 decimals, or Missing when it is null.
func FormatStat(d decimal.NullDecimal) string {
	if !d.Valid {
		return Missing
	}
	return d.Decimal.StringFixed(2)
}
