package analytics

import (
	"slices"
	"time"

	"github.com/victornm/quizlens/internal/domain"
)

// TextRow is one row of the latest text answers view.
type TextRow struct {
	StructureCode *string   `mapstructure:"structure_code"`
	QuestionID    string    `mapstructure:"question_id"`
	QuestionLabel string    `mapstructure:"question_label"`
	Value         *string   `mapstructure:"value_text"`
	CreateTime    time.Time `mapstructure:"created_at"`
}

// TextSamples returns at most limit samples, newest first.
func TextSamples(rows []TextRow, limit int) []domain.TextSample {
	samples := make([]domain.TextSample, 0, len(rows))
	for _, r := range rows {
		samples = append(samples, domain.TextSample{
			QuestionID:    r.QuestionID,
			Label:         r.QuestionLabel,
			StructureCode: r.StructureCode,
			Value:         r.Value,
			CreateTime:    r.CreateTime,
		})
	}

	slices.SortStableFunc(samples, func(a, b domain.TextSample) int {
		return b.CreateTime.Compare(a.CreateTime)
	})

	if limit < 0 {
		limit = 0
	}
	if len(samples) > limit {
		samples = samples[:limit]
	}
	return samples
}
