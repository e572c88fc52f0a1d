package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QType is the question type tag. It decides which validation and aggregation path applies.
type QType string

const (
	QTypeSingle   QType = "single"
	QTypeMultiple QType = "multiple"
	QTypeText     QType = "text"
	QTypeNumber   QType = "number"
)

func (t QType) Valid() bool {
	switch t {
	case QTypeSingle, QTypeMultiple, QTypeText, QTypeNumber:
		return true
	}
	return false
}

// HasOptions reports whether questions of this type carry answer options.
func (t QType) HasOptions() bool {
	return t == QTypeSingle || t == QTypeMultiple
}

type Quiz struct {
	QuizID      string  `mapstructure:"id" json:"id"`
	Title       string  `mapstructure:"title" json:"title"`
	Description *string `mapstructure:"description" json:"description"`
	Published   bool    `mapstructure:"is_published" json:"is_published"`
}

// Question belongs to a quiz. Order is the 1-based position inside the quiz.
type Question struct {
	QuestionID string `mapstructure:"id" json:"id"`
	QuizID     string `mapstructure:"quiz_id" json:"quiz_id"`
	Label      string `mapstructure:"label" json:"label"`
	QType      QType  `mapstructure:"qtype" json:"qtype"`
	Required   bool   `mapstructure:"required" json:"required"`
	Order      int    `mapstructure:"order" json:"order"`
}

// Option is a persisted answer option of a question.
type Option struct {
	OptionID   string `mapstructure:"id" json:"id"`
	QuestionID string `mapstructure:"question_id" json:"question_id"`
	Text       string `mapstructure:"text" json:"text"`
	Correct    bool   `mapstructure:"correct" json:"correct"`
	Order      int    `mapstructure:"order" json:"order"`
}

// DraftOption is an option as edited by an operator. An empty OptionID means the option
// has not been persisted yet.
type DraftOption struct {
	OptionID string `json:"id,omitempty"`
	Text     string `json:"text"`
	Correct  bool   `json:"correct"`
	Order    int    `json:"order"`
}

func (o DraftOption) Persisted() bool { return o.OptionID != "" }

// ToDraft converts a persisted option into its editable form.
func (o Option) ToDraft() DraftOption {
	return DraftOption{
		OptionID: o.OptionID,
		Text:     o.Text,
		Correct:  o.Correct,
		Order:    o.Order,
	}
}

// Questionnaire is a quiz as a respondent fills it in. Which options are correct is left out.
type Questionnaire struct {
	Quiz
	Questions []QuestionnaireItem `json:"questions"`
}

type QuestionnaireItem struct {
	Question
	Choices []Choice `json:"options"`
}

// Choice is an option without its correctness.
type Choice struct {
	OptionID string `json:"id"`
	Text     string `json:"text"`
	Order    int    `json:"order"`
}

// Submission is one completed questionnaire. It is never mutated after creation.
type Submission struct {
	SubmissionID  string    `mapstructure:"id" json:"id"`
	UserID        string    `mapstructure:"user_id" json:"user_id"`
	QuizID        string    `mapstructure:"quiz_id" json:"quiz_id"`
	StructureCode *string   `mapstructure:"structure_code" json:"structure_code"`
	CreateTime    time.Time `mapstructure:"created_at" json:"created_at"`
}

// Answer is one answer fact of a submission.
type Answer struct {
	SubmissionID string    `mapstructure:"submission_id"`
	QuestionID   string    `mapstructure:"question_id"`
	OptionID     *string   `mapstructure:"option_id"`
	ValueText    *string   `mapstructure:"value_text"`
	ValueNumber  *float64  `mapstructure:"value_number"`
	CreateTime   time.Time `mapstructure:"created_at"`
}

// Score is the graded result of one submission. ScorePct is the raw stored percentage, which
// may be null when the quiz has no gradable question.
type Score struct {
	SubmissionID  string    `mapstructure:"submission_id" json:"submission_id"`
	UserID        string    `mapstructure:"user_id" json:"user_id"`
	StructureCode *string   `mapstructure:"structure_code" json:"structure_code"`
	CreateTime    time.Time `mapstructure:"created_at" json:"created_at"`
	ScorePct      any       `mapstructure:"score_pct" json:"score_pct"`
}

// OptionCountRow is one normalized option group of a choice question.
type OptionCountRow struct {
	QuestionID string          `json:"question_id"`
	OptionText string          `json:"option_text"`
	Count      int64           `json:"count"`
	Percentage decimal.Decimal `json:"pct"`
	Correct    bool            `json:"is_correct"`
}

// OptionTable groups the option rows of a single question, sorted by count descending.
type OptionTable struct {
	QuestionID string           `json:"question_id"`
	Label      string           `json:"label"`
	Total      int64            `json:"total"`
	Rows       []OptionCountRow `json:"items"`
}

type NumericStat struct {
	QuestionID    string              `json:"question_id"`
	Label         string              `json:"label"`
	StructureCode *string             `json:"structure_code"`
	N             int64               `json:"n"`
	Avg           decimal.NullDecimal `json:"avg"`
	Min           decimal.NullDecimal `json:"min"`
	Max           decimal.NullDecimal `json:"max"`
}

type TextSample struct {
	QuestionID    string    `json:"question_id"`
	Label         string    `json:"label"`
	StructureCode *string   `json:"structure_code"`
	Value         *string   `json:"value"`
	CreateTime    time.Time `json:"created_at"`
}

// HistogramBin counts the scores in [Start, End), the last bin also includes End.
type HistogramBin struct {
	Start int   `json:"start"`
	End   int   `json:"end"`
	Count int64 `json:"count"`
}

type ScoreSummary struct {
	StructureCode    *string             `json:"structure_code"`
	SubmissionsCount int64               `json:"submissions_count"`
	AvgScorePct      decimal.NullDecimal `json:"avg_score_pct"`
	Histogram        []HistogramBin      `json:"histogram"`
}

// Report is everything shown on the analytics page of a quiz for one population.
type Report struct {
	QuizID      string        `json:"quiz_id"`
	Population  string        `json:"structure"`
	Score       ScoreSummary  `json:"score"`
	Options     []OptionTable `json:"options"`
	Numeric     []NumericStat `json:"numeric"`
	TextSamples []TextSample  `json:"text"`
}

// Structure is a population a submission can be tagged with.
type Structure struct {
	Code  string `mapstructure:"code" json:"code"`
	Label string `mapstructure:"label" json:"label"`
}

// StructureStat is one population row of the dashboard.
type StructureStat struct {
	Code             *string             `json:"code"`
	Label            string              `json:"label"`
	SubmissionsCount int64               `json:"submissions_count"`
	AvgScorePct      decimal.NullDecimal `json:"avg_score_pct"`
}

// Dashboard summarizes the submissions of a quiz inside a date window.
type Dashboard struct {
	QuizID     string          `json:"quiz_id"`
	Title      string          `json:"title"`
	Population string          `json:"structure"`
	From       *time.Time      `json:"from"`
	To         *time.Time      `json:"to"`
	Score      ScoreSummary    `json:"score"`
	Structures []StructureStat `json:"structures"`
}
