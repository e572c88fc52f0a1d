package editor

import (
	"slices"
	"strings"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/draft"
	"github.com/victornm/quizlens/internal/store"
)

// Plan is the reconciliation of a draft against the persisted option set of a question.
type Plan struct {
	QuestionID string

	// Options are the surviving draft options, renormalized to 1..N.
	Options []domain.DraftOption

	baseline []string
}

// NewPlan drops blank options from the draft and renormalizes the rest. baseline is the set of
// option IDs that were persisted when the draft was loaded.
func NewPlan(questionID string, options []domain.DraftOption, baseline []string) *Plan {
	return &Plan{
		QuestionID: questionID,
		Options:    draft.Normalize(draft.Survivors(options)),
		baseline:   baseline,
	}
}

// Rows maps the surviving options to storage rows. Rows of persisted options carry their ID so
// the upsert updates them in place; the store assigns IDs to the others.
func (p *Plan) Rows() []store.Row {
	rows := make([]store.Row, 0, len(p.Options))
	for _, o := range p.Options {
		r := store.Row{
			"question_id": p.QuestionID,
			"text":        strings.TrimSpace(o.Text),
			"correct":     o.Correct,
			"order":       o.Order,
		}
		if o.Persisted() {
			r["id"] = o.OptionID
		}
		rows = append(rows, r)
	}
	return rows
}

// Kept returns the IDs of the persisted options the draft still carries.
func (p *Plan) Kept() []string {
	kept := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		if o.Persisted() {
			kept = append(kept, o.OptionID)
		}
	}
	return kept
}

// Deletes returns the baseline IDs the draft no longer carries, in baseline order and without
// duplicates. Committing the same draft twice yields no deletes the second time.
func (p *Plan) Deletes() []string {
	kept := p.Kept()

	deletes := make([]string, 0)
	for _, id := range p.baseline {
		if id == "" || slices.Contains(kept, id) || slices.Contains(deletes, id) {
			continue
		}
		deletes = append(deletes, id)
	}
	return deletes
}

// Baseline returns the IDs of options, skipping the ones listed in exclude.
func Baseline(options []domain.Option, exclude []string) []string {
	ids := make([]string, 0, len(options))
	for _, o := range options {
		if !slices.Contains(exclude, o.OptionID) {
			ids = append(ids, o.OptionID)
		}
	}
	return ids
}
