// Package draft holds the in-memory option list of a question while an operator edits it.
// Nothing here touches storage; a draft is committed through the editor service.
package draft

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/victornm/quizlens/internal/domain"
)

type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// Patch holds the fields to merge into a draft option. Nil fields are left untouched.
type Patch struct {
	Text    *string
	Correct *bool
	Order   *int
}

// Draft is single-user, local state. It is not safe for concurrent use.
type Draft struct {
	options []domain.DraftOption
}

// New returns a draft over a copy of options, keeping their current order.
func New(options []domain.DraftOption) *Draft {
	return &Draft{options: slices.Clone(options)}
}

// FromOptions builds a draft from the persisted options of a question.
func FromOptions(options []domain.Option) *Draft {
	d := &Draft{options: make([]domain.DraftOption, 0, len(options))}
	for _, o := range options {
		d.options = append(d.options, o.ToDraft())
	}
	return d
}

func (d *Draft) Len() int { return len(d.options) }

// Options returns a copy of the options in their current list order.
func (d *Draft) Options() []domain.DraftOption {
	return slices.Clone(d.options)
}

// Add appends an empty, incorrect option placed after the highest ordinal.
func (d *Draft) Add() {
	next := 0
	for _, o := range d.options {
		next = max(next, o.Order)
	}

	d.options = append(d.options, domain.DraftOption{Order: next + 1})
}

func (d *Draft) Patch(index int, p Patch) {
	d.mustIndex(index)

	o := &d.options[index]
	if p.Text != nil {
		o.Text = *p.Text
	}
	if p.Correct != nil {
		o.Correct = *p.Correct
	}
	if p.Order != nil {
		o.Order = *p.Order
	}
}

// Remove drops the option at index and renormalizes the remaining ordinals.
func (d *Draft) Remove(index int) {
	d.mustIndex(index)

	d.options = Normalize(slices.Delete(d.options, index, index+1))
}

// Move swaps the ordinal of the option at index with its neighbour in direction dir, then
// renormalizes. Moving the first option up or the last one down does nothing.
func (d *Draft) Move(index int, dir Direction) {
	d.mustIndex(index)

	other := index + int(dir)
	if other < 0 || other >= len(d.options) {
		return
	}

	a, b := &d.options[index], &d.options[other]
	a.Order, b.Order = b.Order, a.Order

	d.options = Normalize(d.options)
}

// Survivors returns the options whose trimmed text is not empty, in list order.
func (d *Draft) Survivors() []domain.DraftOption {
	return Survivors(d.options)
}

func (d *Draft) mustIndex(index int) {
	if index < 0 || index >= len(d.options) {
		panic(fmt.Sprintf("draft: option index %d out of range [0, %d)", index, len(d.options)))
	}
}

// Normalize returns options sorted by ordinal, ties kept in list order, with ordinals
// rewritten to 1..N. The input slice is not modified.
func Normalize(options []domain.DraftOption) []domain.DraftOption {
	out := make([]domain.DraftOption, len(options))
	copy(out, options)
	slices.SortStableFunc(out, func(a, b domain.DraftOption) int {
		return cmp.Compare(a.Order, b.Order)
	})

	for i := range out {
		out[i].Order = i + 1
	}

	return out
}

func Survivors(options []domain.DraftOption) []domain.DraftOption {
	out := make([]domain.DraftOption, 0, len(options))
	for _, o := range options {
		if strings.TrimSpace(o.Text) != "" {
			out = append(out, o)
		}
	}
	return out
}
