package analytics

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/victornm/quizlens/internal/domain"
)

// OptionCount is one row of the option counts view.
type OptionCount struct {
	StructureCode *string `mapstructure:"structure_code"`
	QuestionID    string  `mapstructure:"question_id"`
	QuestionLabel string  `mapstructure:"question_label"`
	OptionID      string  `mapstructure:"option_id"`
	OptionText    string  `mapstructure:"option_text"`
	Count         int64   `mapstructure:"option_count"`
}

// CorrectSet holds the IDs of the correct options per question.
type CorrectSet map[string]map[string]bool

func (c CorrectSet) Add(questionID, optionID string) {
	if c[questionID] == nil {
		c[questionID] = make(map[string]bool)
	}
	c[questionID][optionID] = true
}

func (c CorrectSet) Has(questionID, optionID string) bool {
	return c[questionID][optionID]
}

type optionGroup struct {
	text    string
	count   int64
	correct bool
}

// OptionTables groups raw option counts per question, merges options whose texts normalize to
// the same key and computes their share of the question's answers. A group is correct when any
// of its options is. Groups are sorted by count, most answered first; questions by the number in
// their label.
func OptionTables(rows []OptionCount, correct CorrectSet) []domain.OptionTable {
	type question struct {
		id     string
		label  string
		keys   []string
		groups map[string]*optionGroup
	}

	var (
		order     []string
		questions = make(map[string]*question)
	)

	for _, r := range rows {
		q, ok := questions[r.QuestionID]
		if !ok {
			q = &question{id: r.QuestionID, label: r.QuestionLabel, groups: make(map[string]*optionGroup)}
			questions[r.QuestionID] = q
			order = append(order, r.QuestionID)
		}

		key := NormalizeText(r.OptionText)
		g, ok := q.groups[key]
		if !ok {
			g = &optionGroup{text: displayText(r.OptionText)}
			q.groups[key] = g
			q.keys = append(q.keys, key)
		}

		g.count += r.Count
		g.correct = g.correct || correct.Has(r.QuestionID, r.OptionID)
	}

	tables := make([]domain.OptionTable, 0, len(order))
	for _, id := range order {
		q := questions[id]

		groups := make([]*optionGroup, 0, len(q.keys))
		for _, k := range q.keys {
			groups = append(groups, q.groups[k])
		}
		slices.SortStableFunc(groups, func(a, b *optionGroup) int {
			return cmp.Compare(b.count, a.count)
		})

		counts := make([]int64, 0, len(groups))
		var total int64
		for _, g := range groups {
			counts = append(counts, g.count)
			total += g.count
		}
		pcts := Percentages(counts)

		t := domain.OptionTable{
			QuestionID: q.id,
			Label:      q.label,
			Total:      total,
			Rows:       make([]domain.OptionCountRow, 0, len(groups)),
		}
		for i, g := range groups {
			t.Rows = append(t.Rows, domain.OptionCountRow{
				QuestionID: q.id,
				OptionText: g.text,
				Count:      g.count,
				Percentage: pcts[i],
				Correct:    g.correct,
			})
		}
		tables = append(tables, t)
	}

	slices.SortStableFunc(tables, func(a, b domain.OptionTable) int {
		return compareQuestions(a.Label, a.QuestionID, b.Label, b.QuestionID)
	})

	return tables
}

// Percentages returns each count's share of the total with 2 decimals. Shares are rounded with
// the largest remainder method so they add up to exactly 100, which departs from rounding every
// row on its own: counts 1, 1, 1 give 33.34, 33.33, 33.33 rather than 33.33 three times. Ties
// go to the earlier count. A zero total yields zero shares.
func Percentages(counts []int64) []decimal.Decimal {
	const hundredths = 100 * 100

	pcts := make([]decimal.Decimal, len(counts))

	var total int64
	for _, c := range counts {
		total += c
	}
	if total <= 0 {
		for i := range pcts {
			pcts[i] = decimal.Zero
		}
		return pcts
	}

	var (
		units     = make([]int64, len(counts))
		remainder = make([]int64, len(counts))
		left      = int64(hundredths)
	)
	for i, c := range counts {
		units[i] = c * hundredths / total
		remainder[i] = c * hundredths % total
		left -= units[i]
	}

	idx := make([]int, len(counts))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return cmp.Compare(remainder[b], remainder[a])
	})
	for _, i := range idx {
		if left <= 0 {
			break
		}
		if remainder[i] == 0 {
			continue
		}
		units[i]++
		left--
	}

	for i, u := range units {
		pcts[i] = decimal.New(u, -2)
	}
	return pcts
}

var digitsRe = regexp.MustCompile(`\d+`)

// labelNumber is the first run of digits in a label, or MaxInt when there is none.
func labelNumber(label string) int {
	m := digitsRe.FindString(label)
	if m == "" {
		return math.MaxInt
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return math.MaxInt
	}
	return n
}

func compareQuestions(labelA, idA, labelB, idB string) int {
	return cmp.Or(
		cmp.Compare(labelNumber(labelA), labelNumber(labelB)),
		cmp.Compare(labelA, labelB),
		cmp.Compare(idA, idB),
	)
}
