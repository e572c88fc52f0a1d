package editor

import (
	"strings"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/draft"
)

const (
	msgLabelRequired     = "question label is required"
	msgOptionRequired    = "at least one option required"
	msgSingleNeedsOne    = "a single-choice question needs exactly one correct option"
	msgMultipleNeedsSome = "a multiple-choice question needs at least one correct option"
	msgNoOptionsAllowed  = "text and number questions take no options"
)

// ValidationResult lists every rule a question draft breaks. OK is true when Errors is empty.
type ValidationResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors"`
}

// Validate checks a question draft before commit. Options with blank text are ignored.
// Text and number questions must not carry options.
func Validate(label string, qtype domain.QType, options []domain.DraftOption) ValidationResult {
	errs := make([]string, 0)

	if strings.TrimSpace(label) == "" {
		errs = append(errs, msgLabelRequired)
	}

	survivors := draft.Survivors(options)
	if !qtype.HasOptions() && len(survivors) > 0 {
		errs = append(errs, msgNoOptionsAllowed)
	}

	if qtype.HasOptions() {
		if len(survivors) == 0 {
			errs = append(errs, msgOptionRequired)
		}

		correct := 0
		for _, o := range survivors {
			if o.Correct {
				correct++
			}
		}

		switch {
		case qtype == domain.QTypeSingle && correct != 1:
			errs = append(errs, msgSingleNeedsOne)
		case qtype == domain.QTypeMultiple && correct < 1:
			errs = append(errs, msgMultipleNeedsSome)
		}
	}

	return ValidationResult{
		OK:     len(errs) == 0,
		Errors: errs,
	}
}
