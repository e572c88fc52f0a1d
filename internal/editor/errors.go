package editor

import (
	"fmt"

	"github.com/victornm/quizlens/internal/domain"
)

// Step names a write step of an option commit.
type Step string

const (
	StepUpsert Step = "upsert"
	StepReread Step = "re-read"
	StepDelete Step = "delete"
)

// StepError is returned when a commit failed before any of its writes took effect.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("commit options: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// PartialCommitError is returned when the upsert landed but a later step failed. The options
// are updated, but rows removed from the draft may still exist.
//
// Options and Baseline are what the caller should continue editing from. After a failed
// re-read they are the submitted draft and the old baseline; after a failed delete they are the
// re-read options without the pending deletes and the full re-read baseline, so that committing
// again retries the delete.
type PartialCommitError struct {
	Step     Step
	Err      error
	Options  []domain.DraftOption
	Baseline []string
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("commit options: partially committed, %s failed: %v", e.Step, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }
