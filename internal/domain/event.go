package domain

const (
	EventNameOptionsCommitted   = "options.committed"
	EventNameSubmissionRecorded = "submission.recorded"
)

// EventOptionsCommitted is published after the option set of a question was reconciled.
type EventOptionsCommitted struct {
	QuizID     string
	QuestionID string
	Options    []Option
	Deleted    []string
}

func (EventOptionsCommitted) Name() string { return EventNameOptionsCommitted }

type EventSubmissionRecorded struct {
	Submission Submission
	Answers    int
}

func (EventSubmissionRecorded) Name() string { return EventNameSubmissionRecorded }
