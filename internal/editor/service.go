package editor

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/errors"
	"github.com/victornm/quizlens/internal/event"
	"github.com/victornm/quizlens/internal/store"
	"github.com/victornm/quizlens/internal/telemetry"
)

var (
	quizColumns     = []string{"id", "title", "description", "is_published"}
	questionColumns = []string{"id", "quiz_id", "label", "qtype", "required", "order"}
	optionColumns   = []string{"id", "question_id", "text", "correct", "order"}
)

type Config struct {
	Store    store.Client
	EventBus *event.Bus
}

// Service edits quizzes, their questions and the options of choice questions. Writes are
// last-write-wins: two operators committing the same question overwrite each other.
type Service struct {
	db store.Client
	eb *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		db: c.Store,
		eb: c.EventBus,
	}
}

type CreateQuizRequest struct {
	Title       string
	Description *string
}

func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, errors.InvalidArgument("quiz title is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate quiz ID: %w", err)
	}

	q := &domain.Quiz{
		QuizID:      id.String(),
		Title:       title,
		Description: req.Description,
	}

	if _, err := s.db.Insert(ctx, store.TableQuizzes, []store.Row{quizRow(q)}); err != nil {
		return nil, fmt.Errorf("insert quiz: %w", err)
	}

	return q, nil
}

type GetQuizRequest struct {
	QuizID string
}

func (s *Service) GetQuiz(ctx context.Context, req GetQuizRequest) (*domain.Quiz, error) {
	rows, err := s.db.Select(ctx, store.TableQuizzes, quizColumns, []store.Filter{store.Eq("id", req.QuizID)})
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	var quizzes []domain.Quiz
	if err := store.Decode(rows, &quizzes); err != nil {
		return nil, err
	}

	if len(quizzes) == 0 {
		return nil, errors.NotFound("quiz %s not found", req.QuizID)
	}

	return &quizzes[0], nil
}

// ListQuizzes returns every quiz, newest first. Quiz IDs are UUIDv7, so they sort by creation
// time.
func (s *Service) ListQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.db.Select(ctx, store.TableQuizzes, quizColumns, nil, store.OrderBy("id", true))
	if err != nil {
		return nil, fmt.Errorf("select quizzes: %w", err)
	}

	quizzes := make([]domain.Quiz, 0, len(rows))
	if err := store.Decode(rows, &quizzes); err != nil {
		return nil, err
	}

	return quizzes, nil
}

// UpdateQuizRequest changes the fields that are not nil.
type UpdateQuizRequest struct {
	QuizID      string
	Title       *string
	Description *string
	Published   *bool
}

func (s *Service) UpdateQuiz(ctx context.Context, req UpdateQuizRequest) (*domain.Quiz, error) {
	q, err := s.GetQuiz(ctx, GetQuizRequest{QuizID: req.QuizID})
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		q.Title = strings.TrimSpace(*req.Title)
		if q.Title == "" {
			return nil, errors.InvalidArgument("quiz title is required")
		}
	}
	if req.Description != nil {
		q.Description = req.Description
	}
	if req.Published != nil {
		q.Published = *req.Published
	}

	if _, err := s.db.Upsert(ctx, store.TableQuizzes, []store.Row{quizRow(q)}, "id"); err != nil {
		return nil, fmt.Errorf("update quiz: %w", err)
	}

	return q, nil
}

type ListQuestionsRequest struct {
	QuizID string
}

// ListQuestions returns the questions of a quiz by ordinal.
func (s *Service) ListQuestions(ctx context.Context, req ListQuestionsRequest) ([]domain.Question, error) {
	rows, err := s.db.Select(ctx, store.TableQuestions, questionColumns,
		[]store.Filter{store.Eq("quiz_id", req.QuizID)},
		store.OrderBy("order", false),
		store.OrderBy("id", false),
	)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	questions := make([]domain.Question, 0, len(rows))
	if err := store.Decode(rows, &questions); err != nil {
		return nil, err
	}

	return questions, nil
}

type CreateQuestionRequest struct {
	QuizID string
}

// CreateQuestion appends a required single-choice question with an empty label to the quiz.
func (s *Service) CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*domain.Question, error) {
	if _, err := s.GetQuiz(ctx, GetQuizRequest{QuizID: req.QuizID}); err != nil {
		return nil, err
	}

	last, err := s.db.Select(ctx, store.TableQuestions, []string{"order"},
		[]store.Filter{store.Eq("quiz_id", req.QuizID)},
		store.OrderBy("order", true),
		store.Limit(1),
	)
	if err != nil {
		return nil, fmt.Errorf("select last question: %w", err)
	}

	var prev []domain.Question
	if err := store.Decode(last, &prev); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate question ID: %w", err)
	}

	q := &domain.Question{
		QuestionID: id.String(),
		QuizID:     req.QuizID,
		QType:      domain.QTypeSingle,
		Required:   true,
		Order:      1,
	}
	if len(prev) > 0 {
		q.Order = prev[0].Order + 1
	}

	if _, err := s.db.Insert(ctx, store.TableQuestions, []store.Row{questionRow(q)}); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	return q, nil
}

// UpdateQuestionRequest changes the fields that are not nil.
type UpdateQuestionRequest struct {
	QuestionID string
	Label      *string
	QType      *domain.QType
	Required   *bool
}

func (s *Service) UpdateQuestion(ctx context.Context, req UpdateQuestionRequest) (*domain.Question, error) {
	q, err := s.getQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}

	if req.Label != nil {
		q.Label = strings.TrimSpace(*req.Label)
		if q.Label == "" {
			return nil, errors.InvalidArgument(msgLabelRequired)
		}
	}
	if req.QType != nil {
		if !req.QType.Valid() {
			return nil, errors.InvalidArgument("unknown question type %q", *req.QType)
		}
		q.QType = *req.QType
	}
	if req.Required != nil {
		q.Required = *req.Required
	}

	if _, err := s.db.Upsert(ctx, store.TableQuestions, []store.Row{questionRow(q)}, "id"); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}

	return q, nil
}

type DeleteQuestionRequest struct {
	QuestionID string
}

// DeleteQuestion removes the options of the question, then the question itself.
func (s *Service) DeleteQuestion(ctx context.Context, req DeleteQuestionRequest) error {
	if _, err := s.getQuestion(ctx, req.QuestionID); err != nil {
		return err
	}

	if err := s.db.Delete(ctx, store.TableOptions, []store.Filter{store.Eq("question_id", req.QuestionID)}); err != nil {
		return fmt.Errorf("delete options: %w", err)
	}

	if err := s.db.Delete(ctx, store.TableQuestions, []store.Filter{store.Eq("id", req.QuestionID)}); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}

	return nil
}

type LoadOptionsRequest struct {
	QuestionID string
}

// OptionSet is an editable option list together with the baseline it was loaded from.
type OptionSet struct {
	QuestionID string               `json:"question_id"`
	Options    []domain.DraftOption `json:"options"`
	Baseline   []string             `json:"baseline"`
	Deleted    []string             `json:"deleted,omitempty"`
}

func (s *Service) LoadOptions(ctx context.Context, req LoadOptionsRequest) (*OptionSet, error) {
	if _, err := s.getQuestion(ctx, req.QuestionID); err != nil {
		return nil, err
	}

	options, err := s.selectOptions(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}

	return newOptionSet(req.QuestionID, options, nil), nil
}

// CommitOptionsRequest carries an operator's draft. Label and QType override the stored
// question for validation when set, so an unsaved question edit is validated with its options.
type CommitOptionsRequest struct {
	QuestionID string
	Label      *string
	QType      *domain.QType
	Options    []domain.DraftOption
	Baseline   []string
}

// CommitOptions persists a draft. It validates the draft, upserts the surviving options in one
// batch, re-reads the option set and finally deletes the baseline options the draft dropped.
// A failure during the upsert returns a *StepError, a later failure a *PartialCommitError.
func (s *Service) CommitOptions(ctx context.Context, req CommitOptionsRequest) (*OptionSet, error) {
	q, err := s.getQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, err
	}

	label, qtype := q.Label, q.QType
	if req.Label != nil {
		label = *req.Label
	}
	if req.QType != nil {
		qtype = *req.QType
	}

	if res := Validate(label, qtype, req.Options); !res.OK {
		telemetry.CountOptionCommit(telemetry.OutcomeInvalid)
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question draft is invalid"),
			errors.WithDetails(res.Errors...),
		)
	}

	plan := NewPlan(req.QuestionID, req.Options, req.Baseline)

	if err := s.checkOwnership(ctx, plan); err != nil {
		if errors.Is(err, errors.CodeInvalidArgument) {
			telemetry.CountOptionCommit(telemetry.OutcomeInvalid)
		} else {
			telemetry.CountOptionCommit(telemetry.OutcomeFailed)
		}
		return nil, err
	}

	if _, err := s.db.Upsert(ctx, store.TableOptions, plan.Rows(), "id"); err != nil {
		telemetry.CountOptionCommit(telemetry.OutcomeFailed)
		return nil, &StepError{Step: StepUpsert, Err: err}
	}

	fresh, err := s.selectOptions(ctx, req.QuestionID)
	if err != nil {
		telemetry.CountOptionCommit(telemetry.OutcomePartial)
		return nil, &PartialCommitError{
			Step:     StepReread,
			Err:      err,
			Options:  plan.Options,
			Baseline: req.Baseline,
		}
	}

	deletes := plan.Deletes()
	if len(deletes) > 0 {
		err := s.db.Delete(ctx, store.TableOptions, []store.Filter{
			store.Eq("question_id", req.QuestionID),
			store.In("id", deletes),
		})
		if err != nil {
			telemetry.CountOptionCommit(telemetry.OutcomePartial)
			set := newOptionSet(req.QuestionID, fresh, deletes)
			return nil, &PartialCommitError{
				Step:     StepDelete,
				Err:      err,
				Options:  set.Options,
				Baseline: Baseline(fresh, nil),
			}
		}
	}

	set := newOptionSet(req.QuestionID, fresh, deletes)
	set.Deleted = deletes

	telemetry.CountOptionCommit(telemetry.OutcomeCommitted)
	slog.InfoContext(ctx, "editor: options committed",
		"question_id", req.QuestionID,
		"options", len(set.Options),
		"deleted", len(deletes),
	)

	s.publish(ctx, domain.EventOptionsCommitted{
		QuizID:     q.QuizID,
		QuestionID: req.QuestionID,
		Options: slices.DeleteFunc(slices.Clone(fresh), func(o domain.Option) bool {
			return slices.Contains(deletes, o.OptionID)
		}),
		Deleted: deletes,
	})

	return set, nil
}

// checkOwnership rejects a plan whose draft options carry IDs that are not persisted options of
// the question, or carry the same ID twice. The upsert would otherwise move another question's
// option, and its answers, into this one.
func (s *Service) checkOwnership(ctx context.Context, plan *Plan) error {
	ids := plan.Kept()
	if len(ids) == 0 {
		return nil
	}

	rows, err := s.db.Select(ctx, store.TableOptions, optionColumns, []store.Filter{
		store.Eq("question_id", plan.QuestionID),
		store.In("id", ids),
	})
	if err != nil {
		return fmt.Errorf("commit options: select draft options: %w", err)
	}

	var owned []domain.Option
	if err := store.Decode(rows, &owned); err != nil {
		return err
	}

	details := make([]string, 0)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		switch {
		case seen[id]:
			details = append(details, fmt.Sprintf("option %s appears more than once", id))
		case !slices.ContainsFunc(owned, func(o domain.Option) bool { return o.OptionID == id }):
			details = append(details, fmt.Sprintf("option %s is not an option of question %s", id, plan.QuestionID))
		}
		seen[id] = true
	}

	if len(details) > 0 {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("question draft carries unknown options"),
			errors.WithDetails(details...),
		)
	}
	return nil
}

func (s *Service) getQuestion(ctx context.Context, id string) (*domain.Question, error) {
	rows, err := s.db.Select(ctx, store.TableQuestions, questionColumns, []store.Filter{store.Eq("id", id)})
	if err != nil {
		return nil, fmt.Errorf("select question: %w", err)
	}

	var questions []domain.Question
	if err := store.Decode(rows, &questions); err != nil {
		return nil, err
	}

	if len(questions) == 0 {
		return nil, errors.NotFound("question %s not found", id)
	}

	return &questions[0], nil
}

func (s *Service) selectOptions(ctx context.Context, questionID string) ([]domain.Option, error) {
	rows, err := s.db.Select(ctx, store.TableOptions, optionColumns,
		[]store.Filter{store.Eq("question_id", questionID)},
		store.OrderBy("order", false),
		store.OrderBy("id", false),
	)
	if err != nil {
		return nil, fmt.Errorf("select options: %w", err)
	}

	options := make([]domain.Option, 0, len(rows))
	if err := store.Decode(rows, &options); err != nil {
		return nil, err
	}

	return options, nil
}

func (s *Service) publish(ctx context.Context, e event.Event) {
	if s.eb != nil {
		s.eb.Publish(ctx, e)
	}
}

// newOptionSet builds the draft and baseline from persisted options, leaving out the IDs in
// exclude.
func newOptionSet(questionID string, options []domain.Option, exclude []string) *OptionSet {
	set := &OptionSet{
		QuestionID: questionID,
		Options:    make([]domain.DraftOption, 0, len(options)),
		Baseline:   Baseline(options, exclude),
	}

	for _, o := range options {
		if slices.Contains(exclude, o.OptionID) {
			continue
		}
		set.Options = append(set.Options, o.ToDraft())
	}

	return set
}

func quizRow(q *domain.Quiz) store.Row {
	return store.Row{
		"id":           q.QuizID,
		"title":        q.Title,
		"description":  q.Description,
		"is_published": q.Published,
	}
}

func questionRow(q *domain.Question) store.Row {
	return store.Row{
		"id":       q.QuestionID,
		"quiz_id":  q.QuizID,
		"label":    q.Label,
		"qtype":    string(q.QType),
		"required": q.Required,
		"order":    q.Order,
	}
}
