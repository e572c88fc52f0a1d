package submission

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/errors"
	"github.com/victornm/quizlens/internal/event"
	"github.com/victornm/quizlens/internal/store"
)

type Config struct {
	Store    store.Client
	EventBus *event.Bus

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service records completed questionnaires.
type Service struct {
	db  store.Client
	eb  *event.Bus
	now func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		db:  c.Store,
		eb:  c.EventBus,
		now: c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Answer is a respondent's answer to one question. Which field is read depends on the
// question type.
type Answer struct {
	QuestionID string   `json:"question_id"`
	OptionIDs  []string `json:"option_ids"`
	Text       *string  `json:"text"`
	Number     *float64 `json:"number"`
}

// SubmitRequest represents a completed questionnaire.
type SubmitRequest struct {
	QuizID string
	UserID string
	// Structure is the population the respondent belongs to, "all" or empty for none.
	Structure string
	Answers   []Answer
}

// Submit validates the answers against the quiz and records the submission with its answers.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Submission, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.InvalidArgument("user is required")
	}

	structure, ok := domain.ParseStructure(req.Structure)
	if !ok {
		return nil, errors.InvalidArgument("invalid structure code %q", req.Structure)
	}

	content, err := s.loadQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}
	if !content.quiz.Published {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("quiz %s is not published", req.QuizID))
	}
	questions, options := content.index()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate submission ID: %w", err)
	}

	sub := &domain.Submission{
		SubmissionID:  id.String(),
		UserID:        req.UserID,
		QuizID:        req.QuizID,
		StructureCode: structure,
		CreateTime:    s.now().UTC(),
	}

	rows, err := answerRows(sub, questions, options, req.Answers)
	if err != nil {
		return nil, err
	}

	if err := s.insertSubmission(ctx, sub, rows); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "submission: recorded",
		"submission_id", sub.SubmissionID,
		"quiz_id", sub.QuizID,
		"answers", len(rows),
	)

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventSubmissionRecorded{
			Submission: *sub,
			Answers:    len(rows),
		})
	}

	return sub, nil
}

// GetQuestionnaireRequest asks for the questionnaire of a quiz. Drafts asks for it even when
// the quiz is not published, for operators previewing their work.
type GetQuestionnaireRequest struct {
	QuizID string
	Drafts bool
}

// GetQuestionnaire returns the quiz with its questions and their options, in order. An
// unpublished quiz is reported as not found unless drafts were asked for.
func (s *Service) GetQuestionnaire(ctx context.Context, req GetQuestionnaireRequest) (*domain.Questionnaire, error) {
	content, err := s.loadQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}
	if !content.quiz.Published && !req.Drafts {
		return nil, errors.NotFound("quiz %s not found", req.QuizID)
	}

	qn := &domain.Questionnaire{
		Quiz:      content.quiz,
		Questions: make([]domain.QuestionnaireItem, 0, len(content.questions)),
	}

	for _, q := range content.questions {
		item := domain.QuestionnaireItem{Question: q, Choices: make([]domain.Choice, 0)}
		if q.QType.HasOptions() {
			for _, o := range content.options {
				if o.QuestionID == q.QuestionID {
					item.Choices = append(item.Choices, domain.Choice{OptionID: o.OptionID, Text: o.Text, Order: o.Order})
				}
			}
		}
		qn.Questions = append(qn.Questions, item)
	}

	return qn, nil
}

type ListSubmissionsRequest struct {
	QuizID string
}

// ListSubmissions returns the submissions of a quiz, newest first.
func (s *Service) ListSubmissions(ctx context.Context, req ListSubmissionsRequest) ([]domain.Submission, error) {
	if _, err := s.getQuiz(ctx, req.QuizID); err != nil {
		return nil, err
	}

	rows, err := s.db.Select(ctx, store.TableSubmissions,
		[]string{"id", "user_id", "quiz_id", "structure_code", "created_at"},
		[]store.Filter{store.Eq("quiz_id", req.QuizID)},
		store.OrderBy("created_at", true),
		store.OrderBy("id", true),
	)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}

	subs := make([]domain.Submission, 0, len(rows))
	if err := store.Decode(rows, &subs); err != nil {
		return nil, err
	}

	return subs, nil
}

// quizContent is a quiz with its questions and options, both in display order.
type quizContent struct {
	quiz      domain.Quiz
	questions []domain.Question
	options   []domain.Option
}

func (c *quizContent) index() (map[string]domain.Question, map[string]domain.Option) {
	questions := make(map[string]domain.Question, len(c.questions))
	for _, q := range c.questions {
		questions[q.QuestionID] = q
	}

	options := make(map[string]domain.Option, len(c.options))
	for _, o := range c.options {
		options[o.OptionID] = o
	}

	return questions, options
}

func (s *Service) getQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	rows, err := s.db.Select(ctx, store.TableQuizzes,
		[]string{"id", "title", "description", "is_published"},
		[]store.Filter{store.Eq("id", quizID)},
	)
	if err != nil {
		return nil, fmt.Errorf("select quiz: %w", err)
	}

	var quizzes []domain.Quiz
	if err := store.Decode(rows, &quizzes); err != nil {
		return nil, err
	}
	if len(quizzes) == 0 {
		return nil, errors.NotFound("quiz %s not found", quizID)
	}

	return &quizzes[0], nil
}

func (s *Service) loadQuiz(ctx context.Context, quizID string) (*quizContent, error) {
	quiz, err := s.getQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Select(ctx, store.TableQuestions,
		[]string{"id", "quiz_id", "label", "qtype", "required", "order"},
		[]store.Filter{store.Eq("quiz_id", quizID)},
		store.OrderBy("order", false),
		store.OrderBy("id", false),
	)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	c := &quizContent{quiz: *quiz}
	if err := store.Decode(rows, &c.questions); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(c.questions))
	for _, q := range c.questions {
		ids = append(ids, q.QuestionID)
	}

	rows, err = s.db.Select(ctx, store.TableOptions,
		[]string{"id", "question_id", "text", "correct", "order"},
		[]store.Filter{store.In("question_id", ids)},
		store.OrderBy("order", false),
		store.OrderBy("id", false),
	)
	if err != nil {
		return nil, fmt.Errorf("select options: %w", err)
	}

	if err := store.Decode(rows, &c.options); err != nil {
		return nil, err
	}

	return c, nil
}

// answerRows maps answers to storage rows: one row per picked option, one row for non-blank
// text and one for a finite number. Empty answers produce no row.
func answerRows(sub *domain.Submission, questions map[string]domain.Question, options map[string]domain.Option, answers []Answer) ([]store.Row, error) {
	var (
		rows     = make([]store.Row, 0, len(answers))
		answered = make(map[string]bool, len(answers))
	)

	row := func(questionID string, optionID, text *string, number *float64) store.Row {
		return store.Row{
			"submission_id": sub.SubmissionID,
			"question_id":   questionID,
			"option_id":     optionID,
			"value_text":    text,
			"value_number":  number,
			"created_at":    sub.CreateTime,
		}
	}

	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			return nil, errors.InvalidArgument("question %s is not part of quiz %s", a.QuestionID, sub.QuizID)
		}
		if answered[q.QuestionID] {
			return nil, errors.InvalidArgument("question %s is answered twice", q.QuestionID)
		}

		switch q.QType {
		case domain.QTypeSingle, domain.QTypeMultiple:
			picked := slices.Compact(slices.Sorted(slices.Values(a.OptionIDs)))
			if q.QType == domain.QTypeSingle && len(picked) > 1 {
				return nil, errors.InvalidArgument("question %s accepts a single option", q.QuestionID)
			}

			for _, id := range picked {
				if o, ok := options[id]; !ok || o.QuestionID != q.QuestionID {
					return nil, errors.InvalidArgument("option %s is not part of question %s", id, q.QuestionID)
				}
				rows = append(rows, row(q.QuestionID, &id, nil, nil))
				answered[q.QuestionID] = true
			}

		case domain.QTypeText:
			if a.Text == nil || strings.TrimSpace(*a.Text) == "" {
				continue
			}
			text := strings.TrimSpace(*a.Text)
			rows = append(rows, row(q.QuestionID, nil, &text, nil))
			answered[q.QuestionID] = true

		case domain.QTypeNumber:
			if a.Number == nil || math.IsNaN(*a.Number) || math.IsInf(*a.Number, 0) {
				continue
			}
			rows = append(rows, row(q.QuestionID, nil, nil, a.Number))
			answered[q.QuestionID] = true
		}
	}

	var missing []string
	for _, q := range questions {
		if q.Required && !answered[q.QuestionID] {
			missing = append(missing, fmt.Sprintf("question %q is required", q.Label))
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("required questions are unanswered"),
			errors.WithDetails(missing...),
		)
	}

	return rows, nil
}

// insertSubmission writes the submission, then its answers. The submission row is removed again
// when the answers cannot be written.
func (s *Service) insertSubmission(ctx context.Context, sub *domain.Submission, answers []store.Row) (err error) {
	_, err = s.db.Insert(ctx, store.TableSubmissions, []store.Row{{
		"id":             sub.SubmissionID,
		"user_id":        sub.UserID,
		"quiz_id":        sub.QuizID,
		"structure_code": sub.StructureCode,
		"created_at":     sub.CreateTime,
	}})
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}

	defer func() {
		if err != nil {
			// Detached from ctx so a cancelled request still cleans up.
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			err = stderrors.Join(err, s.db.Delete(cctx, store.TableSubmissions, []store.Filter{store.Eq("id", sub.SubmissionID)}))
		}
	}()

	if _, err = s.db.Insert(ctx, store.TableAnswers, answers); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}

	return nil
}
