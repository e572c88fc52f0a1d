package submission_test

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/errors"
	"github.com/victornm/quizlens/internal/event"
	"github.com/victornm/quizlens/internal/store"
	"github.com/victornm/quizlens/internal/submission"
)

var now = time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

func TestService_Submit(t *testing.T) {
	text := func(s string) *string { return &s }
	number := func(f float64) *float64 { return &f }

	tests := map[string]struct {
		req    submission.SubmitRequest
		assert func(t *testing.T, sub *domain.Submission, err error, answers []domain.Answer)
	}{
		"should record one row per picked option and value": {
			req: submission.SubmitRequest{
				QuizID:    "quiz1",
				UserID:    "u1",
				Structure: "central",
				Answers: []submission.Answer{
					{QuestionID: "q1", OptionIDs: []string{"o1"}},
					{QuestionID: "q2", OptionIDs: []string{"o4", "o3", "o4"}},
					{QuestionID: "q3", Text: text("  great  ")},
					{QuestionID: "q4", Number: number(42)},
				},
			},
			assert: func(t *testing.T, sub *domain.Submission, err error, answers []domain.Answer) {
				require.NoError(t, err)
				assert.NotEmpty(t, sub.SubmissionID)
				require.NotNil(t, sub.StructureCode)
				assert.Equal(t, "central", *sub.StructureCode)
				assert.True(t, now.Equal(sub.CreateTime))

				require.Len(t, answers, 5, "duplicate option picks should be recorded once")

				var texts []string
				var numbers []float64
				var opts []string
				for _, a := range answers {
					assert.Equal(t, sub.SubmissionID, a.SubmissionID)
					switch {
					case a.OptionID != nil:
						opts = append(opts, *a.OptionID)
					case a.ValueText != nil:
						texts = append(texts, *a.ValueText)
					case a.ValueNumber != nil:
						numbers = append(numbers, *a.ValueNumber)
					}
				}
				assert.ElementsMatch(t, []string{"o1", "o3", "o4"}, opts)
				assert.Equal(t, []string{"great"}, texts)
				assert.Equal(t, []float64{42}, numbers)
			},
		},

		"should skip blank optional answers": {
			req: submission.SubmitRequest{
				QuizID:    "quiz1",
				UserID:    "u1",
				Structure: "all",
				Answers: []submission.Answer{
					{QuestionID: "q1", OptionIDs: []string{"o2"}},
					{QuestionID: "q2", OptionIDs: []string{"o5"}},
					{QuestionID: "q3", Text: text("   ")},
					{QuestionID: "q4"},
				},
			},
			assert: func(t *testing.T, sub *domain.Submission, err error, answers []domain.Answer) {
				require.NoError(t, err)
				assert.Nil(t, sub.StructureCode, `"all" should not be stored as a population`)
				assert.Len(t, answers, 2)
			},
		},

		"should reject a missing required answer": {
			req: submission.SubmitRequest{
				QuizID:  "quiz1",
				UserID:  "u1",
				Answers: []submission.Answer{{QuestionID: "q1", OptionIDs: []string{"o1"}}},
			},
			assert: func(t *testing.T, _ *domain.Submission, err error, answers []domain.Answer) {
				e := errors.Convert(err)
				assert.Equal(t, errors.CodeInvalidArgument, e.Code)
				assert.Equal(t, []string{`question "Pick all" is required`}, e.Details)
				assert.Empty(t, answers)
			},
		},

		"should reject two options for a single-choice question": {
			req: submission.SubmitRequest{
				QuizID: "quiz1",
				UserID: "u1",
				Answers: []submission.Answer{
					{QuestionID: "q1", OptionIDs: []string{"o1", "o2"}},
					{QuestionID: "q2", OptionIDs: []string{"o3"}},
				},
			},
			assert: func(t *testing.T, _ *domain.Submission, err error, answers []domain.Answer) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
				assert.Empty(t, answers)
			},
		},

		"should reject an option of another question": {
			req: submission.SubmitRequest{
				QuizID: "quiz1",
				UserID: "u1",
				Answers: []submission.Answer{
					{QuestionID: "q1", OptionIDs: []string{"o3"}},
					{QuestionID: "q2", OptionIDs: []string{"o3"}},
				},
			},
			assert: func(t *testing.T, _ *domain.Submission, err error, _ []domain.Answer) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"should reject an unknown question": {
			req: submission.SubmitRequest{
				QuizID:  "quiz1",
				UserID:  "u1",
				Answers: []submission.Answer{{QuestionID: "missing"}},
			},
			assert: func(t *testing.T, _ *domain.Submission, err error, _ []domain.Answer) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"should reject a malformed structure code": {
			req: submission.SubmitRequest{
				QuizID:    "quiz1",
				UserID:    "u1",
				Structure: "Central; --",
			},
			assert: func(t *testing.T, _ *domain.Submission, err error, _ []domain.Answer) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"should reject an anonymous submission": {
			req: submission.SubmitRequest{QuizID: "quiz1"},
			assert: func(t *testing.T, _ *domain.Submission, err error, _ []domain.Answer) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"should fail for an unknown quiz": {
			req: submission.SubmitRequest{QuizID: "missing", UserID: "u1"},
			assert: func(t *testing.T, _ *domain.Submission, err error, _ []domain.Answer) {
				assert.True(t, errors.Is(err, errors.CodeNotFound))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, db := makeService(t)
			seedQuiz(t, db)

			sub, err := s.Submit(context.Background(), tt.req)

			tt.assert(t, sub, err, selectAnswers(t, db))
		})
	}
}

func TestService_SubmitRemovesSubmissionWhenAnswersFail(t *testing.T) {
	_, db := makeService(t)
	seedQuiz(t, db)

	errStore := stderrors.New("store unavailable")
	s := submission.NewService(submission.Config{
		Store: &faultyStore{Client: db, answersErr: errStore},
		Now:   func() time.Time { return now },
	})

	_, err := s.Submit(context.Background(), submission.SubmitRequest{
		QuizID: "quiz1",
		UserID: "u1",
		Answers: []submission.Answer{
			{QuestionID: "q1", OptionIDs: []string{"o1"}},
			{QuestionID: "q2", OptionIDs: []string{"o3"}},
		},
	})
	require.ErrorIs(t, err, errStore)

	rows, err := db.Select(context.Background(), store.TableSubmissions, []string{"id"}, nil)
	require.NoError(t, err)
	assert.Empty(t, rows, "submission should be removed when its answers cannot be written")
}

func TestService_SubmitPublishesEvent(t *testing.T) {
	eb := event.NewBus()

	var (
		mu     sync.Mutex
		events []domain.EventSubmissionRecorded
	)
	eb.Subscribe(domain.EventNameSubmissionRecorded, func(_ context.Context, e event.Event) error {
		mu.Lock()
		events = append(events, e.(domain.EventSubmissionRecorded))
		mu.Unlock()
		return nil
	})

	s, db := makeService(t, withEventBus(eb))
	seedQuiz(t, db)

	sub, err := s.Submit(context.Background(), submission.SubmitRequest{
		QuizID: "quiz1",
		UserID: "u1",
		Answers: []submission.Answer{
			{QuestionID: "q1", OptionIDs: []string{"o1"}},
			{QuestionID: "q2", OptionIDs: []string{"o3", "o4"}},
		},
	})
	require.NoError(t, err)

	eb.Stop()

	require.Len(t, events, 1)
	assert.Equal(t, *sub, events[0].Submission)
	assert.Equal(t, 3, events[0].Answers)
}

func TestService_SubmitRejectsUnpublishedQuiz(t *testing.T) {
	s, db := makeService(t)
	seedQuiz(t, db)
	unpublish(t, db)

	_, err := s.Submit(context.Background(), submission.SubmitRequest{
		QuizID: "quiz1",
		UserID: "u1",
		Answers: []submission.Answer{
			{QuestionID: "q1", OptionIDs: []string{"o1"}},
			{QuestionID: "q2", OptionIDs: []string{"o3"}},
		},
	})
	require.True(t, errors.Is(err, errors.CodeFailedPrecondition), "got %v", err)
	assert.Empty(t, selectAnswers(t, db))
}

func TestService_GetQuestionnaire(t *testing.T) {
	tests := map[string]struct {
		unpublished bool
		req         submission.GetQuestionnaireRequest
		assert      func(t *testing.T, qn *domain.Questionnaire, err error)
	}{
		"published quiz in display order": {
			req: submission.GetQuestionnaireRequest{QuizID: "quiz1"},
			assert: func(t *testing.T, qn *domain.Questionnaire, err error) {
				require.NoError(t, err)
				assert.Equal(t, "Quiz", qn.Title)

				require.Len(t, qn.Questions, 4)
				var labels []string
				for _, q := range qn.Questions {
					labels = append(labels, q.Label)
				}
				assert.Equal(t, []string{"Pick one", "Pick all", "Comments", "Years"}, labels)

				assert.Equal(t, []domain.Choice{
					{OptionID: "o3", Text: "Red", Order: 1},
					{OptionID: "o4", Text: "Blue", Order: 2},
					{OptionID: "o5", Text: "Green", Order: 3},
				}, qn.Questions[1].Choices)
				assert.Empty(t, qn.Questions[2].Choices)
				assert.NotNil(t, qn.Questions[2].Choices)
			},
		},

		"unpublished quiz is hidden": {
			unpublished: true,
			req:         submission.GetQuestionnaireRequest{QuizID: "quiz1"},
			assert: func(t *testing.T, _ *domain.Questionnaire, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
			},
		},

		"unpublished quiz with drafts": {
			unpublished: true,
			req:         submission.GetQuestionnaireRequest{QuizID: "quiz1", Drafts: true},
			assert: func(t *testing.T, qn *domain.Questionnaire, err error) {
				require.NoError(t, err)
				assert.False(t, qn.Published)
				assert.Len(t, qn.Questions, 4)
			},
		},

		"unknown quiz": {
			req: submission.GetQuestionnaireRequest{QuizID: "missing", Drafts: true},
			assert: func(t *testing.T, _ *domain.Questionnaire, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, db := makeService(t)
			seedQuiz(t, db)
			if tt.unpublished {
				unpublish(t, db)
			}

			qn, err := s.GetQuestionnaire(context.Background(), tt.req)
			tt.assert(t, qn, err)
		})
	}
}

func TestService_ListSubmissions(t *testing.T) {
	ctx := context.Background()

	clock := now
	s, db := makeService(t, func(c *submission.Config) {
		c.Now = func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}
	})
	seedQuiz(t, db)

	var ids []string
	for _, user := range []string{"u1", "u2", "u3"} {
		sub, err := s.Submit(ctx, submission.SubmitRequest{
			QuizID: "quiz1",
			UserID: user,
			Answers: []submission.Answer{
				{QuestionID: "q1", OptionIDs: []string{"o1"}},
				{QuestionID: "q2", OptionIDs: []string{"o3"}},
			},
		})
		require.NoError(t, err)
		ids = append(ids, sub.SubmissionID)
	}

	subs, err := s.ListSubmissions(ctx, submission.ListSubmissionsRequest{QuizID: "quiz1"})
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, ids[2], subs[0].SubmissionID, "newest first")
	assert.Equal(t, "u3", subs[0].UserID)
	assert.Equal(t, ids[0], subs[2].SubmissionID)

	_, err = s.ListSubmissions(ctx, submission.ListSubmissionsRequest{QuizID: "missing"})
	assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

type faultyStore struct {
	store.Client

	answersErr error
}

func (f *faultyStore) Insert(ctx context.Context, table string, rows []store.Row) (int64, error) {
	if table == store.TableAnswers && f.answersErr != nil {
		return 0, f.answersErr
	}
	return f.Client.Insert(ctx, table, rows)
}

type options func(c *submission.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *submission.Config) {
		c.EventBus = eb
	}
}

func makeService(t *testing.T, opts ...options) (*submission.Service, *store.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := store.Open(ctx, store.Options{
		Driver: store.DriverSQLite,
		DSN:    store.SQLiteDSN(filepath.Join(t.TempDir(), "submission.db")),
	})
	require.NoError(t, err, "should be able to open sqlite")
	t.Cleanup(func() { _ = db.Close() })

	c := submission.Config{
		Store:    db,
		EventBus: event.NewBus(),
		Now:      func() time.Time { return now },
	}

	for _, opt := range opts {
		opt(&c)
	}

	return submission.NewService(c), db
}

// seedQuiz creates a quiz with a required single-choice question q1 (o1 correct, o2), a required
// multiple-choice question q2 (o3 and o4 correct, o5), an optional text question q3 and an
// optional number question q4.
func seedQuiz(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()

	_, err := db.Insert(ctx, store.TableQuizzes, []store.Row{
		{"id": "quiz1", "title": "Quiz", "is_published": true},
	})
	require.NoError(t, err)

	_, err = db.Insert(ctx, store.TableQuestions, []store.Row{
		{"id": "q1", "quiz_id": "quiz1", "label": "Pick one", "qtype": "single", "required": true, "order": 1},
		{"id": "q2", "quiz_id": "quiz1", "label": "Pick all", "qtype": "multiple", "required": true, "order": 2},
		{"id": "q3", "quiz_id": "quiz1", "label": "Comments", "qtype": "text", "required": false, "order": 3},
		{"id": "q4", "quiz_id": "quiz1", "label": "Years", "qtype": "number", "required": false, "order": 4},
	})
	require.NoError(t, err)

	_, err = db.Insert(ctx, store.TableOptions, []store.Row{
		{"id": "o1", "question_id": "q1", "text": "Yes", "correct": true, "order": 1},
		{"id": "o2", "question_id": "q1", "text": "No", "correct": false, "order": 2},
		{"id": "o3", "question_id": "q2", "text": "Red", "correct": true, "order": 1},
		{"id": "o4", "question_id": "q2", "text": "Blue", "correct": true, "order": 2},
		{"id": "o5", "question_id": "q2", "text": "Green", "correct": false, "order": 3},
	})
	require.NoError(t, err)
}

func unpublish(t *testing.T, db *store.DB) {
	t.Helper()

	_, err := db.Upsert(context.Background(), store.TableQuizzes, []store.Row{
		{"id": "quiz1", "title": "Quiz", "is_published": false},
	}, "id")
	require.NoError(t, err)
}

func selectAnswers(t *testing.T, db *store.DB) []domain.Answer {
	t.Helper()

	rows, err := db.Select(context.Background(), store.TableAnswers,
		[]string{"submission_id", "question_id", "option_id", "value_text", "value_number", "created_at"}, nil)
	require.NoError(t, err)

	var answers []domain.Answer
	require.NoError(t, store.Decode(rows, &answers))
	return answers
}
