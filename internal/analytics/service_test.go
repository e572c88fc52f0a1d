package analytics_test

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizlens/internal/analytics"
	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/errors"
	"github.com/victornm/quizlens/internal/score"
	"github.com/victornm/quizlens/internal/store"
)

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

var catalogue = []domain.Structure{
	{Code: "all", Label: "All structures"},
	{Code: "central", Label: "Central"},
	{Code: "srcf_cluj", Label: "SRCF Cluj"},
}

func TestService_Report(t *testing.T) {
	tests := map[string]struct {
		req    analytics.ReportRequest
		assert func(t *testing.T, r *domain.Report, err error)
	}{
		"all populations": {
			req: analytics.ReportRequest{QuizID: "quiz1", Structure: "all"},
			assert: func(t *testing.T, r *domain.Report, err error) {
				require.NoError(t, err)
				assert.Equal(t, "all", r.Population)

				assert.EqualValues(t, 4, r.Score.SubmissionsCount)
				assert.Equal(t, "75", r.Score.AvgScorePct.Decimal.String())
				assert.EqualValues(t, 1, r.Score.Histogram[0].Count)
				assert.EqualValues(t, 3, r.Score.Histogram[9].Count)

				require.Len(t, r.Options, 1)
				assert.Equal(t, "q1", r.Options[0].QuestionID)
				assert.EqualValues(t, 4, r.Options[0].Total)
				require.Len(t, r.Options[0].Rows, 2)
				assert.Equal(t, "Yes", r.Options[0].Rows[0].OptionText)
				assert.EqualValues(t, 3, r.Options[0].Rows[0].Count)
				assert.Equal(t, "75", r.Options[0].Rows[0].Percentage.String())
				assert.True(t, r.Options[0].Rows[0].Correct)
				assert.Equal(t, "No", r.Options[0].Rows[1].OptionText)
				assert.False(t, r.Options[0].Rows[1].Correct)

				require.Len(t, r.Numeric, 2)
				assert.Equal(t, "q2", r.Numeric[0].QuestionID)
				assert.Nil(t, r.Numeric[0].StructureCode)
				assert.EqualValues(t, 2, r.Numeric[0].N)
				assert.Equal(t, "15.00", analytics.FormatStat(r.Numeric[0].Avg))
				assert.Equal(t, "10.00", analytics.FormatStat(r.Numeric[0].Min))
				assert.Equal(t, "20.00", analytics.FormatStat(r.Numeric[0].Max))
				assert.Equal(t, "q4", r.Numeric[1].QuestionID, "unanswered numeric question is listed")
				assert.EqualValues(t, 0, r.Numeric[1].N)
				assert.Equal(t, analytics.Missing, analytics.FormatStat(r.Numeric[1].Avg))

				assert.Equal(t, []string{"ok", "bad", "good"}, textValues(r.TextSamples))
			},
		},

		"single population": {
			req: analytics.ReportRequest{QuizID: "quiz1", Structure: "Central"},
			assert: func(t *testing.T, r *domain.Report, err error) {
				require.NoError(t, err)
				assert.Equal(t, "central", r.Population)
				require.NotNil(t, r.Score.StructureCode)
				assert.Equal(t, "central", *r.Score.StructureCode)

				assert.EqualValues(t, 2, r.Score.SubmissionsCount)
				assert.Equal(t, "50", r.Score.AvgScorePct.Decimal.String())

				require.Len(t, r.Options, 1)
				assert.EqualValues(t, 2, r.Options[0].Total)
				assert.Equal(t, "50", r.Options[0].Rows[0].Percentage.String())

				require.Len(t, r.Numeric, 2)
				assert.Equal(t, "q2", r.Numeric[0].QuestionID)
				assert.EqualValues(t, 2, r.Numeric[0].N)
				assert.Equal(t, "15.00", analytics.FormatStat(r.Numeric[0].Avg))
				assert.Equal(t, "central", *r.Numeric[0].StructureCode)
				assert.Equal(t, "q4", r.Numeric[1].QuestionID, "unanswered numeric question is listed")
				assert.EqualValues(t, 0, r.Numeric[1].N)

				assert.Equal(t, []string{"bad", "good"}, textValues(r.TextSamples))
			},
		},

		"population without submissions": {
			req: analytics.ReportRequest{QuizID: "quiz1", Structure: "srcf_iasi"},
			assert: func(t *testing.T, r *domain.Report, err error) {
				require.NoError(t, err)
				assert.EqualValues(t, 0, r.Score.SubmissionsCount)
				assert.False(t, r.Score.AvgScorePct.Valid)
				assert.Len(t, r.Score.Histogram, 10)
				assert.Empty(t, r.Options)
				require.Len(t, r.Numeric, 2)
				for _, st := range r.Numeric {
					assert.EqualValues(t, 0, st.N, st.QuestionID)
					assert.False(t, st.Avg.Valid, st.QuestionID)
				}
				assert.Empty(t, r.TextSamples)
			},
		},

		"text samples are capped": {
			req: analytics.ReportRequest{QuizID: "quiz1", TextLimit: 2},
			assert: func(t *testing.T, r *domain.Report, err error) {
				require.NoError(t, err)
				assert.Equal(t, []string{"ok", "bad"}, textValues(r.TextSamples))
			},
		},

		"text limit above the maximum is clamped": {
			req: analytics.ReportRequest{QuizID: "quiz1", TextLimit: 1_000_000},
			assert: func(t *testing.T, r *domain.Report, err error) {
				require.NoError(t, err)
				assert.Len(t, r.TextSamples, 3)
			},
		},

		"negative text limit": {
			req: analytics.ReportRequest{QuizID: "quiz1", TextLimit: -1},
			assert: func(t *testing.T, _ *domain.Report, err error) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"malformed structure": {
			req: analytics.ReportRequest{QuizID: "quiz1", Structure: "central'--"},
			assert: func(t *testing.T, _ *domain.Report, err error) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"unknown quiz": {
			req: analytics.ReportRequest{QuizID: "missing"},
			assert: func(t *testing.T, _ *domain.Report, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound))
			},
		},
	}

	db := makeDB(t)
	seed(t, db)
	s := makeService(db)

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := s.Report(context.Background(), tt.req)
			tt.assert(t, r, err)
		})
	}
}

func TestService_ReportNumericAcrossPopulations(t *testing.T) {
	db := makeDB(t)
	seed(t, db)

	// s3 (srcf_cluj) also answers q2, so q2 has answers from two populations.
	_, err := db.Insert(context.Background(), store.TableAnswers, []store.Row{{
		"submission_id": "s3", "question_id": "q2", "option_id": nil,
		"value_text": nil, "value_number": 60.0, "created_at": t0.Add(24 * time.Hour),
	}})
	require.NoError(t, err)

	s := makeService(db)

	tests := map[string]struct {
		structure string
		n         int64
		avg       string
		min       string
		max       string
	}{
		"all populations are merged": {structure: "all", n: 3, avg: "30.00", min: "10.00", max: "60.00"},
		"central only":               {structure: "central", n: 2, avg: "15.00", min: "10.00", max: "20.00"},
		"srcf_cluj only":             {structure: "srcf_cluj", n: 1, avg: "60.00", min: "60.00", max: "60.00"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			r, err := s.Report(context.Background(), analytics.ReportRequest{QuizID: "quiz1", Structure: tt.structure})
			require.NoError(t, err)

			require.Len(t, r.Numeric, 2, "one stat per numeric question")
			q2 := r.Numeric[0]
			assert.Equal(t, "q2", q2.QuestionID)
			assert.Equal(t, tt.n, q2.N)
			assert.Equal(t, tt.avg, analytics.FormatStat(q2.Avg))
			assert.Equal(t, tt.min, analytics.FormatStat(q2.Min))
			assert.Equal(t, tt.max, analytics.FormatStat(q2.Max))

			assert.Equal(t, "q4", r.Numeric[1].QuestionID)
			assert.EqualValues(t, 0, r.Numeric[1].N)
			assert.Equal(t, analytics.Missing, analytics.FormatStat(r.Numeric[1].Avg))
		})
	}
}

func TestService_ReportFailsWhenAnyFetchFails(t *testing.T) {
	db := makeDB(t)
	seed(t, db)

	errStore := stderrors.New("view unavailable")
	s := makeService(&faultyStore{Client: db, table: store.ViewNumericStats, err: errStore})

	r, err := s.Report(context.Background(), analytics.ReportRequest{QuizID: "quiz1"})
	require.ErrorIs(t, err, errStore)
	assert.Nil(t, r)
}

func TestService_Dashboard(t *testing.T) {
	stat := func(t *testing.T, d *domain.Dashboard, label string) domain.StructureStat {
		t.Helper()
		for _, s := range d.Structures {
			if s.Label == label {
				return s
			}
		}
		t.Fatalf("no structure %q in dashboard", label)
		return domain.StructureStat{}
	}

	tests := map[string]struct {
		req    analytics.DashboardRequest
		assert func(t *testing.T, d *domain.Dashboard, err error)
	}{
		"whole history": {
			req: analytics.DashboardRequest{QuizID: "quiz1"},
			assert: func(t *testing.T, d *domain.Dashboard, err error) {
				require.NoError(t, err)
				assert.Equal(t, "Quiz", d.Title)
				assert.Nil(t, d.From)
				assert.Nil(t, d.To)
				assert.EqualValues(t, 4, d.Score.SubmissionsCount)

				require.Len(t, d.Structures, 3)
				assert.Equal(t, "Central", d.Structures[0].Label)
				assert.EqualValues(t, 2, d.Structures[0].SubmissionsCount)
				assert.Equal(t, "50", d.Structures[0].AvgScorePct.Decimal.String())
				assert.Equal(t, "SRCF Cluj", d.Structures[1].Label)
				assert.EqualValues(t, 1, d.Structures[1].SubmissionsCount)
				assert.Nil(t, d.Structures[2].Code)
				assert.Equal(t, "(unknown)", d.Structures[2].Label)
				assert.EqualValues(t, 1, d.Structures[2].SubmissionsCount)
			},
		},

		"single day window": {
			req: analytics.DashboardRequest{QuizID: "quiz1", From: "2025-03-01", To: "2025-03-01"},
			assert: func(t *testing.T, d *domain.Dashboard, err error) {
				require.NoError(t, err)
				require.NotNil(t, d.From)
				require.NotNil(t, d.To)
				assert.True(t, d.From.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
				assert.True(t, d.To.Equal(time.Date(2025, 3, 1, 23, 59, 59, 999999999, time.UTC)))

				assert.EqualValues(t, 2, d.Score.SubmissionsCount)
				assert.EqualValues(t, 2, stat(t, d, "Central").SubmissionsCount)

				cluj := stat(t, d, "SRCF Cluj")
				assert.EqualValues(t, 0, cluj.SubmissionsCount, "catalogued structures are listed without submissions")
				assert.False(t, cluj.AvgScorePct.Valid)
				assert.Len(t, d.Structures, 2)
			},
		},

		"open ended window": {
			req: analytics.DashboardRequest{QuizID: "quiz1", From: "2025-03-02"},
			assert: func(t *testing.T, d *domain.Dashboard, err error) {
				require.NoError(t, err)
				assert.EqualValues(t, 2, d.Score.SubmissionsCount)
				assert.Equal(t, "100", d.Score.AvgScorePct.Decimal.String())
			},
		},

		"population and window": {
			req: analytics.DashboardRequest{QuizID: "quiz1", Structure: "srcf_cluj", To: "2025-03-02"},
			assert: func(t *testing.T, d *domain.Dashboard, err error) {
				require.NoError(t, err)
				assert.Equal(t, "srcf_cluj", d.Population)
				assert.EqualValues(t, 1, d.Score.SubmissionsCount)
				assert.EqualValues(t, 0, stat(t, d, "Central").SubmissionsCount)
			},
		},

		"invalid date": {
			req: analytics.DashboardRequest{QuizID: "quiz1", From: "2025-13-01"},
			assert: func(t *testing.T, _ *domain.Dashboard, err error) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"reversed window": {
			req: analytics.DashboardRequest{QuizID: "quiz1", From: "2025-03-02", To: "2025-03-01"},
			assert: func(t *testing.T, _ *domain.Dashboard, err error) {
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
			},
		},

		"unknown quiz": {
			req: analytics.DashboardRequest{QuizID: "missing"},
			assert: func(t *testing.T, _ *domain.Dashboard, err error) {
				assert.True(t, errors.Is(err, errors.CodeNotFound))
			},
		},
	}

	db := makeDB(t)
	seed(t, db)
	s := makeService(db)

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			d, err := s.Dashboard(context.Background(), tt.req)
			tt.assert(t, d, err)
		})
	}
}

func TestService_Structures(t *testing.T) {
	s := makeService(makeDB(t))

	got := s.Structures()
	assert.Equal(t, catalogue, got)

	got[0].Label = "changed"
	assert.Equal(t, "All structures", s.Structures()[0].Label, "catalogue should not be shared")
}

type faultyStore struct {
	store.Client

	table string
	err   error
}

func (f *faultyStore) Select(ctx context.Context, table string, columns []string, filters []store.Filter, opts ...store.SelectOption) ([]store.Row, error) {
	if table == f.table {
		return nil, f.err
	}
	return f.Client.Select(ctx, table, columns, filters, opts...)
}

func makeService(db store.Client) *analytics.Service {
	return analytics.NewService(analytics.Config{
		Store:        db,
		Score:        score.NewService(score.Config{Store: db}),
		Structures:   catalogue,
		MaxTextLimit: 50,
	})
}

func makeDB(t *testing.T) *store.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := store.Open(ctx, store.Options{
		Driver: store.DriverSQLite,
		DSN:    store.SQLiteDSN(filepath.Join(t.TempDir(), "analytics.db")),
	})
	require.NoError(t, err, "should be able to open sqlite")
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// seed creates quiz1 with a single-choice question q1 (o1 "Yes" correct, o2 "No"), numeric
// questions q2 and q4, a text question q3, and four submissions:
//
//	s1 central    t0       picks Yes, 10, "good"
//	s2 central    t0+1h    picks No,  20, "bad"
//	s3 srcf_cluj  t0+1d    picks Yes,     "ok"
//	s4 (none)     t0+2d    picks Yes
func seed(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()

	insert := func(table string, rows ...store.Row) {
		_, err := db.Insert(ctx, table, rows)
		require.NoError(t, err, "seed %s", table)
	}

	insert(store.TableQuizzes, store.Row{"id": "quiz1", "title": "Quiz", "is_published": true})
	insert(store.TableQuestions,
		store.Row{"id": "q1", "quiz_id": "quiz1", "label": "Q1. Agree?", "qtype": "single", "required": true, "order": 1},
		store.Row{"id": "q2", "quiz_id": "quiz1", "label": "Q2. Years", "qtype": "number", "required": false, "order": 2},
		store.Row{"id": "q3", "quiz_id": "quiz1", "label": "Q3. Comments", "qtype": "text", "required": false, "order": 3},
		store.Row{"id": "q4", "quiz_id": "quiz1", "label": "Q4. Hours", "qtype": "number", "required": false, "order": 4},
	)
	insert(store.TableOptions,
		store.Row{"id": "o1", "question_id": "q1", "text": "Yes", "correct": true, "order": 1},
		store.Row{"id": "o2", "question_id": "q1", "text": "No", "correct": false, "order": 2},
	)

	central, cluj := "central", "srcf_cluj"
	subs := []struct {
		id        string
		structure *string
		at        time.Time
		option    string
		number    *float64
		text      *string
	}{
		{"s1", &central, t0, "o1", ptr(10.0), ptr("good")},
		{"s2", &central, t0.Add(time.Hour), "o2", ptr(20.0), ptr("bad")},
		{"s3", &cluj, t0.Add(24 * time.Hour), "o1", nil, ptr("ok")},
		{"s4", nil, t0.Add(48 * time.Hour), "o1", nil, nil},
	}

	for _, s := range subs {
		insert(store.TableSubmissions, store.Row{
			"id": s.id, "user_id": "u-" + s.id, "quiz_id": "quiz1", "structure_code": s.structure, "created_at": s.at,
		})

		answer := func(questionID string, optionID, text *string, number *float64) store.Row {
			return store.Row{
				"submission_id": s.id, "question_id": questionID, "option_id": optionID,
				"value_text": text, "value_number": number, "created_at": s.at,
			}
		}

		insert(store.TableAnswers, answer("q1", &s.option, nil, nil))
		if s.number != nil {
			insert(store.TableAnswers, answer("q2", nil, nil, s.number))
		}
		if s.text != nil {
			insert(store.TableAnswers, answer("q3", nil, s.text, nil))
		}
	}
}

func textValues(samples []domain.TextSample) []string {
	values := make([]string, 0, len(samples))
	for _, s := range samples {
		values = append(values, *s.Value)
	}
	return values
}

func ptr[T any](v T) *T { return &v }
