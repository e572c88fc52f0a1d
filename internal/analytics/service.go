// Package analytics builds the read-only reports of a quiz from the aggregate views: option
// distributions, numeric statistics, latest free-text answers and score summaries.
package analytics

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/errors"
	"github.com/victornm/quizlens/internal/score"
	"github.com/victornm/quizlens/internal/store"
	"github.com/victornm/quizlens/internal/telemetry"
)

const (
	DefaultTextLimit    = 100
	DefaultMaxTextLimit = 1000
)

type Config struct {
	Store store.Client
	Score *score.Service

	// Structures is the catalogue of known populations.
	Structures []domain.Structure

	// TextLimit is the number of text samples returned when a request does not ask for a
	// number. MaxTextLimit caps what a request may ask for.
	TextLimit    int
	MaxTextLimit int
}

type Service struct {
	db         store.Client
	score      *score.Service
	structures []domain.Structure

	textLimit    int
	maxTextLimit int
}

func NewService(c Config) *Service {
	s := &Service{
		db:           c.Store,
		score:        c.Score,
		structures:   c.Structures,
		textLimit:    c.TextLimit,
		maxTextLimit: c.MaxTextLimit,
	}

	if s.maxTextLimit <= 0 {
		s.maxTextLimit = DefaultMaxTextLimit
	}
	if s.textLimit <= 0 {
		s.textLimit = DefaultTextLimit
	}
	s.textLimit = min(s.textLimit, s.maxTextLimit)

	return s
}

// Structures returns the population catalogue.
func (s *Service) Structures() []domain.Structure {
	return slices.Clone(s.structures)
}

type ReportRequest struct {
	QuizID string
	// Structure is a structure code, "all" or empty for every population.
	Structure string
	// TextLimit caps the text samples. Zero means the configured default.
	TextLimit int
}

// Report fetches every aggregate of the quiz in parallel. A failed fetch fails the whole report.
func (s *Service) Report(ctx context.Context, req ReportRequest) (*domain.Report, error) {
	defer telemetry.TimeReport("analytics")()

	structure, err := parseStructure(req.Structure)
	if err != nil {
		return nil, err
	}

	limit, err := s.limit(req.TextLimit)
	if err != nil {
		return nil, err
	}

	if _, err := s.getQuiz(ctx, req.QuizID); err != nil {
		return nil, err
	}

	r := &domain.Report{
		QuizID:     req.QuizID,
		Population: population(structure),
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() (err error) {
		r.Options, err = s.optionTables(ctx, req.QuizID, structure)
		return err
	})

	eg.Go(func() (err error) {
		r.Numeric, err = s.numericStats(ctx, req.QuizID, structure)
		return err
	})

	eg.Go(func() (err error) {
		r.TextSamples, err = s.textSamples(ctx, req.QuizID, structure, limit)
		return err
	})

	eg.Go(func() error {
		summary, err := s.score.GetSummary(ctx, score.ListScoresRequest{
			QuizID:    req.QuizID,
			Structure: structure,
		})
		if err != nil {
			return err
		}
		r.Score = *summary
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("analytics: report: %w", err)
	}

	return r, nil
}

func (s *Service) optionTables(ctx context.Context, quizID string, structure *string) ([]domain.OptionTable, error) {
	rows, err := s.db.Select(ctx, store.ViewOptionCounts,
		[]string{"structure_code", "question_id", "question_label", "option_id", "option_text", "option_count"},
		populationFilters(quizID, structure),
		store.OrderBy("question_id", false),
		store.OrderBy("option_order", false),
		store.OrderBy("option_id", false),
	)
	if err != nil {
		return nil, fmt.Errorf("select option counts: %w", err)
	}

	var counts []OptionCount
	if err := store.Decode(rows, &counts); err != nil {
		return nil, err
	}

	var ids []string
	for _, c := range counts {
		if !slices.Contains(ids, c.QuestionID) {
			ids = append(ids, c.QuestionID)
		}
	}

	correct, err := s.correctSet(ctx, ids)
	if err != nil {
		return nil, err
	}

	return OptionTables(counts, correct), nil
}

func (s *Service) correctSet(ctx context.Context, questionIDs []string) (CorrectSet, error) {
	set := make(CorrectSet)
	if len(questionIDs) == 0 {
		return set, nil
	}

	rows, err := s.db.Select(ctx, store.TableOptions, []string{"id", "question_id"},
		[]store.Filter{store.In("question_id", questionIDs), store.Eq("correct", true)},
	)
	if err != nil {
		return nil, fmt.Errorf("select correct options: %w", err)
	}

	var options []domain.Option
	if err := store.Decode(rows, &options); err != nil {
		return nil, err
	}

	for _, o := range options {
		set.Add(o.QuestionID, o.OptionID)
	}
	return set, nil
}

// numericStats lists every numeric question of the quiz, answered or not, with its stats over
// the population.
func (s *Service) numericStats(ctx context.Context, quizID string, structure *string) ([]domain.NumericStat, error) {
	qrows, err := s.db.Select(ctx, store.TableQuestions, []string{"id", "label"},
		[]store.Filter{store.Eq("quiz_id", quizID), store.Eq("qtype", string(domain.QTypeNumber))},
		store.OrderBy("order", false),
	)
	if err != nil {
		return nil, fmt.Errorf("select numeric questions: %w", err)
	}

	var questions []domain.Question
	if err := store.Decode(qrows, &questions); err != nil {
		return nil, err
	}

	rows, err := s.db.Select(ctx, store.ViewNumericStats,
		[]string{"structure_code", "question_id", "question_label", "n", "total", "min", "max"},
		populationFilters(quizID, structure),
		store.OrderBy("question_id", false),
	)
	if err != nil {
		return nil, fmt.Errorf("select numeric stats: %w", err)
	}

	var stats []NumericRow
	if err := store.Decode(rows, &stats); err != nil {
		return nil, err
	}

	seeded := make([]NumericRow, 0, len(questions)+len(stats))
	for _, q := range questions {
		seeded = append(seeded, NumericRow{QuestionID: q.QuestionID, QuestionLabel: q.Label})
	}

	return NumericStats(append(seeded, stats...), structure), nil
}

func (s *Service) textSamples(ctx context.Context, quizID string, structure *string, limit int) ([]domain.TextSample, error) {
	rows, err := s.db.Select(ctx, store.ViewTextLatest,
		[]string{"structure_code", "question_id", "question_label", "value_text", "created_at"},
		populationFilters(quizID, structure),
		store.OrderBy("created_at", true),
		store.Limit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("select text answers: %w", err)
	}

	var texts []TextRow
	if err := store.Decode(rows, &texts); err != nil {
		return nil, err
	}

	return TextSamples(texts, limit), nil
}

func (s *Service) getQuiz(ctx context.Context, quizID string) (*domain.Quiz, error) {
	rows, err := s.db.Select(ctx, store.TableQuizzes, []string{"id", "title", "description", "is_published"},
		[]store.Filter{store.Eq("id", quizID)})
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

func (s *Service) limit(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, errors.InvalidArgument("text limit must not be negative")
	case requested == 0:
		return s.textLimit, nil
	}
	return min(requested, s.maxTextLimit), nil
}

func parseStructure(raw string) (*string, error) {
	structure, ok := domain.ParseStructure(raw)
	if !ok {
		return nil, errors.InvalidArgument("invalid structure code %q", raw)
	}
	return structure, nil
}

func population(structure *string) string {
	if structure == nil {
		return domain.StructureAll
	}
	return *structure
}

func populationFilters(quizID string, structure *string) []store.Filter {
	filters := []store.Filter{store.Eq("quiz_id", quizID)}
	if structure != nil {
		filters = append(filters, store.Eq("structure_code", *structure))
	}
	return filters
}
