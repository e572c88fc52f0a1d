package score

import (
	"context"
	"fmt"
	"time"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/store"
)

var scoreColumns = []string{"submission_id", "user_id", "structure_code", "created_at", "score_pct"}

type Config struct {
	Store store.Client
}

// Service reads the per-submission scores of the quiz scores view.
type Service struct {
	db store.Client
}

func NewService(c Config) *Service {
	return &Service{
		db: c.Store,
	}
}

// ListScoresRequest selects the scores of a quiz. A nil Structure selects every population;
// From and To bound the submission time inclusively when set.
type ListScoresRequest struct {
	QuizID    string
	Structure *string
	From      *time.Time
	To        *time.Time
}

// ListScores returns the scores of a quiz, newest first.
func (s *Service) ListScores(ctx context.Context, req ListScoresRequest) ([]domain.Score, error) {
	filters := []store.Filter{store.Eq("quiz_id", req.QuizID)}
	if req.Structure != nil {
		filters = append(filters, store.Eq("structure_code", *req.Structure))
	}
	if req.From != nil {
		filters = append(filters, store.Gte("created_at", *req.From))
	}
	if req.To != nil {
		filters = append(filters, store.Lte("created_at", *req.To))
	}

	rows, err := s.db.Select(ctx, store.ViewQuizScores, scoreColumns, filters,
		store.OrderBy("created_at", true),
		store.OrderBy("submission_id", true),
	)
	if err != nil {
		return nil, fmt.Errorf("select scores: %w", err)
	}

	scores := make([]domain.Score, 0, len(rows))
	if err := store.Decode(rows, &scores); err != nil {
		return nil, err
	}

	return scores, nil
}

// GetSummary lists and summarizes the scores of a quiz.
func (s *Service) GetSummary(ctx context.Context, req ListScoresRequest) (*domain.ScoreSummary, error) {
	scores, err := s.ListScores(ctx, req)
	if err != nil {
		return nil, err
	}

	summary := SummarizeScores(scores)
	summary.StructureCode = req.Structure
	return &summary, nil
}
