package analytics

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/errors"
	"github.com/victornm/quizlens/internal/score"
	"github.com/victornm/quizlens/internal/telemetry"
)

const (
	dateLayout   = "2006-01-02"
	unknownLabel = "(unknown)"
)

// DashboardRequest selects the submissions of a quiz. From and To are dates (YYYY-MM-DD)
// bounding the submission time inclusively, in UTC; either may be empty.
type DashboardRequest struct {
	QuizID    string
	Structure string
	From      string
	To        string
}

// Dashboard counts the submissions in the window and summarizes their scores, overall and per
// population. Every catalogued population is listed, even without submissions.
func (s *Service) Dashboard(ctx context.Context, req DashboardRequest) (*domain.Dashboard, error) {
	defer telemetry.TimeReport("dashboard")()

	structure, err := parseStructure(req.Structure)
	if err != nil {
		return nil, err
	}

	from, to, err := parseWindow(req.From, req.To)
	if err != nil {
		return nil, err
	}

	quiz, err := s.getQuiz(ctx, req.QuizID)
	if err != nil {
		return nil, err
	}

	scores, err := s.score.ListScores(ctx, score.ListScoresRequest{
		QuizID:    req.QuizID,
		Structure: structure,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, err
	}

	d := &domain.Dashboard{
		QuizID:     quiz.QuizID,
		Title:      quiz.Title,
		Population: population(structure),
		From:       from,
		To:         to,
		Score:      score.SummarizeScores(scores),
		Structures: s.structureStats(scores),
	}
	d.Score.StructureCode = structure

	return d, nil
}

func (s *Service) structureStats(scores []domain.Score) []domain.StructureStat {
	var (
		groups  = make(map[string][]domain.Score)
		unknown []domain.Score
	)
	for _, sc := range scores {
		if sc.StructureCode == nil {
			unknown = append(unknown, sc)
			continue
		}
		groups[*sc.StructureCode] = append(groups[*sc.StructureCode], sc)
	}

	stat := func(code *string, label string, group []domain.Score) domain.StructureStat {
		summary := score.SummarizeScores(group)
		return domain.StructureStat{
			Code:             code,
			Label:            label,
			SubmissionsCount: int64(len(group)),
			AvgScorePct:      summary.AvgScorePct,
		}
	}

	stats := make([]domain.StructureStat, 0, len(s.structures)+len(groups)+1)
	seen := make(map[string]bool)
	for _, st := range s.structures {
		if st.Code == domain.StructureAll || seen[st.Code] {
			continue
		}
		seen[st.Code] = true
		stats = append(stats, stat(&st.Code, st.Label, groups[st.Code]))
	}

	var extra []string
	for code := range groups {
		if !seen[code] {
			extra = append(extra, code)
		}
	}
	slices.Sort(extra)
	for _, code := range extra {
		stats = append(stats, stat(&code, code, groups[code]))
	}

	if len(unknown) > 0 {
		stats = append(stats, stat(nil, unknownLabel, unknown))
	}

	return stats
}

// parseWindow turns the date bounds into the start of the first day and the last instant of
// the last day, in UTC.
func parseWindow(rawFrom, rawTo string) (from, to *time.Time, err error) {
	if v := strings.TrimSpace(rawFrom); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, nil, errors.InvalidArgument("invalid from date %q, expected YYYY-MM-DD", rawFrom)
		}
		from = &t
	}

	if v := strings.TrimSpace(rawTo); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, nil, errors.InvalidArgument("invalid to date %q, expected YYYY-MM-DD", rawTo)
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		to = &t
	}

	if from != nil && to != nil && from.After(*to) {
		return nil, nil, errors.InvalidArgument("from date %s is after to date %s", rawFrom, rawTo)
	}

	return from, to, nil
}
