// Package notify relays domain events to Redis channels so open editors and dashboards know
// when to re-fetch.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizlens/internal/domain"
	"github.com/victornm/quizlens/internal/event"
)

const DefaultInterval = 200 * time.Millisecond

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

type Config struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string

	// Interval is the minimum gap between two submission notifications of the same quiz.
	Interval time.Duration
}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	OptionsCommitted struct {
		QuizID     string          `json:"quiz_id"`
		QuestionID string          `json:"question_id"`
		Options    []domain.Option `json:"options"`
		Deleted    []string        `json:"deleted"`
	}

	SubmissionRecorded struct {
		QuizID        string    `json:"quiz_id"`
		SubmissionID  string    `json:"submission_id"`
		StructureCode *string   `json:"structure_code"`
		CreateTime    time.Time `json:"created_at"`
		Answers       int       `json:"answers"`
	}
)

type Notifier struct {
	redis    Redis
	prefix   string
	interval time.Duration
}

func New(c Config) *Notifier {
	n := &Notifier{
		redis:    c.Redis,
		prefix:   c.Prefix,
		interval: c.Interval,
	}
	if n.interval <= 0 {
		n.interval = DefaultInterval
	}

	c.EventBus.Subscribe(domain.EventNameOptionsCommitted, func(ctx context.Context, e event.Event) error {
		return n.PublishOptionsCommitted(ctx, e.(domain.EventOptionsCommitted))
	})

	c.EventBus.Subscribe(domain.EventNameSubmissionRecorded, func(ctx context.Context, e event.Event) error {
		return n.PublishSubmissionRecorded(ctx, e.(domain.EventSubmissionRecorded))
	})

	return n
}

// PublishOptionsCommitted notifies both the quiz and the question channel.
func (n *Notifier) PublishOptionsCommitted(ctx context.Context, e domain.EventOptionsCommitted) error {
	data := OptionsCommitted{
		QuizID:     e.QuizID,
		QuestionID: e.QuestionID,
		Options:    e.Options,
		Deleted:    e.Deleted,
	}
	if data.Options == nil {
		data.Options = []domain.Option{}
	}
	if data.Deleted == nil {
		data.Deleted = []string{}
	}

	var eg errgroup.Group
	for _, channel := range []string{n.QuizChannel(e.QuizID), n.QuestionChannel(e.QuestionID)} {
		eg.Go(func() error {
			return n.publish(ctx, channel, e.Name(), data)
		})
	}

	return eg.Wait()
}

// PublishSubmissionRecorded notifies the quiz channel, at most once per interval. Submissions
// arrive in bursts and a dashboard only needs to know that it is stale.
func (n *Notifier) PublishSubmissionRecorded(ctx context.Context, e domain.EventSubmissionRecorded) error {
	sub := e.Submission

	ok, err := n.redis.SetNX(ctx, n.throttleKey(sub.QuizID), sub.CreateTime.UnixMilli(), n.interval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return n.publish(ctx, n.QuizChannel(sub.QuizID), e.Name(), SubmissionRecorded{
		QuizID:        sub.QuizID,
		SubmissionID:  sub.SubmissionID,
		StructureCode: sub.StructureCode,
		CreateTime:    sub.CreateTime,
		Answers:       e.Answers,
	})
}

func (n *Notifier) QuizChannel(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s", n.prefix, quizID)
}

func (n *Notifier) QuestionChannel(questionID string) string {
	return fmt.Sprintf("%s:question:%s", n.prefix, questionID)
}

func (n *Notifier) throttleKey(quizID string) string {
	return fmt.Sprintf("%s:quiz:%s:notified", n.prefix, quizID)
}

func (n *Notifier) publish(ctx context.Context, channel, event string, data any) error {
	b, err := json.Marshal(Notification{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %v", event, err)
	}

	return n.redis.Publish(ctx, channel, b).Err()
}
