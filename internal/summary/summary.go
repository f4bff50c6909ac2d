// Package summary builds the compact academic context handed to the
// assistant as its system prompt. The upcoming-event count is computed under
// the principal's own schedule scope, so the assistant never sees more than
// the user could query directly.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ANADelta/AlphaClassBot-App2/internal/model"
)

type Store interface {
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	CountActiveEnrollments(ctx context.Context, studentID string) (int, error)
	CountTaughtClasses(ctx context.Context, teacherID string) (int, error)
	CountUpcomingEvents(ctx context.Context, p model.Principal, after time.Time) (int, error)
}

// Summary is assistant-prompt material, never a committed record returned
// to clients.
type Summary struct {
	DisplayName     string `json:"display_name"`
	Role            string `json:"role"`
	Timezone        string `json:"timezone"`
	EnrolledClasses int    `json:"enrolled_classes"`
	TeachingClasses int    `json:"teaching_classes"`
	UpcomingEvents  int    `json:"upcoming_events"`
}

type Summarizer struct {
	store Store
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func New(store Store, redisClient *redis.Client, ttl time.Duration) *Summarizer {
	return &Summarizer{
		store: store,
		redis: redisClient,
		ttl:   ttl,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Summarizer) Summarize(ctx context.Context, p model.Principal) (Summary, error) {
	if cached, ok := s.loadCached(ctx, p.UserID); ok {
		return cached, nil
	}

	user, err := s.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		DisplayName: user.Name,
		Role:        user.Role,
		Timezone:    user.Timezone,
	}
	switch p.Role {
	case model.RoleStudent:
		enrolled, err := s.store.CountActiveEnrollments(ctx, p.UserID)
		if err != nil {
			return Summary{}, err
		}
		sum.EnrolledClasses = enrolled
	case model.RoleTeacher:
		teaching, err := s.store.CountTaughtClasses(ctx, p.UserID)
		if err != nil {
			return Summary{}, err
		}
		sum.TeachingClasses = teaching
	}

	upcoming, err := s.store.CountUpcomingEvents(ctx, p, s.now())
	if err != nil {
		return Summary{}, err
	}
	sum.UpcomingEvents = upcoming

	s.storeCached(ctx, p.UserID, sum)
	return sum, nil
}

// SystemPrompt renders the contextual preamble for the inference backend.
func (s *Summarizer) SystemPrompt(sum Summary) string {
	classLine := fmt.Sprintf("Enrolled Classes: %d", sum.EnrolledClasses)
	if sum.Role == model.RoleTeacher {
		classLine = fmt.Sprintf("Teaching Classes: %d", sum.TeachingClasses)
	}
	return fmt.Sprintf(`You are AlphaClassBot, an AI assistant for academic scheduling.
User: %s (%s)
Timezone: %s
%s
Upcoming Events: %d

Help with scheduling, reminders, class information, and academic planning.
Be helpful, concise, and educational-focused.`,
		sum.DisplayName, sum.Role, sum.Timezone, classLine, sum.UpcomingEvents)
}

func cacheKey(userID string) string {
	return fmt.Sprintf("context_summary:%s", userID)
}

func (s *Summarizer) loadCached(ctx context.Context, userID string) (Summary, bool) {
	if s.redis == nil {
		return Summary{}, false
	}
	value, err := s.redis.Get(ctx, cacheKey(userID)).Result()
	if err == redis.Nil || err != nil {
		return Summary{}, false
	}
	var sum Summary
	if err := json.Unmarshal([]byte(value), &sum); err != nil {
		return Summary{}, false
	}
	return sum, true
}

func (s *Summarizer) storeCached(ctx context.Context, userID string, sum Summary) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, cacheKey(userID), data, s.ttl).Err()
}
