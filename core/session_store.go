package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "session:"
	activityKeyPrefix = "activity:"

	// Sessions abandoned without a sessionEnd expire on their own.
	sessionTTL = 24 * time.Hour

	// Daily counters are kept long enough for weekly-goal views.
	activityTTL = 14 * 24 * time.Hour
)

// StudySession is the persisted record of one study session.
type StudySession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	StartedAt time.Time `json:"startedAt"`
}

// ActivitySummary is the per-user view served by the activity endpoint.
type ActivitySummary struct {
	UserID         string `json:"userId"`
	TodayMinutes   int64  `json:"todayMinutes"`
	ActiveSessions int    `json:"activeSessions"`
}

// SessionStore records study sessions and per-user daily study minutes in
// Redis. Sessions are keyed session:<id> with a TTL; minutes accumulate in
// activity:<user>:<day> counters.
type SessionStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client, now: time.Now}
}

// Start persists a new session record under a TTL.
func (s *SessionStore) Start(ctx context.Context, sessionID, userID string, startedAt time.Time) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	b, err := json.Marshal(StudySession{ID: sessionID, UserID: userID, StartedAt: startedAt})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+sessionID, b, sessionTTL).Err()
}

// End closes a session: credits the elapsed minutes to the owner's daily
// counter and removes the session key. Ending an unknown/expired session is
// a no-op.
func (s *SessionStore) End(ctx context.Context, sessionID string, endedAt time.Time) error {
	key := sessionKeyPrefix + sessionID
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	var session StudySession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return err
	}

	if session.UserID != "" {
		minutes := int64(endedAt.Sub(session.StartedAt).Minutes())
		if minutes < 0 {
			minutes = 0
		}
		dayKey := activityKey(session.UserID, endedAt)
		if err := s.client.IncrBy(ctx, dayKey, minutes).Err(); err != nil {
			return err
		}
		if err := s.client.Expire(ctx, dayKey, activityTTL).Err(); err != nil {
			return err
		}
	}

	return s.client.Del(ctx, key).Err()
}

// Summary returns today's study minutes and the number of open sessions for
// a user.
func (s *SessionStore) Summary(ctx context.Context, userID string) (ActivitySummary, error) {
	out := ActivitySummary{UserID: userID}

	minutes, err := s.client.Get(ctx, activityKey(userID, s.now())).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return out, err
	}
	if minutes != "" {
		_, err := fmt.Sscanf(minutes, "%d", &out.TodayMinutes)
		if err != nil {
			return out, err
		}
	}

	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		var session StudySession
		if json.Unmarshal([]byte(raw), &session) == nil && session.UserID == userID {
			out.ActiveSessions++
		}
	}
	return out, iter.Err()
}

func activityKey(userID string, day time.Time) string {
	return activityKeyPrefix + userID + ":" + day.UTC().Format("2006-01-02")
}
