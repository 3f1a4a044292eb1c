package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"reading-study-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Flow controllers hold timers and live in-process, so the session itself
//     stays in a local map.
//   - Redis carries a liveness marker per session (study and participant) so
//     operators can see active runs across instances; it expires when a
//     participant goes idle for longer than the TTL.
//   - Local entries are reclaimed by EvictIdle, since the marker expiring
//     does not touch the local map.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) Save(session *app.Session) {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()

	// best-effort liveness marker
	ctx := context.Background()
	key := s.key(session.ID())
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "study_id", session.StudyID(), "participant_id", session.ParticipantID())
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}

// Touch extends the liveness marker after participant activity.
func (s *SessionStore) Touch(sessionID string) {
	if s.ttl <= 0 {
		return
	}
	_ = s.client.Expire(context.Background(), s.key(sessionID), s.ttl).Err()
}

func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	_ = s.client.Del(context.Background(), s.key(sessionID)).Err()
}

// EvictIdle drops local sessions with no participant event since cutoff,
// together with their liveness markers, and returns their IDs.
func (s *SessionStore) EvictIdle(cutoff time.Time) []string {
	s.mu.Lock()
	var evicted []string
	for id, session := range s.sessions {
		if session.IdleSince(cutoff) {
			delete(s.sessions, id)
			evicted = append(evicted, id)
		}
	}
	s.mu.Unlock()

	if len(evicted) > 0 {
		keys := make([]string, 0, len(evicted))
		for _, id := range evicted {
			keys = append(keys, s.key(id))
		}
		_ = s.client.Del(context.Background(), keys...).Err()
	}
	return evicted
}

// ActiveCount counts liveness markers across all instances sharing the Redis.
func (s *SessionStore) ActiveCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "study:session:*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "study:session:" + sessionID
}
