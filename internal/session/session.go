// Package session manages short-lived authenticated sessions in the
// shared cache: opaque identifiers, a 30-minute sliding idle timeout, and
// a per-subject index of live session ids.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the idle timeout applied to every session.
const DefaultTTL = 30 * time.Minute

// Subject identifies the logged-in principal. All fields are required.
type Subject struct {
	ID    string
	Email string
	Role  string
}

// Session is the cached record behind one session id.
type Session struct {
	ID           string `json:"-"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Role         string `json:"user_type"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

// Store reads and writes session state in the shared cache.
type Store struct {
	rdb *redis.Client
	ttl time.Duration

	// Now is the time source; overridable for tests.
	Now func() time.Time
}

// NewStore builds a session store with the given idle timeout; a zero
// ttl means DefaultTTL.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, Now: time.Now}
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

func indexKey(subject string) string {
	return fmt.Sprintf("user:%s:sessions", subject)
}

// Create validates the subject, mints an opaque session id and stores the
// record plus its index entry. Nothing is written when validation fails.
func (s *Store) Create(ctx context.Context, sub Subject) (string, error) {
	if sub.ID == "" {
		return "", errors.New("session: subject id is required")
	}
	if sub.Email == "" {
		return "", errors.New("session: subject email is required")
	}
	if sub.Role == "" {
		return "", errors.New("session: subject role is required")
	}

	id := uuid.NewString()
	now := s.Now().UTC().Format(time.RFC3339)
	sess := Session{
		UserID:       sub.ID,
		Email:        sub.Email,
		Role:         sub.Role,
		CreatedAt:    now,
		LastActivity: now,
	}
	b, _ := json.Marshal(sess)

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(id), b, s.ttl)
		pipe.SAdd(ctx, indexKey(sub.ID), id)
		pipe.Expire(ctx, indexKey(sub.ID), s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}

	log.Printf("session: created for subject %s", sub.ID)
	return id, nil
}

// Get fetches and refreshes a session. A present session has its
// last-activity bumped and both the record and the subject index slid
// forward by the idle timeout. Absent or unreadable sessions report
// (nil, false).
func (s *Store) Get(ctx context.Context, id string) (*Session, bool) {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Printf("session: get: %v", err)
		return nil, false
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		log.Printf("session: malformed record %s: %v", id, err)
		return nil, false
	}
	sess.ID = id

	sess.LastActivity = s.Now().UTC().Format(time.RFC3339)
	b, _ := json.Marshal(sess)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(id), b, s.ttl)
		pipe.Expire(ctx, indexKey(sess.UserID), s.ttl)
		return nil
	})
	if err != nil {
		log.Printf("session: refresh: %v", err)
	}

	return &sess, true
}

// End removes a session and its index entry together. Ending a session
// that does not exist returns false, not an error.
func (s *Store) End(ctx context.Context, id string) bool {
	raw, err := s.rdb.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Printf("session: end: %v", err)
		return false
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		// Unreadable record: delete it anyway, nothing to unindex.
		_ = s.rdb.Del(ctx, sessionKey(id)).Err()
		return false
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, indexKey(sess.UserID), id)
		return nil
	})
	if err != nil {
		log.Printf("session: end: %v", err)
		return false
	}
	return true
}

// ListForSubject enumerates a subject's live sessions, fetching all
// referenced records in one batched round-trip. Index entries whose
// record is missing or unreadable are pruned on the way.
func (s *Store) ListForSubject(ctx context.Context, subject string) []Session {
	ids, err := s.rdb.SMembers(ctx, indexKey(subject)).Result()
	if err != nil {
		log.Printf("session: list: %v", err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	cmds := make([]*redis.StringCmd, len(ids))
	_, _ = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Get(ctx, sessionKey(id))
		}
		return nil
	})

	var sessions []Session
	for i, id := range ids {
		raw, err := cmds[i].Result()
		if err != nil {
			// Expired or unreadable: self-heal the index.
			_ = s.rdb.SRem(ctx, indexKey(subject), id).Err()
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			log.Printf("session: malformed record %s: %v", id, err)
			_ = s.rdb.SRem(ctx, indexKey(subject), id).Err()
			continue
		}
		sess.ID = id
		sessions = append(sessions, sess)
	}

	return sessions
}

// Cleanup scans for session records whose TTL has already reached zero
// and removes them. Defensive only: normal expiry is the cache's job.
func (s *Store) Cleanup(ctx context.Context) {
	iter := s.rdb.Scan(ctx, 0, "session:*", 0).Iterator()
	for iter.Next(ctx) {
		ttl, err := s.rdb.TTL(ctx, iter.Val()).Result()
		if err != nil {
			continue
		}
		if ttl <= 0 {
			_ = s.rdb.Del(ctx, iter.Val()).Err()
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("session: cleanup scan: %v", err)
	}
}
