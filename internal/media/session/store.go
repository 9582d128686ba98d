// Package session keeps the short-lived per-user media conversation state.
package session

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/diarybot/diarybot/internal/media"
)

const (
	DefaultTTL = 10 * time.Minute
	shardCount = 32
)

// Session is the last media search of one user.
type Session struct {
	Query      string
	Candidates []media.CandidateRecord
	CreatedAt  time.Time
}

type shard struct {
	mu    sync.Mutex
	items map[string]Session
}

// Store is an in-process session cache sharded by user key. Expired
// entries are evicted when read.
type Store struct {
	ttl    time.Duration
	now    func() time.Time
	shards [shardCount]*shard
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(ttl time.Duration, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{ttl: ttl, now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]Session)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the unexpired session for key.
func (s *Store) Get(key string) (Session, bool) {
	if key == "" {
		return Session{}, false
	}
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sess, ok := sh.items[key]
	if !ok {
		return Session{}, false
	}
	if s.now().Sub(sess.CreatedAt) >= s.ttl {
		delete(sh.items, key)
		return Session{}, false
	}
	return copySession(sess), true
}

// Set overwrites the session for key. An empty candidate list is kept
// so a later hint still has the query to refine.
func (s *Store) Set(key, query string, candidates []media.CandidateRecord) {
	if key == "" {
		return
	}
	sh := s.shard(key)
	sh.mu.Lock()
	sh.items[key] = copySession(Session{Query: query, Candidates: candidates, CreatedAt: s.now()})
	sh.mu.Unlock()
}

// Clear removes the session for key.
func (s *Store) Clear(key string) {
	if key == "" {
		return
	}
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
}

// Sweep drops every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, sess := range sh.items {
			if now.Sub(sess.CreatedAt) >= s.ttl {
				delete(sh.items, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}

func (s *Store) shard(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func copySession(sess Session) Session {
	if sess.Candidates != nil {
		sess.Candidates = append([]media.CandidateRecord(nil), sess.Candidates...)
	}
	return sess
}
