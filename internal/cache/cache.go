// Package cache persists last-known conversation state for instant
// redisplay when a conversation is reselected. It is a convenience cache,
// not a source of truth: the detail fetch always supersedes its content.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/funnelworks/inbox-engine/internal/model"
	"github.com/funnelworks/inbox-engine/pkg/logger"
	"github.com/funnelworks/inbox-engine/pkg/metrics"
)

const defaultDebounce = 1500 * time.Millisecond

// Store is a BoltDB-backed cache keyed by (tenant, conversation). One
// bucket per tenant, conversation id as key, JSON value.
type Store struct {
	db       *bolt.DB
	tenantID string
	debounce time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	pending map[string]*model.CachedConversation
	timers  map[string]*time.Timer
	closed  bool
}

// Open opens or creates the cache file. debounce <= 0 selects the
// default write coalescing window.
func Open(path, tenantID string, debounce time.Duration, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Store{
		db:       db,
		tenantID: tenantID,
		debounce: debounce,
		logger:   log,
		pending:  make(map[string]*model.CachedConversation),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Get reads the cached record for a conversation. A missing or
// unparseable value is reported as a plain miss.
func (s *Store) Get(conversationID string) (*model.CachedConversation, bool) {
	var entry *model.CachedConversation
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(s.tenantID))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(conversationID))
		if len(v) == 0 {
			return nil
		}
		var rec model.CachedConversation
		if e := json.Unmarshal(v, &rec); e != nil {
			// Corrupt entry; treat as a miss rather than failing.
			return nil
		}
		entry = &rec
		return nil
	})
	if err != nil || entry == nil {
		return nil, false
	}
	return entry, true
}

// Put schedules a write for a conversation. Writes are coalesced to at
// most one per debounce window per conversation: each call replaces the
// pending value and reschedules the flush timer.
func (s *Store) Put(conversationID string, entry *model.CachedConversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending[conversationID] = entry
	if t, ok := s.timers[conversationID]; ok {
		t.Reset(s.debounce)
		return
	}
	s.timers[conversationID] = time.AfterFunc(s.debounce, func() {
		s.flush(conversationID)
	})
}

func (s *Store) flush(conversationID string) {
	s.mu.Lock()
	entry, ok := s.pending[conversationID]
	delete(s.pending, conversationID)
	delete(s.timers, conversationID)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := s.write(conversationID, entry); err != nil {
		metrics.CacheWrites.WithLabelValues("error").Inc()
		s.logger.Warn("cache write failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return
	}
	metrics.CacheWrites.WithLabelValues("ok").Inc()
}

func (s *Store) write(conversationID string, entry *model.CachedConversation) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(s.tenantID))
		if err != nil {
			return err
		}
		return b.Put([]byte(conversationID), data)
	})
}

// Close flushes all pending writes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	pending := s.pending
	s.pending = make(map[string]*model.CachedConversation)
	s.mu.Unlock()

	for id, entry := range pending {
		if err := s.write(id, entry); err != nil {
			s.logger.Warn("cache flush on close failed", zap.String("conversation_id", id), zap.Error(err))
		}
	}
	return s.db.Close()
}
