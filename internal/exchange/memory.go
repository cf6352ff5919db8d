package exchange

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in a process-wide map behind one mutex. Expiry is
// lazy: Get drops the entry it finds expired and Put sweeps the whole map, so
// memory from unread entries is reclaimed on the next write.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	entry := Entry{
		Data:        append([]byte(nil), data...),
		ContentType: normalizeContentType(contentType),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	entry.CreatedAt = now
	s.sweepLocked(now)
	s.entries[token] = entry
	return token, nil
}

func (s *MemoryStore) Get(ctx context.Context, token string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if s.expired(entry, s.now()) {
		delete(s.entries, token)
		return Entry{}, ErrNotFound
	}
	entry.Data = append([]byte(nil), entry.Data...)
	return entry, nil
}

// Len reports how many entries are held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(e Entry, now time.Time) bool {
	return !now.Before(e.CreatedAt.Add(s.ttl))
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for token, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, token)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
