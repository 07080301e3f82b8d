package session

import (
	"container/list"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/retrieva/internal/vectorstore"
)

type EvictReason string

const (
	EvictCapacity EvictReason = "capacity"
	EvictIdle     EvictReason = "idle"
)

// Session owns the vector store of one ingested document.
type Session struct {
	ID        string
	Filename  string
	CreatedAt time.Time
	Store     *vectorstore.Store

	seq      uint64
	lastUsed time.Time
	elem     *list.Element
	pins     int // in-flight writers; pinned sessions are never evicted
}

type Info struct {
	ID        string    `json:"session_id"`
	Filename  string    `json:"filename"`
	Chunks    int       `json:"chunks"`
	Dimension int       `json:"dimension,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Options bound the number and lifetime of sessions. Zero values mean
// unbounded.
type Options struct {
	Capacity        int
	IdleTTL         time.Duration
	JanitorInterval time.Duration
	OnEvict         func(id string, reason EvictReason)
	Now             func() time.Time
}

type Manager struct {
	mu       sync.Mutex
	opts     Options
	sessions map[string]*Session
	lru      *list.List // front is most recently used
	seq      uint64
}

func NewManager(opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnEvict == nil {
		opts.OnEvict = func(id string, reason EvictReason) {
			slog.Info("session evicted", "session_id", id, "reason", reason)
		}
	}
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*Session),
		lru:      list.New(),
	}
}

// Create mints a session with a fresh empty store. When the manager is at
// capacity the least recently used unpinned session is evicted.
func (m *Manager) Create(filename string) *Session {
	return m.create(filename, false)
}

// CreatePinned is Create for a session that is about to be filled. It stays
// exempt from eviction until Release.
func (m *Manager) CreatePinned(filename string) *Session {
	return m.create(filename, true)
}

func (m *Manager) create(filename string, pinned bool) *Session {
	now := m.opts.Now()

	m.mu.Lock()
	m.seq++
	s := &Session{
		ID:        uuid.New().String(),
		Filename:  filename,
		CreatedAt: now,
		Store:     vectorstore.NewStore(),
		seq:       m.seq,
		lastUsed:  now,
	}
	if pinned {
		s.pins = 1
	}
	s.elem = m.lru.PushFront(s)
	m.sessions[s.ID] = s
	evicted := m.shrinkLocked(s)
	m.mu.Unlock()

	for _, id := range evicted {
		m.opts.OnEvict(id, EvictCapacity)
	}
	return s
}

// Acquire is Get plus a pin that holds off eviction until Release.
func (m *Manager) Acquire(id string) (*Session, bool) {
	s, ok := m.Get(id)
	if !ok {
		return nil, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[id] != s {
		return nil, false
	}
	s.pins++
	return s, true
}

// Release drops a pin taken by CreatePinned or Acquire and marks the session
// used. It reports whether the session is still live; false means it was
// removed while pinned.
func (m *Manager) Release(s *Session) bool {
	now := m.opts.Now()

	m.mu.Lock()
	if s.pins > 0 {
		s.pins--
	}
	if m.sessions[s.ID] != s {
		m.mu.Unlock()
		return false
	}
	s.lastUsed = now
	m.lru.MoveToFront(s.elem)
	evicted := m.shrinkLocked(s)
	m.mu.Unlock()

	for _, id := range evicted {
		m.opts.OnEvict(id, EvictCapacity)
	}
	return true
}

// Get returns the session and marks it used. Expired sessions are removed and
// reported absent.
func (m *Manager) Get(id string) (*Session, bool) {
	now := m.opts.Now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	if m.expired(s, now) {
		m.removeLocked(s)
		m.mu.Unlock()
		m.opts.OnEvict(id, EvictIdle)
		return nil, false
	}
	s.lastUsed = now
	m.lru.MoveToFront(s.elem)
	m.mu.Unlock()

	return s, true
}

func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	m.removeLocked(s)
	return true
}

// Info describes one session without marking it used.
func (m *Manager) Info(id string) (Info, bool) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || m.expired(s, m.opts.Now()) {
		m.mu.Unlock()
		return Info{}, false
	}
	lastUsed := s.lastUsed
	m.mu.Unlock()

	return describe(s, lastUsed), true
}

// List returns all live sessions, newest first.
func (m *Manager) List() []Info {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	lastUsed := make(map[string]time.Time, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
		lastUsed[s.ID] = s.lastUsed
	}
	m.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].seq > sessions[j].seq
	})

	out := make([]Info, len(sessions))
	for i, s := range sessions {
		out[i] = describe(s, lastUsed[s.ID])
	}
	return out
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep removes every idle-expired session and returns how many it removed.
func (m *Manager) Sweep() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	now := m.opts.Now()

	m.mu.Lock()
	var expired []string
	for e := m.lru.Back(); e != nil; {
		s := e.Value.(*Session)
		prev := e.Prev()
		if s.pins == 0 && !m.expired(s, now) {
			break
		}
		if s.pins == 0 {
			m.removeLocked(s)
			expired = append(expired, s.ID)
		}
		e = prev
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.opts.OnEvict(id, EvictIdle)
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done. It returns immediately when no
// idle TTL is configured.
func (m *Manager) Run(ctx context.Context) {
	if m.opts.IdleTTL <= 0 {
		return
	}
	interval := m.opts.JanitorInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Debug("session janitor swept", "removed", n, "remaining", m.Len())
			}
		}
	}
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return s.pins == 0 && m.opts.IdleTTL > 0 && now.Sub(s.lastUsed) > m.opts.IdleTTL
}

// shrinkLocked evicts unpinned sessions other than keep from the LRU tail
// until the manager is within capacity. Pinned sessions may hold it over
// capacity.
func (m *Manager) shrinkLocked(keep *Session) []string {
	var evicted []string
	for e := m.lru.Back(); e != nil && m.opts.Capacity > 0 && len(m.sessions) > m.opts.Capacity; {
		s := e.Value.(*Session)
		e = e.Prev()
		if s.pins > 0 || s == keep {
			continue
		}
		m.removeLocked(s)
		evicted = append(evicted, s.ID)
	}
	return evicted
}

func describe(s *Session, lastUsed time.Time) Info {
	return Info{
		ID:        s.ID,
		Filename:  s.Filename,
		Chunks:    s.Store.Len(),
		Dimension: s.Store.Dimension(),
		CreatedAt: s.CreatedAt,
		LastUsed:  lastUsed,
	}
}

func (m *Manager) removeLocked(s *Session) {
	m.lru.Remove(s.elem)
	delete(m.sessions, s.ID)
}
