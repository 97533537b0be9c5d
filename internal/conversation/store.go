// Package conversation provides stateful multi-turn semantics over the
// stateless MCP transport: an in-memory thread store keyed by continuation
// id, with TTL expiry and capacity eviction, plus history reconstruction
// under a token budget.
package conversation

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxTurns bounds a thread; AddTurn refuses beyond this.
	MaxTurns = 20
	// ThreadTTL is the inactivity lifetime of a thread.
	ThreadTTL = 3 * time.Hour
	// defaultCapacity bounds the store; beyond it the least recently
	// active thread is evicted.
	defaultCapacity = 1000
)

// transientKeys are request-scoped fields stripped from initial arguments
// before they are stored as a thread's initial context.
var transientKeys = []string{"continuation_id"}

// ThreadFullError reports an append against a thread already at MaxTurns.
// Callers must surface it instead of silently dropping the exchange.
type ThreadFullError struct {
	ID string
}

func (e *ThreadFullError) Error() string {
	return fmt.Sprintf(
		"conversation thread %q is at its %d-turn limit; start a new conversation to continue",
		e.ID, MaxTurns,
	)
}

// Turn is one exchange entry. Immutable once appended.
type Turn struct {
	Role          string    `json:"role"` // "user" or "assistant"
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
	ToolName      string    `json:"tool_name,omitempty"`
	ModelName     string    `json:"model_name,omitempty"`
	ModelProvider string    `json:"model_provider,omitempty"`
	Files         []string  `json:"files,omitempty"`  // absolute paths
	Images        []string  `json:"images,omitempty"` // absolute paths
}

// ThreadContext is a thread snapshot. The store owns the live thread;
// callers only ever see copies.
type ThreadContext struct {
	ID             string         `json:"id"`
	ToolName       string         `json:"tool_name"`
	Turns          []Turn         `json:"turns"`
	InitialContext map[string]any `json:"initial_context,omitempty"`
	ParentThreadID string         `json:"parent_thread_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivity   time.Time      `json:"last_activity_at"`
}

type thread struct {
	mu  sync.Mutex // serialises appends per thread
	ctx ThreadContext
}

// Store is the process-wide thread registry. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	threads  map[string]*thread
	ttl      time.Duration
	capacity int
	done     chan struct{}

	now func() time.Time // test hook
}

// NewStore creates a Store with the standard TTL and capacity and starts
// the background sweeper. Call Close to stop it.
func NewStore() *Store {
	return newStore(ThreadTTL, defaultCapacity)
}

func newStore(ttl time.Duration, capacity int) *Store {
	s := &Store{
		threads:  make(map[string]*thread),
		ttl:      ttl,
		capacity: capacity,
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweepLoop()
	return s
}

// Create starts a new thread for a tool call and returns its id. Transient
// argument keys are stripped before storage. parentID may be "" or chain to
// an earlier thread (traversal is manual, one hop).
func (s *Store) Create(toolName string, initialArgs map[string]any, parentID string) string {
	id := uuid.NewString()
	initial := make(map[string]any, len(initialArgs))
	for k, v := range initialArgs {
		initial[k] = v
	}
	for _, k := range transientKeys {
		delete(initial, k)
	}

	now := s.now()
	s.mu.Lock()
	s.threads[id] = &thread{ctx: ThreadContext{
		ID:             id,
		ToolName:       toolName,
		InitialContext: initial,
		ParentThreadID: parentID,
		CreatedAt:      now,
		LastActivity:   now,
	}}
	s.evictOverCapacityLocked()
	s.mu.Unlock()
	return id
}

// Get returns a snapshot of the thread, or nil when it is unknown or
// expired. Expiry is lazy: an expired thread is removed on access.
func (s *Store) Get(id string) *ThreadContext {
	s.mu.RLock()
	t, ok := s.threads[id]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	expired := s.now().Sub(t.ctx.LastActivity) > s.ttl
	var snap ThreadContext
	if !expired {
		snap = t.ctx
		snap.Turns = append([]Turn(nil), t.ctx.Turns...)
	}
	t.mu.Unlock()

	if expired {
		s.mu.Lock()
		delete(s.threads, id)
		s.mu.Unlock()
		return nil
	}
	return &snap
}

// AddTurn appends a turn. Returns false when the thread is missing, expired,
// or already at MaxTurns; the thread is unchanged in every false case.
func (s *Store) AddTurn(id string, turn Turn) bool {
	s.mu.RLock()
	t, ok := s.threads[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := s.now()
	if now.Sub(t.ctx.LastActivity) > s.ttl {
		return false
	}
	if len(t.ctx.Turns) >= MaxTurns {
		return false
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = now
	}
	t.ctx.Turns = append(t.ctx.Turns, turn)
	t.ctx.LastActivity = now
	return true
}

// Count returns the number of live threads (including any not yet swept).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

// Close stops the background sweeper. Safe to call multiple times.
func (s *Store) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// evictOverCapacityLocked drops the least recently active threads until the
// store fits its capacity. Caller holds s.mu.
func (s *Store) evictOverCapacityLocked() {
	for len(s.threads) > s.capacity {
		var oldestID string
		var oldest time.Time
		for id, t := range s.threads {
			if oldestID == "" || t.ctx.LastActivity.Before(oldest) {
				oldestID, oldest = id, t.ctx.LastActivity
			}
		}
		delete(s.threads, oldestID)
		log.Printf("[Store] Evicted thread %s (capacity %d reached)", oldestID, s.capacity)
	}
}

func (s *Store) sweepLoop() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			cutoff := s.now().Add(-s.ttl)
			s.mu.Lock()
			for id, t := range s.threads {
				if t.ctx.LastActivity.Before(cutoff) {
					delete(s.threads, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// InheritedModel walks turns newest-first for the most recent assistant turn
// that recorded a model, implementing model inheritance on continuation.
func InheritedModel(ctx *ThreadContext) (model, providerName string) {
	if ctx == nil {
		return "", ""
	}
	for i := len(ctx.Turns) - 1; i >= 0; i-- {
		t := ctx.Turns[i]
		if t.Role == "assistant" && t.ModelName != "" {
			return t.ModelName, t.ModelProvider
		}
	}
	return "", ""
}
