package onboarding

import (
	"context"
	"sync"
	"time"
)

// Step identifies where a session is in the onboarding protocol.
type Step string

// Onboarding protocol steps. Registry evaluation, the age gate and the
// permit gate are evaluated inside a single turn, so only the steps that
// wait for user input are persisted between turns.
const (
	StepAwaitingIntent       Step = "awaiting_intent"
	StepAwaitingIdentity     Step = "awaiting_identity"
	StepAwaitingPermit       Step = "awaiting_permit"
	StepAwaitingConfirmation Step = "awaiting_confirmation"
)

// State is the per-session workflow state. It is mutated by exactly one
// conversation turn at a time; concurrent turns for the same session id
// are not supported (last writer wins).
type State struct {
	SessionID string `json:"session_id"`
	Step      Step   `json:"step"`

	Country        string          `json:"country,omitempty"`
	NationalID     string          `json:"national_id,omitempty"`
	KeyType        string          `json:"key_type,omitempty"`
	Person         *RegistryPerson `json:"person,omitempty"`
	PermitExpected string          `json:"permit_expected,omitempty"`

	// CreatedKey guards against re-creating the customer after a
	// successful creation in this session.
	CreatedKey string `json:"created_key,omitempty"`
}

// NewState creates the initial state for a session.
func NewState(sessionID string) *State {
	return &State{
		SessionID: sessionID,
		Step:      StepAwaitingIntent,
	}
}

// SessionStore keeps per-session workflow state, keyed and isolated by
// session id. Implementations evict idle sessions after a TTL.
type SessionStore interface {
	// Get returns the state for a session, or nil when none exists.
	Get(ctx context.Context, sessionID string) (*State, error)
	// Put stores the state and refreshes its TTL.
	Put(ctx context.Context, state *State) error
	// Delete removes a session's state.
	Delete(ctx context.Context, sessionID string) error
	// Close releases store resources.
	Close() error
}

type memoryEntry struct {
	state    *State
	expireAt time.Time
}

// MemorySessionStore is an in-process session store with TTL eviction.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	stop    chan struct{}
	once    sync.Once
}

// NewMemorySessionStore creates a memory store whose janitor evicts
// sessions idle for longer than ttl.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	s := &MemorySessionStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.janitor()
	return s
}

func (s *MemorySessionStore) janitor() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, entry := range s.entries {
				if now.After(entry.expireAt) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Get returns the session state, or nil when absent or expired.
func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[sessionID]
	if !ok || time.Now().After(entry.expireAt) {
		return nil, nil
	}
	return entry.state, nil
}

// Put stores the state and refreshes its TTL.
func (s *MemorySessionStore) Put(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[state.SessionID] = memoryEntry{
		state:    state,
		expireAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Delete removes a session's state.
func (s *MemorySessionStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, sessionID)
	return nil
}

// Close stops the eviction janitor.
func (s *MemorySessionStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
