package coord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ShayCichocki/nexus/pkg/models"
)

// ModeMemory is reported by Mode when no shared backend is in use.
const ModeMemory = "memory"

// Store is the shared session record used by the engine and scheduler.
//
// Every session written by this process is also kept in memory. Reads go to
// the backend first so other processes' sessions are visible; after the
// backend is lost the in-memory copies are served instead.
type Store struct {
	mu       sync.RWMutex
	backend  Backend
	degraded bool
	sessions map[string]*memEntry

	ttl       time.Duration
	channel   string
	logger    *slog.Logger
	onDegrade func(error)
	now       func() time.Time
}

type memEntry struct {
	state     *models.SessionState
	expiresAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSessionTTL sets the retention applied on every write. Zero keeps sessions forever.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithChannel sets the pub/sub channel used by EventChannel.
func WithChannel(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.channel = name
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDegradeHook is called once when the store switches to memory mode.
func WithDegradeHook(fn func(error)) Option {
	return func(s *Store) { s.onDegrade = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open probes backend and returns a store. A nil or unreachable backend
// yields a memory-mode store; Open never fails.
func Open(ctx context.Context, backend Backend, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*memEntry),
		channel:  DefaultChannel,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if backend == nil {
		return s
	}
	s.backend = backend
	if err := backend.Ping(ctx); err != nil {
		s.degrade(fmt.Errorf("%w: %v", ErrBackendUnavailable, err))
	}
	return s
}

// Mode returns the backend name, or ModeMemory.
func (s *Store) Mode() string {
	if b := s.remote(); b != nil {
		return b.Name()
	}
	return ModeMemory
}

// Degraded reports whether a configured backend was abandoned.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Channel returns the event channel name.
func (s *Store) Channel() string { return s.channel }

func (s *Store) remote() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// degrade switches to memory mode. It is one-way.
func (s *Store) degrade(cause error) {
	s.mu.Lock()
	b := s.backend
	if b == nil {
		s.mu.Unlock()
		return
	}
	s.backend = nil
	s.degraded = true
	s.mu.Unlock()

	b.Close()
	s.logger.Warn("coordination backend unavailable, continuing in memory", "backend", b.Name(), "error", cause)
	if s.onDegrade != nil {
		s.onDegrade(cause)
	}
}

// fallback degrades on connection errors and reports whether it did.
func (s *Store) fallback(err error) bool {
	if !IsConnectionError(err) {
		return false
	}
	s.degrade(err)
	return true
}

// persist writes fields to the backend, if any.
func (s *Store) persist(ctx context.Context, sessionID string, fields map[string]string) error {
	b := s.remote()
	if b == nil {
		return nil
	}
	if err := b.SaveSession(ctx, sessionID, fields, s.ttl); err != nil {
		if s.fallback(err) {
			return nil
		}
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) remember(state *models.SessionState) {
	entry := &memEntry{state: state}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.sessions[state.SessionID] = entry
}

// local returns the in-memory copy, expiring it lazily. Caller holds s.mu.
func (s *Store) local(sessionID string) *models.SessionState {
	entry, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.sessions, sessionID)
		return nil
	}
	return entry.state
}

// CreateSession writes a new running session for plan.
func (s *Store) CreateSession(ctx context.Context, sessionID string, plan *models.Plan) (*models.SessionState, error) {
	state := models.NewSessionState(sessionID, plan, s.now())
	fields, err := encodeState(state)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.remember(state)
	s.mu.Unlock()

	if err := s.persist(ctx, sessionID, fields); err != nil {
		return nil, err
	}
	return cloneState(state), nil
}

// GetState returns the current record for a session, or ErrSessionNotFound.
func (s *Store) GetState(ctx context.Context, sessionID string) (*models.SessionState, error) {
	if b := s.remote(); b != nil {
		fields, err := b.LoadSession(ctx, sessionID)
		switch {
		case err == nil:
			return decodeState(fields)
		case errors.Is(err, ErrSessionNotFound):
		case s.fallback(err):
		default:
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.local(sessionID)
	if state == nil {
		return nil, ErrSessionNotFound
	}
	return cloneState(state), nil
}

// load returns the working copy of a session for modification, pulling it
// from the backend if this process has not seen it. Caller must not hold s.mu.
func (s *Store) load(ctx context.Context, sessionID string) (*models.SessionState, error) {
	s.mu.Lock()
	state := s.local(sessionID)
	s.mu.Unlock()
	if state != nil {
		return state, nil
	}

	state, err := s.GetState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if existing := s.local(sessionID); existing != nil {
		state = existing
	} else {
		s.remember(state)
	}
	s.mu.Unlock()
	return state, nil
}

// UpdateStatus sets the session status.
func (s *Store) UpdateStatus(ctx context.Context, sessionID string, status models.SessionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid session status %q", status)
	}
	state, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	state.Status = status
	state.UpdatedAt = s.now()
	fields := map[string]string{
		fieldStatus:    string(status),
		fieldUpdatedAt: state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	s.remember(state)
	s.mu.Unlock()

	return s.persist(ctx, sessionID, fields)
}

// RecordTaskState stores one task transition and the derived metrics.
func (s *Store) RecordTaskState(ctx context.Context, sessionID, taskID string, ts models.TaskState) error {
	state, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	state.ApplyTask(taskID, ts, s.now())
	fields, err := encodeTasks(state)
	s.remember(state)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.persist(ctx, sessionID, fields)
}

// DeleteSession removes a session everywhere.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	b := s.remote()
	if b == nil {
		return nil
	}
	if err := b.DeleteSession(ctx, sessionID); err != nil && !s.fallback(err) {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Sweep drops expired in-memory sessions and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for id, entry := range s.sessions {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// publish sends payload on the event channel. It reports false when there
// is no backend and the caller must deliver locally only.
func (s *Store) publish(ctx context.Context, payload []byte) (bool, error) {
	b := s.remote()
	if b == nil {
		return false, nil
	}
	if err := b.Publish(ctx, s.channel, payload); err != nil {
		if s.fallback(err) {
			return false, nil
		}
		return true, fmt.Errorf("publish: %w", err)
	}
	return true, nil
}

// subscribe opens a subscriber connection, or returns nil in memory mode.
func (s *Store) subscribe(ctx context.Context) (Subscription, error) {
	b := s.remote()
	if b == nil {
		return nil, nil
	}
	sub, err := b.Subscribe(ctx, s.channel)
	if err != nil {
		if s.fallback(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return sub, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	b := s.backend
	s.backend = nil
	s.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close()
}
