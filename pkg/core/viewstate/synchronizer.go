// Package viewstate keeps a local, renderable copy of a remote list consistent
// with user actions while their writes are in flight.
//
// Every mutation is applied to the local copy immediately and then moves from
// pending to either committed (the remote write succeeded) or rolled back (the
// remote write failed and the inverse update was applied).
package viewstate

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ErrMutationInFlight is returned when the same entity already has a pending write
var ErrMutationInFlight = errors.New("a change to this item is already in progress")

// Outcome is the settled state of a mutation
type Outcome int

const (
	Pending Outcome = iota
	Committed
	RolledBack
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Update transforms the local list. Updates must not modify their input slice.
type Update[T any] func(items []T) []T

// Fetch reads the remote list
type Fetch[T any] func(ctx context.Context) ([]T, error)

// Write performs the remote side of a mutation
type Write func(ctx context.Context) error

// Mutation describes one optimistic change
type Mutation[T any] struct {
	// Key identifies the entity; only one mutation per key may be pending.
	Key    string
	Apply  Update[T]
	Revert Update[T]
	Write  Write
	// OnSettle runs after the outcome is recorded and before Done closes,
	// outside the lock.
	OnSettle func(outcome Outcome, err error)
}

// Handle tracks a submitted mutation until it settles
type Handle struct {
	key     string
	done    chan struct{}
	outcome Outcome
	err     error
}

// Key returns the entity key of the mutation
func (h *Handle) Key() string {
	return h.key
}

// Done is closed once the mutation has settled
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the mutation settles or ctx ends. When ctx ends first the
// outcome is Pending and the remote write carries on.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}

type pendingMutation[T any] struct {
	seq   uint64
	apply Update[T]
}

// Synchronizer holds the session-local copy of a remote list
type Synchronizer[T any] struct {
	mu      sync.Mutex
	name    string
	logger  *zap.Logger
	items   []T
	loaded  bool
	seq     uint64
	pending map[string]pendingMutation[T]

	// loads counts fetches in flight; committed keeps the mutations that
	// settled successfully while any of them ran
	loads     int
	committed []pendingMutation[T]
}

// New creates an empty synchronizer; name is used in log lines
func New[T any](name string, logger *zap.Logger) *Synchronizer[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer[T]{
		name:    name,
		logger:  logger,
		pending: make(map[string]pendingMutation[T]),
	}
}

// Load replaces the local copy with the remote list. Mutations still pending,
// and those that committed while the fetch ran, are re-applied on top of the
// fresh copy since the fetched list may predate them. Updates must therefore
// be idempotent. On failure the previous state is kept and the error
// returned; there is no retry.
func (s *Synchronizer[T]) Load(ctx context.Context, fetch Fetch[T]) error {
	s.mu.Lock()
	s.loads++
	s.mu.Unlock()

	items, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	replay := s.replayInOrder()
	s.loads--
	if s.loads == 0 {
		s.committed = nil
	}

	if err != nil {
		s.logger.Warn("Failed to load view state", zap.String("view", s.name), zap.Error(err))
		return fmt.Errorf("failed to load %s: %w", s.name, err)
	}

	for _, p := range replay {
		items = p.apply(items)
	}
	s.items = items
	s.loaded = true

	s.logger.Debug("View state loaded",
		zap.String("view", s.name),
		zap.Int("items", len(items)),
		zap.Int("pending", len(s.pending)))
	return nil
}

// Reset drops the local copy. Pending writes still settle but their
// reverts apply to an empty list.
func (s *Synchronizer[T]) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.loaded = false
}

// Loaded reports whether at least one Load has succeeded since the last Reset
func (s *Synchronizer[T]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Snapshot returns a copy of the local list
func (s *Synchronizer[T]) Snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// InFlight reports whether key has a pending mutation
func (s *Synchronizer[T]) InFlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

// Mutate applies m.Apply immediately and starts m.Write in the background.
// The write runs on a context detached from ctx's cancellation so that
// abandoning the caller does not abort it.
func (s *Synchronizer[T]) Mutate(ctx context.Context, m Mutation[T]) (*Handle, error) {
	if m.Apply == nil || m.Revert == nil || m.Write == nil {
		return nil, fmt.Errorf("mutation %q is missing apply, revert or write", m.Key)
	}

	s.mu.Lock()
	if _, busy := s.pending[m.Key]; busy {
		s.mu.Unlock()
		return nil, ErrMutationInFlight
	}
	s.seq++
	s.pending[m.Key] = pendingMutation[T]{seq: s.seq, apply: m.Apply}
	s.items = m.Apply(s.items)
	s.mu.Unlock()

	s.logger.Debug("Optimistic update applied", zap.String("view", s.name), zap.String("key", m.Key))

	h := &Handle{key: m.Key, done: make(chan struct{})}
	writeCtx := context.WithoutCancel(ctx)

	go func() {
		err := m.Write(writeCtx)

		s.mu.Lock()
		p := s.pending[m.Key]
		delete(s.pending, m.Key)
		if err != nil {
			s.items = m.Revert(s.items)
			h.outcome, h.err = RolledBack, err
		} else {
			h.outcome = Committed
			if s.loads > 0 {
				s.committed = append(s.committed, p)
			}
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("Remote write failed, local update rolled back",
				zap.String("view", s.name), zap.String("key", m.Key), zap.Error(err))
		} else {
			s.logger.Debug("Remote write committed", zap.String("view", s.name), zap.String("key", m.Key))
		}

		if m.OnSettle != nil {
			m.OnSettle(h.outcome, h.err)
		}
		close(h.done)
	}()

	return h, nil
}

// replayInOrder returns the pending and recently committed mutations in
// submission order; callers hold mu
func (s *Synchronizer[T]) replayInOrder() []pendingMutation[T] {
	out := make([]pendingMutation[T], 0, len(s.pending)+len(s.committed))
	out = append(out, s.committed...)
	for _, p := range s.pending {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b pendingMutation[T]) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}
