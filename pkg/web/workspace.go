package web

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-portal/pkg/core/model"
	"github.com/jakechorley/volunteer-portal/pkg/core/notify"
	"github.com/jakechorley/volunteer-portal/pkg/core/services"
	"github.com/jakechorley/volunteer-portal/pkg/core/session"
)

// workspace is the server-side state of one browser session: its identity,
// pending notifications and the page controllers with their local copies
type workspace struct {
	sid           string
	session       *session.Context
	notes         *notify.Queue
	opportunities *services.Opportunities
	activities    *services.MyActivities
	logger        *zap.Logger

	restoreMu sync.Mutex
	restored  bool
	lastSeen  atomic.Int64
}

func (s *Server) newWorkspace(sid string) *workspace {
	logger := s.logger.With(zap.String("session", shortSID(sid)))
	notes := notify.NewQueue()

	ws := &workspace{
		sid:           sid,
		session:       session.New(sid, s.opts.Backend, s.opts.Sessions, s.logger),
		notes:         notes,
		opportunities: services.NewOpportunities(s.opts.Backend, notes, s.opts.Mailer, logger),
		activities:    services.NewMyActivities(s.opts.Backend, notes, logger),
		logger:        logger,
	}

	// controllers re-run their load sequence for the new identity
	ws.session.Subscribe(func(prev, next *model.Identity) {
		ws.opportunities.Reset()
		ws.activities.Reset()
	})

	return ws
}

// identity returns the signed-in identity, restoring a persisted session the
// first time the workspace is used. Backend failures are logged and treated
// as signed out for this request.
func (ws *workspace) identity(ctx context.Context) *model.Identity {
	ws.restoreMu.Lock()
	if !ws.restored {
		if _, err := ws.session.Restore(ctx); err != nil {
			ws.restoreMu.Unlock()
			ws.logger.Warn("Failed to restore session", zap.Error(err))
			return nil
		}
		ws.restored = true
	}
	ws.restoreMu.Unlock()

	ident, err := ws.session.Resolve(ctx)
	if err != nil {
		ws.logger.Warn("Failed to resolve identity", zap.Error(err))
		return nil
	}
	return ident
}

func shortSID(sid string) string {
	if len(sid) > 8 {
		return sid[:8]
	}
	return sid
}

// registry maps browser-session ids to workspaces and forgets idle ones
type registry struct {
	mu    sync.Mutex
	items map[string]*workspace
	build func(sid string) *workspace
	idle  time.Duration
}

func newRegistry(build func(sid string) *workspace, idle time.Duration) *registry {
	return &registry{
		items: make(map[string]*workspace),
		build: build,
		idle:  idle,
	}
}

func (r *registry) get(sid string, now time.Time) *workspace {
	r.mu.Lock()
	ws, ok := r.items[sid]
	if !ok {
		ws = r.build(sid)
		r.items[sid] = ws
	}
	r.mu.Unlock()

	ws.lastSeen.Store(now.UnixNano())
	return ws
}

// sweep drops workspaces unused for longer than the idle period. The
// persisted identity survives; a returning browser gets a fresh workspace
// restored from the session store.
func (r *registry) sweep(now time.Time) int {
	cutoff := now.Add(-r.idle).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()

	dropped := 0
	for sid, ws := range r.items {
		if ws.lastSeen.Load() < cutoff {
			delete(r.items, sid)
			dropped++
		}
	}
	return dropped
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
