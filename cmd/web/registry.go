package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/directorscut/internal/broker"
	"github.com/myrjola/directorscut/internal/budget"
	"github.com/myrjola/directorscut/internal/config"
	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/persistence"
	"github.com/myrjola/directorscut/internal/session"
)

// evictionInterval is how often idle sessions are looked for.
const evictionInterval = time.Minute

type liveSession struct {
	session  *session.Session
	lastUsed time.Time
	// pumpDone is closed when the session's events have all been forwarded.
	pumpDone chan struct{}
}

// sessionRegistry keeps one live session per visitor namespace and forwards its events to the broker. Sessions idle
// for longer than the session expiry are closed; their saved state stays recoverable until it expires in the store.
type sessionRegistry struct {
	orchestrator *conversation.Orchestrator
	store        persistence.Store
	archiver     session.Archiver
	events       *broker.Broker[string, models.Event]
	cfg          *config.Config
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*liveSession
	pumps    sync.WaitGroup
}

func newSessionRegistry(
	orchestrator *conversation.Orchestrator,
	store persistence.Store,
	archiver session.Archiver,
	events *broker.Broker[string, models.Event],
	cfg *config.Config,
	logger *slog.Logger,
) *sessionRegistry {
	return &sessionRegistry{
		orchestrator: orchestrator,
		store:        store,
		archiver:     archiver,
		events:       events,
		cfg:          cfg,
		logger:       logger.With("source", "sessionRegistry"),
		now:          time.Now,
		mu:           sync.Mutex{},
		sessions:     make(map[string]*liveSession),
		pumps:        sync.WaitGroup{},
	}
}

// lookup returns the live session of namespace without creating one.
func (r *sessionRegistry) lookup(namespace string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live, ok := r.sessions[namespace]
	if !ok {
		return nil, false
	}
	live.lastUsed = r.now()
	return live.session, true
}

// get returns the session of namespace, creating it on first use.
func (r *sessionRegistry) get(namespace string) *session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if live, ok := r.sessions[namespace]; ok {
		live.lastUsed = r.now()
		return live.session
	}

	gateway := persistence.NewGateway(r.store, persistence.GatewayConfig{
		Namespace: namespace,
		Debounce:  r.cfg.PersistDebounce,
		Expiry:    r.cfg.SessionExpiry,
		Now:       nil,
	}, r.logger)
	budgetCfg := budget.DefaultConfig()
	budgetCfg.Countdown = r.cfg.Countdown
	budgetCfg.Extension = r.cfg.Extension
	budgetCfg.MilestoneTurns = r.cfg.MilestoneTurns
	s := session.New(r.orchestrator, gateway, r.archiver, session.Config{
		Namespace:    namespace,
		Budget:       budgetCfg,
		EventBuffer:  0,
		Now:          nil,
		RunCountdown: true,
	}, r.logger)
	live := &liveSession{session: s, lastUsed: r.now(), pumpDone: make(chan struct{})}
	r.sessions[namespace] = live

	r.pumps.Add(1)
	go func() {
		defer r.pumps.Done()
		defer close(live.pumpDone)
		for e := range s.Events() {
			r.events.Publish(namespace, e)
		}
	}()
	return s
}

// evictIdle closes the sessions that have not been used for longer than the session expiry and returns how many
// were closed. Sessions waiting for a reply are kept.
func (r *sessionRegistry) evictIdle() int {
	cutoff := r.now().Add(-r.cfg.SessionExpiry)
	var idle []*session.Session
	r.mu.Lock()
	for namespace, live := range r.sessions {
		if live.lastUsed.Before(cutoff) && !live.session.Busy() {
			idle = append(idle, live.session)
			delete(r.sessions, namespace)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

// startEvictor evicts idle sessions every evictionInterval until ctx is done.
func (r *sessionRegistry) startEvictor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(evictionInterval):
			if n := r.evictIdle(); n > 0 {
				r.logger.LogAttrs(ctx, slog.LevelInfo, "evicted idle sessions",
					slog.Int("count", n), slog.Int("live", r.count()))
			}
		}
	}
}

func (r *sessionRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// closeAll saves and closes every session.
func (r *sessionRegistry) closeAll() {
	r.mu.Lock()
	for namespace, live := range r.sessions {
		live.session.Close()
		delete(r.sessions, namespace)
	}
	r.mu.Unlock()
	r.pumps.Wait()
}
