package persistence

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/myrjola/directorscut/internal/budget"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
)

const (
	DefaultDebounce = 2 * time.Second
	DefaultExpiry   = 30 * time.Minute
)

// Snapshot is the saved state of a session.
type Snapshot struct {
	Conversation *models.Conversation `json:"conversation"`
	Stage        models.Stage         `json:"stage"`
	Director     models.Persona       `json:"director"`
	budget.State
	SavedAt time.Time `json:"saved_at"`
}

// GatewayConfig tunes a Gateway.
type GatewayConfig struct {
	// Namespace prefixes every key written by the gateway.
	Namespace string
	Debounce  time.Duration
	// Expiry is how long a saved snapshot stays recoverable.
	Expiry time.Duration
	Now    func() time.Time
}

// Gateway saves session snapshots to a Store. The conversation history is kept in a separate log per persona so that
// switching directors preserves each director's history.
//
// Failing writes are logged and otherwise ignored. The session keeps running in memory.
type Gateway struct {
	store     Store
	cfg       GatewayConfig
	debouncer *Debouncer
	logger    *slog.Logger

	// mu serialises store writes with Clear.
	mu sync.Mutex
	// generation is bumped by Clear so that writes scheduled before it are skipped.
	generation uint64
}

func NewGateway(store Store, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gateway{
		store:      store,
		cfg:        cfg,
		debouncer:  NewDebouncer(cfg.Debounce),
		logger:     logger.With("source", "Gateway", "namespace", cfg.Namespace),
		mu:         sync.Mutex{},
		generation: 0,
	}
}

func (g *Gateway) sessionKey() string {
	return g.cfg.Namespace + ":session"
}

func (g *Gateway) messagesKey(persona models.Persona) string {
	return g.cfg.Namespace + ":messages:" + string(persona)
}

// Persist schedules a write of snap. Writes scheduled within the debounce window collapse into the last one.
func (g *Gateway) Persist(ctx context.Context, snap Snapshot) {
	snap.Conversation = snap.Conversation.Clone()
	ctx = context.WithoutCancel(ctx)

	g.mu.Lock()
	generation := g.generation
	g.mu.Unlock()

	g.debouncer.Schedule(func() {
		if err := g.write(ctx, snap, generation); err != nil {
			g.logger.LogAttrs(ctx, slog.LevelError, "persist session", errors.SlogError(err))
		}
	})
}

// PersistNow writes snap immediately and drops any pending debounced write.
func (g *Gateway) PersistNow(ctx context.Context, snap Snapshot) error {
	g.debouncer.CancelPending()
	g.mu.Lock()
	generation := g.generation
	g.mu.Unlock()
	return g.write(ctx, snap, generation)
}

// Flush performs the pending debounced write, if any.
func (g *Gateway) Flush() {
	g.debouncer.Flush()
}

// Pending reports whether a debounced write is waiting.
func (g *Gateway) Pending() bool {
	return g.debouncer.Pending()
}

func (g *Gateway) write(ctx context.Context, snap Snapshot, generation uint64) error {
	if snap.Conversation == nil {
		return errors.New("snapshot without conversation")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if generation != g.generation {
		g.logger.LogAttrs(ctx, slog.LevelDebug, "skipping write scheduled before clear")
		return nil
	}

	history := snap.Conversation.History
	stored := snap
	stored.Conversation = snap.Conversation.Clone()
	stored.Conversation.History = nil
	stored.Stage = snap.Conversation.Stage
	stored.Director = snap.Conversation.Persona
	stored.SavedAt = g.cfg.Now()

	payload, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	log, err := json.Marshal(history)
	if err != nil {
		return errors.Wrap(err, "marshal message log")
	}
	if err = g.store.Set(ctx, g.messagesKey(stored.Director), log); err != nil {
		return errors.Wrap(err, "store message log")
	}
	if err = g.store.Set(ctx, g.sessionKey(), payload); err != nil {
		return errors.Wrap(err, "store snapshot")
	}
	return nil
}

// Recover loads the saved snapshot for director. A missing, expired, corrupt, or other director's snapshot results
// in nil. Expired and corrupt snapshots are removed.
func (g *Gateway) Recover(ctx context.Context, director models.Persona) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "recover session")
	}
	logger := g.logger.With(slog.String("director", string(director)))

	payload, err := g.store.Get(ctx, g.sessionKey())
	if errors.Is(err, ErrNotFound) {
		return nil, nil //nolint:nilnil // nothing to recover
	}
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "read snapshot", errors.SlogError(err))
		return nil, nil //nolint:nilnil // unreadable store counts as nothing to recover
	}

	var snap Snapshot
	if err = json.Unmarshal(payload, &snap); err == nil {
		err = validateSnapshot(&snap)
	}
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "discarding corrupt snapshot", errors.SlogError(err))
		g.clearSnapshot(ctx)
		return nil, nil //nolint:nilnil // corrupt snapshot counts as nothing to recover
	}

	if age := g.cfg.Now().Sub(snap.SavedAt); age > g.cfg.Expiry {
		logger.LogAttrs(ctx, slog.LevelInfo, "discarding expired snapshot", slog.Duration("age", age))
		g.clearSnapshot(ctx)
		return nil, nil //nolint:nilnil // expired snapshot counts as nothing to recover
	}

	if snap.Director != director {
		logger.LogAttrs(ctx, slog.LevelInfo, "ignoring snapshot of another director",
			slog.String("stored_director", string(snap.Director)))
		return nil, nil //nolint:nilnil // mismatch counts as nothing to recover
	}

	history, err := g.LoadLog(ctx, director)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "discarding snapshot with corrupt message log", errors.SlogError(err))
		g.clearSnapshot(ctx)
		return nil, nil //nolint:nilnil // corrupt log counts as nothing to recover
	}
	snap.Conversation.History = history
	if err = snap.Conversation.Validate(); err != nil {
		logger.LogAttrs(ctx, slog.LevelWarn, "discarding invalid snapshot", errors.SlogError(err))
		g.clearSnapshot(ctx)
		return nil, nil //nolint:nilnil // invalid snapshot counts as nothing to recover
	}

	return &snap, nil
}

func validateSnapshot(snap *Snapshot) error {
	if snap.Conversation == nil {
		return errors.New("snapshot without conversation")
	}
	if snap.Stage != snap.Conversation.Stage {
		return errors.New("snapshot stage disagrees with conversation",
			slog.String("stage", string(snap.Stage)), slog.String("conversation_stage", string(snap.Conversation.Stage)))
	}
	if snap.Director != snap.Conversation.Persona {
		return errors.New("snapshot director disagrees with conversation")
	}
	return nil
}

// LoadLog returns the saved message history of persona. A missing log is empty.
func (g *Gateway) LoadLog(ctx context.Context, persona models.Persona) ([]models.Message, error) {
	payload, err := g.store.Get(ctx, g.messagesKey(persona))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read message log", slog.String("persona", string(persona)))
	}
	var history []models.Message
	if err = json.Unmarshal(payload, &history); err != nil {
		return nil, errors.Wrap(err, "decode message log", slog.String("persona", string(persona)))
	}
	return history, nil
}

// Clear cancels any pending write and removes the snapshot and all message logs. Clearing an empty store succeeds.
func (g *Gateway) Clear(ctx context.Context) error {
	g.debouncer.CancelPending()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++

	var errs []error
	if err := g.store.Remove(ctx, g.sessionKey()); err != nil {
		errs = append(errs, errors.Wrap(err, "remove snapshot"))
	}
	for _, persona := range models.Personas() {
		if err := g.store.Remove(ctx, g.messagesKey(persona)); err != nil {
			errs = append(errs, errors.Wrap(err, "remove message log", slog.String("persona", string(persona))))
		}
	}
	return errors.Join(errs...)
}

func (g *Gateway) clearSnapshot(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Remove(ctx, g.sessionKey()); err != nil {
		g.logger.LogAttrs(ctx, slog.LevelError, "remove snapshot", errors.SlogError(err))
	}
}
