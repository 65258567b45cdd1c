// Package session owns a single live conversation and serialises everything that happens to it.
package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/myrjola/directorscut/internal/budget"
	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/persistence"
)

var (
	// ErrBusy is returned by Send while a previous message is still being answered.
	ErrBusy = errors.NewSentinel("session busy")
	// ErrNotStarted is returned when no conversation has been started.
	ErrNotStarted = errors.NewSentinel("session not started")
	// ErrEmptyMessage is returned by Send for blank text.
	ErrEmptyMessage = errors.NewSentinel("empty message")
	// ErrDiscarded is returned by Send when the session was reset before the reply arrived.
	ErrDiscarded = errors.NewSentinel("reply discarded after reset")
)

// Archiver stores finished scenarios.
type Archiver interface {
	Archive(ctx context.Context, namespace string, conv *models.Conversation) (string, error)
}

type phase int

const (
	phaseIdle phase = iota
	phaseInFlight
)

const defaultEventBuffer = 32

// Config tunes a Session.
type Config struct {
	// Namespace identifies the session in logs and archived scenarios.
	Namespace   string
	Budget      budget.Config
	EventBuffer int
	Now         func() time.Time
	// RunCountdown starts a goroutine ticking the countdown every second.
	RunCountdown bool
}

// Session owns one conversation together with its budget and persistence.
type Session struct {
	cfg          Config
	orchestrator *conversation.Orchestrator
	gateway      *persistence.Gateway
	archiver     Archiver
	logger       *slog.Logger

	eventsMu     sync.Mutex
	events       chan models.Event
	eventsClosed bool

	mu             sync.Mutex
	conv           *models.Conversation
	tracker        *budget.Tracker
	phase          phase
	epoch          uint64
	archived       bool
	closed         bool
	stopCountdown  context.CancelFunc
	cancelInFlight context.CancelFunc
}

// New creates an idle session. archiver may be nil.
func New(
	orchestrator *conversation.Orchestrator,
	gateway *persistence.Gateway,
	archiver Archiver,
	cfg Config,
	logger *slog.Logger,
) *Session {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Budget.Now == nil {
		cfg.Budget.Now = cfg.Now
	}
	return &Session{
		cfg:            cfg,
		orchestrator:   orchestrator,
		gateway:        gateway,
		archiver:       archiver,
		logger:         logger.With("source", "Session", "namespace", cfg.Namespace),
		eventsMu:       sync.Mutex{},
		events:         make(chan models.Event, cfg.EventBuffer),
		eventsClosed:   false,
		mu:             sync.Mutex{},
		conv:           nil,
		tracker:        nil,
		phase:          phaseIdle,
		epoch:          0,
		archived:       false,
		closed:         false,
		stopCountdown:  nil,
		cancelInFlight: nil,
	}
}

// Events returns the channel of session events. It is closed by Close.
func (s *Session) Events() <-chan models.Event {
	return s.events
}

func (s *Session) emit(e models.Event) {
	if e.At.IsZero() {
		e.At = s.cfg.Now()
	}
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- e:
	default:
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "dropping event", slog.String("kind", string(e.Kind)))
	}
}

// Start begins a conversation with persona. A recent saved session of the same persona is resumed instead, in which
// case emotion and vignette are ignored and true is returned. Starting while a conversation with another persona is
// live saves that conversation first so that its history is kept.
func (s *Session) Start(
	ctx context.Context,
	persona models.Persona,
	emotion models.Emotion,
	vignette string,
) (bool, error) {
	if _, ok := persona.Director(); !ok {
		return false, errors.Wrap(models.ErrUnknownPersona, "start session", slog.String("persona", string(persona)))
	}
	if _, err := models.ParseEmotion(string(emotion)); err != nil {
		return false, errors.Wrap(err, "start session")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errors.Wrap(ErrNotStarted, "session closed")
	}
	if s.phase == phaseInFlight {
		return false, ErrBusy
	}

	if s.conv != nil {
		if err := s.gateway.PersistNow(ctx, s.snapshotLocked()); err != nil {
			s.logger.LogAttrs(ctx, slog.LevelError, "save conversation before switching", errors.SlogError(err))
		}
	}
	snap, err := s.gateway.Recover(ctx, persona)
	if err != nil {
		return false, errors.Wrap(err, "recover session")
	}

	s.stopCountdownLocked()
	s.epoch++
	tracker := budget.NewTracker(s.cfg.Budget, s.emit)

	recovered := snap != nil
	if recovered {
		s.conv = snap.Conversation
		tracker.Restore(snap.State)
		s.archived = s.conv.FinalScenario != ""
	} else {
		s.conv = models.NewConversation(persona, emotion, vignette)
		history, logErr := s.gateway.LoadLog(ctx, persona)
		if logErr != nil {
			s.logger.LogAttrs(ctx, slog.LevelWarn, "ignoring unreadable message log", errors.SlogError(logErr))
		}
		s.conv.History = history
		s.archived = false
	}
	s.tracker = tracker
	s.startCountdownLocked()

	s.logger.LogAttrs(ctx, slog.LevelInfo, "session started",
		slog.String("persona", string(persona)), slog.Bool("recovered", recovered),
		slog.String("stage", string(s.conv.Stage)))

	snapshot := s.snapshotLocked()
	s.gateway.Persist(ctx, snapshot)
	if recovered {
		s.emit(models.Event{ //nolint:exhaustruct // stage and message are not relevant.
			Kind:     models.EventSessionRecovered,
			Snapshot: snapshot.Conversation,
		})
	}
	return recovered, nil
}

// Send answers text. Only one Send runs at a time: a second call while a reply is pending fails with ErrBusy.
func (s *Session) Send(ctx context.Context, text string) (conversation.Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return conversation.Outcome{}, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.conv == nil {
		s.mu.Unlock()
		return conversation.Outcome{}, ErrNotStarted
	}
	if s.phase == phaseInFlight {
		s.mu.Unlock()
		return conversation.Outcome{}, ErrBusy
	}
	s.phase = phaseInFlight
	epoch := s.epoch
	conv := s.conv
	turns := s.tracker.Turns()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelInFlight = cancel
	s.mu.Unlock()

	out, err := s.orchestrator.Advance(ctx, conv, turns, text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "discarding reply of a reset conversation")
		return conversation.Outcome{}, ErrDiscarded
	}
	s.phase = phaseIdle
	s.cancelInFlight = nil
	if err != nil {
		return conversation.Outcome{}, errors.Wrap(err, "advance conversation")
	}

	s.conv = out.Conversation
	s.tracker.RecordMessage()
	s.tracker.RecordMessage()

	if out.StageChanged() {
		s.emit(models.Event{Kind: models.EventStageChanged, Stage: out.Conversation.Stage}) //nolint:exhaustruct // stage only
	}
	if out.EnteredOffline {
		s.emit(models.Event{Kind: models.EventOfflineModeEntered}) //nolint:exhaustruct // kind only
	}
	msg := out.Message.Clone()
	s.emit(models.Event{Kind: models.EventAssistantMessage, Stage: out.Conversation.Stage, Message: &msg}) //nolint:exhaustruct,lll // no snapshot

	s.gateway.Persist(ctx, s.snapshotLocked())
	s.archiveLocked(ctx)

	return out, nil
}

func (s *Session) archiveLocked(ctx context.Context) {
	if s.archiver == nil || s.archived || s.conv.FinalScenario == "" {
		return
	}
	id, err := s.archiver.Archive(context.WithoutCancel(ctx), s.cfg.Namespace, s.conv)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "archive scenario", errors.SlogError(err))
		return
	}
	s.archived = true
	s.logger.LogAttrs(ctx, slog.LevelInfo, "scenario archived", slog.String("id", id))
}

// Reset drops the conversation and its saved state. A reply still pending is discarded when it arrives.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.epoch++
	s.phase = phaseIdle
	if s.cancelInFlight != nil {
		s.cancelInFlight()
		s.cancelInFlight = nil
	}
	s.stopCountdownLocked()
	s.conv = nil
	s.tracker = nil
	s.archived = false
	s.mu.Unlock()

	if err := s.gateway.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear saved session")
	}
	return nil
}

// Extend adds time to the countdown. It returns false once the extensions are used up.
func (s *Session) Extend(ctx context.Context) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return false, 0, ErrNotStarted
	}
	extended := s.tracker.Extend()
	if extended {
		s.gateway.Persist(ctx, s.snapshotLocked())
	}
	return extended, s.tracker.Remaining(), nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() (persistence.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return persistence.Snapshot{}, ErrNotStarted //nolint:exhaustruct // empty snapshot
	}
	return s.snapshotLocked(), nil
}

// Busy reports whether a reply is pending.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == phaseInFlight
}

func (s *Session) snapshotLocked() persistence.Snapshot {
	return persistence.Snapshot{
		Conversation: s.conv.Clone(),
		Stage:        s.conv.Stage,
		Director:     s.conv.Persona,
		State:        s.tracker.State(),
		SavedAt:      s.cfg.Now(),
	}
}

func (s *Session) startCountdownLocked() {
	if !s.cfg.RunCountdown {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopCountdown = cancel
	go s.tracker.Run(ctx)
}

func (s *Session) stopCountdownLocked() {
	if s.stopCountdown != nil {
		s.stopCountdown()
		s.stopCountdown = nil
	}
}

// Tick advances the countdown by one second. It is used when the session does not run its own countdown.
func (s *Session) Tick() {
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()
	if tracker != nil {
		tracker.Tick()
	}
}

// Close saves pending state, stops the countdown, and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopCountdownLocked()
	s.mu.Unlock()

	s.gateway.Flush()

	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
}
