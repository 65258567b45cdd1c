// Package budget counts conversation turns and runs the session countdown.
package budget

import (
	"context"
	"sync"
	"time"

	"github.com/myrjola/directorscut/internal/models"
)

const (
	DefaultCountdown      = 10 * time.Minute
	DefaultExtension      = 5 * time.Minute
	DefaultMaxExtensions  = 3
	DefaultMilestoneTurns = 20
)

// Config tunes a Tracker.
type Config struct {
	Countdown      time.Duration
	Extension      time.Duration
	MaxExtensions  int
	MilestoneTurns int
	Now            func() time.Time
}

// DefaultConfig returns a ten minute countdown with three five minute extensions and a milestone at 20 turns.
func DefaultConfig() Config {
	return Config{
		Countdown:      DefaultCountdown,
		Extension:      DefaultExtension,
		MaxExtensions:  DefaultMaxExtensions,
		MilestoneTurns: DefaultMilestoneTurns,
		Now:            time.Now,
	}
}

// State is the persisted part of a Tracker.
type State struct {
	Turns            int  `json:"turns"`
	RemainingSeconds int  `json:"remaining_seconds"`
	Extensions       int  `json:"extensions"`
	MilestoneShown   bool `json:"milestone_shown"`
	TimeUpFired      bool `json:"time_up_fired"`
}

// Tracker counts messages and counts down the remaining session time. Events are delivered to the emit callback
// while no lock is held. A Tracker is safe for concurrent use.
type Tracker struct {
	cfg  Config
	emit func(models.Event)

	mu             sync.Mutex
	turns          int
	remaining      int
	extensions     int
	milestoneShown bool
	timeUpFired    bool
	paused         bool
}

func NewTracker(cfg Config, emit func(models.Event)) *Tracker {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if emit == nil {
		emit = func(models.Event) {}
	}
	return &Tracker{
		cfg:            cfg,
		emit:           emit,
		mu:             sync.Mutex{},
		turns:          0,
		remaining:      int(cfg.Countdown / time.Second),
		extensions:     0,
		milestoneShown: false,
		timeUpFired:    false,
		paused:         false,
	}
}

// RecordMessage counts one appended message, user or assistant. It returns the new turn count.
func (t *Tracker) RecordMessage() int {
	t.mu.Lock()
	t.turns++
	turns := t.turns
	fire := !t.milestoneShown && t.cfg.MilestoneTurns > 0 && turns >= t.cfg.MilestoneTurns
	if fire {
		t.milestoneShown = true
	}
	t.mu.Unlock()

	if fire {
		t.emit(models.Event{Kind: models.EventEngagementMilestone, At: t.cfg.Now()}) //nolint:exhaustruct // kind only
	}
	return turns
}

// Turns returns the number of recorded messages.
func (t *Tracker) Turns() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.turns
}

// Remaining returns the remaining session time.
func (t *Tracker) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Duration(t.remaining) * time.Second
}

// Tick removes one second from the countdown. Reaching zero emits time_up once.
func (t *Tracker) Tick() {
	t.mu.Lock()
	if t.paused || t.remaining <= 0 {
		t.mu.Unlock()
		return
	}
	t.remaining--
	fire := t.remaining == 0 && !t.timeUpFired
	if fire {
		t.timeUpFired = true
	}
	t.mu.Unlock()

	if fire {
		t.emit(models.Event{Kind: models.EventTimeUp, At: t.cfg.Now()}) //nolint:exhaustruct // kind only
	}
}

// Extend adds the extension increment to the remaining time. Once the extensions are used up it does nothing and
// returns false.
func (t *Tracker) Extend() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.extensions >= t.cfg.MaxExtensions {
		return false
	}
	t.extensions++
	t.remaining += int(t.cfg.Extension / time.Second)
	if t.remaining > 0 {
		// Running out again fires another time_up.
		t.timeUpFired = false
	}
	return true
}

// ExtensionsLeft returns how many more times Extend succeeds.
func (t *Tracker) ExtensionsLeft() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.MaxExtensions - t.extensions
}

// Pause stops the countdown until Resume is called.
func (t *Tracker) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

func (t *Tracker) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
}

// State returns the current counters.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{
		Turns:            t.turns,
		RemainingSeconds: t.remaining,
		Extensions:       t.extensions,
		MilestoneShown:   t.milestoneShown,
		TimeUpFired:      t.timeUpFired,
	}
}

// Restore replaces the counters, typically with a recovered State. No events are emitted.
func (t *Tracker) Restore(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = max(s.Turns, 0)
	t.remaining = max(s.RemainingSeconds, 0)
	t.extensions = min(max(s.Extensions, 0), t.cfg.MaxExtensions)
	t.milestoneShown = s.MilestoneShown
	t.timeUpFired = s.TimeUpFired || t.remaining == 0
}

// Run calls Tick every second until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Tick()
		}
	}
}
