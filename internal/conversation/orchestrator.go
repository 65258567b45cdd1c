package conversation

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
)

// OrchestratorConfig tunes the generator round-trip.
type OrchestratorConfig struct {
	// MaxAttempts is the number of generator calls made before falling back to offline mode.
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt. It doubles after every further failure.
	InitialBackoff time.Duration
	// MaxBackoff caps a single delay between attempts.
	MaxBackoff time.Duration
	// AttemptTimeout bounds a single generator call.
	AttemptTimeout time.Duration
	// RecentMessages is the length of the history tail sent to the generator.
	RecentMessages int
	Now            func() time.Time
	Rand           IntN
}

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Second
	defaultAttemptTimeout = 30 * time.Second
	defaultRecentMessages = 20
)

// DefaultOrchestratorConfig returns the production retry schedule: three attempts with 1s and 2s pauses.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
		AttemptTimeout: defaultAttemptTimeout,
		RecentMessages: defaultRecentMessages,
		Now:            time.Now,
		Rand:           globalRand{},
	}
}

type globalRand struct{}

func (globalRand) IntN(n int) int {
	return rand.IntN(n) //nolint:gosec // canned reply selection does not need a secure source.
}

// Orchestrator advances a conversation by one user turn.
type Orchestrator struct {
	generator Generator
	catalogue *Catalogue
	cfg       OrchestratorConfig
	logger    *slog.Logger
}

func NewOrchestrator(generator Generator, catalogue *Catalogue, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	defaults := DefaultOrchestratorConfig()
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaults.AttemptTimeout
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = defaults.RecentMessages
	}
	if cfg.Now == nil {
		cfg.Now = defaults.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = defaults.Rand
	}
	return &Orchestrator{
		generator: generator,
		catalogue: catalogue,
		cfg:       cfg,
		logger:    logger.With("source", "Orchestrator"),
	}
}

// Outcome is the result of one Advance call.
type Outcome struct {
	// Conversation is the updated copy of the conversation with both new messages appended.
	Conversation  *models.Conversation
	UserMessage   models.Message
	Message       models.Message
	PreviousStage models.Stage
	// EnteredOffline is true only on the turn that switched the conversation to offline mode.
	EnteredOffline bool
}

// StageChanged reports whether the turn moved the conversation to another stage.
func (o Outcome) StageChanged() bool {
	return o.Conversation.Stage != o.PreviousStage
}

// Advance processes userText sent while the conversation is in conv.Stage. turnCount is the number of messages
// exchanged before userText. conv is not modified.
//
// Generator failures never result in an error: after the last attempt the conversation switches to offline mode and
// continues with canned replies. An error is returned for an invalid stage or a cancelled context.
func (o *Orchestrator) Advance(
	ctx context.Context,
	conv *models.Conversation,
	turnCount int,
	userText string,
) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, errors.Wrap(err, "advance conversation")
	}
	next, err := NextStage(conv.Stage, turnCount, userText)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "advance conversation")
	}

	work := conv.Clone()
	work.Details = RecordDetail(conv.Details, conv.Stage, userText)
	userMsg := models.NewMessage(models.RoleUser, userText, o.cfg.Now())
	work.Append(userMsg)

	req := Request{
		Persona:        work.Persona,
		Vignette:       work.Vignette,
		Emotion:        work.Emotion,
		Details:        work.Details.Clone(),
		Stage:          next,
		RecentMessages: work.Recent(o.cfg.RecentMessages),
		PriorDraft:     work.DraftScenario,
	}

	var (
		reply          Reply
		enteredOffline bool
	)
	if work.Offline {
		reply = o.catalogue.Pick(work.Persona, turnCount, o.cfg.Rand)
	} else {
		reply, err = o.generate(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, errors.Wrap(ctxErr, "advance conversation")
			}
			o.logger.LogAttrs(ctx, slog.LevelWarn, "generator unavailable, switching to offline mode",
				errors.SlogError(err), slog.String("persona", string(work.Persona)))
			work.Offline = true
			enteredOffline = true
			reply = o.catalogue.Pick(work.Persona, turnCount, o.cfg.Rand)
		}
	}

	if reply.ScenarioText != "" {
		work.DraftScenario = reply.ScenarioText
		if next == models.StageFinal {
			work.FinalScenario = reply.ScenarioText
		}
	}
	work.Stage = next

	assistantMsg := models.NewMessage(models.RoleAssistant, reply.Message, o.cfg.Now())
	assistantMsg.Choices = withChoiceIDs(reply.Choices)
	work.Append(assistantMsg)

	return Outcome{
		Conversation:   work,
		UserMessage:    userMsg,
		Message:        assistantMsg,
		PreviousStage:  conv.Stage,
		EnteredOffline: enteredOffline,
	}, nil
}

// generate calls the generator until a well-formed reply arrives or the attempts run out.
func (o *Orchestrator) generate(ctx context.Context, req Request) (Reply, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.InitialBackoff
	b.Multiplier = 2 //nolint:mnd // delays double
	b.RandomizationFactor = 0
	b.MaxInterval = o.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxAttempts-1)), ctx)

	attempt := 0
	operation := func() (Reply, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		defer cancel()

		body, err := o.generator.Generate(attemptCtx, req)
		if err != nil {
			return Reply{}, errors.Wrap(err, "generate reply", slog.Int("attempt", attempt))
		}
		reply, err := DecodeReply(body)
		if err != nil {
			return Reply{}, errors.Wrap(err, "decode reply", slog.Int("attempt", attempt))
		}
		return reply, nil
	}
	notify := func(err error, wait time.Duration) {
		o.logger.LogAttrs(ctx, slog.LevelInfo, "retrying generator",
			errors.SlogError(err), slog.Duration("wait", wait))
	}

	reply, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return Reply{}, errors.Wrap(err, "generator attempts exhausted", slog.Int("attempts", attempt))
	}
	return reply, nil
}

func withChoiceIDs(choices []models.Choice) []models.Choice {
	if len(choices) == 0 {
		return nil
	}
	out := make([]models.Choice, len(choices))
	for i, c := range choices {
		if c.ID == "" {
			c.ID = strconv.Itoa(i + 1)
		}
		out[i] = c
	}
	return out
}
