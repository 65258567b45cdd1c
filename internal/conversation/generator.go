package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
)

// Generator produces the next director reply for a conversation. It returns the raw reply body, which is decoded
// with DecodeReply.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) ([]byte, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// ErrNoGenerator is returned by the generator of Unavailable.
var ErrNoGenerator = errors.NewSentinel("no generator configured")

// Unavailable returns a Generator that fails permanently. Conversations using it switch to offline mode on the first
// turn without waiting for retries.
func Unavailable() Generator {
	return GeneratorFunc(func(context.Context, Request) ([]byte, error) {
		return nil, backoff.Permanent(ErrNoGenerator)
	})
}

// Request is everything the generator knows about the conversation.
type Request struct {
	Persona        models.Persona   `json:"persona"`
	Vignette       string           `json:"vignette"`
	Emotion        models.Emotion   `json:"emotion"`
	Details        models.DetailMap `json:"details"`
	Stage          models.Stage     `json:"stage"`
	RecentMessages []models.Message `json:"recent_messages"`
	PriorDraft     string           `json:"prior_draft,omitempty"`
}

// Reply is a decoded generator reply.
type Reply struct {
	Message      string          `json:"message" jsonschema:"required,description=What the director says next."`
	Choices      []models.Choice `json:"choices,omitempty" jsonschema:"description=Exactly three candidate replies for the user or none."`
	ScenarioText string          `json:"scenario_text,omitempty" jsonschema:"description=The short-film scenario when one is written this turn."`
	Error        string          `json:"error,omitempty" jsonschema:"description=Set only when no reply can be produced."`
}

// ErrDecode is wrapped by every [DecodeError].
var ErrDecode = errors.NewSentinel("decode generator reply")

// DecodeError describes why a generator reply was rejected.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrDecode.Error(), e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrDecode.Error(), e.Reason)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

// LogValue implements [slog.LogValuer].
func (e *DecodeError) LogValue() slog.Value {
	return slog.GroupValue(slog.String("reason", e.Reason))
}

// DecodeReply parses a generator reply body. Empty bodies, invalid JSON, a blank message, a reported error, and a
// choice count other than zero or three are rejected with a *DecodeError.
func DecodeReply(body []byte) (Reply, error) {
	var reply Reply
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return reply, &DecodeError{Reason: "empty body", Err: nil}
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return Reply{}, &DecodeError{Reason: "invalid json", Err: err}
	}
	if reply.Error != "" {
		return Reply{}, &DecodeError{Reason: "generator reported error: " + reply.Error, Err: nil}
	}
	if strings.TrimSpace(reply.Message) == "" {
		return Reply{}, &DecodeError{Reason: "missing message", Err: nil}
	}
	if n := len(reply.Choices); n != 0 && n != models.ChoiceCount {
		return Reply{}, &DecodeError{Reason: fmt.Sprintf("got %d choices", n), Err: nil}
	}
	for i, c := range reply.Choices {
		if strings.TrimSpace(c.Text) == "" {
			return Reply{}, &DecodeError{Reason: fmt.Sprintf("choice %d has no text", i), Err: nil}
		}
	}
	return reply, nil
}
