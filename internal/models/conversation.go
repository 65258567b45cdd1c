package models

import (
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/myrjola/directorscut/internal/errors"
)

// DetailMap holds the raw user text collected while the conversation was in a detail_N stage.
type DetailMap map[Stage]string

// Clone returns a copy of d that can be modified without affecting d.
func (d DetailMap) Clone() DetailMap {
	if d == nil {
		return DetailMap{}
	}
	return maps.Clone(d)
}

// Conversation is the context of one director session: the vignette, the details gathered so far, the current stage,
// the message history and the scenario drafts.
type Conversation struct {
	Persona  Persona   `json:"persona"`
	Vignette string    `json:"vignette"`
	Emotion  Emotion   `json:"emotion"`
	Details  DetailMap `json:"details"`
	Stage    Stage     `json:"stage"`
	// History is append-only and never holds two messages with the same ID.
	History       []Message `json:"history,omitempty"`
	DraftScenario string    `json:"draft_scenario,omitempty"`
	FinalScenario string    `json:"final_scenario,omitempty"`
	// Offline is set once the generator has been given up on for the rest of the session.
	Offline bool `json:"offline"`
}

// ErrInvalidConversation is returned when a conversation breaks one of its invariants.
var ErrInvalidConversation = errors.NewSentinel("invalid conversation")

// NewConversation starts a conversation at StageInitial. A blank vignette is replaced by the emotion's placeholder.
func NewConversation(persona Persona, emotion Emotion, vignette string) *Conversation {
	vignette = strings.TrimSpace(vignette)
	if vignette == "" {
		vignette = emotion.PlaceholderVignette()
	}
	return &Conversation{
		Persona:       persona,
		Vignette:      vignette,
		Emotion:       emotion,
		Details:       DetailMap{},
		Stage:         StageInitial,
		History:       nil,
		DraftScenario: "",
		FinalScenario: "",
		Offline:       false,
	}
}

// Append adds msg to the history. A message whose ID is already present is dropped and false is returned.
func (c *Conversation) Append(msg Message) bool {
	if c.HasMessage(msg.ID) {
		return false
	}
	c.History = append(c.History, msg)
	return true
}

// HasMessage reports whether a message with id is in the history.
func (c *Conversation) HasMessage(id string) bool {
	return slices.ContainsFunc(c.History, func(m Message) bool { return m.ID == id })
}

// Recent returns a copy of the last n messages of the history.
func (c *Conversation) Recent(n int) []Message {
	start := max(len(c.History)-n, 0)
	recent := make([]Message, 0, len(c.History)-start)
	for _, m := range c.History[start:] {
		recent = append(recent, m.Clone())
	}
	return recent
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	clone := *c
	clone.Details = c.Details.Clone()
	if c.History != nil {
		clone.History = make([]Message, len(c.History))
		for i, m := range c.History {
			clone.History[i] = m.Clone()
		}
	}
	return &clone
}

// Validate checks the invariants of the conversation.
func (c *Conversation) Validate() error {
	if !c.Stage.Valid() {
		return errors.Wrap(ErrInvalidStage, "validate conversation", slog.String("stage", string(c.Stage)))
	}
	if _, ok := c.Persona.Director(); !ok {
		return errors.Wrap(ErrUnknownPersona, "validate conversation", slog.String("persona", string(c.Persona)))
	}
	if _, err := ParseEmotion(string(c.Emotion)); err != nil {
		return errors.Wrap(err, "validate conversation")
	}
	for key := range c.Details {
		if _, ok := key.DetailIndex(); !ok {
			return errors.Wrap(ErrInvalidConversation, "detail key is not a detail stage",
				slog.String("key", string(key)))
		}
	}
	if c.FinalScenario != "" && c.Stage != StageFinal {
		return errors.Wrap(ErrInvalidConversation, "final scenario outside final stage",
			slog.String("stage", string(c.Stage)))
	}
	seen := make(map[string]struct{}, len(c.History))
	for _, m := range c.History {
		if _, ok := seen[m.ID]; ok {
			return errors.Wrap(ErrInvalidConversation, "duplicate message id", slog.String("id", m.ID))
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}
