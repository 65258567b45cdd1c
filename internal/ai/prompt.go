package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
)

var replySchema = sync.OnceValues(func() (string, error) {
	r := &jsonschema.Reflector{ //nolint:exhaustruct // defaults are fine
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := r.Reflect(&conversation.Reply{}) //nolint:exhaustruct // type information only
	schema.Title = "Director reply"
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal reply schema")
	}
	return string(data), nil
})

func stageInstruction(stage models.Stage) string {
	switch stage {
	case models.StageInitial:
		return "Greet the user and ask what happened in the vignette."
	case models.StageDetail1:
		return "Ask about the setting of the memory: where and when it happened and who was there."
	case models.StageDetail2:
		return "Ask about the feelings and sensory details of the key moment."
	case models.StageDetail3:
		return "Ask about the turning point or the ending of the memory."
	case models.StageDraft:
		return "Write a first short-film scenario from the vignette and the details. Put it in scenario_text and " +
			"ask the user whether they like it."
	case models.StageFeedback:
		return "Revise the prior draft according to the latest user message. Put the full revision in " +
			"scenario_text and ask whether anything else should change."
	case models.StageFinal:
		return "Write the final version of the scenario in scenario_text and thank the user."
	default:
		return ""
	}
}

func systemPrompt(persona models.Persona, stage models.Stage) (string, error) {
	director, ok := persona.Director()
	if !ok {
		return "", errors.Wrap(models.ErrUnknownPersona, "system prompt", slog.String("persona", string(persona)))
	}
	instruction := stageInstruction(stage)
	if instruction == "" {
		return "", errors.Wrap(models.ErrInvalidStage, "system prompt", slog.String("stage", string(stage)))
	}
	schema, err := replySchema()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(director.Style)
	b.WriteString("\nYou are helping the user turn a personal memory into a short film. Always answer in Korean.\n")
	fmt.Fprintf(&b, "Current stage: %s. %s\n", stage, instruction)
	fmt.Fprintf(&b, "Offer exactly %d short candidate replies in choices, or none when the scenario is final.\n",
		models.ChoiceCount)
	b.WriteString("Respond with a single JSON object matching this schema:\n")
	b.WriteString(schema)
	return b.String(), nil
}
