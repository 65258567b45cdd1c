package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/myrjola/directorscut/internal/models"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestNewConversation(t *testing.T) {
	c := models.NewConversation(models.PersonaVera, models.EmotionAnger, "   ")
	require.Equal(t, models.EmotionAnger.PlaceholderVignette(), c.Vignette)
	require.Equal(t, models.StageInitial, c.Stage)
	require.NoError(t, c.Validate())

	c = models.NewConversation(models.PersonaHaru, models.EmotionJoy, " 졸업식 날 ")
	require.Equal(t, "졸업식 날", c.Vignette)
}

func TestConversation_AppendDropsDuplicateIDs(t *testing.T) {
	c := models.NewConversation(models.PersonaMira, models.EmotionSadness, "")
	msg := models.NewMessage(models.RoleUser, "안녕하세요", now)
	require.True(t, c.Append(msg))

	before := c.Clone()
	duplicate := msg
	duplicate.Content = "different content, same id"
	require.False(t, c.Append(duplicate))
	require.Equal(t, before.History, c.History)
	require.Len(t, c.History, 1)
}

func TestConversation_Recent(t *testing.T) {
	c := models.NewConversation(models.PersonaOscar, models.EmotionPleasure, "")
	for i := range 5 {
		c.Append(models.NewMessage(models.RoleUser, string(rune('a'+i)), now))
	}
	recent := c.Recent(2)
	require.Len(t, recent, 2)
	require.Equal(t, "d", recent[0].Content)
	require.Equal(t, "e", recent[1].Content)

	require.Len(t, c.Recent(20), 5)

	// The tail is a copy.
	recent[0].Content = "mutated"
	require.Equal(t, "d", c.History[3].Content)
}

func TestConversation_CloneIsDeep(t *testing.T) {
	c := models.NewConversation(models.PersonaOscar, models.EmotionJoy, "")
	c.Details[models.StageDetail1] = "first"
	msg := models.NewMessage(models.RoleAssistant, "hi", now)
	msg.Choices = []models.Choice{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}, {ID: "3", Text: "c"}}
	c.Append(msg)

	clone := c.Clone()
	clone.Details[models.StageDetail1] = "changed"
	clone.History[0].Choices[0].Text = "changed"

	require.Equal(t, "first", c.Details[models.StageDetail1])
	require.Equal(t, "a", c.History[0].Choices[0].Text)
}

func TestConversation_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *models.Conversation)
		wantErr error
	}{
		{
			name:    "valid",
			mutate:  func(_ *models.Conversation) {},
			wantErr: nil,
		},
		{
			name:    "unknown stage",
			mutate:  func(c *models.Conversation) { c.Stage = "epilogue" },
			wantErr: models.ErrInvalidStage,
		},
		{
			name:    "non detail key",
			mutate:  func(c *models.Conversation) { c.Details[models.StageDraft] = "x" },
			wantErr: models.ErrInvalidConversation,
		},
		{
			name: "final scenario outside final stage",
			mutate: func(c *models.Conversation) {
				c.Stage = models.StageDraft
				c.FinalScenario = "FADE IN"
			},
			wantErr: models.ErrInvalidConversation,
		},
		{
			name: "duplicate ids",
			mutate: func(c *models.Conversation) {
				m := models.NewMessage(models.RoleUser, "x", now)
				c.History = append(c.History, m, m)
			},
			wantErr: models.ErrInvalidConversation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.NewConversation(models.PersonaHaru, models.EmotionJoy, "")
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConversation_JSONRejectsCorruptState(t *testing.T) {
	var c models.Conversation
	err := json.Unmarshal([]byte(`{"persona":"vera","emotion":"joy","stage":"detail_7","details":{}}`), &c)
	require.ErrorIs(t, err, models.ErrInvalidStage)

	err = json.Unmarshal([]byte(`{"persona":"spielberg","emotion":"joy","stage":"initial"}`), &c)
	require.ErrorIs(t, err, models.ErrUnknownPersona)
}

func TestParsePersona(t *testing.T) {
	for _, p := range models.Personas() {
		parsed, err := models.ParsePersona(string(p))
		require.NoError(t, err)
		d, ok := parsed.Director()
		require.True(t, ok)
		require.NotEmpty(t, d.Style)
	}
	_, err := models.ParsePersona("nolan")
	require.ErrorIs(t, err, models.ErrUnknownPersona)
	require.Len(t, models.Directors(), len(models.Personas()))
}
