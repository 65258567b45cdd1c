package repositories_test

import (
	"context"
	"io"
	"testing"

	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/repositories"
	"github.com/myrjola/directorscut/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestScenarioRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repositories.NewScenarioRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	tests := []struct {
		name      string
		namespace string
		persona   models.Persona
		scenario  string
		wantErr   bool
	}{
		{name: "haru scenario", namespace: "alpha", persona: models.PersonaHaru, scenario: "S#1. 운동장", wantErr: false},
		{name: "vera scenario", namespace: "alpha", persona: models.PersonaVera, scenario: "S#1. 골목", wantErr: false},
		{name: "other namespace", namespace: "beta", persona: models.PersonaMira, scenario: "S#1. 집", wantErr: false},
		{name: "no final scenario", namespace: "alpha", persona: models.PersonaOscar, scenario: "", wantErr: true},
	}
	for _, tt := range tests {
		conv := models.NewConversation(tt.persona, models.EmotionJoy, "")
		conv.Stage = models.StageFinal
		conv.FinalScenario = tt.scenario
		id, err := repo.Archive(ctx, tt.namespace, conv)
		if tt.wantErr {
			require.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		require.NotEmpty(t, id)
	}

	alpha, err := repo.List(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	directors := []models.Persona{alpha[0].Director, alpha[1].Director}
	require.ElementsMatch(t, []models.Persona{models.PersonaHaru, models.PersonaVera}, directors)
	for _, s := range alpha {
		require.Equal(t, models.EmotionJoy.PlaceholderVignette(), s.Vignette)
		require.False(t, s.Created.IsZero())
	}

	beta, err := repo.List(ctx, "beta")
	require.NoError(t, err)
	require.Len(t, beta, 1)
	require.Equal(t, "S#1. 집", beta[0].Scenario)

	empty, err := repo.List(ctx, "gamma")
	require.NoError(t, err)
	require.Empty(t, empty)
}
