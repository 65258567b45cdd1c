package conversation_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/stretchr/testify/require"
)

func TestBucketForTurn(t *testing.T) {
	tests := []struct {
		turn int
		want conversation.Bucket
	}{
		{turn: 0, want: conversation.BucketAnalyzing},
		{turn: 3, want: conversation.BucketAnalyzing},
		{turn: 4, want: conversation.BucketDeepening},
		{turn: 7, want: conversation.BucketDeepening},
		{turn: 8, want: conversation.BucketConcluding},
		{turn: 40, want: conversation.BucketConcluding},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, conversation.BucketForTurn(tt.turn), "turn %d", tt.turn)
	}
}

func TestDefaultCatalogue(t *testing.T) {
	catalogue, err := conversation.DefaultCatalogue()
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec // deterministic test source
	for _, persona := range models.Personas() {
		for _, turn := range []int{0, 5, 10} {
			for range 10 {
				reply := catalogue.Pick(persona, turn, rng)
				require.NotEmpty(t, reply.Message)
				require.Contains(t, []int{0, models.ChoiceCount}, len(reply.Choices))
				for _, c := range reply.Choices {
					require.NotEmpty(t, c.ID)
					require.NotEmpty(t, c.Text)
				}
			}
		}
	}
}

func TestLoadCatalogue_Invalid(t *testing.T) {
	complete := func(persona string) string {
		return persona + `:
  analyzing:
    - message: a
  deepening:
    - message: b
  concluding:
    - message: c
`
	}
	allPersonas := complete("haru") + complete("vera") + complete("oscar") + complete("mira")

	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing persona",
			yaml: complete("haru") + complete("vera") + complete("oscar"),
		},
		{
			name: "missing bucket",
			yaml: complete("haru") + complete("vera") + complete("oscar") + `mira:
  analyzing:
    - message: a
  deepening:
    - message: b
`,
		},
		{
			name: "unknown persona",
			yaml: allPersonas + complete("kubrick"),
		},
		{
			name: "two choices",
			yaml: complete("haru") + complete("vera") + complete("oscar") + `mira:
  analyzing:
    - message: a
      choices:
        - {text: x}
        - {text: y}
  deepening:
    - message: b
  concluding:
    - message: c
`,
		},
		{
			name: "not yaml",
			yaml: "haru: [",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := conversation.LoadCatalogue(strings.NewReader(tt.yaml))
			require.Error(t, err)
		})
	}

	_, err := conversation.LoadCatalogue(strings.NewReader(allPersonas))
	require.NoError(t, err)
}
