package main

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/myrjola/directorscut/internal/e2etest"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/testhelpers"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func testLookupEnv(overrides map[string]string) func(string) (string, bool) {
	env := map[string]string{
		"DIRECTORSCUT_ADDR":             "localhost:0",
		"DIRECTORSCUT_SQLITE_URL":       ":memory:",
		"DIRECTORSCUT_PERSIST_DEBOUNCE": "10ms",
	}
	for k, v := range overrides {
		env[k] = v
	}
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func startTestServer(t *testing.T, lookupEnv func(string) (string, bool)) *e2etest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server, err := e2etest.StartServer(ctx, io.Discard, lookupEnv, run)
	require.NoError(t, err)
	return server
}

func requireStatus(t *testing.T, err error, status int) {
	t.Helper()
	var statusErr *e2etest.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, status, statusErr.Status, statusErr.Body)
}

func TestConversationFlow(t *testing.T) {
	openAI := testhelpers.NewOpenAIServer(t, func(openai.ChatCompletionRequest) (string, int) {
		return `{"message":"멋진 장면이 될 거예요.","scenario_text":"S#1. 회사 앞 카페, 아침."}`, http.StatusOK
	})
	server := startTestServer(t, testLookupEnv(map[string]string{
		"OPENAI_API_KEY":  "sk-test",
		"OPENAI_BASE_URL": openAI.URL,
	}))
	client := server.Client()
	ctx := context.Background()

	catalogue, err := client.Directors(ctx)
	require.NoError(t, err)
	require.Len(t, catalogue.Directors, len(models.Personas()))
	require.Len(t, catalogue.Emotions, len(models.Emotions()))

	_, err = client.Session(ctx)
	requireStatus(t, err, http.StatusNotFound)

	started, err := client.Start(ctx, models.PersonaHaru, models.EmotionJoy, "첫 출근")
	require.NoError(t, err)
	require.False(t, started.Recovered)
	require.Equal(t, models.StageInitial, started.Stage)
	require.Equal(t, "첫 출근", started.Conversation.Vignette)

	reply, err := client.Send(ctx, "어릴 적 이야기를 해볼게요")
	require.NoError(t, err)
	require.Equal(t, models.StageInitial, reply.PreviousStage)
	require.Equal(t, models.StageDetail2, reply.Stage)
	require.False(t, reply.Offline)
	require.Equal(t, "멋진 장면이 될 거예요.", reply.Message.Content)

	reply, err = client.Send(ctx, "회사 앞 카페였어요")
	require.NoError(t, err)
	require.Equal(t, models.StageDraft, reply.Stage)
	require.Equal(t, "S#1. 회사 앞 카페, 아침.", reply.DraftScenario)

	reply, err = client.Send(ctx, "완벽해요, 좋아요")
	require.NoError(t, err)
	require.Equal(t, models.StageFinal, reply.Stage)
	require.Equal(t, "S#1. 회사 앞 카페, 아침.", reply.FinalScenario)
	require.Equal(t, 3, openAI.Calls())

	current, err := client.Session(ctx)
	require.NoError(t, err)
	require.Equal(t, models.StageFinal, current.Stage)
	require.Equal(t, 6, current.Turns)
	require.Len(t, current.Conversation.History, 6)
	require.Equal(t, "회사 앞 카페였어요", current.Conversation.Details[models.StageDetail2])

	scenarios, err := client.Scenarios(ctx)
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	require.Equal(t, models.PersonaHaru, scenarios[0].Director)
	require.Equal(t, "S#1. 회사 앞 카페, 아침.", scenarios[0].Scenario)

	ext, err := client.Extend(ctx)
	require.NoError(t, err)
	require.True(t, ext.Extended)
	require.Greater(t, ext.RemainingSeconds, int((10 * time.Minute).Seconds()))

	require.NoError(t, client.Reset(ctx))
	_, err = client.Session(ctx)
	requireStatus(t, err, http.StatusNotFound)
	_, err = client.Send(ctx, "아직 거기 계세요?")
	requireStatus(t, err, http.StatusBadRequest)
}

func TestOfflineConversation(t *testing.T) {
	server := startTestServer(t, testLookupEnv(nil))
	client := server.Client()
	ctx := context.Background()

	_, err := client.Start(ctx, models.PersonaVera, models.EmotionAnger, "")
	require.NoError(t, err)

	reply, err := client.Send(ctx, "그날은 비가 왔어요")
	require.NoError(t, err)
	require.True(t, reply.EnteredOffline)
	require.True(t, reply.Offline)
	require.NotEmpty(t, reply.Message.Content)
	require.Equal(t, models.StageDetail1, reply.Stage)

	reply, err = client.Send(ctx, "우산도 없었죠")
	require.NoError(t, err)
	require.False(t, reply.EnteredOffline)
	require.True(t, reply.Offline)
}

func TestRequestValidation(t *testing.T) {
	server := startTestServer(t, testLookupEnv(nil))
	client := server.Client()
	ctx := context.Background()

	_, err := client.Start(ctx, "kubrick", models.EmotionJoy, "")
	requireStatus(t, err, http.StatusBadRequest)

	_, err = client.Send(ctx, "hello")
	requireStatus(t, err, http.StatusBadRequest)

	_, err = client.Start(ctx, models.PersonaMira, models.EmotionPleasure, "")
	require.NoError(t, err)
	_, err = client.Send(ctx, "   ")
	requireStatus(t, err, http.StatusBadRequest)

	// A request without the CSRF cookie and token is rejected.
	resp, err := http.Post(server.URL()+"/api/session", "application/json",
		strings.NewReader(`{"director":"haru","emotion":"joy"}`))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSessionEvents(t *testing.T) {
	server := startTestServer(t, testLookupEnv(nil))
	client := server.Client()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Start(ctx, models.PersonaOscar, models.EmotionSadness, "")
	require.NoError(t, err)

	resp, err := client.Get(ctx, "/api/session/events")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	waitForEvent := func(name string) {
		t.Helper()
		for scanner.Scan() {
			if scanner.Text() == "event: "+name {
				return
			}
		}
		require.Fail(t, "event stream ended", "waiting for %s: %v", name, scanner.Err())
	}
	waitForEvent("snapshot")

	_, err = client.Send(ctx, "창밖을 보고 있었어요")
	require.NoError(t, err)
	waitForEvent(string(models.EventOfflineModeEntered))
	waitForEvent(string(models.EventAssistantMessage))
}

func TestEventsRequireConversation(t *testing.T) {
	server := startTestServer(t, testLookupEnv(nil))

	resp, err := server.Client().Get(context.Background(), "/api/session/events")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
