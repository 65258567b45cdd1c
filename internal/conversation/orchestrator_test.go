package conversation_test

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/myrjola/directorscut/internal/conversation"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

// fakeGenerator replays the queued results and then repeats the last one.
type fakeGenerator struct {
	mu       sync.Mutex
	results  []fakeResult
	calls    atomic.Int32
	requests []conversation.Request
}

type fakeResult struct {
	body []byte
	err  error
}

func (g *fakeGenerator) Generate(_ context.Context, req conversation.Request) ([]byte, error) {
	g.calls.Add(1)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	r := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return r.body, r.err
}

func (g *fakeGenerator) lastRequest() conversation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func replyBody(t *testing.T, reply conversation.Reply) fakeResult {
	t.Helper()
	body, err := json.Marshal(reply)
	require.NoError(t, err)
	return fakeResult{body: body, err: nil}
}

var errUnavailable = errors.NewSentinel("service unavailable")

func failure() fakeResult {
	return fakeResult{body: nil, err: errUnavailable}
}

func newTestOrchestrator(t *testing.T, gen conversation.Generator) *conversation.Orchestrator {
	t.Helper()
	catalogue, err := conversation.DefaultCatalogue()
	require.NoError(t, err)
	clock := testhelpers.NewClock()
	cfg := conversation.DefaultOrchestratorConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	cfg.Now = clock.Now
	return conversation.NewOrchestrator(gen, catalogue, cfg, testhelpers.NewLogger(io.Discard))
}

func threeChoices() []models.Choice {
	return []models.Choice{
		{ID: "", Text: "하나", Icon: ""},
		{ID: "", Text: "둘", Icon: ""},
		{ID: "", Text: "셋", Icon: ""},
	}
}

func TestOrchestrator_Advance(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{results: []fakeResult{
		replyBody(t, conversation.Reply{Message: "그날 날씨는 어땠나요?", Choices: threeChoices()}),
	}}
	o := newTestOrchestrator(t, gen)
	conv := models.NewConversation(models.PersonaHaru, models.EmotionJoy, "졸업식 날")

	out, err := o.Advance(ctx, conv, 0, "친구랑 놀았어요")
	require.NoError(t, err)

	require.Equal(t, models.StageDetail1, out.Conversation.Stage)
	require.Equal(t, models.StageInitial, out.PreviousStage)
	require.True(t, out.StageChanged())
	require.False(t, out.EnteredOffline)
	require.Empty(t, out.Conversation.Details, "initial stage text is not a detail")
	require.Len(t, out.Conversation.History, 2)
	require.Equal(t, models.RoleUser, out.Conversation.History[0].Role)
	require.Equal(t, "친구랑 놀았어요", out.Conversation.History[0].Content)
	require.Equal(t, out.Message, out.Conversation.History[1])
	require.Len(t, out.Message.Choices, models.ChoiceCount)
	require.Equal(t, "1", out.Message.Choices[0].ID)

	// The caller's conversation is untouched.
	require.Equal(t, models.StageInitial, conv.Stage)
	require.Empty(t, conv.History)

	req := gen.lastRequest()
	require.Equal(t, models.StageDetail1, req.Stage)
	require.Equal(t, "졸업식 날", req.Vignette)
	require.Len(t, req.RecentMessages, 1)
	require.NoError(t, out.Conversation.Validate())
}

func TestOrchestrator_RecordsDetailUnderOutgoingStage(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{replyBody(t, conversation.Reply{Message: "계속"})}}
	o := newTestOrchestrator(t, gen)
	conv := models.NewConversation(models.PersonaVera, models.EmotionAnger, "")
	conv.Stage = models.StageDetail1

	out, err := o.Advance(context.Background(), conv, 2, "비가 왔어요")
	require.NoError(t, err)
	require.Equal(t, models.StageDetail2, out.Conversation.Stage)
	require.Equal(t, models.DetailMap{models.StageDetail1: "비가 왔어요"}, out.Conversation.Details)
	require.Equal(t, out.Conversation.Details, gen.lastRequest().Details)
}

func TestOrchestrator_CapturesScenario(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{results: []fakeResult{
		replyBody(t, conversation.Reply{Message: "초안이에요", ScenarioText: "DRAFT"}),
		replyBody(t, conversation.Reply{Message: "완성했어요", ScenarioText: "FINAL"}),
	}}
	o := newTestOrchestrator(t, gen)
	conv := models.NewConversation(models.PersonaOscar, models.EmotionPleasure, "")
	conv.Stage = models.StageDetail3

	out, err := o.Advance(ctx, conv, 6, "네")
	require.NoError(t, err)
	require.Equal(t, models.StageDraft, out.Conversation.Stage)
	require.Equal(t, "DRAFT", out.Conversation.DraftScenario)
	require.Empty(t, out.Conversation.FinalScenario)

	out, err = o.Advance(ctx, out.Conversation, 8, "좋아요 완벽해요")
	require.NoError(t, err)
	require.Equal(t, models.StageFinal, out.Conversation.Stage)
	require.Equal(t, "DRAFT", gen.lastRequest().PriorDraft)
	require.Equal(t, "FINAL", out.Conversation.DraftScenario)
	require.Equal(t, "FINAL", out.Conversation.FinalScenario)
	require.NoError(t, out.Conversation.Validate())
}

func TestOrchestrator_RetriesTransientFailures(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{
		failure(),
		{body: []byte(`{"choices":[]}`), err: nil},
		replyBody(t, conversation.Reply{Message: "드디어 연결됐어요"}),
	}}
	o := newTestOrchestrator(t, gen)
	conv := models.NewConversation(models.PersonaMira, models.EmotionSadness, "")

	out, err := o.Advance(context.Background(), conv, 0, "안녕하세요")
	require.NoError(t, err)
	require.Equal(t, int32(3), gen.calls.Load())
	require.False(t, out.EnteredOffline)
	require.False(t, out.Conversation.Offline)
	require.Equal(t, "드디어 연결됐어요", out.Message.Content)
}

func TestOrchestrator_OfflineModeIsSticky(t *testing.T) {
	ctx := context.Background()
	gen := &fakeGenerator{results: []fakeResult{failure()}}
	o := newTestOrchestrator(t, gen)
	conv := models.NewConversation(models.PersonaHaru, models.EmotionJoy, "")

	out, err := o.Advance(ctx, conv, 0, "안녕하세요")
	require.NoError(t, err)
	require.Equal(t, int32(3), gen.calls.Load())
	require.True(t, out.EnteredOffline)
	require.True(t, out.Conversation.Offline)
	require.NotEmpty(t, out.Message.Content)
	require.Equal(t, models.StageDetail1, out.Conversation.Stage)

	conv = out.Conversation
	for turn := 2; turn < 12; turn += 2 {
		out, err = o.Advance(ctx, conv, turn, "계속 이야기해요")
		require.NoError(t, err)
		require.False(t, out.EnteredOffline)
		require.True(t, out.Conversation.Offline)
		require.NotEmpty(t, out.Message.Content)
		conv = out.Conversation
	}
	require.Equal(t, int32(3), gen.calls.Load(), "generator must not be called in offline mode")
	require.NoError(t, conv.Validate())
}

func TestOrchestrator_MalformedPayloadsFallBackToOffline(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{{body: []byte("not json"), err: nil}}}
	o := newTestOrchestrator(t, gen)
	conv := models.NewConversation(models.PersonaVera, models.EmotionAnger, "")

	out, err := o.Advance(context.Background(), conv, 0, "hi")
	require.NoError(t, err)
	require.True(t, out.EnteredOffline)
	require.Equal(t, int32(3), gen.calls.Load())
}

func TestOrchestrator_UnavailableGeneratorSkipsRetries(t *testing.T) {
	o := newTestOrchestrator(t, conversation.Unavailable())
	conv := models.NewConversation(models.PersonaOscar, models.EmotionSadness, "")

	out, err := o.Advance(context.Background(), conv, 0, "hi")
	require.NoError(t, err)
	require.True(t, out.EnteredOffline)
	require.Len(t, out.Conversation.History, 2)
}

func TestOrchestrator_Errors(t *testing.T) {
	gen := &fakeGenerator{results: []fakeResult{replyBody(t, conversation.Reply{Message: "x"})}}
	o := newTestOrchestrator(t, gen)

	conv := models.NewConversation(models.PersonaVera, models.EmotionAnger, "")
	conv.Stage = "epilogue"
	_, err := o.Advance(context.Background(), conv, 0, "hi")
	require.ErrorIs(t, err, models.ErrInvalidStage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conv = models.NewConversation(models.PersonaVera, models.EmotionAnger, "")
	_, err = o.Advance(ctx, conv, 0, "hi")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(0), gen.calls.Load())
}
