package persistence_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/myrjola/directorscut/internal/budget"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/myrjola/directorscut/internal/models"
	"github.com/myrjola/directorscut/internal/persistence"
	"github.com/myrjola/directorscut/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

const namespace = "test"

func newGateway(t *testing.T, store persistence.Store, clock *testhelpers.Clock) *persistence.Gateway {
	t.Helper()
	return persistence.NewGateway(store, persistence.GatewayConfig{
		Namespace: namespace,
		Debounce:  20 * time.Millisecond,
		Expiry:    30 * time.Minute,
		Now:       clock.Now,
	}, testhelpers.NewLogger(io.Discard))
}

func sampleSnapshot(clock *testhelpers.Clock, persona models.Persona) persistence.Snapshot {
	conv := models.NewConversation(persona, models.EmotionSadness, "이사 가던 날")
	conv.Stage = models.StageDetail2
	conv.Details[models.StageDetail1] = "비가 왔어요"
	conv.Append(models.NewMessage(models.RoleUser, "안녕하세요", clock.Now()))
	reply := models.NewMessage(models.RoleAssistant, "반가워요", clock.Now())
	reply.Choices = []models.Choice{{ID: "1", Text: "a"}, {ID: "2", Text: "b"}, {ID: "3", Text: "c", Icon: "🎬"}}
	conv.Append(reply)
	return persistence.Snapshot{
		Conversation: conv,
		Stage:        conv.Stage,
		Director:     persona,
		State:        budget.State{Turns: 2, RemainingSeconds: 420, Extensions: 1, MilestoneShown: false, TimeUpFired: false},
		SavedAt:      time.Time{},
	}
}

func TestGateway_RoundTrip(t *testing.T) {
	ctx := context.Background()
	clock := testhelpers.NewClock()
	store := persistence.NewMemoryStore()
	g := newGateway(t, store, clock)

	snap := sampleSnapshot(clock, models.PersonaHaru)
	require.NoError(t, g.PersistNow(ctx, snap))
	require.Equal(t, []string{"test:messages:haru", "test:session"}, store.Keys())

	clock.Advance(29 * time.Minute)
	recovered, err := g.Recover(ctx, models.PersonaHaru)
	require.NoError(t, err)
	require.NotNil(t, recovered)
	require.Equal(t, snap.Conversation, recovered.Conversation)
	require.Equal(t, snap.State, recovered.State)
	require.Equal(t, models.StageDetail2, recovered.Stage)
	require.Equal(t, testhelpers.NewClock().Now(), recovered.SavedAt)
}

func TestGateway_Expiry(t *testing.T) {
	ctx := context.Background()
	clock := testhelpers.NewClock()
	store := persistence.NewMemoryStore()
	g := newGateway(t, store, clock)

	require.NoError(t, g.PersistNow(ctx, sampleSnapshot(clock, models.PersonaVera)))
	clock.Advance(31 * time.Minute)

	recovered, err := g.Recover(ctx, models.PersonaVera)
	require.NoError(t, err)
	require.Nil(t, recovered)

	_, err = store.Get(ctx, "test:session")
	require.ErrorIs(t, err, persistence.ErrNotFound, "expired snapshot is cleared")
}

func TestGateway_DirectorMismatch(t *testing.T) {
	ctx := context.Background()
	clock := testhelpers.NewClock()
	store := persistence.NewMemoryStore()
	g := newGateway(t, store, clock)

	require.NoError(t, g.PersistNow(ctx, sampleSnapshot(clock, models.PersonaVera)))

	recovered, err := g.Recover(ctx, models.PersonaOscar)
	require.NoError(t, err)
	require.Nil(t, recovered)

	recovered, err = g.Recover(ctx, models.PersonaVera)
	require.NoError(t, err)
	require.NotNil(t, recovered, "mismatched recovery leaves the snapshot in place")
}

func TestGateway_CorruptSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "{{{"},
		{name: "unknown stage", payload: `{"conversation":{"persona":"haru","emotion":"joy","stage":"detail_9",` +
			`"details":{}},"stage":"detail_9","director":"haru","saved_at":"2024-05-01T12:00:00Z"}`},
		{name: "stage disagreement", payload: `{"conversation":{"persona":"haru","emotion":"joy","stage":"draft",` +
			`"details":{}},"stage":"final","director":"haru","saved_at":"2024-05-01T12:00:00Z"}`},
		{name: "missing conversation", payload: `{"stage":"draft","director":"haru","saved_at":"2024-05-01T12:00:00Z"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			clock := testhelpers.NewClock()
			store := persistence.NewMemoryStore()
			g := newGateway(t, store, clock)
			require.NoError(t, store.Set(ctx, "test:session", []byte(tt.payload)))

			recovered, err := g.Recover(ctx, models.PersonaHaru)
			require.NoError(t, err)
			require.Nil(t, recovered)
			_, err = store.Get(ctx, "test:session")
			require.ErrorIs(t, err, persistence.ErrNotFound)
		})
	}
}

func TestGateway_RecoverEmpty(t *testing.T) {
	g := newGateway(t, persistence.NewMemoryStore(), testhelpers.NewClock())
	recovered, err := g.Recover(context.Background(), models.PersonaMira)
	require.NoError(t, err)
	require.Nil(t, recovered)
}

func TestGateway_DebouncedPersist(t *testing.T) {
	ctx := context.Background()
	clock := testhelpers.NewClock()
	store := &countingStore{MemoryStore: persistence.NewMemoryStore(), mu: sync.Mutex{}, count: 0}
	g := newGateway(t, store, clock)

	snap := sampleSnapshot(clock, models.PersonaMira)
	for range 5 {
		g.Persist(ctx, snap)
	}
	require.True(t, g.Pending())
	require.Eventually(t, func() bool { return !g.Pending() && store.sets() == 2 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 2, store.sets(), "five persists collapse into one snapshot and one log write")
}

func TestGateway_ClearCancelsPendingWrite(t *testing.T) {
	ctx := context.Background()
	clock := testhelpers.NewClock()
	store := persistence.NewMemoryStore()
	g := newGateway(t, store, clock)

	g.Persist(ctx, sampleSnapshot(clock, models.PersonaHaru))
	require.NoError(t, g.Clear(ctx))
	require.False(t, g.Pending())

	time.Sleep(60 * time.Millisecond)
	require.Empty(t, store.Keys())

	// Clearing twice is fine.
	require.NoError(t, g.Clear(ctx))
}

func TestGateway_LoadLog(t *testing.T) {
	ctx := context.Background()
	clock := testhelpers.NewClock()
	g := newGateway(t, persistence.NewMemoryStore(), clock)

	haru := sampleSnapshot(clock, models.PersonaHaru)
	require.NoError(t, g.PersistNow(ctx, haru))
	vera := sampleSnapshot(clock, models.PersonaVera)
	vera.Conversation.Append(models.NewMessage(models.RoleUser, "또 만났네요", clock.Now()))
	require.NoError(t, g.PersistNow(ctx, vera))

	log, err := g.LoadLog(ctx, models.PersonaHaru)
	require.NoError(t, err)
	require.Equal(t, haru.Conversation.History, log)

	log, err = g.LoadLog(ctx, models.PersonaVera)
	require.NoError(t, err)
	require.Len(t, log, 3)

	log, err = g.LoadLog(ctx, models.PersonaOscar)
	require.NoError(t, err)
	require.Empty(t, log)
}

func TestGateway_WriteFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	clock := testhelpers.NewClock()
	g := newGateway(t, failingStore{}, clock)

	require.Error(t, g.PersistNow(ctx, sampleSnapshot(clock, models.PersonaHaru)))

	g.Persist(ctx, sampleSnapshot(clock, models.PersonaHaru))
	g.Flush()

	recovered, err := g.Recover(ctx, models.PersonaHaru)
	require.NoError(t, err)
	require.Nil(t, recovered)
}

type countingStore struct {
	*persistence.MemoryStore
	mu    sync.Mutex
	count int
}

func (s *countingStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *countingStore) sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

var errStoreDown = errors.NewSentinel("store down")

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }
func (failingStore) Set(context.Context, string, []byte) error   { return errStoreDown }
func (failingStore) Remove(context.Context, string) error        { return errStoreDown }
