package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verassium/internal/chat"
	"github.com/verassium/internal/completion"
	"github.com/verassium/internal/store"
)

// Fake completion client for testing.
type fakeClient struct {
	mu       sync.Mutex
	reply    string
	err      error
	delay    time.Duration
	gate     chan struct{} // when set, Complete blocks until the channel is closed
	calls    int
	lastMsgs []chat.PromptMessage
}

func (f *fakeClient) Complete(ctx context.Context, modelID string, msgs []chat.PromptMessage) (string, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.lastMsgs = msgs
	delay, reply, err := f.delay, f.reply, f.err
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return "", err
	}
	if reply != "" {
		return reply, nil
	}
	return fmt.Sprintf("reply %d", call), nil
}

func newTestCoordinator(client completion.Client) (*Coordinator, *store.MemoryStore) {
	mem := store.NewMemoryStore()
	return New(mem, mem, client, chat.DefaultMaxTurns), mem
}

func TestExchangeTurnCreatesConversation(t *testing.T) {
	client := &fakeClient{reply: "Hello!"}
	coord, mem := newTestCoordinator(client)

	result, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
		OwnerID: "u1",
		Text:    "Hi",
		ModelID: "llama3-8b-8192",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ConversationID)
	assert.Equal(t, "Hello!", result.AssistantText)
	assert.Equal(t, "llama3-8b-8192", result.ModelID)

	conv, err := mem.Get(context.Background(), result.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, "Hi", conv.Title)
	assert.Equal(t, "u1", conv.OwnerID)

	turns, err := mem.ListOrdered(context.Background(), result.ConversationID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.Equal(t, "Hi", turns[0].Content)
	assert.Equal(t, chat.RoleAssistant, turns[1].Role)
	assert.Equal(t, "Hello!", turns[1].Content)
}

func TestExchangeTurnRejectsEmptyText(t *testing.T) {
	coord, mem := newTestCoordinator(&fakeClient{})

	_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{OwnerID: "u1", Text: "   "})
	require.ErrorIs(t, err, chat.ErrInvalidInput)

	// Rejected before any mutation.
	convs, _ := mem.ListByOwner(context.Background(), "u1")
	assert.Empty(t, convs)
}

func TestExchangeTurnRejectsUnknownModel(t *testing.T) {
	client := &fakeClient{}
	coord, mem := newTestCoordinator(client)

	_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
		OwnerID: "u1",
		Text:    "Hi",
		ModelID: "gpt-99-ultra",
	})
	require.ErrorIs(t, err, chat.ErrInvalidInput)
	assert.Zero(t, client.calls, "unrecognized model must never be forwarded")

	convs, _ := mem.ListByOwner(context.Background(), "u1")
	assert.Empty(t, convs)
}

func TestExchangeTurnDefaultsModel(t *testing.T) {
	coord, _ := newTestCoordinator(&fakeClient{})

	result, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{OwnerID: "u1", Text: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, completion.DefaultModel, result.ModelID)
}

func TestExchangeTurnForeignConversation(t *testing.T) {
	coord, mem := newTestCoordinator(&fakeClient{})
	conv, _ := mem.Create(context.Background(), "owner", "theirs")

	_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
		OwnerID:        "intruder",
		ConversationID: conv.ID,
		Text:           "Hi",
	})
	require.ErrorIs(t, err, chat.ErrNotFound)

	turns, _ := mem.ListOrdered(context.Background(), conv.ID)
	assert.Empty(t, turns, "no mutation may happen for a non-owner")
}

func TestExchangeTurnUpstreamFailureKeepsUserTurn(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("%w: connect timeout", chat.ErrUpstream)}
	coord, mem := newTestCoordinator(client)

	conv, _ := mem.Create(context.Background(), "u1", "test")

	_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
		OwnerID:        "u1",
		ConversationID: conv.ID,
		Text:           "Hi",
	})
	require.ErrorIs(t, err, chat.ErrUpstream)

	turns, _ := mem.ListOrdered(context.Background(), conv.ID)
	require.Len(t, turns, 1, "user turn persists, no assistant turn")
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.Equal(t, 1, client.calls, "no transparent server-side retry")
}

func TestExchangeTurnWindowExcludesDuplicatedUserTurn(t *testing.T) {
	client := &fakeClient{}
	coord, mem := newTestCoordinator(client)

	conv, _ := mem.Create(context.Background(), "u1", "test")
	mem.Append(context.Background(), conv.ID, chat.RoleUser, "earlier")
	mem.Append(context.Background(), conv.ID, chat.RoleAssistant, "answer")

	_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
		OwnerID:        "u1",
		ConversationID: conv.ID,
		Text:           "now",
	})
	require.NoError(t, err)

	// system + 2 history + new user turn; the new text appears exactly once.
	require.Len(t, client.lastMsgs, 4)
	count := 0
	for _, msg := range client.lastMsgs {
		if msg.Content == "now" {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, "now", client.lastMsgs[len(client.lastMsgs)-1].Content)
}

func TestExchangeTurnSurvivesCallerCancellation(t *testing.T) {
	client := &fakeClient{reply: "done"}
	coord, mem := newTestCoordinator(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller already gone

	result, err := coord.ExchangeTurn(ctx, ExchangeRequest{OwnerID: "u1", Text: "Hi"})
	require.NoError(t, err)

	turns, _ := mem.ListOrdered(context.Background(), result.ConversationID)
	assert.Len(t, turns, 2, "in-flight exchange runs to completion")
}

func TestConcurrentExchangesDoNotInterleave(t *testing.T) {
	client := &fakeClient{delay: 10 * time.Millisecond}
	coord, mem := newTestCoordinator(client)

	conv, _ := mem.Create(context.Background(), "u1", "test")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
				OwnerID:        "u1",
				ConversationID: conv.ID,
				Text:           fmt.Sprintf("msg %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	turns, _ := mem.ListOrdered(context.Background(), conv.ID)
	require.Len(t, turns, 10)
	for i, turn := range turns {
		want := chat.RoleUser
		if i%2 == 1 {
			want = chat.RoleAssistant
		}
		assert.Equalf(t, want, turn.Role, "turn %d out of order", i)
		assert.Equal(t, int64(i+1), turn.Seq)
	}
}

func TestExchangeAfterConcurrentDeleteIsNotFound(t *testing.T) {
	gate := make(chan struct{})
	client := &fakeClient{gate: gate, reply: "late"}
	coord, mem := newTestCoordinator(client)

	conv, _ := mem.Create(context.Background(), "u1", "test")

	// First exchange takes the conversation lock and parks inside the
	// completion call.
	firstDone := make(chan error, 1)
	go func() {
		_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
			OwnerID:        "u1",
			ConversationID: conv.ID,
			Text:           "first",
		})
		firstDone <- err
	}()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.calls == 1
	}, time.Second, time.Millisecond)

	// Second exchange queues behind the lock; the conversation is deleted
	// before it gets a chance to run.
	secondDone := make(chan error, 1)
	go func() {
		_, err := coord.ExchangeTurn(context.Background(), ExchangeRequest{
			OwnerID:        "u1",
			ConversationID: conv.ID,
			Text:           "second",
		})
		secondDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, mem.Delete(context.Background(), conv.ID))
	close(gate)

	<-firstDone
	err := <-secondDone
	require.ErrorIs(t, err, chat.ErrNotFound)
	// The ownership check must reject it before any append, so the
	// failure is the bare sentinel, not a wrapped store error.
	assert.Equal(t, chat.ErrNotFound, err)
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Equal(t, 1, client.calls, "deleted conversation must never reach the backend")
}

func TestRetryRegeneratesLastPair(t *testing.T) {
	client := &fakeClient{reply: "better answer"}
	coord, mem := newTestCoordinator(client)

	conv, _ := mem.Create(context.Background(), "u1", "test")
	mem.Append(context.Background(), conv.ID, chat.RoleUser, "old question")
	target, _ := mem.Append(context.Background(), conv.ID, chat.RoleUser, "question")
	mem.Append(context.Background(), conv.ID, chat.RoleAssistant, "stale answer")

	result, err := coord.Retry(context.Background(), RetryRequest{
		OwnerID:        "u1",
		ConversationID: conv.ID,
		TurnID:         target.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "better answer", result.AssistantText)

	turns, _ := mem.ListOrdered(context.Background(), conv.ID)
	require.Len(t, turns, 3)
	assert.Equal(t, "old question", turns[0].Content)
	assert.Equal(t, "question", turns[1].Content)
	assert.Equal(t, chat.RoleUser, turns[1].Role)
	assert.NotEqual(t, target.ID, turns[1].ID, "retry appends a fresh turn, never mutates history")
	assert.Equal(t, "better answer", turns[2].Content)
}

func TestRetryRejectsNonTerminalTurn(t *testing.T) {
	coord, mem := newTestCoordinator(&fakeClient{})

	conv, _ := mem.Create(context.Background(), "u1", "test")
	early, _ := mem.Append(context.Background(), conv.ID, chat.RoleUser, "first")
	mem.Append(context.Background(), conv.ID, chat.RoleAssistant, "answer")
	mem.Append(context.Background(), conv.ID, chat.RoleUser, "second")
	answer, _ := mem.Append(context.Background(), conv.ID, chat.RoleAssistant, "answer")

	_, err := coord.Retry(context.Background(), RetryRequest{
		OwnerID: "u1", ConversationID: conv.ID, TurnID: early.ID,
	})
	require.ErrorIs(t, err, chat.ErrInvalidState)

	// Assistant turns are not retry targets either.
	_, err = coord.Retry(context.Background(), RetryRequest{
		OwnerID: "u1", ConversationID: conv.ID, TurnID: answer.ID,
	})
	require.ErrorIs(t, err, chat.ErrInvalidState)

	turns, _ := mem.ListOrdered(context.Background(), conv.ID)
	assert.Len(t, turns, 4, "rejected retry must not touch history")
}

func TestRetryForeignConversation(t *testing.T) {
	coord, mem := newTestCoordinator(&fakeClient{})
	conv, _ := mem.Create(context.Background(), "owner", "theirs")
	turn, _ := mem.Append(context.Background(), conv.ID, chat.RoleUser, "q")

	_, err := coord.Retry(context.Background(), RetryRequest{
		OwnerID: "intruder", ConversationID: conv.ID, TurnID: turn.ID,
	})
	require.ErrorIs(t, err, chat.ErrNotFound)
}

func TestRetryAfterUpstreamFailure(t *testing.T) {
	// A dangling user turn left by a failed exchange is retryable.
	client := &fakeClient{reply: "recovered"}
	coord, mem := newTestCoordinator(client)

	conv, _ := mem.Create(context.Background(), "u1", "test")
	dangling, _ := mem.Append(context.Background(), conv.ID, chat.RoleUser, "question")

	_, err := coord.Retry(context.Background(), RetryRequest{
		OwnerID: "u1", ConversationID: conv.ID, TurnID: dangling.ID,
	})
	require.NoError(t, err)

	turns, _ := mem.ListOrdered(context.Background(), conv.ID)
	require.Len(t, turns, 2)
	assert.Equal(t, "question", turns[0].Content)
	assert.Equal(t, "recovered", turns[1].Content)
}

func TestHistoryOwnership(t *testing.T) {
	coord, mem := newTestCoordinator(&fakeClient{})
	conv, _ := mem.Create(context.Background(), "owner", "theirs")
	mem.Append(context.Background(), conv.ID, chat.RoleUser, "secret")

	_, err := coord.History(context.Background(), "intruder", conv.ID)
	require.ErrorIs(t, err, chat.ErrNotFound, "never partial data for a non-owner")

	turns, err := coord.History(context.Background(), "owner", conv.ID)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestRenameValidatesAndTrims(t *testing.T) {
	coord, mem := newTestCoordinator(&fakeClient{})
	conv, _ := mem.Create(context.Background(), "u1", "old")

	require.ErrorIs(t, coord.Rename(context.Background(), "u1", conv.ID, "  "), chat.ErrInvalidInput)
	require.ErrorIs(t, coord.Rename(context.Background(), "u2", conv.ID, "new"), chat.ErrNotFound)

	require.NoError(t, coord.Rename(context.Background(), "u1", conv.ID, "  new title  "))
	got, _ := mem.Get(context.Background(), conv.ID)
	assert.Equal(t, "new title", got.Title)
}

func TestDeleteScopedToOwner(t *testing.T) {
	coord, mem := newTestCoordinator(&fakeClient{})
	conv, _ := mem.Create(context.Background(), "u1", "mine")

	require.ErrorIs(t, coord.Delete(context.Background(), "u2", conv.ID), chat.ErrNotFound)
	require.NoError(t, coord.Delete(context.Background(), "u1", conv.ID))

	_, err := mem.Get(context.Background(), conv.ID)
	require.ErrorIs(t, err, chat.ErrNotFound)
}
