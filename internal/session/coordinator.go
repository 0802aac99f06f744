// Package session orchestrates turn exchanges: the unit of work that
// resolves a conversation, persists the user turn, calls the completion
// backend, and persists the assistant turn. It owns the failure and
// retry contract and the per-conversation serialization that keeps turn
// order intact under concurrent callers.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/verassium/internal/chat"
	"github.com/verassium/internal/completion"
	"github.com/verassium/internal/store"
)

// Coordinator serves turn exchanges over the message store, the
// conversation registry, and the completion client.
type Coordinator struct {
	turns    store.MessageStore
	registry store.ConversationRegistry
	client   completion.Client
	maxTurns int
	locks    *lockTable
}

// New creates a coordinator. maxTurns bounds the context window sent to
// the completion backend; a negative value falls back to the default.
func New(turns store.MessageStore, registry store.ConversationRegistry, client completion.Client, maxTurns int) *Coordinator {
	if maxTurns < 0 {
		maxTurns = chat.DefaultMaxTurns
	}
	return &Coordinator{
		turns:    turns,
		registry: registry,
		client:   client,
		maxTurns: maxTurns,
		locks:    newLockTable(),
	}
}

// ExchangeRequest carries one user turn into the coordinator.
type ExchangeRequest struct {
	OwnerID        string
	ConversationID string // empty means create a new conversation
	Text           string
	ModelID        string // empty means the default model
}

// ExchangeResult is the successful outcome of one exchange.
type ExchangeResult struct {
	ConversationID string
	AssistantText  string
	ModelID        string
}

// RetryRequest re-runs the exchange for a prior user turn.
type RetryRequest struct {
	OwnerID        string
	ConversationID string
	TurnID         string // the user turn whose answer is being regenerated
	ModelID        string
}

// ExchangeTurn performs one full exchange. The user turn is durably
// appended before the remote call; on upstream failure it stays
// persisted, no assistant turn is written, and chat.ErrUpstream is
// returned. No server-side retry of the remote call ever happens.
func (c *Coordinator) ExchangeTurn(ctx context.Context, req ExchangeRequest) (ExchangeResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return ExchangeResult{}, fmt.Errorf("%w: message text is empty", chat.ErrInvalidInput)
	}

	modelID, err := resolveModel(req.ModelID)
	if err != nil {
		return ExchangeResult{}, err
	}

	// A disconnecting caller must not abandon a half-written exchange,
	// so the persistence and the remote call run on a detached context.
	ctx = context.WithoutCancel(ctx)

	conversationID := req.ConversationID
	if conversationID == "" {
		conv, err := c.registry.Create(ctx, req.OwnerID, chat.DeriveTitle(text))
		if err != nil {
			return ExchangeResult{}, fmt.Errorf("failed to create conversation: %w", err)
		}
		conversationID = conv.ID
		log.Debug().
			Str("conversation_id", conversationID).
			Str("title", conv.Title).
			Msg("Created conversation for first turn")
	}

	release := c.locks.acquire(conversationID)
	defer release()

	// Checked under the lock so a concurrent Delete cannot slip in
	// between the ownership check and the first append.
	if err := c.requireOwned(ctx, conversationID, req.OwnerID); err != nil {
		return ExchangeResult{}, err
	}

	return c.exchangeLocked(ctx, conversationID, text, modelID)
}

// exchangeLocked runs steps append-user / build-window / complete /
// append-assistant. The caller holds the conversation lock.
func (c *Coordinator) exchangeLocked(ctx context.Context, conversationID, text, modelID string) (ExchangeResult, error) {
	history, err := c.turns.ListOrdered(ctx, conversationID)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("failed to load history: %w", err)
	}

	userTurn, err := c.turns.Append(ctx, conversationID, chat.RoleUser, text)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("failed to append user turn: %w", err)
	}
	if err := c.registry.Touch(ctx, conversationID); err != nil {
		return ExchangeResult{}, fmt.Errorf("failed to touch conversation: %w", err)
	}

	window := chat.BuildWindow(history, text, modelID, c.maxTurns)

	assistantText, err := c.client.Complete(ctx, modelID, window)
	if err != nil {
		// The user turn stays persisted; a later retry reuses it
		// instead of duplicating it.
		log.Warn().Err(err).
			Str("conversation_id", conversationID).
			Str("model", modelID).
			Str("user_turn_id", userTurn.ID).
			Msg("Exchange failed upstream, user turn retained")
		return ExchangeResult{}, err
	}

	if _, err := c.turns.Append(ctx, conversationID, chat.RoleAssistant, assistantText); err != nil {
		return ExchangeResult{}, fmt.Errorf("failed to append assistant turn: %w", err)
	}
	if err := c.registry.Touch(ctx, conversationID); err != nil {
		return ExchangeResult{}, fmt.Errorf("failed to touch conversation: %w", err)
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("model", modelID).
		Int("window_size", len(window)).
		Msg("Exchange completed")

	return ExchangeResult{
		ConversationID: conversationID,
		AssistantText:  assistantText,
		ModelID:        modelID,
	}, nil
}

// Retry regenerates the answer for a prior user turn. Only the terminal
// user turn is eligible: nothing may follow it except its own assistant
// answer. The stale suffix (the target turn and everything after it) is
// hard-deleted so the stored history matches the displayed one, then the
// exchange re-runs with the target's original text, appending a fresh
// user and assistant turn.
func (c *Coordinator) Retry(ctx context.Context, req RetryRequest) (ExchangeResult, error) {
	modelID, err := resolveModel(req.ModelID)
	if err != nil {
		return ExchangeResult{}, err
	}
	if req.ConversationID == "" || req.TurnID == "" {
		return ExchangeResult{}, fmt.Errorf("%w: conversation and turn identifiers are required", chat.ErrInvalidInput)
	}

	ctx = context.WithoutCancel(ctx)

	release := c.locks.acquire(req.ConversationID)
	defer release()

	if err := c.requireOwned(ctx, req.ConversationID, req.OwnerID); err != nil {
		return ExchangeResult{}, err
	}

	history, err := c.turns.ListOrdered(ctx, req.ConversationID)
	if err != nil {
		return ExchangeResult{}, fmt.Errorf("failed to load history: %w", err)
	}

	target, err := retryTarget(history, req.TurnID)
	if err != nil {
		return ExchangeResult{}, err
	}

	if err := c.turns.DeleteFrom(ctx, req.ConversationID, target.Seq); err != nil {
		return ExchangeResult{}, fmt.Errorf("failed to discard stale turns: %w", err)
	}

	log.Debug().
		Str("conversation_id", req.ConversationID).
		Str("target_turn_id", target.ID).
		Int64("from_seq", target.Seq).
		Msg("Discarded stale suffix for retry")

	return c.exchangeLocked(ctx, req.ConversationID, target.Content, modelID)
}

// retryTarget locates the retried turn and enforces eligibility.
func retryTarget(history []chat.Turn, turnID string) (chat.Turn, error) {
	idx := -1
	for i, turn := range history {
		if turn.ID == turnID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return chat.Turn{}, fmt.Errorf("%w: turn does not exist", chat.ErrInvalidState)
	}

	target := history[idx]
	if target.Role != chat.RoleUser {
		return chat.Turn{}, fmt.Errorf("%w: only user turns can be retried", chat.ErrInvalidState)
	}
	for _, turn := range history[idx+1:] {
		if turn.Role == chat.RoleUser {
			return chat.Turn{}, fmt.Errorf("%w: a newer user turn exists", chat.ErrInvalidState)
		}
	}

	return target, nil
}

// History returns the ordered turns of an owned conversation.
func (c *Coordinator) History(ctx context.Context, ownerID, conversationID string) ([]chat.Turn, error) {
	if err := c.requireOwned(ctx, conversationID, ownerID); err != nil {
		return nil, err
	}
	return c.turns.ListOrdered(ctx, conversationID)
}

// ListConversations returns the owner's conversations, most recently
// updated first.
func (c *Coordinator) ListConversations(ctx context.Context, ownerID string) ([]chat.Conversation, error) {
	return c.registry.ListByOwner(ctx, ownerID)
}

// Rename changes an owned conversation's title.
func (c *Coordinator) Rename(ctx context.Context, ownerID, conversationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title is empty", chat.ErrInvalidInput)
	}
	if err := c.requireOwned(ctx, conversationID, ownerID); err != nil {
		return err
	}
	return c.registry.Rename(ctx, conversationID, title)
}

// Delete removes an owned conversation and all of its turns.
func (c *Coordinator) Delete(ctx context.Context, ownerID, conversationID string) error {
	release := c.locks.acquire(conversationID)
	defer release()
	if err := c.requireOwned(ctx, conversationID, ownerID); err != nil {
		return err
	}
	return c.registry.Delete(ctx, conversationID)
}

// requireOwned fails with a uniform ErrNotFound whether the conversation
// is missing or belongs to another owner.
func (c *Coordinator) requireOwned(ctx context.Context, conversationID, ownerID string) error {
	owned, err := c.registry.ExistsOwnedBy(ctx, conversationID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to check conversation ownership: %w", err)
	}
	if !owned {
		return chat.ErrNotFound
	}
	return nil
}

func resolveModel(modelID string) (string, error) {
	if modelID == "" {
		return completion.DefaultModel, nil
	}
	if !completion.IsKnownModel(modelID) {
		return "", fmt.Errorf("%w: unknown model %q", chat.ErrInvalidInput, modelID)
	}
	return modelID, nil
}
