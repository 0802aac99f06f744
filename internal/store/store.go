// Package store provides durable persistence for conversations and their
// turns. Two implementations exist: Postgres for production and an
// in-memory store for tests and dev mode. Both assign a per-conversation
// monotonic sequence number at append time; callers sort on that sequence,
// never on wall-clock timestamps.
package store

import (
	"context"

	"github.com/verassium/internal/chat"
)

// MessageStore is the durable ordered log of turns per conversation.
type MessageStore interface {
	// Append writes one turn and assigns it the next sequence number in
	// its conversation. The coordinator serializes appends per
	// conversation, so sequence assignment never races.
	Append(ctx context.Context, conversationID string, role chat.Role, content string) (chat.Turn, error)

	// ListOrdered returns all turns of a conversation ordered by
	// sequence number.
	ListOrdered(ctx context.Context, conversationID string) ([]chat.Turn, error)

	// DeleteFrom removes every turn with Seq >= fromSeq. Used by retry
	// to discard the stale suffix so stored history always matches the
	// displayed one.
	DeleteFrom(ctx context.Context, conversationID string, fromSeq int64) error
}

// ConversationRegistry maps conversation identifiers to their owner and
// metadata.
type ConversationRegistry interface {
	Create(ctx context.Context, ownerID, title string) (chat.Conversation, error)
	Get(ctx context.Context, conversationID string) (chat.Conversation, error)
	ExistsOwnedBy(ctx context.Context, conversationID, ownerID string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]chat.Conversation, error)
	Rename(ctx context.Context, conversationID, title string) error

	// Delete removes a conversation and cascades to all of its turns;
	// no orphan turns survive.
	Delete(ctx context.Context, conversationID string) error

	// Touch bumps the conversation's updated-at timestamp. Called by the
	// coordinator on every appended turn.
	Touch(ctx context.Context, conversationID string) error
}
