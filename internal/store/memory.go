package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verassium/internal/chat"
)

// MemoryStore is an in-memory MessageStore and ConversationRegistry with
// the same ordering and cascade semantics as the Postgres store. Used by
// tests and by `serve --dev`.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]chat.Conversation
	turns         map[string][]chat.Turn // conversation ID -> turns ordered by seq
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]chat.Conversation),
		turns:         make(map[string][]chat.Turn),
	}
}

func (s *MemoryStore) Append(ctx context.Context, conversationID string, role chat.Role, content string) (chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return chat.Turn{}, chat.ErrNotFound
	}

	existing := s.turns[conversationID]
	var seq int64 = 1
	if len(existing) > 0 {
		seq = existing[len(existing)-1].Seq + 1
	}

	turn := chat.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Seq:            seq,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	s.turns[conversationID] = append(existing, turn)

	return turn, nil
}

func (s *MemoryStore) ListOrdered(ctx context.Context, conversationID string) ([]chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]chat.Turn, len(s.turns[conversationID]))
	copy(turns, s.turns[conversationID])
	return turns, nil
}

func (s *MemoryStore) DeleteFrom(ctx context.Context, conversationID string, fromSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.turns[conversationID]
	kept := existing[:0]
	for _, turn := range existing {
		if turn.Seq < fromSeq {
			kept = append(kept, turn)
		}
	}
	s.turns[conversationID] = kept
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, ownerID, title string) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	conv := chat.Conversation{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *MemoryStore) Get(ctx context.Context, conversationID string) (chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return conv, nil
}

func (s *MemoryStore) ExistsOwnedBy(ctx context.Context, conversationID, ownerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	return ok && conv.OwnerID == ownerID, nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]chat.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var convs []chat.Conversation
	for _, conv := range s.conversations {
		if conv.OwnerID == ownerID {
			convs = append(convs, conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

func (s *MemoryStore) Rename(ctx context.Context, conversationID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.ErrNotFound
	}
	conv.Title = title
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = conv
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return chat.ErrNotFound
	}
	delete(s.conversations, conversationID)
	delete(s.turns, conversationID)
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return chat.ErrNotFound
	}
	conv.UpdatedAt = time.Now().UTC()
	s.conversations[conversationID] = conv
	return nil
}
