package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verassium/internal/chat"
)

// PostgresStore implements MessageStore and ConversationRegistry over a
// single *sql.DB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append inserts a turn with the next sequence number in its
// conversation. The MAX(seq)+1 subquery is safe because the session
// coordinator holds the conversation lock across the insert.
func (s *PostgresStore) Append(ctx context.Context, conversationID string, role chat.Role, content string) (chat.Turn, error) {
	turn := chat.Turn{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}

	query := `
		INSERT INTO turns (id, conversation_id, seq, role, content, created_at)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, NOW()
		FROM turns WHERE conversation_id = $2
		RETURNING seq, created_at
	`

	err := s.db.QueryRowContext(ctx, query, turn.ID, conversationID, string(role), content).
		Scan(&turn.Seq, &turn.CreatedAt)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("failed to append turn: %w", err)
	}

	return turn, nil
}

// ListOrdered returns a conversation's turns ordered by sequence number.
func (s *PostgresStore) ListOrdered(ctx context.Context, conversationID string) ([]chat.Turn, error) {
	query := `
		SELECT id, conversation_id, seq, role, content, created_at
		FROM turns
		WHERE conversation_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var turns []chat.Turn
	for rows.Next() {
		var turn chat.Turn
		var role string
		if err := rows.Scan(&turn.ID, &turn.ConversationID, &turn.Seq, &role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = chat.Role(role)
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read turns: %w", err)
	}

	return turns, nil
}

// DeleteFrom removes the turn at fromSeq and everything after it.
func (s *PostgresStore) DeleteFrom(ctx context.Context, conversationID string, fromSeq int64) error {
	query := `DELETE FROM turns WHERE conversation_id = $1 AND seq >= $2`

	if _, err := s.db.ExecContext(ctx, query, conversationID, fromSeq); err != nil {
		return fmt.Errorf("failed to delete turn suffix: %w", err)
	}

	return nil
}

// Create inserts a new conversation for the given owner.
func (s *PostgresStore) Create(ctx context.Context, ownerID, title string) (chat.Conversation, error) {
	conv := chat.Conversation{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Title:   title,
	}

	query := `
		INSERT INTO conversations (id, owner_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := s.db.QueryRowContext(ctx, query, conv.ID, ownerID, title).
		Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// Get returns a conversation by identifier.
func (s *PostgresStore) Get(ctx context.Context, conversationID string) (chat.Conversation, error) {
	query := `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`

	var conv chat.Conversation
	err := s.db.QueryRowContext(ctx, query, conversationID).
		Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return chat.Conversation{}, chat.ErrNotFound
	}
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to get conversation: %w", err)
	}

	return conv, nil
}

// ExistsOwnedBy reports whether the conversation exists and belongs to
// the given owner. Absence and foreign ownership are indistinguishable.
func (s *PostgresStore) ExistsOwnedBy(ctx context.Context, conversationID, ownerID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1 AND owner_id = $2)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, conversationID, ownerID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check conversation ownership: %w", err)
	}

	return exists, nil
}

// ListByOwner returns the owner's conversations, most recently updated
// first.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]chat.Conversation, error) {
	query := `
		SELECT id, owner_id, title, created_at, updated_at
		FROM conversations
		WHERE owner_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []chat.Conversation
	for rows.Next() {
		var conv chat.Conversation
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}

	return convs, nil
}

// Rename updates a conversation's title and bumps updated_at.
func (s *PostgresStore) Rename(ctx context.Context, conversationID, title string) error {
	query := `UPDATE conversations SET title = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, conversationID, title)
	if err != nil {
		return fmt.Errorf("failed to rename conversation: %w", err)
	}

	return requireAffected(result)
}

// Delete removes a conversation; the turns foreign key cascades.
func (s *PostgresStore) Delete(ctx context.Context, conversationID string) error {
	query := `DELETE FROM conversations WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, conversationID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return requireAffected(result)
}

// Touch bumps a conversation's updated_at timestamp.
func (s *PostgresStore) Touch(ctx context.Context, conversationID string) error {
	query := `UPDATE conversations SET updated_at = $2 WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, conversationID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return requireAffected(result)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return chat.ErrNotFound
	}
	return nil
}
