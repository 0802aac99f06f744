package chat

// Domain models for the conversation subsystem (conversations, turns).

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// titleLimit is the maximum number of characters kept when deriving a
// conversation title from its first user turn.
const titleLimit = 50

// Conversation is an ordered, owned collection of turns.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"-"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Turn is one persisted message authored by the user or the assistant.
// Turns are immutable once written; Seq is the store-assigned monotonic
// sequence within the conversation and is the authoritative ordering key.
type Turn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"-"`
	Seq            int64     `json:"-"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PromptMessage is one entry of an outbound context window. It is never
// persisted; the system message in particular exists only on the wire.
type PromptMessage struct {
	Role    string
	Content string
}

// DeriveTitle produces a conversation title from the first user turn,
// truncated to 50 characters with an ellipsis marker if longer.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= titleLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:titleLimit]) + "..."
}
