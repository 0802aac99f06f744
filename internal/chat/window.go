package chat

import "fmt"

// DefaultMaxTurns is the number of prior turns carried into the outbound
// context window when the server config does not override it.
const DefaultMaxTurns = 5

const systemPromptTemplate = "You are Verassium AI, a helpful and intelligent assistant powered by %s. " +
	"Be conversational, helpful, and provide clear, accurate responses. " +
	"Adapt your communication style based on the model you're using - if you're a more " +
	"powerful model, you can handle more complex reasoning tasks."

// SystemPrompt renders the non-persisted system instruction for a model.
// Kept separate from the transport call so request shaping is testable
// without network access.
func SystemPrompt(modelID string) string {
	return fmt.Sprintf(systemPromptTemplate, modelID)
}

// BuildWindow assembles the bounded context window for one exchange: the
// system instruction, the most recent maxTurns turns of history in
// chronological order, and the new user text last.
//
// history must not already contain the new user turn; the caller passes
// the persisted history as it was before the exchange. maxTurns <= 0
// disables context entirely and yields [system, user]. Pure function.
func BuildWindow(history []Turn, userText, modelID string, maxTurns int) []PromptMessage {
	if maxTurns < 0 {
		maxTurns = 0
	}
	window := make([]PromptMessage, 0, maxTurns+2)
	window = append(window, PromptMessage{Role: "system", Content: SystemPrompt(modelID)})

	if maxTurns > 0 {
		start := len(history) - maxTurns
		if start < 0 {
			start = 0
		}
		for _, turn := range history[start:] {
			window = append(window, PromptMessage{Role: string(turn.Role), Content: turn.Content})
		}
	}

	return append(window, PromptMessage{Role: string(RoleUser), Content: userText})
}
