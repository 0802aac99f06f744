// Package view models the browser-side conversation view as an explicit
// state machine: a Model value and a pure Reduce function from (model,
// event) to (model, effects). The UI renders the model and executes the
// effects; none of the transition logic depends on a rendering framework,
// so the optimistic-update and reconciliation rules are testable on their
// own.
package view

import (
	"fmt"

	"github.com/verassium/internal/chat"
)

// Phase is the view's position in the submit lifecycle.
type Phase string

const (
	// Idle: no exchange in flight, input enabled.
	Idle Phase = "idle"
	// AwaitingResponse: one exchange in flight, submit disabled, the
	// user turn already rendered optimistically.
	AwaitingResponse Phase = "awaiting_response"
	// ErrorPhase: the last exchange failed; the optimistic turn has been
	// rolled back and the input restored.
	ErrorPhase Phase = "error"
)

// DisplayTurn is one rendered message. Optimistic entries carry a
// locally generated temporary identifier until the server confirms the
// exchange.
type DisplayTurn struct {
	ID         string
	Role       chat.Role
	Content    string
	Optimistic bool
}

// Model is the complete view state for one conversation pane.
type Model struct {
	Phase          Phase
	ConversationID string
	ModelID        string
	Turns          []DisplayTurn
	Input          string
	LastError      string

	// pendingSeq numbers locally generated temporary identifiers.
	pendingSeq int
}

// NewModel returns an idle view for the given (possibly empty)
// conversation.
func NewModel(conversationID, modelID string) Model {
	return Model{
		Phase:          Idle,
		ConversationID: conversationID,
		ModelID:        modelID,
	}
}

// Events.

type InputChanged struct{ Text string }

type ModelSelected struct{ ModelID string }

// SubmitRequested asks to send the current input as a new user turn.
type SubmitRequested struct{}

// RetryRequested regenerates the answer of the turn at Index, which must
// be the terminal user turn.
type RetryRequested struct{ Index int }

// ExchangeSucceeded reports the coordinator's result for the in-flight
// exchange.
type ExchangeSucceeded struct {
	ConversationID string
	AssistantText  string
}

// ExchangeFailed reports a failed exchange.
type ExchangeFailed struct{ Reason string }

// HistoryLoaded replaces the view with the server's persisted truth.
type HistoryLoaded struct{ Turns []chat.Turn }

// ConversationCleared resets the pane for a fresh conversation.
type ConversationCleared struct{}

// Event is one input to Reduce.
type Event interface{ isEvent() }

func (InputChanged) isEvent()        {}
func (ModelSelected) isEvent()       {}
func (SubmitRequested) isEvent()     {}
func (RetryRequested) isEvent()      {}
func (ExchangeSucceeded) isEvent()   {}
func (ExchangeFailed) isEvent()      {}
func (HistoryLoaded) isEvent()       {}
func (ConversationCleared) isEvent() {}

// Effects. The shell performs these and feeds the outcome back in as
// ExchangeSucceeded / ExchangeFailed events.

// SendExchange posts a turn exchange to the server.
type SendExchange struct {
	ConversationID string
	Text           string
	ModelID        string
}

// SendRetry posts a retry for a prior user turn.
type SendRetry struct {
	ConversationID string
	TurnID         string
	ModelID        string
}

// Effect is one side effect requested by Reduce.
type Effect interface{ isEffect() }

func (SendExchange) isEffect() {}
func (SendRetry) isEffect()    {}

// Reduce applies one event to the model. Pure: it never performs I/O and
// returns the requested effects explicitly.
func Reduce(m Model, event Event) (Model, []Effect) {
	switch ev := event.(type) {
	case InputChanged:
		m.Input = ev.Text
		return m, nil

	case ModelSelected:
		m.ModelID = ev.ModelID
		return m, nil

	case SubmitRequested:
		return reduceSubmit(m)

	case RetryRequested:
		return reduceRetry(m, ev.Index)

	case ExchangeSucceeded:
		return reduceSuccess(m, ev)

	case ExchangeFailed:
		return reduceFailure(m, ev)

	case HistoryLoaded:
		m.Phase = Idle
		m.LastError = ""
		m.Turns = make([]DisplayTurn, 0, len(ev.Turns))
		for _, turn := range ev.Turns {
			m.Turns = append(m.Turns, DisplayTurn{ID: turn.ID, Role: turn.Role, Content: turn.Content})
		}
		return m, nil

	case ConversationCleared:
		return NewModel("", m.ModelID), nil
	}

	return m, nil
}

func reduceSubmit(m Model) (Model, []Effect) {
	// Submit is disabled while an exchange is in flight; a stray event
	// must not start a second one.
	if m.Phase == AwaitingResponse || m.Input == "" {
		return m, nil
	}

	text := m.Input
	m.pendingSeq++
	m.Turns = append(cloneTurns(m.Turns), DisplayTurn{
		ID:         fmt.Sprintf("pending-%d", m.pendingSeq),
		Role:       chat.RoleUser,
		Content:    text,
		Optimistic: true,
	})
	m.Input = ""
	m.LastError = ""
	m.Phase = AwaitingResponse

	return m, []Effect{SendExchange{
		ConversationID: m.ConversationID,
		Text:           text,
		ModelID:        m.ModelID,
	}}
}

func reduceRetry(m Model, index int) (Model, []Effect) {
	if m.Phase == AwaitingResponse {
		return m, nil
	}
	if index < 0 || index >= len(m.Turns) {
		return m, nil
	}
	target := m.Turns[index]
	if target.Role != chat.RoleUser || !isTerminalUserTurn(m.Turns, index) {
		return m, nil
	}

	// Truncate the view to just before the retried turn; the server
	// discards the same suffix, so both converge on identical history.
	m.Turns = cloneTurns(m.Turns[:index])
	m.pendingSeq++
	m.Turns = append(m.Turns, DisplayTurn{
		ID:         fmt.Sprintf("pending-%d", m.pendingSeq),
		Role:       chat.RoleUser,
		Content:    target.Content,
		Optimistic: true,
	})
	m.LastError = ""
	m.Phase = AwaitingResponse

	return m, []Effect{SendRetry{
		ConversationID: m.ConversationID,
		TurnID:         target.ID,
		ModelID:        m.ModelID,
	}}
}

func reduceSuccess(m Model, ev ExchangeSucceeded) (Model, []Effect) {
	if m.Phase != AwaitingResponse {
		return m, nil
	}

	// The optimistic user turn is kept, not replaced: its content is
	// identical to what the server persisted.
	m.Turns = cloneTurns(m.Turns)
	if n := len(m.Turns); n > 0 && m.Turns[n-1].Optimistic {
		m.Turns[n-1].Optimistic = false
	}
	// The server response carries no turn ID, so the assistant entry
	// gets a local identifier like every other turn. The next history
	// load replaces it with the persisted one.
	m.pendingSeq++
	m.Turns = append(m.Turns, DisplayTurn{
		ID:      fmt.Sprintf("pending-%d", m.pendingSeq),
		Role:    chat.RoleAssistant,
		Content: ev.AssistantText,
	})
	m.ConversationID = ev.ConversationID
	m.Phase = Idle

	return m, nil
}

func reduceFailure(m Model, ev ExchangeFailed) (Model, []Effect) {
	if m.Phase != AwaitingResponse {
		return m, nil
	}

	// Roll back the optimistic turn and restore the input so the user
	// can resubmit; the view must not claim an exchange that never
	// produced an assistant reply.
	if n := len(m.Turns); n > 0 && m.Turns[n-1].Optimistic {
		m.Input = m.Turns[n-1].Content
		m.Turns = cloneTurns(m.Turns[:n-1])
	}
	m.LastError = ev.Reason
	m.Phase = ErrorPhase

	return m, nil
}

// cloneTurns copies the turn slice so a reduced model never shares a
// backing array with its predecessor.
func cloneTurns(turns []DisplayTurn) []DisplayTurn {
	return append([]DisplayTurn(nil), turns...)
}

// isTerminalUserTurn reports whether no user turn follows index.
func isTerminalUserTurn(turns []DisplayTurn, index int) bool {
	for _, turn := range turns[index+1:] {
		if turn.Role == chat.RoleUser {
			return false
		}
	}
	return true
}
