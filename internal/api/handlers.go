// Package api exposes the conversation subsystem over HTTP. Handlers are
// thin: they translate JSON requests into coordinator calls and the
// coordinator's failure taxonomy into status codes.
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/verassium/internal/api/auth"
	"github.com/verassium/internal/chat"
	"github.com/verassium/internal/completion"
	"github.com/verassium/internal/session"
)

// ExchangeRequest is the wire shape of a turn-exchange call.
type ExchangeRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId,omitempty"`
	Model   string `json:"model,omitempty"`
}

// RetryRequest is the wire shape of a retry call.
type RetryRequest struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Model     string `json:"model,omitempty"`
}

// ExchangeResponse is returned by both exchange and retry.
type ExchangeResponse struct {
	Response string `json:"response"`
	ChatID   string `json:"chatId"`
	Model    string `json:"model"`
}

// RenameRequest carries a new conversation title.
type RenameRequest struct {
	Title string `json:"title"`
}

func (s *Server) exchange(c echo.Context) error {
	var req ExchangeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	result, err := s.coordinator.ExchangeTurn(c.Request().Context(), session.ExchangeRequest{
		OwnerID:        auth.MustOwnerID(c),
		ConversationID: req.ChatID,
		Text:           req.Message,
		ModelID:        req.Model,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, ExchangeResponse{
		Response: result.AssistantText,
		ChatID:   result.ConversationID,
		Model:    result.ModelID,
	})
}

func (s *Server) retry(c echo.Context) error {
	var req RetryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	result, err := s.coordinator.Retry(c.Request().Context(), session.RetryRequest{
		OwnerID:        auth.MustOwnerID(c),
		ConversationID: req.ChatID,
		TurnID:         req.MessageID,
		ModelID:        req.Model,
	})
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, ExchangeResponse{
		Response: result.AssistantText,
		ChatID:   result.ConversationID,
		Model:    result.ModelID,
	})
}

func (s *Server) listModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"models":  completion.Models(),
		"default": completion.DefaultModel,
	})
}

func (s *Server) listChats(c echo.Context) error {
	chats, err := s.coordinator.ListConversations(c.Request().Context(), auth.MustOwnerID(c))
	if err != nil {
		return httpError(err)
	}
	if chats == nil {
		chats = []chat.Conversation{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"chats": chats})
}

func (s *Server) listMessages(c echo.Context) error {
	turns, err := s.coordinator.History(c.Request().Context(), auth.MustOwnerID(c), c.Param("chatId"))
	if err != nil {
		return httpError(err)
	}
	if turns == nil {
		turns = []chat.Turn{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": turns})
}

func (s *Server) renameChat(c echo.Context) error {
	var req RenameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	err := s.coordinator.Rename(c.Request().Context(), auth.MustOwnerID(c), c.Param("chatId"), req.Title)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Chat renamed successfully"})
}

func (s *Server) deleteChat(c echo.Context) error {
	err := s.coordinator.Delete(c.Request().Context(), auth.MustOwnerID(c), c.Param("chatId"))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Chat deleted successfully"})
}

// httpError maps the coordinator's failure taxonomy onto status codes.
// NotFound keeps a single message for every sub-condition so handler
// responses never reveal whether a foreign conversation exists.
func httpError(err error) error {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Chat not found")
	case errors.Is(err, chat.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, chat.ErrUpstream):
		return echo.NewHTTPError(http.StatusBadGateway, "Failed to get AI response")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
	}
}
