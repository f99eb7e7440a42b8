package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-location-sync/internal/apperr"
	"github.com/kjstillabower/weather-location-sync/internal/client"
	"github.com/kjstillabower/weather-location-sync/internal/location"
	"github.com/kjstillabower/weather-location-sync/internal/models"
	"github.com/kjstillabower/weather-location-sync/internal/observability"
)

const maxQuestionRunes = 500

// ChatService relays questions to the chat assistant with the current city as context.
type ChatService struct {
	chat      client.ChatGateway
	locations *location.Store
	newID     func() string
	logger    *zap.Logger
}

// NewChatService wires a ChatService. Session ids are random UUIDs.
func NewChatService(chat client.ChatGateway, locations *location.Store, logger *zap.Logger) *ChatService {
	return &ChatService{
		chat:      chat,
		locations: locations,
		newID:     func() string { return uuid.New().String() },
		logger:    observability.OrNop(logger),
	}
}

// NewSession returns a fresh session id.
func (s *ChatService) NewSession() string {
	return s.newID()
}

// Ask sends question within sessionID. The city is the current location's
// name, or empty when none is set.
func (s *ChatService) Ask(ctx context.Context, sessionID, question string) (models.ChatMessage, error) {
	question = strings.TrimSpace(question)
	switch {
	case strings.TrimSpace(sessionID) == "":
		return models.ChatMessage{}, fmt.Errorf("%w: session id is required", apperr.ErrInvalidInput)
	case question == "":
		return models.ChatMessage{}, fmt.Errorf("%w: question is required", apperr.ErrInvalidInput)
	case utf8.RuneCountInString(question) > maxQuestionRunes:
		return models.ChatMessage{}, fmt.Errorf("%w: question is longer than %d characters", apperr.ErrInvalidInput, maxQuestionRunes)
	}

	city := ""
	if cur, ok, err := s.locations.Current(ctx); err != nil {
		observability.LoggerFrom(ctx, s.logger).Warn("reading current location for chat failed", zap.Error(err))
	} else if ok {
		city = cur.DisplayName
	}

	msg, err := s.chat.Ask(ctx, client.ChatRequest{Question: question, City: city, SessionID: sessionID})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("chat: %w", err)
	}
	return msg, nil
}

// History returns the messages exchanged in sessionID.
func (s *ChatService) History(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session id is required", apperr.ErrInvalidInput)
	}
	msgs, err := s.chat.History(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("chat history: %w", err)
	}
	return msgs, nil
}
