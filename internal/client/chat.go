package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/kjstillabower/weather-location-sync/internal/models"
)

// ChatGateway talks to the weather chat assistant.
type ChatGateway interface {
	Ask(ctx context.Context, req ChatRequest) (models.ChatMessage, error)
	History(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Question  string `json:"question"`
	City      string `json:"city"`
	SessionID string `json:"sessionId"`
}

type rawChatMessage struct {
	ID        string `json:"id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
}

func (m rawChatMessage) toModel() models.ChatMessage {
	msg := models.ChatMessage{
		ID:        m.ID,
		Question:  m.Question,
		Answer:    m.Answer,
		SessionID: m.SessionID,
	}
	if ts, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
		msg.Timestamp = ts
	}
	return msg
}

// Ask posts a question and returns the assistant's reply.
func (c *Client) Ask(ctx context.Context, req ChatRequest) (models.ChatMessage, error) {
	var resp struct {
		Data rawChatMessage `json:"data"`
	}
	if _, err := c.doJSON(ctx, "chat", http.MethodPost, "/chat", nil, req, &resp); err != nil {
		return models.ChatMessage{}, err
	}
	msg := resp.Data.toModel()
	if msg.SessionID == "" {
		msg.SessionID = req.SessionID
	}
	if msg.Question == "" {
		msg.Question = req.Question
	}
	return msg, nil
}

// History returns the messages of a chat session, oldest first as served.
func (c *Client) History(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	params := url.Values{}
	params.Set("sessionId", sessionID)

	var resp struct {
		Data []rawChatMessage `json:"data"`
	}
	if _, err := c.doJSON(ctx, "chat_history", http.MethodGet, "/chat/history", params, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.ChatMessage, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, m.toModel())
	}
	return out, nil
}
