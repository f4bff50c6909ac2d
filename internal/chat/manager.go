// Package chat threads conversational turns into persisted, continuable
// sessions. A conversation is created lazily on the first turn and stays
// appendable forever; turns are append-only and ordered by insertion.
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
	"github.com/ANADelta/AlphaClassBot-App2/internal/llm"
	"github.com/ANADelta/AlphaClassBot-App2/internal/model"
)

const (
	titleRuneLimit  = 50
	messageTypeText = "text"
)

type Store interface {
	GetConversation(ctx context.Context, conversationID string) (model.Conversation, error)
	CreateConversation(ctx context.Context, conv model.Conversation) error
	InsertTurn(ctx context.Context, turn model.ConversationTurn) (model.ConversationTurn, error)
	ListTurns(ctx context.Context, conversationID string) ([]model.ConversationTurn, error)
}

type Manager struct {
	store Store
	llm   llm.Generator
	now   func() time.Time
}

func NewManager(store Store, generator llm.Generator) *Manager {
	return &Manager{
		store: store,
		llm:   generator,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Resolve returns the conversation a turn should append to. With no id it
// creates one owned by the principal; with an id it verifies ownership and
// fails with unauthorized on mismatch rather than exposing or forking
// another principal's thread.
func (m *Manager) Resolve(ctx context.Context, p model.Principal, conversationID, firstMessage string) (model.Conversation, error) {
	if conversationID == "" {
		snapshot, _ := json.Marshal(map[string]string{"timestamp": m.now().Format(time.RFC3339)})
		conv := model.Conversation{
			ID:        uuid.NewString(),
			UserID:    p.UserID,
			Title:     deriveTitle(firstMessage),
			Context:   string(snapshot),
			CreatedAt: m.now(),
		}
		if err := m.store.CreateConversation(ctx, conv); err != nil {
			return model.Conversation{}, err
		}
		return conv, nil
	}

	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	if conv.UserID != p.UserID {
		return model.Conversation{}, apperr.New(apperr.KindUnauthorized, "conversation_not_owned")
	}
	return conv, nil
}

func (m *Manager) AppendTurn(ctx context.Context, conversationID, sender, message string) (model.ConversationTurn, error) {
	return m.store.InsertTurn(ctx, model.ConversationTurn{
		ConversationID: conversationID,
		Sender:         sender,
		Message:        message,
		MessageType:    messageTypeText,
		CreatedAt:      m.now(),
	})
}

// Transcript returns the ordered turns of a conversation after the same
// ownership check as Resolve.
func (m *Manager) Transcript(ctx context.Context, p model.Principal, conversationID string) ([]model.ConversationTurn, error) {
	conv, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != p.UserID {
		return nil, apperr.New(apperr.KindUnauthorized, "conversation_not_owned")
	}
	return m.store.ListTurns(ctx, conv.ID)
}

// Converse runs one chat turn: resolve the thread, persist the user's turn,
// call the inference backend, and persist the assistant's turn only after a
// successful response. A failed inference call leaves the user's turn in
// place and never fabricates an assistant turn.
func (m *Manager) Converse(ctx context.Context, p model.Principal, conversationID, message, systemPrompt string) (string, model.Conversation, error) {
	conv, err := m.Resolve(ctx, p, conversationID, message)
	if err != nil {
		return "", model.Conversation{}, err
	}

	if _, err := m.AppendTurn(ctx, conv.ID, model.SenderUser, message); err != nil {
		return "", model.Conversation{}, err
	}

	reply, err := m.llm.Generate(ctx, systemPrompt, message)
	if err != nil {
		return "", model.Conversation{}, err
	}

	if _, err := m.AppendTurn(ctx, conv.ID, model.SenderAssistant, reply); err != nil {
		return "", model.Conversation{}, err
	}
	return reply, conv, nil
}

func deriveTitle(message string) string {
	runes := []rune(message)
	if len(runes) > titleRuneLimit {
		runes = runes[:titleRuneLimit]
	}
	return string(runes) + "..."
}
