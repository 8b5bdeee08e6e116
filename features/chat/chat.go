// Package chat runs grounded conversations: each user turn is answered by
// retrieving matching chunks, prompting the generation model with them, and
// streaming the reply back token by token. The assistant message is persisted
// only after the stream completes cleanly, so an interrupted turn leaves no
// half answer behind.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kora/backend/internal/document"
	"kora/backend/internal/provider"
	"kora/backend/internal/ratelimit"
	"kora/backend/internal/settings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type ConversationRepo interface {
	Create(ctx context.Context, title string) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	List(ctx context.Context) ([]Conversation, error)
	Delete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

type MessageRepo interface {
	Save(ctx context.Context, msg *Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]Message, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]document.Match, error)
}

type SettingsReader interface {
	Get(ctx context.Context, purpose string) (*settings.ModelConfig, error)
}

type KeyReader interface {
	Get(ctx context.Context, provider string) (string, error)
}

// Generator is the provider capability one chat turn needs.
type Generator interface {
	StreamChat(ctx context.Context, params provider.GenerationParams, messages []provider.Message, onDelta func(string) error) (string, error)
}

type Service struct {
	convs     ConversationRepo
	msgs      MessageRepo
	retriever Retriever
	settings  SettingsReader
	keys      KeyReader
	limiter   ratelimit.Waiter
	newClient func(kind provider.Kind, baseURL, apiKey string) Generator
}

func NewService(convs ConversationRepo, msgs MessageRepo, retriever Retriever, set SettingsReader, keys KeyReader, limiter ratelimit.Waiter) *Service {
	return &Service{
		convs:     convs,
		msgs:      msgs,
		retriever: retriever,
		settings:  set,
		keys:      keys,
		limiter:   limiter,
		newClient: func(kind provider.Kind, baseURL, apiKey string) Generator {
			return provider.NewClient(kind, baseURL, apiKey)
		},
	}
}

func (s *Service) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	if title == "" {
		title = "New conversation"
	}
	return s.convs.Create(ctx, title)
}

func (s *Service) ListConversations(ctx context.Context) ([]Conversation, error) {
	return s.convs.List(ctx)
}

type ConversationDetail struct {
	Conversation
	Messages []Message `json:"messages"`
}

func (s *Service) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	conv, err := s.convs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.msgs.ListByConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []Message{}
	}
	return &ConversationDetail{Conversation: *conv, Messages: messages}, nil
}

func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.convs.Get(ctx, id); err != nil {
		return err
	}
	return s.convs.Delete(ctx, id)
}

func (s *Service) CountConversations(ctx context.Context) (int, error) {
	return s.convs.Count(ctx)
}

// Stream answers one user turn. The user message is persisted up front; the
// assistant message only after the full reply has streamed without error.
func (s *Service) Stream(ctx context.Context, conversationID, content string, onDelta func(string) error) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("message content is required")
	}

	if _, err := s.convs.Get(ctx, conversationID); err != nil {
		return nil, err
	}

	userMsg := &Message{ConversationID: conversationID, Role: RoleUser, Content: content}
	if err := s.msgs.Save(ctx, userMsg); err != nil {
		return nil, err
	}

	history, err := s.msgs.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	matches, err := s.retriever.Retrieve(ctx, content)
	if err != nil {
		return nil, err
	}

	cfg, err := s.settings.Get(ctx, settings.PurposeGeneration)
	if err != nil {
		return nil, fmt.Errorf("no generation model configured: %w", err)
	}
	kind, err := provider.KindOf(cfg.Provider)
	if err != nil {
		return nil, err
	}
	apiKey, err := s.keys.Get(ctx, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("no api key for provider %s: %w", cfg.Provider, err)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, cfg.Provider, "generate"); err != nil {
			return nil, err
		}
	}

	prompt := buildPrompt(matches)
	outbound := make([]provider.Message, 0, len(history)+1)
	outbound = append(outbound, provider.Message{Role: RoleSystem, Content: prompt})
	for _, m := range history {
		outbound = append(outbound, provider.Message{Role: m.Role, Content: m.Content})
	}

	params := provider.GenerationParams{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}

	full, err := s.newClient(kind, cfg.BaseURL, apiKey).StreamChat(ctx, params, outbound, onDelta)
	if err != nil {
		return nil, err
	}

	assistant := &Message{ConversationID: conversationID, Role: RoleAssistant, Content: full}
	if err := s.msgs.Save(ctx, assistant); err != nil {
		return nil, err
	}
	if err := s.convs.Touch(ctx, conversationID); err != nil {
		return nil, err
	}
	return assistant, nil
}

// buildPrompt grounds the model in the retrieved chunks, most similar first.
func buildPrompt(matches []document.Match) string {
	var b strings.Builder
	b.WriteString("You are a knowledge assistant. Answer using only the context below. ")
	b.WriteString("If the context does not contain the answer, say you don't know.\n\n")

	if len(matches) == 0 {
		b.WriteString("No relevant context was found for this question.")
		return b.String()
	}

	b.WriteString("Context:\n\n")
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Content
	}
	b.WriteString(strings.Join(parts, "\n\n"))
	return b.String()
}
