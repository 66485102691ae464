// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/domain/ports/adapter"
	"avatar-therapy-chat/internal/domain/ports/repository"
	"avatar-therapy-chat/internal/infra/logging"
	"avatar-therapy-chat/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

// RateLimiter gates how often one user may send.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Locker serializes sends per user so one client cannot interleave turns.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type SendMessageInput struct {
	UserID         string
	ConversationID string
	AvatarID       string
	Content        string
	HasImages      bool
}

type SendMessageResult struct {
	Reply   string             `json:"reply"`
	Usage   model.SessionUsage `json:"usage"`
	Preview model.CostEstimate `json:"preview"`
}

// ChatUseCase composes the session manager, preview pricing, the storage
// envelope (via the message repository) and the AI collaborator into one
// user turn.
type ChatUseCase interface {
	SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error)
	EndSession(ctx context.Context, sessionID string, force bool) (bool, error)
	History(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	ListAvatars(ctx context.Context) ([]*model.Avatar, error)
}

type ChatConfig struct {
	HistoryWindow int
	RateLimit     int
	RateWindow    time.Duration
}

type chatUC struct {
	sessions SessionUseCase
	pricing  PricingUseCase
	messages repository.MessageRepository
	avatars  repository.AvatarRepository
	ai       adapter.AIServiceAdapter
	limiter  RateLimiter
	locker   Locker
	cfg      ChatConfig
	devMode  bool
	log      *zerolog.Logger
}

func NewChatUseCase(
	sessions SessionUseCase,
	pricing PricingUseCase,
	messages repository.MessageRepository,
	avatars repository.AvatarRepository,
	ai adapter.AIServiceAdapter,
	limiter RateLimiter,
	locker Locker,
	cfg ChatConfig,
	devMode bool,
	logger *zerolog.Logger,
) *chatUC {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 15
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	return &chatUC{
		sessions: sessions,
		pricing:  pricing,
		messages: messages,
		avatars:  avatars,
		ai:       ai,
		limiter:  limiter,
		locker:   locker,
		cfg:      cfg,
		devMode:  devMode,
		log:      logger,
	}
}

func (c *chatUC) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error) {
	in.Content = strings.TrimSpace(in.Content)
	if in.UserID == "" || in.ConversationID == "" || in.AvatarID == "" || in.Content == "" {
		return nil, domain.ErrInvalidArgument
	}
	l := logging.With(ctx, c.log)
	defer logging.TraceDuration(l, "ChatUC.SendMessage")()

	if c.limiter != nil {
		ok, err := c.limiter.Allow(ctx, "rate_limit:"+in.UserID+":send", c.cfg.RateLimit, c.cfg.RateWindow)
		if err != nil {
			l.Warn().Err(err).Msg("rate limiter unavailable, allowing send")
		} else if !ok {
			metrics.IncRateLimitBlock("send")
			return nil, domain.ErrRateLimited
		}
	}
	if c.locker != nil {
		token, err := c.locker.TryLock(ctx, "send_lock:"+in.UserID, 30*time.Second)
		if err != nil {
			return nil, err
		}
		defer func() { _ = c.locker.Unlock(ctx, "send_lock:"+in.UserID, token) }()
	}

	avatar, err := c.avatars.FindByID(ctx, nil, in.AvatarID)
	if err != nil {
		return nil, fmt.Errorf("resolve avatar: %w", err)
	}

	history, err := c.messages.History(ctx, nil, in.ConversationID, c.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	// Advisory preview only; the committed charge is the session debit below.
	preview := c.pricing.Estimate(len(in.Content), in.HasImages, model.ContextSize(history))

	session, usage, err := c.sessions.ProcessMessage(ctx, in.UserID, in.ConversationID, in.AvatarID)
	if err != nil {
		return nil, err
	}

	// The user message is durable before the AI collaborator is attempted.
	userMsg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SessionID:      session.ID,
		Role:           "user",
		Content:        in.Content,
		HasImages:      in.HasImages,
		CreatedAt:      time.Now(),
	}
	if err := c.messages.Save(ctx, nil, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	prompt := c.buildPrompt(avatar, history, in.Content)
	reply, err := c.ai.Chat(ctx, avatar.Model, prompt)
	if err != nil {
		// Session state and the stored user message survive the failure.
		l.Error().Err(err).Str("session_id", session.ID).Msg("ai call failed")
		return &SendMessageResult{Usage: usage, Preview: preview}, fmt.Errorf("ai response: %w", err)
	}

	assistantMsg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SessionID:      session.ID,
		Role:           "assistant",
		Content:        reply,
		CreatedAt:      time.Now(),
	}
	if err := c.messages.Save(ctx, nil, assistantMsg); err != nil {
		l.Error().Err(err).Str("session_id", session.ID).Msg("persist assistant message failed")
	}

	l.Debug().Str("session_id", session.ID).
		Int("preview_credits", preview.TotalCredits).
		Str("content", logging.Redact(in.Content, c.devMode)).
		Msg("turn complete")

	return &SendMessageResult{Reply: reply, Usage: usage, Preview: preview}, nil
}

func (c *chatUC) EndSession(ctx context.Context, sessionID string, force bool) (bool, error) {
	return c.sessions.EndSession(ctx, sessionID, force)
}

func (c *chatUC) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if conversationID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return c.messages.History(ctx, nil, conversationID, limit)
}

func (c *chatUC) ListAvatars(ctx context.Context) ([]*model.Avatar, error) {
	return c.avatars.ListActive(ctx, nil)
}

// buildPrompt frames the decoded history with the persona's system prompt
// and appends the new user turn.
func (c *chatUC) buildPrompt(avatar *model.Avatar, history []model.Message, content string) []adapter.Message {
	out := make([]adapter.Message, 0, len(history)+2)
	if avatar.SystemPrompt != "" {
		out = append(out, adapter.Message{Role: "system", Content: avatar.SystemPrompt})
	}
	for _, m := range history {
		out = append(out, adapter.Message{Role: m.Role, Content: m.Content})
	}
	out = append(out, adapter.Message{Role: "user", Content: content})
	return out
}
