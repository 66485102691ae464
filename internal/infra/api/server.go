// File: internal/infra/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"avatar-therapy-chat/internal/config"
	"avatar-therapy-chat/internal/domain"
	"avatar-therapy-chat/internal/domain/model"
	"avatar-therapy-chat/internal/usecase"
)

// Server is the client-facing HTTP surface consumed by the mobile app.
type Server struct {
	cfg      *config.Config
	chat     usecase.ChatUseCase
	sessions usecase.SessionUseCase
	ledger   usecase.LedgerUseCase
	pricing  usecase.PricingUseCase
	auth     *AuthManager
	log      *zerolog.Logger
	srv      *http.Server
}

func NewServer(cfg *config.Config, chat usecase.ChatUseCase, sessions usecase.SessionUseCase, ledger usecase.LedgerUseCase, pricing usecase.PricingUseCase, auth *AuthManager, logger *zerolog.Logger) *Server {
	return &Server{cfg: cfg, chat: chat, sessions: sessions, ledger: ledger, pricing: pricing, auth: auth, log: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, Recover(s.log), RequestLog(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Authenticated)
			r.Post("/chat/message", s.handleSendMessage)
			r.Get("/chat/history", s.handleHistory)
			r.Get("/avatars", s.handleListAvatars)
			r.Post("/sessions/{id}/end", s.handleEndSession)
			r.Get("/sessions/active", s.handleActiveSession)
			r.Get("/credits/balance", s.handleBalance)
			r.Get("/credits/estimate", s.handleEstimate)
			r.Get("/credits/history", s.handleTransactions)
		})
		r.Group(func(r chi.Router) {
			r.Use(AdminOnly(s.cfg.API.AdminSecret))
			r.Post("/credits/grant", s.handleGrant)
		})
	})
	return r
}

func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.API.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.API.Timeout,
		WriteTimeout: s.cfg.API.Timeout,
	}
	s.log.Info().Int("port", s.cfg.API.Port).Msg("http api listening")
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// ---- handlers ----

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	AvatarID       string `json:"avatar_id"`
	Content        string `json:"content"`
	HasImages      bool   `json:"has_images"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	res, err := s.chat.SendMessage(r.Context(), usecase.SendMessageInput{
		UserID:         UserID(r.Context()),
		ConversationID: req.ConversationID,
		AvatarID:       req.AvatarID,
		Content:        req.Content,
		HasImages:      req.HasImages,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	convID := r.URL.Query().Get("conversation_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := s.chat.History(r.Context(), convID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleListAvatars(w http.ResponseWriter, r *http.Request) {
	avatars, err := s.chat.ListAvatars(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatars": avatars})
}

type endSessionRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	var req endSessionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	ended, err := s.chat.EndSession(r.Context(), chi.URLParam(r, "id"), req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ended": ended})
}

func (s *Server) handleActiveSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// Returns null when no session is open; opening one is the send path's job.
	sess, err := s.sessions.ActiveSession(r.Context(), UserID(r.Context()), q.Get("conversation_id"), q.Get("avatar_id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"session": nil})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sess.Usage(time.Now())})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.GetBalance(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current_balance":      b.CurrentBalance,
		"subscription_tier_id": b.SubscriptionTierID,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	length, _ := strconv.Atoi(q.Get("length"))
	contextSize, _ := strconv.Atoi(q.Get("context"))
	hasImages := q.Get("images") == "true"
	writeJSON(w, http.StatusOK, s.pricing.Estimate(length, hasImages, contextSize))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := s.ledger.History(r.Context(), UserID(r.Context()), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type grantRequest struct {
	UserID      string `json:"user_id"`
	Amount      int    `json:"amount"`
	Type        string `json:"type"`
	SourceType  string `json:"source_type"`
	Description string `json:"description"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	rec, err := s.ledger.Grant(r.Context(), req.UserID, req.Amount,
		model.TransactionType(req.Type), req.SourceType, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction_id": rec.ID})
}

// ---- wire helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSendInFlight):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrLedgerUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
