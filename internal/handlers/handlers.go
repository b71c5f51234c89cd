package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/auth"
	"github.com/rkrmr33/bukber/internal/event"
	"github.com/rkrmr33/bukber/internal/models"
	"github.com/rkrmr33/bukber/internal/parser"
)

// AccessCodeHeader carries the participant's access code on self-service writes
const AccessCodeHeader = "X-Access-Code"

const maxBodyBytes = 64 << 10

// Handler manages HTTP requests
type Handler struct {
	events        *event.Manager
	admin         *auth.Admin
	loginLimiter  *auth.Limiter
	verifyLimiter *auth.Limiter
	hub           *Hub
}

// NewHandler creates a new HTTP handler
func NewHandler(events *event.Manager, admin *auth.Admin, loginLimiter, verifyLimiter *auth.Limiter) *Handler {
	return &Handler{
		events:        events,
		admin:         admin,
		loginLimiter:  loginLimiter,
		verifyLimiter: verifyLimiter,
		hub:           NewHub(events),
	}
}

// Hub returns the websocket hub
func (h *Handler) Hub() *Hub {
	return h.hub
}

// Router wires every route
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()

	// Participant routes
	r.HandleFunc("/api/participants", h.ListParticipantsHandler).Methods("GET")
	r.HandleFunc("/api/participants", h.RegisterHandler).Methods("POST")
	r.HandleFunc("/api/participants/{id}", h.GetParticipantHandler).Methods("GET")
	r.HandleFunc("/api/participants/{id}", h.UpdateParticipantHandler).Methods("PATCH")
	r.HandleFunc("/api/participants/{id}/verify", h.VerifyHandler).Methods("POST")
	r.HandleFunc("/api/config", h.GetConfigHandler).Methods("GET")

	// Admin routes
	r.HandleFunc("/admin/login", h.AdminLoginHandler).Methods("POST")
	r.Handle("/admin/participants", h.requireAdmin(http.HandlerFunc(h.AdminParticipantsHandler))).Methods("GET")
	r.Handle("/api/participants/{id}", h.requireAdmin(http.HandlerFunc(h.DeleteParticipantHandler))).Methods("DELETE")
	r.Handle("/api/config", h.requireAdmin(http.HandlerFunc(h.UpdateConfigHandler))).Methods("PATCH")

	// WebSocket route
	r.HandleFunc("/ws", h.hub.ServeWS)

	r.HandleFunc("/healthz", h.HealthHandler).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, apperrors.NotFound("route not found"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{
			Error:   "method-not-allowed",
			Message: "Method not allowed",
		})
	})

	return r
}

// HealthHandler reports liveness
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListParticipantsHandler returns the public participant snapshot, newest first
func (h *Handler) ListParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.events.ListParticipants(r.Context())
	if err != nil {
		slog.Error("ListParticipants failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PublicParticipants(list))
}

// RegisterHandler creates a participant and returns its one-time ticket
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Register request received", "remote_addr", r.RemoteAddr)

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Register failed to decode request body", "error", err)
		writeError(w, err)
		return
	}

	reg, err := h.events.Register(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			slog.Info("Register name already taken", "name", req.Name)
		} else {
			slog.Warn("Register failed", "error", err, "name", req.Name)
		}
		writeError(w, err)
		return
	}

	slog.Info("Register participant created", "participant_id", reg.ID, "name", reg.Name)
	h.hub.PublishParticipants(context.WithoutCancel(r.Context()))

	writeJSON(w, http.StatusCreated, reg)
}

// GetParticipantHandler returns one participant without its access code
func (h *Handler) GetParticipantHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	p, err := h.events.GetParticipant(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Public())
}

// VerifyHandler checks an access code and returns the full participant
func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Info("Verify request received", "participant_id", id, "remote_addr", r.RemoteAddr)

	var req struct {
		AccessCode string `json:"accessCode"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.verify(r, id, req.AccessCode)
	if err != nil {
		slog.Warn("Verify failed", "error", err, "participant_id", id)
		writeError(w, err)
		return
	}

	slog.Info("Verify succeeded", "participant_id", id)
	writeJSON(w, http.StatusOK, p)
}

// UpdateParticipantHandler records either a quiz answer or a message for the
// participant whose access code is in the X-Access-Code header.
func (h *Handler) UpdateParticipantHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.ParticipantUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.QuizAnswer == nil && req.Message == nil {
		writeError(w, apperrors.Validation(apperrors.ReasonInvalidRequest, "quizAnswer or message is required"))
		return
	}
	// one write per request, so a failed message can't follow a locked-in answer
	if req.QuizAnswer != nil && req.Message != nil {
		writeError(w, apperrors.Validation(apperrors.ReasonInvalidRequest, "send quizAnswer or message, not both"))
		return
	}

	if _, err := h.verify(r, id, r.Header.Get(AccessCodeHeader)); err != nil {
		slog.Warn("UpdateParticipant unauthorized", "error", err, "participant_id", id)
		writeError(w, err)
		return
	}

	ctx := r.Context()
	if req.QuizAnswer != nil {
		if err := h.events.SubmitQuizAnswer(ctx, id, *req.QuizAnswer); err != nil {
			slog.Warn("UpdateParticipant failed to submit answer", "error", err, "participant_id", id)
			writeError(w, err)
			return
		}
		slog.Info("UpdateParticipant answer submitted", "participant_id", id, "answer", *req.QuizAnswer)
	}
	if req.Message != nil {
		if err := h.events.SaveMessage(ctx, id, *req.Message); err != nil {
			slog.Warn("UpdateParticipant failed to save message", "error", err, "participant_id", id)
			writeError(w, err)
			return
		}
		slog.Info("UpdateParticipant message saved", "participant_id", id)
	}

	h.hub.PublishParticipants(context.WithoutCancel(ctx))

	p, err := h.events.GetParticipant(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetConfigHandler returns the event configuration
func (h *Handler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.events.GetConfig(r.Context())
	if err != nil {
		slog.Error("GetConfig failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateConfigHandler merges a phase and/or quiz change into the config
func (h *Handler) UpdateConfigHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("UpdateConfig request received", "remote_addr", r.RemoteAddr)

	var req models.ConfigUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	change := event.ConfigChange{
		Status:          req.EventStatus,
		Quiz:            req.QuizData,
		ExpectedVersion: req.ExpectedVersion,
	}
	if strings.TrimSpace(req.QuizMarkdown) != "" {
		if req.QuizData != nil {
			writeError(w, apperrors.Validation(apperrors.ReasonInvalidRequest, "send quizData or quizMarkdown, not both"))
			return
		}
		quiz, err := parser.ParseQuizMarkdown(req.QuizMarkdown)
		if err != nil {
			slog.Warn("UpdateConfig failed to parse markdown", "error", err)
			writeError(w, err)
			return
		}
		change.Quiz = &quiz
	}

	cfg, err := h.events.UpdateConfig(r.Context(), change)
	if err != nil {
		slog.Warn("UpdateConfig failed", "error", err)
		writeError(w, err)
		return
	}

	slog.Info("UpdateConfig config updated", "event_status", cfg.EventStatus, "version", cfg.Version, "has_quiz", cfg.QuizData != nil)

	ctx := context.WithoutCancel(r.Context())
	h.hub.PublishConfig(ctx)
	if change.Quiz != nil {
		// A new question clears answers
		h.hub.PublishParticipants(ctx)
	}

	writeJSON(w, http.StatusOK, cfg)
}

// DeleteParticipantHandler removes a participant
func (h *Handler) DeleteParticipantHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	slog.Info("DeleteParticipant request received", "participant_id", id)

	if err := h.events.DeleteParticipant(r.Context(), id); err != nil {
		slog.Warn("DeleteParticipant failed", "error", err, "participant_id", id)
		writeError(w, err)
		return
	}

	slog.Info("DeleteParticipant participant deleted", "participant_id", id)
	h.hub.PublishParticipants(context.WithoutCancel(r.Context()))

	w.WriteHeader(http.StatusNoContent)
}

// AdminParticipantsHandler returns every participant including access codes
func (h *Handler) AdminParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.events.ListParticipants(r.Context())
	if err != nil {
		slog.Error("AdminParticipants failed", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// AdminLoginHandler exchanges the admin secret for a token
func (h *Handler) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	slog.Info("AdminLogin request received", "remote_addr", ip)

	if !h.loginLimiter.Allow(ip) {
		slog.Warn("AdminLogin rate limited", "remote_addr", ip)
		writeError(w, apperrors.RateLimited("too many login attempts, try again later"))
		return
	}

	var req struct {
		Secret string `json:"secret"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	tok, err := h.admin.Login(req.Secret)
	if err != nil {
		slog.Warn("AdminLogin failed", "error", err, "remote_addr", ip)
		writeError(w, err)
		return
	}

	slog.Info("AdminLogin succeeded", "remote_addr", ip, "expires_at", tok.ExpiresAt)
	writeJSON(w, http.StatusOK, tok)
}

func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.admin.Authenticate(auth.BearerToken(r.Header.Get("Authorization"))); err != nil {
			slog.Warn("Admin request rejected", "error", err, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verify checks the code for id. Only wrong codes count against the limit,
// keyed by participant and caller address, so one client guessing codes
// cannot lock the owner out from their own device.
func (h *Handler) verify(r *http.Request, id, code string) (models.Participant, error) {
	key := id + "|" + clientIP(r)
	if h.verifyLimiter.Blocked(key) {
		return models.Participant{}, apperrors.RateLimited("too many attempts, try again later")
	}
	p, err := h.events.Verify(r.Context(), id, code)
	if errors.Is(err, apperrors.ErrAuth) {
		h.verifyLimiter.Penalize(key)
	}
	return p, err
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Validation(apperrors.ReasonInvalidRequest, "request body is empty")
		}
		return apperrors.Validation(apperrors.ReasonInvalidRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	resp := models.ErrorResponse{Error: string(apperrors.KindInternal), Message: "Internal server error"}
	if appErr, ok := apperrors.As(err); ok {
		resp.Error = appErr.Code()
		resp.Message = appErr.Error()
		resp.ParticipantID = appErr.Metadata[apperrors.MetaParticipantID]
	}
	writeJSON(w, status, resp)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
