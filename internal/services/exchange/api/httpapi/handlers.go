// Package httpapi exposes the exchange lifecycle engine over HTTP JSON.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillswaphq/skillswap/internal/services/exchange/domain"
)

// Handler serves the exchange HTTP API.
type Handler struct {
	service *domain.Service
}

// NewHandler creates a handler over the lifecycle engine.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the authenticated API surface. The health endpoint is mounted
// separately by the server so probes do not need a token.
func (h *Handler) Routes(auth *Authenticator) chi.Router {
	r := chi.NewRouter()
	r.Use(auth.Middleware)

	r.Route("/invitations", func(r chi.Router) {
		r.Post("/", h.createInvitation)
		r.Get("/", h.listInvitations)
		r.Route("/{invitationID}", func(r chi.Router) {
			r.Get("/", h.getInvitation)
			r.Post("/respond", h.respondInvitation)
			r.Post("/resume", h.resumeInvitation)
		})
	})
	r.Get("/threads", h.listThreads)
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.listNotifications)
		r.Get("/unread_count", h.unreadCount)
		r.Post("/{notificationID}/read", h.markNotificationRead)
	})
	return r
}

type invitationJSON struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Skill       string `json:"skill"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type outcomeJSON struct {
	Invitation      invitationJSON `json:"invitation"`
	ThreadID        string         `json:"thread_id,omitempty"`
	NotificationID  string         `json:"notification_id,omitempty"`
	AlreadyResolved bool           `json:"already_resolved"`
}

type partialFailureJSON struct {
	Status       string `json:"status"`
	InvitationID string `json:"invitation_id"`
	Stage        string `json:"stage"`
	ThreadID     string `json:"thread_id,omitempty"`
	Message      string `json:"message"`
}

type threadJSON struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	Skill        string   `json:"skill"`
	Status       string   `json:"status"`
	CreatedAt    string   `json:"created_at"`
}

type notificationJSON struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"created_at"`
	ReadAt    string          `json:"read_at,omitempty"`
}

func invitationToJSON(invitation domain.Invitation) invitationJSON {
	return invitationJSON{
		ID:          invitation.ID,
		SenderID:    invitation.SenderID,
		RecipientID: invitation.RecipientID,
		Skill:       invitation.Skill,
		Message:     invitation.Message,
		Status:      domain.StatusLabel(invitation.Status),
		CreatedAt:   invitation.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   invitation.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func outcomeToJSON(outcome domain.Outcome) outcomeJSON {
	return outcomeJSON{
		Invitation:      invitationToJSON(outcome.Invitation),
		ThreadID:        outcome.ThreadID,
		NotificationID:  outcome.NotificationID,
		AlreadyResolved: outcome.AlreadyResolved,
	}
}

func threadToJSON(thread domain.Thread) threadJSON {
	return threadJSON{
		ID:           thread.ID,
		Participants: []string{thread.UserLo, thread.UserHi},
		Skill:        thread.Skill,
		Status:       string(thread.Status),
		CreatedAt:    thread.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func notificationToJSON(notification domain.Notification) notificationJSON {
	out := notificationJSON{
		ID:        notification.ID,
		Kind:      string(notification.Kind),
		Payload:   json.RawMessage(notification.PayloadJSON),
		CreatedAt: notification.CreatedAt.UTC().Format(time.RFC3339),
	}
	if notification.ReadAt != nil {
		out.ReadAt = notification.ReadAt.UTC().Format(time.RFC3339)
	}
	return out
}

type createInvitationRequest struct {
	RecipientID string `json:"recipient_id"`
	Skill       string `json:"skill"`
	Message     string `json:"message"`
}

func (h *Handler) createInvitation(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	var req createInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	invitation, err := h.service.CreateInvitation(r.Context(), domain.CreateInvitationInput{
		SenderID:    userID,
		RecipientID: req.RecipientID,
		Skill:       req.Skill,
		Message:     req.Message,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, invitationToJSON(invitation))
}

func (h *Handler) getInvitation(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	invitation, err := h.service.GetInvitation(r.Context(), chi.URLParam(r, "invitationID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if invitation.SenderID != userID && invitation.RecipientID != userID {
		// Non-participants cannot learn whether the invitation exists.
		writeError(w, http.StatusNotFound, "not_found", "invitation not found")
		return
	}
	writeJSON(w, http.StatusOK, invitationToJSON(invitation))
}

func (h *Handler) listInvitations(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}

	var invitations []domain.Invitation
	switch role := r.URL.Query().Get("role"); role {
	case "", "received":
		invitations, err = h.service.ListReceivedInvitations(r.Context(), userID)
	case "sent":
		invitations, err = h.service.ListSentInvitations(r.Context(), userID)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", "role must be sent or received")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]invitationJSON, 0, len(invitations))
	for _, invitation := range invitations {
		out = append(out, invitationToJSON(invitation))
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

type respondRequest struct {
	Decision string `json:"decision"`
}

func (h *Handler) respondInvitation(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	outcome, err := h.service.Respond(r.Context(), domain.RespondInput{
		InvitationID: chi.URLParam(r, "invitationID"),
		Decision:     domain.Decision(req.Decision),
		ActingUserID: userID,
	})
	h.writeOutcome(w, outcome, err)
}

func (h *Handler) resumeInvitation(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	outcome, err := h.service.ResumeResolved(r.Context(), chi.URLParam(r, "invitationID"), userID)
	h.writeOutcome(w, outcome, err)
}

// writeOutcome renders a respond/resume result. A partial failure is reported
// as 202: the transition is durable and the caller retries via resume.
func (h *Handler) writeOutcome(w http.ResponseWriter, outcome domain.Outcome, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, outcomeToJSON(outcome))
		return
	}
	var partial *domain.PartialFailureError
	if errors.As(err, &partial) {
		writeJSON(w, http.StatusAccepted, partialFailureJSON{
			Status:       "partially_completed",
			InvitationID: partial.InvitationID,
			Stage:        string(partial.Stage),
			ThreadID:     partial.ThreadID,
			Message:      "invitation resolved; retry via resume to complete side effects",
		})
		return
	}
	writeDomainError(w, err)
}

func (h *Handler) listThreads(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	threads, err := h.service.ListThreads(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]threadJSON, 0, len(threads))
	for _, thread := range threads {
		out = append(out, threadToJSON(thread))
	}
	writeJSON(w, http.StatusOK, map[string]any{"threads": out})
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, parseErr := strconv.Atoi(raw)
		if parseErr != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "page_size must be a positive integer")
			return
		}
		pageSize = parsed
	}

	page, err := h.service.ListInbox(r.Context(), domain.ListInboxInput{
		RecipientUserID: userID,
		PageSize:        pageSize,
		PageToken:       r.URL.Query().Get("page_token"),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]notificationJSON, 0, len(page.Notifications))
	for _, notification := range page.Notifications {
		out = append(out, notificationToJSON(notification))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications":   out,
		"next_page_token": page.NextPageToken,
	})
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	count, err := h.service.CountUnread(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread_count": count})
}

func (h *Handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
		return
	}
	notification, err := h.service.MarkRead(r.Context(), userID, chi.URLParam(r, "notificationID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notificationToJSON(notification))
}
