package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/skillswaphq/skillswap/internal/services/exchange/domain"
	"github.com/skillswaphq/skillswap/internal/services/exchange/storage"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeDomainError maps lifecycle engine errors onto HTTP statuses. Partial
// failures are handled by the respond/resume handlers before reaching here,
// since they carry a successful transition alongside the error.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvitationNotFound):
		writeError(w, http.StatusNotFound, "not_found", "invitation not found")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, domain.ErrNotRecipient):
		writeError(w, http.StatusForbidden, "forbidden", "only the invitation recipient may perform this action")
	case errors.Is(err, domain.ErrNotResolved):
		writeError(w, http.StatusConflict, "not_resolved", "invitation has not been resolved yet")
	case errors.Is(err, domain.ErrInvitationIDRequired),
		errors.Is(err, domain.ErrActorRequired),
		errors.Is(err, domain.ErrInvalidDecision),
		errors.Is(err, domain.ErrSenderRequired),
		errors.Is(err, domain.ErrRecipientRequired),
		errors.Is(err, domain.ErrSkillRequired),
		errors.Is(err, domain.ErrSelfInvitation):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		log.Printf("exchange api error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
