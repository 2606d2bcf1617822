package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
)

type EmailNotifier interface {
	NotifyAndWait(ctx context.Context, msgs ...notify.Message) []notify.Result
}

type SendEmailRequest struct {
	Type notify.EventType `json:"type" validate:"required"`
	To   string           `json:"to" validate:"required,email"`
	Data map[string]any   `json:"data"`
}

type SendEmailResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type NotificationHandler struct {
	notifier EmailNotifier
	validate *validator.Validate
}

func NewNotificationHandler(notifier EmailNotifier) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		validate: validator.New(),
	}
}

func (h *NotificationHandler) RegisterRoutes(router chi.Router, auth func(http.Handler) http.Handler) {
	router.With(auth).Post("/functions/send-email", h.handleSendEmail)
}

// handleSendEmail reports the provider outcome in the body; a failed send is
// still a 200 because the caller treats email as best effort.
func (h *NotificationHandler) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var payload SendEmailRequest
	if err := decodeJSON(r, &payload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode send email body")
		respondWithJSON(w, http.StatusBadRequest, SendEmailResponse{Error: "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		respondWithValidation(w, err)
		return
	}
	if !payload.Type.Valid() {
		respondWithJSON(w, http.StatusBadRequest, SendEmailResponse{Error: "Unknown email type"})
		return
	}

	results := h.notifier.NotifyAndWait(r.Context(), notify.Message{Type: payload.Type, To: payload.To, Data: payload.Data})
	if notify.Sent(results) == 0 {
		respondWithJSON(w, http.StatusOK, SendEmailResponse{Error: "Email could not be sent"})
		return
	}
	respondWithJSON(w, http.StatusOK, SendEmailResponse{Success: true})
}
