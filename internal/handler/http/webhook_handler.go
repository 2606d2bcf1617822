package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/payment"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/reconcile"
)

// maxWebhookBody caps webhook payloads; gateway notifications are a few KB.
const maxWebhookBody = 64 << 10

type WebhookReconciler interface {
	HandleFormWebhook(ctx context.Context, values url.Values) (*reconcile.Report, error)
	HandleHostedEvent(ctx context.Context, n *payment.HostedNotification) (*reconcile.Report, error)
}

type HostedWebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
	Error    string `json:"error,omitempty"`
}

type WebhookHandler struct {
	reconciler WebhookReconciler
}

func NewWebhookHandler(reconciler WebhookReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// RegisterRoutes mounts the form gateway endpoint publicly (it is signed) and
// the hosted gateway endpoint behind auth.
func (h *WebhookHandler) RegisterRoutes(router chi.Router, auth func(http.Handler) http.Handler) {
	router.Post("/webhooks/form-redirect", h.handleFormRedirect)
	router.With(auth).Post("/webhooks/hosted", h.handleHosted)
}

func (h *WebhookHandler) handleFormRedirect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		log.Warn().Err(err).Msg("Failed to parse form webhook body")
		respondWithText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	_, err := h.reconciler.HandleFormWebhook(r.Context(), r.PostForm)
	switch {
	case err == nil:
		respondWithText(w, http.StatusOK, "OK")
	case errors.Is(err, reconcile.ErrUnknownCorrelation):
		// Already alerted; a retry would not find the orders either.
		respondWithText(w, http.StatusOK, "OK")
	case mapErrorToStatusCode(err) == http.StatusBadRequest:
		respondWithText(w, http.StatusBadRequest, "Bad Request")
	default:
		log.Error().Err(err).Msg("Failed to apply form webhook")
		respondWithText(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (h *WebhookHandler) handleHosted(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read hosted webhook body")
		respondWithJSON(w, http.StatusBadRequest, HostedWebhookResponse{Error: "Invalid request payload"})
		return
	}

	notification, err := payment.ParseHostedEvent(body)
	if err != nil {
		log.Warn().Err(err).Str("gateway", payment.GatewayHosted).Msg("Rejected malformed hosted webhook")
		respondWithJSON(w, http.StatusBadRequest, HostedWebhookResponse{Error: "Malformed event"})
		return
	}

	report, err := h.reconciler.HandleHostedEvent(r.Context(), notification)
	switch {
	case err == nil:
		respondWithJSON(w, http.StatusOK, HostedWebhookResponse{Received: true, Outcome: string(report.Outcome)})
	case errors.Is(err, reconcile.ErrUnknownCorrelation):
		respondWithJSON(w, http.StatusOK, HostedWebhookResponse{Received: true, Outcome: string(reconcile.OutcomeUnknown)})
	case mapErrorToStatusCode(err) == http.StatusBadRequest:
		respondWithJSON(w, http.StatusBadRequest, HostedWebhookResponse{Error: "Event rejected"})
	default:
		log.Error().Err(err).Stringer("correlation_id", notification.CorrelationID).Msg("Failed to apply hosted webhook")
		respondWithJSON(w, http.StatusInternalServerError, HostedWebhookResponse{Error: "Failed to apply event"})
	}
}
