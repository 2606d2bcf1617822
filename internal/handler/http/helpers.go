package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/checkout"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/reconcile"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondWithText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	if _, err := w.Write([]byte(body)); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func mapErrorToStatusCode(err error) int {
	var validationErr *checkout.ValidationError
	var partialErr *checkout.PartialOrderCreationError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, checkout.ErrPaymentMethodUnavailable):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrUnknownCheckout), errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, checkout.ErrNothingToPay),
		errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, order.ErrPaymentNotCompleted):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrAmountMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkout.ErrNoOrdersCreated):
		return http.StatusServiceUnavailable
	case errors.As(err, &partialErr):
		return http.StatusMultiStatus
	case errors.Is(err, reconcile.ErrSignatureMismatch),
		errors.Is(err, reconcile.ErrAmountMismatch),
		errors.Is(err, reconcile.ErrMalformedWebhook):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns a message that is safe to show to the caller. Only
// sentinel messages pass through; anything else is replaced by fallback.
func clientMessage(err error, fallback string) string {
	for _, known := range []error{
		checkout.ErrGatewayUnavailable,
		checkout.ErrPaymentMethodUnavailable,
		checkout.ErrUnknownCheckout,
		checkout.ErrNothingToPay,
		checkout.ErrAmountMismatch,
		checkout.ErrNoOrdersCreated,
		order.ErrOrderNotFound,
		order.ErrInvalidStatusTransition,
		order.ErrPaymentNotCompleted,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return fallback
}

func formatValidationErrors(errs validator.ValidationErrors) []string {
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			details = append(details, fmt.Sprintf("%s is required", field))
		case "email":
			details = append(details, fmt.Sprintf("%s must be a valid email address", field))
		case "url":
			details = append(details, fmt.Sprintf("%s must be a valid URL", field))
		case "oneof":
			details = append(details, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			details = append(details, fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()))
		}
	}
	return details
}

// respondWithValidation writes a 400 for struct-level DTO failures.
func respondWithValidation(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   "Validation failed",
			Details: formatValidationErrors(validationErrors),
		})
		return
	}
	log.Error().Err(err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
}
