package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

type UpdateOrderStatusRequest struct {
	Status order.OrderStatus `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled"`
}

type OrderHandler struct {
	service  order.Service
	validate *validator.Validate
}

func NewOrderHandler(service order.Service) *OrderHandler {
	return &OrderHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts order reads on router. Status changes are a
// fulfillment operation and need the service role.
func (h *OrderHandler) RegisterRoutes(router chi.Router, auth func(http.Handler) http.Handler) {
	router.Get("/orders/{id}", h.handleGetOrderByID)
	router.With(auth).Patch("/orders/{id}/status", h.handleUpdateOrderStatus)
	router.Get("/buyers/{id}/orders", h.handleGetOrdersByBuyerID)
}

func parseIDParam(w http.ResponseWriter, r *http.Request, logField string) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str(logField, idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

// handleGetOrderByID reads straight from the store so the payment status is
// never served from a stale copy.
func (h *OrderHandler) handleGetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r, "order_id")
	if !ok {
		return
	}

	found, err := h.service.GetOrderByID(r.Context(), orderID)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		if statusCode == http.StatusInternalServerError {
			log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to get order by id via service")
		}
		respondWithError(w, statusCode, clientMessage(err, "Failed to get order"))
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleGetOrdersByBuyerID(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := parseIDParam(w, r, "buyer_id")
	if !ok {
		return
	}

	orders, err := h.service.GetOrdersByBuyerID(r.Context(), buyerID)
	if err != nil {
		log.Error().Err(err).Stringer("buyer_id", buyerID).Msg("Failed to get buyer orders via service")
		respondWithError(w, http.StatusInternalServerError, "Failed to get orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r, "order_id")
	if !ok {
		return
	}

	var payload UpdateOrderStatusRequest
	if err := decodeJSON(r, &payload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode order status body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		respondWithValidation(w, err)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), orderID, payload.Status); err != nil {
		statusCode := mapErrorToStatusCode(err)
		if statusCode == http.StatusInternalServerError {
			log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to update order status via service")
		}
		respondWithError(w, statusCode, clientMessage(err, "Failed to update order status"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
