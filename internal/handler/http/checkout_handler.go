package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/checkout"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
)

// CheckoutService is the part of the orchestrator the HTTP layer drives.
type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	RetryPayment(ctx context.Context, checkoutID uuid.UUID, urls checkout.ReturnURLs) (*checkout.Result, error)
	StartHostedPayment(ctx context.Context, req checkout.HostedPaymentRequest) (*checkout.HostedPaymentResult, error)
}

type CheckoutRequest struct {
	Buyer              checkout.Profile        `json:"buyer"`
	Items              []checkout.CartItem     `json:"items"`
	ShippingAddress    checkout.Address        `json:"shipping_address"`
	BillingAddress     checkout.BillingAddress `json:"billing_address"`
	Consent            checkout.Consent        `json:"consent"`
	DeliverySelections map[uuid.UUID]uuid.UUID `json:"delivery_selections"`
	PaymentMethod      order.PaymentMethod     `json:"payment_method"`
	ReturnURLs         checkout.ReturnURLs     `json:"return_urls"`
}

type CheckoutResponse struct {
	CheckoutID   uuid.UUID               `json:"checkout_id"`
	Orders       []order.Order           `json:"orders"`
	Amount       decimal.Decimal         `json:"amount"`
	Action       *checkout.PaymentAction `json:"action,omitempty"`
	FailedStores []checkout.StoreFailure `json:"failed_stores,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

// HostedCheckoutRequest is the function-invocation body used by the storefront.
type HostedCheckoutRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentID     uuid.UUID       `json:"paymentId"`
	SuccessURL    string          `json:"successUrl" validate:"required,url"`
	CancelURL     string          `json:"cancelUrl" validate:"required,url"`
	FailureURL    string          `json:"failureUrl" validate:"required,url"`
	CustomerEmail string          `json:"customerEmail,omitempty" validate:"omitempty,email"`
	CustomerName  string          `json:"customerName,omitempty"`
	StoreName     string          `json:"storeName,omitempty"`
	SellerEmail   string          `json:"sellerEmail,omitempty" validate:"omitempty,email"`
	ItemsCount    int             `json:"itemsCount,omitempty" validate:"gte=0"`
}

type HostedCheckoutResponse struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	CheckoutID  string `json:"checkoutId,omitempty"`
	EmailsSent  int    `json:"emailsSent"`
	TotalEmails int    `json:"totalEmails"`
	Error       string `json:"error,omitempty"`
}

type CheckoutHandler struct {
	service  CheckoutService
	validate *validator.Validate
}

func NewCheckoutHandler(service CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts buyer-facing routes on router and the function
// invocation route behind auth.
func (h *CheckoutHandler) RegisterRoutes(router chi.Router, auth func(http.Handler) http.Handler) {
	router.Post("/checkout", h.handleCheckout)
	router.Post("/checkouts/{id}/payment", h.handleRetryPayment)
	router.With(auth).Post("/functions/hosted-checkout", h.handleHostedCheckout)
}

func (h *CheckoutHandler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var payload CheckoutRequest
	if err := decodeJSON(r, &payload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode checkout request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	result, err := h.service.Checkout(r.Context(), checkout.Request{
		Buyer:              payload.Buyer,
		Items:              payload.Items,
		Shipping:           payload.ShippingAddress,
		Billing:            payload.BillingAddress,
		Consent:            payload.Consent,
		DeliverySelections: payload.DeliverySelections,
		PaymentMethod:      payload.PaymentMethod,
		ReturnURLs:         payload.ReturnURLs,
	})
	if err != nil {
		h.respondWithCheckoutError(w, result, err)
		return
	}

	respondWithJSON(w, http.StatusOK, newCheckoutResponse(result))
}

func (h *CheckoutHandler) respondWithCheckoutError(w http.ResponseWriter, result *checkout.Result, err error) {
	var validationErr *checkout.ValidationError
	if errors.As(err, &validationErr) {
		respondWithJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{
			Error:   "Checkout is not ready",
			Details: validationErr.Issues,
		})
		return
	}

	statusCode := mapErrorToStatusCode(err)
	if result == nil {
		if statusCode == http.StatusInternalServerError {
			log.Error().Err(err).Msg("Checkout failed")
		}
		respondWithError(w, statusCode, clientMessage(err, "Checkout failed"))
		return
	}

	// Orders exist: hand them back so the client can retry payment or the
	// failed stores only.
	response := newCheckoutResponse(result)
	var partialErr *checkout.PartialOrderCreationError
	if errors.As(err, &partialErr) {
		response.FailedStores = partialErr.Failed
	}
	if statusCode != http.StatusMultiStatus {
		response.Error = clientMessage(err, "Checkout failed")
	}
	respondWithJSON(w, statusCode, response)
}

func newCheckoutResponse(result *checkout.Result) CheckoutResponse {
	return CheckoutResponse{
		CheckoutID: result.CheckoutID,
		Orders:     result.Orders,
		Amount:     result.Amount,
		Action:     result.Action,
	}
}

func (h *CheckoutHandler) handleRetryPayment(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	checkoutID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("checkout_id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return
	}

	var urls checkout.ReturnURLs
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &urls); err != nil {
			log.Warn().Err(err).Msg("Failed to decode retry payment body")
			respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	}

	result, err := h.service.RetryPayment(r.Context(), checkoutID, urls)
	if err != nil {
		h.respondWithCheckoutError(w, result, err)
		return
	}
	respondWithJSON(w, http.StatusOK, newCheckoutResponse(result))
}

func (h *CheckoutHandler) handleHostedCheckout(w http.ResponseWriter, r *http.Request) {
	var payload HostedCheckoutRequest
	if err := decodeJSON(r, &payload); err != nil {
		log.Warn().Err(err).Msg("Failed to decode hosted checkout body")
		respondWithJSON(w, http.StatusBadRequest, HostedCheckoutResponse{Error: "Invalid request payload"})
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		respondWithValidation(w, err)
		return
	}
	if payload.PaymentID == uuid.Nil || !payload.Amount.IsPositive() {
		respondWithJSON(w, http.StatusBadRequest, HostedCheckoutResponse{Error: "paymentId and a positive amount are required"})
		return
	}

	result, err := h.service.StartHostedPayment(r.Context(), checkout.HostedPaymentRequest{
		Amount:        payload.Amount,
		PaymentID:     payload.PaymentID,
		SuccessURL:    payload.SuccessURL,
		CancelURL:     payload.CancelURL,
		FailureURL:    payload.FailureURL,
		CustomerEmail: payload.CustomerEmail,
		CustomerName:  payload.CustomerName,
		StoreName:     payload.StoreName,
		SellerEmail:   payload.SellerEmail,
		ItemsCount:    payload.ItemsCount,
	})
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		if statusCode == http.StatusInternalServerError {
			log.Error().Err(err).Stringer("checkout_id", payload.PaymentID).Msg("Hosted checkout failed")
		}
		respondWithJSON(w, statusCode, HostedCheckoutResponse{Error: clientMessage(err, "Failed to start hosted checkout")})
		return
	}

	respondWithJSON(w, http.StatusOK, HostedCheckoutResponse{
		Success:     true,
		CheckoutURL: result.CheckoutURL,
		CheckoutID:  result.CheckoutID,
		EmailsSent:  result.EmailsSent,
		TotalEmails: result.TotalEmails,
	})
}
