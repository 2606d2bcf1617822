package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/vasiliy-maslov/marketplace-checkout/internal/catalog"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/metrics"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/notify"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/order"
	"github.com/vasiliy-maslov/marketplace-checkout/internal/payment"
)

type HostedGateway interface {
	CreateSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error)
}

type FormGateway interface {
	BuildForm(req payment.FormRequest) (*payment.FormSubmission, error)
}

type Notifier interface {
	Notify(ctx context.Context, msgs ...notify.Message)
	NotifyAndWait(ctx context.Context, msgs ...notify.Message) []notify.Result
}

type Options struct {
	MaxConcurrentStores int
	// PublicBaseURL builds the gateway notify URL and default return URLs.
	PublicBaseURL string
}

// Orchestrator drives one checkout from validation to the payment hand-off.
// Payment outcomes arriving later are handled by the reconciler.
type Orchestrator struct {
	orders    order.Repository
	directory catalog.Directory
	hosted    HostedGateway
	form      FormGateway
	notifier  Notifier
	templates notify.Templates
	validator *Validator
	opts      Options
}

// NewOrchestrator accepts nil gateways; the matching payment method is then
// reported as unavailable.
func NewOrchestrator(orders order.Repository, directory catalog.Directory, hosted HostedGateway, form FormGateway, notifier Notifier, templates notify.Templates, opts Options) *Orchestrator {
	if opts.MaxConcurrentStores <= 0 {
		opts.MaxConcurrentStores = 1
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &Orchestrator{
		orders:    orders,
		directory: directory,
		hosted:    hosted,
		form:      form,
		notifier:  notifier,
		templates: templates,
		validator: NewValidator(),
		opts:      opts,
	}
}

// Checkout validates, splits and persists one order per store, then starts
// payment for whatever was created. A *PartialOrderCreationError comes back
// together with a usable Result.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (*Result, error) {
	method := req.PaymentMethod
	if !method.Valid() {
		return nil, &ValidationError{Issues: []string{fmt.Sprintf("unknown payment method %q", method)}}
	}
	if !o.methodEnabled(method) {
		metrics.CheckoutsTotal.WithLabelValues(method.String(), "method_unavailable").Inc()
		return nil, ErrPaymentMethodUnavailable
	}

	termsAccepted := req.Buyer.TermsAccepted || req.Consent.Terms
	readiness := o.validator.Validate(req.Buyer, req.Shipping, req.Billing, req.Items, termsAccepted, req.Consent)
	if !readiness.Ready {
		metrics.CheckoutsTotal.WithLabelValues(method.String(), "validation").Inc()
		log.Info().Stringer("buyer_id", req.Buyer.ID).Strs("issues", readiness.Issues).Msg("checkout: blocked by validation")
		return nil, &ValidationError{Issues: readiness.Issues}
	}

	drafts, err := o.split(ctx, req)
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues(method.String(), "error").Inc()
		return nil, err
	}

	checkoutID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to generate checkout id: %w", err)
	}

	created, partialErr := o.createOrders(ctx, checkoutID, req, drafts)
	if len(created) == 0 {
		metrics.CheckoutsTotal.WithLabelValues(method.String(), "error").Inc()
		return nil, errors.Join(ErrNoOrdersCreated, partialOrNil(partialErr))
	}

	result := &Result{CheckoutID: checkoutID, Orders: created, Amount: order.SumTotals(created)}
	logger := log.With().Stringer("checkout_id", checkoutID).Stringer("buyer_id", req.Buyer.ID).Str("payment_method", method.String()).Logger()

	if err := o.startPayment(ctx, result, req.ReturnURLs, req.Buyer, req.Billing); err != nil {
		metrics.CheckoutsTotal.WithLabelValues(method.String(), "gateway_unavailable").Inc()
		logger.Error().Err(err).Msg("checkout: payment could not be started, orders stay pending")
		return result, errors.Join(ErrGatewayUnavailable, partialOrNil(partialErr))
	}

	outcome := "ok"
	if partialErr != nil {
		outcome = "partial"
	}
	metrics.CheckoutsTotal.WithLabelValues(method.String(), outcome).Inc()
	amount, _ := result.Amount.Float64()
	metrics.PaymentAmount.Observe(amount)
	logger.Info().Int("orders", len(created)).Str("amount", result.Amount.StringFixed(2)).Msg("checkout: orders created")

	if partialErr != nil {
		return result, partialErr
	}
	return result, nil
}

func partialOrNil(err *PartialOrderCreationError) error {
	if err == nil {
		return nil
	}
	return err
}

func (o *Orchestrator) methodEnabled(m order.PaymentMethod) bool {
	switch m {
	case order.MethodHosted:
		return o.hosted != nil
	case order.MethodFormRedirect:
		return o.form != nil
	default:
		return true
	}
}

func (o *Orchestrator) split(ctx context.Context, req Request) ([]DraftOrder, error) {
	storeIDs := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]bool)
	for _, item := range req.Items {
		if !seen[item.StoreID] {
			seen[item.StoreID] = true
			storeIDs = append(storeIDs, item.StoreID)
		}
	}

	stores, err := o.directory.Stores(ctx, storeIDs)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to load stores: %w", err)
	}

	optionIDs := make([]uuid.UUID, 0, len(req.DeliverySelections))
	for _, optionID := range req.DeliverySelections {
		optionIDs = append(optionIDs, optionID)
	}
	options, err := o.directory.DeliveryOptions(ctx, optionIDs)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to load delivery options: %w", err)
	}

	deliveries := make(map[uuid.UUID]catalog.DeliveryOption, len(req.DeliverySelections))
	for storeID, optionID := range req.DeliverySelections {
		opt, ok := options[optionID]
		if !ok {
			log.Warn().Stringer("store_id", storeID).Stringer("delivery_option_id", optionID).Msg("checkout: unknown delivery option, charging no delivery")
			continue
		}
		if opt.StoreID != storeID {
			log.Warn().Stringer("store_id", storeID).Stringer("delivery_option_id", optionID).Msg("checkout: delivery option belongs to another store, ignoring")
			continue
		}
		deliveries[storeID] = opt
	}

	drafts := Split(req.Items, deliveries, stores)
	for _, d := range drafts {
		if d.NeedsReview {
			log.Warn().Stringer("store_id", d.StoreID).Msg("checkout: store no longer exists, order flagged for review")
		}
	}
	return drafts, nil
}

// createOrders inserts each store's order independently. A failed insert does
// not cancel the others and nothing is rolled back.
func (o *Orchestrator) createOrders(ctx context.Context, checkoutID uuid.UUID, req Request, drafts []DraftOrder) ([]order.Order, *PartialOrderCreationError) {
	status := order.StatusPending
	if req.PaymentMethod == order.MethodManualEmail {
		status = order.StatusConfirmed
	}
	shipping := req.Shipping.String()

	created := make([]*order.Order, len(drafts))
	failures := make([]error, len(drafts))

	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrentStores)
	for i, d := range drafts {
		g.Go(func() error {
			newOrder := &order.Order{
				CheckoutID:          checkoutID,
				BuyerID:             req.Buyer.ID,
				BuyerName:           req.Billing.FullName,
				BuyerEmail:          req.Billing.Email,
				StoreID:             d.StoreID,
				StoreName:           d.StoreName,
				SellerName:          d.SellerName,
				SellerEmail:         d.SellerEmail,
				NeedsReview:         d.NeedsReview,
				Items:               d.Items,
				ItemSubtotal:        d.ItemSubtotal,
				DeliveryCharge:      d.DeliveryCharge,
				DeliveryOptionName:  d.DeliveryOptionName,
				TotalAmount:         d.Total,
				ShippingAddressText: shipping,
				PaymentMethod:       req.PaymentMethod,
				Status:              status,
				PaymentStatus:       order.PaymentPending,
			}
			if err := o.orders.CreateOrder(ctx, newOrder); err != nil {
				failures[i] = err
				metrics.OrdersCreatedTotal.WithLabelValues("failed").Inc()
				log.Error().Err(err).Stringer("checkout_id", checkoutID).Stringer("store_id", d.StoreID).Msg("checkout: failed to create store order")
				return nil
			}
			created[i] = newOrder
			metrics.OrdersCreatedTotal.WithLabelValues("created").Inc()
			return nil
		})
	}
	_ = g.Wait()

	orders := make([]order.Order, 0, len(drafts))
	partial := &PartialOrderCreationError{}
	for i, d := range drafts {
		if created[i] != nil {
			orders = append(orders, *created[i])
			partial.CreatedStores = append(partial.CreatedStores, d.StoreID)
			continue
		}
		partial.Failed = append(partial.Failed, StoreFailure{StoreID: d.StoreID, StoreName: d.StoreName, Err: failures[i]})
	}
	if len(partial.Failed) == 0 {
		return orders, nil
	}
	return orders, partial
}

// startPayment fills result.Action for the orders in result.
func (o *Orchestrator) startPayment(ctx context.Context, result *Result, urls ReturnURLs, buyer Profile, billing BillingAddress) error {
	urls = o.withDefaultURLs(urls, result.CheckoutID)

	switch result.Orders[0].PaymentMethod {
	case order.MethodHosted:
		session, err := o.hosted.CreateSession(ctx, payment.SessionRequest{
			CorrelationID: result.CheckoutID,
			Amount:        result.Amount,
			SuccessURL:    urls.Success,
			CancelURL:     urls.Cancel,
			FailureURL:    urls.Failure,
			Metadata: map[string]string{
				"checkoutId": result.CheckoutID.String(),
				"buyerId":    buyer.ID.String(),
			},
		})
		if err != nil {
			return err
		}
		o.attachCorrelation(ctx, result, session.ID)
		result.Action = &PaymentAction{Kind: ActionRedirect, RedirectURL: session.RedirectURL, SessionID: session.ID}
		return nil

	case order.MethodFormRedirect:
		orderIDs := make([]uuid.UUID, 0, len(result.Orders))
		for _, ord := range result.Orders {
			orderIDs = append(orderIDs, ord.ID)
		}
		form, err := o.form.BuildForm(payment.FormRequest{
			CorrelationID: result.CheckoutID,
			BuyerID:       buyer.ID,
			OrderIDs:      orderIDs,
			Amount:        result.Amount,
			ItemName:      itemName(result.Orders),
			BuyerName:     billing.FullName,
			BuyerEmail:    billing.Email,
			ReturnURL:     urls.Success,
			CancelURL:     urls.Cancel,
			NotifyURL:     o.opts.PublicBaseURL + "/webhooks/form-redirect",
		})
		if err != nil {
			return err
		}
		o.attachCorrelation(ctx, result, "")
		result.Action = &PaymentAction{Kind: ActionForm, Form: form}
		return nil

	default:
		msgs := o.templates.OrderPlaced(result.Orders)
		o.notifier.Notify(ctx, msgs...)
		result.Action = &PaymentAction{Kind: ActionEmailSent, EmailsQueued: len(msgs)}
		return nil
	}
}

// attachCorrelation links every order to the checkout's gateway correlation.
// An order that fails to attach is left for the timeout sweep.
func (o *Orchestrator) attachCorrelation(ctx context.Context, result *Result, sessionID string) {
	for i := range result.Orders {
		ord := &result.Orders[i]
		if err := o.orders.AttachCorrelation(ctx, ord.ID, result.CheckoutID, sessionID); err != nil {
			metrics.OperationalAlerts.WithLabelValues("correlation_attach_failed").Inc()
			log.Error().Err(err).Bool("alert", true).Stringer("order_id", ord.ID).Stringer("checkout_id", result.CheckoutID).Msg("checkout: failed to attach gateway correlation")
			continue
		}
		ord.GatewayCorrelationID = uuid.NullUUID{UUID: result.CheckoutID, Valid: true}
		ord.GatewaySessionID = sessionID
	}
}

func (o *Orchestrator) withDefaultURLs(urls ReturnURLs, checkoutID uuid.UUID) ReturnURLs {
	base := o.opts.PublicBaseURL + "/checkout/" + checkoutID.String()
	if urls.Success == "" {
		urls.Success = base + "/success"
	}
	if urls.Cancel == "" {
		urls.Cancel = base + "/cancel"
	}
	if urls.Failure == "" {
		urls.Failure = base + "/failure"
	}
	return urls
}

// payable returns the checkout's orders that still wait for a gateway payment.
func (o *Orchestrator) payable(ctx context.Context, checkoutID uuid.UUID, accept func(order.PaymentMethod) bool) ([]order.Order, error) {
	all, err := o.orders.GetOrdersByCheckoutID(ctx, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("checkout: failed to load checkout %s: %w", checkoutID, err)
	}
	if len(all) == 0 {
		return nil, ErrUnknownCheckout
	}
	pending := make([]order.Order, 0, len(all))
	for _, ord := range all {
		if accept(ord.PaymentMethod) && ord.PaymentStatus == order.PaymentPending && ord.Status == order.StatusPending {
			pending = append(pending, ord)
		}
	}
	if len(pending) == 0 {
		return nil, ErrNothingToPay
	}
	return pending, nil
}

func isHosted(m order.PaymentMethod) bool { return m == order.MethodHosted }

// RetryPayment restarts the gateway hand-off for a checkout whose orders
// exist but whose payment could not be started. The hosted gateway sees the
// same idempotency key, so a session that did open is returned again.
func (o *Orchestrator) RetryPayment(ctx context.Context, checkoutID uuid.UUID, urls ReturnURLs) (*Result, error) {
	pending, err := o.payable(ctx, checkoutID, order.PaymentMethod.UsesGateway)
	if err != nil {
		return nil, err
	}
	if !o.methodEnabled(pending[0].PaymentMethod) {
		return nil, ErrPaymentMethodUnavailable
	}

	result := &Result{CheckoutID: checkoutID, Orders: pending, Amount: order.SumTotals(pending)}
	first := pending[0]
	buyer := Profile{ID: first.BuyerID, FullName: first.BuyerName, Email: first.BuyerEmail}
	billing := BillingAddress{FullName: first.BuyerName, Email: first.BuyerEmail}

	if err := o.startPayment(ctx, result, urls, buyer, billing); err != nil {
		log.Error().Err(err).Stringer("checkout_id", checkoutID).Msg("checkout: payment retry failed")
		return result, ErrGatewayUnavailable
	}
	log.Info().Stringer("checkout_id", checkoutID).Int("orders", len(pending)).Msg("checkout: payment restarted")
	return result, nil
}

// HostedPaymentRequest is the function-invocation contract used by the
// storefront to open a hosted checkout for an existing checkout id.
type HostedPaymentRequest struct {
	Amount        decimal.Decimal
	PaymentID     uuid.UUID
	SuccessURL    string
	CancelURL     string
	FailureURL    string
	CustomerEmail string
	CustomerName  string
	StoreName     string
	SellerEmail   string
	ItemsCount    int
}

type HostedPaymentResult struct {
	CheckoutURL string
	CheckoutID  string
	EmailsSent  int
	TotalEmails int
}

// StartHostedPayment opens the session first and only then emails the buyer
// and seller that the order is awaiting payment.
func (o *Orchestrator) StartHostedPayment(ctx context.Context, req HostedPaymentRequest) (*HostedPaymentResult, error) {
	if o.hosted == nil {
		return nil, ErrPaymentMethodUnavailable
	}
	pending, err := o.payable(ctx, req.PaymentID, isHosted)
	if err != nil {
		return nil, err
	}
	total := order.SumTotals(pending)
	if !req.Amount.Equal(total) {
		log.Warn().Stringer("checkout_id", req.PaymentID).Str("requested", req.Amount.StringFixed(2)).Str("expected", total.StringFixed(2)).Msg("checkout: hosted payment amount mismatch")
		return nil, ErrAmountMismatch
	}

	result := &Result{CheckoutID: req.PaymentID, Orders: pending, Amount: total}
	session, err := o.hosted.CreateSession(ctx, payment.SessionRequest{
		CorrelationID: req.PaymentID,
		Amount:        total,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		FailureURL:    req.FailureURL,
		Metadata:      map[string]string{"checkoutId": req.PaymentID.String()},
	})
	if err != nil {
		log.Error().Err(err).Stringer("checkout_id", req.PaymentID).Msg("checkout: hosted session creation failed")
		return nil, ErrGatewayUnavailable
	}
	o.attachCorrelation(ctx, result, session.ID)

	var msgs []notify.Message
	data := map[string]any{
		"checkout_id":   req.PaymentID.String(),
		"amount":        total.StringFixed(2),
		"store_name":    req.StoreName,
		"items_count":   req.ItemsCount,
		"customer_name": req.CustomerName,
		"stage":         "awaiting_payment",
	}
	if req.CustomerEmail != "" {
		msgs = append(msgs, notify.Message{Type: notify.EventOrderConfirmation, To: req.CustomerEmail, Data: data})
	}
	if req.SellerEmail != "" {
		msgs = append(msgs, notify.Message{Type: notify.EventSellerNotification, To: req.SellerEmail, Data: data})
	}
	results := o.notifier.NotifyAndWait(ctx, msgs...)

	return &HostedPaymentResult{
		CheckoutURL: session.RedirectURL,
		CheckoutID:  session.ID,
		EmailsSent:  notify.Sent(results),
		TotalEmails: len(msgs),
	}, nil
}
