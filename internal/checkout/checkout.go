// Package checkout turns a completed checkout form into a durable backend
// order and recovers the order's capability key.
package checkout

import (
	"context"
	"log/slog"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/payurl"
	"storefront/internal/retry"
	"storefront/internal/woocommerce"
)

const orderSource = "storefront"

// createRetryDelay spaces out order-creation retries. Only 502-class
// failures retry; the backend's reverse proxy drops requests under load
// and a short pause is usually enough. Var so tests can shrink it.
var createRetryDelay = 2 * time.Second

// keyRecoveryDelays spaces out order re-fetches when the creation
// response came back without an order key. The backend populates the key
// asynchronously on some plugin configurations.
var keyRecoveryDelays = []time.Duration{
	1200 * time.Millisecond,
	2 * time.Second,
	2500 * time.Millisecond,
}

// Orchestrator drives order creation against the commerce backend.
type Orchestrator struct {
	client *woocommerce.Client
	log    *slog.Logger

	createPolicy retry.Policy
}

// New creates an orchestrator.
func New(client *woocommerce.Client, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		client:       client,
		log:          log.With("component", "checkout"),
		createPolicy: retry.Fixed(2, createRetryDelay).WithRetryable(model.IsBadGateway),
	}
}

// CreateOrder creates a backend order from a checkout submission and
// returns the transient summary the frontend needs. The order key may be
// absent when the backend never populated it within the recovery budget;
// callers fall back to the email-delivered payment link in that case.
func (o *Orchestrator) CreateOrder(ctx context.Context, req *model.CheckoutRequest) (*model.OrderSummary, error) {
	title := o.methodTitle(ctx, req.PaymentMethod)
	payload := buildOrderPayload(req, title)

	order, err := o.create(ctx, payload)
	if err != nil {
		return nil, err
	}

	key := order.Key()
	if key == "" {
		key = o.recoverKey(ctx, order.ID)
	}

	// Warm the hosted pay page so the gateway plugin generates its
	// redirect URL before the resolver goes looking for it. Best effort,
	// detached from the request: it must never delay the response.
	if _, ok := payurl.RuleFor(req.PaymentMethod, title); ok && key != "" {
		warmCtx := context.WithoutCancel(ctx)
		go o.client.WarmOrderPayPage(warmCtx, order.ID, key)
	}

	return &model.OrderSummary{
		ID:          order.ID,
		OrderNumber: order.Number,
		Status:      order.Status,
		Total:       order.Total,
		Currency:    order.Currency,
		OrderKey:    key,
	}, nil
}

// UpdateOrder applies a status/payment patch to an existing order.
func (o *Orchestrator) UpdateOrder(ctx context.Context, orderID int, patch *woocommerce.WooOrderUpdate) (*model.OrderSummary, error) {
	order, err := o.client.UpdateOrder(ctx, orderID, patch)
	if err != nil {
		return nil, err
	}
	return &model.OrderSummary{
		ID:          order.ID,
		OrderNumber: order.Number,
		Status:      order.Status,
		Total:       order.Total,
		Currency:    order.Currency,
		OrderKey:    order.Key(),
	}, nil
}

// methodTitle resolves the human-readable gateway title, falling back to
// the raw method id. Never fails order creation.
func (o *Orchestrator) methodTitle(ctx context.Context, methodID string) string {
	g, err := o.client.FetchGateway(ctx, methodID)
	if err != nil || g.Title == "" {
		if err != nil {
			o.log.Debug("gateway title lookup failed", "method", methodID, "error", err)
		}
		return methodID
	}
	return g.Title
}

// create posts the order, retrying only 502-class failures.
func (o *Orchestrator) create(ctx context.Context, payload *woocommerce.WooOrderRequest) (*woocommerce.WooOrder, error) {
	var order *woocommerce.WooOrder
	attempts := 0
	err := o.createPolicy.Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.OrderCreateRetries.Inc()
			o.log.Warn("retrying order creation", "attempt", attempts)
		}
		var err error
		order, err = o.client.CreateOrder(ctx, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// recoverKey re-fetches the order on an increasing delay schedule until a
// key shows up, then gives up and returns "".
func (o *Orchestrator) recoverKey(ctx context.Context, orderID int) string {
	// The creation response just said the key is not there yet, so every
	// re-fetch waits first: 3 fetches total on the increasing schedule.
	if err := retry.Sleep(ctx, keyRecoveryDelays[0]); err != nil {
		return ""
	}
	var key string
	policy := retry.Schedule(keyRecoveryDelays[1:]...)
	err := policy.Do(ctx, func(ctx context.Context) error {
		order, err := o.client.FetchOrder(ctx, orderID, "")
		if err != nil {
			return err
		}
		if key = order.Key(); key == "" {
			return errKeyMissing
		}
		return nil
	})
	if err != nil {
		o.log.Warn("order key not recovered", "orderID", orderID, "error", err)
	}
	return key
}

var errKeyMissing = keyMissingError{}

type keyMissingError struct{}

func (keyMissingError) Error() string { return "order key not yet populated" }

// buildOrderPayload maps the checkout form onto the backend's order shape.
func buildOrderPayload(req *model.CheckoutRequest, methodTitle string) *woocommerce.WooOrderRequest {
	address := woocommerce.WooAddress{
		FirstName: req.Customer.FirstName,
		LastName:  req.Customer.LastName,
		Address1:  req.Customer.Address,
		City:      req.Customer.City,
		State:     req.Customer.State,
		Postcode:  req.Customer.Postcode,
		Country:   req.Customer.Country,
	}
	billing := address
	billing.Email = req.Customer.Email
	billing.Phone = req.Customer.Phone

	item := woocommerce.WooLineItem{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}
	// Line total override keeps the backend from recording a zero-amount
	// order when it has no price for the product.
	if req.LineTotal != "" {
		item.Total = req.LineTotal
	}
	if req.Size != "" {
		item.Meta = append(item.Meta, woocommerce.StringMeta("Size", req.Size))
	}

	meta := []woocommerce.WooMeta{
		woocommerce.StringMeta("_order_source", orderSource),
	}
	if req.PaymentID != "" {
		meta = append(meta, woocommerce.StringMeta("_payment_id", req.PaymentID))
	}

	return &woocommerce.WooOrderRequest{
		PaymentMethod:      req.PaymentMethod,
		PaymentMethodTitle: methodTitle,
		SetPaid:            req.Paid,
		Billing:            billing,
		Shipping:           address,
		LineItems:          []woocommerce.WooLineItem{item},
		Meta:               meta,
	}
}
