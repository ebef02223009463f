package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storefront/internal/model"
	"storefront/internal/woocommerce"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shrinkDelays(t *testing.T) {
	t.Helper()
	origCreate, origRecovery := createRetryDelay, keyRecoveryDelays
	createRetryDelay = time.Millisecond
	keyRecoveryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	t.Cleanup(func() {
		createRetryDelay = origCreate
		keyRecoveryDelays = origRecovery
	})
}

func newOrchestrator(t *testing.T, handler http.Handler) *Orchestrator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := woocommerce.New(woocommerce.Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return New(client, testLogger())
}

func checkoutReq() *model.CheckoutRequest {
	return &model.CheckoutRequest{
		ProductID:     60,
		Quantity:      1,
		Size:          "L",
		PaymentMethod: "ziina",
		Customer: model.Customer{
			FirstName: "Ava",
			LastName:  "Khan",
			Email:     "ava@example.com",
			Phone:     "+971500000001",
			Address:   "1 Marina Walk",
			City:      "Dubai",
			State:     "DU",
			Postcode:  "00000",
			Country:   "AE",
		},
	}
}

func TestCreateOrderRetriesOn502ThenSucceeds(t *testing.T) {
	shrinkDelays(t)
	var createCalls int32
	o := newOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/wp-json/wc/v3/orders":
			if atomic.AddInt32(&createCalls, 1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"id":900,"number":"900","order_key":"wc_order_900","status":"pending","currency":"USD","total":"149.00"}`))
		default:
			// gateway title lookup; failing it must not fail creation
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	summary, err := o.CreateOrder(context.Background(), checkoutReq())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	if n := atomic.LoadInt32(&createCalls); n != 2 {
		t.Errorf("create attempts = %d, want 2 (1 failure + 1 retry)", n)
	}
	if summary.ID != 900 || summary.OrderKey != "wc_order_900" {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCreateOrderGivesUpAfterRetryBudget(t *testing.T) {
	shrinkDelays(t)
	var createCalls int32
	o := newOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&createCalls, 1)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := o.CreateOrder(context.Background(), checkoutReq())
	if !model.IsBadGateway(err) {
		t.Fatalf("error = %v, want bad-gateway class", err)
	}
	if n := atomic.LoadInt32(&createCalls); n != 3 {
		t.Errorf("create attempts = %d, want 3 (1 initial + 2 retries)", n)
	}
}

func TestCreateOrderDoesNotRetryOtherErrors(t *testing.T) {
	shrinkDelays(t)
	var createCalls int32
	o := newOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&createCalls, 1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message":"boom"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := o.CreateOrder(context.Background(), checkoutReq())
	if !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("error = %v, want upstream", err)
	}
	if n := atomic.LoadInt32(&createCalls); n != 1 {
		t.Errorf("create attempts = %d, want 1 (no retry on non-502)", n)
	}
}

func TestCreateOrderRecoversMissingKey(t *testing.T) {
	shrinkDelays(t)
	var fetchCalls int32
	o := newOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			// creation response without an order key
			w.Write([]byte(`{"id":901,"number":"901","status":"pending","currency":"USD","total":"69.00"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/wp-json/wc/v3/orders/901":
			if atomic.AddInt32(&fetchCalls, 1) < 2 {
				w.Write([]byte(`{"id":901,"number":"901","status":"pending"}`))
				return
			}
			w.Write([]byte(`{"id":901,"number":"901","status":"pending","order_key":"wc_order_late"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	summary, err := o.CreateOrder(context.Background(), checkoutReq())
	if err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	if summary.OrderKey != "wc_order_late" {
		t.Errorf("OrderKey = %q, want recovered key", summary.OrderKey)
	}
	if n := atomic.LoadInt32(&fetchCalls); n != 2 {
		t.Errorf("fetches = %d, want 2 (second recovers the key)", n)
	}
}

func TestCreateOrderKeyRecoveryIsBounded(t *testing.T) {
	shrinkDelays(t)
	var fetchCalls int32
	o := newOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			w.Write([]byte(`{"id":902,"number":"902","status":"pending","currency":"USD","total":"59.00"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/wp-json/wc/v3/orders/902":
			atomic.AddInt32(&fetchCalls, 1)
			w.Write([]byte(`{"id":902,"number":"902","status":"pending"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	summary, err := o.CreateOrder(context.Background(), checkoutReq())
	if err != nil {
		t.Fatalf("keyless order must still succeed, got %v", err)
	}
	if summary.OrderKey != "" {
		t.Errorf("OrderKey = %q, want empty", summary.OrderKey)
	}
	if n := atomic.LoadInt32(&fetchCalls); n != 3 {
		t.Errorf("fetches = %d, want exactly 3 recovery attempts", n)
	}
}

func TestOrderPayloadShape(t *testing.T) {
	shrinkDelays(t)
	var payload woocommerce.WooOrderRequest
	o := newOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			json.NewDecoder(r.Body).Decode(&payload)
			w.Write([]byte(`{"id":903,"number":"903","order_key":"k903","status":"pending","currency":"USD","total":"0.00"}`))
		case r.URL.Path == "/wp-json/wc/v3/payment_gateways/ziina":
			w.Write([]byte(`{"id":"ziina","title":"Ziina","enabled":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	req := checkoutReq()
	req.LineTotal = "135.00"
	req.PaymentID = "pi_123"
	if _, err := o.CreateOrder(context.Background(), req); err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}

	if payload.PaymentMethod != "ziina" || payload.PaymentMethodTitle != "Ziina" {
		t.Errorf("payment method = %q/%q", payload.PaymentMethod, payload.PaymentMethodTitle)
	}
	if len(payload.LineItems) != 1 {
		t.Fatalf("line items = %d, want 1", len(payload.LineItems))
	}
	item := payload.LineItems[0]
	if item.ProductID != 60 || item.Quantity != 1 || item.Total != "135.00" {
		t.Errorf("line item = %+v", item)
	}
	if len(item.Meta) != 1 || item.Meta[0].Key != "Size" || item.Meta[0].Text() != "L" {
		t.Errorf("size metadata = %+v", item.Meta)
	}
	if payload.Billing.Email != "ava@example.com" || payload.Billing.Phone == "" {
		t.Errorf("billing = %+v", payload.Billing)
	}
	if payload.Shipping.Email != "" {
		t.Error("shipping should not carry email")
	}

	var sawSource, sawPaymentID bool
	for _, m := range payload.Meta {
		switch m.Key {
		case "_order_source":
			sawSource = m.Text() == orderSource
		case "_payment_id":
			sawPaymentID = m.Text() == "pi_123"
		}
	}
	if !sawSource || !sawPaymentID {
		t.Errorf("order metadata incomplete: %+v", payload.Meta)
	}
}

func TestGatewayTitleLookupFallsBackToMethodID(t *testing.T) {
	shrinkDelays(t)
	var payload woocommerce.WooOrderRequest
	o := newOrchestrator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&payload)
			w.Write([]byte(`{"id":904,"number":"904","order_key":"k","status":"pending","currency":"USD","total":"1.00"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	if _, err := o.CreateOrder(context.Background(), checkoutReq()); err != nil {
		t.Fatalf("CreateOrder() error: %v", err)
	}
	if payload.PaymentMethodTitle != "ziina" {
		t.Errorf("title = %q, want raw method id fallback", payload.PaymentMethodTitle)
	}
}
