package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/model"
	"storefront/internal/payurl"
	"storefront/internal/woocommerce"
)

// newTestAPI wires the full handler stack against a fake commerce backend.
func newTestAPI(t *testing.T, backend http.Handler) http.Handler {
	t.Helper()

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := woocommerce.New(woocommerce.Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "ck",
		ConsumerSecret: "cs",
	})
	if err != nil {
		t.Fatalf("woocommerce.New() error: %v", err)
	}

	cat, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() error: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(cat, checkout.New(client, logger), payurl.New(client, logger), client, nil, logger)

	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func doJSON(t *testing.T, api http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	fields := map[string]json.RawMessage{}
	json.Unmarshal(rec.Body.Bytes(), &fields)
	return rec, fields
}

func TestListProducts(t *testing.T) {
	api := newTestAPI(t, http.NotFoundHandler())

	rec, fields := doJSON(t, api, http.MethodGet, "/api/products", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var products []catalog.Product
	if err := json.Unmarshal(fields["products"], &products); err != nil {
		t.Fatalf("decoding products: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("no products returned")
	}

	rec, fields = doJSON(t, api, http.MethodGet, "/api/products?category=hoodies&brand=hellstar", "")
	json.Unmarshal(fields["products"], &products)
	for _, p := range products {
		if p.Category != "hoodies" {
			t.Errorf("filter leaked category %q", p.Category)
		}
	}
}

func TestGetProductBySlug(t *testing.T) {
	api := newTestAPI(t, http.NotFoundHandler())

	rec, _ := doJSON(t, api, http.MethodGet, "/api/products/trapstar-shooters-tee-white", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	rec, fields := doJSON(t, api, http.MethodGet, "/api/products/nonexistent-slug", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var apiErr model.APIError
	if err := json.Unmarshal(fields["error"], &apiErr); err != nil || apiErr.Code != "NOT_FOUND" {
		t.Errorf("error body = %s", rec.Body.String())
	}
}

func TestPaymentMethods(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wc/v3/payment_gateways" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`[{"id":"ziina","title":"Ziina","enabled":true},{"id":"cod","title":"Cash","enabled":false}]`))
	}))

	rec, fields := doJSON(t, api, http.MethodGet, "/api/payment-methods", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var gateways []model.Gateway
	if err := json.Unmarshal(fields["paymentMethods"], &gateways); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(gateways) != 1 || gateways[0].ID != "ziina" {
		t.Errorf("gateways = %+v", gateways)
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/wp-json/wc/v3/orders" {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":77,"number":"77","order_key":"wc_order_77","status":"pending","currency":"USD","total":"149.00"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	body := `{
		"productId": 60, "quantity": 1, "paymentMethod": "ziina",
		"customer": {"firstName":"Ava","lastName":"Khan","email":"ava@example.com","phone":"+971500000001","address":"1 Marina Walk","city":"Dubai","state":"DU","postcode":"00000","country":"AE"}
	}`
	rec, _ := doJSON(t, api, http.MethodPost, "/api/orders", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary model.OrderSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.ID != 77 || summary.OrderKey != "wc_order_77" {
		t.Errorf("summary = %+v", summary)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	api := newTestAPI(t, http.NotFoundHandler())

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing product", `{"quantity":1,"paymentMethod":"ziina","customer":{"firstName":"A","email":"a@b.c"}}`},
		{"zero quantity", `{"productId":60,"quantity":0,"paymentMethod":"ziina","customer":{"firstName":"A","email":"a@b.c"}}`},
		{"missing method", `{"productId":60,"quantity":1,"customer":{"firstName":"A","email":"a@b.c"}}`},
		{"missing email", `{"productId":60,"quantity":1,"paymentMethod":"ziina","customer":{"firstName":"A"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := doJSON(t, api, http.MethodPost, "/api/orders", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestCreateOrderUnconfiguredBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	client, err := woocommerce.New(woocommerce.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Load()
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(cat, checkout.New(client, logger), payurl.New(client, logger), client, nil, logger)
	mux := http.NewServeMux()
	h.Register(mux)

	body := `{"productId":60,"quantity":1,"paymentMethod":"ziina","customer":{"firstName":"A","email":"a@b.c"}}`
	rec, fields := doJSON(t, mux, http.MethodPost, "/api/orders", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var apiErr model.APIError
	json.Unmarshal(fields["error"], &apiErr)
	if apiErr.Code != "BACKEND_UNCONFIGURED" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

func TestGetOrderEndpoint(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wp-json/wc/v3/orders/42":
			w.Write([]byte(`{"id":42,"number":"42","order_key":"wc_order_42","status":"processing","currency":"USD","total":"149.00",
				"payment_method":"ziina","payment_method_title":"Ziina",
				"line_items":[{"product_id":60,"name":"Irongate Hoodie","quantity":1,"total":"149.00"}]}`))
		case "/wp-json/wc/v3/products/60":
			w.Write([]byte(`{"id":60,"images":[{"id":1,"src":"https://cdn.example.com/h.jpg"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	rec, _ := doJSON(t, api, http.MethodGet, "/api/orders/42?key=wc_order_42", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var view orderView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decoding view: %v", err)
	}
	if view.ID != 42 || view.Status != "processing" {
		t.Errorf("view = %+v", view)
	}
	if len(view.LineItems) != 1 || view.LineItems[0].Image != "https://cdn.example.com/h.jpg" {
		t.Errorf("line items = %+v", view.LineItems)
	}

	// Wrong key is forbidden.
	rec, _ = doJSON(t, api, http.MethodGet, "/api/orders/42?key=wrong", "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	rec, _ = doJSON(t, api, http.MethodGet, "/api/orders/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for non-numeric id", rec.Code)
	}
}

func TestUpdateOrderEndpoint(t *testing.T) {
	var patch woocommerce.WooOrderUpdate
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/wp-json/wc/v3/orders/42" {
			json.NewDecoder(r.Body).Decode(&patch)
			w.Write([]byte(`{"id":42,"number":"42","order_key":"k","status":"processing","currency":"USD","total":"149.00"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	rec, _ := doJSON(t, api, http.MethodPatch, "/api/orders/42", `{"status":"processing","paymentId":"pi_9"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if patch.Status != "processing" {
		t.Errorf("patch status = %q", patch.Status)
	}
	if len(patch.Meta) != 1 || patch.Meta[0].Key != "_payment_id" {
		t.Errorf("patch meta = %+v", patch.Meta)
	}

	rec, _ = doJSON(t, api, http.MethodPatch, "/api/orders/42", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want 400", rec.Code)
	}
}

func TestPaymentURLEndpoint(t *testing.T) {
	api := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/wp-json/wc/v3/orders/55" {
			w.Write([]byte(`{"id":55,"order_key":"k55","payment_method":"ziina",
				"meta_data":[{"key":"_ziina_payment_url","value":"https://pay.ziina.com/payment_intent/p55"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))

	rec, _ := doJSON(t, api, http.MethodPost, "/api/orders/55/payment-url", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res model.Resolution
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding resolution: %v", err)
	}
	if res.RedirectURL != "https://pay.ziina.com/payment_intent/p55" || !res.IsGatewayURL {
		t.Errorf("resolution = %+v", res)
	}

	// Absent body is fine, broken JSON is not.
	rec, _ = doJSON(t, api, http.MethodPost, "/api/orders/55/payment-url", "")
	if rec.Code != http.StatusOK {
		t.Errorf("empty body status = %d, want 200", rec.Code)
	}
	rec, _ = doJSON(t, api, http.MethodPost, "/api/orders/55/payment-url", `{"orderKey":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t, http.NotFoundHandler())
	rec, fields := doJSON(t, api, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if string(fields["status"]) != `"ok"` {
		t.Errorf("health body = %s", rec.Body.String())
	}
}
