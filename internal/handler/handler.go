// Package handler implements the storefront's JSON API: catalog reads,
// payment method listing, order creation, and payment URL resolution.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"storefront/internal/cache"
	"storefront/internal/catalog"
	"storefront/internal/checkout"
	"storefront/internal/model"
	"storefront/internal/payurl"
	"storefront/internal/woocommerce"
)

// Handler holds the API dependencies.
type Handler struct {
	catalog  *catalog.Catalog
	orders   *checkout.Orchestrator
	resolver *payurl.Resolver
	client   *woocommerce.Client
	cache    *cache.Cache
	log      *slog.Logger
}

// New creates the API handler.
func New(cat *catalog.Catalog, orders *checkout.Orchestrator, resolver *payurl.Resolver, client *woocommerce.Client, c *cache.Cache, log *slog.Logger) *Handler {
	return &Handler{
		catalog:  cat,
		orders:   orders,
		resolver: resolver,
		client:   client,
		cache:    c,
		log:      log.With("component", "handler"),
	}
}

// Register attaches the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/products", h.handleListProducts)
	mux.HandleFunc("GET /api/products/{slug}", h.handleGetProduct)
	mux.HandleFunc("GET /api/payment-methods", h.handlePaymentMethods)
	mux.HandleFunc("POST /api/orders", h.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", h.handleGetOrder)
	mux.HandleFunc("PATCH /api/orders/{id}", h.handleUpdateOrder)
	mux.HandleFunc("POST /api/orders/{id}/payment-url", h.handlePaymentURL)
}

// === Health ===

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"products":          h.catalog.Len(),
		"backendConfigured": h.client.Configured(),
	})
}

// === Catalog ===

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	brand := q.Get("brand")
	search := q.Get("q")

	var products []catalog.Product
	switch {
	case search != "":
		products = h.catalog.Search(search)
	case category != "" && brand != "":
		products = h.catalog.ByCategoryAndBrand(category, brand)
	case category != "":
		products = h.catalog.ByCategory(category)
	case brand != "":
		products = h.catalog.ByBrand(brand)
	default:
		products = h.catalog.All()
	}

	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	product, ok := h.catalog.BySlug(slug)
	if !ok {
		writeError(w, model.NewNotFoundError("product"))
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// === Payment methods ===

func (h *Handler) handlePaymentMethods(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if gateways, ok := h.cache.Gateways(ctx); ok {
		writeJSON(w, http.StatusOK, map[string]any{"paymentMethods": gateways})
		return
	}

	gateways, err := h.client.ListPaymentGateways(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cache.SetGateways(ctx, gateways)
	writeJSON(w, http.StatusOK, map[string]any{"paymentMethods": gateways})
}

// === Orders ===

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req model.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "invalid JSON"))
		return
	}
	if err := validateCheckout(&req); err != nil {
		writeError(w, err)
		return
	}

	summary, err := h.orders.CreateOrder(r.Context(), &req)
	if err != nil {
		h.log.Error("order creation failed", "error", err)
		writeError(w, err)
		return
	}

	h.log.Info("order created",
		"orderID", summary.ID,
		"total", summary.Total,
		"hasKey", summary.OrderKey != "")
	writeJSON(w, http.StatusCreated, summary)
}

func validateCheckout(req *model.CheckoutRequest) error {
	switch {
	case req.ProductID <= 0:
		return model.NewValidationError("productId", "must be a positive product id")
	case req.Quantity <= 0:
		return model.NewValidationError("quantity", "must be at least 1")
	case req.PaymentMethod == "":
		return model.NewValidationError("paymentMethod", "is required")
	case req.Customer.Email == "":
		return model.NewValidationError("customer.email", "is required")
	case req.Customer.FirstName == "":
		return model.NewValidationError("customer.firstName", "is required")
	}
	return nil
}

// orderView is the frontend's order detail shape.
type orderView struct {
	model.OrderSummary
	PaymentMethod      string         `json:"paymentMethod"`
	PaymentMethodTitle string         `json:"paymentMethodTitle"`
	LineItems          []lineItemView `json:"lineItems"`
}

type lineItemView struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total"`
	Image     string `json:"image,omitempty"`
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || orderID <= 0 {
		writeError(w, model.NewValidationError("id", "must be a numeric order id"))
		return
	}
	orderKey := r.URL.Query().Get("key")

	order, err := h.client.FetchOrder(r.Context(), orderID, orderKey)
	if err != nil {
		writeError(w, err)
		return
	}

	view := orderView{
		OrderSummary: model.OrderSummary{
			ID:          order.ID,
			OrderNumber: order.Number,
			Status:      order.Status,
			Total:       order.Total,
			Currency:    order.Currency,
			OrderKey:    order.Key(),
		},
		PaymentMethod:      order.PaymentMethod,
		PaymentMethodTitle: order.PaymentMethodTitle,
	}
	for _, item := range order.LineItems {
		view.LineItems = append(view.LineItems, lineItemView{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Total:     item.Total,
			Image:     h.productImage(r, item.ProductID),
		})
	}

	writeJSON(w, http.StatusOK, view)
}

// productImage looks up a product's image, cache first. Cosmetic: ""
// on any failure.
func (h *Handler) productImage(r *http.Request, productID int) string {
	ctx := r.Context()
	if src, ok := h.cache.ProductImage(ctx, productID); ok {
		return src
	}
	src := h.client.FetchProductImage(ctx, productID)
	if src != "" {
		h.cache.SetProductImage(ctx, productID, src)
	}
	return src
}

// orderUpdateRequest is the frontend's patch shape, mapped onto the
// backend update payload.
type orderUpdateRequest struct {
	Status        string `json:"status,omitempty"`
	SetPaid       *bool  `json:"setPaid,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	PaymentID     string `json:"paymentId,omitempty"`
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || orderID <= 0 {
		writeError(w, model.NewValidationError("id", "must be a numeric order id"))
		return
	}

	var req orderUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "invalid JSON"))
		return
	}
	if req.Status == "" && req.SetPaid == nil && req.PaymentMethod == "" && req.PaymentID == "" {
		writeError(w, model.NewValidationError("body", "no fields to update"))
		return
	}

	patch := &woocommerce.WooOrderUpdate{
		Status:        req.Status,
		SetPaid:       req.SetPaid,
		PaymentMethod: req.PaymentMethod,
	}
	if req.PaymentID != "" {
		patch.Meta = append(patch.Meta, woocommerce.StringMeta("_payment_id", req.PaymentID))
	}

	summary, err := h.orders.UpdateOrder(r.Context(), orderID, patch)
	if err != nil {
		h.log.Error("order update failed", "orderID", orderID, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// === Payment URL resolution ===

type paymentURLRequest struct {
	OrderKey string `json:"orderKey,omitempty"`
}

func (h *Handler) handlePaymentURL(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || orderID <= 0 {
		writeError(w, model.NewValidationError("id", "must be a numeric order id"))
		return
	}

	// Key comes in the body for POST clients, or as ?key= for simple ones.
	// An absent body is fine; a present-but-broken one is not.
	var req paymentURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, model.NewValidationError("body", "invalid JSON"))
		return
	}
	if req.OrderKey == "" {
		req.OrderKey = r.URL.Query().Get("key")
	}

	res, err := h.resolver.Resolve(r.Context(), orderID, req.OrderKey)
	if err != nil {
		h.log.Error("payment url resolution failed", "orderID", orderID, "error", err)
		writeError(w, err)
		return
	}

	h.log.Info("payment url resolved",
		"orderID", orderID,
		"gateway", res.IsGatewayURL,
		"hasRedirect", res.RedirectURL != "")
	writeJSON(w, http.StatusOK, res)
}

// === Response helpers ===

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an error onto the API error shape. Unknown errors
// become opaque 500s; their detail stays in the logs.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.StatusCode)
	json.NewEncoder(w).Encode(map[string]any{"error": apiErr})
}
