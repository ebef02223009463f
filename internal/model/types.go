// Package model holds the domain types and error taxonomy shared across
// the storefront: checkout form input, order summaries returned to the
// frontend, and payment-URL resolution results.
package model

// Customer is the billing/shipping address collected at checkout.
type Customer struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}

// CheckoutRequest is a completed checkout form submission.
type CheckoutRequest struct {
	ProductID int      `json:"productId"`
	Quantity  int      `json:"quantity"`
	Size      string   `json:"size,omitempty"`
	// LineTotal overrides the line total when upstream pricing is absent,
	// so the backend never records a zero-amount order.
	LineTotal     string   `json:"lineTotal,omitempty"`
	Customer      Customer `json:"customer"`
	PaymentMethod string   `json:"paymentMethod"`
	// PaymentID is an external payment-intent id recorded as order metadata.
	PaymentID string `json:"paymentId,omitempty"`
	Paid      bool   `json:"paid,omitempty"`
}

// OrderSummary is the transient view of a backend order returned to the
// frontend after creation. OrderKey may be empty when the backend has not
// yet populated it; callers must tolerate that and fall back to the
// email-delivered payment link flow.
type OrderSummary struct {
	ID          int    `json:"id"`
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
	OrderKey    string `json:"orderKey,omitempty"`
}

// Gateway is a normalized payment gateway entry from the backend.
type Gateway struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
}

// Resolution is the outcome of payment-URL resolution for one order.
//
// GatewayURL is an absolute URL hosted off the backend domain (the real
// payment processor page). BackendPageURL is a URL on the backend's own
// domain that was found during resolution; it is reported but never chosen
// as the redirect target - the constructed FallbackPayURL is used instead,
// so the buyer is never handed an arbitrary unresolved backend page.
// RedirectURL is GatewayURL when present, else FallbackPayURL, else empty.
type Resolution struct {
	PaymentURL     string `json:"paymentUrl,omitempty"`
	IsGatewayURL   bool   `json:"isGatewayUrl"`
	IsBackendPage  bool   `json:"isWooCommercePage"`
	BackendPageURL string `json:"wooPayPageUrl,omitempty"`
	OrderKey       string `json:"orderKey,omitempty"`
	FallbackPayURL string `json:"fallbackPayUrl,omitempty"`
	RedirectURL    string `json:"redirectUrl,omitempty"`
}
