// Package woocommerce implements the client for the remote commerce
// backend's REST API (wc/v3). All backend-specific types, path handling,
// and HTTP logic live here.
package woocommerce

import (
	"bytes"
	"encoding/json"
)

// === Backend API Response Types ===

// WooOrder is the backend's order representation. Only the fields this
// storefront reads are mapped; Meta carries the gateway side-channel.
type WooOrder struct {
	ID                 int           `json:"id"`
	Number             string        `json:"number"`
	OrderKey           string        `json:"order_key"`
	Status             string        `json:"status"`
	Currency           string        `json:"currency"`
	Total              string        `json:"total"`
	PaymentMethod      string        `json:"payment_method"`
	PaymentMethodTitle string        `json:"payment_method_title"`
	PaymentURL         string        `json:"payment_url"`
	CheckoutPaymentURL string        `json:"checkout_payment_url"`
	Billing            *WooAddress   `json:"billing"`
	BillingAddress     *WooAddress   `json:"billing_address,omitempty"`
	Shipping           *WooAddress   `json:"shipping"`
	LineItems          []WooLineItem `json:"line_items"`
	Meta               []WooMeta     `json:"meta_data"`
}

// Key returns the order's capability key, checking the top-level field
// first and then the _order_key metadata entry.
func (o *WooOrder) Key() string {
	if o.OrderKey != "" {
		return o.OrderKey
	}
	return o.MetaString("_order_key")
}

// MetaString returns the string value of the named metadata entry, or "".
func (o *WooOrder) MetaString(key string) string {
	for _, m := range o.Meta {
		if m.Key == key {
			if s := m.Text(); s != "" {
				return s
			}
		}
	}
	return ""
}

// NormalizeBilling ensures Billing is populated: the backend sometimes
// returns billing_address instead of billing, and occasionally neither.
func (o *WooOrder) NormalizeBilling() {
	if o.Billing == nil && o.BillingAddress != nil {
		o.Billing = o.BillingAddress
	}
	if o.Billing == nil {
		o.Billing = &WooAddress{}
	}
}

// WooMeta is an order metadata entry. Values are freeform JSON; gateway
// plugins store redirect URLs here as strings.
type WooMeta struct {
	ID    int             `json:"id,omitempty"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Text returns the value when it is a JSON string, otherwise "".
func (m WooMeta) Text() string {
	var s string
	if err := json.Unmarshal(m.Value, &s); err != nil {
		return ""
	}
	return s
}

// StringMeta builds a metadata entry with a string value.
func StringMeta(key, value string) WooMeta {
	raw, _ := json.Marshal(value)
	return WooMeta{Key: key, Value: raw}
}

// WooAddress is a backend billing/shipping address.
type WooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// WooLineItem is an order line item. Image is not part of the backend
// response; it is filled in best-effort from a product lookup.
type WooLineItem struct {
	ID        int       `json:"id,omitempty"`
	Name      string    `json:"name,omitempty"`
	ProductID int       `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price,omitempty"`
	Total     string    `json:"total,omitempty"`
	Meta      []WooMeta `json:"meta_data,omitempty"`
	Image     string    `json:"image,omitempty"`
}

// WooProduct is the slice of a backend product this storefront reads.
type WooProduct struct {
	ID     int        `json:"id"`
	Images []WooImage `json:"images"`
}

// WooImage is a product image.
type WooImage struct {
	ID  int    `json:"id"`
	Src string `json:"src"`
}

// WooGateway is a raw payment gateway entry. Enabled may be a JSON bool
// or the string "yes"; the keyed-map response may omit id/title fields.
type WooGateway struct {
	ID                string          `json:"id"`
	Title             string          `json:"title"`
	MethodTitle       string          `json:"method_title"`
	Description       string          `json:"description"`
	MethodDescription string          `json:"method_description"`
	Enabled           json.RawMessage `json:"enabled"`
}

// IsEnabled normalizes the enabled flag: boolean true or string "yes".
func (g WooGateway) IsEnabled() bool {
	if bytes.Equal(g.Enabled, []byte("true")) {
		return true
	}
	var s string
	if err := json.Unmarshal(g.Enabled, &s); err == nil {
		return s == "yes"
	}
	return false
}

// DisplayTitle returns the best available human title for the gateway.
func (g WooGateway) DisplayTitle() string {
	if g.Title != "" {
		return g.Title
	}
	if g.MethodTitle != "" {
		return g.MethodTitle
	}
	return g.ID
}

// === Backend API Request Types ===

// WooOrderRequest creates an order.
type WooOrderRequest struct {
	PaymentMethod      string        `json:"payment_method"`
	PaymentMethodTitle string        `json:"payment_method_title"`
	SetPaid            bool          `json:"set_paid"`
	Billing            WooAddress    `json:"billing"`
	Shipping           WooAddress    `json:"shipping"`
	LineItems          []WooLineItem `json:"line_items"`
	Meta               []WooMeta     `json:"meta_data"`
}

// WooOrderUpdate patches an order. Pointer/nil fields are omitted so the
// backend only sees what the caller wants to change.
type WooOrderUpdate struct {
	Status        string    `json:"status,omitempty"`
	SetPaid       *bool     `json:"set_paid,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	Meta          []WooMeta `json:"meta_data,omitempty"`
}

// WooErrorResponse is a backend API error body.
type WooErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// PayPage is the raw result of fetching the hosted pay-for-order page.
// Redirects are not followed so Location can be inspected by the resolver.
type PayPage struct {
	StatusCode int
	Location   string
	Body       string
}

// IsRedirect reports whether the page responded with a 301-308 redirect.
func (p *PayPage) IsRedirect() bool {
	return p.StatusCode >= 301 && p.StatusCode <= 308 && p.Location != ""
}
