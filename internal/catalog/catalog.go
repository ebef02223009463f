// Package catalog provides read-only access to the static product list.
// The dataset is embedded at build time and immutable for the life of the
// process; all order, payment, and stock state lives in the remote backend.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed products.json
var productsJSON []byte

// Product is a catalog entry. Price fields are nullable: a nil Price means
// upstream pricing is absent and checkout must supply a line-total override.
// WooCommerceID is the backend product identifier; when zero, ID is used.
type Product struct {
	ID            int      `json:"id"`
	WooCommerceID int      `json:"woocommerceId,omitempty"`
	Slug          string   `json:"slug"`
	Title         string   `json:"title"`
	Category      string   `json:"category"`
	Price         *float64 `json:"price"`
	DiscountPrice *float64 `json:"discountPrice"`
	Image         string   `json:"image"`
	Description   string   `json:"description"`
	Brand         string   `json:"brand,omitempty"`
}

// BackendID returns the product id to use against the commerce backend.
func (p Product) BackendID() int {
	if p.WooCommerceID != 0 {
		return p.WooCommerceID
	}
	return p.ID
}

// Catalog is an immutable product lookup loaded once at process start.
type Catalog struct {
	products []Product
	bySlug   map[string]int // index into products
}

// Load parses the embedded product dataset.
func Load() (*Catalog, error) {
	return loadFrom(productsJSON)
}

func loadFrom(data []byte) (*Catalog, error) {
	var products []Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("parsing product dataset: %w", err)
	}

	bySlug := make(map[string]int, len(products))
	for i, p := range products {
		if p.Slug == "" {
			return nil, fmt.Errorf("product %d has no slug", p.ID)
		}
		if _, dup := bySlug[p.Slug]; dup {
			return nil, fmt.Errorf("duplicate product slug %q", p.Slug)
		}
		if p.Price != nil && p.DiscountPrice != nil && *p.DiscountPrice > *p.Price {
			return nil, fmt.Errorf("product %q: discount price above price", p.Slug)
		}
		bySlug[p.Slug] = i
	}

	return &Catalog{products: products, bySlug: bySlug}, nil
}

// All returns every product.
func (c *Catalog) All() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// BySlug looks up a product by its URL slug.
// A miss returns ok=false, never a partial or default product.
func (c *Catalog) BySlug(slug string) (Product, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// ByCategory returns all products in a category.
func (c *Catalog) ByCategory(category string) []Product {
	var out []Product
	for _, p := range c.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// ByBrand returns products whose title carries the brand tag.
// Brand is matched case-insensitively against the title, matching how the
// dataset tags brands.
func (c *Catalog) ByBrand(brand string) []Product {
	b := strings.ToLower(brand)
	var out []Product
	for _, p := range c.products {
		if strings.Contains(strings.ToLower(p.Title), b) {
			out = append(out, p)
		}
	}
	return out
}

// ByCategoryAndBrand filters by category and brand together.
func (c *Catalog) ByCategoryAndBrand(category, brand string) []Product {
	b := strings.ToLower(brand)
	var out []Product
	for _, p := range c.products {
		if p.Category == category && strings.Contains(strings.ToLower(p.Title), b) {
			out = append(out, p)
		}
	}
	return out
}

// Search returns products whose title contains the query, case-insensitive.
// An empty or whitespace query returns nothing.
func (c *Catalog) Search(query string) []Product {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var out []Product
	for _, p := range c.products {
		if strings.Contains(strings.ToLower(p.Title), q) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of products.
func (c *Catalog) Len() int {
	return len(c.products)
}
