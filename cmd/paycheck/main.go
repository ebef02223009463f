// Command paycheck is a diagnostic tool for the payment URL flow: it
// creates a test order against the configured backend (or takes an
// existing order id) and runs payment URL resolution, printing each
// stage. Used to verify a deployment's gateway plugin end to end.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/payurl"
	"storefront/internal/woocommerce"
)

func main() {
	var (
		orderID  = flag.Int("order", 0, "resolve an existing order id instead of creating one")
		method   = flag.String("method", "ziina", "payment method id for the test order")
		product  = flag.Int("product", 0, "backend product id for the test order")
		qty      = flag.Int("qty", 1, "test order quantity")
		orderKey = flag.String("key", "", "known order key, skips backend key lookup")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	lvl := slog.LevelInfo
	if *verbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	if err := run(logger, *orderID, *orderKey, *method, *product, *qty); err != nil {
		fmt.Fprintf(os.Stderr, "paycheck: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, orderID int, orderKey, method string, productID, qty int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	client, err := woocommerce.New(woocommerce.Config{
		BaseURL:        cfg.Backend.BaseURL,
		ConsumerKey:    cfg.Backend.ConsumerKey,
		ConsumerSecret: cfg.Backend.ConsumerSecret,
	})
	if err != nil {
		return err
	}

	if orderID == 0 {
		if productID == 0 {
			return fmt.Errorf("either -order or -product is required")
		}
		summary, err := createTestOrder(ctx, client, logger, method, productID, qty)
		if err != nil {
			return fmt.Errorf("creating test order: %w", err)
		}
		logger.Info("test order created",
			"orderID", summary.ID,
			"total", summary.Total,
			"orderKey", summary.OrderKey)
		orderID = summary.ID
		orderKey = summary.OrderKey
	}

	resolver := payurl.New(client, logger)
	res, err := resolver.Resolve(ctx, orderID, orderKey)
	if err != nil {
		return fmt.Errorf("resolving payment url: %w", err)
	}

	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))

	if res.RedirectURL == "" {
		return fmt.Errorf("no redirect url resolved for order %d", orderID)
	}
	return nil
}

// createTestOrder places a clearly-marked throwaway order so the flow can
// be exercised against the live backend.
func createTestOrder(ctx context.Context, client *woocommerce.Client, logger *slog.Logger, method string, productID, qty int) (*model.OrderSummary, error) {
	orders := checkout.New(client, logger)
	return orders.CreateOrder(ctx, &model.CheckoutRequest{
		ProductID:     productID,
		Quantity:      qty,
		PaymentMethod: method,
		Customer: model.Customer{
			FirstName: "Test",
			LastName:  "Order",
			Email:     "test-order@example.com",
			Phone:     "+971500000000",
			Address:   "1 Test Street",
			City:      "Dubai",
			State:     "DU",
			Postcode:  "00000",
			Country:   "AE",
		},
	})
}
