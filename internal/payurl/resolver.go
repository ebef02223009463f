package payurl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"storefront/internal/metrics"
	"storefront/internal/model"
	"storefront/internal/retry"
	"storefront/internal/woocommerce"
)

// Delays for the deep-resolution path. The gateway plugin writes its URL
// asynchronously after the warm-up request; the second scrape and the
// final order re-fetch give it time to land.
var (
	scrapeRetryDelay = 3 * time.Second
	refetchDelay     = 3500 * time.Millisecond
)

// Resolver locates the best payment redirect URL for an order.
type Resolver struct {
	client *woocommerce.Client
	log    *slog.Logger
}

// New creates a resolver backed by the given backend client.
func New(client *woocommerce.Client, log *slog.Logger) *Resolver {
	return &Resolver{client: client, log: log.With("component", "payurl")}
}

// Resolve returns the redirect target for an order. knownKey, when
// non-empty, guarantees a fallback URL up front so the buyer can always
// be sent somewhere even if every lookup below fails.
//
// Resolution never hard-fails once any order key is known: backend
// errors past that point degrade to the fallback URL. Without a key,
// a failed order fetch is the caller's problem.
func (r *Resolver) Resolve(ctx context.Context, orderID int, knownKey string) (*model.Resolution, error) {
	res := &model.Resolution{OrderKey: knownKey}
	if knownKey != "" {
		res.FallbackPayURL = r.client.PayForOrderURL(orderID, knownKey)
	}

	order, err := r.client.FetchOrder(ctx, orderID, knownKey)
	if err != nil {
		if knownKey == "" {
			return nil, err
		}
		// Key in hand: the constructed page is still actionable.
		r.log.Warn("order fetch failed, using fallback URL",
			"orderID", orderID, "error", err)
		return r.finish(res), nil
	}

	if key := order.Key(); key != "" {
		res.OrderKey = key
		res.FallbackPayURL = r.client.PayForOrderURL(orderID, key)
	}

	rule, ruled := RuleFor(order.PaymentMethod, order.PaymentMethodTitle)

	// S1: structured metadata and top-level order fields.
	r.scanOrder(order, rule, ruled, res)
	if res.PaymentURL != "" {
		metrics.Resolutions.WithLabelValues("metadata").Inc()
		return r.finish(res), nil
	}

	// S2: scrape the hosted pay page. Only worth it when the order key
	// is known (the page 404s without it) and the gateway is one whose
	// plugin renders its URL into that page.
	if res.OrderKey != "" && ruled {
		if u := r.scrape(ctx, orderID, res.OrderKey, rule); u != "" {
			res.PaymentURL = u
			res.IsGatewayURL = true
			metrics.Resolutions.WithLabelValues("scrape").Inc()
			return r.finish(res), nil
		}

		// Last chance: the warm-up may have populated metadata since
		// the first fetch.
		if err := retry.Sleep(ctx, refetchDelay); err == nil {
			if again, err := r.client.FetchOrder(ctx, orderID, ""); err == nil {
				r.scanOrder(again, rule, ruled, res)
				if res.PaymentURL != "" {
					metrics.Resolutions.WithLabelValues("metadata").Inc()
					return r.finish(res), nil
				}
			}
		}
	}

	if res.FallbackPayURL != "" {
		metrics.Resolutions.WithLabelValues("fallback").Inc()
	} else {
		metrics.Resolutions.WithLabelValues("none").Inc()
	}
	return r.finish(res), nil
}

// finish fills the derived fields: gateway URL wins outright, otherwise
// the constructed fallback, otherwise nothing. The backend-page flag only
// survives when a same-host candidate was ALL that was found; once a
// gateway URL exists the flags are mutually exclusive.
func (r *Resolver) finish(res *model.Resolution) *model.Resolution {
	switch {
	case res.PaymentURL != "":
		res.IsBackendPage = false
		res.BackendPageURL = ""
		res.RedirectURL = res.PaymentURL
	case res.FallbackPayURL != "":
		res.RedirectURL = res.FallbackPayURL
	}
	return res
}

// scanOrder checks order metadata and top-level fields for URL candidates.
// Off-host candidates become the gateway URL; same-host candidates are
// recorded as the backend page but never chosen as the redirect.
func (r *Resolver) scanOrder(order *woocommerce.WooOrder, rule Rule, ruled bool, res *model.Resolution) {
	// Prioritized known keys first.
	for _, key := range metaKeysFor(rule, ruled) {
		if r.classify(order.MetaString(key), res) {
			return
		}
	}

	// Then any metadata value that is itself an absolute URL; only after
	// that, values mentioning the gateway with a URL buried inside. Two
	// passes so a plain URL anywhere outranks every buried one.
	for _, m := range order.Meta {
		if v := m.Text(); isAbsoluteURL(v) && r.classify(v, res) {
			return
		}
	}
	if ruled {
		for _, m := range order.Meta {
			v := m.Text()
			if v == "" || isAbsoluteURL(v) || !rule.MarkerIn(v) {
				continue
			}
			if u := firstURLIn(v); u != "" && r.classify(u, res) {
				return
			}
		}
	}

	// Finally, top-level fields some backend versions expose.
	for _, v := range []string{order.PaymentURL, order.CheckoutPaymentURL} {
		if r.classify(v, res) {
			return
		}
	}
}

// classify records a candidate URL on the resolution. It returns true
// when the candidate is a gateway URL, ending the scan; a same-host
// candidate is noted and the scan continues looking for something better.
func (r *Resolver) classify(raw string, res *model.Resolution) bool {
	raw = strings.TrimSpace(raw)
	if !isAbsoluteURL(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if sameHost(u.Host, r.client.Host()) {
		if res.BackendPageURL == "" {
			res.BackendPageURL = raw
			res.IsBackendPage = true
		}
		return false
	}
	res.PaymentURL = raw
	res.IsGatewayURL = true
	return true
}

// scrape fetches the hosted pay page, looking for a redirect or an
// embedded gateway URL, with one delayed retry. All failures degrade to
// "not found".
func (r *Resolver) scrape(ctx context.Context, orderID int, orderKey string, rule Rule) string {
	var found string
	policy := retry.Schedule(scrapeRetryDelay)
	policy.Do(ctx, func(ctx context.Context) error {
		page, err := r.client.FetchOrderPayPage(ctx, orderID, orderKey)
		if err != nil {
			r.log.Debug("pay page fetch failed", "orderID", orderID, "error", err)
			return err
		}
		if page.IsRedirect() {
			if u := normalizeCandidate(page.Location, r.client.Host()); u != "" {
				found = u
				return nil
			}
		}
		if u := extractFromHTML(rule, r.client.Host(), page.Body); u != "" {
			found = u
			return nil
		}
		return errNoGatewayURL
	})
	return found
}

// errNoGatewayURL drives the scrape retry loop; it never escapes scrape.
var errNoGatewayURL = notFoundError("no gateway url in pay page")

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// firstURLIn pulls the first absolute URL out of a freeform value.
func firstURLIn(s string) string {
	i := strings.Index(s, "https://")
	if i < 0 {
		i = strings.Index(s, "http://")
	}
	if i < 0 {
		return ""
	}
	rest := s[i:]
	if j := strings.IndexAny(rest, `"' <>`); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
