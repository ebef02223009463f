package payurl

import (
	htmlesc "html"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// =============================================================================
// HTML URL EXTRACTION
// =============================================================================
//
// The backend's gateway plugin does not expose its redirect URL through any
// stable structured API. Depending on plugin version and timing it shows up
// as an HTTP redirect, a server-rendered <form>, an inline script, or an
// embedded JSON blob. Each heuristic lives in its own extractor so it can
// be tested against HTML fixtures independently; the pipeline runs them in
// confidence order and the first match wins.
// =============================================================================

// extractor scans an HTML body for a gateway URL. A non-empty return is a
// normalized absolute URL on a host other than backendHost.
type extractor func(rule Rule, backendHost, body string) string

// extractors is the scan pipeline, strongest signal first.
var extractors = []extractor{
	extractIntentURL,
	extractPaymentJSONField,
	extractMetaRefresh,
	extractMarkedFormOrAnchor,
	extractLocationAssignment,
	extractDataRedirect,
	extractAnyJSONRedirect,
	extractKeywordURL,
}

// extractFromHTML runs the pipeline over a pay-page body.
func extractFromHTML(rule Rule, backendHost, body string) string {
	for _, ex := range extractors {
		if u := ex(rule, backendHost, body); u != "" {
			return u
		}
	}
	return ""
}

// === Individual extractors ===

// extractIntentURL matches the gateway's hosted payment page URL shape
// anywhere in the body, including inside escaped JSON.
func extractIntentURL(rule Rule, backendHost, body string) string {
	if rule.IntentPattern == nil {
		return ""
	}
	if m := rule.IntentPattern.FindString(cleanBody(body)); m != "" {
		return normalizeCandidate(m, backendHost)
	}
	return ""
}

var paymentFieldPattern = regexp.MustCompile(
	`"(?:payment_url|redirect_url|checkout_url|pay_url)"\s*:\s*"([^"]+)"`)

// extractPaymentJSONField finds well-known payment URL fields in embedded
// JSON and keeps ones that point at the gateway's domain.
func extractPaymentJSONField(rule Rule, backendHost, body string) string {
	for _, m := range paymentFieldPattern.FindAllStringSubmatch(body, -1) {
		u := normalizeCandidate(m[1], backendHost)
		if u != "" && rule.MarkerIn(u) {
			return u
		}
	}
	return ""
}

// extractMetaRefresh finds a <meta http-equiv="refresh"> redirect to
// another host.
func extractMetaRefresh(rule Rule, backendHost, body string) string {
	return walkNodes(body, func(n *html.Node) string {
		if n.Data != "meta" || !strings.EqualFold(attr(n, "http-equiv"), "refresh") {
			return ""
		}
		content := attr(n, "content")
		// content is "N;url=target"
		if i := strings.Index(strings.ToLower(content), "url="); i >= 0 {
			return normalizeCandidate(content[i+4:], backendHost)
		}
		return ""
	})
}

// extractMarkedFormOrAnchor finds a form action or anchor href whose URL
// carries the gateway's name.
func extractMarkedFormOrAnchor(rule Rule, backendHost, body string) string {
	return walkNodes(body, func(n *html.Node) string {
		var target string
		switch n.Data {
		case "form":
			target = attr(n, "action")
		case "a":
			target = attr(n, "href")
		default:
			return ""
		}
		u := normalizeCandidate(target, backendHost)
		if u != "" && rule.MarkerIn(u) {
			return u
		}
		return ""
	})
}

var locationPattern = regexp.MustCompile(
	`(?:window\.location(?:\.href)?|location\.href)\s*=\s*["']([^"']+)["']`)

// extractLocationAssignment finds an inline-script navigation.
func extractLocationAssignment(rule Rule, backendHost, body string) string {
	for _, m := range locationPattern.FindAllStringSubmatch(body, -1) {
		if u := normalizeCandidate(m[1], backendHost); u != "" {
			return u
		}
	}
	return ""
}

// extractDataRedirect finds a data-redirect attribute, used by checkout
// scripts that navigate after a client-side confirmation step.
func extractDataRedirect(rule Rule, backendHost, body string) string {
	return walkNodes(body, func(n *html.Node) string {
		return normalizeCandidate(attr(n, "data-redirect"), backendHost)
	})
}

var anyRedirectFieldPattern = regexp.MustCompile(
	`"[A-Za-z_]*(?:redirect|url|link)[A-Za-z_]*"\s*:\s*"(https?:[^"]+)"`)

// extractAnyJSONRedirect finds any JSON field whose name suggests a
// redirect and whose value is an absolute off-host URL.
func extractAnyJSONRedirect(rule Rule, backendHost, body string) string {
	for _, m := range anyRedirectFieldPattern.FindAllStringSubmatch(body, -1) {
		if u := normalizeCandidate(m[1], backendHost); u != "" {
			return u
		}
	}
	return ""
}

var quotedURLPattern = regexp.MustCompile(`["'](https?://[^"'\s<>]+)["']`)

var paymentKeywords = []string{"pay", "payment", "checkout", "invoice", "intent", "transaction"}

// extractKeywordURL is the last resort: any quoted absolute off-host URL
// whose path or query mentions payment.
func extractKeywordURL(rule Rule, backendHost, body string) string {
	for _, m := range quotedURLPattern.FindAllStringSubmatch(cleanBody(body), -1) {
		u := normalizeCandidate(m[1], backendHost)
		if u == "" {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil {
			continue
		}
		rest := strings.ToLower(parsed.Path + "?" + parsed.RawQuery)
		for _, kw := range paymentKeywords {
			if strings.Contains(rest, kw) {
				return u
			}
		}
	}
	return ""
}

// === Helpers ===

// cleanBody undoes JSON slash-escaping so URL patterns match inside
// embedded JSON blobs too.
func cleanBody(body string) string {
	return strings.ReplaceAll(body, `\/`, "/")
}

// normalizeCandidate cleans up a raw candidate and returns it only when
// it is an absolute URL on a host other than the backend's.
func normalizeCandidate(raw, backendHost string) string {
	raw = strings.TrimSpace(htmlesc.UnescapeString(strings.ReplaceAll(raw, `\/`, "/")))
	raw = strings.Trim(raw, `'"`)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if sameHost(u.Host, backendHost) {
		return ""
	}
	return raw
}

// sameHost compares hosts ignoring case and a leading "www.".
func sameHost(a, b string) bool {
	trim := func(h string) string {
		h = strings.ToLower(h)
		if i := strings.Index(h, ":"); i >= 0 {
			h = h[:i]
		}
		return strings.TrimPrefix(h, "www.")
	}
	return trim(a) == trim(b)
}

// walkNodes parses the body and applies visit to every element node,
// returning the first non-empty result. Parse errors yield "".
func walkNodes(body string, visit func(*html.Node) string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return ""
	}
	var walk func(*html.Node) string
	walk = func(n *html.Node) string {
		if n.Type == html.ElementNode {
			if r := visit(n); r != "" {
				return r
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if r := walk(c); r != "" {
				return r
			}
		}
		return ""
	}
	return walk(doc)
}

// attr returns the value of the named attribute on an element node.
func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}
