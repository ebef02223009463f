// Package payurl resolves the best payment redirect URL for an order:
// structured order metadata first, then a scrape of the backend's hosted
// pay-for-order page, then a constructed fallback URL. External gateway
// URLs are strictly preferred; a backend-hosted page is reported but
// never chosen over the constructed fallback.
package payurl

import (
	"regexp"
	"strings"
)

// Rule carries the per-gateway knowledge the extractors need. Gateways
// whose plugins publish their redirect URL only through server-rendered
// HTML get an entry here; everything else resolves through metadata and
// the fallback URL alone.
type Rule struct {
	// ID is the backend payment method id.
	ID string

	// Markers are lowercase substrings that identify the gateway in
	// method ids, titles, metadata values, and candidate URLs.
	Markers []string

	// MetaKeys are metadata keys the gateway plugin is known to write
	// its redirect URL under, in priority order.
	MetaKeys []string

	// IntentPattern matches the gateway's hosted payment page URL
	// directly in HTML. May be nil.
	IntentPattern *regexp.Regexp
}

// Matches reports whether the rule applies to a payment method, checking
// the raw id and the resolved human title.
func (r Rule) Matches(methodID, methodTitle string) bool {
	id := strings.ToLower(methodID)
	title := strings.ToLower(methodTitle)
	for _, m := range r.Markers {
		if strings.Contains(id, m) || strings.Contains(title, m) {
			return true
		}
	}
	return false
}

// MarkerIn reports whether any of the rule's markers appears in s.
func (r Rule) MarkerIn(s string) bool {
	s = strings.ToLower(s)
	for _, m := range r.Markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// rules is the registry of gateways with scrape support. Ziina is the
// one gateway deployed today; new gateways extend this table rather than
// the resolver.
var rules = []Rule{
	{
		ID:      "ziina",
		Markers: []string{"ziina"},
		MetaKeys: []string{
			"_ziina_payment_url",
			"ziina_payment_url",
			"_ziina_payment_link",
		},
		IntentPattern: regexp.MustCompile(`https://pay\.ziina\.com/[A-Za-z0-9_./-]+`),
	},
}

// commonMetaKeys are gateway-agnostic metadata keys checked for every
// order, in priority order, before any per-gateway keys.
var commonMetaKeys = []string{
	"_payment_url",
	"payment_url",
	"_payment_link",
	"payment_link",
	"_checkout_payment_url",
	"_pay_url",
	"_transaction_url",
}

// RuleFor returns the rule matching a payment method, if any. The
// orchestrator uses it to decide whether an order's pay page deserves a
// warm-up request.
func RuleFor(methodID, methodTitle string) (Rule, bool) {
	for _, r := range rules {
		if r.Matches(methodID, methodTitle) {
			return r, true
		}
	}
	return Rule{}, false
}

// metaKeysFor returns the prioritized metadata key list for an order:
// common keys first, then the matched rule's gateway-specific keys.
func metaKeysFor(rule Rule, matched bool) []string {
	if !matched {
		return commonMetaKeys
	}
	keys := make([]string, 0, len(commonMetaKeys)+len(rule.MetaKeys))
	keys = append(keys, rule.MetaKeys...)
	keys = append(keys, commonMetaKeys...)
	return keys
}
