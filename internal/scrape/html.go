package scrape

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// parseDoc builds a goquery document from page HTML.
func parseDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// slugFromURL derives a category slug from the last path segment of a link.
func slugFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}
	segs := strings.Split(path, "/")
	return segs[len(segs)-1]
}

// resolveURL resolves href against the page's location.
func resolveURL(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// splitPrice separates a rendered price like "€ 12,95" or "$9.99" into a
// currency code and a bare amount. Unrecognised symbols are kept verbatim
// in the currency field.
func splitPrice(raw string) (amount, currency string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}

	symbols := map[string]string{
		"€": "EUR", "$": "USD", "£": "GBP", "¥": "JPY",
	}

	var sym strings.Builder
	var rest strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) || r == '.' || r == ',' {
			rest.WriteRune(r)
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		sym.WriteRune(r)
	}

	amount = rest.String()
	currency = strings.TrimSpace(sym.String())
	if code, ok := symbols[currency]; ok {
		currency = code
	}
	return amount, currency
}
