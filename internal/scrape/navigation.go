package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// NavScraper extracts the category tree from the site navigation.
type NavScraper struct {
	sel    Selectors
	logger *slog.Logger
}

// NewNavScraper creates a navigation scraper with the given selectors.
func NewNavScraper(sel Selectors, logger *slog.Logger) *NavScraper {
	sel.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &NavScraper{sel: sel, logger: logger}
}

// Menu captures the current page and extracts one category per navigation
// entry. Entries without a resolvable slug are skipped.
func (n *NavScraper) Menu(ctx context.Context, res session.Resource) ([]store.Category, error) {
	html, err := res.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: navigation: %v", ErrExtraction, err)
	}
	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("%w: parse navigation: %v", ErrExtraction, err)
	}

	base := res.CurrentURL()
	var cats []store.Category
	seen := make(map[string]bool)

	doc.Find(n.sel.NavItem).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr(n.sel.NavLink)
		if !ok {
			return
		}
		slug := slugFromURL(href)
		name := strings.TrimSpace(s.Text())
		if slug == "" || name == "" || seen[slug] {
			return
		}
		seen[slug] = true
		cats = append(cats, store.Category{
			Slug: slug,
			Name: name,
			URL:  resolveURL(base, href),
		})
	})

	n.logger.Debug("scrape: navigation extracted", "categories", len(cats))
	return cats, nil
}
