package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// CategoryScraper extracts product listings from a category page.
type CategoryScraper struct {
	sel    Selectors
	logger *slog.Logger
}

// NewCategoryScraper creates a category scraper with the given selectors.
func NewCategoryScraper(sel Selectors, logger *slog.Logger) *CategoryScraper {
	sel.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &CategoryScraper{sel: sel, logger: logger}
}

// Products captures the current page and extracts up to limit product cards.
// The bool reports whether the page still offers a load-more affordance.
func (c *CategoryScraper) Products(ctx context.Context, res session.Resource, categorySlug string, limit int) ([]store.Product, bool, error) {
	html, err := res.HTML(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: category %s: %v", ErrExtraction, categorySlug, err)
	}
	doc, err := parseDoc(html)
	if err != nil {
		return nil, false, fmt.Errorf("%w: parse category %s: %v", ErrExtraction, categorySlug, err)
	}

	base := res.CurrentURL()
	now := time.Now().UnixMilli()
	var products []store.Product

	doc.Find(c.sel.ProductCard).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if limit > 0 && len(products) >= limit {
			return false
		}
		p, ok := c.product(s, base, categorySlug, now)
		if !ok {
			return true
		}
		products = append(products, p)
		return true
	})

	hasMore := doc.Find(c.sel.LoadMore).Length() > 0

	c.logger.Debug("scrape: category extracted",
		"category", categorySlug, "products", len(products), "has_more", hasMore)
	return products, hasMore, nil
}

// product extracts one card. Cards without a stable source id are dropped:
// upsert-by-natural-key needs the key.
func (c *CategoryScraper) product(s *goquery.Selection, base, categorySlug string, now int64) (store.Product, bool) {
	sourceID, ok := s.Attr(c.sel.SourceIDAttr)
	if !ok || sourceID == "" {
		if href, found := s.Find(c.sel.Link).Attr("href"); found {
			sourceID = slugFromURL(href)
		}
	}
	if sourceID == "" {
		return store.Product{}, false
	}

	title := strings.TrimSpace(s.Find(c.sel.Title).Text())
	amount, currency := splitPrice(s.Find(c.sel.Price).Text())

	var imageURL, sourceURL string
	if src, found := s.Find(c.sel.Image).Attr("src"); found {
		imageURL = resolveURL(base, src)
	}
	if href, found := s.Find(c.sel.Link).Attr("href"); found {
		sourceURL = resolveURL(base, href)
	}

	return store.Product{
		SourceID:      sourceID,
		CategorySlug:  categorySlug,
		Title:         title,
		Price:         amount,
		Currency:      currency,
		ImageURL:      imageURL,
		SourceURL:     sourceURL,
		LastScrapedAt: now,
	}, true
}
