package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// DetailScraper extracts a product detail page. The caller is responsible
// for navigating the resource to the product's canonical URL first.
type DetailScraper struct {
	sel    Selectors
	logger *slog.Logger
}

// NewDetailScraper creates a detail scraper with the given selectors.
func NewDetailScraper(sel Selectors, logger *slog.Logger) *DetailScraper {
	sel.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &DetailScraper{sel: sel, logger: logger}
}

// Product captures the current page and extracts the detail record for
// sourceID.
func (d *DetailScraper) Product(ctx context.Context, res session.Resource, sourceID string) (*store.Product, error) {
	html, err := res.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: detail %s: %v", ErrExtraction, sourceID, err)
	}
	doc, err := parseDoc(html)
	if err != nil {
		return nil, fmt.Errorf("%w: parse detail %s: %v", ErrExtraction, sourceID, err)
	}

	base := res.CurrentURL()
	now := time.Now().UnixMilli()

	title := strings.TrimSpace(doc.Find(d.sel.Title).First().Text())
	amount, currency := splitPrice(doc.Find(d.sel.Price).First().Text())
	description := strings.TrimSpace(doc.Find(d.sel.Description).First().Text())

	var imageURL string
	if src, ok := doc.Find(d.sel.Image).First().Attr("src"); ok {
		imageURL = resolveURL(base, src)
	}

	p := &store.Product{
		SourceID:        sourceID,
		Title:           title,
		Price:           amount,
		Currency:        currency,
		ImageURL:        imageURL,
		SourceURL:       base,
		Description:     description,
		DetailScrapedAt: &now,
		LastScrapedAt:   now,
	}

	d.logger.Debug("scrape: detail extracted", "source_id", sourceID, "title", title)
	return p, nil
}
