// Package scrape turns rendered pages into structured records. The engine
// and the job processor depend on the three collaborator interfaces; the
// implementations here capture the page HTML through the session's
// automation resource and parse it with CSS selectors.
//
// Selector correctness against any particular site's markup is the
// deployment's concern: selectors are configuration, not code.
package scrape

import (
	"context"
	"errors"

	"github.com/hazyhaar/vitrine/internal/session"
	"github.com/hazyhaar/vitrine/internal/store"
)

// ErrExtraction wraps scraper failures so callers can classify them.
var ErrExtraction = errors.New("scrape: extraction failed")

// Navigation extracts the site's category tree from its navigation menu.
type Navigation interface {
	Menu(ctx context.Context, res session.Resource) ([]store.Category, error)
}

// Category extracts a bounded page of products from a category listing.
// The bool reports whether a further page appears to be available.
type Category interface {
	Products(ctx context.Context, res session.Resource, categorySlug string, limit int) ([]store.Product, bool, error)
}

// Detail extracts one product's detail page.
type Detail interface {
	Product(ctx context.Context, res session.Resource, sourceID string) (*store.Product, error)
}

// Selectors names the DOM hooks the default scrapers use.
type Selectors struct {
	NavItem      string `yaml:"nav_item"`
	NavLink      string `yaml:"nav_link"`
	ProductCard  string `yaml:"product_card"`
	Title        string `yaml:"title"`
	Price        string `yaml:"price"`
	Image        string `yaml:"image"`
	Link         string `yaml:"link"`
	SourceIDAttr string `yaml:"source_id_attr"`
	LoadMore     string `yaml:"load_more"`
	Description  string `yaml:"description"`
}

// DefaultSelectors returns a selector set that matches common storefront
// markup. Deployments override per target site.
func DefaultSelectors() Selectors {
	return Selectors{
		NavItem:      "nav .category-menu a",
		NavLink:      "href",
		ProductCard:  ".product-card",
		Title:        ".product-title",
		Price:        ".product-price",
		Image:        "img",
		Link:         "a",
		SourceIDAttr: "data-product-id",
		LoadMore:     ".load-more, button[data-load-more]",
		Description:  ".product-description",
	}
}

func (s *Selectors) defaults() {
	d := DefaultSelectors()
	if s.NavItem == "" {
		s.NavItem = d.NavItem
	}
	if s.NavLink == "" {
		s.NavLink = d.NavLink
	}
	if s.ProductCard == "" {
		s.ProductCard = d.ProductCard
	}
	if s.Title == "" {
		s.Title = d.Title
	}
	if s.Price == "" {
		s.Price = d.Price
	}
	if s.Image == "" {
		s.Image = d.Image
	}
	if s.Link == "" {
		s.Link = d.Link
	}
	if s.SourceIDAttr == "" {
		s.SourceIDAttr = d.SourceIDAttr
	}
	if s.LoadMore == "" {
		s.LoadMore = d.LoadMore
	}
	if s.Description == "" {
		s.Description = d.Description
	}
}
