package store

// Category represents one browsable category of the mirrored site.
type Category struct {
	Slug           string `json:"slug"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	NavigationSlug string `json:"navigation_slug,omitempty"`
	LastScrapedAt  *int64 `json:"last_scraped_at,omitempty"` // ms
	ProductCount   int    `json:"product_count"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// Product represents one extracted product, keyed by the site's stable
// source identifier.
type Product struct {
	SourceID        string `json:"sourceId"`
	CategorySlug    string `json:"categorySlug"`
	Title           string `json:"title"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	ImageURL        string `json:"imageUrl"`
	SourceURL       string `json:"sourceUrl"`
	Description     string `json:"description,omitempty"`
	DetailScrapedAt *int64 `json:"detailScrapedAt,omitempty"` // ms
	LastScrapedAt   int64  `json:"lastScrapedAt"`
}

// HasDetail reports whether the product's detail page has been scraped.
func (p *Product) HasDetail() bool {
	return p.DetailScrapedAt != nil
}

// SessionRecord is the persisted view of a live session, kept for
// observability only. The authoritative state lives in the registry.
type SessionRecord struct {
	SessionID       string `json:"session_id"`
	CurrentURL      string `json:"current_url"`
	Status          string `json:"status"`
	ProductsScraped int    `json:"products_scraped"`
	CreatedAt       int64  `json:"created_at"`
	UpdatedAt       int64  `json:"updated_at"`
}
