package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertProduct inserts or updates a product by source_id. Detail fields are
// preserved on upsert so a listing refresh never erases a scraped detail.
func (s *Store) UpsertProduct(ctx context.Context, p *Product) error {
	if p.LastScrapedAt == 0 {
		p.LastScrapedAt = time.Now().UnixMilli()
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO products (source_id, category_slug, title, price, currency,
			image_url, source_url, description, detail_scraped_at, last_scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id) DO UPDATE SET
			category_slug = excluded.category_slug,
			title = excluded.title,
			price = excluded.price,
			currency = excluded.currency,
			image_url = excluded.image_url,
			source_url = excluded.source_url,
			last_scraped_at = excluded.last_scraped_at`,
		p.SourceID, p.CategorySlug, p.Title, p.Price, p.Currency,
		p.ImageURL, p.SourceURL, p.Description, p.DetailScrapedAt, p.LastScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert product %s: %w", p.SourceID, err)
	}
	return nil
}

// SaveProductDetail records the detail fields of a product and stamps
// detail_scraped_at.
func (s *Store) SaveProductDetail(ctx context.Context, p *Product) error {
	now := time.Now().UnixMilli()
	p.DetailScrapedAt = &now

	_, err := s.DB.ExecContext(ctx,
		`UPDATE products SET description = ?, price = ?, currency = ?,
			image_url = ?, detail_scraped_at = ?, last_scraped_at = ?
		WHERE source_id = ?`,
		p.Description, p.Price, p.Currency, p.ImageURL, now, now, p.SourceID)
	if err != nil {
		return fmt.Errorf("store: save product detail %s: %w", p.SourceID, err)
	}
	return nil
}

// GetProduct retrieves a product by source id. Returns nil, nil when absent.
func (s *Store) GetProduct(ctx context.Context, sourceID string) (*Product, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT source_id, category_slug, title, price, currency,
			image_url, source_url, description, detail_scraped_at, last_scraped_at
		FROM products WHERE source_id = ?`, sourceID)

	var p Product
	err := row.Scan(&p.SourceID, &p.CategorySlug, &p.Title, &p.Price, &p.Currency,
		&p.ImageURL, &p.SourceURL, &p.Description, &p.DetailScrapedAt, &p.LastScrapedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	return &p, nil
}

// RecentProducts returns up to limit products for a category, most recently
// scraped first.
func (s *Store) RecentProducts(ctx context.Context, categorySlug string, limit int) ([]Product, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT source_id, category_slug, title, price, currency,
			image_url, source_url, description, detail_scraped_at, last_scraped_at
		FROM products
		WHERE category_slug = ?
		ORDER BY last_scraped_at DESC
		LIMIT ?`, categorySlug, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		err := rows.Scan(&p.SourceID, &p.CategorySlug, &p.Title, &p.Price, &p.Currency,
			&p.ImageURL, &p.SourceURL, &p.Description, &p.DetailScrapedAt, &p.LastScrapedAt)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// CountAllProducts returns the number of persisted products across the
// whole catalog.
func (s *Store) CountAllProducts(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}

// CountProducts returns the number of persisted products for a category.
func (s *Store) CountProducts(ctx context.Context, categorySlug string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE category_slug = ?`, categorySlug).Scan(&count)
	return count, err
}
