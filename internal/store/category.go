package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// UpsertCategory inserts or updates a category by slug. The scrape timestamp
// and product count survive an upsert so a navigation refresh never resets
// freshness bookkeeping.
func (s *Store) UpsertCategory(ctx context.Context, c *Category) error {
	now := time.Now().UnixMilli()
	if c.CreatedAt == 0 {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO categories (slug, name, url, navigation_slug, last_scraped_at, product_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			name = excluded.name,
			url = excluded.url,
			navigation_slug = excluded.navigation_slug,
			updated_at = excluded.updated_at`,
		c.Slug, c.Name, c.URL, c.NavigationSlug, c.LastScrapedAt, c.ProductCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert category %s: %w", c.Slug, err)
	}
	return nil
}

// GetCategory retrieves a category by slug. Returns nil, nil when absent.
func (s *Store) GetCategory(ctx context.Context, slug string) (*Category, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT slug, name, url, navigation_slug, last_scraped_at, product_count, created_at, updated_at
		FROM categories WHERE slug = ?`, slug)
	return scanCategory(row)
}

// ListCategories returns all known categories, most recently updated first.
func (s *Store) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT slug, name, url, navigation_slug, last_scraped_at, product_count, created_at, updated_at
		FROM categories ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCategories(rows)
}

// StaleCategories returns up to limit categories whose last scrape is missing
// or older than the cutoff, oldest first with never-scraped first.
func (s *Store) StaleCategories(ctx context.Context, threshold time.Duration, limit int) ([]*Category, error) {
	cutoff := time.Now().Add(-threshold).UnixMilli()
	rows, err := s.DB.QueryContext(ctx,
		`SELECT slug, name, url, navigation_slug, last_scraped_at, product_count, created_at, updated_at
		FROM categories
		WHERE last_scraped_at IS NULL OR last_scraped_at < ?
		ORDER BY last_scraped_at ASC NULLS FIRST
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCategories(rows)
}

// MarkCategoryScraped records a successful scrape: sets last_scraped_at and
// recomputes product_count from persisted rows.
func (s *Store) MarkCategoryScraped(ctx context.Context, slug string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE categories SET
			last_scraped_at = ?,
			product_count = (SELECT COUNT(*) FROM products WHERE category_slug = ?),
			updated_at = ?
		WHERE slug = ?`, now, slug, now, slug)
	if err != nil {
		return fmt.Errorf("store: mark category scraped %s: %w", slug, err)
	}
	return nil
}

// RecountProducts refreshes product_count for a category without touching
// the freshness timestamp.
func (s *Store) RecountProducts(ctx context.Context, slug string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE categories SET
			product_count = (SELECT COUNT(*) FROM products WHERE category_slug = ?),
			updated_at = ?
		WHERE slug = ?`, slug, time.Now().UnixMilli(), slug)
	return err
}

// CountCategories returns the number of known categories.
func (s *Store) CountCategories(ctx context.Context) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count)
	return count, err
}

func scanCategory(row *sql.Row) (*Category, error) {
	var c Category
	err := row.Scan(&c.Slug, &c.Name, &c.URL, &c.NavigationSlug,
		&c.LastScrapedAt, &c.ProductCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan category: %w", err)
	}
	return &c, nil
}

func collectCategories(rows *sql.Rows) ([]*Category, error) {
	var cats []*Category
	for rows.Next() {
		var c Category
		err := rows.Scan(&c.Slug, &c.Name, &c.URL, &c.NavigationSlug,
			&c.LastScrapedAt, &c.ProductCount, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, &c)
	}
	return cats, rows.Err()
}
