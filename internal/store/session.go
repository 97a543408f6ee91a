package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertSessionRecord persists a new session record with status active.
func (s *Store) InsertSessionRecord(ctx context.Context, sessionID, currentURL string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sessions (session_id, current_url, status, products_scraped, created_at, updated_at)
		VALUES (?, ?, 'active', 0, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			current_url = excluded.current_url,
			status = 'active',
			updated_at = excluded.updated_at`,
		sessionID, currentURL, now, now)
	if err != nil {
		return fmt.Errorf("store: insert session %s: %w", sessionID, err)
	}
	return nil
}

// UpdateSessionActivity records the session's current URL and scrape counter.
func (s *Store) UpdateSessionActivity(ctx context.Context, sessionID, currentURL string, productsScraped int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET current_url = ?, products_scraped = ?, updated_at = ?
		WHERE session_id = ?`,
		currentURL, productsScraped, time.Now().UnixMilli(), sessionID)
	return err
}

// UpdateSessionStatus sets the session's persisted status.
func (s *Store) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		status, time.Now().UnixMilli(), sessionID)
	return err
}

// GetSessionRecord retrieves a persisted session record. Returns nil, nil
// when absent.
func (s *Store) GetSessionRecord(ctx context.Context, sessionID string) (*SessionRecord, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT session_id, current_url, status, products_scraped, created_at, updated_at
		FROM sessions WHERE session_id = ?`, sessionID)

	var r SessionRecord
	err := row.Scan(&r.SessionID, &r.CurrentURL, &r.Status, &r.ProductsScraped, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &r, nil
}
