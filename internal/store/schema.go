package store

import "database/sql"

// Schema is the complete catalog schema.
const Schema = `
-- Categories discovered from the site navigation
CREATE TABLE IF NOT EXISTS categories (
    slug            TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    url             TEXT NOT NULL,
    navigation_slug TEXT NOT NULL DEFAULT '',
    last_scraped_at INTEGER,
    product_count   INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_categories_scraped ON categories(last_scraped_at);

-- Products, upserted by source_id
CREATE TABLE IF NOT EXISTS products (
    source_id         TEXT PRIMARY KEY,
    category_slug     TEXT NOT NULL REFERENCES categories(slug) ON DELETE CASCADE,
    title             TEXT NOT NULL,
    price             TEXT NOT NULL DEFAULT '',
    currency          TEXT NOT NULL DEFAULT '',
    image_url         TEXT NOT NULL DEFAULT '',
    source_url        TEXT NOT NULL DEFAULT '',
    description       TEXT NOT NULL DEFAULT '',
    detail_scraped_at INTEGER,
    last_scraped_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_slug, last_scraped_at DESC);

-- Background and on-demand scraping jobs
CREATE TABLE IF NOT EXISTS jobs (
    id            TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    target_type   TEXT NOT NULL,
    target_url    TEXT NOT NULL DEFAULT '',
    queue         TEXT NOT NULL,
    priority      INTEGER NOT NULL DEFAULT 2,
    triggered_by  TEXT NOT NULL DEFAULT 'system',
    status        TEXT NOT NULL DEFAULT 'pending',
    metadata_json TEXT NOT NULL DEFAULT '{}',
    error_log     TEXT,
    run_after     INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL,
    started_at    INTEGER,
    finished_at   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_jobs_queue_status ON jobs(queue, status, priority, created_at);

-- Session records (observability; the live registry is in memory)
CREATE TABLE IF NOT EXISTS sessions (
    session_id       TEXT PRIMARY KEY,
    current_url      TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'active',
    products_scraped INTEGER NOT NULL DEFAULT 0,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
