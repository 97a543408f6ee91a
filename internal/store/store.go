// Package store provides the data access layer for the vitrine catalog.
//
// One SQLite database holds categories, products, session records, and job
// rows. The interactive path and the background workers share it, so every
// write is an upsert by natural key (product by source_id, category by slug)
// and safe to repeat.
package store

import "database/sql"

// Store wraps the catalog database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}
