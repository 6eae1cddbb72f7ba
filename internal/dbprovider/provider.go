// Package dbprovider abstracts the hiring decision engine's storage
// backend. Every internal/*/postgres repository is written directly
// against *pgxpool.Pool; Provider exists so cmd/ entrypoints can open
// one connection handle, run migrations against it, and hand the same
// pool to every repository constructor without each of them knowing
// whether the backend is PostgreSQL or SQLite.
package dbprovider

import "context"

// Provider is implemented by each supported storage backend.
type Provider interface {
	// Pool returns the underlying connection handle: *pgxpool.Pool for
	// PostgreSQL, *sqlx.DB for SQLite.
	Pool() interface{}

	// Health checks that the backend is reachable.
	Health(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}
