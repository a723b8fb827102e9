// Package storage persists experience records in SQLite.
//
// The store is the record collaborator of the retrieval engine: it loads
// eligible candidates, fetches single records, applies conditional updates to
// the embedding fields and increments popularity counters. Ranking happens in
// Go, outside the database.
//
// # Schema
//
// A single experiences table holds content, keywords (JSON text), the
// embedding (little-endian float64 BLOB) and lifecycle state. A CHECK
// constraint guarantees has_embedding and the embedding payload never
// disagree:
//
//	CHECK ((has_embedding = 1 AND embedding IS NOT NULL)
//	    OR (has_embedding = 0 AND embedding IS NULL))
//
// Schema changes are versioned migrations ordered by semantic version and
// recorded in schema_version. ApplyMigrations runs on open; RollbackMigration
// undoes the most recent one.
//
// # Usage
//
//	store, err := storage.NewSQLiteStorage("experiences.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	exp := &types.Experience{Title: "...", Problem: "...", Solution: "..."}
//	if err := store.CreateExperience(ctx, exp); err != nil {
//	    return err
//	}
//
//	candidates, err := store.ListEligible(ctx)
//
// # Conditional Embedding Writes
//
// SetEmbedding only writes when has_embedding is currently false and
// ClearEmbedding only when it is true. Both report whether a row changed, so
// concurrent writers can detect that another writer won:
//
//	written, err := store.SetEmbedding(ctx, id, vec, "text-embedding-3-small")
//	if err == nil && !written {
//	    // already embedded
//	}
//
// A record that does not exist yields ErrNotFound.
//
// # Build Tags
//
// The default build uses modernc.org/sqlite, a pure Go driver that needs no C
// compiler. Building with the sqlite_cgo tag switches to
// github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
//
// DriverName and BuildMode report which driver was compiled in.
package storage
