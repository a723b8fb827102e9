package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/experience-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
	// ErrCorruptVector is returned when a stored embedding cannot be decoded
	ErrCorruptVector = errors.New("corrupt vector blob")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db  *sql.DB
	now func() time.Time
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer; also keeps :memory: on one connection
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for migrations tooling
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// withTx runs fn in a transaction, committing on success
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) timestamp() time.Time {
	return s.now().UTC()
}

const experienceColumns = `
	id, title, problem, root_cause, solution, context, keywords,
	embedding, has_embedding, embedding_model, embedding_dim,
	publish_status, is_deleted, query_count, view_count,
	created_at, updated_at, deleted_at`

const eligibleClause = `publish_status = 'published' AND is_deleted = 0`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExperience(row rowScanner) (*types.Experience, error) {
	var (
		exp       types.Experience
		keywords  string
		embedding []byte
		status    string
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&exp.ID, &exp.Title, &exp.Problem, &exp.RootCause, &exp.Solution, &exp.Context, &keywords,
		&embedding, &exp.HasEmbedding, &exp.EmbeddingModel, &exp.EmbeddingDim,
		&status, &exp.IsDeleted, &exp.QueryCount, &exp.ViewCount,
		&exp.CreatedAt, &exp.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	exp.PublishStatus = types.PublishStatus(status)
	if exp.Keywords, err = decodeKeywords(keywords); err != nil {
		return nil, fmt.Errorf("experience %s: %w", exp.ID, err)
	}
	if exp.Embedding, err = deserializeVector(embedding); err != nil {
		return nil, fmt.Errorf("experience %s: %w", exp.ID, err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		exp.DeletedAt = &t
	}
	return &exp, nil
}

func collectExperiences(rows *sql.Rows) ([]*types.Experience, error) {
	defer func() { _ = rows.Close() }()

	var out []*types.Experience
	for rows.Next() {
		exp, err := scanExperience(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experience: %w", err)
		}
		out = append(out, exp)
	}
	return out, rows.Err()
}

// Experience operations

// CreateExperience inserts a new draft-or-published record without an
// embedding. An empty ID is filled with a new UUID.
func (s *SQLiteStorage) CreateExperience(ctx context.Context, exp *types.Experience) error {
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.PublishStatus == "" {
		exp.PublishStatus = types.StatusDraft
	}
	exp.Embedding = nil
	exp.HasEmbedding = false
	exp.EmbeddingModel = ""
	exp.EmbeddingDim = 0
	if err := exp.Validate(); err != nil {
		return err
	}

	keywords, err := encodeKeywords(exp.Keywords)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(q querier) error {
		var existing string
		err := q.QueryRowContext(ctx, "SELECT id FROM experiences WHERE id = ?", exp.ID).Scan(&existing)
		if err == nil {
			return fmt.Errorf("experience %s: %w", exp.ID, ErrAlreadyExists)
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check experience: %w", err)
		}

		now := s.timestamp()
		var deletedAt interface{}
		if exp.IsDeleted {
			deletedAt = now
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO experiences (
				id, title, problem, root_cause, solution, context, keywords,
				publish_status, is_deleted, created_at, updated_at, deleted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			exp.ID, exp.Title, exp.Problem, exp.RootCause, exp.Solution, exp.Context, keywords,
			string(exp.PublishStatus), exp.IsDeleted, now, now, deletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create experience: %w", err)
		}
		exp.CreatedAt = now
		exp.UpdatedAt = now
		if exp.IsDeleted {
			exp.DeletedAt = &now
		}
		return nil
	})
}

func (s *SQLiteStorage) getExperienceWithQuerier(ctx context.Context, q querier, id string) (*types.Experience, error) {
	row := q.QueryRowContext(ctx, "SELECT "+experienceColumns+" FROM experiences WHERE id = ?", id)
	exp, err := scanExperience(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return exp, nil
}

func (s *SQLiteStorage) GetExperience(ctx context.Context, id string) (*types.Experience, error) {
	return s.getExperienceWithQuerier(ctx, s.db, id)
}

// UpdateContent rewrites the content fields. Embedding fields are untouched.
func (s *SQLiteStorage) UpdateContent(ctx context.Context, exp *types.Experience) error {
	if err := exp.ValidateContent(); err != nil {
		return err
	}
	keywords, err := encodeKeywords(exp.Keywords)
	if err != nil {
		return err
	}

	now := s.timestamp()
	result, err := s.db.ExecContext(ctx, `
		UPDATE experiences
		SET title = ?, problem = ?, root_cause = ?, solution = ?, context = ?, keywords = ?, updated_at = ?
		WHERE id = ?`,
		exp.Title, exp.Problem, exp.RootCause, exp.Solution, exp.Context, keywords, now, exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experience: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}
	exp.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) SetPublishStatus(ctx context.Context, id string, status types.PublishStatus) error {
	if !status.Valid() {
		return types.ErrInvalidPublishStatus
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE experiences SET publish_status = ?, updated_at = ? WHERE id = ?",
		string(status), s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to set publish status: %w", err)
	}
	return requireRow(result)
}

// SoftDelete marks the record deleted. The embedding is kept.
func (s *SQLiteStorage) SoftDelete(ctx context.Context, id string) error {
	now := s.timestamp()
	result, err := s.db.ExecContext(ctx,
		"UPDATE experiences SET is_deleted = 1, deleted_at = COALESCE(deleted_at, ?), updated_at = ? WHERE id = ?",
		now, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete experience: %w", err)
	}
	return requireRow(result)
}

func (s *SQLiteStorage) Restore(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE experiences SET is_deleted = 0, deleted_at = NULL, updated_at = ? WHERE id = ?",
		s.timestamp(), id)
	if err != nil {
		return fmt.Errorf("failed to restore experience: %w", err)
	}
	return requireRow(result)
}

// Retrieval operations

// ListEligible returns every published, non-deleted record, newest first
func (s *SQLiteStorage) ListEligible(ctx context.Context) ([]*types.Experience, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+experienceColumns+" FROM experiences WHERE "+eligibleClause+" ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible experiences: %w", err)
	}
	return collectExperiences(rows)
}

// ListMissingEmbeddings returns eligible records without an embedding, oldest
// first. A non-positive limit returns all of them.
func (s *SQLiteStorage) ListMissingEmbeddings(ctx context.Context, limit, offset int) ([]*types.Experience, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+experienceColumns+" FROM experiences WHERE "+eligibleClause+
			" AND has_embedding = 0 ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiences missing embeddings: %w", err)
	}
	return collectExperiences(rows)
}

// Embedding operations

// SetEmbedding stores vector only if the record currently has no embedding.
// It returns false when another writer got there first.
func (s *SQLiteStorage) SetEmbedding(ctx context.Context, id string, vector types.Vector, model string) (bool, error) {
	if err := types.ValidateEmbeddingState(vector, true); err != nil {
		return false, err
	}

	var written bool
	err := s.withTx(ctx, func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE experiences
			SET embedding = ?, has_embedding = 1, embedding_model = ?, embedding_dim = ?
			WHERE id = ? AND has_embedding = 0`,
			serializeVector(vector), model, len(vector), id,
		)
		if err != nil {
			return fmt.Errorf("failed to set embedding: %w", err)
		}
		written, err = affected(result)
		if err != nil || written {
			return err
		}
		return requireExists(ctx, q, id)
	})
	return written, err
}

// ClearEmbedding removes the embedding only if one is present.
// It returns false when there was nothing to clear.
func (s *SQLiteStorage) ClearEmbedding(ctx context.Context, id string) (bool, error) {
	var written bool
	err := s.withTx(ctx, func(q querier) error {
		result, err := q.ExecContext(ctx, `
			UPDATE experiences
			SET embedding = NULL, has_embedding = 0, embedding_model = '', embedding_dim = 0
			WHERE id = ? AND has_embedding = 1`,
			id,
		)
		if err != nil {
			return fmt.Errorf("failed to clear embedding: %w", err)
		}
		written, err = affected(result)
		if err != nil || written {
			return err
		}
		return requireExists(ctx, q, id)
	})
	return written, err
}

// Counter operations

func (s *SQLiteStorage) IncrementQueryCount(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE experiences SET query_count = query_count + 1 WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to increment query count: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) IncrementViewCount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE experiences SET view_count = view_count + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return requireRow(result)
}

// Status operations

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{
		Models:    make(map[string]int),
		Driver:    DriverName,
		BuildMode: BuildMode,
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN publish_status = 'published' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN publish_status = 'draft' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_deleted = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN `+eligibleClause+` THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN has_embedding = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN `+eligibleClause+` AND has_embedding = 0 THEN 1 ELSE 0 END), 0)
		FROM experiences`).Scan(
		&status.Total, &status.Published, &status.Drafts, &status.Deleted,
		&status.Eligible, &status.Embedded, &status.MissingEmbeddings,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT embedding_model, COUNT(*) FROM experiences WHERE has_embedding = 1 GROUP BY embedding_model")
	if err != nil {
		return nil, fmt.Errorf("failed to count embedding models: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var model string
		var n int
		if err := rows.Scan(&model, &n); err != nil {
			return nil, fmt.Errorf("failed to scan model count: %w", err)
		}
		status.Models[model] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	version, err := SchemaVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()
	return status, nil
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func requireRow(result sql.Result) error {
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func requireExists(ctx context.Context, q querier, id string) error {
	var existing string
	err := q.QueryRowContext(ctx, "SELECT id FROM experiences WHERE id = ?", id).Scan(&existing)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check experience: %w", err)
	}
	return nil
}
