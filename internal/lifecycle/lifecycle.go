package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/experience-mcp/internal/embedder"
	"github.com/dshills/experience-mcp/internal/logging"
	"github.com/dshills/experience-mcp/internal/metrics"
	"github.com/dshills/experience-mcp/internal/similarity"
	"github.com/dshills/experience-mcp/internal/storage"
)

// Lifecycle errors
var (
	ErrEmbeddingServiceUnavailable = errors.New("embedding service unavailable")
	ErrEmbeddingGenerationFailed   = errors.New("embedding generation failed")
	ErrEmbeddingEmptyInput         = errors.New("experience has no content to embed")
)

// Outcome is the result of a successful EnsureEmbedding call
type Outcome string

const (
	OutcomeEmbedded        Outcome = "embedded"
	OutcomeAlreadyEmbedded Outcome = "already_embedded"
)

// Options configures a Manager
type Options struct {
	BatchDelay  time.Duration // Minimum spacing between provider calls in a batch
	Workers     int           // Concurrent batch items (default: 1)
	ClearOnEdit bool          // Clear embeddings when content changes
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
}

// Manager exclusively owns the embedding fields of experience records
type Manager struct {
	store       storage.Storage
	embedder    embedder.Embedder
	locks       *recordLocks
	delay       time.Duration
	workers     int
	clearOnEdit bool
	logger      zerolog.Logger
	metrics     *metrics.Metrics
}

// NewManager creates a lifecycle manager
func NewManager(store storage.Storage, emb embedder.Embedder, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Manager{
		store:       store,
		embedder:    emb,
		locks:       newRecordLocks(),
		delay:       opts.BatchDelay,
		workers:     opts.Workers,
		clearOnEdit: opts.ClearOnEdit,
		logger:      logging.Component(opts.Logger, "lifecycle"),
		metrics:     opts.Metrics,
	}
}

// EnsureEmbedding generates and stores the embedding of a record that lacks one.
// Storage errors are returned as is; provider problems map to the lifecycle errors.
func (m *Manager) EnsureEmbedding(ctx context.Context, id string) (Outcome, error) {
	unlock := m.locks.lock(id)
	defer unlock()

	outcome, err := m.ensureLocked(ctx, id)
	m.metrics.EmbeddingOperation("ensure", outcomeLabel(outcome, err))
	return outcome, err
}

func (m *Manager) ensureLocked(ctx context.Context, id string) (Outcome, error) {
	exp, err := m.store.GetExperience(ctx, id)
	if err != nil {
		return "", err
	}
	if exp.HasEmbedding {
		return OutcomeAlreadyEmbedded, nil
	}

	text := exp.CanonicalText()
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmbeddingEmptyInput, id)
	}

	if !m.embedder.IsAvailable(ctx) {
		m.metrics.AvailabilityCheck(false)
		return "", fmt.Errorf("%w: provider %s", ErrEmbeddingServiceUnavailable, m.embedder.Provider())
	}
	m.metrics.AvailabilityCheck(true)

	vec, err := m.embedder.GenerateEmbedding(ctx, text)
	switch {
	case errors.Is(err, embedder.ErrEmptyInput):
		return "", fmt.Errorf("%w: %s", ErrEmbeddingEmptyInput, id)
	case errors.Is(err, embedder.ErrEmbeddingUnavailable):
		return "", fmt.Errorf("%w: %w", ErrEmbeddingServiceUnavailable, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrEmbeddingGenerationFailed, err)
	}
	if dim := m.embedder.Dimension(); len(vec) != dim {
		return "", fmt.Errorf("%w: %w: got %d, provider dimension %d",
			ErrEmbeddingGenerationFailed, similarity.ErrDimensionMismatch, len(vec), dim)
	}

	written, err := m.store.SetEmbedding(ctx, id, vec, m.embedder.Model())
	if err != nil {
		return "", err
	}
	if !written {
		return OutcomeAlreadyEmbedded, nil
	}

	m.logger.Debug().
		Str("id", id).
		Str("model", m.embedder.Model()).
		Int("dimension", len(vec)).
		Msg("embedding stored")
	return OutcomeEmbedded, nil
}

// ClearEmbedding removes a record's embedding. Clearing a record without an
// embedding succeeds.
func (m *Manager) ClearEmbedding(ctx context.Context, id string) error {
	unlock := m.locks.lock(id)
	defer unlock()

	cleared, err := m.store.ClearEmbedding(ctx, id)
	switch {
	case err != nil:
		m.metrics.EmbeddingOperation("clear", "error")
		return err
	case cleared:
		m.metrics.EmbeddingOperation("clear", "cleared")
		m.logger.Debug().Str("id", id).Msg("embedding cleared")
	default:
		m.metrics.EmbeddingOperation("clear", "noop")
	}
	return nil
}

// OnPublish is called after a record is published. Embeddings are never
// generated implicitly; a missing one is only reported.
func (m *Manager) OnPublish(ctx context.Context, id string) error {
	exp, err := m.store.GetExperience(ctx, id)
	if err != nil {
		return err
	}
	if !exp.HasEmbedding {
		m.logger.Info().Str("id", id).Msg("experience published without embedding")
	}
	return nil
}

// OnDelete is called after a soft delete. The embedding is kept so a restore
// brings the record back fully ranked.
func (m *Manager) OnDelete(ctx context.Context, id string) error {
	m.logger.Debug().Str("id", id).Msg("experience deleted, embedding retained")
	return nil
}

// OnContentEdit is called after content fields change. The stored vector no
// longer matches the content; it is cleared only when ClearOnEdit is set.
func (m *Manager) OnContentEdit(ctx context.Context, id string) error {
	if m.clearOnEdit {
		return m.ClearEmbedding(ctx, id)
	}
	m.logger.Debug().Str("id", id).Msg("content edited, embedding may be stale")
	return nil
}

func outcomeLabel(outcome Outcome, err error) string {
	switch {
	case err == nil:
		return string(outcome)
	case errors.Is(err, ErrEmbeddingServiceUnavailable):
		return "unavailable"
	case errors.Is(err, ErrEmbeddingEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrEmbeddingGenerationFailed):
		return "failed"
	default:
		return "error"
	}
}
