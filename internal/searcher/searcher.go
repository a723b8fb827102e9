package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/experience-mcp/internal/embedder"
	"github.com/dshills/experience-mcp/internal/lexical"
	"github.com/dshills/experience-mcp/internal/logging"
	"github.com/dshills/experience-mcp/internal/metrics"
	"github.com/dshills/experience-mcp/internal/similarity"
	"github.com/dshills/experience-mcp/internal/storage"
	"github.com/dshills/experience-mcp/pkg/types"
)

// Default paging limits
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ErrInvalidQuery is returned for malformed query parameters
var ErrInvalidQuery = errors.New("invalid query")

// Mode describes which scoring path produced a response
type Mode string

const (
	ModeHybrid  Mode = "hybrid"  // Vector and lexical signals fused
	ModeLexical Mode = "lexical" // Lexical only, provider unavailable or failed
	ModeBrowse  Mode = "browse"  // No query, newest first
)

// Query contains the parameters of a retrieval request
type Query struct {
	Text     string
	Keywords []string
	Limit    int
	Offset   int
	Sort     types.SortMode
}

// Response contains one page of results and its metadata
type Response struct {
	Experiences []types.ScoredExperience
	TotalCount  int
	HasMore     bool
	Degraded    bool // A query was supplied but vector scoring could not run
	Mode        Mode
	Duration    time.Duration
}

// Options configures a Searcher
type Options struct {
	SimilarityThreshold float64
	DefaultLimit        int
	MaxLimit            int
	RecordQueryHits     bool // Increment query_count for records on the returned page
	Logger              zerolog.Logger
	Metrics             *metrics.Metrics
}

// Searcher answers retrieval queries over eligible experiences. It only
// reads embedding fields.
type Searcher struct {
	storage   storage.Storage
	embedder  embedder.Embedder
	threshold float64
	defLimit  int
	maxLimit  int
	countHits bool
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewSearcher creates a new Searcher instance. A nil embedder behaves like a
// disabled provider.
func NewSearcher(store storage.Storage, emb embedder.Embedder, opts Options) *Searcher {
	if emb == nil {
		emb = embedder.NewDisabledProvider()
	}
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = MaxLimit
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.DefaultLimit > opts.MaxLimit {
		opts.DefaultLimit = opts.MaxLimit
	}
	return &Searcher{
		storage:   store,
		embedder:  emb,
		threshold: opts.SimilarityThreshold,
		defLimit:  opts.DefaultLimit,
		maxLimit:  opts.MaxLimit,
		countHits: opts.RecordQueryHits,
		logger:    logging.Component(opts.Logger, "searcher"),
		metrics:   opts.Metrics,
	}
}

// Limits returns the effective default and maximum page size
func (s *Searcher) Limits() (defaultLimit, maxLimit int) {
	return s.defLimit, s.maxLimit
}

// Search runs a query. Embedding provider problems degrade the request to
// lexical scoring; storage errors are returned.
func (s *Searcher) Search(ctx context.Context, q Query) (*Response, error) {
	startTime := time.Now()

	if err := s.validateQuery(&q); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	// Candidates are loaded before any scoring
	candidates, err := s.storage.ListEligible(ctx)
	if err != nil {
		return nil, err
	}

	var (
		results  []types.ScoredExperience
		mode     Mode
		degraded bool
	)
	if q.Text == "" && len(q.Keywords) == 0 {
		results = browse(candidates)
		mode = ModeBrowse
	} else {
		results, degraded, err = s.score(ctx, q, candidates)
		if err != nil {
			return nil, err
		}
		mode = ModeHybrid
		if degraded {
			mode = ModeLexical
		}
	}

	sortResults(results, q.Sort, mode)

	total := len(results)
	page := paginate(results, q.Offset, q.Limit)

	if s.countHits && len(page) > 0 {
		ids := make([]string, len(page))
		for i, r := range page {
			ids[i] = r.Experience.ID
		}
		if err := s.storage.IncrementQueryCount(ctx, ids...); err != nil {
			return nil, err
		}
	}

	resp := &Response{
		Experiences: page,
		TotalCount:  total,
		HasMore:     q.Offset+q.Limit < total,
		Degraded:    degraded,
		Mode:        mode,
		Duration:    time.Since(startTime),
	}
	s.metrics.ObserveQuery(string(mode), degraded, resp.Duration)
	s.logger.Debug().
		Str("mode", string(mode)).
		Bool("degraded", degraded).
		Int("total", total).
		Int("returned", len(page)).
		Dur("duration", resp.Duration).
		Msg("query served")
	return resp, nil
}

// validateQuery normalizes q in place
func (s *Searcher) validateQuery(q *Query) error {
	q.Text = strings.TrimSpace(q.Text)
	keywords := make([]string, 0, len(q.Keywords))
	for _, k := range q.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	q.Keywords = keywords

	if q.Offset < 0 {
		return fmt.Errorf("offset must be non-negative, got %d", q.Offset)
	}
	if q.Limit <= 0 {
		q.Limit = s.defLimit
	}
	if q.Limit > s.maxLimit {
		q.Limit = s.maxLimit
	}

	mode, err := types.ParseSortMode(string(q.Sort))
	if err != nil {
		return fmt.Errorf("%w: %q", err, q.Sort)
	}
	q.Sort = mode
	return nil
}

// vectorResult holds the outcome of the vector scoring goroutine
type vectorResult struct {
	scores map[string]float64
	err    error
}

// score fuses vector and lexical signals. The boolean reports whether the
// vector signal was unavailable.
func (s *Searcher) score(ctx context.Context, q Query, candidates []*types.Experience) ([]types.ScoredExperience, bool, error) {
	vectorChan := make(chan vectorResult, 1)
	go s.runVectorScoring(ctx, q, candidates, vectorChan)

	matcher, err := lexical.NewMatcher(q.Keywords, q.Text)
	if err != nil {
		s.logger.Debug().Err(err).Msg("lexical scoring with partial query tokens")
	}
	lexScores := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		score, err := matcher.Score(c)
		if err != nil {
			s.logger.Debug().Err(err).Str("id", c.ID).Msg("lexical scoring with partial record tokens")
		}
		lexScores[c.ID] = score
	}

	var vr vectorResult
	select {
	case vr = <-vectorChan:
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}

	degraded := vr.err != nil
	if degraded {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		s.logger.Warn().Err(vr.err).Msg("vector scoring skipped, using lexical only")
	}

	results := make([]types.ScoredExperience, 0, len(candidates))
	for _, c := range candidates {
		lex := lexScores[c.ID]
		relevance := lex
		entry := types.ScoredExperience{
			Experience:   c,
			LexicalScore: &lex,
		}
		if v, ok := vr.scores[c.ID]; ok {
			entry.VectorScore = &v
			relevance = max(relevance, v)
		}
		if relevance <= 0 {
			continue
		}
		entry.Relevance = relevance
		results = append(results, entry)
	}
	return results, degraded, nil
}

// runVectorScoring embeds the query and ranks embedded candidates
func (s *Searcher) runVectorScoring(ctx context.Context, q Query, candidates []*types.Experience, resultChan chan<- vectorResult) {
	var res vectorResult
	res.scores, res.err = s.vectorScores(ctx, q, candidates)
	resultChan <- res
}

func (s *Searcher) vectorScores(ctx context.Context, q Query, candidates []*types.Experience) (map[string]float64, error) {
	available := s.embedder.IsAvailable(ctx)
	s.metrics.AvailabilityCheck(available)
	if !available {
		return nil, embedder.ErrEmbeddingUnavailable
	}

	vec, err := s.embedder.GenerateEmbedding(ctx, queryText(q))
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	embedded := make([]similarity.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.HasEmbedding {
			embedded = append(embedded, similarity.Candidate{ID: c.ID, Embedding: c.Embedding})
		}
	}
	ranking := similarity.RankByVector(vec, embedded, s.threshold)
	if len(ranking.Mismatched) > 0 {
		s.logger.Warn().
			Strs("ids", ranking.Mismatched).
			Int("dimension", len(vec)).
			Msg("stored embeddings have a different dimension, excluded from vector ranking")
	}
	return ranking.Scores(), nil
}

// queryText is the text embedded for a query: free text followed by keywords
func queryText(q Query) string {
	parts := make([]string, 0, len(q.Keywords)+1)
	if q.Text != "" {
		parts = append(parts, q.Text)
	}
	parts = append(parts, q.Keywords...)
	return strings.Join(parts, " ")
}

func browse(candidates []*types.Experience) []types.ScoredExperience {
	results := make([]types.ScoredExperience, len(candidates))
	for i, c := range candidates {
		results[i] = types.ScoredExperience{Experience: c}
	}
	return results
}

// sortResults orders results by the requested sort mode. Relevance in browse
// mode falls back to newest first.
func sortResults(results []types.ScoredExperience, mode types.SortMode, queryMode Mode) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		switch {
		case mode == types.SortQueryCount:
			if a.Experience.QueryCount != b.Experience.QueryCount {
				return a.Experience.QueryCount > b.Experience.QueryCount
			}
		case mode == types.SortRelevance && queryMode != ModeBrowse:
			if a.Relevance != b.Relevance {
				return a.Relevance > b.Relevance
			}
		}
		return newer(a.Experience, b.Experience)
	})
}

// newer orders by created_at desc, then id asc
func newer(a, b *types.Experience) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func paginate(results []types.ScoredExperience, offset, limit int) []types.ScoredExperience {
	if offset >= len(results) {
		return []types.ScoredExperience{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
