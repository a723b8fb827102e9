// Package searcher implements hybrid retrieval over published experiences,
// combining vector similarity with lexical matching.
//
// Every query starts from the eligible candidate set (published and not
// deleted). What happens next depends on the input:
//   - Hybrid: free text or keywords were supplied and the embedding provider
//     is available. The query is embedded, embedded candidates are ranked by
//     cosine similarity, all candidates are scored lexically, and the two
//     signals are fused by taking their maximum.
//   - Lexical: a query was supplied but the provider is unavailable or the
//     query embedding failed. Candidates are ranked by lexical score alone and
//     the response is marked Degraded.
//   - Browse: no query was supplied. Candidates are returned newest first.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb, searcher.Options{
//	    SimilarityThreshold: 0.3,
//	})
//
//	resp, err := s.Search(ctx, searcher.Query{
//	    Text:     "CORS preflight fails",
//	    Keywords: []string{"nextjs", "cors"},
//	    Limit:    10,
//	})
//
//	for _, r := range resp.Experiences {
//	    fmt.Printf("%s (relevance: %.2f)\n", r.Experience.Title, r.Relevance)
//	}
//
// # Fusion
//
// A candidate's relevance is max(vector similarity, lexical score). A
// candidate below the similarity threshold, or without an embedding, keeps its
// lexical score. Candidates scoring zero on both signals are dropped.
//
// # Sorting and Paging
//
// Sort modes are relevance (ties newest first, then id), query_count and
// created_at, all descending. Relevance in browse mode is created_at.
// HasMore is true iff offset+limit is below the total match count. The
// default limit is 10 and larger limits are capped at 100.
//
// # Errors
//
// Embedding provider problems never fail a query. Storage errors and
// cancellation of ctx are returned to the caller. Malformed parameters
// return ErrInvalidQuery.
//
// # Thread Safety
//
// Searcher is safe for concurrent use. Queries hold no shared mutable state
// and an abandoned query leaves nothing behind.
package searcher
