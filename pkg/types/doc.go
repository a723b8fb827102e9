// Package types provides shared type definitions for the experience retrieval engine.
//
// This package defines domain types used across multiple components, including
// experience records, embedding vectors and scored search results.
//
// # Core Types
//
// Experience is the retrievable unit: a troubleshooting write-up with a problem
// description, optional root cause, a solution and an ordered keyword list:
//
//	exp := &types.Experience{
//	    Title:    "CORS error on Next.js API route",
//	    Problem:  "Browser blocks requests to /api/users",
//	    Solution: "Set Access-Control-Allow-Origin in the route handler",
//	    Keywords: []string{"nextjs", "cors", "api"},
//	}
//
// A record is eligible for retrieval only when it is published and not
// soft-deleted:
//
//	if exp.Eligible() {
//	    // candidate for ranking
//	}
//
// # Embedding State
//
// Embedding and HasEmbedding always agree. Validate enforces this before any
// write reaches the store:
//
//	if err := exp.Validate(); err != nil {
//	    return err
//	}
//
// CanonicalText builds the text an embedding is derived from. Blank optional
// segments are omitted so that records without a root cause or context embed
// the same way regardless of whitespace:
//
//	text := exp.CanonicalText()
//
// # Search Results
//
// ScoredExperience carries the fused relevance together with the individual
// signals that produced it:
//
//	result := types.ScoredExperience{
//	    Experience:   exp,
//	    Relevance:    0.82,
//	    LexicalScore: &lexical,
//	}
//
// Relevance scores are in the [0, 1] range for lexical matches and [-1, 1]
// for raw cosine similarity; fused scores only surface values above the
// configured similarity threshold.
package types
