// Package embedder generates vector embeddings for experience records using various providers.
//
// Every provider implements the Embedder capability interface. Selection happens
// once, in New, from configuration:
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider: "openai",
//	    APIKey:   os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	if emb.IsAvailable(ctx) {
//	    vec, err := emb.GenerateEmbedding(ctx, "CORS error on Next.js API route")
//	}
//
// # Providers
//
//   - openai: OpenAI embeddings API through the official client
//   - jina: Jina AI embeddings REST API
//   - compatible: any OpenAI-compatible server (Ollama, LM Studio, vLLM)
//   - local: deterministic feature-hashing embedder, offline
//   - disabled: never available
//
// A remote provider whose credentials are missing is constructed anyway and
// reports itself unavailable, so callers can fall back to lexical retrieval
// instead of failing at startup.
//
// # Availability
//
// IsAvailable never fails. With Probe enabled remote providers embed a short
// fixed string to confirm connectivity; the result is held in an
// AvailabilityCache for a bounded TTL (5s by default) so repeated queries do
// not hammer the backend. A failed generation invalidates the cached result.
// The compatible provider always probes, since a self-hosted endpoint has no
// credentials to signal that it is configured.
//
// Concurrent checks share one probe, which runs under its own timeout and
// ignores caller cancellation. A caller that gives up sees false, and the
// probe's real outcome is still cached for everyone else.
//
// # Errors
//
//   - ErrEmptyInput: text is blank after trimming
//   - ErrEmbeddingUnavailable: provider not configured
//   - ErrEmbeddingRequestFailed: transport or backend failure, wraps the cause
//
// Transient failures are retried with exponential backoff. Client errors
// other than rate limiting are not retried.
//
// # Caching
//
// Generated vectors can be cached in an LRU keyed by the SHA-256 of model and
// text. Embeddings are a deterministic function of their input so the cache
// never changes results.
package embedder
