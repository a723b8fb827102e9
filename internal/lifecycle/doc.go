// Package lifecycle owns the embedding fields of experience records.
//
// A Manager generates, stores and clears embeddings one record at a time,
// serializing work per record id so concurrent callers never produce two
// writes for the same record. BatchEnsureEmbeddings backfills many records
// with bounded concurrency and a minimum spacing between provider calls, and
// a Sweeper runs that backfill on a cron schedule.
//
// Embeddings are never generated as a side effect of publishing or editing;
// the hooks only log or, when configured, clear stale vectors.
package lifecycle
