// Package lexical scores experience records against keywords and free text
// without using embeddings.
//
// # Scoring
//
// Two parts contribute to a score in [0, 1]:
//
//   - Keyword part: the fraction of supplied keywords found, case-insensitively,
//     in the record's keyword list or as a substring of any content field.
//   - Text part: free text is split on Unicode word boundaries, lower-cased,
//     de-duplicated and stripped of one-rune tokens. Each token scores 1.0 when
//     it appears in the title and 0.6 when it appears only in the problem or
//     solution. A token appears in a field when it is a substring of the field
//     or shares a Porter stem with one of its words. The text part is the mean
//     token score.
//
// When both are supplied the score is 0.6*keyword + 0.4*text. When neither is
// supplied the score is 0; callers handle the empty query separately.
//
// # Usage
//
//	m, err := lexical.NewMatcher([]string{"nextjs", "cors"}, "api route blocked")
//	score, err := m.Score(exp)
//
// Scoring is pure and deterministic. Tokenization errors never discard a
// score: the matcher scores with the tokens it could read and reports the
// error so callers can log it.
package lexical
