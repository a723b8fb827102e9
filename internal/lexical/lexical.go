package lexical

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"github.com/blevesearch/segment"

	"github.com/dshills/experience-mcp/pkg/types"
)

// Scoring weights
const (
	KeywordWeight   = 0.6
	TextWeight      = 0.4
	TitleMatchScore = 1.0
	BodyMatchScore  = 0.6
	MinTokenLength  = 2
)

// Matcher holds a prepared query. It is safe for concurrent use.
type Matcher struct {
	keywords []string
	tokens   []token
}

type token struct {
	text string
	stem string
}

// NewMatcher prepares keywords and free text for scoring. If the free text
// cannot be fully tokenized the matcher is still usable with the tokens read
// before the failure, and the error is returned alongside it.
func NewMatcher(keywords []string, freeText string) (*Matcher, error) {
	m := &Matcher{keywords: types.NormalizeKeywords(keywords)}
	words, err := Tokenize(freeText)
	for _, t := range words {
		m.tokens = append(m.tokens, token{text: t, stem: porterstemmer.StemString(t)})
	}
	if err != nil {
		return m, fmt.Errorf("tokenize query text: %w", err)
	}
	return m, nil
}

// Empty reports whether the matcher has nothing to score with
func (m *Matcher) Empty() bool {
	return len(m.keywords) == 0 && len(m.tokens) == 0
}

// Score returns the lexical score of rec in [0, 1]. A tokenization error in
// one of rec's fields is returned with the score computed from what was read.
func (m *Matcher) Score(rec *types.Experience) (float64, error) {
	hasKeywords := len(m.keywords) > 0
	hasText := len(m.tokens) > 0

	switch {
	case hasKeywords && hasText:
		text, err := m.textScore(rec)
		return KeywordWeight*m.keywordScore(rec) + TextWeight*text, err
	case hasKeywords:
		return m.keywordScore(rec), nil
	case hasText:
		return m.textScore(rec)
	default:
		return 0, nil
	}
}

func (m *Matcher) keywordScore(rec *types.Experience) float64 {
	stored := make(map[string]struct{}, len(rec.Keywords))
	for _, k := range types.NormalizeKeywords(rec.Keywords) {
		stored[k] = struct{}{}
	}
	fields := []string{
		strings.ToLower(rec.Title),
		strings.ToLower(rec.Problem),
		strings.ToLower(rec.RootCause),
		strings.ToLower(rec.Solution),
		strings.ToLower(rec.Context),
	}

	found := 0
	for _, k := range m.keywords {
		if _, ok := stored[k]; ok {
			found++
			continue
		}
		for _, f := range fields {
			if strings.Contains(f, k) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(m.keywords))
}

func (m *Matcher) textScore(rec *types.Experience) (float64, error) {
	title, titleErr := newField(rec.Title)
	problem, problemErr := newField(rec.Problem)
	solution, solutionErr := newField(rec.Solution)

	var total float64
	for _, t := range m.tokens {
		switch {
		case title.contains(t):
			total += TitleMatchScore
		case problem.contains(t) || solution.contains(t):
			total += BodyMatchScore
		}
	}
	score := total / float64(len(m.tokens))
	if err := errors.Join(titleErr, problemErr, solutionErr); err != nil {
		return score, fmt.Errorf("tokenize record %s: %w", rec.ID, err)
	}
	return score, nil
}

// field is a lower-cased content field with the stems of its words
type field struct {
	text  string
	stems map[string]struct{}
}

func newField(s string) (field, error) {
	f := field{text: strings.ToLower(s), stems: make(map[string]struct{})}
	words, err := Tokenize(s)
	for _, w := range words {
		f.stems[porterstemmer.StemString(w)] = struct{}{}
	}
	return f, err
}

func (f field) contains(t token) bool {
	if strings.Contains(f.text, t.text) {
		return true
	}
	_, ok := f.stems[t.stem]
	return ok
}

// Tokenize splits text on Unicode word boundaries and returns lower-cased,
// de-duplicated word tokens of at least MinTokenLength runes, in order of
// first appearance. On a segmenter error (a word longer than
// segment.MaxScanTokenSize) the tokens read so far are returned with the error.
func Tokenize(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	seg := segment.NewWordSegmenter(bytes.NewReader([]byte(text)))
	seen := make(map[string]struct{})
	var out []string
	for seg.Segment() {
		if seg.Type() == segment.None {
			continue
		}
		tok := strings.ToLower(string(seg.Bytes()))
		if utf8.RuneCountInString(tok) < MinTokenLength {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out, seg.Err()
}
