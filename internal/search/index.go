// Package search ranks small in-memory document sets against free-text
// queries. The admin console uses it to filter the conversation list by
// contact name, phone number and last message.
//
// Matching is token based. Text is lower-cased and folded (diacritics
// stripped) before tokenizing, so "jose" finds "José". Every query token
// must match some document token: words match by prefix, digit runs match
// anywhere inside a number so partial phone numbers work. A leading "0" on a
// digit query also tries the Indonesian country code.
//
// An Index is immutable after construction and safe for concurrent use.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Doc is one searchable record.
type Doc struct {
	ID     string
	Fields []string
}

// Hit is a matching document and its score in (0,1].
type Hit struct {
	ID    string
	Score float64
}

// Option configures an Index.
type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	minScore  float64
}

func defaultConfig() config {
	return config{}
}

// WithStopwords drops the given words from queries and documents.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			if w = Fold(strings.TrimSpace(w)); w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithMinScore discards hits scoring below s.
func WithMinScore(s float64) Option {
	return func(c *config) {
		if s >= 0 && s <= 1 {
			c.minScore = s
		}
	}
}

type doc struct {
	id     string
	tokens []string
	pos    int
}

// Index holds tokenized documents in insertion order.
type Index struct {
	cfg  config
	docs []doc
}

// New tokenizes docs. Documents with no tokens are kept out of the index.
func New(docs []Doc, opts ...Option) *Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	out := make([]doc, 0, len(docs))
	for i, d := range docs {
		var toks []string
		for _, f := range d.Fields {
			toks = append(toks, tokenize(f, cfg.stopwords)...)
		}
		if len(toks) == 0 {
			continue
		}
		out = append(out, doc{id: d.ID, tokens: dedupe(toks), pos: i})
	}
	return &Index{cfg: cfg, docs: out}
}

// Len reports how many documents are searchable.
func (i *Index) Len() int { return len(i.docs) }

// Search returns up to k hits, best first. Ties keep insertion order, so a
// caller that indexes newest-first gets newest-first among equals. k <= 0
// means no limit. A blank query matches nothing.
func (i *Index) Search(q string, k int) []Hit {
	qt := tokenize(q, i.cfg.stopwords)
	if len(qt) == 0 || len(i.docs) == 0 {
		return nil
	}
	qt = dedupe(qt)

	type scored struct {
		Hit
		pos int
	}
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		s, ok := score(qt, d.tokens)
		if !ok || s < i.cfg.minScore {
			continue
		}
		buf = append(buf, scored{Hit: Hit{ID: d.id, Score: s}, pos: d.pos})
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		return buf[a].pos < buf[b].pos
	})
	if k > 0 && k < len(buf) {
		buf = buf[:k]
	}
	out := make([]Hit, len(buf))
	for n, s := range buf {
		out[n] = s.Hit
	}
	return out
}

// score averages, over query tokens, how much of the best matching document
// token the query covers. Any unmatched query token rejects the document.
func score(query, tokens []string) (float64, bool) {
	total := 0.0
	for _, q := range query {
		best := 0.0
		for _, t := range tokens {
			if !matches(q, t) {
				continue
			}
			if cov := float64(len(q)) / float64(len(t)); cov > best {
				best = cov
			}
		}
		if best == 0 {
			return 0, false
		}
		total += best
	}
	return total / float64(len(query)), true
}

func matches(q, t string) bool {
	if isDigits(q) {
		if strings.Contains(t, q) {
			return true
		}
		if len(q) > 1 && q[0] == '0' {
			return strings.Contains(t, "62"+q[1:])
		}
		return false
	}
	return strings.HasPrefix(t, q)
}

//
// Helpers
//

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

var folder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lower-cases s and strips combining marks.
func Fold(s string) string {
	out, _, err := transform.String(folder, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

func tokenize(s string, stop map[string]struct{}) []string {
	words := wordRE.FindAllString(Fold(s), -1)
	out := words[:0]
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out = append(out, w)
	}
	return out
}

func dedupe(toks []string) []string {
	seen := make(map[string]struct{}, len(toks))
	out := toks[:0]
	for _, t := range toks {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
