package contextopt

import (
	"math"
	"sort"
	"strings"
)

// Embedder maps text to a vector for similarity lookups. The semantic
// cache selects an implementation by configuration; the token-frequency
// fallback here needs no external model.
type Embedder interface {
	Embed(text string) []float64
}

// TokenFrequencyEmbedder embeds text as L2-normalized token
// frequencies over a fixed vocabulary learned from the corpus it has
// seen. It is deterministic and dependency-free.
type TokenFrequencyEmbedder struct {
	vocab map[string]int
}

func NewTokenFrequencyEmbedder(corpus []string) *TokenFrequencyEmbedder {
	var seen = make(map[string]bool)
	for _, doc := range corpus {
		for _, token := range tokenize(doc) {
			seen[token] = true
		}
	}
	var tokens = make([]string, 0, len(seen))
	for token := range seen {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	var vocab = make(map[string]int, len(tokens))
	for i, token := range tokens {
		vocab[token] = i
	}
	return &TokenFrequencyEmbedder{vocab: vocab}
}

func (e *TokenFrequencyEmbedder) Embed(text string) []float64 {
	var vec = make([]float64, len(e.vocab))
	for _, token := range tokenize(text) {
		if i, ok := e.vocab[token]; ok {
			vec[i]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Cosine is the similarity between two embeddings of equal length.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
