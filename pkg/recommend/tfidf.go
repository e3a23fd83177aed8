package recommend

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

// englishStopwords mirrors the usual english stopword list used by text
// vectorizers; tokens in it never become features.
var englishStopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all am an and any are as at be because
		been before being below between both but by could did do does doing down during each few for from further
		had has have having he her here hers herself him himself his how i if in into is it its itself just me
		more most my myself no nor not now of off on once only or other our ours ourselves out over own same she
		should so some such than that the their theirs them themselves then there these they this those through
		to too under until up very was we were what when where which while who whom why will with you your yours
		yourself yourselves`) {
		englishStopwords[w] = struct{}{}
	}
}

// Vectorizer converts documents into L2-normalized TF-IDF vectors.
// The vocabulary is fixed at Fit time; when maxFeatures > 0 only the most
// frequent terms across the corpus become features.
type Vectorizer struct {
	vocab       map[string]int
	idf         []float64
	maxFeatures int
}

// NewVectorizer builds an unfitted vectorizer.
func NewVectorizer(maxFeatures int) *Vectorizer {
	return &Vectorizer{maxFeatures: maxFeatures}
}

// Dim returns the number of features after Fit.
func (v *Vectorizer) Dim() int {
	return len(v.vocab)
}

// Fit learns vocabulary and inverse document frequencies from the corpus.
func (v *Vectorizer) Fit(docs []string) {
	termTotals := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range docs {
		counts := termCounts(doc)
		for term, n := range counts {
			termTotals[term] += n
			docFreq[term]++
		}
	}

	terms := make([]string, 0, len(termTotals))
	for term := range termTotals {
		terms = append(terms, term)
	}
	// Highest corpus frequency first; ties resolved alphabetically so the
	// vocabulary is deterministic.
	sort.Slice(terms, func(i, j int) bool {
		if termTotals[terms[i]] != termTotals[terms[j]] {
			return termTotals[terms[i]] > termTotals[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.maxFeatures > 0 && len(terms) > v.maxFeatures {
		terms = terms[:v.maxFeatures]
	}
	sort.Strings(terms)

	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	n := float64(len(docs))
	for i, term := range terms {
		v.vocab[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
}

// Transform converts one document into a normalized TF-IDF vector.
func (v *Vectorizer) Transform(doc string) []float64 {
	vec := make([]float64, len(v.vocab))
	for term, count := range termCounts(doc) {
		idx, ok := v.vocab[term]
		if !ok {
			continue
		}
		vec[idx] = float64(count) * v.idf[idx]
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}

// FitTransform fits on the corpus and returns the vector for each document.
func (v *Vectorizer) FitTransform(docs []string) [][]float64 {
	v.Fit(docs)
	vectors := make([][]float64, len(docs))
	for i, doc := range docs {
		vectors[i] = v.Transform(doc)
	}
	return vectors
}

// Cosine returns the cosine similarity of two equally-sized vectors.
// For normalized vectors this is just the dot product.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func termCounts(doc string) map[string]int {
	counts := make(map[string]int)
	for _, token := range tokenize(doc) {
		counts[token]++
	}
	return counts
}

// tokenize lowercases and keeps alphanumeric runs of length >= 2 that are
// not stopwords.
func tokenize(doc string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() < 2 {
			b.Reset()
			return
		}
		token := b.String()
		b.Reset()
		if _, stop := englishStopwords[token]; stop {
			return
		}
		tokens = append(tokens, token)
	}
	for _, r := range strings.ToLower(doc) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return tokens
}
