// Package moderation classifies discussion messages as toxic or clean using
// a TF-IDF + logistic regression model trained in-process on a small
// labelled corpus.
package moderation

import (
	"math"
	"regexp"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// FlagThreshold is the minimum toxic probability at which a message is
// flagged instead of published.
const FlagThreshold = 0.7

const (
	maxFeatures  = 5000
	trainEpochs  = 500
	learningRate = 0.5
	l2Penalty    = 1e-4
	reasonToxic  = "toxic_content"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	nonWordPattern = regexp.MustCompile(`[^a-z\s]+`)
)

// Result is the outcome of moderating one message.
type Result struct {
	Approved   bool    `json:"approved"`
	Flagged    bool    `json:"flagged"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Moderator scores text toxicity. Construct with NewModerator; the zero
// value approves everything.
type Moderator struct {
	vocab   map[string]int
	idf     []float64
	weights []float64
	bias    float64
	trained bool
}

// NewModerator trains the classifier on the built-in corpus. Training is
// deterministic and takes a few milliseconds.
func NewModerator() *Moderator {
	texts, labels := trainingCorpus()
	m := &Moderator{}
	m.fit(texts, labels)
	return m
}

// Moderate scores the message. Unscorable input (empty after cleaning, or
// an untrained model) is approved with zero confidence.
func (m *Moderator) Moderate(text string) Result {
	toxic, confidence := m.predict(text)
	result := Result{Approved: !toxic, Flagged: toxic, Confidence: confidence}
	if toxic {
		result.Reason = reasonToxic
	}
	return result
}

func (m *Moderator) predict(text string) (bool, float64) {
	if !m.trained {
		return false, 0
	}
	cleaned := preprocess(text)
	if cleaned == "" {
		return false, 0
	}
	vec := m.vectorize(cleaned)
	p := sigmoid(floats.Dot(m.weights, vec) + m.bias)
	return p >= FlagThreshold, p
}

func (m *Moderator) fit(texts []string, labels []int) {
	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = preprocess(t)
	}
	m.buildVocab(cleaned)

	vectors := make([][]float64, len(cleaned))
	for i, t := range cleaned {
		vectors[i] = m.vectorize(t)
	}

	m.weights = make([]float64, len(m.vocab))
	grad := make([]float64, len(m.vocab))
	n := float64(len(vectors))
	for epoch := 0; epoch < trainEpochs; epoch++ {
		for i := range grad {
			grad[i] = 0
		}
		biasGrad := 0.0
		for i, vec := range vectors {
			p := sigmoid(floats.Dot(m.weights, vec) + m.bias)
			err := p - float64(labels[i])
			floats.AddScaled(grad, err, vec)
			biasGrad += err
		}
		floats.Scale(1/n, grad)
		floats.AddScaled(grad, l2Penalty, m.weights)
		floats.AddScaled(m.weights, -learningRate, grad)
		m.bias -= learningRate * biasGrad / n
	}
	m.trained = true
}

// buildVocab collects unigrams and bigrams, caps the vocabulary at
// maxFeatures by document frequency, and computes smoothed idf.
func (m *Moderator) buildVocab(cleaned []string) {
	df := map[string]int{}
	for _, text := range cleaned {
		seen := map[string]bool{}
		for _, term := range terms(text) {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}
	type termDF struct {
		term string
		df   int
	}
	ranked := make([]termDF, 0, len(df))
	for term, count := range df {
		ranked = append(ranked, termDF{term, count})
	}
	// Highest document frequency first, ties alphabetical.
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			a, b := ranked[j-1], ranked[j]
			if b.df > a.df || (b.df == a.df && b.term < a.term) {
				ranked[j-1], ranked[j] = b, a
			} else {
				break
			}
		}
	}
	if len(ranked) > maxFeatures {
		ranked = ranked[:maxFeatures]
	}

	m.vocab = make(map[string]int, len(ranked))
	m.idf = make([]float64, len(ranked))
	n := float64(len(cleaned))
	for i, td := range ranked {
		m.vocab[td.term] = i
		m.idf[i] = math.Log((1+n)/(1+float64(td.df))) + 1
	}
}

func (m *Moderator) vectorize(cleaned string) []float64 {
	vec := make([]float64, len(m.vocab))
	for _, term := range terms(cleaned) {
		if idx, ok := m.vocab[term]; ok {
			vec[idx]++
		}
	}
	for i := range vec {
		vec[i] *= m.idf[i]
	}
	if norm := floats.Norm(vec, 2); norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}

// terms returns unigrams plus adjacent bigrams.
func terms(cleaned string) []string {
	tokens := strings.Fields(cleaned)
	out := make([]string, 0, len(tokens)*2)
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}

// preprocess lowercases, strips URLs, punctuation and digits, and collapses
// whitespace.
func preprocess(text string) string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, "")
	text = nonWordPattern.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
