package recommend

import (
	"math"
	"testing"
)

func TestVectorizerDropsStopwordsAndShortTokens(t *testing.T) {
	v := NewVectorizer(0)
	v.Fit([]string{"the quick brown fox", "a quick brown dog"})
	for _, term := range []string{"the", "a"} {
		if _, ok := v.vocab[term]; ok {
			t.Fatalf("stopword %q became a feature", term)
		}
	}
	if _, ok := v.vocab["quick"]; !ok {
		t.Fatalf("expected quick in vocabulary, got %v", v.vocab)
	}
}

func TestVectorizerMaxFeaturesCapsByFrequency(t *testing.T) {
	v := NewVectorizer(2)
	v.Fit([]string{
		"fantasy fantasy fantasy dragons",
		"fantasy dragons dragons",
		"romance",
	})
	if v.Dim() != 2 {
		t.Fatalf("dim = %d, want 2", v.Dim())
	}
	for _, term := range []string{"fantasy", "dragons"} {
		if _, ok := v.vocab[term]; !ok {
			t.Fatalf("expected high-frequency term %q kept, got %v", term, v.vocab)
		}
	}
}

func TestCosineRanksRelatedDocsHigher(t *testing.T) {
	v := NewVectorizer(0)
	docs := []string{
		"science fiction space opera galaxy",
		"science fiction galaxy empire",
		"cooking recipes kitchen pasta",
	}
	vectors := v.FitTransform(docs)

	self := Cosine(vectors[0], vectors[0])
	if math.Abs(self-1) > 1e-9 {
		t.Fatalf("self similarity = %v, want 1", self)
	}
	related := Cosine(vectors[0], vectors[1])
	unrelated := Cosine(vectors[0], vectors[2])
	if related <= unrelated {
		t.Fatalf("related %v should outrank unrelated %v", related, unrelated)
	}
}

func TestKMeansSeparatesDistinctGroups(t *testing.T) {
	vectors := [][]float64{
		{1, 0, 0}, {0.9, 0.1, 0}, {1, 0.05, 0},
		{0, 0, 1}, {0, 0.1, 0.9}, {0.05, 0, 1},
	}
	m := NewKMeans(2)
	assignments := m.Fit(vectors)
	if len(assignments) != len(vectors) {
		t.Fatalf("got %d assignments", len(assignments))
	}
	first := assignments[0]
	for i := 1; i < 3; i++ {
		if assignments[i] != first {
			t.Fatalf("first group split across clusters: %v", assignments)
		}
	}
	second := assignments[3]
	if second == first {
		t.Fatalf("distinct groups share a cluster: %v", assignments)
	}
	for i := 4; i < 6; i++ {
		if assignments[i] != second {
			t.Fatalf("second group split across clusters: %v", assignments)
		}
	}
}
