package embeddings

import (
	"fmt"
	"math"
	"strings"
)

// CosineSimilarity returns the cosine of the angle between a and b, in
// [-1, 1].
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have same length: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("vector norm cannot be zero")
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// rounding can push the ratio just past the bounds
	return math.Max(-1, math.Min(1, sim)), nil
}

// SemanticScore maps a cosine similarity onto 0..100.
func SemanticScore(similarity float64) float64 {
	return (similarity + 1) * 50
}

// KeywordScore counts query words in text, ten points per occurrence, with
// a bonus of fifty for each word found in title.
func KeywordScore(words []string, title, text string) int {
	title = strings.ToLower(title)
	text = strings.ToLower(title + " " + text)
	score := 0
	for _, w := range words {
		w = strings.ToLower(w)
		if w == "" {
			continue
		}
		score += strings.Count(text, w) * 10
		if strings.Contains(title, w) {
			score += 50
		}
	}
	return score
}

// Combine blends a keyword score with a semantic score. Keyword scores are
// halved and capped at 100 to share the semantic scale.
func Combine(keyword int, semantic, keywordWeight, semanticWeight float64) float64 {
	k := math.Min(float64(keyword)/2, 100)
	return keywordWeight*k + semanticWeight*semantic
}
