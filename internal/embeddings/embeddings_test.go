package embeddings

import (
	"math"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tadoEng/EtabExtension/internal/errs"
)

func testVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(i%17)/8 - 1
	}
	return v
}

func TestStorePutGet(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), "/p/.etabext/branches")
	vec := testVector(768)

	assert.False(t, s.Has("main", "v1"))
	require.NoError(t, s.Put("main", "v1", vec))
	assert.True(t, s.Has("main", "v1"))
	assert.Equal(t, "/p/.etabext/branches/main/embeddings/v1.bin", s.Path("main", "v1"))

	got, err := s.Get("main", "v1")
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = s.Get("main", "v2")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestEncodeRejectsInvalidVectors(t *testing.T) {
	for name, vec := range map[string][]float64{
		"empty": nil,
		"nan":   {1, math.NaN()},
		"inf":   {math.Inf(-1)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Encode(vec)
			assert.ErrorIs(t, err, errs.ErrInvalidRequest)
		})
	}
}

func TestDecodeRejectsBadSizes(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, errs.ErrParseError)
	_, err = Decode(make([]byte, 12))
	assert.ErrorIs(t, err, errs.ErrParseError)

	data, err := Encode([]float64{-1.5, 0, 2.25})
	require.NoError(t, err)
	assert.Len(t, data, 24)
	vec, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []float64{-1.5, 0, 2.25}, vec)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float64
		want    float64
		wantErr bool
	}{
		{name: "identical", a: []float64{1, 2, 3}, b: []float64{1, 2, 3}, want: 1},
		{name: "opposite", a: []float64{1, 2, 3}, b: []float64{-1, -2, -3}, want: -1},
		{name: "orthogonal", a: []float64{1, 0}, b: []float64{0, 1}, want: 0},
		{name: "scaled", a: []float64{1, 2}, b: []float64{2, 4}, want: 1},
		{name: "length mismatch", a: []float64{1}, b: []float64{1, 2}, wantErr: true},
		{name: "empty", wantErr: true},
		{name: "zero vector", a: []float64{0, 0}, b: []float64{1, 1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestScoring(t *testing.T) {
	assert.InDelta(t, 100, SemanticScore(1), 1e-12)
	assert.InDelta(t, 50, SemanticScore(0), 1e-12)
	assert.InDelta(t, 0, SemanticScore(-1), 1e-12)

	words := []string{"steel", "columns"}
	// title hit: 2 occurrences (title is part of the text) + 50 bonus for each word
	assert.Equal(t, 2*10+50+1*10+50, KeywordScore(words, "steel-columns", "switch to steel"))
	assert.Zero(t, KeywordScore(words, "main", "initial design"))

	assert.InDelta(t, 0.3*50+0.7*80, Combine(100, 80, 0.3, 0.7), 1e-12)
	assert.InDelta(t, 0.3*100, Combine(1000, 0, 0.3, 0.7), 1e-12)
}
