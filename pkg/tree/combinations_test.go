package tree

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func types(cs []Combination) [][]ErrorType {
	out := make([][]ErrorType, len(cs))
	for i, c := range cs {
		out[i] = c.Types
	}
	return out
}

func TestDifferenceCombinationsRegression(t *testing.T) {
	cs, err := DifferenceCombinations(0.5, []float64{0.2, 0.3, 10.0}, nil)
	require.NoError(t, err)

	expected := [][]ErrorType{
		{},
		{Mismatch},
		{Deletion},
		{Mismatch, Mismatch},
		{Mismatch, Deletion},
		{Deletion, Mismatch},
	}
	assert.Equal(t, expected, types(cs))
}

func TestDifferenceCombinationsCaps(t *testing.T) {
	cs, err := DifferenceCombinations(2, []float64{1, 1, 1}, []int{1, 0, 1})
	require.NoError(t, err)

	expected := [][]ErrorType{
		{},
		{Mismatch},
		{Insertion},
		{Mismatch, Insertion},
		{Insertion, Mismatch},
	}
	assert.Equal(t, expected, types(cs))
}

func TestDifferenceCombinationsEqualPenaltyTieBreak(t *testing.T) {
	// all types cost the same: order falls back to type ids
	cs, err := DifferenceCombinations(1, []float64{1, 1, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, [][]ErrorType{{}, {Mismatch}, {Deletion}, {Insertion}}, types(cs))
}

func TestDifferenceCombinationsNegativeBudget(t *testing.T) {
	cs, err := DifferenceCombinations(-1, []float64{1, 1, 1}, nil)
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Empty(t, cs[0].Types)
	assert.Zero(t, cs[0].Penalty)
}

func TestDifferenceCombinationsInvalid(t *testing.T) {
	testCases := []struct {
		name      string
		penalties []float64
		caps      []int
	}{
		{"short penalty vector", []float64{1, 1}, nil},
		{"long penalty vector", []float64{1, 1, 1, 1}, nil},
		{"short caps", []float64{1, 1, 1}, []int{1}},
		{"negative penalty", []float64{-1, 1, 1}, nil},
		{"negative cap", []float64{1, 1, 1}, []int{1, -1, 1}},
		{"free uncapped edit", []float64{0, 1, 1}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DifferenceCombinations(1, tc.penalties, tc.caps)
			assert.True(t, errors.Is(err, seq.ErrInvalidArgument), "got %v", err)
		})
	}

	// a free edit is fine once capped
	cs, err := DifferenceCombinations(1, []float64{0, 1, 1}, []int{2, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []ErrorType{Mismatch, Mismatch}, cs[2].Types)
}

func TestDifferenceCombinationsBoundedBudget(t *testing.T) {
	_, err := DifferenceCombinations(math.NaN(), []float64{1, 1, 1}, nil)
	assert.True(t, errors.Is(err, seq.ErrInvalidArgument), "got %v", err)

	_, err = DifferenceCombinations(math.Inf(1), []float64{1, 1, 1}, nil)
	assert.True(t, errors.Is(err, seq.ErrInvalidArgument), "got %v", err)

	// every type capped: words of at most one edit each
	cs, err := DifferenceCombinations(math.Inf(1), []float64{1, 1, 1}, []int{1, 1, 1})
	require.NoError(t, err)
	assert.Len(t, cs, 16)

	fuzzy := []float64{1, 1.5, 1.5}
	_, err = LimitedDifferenceCombinations(8, fuzzy, nil, 100)
	assert.True(t, errors.Is(err, seq.ErrInvalidArgument), "got %v", err)

	cs, err = LimitedDifferenceCombinations(8, fuzzy, nil, 1000)
	require.NoError(t, err)
	assert.Len(t, cs, 937)
}

func TestDifferenceCombinationsOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		penalties := []float64{
			0.1 + rng.Float64(),
			0.1 + rng.Float64(),
			0.1 + rng.Float64(),
		}
		var caps []int
		if round%2 == 0 {
			caps = []int{rng.Intn(3), rng.Intn(3), rng.Intn(3)}
		}
		maxPenalty := rng.Float64() * 3

		cs, err := DifferenceCombinations(maxPenalty, penalties, caps)
		require.NoError(t, err)
		require.NotEmpty(t, cs)
		assert.Empty(t, cs[0].Types)

		seen := map[string]bool{}
		for i, c := range cs {
			assert.LessOrEqual(t, c.Penalty, maxPenalty+1e-12)
			if i > 0 {
				assert.LessOrEqual(t, cs[i-1].Penalty, c.Penalty)
				assert.True(t, combinationLess(cs[i-1], c, penalties))
			}
			key := c.String()
			assert.False(t, seen[key], "duplicate %s", key)
			seen[key] = true
			if caps != nil {
				counts := c.Counts()
				for ty := range counts {
					assert.LessOrEqual(t, counts[ty], caps[ty])
				}
			}
		}
	}
}

func TestPenaltyPresets(t *testing.T) {
	p, err := PresetByName("strict")
	require.NoError(t, err)
	assert.Equal(t, Strict, p)
	assert.InDelta(t, 2.0, Strict.Threshold(10), 1e-9)
	assert.Equal(t, 10.0, Strict.Penalty(Insertion))

	_, err = PresetByName("lenient")
	assert.True(t, errors.Is(err, seq.ErrInvalidArgument))

	custom := NewPenalty(2, 3, 4)
	assert.Equal(t, 2.0, custom.Threshold(100))
	assert.Equal(t, []float64{2, 3, 4}, Penalties(custom))

	scaled := custom.WithThreshold(1, 0.5)
	assert.Equal(t, 6.0, scaled.Threshold(10))
	assert.Equal(t, 3.0, scaled.Penalty(Deletion))
}
