package similarity

import (
	"math"
	"testing"

	"imagesearch/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeFeature fills a canonical-size feature from a per-pixel function.
func makeFeature(fill func(x, y int) uint8) types.Feature {
	f := types.Feature{
		Width:  types.FeatureWidth,
		Height: types.FeatureHeight,
		Pix:    make([]uint8, types.FeatureWidth*types.FeatureHeight),
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			f.Pix[y*f.Width+x] = fill(x, y)
		}
	}
	return f
}

func wave(x, y int) uint8 {
	v := 127 + 60*math.Sin(float64(x)/17)*math.Cos(float64(y)/23)
	return uint8(v)
}

// lcg is a deterministic pseudo-random pixel source for noise images.
func lcg(seed uint32) func() uint8 {
	state := seed
	return func() uint8 {
		state = state*1664525 + 1013904223
		return uint8(state >> 24)
	}
}

func TestScoreIdenticalIsOne(t *testing.T) {
	a := makeFeature(wave)
	s, err := Score(a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-12)
}

func TestScoreSymmetry(t *testing.T) {
	a := makeFeature(wave)
	next := lcg(7)
	b := makeFeature(func(x, y int) uint8 { return next() })

	ab, err := Score(a, b)
	require.NoError(t, err)
	ba, err := Score(b, a)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)
}

func TestScoreBounded(t *testing.T) {
	a := makeFeature(wave)
	next := lcg(99)
	b := makeFeature(func(x, y int) uint8 { return next() })

	s, err := Score(a, b)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, s, -1.0)
	assert.LessOrEqual(t, s, 1.0)
}

// A uniform brightness shift preserves structure, so the score must stay
// high; that is the point of using SSIM instead of pixel distance.
func TestScoreToleratesBrightnessShift(t *testing.T) {
	a := makeFeature(wave)
	shifted := makeFeature(func(x, y int) uint8 {
		v := int(wave(x, y)) + 30
		if v > 255 {
			v = 255
		}
		return uint8(v)
	})
	next := lcg(3)
	noise := makeFeature(func(x, y int) uint8 { return next() })

	sShift, err := Score(a, shifted)
	require.NoError(t, err)
	sNoise, err := Score(a, noise)
	require.NoError(t, err)

	assert.Greater(t, sShift, 0.9)
	assert.Greater(t, sShift, sNoise)
}

func TestScoreShapeMismatch(t *testing.T) {
	a := makeFeature(wave)
	b := types.Feature{Width: 64, Height: 64, Pix: make([]uint8, 64*64)}
	_, err := Score(a, b)
	assert.Error(t, err)
}

func TestScoreCorruptBuffer(t *testing.T) {
	a := makeFeature(wave)
	b := types.Feature{Width: a.Width, Height: a.Height, Pix: a.Pix[:100]}
	_, err := Score(a, b)
	assert.Error(t, err)
}

func entry(f types.Feature) types.IndexEntry {
	return types.IndexEntry{Feature: f}
}

func TestRankFiltersSortsAndCaps(t *testing.T) {
	query := makeFeature(wave)
	shifted := makeFeature(func(x, y int) uint8 {
		v := int(wave(x, y)) + 20
		if v > 255 {
			v = 255
		}
		return uint8(v)
	})
	next := lcg(11)
	noise := makeFeature(func(x, y int) uint8 { return next() })

	idx := types.Index{
		"exact":   entry(query),
		"shifted": entry(shifted),
		"noise":   entry(noise),
	}

	matches := Rank(query, idx, 0.5, 10)
	require.Len(t, matches, 2, "noise should fall below the 0.5 threshold")
	assert.Equal(t, "exact", matches[0].ID)
	assert.Equal(t, "shifted", matches[1].ID)
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Score, 0.5)
	}

	capped := Rank(query, idx, -1, 1)
	require.Len(t, capped, 1)
	assert.Equal(t, "exact", capped[0].ID)
}

// Equal scores come back in ascending identifier order: the scan visits
// identifiers sorted and the final sort is stable.
func TestRankTieBreakByIdentifier(t *testing.T) {
	query := makeFeature(wave)
	idx := types.Index{
		"zebra": entry(query),
		"apple": entry(query),
		"mango": entry(query),
	}

	matches := Rank(query, idx, 0.0, 10)
	require.Len(t, matches, 3)
	assert.Equal(t, "apple", matches[0].ID)
	assert.Equal(t, "mango", matches[1].ID)
	assert.Equal(t, "zebra", matches[2].ID)
}

func TestRankEmptyIndex(t *testing.T) {
	query := makeFeature(wave)
	matches := Rank(query, types.Index{}, -1, 10)
	assert.Empty(t, matches)
}

func TestRankNothingAboveThreshold(t *testing.T) {
	query := makeFeature(wave)
	next := lcg(5)
	idx := types.Index{
		"noise": entry(makeFeature(func(x, y int) uint8 { return next() })),
	}
	matches := Rank(query, idx, 0.99, 10)
	assert.Empty(t, matches)
}

// A corrupted cache entry must be skipped, never abort the scan.
func TestRankSkipsIncomparableEntry(t *testing.T) {
	query := makeFeature(wave)
	idx := types.Index{
		"good":    entry(query),
		"corrupt": entry(types.Feature{Width: 16, Height: 16, Pix: make([]uint8, 256)}),
	}

	matches := Rank(query, idx, 0.0, 10)
	require.Len(t, matches, 1)
	assert.Equal(t, "good", matches[0].ID)
}
