// Package similarity scores features against each other and ranks an
// index against a query. The score is a mean structural similarity
// (SSIM) over sliding windows, so two images with the same layout but
// different overall brightness still score highly, unlike a raw pixel
// distance.
package similarity

import (
	"fmt"
	"sort"

	"imagesearch/logging"
	"imagesearch/types"
)

const (
	windowSize   = 7
	k1           = 0.01
	k2           = 0.03
	dynamicRange = 255.0
)

// Score computes the structural similarity between two equally shaped
// features. The result is in [-1, 1]; identical features score exactly 1
// and Score(a, b) == Score(b, a).
func Score(a, b types.Feature) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return 0, fmt.Errorf("feature shape mismatch: %dx%d vs %dx%d",
			a.Width, a.Height, b.Width, b.Height)
	}
	if !a.Valid() || !b.Valid() {
		return 0, fmt.Errorf("feature pixel buffer does not match its declared %dx%d shape",
			a.Width, a.Height)
	}
	if a.Width < windowSize || a.Height < windowSize {
		return 0, fmt.Errorf("feature smaller than the %dx%d comparison window", windowSize, windowSize)
	}

	c1 := (k1 * dynamicRange) * (k1 * dynamicRange)
	c2 := (k2 * dynamicRange) * (k2 * dynamicRange)
	n := float64(windowSize * windowSize)

	var total float64
	var windows int

	for wy := 0; wy+windowSize <= a.Height; wy++ {
		for wx := 0; wx+windowSize <= a.Width; wx++ {
			var sumA, sumB, sumAA, sumBB, sumAB float64

			for y := wy; y < wy+windowSize; y++ {
				row := y * a.Width
				for x := wx; x < wx+windowSize; x++ {
					pa := float64(a.Pix[row+x])
					pb := float64(b.Pix[row+x])
					sumA += pa
					sumB += pb
					sumAA += pa * pa
					sumBB += pb * pb
					sumAB += pa * pb
				}
			}

			muA := sumA / n
			muB := sumB / n
			varA := sumAA/n - muA*muA
			varB := sumBB/n - muB*muB
			cov := sumAB/n - muA*muB

			total += ((2*muA*muB + c1) * (2*cov + c2)) /
				((muA*muA + muB*muB + c1) * (varA + varB + c2))
			windows++
		}
	}

	return total / float64(windows), nil
}

// Rank compares the query against every entry in the index, drops scores
// below threshold and returns at most limit matches in descending score
// order. The scan visits identifiers in ascending order and the final
// sort is stable, so entries with equal scores come back ordered by
// identifier. Entries that cannot be compared (for example a corrupted
// cache entry with the wrong shape) are logged and excluded; they never
// abort the scan. An empty index or a threshold nothing clears yields an
// empty result, not an error.
func Rank(query types.Feature, idx types.Index, threshold float64, limit int) []types.Match {
	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	matches := make([]types.Match, 0, len(ids))
	for _, id := range ids {
		score, err := Score(query, idx[id].Feature)
		if err != nil {
			logging.LogWarning("Skipping %s during ranking: %v", id, err)
			continue
		}
		if score >= threshold {
			matches = append(matches, types.Match{ID: id, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
