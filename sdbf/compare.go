package sdbf

import (
	"math"

	"github.com/Anish-Chanda/sdhash/internal/featurehash"
)

const (
	// DefaultMinFeatures is the thresholdLow used when Compare is given a
	// non-positive one.
	DefaultMinFeatures = 16
	// EmptyScore is returned when neither digest has a chunk worth comparing.
	EmptyScore = 0

	// cutoffFraction places the match cutoff between the expected chance
	// overlap and the largest possible overlap.
	cutoffFraction = 0.3
)

// Compare returns a similarity score in [0, 100] for a and b.
//
// Chunks holding fewer than thresholdLow features are ignored (<= 0 selects
// DefaultMinFeatures); if that leaves either side with nothing, any non-empty
// chunk is eligible. thresholdHigh > 0 caps how many reference chunks a
// whole-source comparison samples. Whole-source digests average, over the
// side with fewer eligible chunks, each chunk's best match in the other side;
// if either digest is block-based the best single chunk pair decides.
// Compare is symmetric for every thresholdLow and thresholdHigh.
func Compare(a, b *Digest, thresholdLow, thresholdHigh int) int {
	if thresholdLow <= 0 {
		thresholdLow = DefaultMinFeatures
	}
	ea, eb := eligible(a, thresholdLow), eligible(b, thresholdLow)
	if len(ea) == 0 || len(eb) == 0 {
		ea, eb = eligible(a, 1), eligible(b, 1)
	}
	if len(ea) == 0 || len(eb) == 0 {
		return EmptyScore
	}

	var s float64
	switch {
	case a.blockSize > 0 || b.blockSize > 0:
		s = bestPair(ea, eb)
	case len(ea) < len(eb):
		s = directed(ea, eb, thresholdHigh)
	case len(eb) < len(ea):
		s = directed(eb, ea, thresholdHigh)
	default:
		s = max(directed(ea, eb, thresholdHigh), directed(eb, ea, thresholdHigh))
	}
	return min(100, max(0, int(math.Round(100*s))))
}

func eligible(d *Digest, minFeatures int) []chunk {
	var out []chunk
	for _, c := range d.chunks {
		if c.count >= minFeatures {
			out = append(out, c)
		}
	}
	return out
}

// directed averages, for each reference chunk, its best score against the
// targets, weighted by the smaller popcount of the winning pair.
func directed(ref, targets []chunk, sample int) float64 {
	if sample > 0 && len(ref) > sample {
		ref = ref[:sample]
	}
	var sum, weight float64
	for _, r := range ref {
		best, w := -1.0, 0
		for _, t := range targets {
			if s := pairScore(r, t); s > best {
				best, w = s, min(r.weight, t.weight)
			}
		}
		sum += best * float64(w)
		weight += float64(w)
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

func bestPair(as, bs []chunk) float64 {
	best := 0.0
	for _, a := range as {
		for _, b := range bs {
			best = max(best, pairScore(a, b))
		}
	}
	return best
}

// pairScore rescales the common bit count of two filters so that chance
// overlap scores 0 and complete containment of the sparser filter scores 1.
func pairScore(a, b chunk) float64 {
	maxEst := float64(min(a.weight, b.weight))
	minEst := chanceOverlap(a.count, b.count)
	cut := math.Ceil(cutoffFraction*(maxEst-minEst) + minEst)
	if maxEst <= cut {
		return 0
	}
	match := float64(a.bits.IntersectionCardinality(b.bits))
	if match <= cut {
		return 0
	}
	return (match - cut) / (maxEst - cut)
}

// chanceOverlap is the expected number of bits set in both of two unrelated
// filters holding n1 and n2 features.
func chanceOverlap(n1, n2 int) float64 {
	p := 1 - 1/float64(filterBits)
	k := float64(featurehash.Count)
	return filterBits * (1 - math.Pow(p, k*float64(n1))) * (1 - math.Pow(p, k*float64(n2)))
}
