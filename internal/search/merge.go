// SPDX-License-Identifier: MIT

package search

import (
	"fmt"
	"sort"
	"strings"

	"github.com/racecarr/racecarr/internal/model"
)

// canonicalKey collapses the same release seen through multiple queries or
// indexers. Size is bucketed to 256 MiB so re-posts with minor par2
// differences still merge.
func canonicalKey(s Scored) string {
	c := s.Classification
	return fmt.Sprintf("%d|%d|%s|%s|%d|%s|%s|%d",
		c.Year, c.Round, c.Session, c.Venue,
		c.Resolution, c.Codec, strings.ToLower(c.Group),
		s.Release.SizeBytes>>28)
}

// Merge dedupes by canonical key, keeping the highest-scored instance and
// accumulating the contributing indexer names, then orders best-first.
func Merge(candidates []Scored, settings model.Settings) []Scored {
	byKey := make(map[string]*Scored)
	var order []string
	for _, cand := range candidates {
		key := canonicalKey(cand)
		existing, ok := byKey[key]
		if !ok {
			c := cand
			byKey[key] = &c
			order = append(order, key)
			continue
		}
		for _, ix := range cand.Indexers {
			if !containsFold(existing.Indexers, ix) {
				existing.Indexers = append(existing.Indexers, ix)
			}
		}
		if cand.Score > existing.Score {
			indexers := existing.Indexers
			*existing = cand
			existing.Indexers = indexers
		}
	}

	out := make([]Scored, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	sortCandidates(out, settings)
	return out
}

// sortCandidates orders best-first: score, then preferred resolution,
// preferred codec, newer pubdate, smaller deviation from the median size.
func sortCandidates(out []Scored, settings model.Settings) {
	median := medianSize(out)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ar := resolutionPreferred(a.Classification.Resolution, settings)
		br := resolutionPreferred(b.Classification.Resolution, settings)
		if ar != br {
			return ar
		}
		ac := containsFold(settings.PreferredCodecs, a.Classification.Codec)
		bc := containsFold(settings.PreferredCodecs, b.Classification.Codec)
		if ac != bc {
			return ac
		}
		if !a.Release.PubDate.Equal(b.Release.PubDate) {
			return a.Release.PubDate.After(b.Release.PubDate)
		}
		return sizeDeviation(a.Release.SizeBytes, median) < sizeDeviation(b.Release.SizeBytes, median)
	})
}

func resolutionPreferred(res int, settings model.Settings) bool {
	return res != 0 && res == settings.MaxResolution
}

func medianSize(list []Scored) int64 {
	sizes := make([]int64, 0, len(list))
	for _, s := range list {
		if s.Release.SizeBytes > 0 {
			sizes = append(sizes, s.Release.SizeBytes)
		}
	}
	if len(sizes) == 0 {
		return 0
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	return sizes[len(sizes)/2]
}

func sizeDeviation(size, median int64) int64 {
	d := size - median
	if d < 0 {
		d = -d
	}
	return d
}

// Best returns the top auto-grab candidate: the first merged entry that
// carries no hard mismatch. Manual surfaces still see the full list.
func Best(merged []Scored) (Scored, bool) {
	for _, s := range merged {
		if !s.HardMismatch {
			return s, true
		}
	}
	return Scored{}, false
}
