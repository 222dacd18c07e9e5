// SPDX-License-Identifier: MIT

package search

import (
	"fmt"
	"strings"

	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/newznab"
)

// Scored is one classified, scored candidate.
type Scored struct {
	Release        newznab.Release `json:"release"`
	Classification Classification  `json:"classification"`
	Score          int             `json:"score"`
	Reasons        []string        `json:"reasons"`
	HardMismatch   bool            `json:"hard_mismatch"`
	Indexers       []string        `json:"indexers"` // every indexer that returned this key
}

const (
	scoreYearMatch     = 40
	scoreRoundMatch    = 35
	scoreSessionMatch  = 25
	scoreVenueMatch    = 15
	scoreYearMismatch  = -40
	scoreRoundMismatch = -40
	scoreAuxiliary     = -20
	scoreGroup         = 10
	scoreCodec         = 5
	scoreHDRBlocked    = -25
	scoreBadResolution = -30
)

// Score classifies and scores one release against a target. Quality
// preferences come from the settings row, read fresh per search.
func Score(t Target, rel newznab.Release, settings model.Settings) Scored {
	c := Classify(rel.Title, t.VenueAliases)
	s := Scored{Release: rel, Classification: c, Indexers: []string{rel.Indexer}}

	add := func(delta int, reason string) {
		s.Score += delta
		s.Reasons = append(s.Reasons, fmt.Sprintf("%+d %s", delta, reason))
	}

	switch {
	case c.Year == 0:
	case c.Year == t.Year:
		add(scoreYearMatch, "year matches")
	default:
		add(scoreYearMismatch, fmt.Sprintf("year %d, wanted %d", c.Year, t.Year))
		s.HardMismatch = true
	}

	switch {
	case c.Round == 0:
	case c.Round == t.Round:
		add(scoreRoundMatch, "round matches")
	default:
		add(scoreRoundMismatch, fmt.Sprintf("round %d, wanted %d", c.Round, t.Round))
		s.HardMismatch = true
	}

	if c.Session == t.Session && c.Session != model.SessionOther {
		add(scoreSessionMatch, "session matches")
	}
	if c.Venue != "" {
		add(scoreVenueMatch, "venue token "+c.Venue)
	}
	if c.IsAuxiliary() && wantsFootage(t.Session) {
		add(scoreAuxiliary, "auxiliary content "+c.SessionRaw)
	}

	if c.Group != "" && containsFold(settings.PreferredGroups, c.Group) {
		add(scoreGroup, "preferred group "+c.Group)
	}

	inRange := c.Resolution == 0 ||
		(c.Resolution >= settings.MinResolution && c.Resolution <= settings.MaxResolution)
	if c.Codec != "" && containsFold(settings.PreferredCodecs, c.Codec) && inRange {
		add(scoreCodec, "preferred codec "+c.Codec)
	}
	if c.HDR && !settings.AllowHDR {
		add(scoreHDRBlocked, "HDR not allowed")
	}
	if !inRange {
		add(scoreBadResolution, fmt.Sprintf("resolution %dp outside %d-%d",
			c.Resolution, settings.MinResolution, settings.MaxResolution))
	}
	return s
}

func wantsFootage(t model.SessionType) bool {
	switch t {
	case model.SessionRace, model.SessionQualifying, model.SessionSprint,
		model.SessionSprintQualifying, model.SessionFP1, model.SessionFP2, model.SessionFP3:
		return true
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
