// SPDX-License-Identifier: MIT

// Package search builds the indexer query fan-out for one session, then
// classifies, scores and merges whatever the indexers return.
package search

import (
	"fmt"
	"strings"

	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/newznab"
)

// Target is the session a fan-out is built for. Venue aliases come from
// the round row (city, country, circuit) plus the operator alias table.
type Target struct {
	Year         int
	Round        int
	Session      model.SessionType
	VenueAliases []string
	MaxAgeDays   int
}

// sessionToken maps a session type to the token releases use for it.
var sessionToken = map[model.SessionType]string{
	model.SessionFP1:              "FP1",
	model.SessionFP2:              "FP2",
	model.SessionFP3:              "FP3",
	model.SessionQualifying:       "Qualifying",
	model.SessionSprint:           "Sprint",
	model.SessionSprintQualifying: "Sprint Qualifying",
	model.SessionRace:             "Race",
}

// BuildQueries emits the fan-out for one target: three keyword shapes per
// venue alias plus one tvsearch shape keyed season=year, ep=round.
func BuildQueries(t Target) []newznab.Query {
	session := sessionToken[t.Session]
	if session == "" {
		session = string(t.Session)
	}

	venues := t.VenueAliases
	if len(venues) == 0 {
		venues = []string{""}
	}

	var out []newznab.Query
	seen := make(map[string]bool)
	add := func(q newznab.Query) {
		key := q.Type + "|" + q.Q
		if !seen[key] {
			seen[key] = true
			q.MaxAgeDays = t.MaxAgeDays
			out = append(out, q)
		}
	}

	for _, venue := range venues {
		add(newznab.Query{Q: joinTokens("Formula 1", fmt.Sprint(t.Year), venue, session)})
		add(newznab.Query{Q: joinTokens("Formula1", fmt.Sprint(t.Year), fmt.Sprintf("Round%02d", t.Round), venue, session)})
		add(newznab.Query{Q: joinTokens("F1", fmt.Sprint(t.Year), venue, session)})
	}
	add(newznab.Query{
		Type:    "tvsearch",
		Q:       joinTokens("Formula 1", session),
		Season:  t.Year,
		Episode: t.Round,
	})
	return out
}

func joinTokens(tokens ...string) string {
	parts := tokens[:0]
	for _, tok := range tokens {
		if tok = strings.TrimSpace(tok); tok != "" {
			parts = append(parts, tok)
		}
	}
	return strings.Join(parts, " ")
}

// VenueAliasesForRound derives the alias set a classifier matches venue
// tokens against: city, country and circuit words from the round row,
// merged with the operator alias table entries for the circuit.
func VenueAliasesForRound(r model.Round, extra []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	add(r.City)
	add(r.Country)
	// "Circuit Gilles Villeneuve" also matches as "Villeneuve".
	words := strings.Fields(r.Circuit)
	if len(words) > 0 {
		add(words[len(words)-1])
	}
	for _, a := range extra {
		add(a)
	}
	return out
}
