// SPDX-License-Identifier: MIT

// Package f1api consumes the schedule metadata provider. The provider is
// an external collaborator; this package only knows its wire shapes and
// tolerates their quirks (string round numbers, null sessions, unit
// suffixes on circuit length).
package f1api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// FlexInt decodes JSON numbers that sometimes arrive as strings.
type FlexInt int

// UnmarshalJSON accepts 3, "3" and null.
func (f *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		*f = FlexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

// SessionTime is one schedule slot: a date plus an optional time of day.
type SessionTime struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// UTC combines date and time into a UTC instant. Returns nil when the
// slot is empty or unparseable.
func (s *SessionTime) UTC() *time.Time {
	if s == nil || s.Date == "" {
		return nil
	}
	raw := s.Date
	if s.Time != "" {
		raw = s.Date + "T" + s.Time
		if !strings.HasSuffix(s.Time, "Z") && !strings.ContainsAny(s.Time, "+") {
			raw += "Z"
		}
	} else {
		raw += "T00:00:00Z"
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// Schedule carries the session slots of one race weekend. Absent sessions
// decode as nil pointers.
type Schedule struct {
	Race        *SessionTime `json:"race"`
	Qualy       *SessionTime `json:"qualy"`
	FP1         *SessionTime `json:"fp1"`
	FP2         *SessionTime `json:"fp2"`
	FP3         *SessionTime `json:"fp3"`
	SprintQualy *SessionTime `json:"sprintQualy"`
	SprintRace  *SessionTime `json:"sprintRace"`
}

// Circuit describes the venue of a race.
type Circuit struct {
	CircuitID     string `json:"circuitId"`
	CircuitName   string `json:"circuitName"`
	Name          string `json:"name"`
	City          string `json:"city"`
	Country       string `json:"country"`
	CircuitLength string `json:"circuitLength"` // may carry a unit suffix, unused
	Timezone      string `json:"timezone"`
}

// DisplayName returns whichever circuit name field the provider filled.
func (c Circuit) DisplayName() string {
	if c.CircuitName != "" {
		return c.CircuitName
	}
	return c.Name
}

// DriverRef is the winner block of the round endpoint.
type DriverRef struct {
	DriverID string `json:"driverId"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
}

// FullName joins name fields, tolerating partially filled blocks.
func (d *DriverRef) FullName() string {
	if d == nil {
		return ""
	}
	full := strings.TrimSpace(d.Name + " " + d.Surname)
	if full != "" {
		return full
	}
	return d.DriverID
}

// TeamRef is the teamWinner block of the round endpoint.
type TeamRef struct {
	TeamID   string `json:"teamId"`
	TeamName string `json:"teamName"`
}

// DisplayName returns the human-readable team name when present.
func (t *TeamRef) DisplayName() string {
	if t == nil {
		return ""
	}
	if t.TeamName != "" {
		return t.TeamName
	}
	return t.TeamID
}

// Race is one entry of the season payload; the round endpoint returns the
// same shape with winner fields filled in.
type Race struct {
	Round      FlexInt    `json:"round"`
	RaceID     string     `json:"raceId"`
	RaceName   string     `json:"raceName"`
	Name       string     `json:"name"`
	Circuit    Circuit    `json:"circuit"`
	Schedule   *Schedule  `json:"schedule"`
	Winner     *DriverRef `json:"winner"`
	TeamWinner *TeamRef   `json:"teamWinner"`
	FastLap    *DriverRef `json:"fast_lap"`
}

// DisplayName returns whichever race name field the provider filled.
func (r Race) DisplayName() string {
	if r.RaceName != "" {
		return r.RaceName
	}
	return r.Name
}

// SeasonPayload is the season endpoint response.
type SeasonPayload struct {
	Season FlexInt `json:"season"`
	Races  []Race  `json:"races"`
}

// RoundPayload is the round endpoint response. Some deployments wrap the
// race in a single-element array, some inline it.
type RoundPayload struct {
	Race  json.RawMessage `json:"race"`
	Races []Race          `json:"races"`
}

// First extracts the race record regardless of wrapping.
func (p RoundPayload) First() (Race, bool) {
	if len(p.Races) > 0 {
		return p.Races[0], true
	}
	if len(p.Race) == 0 {
		return Race{}, false
	}
	var one Race
	if err := json.Unmarshal(p.Race, &one); err == nil && (one.DisplayName() != "" || one.Round != 0) {
		return one, true
	}
	var many []Race
	if err := json.Unmarshal(p.Race, &many); err == nil && len(many) > 0 {
		return many[0], true
	}
	return Race{}, false
}
