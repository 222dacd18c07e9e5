// SPDX-License-Identifier: MIT

package search

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/racecarr/racecarr/internal/model"
)

// Classification is what the regex pass extracted from one release title.
// Zero values mean "not present in the title".
type Classification struct {
	Year       int
	Round      int
	Session    model.SessionType
	SessionRaw string // pre-canonicalization token, e.g. "Notebook"
	Venue      string // first venue alias that matched, lower-cased
	Resolution int
	Codec      string
	Group      string
	HDR        bool
}

// Auxiliary classes that score negatively when a real session was asked for.
const (
	sessionPreview  = "Preview"
	sessionNotebook = "Notebook"
	sessionPostRace = "Post-Race"
)

var (
	yearRe       = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	roundRe      = regexp.MustCompile(`(?i)\b(?:round|r)\s?0?(\d{1,2})\b`)
	tvRe         = regexp.MustCompile(`(?i)\bS(\d{4})E(\d{2,3})\b`)
	resolutionRe = regexp.MustCompile(`(?i)\b(480|540|576|720|1080|2160)p?\b`)
	codecRe      = regexp.MustCompile(`(?i)\b(x264|h264|x265|h265|hevc|avc|av1|xvid)\b`)
	hdrRe        = regexp.MustCompile(`(?i)\b(hdr(10\+?)?|hlg|dolby vision|dv)\b`)
	groupRe      = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
)

// auxiliary markers outrank session tokens: "Qualifying Preview" is
// editorial filler about qualifying, not qualifying footage.
var auxPatterns = []struct {
	re  *regexp.Regexp
	raw string
}{
	{regexp.MustCompile(`(?i)\bpost.?race\b`), sessionPostRace},
	{regexp.MustCompile(`(?i)\bpreview\b`), sessionPreview},
	{regexp.MustCompile(`(?i)\bnotebook\b`), sessionNotebook},
}

// session tokens in match-priority order; longer tokens first so that
// "Sprint Qualifying" is not eaten by "Sprint" or "Qualifying".
var sessionPatterns = []struct {
	re      *regexp.Regexp
	session model.SessionType
	raw     string
}{
	{regexp.MustCompile(`(?i)\bsprint\s?(qualifying|shootout)\b`), model.SessionSprintQualifying, "Sprint Qualifying"},
	{regexp.MustCompile(`(?i)\bpractice\s?(one|1)\b|\bfp1\b`), model.SessionFP1, "FP1"},
	{regexp.MustCompile(`(?i)\bpractice\s?(two|2)\b|\bfp2\b`), model.SessionFP2, "FP2"},
	{regexp.MustCompile(`(?i)\bpractice\s?(three|3)\b|\bfp3\b`), model.SessionFP3, "FP3"},
	{regexp.MustCompile(`(?i)\bqualifying\b|\bqualy\b`), model.SessionQualifying, "Qualifying"},
	{regexp.MustCompile(`(?i)\bsprint\b`), model.SessionSprint, "Sprint"},
	{regexp.MustCompile(`(?i)\brace\b|\bgrand\s?prix\b`), model.SessionRace, "Race"},
	{regexp.MustCompile(`(?i)\bshakedown\b`), model.SessionOther, "Shakedown"},
	{regexp.MustCompile(`(?i)\bpractice\b`), model.SessionOther, "Practice"},
}

// Classify runs the regex pass over one title. venueAliases are matched
// as whole tokens against the normalized title.
func Classify(title string, venueAliases []string) Classification {
	normalized := normalizeTitle(title)
	var c Classification

	// Group comes off the raw title tail, before normalization loses the dash.
	if m := groupRe.FindStringSubmatch(strings.TrimSpace(title)); m != nil {
		if !resolutionRe.MatchString(m[1]) && !codecRe.MatchString(m[1]) {
			c.Group = m[1]
		}
	}

	if m := tvRe.FindStringSubmatch(normalized); m != nil {
		c.Year, _ = strconv.Atoi(m[1])
		c.Round, _ = strconv.Atoi(m[2])
	}
	if c.Year == 0 {
		if m := yearRe.FindString(normalized); m != "" {
			c.Year, _ = strconv.Atoi(m)
		}
	}
	if c.Round == 0 {
		if m := roundRe.FindStringSubmatch(normalized); m != nil {
			c.Round, _ = strconv.Atoi(m[1])
		}
	}

	for _, ap := range auxPatterns {
		if ap.re.MatchString(normalized) {
			c.Session = model.SessionOther
			c.SessionRaw = ap.raw
			break
		}
	}
	if c.SessionRaw == "" {
		for _, sp := range sessionPatterns {
			if sp.re.MatchString(normalized) {
				c.Session = sp.session
				c.SessionRaw = sp.raw
				break
			}
		}
	}
	if c.SessionRaw == "" {
		c.Session = model.SessionOther
	}

	lower := strings.ToLower(normalized)
	for _, alias := range venueAliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a != "" && containsToken(lower, a) {
			c.Venue = a
			break
		}
	}

	if m := resolutionRe.FindStringSubmatch(normalized); m != nil {
		c.Resolution, _ = strconv.Atoi(m[1])
	}
	if m := codecRe.FindString(normalized); m != "" {
		c.Codec = strings.ToLower(m)
	}
	c.HDR = hdrRe.MatchString(normalized)
	return c
}

// IsAuxiliary reports whether the classification is editorial filler
// rather than session footage.
func (c Classification) IsAuxiliary() bool {
	switch c.SessionRaw {
	case sessionPreview, sessionNotebook, sessionPostRace:
		return true
	}
	return false
}

func normalizeTitle(title string) string {
	replacer := strings.NewReplacer(".", " ", "_", " ")
	return strings.Join(strings.Fields(replacer.Replace(title)), " ")
}

func containsToken(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		i += idx
		startOK := i == 0 || haystack[i-1] == ' '
		end := i + len(needle)
		endOK := end == len(haystack) || haystack[end] == ' '
		if startOK && endOK {
			return true
		}
		idx = i + 1
	}
}
