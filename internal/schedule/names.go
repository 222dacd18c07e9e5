// SPDX-License-Identifier: MIT

package schedule

import (
	"regexp"
	"strings"
)

// Official race names tend to be sponsor-heavy
// ("FORMULA 1 GULF AIR BAHRAIN GRAND PRIX 2025"). CleanRaceName strips the
// series prefix, the trailing year and known sponsor tokens, keeping the
// raw name as an alias for classification.

var sponsorTokens = []string{
	"gulf air", "aramco", "rolex", "heineken", "pirelli", "crypto.com",
	"qatar airways", "msc cruises", "aws", "stc", "etihad airways",
	"lenovo", "singapore airlines", "louis vuitton", "moet & chandon",
}

var (
	seriesPrefixRe = regexp.MustCompile(`(?i)^formula\s*1\s+`)
	trailingYearRe = regexp.MustCompile(`\s+(19|20)\d{2}$`)
	spacesRe       = regexp.MustCompile(`\s{2,}`)
)

// CleanRaceName returns (clean, raw). The raw name is preserved verbatim;
// clean has series prefix, year suffix and sponsor tokens removed and is
// title-cased when the input arrived fully upper-cased.
func CleanRaceName(name string) (string, string) {
	raw := strings.TrimSpace(name)
	clean := seriesPrefixRe.ReplaceAllString(raw, "")
	clean = trailingYearRe.ReplaceAllString(clean, "")

	lower := strings.ToLower(clean)
	for _, tok := range sponsorTokens {
		if idx := strings.Index(lower, tok); idx >= 0 {
			clean = clean[:idx] + clean[idx+len(tok):]
			lower = strings.ToLower(clean)
		}
	}
	clean = spacesRe.ReplaceAllString(strings.TrimSpace(clean), " ")

	if clean == "" {
		return raw, raw
	}
	if clean == strings.ToUpper(clean) {
		clean = titleCase(clean)
	}
	return clean, raw
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
