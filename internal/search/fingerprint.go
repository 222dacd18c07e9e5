// SPDX-License-Identifier: MIT

package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/racecarr/racecarr/internal/model"
)

// Fingerprint identifies an event allowlist for round-cache keying. The
// list is lower-cased and sorted first so ordering and casing differences
// hit the same cache row. An empty allowlist fingerprints as "all".
func Fingerprint(allowlist []model.SessionType) string {
	if len(allowlist) == 0 {
		allowlist = model.SessionTypes
	}
	tokens := make([]string, len(allowlist))
	for i, t := range allowlist {
		tokens[i] = strings.ToLower(string(t))
	}
	sort.Strings(tokens)
	sum := sha256.Sum256([]byte(strings.Join(tokens, ",")))
	return hex.EncodeToString(sum[:])
}
