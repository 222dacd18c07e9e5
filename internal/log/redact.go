// SPDX-License-Identifier: MIT

package log

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Secrets reach this process as indexer/downloader API keys, apikey query
// parameters and webhook secrets. Everything that may carry one of them is
// pushed through Redact before it is logged or written to last_error.

var (
	apikeyQueryRe  = regexp.MustCompile(`(?i)(apikey|api_key|token|secret)=([^&\s"']+)`)
	apikeyHeaderRe = regexp.MustCompile(`(?i)(x-api-key|authorization)\s*[:=]\s*\S+`)

	secretMu     sync.RWMutex
	knownSecrets []string
)

// RegisterSecret records a literal secret value so Redact can mask it even
// when it appears outside a recognised key=value shape (e.g. webhook
// secrets embedded in notification URLs).
func RegisterSecret(s string) {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		// Too short to mask without shredding ordinary text.
		return
	}
	secretMu.Lock()
	defer secretMu.Unlock()
	for _, known := range knownSecrets {
		if known == s {
			return
		}
	}
	knownSecrets = append(knownSecrets, s)
}

// Redact masks API keys and registered secrets in s.
func Redact(s string) string {
	if s == "" {
		return s
	}
	out := apikeyQueryRe.ReplaceAllString(s, "$1=***")
	out = apikeyHeaderRe.ReplaceAllString(out, "$1: ***")
	secretMu.RLock()
	defer secretMu.RUnlock()
	for _, secret := range knownSecrets {
		out = strings.ReplaceAll(out, secret, "***")
	}
	return out
}

// MaskURL strips userinfo and secret-bearing query parameters from a URL
// for safe logging. Unparseable input is fully masked.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url-redacted"
	}
	u.User = nil
	q := u.Query()
	for key := range q {
		switch strings.ToLower(key) {
		case "apikey", "api_key", "token", "secret":
			q.Set(key, "***")
		}
	}
	u.RawQuery = q.Encode()
	return Redact(u.String())
}
