// SPDX-License-Identifier: MIT

package newznab

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Indexers answer in either RSS/XML or a JSON rendering of the same
// document. parseResults accepts both.
func parseResults(body []byte) ([]Release, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '<' {
		return parseXML(trimmed)
	}
	return parseJSON(trimmed)
}

// --- XML shape ---

type rssDoc struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title     string `xml:"title"`
	Link      string `xml:"link"`
	PubDate   string `xml:"pubDate"`
	Category  string `xml:"category"`
	Enclosure struct {
		URL    string `xml:"url,attr"`
		Length string `xml:"length,attr"`
	} `xml:"enclosure"`
	Attrs []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"attr"`
}

func parseXML(body []byte) ([]Release, error) {
	var doc rssDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("xml: %w", err)
	}
	out := make([]Release, 0, len(doc.Channel.Items))
	for _, item := range doc.Channel.Items {
		r := Release{
			Title:    item.Title,
			NZBURL:   item.Link,
			Category: item.Category,
			PubDate:  parsePubDate(item.PubDate),
		}
		if r.NZBURL == "" {
			r.NZBURL = item.Enclosure.URL
		}
		if item.Enclosure.Length != "" {
			r.SizeBytes, _ = strconv.ParseInt(item.Enclosure.Length, 10, 64)
		}
		for _, attr := range item.Attrs {
			switch attr.Name {
			case "size":
				if n, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
					r.SizeBytes = n
				}
			case "group":
				r.Group = attr.Value
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// --- JSON shape ---

type jsonDoc struct {
	Channel struct {
		Item json.RawMessage `json:"item"`
	} `json:"channel"`
	Item json.RawMessage `json:"item"`
}

type jsonItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	PubDate   string `json:"pubDate"`
	Category  string `json:"category"`
	Enclosure struct {
		Attributes struct {
			URL    string `json:"url"`
			Length string `json:"length"`
		} `json:"@attributes"`
	} `json:"enclosure"`
	Attr []struct {
		Attributes struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"@attributes"`
	} `json:"attr"`
}

func parseJSON(body []byte) ([]Release, error) {
	var doc jsonDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	raw := doc.Channel.Item
	if len(raw) == 0 {
		raw = doc.Item
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// item may be an array or a single object.
	var items []jsonItem
	if err := json.Unmarshal(raw, &items); err != nil {
		var single jsonItem
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("json items: %w", err)
		}
		items = []jsonItem{single}
	}

	out := make([]Release, 0, len(items))
	for _, item := range items {
		r := Release{
			Title:    item.Title,
			NZBURL:   item.Link,
			Category: item.Category,
			PubDate:  parsePubDate(item.PubDate),
		}
		if r.NZBURL == "" {
			r.NZBURL = item.Enclosure.Attributes.URL
		}
		if item.Enclosure.Attributes.Length != "" {
			r.SizeBytes, _ = strconv.ParseInt(item.Enclosure.Attributes.Length, 10, 64)
		}
		for _, attr := range item.Attr {
			switch attr.Attributes.Name {
			case "size":
				if n, err := strconv.ParseInt(attr.Attributes.Value, 10, 64); err == nil {
					r.SizeBytes = n
				}
			case "group":
				r.Group = attr.Attributes.Value
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func parsePubDate(s string) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// --- error / caps sniffing ---

var errorElementRe = regexp.MustCompile(`<error\s+code="(\d+)"(?:\s+description="([^"]*)")?`)

// errorElement detects the Newznab <error code=".."/> document that some
// indexers return with HTTP 200.
func errorElement(body []byte) (int, string, bool) {
	m := errorElementRe.FindSubmatch(bytes.TrimSpace(body))
	if m == nil {
		return 0, "", false
	}
	code, _ := strconv.Atoi(string(m[1]))
	return code, string(m[2]), true
}

// hasCaps reports whether the body looks like a caps document, in either
// XML or JSON rendering.
func hasCaps(body []byte) bool {
	lower := bytes.ToLower(bytes.TrimSpace(body))
	if bytes.Contains(lower, []byte("<caps")) {
		return true
	}
	if len(lower) > 0 && lower[0] == '{' {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(lower, &doc); err == nil {
			_, ok := doc["caps"]
			if ok {
				return true
			}
			_, ok = doc["server"]
			return ok
		}
	}
	return false
}
