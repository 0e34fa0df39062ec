// Package ticket builds and reads the QR codes printed on attendee tickets.
package ticket

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxBareIDLength bounds how long an unstructured payload may be and still be
// treated as a bare identifier.
const MaxBareIDLength = 50

var (
	quotedIDPattern = regexp.MustCompile(`"id"\s*:\s*"([^"]+)"`)
	uuidPattern     = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

// jsonIDKeys are tried in order against a decoded payload.
var jsonIDKeys = []string{"id", "ID", "Id"}

// Extract returns the attendee identifier carried by a scanned payload.
// It accepts full JSON tickets, JSON clipped mid-capture, text embedding a
// UUID and short bare tokens. The boolean is false when nothing usable was found.
func Extract(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false
	}

	if strings.HasPrefix(text, "{") {
		parsed := false
		if strings.HasSuffix(text, "}") {
			var doc map[string]interface{}
			if err := json.Unmarshal([]byte(text), &doc); err == nil {
				parsed = true
				if id, ok := idFromDocument(doc); ok {
					return id, true
				}
			}
		}
		if !parsed {
			if m := quotedIDPattern.FindStringSubmatch(text); len(m) == 2 {
				return m[1], true
			}
		}
	}

	if id := uuidPattern.FindString(text); id != "" {
		return id, true
	}

	if utf8.RuneCountInString(text) < MaxBareIDLength {
		return text, true
	}

	return "", false
}

// NormalizeID strips the legacy "id:" prefix written by older ticket printers.
func NormalizeID(id string) string {
	trimmed := strings.TrimSpace(id)
	if len(trimmed) > 3 && strings.EqualFold(trimmed[:3], "id:") {
		return strings.TrimSpace(trimmed[3:])
	}
	return trimmed
}

func idFromDocument(doc map[string]interface{}) (string, bool) {
	for _, key := range jsonIDKeys {
		value, ok := doc[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		}
	}
	return "", false
}
