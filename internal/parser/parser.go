// Package parser turns raw model output into the canonical decision record.
// Parsing never fails: any text the model produces — fenced, prose-wrapped,
// truncated or plain wrong — degrades to safe defaults, per field.
package parser

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"

	"leadpilot/internal/models"
)

// Fields is the validated decision record. Every field is guaranteed to hold
// a canonical value after Parse or Validate.
type Fields struct {
	Channel  string `json:"channel"`
	Priority int    `json:"priority"`
	ToAgent  bool   `json:"to_agent"`
	Notes    string `json:"notes"`

	// ChannelSuggested reports whether Channel came from the payload rather
	// than the default. Channel resolution treats a defaulted channel as no
	// suggestion at all, so the weaker resolution tiers stay reachable.
	ChannelSuggested bool `json:"-"`
}

const (
	MinPriority = 1
	MaxPriority = 10

	maxNotesLen = 200

	DefaultChannel  = string(models.ChannelEmail)
	DefaultPriority = 5
	DefaultToAgent  = false
	DefaultNotes    = "Automated follow-up recommended."
)

// Defaults returns the canonical fallback record.
func Defaults() Fields {
	return Fields{
		Channel:  DefaultChannel,
		Priority: DefaultPriority,
		ToAgent:  DefaultToAgent,
		Notes:    DefaultNotes,
	}
}

// Parse extracts and validates a decision record from raw model output.
// Empty input, undecodable input, or a payload with no JSON object in it all
// yield the full default record; a decodable payload is validated per field.
func Parse(raw string) Fields {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Defaults()
	}

	cleaned := cleanResponse(raw)
	if cleaned == "" {
		return Defaults()
	}

	obj, ok := decodeObject(cleaned)
	if !ok {
		return Defaults()
	}
	return Validate(obj)
}

// cleanResponse strips a markdown code fence and any prose surrounding the
// first top-level JSON object. Returns "" when no object is present.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	return extractObject(s)
}

// extractObject returns the first balanced top-level {...} substring of s,
// tracking string literals so braces inside values don't break the scan.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// skip
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// decodeObject unmarshals s into a generic map, giving malformed JSON one
// repair attempt before giving up.
func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj, true
	}

	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil, false
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

// Validate checks each canonical field of obj independently, substituting the
// default for any field that is missing or fails its check. Unknown keys are
// dropped. There is no partial trust: one bad field never taints another.
func Validate(obj map[string]any) Fields {
	f := Defaults()

	if ch, ok := validChannel(obj["channel"]); ok {
		f.Channel = ch
		f.ChannelSuggested = true
	}
	if p, ok := validPriority(obj["priority"]); ok {
		f.Priority = p
	}
	if b, ok := validToAgent(obj["to_agent"]); ok {
		f.ToAgent = b
	}
	if n, ok := validNotes(obj["notes"]); ok {
		f.Notes = n
	}
	return f
}

// IsValid reports whether obj would pass validation with no substitutions:
// all four fields present and individually valid.
func IsValid(obj map[string]any) bool {
	if _, ok := validChannel(obj["channel"]); !ok {
		return false
	}
	if _, ok := validPriority(obj["priority"]); !ok {
		return false
	}
	if _, ok := validToAgent(obj["to_agent"]); !ok {
		return false
	}
	if _, ok := validNotes(obj["notes"]); !ok {
		return false
	}
	return true
}

// ─── Field validators ────────────────────────────────────────────────────────

func validChannel(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !models.IsCanonicalChannel(s) {
		return "", false
	}
	return s, true
}

// validPriority accepts only whole numbers in [MinPriority, MaxPriority].
// Out-of-range or non-numeric values reject the field entirely — the caller
// reverts to the default rather than clamping to a bound.
func validPriority(v any) (int, bool) {
	n, ok := v.(float64) // encoding/json decodes all numbers as float64
	if !ok || n != math.Trunc(n) {
		return 0, false
	}
	p := int(n)
	if p < MinPriority || p > MaxPriority {
		return 0, false
	}
	return p, true
}

func validToAgent(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(t) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

func validNotes(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return TruncateNotes(s), true
}

// TruncateNotes caps s at 200 characters, marking the cut with an ellipsis.
// The limit counts runes, not bytes, so multibyte notes are never cut
// mid-character.
func TruncateNotes(s string) string {
	if utf8.RuneCountInString(s) <= maxNotesLen {
		return s
	}
	return string([]rune(s)[:maxNotesLen-3]) + "..."
}
