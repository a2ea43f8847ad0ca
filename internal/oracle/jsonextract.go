package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	cwerrors "github.com/rooney011/CodeWeaver/internal/errors"
)

// ErrNoJSONObject is returned when a response holds no balanced JSON object.
var ErrNoJSONObject = errors.New("no JSON object found in oracle response")

// StripFences removes a surrounding markdown code fence such as ```json ... ```.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ExtractObject returns the first balanced {...} object in text, after
// stripping code fences. Braces inside JSON strings do not count.
func ExtractObject(text string) (string, error) {
	s := StripFences(text)
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", ErrNoJSONObject
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSONObject
}

// DecodeObject extracts the first JSON object from text and unmarshals it
// into v. Failures are reported as malformed output.
func DecodeObject(op, text string, v any) error {
	obj, err := ExtractObject(text)
	if err != nil {
		return cwerrors.Malformed(op, err)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return cwerrors.Malformed(op, fmt.Errorf("decode oracle JSON: %w", err))
	}
	return nil
}
