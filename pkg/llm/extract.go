package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON decodes a JSON object out of a model response into dst. Even
// in JSON mode, providers sometimes wrap the object in prose or a code
// fence, so three strategies run in order:
//
//  1. the whole trimmed response
//  2. the body of the first ```json (or bare ```) fence
//  3. the substring from the first '{' to the last '}'
//
// The first strategy that parses wins.
func ExtractJSON(response string, dst any) error {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return fmt.Errorf("empty response")
	}

	if err := json.Unmarshal([]byte(trimmed), dst); err == nil {
		return nil
	}

	if fenced, ok := fencedBlock(trimmed); ok {
		if err := json.Unmarshal([]byte(fenced), dst); err == nil {
			return nil
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(trimmed[start:end+1]), dst); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no parseable JSON object in response: %s", truncate(trimmed, 200))
}

// fencedBlock returns the body of the first code fence, preferring a
// ```json fence over a bare one.
func fencedBlock(s string) (string, bool) {
	for _, marker := range []string{"```json", "```"} {
		start := strings.Index(s, marker)
		if start < 0 {
			continue
		}
		rest := s[start+len(marker):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		return strings.TrimSpace(rest[:end]), true
	}
	return "", false
}
