package state

import (
	"fmt"
	"regexp"
	"strings"
)

var apiKeyPattern = regexp.MustCompile(`^AIza[0-9A-Za-z\-_]{35}$`)

// ParseKeys splits text into one key per line, ignoring blank lines. A single
// malformed line rejects the whole list.
func ParseKeys(text string) ([]string, error) {
	keys := []string{}
	for i, line := range strings.Split(text, "\n") {
		key := strings.TrimSpace(line)
		if key == "" {
			continue
		}
		if !apiKeyPattern.MatchString(key) {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidAPIKey, i+1)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// MaskKey hides all but the first and last four characters.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("•", len(key))
	}
	return key[:4] + strings.Repeat("•", len(key)-8) + key[len(key)-4:]
}
