// Package filter implements the subscriber title matching engine.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchAll is the pattern used when neither a subscriber nor the
// configuration provides one.
const MatchAll = ".*"

// Matcher reports whether an entry title is wanted by a subscriber.
// The zero Matcher matches nothing.
type Matcher struct {
	re *regexp.Regexp
}

// Compile builds a case-insensitive Matcher for pattern. An empty pattern
// falls back to fallback, and an empty fallback to MatchAll. An invalid
// pattern yields a Matcher that matches nothing together with the error.
func Compile(pattern, fallback string) (Matcher, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		p = strings.TrimSpace(fallback)
	}
	if p == "" {
		p = MatchAll
	}

	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return Matcher{}, fmt.Errorf("compile filter %q: %w", p, err)
	}
	return Matcher{re: re}, nil
}

// Match checks whether title satisfies the pattern.
func (m Matcher) Match(title string) bool {
	if m.re == nil {
		return false
	}
	return m.re.MatchString(title)
}

// String returns the compiled expression, or "" for a Matcher that matches
// nothing.
func (m Matcher) String() string {
	if m.re == nil {
		return ""
	}
	return m.re.String()
}

// ValidateRegex checks whether a pattern is a valid regular expression.
func ValidateRegex(pattern string) error {
	_, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("invalid regex: %w", err)
	}
	return nil
}
