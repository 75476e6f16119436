// Package secrets implements pattern-based scanning for credential
// material left behind in generated code or text.
package secrets

import "regexp"

// Issue is a single match the scanner found.
type Issue struct {
	Pattern string
	Match   string
}

// namedPattern pairs a human-readable name with the regexp that
// detects it, so the seeded set can grow without touching Scan.
type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var defaultPatterns = []namedPattern{
	{name: "openai_api_key", re: regexp.MustCompile(`sk-[A-Za-z0-9]{10,}`)},
	{name: "github_token", re: regexp.MustCompile(`ghp_[A-Za-z0-9]{10,}`)},
}

// Scanner scans text for known secret shapes.
type Scanner struct {
	patterns []namedPattern
}

// New returns a Scanner seeded with the default patterns.
func New() *Scanner {
	return &Scanner{patterns: defaultPatterns}
}

// WithPattern returns a copy of the scanner with an additional named
// pattern appended, letting callers extend detection without modifying
// the default set.
func (s *Scanner) WithPattern(name, pattern string) (*Scanner, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	extended := make([]namedPattern, len(s.patterns), len(s.patterns)+1)
	copy(extended, s.patterns)
	extended = append(extended, namedPattern{name: name, re: re})
	return &Scanner{patterns: extended}, nil
}

// Scan returns every match found in text across all configured
// patterns, in pattern-registration order.
func (s *Scanner) Scan(text string) []Issue {
	var issues []Issue
	for _, p := range s.patterns {
		for _, match := range p.re.FindAllString(text, -1) {
			issues = append(issues, Issue{Pattern: p.name, Match: match})
		}
	}
	return issues
}
