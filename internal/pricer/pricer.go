package pricer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrInvalidPattern = errors.New("invalid_glob_pattern")
	ErrNegativePrice  = errors.New("negative_price")
)

// Rule prices one glob pattern. Within a rule set, declaration order is
// match order and the first match wins.
type Rule struct {
	Pattern     string `json:"pattern"`
	Price       int64  `json:"price"`
	Description string `json:"description,omitempty"`
}

// Validate rejects rule sets containing malformed glob patterns or
// negative prices.
func Validate(rules []Rule) error {
	for i, rule := range rules {
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("rule %d: %w: %q", i, ErrInvalidPattern, rule.Pattern)
		}
		if rule.Price < 0 {
			return fmt.Errorf("rule %d: %w", i, ErrNegativePrice)
		}
	}
	return nil
}

// PriceFor resolves the price of a request path. Patterns match the whole
// path: `*` spans a single segment, `**` spans zero or more. Paths that
// match no rule fall back to defaultPrice.
func PriceFor(rules []Rule, defaultPrice int64, path string) int64 {
	path = NormalizePath(path)
	for _, rule := range rules {
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" {
			continue
		}
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			continue
		}
		if matched {
			return rule.Price
		}
	}
	return defaultPrice
}

// NormalizePath canonicalizes a proxied sub-path to a leading-slash form.
func NormalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
