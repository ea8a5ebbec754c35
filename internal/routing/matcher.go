package routing

import (
	"regexp"
	"strings"
)

// EventTypeMatches reports whether a route's filter covers the event name.
// The wildcard element matches everything; entries containing "*" elsewhere
// are globs, compiled by escaping dots and widening the star, anchored at
// both ends.
func EventTypeMatches(types []string, eventName string) bool {
	for _, entry := range types {
		if entry == "*" || entry == eventName {
			return true
		}
		if !strings.Contains(entry, "*") {
			continue
		}
		rx, err := globRegexp(entry)
		if err != nil {
			continue
		}
		if rx.MatchString(eventName) {
			return true
		}
	}
	return false
}

func globRegexp(pattern string) (*regexp.Regexp, error) {
	escaped := strings.ReplaceAll(pattern, ".", `\.`)
	escaped = strings.ReplaceAll(escaped, "*", ".*")
	return regexp.Compile("^" + escaped + "$")
}
