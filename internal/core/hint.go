package core

import (
	"fmt"
	"regexp"
)

// DefaultHintPattern captures the destination hint from result filenames
// like 066-129999-9.pdf: the first two digits of the second hyphen
// delimited group ("12" in the example).
const DefaultHintPattern = `^[0-9]+-([0-9]{2})[0-9]*-`

// HintExtractor applies a configured capture rule to a filename. The rule
// is data: a regular expression plus the index of the group holding the
// hint. No rule grammar beyond that is assumed.
type HintExtractor struct {
	re    *regexp.Regexp
	group int
}

func NewHintExtractor(pattern string, group int) (*HintExtractor, error) {
	if pattern == "" {
		pattern = DefaultHintPattern
	}
	if group <= 0 {
		group = 1
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("hint pattern %q: %w", pattern, err)
	}
	if group > re.NumSubexp() {
		return nil, fmt.Errorf("hint pattern %q has no group %d", pattern, group)
	}
	return &HintExtractor{re: re, group: group}, nil
}

// Extract returns the hint token and true, or "" and false when the rule
// does not match the filename.
func (h *HintExtractor) Extract(filename string) (string, bool) {
	m := h.re.FindStringSubmatch(filename)
	if m == nil || m[h.group] == "" {
		return "", false
	}
	return m[h.group], true
}
