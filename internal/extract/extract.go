// Package extract turns raw generated text into a structured field map via
// layered pattern matching. Generation backends truncate output with different
// end-of-turn conventions, so the distinguished response field is matched
// against an ordered list of candidate terminators before the caller's own
// pattern gets a try.
package extract

import (
	"regexp"
	"strings"
)

// ResponseField is the field that drives decision-tree transitions.
const ResponseField = "response"

// responseCandidates are tried in order for the response field. Backend
// turn-end markers come first; the caller-supplied pattern is always tried
// last. Each pattern must expose the captured value in group 1.
var responseCandidates = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\[Response\]\s*(.*?)\s*<end_of_turn>`),
	regexp.MustCompile(`(?s)\[Response\]\s*(.*?)\s*<\|eot_id\|>`),
	regexp.MustCompile(`(?s)\[Response\]\s*(.*?)\s*\[EndResponse\]`),
}

// Fields applies the per-field patterns to the generated text and returns one
// entry per requested field. A nil value marks a pattern that did not match
// (or failed to compile). No semantic validation is performed on captured
// values; that is the prompt designer's responsibility.
func Fields(text string, patterns map[string]string) map[string]*string {
	out := make(map[string]*string, len(patterns))

	for field, pattern := range patterns {
		if field == ResponseField {
			out[field] = matchResponse(text, pattern)
			continue
		}
		out[field] = matchFirst(text, pattern)
	}

	return out
}

func matchResponse(text, callerPattern string) *string {
	for _, re := range responseCandidates {
		if value, ok := firstGroup(re, text); ok {
			return &value
		}
	}
	return matchFirst(text, callerPattern)
}

func matchFirst(text, pattern string) *string {
	if strings.TrimSpace(pattern) == "" {
		return nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}

	if value, ok := firstGroup(re, text); ok {
		return &value
	}
	return nil
}

func firstGroup(re *regexp.Regexp, text string) (string, bool) {
	match := re.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	if len(match) > 1 {
		return match[1], true
	}
	return match[0], true
}
