package agent

import (
	"strings"

	"github.com/jobscout-dev/jobscout/internal/extract"
)

// Result holds the structured fields produced by one node's evaluation. Rule
// evaluators set response and explanation; llmQuery stores every extracted
// field. Nil values mark patterns that did not match. A Result is created
// fresh per walk and never shared across concurrent walks.
type Result map[string]*string

const explanationField = "explanation"

func ruleResult(response, explanation string) Result {
	return Result{
		extract.ResponseField: &response,
		explanationField:      &explanation,
	}
}

// Response returns the trimmed response value, or empty when the field is
// missing or did not match.
func (r Result) Response() string {
	v := r[extract.ResponseField]
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// Explanation returns the explanation value when present.
func (r Result) Explanation() string {
	v := r[explanationField]
	if v == nil {
		return ""
	}
	return *v
}
