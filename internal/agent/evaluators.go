package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/jobscout-dev/jobscout/internal/extract"
)

// ErrorResponse is the sentinel transition value returned when an llmQuery
// node's extraction produced no response field at all.
const ErrorResponse = "[Error]"

// evalFunc executes one node against a description. It writes the node's
// Result into results and returns the discrete response value used to select
// the next node.
type evalFunc func(ctx context.Context, description string, results map[string]Result) (string, error)

// builders is the closed registry of evaluator kinds. Unknown kinds are a
// construction-time error, not a runtime lookup failure.
var builders = map[Kind]func(a *Agent, node *Node) (evalFunc, error){
	KindBlacklist: newBlacklistEvaluator,
	KindTextList:  newTextListEvaluator,
	KindLLMQuery:  newLLMQueryEvaluator,
}

func decodeParams(node *Node, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: out})
	if err != nil {
		return err
	}
	if err := decoder.Decode(node.Params); err != nil {
		return fmt.Errorf("node %q: decoding params: %w", node.ID, err)
	}
	return nil
}

type blacklistParams struct {
	Blacklist []string `mapstructure:"blacklist"`
}

func newBlacklistEvaluator(_ *Agent, node *Node) (evalFunc, error) {
	var params blacklistParams
	if err := decodeParams(node, &params); err != nil {
		return nil, err
	}

	terms := params.Blacklist

	return func(_ context.Context, description string, results map[string]Result) (string, error) {
		matched, found := scanTerms(terms, description)
		if found {
			results[node.ID] = ruleResult("Yes", fmt.Sprintf("The company %q is on the blacklist.", matched))
			return "Yes", nil
		}

		results[node.ID] = ruleResult("No", "No blacklisted companies found in the description.")
		return "No", nil
	}, nil
}

type textListParams struct {
	Terms             []string `mapstructure:"terms"`
	AdditionalContext []string `mapstructure:"additional_context"`
}

func newTextListEvaluator(a *Agent, node *Node) (evalFunc, error) {
	var params textListParams
	if err := decodeParams(node, &params); err != nil {
		return nil, err
	}

	// The term list is fixed at construction: literal terms first, then terms
	// derived from each referenced context document, in configured order.
	terms := append([]string(nil), params.Terms...)
	for _, name := range params.AdditionalContext {
		doc, ok := a.contexts[name]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown context document %q", node.ID, name)
		}
		terms = append(terms, contextTerms(doc)...)
	}

	return func(_ context.Context, description string, results map[string]Result) (string, error) {
		matched, found := scanTerms(terms, description)
		if found {
			results[node.ID] = ruleResult("Yes", fmt.Sprintf("The term %q matches the description.", matched))
			return "Yes", nil
		}

		results[node.ID] = ruleResult("No", "No listed terms found in the description.")
		return "No", nil
	}, nil
}

// scanTerms looks for the first term contained in the description,
// case-insensitively. List order is the tie-break.
func scanTerms(terms []string, description string) (string, bool) {
	lowered := strings.ToLower(description)
	for _, term := range terms {
		trimmed := strings.TrimSpace(term)
		if trimmed == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(trimmed)) {
			return term, true
		}
	}
	return "", false
}

type llmQueryParams struct {
	Prompt            string            `mapstructure:"prompt"`
	PromptID          string            `mapstructure:"prompt_id"`
	AdditionalContext []string          `mapstructure:"additional_context"`
	ReturnPayload     map[string]string `mapstructure:"return_payload"`
}

func newLLMQueryEvaluator(a *Agent, node *Node) (evalFunc, error) {
	var params llmQueryParams
	if err := decodeParams(node, &params); err != nil {
		return nil, err
	}

	promptID := params.Prompt
	if promptID == "" {
		promptID = params.PromptID
	}
	if strings.TrimSpace(promptID) == "" {
		return nil, fmt.Errorf("node %q: prompt id is required", node.ID)
	}

	var snippets []string
	for _, name := range params.AdditionalContext {
		doc, ok := a.contexts[name]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown context document %q", node.ID, name)
		}
		snippets = append(snippets, formatContextSnippet(name, doc))
	}

	return func(ctx context.Context, description string, results map[string]Result) (string, error) {
		instructions, err := a.prompts.Load(promptID)
		if err != nil {
			return "", fmt.Errorf("node %q: %w", node.ID, err)
		}

		if len(snippets) > 0 {
			instructions = instructions + "\n\n" + strings.Join(snippets, "\n\n")
		}

		raw, err := a.gen.Generate(ctx, instructions, description)
		if err != nil {
			return "", fmt.Errorf("node %q: generating response: %w", node.ID, err)
		}

		fields := Result(extract.Fields(raw, params.ReturnPayload))
		results[node.ID] = fields

		if fields[extract.ResponseField] == nil {
			return ErrorResponse, nil
		}

		return fields.Response(), nil
	}, nil
}
