// Package agent walks a configurable decision tree over job descriptions. Each
// node dispatches to one of a closed set of evaluators; the discrete response
// value selects the next node. A walk always yields a result map, possibly
// partial when a node fails.
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobscout-dev/jobscout/internal/inference"
)

// Config carries the dependencies for constructing an Agent.
type Config struct {
	Graph     *Graph
	Generator inference.Generator
	// PromptDir holds <prompt-id>.txt templates for llmQuery nodes.
	PromptDir string
	// ContextFiles maps context document names to file paths. Documents are
	// loaded once and shared read-only across walks.
	ContextFiles map[string]string
	Logger       *zap.Logger
}

// Agent evaluates job descriptions against a question graph. It is safe for
// concurrent use: each walk owns its private result map, and all shared state
// (graph, prompts, context documents) is read-only.
type Agent struct {
	graph    *Graph
	gen      inference.Generator
	prompts  *promptStore
	contexts map[string]string
	evals    map[string]evalFunc
	logger   *zap.Logger
}

// New builds an Agent, binding every node to its evaluator. Unknown kinds,
// undecodable parameters and references to unloaded context documents fail
// here rather than mid-walk.
func New(cfg Config) (*Agent, error) {
	if cfg.Graph == nil {
		return nil, fmt.Errorf("question graph is required")
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	contexts, err := loadContextDocs(cfg.ContextFiles)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		graph:    cfg.Graph,
		gen:      cfg.Generator,
		prompts:  newPromptStore(cfg.PromptDir),
		contexts: contexts,
		evals:    make(map[string]evalFunc, len(cfg.Graph.Nodes)),
		logger:   log,
	}

	for id, node := range cfg.Graph.Nodes {
		build, ok := builders[node.Kind]
		if !ok {
			return nil, fmt.Errorf("node %q: unknown evaluator kind %q", id, node.Kind)
		}

		if node.Kind == KindLLMQuery && a.gen == nil {
			return nil, fmt.Errorf("node %q: a generator is required for llmQuery nodes", id)
		}

		eval, err := build(a, node)
		if err != nil {
			return nil, err
		}
		a.evals[id] = eval
	}

	return a, nil
}

// Evaluate walks the graph from the root for one job description and returns
// the accumulated per-node results. Node-level failures stop the walk but the
// results gathered so far are still returned; callers never receive an error
// for them. There is no cycle detection: the graph is trusted to be acyclic.
func (a *Agent) Evaluate(ctx context.Context, description string) map[string]Result {
	results := make(map[string]Result)
	current := a.graph.Root

	for current != "" {
		node, ok := a.graph.Nodes[current]
		if !ok {
			a.logger.Error("question node missing from graph",
				zap.String("node", current),
			)
			return results
		}

		eval := a.evals[current]
		if eval == nil {
			a.logger.Error("no evaluator bound for node",
				zap.String("node", current),
			)
			return results
		}

		response, err := eval(ctx, description, results)
		if err != nil {
			a.logger.Warn("node evaluation failed, returning partial results",
				zap.String("node", current),
				zap.Error(err),
			)
			return results
		}

		a.logger.Debug("node evaluated",
			zap.String("node", current),
			zap.String("response", response),
		)

		next, ok := node.Next(response)
		if !ok {
			break
		}
		current = next
	}

	return results
}
