package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Kind identifies one of the closed set of evaluator behaviors a question
// node can exercise.
type Kind string

const (
	KindBlacklist Kind = "blacklist"
	KindTextList  Kind = "textlist"
	KindLLMQuery  Kind = "llmQuery"
)

// FallbackEdge is the child key consulted when the actual response value has
// no explicit edge.
const FallbackEdge = "Continue"

// Node is one evaluation step in the decision tree.
type Node struct {
	ID       string
	Kind     Kind
	Params   map[string]any
	Children map[string]string
}

// Next resolves the transition for a response value, falling back to the
// Continue edge. The second return is false when the node is terminal for
// this response.
func (n *Node) Next(response string) (string, bool) {
	if id, ok := n.Children[response]; ok && id != "" {
		return id, true
	}
	if id, ok := n.Children[FallbackEdge]; ok && id != "" {
		return id, true
	}
	return "", false
}

// Graph is an immutable question graph: a designated root plus a mapping from
// node id to node. It is read-only after load and safe to share across
// concurrent walks.
type Graph struct {
	Root  string
	Nodes map[string]*Node
}

type graphFile struct {
	RootNode  string               `yaml:"root_node"`
	Questions map[string]*nodeFile `yaml:"questions"`
}

type nodeFile struct {
	Kind     string            `yaml:"kind"`
	Children map[string]string `yaml:"children"`
	Params   map[string]any    `yaml:",inline"`
}

// LoadGraph reads a question graph from a YAML file. Unknown evaluator kinds
// and a missing root are rejected here; edges pointing at nodes that do not
// exist are left to the walk, which stops and logs when it reaches one.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}

	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing graph file %q: %w", path, err)
	}

	return newGraph(&file)
}

func newGraph(file *graphFile) (*Graph, error) {
	if file.RootNode == "" {
		return nil, fmt.Errorf("graph has no root_node")
	}

	if len(file.Questions) == 0 {
		return nil, fmt.Errorf("graph has no questions")
	}

	if _, ok := file.Questions[file.RootNode]; !ok {
		return nil, fmt.Errorf("root node %q is not defined", file.RootNode)
	}

	nodes := make(map[string]*Node, len(file.Questions))
	for id, q := range file.Questions {
		if q == nil {
			return nil, fmt.Errorf("node %q is empty", id)
		}

		kind := Kind(q.Kind)
		switch kind {
		case KindBlacklist, KindTextList, KindLLMQuery:
		default:
			return nil, fmt.Errorf("node %q: unknown evaluator kind %q", id, q.Kind)
		}

		nodes[id] = &Node{
			ID:       id,
			Kind:     kind,
			Params:   q.Params,
			Children: q.Children,
		}
	}

	return &Graph{Root: file.RootNode, Nodes: nodes}, nil
}
