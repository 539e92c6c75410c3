package agent

import (
	"fmt"
	"os"
	"strings"
)

// loadContextDocs reads the named additional-context documents (a resume, a
// skills list) once. The returned map is read-only and shared across
// concurrent walks.
func loadContextDocs(files map[string]string) (map[string]string, error) {
	docs := make(map[string]string, len(files))
	for name, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading context document %q: %w", name, err)
		}
		docs[name] = strings.TrimSpace(string(data))
	}
	return docs, nil
}

// contextTerms derives match terms from a context document, one per non-empty
// line.
func contextTerms(doc string) []string {
	var terms []string
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		terms = append(terms, line)
	}
	return terms
}

// formatContextSnippet frames a document for prompt enrichment.
func formatContextSnippet(name, content string) string {
	return fmt.Sprintf("[%s]\n%s\n[End %s]", name, content, name)
}
