package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// promptStore reads prompt templates from a directory of <id>.txt files and
// caches them. A missing prompt id is a configuration error surfaced at
// evaluation time.
type promptStore struct {
	dir string

	mu    sync.Mutex
	cache map[string]string
}

func newPromptStore(dir string) *promptStore {
	return &promptStore{
		dir:   dir,
		cache: make(map[string]string),
	}
}

func (s *promptStore) Load(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("prompt id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if text, ok := s.cache[id]; ok {
		return text, nil
	}

	path := filepath.Join(s.dir, id+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("loading prompt %q: %w", id, err)
	}

	text := strings.TrimSpace(string(data))
	s.cache[id] = text

	return text, nil
}
