// Package secrets resolves credential material for the inference backends.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source names a secret and where to read it from. File wins over Value so a
// mounted secret file overrides anything baked into the configuration.
type Source struct {
	// Name appears in error messages.
	Name string
	// Value is an inline secret from configuration or environment.
	Value string
	// File points to a file holding the secret.
	File string
}

// Load resolves the secret from its source with surrounding whitespace
// trimmed. A source with neither a usable file nor a usable value is an
// error.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}

		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	secret := strings.TrimSpace(src.Value)
	if secret == "" {
		return "", fmt.Errorf("%s is not configured", name)
	}

	return secret, nil
}
