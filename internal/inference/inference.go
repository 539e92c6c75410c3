// Package inference defines the text-generation contract consumed by the
// decision-tree agent. Implementations live in subpackages; the agent does not
// care how the backend is hosted as long as decoding is deterministic.
package inference

import (
	"context"
	"errors"
)

// Generator produces text from system instructions and user input.
// Implementations must use deterministic decoding (temperature 0) so that the
// same description always yields the same verdict.
type Generator interface {
	Generate(ctx context.Context, systemInstructions, userText string) (string, error)
}

// ErrEmptyResponse is returned when the backend answers without any usable text.
var ErrEmptyResponse = errors.New("generation backend returned empty response")
