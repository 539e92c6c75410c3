package extract

import (
	"reflect"
	"testing"
)

func TestFieldsResponseTerminators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		pattern  string
		expected string
	}{
		{
			name:     "caller pattern with end marker",
			text:     "3 years [EndResponse]",
			pattern:  `(.*?)\s*\[EndResponse\]`,
			expected: "3 years",
		},
		{
			name:     "gemma turn end",
			text:     "[Response] Yes <end_of_turn>",
			pattern:  `\[Response\](.*?)\[EndResponse\]`,
			expected: "Yes",
		},
		{
			name:     "llama turn end",
			text:     "[Response] Unsure <|eot_id|>",
			pattern:  `\[Response\](.*?)\[EndResponse\]`,
			expected: "Unsure",
		},
		{
			name:     "canonical markers",
			text:     "[Response] 5 years [EndResponse] [Explanation] mentioned [EndExplanation]",
			pattern:  `whatever`,
			expected: "5 years",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fields := Fields(tt.text, map[string]string{ResponseField: tt.pattern})
			value := fields[ResponseField]
			if value == nil {
				t.Fatal("expected response to match")
			}
			if *value != tt.expected {
				t.Fatalf("expected %q, got %q", tt.expected, *value)
			}
		})
	}
}

func TestFieldsNoMatchYieldsNil(t *testing.T) {
	t.Parallel()

	fields := Fields("nothing to see", map[string]string{
		ResponseField: `\[Response\](.*?)\[EndResponse\]`,
		"explanation": `\[Explanation\](.*?)\[EndExplanation\]`,
	})

	if fields[ResponseField] != nil {
		t.Fatalf("expected nil response, got %q", *fields[ResponseField])
	}

	if fields["explanation"] != nil {
		t.Fatalf("expected nil explanation, got %q", *fields["explanation"])
	}
}

func TestFieldsOrdinaryField(t *testing.T) {
	t.Parallel()

	text := "[Response] Yes [EndResponse] [Explanation] it says so [EndExplanation]"
	fields := Fields(text, map[string]string{
		"explanation": `\[Explanation\]\s*(.*?)\s*\[EndExplanation\]`,
	})

	if fields["explanation"] == nil || *fields["explanation"] != "it says so" {
		t.Fatalf("unexpected explanation: %v", fields["explanation"])
	}
}

func TestFieldsInvalidPattern(t *testing.T) {
	t.Parallel()

	fields := Fields("some text", map[string]string{"broken": `([`})
	if fields["broken"] != nil {
		t.Fatal("expected nil for invalid pattern")
	}
}

func TestFieldsIdempotent(t *testing.T) {
	t.Parallel()

	text := "[Response] 3 years [EndResponse] [Explanation] stated directly [EndExplanation]"
	patterns := map[string]string{
		ResponseField: `\[Response\]\s*(.*?)\s*\[EndResponse\]`,
		"explanation": `\[Explanation\]\s*(.*?)\s*\[EndExplanation\]`,
	}

	first := Fields(text, patterns)
	second := Fields(text, patterns)

	if !reflect.DeepEqual(deref(first), deref(second)) {
		t.Fatalf("extraction not idempotent: %v vs %v", deref(first), deref(second))
	}
}

func deref(m map[string]*string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = *v
	}
	return out
}
