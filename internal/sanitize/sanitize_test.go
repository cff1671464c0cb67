package sanitize_test

import (
	"strings"
	"testing"

	"hivebot/internal/sanitize"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		modelID  string
		expected string
	}{
		{
			name:     "plain text unchanged",
			input:    "Hello there, how can I help?",
			modelID:  "deepseek-reasoning",
			expected: "Hello there, how can I help?",
		},
		{
			name:     "reasoning span removed",
			input:    "<think>The user greeted me, I should greet back.</think>Hello!",
			modelID:  "deepseek-reasoning",
			expected: "Hello!",
		},
		{
			name:     "multiple reasoning spans removed",
			input:    "<think>first</think>Part one. <think>second</think>Part two.",
			modelID:  "deepseek-reasoning",
			expected: "Part one. Part two.",
		},
		{
			name:     "multiline reasoning span removed",
			input:    "<think>line one\nline two\n</think>The answer is 42.",
			modelID:  "deepseek-reasoning",
			expected: "The answer is 42.",
		},
		{
			name:     "unterminated reasoning marker drops the tail",
			input:    "Sure thing.<think>wait, actually",
			modelID:  "deepseek-reasoning",
			expected: "Sure thing.",
		},
		{
			name:     "exact model label stripped",
			input:    "[deepseek-reasoning]: glad you asked!",
			modelID:  "deepseek-reasoning",
			expected: "glad you asked!",
		},
		{
			name:     "generic bracket label stripped",
			input:    "[assistant]: here you go",
			modelID:  "deepseek-reasoning",
			expected: "here you go",
		},
		{
			name:     "label in the middle kept",
			input:    "as [alice]: said earlier, no",
			modelID:  "deepseek-reasoning",
			expected: "as [alice]: said earlier, no",
		},
		{
			name:     "reasoning span then label",
			input:    "<think>hm</think>[deepseek-reasoning]: done",
			modelID:  "deepseek-reasoning",
			expected: "done",
		},
		{
			name:     "whitespace only after cleaning",
			input:    "<think>nothing worth saying</think>   ",
			modelID:  "deepseek-reasoning",
			expected: "",
		},
		{
			name:     "empty input",
			input:    "",
			modelID:  "deepseek-reasoning",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := sanitize.Sanitize(tt.input, tt.modelID, 1500)
			if got != tt.expected {
				t.Errorf("Sanitize() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"Hello there.",
		"<think>x</think>clean reply",
		"[deepseek-reasoning]: labeled reply",
		strings.Repeat("long ", 500),
		"",
	}

	for _, input := range inputs {
		once := sanitize.Sanitize(input, "deepseek-reasoning", 100)
		twice := sanitize.Sanitize(once, "deepseek-reasoning", 100)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}

func TestSanitizeLengthCeiling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		maxLen int
	}{
		{"short input", "hi", 1500},
		{"exactly at limit", strings.Repeat("a", 10), 10},
		{"over limit", strings.Repeat("b", 5000), 1500},
		{"multibyte runes", strings.Repeat("héllo wörld ", 400), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := sanitize.Sanitize(tt.input, "m", tt.maxLen)
			if n := len([]rune(got)); n > tt.maxLen {
				t.Errorf("output length %d exceeds ceiling %d", n, tt.maxLen)
			}
		})
	}
}
