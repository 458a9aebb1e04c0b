package config

import "testing"

func TestExpandEnv(t *testing.T) {
	t.Setenv("FERRY_SET_VAR", "value1")
	t.Setenv("FERRY_EMPTY_VAR", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set variable", "url: ${FERRY_SET_VAR}", "url: value1"},
		{"unset variable", "url: ${FERRY_UNSET_VAR}", "url: "},
		{"unset with default", "url: ${FERRY_UNSET_VAR:-fallback}", "url: fallback"},
		{"set ignores default", "url: ${FERRY_SET_VAR:-fallback}", "url: value1"},
		{"empty uses default", "url: ${FERRY_EMPTY_VAR:-fallback}", "url: fallback"},
		{"multiple vars", "${FERRY_SET_VAR}/${FERRY_UNSET_VAR:-x}", "value1/x"},
		{"no vars", "plain text", "plain text"},
		{"dollar without braces", "cost is $5", "cost is $5"},
		{"default with url", "${FERRY_UNSET_VAR:-https://example.com}", "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpandEnv(tt.input); got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
