package mcp

import "testing"

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{"empty value", "", ""},
		{"1 character", "a", "*"},
		{"4 characters", "abcd", "****"},
		{"5 characters", "abcde", "***de"},
		{"8 characters", "abcdefgh", "******gh"},
		{"9 characters", "abcdefghi", "*****fghi"},
		{"long value", "correct-horse-battery", "*****************tery"},
		{"multibyte", "pässwörd€€", "******rd€€"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskValue(tt.value); got != tt.expected {
				t.Errorf("maskValue(%q) = %q, want %q", tt.value, got, tt.expected)
			}
		})
	}
}
