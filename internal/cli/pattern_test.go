package cli

import (
	"reflect"
	"testing"
)

func TestExpandPattern(t *testing.T) {
	names := []string{
		"GitHub",
		"GitLab",
		"Google Mail",
		"Bank of Example",
		"gitea (home)",
	}

	tests := []struct {
		name     string
		pattern  string
		expected []string
		wantErr  bool
	}{
		{
			name:     "exact match",
			pattern:  "GitHub",
			expected: []string{"GitHub"},
		},
		{
			name:     "exact match ignores case",
			pattern:  "github",
			expected: []string{"GitHub"},
		},
		{
			name:     "wildcard suffix",
			pattern:  "Git*",
			expected: []string{"GitHub", "GitLab", "gitea (home)"},
		},
		{
			name:     "wildcard prefix",
			pattern:  "*Mail",
			expected: []string{"Google Mail"},
		},
		{
			name:     "single character",
			pattern:  "Git?ab",
			expected: []string{"GitLab"},
		},
		{
			name:     "character class",
			pattern:  "[bg]*example",
			expected: []string{"Bank of Example"},
		},
		{
			name:    "exact miss",
			pattern: "Bitbucket",
			wantErr: true,
		},
		{
			name:    "glob miss",
			pattern: "Z*",
			wantErr: true,
		},
		{
			name:    "invalid pattern",
			pattern: "[invalid",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPattern(tt.pattern, names)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ExpandPattern(%q) = %v, want error", tt.pattern, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExpandPattern(%q) error = %v", tt.pattern, err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExpandPattern(%q) = %v, want %v", tt.pattern, got, tt.expected)
			}
		})
	}
}

func TestExpandPatterns(t *testing.T) {
	names := []string{"GitHub", "GitLab", "Google Mail"}

	got, err := ExpandPatterns([]string{"GitLab", "Git*", "google mail"}, names)
	if err != nil {
		t.Fatalf("ExpandPatterns error = %v", err)
	}
	want := []string{"GitLab", "GitHub", "Google Mail"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExpandPatterns = %v, want %v", got, want)
	}

	if _, err := ExpandPatterns([]string{"GitHub", "nope"}, names); err == nil {
		t.Error("ExpandPatterns should fail when any pattern misses")
	}
}
