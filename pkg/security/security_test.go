package security

import (
	"strings"
	"testing"

	"github.com/forest6511/passvault/pkg/vault"
)

func TestCalculateStrength(t *testing.T) {
	tests := []struct {
		password string
		want     PasswordStrength
	}{
		{"", PasswordWeak},
		{"short", PasswordWeak},
		{"1234567", PasswordWeak},
		{"12345678", PasswordFair},
		{"abcdefghijklm", PasswordFair},
		{"abcdefghijklmn", PasswordGood},
		{strings.Repeat("x", 20), PasswordStrong},
		{"ääääääää", PasswordFair},
	}
	for _, tt := range tests {
		if got := CalculateStrength(tt.password); got != tt.want {
			t.Errorf("CalculateStrength(%q) = %s, want %s", tt.password, got, tt.want)
		}
	}
}

func TestPasswordStrengthString(t *testing.T) {
	if PasswordGood.String() != "Good" || PasswordStrength(99).String() != "Unknown" {
		t.Error("unexpected String() output")
	}
}

func cred(id, origin, user, pw string) vault.Credential {
	return vault.Credential{ID: id, Origins: []string{origin}, Username: user, Password: pw}
}

func newCalc(t *testing.T, limit int) *Calculator {
	t.Helper()
	c, err := NewCalculator(limit)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestAnalyzeEmpty(t *testing.T) {
	r := newCalc(t, 0).Analyze(nil)
	if r.Overall != 100 || len(r.Issues) != 0 {
		t.Errorf("report = %+v", r)
	}
}

func TestAnalyzeHealthyVault(t *testing.T) {
	long := strings.Repeat("a", 19)
	creds := []vault.Credential{
		cred("1", "https://a.com", "u", long+"1"),
		cred("2", "https://b.com", "u", long+"2"),
		cred("3", "http://localhost:3000", "u", long+"3"),
	}
	r := newCalc(t, 0).Analyze(creds)
	if r.Overall != 100 {
		t.Errorf("Overall = %d, want 100 (%+v)", r.Overall, r.Components)
	}
	if len(r.Issues) != 0 || len(r.Suggestions) != 0 {
		t.Errorf("issues = %+v", r.Issues)
	}
}

func TestAnalyzeFindsProblems(t *testing.T) {
	strong := strings.Repeat("s", 24)
	creds := []vault.Credential{
		cred("1", "https://a.com", "u", "hunter2"),
		cred("2", "http://b.com", "u", strong),
		cred("3", "https://c.com", "", strong),
		cred("4", "https://d.com", "u", strong),
	}
	r := newCalc(t, 0).Analyze(creds)

	count := make(map[IssueType]int)
	for _, i := range r.Issues {
		count[i.Type]++
	}
	if count[IssueWeakPassword] != 1 || count[IssueReusedPassword] != 1 ||
		count[IssueInsecureOrigin] != 1 || count[IssueEmptyUsername] != 1 {
		t.Errorf("issue counts = %v", count)
	}

	// strength: (0+4+4+4)*40/16 = 30; uniqueness: (4-2)*40/4 = 20;
	// transport: 3*20/4 = 15.
	want := Components{Strength: 30, Uniqueness: 20, Transport: 15}
	if r.Components != want {
		t.Errorf("Components = %+v, want %+v", r.Components, want)
	}
	if r.Overall != 65 {
		t.Errorf("Overall = %d, want 65", r.Overall)
	}
	if len(r.Suggestions) != 3 {
		t.Errorf("Suggestions = %v", r.Suggestions)
	}
}

func TestFindReused(t *testing.T) {
	creds := []vault.Credential{
		cred("a", "https://a.com", "u", "same"),
		cred("b", "https://b.com", "u", "other"),
		cred("c", "https://c.com", "u", "same"),
		cred("d", "https://d.com", "u", "other"),
		cred("e", "https://e.com", "u", "other"),
		cred("f", "https://f.com", "u", ""),
		cred("g", "https://g.com", "u", ""),
	}
	groups := newCalc(t, 0).FindReused(creds)
	if len(groups) != 2 {
		t.Fatalf("groups = %+v, want 2", groups)
	}
	if groups[0].Count != 3 || strings.Join(groups[0].IDs, ",") != "b,d,e" {
		t.Errorf("largest group = %+v", groups[0])
	}
	if strings.Join(groups[1].IDs, ",") != "a,c" {
		t.Errorf("second group = %+v", groups[1])
	}
}

func TestAnalyzeLimit(t *testing.T) {
	var creds []vault.Credential
	for _, id := range []string{"1", "2", "3", "4"} {
		creds = append(creds, cred(id, "https://"+id+".example.com", "u", "pw"+id))
	}
	r := newCalc(t, 2).Analyze(creds)
	if !r.Limited {
		t.Error("Limited = false")
	}
	if len(r.Issues) != 2 {
		t.Errorf("issues = %d, want 2", len(r.Issues))
	}
}
