package security

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/forest6511/passvault/pkg/crypto"
	"github.com/forest6511/passvault/pkg/vault"
)

// Report is the health assessment of a credential set.
type Report struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components Components `json:"components"`
	// Credentials is the number of credentials examined.
	Credentials int `json:"credentials"`
	// Issues contains the detected problems.
	Issues []Issue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
	// Limited is set when issues were cut to the configured limit.
	Limited bool `json:"limited"`
}

// Component weights; they sum to 100.
const (
	strengthWeight   = 40
	uniquenessWeight = 40
	transportWeight  = 20
)

// Components breaks down the score.
type Components struct {
	// Strength is based on average password length class (0-40).
	Strength int `json:"strength"`
	// Uniqueness is the share of distinct passwords (0-40).
	Uniqueness int `json:"uniqueness"`
	// Transport is the share of credentials bound only to https (0-20).
	Transport int `json:"transport"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	IssueWeakPassword   IssueType = "weak"
	IssueReusedPassword IssueType = "reused"
	IssueInsecureOrigin IssueType = "insecure_origin"
	IssueEmptyUsername  IssueType = "empty_username"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Issue is one detected problem.
type Issue struct {
	Type     IssueType `json:"type"`
	Severity Severity  `json:"severity"`
	// ID is the affected credential; IDs is used for reuse groups.
	ID          string   `json:"id,omitempty"`
	IDs         []string `json:"ids,omitempty"`
	Origin      string   `json:"origin,omitempty"`
	Description string   `json:"description"`
}

// Calculator computes health reports. It is not safe for concurrent use.
type Calculator struct {
	hmacKey []byte
	limit   int
}

// NewCalculator creates a calculator with a fresh session key. limit caps
// issues per type; zero means unlimited.
func NewCalculator(limit int) (*Calculator, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("security: failed to generate session key: %w", err)
	}
	return &Calculator{hmacKey: key, limit: limit}, nil
}

// Close wipes the session key.
func (c *Calculator) Close() {
	crypto.SecureWipe(c.hmacKey)
}

// Analyze builds the report for creds.
func (c *Calculator) Analyze(creds []vault.Credential) *Report {
	r := &Report{
		Credentials: len(creds),
		Issues:      []Issue{},
		Suggestions: []string{},
	}
	if len(creds) == 0 {
		r.Components = Components{Strength: strengthWeight, Uniqueness: uniquenessWeight, Transport: transportWeight}
		r.Overall = 100
		return r
	}

	var issues []Issue
	r.Components.Strength, issues = c.strengthScore(creds)
	r.Issues = append(r.Issues, issues...)
	r.Components.Uniqueness, issues = c.uniquenessScore(creds)
	r.Issues = append(r.Issues, issues...)
	r.Components.Transport, issues = transportScore(creds)
	r.Issues = append(r.Issues, issues...)
	r.Issues = append(r.Issues, emptyUsernames(creds)...)

	if c.limit > 0 {
		r.Issues, r.Limited = c.applyLimit(r.Issues)
	}
	r.Overall = r.Components.Strength + r.Components.Uniqueness + r.Components.Transport
	r.Suggestions = suggestions(r.Issues)
	return r
}

func (c *Calculator) strengthScore(creds []vault.Credential) (int, []Issue) {
	var issues []Issue
	points, n := 0, 0
	for _, cred := range creds {
		if cred.Password == "" {
			continue
		}
		n++
		s := CalculateStrength(cred.Password)
		points += s.Points()
		if s == PasswordWeak {
			issues = append(issues, Issue{
				Type:        IssueWeakPassword,
				Severity:    SeverityWarning,
				ID:          cred.ID,
				Description: "Password is shorter than 8 characters",
			})
		}
	}
	if n == 0 {
		return strengthWeight, issues
	}
	return points * strengthWeight / (n * PasswordStrong.Points()), issues
}

func (c *Calculator) uniquenessScore(creds []vault.Credential) (int, []Issue) {
	var issues []Issue
	total, extra := 0, 0
	for _, cred := range creds {
		if cred.Password != "" {
			total++
		}
	}
	for _, g := range c.FindReused(creds) {
		extra += g.Count - 1
		issues = append(issues, Issue{
			Type:        IssueReusedPassword,
			Severity:    SeverityCritical,
			IDs:         g.IDs,
			Description: fmt.Sprintf("%d credentials share the same password", g.Count),
		})
	}
	if total == 0 {
		return uniquenessWeight, issues
	}
	return (total - extra) * uniquenessWeight / total, issues
}

func transportScore(creds []vault.Credential) (int, []Issue) {
	var issues []Issue
	secure := 0
	for _, cred := range creds {
		ok := true
		for _, o := range cred.Origins {
			if strings.HasPrefix(o, "http://") && !isLoopback(vault.Host(o)) {
				ok = false
				issues = append(issues, Issue{
					Type:        IssueInsecureOrigin,
					Severity:    SeverityWarning,
					ID:          cred.ID,
					Origin:      o,
					Description: "Credential is offered to a site over plain HTTP",
				})
			}
		}
		if ok {
			secure++
		}
	}
	return secure * transportWeight / len(creds), issues
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost")
}

func emptyUsernames(creds []vault.Credential) []Issue {
	var issues []Issue
	for _, cred := range creds {
		if strings.TrimSpace(cred.Username) == "" {
			issues = append(issues, Issue{
				Type:        IssueEmptyUsername,
				Severity:    SeverityInfo,
				ID:          cred.ID,
				Description: "Credential has no username; autofill fills the password only",
			})
		}
	}
	return issues
}

func (c *Calculator) applyLimit(issues []Issue) ([]Issue, bool) {
	limited := false
	counts := make(map[IssueType]int)
	result := make([]Issue, 0, len(issues))
	for _, issue := range issues {
		if counts[issue.Type] >= c.limit {
			limited = true
			continue
		}
		counts[issue.Type]++
		result = append(result, issue)
	}
	return result, limited
}

func suggestions(issues []Issue) []string {
	seen := make(map[IssueType]bool)
	for _, issue := range issues {
		seen[issue.Type] = true
	}
	out := []string{}
	if seen[IssueReusedPassword] {
		out = append(out, "Replace reused passwords with unique values")
	}
	if seen[IssueWeakPassword] {
		out = append(out, "Update weak passwords with longer ones (14+ characters)")
	}
	if seen[IssueInsecureOrigin] {
		out = append(out, "Move http:// origins to https:// where the site supports it")
	}
	return out
}
