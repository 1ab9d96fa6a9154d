package importer

import (
	"fmt"
	"strings"
	"testing"
)

const lpHeader = "url,username,password,totp,extra,name,grouping,fav\n"

func TestLastPassParser_Parse(t *testing.T) {
	tests := []struct {
		name         string
		csvData      string
		wantEntries  int
		wantSkipped  int
		wantWarnings int
		wantError    bool
		checkFirst   func(t *testing.T, e Entry)
	}{
		{
			name:        "standard login entry",
			csvData:     lpHeader + `https://github.com/login,johndoe,mysecretpass123,,My GitHub notes,GitHub,Work,1`,
			wantEntries: 1,
			checkFirst: func(t *testing.T, e Entry) {
				c := e.Credential
				if e.Name != "GitHub" {
					t.Errorf("Name = %q", e.Name)
				}
				if c.Username != "johndoe" || c.Password != "mysecretpass123" {
					t.Errorf("credential = %q/%q", c.Username, c.Password)
				}
				if len(c.Origins) != 1 || c.Origins[0] != "https://github.com" {
					t.Errorf("Origins = %v", c.Origins)
				}
				if c.Notes != "My GitHub notes" {
					t.Errorf("Notes = %q", c.Notes)
				}
				if c.ID == "" {
					t.Error("ID is empty")
				}
			},
		},
		{
			name:        "secure note is skipped",
			csvData:     lpHeader + `http://sn,,,,"This is a secure note",My Secret Note,Notes,0`,
			wantSkipped: 1,
		},
		{
			name:         "totp produces a warning",
			csvData:      lpHeader + `https://a.com,u,p,JBSWY3DPEHPK3PXP,,A,,`,
			wantEntries:  1,
			wantWarnings: 1,
		},
		{
			name:        "html entities are decoded",
			csvData:     lpHeader + `https://a.com,tom&amp;jerry,p&lt;w&gt;,,,A,,`,
			wantEntries: 1,
			checkFirst: func(t *testing.T, e Entry) {
				if e.Credential.Username != "tom&jerry" || e.Credential.Password != "p<w>" {
					t.Errorf("credential = %q/%q", e.Credential.Username, e.Credential.Password)
				}
			},
		},
		{
			name:        "no password",
			csvData:     lpHeader + `https://a.com,u,,,,A,,`,
			wantSkipped: 1,
		},
		{
			name:        "no url",
			csvData:     lpHeader + `,u,p,,,A,,`,
			wantSkipped: 1,
		},
		{
			name:         "column count mismatch",
			csvData:      lpHeader + `https://a.com,u,p`,
			wantWarnings: 1,
		},
		{
			name:        "utf-8 bom",
			csvData:     "\xEF\xBB\xBF" + lpHeader + `https://a.com,u,p,,,A,,`,
			wantEntries: 1,
		},
		{
			name:      "missing name column",
			csvData:   "url,username,password\nhttps://a.com,u,p",
			wantError: true,
		},
		{
			name:      "empty input",
			csvData:   "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &LastPassParser{}
			res, err := p.Parse([]byte(tt.csvData))
			if tt.wantError {
				if err == nil {
					t.Fatal("Parse() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(res.Entries) != tt.wantEntries {
				t.Errorf("entries = %d, want %d", len(res.Entries), tt.wantEntries)
			}
			if len(res.Skipped) != tt.wantSkipped {
				t.Errorf("skipped = %+v, want %d", res.Skipped, tt.wantSkipped)
			}
			if len(res.Warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", res.Warnings, tt.wantWarnings)
			}
			if tt.checkFirst != nil && len(res.Entries) > 0 {
				tt.checkFirst(t, res.Entries[0])
			}
		})
	}
}

func TestLastPassParser_Deduplication(t *testing.T) {
	data := lpHeader +
		"https://a.com,u,p1,,,A,,\n" +
		"https://a.com/other,u,p2,,,A,,\n" +
		"https://a.com,v,p3,,,A,,\n"
	res, err := (&LastPassParser{}).Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(res.Entries))
	}
	if res.Entries[0].Credential.Password != "p1" {
		t.Errorf("first duplicate did not win: %q", res.Entries[0].Credential.Password)
	}
	if len(res.Skipped) != 1 {
		t.Errorf("skipped = %+v", res.Skipped)
	}
}

func TestLastPassParser_LargeFile(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(lpHeader)
	for i := 0; i < 1000; i++ {
		fmt.Fprintf(&sb, "https://site%d.example.com,user%d,pass%d,,,Site %d,,\n", i, i, i, i)
	}
	res, err := (&LastPassParser{}).Parse([]byte(sb.String()))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries) != 1000 {
		t.Errorf("entries = %d, want 1000", len(res.Entries))
	}
}
