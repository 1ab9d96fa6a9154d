package autofill

import (
	"testing"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

func mustPage(t *testing.T, doc string) *Page {
	t.Helper()
	p, err := ParsePage("https://example.com/login", doc)
	if err != nil {
		t.Fatalf("ParsePage failed: %v", err)
	}
	return p
}

func query(t *testing.T, p *Page, sel string) *html.Node {
	t.Helper()
	n := cascadia.MustCompile(sel).MatchFirst(p.Root())
	if n == nil {
		t.Fatalf("no element matches %q", sel)
	}
	return n
}

func TestFindFields(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		password string // id of expected password field, "" for none
		ident    string // id of expected identifier, "" for none
		inForm   bool
	}{
		{
			name:     "simple login form",
			doc:      `<form><input id="u" name="username"><input id="p" type="password"><button type="submit">Go</button></form>`,
			password: "p", ident: "u", inForm: true,
		},
		{
			name: "prefers form with submit control",
			doc: `<form><input id="s" type="password"><button type="button">x</button></form>
			      <form><input id="e" type="email"><input id="p" type="password"><button>Sign in</button></form>`,
			password: "p", ident: "e", inForm: true,
		},
		{
			name:     "falls back to first visible password",
			doc:      `<div><input id="p1" type="password"></div><div><input id="p2" type="password"></div>`,
			password: "p1",
		},
		{
			name:     "no form scopes whole page",
			doc:      `<input id="u" type="text"><div><input id="p" type="password"></div>`,
			password: "p", ident: "u",
		},
		{
			name: "invisible and disabled fields are skipped",
			doc: `<div style="display: none"><input id="a" type="password"></div>
			      <input id="b" type="password" hidden>
			      <input id="c" type="password" style="visibility:hidden">
			      <input id="d" type="password" disabled>
			      <input id="e" type="password" readonly>
			      <input id="f" type="password" style="width:0px">
			      <fieldset disabled><input id="g" type="password"></fieldset>
			      <input id="ok" type="PASSWORD">`,
			password: "ok",
		},
		{
			name:     "non-text inputs never identify",
			doc:      `<form><input type="hidden" name="user_token"><input type="checkbox" name="remember_login"><input id="t" type="tel" name="phone"><input id="p" type="password"><input type="submit"></form>`,
			password: "p", ident: "t", inForm: true,
		},
		{
			name:     "autocomplete hint",
			doc:      `<form><input id="n" type="number" autocomplete="username"><input id="p" type="password"></form>`,
			password: "p", ident: "n", inForm: true,
		},
		{
			name:     "first match in document order wins",
			doc:      `<form><input id="tel" type="tel" placeholder="Account number"><input id="mail" type="email"><input id="p" type="password"></form>`,
			password: "p", ident: "tel", inForm: true,
		},
		{
			name:     "no identifier",
			doc:      `<form><input id="p" type="password"><input type="submit"></form>`,
			password: "p", inForm: true,
		},
		{
			name: "no password field",
			doc:  `<form><input name="q"></form>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPage(t, tt.doc)
			f := p.FindFields()
			if tt.password == "" {
				if f != nil {
					t.Fatalf("FindFields() = %+v, want nil", f)
				}
				return
			}
			if f == nil {
				t.Fatal("FindFields() = nil")
			}
			if got := attr(f.Password, "id"); got != tt.password {
				t.Errorf("password = %q, want %q", got, tt.password)
			}
			if got := attr(f.Identifier, "id"); got != tt.ident {
				t.Errorf("identifier = %q, want %q", got, tt.ident)
			}
			if (f.Form != nil) != tt.inForm {
				t.Errorf("form = %v, want inForm %v", f.Form, tt.inForm)
			}
		})
	}
}

type fixedLayout map[string][2]float64

func (l fixedLayout) Box(n *html.Node) (float64, float64, bool) {
	box, ok := l[attr(n, "id")]
	return box[0], box[1], ok
}

func TestFindFieldsWithLayout(t *testing.T) {
	p := mustPage(t, `<input id="a" type="password"><input id="b" type="password">`)
	p.SetLayout(fixedLayout{"a": {0, 0}, "b": {120, 24}})
	f := p.FindFields()
	if f == nil || attr(f.Password, "id") != "b" {
		t.Fatalf("FindFields() = %+v, want b", f)
	}
}

func TestParseStyle(t *testing.T) {
	s := parseStyle("Display : NONE; color:red;visibility: hidden !important")
	if s["display"] != "none" || s["visibility"] != "hidden" || s["color"] != "red" {
		t.Errorf("parseStyle = %v", s)
	}
	for _, v := range []string{"0", "0px", "0.0em", "0%"} {
		if !isZeroLength(v) {
			t.Errorf("isZeroLength(%q) = false", v)
		}
	}
	for _, v := range []string{"", "1px", "auto", "10%"} {
		if isZeroLength(v) {
			t.Errorf("isZeroLength(%q) = true", v)
		}
	}
}

func TestPageOrigin(t *testing.T) {
	p, _ := ParsePage("https://Example.com:443/a/b?c", "")
	if p.Origin() != "https://example.com" {
		t.Errorf("Origin() = %q", p.Origin())
	}
	p, _ = ParsePage("http://localhost:8080/", "")
	if p.Origin() != "http://localhost:8080" || p.Host() != "localhost:8080" {
		t.Errorf("Origin() = %q, Host() = %q", p.Origin(), p.Host())
	}
	p, _ = ParsePage("file:///tmp/x.html", "")
	if p.IsWeb() {
		t.Error("file page reported as web")
	}
}
