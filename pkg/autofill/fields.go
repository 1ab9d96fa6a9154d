package autofill

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	inputSel  = cascadia.MustCompile("input")
	submitSel = cascadia.MustCompile(`button[type="submit"], input[type="submit"], button:not([type])`)
)

// identifierHints are matched as substrings of name, id and placeholder.
var identifierHints = []string{"user", "email", "mail", "login", "account", "phone"}

// nonTextTypes can never hold an identifier.
var nonTextTypes = map[string]bool{
	"hidden": true, "password": true, "submit": true, "button": true,
	"reset": true, "checkbox": true, "radio": true, "file": true,
	"image": true, "range": true, "color": true,
}

// Fields is the login field pair chosen on a page. Form is nil when the
// password field sits outside any form; Identifier may be nil.
type Fields struct {
	Form       *html.Node
	Identifier *html.Node
	Password   *html.Node
}

// FindFields locates the password field and its companion identifier.
func (p *Page) FindFields() *Fields {
	var candidates []*html.Node
	for _, n := range inputSel.MatchAll(p.root) {
		if inputType(n) == "password" && p.isVisible(n) && isEnabled(n) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	pw := candidates[0]
	for _, c := range candidates {
		if form := closest(c, atom.Form); form != nil && submitSel.MatchFirst(form) != nil {
			pw = c
			break
		}
	}

	form := closest(pw, atom.Form)
	scope := form
	if scope == nil {
		scope = p.root
	}
	return &Fields{
		Form:       form,
		Identifier: findIdentifier(scope, pw),
		Password:   pw,
	}
}

// findIdentifier walks scope in document order; the first input that
// satisfies any tier wins.
func findIdentifier(scope, pw *html.Node) *html.Node {
	for _, n := range inputSel.MatchAll(scope) {
		if n == pw {
			continue
		}
		if isIdentifier(n) {
			return n
		}
	}
	return nil
}

func isIdentifier(n *html.Node) bool {
	t := inputType(n)
	if nonTextTypes[t] {
		return false
	}
	switch t {
	case "text", "email", "username":
		return true
	}
	switch strings.ToLower(strings.TrimSpace(attr(n, "autocomplete"))) {
	case "username", "email":
		return true
	}
	for _, key := range []string{"name", "id", "placeholder"} {
		v := strings.ToLower(attr(n, key))
		for _, hint := range identifierHints {
			if strings.Contains(v, hint) {
				return true
			}
		}
	}
	return false
}

// passwordIn returns the first password input in form holding a value.
func (p *Page) passwordIn(form *html.Node) *html.Node {
	for _, n := range inputSel.MatchAll(form) {
		if inputType(n) == "password" && p.Value(n) != "" {
			return n
		}
	}
	return nil
}
