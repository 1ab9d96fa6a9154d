package autofill

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// isVisible applies the rendering rules available without a layout
// engine: no hidden attribute or hiding inline style on the element or
// its ancestors, and no zero size. A Layout, when set, decides size.
func (p *Page) isVisible(n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c.Type != html.ElementNode {
			continue
		}
		if hasAttr(c, "hidden") || c.DataAtom == atom.Template {
			return false
		}
		style := parseStyle(attr(c, "style"))
		if style["display"] == "none" || style["visibility"] == "hidden" || style["visibility"] == "collapse" {
			return false
		}
	}

	if p.layout != nil {
		if w, h, ok := p.layout.Box(n); ok {
			return w > 0 && h > 0
		}
	}
	style := parseStyle(attr(n, "style"))
	if isZeroLength(style["width"]) || isZeroLength(style["height"]) {
		return false
	}
	if isZeroLength(attr(n, "width")) || isZeroLength(attr(n, "height")) {
		return false
	}
	return true
}

// isEnabled reports an input the user could type into.
func isEnabled(n *html.Node) bool {
	if hasAttr(n, "disabled") || hasAttr(n, "readonly") {
		return false
	}
	for c := n.Parent; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.DataAtom == atom.Fieldset && hasAttr(c, "disabled") {
			return false
		}
	}
	return true
}

func parseStyle(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "!important"))
		out[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func isZeroLength(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, unit := range []string{"px", "em", "rem", "%", "pt", "vh", "vw"} {
		if strings.HasSuffix(v, unit) {
			v = strings.TrimSuffix(v, unit)
			break
		}
	}
	f, err := strconv.ParseFloat(v, 64)
	return err == nil && f <= 0
}
