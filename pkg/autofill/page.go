package autofill

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/forest6511/passvault/pkg/vault"
)

// Event types dispatched by a Page.
const (
	EventInput    = "input"
	EventChange   = "change"
	EventFocus    = "focus"
	EventClick    = "click"
	EventSubmit   = "submit"
	EventMutation = "mutation"
)

// Event is delivered to every page listener. Trusted marks events that
// come from the user rather than from script.
type Event struct {
	Type    string
	Target  *html.Node
	Trusted bool
}

// Listener receives page events.
type Listener func(Event)

// Layout reports rendered element sizes when a renderer is available.
type Layout interface {
	Box(n *html.Node) (width, height float64, ok bool)
}

// Page is a parsed document plus the event plumbing the engine needs.
// Field values live in the "value" attribute.
type Page struct {
	url       *url.URL
	root      *html.Node
	layout    Layout
	listeners []Listener
	focused   *html.Node
}

// NewPage parses an HTML document served from rawURL.
func NewPage(rawURL string, r io.Reader) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("autofill: invalid page url: %w", err)
	}
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("autofill: failed to parse page: %w", err)
	}
	return &Page{url: u, root: root}, nil
}

// ParsePage is NewPage over a string.
func ParsePage(rawURL, doc string) (*Page, error) {
	return NewPage(rawURL, strings.NewReader(doc))
}

// Origin returns the normalized origin of the page URL.
func (p *Page) Origin() string {
	origin, err := vault.NormalizeOrigin(p.url.String())
	if err != nil {
		return p.url.Scheme + "://" + p.url.Host
	}
	return origin
}

// Host returns the URL host including any port.
func (p *Page) Host() string { return p.url.Host }

// IsWeb reports whether the page was served over http or https.
func (p *Page) IsWeb() bool {
	s := strings.ToLower(p.url.Scheme)
	return s == "http" || s == "https"
}

// Root returns the document node.
func (p *Page) Root() *html.Node { return p.root }

// Query returns the first element matching the CSS selector, or nil.
func (p *Page) Query(selector string) (*html.Node, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel.MatchFirst(p.root), nil
}

// Focused returns the element that last received focus.
func (p *Page) Focused() *html.Node { return p.focused }

// SetLayout installs a renderer-backed size oracle.
func (p *Page) SetLayout(l Layout) { p.layout = l }

// Value returns the current value of an input.
func (p *Page) Value(n *html.Node) string { return attr(n, "value") }

// AddEventListener registers fn for every event on the page.
func (p *Page) AddEventListener(fn Listener) {
	p.listeners = append(p.listeners, fn)
}

func (p *Page) dispatch(ev Event) {
	for _, fn := range p.listeners {
		fn(ev)
	}
}

// SetValue assigns a value from script and notifies listeners with
// input and change events, the way frameworks expect user input.
func (p *Page) SetValue(n *html.Node, value string) {
	setAttr(n, "value", value)
	p.dispatch(Event{Type: EventInput, Target: n})
	p.dispatch(Event{Type: EventChange, Target: n})
}

// Type simulates the user typing value into n.
func (p *Page) Type(n *html.Node, value string) {
	setAttr(n, "value", value)
	p.dispatch(Event{Type: EventInput, Target: n, Trusted: true})
}

// Focus moves focus to n. A nil n models the window gaining focus.
func (p *Page) Focus(n *html.Node) {
	if n != nil {
		p.focused = n
	}
	p.dispatch(Event{Type: EventFocus, Target: n, Trusted: true})
}

// Click dispatches a user click on n.
func (p *Page) Click(n *html.Node) {
	p.dispatch(Event{Type: EventClick, Target: n, Trusted: true})
}

// Submit dispatches a submit event on form.
func (p *Page) Submit(form *html.Node) {
	p.dispatch(Event{Type: EventSubmit, Target: form, Trusted: true})
}

// Mutate lets fn rewrite the tree, then notifies observers.
func (p *Page) Mutate(fn func(root *html.Node)) {
	fn(p.root)
	p.dispatch(Event{Type: EventMutation, Target: p.root})
}

// Render writes the current document.
func (p *Page) Render(w io.Writer) error {
	return html.Render(w, p.root)
}

func attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// closest returns the nearest ancestor (or n itself) with the given atom.
func closest(n *html.Node, a atom.Atom) *html.Node {
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

func contains(ancestor, n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == ancestor {
			return true
		}
	}
	return false
}

// inputType returns the lower-cased type attribute, defaulting to text.
func inputType(n *html.Node) string {
	t := strings.ToLower(strings.TrimSpace(attr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}
