package autofill

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/forest6511/passvault/pkg/message"
	"github.com/forest6511/passvault/pkg/vault"
)

const loginDoc = `<html><body>
<form id="login">
  <input id="user" name="username" type="text">
  <input id="pass" type="password">
  <button type="submit">Sign in</button>
</form>
</body></html>`

type fakeSender struct {
	creds  []vault.Credential
	locked bool
	saved  []vault.Credential
	reqs   []message.Request
}

func (s *fakeSender) Send(ctx context.Context, req message.Request) message.Response {
	s.reqs = append(s.reqs, req)
	if s.locked {
		return message.Failure(vault.ErrVaultLocked)
	}
	switch r := req.(type) {
	case message.GetCredentialsForOrigin:
		return message.Response{OK: true, Credentials: s.creds}
	case message.SaveCredential:
		s.saved = append(s.saved, r.Credential)
		return message.Response{OK: true, Credential: &r.Credential}
	}
	return message.Failure(message.ErrBadRequest)
}

func (s *fakeSender) lookups() int {
	n := 0
	for _, r := range s.reqs {
		if _, ok := r.(message.GetCredentialsForOrigin); ok {
			n++
		}
	}
	return n
}

type fakeConfirmer struct {
	answer  bool
	prompts []string
}

func (c *fakeConfirmer) Confirm(ctx context.Context, prompt string) bool {
	c.prompts = append(c.prompts, prompt)
	return c.answer
}

type fakePicker struct {
	shown  [][]vault.Credential
	choose func(vault.Credential)
	closed int
}

func (p *fakePicker) Show(ctx context.Context, anchor *html.Node, creds []vault.Credential, choose func(vault.Credential)) {
	p.shown = append(p.shown, creds)
	p.choose = choose
}

func (p *fakePicker) Close() { p.closed++ }

func creds(n int) []vault.Credential {
	out := make([]vault.Credential, n)
	for i := range out {
		out[i] = vault.Credential{
			ID:       fmt.Sprintf("id-%d", i),
			Origins:  []string{"https://example.com"},
			Username: fmt.Sprintf("user%d", i),
			Password: fmt.Sprintf("pw%d", i),
		}
	}
	return out
}

type harness struct {
	page    *Page
	sender  *fakeSender
	confirm *fakeConfirmer
	picker  *fakePicker
	engine  *Engine
	events  []Event
}

func newHarness(t *testing.T, doc string, stored []vault.Credential) *harness {
	t.Helper()
	h := &harness{
		page:    mustPage(t, doc),
		sender:  &fakeSender{creds: stored},
		confirm: &fakeConfirmer{answer: true},
		picker:  &fakePicker{},
	}
	h.page.AddEventListener(func(ev Event) { h.events = append(h.events, ev) })
	h.engine = NewEngine(context.Background(), h.page, h.sender, Options{
		Confirmer: h.confirm,
		Picker:    h.picker,
		Logger:    zerolog.Nop(),
	})
	return h
}

func (h *harness) value(t *testing.T, sel string) string {
	t.Helper()
	return h.page.Value(query(t, h.page, sel))
}

func TestLoadFillsSingleCredential(t *testing.T) {
	h := newHarness(t, loginDoc, creds(1))
	h.engine.Load()

	if got := h.value(t, "#user"); got != "user0" {
		t.Errorf("username = %q, want user0", got)
	}
	if got := h.value(t, "#pass"); got != "pw0" {
		t.Errorf("password = %q, want pw0", got)
	}
	if len(h.picker.shown) != 0 {
		t.Error("picker shown for a single credential")
	}

	var types []string
	for _, ev := range h.events {
		if ev.Trusted {
			t.Errorf("script event %s marked trusted", ev.Type)
		}
		types = append(types, ev.Type)
	}
	if got := strings.Join(types, ","); got != "input,change,input,change" {
		t.Errorf("events = %s", got)
	}

	req, ok := h.sender.reqs[0].(message.GetCredentialsForOrigin)
	if !ok || req.Origin != "https://example.com" {
		t.Errorf("lookup = %#v", h.sender.reqs[0])
	}
}

func TestLoadSkipsEditedFields(t *testing.T) {
	tests := []struct {
		name     string
		edited   string
		wantUser string
		wantPass string
	}{
		{name: "username", edited: "#user", wantUser: "typed", wantPass: ""},
		{name: "password", edited: "#pass", wantUser: "", wantPass: "typed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, loginDoc, creds(1))
			h.page.Type(query(t, h.page, tt.edited), "typed")
			h.engine.Load()
			h.page.Focus(query(t, h.page, "#pass"))
			h.page.Mutate(func(*html.Node) {})

			if got := h.value(t, "#user"); got != tt.wantUser {
				t.Errorf("username = %q, want %q", got, tt.wantUser)
			}
			if got := h.value(t, "#pass"); got != tt.wantPass {
				t.Errorf("password = %q, want %q", got, tt.wantPass)
			}
			if h.sender.lookups() != 0 {
				t.Error("vault queried although the user edited the form")
			}
		})
	}
}

func TestScriptInputDoesNotMarkEdited(t *testing.T) {
	h := newHarness(t, loginDoc, creds(1))
	h.page.SetValue(query(t, h.page, "#user"), "prefilled")
	h.engine.Load()

	if got := h.value(t, "#user"); got != "user0" {
		t.Errorf("username = %q, want user0", got)
	}
}

func TestLockedVaultIsSilent(t *testing.T) {
	h := newHarness(t, loginDoc, creds(1))
	h.sender.locked = true
	h.engine.Load()
	if err := h.engine.TriggerAutofill(context.Background()); err != nil {
		t.Fatalf("TriggerAutofill() error = %v", err)
	}

	if h.value(t, "#pass") != "" {
		t.Error("password filled while locked")
	}
	if len(h.events) != 0 || len(h.picker.shown) != 0 {
		t.Error("locked vault produced page activity")
	}
}

func TestPickerForMultipleCredentials(t *testing.T) {
	h := newHarness(t, loginDoc, creds(9))
	h.engine.Load()

	if len(h.picker.shown) != 1 {
		t.Fatalf("picker shown %d times, want 1", len(h.picker.shown))
	}
	if n := len(h.picker.shown[0]); n != MaxPickerEntries {
		t.Errorf("picker entries = %d, want %d", n, MaxPickerEntries)
	}
	if h.value(t, "#pass") != "" {
		t.Error("password filled before a choice was made")
	}

	// Open picker is not shown twice.
	if err := h.engine.TriggerAutofill(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.picker.shown) != 1 {
		t.Errorf("picker shown %d times while open", len(h.picker.shown))
	}

	h.picker.choose(h.picker.shown[0][2])
	if h.value(t, "#user") != "user2" || h.value(t, "#pass") != "pw2" {
		t.Errorf("chosen credential not applied: %q/%q", h.value(t, "#user"), h.value(t, "#pass"))
	}
	if h.picker.closed != 1 {
		t.Errorf("picker closed %d times, want 1", h.picker.closed)
	}
}

func TestPickerNotShownOnFocusOrMutation(t *testing.T) {
	h := newHarness(t, loginDoc, creds(2))
	h.page.Focus(query(t, h.page, "#pass"))
	h.page.Focus(nil)
	h.page.Mutate(func(*html.Node) {})

	if len(h.picker.shown) != 0 {
		t.Errorf("picker shown %d times", len(h.picker.shown))
	}
	if h.sender.lookups() != 3 {
		t.Errorf("lookups = %d, want 3", h.sender.lookups())
	}
}

func TestFocusOnTextFieldDoesNothing(t *testing.T) {
	h := newHarness(t, loginDoc, creds(1))
	h.page.Focus(query(t, h.page, "#user"))
	if h.sender.lookups() != 0 {
		t.Error("focus on identifier queried the vault")
	}
}

func TestClickClosesPicker(t *testing.T) {
	h := newHarness(t, loginDoc, creds(3))
	h.engine.Load()
	h.page.Click(query(t, h.page, "body"))
	if h.picker.closed != 1 {
		t.Fatalf("picker closed %d times, want 1", h.picker.closed)
	}
	h.page.Click(query(t, h.page, "body"))
	if h.picker.closed != 1 {
		t.Error("closed picker closed again")
	}

	h.engine.Load()
	if len(h.picker.shown) != 2 {
		t.Errorf("picker shown %d times after close, want 2", len(h.picker.shown))
	}
}

func TestAppliedFieldsAreNotRefilled(t *testing.T) {
	h := newHarness(t, loginDoc, creds(1))
	h.engine.Load()
	n := h.sender.lookups()

	h.page.Mutate(func(*html.Node) {})
	if h.sender.lookups() != n {
		t.Error("mutation after fill queried the vault again")
	}

	// Clearing the value by script reopens the field.
	h.page.SetValue(query(t, h.page, "#pass"), "")
	h.page.Mutate(func(*html.Node) {})
	if h.value(t, "#pass") != "pw0" {
		t.Error("cleared password not refilled")
	}
}

func TestMutationFillsLateForm(t *testing.T) {
	h := newHarness(t, `<html><body><div id="app"></div></body></html>`, creds(1))
	h.engine.Load()
	if h.sender.lookups() != 0 {
		t.Fatal("vault queried for a page without login fields")
	}

	h.page.Mutate(func(root *html.Node) {
		app := query(t, h.page, "#app")
		nodes, err := html.ParseFragment(strings.NewReader(
			`<form><input id="email" type="email"><input id="pw" type="password"><input type="submit"></form>`),
			&html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div})
		if err != nil {
			t.Fatal(err)
		}
		for _, n := range nodes {
			app.AppendChild(n)
		}
	})

	if h.value(t, "#email") != "user0" || h.value(t, "#pw") != "pw0" {
		t.Errorf("late form not filled: %q/%q", h.value(t, "#email"), h.value(t, "#pw"))
	}
}

func TestApplyCredential(t *testing.T) {
	h := newHarness(t, loginDoc, nil)
	cred := vault.Credential{Username: "", Password: "only-pw"}
	if err := h.engine.ApplyCredential(context.Background(), cred); err != nil {
		t.Fatal(err)
	}
	if h.value(t, "#pass") != "only-pw" {
		t.Error("password not applied")
	}
	if h.value(t, "#user") != "" {
		t.Error("empty username overwrote the identifier")
	}
}

func TestSaveCaptureOnSubmit(t *testing.T) {
	doc := `<form id="f"><input id="user" name="login"><input id="pass" type="password"></form>`
	p, err := ParsePage("https://accounts.example.com:8443/signin", doc)
	if err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{}
	confirm := &fakeConfirmer{answer: true}
	NewEngine(context.Background(), p, sender, Options{Confirmer: confirm, Logger: zerolog.Nop()})

	p.Type(query(t, p, "#user"), "alice")
	p.Type(query(t, p, "#pass"), "s3cret")
	form := query(t, p, "#f")
	p.Submit(form)
	p.Submit(form)

	if len(confirm.prompts) != 2 || confirm.prompts[0] != "Save password for accounts.example.com:8443?" {
		t.Fatalf("prompts = %q", confirm.prompts)
	}
	if len(sender.saved) != 2 {
		t.Fatalf("saved %d credentials, want 2", len(sender.saved))
	}
	got := sender.saved[0]
	if got.Username != "alice" || got.Password != "s3cret" {
		t.Errorf("saved %q/%q", got.Username, got.Password)
	}
	if len(got.Origins) != 1 || got.Origins[0] != "https://accounts.example.com:8443" {
		t.Errorf("origins = %v", got.Origins)
	}
	if got.ID == "" || got.ID == sender.saved[1].ID {
		t.Errorf("ids = %q, %q; want distinct non-empty", got.ID, sender.saved[1].ID)
	}
}

func TestSaveCaptureDeclinedOrEmpty(t *testing.T) {
	h := newHarness(t, loginDoc, nil)
	form := query(t, h.page, "#login")

	h.page.Submit(form)
	if len(h.confirm.prompts) != 0 {
		t.Error("prompted for a form without a password")
	}

	h.confirm.answer = false
	h.page.Type(query(t, h.page, "#pass"), "pw")
	h.page.Submit(form)
	if len(h.confirm.prompts) != 1 {
		t.Fatalf("prompts = %d, want 1", len(h.confirm.prompts))
	}
	if len(h.sender.saved) != 0 {
		t.Error("declined credential was saved")
	}
}

func TestPaste(t *testing.T) {
	h := newHarness(t, `<input id="a"><input id="b" type="password" style="display:none">`, creds(2))
	a := query(t, h.page, "#a")

	h.engine.PasteUsername(context.Background())
	if h.page.Value(a) != "" {
		t.Error("paste without focus changed the page")
	}

	h.page.Focus(a)
	h.engine.PasteUsername(context.Background())
	if h.page.Value(a) != "user1" {
		t.Errorf("PasteUsername = %q, want user1", h.page.Value(a))
	}
	h.engine.PastePassword(context.Background())
	if h.page.Value(a) != "pw1" {
		t.Errorf("PastePassword = %q, want pw1", h.page.Value(a))
	}
}

func TestPasteIgnoredOffWeb(t *testing.T) {
	p, err := ParsePage("file:///tmp/login.html", `<input id="a">`)
	if err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{creds: creds(1)}
	e := NewEngine(context.Background(), p, sender, Options{Logger: zerolog.Nop()})
	a := query(t, p, "#a")
	p.Focus(a)
	e.PastePassword(context.Background())
	if p.Value(a) != "" || len(sender.reqs) != 0 {
		t.Error("paste ran on a non-web page")
	}
}
