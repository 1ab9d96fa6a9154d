// Package autofill finds login fields on a page, fills them from the
// vault and offers to save credentials the user submits.
//
// The engine runs once per page and only ever talks to the vault through
// message requests. Every vault failure, including a locked vault, is
// swallowed: the page never learns whether a vault exists.
package autofill

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/forest6511/passvault/internal/logging"
	"github.com/forest6511/passvault/pkg/message"
	"github.com/forest6511/passvault/pkg/vault"
)

// MaxPickerEntries bounds the credential picker.
const MaxPickerEntries = 6

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// Picker presents a credential list anchored below a field. choose is
// called with the selected entry; Close dismisses the list.
type Picker interface {
	Show(ctx context.Context, anchor *html.Node, creds []vault.Credential, choose func(vault.Credential))
	Close()
}

// Options configures an Engine. Confirmer and Picker may be nil, which
// disables save capture and multi-credential selection respectively.
type Options struct {
	Confirmer Confirmer
	Picker    Picker
	Logger    zerolog.Logger
}

// Engine holds per-page autofill state. Edited and applied marks are
// sticky for the page's lifetime.
type Engine struct {
	ctx     context.Context
	page    *Page
	sender  message.Sender
	confirm Confirmer
	picker  Picker
	log     zerolog.Logger

	edited     map[*html.Node]bool
	applied    map[*html.Node]bool
	pickerOpen bool
}

// NewEngine attaches an engine to page. ctx bounds every vault request
// made from page event handlers.
func NewEngine(ctx context.Context, page *Page, sender message.Sender, opts Options) *Engine {
	e := &Engine{
		ctx:     ctx,
		page:    page,
		sender:  sender,
		confirm: opts.Confirmer,
		picker:  opts.Picker,
		log:     opts.Logger,
		edited:  make(map[*html.Node]bool),
		applied: make(map[*html.Node]bool),
	}
	page.AddEventListener(e.handleEvent)
	return e
}

// Load runs the initial autofill pass, picker allowed.
func (e *Engine) Load() {
	e.maybeAutofill(e.ctx, true)
}

// TriggerAutofill runs an autofill pass on request, picker allowed.
func (e *Engine) TriggerAutofill(ctx context.Context) error {
	e.maybeAutofill(ctx, true)
	return nil
}

// ApplyCredential injects cred into the current login fields.
func (e *Engine) ApplyCredential(ctx context.Context, cred vault.Credential) error {
	e.apply(cred)
	return nil
}

// PasteUsername fills the focused input with the username of the most
// recently stored credential for this origin.
func (e *Engine) PasteUsername(ctx context.Context) {
	e.paste(ctx, func(c vault.Credential) string { return c.Username })
}

// PastePassword fills the focused input with the matching password.
func (e *Engine) PastePassword(ctx context.Context) {
	e.paste(ctx, func(c vault.Credential) string { return c.Password })
}

func (e *Engine) paste(ctx context.Context, pick func(vault.Credential) string) {
	target := e.page.Focused()
	if target == nil || !e.page.IsWeb() {
		return
	}
	creds := e.fetch(ctx)
	if len(creds) == 0 {
		return
	}
	e.page.SetValue(target, pick(creds[len(creds)-1]))
}

func (e *Engine) handleEvent(ev Event) {
	switch ev.Type {
	case EventInput:
		if ev.Trusted && ev.Target != nil {
			e.edited[ev.Target] = true
		}
	case EventFocus:
		if ev.Target == nil || inputType(ev.Target) == "password" {
			e.maybeAutofill(e.ctx, false)
		}
	case EventMutation:
		e.maybeAutofill(e.ctx, false)
	case EventClick:
		e.closePicker()
	case EventSubmit:
		e.captureSubmit(e.ctx, ev.Target)
	}
}

func (e *Engine) maybeAutofill(ctx context.Context, allowPicker bool) {
	fields := e.page.FindFields()
	if fields == nil {
		return
	}
	if e.edited[fields.Password] || (fields.Identifier != nil && e.edited[fields.Identifier]) {
		e.log.Debug().Msg("skip autofill: user edited fields")
		return
	}
	if e.applied[fields.Password] && e.page.Value(fields.Password) != "" {
		return
	}

	creds := e.fetch(ctx)
	switch {
	case len(creds) == 0:
	case len(creds) == 1:
		e.fill(fields, creds[0])
	case allowPicker:
		e.openPicker(ctx, fields.Password, creds)
	}
}

func (e *Engine) fetch(ctx context.Context) []vault.Credential {
	origin := e.page.Origin()
	resp := e.sender.Send(ctx, message.GetCredentialsForOrigin{Origin: origin})
	if !resp.OK {
		e.log.Debug().Err(resp.Err()).Str("origin", logging.Redact(origin)).Msg("credential lookup failed")
		return nil
	}
	return resp.Credentials
}

func (e *Engine) openPicker(ctx context.Context, anchor *html.Node, creds []vault.Credential) {
	if e.picker == nil || e.pickerOpen {
		return
	}
	if len(creds) > MaxPickerEntries {
		creds = creds[:MaxPickerEntries]
	}
	e.pickerOpen = true
	e.picker.Show(ctx, anchor, creds, func(c vault.Credential) {
		e.apply(c)
		e.closePicker()
	})
}

func (e *Engine) closePicker() {
	if !e.pickerOpen {
		return
	}
	e.pickerOpen = false
	e.picker.Close()
}

// apply fills whatever login fields the page currently has.
func (e *Engine) apply(cred vault.Credential) {
	fields := e.page.FindFields()
	if fields == nil {
		return
	}
	e.fill(fields, cred)
}

func (e *Engine) fill(fields *Fields, cred vault.Credential) {
	if fields.Identifier != nil && cred.Username != "" {
		e.page.SetValue(fields.Identifier, cred.Username)
		e.applied[fields.Identifier] = true
	}
	e.page.SetValue(fields.Password, cred.Password)
	e.applied[fields.Password] = true
}

// captureSubmit offers to store the credential typed into form. Every
// confirmed submit creates a new entry.
func (e *Engine) captureSubmit(ctx context.Context, form *html.Node) {
	if form == nil || e.confirm == nil {
		return
	}
	pw := e.page.passwordIn(form)
	if pw == nil {
		return
	}
	password := e.page.Value(pw)

	username := ""
	if id := findIdentifier(form, pw); id != nil {
		username = e.page.Value(id)
	}

	if !e.confirm.Confirm(ctx, "Save password for "+e.page.Host()+"?") {
		return
	}

	id := uuid.NewString()
	resp := e.sender.Send(ctx, message.SaveCredential{Credential: vault.Credential{
		ID:       id,
		Origins:  []string{e.page.Origin()},
		Username: username,
		Password: password,
	}})
	if !resp.OK {
		e.log.Debug().Err(resp.Err()).Str("id", logging.Redact(id)).Msg("save failed")
	}
}
