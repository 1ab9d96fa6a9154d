package message

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/forest6511/passvault/pkg/vault"
)

// Vault is the controller surface the dispatcher drives.
type Vault interface {
	Status(ctx context.Context) bool
	Unlock(ctx context.Context, passphrase string) error
	Lock(ctx context.Context)
	CredentialsForOrigin(ctx context.Context, origin string) ([]vault.Credential, error)
	SaveCredential(ctx context.Context, cred vault.Credential) (vault.Credential, error)
	ListCredentials(ctx context.Context) ([]vault.Credential, error)
	DeleteCredential(ctx context.Context, id string) error
	SetAutolockDuration(ctx context.Context, ms int64) error
}

// PageHandler receives the requests addressed to a page context.
type PageHandler interface {
	TriggerAutofill(ctx context.Context) error
	ApplyCredential(ctx context.Context, cred vault.Credential) error
}

// Sender is what page contexts use to reach the vault.
type Sender interface {
	Send(ctx context.Context, req Request) Response
}

type job struct {
	ctx   context.Context
	req   Request
	reply chan Response
}

// Dispatcher serializes vault requests on a single goroutine.
// Page requests bypass the queue, since the page may call back into
// the vault while handling them.
type Dispatcher struct {
	vault Vault
	log   zerolog.Logger
	jobs  chan job

	mu   sync.RWMutex
	page PageHandler
}

// NewDispatcher creates a dispatcher. Call Run to start processing.
func NewDispatcher(v Vault, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		vault: v,
		log:   log,
		jobs:  make(chan job),
	}
}

// AttachPage sets the handler for page requests; nil detaches.
func (d *Dispatcher) AttachPage(p PageHandler) {
	d.mu.Lock()
	d.page = p
	d.mu.Unlock()
}

// Run processes queued requests until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-d.jobs:
			j.reply <- d.handle(j.ctx, j.req)
		}
	}
}

// Send submits req and waits for its response.
func (d *Dispatcher) Send(ctx context.Context, req Request) Response {
	if req == nil {
		return Failure(fmt.Errorf("%w: nil request", ErrBadRequest))
	}
	switch r := req.(type) {
	case TriggerAutofill, ApplyCredential:
		return d.handlePage(ctx, r)
	}

	j := job{ctx: ctx, req: req, reply: make(chan Response, 1)}
	select {
	case d.jobs <- j:
	case <-ctx.Done():
		return Failure(ctx.Err())
	}
	select {
	case resp := <-j.reply:
		return resp
	case <-ctx.Done():
		return Failure(ctx.Err())
	}
}

func (d *Dispatcher) handle(ctx context.Context, req Request) Response {
	d.log.Debug().Str("type", string(req.Kind())).Msg("request")

	switch r := req.(type) {
	case Status:
		unlocked := d.vault.Status(ctx)
		return Response{OK: true, Unlocked: &unlocked}
	case Unlock:
		if err := d.vault.Unlock(ctx, r.Passphrase); err != nil {
			return Failure(err)
		}
		return ok()
	case Lock:
		d.vault.Lock(ctx)
		return ok()
	case GetCredentialsForOrigin:
		creds, err := d.vault.CredentialsForOrigin(ctx, r.Origin)
		if err != nil {
			return Failure(err)
		}
		return Response{OK: true, Credentials: nonNil(creds)}
	case SaveCredential:
		saved, err := d.vault.SaveCredential(ctx, r.Credential)
		if err != nil {
			return Failure(err)
		}
		return Response{OK: true, Credential: &saved}
	case ListCredentials:
		creds, err := d.vault.ListCredentials(ctx)
		if err != nil {
			return Failure(err)
		}
		return Response{OK: true, Credentials: nonNil(creds)}
	case DeleteCredential:
		if err := d.vault.DeleteCredential(ctx, r.ID); err != nil {
			return Failure(err)
		}
		return ok()
	case SetAutolockDuration:
		if err := d.vault.SetAutolockDuration(ctx, r.Milliseconds); err != nil {
			return Failure(err)
		}
		return ok()
	case TriggerAutofill, ApplyCredential:
		return d.handlePage(ctx, r)
	default:
		return Failure(fmt.Errorf("%w: unknown request %T", ErrBadRequest, req))
	}
}

func (d *Dispatcher) handlePage(ctx context.Context, req Request) Response {
	d.mu.RLock()
	page := d.page
	d.mu.RUnlock()
	if page == nil {
		return Failure(ErrNoPage)
	}

	var err error
	switch r := req.(type) {
	case TriggerAutofill:
		err = page.TriggerAutofill(ctx)
	case ApplyCredential:
		err = page.ApplyCredential(ctx, r.Credential)
	}
	if err != nil {
		// page-side failures stay quiet
		d.log.Debug().Err(err).Str("type", string(req.Kind())).Msg("page request failed")
	}
	return ok()
}

func nonNil(creds []vault.Credential) []vault.Credential {
	if creds == nil {
		return []vault.Credential{}
	}
	return creds
}
