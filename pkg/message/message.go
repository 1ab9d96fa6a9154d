// Package message defines the request/response contract between page
// contexts and the vault controller.
//
// Requests form a closed set: every concrete type lives in this package
// and Dispatcher.handle switches over all of them. Failures never cross
// the boundary as Go errors; they travel as Response.Error.
package message

import (
	"errors"

	"github.com/forest6511/passvault/pkg/store"
	"github.com/forest6511/passvault/pkg/vault"
)

// Kind is the wire tag of a request.
type Kind string

const (
	KindStatus                  Kind = "STATUS"
	KindUnlock                  Kind = "UNLOCK"
	KindLock                    Kind = "LOCK"
	KindGetCredentialsForOrigin Kind = "GET_CREDENTIALS_FOR_ORIGIN"
	KindSaveCredential          Kind = "SAVE_CREDENTIAL"
	KindListCredentials         Kind = "LIST_CREDENTIALS"
	KindDeleteCredential        Kind = "DELETE_CREDENTIAL"
	KindSetAutolockDuration     Kind = "SET_AUTOLOCK_DURATION"
	KindTriggerAutofill         Kind = "TRIGGER_AUTOFILL"
	KindApplyCredential         Kind = "APPLY_CREDENTIAL"
)

// Request is implemented only by the types below.
type Request interface {
	Kind() Kind
	sealed()
}

type (
	Status struct{}

	Unlock struct {
		Passphrase string `json:"passphrase"`
	}

	Lock struct{}

	GetCredentialsForOrigin struct {
		Origin string `json:"origin"`
	}

	SaveCredential struct {
		Credential vault.Credential `json:"credential"`
	}

	ListCredentials struct{}

	DeleteCredential struct {
		ID string `json:"id"`
	}

	SetAutolockDuration struct {
		Milliseconds int64 `json:"ms"`
	}

	// TriggerAutofill asks the page to autofill, offering a picker when
	// several credentials match.
	TriggerAutofill struct{}

	// ApplyCredential injects a specific credential into the page.
	ApplyCredential struct {
		Credential vault.Credential `json:"credential"`
	}
)

func (Status) Kind() Kind                  { return KindStatus }
func (Unlock) Kind() Kind                  { return KindUnlock }
func (Lock) Kind() Kind                    { return KindLock }
func (GetCredentialsForOrigin) Kind() Kind { return KindGetCredentialsForOrigin }
func (SaveCredential) Kind() Kind          { return KindSaveCredential }
func (ListCredentials) Kind() Kind         { return KindListCredentials }
func (DeleteCredential) Kind() Kind        { return KindDeleteCredential }
func (SetAutolockDuration) Kind() Kind     { return KindSetAutolockDuration }
func (TriggerAutofill) Kind() Kind         { return KindTriggerAutofill }
func (ApplyCredential) Kind() Kind         { return KindApplyCredential }

func (Status) sealed()                  {}
func (Unlock) sealed()                  {}
func (Lock) sealed()                    {}
func (GetCredentialsForOrigin) sealed() {}
func (SaveCredential) sealed()          {}
func (ListCredentials) sealed()         {}
func (DeleteCredential) sealed()        {}
func (SetAutolockDuration) sealed()     {}
func (TriggerAutofill) sealed()         {}
func (ApplyCredential) sealed()         {}

// Error codes carried in Response.Error.
const (
	CodeInvalidPassphrase = "invalid_passphrase"
	CodeLocked            = "locked"
	CodeInvalidConfig     = "invalid_config"
	CodeInvalidCredential = "invalid_credential"
	CodeStorage           = "storage"
	CodeCrypto            = "crypto"
	CodeNoPage            = "no_page"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// ErrNoPage is reported when a page request arrives with no page attached.
var ErrNoPage = errors.New("message: no page context attached")

// ErrBadRequest is reported for undecodable or unknown requests.
var ErrBadRequest = errors.New("message: bad request")

// Response is the single reply shape for every request.
type Response struct {
	OK          bool               `json:"ok"`
	Unlocked    *bool              `json:"unlocked,omitempty"`
	Credentials []vault.Credential `json:"credentials,omitempty"`
	Credential  *vault.Credential  `json:"credential,omitempty"`
	Error       *Error             `json:"error,omitempty"`
}

// Error is a structured failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var codeErrors = []struct {
	code string
	err  error
}{
	{CodeInvalidPassphrase, vault.ErrInvalidPassphrase},
	{CodeLocked, vault.ErrVaultLocked},
	{CodeInvalidConfig, vault.ErrInvalidConfig},
	{CodeInvalidCredential, vault.ErrInvalidCredential},
	{CodeStorage, store.ErrStorage},
	{CodeCrypto, vault.ErrCrypto},
	{CodeCrypto, vault.ErrMetadataCorrupted},
	{CodeNoPage, ErrNoPage},
	{CodeBadRequest, ErrBadRequest},
}

// Failure builds an error response from err.
func Failure(err error) Response {
	code := CodeInternal
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			code = ce.code
			break
		}
	}
	return Response{Error: &Error{Code: code, Message: err.Error()}}
}

// Err converts a failed response back into an error that matches the
// package sentinels with errors.Is. It returns nil for OK responses.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Error == nil {
		return errors.New("message: request failed")
	}
	for _, ce := range codeErrors {
		if ce.code == r.Error.Code {
			return &remoteError{msg: r.Error.Message, sentinel: ce.err}
		}
	}
	return errors.New(r.Error.Message)
}

type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

func ok() Response { return Response{OK: true} }
