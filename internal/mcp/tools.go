package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/passvault/pkg/message"
	"github.com/forest6511/passvault/pkg/vault"
)

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// VaultStatusOutput represents output for vault_status tool.
type VaultStatusOutput struct {
	Unlocked bool `json:"unlocked"`
}

// VaultLockOutput represents output for vault_lock tool.
type VaultLockOutput struct {
	Locked bool `json:"locked"`
}

// CredentialListOutput represents output for credential_list tool.
type CredentialListOutput struct {
	Credentials []CredentialInfo `json:"credentials"`
}

// CredentialInfo describes a login without its password.
type CredentialInfo struct {
	ID       string   `json:"id"`
	Origins  []string `json:"origins"`
	Username string   `json:"username"`
	HasNotes bool     `json:"has_notes"`
}

// CredentialLookupInput represents input for credential_lookup tool.
type CredentialLookupInput struct {
	Origin string `json:"origin"`
}

// CredentialLookupOutput represents output for credential_lookup tool.
type CredentialLookupOutput struct {
	Origin  string           `json:"origin"`
	Matches []MaskedPassword `json:"matches"`
}

// MaskedPassword is a lookup match with its password masked.
type MaskedPassword struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	MaskedPassword string `json:"masked_password"`
	PasswordLength int    `json:"password_length"`
}

// errLocked tells the agent what the user has to do.
var errLocked = errors.New("vault is locked: ask the user to run 'passvault unlock'")

func (s *Server) handleVaultStatus(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, VaultStatusOutput, error) {
	resp := s.send(ctx, message.Status{})
	if err := resp.Err(); err != nil {
		return nil, VaultStatusOutput{}, err
	}
	return nil, VaultStatusOutput{Unlocked: resp.Unlocked != nil && *resp.Unlocked}, nil
}

func (s *Server) handleVaultLock(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, VaultLockOutput, error) {
	if err := s.send(ctx, message.Lock{}).Err(); err != nil {
		return nil, VaultLockOutput{}, err
	}
	return nil, VaultLockOutput{Locked: true}, nil
}

func (s *Server) handleCredentialList(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, CredentialListOutput, error) {
	resp := s.send(ctx, message.ListCredentials{})
	if err := toolError(resp); err != nil {
		return nil, CredentialListOutput{}, err
	}

	out := CredentialListOutput{Credentials: make([]CredentialInfo, 0, len(resp.Credentials))}
	for _, c := range resp.Credentials {
		out.Credentials = append(out.Credentials, CredentialInfo{
			ID:       c.ID,
			Origins:  c.Origins,
			Username: c.Username,
			HasNotes: c.Notes != "",
		})
	}
	return nil, out, nil
}

func (s *Server) handleCredentialLookup(ctx context.Context, _ *mcp.CallToolRequest, input CredentialLookupInput) (*mcp.CallToolResult, CredentialLookupOutput, error) {
	if strings.TrimSpace(input.Origin) == "" {
		return nil, CredentialLookupOutput{}, errors.New("origin is required")
	}
	origin, err := vault.NormalizeOrigin(input.Origin)
	if err != nil {
		return nil, CredentialLookupOutput{}, fmt.Errorf("invalid origin: %w", err)
	}

	resp := s.send(ctx, message.GetCredentialsForOrigin{Origin: origin})
	if err := toolError(resp); err != nil {
		return nil, CredentialLookupOutput{}, err
	}

	out := CredentialLookupOutput{Origin: origin, Matches: make([]MaskedPassword, 0, len(resp.Credentials))}
	for _, c := range resp.Credentials {
		out.Matches = append(out.Matches, MaskedPassword{
			ID:             c.ID,
			Username:       c.Username,
			MaskedPassword: maskValue(c.Password),
			PasswordLength: utf8.RuneCountInString(c.Password),
		})
	}
	return nil, out, nil
}

func toolError(resp message.Response) error {
	err := resp.Err()
	if errors.Is(err, vault.ErrVaultLocked) {
		return errLocked
	}
	return err
}

// maskValue masks a password, showing at most its last 4 characters.
func maskValue(value string) string {
	r := []rune(value)
	length := len(r)
	switch {
	case length == 0:
		return ""
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(r[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(r[length-4:])
	}
}
