package vault

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"
)

var defaultPorts = map[string]string{"http": "80", "https": "443"}

// NormalizeOrigin reduces a URL to its scheme://host[:port] origin, lower
// casing scheme and host and dropping default ports, paths and queries.
func NormalizeOrigin(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty origin", ErrInvalidCredential)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q is not an origin", ErrInvalidCredential, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, nil
}

// Host returns the host part of an origin, or the input when unparsable.
func Host(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return origin
	}
	return u.Hostname()
}

func validateCredential(c *Credential) error {
	if len(c.Origins) == 0 {
		return fmt.Errorf("%w: at least one origin is required", ErrInvalidCredential)
	}
	if len(c.Origins) > MaxOrigins {
		return fmt.Errorf("%w: too many origins (%d)", ErrInvalidCredential, len(c.Origins))
	}
	for _, o := range c.Origins {
		if len(o) > MaxURLLength {
			return fmt.Errorf("%w: origin too long", ErrInvalidCredential)
		}
		canonical, err := NormalizeOrigin(o)
		if err != nil {
			return err
		}
		if canonical != o {
			return fmt.Errorf("%w: %q is not an origin, use %q", ErrInvalidCredential, o, canonical)
		}
	}
	if len(c.Username) > MaxUsernameSize {
		return fmt.Errorf("%w: username too long", ErrInvalidCredential)
	}
	if len(c.Password) > MaxPasswordSize {
		return fmt.Errorf("%w: password too long", ErrInvalidCredential)
	}
	if len(c.Notes) > MaxNotesSize {
		return fmt.Errorf("%w: notes too large (max %d bytes)", ErrInvalidCredential, MaxNotesSize)
	}
	for _, s := range []string{c.ID, c.Username, c.Password, c.Notes} {
		if !utf8.ValidString(s) {
			return fmt.Errorf("%w: invalid UTF-8", ErrInvalidCredential)
		}
	}
	return nil
}
