// Package security produces a health report for stored credentials.
package security

import "unicode/utf8"

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	// PasswordWeak indicates a password shorter than 8 characters.
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the share of the strength component this level earns,
// out of 4.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordFair:
		return 1
	case PasswordGood:
		return 3
	case PasswordStrong:
		return 4
	default:
		return 0
	}
}

// CalculateStrength rates a human-chosen password by length alone
// (NIST SP 800-63B discourages composition rules).
func CalculateStrength(password string) PasswordStrength {
	n := utf8.RuneCountInString(password)
	switch {
	case n >= 20:
		return PasswordStrong
	case n >= 14:
		return PasswordGood
	case n >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}
