// Package pixpkg provides PIX key validation.
package pixpkg

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	digitsRE = regexp.MustCompile(`^[0-9]+$`)
	phoneRE  = regexp.MustCompile(`^\+[0-9]{11,14}$`)
	emailRE  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// IsValidKey reports whether s is a plausible PIX key: CPF, CNPJ,
// phone in +55 format, e-mail address or random (EVP) key.
func IsValidKey(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	if digitsRE.MatchString(s) {
		return len(s) == 11 || len(s) == 14
	}

	if phoneRE.MatchString(s) {
		return true
	}

	if emailRE.MatchString(s) && len(s) <= 77 {
		return true
	}

	_, err := uuid.Parse(s)

	return err == nil
}
