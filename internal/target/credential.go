package target

import (
	"fmt"
	"strings"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// CredentialScheme names the secret source a credential reference points at.
type CredentialScheme string

const (
	// SchemeEnv reads a hex private key from an environment variable.
	SchemeEnv CredentialScheme = "env"
	// SchemeFile reads a hex private key from a file, e.g. a mounted secret.
	SchemeFile CredentialScheme = "file"
	// SchemeKeystore decrypts a V3 keystore file with a password taken from
	// an environment variable.
	SchemeKeystore CredentialScheme = "keystore"
)

const passwordEnvParam = "password_env"

// CredentialRef is a parsed credential reference. It never holds key
// material, only where to find it.
type CredentialRef struct {
	Scheme CredentialScheme
	// Location is the variable name for env, or the path for file and keystore.
	Location string
	// PasswordEnv is the variable holding the keystore password.
	PasswordEnv string
}

// String renders the reference in its configuration form.
func (r CredentialRef) String() string {
	s := string(r.Scheme) + ":" + r.Location
	if r.PasswordEnv != "" {
		s += "?" + passwordEnvParam + "=" + r.PasswordEnv
	}
	return s
}

// ParseCredentialRef parses "env:NAME", "file:PATH" or
// "keystore:PATH?password_env=NAME". Anything else, including a literal key,
// fails with ErrInvalidCredentialReference.
func ParseCredentialRef(s string) (CredentialRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CredentialRef{}, fmt.Errorf("%w: empty", apperrors.ErrInvalidCredentialReference)
	}

	scheme, rest, ok := strings.Cut(s, ":")
	if !ok {
		return CredentialRef{}, fmt.Errorf("%w: missing scheme (want env:, file: or keystore:)", apperrors.ErrInvalidCredentialReference)
	}

	ref := CredentialRef{Scheme: CredentialScheme(scheme)}
	switch ref.Scheme {
	case SchemeEnv:
		if looksLikeKey(rest) {
			return CredentialRef{}, fmt.Errorf("%w: env: takes a variable name, not a private key", apperrors.ErrInvalidCredentialReference)
		}
		if !isEnvName(rest) {
			return CredentialRef{}, fmt.Errorf("%w: %q is not an environment variable name", apperrors.ErrInvalidCredentialReference, rest)
		}
		ref.Location = rest
	case SchemeFile:
		if rest == "" {
			return CredentialRef{}, fmt.Errorf("%w: empty file path", apperrors.ErrInvalidCredentialReference)
		}
		ref.Location = rest
	case SchemeKeystore:
		path, query, _ := strings.Cut(rest, "?")
		if path == "" {
			return CredentialRef{}, fmt.Errorf("%w: empty keystore path", apperrors.ErrInvalidCredentialReference)
		}
		key, value, _ := strings.Cut(query, "=")
		if looksLikeKey(value) {
			return CredentialRef{}, fmt.Errorf("%w: %s takes a variable name, not a secret", apperrors.ErrInvalidCredentialReference, passwordEnvParam)
		}
		if key != passwordEnvParam || !isEnvName(value) {
			return CredentialRef{}, fmt.Errorf("%w: keystore reference needs ?%s=NAME", apperrors.ErrInvalidCredentialReference, passwordEnvParam)
		}
		ref.Location = path
		ref.PasswordEnv = value
	default:
		return CredentialRef{}, fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidCredentialReference, scheme)
	}
	return ref, nil
}

// isEnvName reports whether s looks like a POSIX environment variable name.
func isEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// looksLikeKey reports whether s is 32 bytes of hex, with or without 0x.
func looksLikeKey(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
