package signer

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/target"
)

// LookupFunc looks up an environment value. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Resolver loads key material for credential references.
type Resolver struct {
	lookup   LookupFunc
	readFile func(string) ([]byte, error)
}

// NewResolver creates a Resolver. A nil lookup falls back to os.LookupEnv.
func NewResolver(lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Resolver{lookup: lookup, readFile: os.ReadFile}
}

// Resolve returns a signer for ref bound to chainID. Missing or malformed key
// material fails with ErrInvalidCredentialReference. No network access occurs.
func (r *Resolver) Resolve(ref target.CredentialRef, chainID int64) (TransactionSigner, error) {
	switch ref.Scheme {
	case target.SchemeEnv:
		value, ok := r.lookup(ref.Location)
		if !ok || strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("%w: environment variable %s is not set", apperrors.ErrInvalidCredentialReference, ref.Location)
		}
		return r.fromHex(ref, value, chainID)

	case target.SchemeFile:
		data, err := r.readFile(ref.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrInvalidCredentialReference, ref.Location, err)
		}
		return r.fromHex(ref, string(data), chainID)

	case target.SchemeKeystore:
		password, ok := r.lookup(ref.PasswordEnv)
		if !ok {
			return nil, fmt.Errorf("%w: environment variable %s is not set", apperrors.ErrInvalidCredentialReference, ref.PasswordEnv)
		}
		data, err := r.readFile(ref.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", apperrors.ErrInvalidCredentialReference, ref.Location, err)
		}
		key, err := keystore.DecryptKey(data, password)
		if err != nil {
			return nil, fmt.Errorf("%w: decrypt keystore %s: %v", apperrors.ErrInvalidCredentialReference, ref.Location, err)
		}
		return NewLocalSignerFromKey(key.PrivateKey, chainID), nil

	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidCredentialReference, ref.Scheme)
	}
}

// fromHex builds a signer from hex key material. The parse error is dropped
// since it may quote the key.
func (r *Resolver) fromHex(ref target.CredentialRef, value string, chainID int64) (TransactionSigner, error) {
	s, err := NewLocalSigner(value, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s does not hold a valid secp256k1 private key", apperrors.ErrInvalidCredentialReference, ref)
	}
	return s, nil
}
