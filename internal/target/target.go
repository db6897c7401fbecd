// Package target holds the registry of named deployment targets.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

// Verification describes an Etherscan-compatible explorer registered for a
// target.
type Verification struct {
	// Service is the explorer identifier, e.g. "snowtrace".
	Service string `mapstructure:"service" yaml:"service" json:"service" validate:"required"`
	// APIURL is the Etherscan-compatible API base URL.
	APIURL string `mapstructure:"api_url" yaml:"api_url" json:"apiUrl" validate:"required,url"`
	// BrowserURL is the human-facing explorer.
	BrowserURL string `mapstructure:"browser_url" yaml:"browser_url" json:"browserUrl" validate:"omitempty,url"`
	// APIKey may be a public placeholder; explorers like Routescan accept any value.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty" json:"-"`
}

// Target is a named destination chain plus everything needed to deploy to it.
type Target struct {
	Name         string        `yaml:"-" json:"name" validate:"required"`
	RPCURL       string        `mapstructure:"rpc_url" yaml:"rpc_url" json:"rpcUrl" validate:"required,url"`
	ChainID      int64         `mapstructure:"chain_id" yaml:"chain_id" json:"chainId" validate:"gt=0"`
	Credential   string        `mapstructure:"credential" yaml:"credential" json:"credential"`
	Verification *Verification `mapstructure:"verification" yaml:"verification,omitempty" json:"verification,omitempty"`
}

// CredentialRef returns the parsed credential reference.
func (t Target) CredentialRef() (CredentialRef, error) {
	return ParseCredentialRef(t.Credential)
}

// Endpoint returns the RPC URL with any userinfo and query removed, for logs.
func (t Target) Endpoint() string {
	u, err := url.Parse(t.RPCURL)
	if err != nil {
		return t.RPCURL
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// normalize trims stray whitespace that hand-edited configs tend to carry
// (" https://api.lorescan.com/43114").
func (t *Target) normalize() {
	t.Name = strings.TrimSpace(t.Name)
	t.RPCURL = strings.TrimSpace(t.RPCURL)
	t.Credential = strings.TrimSpace(t.Credential)
	if t.Verification != nil {
		t.Verification.Service = strings.TrimSpace(t.Verification.Service)
		t.Verification.APIURL = strings.TrimSpace(t.Verification.APIURL)
		t.Verification.BrowserURL = strings.TrimSpace(t.Verification.BrowserURL)
	}
}

// Validate checks field constraints and the credential reference.
func (t Target) Validate() error {
	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w %q: field %s failed %q", apperrors.ErrInvalidTarget, t.Name, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w %q: %v", apperrors.ErrInvalidTarget, t.Name, err)
	}
	if _, err := t.CredentialRef(); err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	return nil
}
