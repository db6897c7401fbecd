// Package verify submits contract sources to Etherscan-compatible explorers
// (Routescan, Snowtrace, Lorescan) and waits for the verdict.
package verify

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jonboulle/clockwork"

	"github.com/apesavax/wAvaxApes/internal/artifact"
	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
	"github.com/apesavax/wAvaxApes/internal/target"
)

// State is the verification state reported by an explorer.
type State string

const (
	StatePending         State = "pending"
	StateVerified        State = "verified"
	StateAlreadyVerified State = "already_verified"
	StateFailed          State = "failed"
)

// Request is a standard-JSON verification submission.
type Request struct {
	Address common.Address
	// ContractName is the fully qualified "contracts/File.sol:Name".
	ContractName string
	// CompilerVersion is the long solc version, e.g. "v0.8.20+commit.a1b79de6".
	CompilerVersion string
	// SourceCode is the solc standard JSON input.
	SourceCode string
	// ConstructorArgs are the ABI-encoded constructor arguments.
	ConstructorArgs []byte
}

// NewRequest builds a Request from a compiled artifact and its build-info.
func NewRequest(a *artifact.ContractArtifact, bi *artifact.BuildInfo, address common.Address, constructorArgs []byte) Request {
	return Request{
		Address:         address,
		ContractName:    a.FullyQualifiedName(),
		CompilerVersion: bi.CompilerVersion(),
		SourceCode:      string(bi.Input),
		ConstructorArgs: constructorArgs,
	}
}

// Result is the outcome of Verify.
type Result struct {
	State   State  `json:"state"`
	GUID    string `json:"guid,omitempty"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Client talks to one explorer.
type Client struct {
	service    string
	apiURL     string
	browserURL string
	apiKey     string

	http   *retryablehttp.Client
	logger *slog.Logger
	clock  clockwork.Clock

	pollInitial time.Duration
	pollMax     time.Duration
	pollTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http.HTTPClient = hc }
}

// WithLogger sets the logger. Request retries are logged through it too.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock sets the clock status polling waits on.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithRetry sets how often failed HTTP requests are retried and the wait
// bounds between attempts.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// WithPolling sets the status polling backoff and the overall limit.
func WithPolling(initial, max, timeout time.Duration) Option {
	return func(c *Client) {
		c.pollInitial = initial
		c.pollMax = max
		c.pollTimeout = timeout
	}
}

// NewClient creates a client for the explorer described by v.
func NewClient(v *target.Verification, opts ...Option) (*Client, error) {
	if v == nil {
		return nil, apperrors.ErrNoVerificationService
	}
	apiURL := strings.TrimSpace(v.APIURL)
	if _, err := url.ParseRequestURI(apiURL); err != nil {
		return nil, fmt.Errorf("%w: %s api url: %v", apperrors.ErrInvalidTarget, v.Service, err)
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = 3
	hc.RetryWaitMin = time.Second
	hc.RetryWaitMax = 10 * time.Second
	hc.HTTPClient.Timeout = 30 * time.Second

	c := &Client{
		service:     v.Service,
		apiURL:      apiURL,
		browserURL:  strings.TrimRight(strings.TrimSpace(v.BrowserURL), "/"),
		apiKey:      v.APIKey,
		http:        hc,
		logger:      slog.Default(),
		clock:       clockwork.NewRealClock(),
		pollInitial: 3 * time.Second,
		pollMax:     15 * time.Second,
		pollTimeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.Logger = c.logger
	return c, nil
}

// Service returns the explorer identifier.
func (c *Client) Service() string {
	return c.service
}

// ExplorerURL links to the verified source of address, or "" when the
// explorer has no browser URL.
func (c *Client) ExplorerURL(address common.Address) string {
	if c.browserURL == "" {
		return ""
	}
	return c.browserURL + "/address/" + address.Hex() + "#code"
}

// IsVerified reports whether the explorer already has source for address.
func (c *Client) IsVerified(ctx context.Context, address common.Address) (bool, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {address.Hex()},
	})
	if err != nil {
		return false, err
	}
	var sources []struct {
		SourceCode string `json:"SourceCode"`
	}
	if err := json.Unmarshal(resp.Result, &sources); err != nil {
		result := resp.resultString()
		if resp.ok() || strings.Contains(strings.ToLower(result), "not verified") {
			return false, nil
		}
		// NOTOK with a reason: bad API key, rate limit and the like.
		return false, fmt.Errorf("%w: %s lookup failed: %s: %s", apperrors.ErrVerificationFailed, c.service, resp.Message, result)
	}
	return len(sources) > 0 && sources[0].SourceCode != "", nil
}

var errAlreadyVerified = errors.New("already verified")

// Submit posts req and returns the GUID to poll.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, url.Values{
		"module":                {"contract"},
		"action":                {"verifysourcecode"},
		"contractaddress":       {req.Address.Hex()},
		"sourceCode":            {req.SourceCode},
		"codeformat":            {"solidity-standard-json-input"},
		"contractname":          {req.ContractName},
		"compilerversion":       {req.CompilerVersion},
		"constructorArguements": {hex.EncodeToString(req.ConstructorArgs)},
	})
	if err != nil {
		return "", err
	}

	result := resp.resultString()
	if isAlreadyVerified(result) {
		return "", errAlreadyVerified
	}
	if !resp.ok() {
		return "", fmt.Errorf("%w: %s rejected submission: %s", apperrors.ErrVerificationFailed, c.service, result)
	}
	return result, nil
}

// CheckStatus asks for the state of a submission.
func (c *Client) CheckStatus(ctx context.Context, guid string) (Result, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, url.Values{
		"module": {"contract"},
		"action": {"checkverifystatus"},
		"guid":   {guid},
	})
	if err != nil {
		return Result{}, err
	}

	msg := resp.resultString()
	res := Result{GUID: guid, Message: msg}
	switch {
	case strings.Contains(strings.ToLower(msg), "pending"):
		res.State = StatePending
	case isAlreadyVerified(msg):
		res.State = StateAlreadyVerified
	case resp.ok():
		res.State = StateVerified
	default:
		res.State = StateFailed
	}
	return res, nil
}

var errPending = errors.New("verification pending")

// Wait polls CheckStatus with exponential backoff until the submission leaves
// the pending state.
func (c *Client) Wait(ctx context.Context, guid string) (Result, error) {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.pollInitial),
		backoff.WithMaxInterval(c.pollMax),
		backoff.WithMaxElapsedTime(c.pollTimeout),
		backoff.WithClockProvider(c.clock),
	)

	var res Result
	op := func() error {
		r, err := c.CheckStatus(ctx, guid)
		if err != nil {
			return backoff.Permanent(err)
		}
		if r.State == StatePending {
			return errPending
		}
		res = r
		return nil
	}
	notify := func(_ error, next time.Duration) {
		c.logger.Debug("verification pending", slog.String("guid", guid), slog.Duration("next", next))
	}

	if err := backoff.RetryNotifyWithTimer(op, backoff.WithContext(b, ctx), notify, &clockTimer{clock: c.clock}); err != nil {
		if errors.Is(err, errPending) {
			return Result{State: StatePending, GUID: guid}, fmt.Errorf("%w: %s still pending after %s", apperrors.ErrVerificationFailed, guid, c.pollTimeout)
		}
		return Result{}, err
	}
	if res.State == StateFailed {
		return res, fmt.Errorf("%w: %s", apperrors.ErrVerificationFailed, res.Message)
	}
	return res, nil
}

// Verify checks whether address is verified, submits req if not and waits
// for the outcome.
func (c *Client) Verify(ctx context.Context, req Request) (Result, error) {
	link := c.ExplorerURL(req.Address)

	verified, err := c.IsVerified(ctx, req.Address)
	if err != nil {
		return Result{}, err
	}
	if verified {
		return Result{State: StateAlreadyVerified, URL: link}, nil
	}

	guid, err := c.Submit(ctx, req)
	if errors.Is(err, errAlreadyVerified) {
		return Result{State: StateAlreadyVerified, URL: link}, nil
	}
	if err != nil {
		return Result{}, err
	}
	c.logger.Info("verification submitted",
		slog.String("service", c.service),
		slog.String("address", req.Address.Hex()),
		slog.String("guid", guid),
	)

	res, err := c.Wait(ctx, guid)
	if err != nil {
		return res, err
	}
	res.URL = link
	return res, nil
}

// clockTimer adapts a clockwork clock to backoff.Timer.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}

func isAlreadyVerified(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "already verified")
}
