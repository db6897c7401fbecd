package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	apperrors "github.com/apesavax/wAvaxApes/internal/pkg/errors"
)

const (
	headerContentType = "Content-Type"
	headerUserAgent   = "User-Agent"
	contentTypeForm   = "application/x-www-form-urlencoded"
	userAgent         = "apesctl/1.0"
)

// apiResponse is the envelope every Etherscan-compatible endpoint returns.
// Result is a string for most actions and an array for getsourcecode.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *apiResponse) ok() bool {
	return r.Status == "1"
}

// resultString returns Result when it is a JSON string.
func (r *apiResponse) resultString() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err != nil {
		return string(r.Result)
	}
	return s
}

// doRequest performs an API call. GET parameters go in the query, POST
// parameters in a form body. 5xx responses and transport errors are retried
// by the retryablehttp client.
func (c *Client) doRequest(ctx context.Context, method string, params url.Values) (*apiResponse, error) {
	params.Set("apikey", c.apiKey)

	var (
		reqURL = c.apiURL
		body   io.Reader
	)
	if method == http.MethodGet {
		sep := "?"
		if strings.Contains(reqURL, "?") {
			sep = "&"
		}
		reqURL += sep + params.Encode()
	} else {
		body = strings.NewReader(params.Encode())
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerUserAgent, userAgent)
	if body != nil {
		req.Header.Set(headerContentType, contentTypeForm)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrConnection, c.service, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %v", apperrors.ErrConnection, c.service, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned HTTP %d: %s", apperrors.ErrVerificationFailed, c.service, resp.StatusCode, snippet(respBody))
	}

	var out apiResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("%w: %s returned malformed response: %s", apperrors.ErrVerificationFailed, c.service, snippet(respBody))
	}
	return &out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
