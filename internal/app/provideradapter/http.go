// Package provideradapter implements provider.Adapter over plain JSON-over-HTTP
// calls, grounded on infrastructure/datafeed/client.go's http.Client-with-timeout
// shape (no retryablehttp/resty dependency appears anywhere in the pack).
package provideradapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/enrichlayer/core/internal/app/domain/provider"
)

// AuthStyle selects how Credentials are attached to the outbound request.
type AuthStyle string

const (
	// AuthBearer sends "Authorization: Bearer <Key>".
	AuthBearer AuthStyle = "bearer"
	// AuthAPIKeyHeader sends Credentials.Key in a custom header named by
	// HTTPClient.APIKeyHeader, and Credentials.Secret (if any) as a second
	// header named by HTTPClient.APISecretHeader.
	AuthAPIKeyHeader AuthStyle = "api_key_header"
	// AuthQueryParam appends Credentials.Key as a query parameter named by
	// HTTPClient.APIKeyQueryParam.
	AuthQueryParam AuthStyle = "query_param"
)

// HTTPClient is a generic JSON-over-HTTP provider.Adapter. One instance is
// constructed per provider slug in cmd/appserver, parameterized by that
// provider's base URL and auth convention; the response body is decoded
// directly into AdapterResult.Data with no provider-specific struct since
// waterfall providers only ever need the arbitrary key/value bag the
// enrichment activity already treats fields as.
type HTTPClient struct {
	BaseURL          string
	Path             string // e.g. "/v1/people/match", may contain no placeholders
	Method           string // defaults to GET
	Auth             AuthStyle
	APIKeyHeader     string // used when Auth == AuthAPIKeyHeader
	APISecretHeader  string // used when Auth == AuthAPIKeyHeader and Credentials.Secret is set
	APIKeyQueryParam string // used when Auth == AuthQueryParam

	httpClient *http.Client
}

// NewHTTPClient constructs an HTTPClient with a bounded timeout matching the
// enrichment activity's own 30s adapter-call ceiling; the context deadline
// the activity sets is the binding constraint, this timeout is a backstop.
func NewHTTPClient(baseURL, path string, auth AuthStyle) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		Path:       path,
		Method:     http.MethodGet,
		Auth:       auth,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) client() *http.Client {
	if c.httpClient == nil {
		return &http.Client{Timeout: 30 * time.Second}
	}
	return c.httpClient
}

// Enrich implements provider.Adapter by issuing one HTTP request built from
// inputData, returning the decoded JSON body as AdapterResult.Data.
func (c *HTTPClient) Enrich(ctx context.Context, creds provider.Credentials, inputData map[string]interface{}) (provider.AdapterResult, error) {
	method := c.Method
	if method == "" {
		method = http.MethodGet
	}

	url := c.BaseURL + c.Path
	var bodyReader io.Reader
	if method != http.MethodGet {
		payload, err := json.Marshal(inputData)
		if err != nil {
			return provider.AdapterResult{}, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	} else {
		url = appendQuery(url, inputData)
	}

	if c.Auth == AuthQueryParam && creds.Key != "" {
		sep := "?"
		if bytes.ContainsRune([]byte(url), '?') {
			sep = "&"
		}
		url = fmt.Sprintf("%s%s%s=%s", url, sep, c.APIKeyQueryParam, creds.Key)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return provider.AdapterResult{}, fmt.Errorf("build request: %w", err)
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}

	switch c.Auth {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+creds.Key)
	case AuthAPIKeyHeader:
		if c.APIKeyHeader != "" {
			req.Header.Set(c.APIKeyHeader, creds.Key)
		}
		if c.APISecretHeader != "" && creds.Secret != "" {
			req.Header.Set(c.APISecretHeader, creds.Secret)
		}
	}

	resp, err := c.client().Do(req)
	if err != nil {
		// Transport-level failures are infra faults: propagate so the
		// outer retry policy (not the waterfall) can decide to retry.
		return provider.AdapterResult{}, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.AdapterResult{}, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode >= 500 {
		// Upstream infra failure: propagate for retry, same as a transport error.
		return provider.AdapterResult{}, fmt.Errorf("provider returned %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode >= 400 {
		// Client-side rejection (bad input, unauthorized, not found) is a
		// provider-reported failure, never retryable.
		return provider.AdapterResult{Success: false, Error: fmt.Sprintf("provider returned %d: %s", resp.StatusCode, string(raw))}, nil
	}

	var data map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return provider.AdapterResult{Success: false, Error: fmt.Sprintf("unparseable provider response: %v", err)}, nil
		}
	}

	return provider.AdapterResult{Success: true, IsComplete: true, Data: data}, nil
}

func appendQuery(url string, inputData map[string]interface{}) string {
	if len(inputData) == 0 {
		return url
	}
	sep := "?"
	for k, v := range inputData {
		url = fmt.Sprintf("%s%s%s=%v", url, sep, k, v)
		sep = "&"
	}
	return url
}
