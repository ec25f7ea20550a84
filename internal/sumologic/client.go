// Package sumologic talks to the Sumo Logic Search Job API: a low-level
// request executor that classifies transport and protocol failures, and a
// search service that drives the asynchronous job lifecycle (submit, poll,
// fetch, delete).
package sumologic

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/secrelay/sumologic-relay/internal/relayerr"
)

// UserAgent identifies the relay on every outbound request.
const UserAgent = "SecureX Threat Response Integrations <tr-integrations-support@cisco.com>"

const defaultHTTPTimeout = 30 * time.Second

// Credentials hold the per-request Sumo Logic API endpoint and access pair.
// They are supplied by the boundary layer and never persisted.
type Credentials struct {
	Endpoint  string
	AccessID  string
	AccessKey string
}

// Client executes authenticated requests against one Sumo Logic endpoint.
// It is stateless and safe for concurrent use; retry policy belongs to the
// caller.
type Client struct {
	creds      Credentials
	httpClient *http.Client
	logger     *log.Logger
}

// ClientOptions tweak the client; zero values pick sensible defaults.
type ClientOptions struct {
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewClient builds a client for the given credentials.
func NewClient(creds Credentials, opts ClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Endpoint returns the configured API endpoint with any trailing slash removed.
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.creds.Endpoint, "/")
}

// Health probes the endpoint and credentials with a cheap authenticated call.
func (c *Client) Health(ctx context.Context) error {
	return c.execute(ctx, http.MethodGet, "healthEvents", nil, nil, url.Values{"limit": {"1"}})
}

// execute performs one request against the endpoint-relative path. A non-nil
// body is sent as JSON; a 2xx response is decoded into out when out is
// non-nil. Failures come back as *relayerr.Error except for decode failures,
// which indicate a defect and are wrapped verbatim.
func (c *Client) execute(ctx context.Context, method, path string, body, out any, query url.Values) error {
	target := c.Endpoint() + "/" + strings.TrimLeft(path, "/")
	if u, err := url.Parse(target); err != nil || u.Scheme == "" || u.Host == "" {
		return relayerr.NewConnectionError(c.creds.Endpoint)
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return relayerr.NewConnectionError(c.creds.Endpoint)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	req.SetBasicAuth(c.creds.AccessID, c.creds.AccessKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		c.logger.Printf("Sumo Logic returned %d for %s %s", resp.StatusCode, method, req.URL.Path)
		return relayerr.NewResponseError(resp.StatusCode, strings.TrimSpace(string(text)), req.URL.String())
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Sumo Logic response: %w", err)
	}
	return nil
}

// classifyTransportError maps a failed round trip onto the relay error
// taxonomy: TLS verification failures carry their reason, everything else is
// a connection error naming the configured endpoint. Context cancellation
// passes through so callers can tell shutdown from backend trouble.
func (c *Client) classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var certVerify *tls.CertificateVerificationError
	if errors.As(err, &certVerify) {
		return relayerr.NewSSLError(certVerify.Err.Error())
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return relayerr.NewSSLError(unknownAuthority.Error())
	}
	var hostname x509.HostnameError
	if errors.As(err, &hostname) {
		return relayerr.NewSSLError(hostname.Error())
	}
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		return relayerr.NewSSLError(invalid.Error())
	}

	return relayerr.NewConnectionError(c.creds.Endpoint)
}
