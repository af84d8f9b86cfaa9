// File: backend/internal/provider/sender.go
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

// DispatchError describes a failed password-reset dispatch for one user.
// Transport errors (connection refused, timeout, DNS failure) are
// distinguished from provider rejections (4xx on a bad address) because only
// the former hint at a systemic outage.
type DispatchError struct {
	ProjectID  string
	UserID     string
	StatusCode int
	Message    string
	transport  bool
}

func (e *DispatchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("dispatch to user %s in project %s failed: provider returned status %d: %s", e.UserID, e.ProjectID, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("dispatch to user %s in project %s failed: %s", e.UserID, e.ProjectID, e.Message)
}

// IsTransportError reports whether err was a network-level failure rather
// than a provider-side rejection of the individual user.
func IsTransportError(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.transport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Config holds the provider endpoint settings.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// Client dispatches password-reset emails through the identity provider's
// REST API. Provider authentication details and template rendering are the
// provider's concern; the client only carries the campaign's template name
// through.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds the standard-path client. The transport mirrors the
// send-rate the engine's gate allows: modest connection reuse, no aggressive
// parallelism.
func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// NewLightningClient builds the fire-and-forget client: an HTTP/2-enabled
// transport with connection limits raised to sustain the lightning path's
// fan-out. Callers bound the per-call lifetime through ctx; the client itself
// carries no timeout.
func NewLightningClient(cfg Config) (*Client, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          1000,
		MaxIdleConnsPerHost:   256,
		MaxConnsPerHost:       0,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// HTTP/2 multiplexes the fan-out over few connections instead of opening
	// one TCP connection per in-flight request.
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to configure HTTP/2 transport: %w", err)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
	}, nil
}

// oobCodeRequest is the provider's send-out-of-band-code payload.
type oobCodeRequest struct {
	RequestType string `json:"requestType"`
	UserID      string `json:"userId"`
	Template    string `json:"template,omitempty"`
}

type providerErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// SendPasswordReset dispatches one password-reset email for userID in
// projectID. A non-2xx provider response or a network failure returns a
// *DispatchError; nil means the provider confirmed acceptance.
func (c *Client) SendPasswordReset(ctx context.Context, projectID, userID, template string) error {
	endpoint := fmt.Sprintf("%s/v1/projects/%s/accounts:sendOobCode", c.cfg.BaseURL, url.PathEscape(projectID))
	payload, err := json.Marshal(oobCodeRequest{RequestType: "PASSWORD_RESET", UserID: userID, Template: template})
	if err != nil {
		return &DispatchError{ProjectID: projectID, UserID: userID, Message: "failed to encode request: " + err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return &DispatchError{ProjectID: projectID, UserID: userID, Message: "failed to build request: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DispatchError{ProjectID: projectID, UserID: userID, Message: err.Error(), transport: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	msg := resp.Status
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var provErr providerErrorResponse
	if jsonErr := json.Unmarshal(body, &provErr); jsonErr == nil && provErr.Error.Message != "" {
		msg = provErr.Error.Message
	}
	return &DispatchError{
		ProjectID:  projectID,
		UserID:     userID,
		StatusCode: resp.StatusCode,
		Message:    msg,
		// 5xx and 429 suggest the provider itself is struggling; 4xx is a
		// per-user condition (unknown user, malformed address).
		transport: resp.StatusCode >= 500,
	}
}
