package automation

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
	"strings"
	"syscall"
	"time"
)

// ErrBlockedTarget is returned when an http_request step resolves to a
// loopback, private or link-local address
var ErrBlockedTarget = errors.New("request target is not allowed")

const (
	maxResponseBody = 64 << 10
	maxOutputBody   = 4 << 10
	maxRedirects    = 3
)

// HTTPStatusError is a non-2xx response from a webhook target
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("target responded with HTTP %d", e.Status)
}

// Retryable reports whether the target may accept the request later
func (e *HTTPStatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout || e.Status >= 500
}

// HTTPStep calls an external URL. Without params.body the trigger event is
// posted as JSON.
type HTTPStep struct {
	client  *http.Client
	secrets SecretOpener
}

// SecretOpener decrypts params.secret_headers values sealed when the rule was saved
type SecretOpener interface {
	DecryptString(encoded string) (string, error)
}

// WithSecrets enables params.secret_headers
func (h *HTTPStep) WithSecrets(o SecretOpener) *HTTPStep {
	h.secrets = o
	return h
}

// NewHTTPStep creates the executor. Unless allowPrivate is set, connections
// to non-public addresses are refused after DNS resolution.
func NewHTTPStep(timeout time.Duration, allowPrivate bool) *HTTPStep {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	if !allowPrivate {
		dialer.Control = guardAddress
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &HTTPStep{client: &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}}
}

func guardAddress(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublic(ip) {
		return ErrBlockedTarget
	}
	return nil
}

func isPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}

// Execute sends the request and returns the response status and a prefix of its body
func (h *HTTPStep) Execute(ctx context.Context, s Step) (map[string]any, error) {
	target, err := url.Parse(s.String("url"))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, Permanent(errors.New("url must be an absolute http(s) URL"))
	}
	method := strings.ToUpper(s.String("method"))
	if method == "" {
		method = http.MethodPost
	}

	body, contentType, err := requestBody(method, s)
	if err != nil {
		return nil, Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, Permanent(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "CrewDesk-Automation/1.0")
	if s.Event != nil {
		req.Header.Set("X-CrewDesk-Event", s.Event.EventType)
	}
	req.Header.Set("X-CrewDesk-Run", s.RunID.String())
	if headers, ok := s.Params["headers"].(map[string]any); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}
	if sealed, ok := s.Params["secret_headers"].(map[string]any); ok && len(sealed) > 0 {
		if h.secrets == nil {
			return nil, Permanent(errors.New("secret headers are not configured"))
		}
		for k, v := range sealed {
			plain, err := h.secrets.DecryptString(fmt.Sprint(v))
			if err != nil {
				return nil, Permanent(fmt.Errorf("secret header %q cannot be opened", k))
			}
			req.Header.Set(k, plain)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrBlockedTarget) {
			return nil, Permanent(ErrBlockedTarget)
		}
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{Status: resp.StatusCode}
	}
	if len(raw) > maxOutputBody {
		raw = raw[:maxOutputBody]
	}
	out := map[string]any{"status": resp.StatusCode, "body": string(raw)}
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		out["json"] = decoded
	}
	return out, nil
}

func requestBody(method string, s Step) (io.Reader, string, error) {
	if method == http.MethodGet || method == http.MethodDelete {
		return nil, "", nil
	}
	switch b := s.Params["body"].(type) {
	case nil:
		if s.Event == nil {
			return nil, "", nil
		}
		raw, err := json.Marshal(s.Event)
		return bytes.NewReader(raw), "application/json", err
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	default:
		raw, err := json.Marshal(b)
		return bytes.NewReader(raw), "application/json", err
	}
}

var _ StepExecutor = (*HTTPStep)(nil)
