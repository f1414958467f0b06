package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/developingchet/ip-location-exporter/internal/location"
)

const (
	// DefaultTimeout bounds one provider request.
	DefaultTimeout = 10 * time.Second

	maxBodyBytes = 1 << 20
	userAgent    = "ip-location-exporter"
)

var (
	// ErrStatus is returned for non-2xx provider responses.
	ErrStatus = errors.New("unexpected status")

	// ErrDecode is returned when a response body is not a JSON object.
	ErrDecode = errors.New("cannot decode response")
)

// Client queries one provider.
type Client struct {
	desc       Descriptor
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient binds d to an HTTP client. A nil httpClient uses
// http.DefaultClient; a non-positive timeout uses DefaultTimeout.
func NewClient(d Descriptor, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{desc: d, httpClient: httpClient, timeout: timeout}
}

// Name returns the provider name.
func (c *Client) Name() string { return c.desc.Name }

// Lookup fetches and normalizes the location of ip. Any error means this
// provider could not produce a complete record.
func (c *Client) Lookup(ctx context.Context, ip string) (location.Record, error) {
	u, err := c.desc.URL(ip)
	if err != nil {
		return location.Record{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return location.Record{}, fmt.Errorf("cannot build a request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return location.Record{}, fmt.Errorf("cannot send a request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return location.Record{}, fmt.Errorf("%w: %s", ErrStatus, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return location.Record{}, fmt.Errorf("cannot read a response: %w", err)
	}

	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return location.Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if data == nil {
		return location.Record{}, fmt.Errorf("%w: null body", ErrDecode)
	}

	return Normalize(c.desc.Schema, data)
}

// FailureReason classifies a Lookup error for logs and metrics.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrFieldMissing), errors.Is(err, ErrFieldType), errors.Is(err, ErrBadLocation):
		return "schema"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
