// Package marketplace is a client of the marketplace REST backend.
package marketplace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single marketplace call.
const DefaultTimeout = 10 * time.Second

const maxBodySize = 4 << 20

// APIError is a non-2xx marketplace response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace: %d: %s", e.Status, e.Message)
}

type tokenKey struct{}

// WithToken returns a context whose marketplace calls carry token as a
// bearer credential.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout   time.Duration
	transport http.RoundTripper
	tracer    trace.TracerProvider
	meter     metric.MeterProvider
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport sets the underlying transport. Instrumentation wraps it.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithTelemetry sets the providers used to instrument outbound calls.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *options) {
		o.tracer = tp
		o.meter = mp
	}
}

// Client calls the marketplace on behalf of the user whose token is in the
// request context.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the marketplace at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base URL")
	}

	o := options{timeout: DefaultTimeout, transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	var otelOpts []otelhttp.Option
	if o.tracer != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tracer))
	}
	if o.meter != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(o.meter))
	}

	return &Client{
		base: base,
		http: &http.Client{
			Transport: otelhttp.NewTransport(o.transport, otelOpts...),
			Timeout:   o.timeout,
		},
	}, nil
}

// do sends a request and hands the response payload to decode. Enveloped
// responses are unwrapped first. A nil body sends no content and a nil
// decode ignores the response.
func (c *Client) do(ctx context.Context, method, path string, body []byte, decode func(d *jx.Decoder) error) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(data)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if decode == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.Errorf("%s %s: empty response", method, path)
	}

	payload, err := unwrap(data)
	if err != nil {
		return errors.Wrap(err, "decode envelope")
	}
	if err := decode(jx.DecodeBytes(payload)); err != nil {
		return errors.Wrapf(err, "decode %s %s", method, path)
	}
	return nil
}

// unwrap returns the "data" member of an enveloped response, or the whole
// response when it is not enveloped.
func unwrap(body []byte) ([]byte, error) {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return body, nil
	}

	var (
		data  jx.Raw
		found bool
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "data" {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		data, found = raw, true
		return nil
	}); err != nil {
		return nil, err
	}
	if !found {
		return body, nil
	}
	return data, nil
}

// errorMessage extracts "message" or "error" from an error response body.
func errorMessage(body []byte) string {
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return ""
	}
	var msg string
	_ = d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "message", "error":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			if msg == "" || key == "message" {
				msg = s
			}
			return nil
		default:
			return d.Skip()
		}
	})
	return msg
}
