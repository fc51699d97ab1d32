package prober

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/angeloszaimis/http-heartbeat/internal/notify"
)

type Kind int

const (
	Success Kind = iota
	HTTPError
	TransportError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case HTTPError:
		return "http-error"
	case TransportError:
		return "transport-error"
	default:
		return "unknown"
	}
}

// Outcome is the classification of one probe.
type Outcome struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (o Outcome) OK() bool {
	return o.Kind == Success
}

func (o Outcome) String() string {
	switch o.Kind {
	case HTTPError:
		return fmt.Sprintf("%s(%d)", o.Kind, o.StatusCode)
	case TransportError:
		return fmt.Sprintf("%s(%v)", o.Kind, o.Err)
	default:
		return o.Kind.String()
	}
}

// Target identifies what to probe. Name is only used in notifications.
type Target struct {
	Name   string
	URL    *url.URL
	Method string
}

type Prober interface {
	Probe(ctx context.Context, target Target) Outcome
}

type Options struct {
	Timeout time.Duration
	HTTP2   bool
}

// HTTPProber issues real HTTP requests.
type HTTPProber struct {
	client   *http.Client
	notifier notify.Notifier
}

func New(opts Options, notifier notify.Notifier) (*HTTPProber, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if opts.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configure http2 transport: %w", err)
		}
	}

	return NewWithClient(&http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
	}, notifier), nil
}

// NewWithClient wraps an existing client. Its redirect policy is replaced so
// that a redirect is reported as the response it is.
func NewWithClient(client *http.Client, notifier notify.Notifier) *HTTPProber {
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if notifier == nil {
		notifier = notify.Discard
	}

	return &HTTPProber{client: &c, notifier: notifier}
}

func (p *HTTPProber) Probe(ctx context.Context, target Target) Outcome {
	outcome := p.do(ctx, target)

	// A probe interrupted by cancellation is not a failure of the target.
	if ctx.Err() != nil {
		return outcome
	}

	switch outcome.Kind {
	case HTTPError:
		p.notifier.Notify(notify.Event{
			Kind:       notify.KindHTTPError,
			Endpoint:   target.Name,
			StatusCode: outcome.StatusCode,
		})
	case TransportError:
		p.notifier.Notify(notify.Event{
			Kind:     notify.KindTransportError,
			Endpoint: target.Name,
			Err:      outcome.Err,
		})
	}

	return outcome
}

func (p *HTTPProber) do(ctx context.Context, target Target) Outcome {
	req, err := http.NewRequestWithContext(ctx, target.Method, target.URL.String(), nil)
	if err != nil {
		return Outcome{Kind: TransportError, Err: err}
	}

	res, err := p.client.Do(req)
	if err != nil {
		return Outcome{Kind: TransportError, Err: err}
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode != http.StatusOK {
		return Outcome{Kind: HTTPError, StatusCode: res.StatusCode}
	}

	return Outcome{Kind: Success, StatusCode: res.StatusCode}
}
