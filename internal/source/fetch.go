package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/koran-teknologi/koran/pkg/logx"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.9"

	defaultHTTPTimeout = 20 * time.Second
	maxBodyBytes       = 8 << 20
)

// RetryOptions bounds the retries of a single page fetch.
type RetryOptions struct {
	Attempts  int // total attempts, including the first
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetry is three attempts with exponential backoff from 500ms.
var DefaultRetry = RetryOptions{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second}

func (r RetryOptions) normalized() RetryOptions {
	if r.Attempts < 1 {
		r.Attempts = DefaultRetry.Attempts
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = DefaultRetry.BaseDelay
	}
	if r.MaxDelay < r.BaseDelay {
		r.MaxDelay = r.BaseDelay
	}
	return r
}

// retryableStatus lists the gateway and server errors worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// browserTransport makes requests look like they come from a desktop browser.
type browserTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *browserTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", defaultAccept)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", defaultAcceptLanguage)
	}
	return t.base.RoundTrip(req)
}

// fetcher is the HTTP client owned by one adapter.
type fetcher struct {
	client   *http.Client
	executor failsafe.Executor[[]byte]
	log      logx.Logger
}

func newFetcher(opts Options, log logx.Logger) *fetcher {
	base := opts.Transport
	if base == nil {
		// A private transport gives every adapter its own connection pool.
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	retry := opts.Retry.normalized()
	f := &fetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &browserTransport{base: base, userAgent: ua},
		},
		log: log,
	}
	policy := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			var transient *TransientFetchError
			return errors.As(err, &transient)
		}).
		WithBackoff(retry.BaseDelay, retry.MaxDelay).
		WithMaxRetries(retry.Attempts - 1).
		WithJitterFactor(0.1).
		OnRetry(func(e failsafe.ExecutionEvent[[]byte]) {
			f.log.Debug("retrying fetch", logx.Int("attempt", e.Attempts()+1), logx.Err(e.LastError()))
		}).
		Build()
	f.executor = failsafe.With[[]byte](policy)
	return f
}

// get downloads pageURL, retrying transient failures. Exhausted retries
// return the last *TransientFetchError.
func (f *fetcher) get(ctx context.Context, pageURL string) ([]byte, error) {
	var last *TransientFetchError
	body, err := f.executor.WithContext(ctx).Get(func() ([]byte, error) {
		b, err := f.once(ctx, pageURL)
		last = nil
		if err != nil {
			errors.As(err, &last)
		}
		return b, err
	})
	if err == nil {
		return body, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var transient *TransientFetchError
	if !errors.As(err, &transient) && last != nil {
		return nil, last
	}
	return nil, err
}

func (f *fetcher) once(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientFetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if retryableStatus[resp.StatusCode] {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &TransientFetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: &StatusError{StatusCode: resp.StatusCode}}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransientFetchError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}
