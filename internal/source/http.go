package source

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPOptions configures the HTTP source.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	RateLimit float64 // requests per second per host
}

// HTTPSource downloads datasets over HTTP(S). Each request is attempted
// once; failures are returned to the caller.
type HTTPSource struct {
	client *http.Client
	opts   HTTPOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPSource creates an HTTPSource with opts, filling defaults.
func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "readmit-dqi/1.0"
	}
	return &HTTPSource{
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *HTTPSource) limiterFor(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[host]
	if !ok {
		burst := int(s.opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(s.opts.RateLimit), burst)
		s.limiters[host] = lim
	}
	return lim
}

// Download fetches rawURL and returns the response body. A 404 or 410
// response yields ErrSourceNotFound.
func (s *HTTPSource) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: create request")
	}
	req.Header.Set("User-Agent", s.opts.UserAgent)

	if err := s.limiterFor(rawURL).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "http: rate limiter wait")
	}

	zap.L().Debug("http: downloading", zap.String("url", rawURL))
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "http: get %s", rawURL)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_ = resp.Body.Close()
		return nil, eris.Wrapf(ErrSourceNotFound, "http %d from %s", resp.StatusCode, rawURL)
	case resp.StatusCode != http.StatusOK:
		_ = resp.Body.Close()
		return nil, eris.Errorf("http: unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return resp.Body, nil
}
