package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/couchcryptid/meteo-etl-service/internal/config"
	"github.com/couchcryptid/meteo-etl-service/internal/domain"
	"github.com/couchcryptid/meteo-etl-service/internal/observability"
)

// maxBodyBytes caps a single feed download. A larger body is an error, not a
// truncated table.
const maxBodyBytes = 32 << 20

// ErrBodyTooLarge is returned when a feed body exceeds the download cap.
var ErrBodyTooLarge = errors.New("feed body too large")

// Options configures a Fetcher.
type Options struct {
	// Timeout bounds connecting, waiting for response headers, and each read
	// of the body, per request. A body that keeps arriving is never cut off.
	Timeout   time.Duration
	UserAgent string

	// A locator's breaker opens after BreakerFailures consecutive failed runs
	// and stays open for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// OptionsFromConfig maps the FEED_* settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Timeout:         cfg.FeedTimeout,
		UserAgent:       cfg.FeedUserAgent,
		BreakerFailures: cfg.FeedBreakerFailures,
		BreakerCooldown: cfg.FeedBreakerCooldown,
	}
}

// Fetcher downloads feed bodies over HTTP. Each locator has its own circuit
// breaker; a request is attempted at most once per call.
type Fetcher struct {
	httpClient *http.Client
	opts       Options
	metrics    *observability.Metrics
	logger     *slog.Logger

	maxBody int64

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewFetcher creates a Fetcher with its own HTTP transport.
func NewFetcher(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: opts.Timeout}).DialContext,
		TLSHandshakeTimeout:   opts.Timeout,
		ResponseHeaderTimeout: opts.Timeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}
	return &Fetcher{
		httpClient: &http.Client{Transport: transport},
		opts:       opts,
		metrics:    metrics,
		logger:     logger,
		maxBody:    maxBodyBytes,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

// FetchAll fetches every locator concurrently and returns once all of them
// have settled. Results are in the order of locators. A failing locator never
// affects the others.
func (f *Fetcher) FetchAll(ctx context.Context, locators []string) []domain.FeedResult {
	results := make([]domain.FeedResult, len(locators))
	var wg sync.WaitGroup
	for i, loc := range locators {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.fetchOne(ctx, loc)
		}()
	}
	wg.Wait()
	return results
}

func (f *Fetcher) fetchOne(ctx context.Context, locator string) domain.FeedResult {
	start := time.Now()
	out, err := f.breaker(locator).Execute(func() (interface{}, error) {
		return f.doRequest(ctx, locator)
	})
	f.metrics.FeedFetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		outcome := "error"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			outcome = "circuit_open"
			err = fmt.Errorf("%w: %v", domain.ErrCircuitOpen, err)
		}
		f.metrics.FeedFetches.WithLabelValues(outcome).Inc()
		return domain.FeedResult{Locator: locator, Err: &domain.FetchError{Locator: locator, Err: err}}
	}

	body, _ := out.([]byte)
	f.metrics.FeedFetches.WithLabelValues("success").Inc()
	f.metrics.FeedBytes.Add(float64(len(body)))
	return domain.FeedResult{Locator: locator, Body: body}
}

func (f *Fetcher) doRequest(ctx context.Context, locator string) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}

	r := &idleReader{r: resp.Body, timeout: f.opts.Timeout}
	if f.opts.Timeout > 0 {
		r.timer = time.AfterFunc(f.opts.Timeout, func() {
			r.expired.Store(true)
			cancel()
		})
		defer r.timer.Stop()
	}

	body, err := io.ReadAll(io.LimitReader(r, f.maxBody+1))
	if err != nil {
		if r.expired.Load() {
			return nil, fmt.Errorf("read body: no data for %s", f.opts.Timeout)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, f.maxBody)
	}
	return body, nil
}

// idleReader cancels the request when no read completes within timeout. The
// timer restarts after every read that returns data.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 && r.timer != nil && !r.expired.Load() {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (f *Fetcher) breaker(locator string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[locator]; ok {
		return cb
	}
	failures := f.opts.BreakerFailures
	if failures == 0 {
		failures = 1
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        locator,
		MaxRequests: 1,
		Timeout:     f.opts.BreakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("feed circuit state changed", "locator", name, "from", from.String(), "to", to.String())
		},
	})
	f.breakers[locator] = cb
	return cb
}
