package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonwraymond/cinecache/observe"
	"github.com/jonwraymond/cinecache/resilience"
)

// DefaultBaseURL is the public TMDB v3 API.
const DefaultBaseURL = "https://api.themoviedb.org/3"

const (
	originName   = "tmdb"
	maxBodyBytes = 4 << 20
)

// Config configures the client. Zero fields take defaults.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string `yaml:"base_url"`

	// APIKey is either a v4 read access token (sent as a bearer token) or
	// a v3 API key (sent as the api_key query parameter).
	APIKey string `yaml:"api_key"`

	// Language is sent as the language parameter, e.g. en-US.
	Language string `yaml:"language"`

	// Timeout bounds one attempt. Default: 5 seconds
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond and Burst shape outbound traffic. TMDB allows roughly
	// 50 requests per second per IP. Default: 40 and 20
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`

	// MaxAttempts includes the first try. Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// RetryBaseDelay is the first backoff delay. Default: 100ms
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`

	// MaxConcurrent caps in-flight requests. Default: 10
	MaxConcurrent int `yaml:"max_concurrent"`

	// BreakerFailures consecutive failed requests open the circuit for
	// BreakerReset. Default: 5 and 30 seconds
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 40
	}
	if c.Burst <= 0 {
		c.Burst = 20
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Its Timeout should be zero or larger
// than Config.Timeout, which is enforced per attempt.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithInstruments traces, meters and logs every request.
func WithInstruments(in observe.Instruments) Option {
	return func(c *Client) { c.middleware = observe.NewOriginMiddleware(in) }
}

// WithStateChange is called when the circuit breaker changes state.
func WithStateChange(fn func(name string, from, to resilience.State)) Option {
	return func(c *Client) { c.onStateChange = fn }
}

// Client calls the TMDB API. It is safe for concurrent use.
type Client struct {
	config        Config
	http          *http.Client
	exec          *resilience.Executor
	middleware    *observe.OriginMiddleware
	onStateChange func(name string, from, to resilience.State)
}

// New creates a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %w", ErrInvalidArgument, err)
	}

	c := &Client{
		config:     cfg,
		http:       &http.Client{},
		middleware: observe.NewOriginMiddleware(observe.NopInstruments()),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.exec = resilience.NewOriginExecutor(resilience.OriginConfig{
		Name:            originName,
		RatePerSecond:   cfg.RatePerSecond,
		Burst:           cfg.Burst,
		MaxConcurrent:   cfg.MaxConcurrent,
		MaxAttempts:     cfg.MaxAttempts,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		AttemptTimeout:  cfg.Timeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerReset:    cfg.BreakerReset,
	}, c.onStateChange)
	return c, nil
}

// Breaker exposes the circuit breaker for health checks.
func (c *Client) Breaker() *resilience.CircuitBreaker { return c.exec.CircuitBreaker() }

// MovieDetails returns one movie.
func (c *Client) MovieDetails(ctx context.Context, id int64) (Movie, error) {
	var m Movie
	if id <= 0 {
		return m, fmt.Errorf("%w: movie id %d", ErrInvalidArgument, id)
	}
	err := c.get(ctx, "/movie/{id}", "/movie/"+strconv.FormatInt(id, 10), nil, decodeInto(&m))
	return m, err
}

// TVDetails returns one TV show.
func (c *Client) TVDetails(ctx context.Context, id int64) (TVShow, error) {
	var s TVShow
	if id <= 0 {
		return s, fmt.Errorf("%w: tv id %d", ErrInvalidArgument, id)
	}
	err := c.get(ctx, "/tv/{id}", "/tv/"+strconv.FormatInt(id, 10), nil, decodeInto(&s))
	return s, err
}

// SearchMulti searches movies, TV shows and people. Pages start at 1.
func (c *Client) SearchMulti(ctx context.Context, query string, page int) (SearchPage, error) {
	var p SearchPage
	query = strings.TrimSpace(query)
	if query == "" {
		return p, fmt.Errorf("%w: empty query", ErrInvalidArgument)
	}
	if page < 1 {
		page = 1
	}
	q := url.Values{"query": {query}, "page": {strconv.Itoa(page)}}
	err := c.get(ctx, "/search/multi", "/search/multi", q, decodeInto(&p))
	return p, err
}

// Genres returns the genre list for movies or TV.
func (c *Client) Genres(ctx context.Context, kind Kind) ([]Genre, error) {
	var out struct {
		Genres []Genre `json:"genres"`
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	path := "/genre/" + string(kind) + "/list"
	err := c.get(ctx, path, path, nil, decodeInto(&out))
	return out.Genres, err
}

// WatchProviders returns where a title streams in region (ISO 3166-1,
// e.g. GB). A title with no offers in the region yields an empty result.
func (c *Client) WatchProviders(ctx context.Context, kind Kind, id int64, region string) (RegionProviders, error) {
	rp := RegionProviders{Region: strings.ToUpper(region)}
	if _, err := ParseKind(string(kind)); err != nil {
		return rp, err
	}
	if id <= 0 || len(rp.Region) != 2 {
		return rp, fmt.Errorf("%w: watch providers %s/%d region %q", ErrInvalidArgument, kind, id, region)
	}

	endpoint := "/" + string(kind) + "/{id}/watch/providers"
	path := "/" + string(kind) + "/" + strconv.FormatInt(id, 10) + "/watch/providers"
	err := c.get(ctx, endpoint, path, nil, func(body []byte) error {
		// The response holds every region; keep only the requested one.
		raw := gjson.GetBytes(body, "results."+rp.Region)
		if !raw.Exists() {
			return nil
		}
		return json.Unmarshal([]byte(raw.Raw), &rp)
	})
	rp.Region = strings.ToUpper(region)
	return rp, err
}

// Trending returns today's or this week's trending titles of kind.
func (c *Client) Trending(ctx context.Context, kind Kind, window string) (SearchPage, error) {
	var p SearchPage
	if _, err := ParseKind(string(kind)); err != nil {
		return p, err
	}
	if window != "day" && window != "week" {
		return p, fmt.Errorf("%w: trending window %q", ErrInvalidArgument, window)
	}
	endpoint := "/trending/" + string(kind) + "/{window}"
	err := c.get(ctx, endpoint, "/trending/"+string(kind)+"/"+window, nil, decodeInto(&p))
	return p, err
}

// Keyword returns one keyword.
func (c *Client) Keyword(ctx context.Context, id int64) (Keyword, error) {
	var k Keyword
	if id <= 0 {
		return k, fmt.Errorf("%w: keyword id %d", ErrInvalidArgument, id)
	}
	err := c.get(ctx, "/keyword/{id}", "/keyword/"+strconv.FormatInt(id, 10), nil, decodeInto(&k))
	return k, err
}

// Countries returns the countries TMDB knows.
func (c *Client) Countries(ctx context.Context) ([]Country, error) {
	var out []Country
	err := c.get(ctx, "/configuration/countries", "/configuration/countries", nil, decodeInto(&out))
	return out, err
}

func decodeInto(v any) func([]byte) error {
	return func(body []byte) error { return json.Unmarshal(body, v) }
}

// get performs a GET through the middleware and executor. handle runs on
// the 2xx body of the successful attempt.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, handle func([]byte) error) error {
	call := observe.OriginCall{Origin: originName, Endpoint: endpoint, Method: http.MethodGet}

	return c.middleware.Wrap(func(ctx context.Context, call observe.OriginCall) error {
		return c.exec.Execute(ctx, func(ctx context.Context) error {
			body, err := c.attempt(ctx, call.Endpoint, path, query)
			if err != nil {
				return err
			}
			if err := handle(body); err != nil {
				return resilience.Permanent(fmt.Errorf("tmdb: %s: decode: %w", call.Endpoint, err))
			}
			return nil
		})
	})(ctx, call)
}

func (c *Client) attempt(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if c.config.Language != "" {
		q.Set("language", c.config.Language)
	}
	bearer := strings.Count(c.config.APIKey, ".") == 2
	if c.config.APIKey != "" && !bearer {
		q.Set("api_key", c.config.APIKey)
	}

	u := c.config.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("tmdb: %s: %w", endpoint, err))
	}
	req.Header.Set("Accept", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb: %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("tmdb: %s: read body: %w", endpoint, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	statusErr := &StatusError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Message:    gjson.GetBytes(body, "status_message").String(),
	}
	return nil, classify(statusErr, resp.Header.Get("Retry-After"), time.Now())
}

// classify marks 429 with its Retry-After delay, other 4xx as permanent,
// and leaves 5xx retryable.
func classify(err *StatusError, retryAfter string, now time.Time) error {
	switch {
	case err.StatusCode == http.StatusTooManyRequests:
		return resilience.RetryAfter(err, parseRetryAfter(retryAfter, now))
	case err.StatusCode >= 400 && err.StatusCode < 500:
		return resilience.Permanent(err)
	default:
		return err
	}
}

// parseRetryAfter reads delta-seconds or an HTTP date. Unparseable values
// yield 0, leaving the backoff strategy in charge.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
