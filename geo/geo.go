// Package geo resolves public IP addresses to a location and carrier through an
// ip9 compatible HTTP API.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"zako_server/metrics"
)

const (
	DefaultEndpoint = "https://ip9.com.cn/get"
	DefaultTimeout  = 3 * time.Second
	DefaultCacheTTL = 6 * time.Hour
)

// ErrLookupFailed wraps every failure to obtain a usable answer.
var ErrLookupFailed = errors.New("geolocation lookup failed")

// Location is what the API knows about an address.
type Location struct {
	Country  string `json:"country"`
	Province string `json:"prov"`
	City     string `json:"city"`
	Area     string `json:"area"`
	ISP      string `json:"isp"`
}

// Display joins the non-empty parts, e.g. "中国 浙江 杭州".
func (l Location) Display() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{l.Country, l.Province, l.City, l.Area} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

type apiResponse struct {
	Ret  int       `json:"ret"`
	Data *Location `json:"data"`
}

// Options configures a Client.
type Options struct {
	Endpoint   string
	Timeout    time.Duration
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client looks addresses up with a bounded timeout, caching answers and
// collapsing concurrent lookups of the same address.
type Client struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
	cache    *gocache.Cache
	group    singleflight.Group
	log      *zap.Logger
}

func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		endpoint: opts.Endpoint,
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
		cache:    gocache.New(opts.CacheTTL, 2*opts.CacheTTL),
		log:      opts.Logger,
	}
}

// Lookup resolves ip. Failures are never cached.
func (c *Client) Lookup(ctx context.Context, ip string) (Location, error) {
	if v, ok := c.cache.Get(ip); ok {
		if loc, ok := v.(Location); ok {
			metrics.GeoLookups.WithLabelValues("cache_hit").Inc()
			return loc, nil
		}
	}

	// The fetch is shared by every caller waiting on ip, so the first caller's
	// cancellation must not fail the rest; fetch applies its own timeout.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(ip, func() (interface{}, error) {
		loc, err := c.fetch(fetchCtx, ip)
		if err != nil {
			return Location{}, err
		}
		c.cache.SetDefault(ip, loc)
		return loc, nil
	})
	if err != nil {
		metrics.GeoLookups.WithLabelValues("failure").Inc()
		return Location{}, err
	}
	metrics.GeoLookups.WithLabelValues("success").Inc()
	return v.(Location), nil
}

func (c *Client) fetch(ctx context.Context, ip string) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Location{}, fmt.Errorf("%w: bad endpoint: %v", ErrLookupFailed, err)
	}
	q := u.Query()
	q.Set("ip", ip)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}
	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("%w: decode: %v", ErrLookupFailed, err)
	}
	if body.Ret != 200 || body.Data == nil {
		return Location{}, fmt.Errorf("%w: api returned %d", ErrLookupFailed, body.Ret)
	}
	c.log.Debug("Geolocation resolved", zap.String("ip", ip), zap.String("location", body.Data.Display()))
	return *body.Data, nil
}
