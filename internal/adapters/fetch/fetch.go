// Package fetch retrieves raw items and price histories for tracker targets.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
	"github.com/okian/watchtower/pkg/metrics"
)

const (
	defaultTimeout       = 20 * time.Second
	defaultMaxBody       = 8 << 20
	defaultPriceInterval = "1d"
	defaultPriceFidelity = 60
	defaultEventHistory  = 2
	userAgent            = "watchtower/1.0"
)

// RawItem is one source record before normalization.
type RawItem struct {
	SourceID   string
	ExternalID string
	Data       map[string]any
}

// Payload is everything fetched for one target.
type Payload struct {
	Items  []RawItem
	Prices []model.PriceHistory
}

func (p *Payload) merge(o Payload) {
	p.Items = append(p.Items, o.Items...)
	p.Prices = append(p.Prices, o.Prices...)
}

// Fetcher retrieves a target's current state. Fetchers never retry.
type Fetcher interface {
	Fetch(ctx context.Context, t model.Target) (Payload, error)
}

// Registry dispatches each target variant to its fetcher.
type Registry struct {
	client            *http.Client
	log               logger.Logger
	gammaURL          string
	clobURL           string
	googleNewsURL     string
	maxBody           int64
	priceInterval     string
	priceFidelity     int
	maxEventHistories int
}

var _ Fetcher = (*Registry)(nil)

// NewRegistry creates a registry with public Polymarket and Google News endpoints.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		client:            &http.Client{Timeout: defaultTimeout},
		log:               logger.Get().Named("fetch"),
		gammaURL:          "https://gamma-api.polymarket.com",
		clobURL:           "https://clob.polymarket.com",
		googleNewsURL:     "https://news.google.com/rss/search",
		maxBody:           defaultMaxBody,
		priceInterval:     defaultPriceInterval,
		priceFidelity:     defaultPriceFidelity,
		maxEventHistories: defaultEventHistory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fetch implements Fetcher.
func (r *Registry) Fetch(ctx context.Context, t model.Target) (Payload, error) {
	kind := model.TargetKind(t)
	start := time.Now()

	var (
		p   Payload
		err error
	)
	switch v := t.(type) {
	case model.PolymarketMarket:
		p, err = r.fetchMarket(ctx, v)
	case model.PolymarketEvent:
		p, err = r.fetchEvent(ctx, v)
	case model.SubstackFeed:
		p, err = r.fetchFeed(ctx, kind+":"+v.URL, v.URL)
	case model.GoogleNewsRSSSearch:
		p, err = r.fetchFeed(ctx, kind+":"+v.Query, r.googleNewsSearchURL(v.Query))
	case model.HTTPSource:
		p, err = r.fetchHTTP(ctx, v)
	case model.Composite:
		p, err = r.fetchComposite(ctx, v)
	default:
		return Payload{}, fmt.Errorf("%w: %T", ErrUnsupportedTarget, t)
	}

	metrics.RecordFetchLatency(kind, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordFetchError(kind)
		return Payload{}, fmt.Errorf("fetch %s: %w", kind, err)
	}
	r.log.Debug(ctx, "fetched target",
		logger.String("target", kind),
		logger.Int("items", len(p.Items)),
		logger.Int("histories", len(p.Prices)),
		logger.Duration("elapsed", time.Since(start)))
	return p, nil
}

// fetchComposite fetches children concurrently and concatenates their
// payloads in child order. The first child error cancels the rest.
func (r *Registry) fetchComposite(ctx context.Context, c model.Composite) (Payload, error) {
	results := make([]Payload, len(c.Targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, child := range c.Targets {
		g.Go(func() error {
			p, err := r.Fetch(gctx, child)
			if err != nil {
				return fmt.Errorf("child %d: %w", i, err)
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Payload{}, err
	}

	var out Payload
	for _, p := range results {
		out.merge(p)
	}
	return out, nil
}

// get performs a request and returns the capped body of a 2xx response.
func (r *Registry) get(ctx context.Context, method, url string, headers map[string]string) ([]byte, string, error) {
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.log.Warn(ctx, "close response body", logger.String("url", url), logger.Error(cerr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBody))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
