package fetch

import (
	"net/http"
	"strings"

	"github.com/okian/watchtower/pkg/logger"
)

// Option configures a Registry.
type Option func(*Registry)

// WithHTTPClient sets the client used for every upstream request.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registry) {
		if c != nil {
			r.client = c
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// WithPolymarketURLs overrides the Gamma and CLOB API base URLs.
func WithPolymarketURLs(gamma, clob string) Option {
	return func(r *Registry) {
		if gamma != "" {
			r.gammaURL = strings.TrimRight(gamma, "/")
		}
		if clob != "" {
			r.clobURL = strings.TrimRight(clob, "/")
		}
	}
}

// WithGoogleNewsURL overrides the Google News RSS search endpoint.
func WithGoogleNewsURL(u string) Option {
	return func(r *Registry) {
		if u != "" {
			r.googleNewsURL = u
		}
	}
}

// WithMaxBodyBytes caps how much of an upstream body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxBody = n
		}
	}
}

// WithPriceInterval sets the CLOB prices-history interval and fidelity (minutes).
func WithPriceInterval(interval string, fidelity int) Option {
	return func(r *Registry) {
		if interval != "" {
			r.priceInterval = interval
		}
		if fidelity > 0 {
			r.priceFidelity = fidelity
		}
	}
}

// WithMaxEventHistories bounds how many markets of an event get a price history.
func WithMaxEventHistories(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxEventHistories = n
		}
	}
}
