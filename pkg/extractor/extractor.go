// Package extractor defines the platform extractor interface and the
// ordered registry that maps an input URL to the extractor claiming it.
package extractor

import (
	"context"
	"net/http"
	"net/url"

	"imagedl/pkg/errors"
	"imagedl/pkg/media"
)

// AuthContext carries the credentials and cookies available to an
// extraction. All fields are optional.
type AuthContext struct {
	Username string
	Password string
	Cookies  []*http.Cookie
	Headers  map[string]string
}

// Anonymous reports whether no credential material is present.
func (a *AuthContext) Anonymous() bool {
	return a == nil || (a.Username == "" && a.Password == "" && len(a.Cookies) == 0)
}

// Extractor resolves a platform URL into a gallery of downloadable items.
type Extractor interface {
	// Name identifies the platform, e.g. "instagram".
	Name() string
	// Match reports whether this extractor claims the URL. Matching is
	// pure; no network access.
	Match(u *url.URL) bool
	// Extract lists the gallery behind the URL. It performs network calls
	// and returns classified errors.
	Extract(ctx context.Context, rawURL string, auth *AuthContext) (*media.Gallery, error)
}

// Registry holds extractors in registration order. The first match wins,
// so specific platform extractors register before the generic direct one.
type Registry struct {
	extractors []Extractor
}

// NewRegistry builds a registry from extractors in priority order.
func NewRegistry(extractors ...Extractor) *Registry {
	return &Registry{extractors: extractors}
}

// Register appends an extractor at the lowest priority.
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Names lists the registered extractors in priority order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.extractors))
	for i, e := range r.extractors {
		names[i] = e.Name()
	}
	return names
}

// Resolve returns the first extractor matching the URL. A URL that fails
// to parse or that no extractor claims is an unsupported URL error.
func (r *Registry) Resolve(rawURL string) (Extractor, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Newf(errors.KindUnsupportedURL, "not a valid http(s) URL: %q", rawURL)
	}
	for _, e := range r.extractors {
		if e.Match(u) {
			return e, nil
		}
	}
	return nil, errors.Newf(errors.KindUnsupportedURL, "no extractor for %q", rawURL)
}
