// Package direct handles URLs that point straight at an image file. It is
// registered last so platform extractors get first claim.
package direct

import (
	"context"
	"net/url"
	"path"
	"strings"

	"imagedl/pkg/errors"
	"imagedl/pkg/extractor"
	"imagedl/pkg/media"
)

const platform = "direct"

var imageExts = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
	"bmp":  true,
	"avif": true,
}

// Extractor claims bare image URLs by file extension. Extraction is pure;
// the download stage is the first network contact.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

func (e *Extractor) Name() string { return platform }

func (e *Extractor) Match(u *url.URL) bool {
	return imageExts[urlExt(u)]
}

func (e *Extractor) Extract(ctx context.Context, rawURL string, auth *extractor.AuthContext) (*media.Gallery, error) {
	u, err := url.Parse(rawURL)
	if err != nil || !e.Match(u) {
		return nil, errors.Newf(errors.KindUnsupportedURL, "not a direct image URL: %q", rawURL)
	}

	base := path.Base(u.Path)
	ext := urlExt(u)
	id := strings.TrimSuffix(base, path.Ext(base))

	g := &media.Gallery{
		Platform:   platform,
		ID:         id,
		Title:      id,
		WebpageURL: rawURL,
		Items: []media.Item{{
			ID:        id,
			SourceURL: rawURL,
			Ext:       ext,
		}},
	}
	g.Finalize()
	return g, nil
}

func urlExt(u *url.URL) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(u.Path), "."))
	return ext
}
