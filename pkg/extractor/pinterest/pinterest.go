// Package pinterest extracts single images from Pinterest pin pages by
// scraping the page's Open Graph metadata.
package pinterest

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imagedl/pkg/errors"
	"imagedl/pkg/extractor"
	"imagedl/pkg/media"
	"imagedl/pkg/transport"
)

const platform = "pinterest"

// pinPath matches /pin/<id>/ paths.
var pinPath = regexp.MustCompile(`^/pin/(\d+)/?`)

var pinterestHosts = map[string]bool{
	"pinterest.com":    true,
	"pinterest.co.uk":  true,
	"pinterest.fr":     true,
	"pinterest.de":     true,
	"pinterest.ca":     true,
	"pinterest.com.au": true,
	"pinterest.jp":     true,
	"pinterest.es":     true,
	"pinterest.it":     true,
	"pin.it":           true,
}

// Extractor resolves Pinterest pin URLs.
type Extractor struct {
	fetcher transport.Fetcher
}

// New builds the extractor on top of a shared fetcher.
func New(fetcher transport.Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

func (e *Extractor) Name() string { return platform }

// Match claims pin URLs on any pinterest locale domain, plus pin.it
// short links.
func (e *Extractor) Match(u *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if !pinterestHosts[host] {
		return false
	}
	if host == "pin.it" {
		// Short links redirect to the pin page; any non-empty path counts.
		return len(u.Path) > 1
	}
	return pinPath.MatchString(u.Path)
}

// Extract scrapes the pin page. Video pins are rejected since only images
// are downloadable.
func (e *Extractor) Extract(ctx context.Context, rawURL string, auth *extractor.AuthContext) (*media.Gallery, error) {
	data, err := e.fetcher.FetchBytes(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(errors.KindExtraction, err, "parsing pin page")
	}

	og := openGraph(doc)

	if og["og:type"] == "video" || og["og:video"] != "" {
		return nil, errors.New(errors.KindUnsupportedURL, "video pins are not supported")
	}

	imageURL := og["og:image"]
	if imageURL == "" {
		return nil, errors.New(errors.KindExtraction, "pin page has no og:image")
	}

	pinID := pinIDFrom(rawURL, og["og:url"])

	it := media.Item{
		ID:        pinID,
		SourceURL: imageURL,
		Ext:       extFromURL(imageURL),
	}
	if t, ok := parseOGDate(og["og:updated_time"]); ok {
		it.UploadDate = t
	}

	g := &media.Gallery{
		Platform:    platform,
		ID:          pinID,
		Title:       og["og:title"],
		Description: og["og:description"],
		WebpageURL:  rawURL,
		Items:       []media.Item{it},
	}
	if author := doc.Find(`meta[name="author"]`).AttrOr("content", ""); author != "" {
		g.Uploader = author
	}

	g.Finalize()
	return g, nil
}

// openGraph collects og: meta properties into a map. The first occurrence
// of a property wins.
func openGraph(doc *goquery.Document) map[string]string {
	og := make(map[string]string)
	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if prop != "" && content != "" {
			if _, seen := og[prop]; !seen {
				og[prop] = content
			}
		}
	})
	return og
}

// pinIDFrom recovers the numeric pin ID, preferring the canonical og:url
// so short links resolve to the real ID.
func pinIDFrom(rawURL, canonical string) string {
	for _, candidate := range []string{canonical, rawURL} {
		u, err := url.Parse(candidate)
		if err != nil {
			continue
		}
		if m := pinPath.FindStringSubmatch(u.Path); m != nil {
			return m[1]
		}
	}
	// Short link whose canonical URL is missing; fall back to the slug.
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.Trim(u.Path, "/")
}

func extFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "jpg"
	}
	path := u.Path
	if i := strings.LastIndexByte(path, '.'); i >= 0 && i < len(path)-1 {
		ext := strings.ToLower(path[i+1:])
		switch ext {
		case "jpg", "jpeg", "png", "gif", "webp":
			return ext
		}
	}
	return "jpg"
}

func parseOGDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
