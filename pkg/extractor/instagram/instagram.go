// Package instagram extracts photo galleries from Instagram post and reel
// pages, including sidecar carousels.
package instagram

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"imagedl/pkg/errors"
	"imagedl/pkg/extractor"
	"imagedl/pkg/media"
	"imagedl/pkg/transport"
)

const platform = "instagram"

// postPath matches /p/<shortcode>/ and /reel/<shortcode>/ paths.
var postPath = regexp.MustCompile(`^/(?:p|reel)/([A-Za-z0-9_-]+)/?`)

// Extractor resolves Instagram post URLs.
type Extractor struct {
	fetcher transport.Fetcher
}

// New builds the extractor on top of a shared fetcher.
func New(fetcher transport.Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

func (e *Extractor) Name() string { return platform }

// Match claims instagram.com post and reel URLs.
func (e *Extractor) Match(u *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "instagram.com" {
		return false
	}
	return postPath.MatchString(u.Path)
}

// Extract fetches the post JSON and lists its photos. Video posts and video
// carousel children are skipped; a post with no photos at all is an
// extraction error.
func (e *Extractor) Extract(ctx context.Context, rawURL string, auth *extractor.AuthContext) (*media.Gallery, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Newf(errors.KindUnsupportedURL, "invalid URL %q", rawURL)
	}
	m := postPath.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, errors.Newf(errors.KindUnsupportedURL, "not an instagram post URL: %q", rawURL)
	}
	shortcode := m[1]

	data, err := e.fetcher.FetchBytes(ctx, postJSONURL(shortcode))
	if err != nil {
		if errors.KindOf(err) == errors.KindAuthRequired {
			return nil, errors.Newf(errors.KindAuthRequired, "instagram post %s requires login", shortcode)
		}
		return nil, err
	}

	var resp postResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		// Instagram serves the HTML login page instead of JSON when the
		// session is missing or expired.
		if looksLikeLoginPage(data) {
			return nil, errors.Newf(errors.KindAuthRequired, "instagram post %s requires login", shortcode)
		}
		return nil, errors.Wrap(errors.KindExtraction, err, "decoding post response")
	}
	if resp.RequiresToLogin {
		return nil, errors.Newf(errors.KindAuthRequired, "instagram post %s requires login", shortcode)
	}

	post := resp.media()
	if post == nil {
		return nil, errors.Newf(errors.KindExtraction, "post %s: no media in response", shortcode)
	}

	g := &media.Gallery{
		Platform:    platform,
		ID:          shortcode,
		Uploader:    post.Owner.Username,
		Description: post.caption(),
		WebpageURL:  rawURL,
	}
	if g.Description != "" {
		g.Title = firstLine(g.Description)
	}

	for _, node := range post.photoNodes() {
		g.Items = append(g.Items, itemFromNode(node, post.TakenAtTimestamp))
	}
	if len(g.Items) == 0 {
		return nil, errors.Newf(errors.KindExtraction, "post %s contains no photos", shortcode)
	}

	g.Finalize()
	return g, nil
}

// photoNodes flattens the post into its non-video nodes, preserving
// carousel order.
func (m *shortcodeMedia) photoNodes() []*shortcodeMedia {
	if m.SidecarChildren != nil {
		nodes := make([]*shortcodeMedia, 0, len(m.SidecarChildren.Edges))
		for i := range m.SidecarChildren.Edges {
			node := &m.SidecarChildren.Edges[i].Node
			if !node.IsVideo {
				nodes = append(nodes, node)
			}
		}
		return nodes
	}
	if m.IsVideo {
		return nil
	}
	return []*shortcodeMedia{m}
}

func itemFromNode(node *shortcodeMedia, takenAt int64) media.Item {
	it := media.Item{
		ID:        node.ID,
		SourceURL: node.DisplayURL,
		Ext:       "jpg",
		Width:     node.Dimensions.Width,
		Height:    node.Dimensions.Height,
	}
	if takenAt > 0 {
		it.UploadDate = time.Unix(takenAt, 0).UTC()
	}
	for _, res := range node.DisplayResources {
		it.Variants = append(it.Variants, media.Variant{
			URL:    res.Src,
			Width:  res.ConfigWidth,
			Height: res.ConfigHeight,
		})
	}
	// The display URL is the full resolution rendition.
	if node.DisplayURL != "" {
		it.Variants = append(it.Variants, media.Variant{
			URL:      node.DisplayURL,
			Width:    node.Dimensions.Width,
			Height:   node.Dimensions.Height,
			Original: true,
		})
	}
	return it
}

func postJSONURL(shortcode string) string {
	return "https://www.instagram.com/p/" + shortcode + "/?__a=1&__d=dis"
}

func looksLikeLoginPage(data []byte) bool {
	head := data
	if len(head) > 2048 {
		head = head[:2048]
	}
	s := string(head)
	return strings.Contains(s, "<html") || strings.Contains(s, "loginForm")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
