// Package media holds the value types describing a fetchable item and a
// gallery of items, shared by extractors, selection and the downloader.
package media

import (
	"strconv"
	"time"
)

// Metadata field names available for output-template substitution.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldUploader    = "uploader"
	FieldUploadDate  = "upload_date"
	FieldPlatform    = "platform"
	FieldGalleryID   = "gallery_id"
	FieldIndex       = "index"
	FieldExt         = "ext"
	FieldDescription = "description"
	FieldWidth       = "width"
	FieldHeight      = "height"
)

// Variant is one rendition of an item offered by the platform, used for
// quality selection (best/worst/original).
type Variant struct {
	URL       string
	Width     int
	Height    int
	SizeBytes int64
	Original  bool
}

// Item is one downloadable unit inside a gallery.
//
// Index is the 1-based position within the originating gallery; it is dense
// and unique within one gallery at extraction time, and stable across
// re-extraction of the same gallery.
type Item struct {
	ID        string
	SourceURL string
	Index     int
	Ext       string
	SizeBytes int64 // 0 means unknown
	Width     int
	Height    int
	// UploadDate is the calendar date the item was uploaded; the zero value
	// means unknown.
	UploadDate time.Time
	// Variants holds alternative renditions, if the platform offers them.
	// SourceURL is always a valid fallback.
	Variants []Variant
	// Fields carries extra item-level metadata for template substitution.
	Fields map[string]string
}

// Gallery is an ordered sequence of items plus gallery-level metadata.
// Ordering is the platform's canonical order; selection only subsets it.
type Gallery struct {
	Platform    string
	ID          string
	Title       string
	Uploader    string
	Description string
	WebpageURL  string
	Items       []Item
}

// Finalize assigns dense 1-based indices in canonical order. Extractors call
// it once after building the item list.
func (g *Gallery) Finalize() {
	for i := range g.Items {
		g.Items[i].Index = i + 1
	}
}

// Metadata returns the merged template fields for one item: gallery-level
// fields first, then item-level fields, then the item's free-form Fields map.
func (g *Gallery) Metadata(it *Item) map[string]string {
	m := map[string]string{
		FieldPlatform:    g.Platform,
		FieldGalleryID:   g.ID,
		FieldTitle:       g.Title,
		FieldUploader:    g.Uploader,
		FieldDescription: g.Description,
		FieldID:          it.ID,
		FieldIndex:       strconv.Itoa(it.Index),
		FieldExt:         it.Ext,
	}
	if !it.UploadDate.IsZero() {
		m[FieldUploadDate] = it.UploadDate.Format("20060102")
	}
	if it.Width > 0 {
		m[FieldWidth] = strconv.Itoa(it.Width)
	}
	if it.Height > 0 {
		m[FieldHeight] = strconv.Itoa(it.Height)
	}
	for k, v := range it.Fields {
		m[k] = v
	}
	return m
}

// URLForQuality picks the variant URL matching the quality preference.
// Known values are "best", "worst" and "original"; anything else, or an item
// without variants, falls back to SourceURL.
func (it *Item) URLForQuality(quality string) string {
	if len(it.Variants) == 0 {
		return it.SourceURL
	}
	switch quality {
	case "worst":
		v := it.Variants[0]
		for _, c := range it.Variants[1:] {
			if c.Width*c.Height < v.Width*v.Height {
				v = c
			}
		}
		return v.URL
	case "original":
		for _, c := range it.Variants {
			if c.Original {
				return c.URL
			}
		}
		return it.SourceURL
	case "best":
		v := it.Variants[0]
		for _, c := range it.Variants[1:] {
			if c.Width*c.Height > v.Width*v.Height {
				v = c
			}
		}
		return v.URL
	default:
		return it.SourceURL
	}
}
