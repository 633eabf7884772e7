package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFinalizeAssignsDenseIndices(t *testing.T) {
	g := &Gallery{
		Items: []Item{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}
	g.Finalize()

	for i, it := range g.Items {
		assert.Equal(t, i+1, it.Index)
	}
}

func TestMetadataMergesGalleryAndItemFields(t *testing.T) {
	g := &Gallery{
		Platform: "pinterest",
		ID:       "12345",
		Title:    "Sunset",
		Uploader: "someone",
	}
	it := &Item{
		ID:         "12345_1",
		Index:      1,
		Ext:        "jpg",
		Width:      800,
		Height:     600,
		UploadDate: time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC),
		Fields:     map[string]string{"board": "travel"},
	}

	m := g.Metadata(it)

	assert.Equal(t, "pinterest", m[FieldPlatform])
	assert.Equal(t, "12345", m[FieldGalleryID])
	assert.Equal(t, "12345_1", m[FieldID])
	assert.Equal(t, "1", m[FieldIndex])
	assert.Equal(t, "jpg", m[FieldExt])
	assert.Equal(t, "20240517", m[FieldUploadDate])
	assert.Equal(t, "800", m[FieldWidth])
	assert.Equal(t, "travel", m["board"])
}

func TestMetadataOmitsUnknownDate(t *testing.T) {
	g := &Gallery{Platform: "direct"}
	it := &Item{ID: "x", Index: 1, Ext: "png"}

	m := g.Metadata(it)

	_, ok := m[FieldUploadDate]
	assert.False(t, ok)
}

func TestURLForQuality(t *testing.T) {
	it := &Item{
		SourceURL: "https://example.com/fallback.jpg",
		Variants: []Variant{
			{URL: "https://example.com/small.jpg", Width: 100, Height: 100},
			{URL: "https://example.com/orig.jpg", Width: 400, Height: 300, Original: true},
			{URL: "https://example.com/big.jpg", Width: 1600, Height: 1200},
		},
	}

	assert.Equal(t, "https://example.com/big.jpg", it.URLForQuality("best"))
	assert.Equal(t, "https://example.com/small.jpg", it.URLForQuality("worst"))
	assert.Equal(t, "https://example.com/orig.jpg", it.URLForQuality("original"))
	assert.Equal(t, "https://example.com/fallback.jpg", it.URLForQuality(""))

	bare := &Item{SourceURL: "https://example.com/only.jpg"}
	assert.Equal(t, "https://example.com/only.jpg", bare.URLForQuality("best"))
}
