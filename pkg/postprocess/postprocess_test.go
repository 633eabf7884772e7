package postprocess

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedl/pkg/codec"
	"imagedl/pkg/errors"
	"imagedl/pkg/media"
)

func testResult(t *testing.T, dir string) *Result {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	path := filepath.Join(dir, "photo.jpg")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, nil))
	require.NoError(t, f.Close())

	g := &media.Gallery{
		Platform:    "instagram",
		ID:          "Cxyz",
		Title:       "Sunset",
		Uploader:    "alice",
		Description: "A quiet evening",
		Items:       []media.Item{{ID: "i1", Ext: "jpg"}},
	}
	g.Finalize()
	return &Result{Path: path, Item: &g.Items[0], Gallery: g}
}

func TestInfoJSONStep(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)

	require.NoError(t, (&InfoJSONStep{}).Run(context.Background(), r))

	data, err := os.ReadFile(filepath.Join(dir, "photo.info.json"))
	require.NoError(t, err)

	var meta map[string]string
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, "i1", meta["id"])
	assert.Equal(t, "alice", meta["uploader"])
	assert.Equal(t, "Cxyz", meta["gallery_id"])
	assert.Equal(t, "1", meta["index"])
}

func TestDescriptionStep(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)

	require.NoError(t, (&DescriptionStep{}).Run(context.Background(), r))

	data, err := os.ReadFile(filepath.Join(dir, "photo.description"))
	require.NoError(t, err)
	assert.Equal(t, "A quiet evening", string(data))
}

func TestDescriptionStepSkipsEmpty(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)
	r.Gallery.Description = ""

	require.NoError(t, (&DescriptionStep{}).Run(context.Background(), r))

	_, err := os.Stat(filepath.Join(dir, "photo.description"))
	assert.True(t, os.IsNotExist(err))
}

func TestConvertStepUpdatesResult(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)

	step := &ConvertStep{Codec: codec.New(), TargetExt: "png"}
	require.NoError(t, step.Run(context.Background(), r))

	assert.Equal(t, filepath.Join(dir, "photo.png"), r.Path)
	assert.Equal(t, "png", r.Item.Ext)
	_, err := os.Stat(r.Path)
	require.NoError(t, err)
}

func TestEmbedStep(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)

	step := &EmbedStep{Codec: codec.New()}
	require.NoError(t, step.Run(context.Background(), r))

	meta, err := codec.ExtractComment(r.Path)
	require.NoError(t, err)
	assert.Equal(t, "i1", meta["id"])
	assert.Equal(t, "Sunset", meta["title"])
}

func TestPipelineRunsInOrder(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)

	p := NewPipeline(nil,
		&ConvertStep{Codec: codec.New(), TargetExt: "png"},
		&InfoJSONStep{},
		&DescriptionStep{},
	)
	require.NoError(t, p.Run(context.Background(), r))

	// Sidecars are named after the converted file.
	_, err := os.Stat(filepath.Join(dir, "photo.info.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "photo.description"))
	require.NoError(t, err)
}

type failingStep struct{}

func (failingStep) Name() string { return "failing" }

func (failingStep) Run(ctx context.Context, r *Result) error {
	return errors.New(errors.KindPostProcess, "boom")
}

func TestPipelineStopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)

	p := NewPipeline(nil, failingStep{}, &InfoJSONStep{})
	err := p.Run(context.Background(), r)
	require.Error(t, err)
	assert.Equal(t, errors.KindPostProcess, errors.KindOf(err))

	// The step after the failure never ran.
	_, statErr := os.Stat(filepath.Join(dir, "photo.info.json"))
	assert.True(t, os.IsNotExist(statErr))

	// The downloaded file survives a pipeline failure.
	_, statErr = os.Stat(r.Path)
	require.NoError(t, statErr)
}

func TestPipelineCancelled(t *testing.T) {
	dir := t.TempDir()
	r := testResult(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(nil, &InfoJSONStep{})
	err := p.Run(ctx, r)
	require.Error(t, err)
	assert.Equal(t, errors.KindCancelled, errors.KindOf(err))
}
