// Package postprocess runs the per-item pipeline that follows a successful
// download: format conversion, metadata embedding and sidecar files.
package postprocess

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"imagedl/pkg/codec"
	"imagedl/pkg/errors"
	"imagedl/pkg/logger"
	"imagedl/pkg/media"
)

// Result is a downloaded item handed to the pipeline. Steps may change
// Path when they replace the file.
type Result struct {
	Path    string
	Item    *media.Item
	Gallery *media.Gallery
}

// Step is one stage of the pipeline.
type Step interface {
	Name() string
	Run(ctx context.Context, r *Result) error
}

// Pipeline applies steps in order. The first failing step stops the
// pipeline for that item; the downloaded file is kept either way.
type Pipeline struct {
	steps []Step
	log   logger.Logger
}

// NewPipeline builds a pipeline. A nil logger falls back to the global one.
func NewPipeline(log logger.Logger, steps ...Step) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{steps: steps, log: log}
}

// Empty reports whether the pipeline has no steps.
func (p *Pipeline) Empty() bool { return len(p.steps) == 0 }

// Run executes the pipeline on one downloaded item.
func (p *Pipeline) Run(ctx context.Context, r *Result) error {
	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.KindCancelled, err, "post-processing cancelled")
		}
		if err := s.Run(ctx, r); err != nil {
			return errors.Wrap(errors.KindPostProcess, err, s.Name()+" step failed")
		}
		p.log.DebugWithFields("post-processing step done", map[string]interface{}{
			"step": s.Name(),
			"path": r.Path,
		})
	}
	return nil
}

// ConvertStep re-encodes the file into the target format.
type ConvertStep struct {
	Codec     codec.Codec
	TargetExt string
}

func (s *ConvertStep) Name() string { return "convert" }

func (s *ConvertStep) Run(ctx context.Context, r *Result) error {
	newPath, err := s.Codec.Convert(r.Path, s.TargetExt)
	if err != nil {
		return err
	}
	r.Path = newPath
	r.Item.Ext = strings.TrimPrefix(strings.ToLower(s.TargetExt), ".")
	return nil
}

// EmbedStep writes item metadata into the image file itself.
type EmbedStep struct {
	Codec codec.Codec
}

func (s *EmbedStep) Name() string { return "embed-metadata" }

func (s *EmbedStep) Run(ctx context.Context, r *Result) error {
	return s.Codec.Embed(r.Path, r.Gallery.Metadata(r.Item))
}

// InfoJSONStep writes a <path>.info.json sidecar with the merged metadata.
type InfoJSONStep struct{}

func (s *InfoJSONStep) Name() string { return "info-json" }

func (s *InfoJSONStep) Run(ctx context.Context, r *Result) error {
	data, err := json.MarshalIndent(r.Gallery.Metadata(r.Item), "", "  ")
	if err != nil {
		return err
	}
	return writeSidecar(sidecarPath(r.Path)+".info.json", append(data, '\n'))
}

// DescriptionStep writes a <path>.description sidecar. Items without a
// description produce no file.
type DescriptionStep struct{}

func (s *DescriptionStep) Name() string { return "description" }

func (s *DescriptionStep) Run(ctx context.Context, r *Result) error {
	desc := r.Gallery.Description
	if desc == "" {
		return nil
	}
	return writeSidecar(sidecarPath(r.Path)+".description", []byte(desc))
}

// sidecarPath strips the media extension so photo.jpg gets photo.info.json.
func sidecarPath(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexByte(path, '/') {
		return path[:i]
	}
	return path
}

func writeSidecar(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.KindFilesystem, err, "writing sidecar")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(errors.KindFilesystem, err, "renaming sidecar")
	}
	return nil
}
