// Package engine wires the stages of a run together: URL resolution,
// extraction, selection, path rendering, the download pool and the
// post-processing pipeline.
package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"imagedl/internal/downloader"
	"imagedl/pkg/errors"
	"imagedl/pkg/extractor"
	"imagedl/pkg/logger"
	"imagedl/pkg/media"
	"imagedl/pkg/postprocess"
	"imagedl/pkg/retry"
	"imagedl/pkg/selection"
	"imagedl/pkg/template"
	"imagedl/pkg/transport"
)

// extractionAttempts bounds retries of a transiently failing extraction.
const extractionAttempts = 3

// Options assemble an Engine from already validated components.
type Options struct {
	Registry *extractor.Registry
	Fetcher  transport.Fetcher
	Template *template.Template
	Filter   *selection.Filter
	Pipeline *postprocess.Pipeline
	Pool     downloader.Options

	// OutputDir is the directory rendered paths are placed under.
	OutputDir string
	// Quality picks the variant to download (best, worst, original).
	Quality string
	// Auth is handed to extractors that support logged-in sessions.
	Auth *extractor.AuthContext
	// SkipDownload writes sidecars through the pipeline without fetching
	// any media.
	SkipDownload bool

	Logger logger.Logger
}

// Engine executes whole runs.
type Engine struct {
	opts Options
	log  logger.Logger
}

// URLError records that one input URL produced no jobs.
type URLError struct {
	URL string
	Err error
}

// ItemError records a post-processing failure for one downloaded item.
type ItemError struct {
	Path string
	Err  error
}

// Report is the aggregate result of a run.
type Report struct {
	RunID      string
	URLErrors  []URLError
	Download   *downloader.Report
	PostErrors []ItemError
	Duration   time.Duration
}

// ExitCode maps the report onto the process exit code: 0 for full
// success, 2 when nothing was attempted because every URL failed input
// validation, 1 for any other failure.
func (r *Report) ExitCode() int {
	failed := len(r.PostErrors)
	if r.Download != nil {
		failed += r.Download.Count(downloader.StatusFailed) +
			r.Download.Count(downloader.StatusCancelled)
	}
	if failed == 0 && len(r.URLErrors) == 0 {
		return 0
	}

	attempted := r.Download != nil && len(r.Download.Outcomes) > 0
	if !attempted && len(r.URLErrors) > 0 && r.allURLErrorsUsage() {
		return 2
	}
	return 1
}

func (r *Report) allURLErrorsUsage() bool {
	for _, ue := range r.URLErrors {
		switch errors.KindOf(ue.Err) {
		case errors.KindUnsupportedURL, errors.KindValidation:
		default:
			return false
		}
	}
	return true
}

// New builds an Engine.
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{opts: opts, log: log}
}

// Run processes the input URLs end to end and never returns an error for
// per-URL failures; those are carried in the report.
func (e *Engine) Run(ctx context.Context, urls []string) *Report {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	log := e.log.WithField("run_id", report.RunID)

	var jobs []downloader.Job
	for _, rawURL := range urls {
		urlJobs, err := e.listJobs(ctx, rawURL)
		if err != nil {
			log.WithError(err).WithField("url", rawURL).Error("skipping URL")
			report.URLErrors = append(report.URLErrors, URLError{URL: rawURL, Err: err})
			continue
		}
		jobs = append(jobs, urlJobs...)
	}

	if e.opts.SkipDownload {
		report.PostErrors = e.runPipelineOnly(ctx, jobs)
		report.Duration = time.Since(start)
		return report
	}

	pool := downloader.NewPool(e.opts.Fetcher, e.withLogger(log))
	report.Download = pool.Run(ctx, jobs)

	for _, out := range report.Download.Outcomes {
		if out.Status != downloader.StatusDownloaded {
			continue
		}
		if err := e.postprocessOne(ctx, out); err != nil {
			log.WithError(err).WithField("path", out.Job.DestPath).Error("post-processing failed")
			report.PostErrors = append(report.PostErrors, ItemError{Path: out.Job.DestPath, Err: err})
		}
	}

	report.Duration = time.Since(start)
	return report
}

func (e *Engine) withLogger(log logger.Logger) downloader.Options {
	opts := e.opts.Pool
	if opts.Logger == nil {
		opts.Logger = log
	}
	return opts
}

// listJobs resolves one input URL into download jobs: extractor lookup,
// extraction with bounded retry, filtering, and path rendering.
func (e *Engine) listJobs(ctx context.Context, rawURL string) ([]downloader.Job, error) {
	ext, err := e.opts.Registry.Resolve(rawURL)
	if err != nil {
		return nil, err
	}

	g, err := e.extract(ctx, ext, rawURL)
	if err != nil {
		return nil, err
	}

	items := g.Items
	if e.opts.Filter != nil {
		items = e.opts.Filter.Apply(g)
	}
	if len(items) == 0 {
		e.log.WithField("url", rawURL).Warn("selection matched no items")
		return nil, nil
	}

	jobs := make([]downloader.Job, 0, len(items))
	for i := range items {
		it := &items[i]
		name := e.opts.Template.Render(g.Metadata(it))
		jobs = append(jobs, downloader.Job{
			URL:      it.URLForQuality(e.opts.Quality),
			DestPath: filepath.Join(e.opts.OutputDir, name),
			Item:     it,
			Gallery:  g,
		})
	}
	return jobs, nil
}

// extract runs the extractor with a bounded retry on transient failures.
func (e *Engine) extract(ctx context.Context, ext extractor.Extractor, rawURL string) (*media.Gallery, error) {
	var g *media.Gallery
	err := retry.Do(ctx, func() error {
		var err error
		g, err = ext.Extract(ctx, rawURL, e.opts.Auth)
		return err
	}, &retry.Config{
		MaxAttempts: extractionAttempts,
		Backoff:     retry.DefaultExponentialBackoff(),
		Logger:      e.log.WithField("url", rawURL),
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// runPipelineOnly drives the pipeline over the rendered paths without any
// downloads, for metadata-only runs.
func (e *Engine) runPipelineOnly(ctx context.Context, jobs []downloader.Job) []ItemError {
	if e.opts.Pipeline == nil || e.opts.Pipeline.Empty() {
		return nil
	}
	var errs []ItemError
	for i := range jobs {
		r := &postprocess.Result{Path: jobs[i].DestPath, Item: jobs[i].Item, Gallery: jobs[i].Gallery}
		if err := e.opts.Pipeline.Run(ctx, r); err != nil {
			errs = append(errs, ItemError{Path: jobs[i].DestPath, Err: err})
		}
	}
	return errs
}

func (e *Engine) postprocessOne(ctx context.Context, out downloader.Outcome) error {
	if e.opts.Pipeline == nil || e.opts.Pipeline.Empty() {
		return nil
	}
	r := &postprocess.Result{Path: out.Job.DestPath, Item: out.Job.Item, Gallery: out.Job.Gallery}
	return e.opts.Pipeline.Run(ctx, r)
}
