// Package downloader runs the concurrent download stage: a fixed worker
// pool pulling jobs from a queue, with failed attempts requeued after a
// backoff delay until they succeed or exhaust their attempt budget.
package downloader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"imagedl/pkg/errors"
	"imagedl/pkg/logger"
	"imagedl/pkg/ratelimit"
	"imagedl/pkg/retry"
	"imagedl/pkg/transport"
)

// Options configure a worker pool.
type Options struct {
	// Workers is the number of concurrent download workers.
	Workers int
	// MaxAttempts bounds the attempts per job, including the first.
	MaxAttempts int
	// AttemptTimeout bounds a single attempt. Zero means no limit.
	AttemptTimeout time.Duration
	// Limiter throttles aggregate download throughput. Nil means unlimited.
	Limiter *ratelimit.ByteLimiter
	// Backoff selects the delay between attempts by error kind.
	Backoff *retry.KindBackoff
	// SkipExisting marks jobs whose destination already exists as skipped.
	SkipExisting bool
	// Simulate lists jobs without touching the network or the filesystem.
	Simulate bool
	// Logger for pool events.
	Logger logger.Logger
}

// Pool is a fixed-size download worker pool.
type Pool struct {
	opts    Options
	fetcher transport.Fetcher
	log     logger.Logger

	mu       sync.Mutex
	outcomes []Outcome
}

// jobState tracks one job through its attempts.
type jobState struct {
	job      Job
	attempts int
}

// NewPool creates a pool downloading through the given fetcher.
func NewPool(fetcher transport.Fetcher, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.NewKindBackoff()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{opts: opts, fetcher: fetcher, log: log}
}

// Run downloads all jobs and blocks until every job reaches a terminal
// state or the context is cancelled. Cancellation marks unfinished jobs
// cancelled and removes their partial files.
func (p *Pool) Run(ctx context.Context, jobs []Job) *Report {
	start := time.Now()
	p.mu.Lock()
	p.outcomes = make([]Outcome, 0, len(jobs))
	p.mu.Unlock()

	if len(jobs) == 0 {
		return &Report{Duration: time.Since(start)}
	}

	p.log.InfoWithFields("starting download pool", map[string]interface{}{
		"workers": p.opts.Workers,
		"jobs":    len(jobs),
	})

	// The queue holds every live job; a job is reinserted only after a
	// worker removed it, so capacity len(jobs) never blocks a requeue.
	queue := make(chan *jobState, len(jobs))
	var pending sync.WaitGroup
	pending.Add(len(jobs))
	for i := range jobs {
		queue <- &jobState{job: jobs[i]}
	}

	// Close the queue once every job is terminal so workers drain out.
	go func() {
		pending.Wait()
		close(queue)
	}()

	var workers sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			p.worker(ctx, id, queue, &pending)
		}(i)
	}
	workers.Wait()

	report := &Report{Duration: time.Since(start)}
	p.mu.Lock()
	report.Outcomes = p.outcomes
	p.mu.Unlock()
	return report
}

func (p *Pool) worker(ctx context.Context, id int, queue chan *jobState, pending *sync.WaitGroup) {
	for js := range queue {
		if ctx.Err() != nil {
			p.finish(pending, js, Outcome{
				Job:      js.job,
				Status:   StatusCancelled,
				Err:      errors.Wrap(errors.KindCancelled, ctx.Err(), "run cancelled"),
				Attempts: js.attempts,
			})
			continue
		}

		js.attempts++
		start := time.Now()
		outcome, retryable := p.attempt(ctx, js)
		outcome.Duration = time.Since(start)
		outcome.Attempts = js.attempts

		if retryable && js.attempts < p.opts.MaxAttempts {
			delay := p.opts.Backoff.ForKind(errors.KindOf(outcome.Err)).NextDelay(js.attempts)
			p.log.WarnWithFields("attempt failed, requeueing", map[string]interface{}{
				"worker_id": id,
				"url":       js.job.URL,
				"attempt":   js.attempts,
				"error":     outcome.Err.Error(),
				"delay_ms":  delay.Milliseconds(),
			})
			p.requeue(ctx, queue, pending, js, delay)
			continue
		}

		p.finish(pending, js, outcome)
	}
}

// requeue reinserts the job after the backoff delay. Cancellation during
// the wait finalizes the job as cancelled.
func (p *Pool) requeue(ctx context.Context, queue chan *jobState, pending *sync.WaitGroup, js *jobState, delay time.Duration) {
	go func() {
		select {
		case <-time.After(delay):
			queue <- js
		case <-ctx.Done():
			p.finish(pending, js, Outcome{
				Job:      js.job,
				Status:   StatusCancelled,
				Err:      errors.Wrap(errors.KindCancelled, ctx.Err(), "run cancelled"),
				Attempts: js.attempts,
			})
		}
	}()
}

func (p *Pool) finish(pending *sync.WaitGroup, js *jobState, outcome Outcome) {
	p.mu.Lock()
	p.outcomes = append(p.outcomes, outcome)
	p.mu.Unlock()
	pending.Done()

	switch outcome.Status {
	case StatusDownloaded:
		p.log.InfoWithFields("downloaded", map[string]interface{}{
			"path":     outcome.Job.DestPath,
			"bytes":    outcome.Bytes,
			"attempts": outcome.Attempts,
		})
	case StatusFailed:
		p.log.ErrorWithFields("download failed", map[string]interface{}{
			"url":      outcome.Job.URL,
			"error":    outcome.Err.Error(),
			"attempts": outcome.Attempts,
		})
	}
}

// attempt performs one download attempt. The second return value reports
// whether a failure may be retried.
func (p *Pool) attempt(ctx context.Context, js *jobState) (Outcome, bool) {
	job := js.job
	out := Outcome{Job: job}

	if p.opts.Simulate {
		out.Status = StatusSimulated
		return out, false
	}

	if p.opts.SkipExisting {
		// Zero-byte leftovers from an interrupted run are re-downloaded.
		if info, err := os.Stat(job.DestPath); err == nil && info.Size() > 0 {
			out.Status = StatusSkipped
			return out, false
		}
	}

	attemptCtx := ctx
	if p.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, p.opts.AttemptTimeout)
		defer cancel()
	}

	n, err := p.download(attemptCtx, job)
	if err != nil {
		if ctx.Err() != nil {
			out.Status = StatusCancelled
			out.Err = errors.Wrap(errors.KindCancelled, ctx.Err(), "run cancelled")
			return out, false
		}
		// A per-attempt timeout is a transient network condition.
		if attemptCtx.Err() == context.DeadlineExceeded {
			err = errors.Wrap(errors.KindNetwork, err, "attempt timed out")
		}
		out.Status = StatusFailed
		out.Err = err
		return out, errors.IsRetryableErr(err)
	}

	out.Status = StatusDownloaded
	out.Bytes = n
	return out, false
}

// download streams the URL into DestPath via a temporary .part file that
// is renamed only after the full body arrived.
func (p *Pool) download(ctx context.Context, job Job) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(job.DestPath), 0o755); err != nil {
		return 0, errors.Wrap(errors.KindFilesystem, err, "creating output directory")
	}

	body, _, err := p.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	var src io.Reader = body
	if p.opts.Limiter != nil {
		src = p.opts.Limiter.Reader(ctx, body)
	}

	partPath := job.DestPath + ".part"
	f, err := os.Create(partPath)
	if err != nil {
		return 0, errors.Wrap(errors.KindFilesystem, err, "creating partial file")
	}

	n, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		os.Remove(partPath)
		if ctx.Err() != nil {
			return 0, errors.Wrap(errors.KindCancelled, ctx.Err(), "download interrupted")
		}
		return 0, errors.Wrap(errors.KindNetwork, err, "reading download stream")
	}
	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return 0, errors.Wrap(errors.KindFilesystem, err, "closing partial file")
	}
	if err := os.Rename(partPath, job.DestPath); err != nil {
		os.Remove(partPath)
		return 0, errors.Wrap(errors.KindFilesystem, err, "renaming partial file")
	}
	return n, nil
}
