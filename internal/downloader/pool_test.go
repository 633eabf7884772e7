package downloader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagedl/pkg/errors"
	"imagedl/pkg/media"
	"imagedl/pkg/retry"
)

// mockFetcher serves canned responses per URL and counts calls.
type mockFetcher struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string][]error // consumed front to back before success
	calls     map[string]int
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		responses: make(map[string]string),
		failures:  make(map[string][]error),
		calls:     make(map[string]int),
	}
}

func (m *mockFetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[rawURL]++
	if errs := m.failures[rawURL]; len(errs) > 0 {
		err := errs[0]
		m.failures[rawURL] = errs[1:]
		return nil, 0, err
	}
	body, ok := m.responses[rawURL]
	if !ok {
		return nil, 0, errors.New(errors.KindNotFound, "no such resource")
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func (m *mockFetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := m.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

func (m *mockFetcher) callCount(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[url]
}

func fastBackoff() *retry.KindBackoff {
	b := &retry.ConstantBackoff{Delay: time.Millisecond}
	return &retry.KindBackoff{Network: b, RateLimit: b, Default: b}
}

func testJob(dir, url, name string) Job {
	g := &media.Gallery{Platform: "direct", ID: name}
	g.Items = append(g.Items, media.Item{ID: name, SourceURL: url, Ext: "jpg"})
	g.Finalize()
	return Job{
		URL:      url,
		DestPath: filepath.Join(dir, name+".jpg"),
		Item:     &g.Items[0],
		Gallery:  g,
	}
}

func TestRunDownloadsAll(t *testing.T) {
	dir := t.TempDir()
	f := newMockFetcher()
	f.responses["https://cdn/a.jpg"] = "aaaa"
	f.responses["https://cdn/b.jpg"] = "bbbbbb"

	pool := NewPool(f, Options{Workers: 2, Backoff: fastBackoff()})
	report := pool.Run(context.Background(), []Job{
		testJob(dir, "https://cdn/a.jpg", "a"),
		testJob(dir, "https://cdn/b.jpg", "b"),
	})

	assert.Equal(t, 2, report.Count(StatusDownloaded))
	assert.Equal(t, int64(10), report.Bytes())

	data, err := os.ReadFile(filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "aaaa", string(data))

	// No partial files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".part"), e.Name())
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	f := newMockFetcher()
	f.responses["https://cdn/flaky.jpg"] = "ok"
	f.failures["https://cdn/flaky.jpg"] = []error{
		errors.New(errors.KindNetwork, "reset"),
		errors.New(errors.KindRateLimit, "429"),
	}

	pool := NewPool(f, Options{Workers: 1, MaxAttempts: 5, Backoff: fastBackoff()})
	report := pool.Run(context.Background(), []Job{testJob(dir, "https://cdn/flaky.jpg", "flaky")})

	require.Len(t, report.Outcomes, 1)
	out := report.Outcomes[0]
	assert.Equal(t, StatusDownloaded, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, f.callCount("https://cdn/flaky.jpg"))
}

func TestRunStopsAtAttemptCeiling(t *testing.T) {
	dir := t.TempDir()
	f := newMockFetcher()
	f.failures["https://cdn/dead.jpg"] = []error{
		errors.New(errors.KindNetwork, "down"),
		errors.New(errors.KindNetwork, "down"),
		errors.New(errors.KindNetwork, "down"),
		errors.New(errors.KindNetwork, "down"),
	}

	pool := NewPool(f, Options{Workers: 1, MaxAttempts: 3, Backoff: fastBackoff()})
	report := pool.Run(context.Background(), []Job{testJob(dir, "https://cdn/dead.jpg", "dead")})

	require.Len(t, report.Outcomes, 1)
	out := report.Outcomes[0]
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, errors.KindNetwork, errors.KindOf(out.Err))
	assert.Equal(t, 3, f.callCount("https://cdn/dead.jpg"))
}

func TestRunDoesNotRetryTerminalFailures(t *testing.T) {
	dir := t.TempDir()
	f := newMockFetcher()
	f.failures["https://cdn/gone.jpg"] = []error{
		errors.New(errors.KindNotFound, "404"),
	}

	pool := NewPool(f, Options{Workers: 1, MaxAttempts: 5, Backoff: fastBackoff()})
	report := pool.Run(context.Background(), []Job{testJob(dir, "https://cdn/gone.jpg", "gone")})

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
	assert.Equal(t, 1, report.Outcomes[0].Attempts)
	assert.Equal(t, 1, f.callCount("https://cdn/gone.jpg"))
}

func TestRunSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "have.jpg"), []byte("old"), 0o644))

	f := newMockFetcher()
	f.responses["https://cdn/have.jpg"] = "new"

	pool := NewPool(f, Options{Workers: 1, SkipExisting: true, Backoff: fastBackoff()})
	report := pool.Run(context.Background(), []Job{testJob(dir, "https://cdn/have.jpg", "have")})

	assert.Equal(t, 1, report.Count(StatusSkipped))
	assert.Equal(t, 0, f.callCount("https://cdn/have.jpg"))

	// Existing content untouched.
	data, err := os.ReadFile(filepath.Join(dir, "have.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestRunRedownloadsEmptyExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.jpg"), nil, 0o644))

	f := newMockFetcher()
	f.responses["https://cdn/empty.jpg"] = "fresh"

	pool := NewPool(f, Options{Workers: 1, SkipExisting: true, Backoff: fastBackoff()})
	report := pool.Run(context.Background(), []Job{testJob(dir, "https://cdn/empty.jpg", "empty")})

	assert.Equal(t, 1, report.Count(StatusDownloaded))
	assert.Equal(t, 1, f.callCount("https://cdn/empty.jpg"))

	// The zero-byte leftover is replaced with real content.
	data, err := os.ReadFile(filepath.Join(dir, "empty.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestRunSimulate(t *testing.T) {
	dir := t.TempDir()
	f := newMockFetcher()
	f.responses["https://cdn/a.jpg"] = "aaaa"

	pool := NewPool(f, Options{Workers: 2, Simulate: true, Backoff: fastBackoff()})
	report := pool.Run(context.Background(), []Job{testJob(dir, "https://cdn/a.jpg", "a")})

	assert.Equal(t, 1, report.Count(StatusSimulated))
	assert.Equal(t, 0, f.callCount("https://cdn/a.jpg"))

	_, err := os.Stat(filepath.Join(dir, "a.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	f := newMockFetcher()
	// Every attempt fails retryably so the job sits in backoff when the
	// run is cancelled.
	f.failures["https://cdn/slow.jpg"] = []error{
		errors.New(errors.KindNetwork, "down"),
		errors.New(errors.KindNetwork, "down"),
	}

	slow := &retry.ConstantBackoff{Delay: 10 * time.Second}
	pool := NewPool(f, Options{
		Workers:     1,
		MaxAttempts: 5,
		Backoff:     &retry.KindBackoff{Network: slow, RateLimit: slow, Default: slow},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Report, 1)
	go func() {
		done <- pool.Run(ctx, []Job{testJob(dir, "https://cdn/slow.jpg", "slow")})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case report := <-done:
		require.Len(t, report.Outcomes, 1)
		assert.Equal(t, StatusCancelled, report.Outcomes[0].Status)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestRunEmpty(t *testing.T) {
	pool := NewPool(newMockFetcher(), Options{Workers: 2})
	report := pool.Run(context.Background(), nil)
	assert.Empty(t, report.Outcomes)
}

func TestReportFailureKinds(t *testing.T) {
	r := &Report{Outcomes: []Outcome{
		{Status: StatusFailed, Err: errors.New(errors.KindNetwork, "a")},
		{Status: StatusFailed, Err: errors.New(errors.KindNetwork, "b")},
		{Status: StatusFailed, Err: errors.New(errors.KindNotFound, "c")},
		{Status: StatusDownloaded},
	}}

	kinds := r.FailureKinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, errors.KindNetwork, kinds[0].Kind)
	assert.Equal(t, 2, kinds[0].Count)
	assert.Equal(t, errors.KindNotFound, kinds[1].Kind)
	assert.Equal(t, 1, kinds[1].Count)
}
