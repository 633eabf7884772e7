package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 4, cfg.Download.Concurrency)
	assert.Equal(t, 10, cfg.Download.MaxAttempts)
	assert.Equal(t, "best", cfg.Download.Quality)
	assert.True(t, cfg.Download.SkipExisting)
	assert.Equal(t, "%(title)s [%(id)s].%(ext)s", cfg.Output.Template)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
output:
  directory: /data/images
  template: "%(uploader)s/%(id)s.%(ext)s"
download:
  concurrency: 8
  attempt_timeout: 90s
  limit_rate: 500k
postprocess:
  convert_to: png
  write_info_json: true
logging:
  level: debug
`), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "/data/images", cfg.Output.Directory)
	assert.Equal(t, 8, cfg.Download.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Download.AttemptTimeout)
	assert.Equal(t, "500k", cfg.Download.LimitRate)
	assert.Equal(t, "png", cfg.Postprocess.ConvertTo)
	assert.True(t, cfg.Postprocess.WriteInfoJSON)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched fields keep their defaults.
	assert.Equal(t, 10, cfg.Download.MaxAttempts)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileMissingExplicitPath(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.LoadFromFile("/nonexistent/config.yaml"))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IMAGEDL_OUTPUT_DIR", "/env/out")
	t.Setenv("IMAGEDL_CONCURRENCY", "5")
	t.Setenv("IMAGEDL_LOG_LEVEL", "warn")
	t.Setenv("IMAGEDL_LIMIT_RATE", "1M")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/env/out", cfg.Output.Directory)
	assert.Equal(t, 5, cfg.Download.Concurrency)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "1M", cfg.Download.LimitRate)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Download.Concurrency = 0 },
		func(c *Config) { c.Download.Concurrency = 100 },
		func(c *Config) { c.Download.MaxAttempts = 0 },
		func(c *Config) { c.Output.Directory = "" },
		func(c *Config) { c.Output.Template = "" },
		func(c *Config) { c.Download.Quality = "medium" },
		func(c *Config) { c.Postprocess.ConvertTo = "tiff" },
		func(c *Config) { c.Logging.Level = "verbose" },
	}
	for i, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Output.Directory = "/tmp/photos"
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/tmp/photos", loaded.Output.Directory)
}

func TestLoadArgsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte(`
# persistent defaults
--output "%(uploader)s/%(title)s.%(ext)s"
--concurrency 4
--restrict-filenames
-o 'single quoted value'
`), 0o644))

	args, err := LoadArgsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"--output", "%(uploader)s/%(title)s.%(ext)s",
		"--concurrency", "4",
		"--restrict-filenames",
		"-o", "single quoted value",
	}, args)
}

func TestLoadArgsFileMissing(t *testing.T) {
	args, err := LoadArgsFile("/nonexistent/args")
	require.NoError(t, err)
	assert.Nil(t, args)
}

func TestLoadArgsFileUnterminatedQuote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	require.NoError(t, os.WriteFile(path, []byte(`--output "oops`), 0o644))

	_, err := LoadArgsFile(path)
	require.Error(t, err)
}
