package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory with no serpdump env set.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	for _, k := range []string{"SERPDUMP_API_KEY", "BRIGHTDATA_API_KEY", "SERPDUMP_POLL_INTERVAL", "SERPDUMP_CONCURRENCY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "gd_m5zlb2loauntf6oof", cfg.DatasetID)
	assert.Equal(t, "https://api.brightdata.com/datasets/v3", cfg.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Poll.MaxWait)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 5, cfg.HTTP.MaxRedirects)
	assert.Equal(t, "go", cfg.HTTP.TLSProfile)
	assert.Equal(t, "google_bing_search_results", cfg.Output.Prefix)
	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, "console", cfg.Log.Format)

	assert.ErrorIs(t, cfg.Validate(), ErrMissingAPIKey)
}

func TestLoad_EnvAndFallbackKey(t *testing.T) {
	isolate(t)
	t.Setenv("BRIGHTDATA_API_KEY", "fallback")
	t.Setenv("SERPDUMP_POLL_INTERVAL", "2s")
	t.Setenv("SERPDUMP_CONCURRENCY", "4")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 4, cfg.Concurrency)
	require.NoError(t, cfg.Validate())

	t.Setenv("SERPDUMP_API_KEY", "primary")
	cfg, err = Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.APIKey)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BRIGHTDATA_API_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("BRIGHTDATA_API_KEY") })

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.APIKey)
}

func TestLoad_FileAndFlags(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	content := `
api_key: file-key
poll:
  interval: 3s
  max_wait: 1m
archive:
  backend: sqlite
  dsn: runs.db
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("max-wait", 0, "")
	flags.String("log-level", "info", "")
	require.NoError(t, flags.Parse([]string{"--max-wait=90s"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 90*time.Second, cfg.Poll.MaxWait, "changed flag beats file")
	assert.Equal(t, "debug", cfg.Log.Level, "unchanged flag does not beat file")
	assert.Equal(t, "sqlite", cfg.Archive.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoad_SearchPath(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "serpdump.yaml"), []byte("dataset_id: gd_other\n"), 0o600))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "gd_other", cfg.DatasetID)
}

func TestLoad_MissingFile(t *testing.T) {
	isolate(t)
	_, err := Load("does-not-exist.yaml", nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			APIKey:      "k",
			DatasetID:   "gd",
			Poll:        PollConfig{Interval: time.Second, MaxWait: time.Minute},
			HTTP:        HTTPConfig{TLSProfile: "chrome"},
			Concurrency: 1,
		}
	}
	require.NoError(t, valid().Validate())

	for _, placeholder := range []string{"", "YOUR_API_KEY_HERE", "Bright_Data_API_KEY"} {
		c := valid()
		c.APIKey = placeholder
		assert.ErrorIs(t, c.Validate(), ErrMissingAPIKey, "placeholder %q", placeholder)
	}

	cases := map[string]func(*Config){
		"interval":    func(c *Config) { c.Poll.Interval = 0 },
		"max_wait":    func(c *Config) { c.Poll.MaxWait = -time.Second },
		"jitter":      func(c *Config) { c.Poll.Jitter = 1.5 },
		"concurrency": func(c *Config) { c.Concurrency = 0 },
		"tls":         func(c *Config) { c.HTTP.TLSProfile = "netscape" },
		"backend":     func(c *Config) { c.Archive = ArchiveConfig{Backend: "mongo", DSN: "x"} },
		"dsn":         func(c *Config) { c.Archive = ArchiveConfig{Backend: "csv"} },
		"dataset":     func(c *Config) { c.DatasetID = "" },
	}
	for name, mutate := range cases {
		c := valid()
		mutate(c)
		assert.Error(t, c.Validate(), name)
	}
}
