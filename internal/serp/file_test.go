package serp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_JSON(t *testing.T) {
	path := writeFile(t, "searches.json", `[
		{"with": "bing", "find": "obama", "where": "www.bbc.com/business"},
		{"url": "https://google.de", "with": "Google", "find": "money", "timeline": 2000}
	]`)

	specs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, BingURL, specs[0].URL)
	assert.Equal(t, DefaultTimeoutMs, specs[0].Timeline)
	assert.Equal(t, "https://google.de", specs[1].URL, "explicit url overrides the engine")
	assert.Equal(t, 2000, specs[1].Timeline)
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "searches.yaml", `
- with: Google
  find: climate change solutions
- with: Bing
  find: AI ethics guidelines
  timeline: 10000
`)

	specs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, GoogleURL, specs[0].URL)
	assert.Equal(t, BingURL, specs[1].URL)
	assert.Equal(t, 10000, specs[1].Timeline)
}

func TestParse_SchemaViolations(t *testing.T) {
	cases := map[string]string{
		"empty array":   `[]`,
		"missing find":  `[{"with": "Google"}]`,
		"unknown field": `[{"find": "x", "engine": "Google"}]`,
		"bad timeline":  `[{"find": "x", "timeline": "soon"}]`,
		"not an array":  `{"find": "x"}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
