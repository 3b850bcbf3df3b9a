package serp

import "strings"

// Engine names a search engine the dataset can query.
type Engine string

const (
	Google Engine = "Google"
	Bing   Engine = "Bing"
)

const (
	GoogleURL = "https://google.com"
	BingURL   = "https://www.bing.com"

	// DefaultTimeoutMs is the per-search timeline sent when the caller gives none.
	DefaultTimeoutMs = 5000
)

// SearchSpec describes one query sent to the trigger endpoint. The JSON field
// names are the ones the dataset expects.
type SearchSpec struct {
	URL      string `json:"url" yaml:"url"`
	Engine   string `json:"with" yaml:"with"`
	Where    string `json:"where" yaml:"where"`
	Find     string `json:"find" yaml:"find"`
	Timeline int    `json:"timeline" yaml:"timeline"`
}

// EngineURL maps an engine selector to its base URL. Matching is
// case-insensitive and anything that is not Bing resolves to Google.
func EngineURL(engine string) string {
	if strings.EqualFold(strings.TrimSpace(engine), string(Bing)) {
		return BingURL
	}
	return GoogleURL
}

// NewSearch builds a SearchSpec. An empty engine means Google and a
// non-positive timeout means DefaultTimeoutMs. The query term is passed through
// untouched; the provider decides what an empty term means.
func NewSearch(term, engine, site string, timeoutMs int) SearchSpec {
	if engine == "" {
		engine = string(Google)
	}
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}
	return SearchSpec{
		URL:      EngineURL(engine),
		Engine:   engine,
		Where:    site,
		Find:     term,
		Timeline: timeoutMs,
	}
}

// normalize fills the fields a hand-written search may leave out. An explicit
// URL is kept as an override.
func (s SearchSpec) normalize() SearchSpec {
	if s.Engine == "" {
		s.Engine = string(Google)
	}
	if s.URL == "" {
		s.URL = EngineURL(s.Engine)
	}
	if s.Timeline <= 0 {
		s.Timeline = DefaultTimeoutMs
	}
	return s
}

// SampleSearches is the batch run when no search file is given.
func SampleSearches() []SearchSpec {
	return []SearchSpec{
		NewSearch("money", "Google", "edition.cnn.com/business", DefaultTimeoutMs),
		NewSearch("obama", "Bing", "www.bbc.com/business", DefaultTimeoutMs),
		NewSearch("artificial intelligence trends 2025", "Google", "", DefaultTimeoutMs),
	}
}
