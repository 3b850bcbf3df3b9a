// Package output writes result payloads to indented JSON files.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/FranksOps/serpdump/internal/dataset"
)

const defaultPrefix = "search_results"

// Writer saves values under Dir. It never returns write failures; they are
// logged and the intended path is still reported.
type Writer struct {
	Dir    string
	Now    func() time.Time
	Logger *zap.Logger
}

// TimestampedName returns "<prefix>_<ts>.json" where ts is the UTC time with
// millisecond precision and ':' and '.' replaced by '-'.
func TimestampedName(prefix string, t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s_%s.json", prefix, ts)
}

// Save writes v as two-space indented JSON to filename, or to a timestamped
// search_results file when filename is empty. Existing files are overwritten.
func (w *Writer) Save(v any, filename string) string {
	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if filename == "" {
		now := time.Now
		if w.Now != nil {
			now = w.Now
		}
		filename = TimestampedName(defaultPrefix, now())
	}
	path := filename
	if w.Dir != "" && !filepath.IsAbs(filename) {
		path = filepath.Join(w.Dir, filename)
	}

	if err := writeJSON(path, v); err != nil {
		logger.Error("error saving results", zap.Error(dataset.WriteFailed(path, err)))
		return path
	}

	logger.Info("results saved", zap.String("path", path))
	return path
}

func writeJSON(path string, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func encode(v any) ([]byte, error) {
	// Raw payloads arrive compact from the API; re-indent them as-is.
	if raw, ok := v.(json.RawMessage); ok {
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return nil, err
		}
		buf.WriteByte('\n')
		return buf.Bytes(), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
