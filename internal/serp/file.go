package serp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const searchFileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["find"],
    "additionalProperties": false,
    "properties": {
      "url":      {"type": "string"},
      "with":     {"type": "string"},
      "where":    {"type": "string"},
      "find":     {"type": "string"},
      "timeline": {"type": "integer", "minimum": 0}
    }
  }
}`

var schema = mustSchema(searchFileSchema)

func mustSchema(s string) *gojsonschema.Schema {
	sc, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("serp: invalid search file schema: %v", err))
	}
	return sc
}

// LoadFile reads a batch of searches from a JSON or YAML file. The document
// must be an array of search objects using the wire field names
// (url, with, where, find, timeline).
func LoadFile(path string) ([]SearchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read search file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse search file %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("parse search file %s: %w", path, err)
		}
	}

	return Parse(data)
}

// Parse validates a JSON search document and returns the normalized searches.
func Parse(data []byte) ([]SearchSpec, error) {
	res, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate searches: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, errors.New("invalid searches: " + strings.Join(msgs, "; "))
	}

	var specs []SearchSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("decode searches: %w", err)
	}
	for i := range specs {
		specs[i] = specs[i].normalize()
	}
	return specs, nil
}
