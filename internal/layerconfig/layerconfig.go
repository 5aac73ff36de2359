// Package layerconfig reads endpoint and per-layer YAML configuration and
// indexes manually curated layers directly, without a bucket listing.
package layerconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nasa-gibs/oetime/internal/model"
	"github.com/nasa-gibs/oetime/internal/store"
)

// Endpoint is the subset of an endpoint configuration the loader needs.
type Endpoint struct {
	LayerConfigSource string `yaml:"layer_config_source"`
	TimeServiceURI    string `yaml:"time_service_uri,omitempty"`
}

// LoadEndpoint reads an endpoint YAML file. A missing layer_config_source
// is a configuration error.
func LoadEndpoint(path string) (Endpoint, error) {
	var ep Endpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return ep, fmt.Errorf("reading endpoint config: %w", err)
	}
	if err := yaml.Unmarshal(data, &ep); err != nil {
		return ep, fmt.Errorf("%w: endpoint config %s: %v", model.ErrConfig, path, err)
	}
	if ep.LayerConfigSource == "" {
		return ep, fmt.Errorf("%w: %s: must specify 'layer_config_source'", model.ErrConfig, path)
	}
	return ep, nil
}

// LayerConfig is one layer's time declarations.
type LayerConfig struct {
	LayerID    string     `yaml:"layer_id"`
	Projection string     `yaml:"projection"`
	TimeConfig StringList `yaml:"time_config,omitempty"`
	BestConfig Priorities `yaml:"best_config,omitempty"`
	BestLayer  string     `yaml:"best_layer,omitempty"`
	Static     bool       `yaml:"static,omitempty"`

	// Path is the file the config was read from.
	Path string `yaml:"-"`
}

// IsComposite reports whether the layer is resolved from candidates.
func (c LayerConfig) IsComposite() bool { return len(c.BestConfig) > 0 }

// Prefix returns the key prefix for the layer's projection, e.g.
// "epsg4326" for "EPSG:4326".
func (c LayerConfig) Prefix() string {
	return strings.ReplaceAll(strings.ToLower(c.Projection), ":", "")
}

// Key returns the layer key under tag. When tag is empty it is detected
// from the config's path.
func (c LayerConfig) Key(tag string) string {
	if tag == "" {
		tag = DetectTag(c.Path)
	}
	return store.LayerKey(c.Prefix(), tag, c.LayerID)
}

// Validate checks the fields every key depends on.
func (c LayerConfig) Validate() error {
	switch {
	case c.LayerID == "":
		return fmt.Errorf("%w: %s: layer_id is required", model.ErrConfig, c.Path)
	case c.Projection == "":
		return fmt.Errorf("%w: %s: projection is required", model.ErrConfig, c.Path)
	case strings.Contains(c.LayerID, ":"):
		return fmt.Errorf("%w: %s: layer_id %q contains ':'", model.ErrConfig, c.Path, c.LayerID)
	}
	return nil
}

// ─── YAML shapes ──────────────────────────────────────────────────────────────

// StringList accepts a single string or a list of strings.
type StringList []string

func (s *StringList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var v string
		if err := n.Decode(&v); err != nil {
			return err
		}
		*s = StringList{v}
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := n.Decode(&v); err != nil {
			return err
		}
		*s = v
		return nil
	}
	return fmt.Errorf("line %d: time_config must be a string or a list of strings", n.Line)
}

// Priorities is a best_config mapping of candidate name to priority, kept
// in document order.
type Priorities []model.Candidate

func (p *Priorities) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: best_config must map layer names to priorities", n.Line)
	}
	out := make(Priorities, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var prio float64
		if err := n.Content[i+1].Decode(&prio); err != nil {
			return fmt.Errorf("line %d: priority of %q: %w", n.Content[i+1].Line, n.Content[i].Value, err)
		}
		out = append(out, model.Candidate{Layer: n.Content[i].Value, Priority: prio, Ordinal: len(out)})
	}
	*p = out
	return nil
}

// ─── Reading ──────────────────────────────────────────────────────────────────

// ReadLayerConfig parses one layer YAML file.
func ReadLayerConfig(path string) (LayerConfig, error) {
	var c LayerConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %s: %v", model.ErrConfig, path, err)
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	c.Path = path
	return c, c.Validate()
}

// ReadLayerConfigs reads source, a single file or a directory whose *.yaml
// files are read one level deep, in name order.
func ReadLayerConfigs(source string) ([]LayerConfig, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("%w: can't find layer config location: %v", model.ErrConfig, err)
	}
	if !info.IsDir() {
		c, err := ReadLayerConfig(source)
		if err != nil {
			return nil, err
		}
		return []LayerConfig{c}, nil
	}

	entries, err := os.ReadDir(source)
	if err != nil {
		return nil, err
	}
	var out []LayerConfig
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		c, err := ReadLayerConfig(filepath.Join(source, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Tags recognised in config paths.
var pathTags = []string{"all", "best", "nrt", "std"}

// DetectTag returns the classification tag named by a directory of path,
// or "" when there is none. The first recognised tag in pathTags order wins.
func DetectTag(path string) string {
	dirs := strings.Split(filepath.ToSlash(filepath.Dir(path)), "/")
	for _, t := range pathTags {
		for _, d := range dirs {
			if d == t {
				return t
			}
		}
	}
	return ""
}
