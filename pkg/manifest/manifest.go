package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
)

const (
	// JSONFile is the primary manifest file name
	JSONFile = "package.json"
	// YAMLFile is read when no package.json exists
	YAMLFile = "package.yaml"
	// SectionKey is the manifest section that marks a package as a node module
	SectionKey = "node-red"
)

// Manifest is the subset of a package manifest the registry consumes
type Manifest struct {
	Name    string   `json:"name" yaml:"name"`
	Version string   `json:"version" yaml:"version"`
	Red     *Section `json:"node-red,omitempty" yaml:"node-red,omitempty"`
}

// Section is the host-extension section of a manifest
type Section struct {
	Version      string     `json:"version,omitempty" yaml:"version,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Nodes        OrderedMap `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	Plugins      OrderedMap `json:"plugins,omitempty" yaml:"plugins,omitempty"`
}

// Entry maps a unit name to its implementation file
type Entry struct {
	Name string
	File string
}

// OrderedMap is a string map that keeps the declaration order of its keys,
// which is the order units are issued in.
type OrderedMap []Entry

// UnmarshalJSON decodes a JSON object while preserving key order
func (m *OrderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	var out OrderedMap
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected string key, got %v", keyTok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("value for %q: %w", key, err)
		}
		out = append(out, Entry{Name: key, File: value})
	}

	*m = out
	return nil
}

// MarshalJSON encodes the map as a JSON object in declaration order
func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(e.Name)
		v, _ := json.Marshal(e.File)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalYAML decodes a YAML mapping while preserving key order
func (m *OrderedMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected mapping", value.Line)
	}

	out := make(OrderedMap, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var key, file string
		if err := value.Content[i].Decode(&key); err != nil {
			return err
		}
		if err := value.Content[i+1].Decode(&file); err != nil {
			return err
		}
		out = append(out, Entry{Name: key, File: file})
	}

	*m = out
	return nil
}

// IsNodeModule reports whether the manifest declares the extension section
func (m *Manifest) IsNodeModule() bool {
	return m != nil && m.Red != nil
}

// Parse decodes and validates manifest bytes. format is "json" or "yaml".
func Parse(data []byte, format string) (*Manifest, error) {
	var manifest Manifest
	var raw interface{}

	switch format {
	case "json":
		if err := json.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("%w: failed to parse manifest: %v", descriptor.ErrInvalidManifest, err)
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", descriptor.ErrInvalidManifest, err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return nil, fmt.Errorf("%w: failed to parse manifest: %v", descriptor.ErrInvalidManifest, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", descriptor.ErrInvalidManifest, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported manifest format %q", descriptor.ErrInvalidManifest, format)
	}

	// Packages without the extension section are not node modules and are
	// not validated against the schema.
	if !manifest.IsNodeModule() {
		return &manifest, nil
	}

	issues, err := Validate(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", descriptor.ErrInvalidManifest, err)
	}
	if len(issues) > 0 {
		return nil, fmt.Errorf("%w: %s: %s", descriptor.ErrInvalidManifest, issues[0].Path, issues[0].Message)
	}

	return &manifest, nil
}

// LoadFromDir reads the manifest of a package directory, preferring
// package.json over package.yaml.
func LoadFromDir(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, JSONFile))
	if err == nil {
		return Parse(data, "json")
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	data, err = os.ReadFile(filepath.Join(dir, YAMLFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data, "yaml")
}

// Save writes a manifest as package.json into dir
func Save(m *Manifest, dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, JSONFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}
