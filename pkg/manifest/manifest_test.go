package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
)

const fooManifest = `{
  "name": "node-red-contrib-foo",
  "version": "1.2.0",
  "node-red": {
    "version": ">=3.0.0",
    "dependencies": ["node-red-contrib-bar"],
    "nodes": {"zeta": "zeta.lua", "alpha": "alpha.lua", "mid": "lib/mid.node"},
    "plugins": {"sidebar": "sidebar.lua"}
  }
}`

func TestParse_JSONPreservesUnitOrder(t *testing.T) {
	m, err := Parse([]byte(fooManifest), "json")
	require.NoError(t, err)

	assert.Equal(t, "node-red-contrib-foo", m.Name)
	assert.Equal(t, "1.2.0", m.Version)
	require.True(t, m.IsNodeModule())
	assert.Equal(t, ">=3.0.0", m.Red.Version)
	assert.Equal(t, []string{"node-red-contrib-bar"}, m.Red.Dependencies)
	assert.Equal(t, OrderedMap{
		{Name: "zeta", File: "zeta.lua"},
		{Name: "alpha", File: "alpha.lua"},
		{Name: "mid", File: "lib/mid.node"},
	}, m.Red.Nodes)
	assert.Equal(t, OrderedMap{{Name: "sidebar", File: "sidebar.lua"}}, m.Red.Plugins)
}

func TestParse_YAML(t *testing.T) {
	data := `
name: "@acme/widgets"
version: 0.1.0
node-red:
  nodes:
    second: second.lua
    first: first.lua
`
	m, err := Parse([]byte(data), "yaml")
	require.NoError(t, err)

	assert.Equal(t, "@acme/widgets", m.Name)
	assert.Equal(t, OrderedMap{
		{Name: "second", File: "second.lua"},
		{Name: "first", File: "first.lua"},
	}, m.Red.Nodes)
}

func TestParse_WithoutSectionIsNotANodeModule(t *testing.T) {
	m, err := Parse([]byte(`{"name": "lodash", "version": "4.17.21"}`), "json")
	require.NoError(t, err)
	assert.False(t, m.IsNodeModule())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"malformed json", `{"name": `, "json"},
		{"unit file not a string", `{"name": "x", "node-red": {"nodes": {"a": 1}}}`, "json"},
		{"bad module name", `{"name": "Bad Name", "node-red": {}}`, "json"},
		{"dependencies not a list", `{"name": "x", "node-red": {"dependencies": "y"}}`, "json"},
		{"unknown format", `name: x`, "toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), tt.format)
			require.Error(t, err)
			assert.True(t, errors.Is(err, descriptor.ErrInvalidManifest))
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromDir(dir)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, os.WriteFile(filepath.Join(dir, YAMLFile), []byte("name: from-yaml\nnode-red: {}\n"), 0644))
	m, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", m.Name)

	require.NoError(t, os.WriteFile(filepath.Join(dir, JSONFile), []byte(fooManifest), 0644))
	m, err = LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "node-red-contrib-foo", m.Name)
}

func TestSave_RoundTripKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{
		Name:    "roundtrip",
		Version: "1.0.0",
		Red: &Section{
			Nodes: OrderedMap{{Name: "b", File: "b.lua"}, {Name: "a", File: "a.lua"}},
		},
	}

	require.NoError(t, Save(m, dir))
	loaded, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Red.Nodes, loaded.Red.Nodes)
}

func TestCheckHostVersion(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		host       string
		wantErr    bool
	}{
		{"empty constraint", "", "1.0.0", false},
		{"satisfied", ">=3.0.0", "3.1.2", false},
		{"v prefix", "^3.0.0", "v3.4.0", false},
		{"prerelease host uses release", ">=4.0.0", "4.0.0-beta.1", false},
		{"unsatisfied", ">=4.0.0", "3.1.2", true},
		{"invalid constraint", "not a range", "3.1.2", true},
		{"invalid host", ">=1.0.0", "latest", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckHostVersion(tt.constraint, tt.host)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, descriptor.ErrVersionMismatch))
				return
			}
			assert.NoError(t, err)
		})
	}
}
