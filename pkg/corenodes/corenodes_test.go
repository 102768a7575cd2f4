package corenodes

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/loader"
	"github.com/platinummonkey/noderegistry/pkg/registry"
	"github.com/platinummonkey/noderegistry/pkg/scanner"
)

const hostName = "node-red"

func TestNewInject(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		want    *Inject
		wantErr bool
	}{
		{
			name:   "defaults",
			config: map[string]interface{}{},
			want:   &Inject{},
		},
		{
			name:   "numeric repeat",
			config: map[string]interface{}{"payload": "hello", "repeat": 2.5, "once": true},
			want:   &Inject{Payload: "hello", Repeat: 2500 * time.Millisecond, Once: true},
		},
		{
			name:   "string repeat",
			config: map[string]interface{}{"repeat": " 10 "},
			want:   &Inject{Repeat: 10 * time.Second},
		},
		{
			name:   "empty repeat",
			config: map[string]interface{}{"repeat": ""},
			want:   &Inject{},
		},
		{
			name:    "bad repeat",
			config:  map[string]interface{}{"repeat": "soon"},
			wantErr: true,
		},
		{
			name:    "negative repeat",
			config:  map[string]interface{}{"repeat": -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewInject(context.Background(), tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewDebug(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]interface{}
		want    *Debug
		wantErr bool
	}{
		{name: "defaults", config: map[string]interface{}{}, want: &Debug{Complete: "payload"}},
		{name: "whole message", config: map[string]interface{}{"complete": true}, want: &Debug{Complete: "true"}},
		{name: "property", config: map[string]interface{}{"complete": "msg.topic", "console": true}, want: &Debug{Complete: "topic", Console: true}},
		{name: "blank property", config: map[string]interface{}{"complete": "  "}, want: &Debug{Complete: "payload"}},
		{name: "wrong type", config: map[string]interface{}{"complete": 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDebug(context.Background(), tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegister_LoadsShippedCoreDirectory(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	native := loader.NewNativeRuntime()
	Register(native, hostName)
	assert.True(t, native.Has("node-red/inject"))
	assert.True(t, native.Has("node-red/debug"))

	sc := scanner.New(scanner.Options{
		HostName:    hostName,
		HostVersion: "4.0.0",
		Roots:       scanner.Roots{CoreDir: filepath.Join("..", "..", "nodes", "core")},
		Logger:      log,
	})
	ld := loader.New(loader.Options{Runtimes: []loader.Runtime{native}, Logger: log})
	reg, err := registry.New(registry.Options{Scanner: sc, Loader: ld, HostVersion: "4.0.0", Logger: log})
	require.NoError(t, err)
	defer reg.Close()

	require.NoError(t, reg.Load(context.Background()))

	for _, id := range []string{"node-red/inject", "node-red/debug"} {
		u, err := reg.GetUnit(id)
		require.NoError(t, err, id)
		assert.True(t, u.Loaded, id)
		assert.Nil(t, u.Err, id)
		assert.Equal(t, id, u.Namespace, "units with locales use their own namespace")
	}

	binding, ok := reg.GetType("inject")
	require.True(t, ok)
	assert.Equal(t, "node-red/inject", binding.UnitID)
	assert.Equal(t, descriptor.KindNode, binding.Kind)
	assert.Equal(t, "inject", binding.Options["label"])

	n, err := binding.Constructor(context.Background(), map[string]interface{}{"repeat": "1"})
	require.NoError(t, err)
	assert.Equal(t, time.Second, n.(*Inject).Repeat)

	msgs, lang, ok := reg.GetCatalog("node-red/debug", "de-DE")
	require.True(t, ok)
	assert.Equal(t, "de", lang)
	assert.Equal(t, "Ausgabe", msgs["debug"].(map[string]interface{})["output"])

	html, err := reg.GetUnitConfig("node-red/inject", "en-US")
	require.NoError(t, err)
	assert.Contains(t, html, `data-template-name="inject"`)
	assert.Contains(t, html, "Injects a message")
}
