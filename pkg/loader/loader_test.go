package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/i18n"
)

type fakeAPI struct {
	mu       sync.Mutex
	bindings map[string]string
	order    []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{bindings: make(map[string]string)}
}

func (f *fakeAPI) RegisterType(unitID string, kind descriptor.Kind, typeName string, _ descriptor.Constructor, _ descriptor.TypeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner, ok := f.bindings[typeName]; ok && owner != unitID {
		return fmt.Errorf("%w: %s", descriptor.ErrTypeAlreadyRegistered, typeName)
	}
	f.bindings[typeName] = unitID
	f.order = append(f.order, unitID)
	return nil
}

func (f *fakeAPI) RemoveUnitTypes(unitID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for t, owner := range f.bindings {
		if owner == unitID {
			delete(f.bindings, t)
		}
	}
}

func noopCtor(context.Context, map[string]interface{}) (interface{}, error) {
	return nil, nil
}

func registering(types ...string) Factory {
	return func(ctx context.Context, red *RED) error {
		for _, t := range types {
			if err := red.RegisterType(t, noopCtor, nil); err != nil {
				return err
			}
		}
		return nil
	}
}

func nativeUnit(module, name string, kind descriptor.Kind) *descriptor.Unit {
	return descriptor.NewUnit(module, name, kind, filepath.Join("/core", name+NativeExtension))
}

func TestExecute_Native(t *testing.T) {
	rt := NewNativeRuntime()
	rt.Register("node-red/inject", registering("inject"))
	l := New(Options{Runtimes: []Runtime{rt}})
	api := newFakeAPI()

	u := l.Execute(context.Background(), nativeUnit("node-red", "inject", descriptor.KindNode), api)

	assert.True(t, u.Loaded)
	assert.Nil(t, u.Err)
	assert.Equal(t, []string{"inject"}, u.Types)
	assert.Equal(t, "node-red/inject", api.bindings["inject"])
}

func TestExecute_MissingFactory(t *testing.T) {
	l := New(Options{Runtimes: []Runtime{NewNativeRuntime()}})

	u := l.Execute(context.Background(), nativeUnit("node-red", "ghost", descriptor.KindNode), newFakeAPI())

	assert.False(t, u.Loaded)
	require.NotNil(t, u.Err)
	assert.Equal(t, "load_failed", u.Err.Code)
}

func TestExecute_NoRuntime(t *testing.T) {
	l := New(Options{})

	u := l.Execute(context.Background(), descriptor.NewUnit("m", "x", descriptor.KindNode, "/x.py"), newFakeAPI())

	require.NotNil(t, u.Err)
	assert.Contains(t, u.Err.Message, ".py")
}

func TestExecute_DisabledSkipped(t *testing.T) {
	called := false
	rt := NewNativeRuntime()
	rt.Register("m/x", func(context.Context, *RED) error {
		called = true
		return nil
	})
	l := New(Options{Runtimes: []Runtime{rt}})

	u := nativeUnit("m", "x", descriptor.KindNode)
	u.Enabled = false
	l.LoadUnit(context.Background(), u, newFakeAPI())

	assert.False(t, called)
	assert.False(t, u.Loaded)
	assert.Nil(t, u.Err)
}

func TestExecute_ErrorRollsBackBindings(t *testing.T) {
	rt := NewNativeRuntime()
	rt.Register("m/x", func(ctx context.Context, red *RED) error {
		require.NoError(t, red.RegisterType("x-one", noopCtor, nil))
		return errors.New("half way")
	})
	l := New(Options{Runtimes: []Runtime{rt}})
	api := newFakeAPI()

	u := l.Execute(context.Background(), nativeUnit("m", "x", descriptor.KindNode), api)

	require.NotNil(t, u.Err)
	assert.False(t, u.Loaded)
	assert.Equal(t, "load_failed", u.Err.Code)
	assert.Contains(t, u.Err.Message, "half way")
	assert.Empty(t, api.bindings)
}

func TestExecute_PanicRecovered(t *testing.T) {
	rt := NewNativeRuntime()
	rt.Register("m/boom", func(context.Context, *RED) error {
		panic("kaboom")
	})
	l := New(Options{Runtimes: []Runtime{rt}})

	u := l.Execute(context.Background(), nativeUnit("m", "boom", descriptor.KindNode), newFakeAPI())

	require.NotNil(t, u.Err)
	assert.Equal(t, "load_failed", u.Err.Code)
	assert.Contains(t, u.Err.Message, "kaboom")
	assert.NotContains(t, u.Err.Message, "goroutine", "stack is not part of the message")
}

func TestExecute_IgnoredConflictStillFails(t *testing.T) {
	rt := NewNativeRuntime()
	rt.Register("a/switch", registering("switch"))
	rt.Register("b/switch", func(ctx context.Context, red *RED) error {
		_ = red.RegisterType("switch", noopCtor, nil)
		return nil
	})
	l := New(Options{Runtimes: []Runtime{rt}})
	api := newFakeAPI()

	first := l.Execute(context.Background(), nativeUnit("a", "switch", descriptor.KindNode), api)
	second := l.Execute(context.Background(), nativeUnit("b", "switch", descriptor.KindNode), api)

	assert.True(t, first.Loaded)
	assert.False(t, second.Loaded)
	require.NotNil(t, second.Err)
	assert.Equal(t, "type_already_registered", second.Err.Code)
	assert.Equal(t, "a/switch", api.bindings["switch"])
}

func TestExecute_InvalidRegistration(t *testing.T) {
	rt := NewNativeRuntime()
	rt.Register("m/x", func(ctx context.Context, red *RED) error {
		return red.RegisterType("", noopCtor, nil)
	})
	rt.Register("m/y", func(ctx context.Context, red *RED) error {
		return red.RegisterType("y", nil, nil)
	})
	l := New(Options{Runtimes: []Runtime{rt}})

	x := l.Execute(context.Background(), nativeUnit("m", "x", descriptor.KindNode), newFakeAPI())
	y := l.Execute(context.Background(), nativeUnit("m", "y", descriptor.KindNode), newFakeAPI())

	assert.NotNil(t, x.Err)
	assert.NotNil(t, y.Err)
}

func TestLoadPlan_PluginsBeforeNodes(t *testing.T) {
	var running, pluginsDone int32
	var violations int32

	rt := NewNativeRuntime()
	plan := &descriptor.Plan{}
	for i := 0; i < 4; i++ {
		p := nativeUnit("m", fmt.Sprintf("p%d", i), descriptor.KindPlugin)
		rt.Register(p.ID, func(context.Context, *RED) error {
			atomic.AddInt32(&running, 1)
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			atomic.AddInt32(&pluginsDone, 1)
			return nil
		})
		plan.PluginUnits = append(plan.PluginUnits, p)

		n := nativeUnit("m", fmt.Sprintf("n%d", i), descriptor.KindNode)
		rt.Register(n.ID, func(context.Context, *RED) error {
			if atomic.LoadInt32(&pluginsDone) != 4 {
				atomic.AddInt32(&violations, 1)
			}
			return nil
		})
		plan.NodeUnits = append(plan.NodeUnits, n)
	}

	l := New(Options{Runtimes: []Runtime{rt}, Concurrency: 4})
	units := l.LoadPlan(context.Background(), plan, newFakeAPI())

	require.Len(t, units, 8)
	for _, u := range units {
		assert.True(t, u.Loaded, u.ID)
	}
	assert.Zero(t, atomic.LoadInt32(&violations))
}

func TestLoadPhase_DefaultKeepsOrder(t *testing.T) {
	rt := NewNativeRuntime()
	var units []*descriptor.Unit
	var mu sync.Mutex
	var order []string
	for _, name := range []string{"c", "a", "b", "d"} {
		u := nativeUnit("m", name, descriptor.KindNode)
		rt.Register(u.ID, func(context.Context, *RED) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
		units = append(units, u)
	}

	l := New(Options{Runtimes: []Runtime{rt}})
	l.LoadPhase(context.Background(), units, newFakeAPI())

	assert.Equal(t, []string{"c", "a", "b", "d"}, order)
}

func TestLoadPhase_FailureIsolation(t *testing.T) {
	rt := NewNativeRuntime()
	rt.Register("m/ok1", registering("ok1"))
	rt.Register("m/bad", func(context.Context, *RED) error { panic("bad") })
	rt.Register("m/ok2", registering("ok2"))

	l := New(Options{Runtimes: []Runtime{rt}})
	units := []*descriptor.Unit{
		nativeUnit("m", "ok1", descriptor.KindNode),
		nativeUnit("m", "bad", descriptor.KindNode),
		nativeUnit("m", "ok2", descriptor.KindNode),
	}
	l.LoadPhase(context.Background(), units, newFakeAPI())

	assert.True(t, units[0].Loaded)
	assert.NotNil(t, units[1].Err)
	assert.True(t, units[2].Loaded)
}

func TestLoadPhase_CancelledContextDoesNotInterrupt(t *testing.T) {
	rt := NewNativeRuntime()
	rt.Register("m/a", registering("a"))
	l := New(Options{Runtimes: []Runtime{rt}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	units := l.LoadPhase(ctx, []*descriptor.Unit{nativeUnit("m", "a", descriptor.KindNode)}, newFakeAPI())

	assert.True(t, units[0].Loaded)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestAttachMetadata_TemplateAndUnitLocales(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "10-inject.node")
	writeFile(t, file, "")
	writeFile(t, filepath.Join(dir, "10-inject.html"), `<script type="text/html" data-template-name="inject"></script>
<script type="text/html" data-help-name="inject"><p>help</p></script>`)
	writeFile(t, filepath.Join(dir, "locales", "en-US", "10-inject.json"), `{"inject": {"label": "inject"}}`)
	writeFile(t, filepath.Join(dir, "locales", "de", "10-inject.html"), `<p>hilfe</p>`)

	catalog := i18n.NewCatalog("en-US")
	l := New(Options{Catalog: catalog})
	u := descriptor.NewUnit("node-red", "inject", descriptor.KindNode, file)
	u.Template = filepath.Join(dir, "10-inject.html")

	l.AttachMetadata(context.Background(), u)

	assert.Nil(t, u.Err)
	assert.Equal(t, "node-red/inject", u.Namespace)
	assert.Equal(t, []string{"inject"}, u.Types)
	assert.Contains(t, u.Help["en-US"], "help")
	assert.Equal(t, "<p>hilfe</p>", u.Help["de"])
	assert.NotContains(t, u.Config, "data-help-name")
	assert.True(t, catalog.Has("node-red/inject"))
}

func TestAttachMetadata_ModuleNamespace(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "foo.lua")
	writeFile(t, file, "")

	l := New(Options{})
	u := descriptor.NewUnit("foo-mod", "foo", descriptor.KindNode, file)
	l.AttachMetadata(context.Background(), u)

	assert.Nil(t, u.Err)
	assert.Equal(t, "foo-mod", u.Namespace)
	assert.Empty(t, u.Types)
}

func TestAttachMetadata_EditorDisabled(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "foo.lua")
	writeFile(t, file, "")
	writeFile(t, filepath.Join(dir, "foo.html"), `<script type="text/html" data-template-name="foo"></script>`)

	l := New(Options{EditorDisabled: true})
	u := descriptor.NewUnit("m", "foo", descriptor.KindNode, file)
	u.Template = filepath.Join(dir, "foo.html")
	l.AttachMetadata(context.Background(), u)

	assert.Empty(t, u.Types)
	assert.Empty(t, u.Config)
}

func TestAttachMetadata_BrokenLocales(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "foo"+NativeExtension)
	writeFile(t, file, "")
	writeFile(t, filepath.Join(dir, "foo.html"), `<script type="text/html" data-template-name="foo"></script>`)
	writeFile(t, filepath.Join(dir, "locales", "de", "foo.json"), "{")

	rt := NewNativeRuntime()
	rt.Register("m/foo", registering("foo"))
	l := New(Options{Runtimes: []Runtime{rt}})
	api := newFakeAPI()

	u := descriptor.NewUnit("m", "foo", descriptor.KindNode, file)
	u.Template = filepath.Join(dir, "foo.html")
	l.LoadUnit(context.Background(), u, api)

	assert.Nil(t, u.Err)
	assert.True(t, u.Loaded)
	assert.Equal(t, "m/foo", u.Namespace)
	assert.Equal(t, []string{"foo"}, u.Types)
	assert.Equal(t, "m/foo", api.bindings["foo"])
}

func TestAttachModuleLocales(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "locales", "en-US", "messages.json"), `{"greeting": "hi"}`)

	catalog := i18n.NewCatalog("en-US")
	l := New(Options{Catalog: catalog})
	l.AttachModuleLocales(&descriptor.Module{Name: "foo", Path: dir})

	msgs, _, ok := catalog.Lookup("foo", "en-US")
	require.True(t, ok)
	assert.Equal(t, "hi", msgs["greeting"])
}

func TestRED_Translate(t *testing.T) {
	catalog := i18n.NewCatalog("en-US")
	catalog.Add("m", "en-US", i18n.Messages{"foo": map[string]interface{}{"label": "Foo"}})
	u := descriptor.NewUnit("m", "foo", descriptor.KindNode, "foo.lua")
	red := newRED(u, newFakeAPI(), catalog, nil)

	assert.Equal(t, "Foo", red.Translate("foo.label"))
	assert.Equal(t, "foo.missing", red.Translate("foo.missing"))
	assert.Equal(t, "foo", red.Translate("foo"))
}

func TestSourceLine(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		file string
		want int
	}{
		{"runtime error", "/mods/foo/foo.lua:12: attempt to call a nil value", "/mods/foo/foo.lua", 12},
		{"syntax error", "/mods/foo/foo.lua line:3(column:7) near 'end':   syntax error", "/mods/foo/foo.lua", 3},
		{"other file ignored", "/mods/foo/lib/util.lua:8: oops", "/mods/foo/foo.lua", 0},
		{"first match in own file", "/x/other.lua:1: a\n/mods/foo.lua:44: b", "/mods/foo.lua", 44},
		{"no location", "something broke", "/mods/foo.lua", 0},
		{"no file", "/a.lua:1:", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceLine(tt.msg, tt.file))
		})
	}
}
