package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const injectTemplate = `<script type="text/javascript">
    RED.nodes.registerType('inject', {});
</script>
<script type="text/html" data-template-name="inject">
    <input id="node-input-name">
</script>
<script type="text/html" data-help-name="inject">
    <p>Injects a message.</p>
</script>
<script type="text/html" data-help-name="inject" data-lang="de">
    <p>Nachricht einspeisen.</p>
</script>`

func TestParse(t *testing.T) {
	p := Parse(injectTemplate, "en-US")

	assert.Equal(t, []string{"inject"}, p.Types)
	require.Len(t, p.Help, 2)
	assert.Contains(t, p.Help["en-US"], "Injects a message.")
	assert.Contains(t, p.Help["de"], "Nachricht einspeisen.")

	assert.Contains(t, p.Config, `data-template-name="inject"`)
	assert.NotContains(t, p.Config, "data-help-name")
}

func TestParse_MultipleTypes(t *testing.T) {
	p := Parse(`<script type="text/html" data-template-name='a'></script>
<SCRIPT type="text/html" data-template-name="b"></SCRIPT>
<script type="text/html" data-template-name="a"></script>`, "en-US")

	assert.Equal(t, []string{"a", "b"}, p.Types)
	assert.Empty(t, p.Help)
}

func TestParse_Empty(t *testing.T) {
	p := Parse("", "en-US")

	assert.Equal(t, []string{}, p.Types)
	assert.Empty(t, p.Config)
	assert.Empty(t, p.Help)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inject.html")
	require.NoError(t, os.WriteFile(path, []byte(injectTemplate), 0644))

	p, err := ParseFile(path, "en-US")
	require.NoError(t, err)
	assert.Equal(t, []string{"inject"}, p.Types)

	p, err = ParseFile(filepath.Join(dir, "missing.html"), "en-US")
	require.NoError(t, err, "missing templates are tolerated")
	assert.Empty(t, p.Types)

	_, err = ParseFile(dir, "en-US")
	assert.Error(t, err, "a directory is not a readable template")
}

func TestRender(t *testing.T) {
	assert.Equal(t, "cfg", Render("cfg", ""))
	assert.Equal(t, "help", Render("", "help"))
	assert.Equal(t, "cfg\nhelp", Render("cfg", "help"))
}
