package pagefile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAML(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "dashboard.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "dashboard", def.Name)
	assert.Equal(t, []string{"user", "profile"}, def.Providers)
	assert.Equal(t, "dark", def.Store["theme"])
	assert.Equal(t, ProviderFile, def.Provider["profile"].Kind)
	assert.Equal(t, Duration(20*time.Millisecond), def.Commands["save"].Delay)
	assert.Equal(t, []string{"QuotaError"}, def.Commands["boom"].Due)
	assert.Equal(t, "disk full", def.Commands["boom"].Fields["reason"])
	assert.InDelta(t, 2, def.Commands["count"].Step, 0)
	assert.Contains(t, def.Slots["badge"], "badge")
	assert.Equal(t, filepath.Join("testdata", "profile.json"), def.resolve("profile.json"))
	assert.Equal(t, "/abs/file", def.resolve("/abs/file"))
}

func TestLoadTOML(t *testing.T) {
	def, err := Load(filepath.Join("testdata", "dashboard.toml"))
	require.NoError(t, err)

	assert.Equal(t, "dashboard-toml", def.Name)
	assert.Equal(t, "Grace", def.Provider["user"].Value)
	assert.Equal(t, Duration(time.Second), def.Commands["later"].Delay)
	assert.InDelta(t, 1.5, def.Commands["tick"].Step, 0)
	assert.Equal(t, int64(5), def.Store["limit"])
	assert.Equal(t, map[string]any{"limit": 5}, seed(def.Store))
}

func TestLoadDefaultsNameToFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yml")
	writeFile(t, path, "root_html: '<main></main>'\ntemplate: x\n")

	def, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "settings", def.Name)
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "page.ini"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join("testdata", "absent.yaml"))
	require.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "bad.yaml"))
	require.ErrorIs(t, err, ErrInvalidDefinition)

	msg := err.Error()
	assert.Contains(t, msg, "one of root or root_html is required")
	assert.Contains(t, msg, "one of template or template_file is required")
	assert.Contains(t, msg, `provider "missing" is not defined`)
	assert.Contains(t, msg, `provider "odd": unknown kind "carrier-pigeon"`)
	assert.Contains(t, msg, `command "oops": error is required`)
}

func TestValidateProviderFields(t *testing.T) {
	def := &Definition{
		RootHTML:  "<main></main>",
		Template:  "x",
		Providers: []string{"a", "a"},
		Provider: map[string]ProviderDef{
			"a": {Kind: ProviderFile},
			"b": {Kind: ProviderHTTP},
			"c": {Kind: ProviderTicker},
		},
	}
	err := def.Validate()
	require.ErrorIs(t, err, ErrInvalidDefinition)
	assert.Contains(t, err.Error(), `provider "a" listed twice`)
	assert.Contains(t, err.Error(), `provider "a": path is required`)
	assert.Contains(t, err.Error(), `provider "b": url is required`)
	assert.Contains(t, err.Error(), `provider "c": interval must be positive`)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, Duration(90*time.Second), d)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	require.Error(t, d.UnmarshalText([]byte("soon")))
}
