package commands

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(*cobra.Command, []string) error { return nil }

func TestNormalizeFlagType(t *testing.T) {
	require.Equal(t, "integer", normalizeFlagType("int64"))
	require.Equal(t, "boolean", normalizeFlagType("bool"))
	require.Equal(t, "string", normalizeFlagType("duration"))
	require.Equal(t, "array", normalizeFlagType("stringArray"))
	require.Equal(t, "string", normalizeFlagType("string"))
}

func TestTypedFlagDefault(t *testing.T) {
	require.Equal(t, true, typedFlagDefault("bool", "true"))
	require.Equal(t, 42, typedFlagDefault("int", "42"))
	require.Equal(t, "oops", typedFlagDefault("int", "oops"))
	require.Equal(t, "30s", typedFlagDefault("duration", "30s"))
}

func TestIsRequiredFlag(t *testing.T) {
	require.True(t, isRequiredFlag(&pflag.Flag{Annotations: map[string][]string{cobra.BashCompOneRequiredFlag: {"true"}}}))
	require.True(t, isRequiredFlag(&pflag.Flag{Usage: "Session id (required)"}))
	require.False(t, isRequiredFlag(&pflag.Flag{Usage: "optional flag"}))
}

func TestParseEnumValues(t *testing.T) {
	require.Equal(t, []string{"init", "command", "error"}, parseEnumValues("Only renders with this trigger: init|command|error"))
	require.Equal(t, []string{"yaml", "toml"}, parseEnumValues("Page format (yaml, toml)"))
	require.Nil(t, parseEnumValues("Example only (e.g. foo, bar)"))
	require.Nil(t, parseEnumValues("Command to invoke: 'name' or 'name <json args>' (repeatable)"))
	require.Nil(t, parseEnumValues(""))
}

func TestNormalizeEnumParts(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, normalizeEnumParts([]string{" a ", "[b]", "skip me", "1.2"}))
	require.Nil(t, normalizeEnumParts([]string{"onlyone"}))
}

func TestBuildCommandSchema_RenderFlags(t *testing.T) {
	root := &cobra.Command{Use: "pagekit"}
	root.PersistentFlags().String("db-path", "", "Override journal database path")
	render := NewRenderCmd()
	root.AddCommand(render)

	schema := buildCommandSchema(render)
	require.Equal(t, "pagekit render", schema.Command)

	props := schema.ArgsSchema["properties"].(map[string]any)
	require.Contains(t, props, "db-path")

	run := props["run"].(map[string]any)
	assert.Equal(t, "array", run["type"])
	assert.NotContains(t, run, "default")

	wait := props["wait"].(map[string]any)
	assert.Equal(t, "duration", wait["format"])
	assert.Equal(t, "30s", wait["default"])

	journal := props["journal"].(map[string]any)
	assert.Equal(t, false, journal["default"])
	assert.NotContains(t, schema.ArgsSchema, "required")
}

func TestCollectCommandSchemas_SkipsGroupsAndHidden(t *testing.T) {
	root := &cobra.Command{Use: "pagekit", RunE: noop}
	schemaCmd := &cobra.Command{Use: "schema", RunE: noop}
	visible := &cobra.Command{Use: "render", Short: "Render", RunE: noop}
	hidden := &cobra.Command{Use: "secret", Hidden: true, RunE: noop}
	group := &cobra.Command{Use: "journal"}
	group.AddCommand(&cobra.Command{Use: "sessions", RunE: noop})
	root.AddCommand(schemaCmd, visible, hidden, group)

	var out []commandArgSchema
	collectCommandSchemas(root, &out)

	names := make([]string, 0, len(out))
	for _, s := range out {
		names = append(names, s.Command)
	}
	require.Equal(t, []string{"pagekit journal sessions", "pagekit render"}, names)
}

func TestSchemaPage_ListsDeclarations(t *testing.T) {
	data := runCmd(t, newSchemaPageCmd(), dashboardFile)
	assert.Equal(t, "dashboard", data["page"])

	providers := data["providers"].([]any)
	require.Len(t, providers, 2)
	assert.Equal(t, map[string]any{"name": "user", "kind": "value"}, providers[0])

	commands := data["commands"].([]any)
	first := commands[0].(map[string]any)
	assert.Equal(t, "cancelError", first["name"])
	assert.Equal(t, true, first["built_in"])

	var declared []string
	for _, c := range commands[3:] {
		declared = append(declared, c.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"boom", "count", "greet", "save"}, declared)
	assert.Equal(t, []any{"badge"}, data["slots"])
}

func TestSchemaCommands_WalksRoot(t *testing.T) {
	root := &cobra.Command{Use: "pagekit"}
	root.AddCommand(NewRenderCmd(), NewJournalCmd())
	schema := NewSchemaCmd(root)
	root.AddCommand(schema)

	cmd, _, err := schema.Find([]string{"commands"})
	require.NoError(t, err)
	data := runCmd(t, cmd)

	var names []string
	for _, c := range data["commands"].([]any) {
		names = append(names, c.(map[string]any)["command"].(string))
	}
	assert.Contains(t, names, "pagekit render")
	assert.Contains(t, names, "pagekit journal renders")
	assert.NotContains(t, names, "pagekit journal")
	assert.NotContains(t, names, "pagekit schema commands")
}
