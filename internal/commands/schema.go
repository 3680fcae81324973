package commands

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dotcommander/pagekit/internal/pagefile"
	"github.com/dotcommander/pagekit/pkg/page"
)

// NewSchemaCmd creates the schema command. root is walked to collect CLI
// flag schemas, so it must be fully wired first.
func NewSchemaCmd(root *cobra.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe CLI commands and page files as JSON schemas",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newSchemaCommandsCmd(root))
	cmd.AddCommand(newSchemaPageCmd())
	return cmd
}

func newSchemaCommandsCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "Show CLI flag schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type resp struct {
				Commands []commandArgSchema `json:"commands"`
			}
			schemas := make([]commandArgSchema, 0)
			collectCommandSchemas(root, &schemas)
			return printSuccess(cmd, resp{Commands: schemas})
		},
	}
}

// pageCommand is one command a page answers to.
type pageCommand struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	BuiltIn bool   `json:"built_in,omitempty"`
}

type pageProvider struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func newSchemaPageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "page <page-file>",
		Short: "List the providers, commands and slots a page file declares",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := pagefile.Load(args[0])
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				Page      string         `json:"page"`
				URL       string         `json:"url,omitempty"`
				Providers []pageProvider `json:"providers"`
				Commands  []pageCommand  `json:"commands"`
				Slots     []string       `json:"slots"`
			}
			return printSuccess(cmd, resp{
				Page:      def.Name,
				URL:       def.URL,
				Providers: pageProviders(def),
				Commands:  pageCommands(def),
				Slots:     sortedKeys(def.Slots),
			})
		},
	}
}

// pageProviders keeps declaration order; results become visible in that order.
func pageProviders(def *pagefile.Definition) []pageProvider {
	out := make([]pageProvider, 0, len(def.Providers))
	for _, name := range def.Providers {
		out = append(out, pageProvider{Name: name, Kind: def.Provider[name].Kind})
	}
	return out
}

func pageCommands(def *pagefile.Definition) []pageCommand {
	out := []pageCommand{
		{Name: page.CommandCancelError, Kind: "builtin", BuiltIn: true},
		{Name: page.CommandRedirect, Kind: "builtin", BuiltIn: true},
		{Name: page.CommandReload, Kind: "builtin", BuiltIn: true},
	}
	for _, name := range sortedKeys(def.Commands) {
		out = append(out, pageCommand{Name: name, Kind: def.Commands[name].Kind})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type commandArgSchema struct {
	Command     string         `json:"command"`
	Description string         `json:"description,omitempty"`
	ArgsSchema  map[string]any `json:"args_schema"`
}

func collectCommandSchemas(cmd *cobra.Command, out *[]commandArgSchema) {
	if cmd.HasParent() {
		switch {
		case cmd.Hidden, cmd.Name() == "schema", cmd.Name() == "help":
			return
		case cmd.Runnable():
			*out = append(*out, buildCommandSchema(cmd))
		}
	}

	for _, child := range cmd.Commands() {
		collectCommandSchemas(child, out)
	}
}

func buildCommandSchema(cmd *cobra.Command) commandArgSchema {
	properties := map[string]any{}
	required := make([]string, 0)
	seen := map[string]bool{}

	addFlag := func(f *pflag.Flag) {
		if f.Hidden || seen[f.Name] {
			return
		}
		seen[f.Name] = true

		flagSchema := map[string]any{
			"type":        normalizeFlagType(f.Value.Type()),
			"description": f.Usage,
		}
		if f.Value.Type() == "duration" {
			flagSchema["format"] = "duration"
		}
		if f.DefValue != "" && f.DefValue != "[]" {
			flagSchema["default"] = typedFlagDefault(f.Value.Type(), f.DefValue)
		}
		if enumValues := parseEnumValues(f.Usage); len(enumValues) > 0 {
			flagSchema["enum"] = enumValues
		}
		properties[f.Name] = flagSchema

		if isRequiredFlag(f) {
			required = append(required, f.Name)
		}
	}

	cmd.InheritedFlags().VisitAll(addFlag)
	cmd.NonInheritedFlags().VisitAll(addFlag)

	argsSchema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		argsSchema["required"] = required
	}

	return commandArgSchema{
		Command:     cmd.CommandPath(),
		Description: cmd.Short,
		ArgsSchema:  argsSchema,
	}
}

func normalizeFlagType(flagType string) string {
	switch flagType {
	case "int", "int64", "int32", "uint", "uint64", "uint32":
		return "integer"
	case "bool":
		return "boolean"
	case "stringArray", "stringSlice":
		return "array"
	default:
		return "string"
	}
}

func typedFlagDefault(flagType, raw string) any {
	switch flagType {
	case "bool":
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	case "int", "int64", "int32", "uint", "uint64", "uint32":
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return raw
}

func isRequiredFlag(f *pflag.Flag) bool {
	if vals, ok := f.Annotations[cobra.BashCompOneRequiredFlag]; ok && len(vals) > 0 && vals[0] == "true" {
		return true
	}
	return strings.Contains(strings.ToLower(f.Usage), "(required)")
}

// parseEnumValues reads "...: a|b|c" or "... (a, b)" usage suffixes.
func parseEnumValues(usage string) []string {
	usage = strings.TrimSpace(usage)
	if usage == "" {
		return nil
	}

	if idx := strings.LastIndex(usage, ":"); idx >= 0 {
		cand := strings.TrimSpace(usage[idx+1:])
		if strings.Contains(cand, "|") {
			return normalizeEnumParts(strings.Split(cand, "|"))
		}
	}

	open := strings.LastIndex(usage, "(")
	end := strings.LastIndex(usage, ")")
	if open >= 0 && end > open {
		cand := usage[open+1 : end]
		if strings.Contains(strings.ToLower(cand), "e.g.") {
			return nil
		}
		if strings.Contains(cand, ",") {
			return normalizeEnumParts(strings.Split(cand, ","))
		}
	}
	return nil
}

func normalizeEnumParts(parts []string) []string {
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.Trim(strings.TrimSpace(p), "[]"))
		if p == "" || strings.ContainsAny(p, ". '") {
			continue
		}
		values = append(values, p)
	}
	if len(values) < 2 {
		return nil
	}
	return values
}
