// Package pagefile loads declarative page definitions from YAML or TOML and
// builds the dependencies, configuration and reconciler a page needs.
package pagefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnsupportedFormat means the file extension is not .yaml, .yml or .toml.
	ErrUnsupportedFormat = errors.New("unsupported page file format")
	// ErrInvalidDefinition wraps every validation problem found by Validate.
	ErrInvalidDefinition = errors.New("invalid page definition")
)

// Provider kinds.
const (
	ProviderValue  = "value"
	ProviderFile   = "file"
	ProviderHTTP   = "http"
	ProviderTicker = "ticker"
)

// Command kinds.
const (
	CommandSet     = "set"
	CommandDelay   = "delay"
	CommandFail    = "fail"
	CommandCounter = "counter"
)

// Duration is a time.Duration written as "250ms" or "2s" in page files.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	return d.UnmarshalText([]byte(value.Value))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Definition is one page file.
type Definition struct {
	Name         string                 `yaml:"name" toml:"name"`
	URL          string                 `yaml:"url" toml:"url"`
	Root         string                 `yaml:"root" toml:"root"`
	RootHTML     string                 `yaml:"root_html" toml:"root_html"`
	RootID       string                 `yaml:"root_id" toml:"root_id"`
	Template     string                 `yaml:"template" toml:"template"`
	TemplateFile string                 `yaml:"template_file" toml:"template_file"`
	Providers    []string               `yaml:"providers" toml:"providers"`
	Store        map[string]any         `yaml:"store" toml:"store"`
	Provider     map[string]ProviderDef `yaml:"provider" toml:"provider"`
	Commands     map[string]CommandDef  `yaml:"commands" toml:"commands"`
	Slots        map[string]string      `yaml:"slots" toml:"slots"`

	// dir resolves relative paths; it is the directory of the loaded file.
	dir string
}

// ProviderDef declares one provider.
type ProviderDef struct {
	Kind     string   `yaml:"kind" toml:"kind"`
	Value    any      `yaml:"value" toml:"value"`
	Path     string   `yaml:"path" toml:"path"`
	URL      string   `yaml:"url" toml:"url"`
	Retries  int      `yaml:"retries" toml:"retries"`
	CacheTTL Duration `yaml:"cache_ttl" toml:"cache_ttl"`
	Interval Duration `yaml:"interval" toml:"interval"`
	Count    int      `yaml:"count" toml:"count"`
}

// CommandDef declares one command.
type CommandDef struct {
	Kind   string         `yaml:"kind" toml:"kind"`
	Value  any            `yaml:"value" toml:"value"`
	Delay  Duration       `yaml:"delay" toml:"delay"`
	Error  string         `yaml:"error" toml:"error"`
	Fields map[string]any `yaml:"fields" toml:"fields"`
	Due    []string       `yaml:"due" toml:"due"`
	Step   float64        `yaml:"step" toml:"step"`
	Start  float64        `yaml:"start" toml:"start"`
}

// Load reads a page definition; the format follows the file extension.
func Load(path string) (*Definition, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: page file path is user input by design
	if err != nil {
		return nil, fmt.Errorf("read page file: %w", err)
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &def); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	def.dir = filepath.Dir(path)
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks that the definition can be built.
func (d *Definition) Validate() error {
	var problems []string
	if d.Root == "" && d.RootHTML == "" {
		problems = append(problems, "one of root or root_html is required")
	}
	if d.Template == "" && d.TemplateFile == "" {
		problems = append(problems, "one of template or template_file is required")
	}

	seen := make(map[string]bool, len(d.Providers))
	for _, name := range d.Providers {
		if seen[name] {
			problems = append(problems, fmt.Sprintf("provider %q listed twice", name))
		}
		seen[name] = true
		if _, ok := d.Provider[name]; !ok {
			problems = append(problems, fmt.Sprintf("provider %q is not defined", name))
		}
	}
	for name, p := range d.Provider {
		switch p.Kind {
		case ProviderValue:
		case ProviderFile:
			if p.Path == "" {
				problems = append(problems, fmt.Sprintf("provider %q: path is required", name))
			}
		case ProviderHTTP:
			if p.URL == "" {
				problems = append(problems, fmt.Sprintf("provider %q: url is required", name))
			}
		case ProviderTicker:
			if p.Interval <= 0 {
				problems = append(problems, fmt.Sprintf("provider %q: interval must be positive", name))
			}
		default:
			problems = append(problems, fmt.Sprintf("provider %q: unknown kind %q", name, p.Kind))
		}
	}
	for name, c := range d.Commands {
		switch c.Kind {
		case CommandSet, CommandDelay, CommandCounter:
		case CommandFail:
			if c.Error == "" {
				problems = append(problems, fmt.Sprintf("command %q: error is required", name))
			}
		default:
			problems = append(problems, fmt.Sprintf("command %q: unknown kind %q", name, c.Kind))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(problems, "; "))
	}
	return nil
}

// resolve makes p relative to the definition's directory.
func (d *Definition) resolve(p string) string {
	if filepath.IsAbs(p) || d.dir == "" {
		return p
	}
	return filepath.Join(d.dir, p)
}
