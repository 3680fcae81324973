package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pagekit/internal/app"
	"github.com/dotcommander/pagekit/internal/htmldom"
	"github.com/dotcommander/pagekit/internal/models"
	"github.com/dotcommander/pagekit/internal/pagefile"
	"github.com/dotcommander/pagekit/internal/store"
	"github.com/dotcommander/pagekit/pkg/cache"
	"github.com/dotcommander/pagekit/pkg/page"
)

// pageEnv builds provider collaborators from the effective settings.
func pageEnv() pagefile.Env {
	rt := app.EffectiveRuntimeSettings()
	return pagefile.Env{
		HTTPClient:  &http.Client{Timeout: rt.HTTPTimeout},
		HTTPTimeout: rt.HTTPTimeout,
		Cache:       cache.NewLRU(rt.CacheEntries),
		CacheTTL:    rt.CacheTTL,
		Logger:      slog.Default(),
	}
}

// runStep is one --run invocation.
type runStep struct {
	Command string
	Args    []any
}

// parseRunSpec parses "name" or "name <json>". A JSON array is spread into
// the argument list; any other JSON value is the single argument.
func parseRunSpec(spec string) (runStep, error) {
	spec = strings.TrimSpace(spec)
	name, raw, _ := strings.Cut(spec, " ")
	if name == "" {
		return runStep{}, fmt.Errorf("invalid --run %q: command name is required", spec)
	}
	step := runStep{Command: name}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return step, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return runStep{}, fmt.Errorf("invalid --run %q: %w", spec, err)
	}
	if list, ok := v.([]any); ok {
		step.Args = list
	} else {
		step.Args = []any{v}
	}
	return step, nil
}

type stepResult struct {
	Command string `json:"command"`
	Pending bool   `json:"pending,omitempty"`
	Value   any    `json:"value,omitempty"`
}

type renderResult struct {
	Page      string                `json:"page"`
	SessionID string                `json:"session_id"`
	URL       string                `json:"url"`
	Renders   int64                 `json:"renders"`
	Journaled bool                  `json:"journaled,omitempty"`
	Steps     []stepResult          `json:"steps,omitempty"`
	HTML      string                `json:"html"`
	Results   json.RawMessage       `json:"results"`
	Errors    []models.ErrorSummary `json:"errors"`
}

// renderPage starts the page, runs steps in order and snapshots the result.
// A nil db disables the journal.
func renderPage(ctx context.Context, def *pagefile.Definition, env pagefile.Env, steps []runStep, db *DB, wait time.Duration) (*renderResult, error) {
	built, err := pagefile.Build(def, env)
	if err != nil {
		return nil, err
	}

	var renders atomic.Int64
	opts := []func(*page.Options){
		page.WithLogger(slog.Default()),
		page.WithRenderObserver(func(page.RenderInfo) { renders.Add(1) }),
	}
	var rec *store.Recorder
	if db != nil {
		rec = store.NewRecorder(db, def.Name, slog.Default())
		opts = append(opts, page.WithRenderObserver(rec.Observe))
	}

	p, err := page.NewInitializer(built.Deps, built.Options(opts...)...).Start(ctx, built.Config)
	if err != nil {
		return nil, fmt.Errorf("start page %s: %w", def.Name, err)
	}
	defer p.Close()

	res := &renderResult{Page: def.Name, SessionID: p.ID(), Journaled: db != nil}
	for _, step := range steps {
		sr, err := runOne(ctx, p, step, wait)
		if err != nil {
			return nil, err
		}
		res.Steps = append(res.Steps, sr)
	}

	var markup string
	p.Inspect(func(root page.Node, results *page.Results) {
		node, ok := root.(*htmldom.Node)
		if !ok {
			err = fmt.Errorf("unsupported live node %T", root)
			return
		}
		if markup, err = htmldom.Render(node.HTML()); err != nil {
			return
		}
		res.Results, err = json.Marshal(results)
		res.Errors = errorSummaries(results.Errors())
	})
	if err != nil {
		return nil, err
	}

	res.HTML = markup
	res.URL = built.Navigator.Location().String()
	res.Renders = renders.Load()
	if rec != nil && rec.Failures() > 0 {
		slog.Warn("some renders were not journaled", "page", def.Name, "failures", rec.Failures())
	}
	return res, nil
}

func runOne(ctx context.Context, p *page.Page, step runStep, wait time.Duration) (stepResult, error) {
	out, err := p.Invoke(ctx, step.Command, step.Args...)
	if err != nil {
		return stepResult{}, fmt.Errorf("run %s: %w", step.Command, err)
	}

	sr := stepResult{Command: step.Command}
	switch o := out.(type) {
	case page.Value:
		sr.Value = o.V
	case *page.Future:
		sr.Pending = true
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		defer cancel()
		v, err := o.Wait(waitCtx)
		if err != nil {
			return stepResult{}, fmt.Errorf("wait for %s: %w", step.Command, err)
		}
		sr.Value = v
	}
	return sr, nil
}

func errorSummaries(m *page.ErrorMapping) []models.ErrorSummary {
	out := []models.ErrorSummary{}
	for _, kind := range m.Kinds() {
		rec, ok := m.Get(kind)
		if !ok {
			continue
		}
		out = append(out, models.ErrorSummary{
			Kind:        rec.Kind,
			ThrowCount:  rec.ThrowCount,
			IsCancelled: rec.IsCancelled,
		})
	}
	return out
}

// NewRenderCmd creates the render command.
func NewRenderCmd() *cobra.Command {
	var (
		runs    []string
		journal bool
		wait    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "render <page-file>",
		Short: "Start a page, run commands against it and print the final render",
		Long: `Loads a YAML or TOML page definition, runs its providers, then invokes each
--run command in order. Pending commands are awaited before the next one runs.
Prints the final root markup, the result store and the error mapping.`,
		Example: `  pagekit render dashboard.yaml --run greet --run 'save {"title":"draft"}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := pagefile.Load(args[0])
			if err != nil {
				return cmdErr(err)
			}
			steps := make([]runStep, 0, len(runs))
			for _, spec := range runs {
				step, err := parseRunSpec(spec)
				if err != nil {
					return cmdErr(err)
				}
				steps = append(steps, step)
			}
			if wait <= 0 {
				return cmdErr(fmt.Errorf("--wait must be positive"))
			}

			var result *renderResult
			run := func(db *DB) error {
				var err error
				result, err = renderPage(cmd.Context(), def, pageEnv(), steps, db, wait)
				return err
			}
			if journal {
				if err := withDB(run); err != nil {
					return err
				}
			} else if err := run(nil); err != nil {
				return cmdErr(err)
			}
			return printSuccess(cmd, result)
		},
	}

	cmd.Flags().StringArrayVar(&runs, "run", nil, "Command to invoke: 'name' or 'name <json args>' (repeatable)")
	cmd.Flags().BoolVar(&journal, "journal", false, "Record every render in the journal database")
	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "How long to wait for each pending command")
	return cmd
}
