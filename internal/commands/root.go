package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pagekit/internal/app"
	"github.com/dotcommander/pagekit/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: app.LogLevel()})))

	root := &cobra.Command{
		Use:           "pagekit",
		Short:         "Run declarative pages: providers, commands, error mapping and live renders",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return printSuccess(cmd, resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --db-path into app-level resolver.
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}

			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override journal database path")
	root.Flags().BoolP("version", "v", false, "version for pagekit")

	root.AddCommand(NewRenderCmd())
	root.AddCommand(NewServeCmd())
	root.AddCommand(NewJournalCmd())
	root.AddCommand(NewDoctorCmd())
	root.AddCommand(NewSchemaCmd(root))

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Error("command failed", "error", err.Error())
		}
	}
	return err
}

// printSuccess writes the success envelope to the command's stdout.
func printSuccess(cmd *cobra.Command, data any) error {
	cfg := output.DefaultConfig()
	cfg.Writer = cmd.OutOrStdout()
	return output.PrintWith(cfg, output.Success(data))
}
