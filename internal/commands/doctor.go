package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/pagekit/internal/app"
	"github.com/dotcommander/pagekit/internal/store"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and journal database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, dbSource, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				DBPath        string              `json:"db_path"`
				DBSource      string              `json:"db_source"`
				DBOK          bool                `json:"db_ok"`
				DBErr         string              `json:"db_error,omitempty"`
				SchemaVersion int64               `json:"schema_version,omitempty"`
				LatestSchema  int64               `json:"latest_schema,omitempty"`
				LogLevel      string              `json:"log_level"`
				Runtime       app.RuntimeSettings `json:"runtime"`
				Hint          string              `json:"hint,omitempty"`
			}
			r := resp{
				DBPath:   dbPath,
				DBSource: dbSource,
				LogLevel: app.LogLevel().String(),
				Runtime:  app.EffectiveRuntimeSettings(),
			}

			db, err := store.InitDBWithPath(dbPath)
			if err != nil {
				r.DBErr = err.Error()
			} else {
				defer func() { _ = db.Close() }()
				r.SchemaVersion, r.LatestSchema, err = store.SchemaVersion(db)
				if err != nil {
					r.DBErr = err.Error()
				} else {
					r.DBOK = true
				}
			}
			if !r.DBOK {
				r.Hint = "If this is running in a sandboxed environment, set db_path to a writable location or use --db-path."
			}
			return printSuccess(cmd, r)
		},
	}
	return cmd
}
