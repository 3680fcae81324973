package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/pagekit/internal/models"
	"github.com/dotcommander/pagekit/internal/store"
)

// NewJournalCmd creates the journal parent command.
func NewJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded page sessions and renders",
	}

	cmd.AddCommand(newJournalSessionsCmd())
	cmd.AddCommand(newJournalShowCmd())
	cmd.AddCommand(newJournalRendersCmd())
	return cmd
}

func newJournalSessionsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var sessions []models.Session
			if err := withDB(func(db *DB) error {
				var err error
				sessions, err = store.ListSessions(cmd.Context(), db, limit)
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Count    int              `json:"count"`
				Sessions []models.Session `json:"sessions"`
			}
			return printSuccess(cmd, resp{Count: len(sessions), Sessions: sessions})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "Maximum number of sessions")
	return cmd
}

func newJournalShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var session *models.Session
			if err := withDB(func(db *DB) error {
				var err error
				session, err = store.GetSession(cmd.Context(), db, args[0])
				return err
			}); err != nil {
				return err
			}
			return printSuccess(cmd, session)
		},
	}
}

func newJournalRendersCmd() *cobra.Command {
	var (
		session string
		trigger string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "renders",
		Short: "List recorded renders, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var renders []models.Render
			if err := withDB(func(db *DB) error {
				var err error
				renders, err = store.ListRenders(cmd.Context(), db, store.RenderFilter{
					SessionID: session,
					Trigger:   trigger,
					Limit:     limit,
				})
				return err
			}); err != nil {
				return err
			}

			type resp struct {
				Session string          `json:"session,omitempty"`
				Trigger string          `json:"trigger,omitempty"`
				Count   int             `json:"count"`
				Renders []models.Render `json:"renders"`
			}
			return printSuccess(cmd, resp{Session: session, Trigger: trigger, Count: len(renders), Renders: renders})
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "Only renders of this session")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Only renders with this trigger: init|command|in_flight|complete|push|error|batch")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultListLimit, "Maximum number of renders (newest kept)")
	return cmd
}
