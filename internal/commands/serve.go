package commands

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/pagekit/internal/app"
	"github.com/dotcommander/pagekit/internal/live"
	"github.com/dotcommander/pagekit/internal/pagefile"
	"github.com/dotcommander/pagekit/internal/store"
)

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var (
		listen  string
		journal bool
	)

	cmd := &cobra.Command{
		Use:   "serve <page-file>",
		Short: "Serve a page over HTTP and keep it live over a websocket",
		Long: `Serves the rendered page at / and a websocket at /live. Every websocket
connection is its own page session: command frames are invoked on it and every
render is pushed back as a render frame.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := pagefile.Load(args[0])
			if err != nil {
				return cmdErr(err)
			}
			if listen == "" {
				listen = app.EffectiveRuntimeSettings().ListenAddr
			}

			opts := []func(*live.Options){live.WithLogger(slog.Default())}
			if journal {
				db, closeDB, err := openDB()
				if err != nil {
					return cmdErr(err)
				}
				defer closeDB()
				opts = append(opts, live.WithRenderObserver(store.NewRecorder(db, def.Name, slog.Default()).Observe))
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return cmdErr(err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Handler:           live.NewServer(def, pageEnv(), opts...).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			if err := serve(ctx, srv, ln); err != nil {
				return cmdErr(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: listen_addr setting or $PAGEKIT_LISTEN)")
	cmd.Flags().BoolVar(&journal, "journal", false, "Record every render of every session in the journal database")
	return cmd
}

// serve runs srv on ln until ctx is done, then shuts it down.
func serve(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("serving page", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}
