package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexanderramin/todotree/internal/hub"
	"github.com/spf13/cobra"
)

func newServeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the local store to remote replicas",
		Long: "Serve the local store over HTTP and stream every change to\n" +
			"connected replicas over a websocket at /ws.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.Local || app.Hub == nil {
				return errors.New("serve needs the local store; unset --server")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			addr := "127.0.0.1:7878"
			if app.Config != nil {
				addr = app.Config.Listen
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", addr)
			return hub.NewServer(app.Todos, app.Hub, app.logger()).Run(ctx, addr)
		},
	}
}
