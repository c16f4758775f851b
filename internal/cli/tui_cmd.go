package cli

import (
	"errors"

	"github.com/alexanderramin/todotree/internal/tui"
	"github.com/spf13/cobra"
)

func newTUICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and track todos interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !app.interactive() {
				return errors.New("tui needs an interactive terminal")
			}
			opts := []tui.Option{tui.WithClock(app.now)}
			if app.Hub != nil {
				opts = append(opts, tui.WithHub(app.Hub))
			}
			return tui.Run(cmd.Context(), app.Todos, opts...)
		},
	}
}
