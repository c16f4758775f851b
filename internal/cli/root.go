// Package cli implements the todotree command line.
package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alexanderramin/todotree/internal/config"
	"github.com/alexanderramin/todotree/internal/hub"
	"github.com/alexanderramin/todotree/internal/service"
	"github.com/alexanderramin/todotree/internal/tree"
	"github.com/spf13/cobra"
)

// Backend is an opened replica: the local store or a client of a remote hub.
type Backend struct {
	Todos service.TodoService
	// Hub fans out every applied ChangeSet. For a remote replica it is fed
	// by the client's stream.
	Hub    *hub.Hub
	Logger *slog.Logger
	Local  bool
	Close  func() error
}

// App holds what commands need. Todos may be preset (tests); otherwise Open
// is called once flags are parsed.
type App struct {
	Todos  service.TodoService
	Hub    *hub.Hub
	Logger *slog.Logger
	Local  bool
	Config *config.Config

	Open          func(ctx context.Context, cfg *config.Config) (*Backend, error)
	IsInteractive func() bool
	Now           func() time.Time

	closeBackend func() error
}

// NewRootCmd creates the top-level "todotree" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "todotree",
		Short:         "Nested todos with time tracking, shared between replicas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.open(cmd.Context())
		},
	}

	if app.Config != nil {
		config.BindFlags(root.PersistentFlags(), app.Config)
	}

	root.AddCommand(
		newListCmd(app),
		newShowCmd(app),
		newAddCmd(app),
		newEditCmd(app),
		newChildCmd(app),
		newRemoveCmd(app),
		newActionCmd(app, "start", "Start tracking time on a todo", "Started", service.TodoService.Start),
		newActionCmd(app, "stop", "Stop tracking time on a todo", "Stopped", service.TodoService.Stop),
		newActionCmd(app, "complete", "Mark a todo completed", "Completed", service.TodoService.Complete),
		newActionCmd(app, "uncomplete", "Reopen a completed todo", "Reopened", service.TodoService.UnComplete),
		newActionCmd(app, "next", "Complete the current child of a todo and start the next one", "Advanced", service.TodoService.GoNext),
		newExportCmd(app),
		newImportCmd(app),
		newServeCmd(app),
		newTUICmd(app),
		newConfigCmd(app),
	)

	return root
}

func (a *App) open(ctx context.Context) error {
	if a.Config != nil {
		if err := a.Config.Validate(); err != nil {
			return err
		}
	}
	if a.Todos != nil {
		return nil
	}
	if a.Open == nil {
		return errors.New("no todo store configured")
	}
	b, err := a.Open(ctx, a.Config)
	if err != nil {
		return err
	}
	a.Todos, a.Hub, a.Logger, a.Local = b.Todos, b.Hub, b.Logger, b.Local
	a.closeBackend = b.Close
	return nil
}

// Close releases whatever Open acquired. It is safe to call more than once.
func (a *App) Close() error {
	if a.closeBackend == nil {
		return nil
	}
	closeFn := a.closeBackend
	a.closeBackend = nil
	return closeFn()
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) interactive() bool {
	return a.IsInteractive != nil && a.IsInteractive()
}

func (a *App) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.New(slog.DiscardHandler)
}

// loadTree rebuilds the current tree so derived values (elapsed, remaining,
// running) can be computed locally.
func (a *App) loadTree(ctx context.Context) (*tree.Manager, error) {
	records, err := a.Todos.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return tree.NewManagerFromRecords(records)
}
