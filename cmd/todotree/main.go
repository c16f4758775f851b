package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/alexanderramin/todotree/internal/cli"
	"github.com/alexanderramin/todotree/internal/client"
	"github.com/alexanderramin/todotree/internal/config"
	"github.com/alexanderramin/todotree/internal/db"
	"github.com/alexanderramin/todotree/internal/hub"
	"github.com/alexanderramin/todotree/internal/repository"
	"github.com/alexanderramin/todotree/internal/service"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	app := &cli.App{
		Config: &cfg,
		Open:   openBackend,
	}
	defer app.Close()

	// Detect interactive terminal for prompts and the TUI.
	app.IsInteractive = func() bool {
		return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	}

	return cli.NewRootCmd(app).ExecuteContext(context.Background())
}

// openBackend wires either the local store or a client replica of the hub
// named by cfg.Server. Both publish applied changes to a local hub so the
// TUI and `serve` see every update.
func openBackend(ctx context.Context, cfg *config.Config) (*cli.Backend, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	changes := hub.NewHub(hub.DefaultBufferSize, logger)

	if cfg.Remote() {
		c := client.New(cfg.Server,
			client.WithLogger(logger),
			client.WithOnChange(changes.Publish),
		)
		if err := c.Connect(ctx); err != nil {
			changes.Close()
			return nil, fmt.Errorf("connecting to %s: %w", cfg.Server, err)
		}
		return &cli.Backend{
			Todos:  c,
			Hub:    changes,
			Logger: logger,
			Close: func() error {
				err := c.Close()
				changes.Close()
				return err
			},
		}, nil
	}

	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		changes.Close()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var observer service.UseCaseObserver = service.NoopUseCaseObserver{}
	if cfg.LogUseCases {
		observer = service.NewSlogUseCaseObserver(logger)
	}

	svc, err := service.NewTodoService(ctx,
		repository.NewSQLiteTodoRepo(database),
		db.NewSQLiteUnitOfWork(database),
		service.WithPublisher(changes),
		service.WithObserver(observer),
	)
	if err != nil {
		changes.Close()
		database.Close()
		return nil, fmt.Errorf("loading todos: %w", err)
	}

	return &cli.Backend{
		Todos:  svc,
		Hub:    changes,
		Logger: logger,
		Local:  true,
		Close: func() error {
			changes.Close()
			return database.Close()
		},
	}, nil
}
