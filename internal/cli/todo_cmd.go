package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/todotree/internal/cli/formatter"
	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/service"
	"github.com/spf13/cobra"
)

func newListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show every todo as a tree",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.loadTree(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatTodoTree(m.TopTodo(), app.now()))
			return nil
		},
	}
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one todo with its time records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := resolveID(ctx, app, args[0])
			if err != nil {
				return err
			}
			m, err := app.loadTree(ctx)
			if err != nil {
				return err
			}
			t, err := m.GetTodo(id)
			if err != nil {
				return err
			}
			parentName := ""
			if p, ok := m.Parent(t); ok {
				parentName = p.Name()
			}
			fmt.Fprint(cmd.OutOrStdout(), formatter.FormatTodoDetail(t, parentName, app.now()))
			return nil
		},
	}
}

func newAddCmd(app *App) *cobra.Command {
	var name, parent, id string
	var estimate time.Duration
	var attrs map[string]string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a todo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if name == "" {
				if !app.interactive() {
					return errors.New("--name is required")
				}
				estimateText := ""
				if cmd.Flags().Changed("estimate") {
					estimateText = estimate.String()
				}
				if err := newTodoForm(&name, &estimateText).Run(); err != nil {
					return err
				}
				if s := strings.TrimSpace(estimateText); s != "" {
					d, err := time.ParseDuration(s)
					if err != nil {
						return err
					}
					estimate = d
				}
			}
			if estimate < 0 {
				return errors.New("--estimate cannot be negative")
			}

			rec := domain.Record{
				ID:           id,
				Name:         strings.TrimSpace(name),
				EstimateTime: estimate,
				Attributes:   attrs,
			}
			if parent != "" {
				parentID, err := resolveID(ctx, app, parent)
				if err != nil {
					return err
				}
				rec.Parent = parentID
			}

			cs, err := app.Todos.Upsert(ctx, []domain.Record{rec})
			if err != nil {
				return err
			}
			added, ok := service.NewChild(cs)
			if !ok {
				return fmt.Errorf("todo %s already exists unchanged", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", added.Name, added.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Todo name")
	cmd.Flags().StringVar(&parent, "parent", "", "Parent todo ID or prefix")
	cmd.Flags().StringVar(&id, "id", "", "Explicit ID (default: generated)")
	cmd.Flags().DurationVar(&estimate, "estimate", 0, "Estimated time, e.g. 45m or 1h30m")
	cmd.Flags().StringToStringVar(&attrs, "attr", nil, "Attribute key=value (repeatable)")

	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var name, parent string
	var estimate time.Duration
	var root bool
	var attrs map[string]string
	var unset []string

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Rename, re-estimate, move, or tag a todo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := resolveID(ctx, app, args[0])
			if err != nil {
				return err
			}
			rec, err := app.Todos.Get(ctx, id)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				if err := validateName(name); err != nil {
					return err
				}
				rec.Name = strings.TrimSpace(name)
			}
			if flags.Changed("estimate") {
				if estimate < 0 {
					return errors.New("--estimate cannot be negative")
				}
				rec.EstimateTime = estimate
			}
			if root && parent != "" {
				return errors.New("--root and --parent are mutually exclusive")
			}
			if root {
				rec.Parent = ""
			}
			if parent != "" {
				parentID, err := resolveID(ctx, app, parent)
				if err != nil {
					return err
				}
				rec.Parent = parentID
			}
			if len(attrs) > 0 || len(unset) > 0 {
				merged := make(map[string]string, len(rec.Attributes)+len(attrs))
				for k, v := range rec.Attributes {
					merged[k] = v
				}
				for k, v := range attrs {
					merged[k] = v
				}
				for _, k := range unset {
					delete(merged, k)
				}
				rec.Attributes = merged
			}

			cs, err := app.Todos.Upsert(ctx, []domain.Record{rec})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Edited %s: %s\n", rec.Name, formatter.FormatChangeSummary(cs))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().DurationVar(&estimate, "estimate", 0, "New estimate (leaf todos only)")
	cmd.Flags().StringVar(&parent, "parent", "", "Move under this todo")
	cmd.Flags().BoolVar(&root, "root", false, "Move to the top level")
	cmd.Flags().StringToStringVar(&attrs, "attr", nil, "Set attribute key=value (repeatable)")
	cmd.Flags().StringSliceVar(&unset, "unset-attr", nil, "Remove attribute (repeatable)")

	return cmd
}

func newChildCmd(app *App) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "child PARENT",
		Short: "Add a child todo, turning the parent into a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			parentID, err := resolveID(ctx, app, args[0])
			if err != nil {
				return err
			}
			cs, err := app.Todos.AddChild(ctx, parentID)
			if err != nil {
				return err
			}
			child, ok := service.NewChild(cs)
			if !ok {
				return errors.New("no child was created")
			}
			if name != "" && name != child.Name {
				child.Name = name
				if _, err := app.Todos.Upsert(ctx, []domain.Record{child}); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", child.Name, child.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name for the new child")

	return cmd
}

func newRemoveCmd(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"remove"},
		Short:   "Delete a todo and everything under it",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := resolveID(ctx, app, args[0])
			if err != nil {
				return err
			}
			rec, err := app.Todos.Get(ctx, id)
			if err != nil {
				return err
			}

			if !yes && app.interactive() {
				confirmed := false
				title := fmt.Sprintf("Delete %q and all of its children?", rec.Name)
				if err := confirmForm(title, &confirmed).Run(); err != nil {
					return err
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			cs, err := app.Todos.Delete(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s: %s\n", rec.Name, formatter.FormatChangeSummary(cs))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

type actionFunc func(s service.TodoService, ctx context.Context, id string) (domain.ChangeSet, error)

func newActionCmd(app *App, use, short, verb string, fn actionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := resolveID(ctx, app, args[0])
			if err != nil {
				return err
			}
			cs, err := fn(app.Todos, ctx, id)
			if err != nil {
				return err
			}
			rec, err := app.Todos.Get(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", verb, rec.Name, formatter.FormatChangeSummary(cs))
			return nil
		},
	}
}
