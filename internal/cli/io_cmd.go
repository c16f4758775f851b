package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alexanderramin/todotree/internal/cli/formatter"
	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/importer"
	"github.com/spf13/cobra"
)

func newExportCmd(app *App) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every todo as a JSON array of records",
		Long: "Write every todo as a JSON array of records in parent-first order.\n" +
			"The output can be loaded into another store with `todotree import`.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := app.Todos.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if records == nil {
				records = []domain.Record{}
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer f.Close()
				w = f
			}

			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	var outline bool
	var parent string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Upsert records from a JSON array (\"-\" reads stdin)",
		Long: "Upsert records from a JSON array as written by `todotree export`.\n" +
			"With --outline, FILE is a nested outline in JSON or YAML instead.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var records []domain.Record
			var err error
			if outline {
				records, err = loadOutline(ctx, app, args[0], parent)
			} else {
				if parent != "" {
					return errors.New("--parent requires --outline")
				}
				records, err = loadRecords(cmd.InOrStdin(), args[0])
			}
			if err != nil {
				return err
			}

			cs, err := app.Todos.Upsert(ctx, records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records: %s\n", len(records), formatter.FormatChangeSummary(cs))
			return nil
		},
	}

	cmd.Flags().BoolVar(&outline, "outline", false, "FILE is a nested outline (JSON, or YAML by .yaml/.yml extension)")
	cmd.Flags().StringVar(&parent, "parent", "", "Place outline todos under this todo")

	return cmd
}

func loadRecords(stdin io.Reader, path string) ([]domain.Record, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var records []domain.Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}
	return records, nil
}

func loadOutline(ctx context.Context, app *App, path, parent string) ([]domain.Record, error) {
	schema, err := importer.LoadOutline(path)
	if err != nil {
		return nil, err
	}
	if errs := importer.ValidateOutline(schema); len(errs) > 0 {
		return nil, fmt.Errorf("invalid outline %s: %w", path, errors.Join(errs...))
	}

	parentID := ""
	if parent != "" {
		parentID, err = resolveID(ctx, app, parent)
		if err != nil {
			return nil, err
		}
	}
	return importer.Convert(schema, parentID)
}
