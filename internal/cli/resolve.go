package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexanderramin/todotree/internal/domain"
)

// resolveID accepts a full id or a unique prefix of one, as printed by
// `todotree list`.
func resolveID(ctx context.Context, app *App, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("todo id is required")
	}
	if _, err := app.Todos.Get(ctx, input); err == nil {
		return input, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	records, err := app.Todos.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, r := range records {
		if strings.HasPrefix(r.ID, input) {
			matches = append(matches, r.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("todo %q: %w", input, domain.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d matches)", input, len(matches))
	}
}
