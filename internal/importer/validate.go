package importer

import (
	"fmt"
	"strings"
	"time"
)

// ValidateOutline checks the outline for errors before conversion.
// Returns a slice of all validation errors found.
func ValidateOutline(schema *OutlineSchema) []error {
	var errs []error

	if len(schema.Todos) == 0 {
		errs = append(errs, fmt.Errorf("todos: at least one todo is required"))
	}
	if d := schema.Defaults; d != nil {
		errs = append(errs, validateEstimate("defaults.estimate", d.Estimate)...)
		errs = append(errs, validateAttributes("defaults.attributes", d.Attributes)...)
	}

	refs := make(map[string]bool)
	for i := range schema.Todos {
		errs = append(errs, validateTodo(fmt.Sprintf("todos[%d]", i), &schema.Todos[i], refs)...)
	}

	return errs
}

func validateTodo(prefix string, t *TodoImport, refs map[string]bool) []error {
	var errs []error

	if t.Ref != "" {
		if strings.TrimSpace(t.Ref) != t.Ref {
			errs = append(errs, fmt.Errorf("%s.ref: %q has surrounding whitespace", prefix, t.Ref))
		}
		if refs[t.Ref] {
			errs = append(errs, fmt.Errorf("%s.ref: duplicate ref %q", prefix, t.Ref))
		}
		refs[t.Ref] = true
	}

	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", prefix))
	}

	// A todo with children derives its estimate and completion from them.
	if len(t.Children) > 0 {
		if t.Estimate != "" {
			errs = append(errs, fmt.Errorf("%s.estimate: not allowed on a todo with children", prefix))
		}
		if t.Completed {
			errs = append(errs, fmt.Errorf("%s.completed: not allowed on a todo with children", prefix))
		}
	} else {
		errs = append(errs, validateEstimate(prefix+".estimate", t.Estimate)...)
	}

	errs = append(errs, validateAttributes(prefix+".attributes", t.Attributes)...)

	for i := range t.Children {
		errs = append(errs, validateTodo(fmt.Sprintf("%s.children[%d]", prefix, i), &t.Children[i], refs)...)
	}

	return errs
}

func validateEstimate(field, value string) []error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q (expected e.g. 45m or 1h30m)", field, value)}
	}
	if d < 0 {
		return []error{fmt.Errorf("%s: %q must not be negative", field, value)}
	}
	return nil
}

func validateAttributes(field string, attrs map[string]string) []error {
	var errs []error
	for k := range attrs {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Errorf("%s: empty key", field))
		}
	}
	return errs
}
