package importer

import (
	"fmt"
	"maps"
	"time"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/google/uuid"
)

// Convert flattens a validated outline into records in pre-order, ready for
// TodoService.Upsert. Top-level todos are placed under parentID, or at the
// top level when it is empty. Call ValidateOutline first; Convert assumes
// the outline is valid.
func Convert(schema *OutlineSchema, parentID string) ([]domain.Record, error) {
	var defaultEstimate time.Duration
	var defaultAttrs map[string]string
	if d := schema.Defaults; d != nil {
		if d.Estimate != "" {
			est, err := time.ParseDuration(d.Estimate)
			if err != nil {
				return nil, fmt.Errorf("parsing defaults.estimate: %w", err)
			}
			defaultEstimate = est
		}
		defaultAttrs = d.Attributes
	}

	var records []domain.Record
	var visit func(t TodoImport, parent string) error
	visit = func(t TodoImport, parent string) error {
		id := t.Ref
		if id == "" {
			id = uuid.New().String()
		}

		rec := domain.Record{
			ID:     id,
			Name:   t.Name,
			Parent: parent,
		}

		if len(defaultAttrs) > 0 || len(t.Attributes) > 0 {
			rec.Attributes = make(map[string]string, len(defaultAttrs)+len(t.Attributes))
			maps.Copy(rec.Attributes, defaultAttrs)
			maps.Copy(rec.Attributes, t.Attributes)
		}

		if len(t.Children) == 0 {
			rec.EstimateTime = defaultEstimate
			if t.Estimate != "" {
				est, err := time.ParseDuration(t.Estimate)
				if err != nil {
					return fmt.Errorf("parsing estimate of %q: %w", t.Name, err)
				}
				rec.EstimateTime = est
			}
			rec.Completed = t.Completed
		}

		records = append(records, rec)
		for _, c := range t.Children {
			if err := visit(c, id); err != nil {
				return err
			}
		}
		return nil
	}

	for _, t := range schema.Todos {
		if err := visit(t, parentID); err != nil {
			return nil, err
		}
	}
	return records, nil
}
