package domain

import (
	"fmt"
	"strings"
	"time"
)

// Record is the flat, serializable form of a todo exchanged between
// replicas and written to storage. Children are not embedded; a child points
// at its parent through Parent, and an empty Parent marks a top-level todo.
type Record struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	EstimateTime time.Duration     `json:"estimateTime"`
	Parent       string            `json:"parent,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
	TimeRecords  []TimeRecord      `json:"timeRecords,omitempty"`
	Completed    bool              `json:"completed"`
}

// Validate rejects records that cannot be applied to any tree.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("record has no id: %w", ErrMalformedRecord)
	}
	if r.Parent == r.ID {
		return fmt.Errorf("record %s is its own parent: %w", r.ID, ErrMalformedRecord)
	}
	return nil
}

// Equal compares every field. Attributes compare as unordered pairs and time
// records compare in order.
func (r Record) Equal(o Record) bool {
	if r.ID != o.ID || r.Name != o.Name || r.EstimateTime != o.EstimateTime ||
		r.Parent != o.Parent || r.Completed != o.Completed {
		return false
	}
	if !NewAttributes(r.Attributes).Equal(NewAttributes(o.Attributes)) {
		return false
	}
	if len(r.TimeRecords) != len(o.TimeRecords) {
		return false
	}
	for i := range r.TimeRecords {
		if !r.TimeRecords[i].Equal(o.TimeRecords[i]) {
			return false
		}
	}
	return true
}

// PhantomName is the placeholder name given to a parent synthesized before
// its own record has arrived.
func PhantomName(id string) string {
	return "temp parent: " + id
}

// PhantomRecord is the record used to stand in for an unknown parent id.
func PhantomRecord(id string) Record {
	return Record{ID: id, Name: PhantomName(id)}
}
