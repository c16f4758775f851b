package testutil

import (
	"time"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/google/uuid"
)

// Now is the fixed clock used across fixtures.
var Now = time.Date(2014, 2, 3, 11, 22, 33, 0, time.UTC)

// Clock returns a func that always reports Now.
func Clock() func() time.Time {
	return func() time.Time { return Now }
}

type RecordOption func(*domain.Record)

func WithID(id string) RecordOption {
	return func(r *domain.Record) {
		r.ID = id
	}
}

func WithParent(id string) RecordOption {
	return func(r *domain.Record) {
		r.Parent = id
	}
}

func WithEstimate(d time.Duration) RecordOption {
	return func(r *domain.Record) {
		r.EstimateTime = d
	}
}

func WithCompleted() RecordOption {
	return func(r *domain.Record) {
		r.Completed = true
	}
}

func WithAttribute(key, value string) RecordOption {
	return func(r *domain.Record) {
		if r.Attributes == nil {
			r.Attributes = make(map[string]string)
		}
		r.Attributes[key] = value
	}
}

// WithTimeRecord appends an interval starting at start. A zero d leaves it
// open.
func WithTimeRecord(start time.Time, d time.Duration) RecordOption {
	return func(r *domain.Record) {
		tr := domain.TimeRecord{Start: start}
		if d > 0 {
			end := start.Add(d)
			tr.End = &end
		}
		r.TimeRecords = append(r.TimeRecords, tr)
	}
}

// NewTestRecord builds a top-level record with a random id.
func NewTestRecord(name string, opts ...RecordOption) domain.Record {
	r := domain.Record{
		ID:           uuid.New().String(),
		Name:         name,
		EstimateTime: 30 * time.Minute,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}
