package domain

import "time"

// TimeRecord is a single tracked interval. End is nil while the interval is
// still running.
type TimeRecord struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// IsRunning reports whether the interval is still open.
func (r TimeRecord) IsRunning() bool {
	return r.End == nil
}

// Stop returns a closed copy of r ending at end.
func (r TimeRecord) Stop(end time.Time) TimeRecord {
	return TimeRecord{Start: r.Start, End: &end}
}

// Elapsed returns the interval length, measuring an open interval up to now.
func (r TimeRecord) Elapsed(now time.Time) time.Duration {
	if r.End == nil {
		return now.Sub(r.Start)
	}
	return r.End.Sub(r.Start)
}

// Equal compares instants, ignoring location and monotonic readings.
func (r TimeRecord) Equal(o TimeRecord) bool {
	return r.key() == o.key()
}

type timeRecordKey struct {
	start int64
	end   int64
	open  bool
}

func (r TimeRecord) key() timeRecordKey {
	k := timeRecordKey{start: r.Start.UnixNano(), open: r.End == nil}
	if r.End != nil {
		k.end = r.End.UnixNano()
	}
	return k
}

// SameTimeRecords reports whether a and b hold the same intervals, ignoring
// order. Duplicates are counted.
func SameTimeRecords(a, b []TimeRecord) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[timeRecordKey]int, len(a))
	for _, r := range a {
		counts[r.key()]++
	}
	for _, r := range b {
		k := r.key()
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}

// TimeRecordCollection is the append-ordered interval log of one leaf todo.
// At most one interval is open at a time, and it is always the last one.
type TimeRecordCollection struct {
	records []TimeRecord
}

// NewTimeRecordCollection copies records into a new collection.
func NewTimeRecordCollection(records []TimeRecord) *TimeRecordCollection {
	c := &TimeRecordCollection{}
	c.Replace(records)
	return c
}

// Records returns a copy of the intervals in append order.
func (c *TimeRecordCollection) Records() []TimeRecord {
	return cloneTimeRecords(c.records)
}

func (c *TimeRecordCollection) Len() int {
	return len(c.records)
}

// IsRunning reports whether the last interval is open.
func (c *TimeRecordCollection) IsRunning() bool {
	return len(c.records) != 0 && c.records[len(c.records)-1].IsRunning()
}

// Start opens a new interval at now. No-op while running.
func (c *TimeRecordCollection) Start(now time.Time) {
	if c.IsRunning() {
		return
	}
	c.records = append(c.records, TimeRecord{Start: now})
}

// Stop closes the open interval at now. No-op while stopped.
func (c *TimeRecordCollection) Stop(now time.Time) {
	if !c.IsRunning() {
		return
	}
	last := len(c.records) - 1
	c.records[last] = c.records[last].Stop(now)
}

// ElapsedTime sums every interval, measuring the open one up to now.
func (c *TimeRecordCollection) ElapsedTime(now time.Time) time.Duration {
	var total time.Duration
	for _, r := range c.records {
		total += r.Elapsed(now)
	}
	return total
}

// Replace swaps the whole interval log for a copy of records.
func (c *TimeRecordCollection) Replace(records []TimeRecord) {
	c.records = cloneTimeRecords(records)
}

func cloneTimeRecords(records []TimeRecord) []TimeRecord {
	if len(records) == 0 {
		return nil
	}
	out := make([]TimeRecord, len(records))
	for i, r := range records {
		out[i] = TimeRecord{Start: r.Start}
		if r.End != nil {
			end := *r.End
			out[i].End = &end
		}
	}
	return out
}
