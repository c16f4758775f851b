package domain

// ChangeSet describes the net effect of a mutation: records to upsert and
// records to delete. Every mutating tree operation returns one, and a
// replica reproduces the mutation by applying it.
type ChangeSet struct {
	Upsert []Record `json:"upsert,omitempty"`
	Delete []Record `json:"delete,omitempty"`
}

// Merge concatenates both sides of c and o into a new ChangeSet. Entries are
// not deduplicated; when the result is applied, later entries for an id win.
func (c ChangeSet) Merge(o ChangeSet) ChangeSet {
	var out ChangeSet
	out.Upsert = append(append(out.Upsert, c.Upsert...), o.Upsert...)
	out.Delete = append(append(out.Delete, c.Delete...), o.Delete...)
	return out
}

func (c *ChangeSet) AddUpsert(records ...Record) {
	c.Upsert = append(c.Upsert, records...)
}

func (c *ChangeSet) AddDelete(records ...Record) {
	c.Delete = append(c.Delete, records...)
}

func (c ChangeSet) IsEmpty() bool {
	return len(c.Upsert) == 0 && len(c.Delete) == 0
}

// UpsertIDs returns the ids on the upsert side in order, duplicates included.
func (c ChangeSet) UpsertIDs() []string {
	return recordIDs(c.Upsert)
}

// DeleteIDs returns the ids on the delete side in order, duplicates included.
func (c ChangeSet) DeleteIDs() []string {
	return recordIDs(c.Delete)
}

func recordIDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
