package domain

import (
	"encoding/json"
	"sort"
)

type attribute struct {
	key   string
	value string
}

// Attributes is an immutable string map kept sorted by key. Every write
// returns a new value, so an Attributes can be shared between a todo and
// the records produced from it.
type Attributes struct {
	entries []attribute
}

// NewAttributes copies m into an Attributes value.
func NewAttributes(m map[string]string) Attributes {
	if len(m) == 0 {
		return Attributes{}
	}
	entries := make([]attribute, 0, len(m))
	for k, v := range m {
		entries = append(entries, attribute{key: k, value: v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	return Attributes{entries: entries}
}

func (a Attributes) Len() int {
	return len(a.entries)
}

func (a Attributes) search(key string) (int, bool) {
	i := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].key >= key })
	return i, i < len(a.entries) && a.entries[i].key == key
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (string, bool) {
	i, ok := a.search(key)
	if !ok {
		return "", false
	}
	return a.entries[i].value, true
}

// With returns a copy of a with key set to value.
func (a Attributes) With(key, value string) Attributes {
	i, ok := a.search(key)
	entries := make([]attribute, 0, len(a.entries)+1)
	entries = append(entries, a.entries[:i]...)
	entries = append(entries, attribute{key: key, value: value})
	if ok {
		i++
	}
	entries = append(entries, a.entries[i:]...)
	return Attributes{entries: entries}
}

// Without returns a copy of a with key removed.
func (a Attributes) Without(key string) Attributes {
	i, ok := a.search(key)
	if !ok {
		return a
	}
	entries := make([]attribute, 0, len(a.entries)-1)
	entries = append(entries, a.entries[:i]...)
	entries = append(entries, a.entries[i+1:]...)
	return Attributes{entries: entries}
}

// Keys returns the keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, len(a.entries))
	for i, e := range a.entries {
		keys[i] = e.key
	}
	return keys
}

// Map returns a fresh map holding the same pairs. Empty attributes yield nil.
func (a Attributes) Map() map[string]string {
	if len(a.entries) == 0 {
		return nil
	}
	m := make(map[string]string, len(a.entries))
	for _, e := range a.entries {
		m[e.key] = e.value
	}
	return m
}

// Equal compares both sets of pairs regardless of insertion order.
func (a Attributes) Equal(b Attributes) bool {
	if len(a.entries) != len(b.entries) {
		return false
	}
	for i := range a.entries {
		if a.entries[i] != b.entries[i] {
			return false
		}
	}
	return true
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	m := a.Map()
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*a = NewAttributes(m)
	return nil
}
