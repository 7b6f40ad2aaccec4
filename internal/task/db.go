package task

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced task/service name is unknown
// to the DB, or when set_alternative names a provider that doesn't exist
// (spec.md §7).
var ErrNotFound = errors.New("not found")

// DB is the task database of spec.md §4.1: a mapping from string key
// (task name or provided-service alias) to an ordered list of Task
// entries, where the tail of the list is the currently selected
// provider.
type DB struct {
	entries map[string][]*Task
}

// NewDB returns an empty task database.
func NewDB() *DB {
	return &DB{entries: make(map[string][]*Task)}
}

// Add appends task to the list under its own name and under each of its
// Provides aliases.
func (db *DB) Add(t *Task) {
	db.entries[t.Name] = append(db.entries[t.Name], t)
	for _, alias := range t.Provides {
		db.entries[alias] = append(db.entries[alias], t)
	}
}

// Get returns the currently selected (tail) task for service.
func (db *DB) Get(service string) (*Task, error) {
	lst := db.entries[service]
	if len(lst) == 0 {
		return nil, fmt.Errorf("%s: %w", service, ErrNotFound)
	}
	return lst[len(lst)-1], nil
}

// Has reports whether service resolves to at least one provider.
func (db *DB) Has(service string) bool {
	return len(db.entries[service]) > 0
}

// SetAlternative rotates the entry named name to the tail of service's
// list, making it the current provider. If name is "", the service is
// disabled instead (spec.md §4.1).
func (db *DB) SetAlternative(service, name string) error {
	if name == "" {
		db.Disable(service)
		return nil
	}
	lst := db.entries[service]
	for i, t := range lst {
		if t.Name == name {
			lst = append(lst[:i], lst[i+1:]...)
			lst = append(lst, t)
			db.entries[service] = lst
			return nil
		}
	}
	return fmt.Errorf("no module %s provides %s: %w", name, service, ErrNotFound)
}

// Disable marks every entry under service as disabled.
func (db *DB) Disable(service string) {
	for _, t := range db.entries[service] {
		t.Disabled = true
	}
}

// AnyProvides reports whether any currently-selected, non-disabled task
// named in names provides target, i.e. target equals its Name or one of
// its Provides aliases (spec.md §4.1, used by needs-pruning).
func (db *DB) AnyProvides(names []string, target string) bool {
	for _, n := range names {
		t, err := db.Get(n)
		if err != nil {
			continue
		}
		if t.Disabled {
			continue
		}
		if t.Name == target {
			return true
		}
		for _, p := range t.Provides {
			if p == target {
				return true
			}
		}
	}
	return false
}
