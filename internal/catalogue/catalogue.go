// Package catalogue parses the module catalogue described in spec.md §6:
// a TOML document whose top-level "modules" array-of-tables registers one
// task per broker module, plus a FLUX_MODPROBE_PATH-driven scan of
// modules.d/*.toml overlay files layered on top of it.
package catalogue

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/fluxrm/modprobe/internal/rank"
	"github.com/fluxrm/modprobe/internal/task"
)

// Entry is one [[modules]] table of a catalogue file.
type Entry struct {
	Name           string   `toml:"name"`
	Args           []string `toml:"args"`
	Ranks          string   `toml:"ranks"`
	Provides       []string `toml:"provides"`
	Requires       []string `toml:"requires"`
	Needs          []string `toml:"needs"`
	Before         []string `toml:"before"`
	After          []string `toml:"after"`
	RequiresAttrs  []string `toml:"requires-attrs"`
	RequiresConfig []string `toml:"requires-config"`
}

type document struct {
	Modules []Entry `toml:"modules"`
}

// Parse decodes a single catalogue document, rejecting unknown keys with
// rank.ErrInvalidArgument (spec.md §6 "Unknown keys are rejected with a
// diagnostic").
func Parse(data []byte) ([]Entry, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing catalogue: %w: %v", rank.ErrInvalidArgument, err)
	}
	for i := range doc.Modules {
		if doc.Modules[i].Name == "" {
			return nil, fmt.Errorf("catalogue entry %d missing required field \"name\": %w", i, rank.ErrInvalidArgument)
		}
	}
	return doc.Modules, nil
}

// ParseFile reads and parses path.
func ParseFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalogue %s: %w", path, err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Overlays scans FLUX_MODPROBE_PATH (a colon-separated directory list) for
// modules.d/*.toml files, in path order and lexical filename order within
// each directory, per spec.md §6.
func Overlays(modprobePath string) ([]string, error) {
	var files []string
	for _, dir := range strings.Split(modprobePath, ":") {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, "modules.d", "*.toml"))
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	return files, nil
}

// Load parses the catalogue at path plus every modules.d/*.toml overlay
// reachable from modprobePath, in order: base catalogue first, then
// overlays in FLUX_MODPROBE_PATH order.
func Load(path, modprobePath string) ([]Entry, error) {
	var entries []Entry
	if path != "" {
		base, err := ParseFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("catalogue %s: %w", path, fs.ErrNotExist)
			}
			return nil, err
		}
		entries = append(entries, base...)
	}
	overlays, err := Overlays(modprobePath)
	if err != nil {
		return nil, err
	}
	for _, f := range overlays {
		more, err := ParseFile(f)
		if err != nil {
			return nil, err
		}
		entries = append(entries, more...)
	}
	return entries, nil
}

// Register converts entries into Tasks and adds each to db, rejecting a
// name registered more than once (spec.md §7 "duplicate task
// registration") and a provides alias that collides with an existing
// task's own name (spec.md §7 "bad provides target").
func Register(db *task.DB, entries []Entry) error {
	primaryNames := make(map[string]bool, len(entries))
	for _, e := range entries {
		primaryNames[e.Name] = true
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.Name] {
			return fmt.Errorf("duplicate task registration %q: %w", e.Name, rank.ErrInvalidArgument)
		}
		seen[e.Name] = true
		for _, p := range e.Provides {
			if p != e.Name && primaryNames[p] {
				return fmt.Errorf("module %q provides %q, which is already a task name: %w", e.Name, p, rank.ErrInvalidArgument)
			}
		}

		ranks, err := rank.Parse(e.Ranks)
		if err != nil {
			return fmt.Errorf("module %q: %w", e.Name, err)
		}

		opts := []task.Option{
			task.WithProvides(e.Provides...),
			task.WithRequires(e.Requires...),
			task.WithNeeds(e.Needs...),
			task.WithBefore(e.Before...),
			task.WithAfter(e.After...),
			task.WithRanks(ranks),
			task.WithRequiresAttrs(e.RequiresAttrs...),
			task.WithRequiresConfig(e.RequiresConfig...),
		}
		db.Add(task.New(e.Name, task.NewLoadBody(e.Name, e.Args), opts...))
	}
	return nil
}
