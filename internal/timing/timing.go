// Package timing collects the per-task timing array of spec.md §4.5/§6 —
// sorted by start time, each entry {name, starttime, duration} — and,
// when timing is enabled on rank 0, hands it to a Sink shaped like the
// broker's KVS (the broker's actual KVS RPC is outside this module's
// external-interface contract; see internal/broker).
package timing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hokaccha/go-prettyjson"
)

// Record is one entry of the timing array committed after a run.
type Record struct {
	Name      string  `json:"name"`
	StartTime float64 `json:"starttime"`
	Duration  float64 `json:"duration"`
}

// Sink commits a finished run's timing array somewhere, analogous to a
// KVS put under a well-known key (spec.md §6).
type Sink interface {
	Commit(ctx context.Context, key string, records []Record) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, key string, records []Record) error

func (f SinkFunc) Commit(ctx context.Context, key string, records []Record) error {
	return f(ctx, key, records)
}

// DefaultKey is the well-known KVS key timing arrays are committed under.
const DefaultKey = "modprobe.timing"

// Pretty renders records as indented, colorized JSON via go-prettyjson,
// for verbose/debug output ahead of committing them to a Sink.
func Pretty(records []Record) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshaling timing records: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	out, err := prettyjson.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("pretty-printing timing records: %w", err)
	}
	return string(out), nil
}
