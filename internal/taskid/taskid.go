// Package taskid mints string identifiers for a solve/build/execute run
// and for its individual task invocations. No other package of this
// module calls it: log lines and timing.Record carry no such identifier.
package taskid

import "github.com/google/uuid"

// NewRun mints a fresh run identifier, scoping one solve→build→execute or
// removal-plan→execute cycle.
func NewRun() string { return "run_" + uuid.New().String() }

// NewInvocation mints a fresh identifier for one task's execution within
// a run.
func NewInvocation() string { return "task_" + uuid.New().String() }
