package broker

import "errors"

// ErrModuleNotFound is the errno the real broker returns from
// module.remove when the named module isn't loaded. The module body's
// remove path (task.ModuleBody.Run) swallows it so teardown stays
// idempotent (spec.md §4.6 step 8).
var ErrModuleNotFound = errors.New("module not found")
