// Package errutil holds sentinel errors shared across packages.
package errutil

import "github.com/storemill/storemill/src/internal/errors"

// ErrBreak is an error used to break out of call back based iteration; it
// should be swallowed by iteration functions and treated as successful
// termination.
var ErrBreak = errors.New("BREAK")
