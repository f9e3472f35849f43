package errors

import "io"

// Close closes c and joins any close error into *retErr with the provided
// annotation.  It is intended to be used in a defer:
//
//	defer errors.Close(&retErr, w, "close index stream")
func Close(retErr *error, c io.Closer, format string, args ...interface{}) {
	if err := c.Close(); err != nil {
		JoinInto(retErr, Wrapf(err, format, args...))
	}
}

// Invoke runs f and joins any error into *retErr with the provided annotation.
// Like Close, but for arbitrary cleanup functions.
func Invoke(retErr *error, f func() error, format string, args ...interface{}) {
	if err := f(); err != nil {
		JoinInto(retErr, Wrapf(err, format, args...))
	}
}
