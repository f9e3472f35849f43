// Package errors is a drop-in replacement for the standard errors package that
// ensures errors carry stack traces.  It delegates to github.com/pkg/errors for
// stack capture and to the standard library for inspection (Is/As/Unwrap).
//
// Errors that cross a package boundary without being wrapped should be passed
// through EnsureStack so that the first storemill frame that saw the error is
// recorded.
package errors

import (
	stderrors "errors"

	pkgerrors "github.com/pkg/errors"
)

// stackTracer is implemented by errors produced by github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// Frame is a single frame of an error's stack trace.
type Frame = pkgerrors.Frame

// New returns a new error with the supplied message and a stack trace.
func New(message string) error {
	return pkgerrors.New(message)
}

// Errorf formats an error and records a stack trace.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// Wrap annotates err with a message and a stack trace.  Returns nil if err is
// nil.
func Wrap(err error, message string) error {
	return pkgerrors.Wrap(err, message)
}

// Wrapf annotates err with a formatted message and a stack trace.  Returns nil
// if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// EnsureStack adds a stack trace to err if it doesn't already have one.  Use
// this on errors returned by code outside of storemill.
func EnsureStack(err error) error {
	if err == nil {
		return nil
	}
	var st stackTracer
	if stderrors.As(err, &st) {
		return err
	}
	return pkgerrors.WithStack(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err, if any.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// JoinInto joins err into *dst, preserving any error already there.
func JoinInto(dst *error, err error) {
	if err == nil {
		return
	}
	if *dst == nil {
		*dst = err
		return
	}
	*dst = stderrors.Join(*dst, err)
}

// ForEachStackFrame calls cb for each frame of the deepest stack trace in
// err's chain.
func ForEachStackFrame(err error, cb func(Frame)) {
	var deepest stackTracer
	for e := err; e != nil; e = stderrors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			deepest = st
		}
	}
	if deepest == nil {
		return
	}
	for _, f := range deepest.StackTrace() {
		cb(f)
	}
}
