// Package filestore provides the durable file store that chunk artifacts are
// built in and published to.
//
// Paths are store-relative, slash-separated names.  The only publish primitive
// is Rename, which must be atomic with last-writer-wins semantics: concurrent
// renames to the same destination leave exactly one complete file, never an
// interleaving of both.
package filestore

import (
	"context"
	"fmt"
	"io"

	"github.com/storemill/storemill/src/internal/errors"
)

// Client is a durable file store.
type Client interface {
	// Create creates the named file and returns a writer that appends to it.
	// The caller must Close the writer on every exit path.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	// Open opens the named file for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Rename atomically moves src to dst, replacing any existing file at dst.
	Rename(ctx context.Context, src, dst string) error
	// MkdirAll creates the named directory along with any missing parents.
	// It succeeds if the directory already exists, including when a sibling
	// worker creates it concurrently.
	MkdirAll(ctx context.Context, dir string) error
	// Exists returns whether the named file exists.
	Exists(ctx context.Context, name string) (bool, error)
	// Delete removes the named file.  Deleting a nonexistent file is not an
	// error.
	Delete(ctx context.Context, name string) error
	// Walk calls cb with the name of every file under dir, in lexical order.
	Walk(ctx context.Context, dir string, cb func(name string) error) error
}

// NotExistError is returned when the named file does not exist in the store.
type NotExistError struct {
	Root string
	Name string
}

func (e *NotExistError) Error() string {
	return fmt.Sprintf("%s: no such file in store rooted at %s", e.Name, e.Root)
}

// IsNotExist returns whether err indicates a missing file.
func IsNotExist(err error) bool {
	if err == nil {
		return false
	}
	target := &NotExistError{}
	return errors.As(err, &target)
}
