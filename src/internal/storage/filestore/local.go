package filestore

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/storemill/storemill/src/internal/errors"
	"github.com/storemill/storemill/src/internal/log"
	"go.uber.org/zap"
)

// NewLocalClient returns a Client that stores files on the local file system
// under rootDir.
func NewLocalClient(rootDir string) (Client, error) {
	c := &localClient{
		rootDir: filepath.Clean(rootDir),
	}
	if c.rootDir == "" || c.rootDir == "/" || c.rootDir == "." {
		return nil, errors.Errorf("refusing to root a local file store at %q", rootDir)
	}
	if err := os.MkdirAll(c.rootDir, 0o755); err != nil {
		return nil, errors.EnsureStack(err)
	}
	return c, nil
}

type localClient struct {
	rootDir string
}

func (c *localClient) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	log.Debug(ctx, "create", zap.String("name", name))
	p, err := c.pathFor(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.EnsureStack(err)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	return f, nil
}

func (c *localClient) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	log.Debug(ctx, "open", zap.String("name", name))
	p, err := c.pathFor(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, c.transformError(err, name)
	}
	return f, nil
}

func (c *localClient) Rename(ctx context.Context, src, dst string) error {
	log.Debug(ctx, "rename", zap.String("src", src), zap.String("dst", dst))
	srcPath, err := c.pathFor(src)
	if err != nil {
		return err
	}
	dstPath, err := c.pathFor(dst)
	if err != nil {
		return err
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return c.transformError(err, src)
	}
	return nil
}

func (c *localClient) MkdirAll(ctx context.Context, dir string) error {
	p, err := c.pathFor(dir)
	if err != nil {
		return err
	}
	// MkdirAll succeeds if the directory already exists, so concurrent
	// creation by sibling workers is benign.
	return errors.EnsureStack(os.MkdirAll(p, 0o755))
}

func (c *localClient) Exists(ctx context.Context, name string) (bool, error) {
	p, err := c.pathFor(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.EnsureStack(err)
	}
	return true, nil
}

func (c *localClient) Delete(ctx context.Context, name string) error {
	log.Debug(ctx, "delete", zap.String("name", name))
	p, err := c.pathFor(name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		err = nil
	}
	return errors.EnsureStack(err)
}

func (c *localClient) Walk(ctx context.Context, dir string, cb func(string) error) error {
	p, err := c.pathFor(dir)
	if err != nil {
		return err
	}
	err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.rootDir, path)
		if err != nil {
			return errors.EnsureStack(err)
		}
		return cb(filepath.ToSlash(rel))
	})
	return c.transformError(err, dir)
}

// pathFor maps a store-relative name to a local path, rejecting names that
// escape the root.
func (c *localClient) pathFor(name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", errors.Errorf("name %q escapes the store root", name)
	}
	return filepath.Join(c.rootDir, cleaned), nil
}

func (c *localClient) transformError(err error, name string) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) || strings.HasSuffix(err.Error(), ": no such file or directory") {
		return errors.EnsureStack(&NotExistError{Root: c.rootDir, Name: name})
	}
	return errors.EnsureStack(err)
}
