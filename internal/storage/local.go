package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// LocalStore keeps blobs as files under a root directory.
type LocalStore struct {
	root string
	link func(oldname, newname string) error
}

// NewLocalStore creates the root directory when missing.
func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalStore{root: root, link: os.Link}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || cleaned == ".." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, cleaned), nil
}

// Put writes to a temp file next to the target and links it into place, so readers never see
// a partial blob and an existing key is never overwritten. Filesystems without hard links get
// an exclusive create plus copy instead.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (written int64, err error) {
	target, err := s.path(key)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("create blob dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmp != nil {
			_ = tmp.Close()
		}
		_ = os.Remove(tmpName)
	}()

	written, err = io.Copy(tmp, &contextReader{ctx: ctx, r: r})
	if err != nil {
		return 0, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		tmp = nil
		return 0, fmt.Errorf("close blob: %w", err)
	}
	tmp = nil

	if err := s.link(tmpName, target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, ErrBlobExists
		}
		if !linkUnsupported(err) {
			return 0, fmt.Errorf("link blob: %w", err)
		}
		if err := copyExclusive(tmpName, target); err != nil {
			return 0, err
		}
	}
	return written, nil
}

func linkUnsupported(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) || errors.Is(err, syscall.EPERM)
}

// copyExclusive copies src to a target that must not exist yet. A failed copy removes the target.
func copyExclusive(src, target string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open temp blob: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrBlobExists
		}
		return fmt.Errorf("create blob: %w", err)
	}
	defer func() {
		if closeErr := out.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close blob: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(target)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy blob: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync blob: %w", err)
	}
	return nil
}

func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	target, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat blob: %w", err)
	}
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	target, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// contextReader stops a long copy once the request context is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
