// Package storage holds the destinations the organized corpus is written to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Writer stores a file under a corpus-relative, slash-separated path.
type Writer interface {
	WriteFile(ctx context.Context, rel string, data []byte) error
}

// Remover deletes a file written earlier. A missing file is not an error.
type Remover interface {
	RemoveFile(ctx context.Context, rel string) error
}

// ContentTypeFor returns the MIME type used when storing rel.
func ContentTypeFor(rel string) string {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// FSSink writes corpus files below a local root directory.
type FSSink struct {
	root string
}

// NewFSSink creates a sink rooted at dir. The directory is created on first write.
func NewFSSink(dir string) *FSSink {
	return &FSSink{root: dir}
}

// Root returns the sink's root directory.
func (s *FSSink) Root() string {
	return s.root
}

// WriteFile writes data to root/rel, replacing any existing file atomically.
func (s *FSSink) WriteFile(ctx context.Context, rel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return fmt.Errorf("path %q escapes the output root", rel)
	}
	target := filepath.Join(s.root, local)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", rel, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", rel, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename %s: %w", rel, err)
	}

	return nil
}

// RemoveFile deletes root/rel if it exists.
func (s *FSSink) RemoveFile(ctx context.Context, rel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return fmt.Errorf("path %q escapes the output root", rel)
	}
	if err := os.Remove(filepath.Join(s.root, local)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	return nil
}

// EnsureDirs creates the given corpus-relative directories. Existing ones are reused.
func (s *FSSink) EnsureDirs(ctx context.Context, rels ...string) error {
	for _, rel := range append([]string{"."}, rels...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		local := filepath.FromSlash(rel)
		if !filepath.IsLocal(local) {
			return fmt.Errorf("path %q escapes the output root", rel)
		}
		if err := os.MkdirAll(filepath.Join(s.root, local), 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", rel, err)
		}
	}
	return nil
}

func (s *FSSink) String() string {
	return s.root
}

// DirEnsurer is implemented by sinks with a real directory tree.
type DirEnsurer interface {
	EnsureDirs(ctx context.Context, rels ...string) error
}

// MirrorSink writes every file to a primary sink and then to each mirror.
// A primary failure stops the write; mirror failures are collected.
type MirrorSink struct {
	primary Writer
	mirrors []Writer
}

// NewMirrorSink creates a sink writing to primary and all mirrors.
func NewMirrorSink(primary Writer, mirrors ...Writer) *MirrorSink {
	return &MirrorSink{primary: primary, mirrors: mirrors}
}

// WriteFile writes data to the primary and then to the mirrors.
func (m *MirrorSink) WriteFile(ctx context.Context, rel string, data []byte) error {
	if err := m.primary.WriteFile(ctx, rel, data); err != nil {
		return err
	}

	var errs []error
	for _, w := range m.mirrors {
		if err := w.WriteFile(ctx, rel, data); err != nil {
			errs = append(errs, fmt.Errorf("mirror %v: %w", w, err))
		}
	}
	return errors.Join(errs...)
}

// RemoveFile deletes rel from every sink that supports removal. Like
// WriteFile, a primary failure stops and mirror failures are collected.
func (m *MirrorSink) RemoveFile(ctx context.Context, rel string) error {
	if r, ok := m.primary.(Remover); ok {
		if err := r.RemoveFile(ctx, rel); err != nil {
			return err
		}
	}

	var errs []error
	for _, w := range m.mirrors {
		r, ok := w.(Remover)
		if !ok {
			continue
		}
		if err := r.RemoveFile(ctx, rel); err != nil {
			errs = append(errs, fmt.Errorf("mirror %v: %w", w, err))
		}
	}
	return errors.Join(errs...)
}

// EnsureDirs creates directories on every sink that has them.
func (m *MirrorSink) EnsureDirs(ctx context.Context, rels ...string) error {
	for _, w := range append([]Writer{m.primary}, m.mirrors...) {
		if d, ok := w.(DirEnsurer); ok {
			if err := d.EnsureDirs(ctx, rels...); err != nil {
				return err
			}
		}
	}
	return nil
}
