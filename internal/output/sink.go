package output

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink stores finished artifacts.
type Sink interface {
	// Ensure prepares the destination. It is idempotent and must complete
	// before the first Write.
	Ensure(ctx context.Context) error
	// Write stores data under name, replacing any existing artifact. A failed
	// Write leaves no partial artifact behind.
	Write(ctx context.Context, name string, data []byte) error
	// Location describes where name is stored, for reports.
	Location(name string) string
}

// Compile-time checks.
var (
	_ Sink = (*DirSink)(nil)
	_ Sink = DiscardSink{}
	_ Sink = (*BucketSink)(nil)
)

// DirSink writes artifacts into a local directory.
type DirSink struct {
	dir string
}

// NewDirSink creates a DirSink rooted at dir.
func NewDirSink(dir string) *DirSink {
	return &DirSink{dir: dir}
}

// Ensure creates the directory and its parents if needed.
func (s *DirSink) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrEnsure, s.dir, err)
	}
	return nil
}

// Write stores data through a temp file in the same directory, so the target
// either holds the complete new image or is left untouched.
func (s *DirSink) Write(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkName(name); err != nil {
		return err
	}
	target := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".qrcard-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, target, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrWrite, target, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %s: syncing: %v", ErrWrite, target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, target, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, target, err)
	}
	committed = true
	return nil
}

// Location returns the file path for name.
func (s *DirSink) Location(name string) string {
	return filepath.Join(s.dir, name)
}

// DiscardSink accepts every write and stores nothing. It backs dry runs.
type DiscardSink struct{}

func (DiscardSink) Ensure(ctx context.Context) error { return ctx.Err() }

func (DiscardSink) Write(ctx context.Context, name string, _ []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return checkName(name)
}

func (DiscardSink) Location(name string) string { return name }

// checkName rejects names that would escape the destination.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
