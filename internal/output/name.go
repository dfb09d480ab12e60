// Package output names contact-card images and writes them to a sink.
package output

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smileynet/qrcard/internal/directory"
)

// Sentinel errors for caller-checkable conditions.
var (
	// ErrEnsure marks a destination that could not be prepared. It is fatal to a batch.
	ErrEnsure = errors.New("output: cannot prepare destination")
	// ErrWrite marks a single artifact that could not be written.
	ErrWrite = errors.New("output: write failed")
	// ErrDuplicate marks a record whose file name is already taken in this batch.
	ErrDuplicate = errors.New("output: duplicate output path")
	// ErrInvalidName marks a record that cannot produce a usable file name.
	ErrInvalidName = errors.New("output: invalid file name")
)

// CollisionPolicy decides what happens when two records map to the same file name.
type CollisionPolicy string

const (
	// CollisionSuffix appends the record identity to later duplicates.
	CollisionSuffix CollisionPolicy = "suffix"
	// CollisionFail fails later duplicates with ErrDuplicate.
	CollisionFail CollisionPolicy = "fail"
)

// ParseCollisionPolicy accepts suffix or fail.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch p := CollisionPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case CollisionSuffix, CollisionFail:
		return p, nil
	}
	return "", fmt.Errorf("output: unknown collision policy %q (want suffix or fail)", s)
}

// FileName returns "{display} - {given} {surname} QR vCard.{ext}" with
// characters that are unsafe in file names replaced by underscores.
func FileName(r directory.Record, ext string) (string, error) {
	return fileName(r, ext, "")
}

func fileName(r directory.Record, ext, suffix string) (string, error) {
	if strings.TrimSpace(r.GivenName) == "" || strings.TrimSpace(r.Surname) == "" {
		return "", fmt.Errorf("%w: record %q needs a given name and surname", ErrInvalidName, r.Identity())
	}
	base := fmt.Sprintf("%s - %s %s QR vCard", r.DisplayName, r.GivenName, r.Surname)
	if suffix != "" {
		base += " (" + suffix + ")"
	}
	return sanitize(base) + "." + ext, nil
}

// sanitize replaces path separators, characters reserved on common
// filesystems, and control characters.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return '_'
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		}
		return r
	}, s)
}

// Namer assigns unique file names within one batch. Names must be assigned
// in source order so the outcome does not depend on worker scheduling.
// A Namer is not safe for concurrent use.
type Namer struct {
	policy CollisionPolicy
	ext    string
	taken  map[string]bool
}

// NewNamer creates a Namer for files with extension ext.
// An empty policy means CollisionSuffix.
func NewNamer(policy CollisionPolicy, ext string) *Namer {
	if policy == "" {
		policy = CollisionSuffix
	}
	return &Namer{policy: policy, ext: ext, taken: make(map[string]bool)}
}

// Assign returns the file name for r and reserves it.
func (n *Namer) Assign(r directory.Record) (string, error) {
	name, err := fileName(r, n.ext, "")
	if err != nil {
		return "", err
	}
	if n.reserve(name) {
		return name, nil
	}
	if n.policy == CollisionFail {
		return "", fmt.Errorf("%w: %q (record %q)", ErrDuplicate, name, r.Identity())
	}

	id := r.Identity()
	for i := 1; ; i++ {
		suffix := id
		if i > 1 {
			suffix = fmt.Sprintf("%s %d", id, i)
		}
		name, err = fileName(r, n.ext, suffix)
		if err != nil {
			return "", err
		}
		if n.reserve(name) {
			return name, nil
		}
	}
}

// reserve reports whether name was free. Names are compared
// case-insensitively since common filesystems fold case.
func (n *Namer) reserve(name string) bool {
	key := strings.ToLower(name)
	if n.taken[key] {
		return false
	}
	n.taken[key] = true
	return true
}
