package models

import (
	"fmt"
	"strings"
)

// SnapshotRef identifies an immutable snapshot in the content store.
// Format: <branch>:<sha256 hex>
//
// Snapshots are content addressed within their owning branch, so storing the
// same bytes twice on one branch yields the same ref while two branches never
// share one.
type SnapshotRef string

// NewSnapshotRef builds a ref from a branch name and a content digest.
func NewSnapshotRef(branch, digest string) SnapshotRef {
	return SnapshotRef(branch + ":" + digest)
}

// Parse splits the ref into its branch and digest.
func (r SnapshotRef) Parse() (branch, digest string, err error) {
	s := string(r)
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("invalid snapshot ref %q", s)
	}
	return s[:i], s[i+1:], nil
}

// Digest returns the content digest part of the ref, or "" if malformed.
func (r SnapshotRef) Digest() string {
	_, d, err := r.Parse()
	if err != nil {
		return ""
	}
	return d
}

// Branch returns the owning branch of the ref, or "" if malformed.
func (r SnapshotRef) Branch() string {
	b, _, err := r.Parse()
	if err != nil {
		return ""
	}
	return b
}

func (r SnapshotRef) String() string { return string(r) }
