// Package store is the durability boundary of a project: content-addressed
// version snapshots, the one mutable working file per branch, and the
// project manifest.
//
// Layout under the project root:
//
//	.etabext/project.json                        manifest
//	.etabext/lock                                held while the manifest is updated
//	.etabext/branches/<b>/objects/aa/bb/<sha256> snapshots
//	.etabext/branches/<b>/working/<file>         working file
//	.etabext/branches/<b>/views/<version>.edb    read copies of versions
//
// Every write goes through a temporary file in the target directory followed
// by a rename, so readers never observe partial content. Nothing is cached in
// memory.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

const (
	// DirName is the metadata directory created inside a project root.
	DirName = ".etabext"
	// WorkingDirName holds the working file inside a branch directory.
	WorkingDirName = "working"

	branchesDirName = "branches"
	objectsDirName  = "objects"
	viewsDirName    = "views"
)

// Store persists snapshots and working files for one project.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a store rooted at projectPath/.etabext on the given filesystem.
func New(fsys afero.Fs, projectPath string) *Store {
	return &Store{fs: fsys, root: filepath.Join(projectPath, DirName)}
}

// Fs returns the filesystem the store writes to.
func (s *Store) Fs() afero.Fs { return s.fs }

// Root returns the metadata directory.
func (s *Store) Root() string { return s.root }

// BranchesDir returns the directory holding every branch's storage.
func (s *Store) BranchesDir() string {
	return filepath.Join(s.root, branchesDirName)
}

// BranchDir returns the storage directory owned by a branch.
func (s *Store) BranchDir(branch string) string {
	return filepath.Join(s.BranchesDir(), branch)
}

// Digest returns the lowercase hex sha256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PutSnapshot stores data as an immutable snapshot owned by branch. Storing
// identical bytes twice returns the same ref without writing again.
func (s *Store) PutSnapshot(branch string, data []byte) (models.SnapshotRef, error) {
	digest := Digest(data)
	ref := models.NewSnapshotRef(branch, digest)
	path := s.objectPath(branch, digest)

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", errs.IO(err, "failed to stat snapshot %s", ref)
	}
	if exists {
		return ref, nil
	}
	if err := s.WriteFileAtomic(path, data); err != nil {
		return "", errs.IO(err, "failed to store snapshot %s", ref)
	}
	return ref, nil
}

// GetSnapshot returns the bytes behind ref.
func (s *Store) GetSnapshot(ref models.SnapshotRef) ([]byte, error) {
	branch, digest, err := ref.Parse()
	if err != nil {
		return nil, errs.Wrap(errs.NotFound, err, "unknown snapshot")
	}
	data, err := afero.ReadFile(s.fs, s.objectPath(branch, digest))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.E(errs.NotFound, "snapshot %s not found", ref)
		}
		return nil, errs.IO(err, "failed to read snapshot %s", ref)
	}
	return data, nil
}

// HasSnapshot reports whether ref is present in the store.
func (s *Store) HasSnapshot(ref models.SnapshotRef) bool {
	branch, digest, err := ref.Parse()
	if err != nil {
		return false
	}
	ok, err := afero.Exists(s.fs, s.objectPath(branch, digest))
	return err == nil && ok
}

// WorkingFilePath returns where the working file of a branch lives.
func (s *Store) WorkingFilePath(branch, name string) string {
	return filepath.Join(s.BranchDir(branch), WorkingDirName, name)
}

// ExportPath returns the scratch location of a branch's E2K export.
func (s *Store) ExportPath(branch, designFile string) string {
	base := strings.TrimSuffix(designFile, filepath.Ext(designFile))
	return filepath.Join(s.BranchDir(branch), WorkingDirName, base+".e2k")
}

// ObjectsDir returns the snapshot directory of a branch.
func (s *Store) ObjectsDir(branch string) string {
	return filepath.Join(s.BranchDir(branch), objectsDirName)
}

// WriteView materialises a read copy of a version so it can be opened
// without touching the working file.
func (s *Store) WriteView(branch, versionID, ext string, data []byte) (string, error) {
	path := filepath.Join(s.BranchDir(branch), viewsDirName, versionID+ext)
	if err := s.WriteFileAtomic(path, data); err != nil {
		return "", errs.IO(err, "failed to write %s@%s for viewing", branch, versionID)
	}
	return path, nil
}

// WriteWorkingFile replaces the working file of a branch.
func (s *Store) WriteWorkingFile(branch, name string, data []byte) (string, error) {
	path := s.WorkingFilePath(branch, name)
	if err := s.WriteFileAtomic(path, data); err != nil {
		return "", errs.IO(err, "failed to write working file for branch %q", branch)
	}
	return path, nil
}

// ReadWorkingFile returns the working file of a branch.
func (s *Store) ReadWorkingFile(branch, name string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.WorkingFilePath(branch, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.E(errs.NotFound, "branch %q has no working file", branch)
		}
		return nil, errs.IO(err, "failed to read working file for branch %q", branch)
	}
	return data, nil
}

// DeleteBranchStorage removes everything a branch owns and reports how many
// bytes were freed. Missing storage is not an error.
func (s *Store) DeleteBranchStorage(branch string) (int64, error) {
	dir := s.BranchDir(branch)
	freed, err := s.DirSize(dir)
	if err != nil {
		return 0, err
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return 0, errs.IO(err, "failed to remove storage of branch %q", branch)
	}
	return freed, nil
}

// DirSize sums the sizes of all regular files below dir.
func (s *Store) DirSize(dir string) (int64, error) {
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return 0, errs.IO(err, "failed to stat %s", dir)
	}
	if !exists {
		return 0, nil
	}
	var total int64
	err = afero.Walk(s.fs, dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, errs.IO(err, "failed to measure %s", dir)
	}
	return total, nil
}

// WriteFileAtomic writes data to path through a temporary sibling file and a
// rename, creating parent directories as needed.
func (s *Store) WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := afero.TempFile(s.fs, dir, ".tmp-"+filepath.Base(path)+"-")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return err
	}
	return nil
}

// objectPath returns the sharded location of a snapshot.
// Layout: <branch>/objects/aa/bb/<digest>
func (s *Store) objectPath(branch, digest string) string {
	h := strings.ToLower(digest)
	if len(h) < 4 {
		return filepath.Join(s.BranchDir(branch), objectsDirName, h)
	}
	return filepath.Join(s.BranchDir(branch), objectsDirName, h[:2], h[2:4], h)
}
