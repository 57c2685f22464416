package vcs

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/branches"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

// PruneCandidate is a branch considered by the retention policy.
type PruneCandidate struct {
	Branch       string        `json:"branch"`
	LastActivity time.Time     `json:"lastActivity"`
	Age          time.Duration `json:"age"`
	Versions     int           `json:"versions"`
	Prune        bool          `json:"prune"`
	Reason       string        `json:"reason"`
}

// PruneCandidates classifies every branch against the retention policy.
// A branch is pruned when its last activity is older than olderThan and none
// of the protections apply: main, preserved names, the current branch and
// branches with unsaved work are always kept. Candidates are sorted oldest
// first.
func (r *Repository) PruneCandidates(olderThan time.Duration, preserve func(string) bool) []PruneCandidate {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	cutoff := now.Add(-olderThan)
	var out []PruneCandidate
	for _, b := range branches.New(r.state).List() {
		last := b.LastActivity()
		c := PruneCandidate{
			Branch:       b.Name,
			LastActivity: last,
			Age:          now.Sub(last),
			Versions:     len(b.Versions),
		}
		switch {
		case b.Name == models.MainBranch:
			c.Reason = "protected branch"
		case preserve != nil && preserve(b.Name):
			c.Reason = "matches preserve list"
		case b.Name == r.state.CurrentBranch:
			c.Reason = "current branch"
		case b.HasUnsavedChanges():
			c.Reason = "unsaved working file"
		case last.Before(cutoff):
			c.Prune = true
			c.Reason = "inactive"
		default:
			c.Reason = "within retention period"
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivity.Before(out[j].LastActivity)
	})
	return out
}

// ArchiveBranch writes a gzipped tar of a branch to w: its manifest entry as
// <branch>/branch.json followed by every stored snapshot under
// <branch>/objects/. Working files and read copies are left out.
func (r *Repository) ArchiveBranch(branch string, w io.Writer) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := branches.New(r.state).Branch(branch)
	if err != nil {
		return 0, err
	}
	meta, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return 0, errs.Wrap(errs.Internal, err, "failed to encode branch %q", branch)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	files := 0
	hdr := &tar.Header{
		Name:    filepath.ToSlash(filepath.Join(branch, "branch.json")),
		Mode:    0o644,
		Size:    int64(len(meta)),
		ModTime: r.now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, errs.IO(err, "failed to write archive")
	}
	if _, err := tw.Write(meta); err != nil {
		return 0, errs.IO(err, "failed to write archive")
	}
	files++

	fs := r.store.Fs()
	objects := r.store.ObjectsDir(branch)
	exists, err := afero.DirExists(fs, objects)
	if err != nil {
		return 0, errs.IO(err, "failed to stat %s", objects)
	}
	if exists {
		err = afero.Walk(fs, objects, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(objects, path)
			if err != nil {
				return err
			}
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(filepath.Join(branch, "objects", rel))
			if err := tw.WriteHeader(header); err != nil {
				return err
			}
			f, err := fs.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
			files++
			return nil
		})
		if err != nil {
			return 0, errs.IO(err, "failed to archive branch %q", branch)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, errs.IO(err, "failed to finish archive")
	}
	if err := gz.Close(); err != nil {
		return 0, errs.IO(err, "failed to finish archive")
	}
	r.log.Info("branch archived", "branch", branch, "files", files)
	return files, nil
}
