package vcs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/tadoEng/EtabExtension/internal/branches"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/store"
)

// DeleteResult reports a branch deletion.
type DeleteResult struct {
	DeletedVersions []string `json:"deletedVersions"`
	FreedSpaceBytes int64    `json:"freedSpaceBytes"`
	EtabsClosed     bool     `json:"etabsClosed"`
}

// SwitchResult reports a branch switch.
type SwitchResult struct {
	CurrentBranch  string `json:"currentBranch"`
	EtabsWasClosed bool   `json:"etabsWasClosed"`
}

// Branches returns copies of all branches, main first.
func (r *Repository) Branches() []*models.Branch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := branches.New(r.state).List()
	out := make([]*models.Branch, len(list))
	for i, b := range list {
		out[i] = b.Clone()
	}
	return out
}

// Lineage returns the ancestors of a branch as "branch@version", nearest
// first.
func (r *Repository) Lineage(name string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return branches.New(r.state).Lineage(name)
}

// CreateBranch forks name from fromBranch at fromVersion. The new branch's
// working file is a copy of the parent version's snapshot.
func (r *Repository) CreateBranch(name, fromBranch, fromVersion, description string) (*models.Branch, error) {
	var created *models.Branch
	err := r.mutate(func(next *models.ProjectState, g *branches.Graph) error {
		b, parent, err := g.Create(name, fromBranch, fromVersion, description, r.now())
		if err != nil {
			return err
		}

		data, err := r.store.GetSnapshot(parent.Snapshot)
		if err != nil {
			return err
		}
		path, err := r.store.WriteWorkingFile(name, r.designFile, data)
		if err != nil {
			return err
		}

		now := r.now()
		b.WorkingFile = &models.WorkingFile{
			Exists:        true,
			SourceBranch:  fromBranch,
			SourceVersion: fromVersion,
			LastModified:  &now,
			Path:          path,
			BaseDigest:    store.Digest(data),
		}
		created = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("branch created", "branch", name, "from", fromBranch+"@"+fromVersion)
	return created.Clone(), nil
}

// DeleteBranch removes a branch and its storage. main can never be deleted.
// Unsaved changes are re-derived from the working file first, so edits made
// outside etabext block an unforced delete too. An ETABS session open on the
// branch counts as unsaved work: it blocks an unforced delete and is closed
// without saving by a forced one.
func (r *Repository) DeleteBranch(ctx context.Context, name string, force bool) (*DeleteResult, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	next := r.state.Clone()
	if _, err := r.refreshInto(next); err != nil {
		return nil, err
	}
	g := branches.New(next)
	if _, err := g.CheckDelete(name, force); err != nil {
		return nil, err
	}

	result := &DeleteResult{}
	if st := r.toolStatus(); st.IsRunning && r.ownsPath(name, st.OpenFilePath) {
		if !force {
			return nil, errs.E(errs.HasUncommittedChanges, "branch %q is open in ETABS (close it or use force)", name)
		}
		if _, err := r.tool.Close(ctx, false); err != nil && !errors.Is(err, errs.ErrNotRunning) {
			return nil, err
		}
		result.EtabsClosed = true
	}

	freed, err := r.store.DirSize(r.store.BranchDir(name))
	if err != nil {
		return nil, err
	}
	deleted, err := g.Delete(name, force)
	if err != nil {
		return nil, err
	}
	if err := r.commit(next); err != nil {
		return nil, err
	}

	// The manifest no longer references the branch; leftover files are
	// unreachable and only cost disk space.
	if _, err := r.store.DeleteBranchStorage(name); err != nil {
		r.log.Warn("branch storage not fully removed", "branch", name, "err", err)
		freed = 0
	}

	result.DeletedVersions = deleted.VersionIDs
	result.FreedSpaceBytes = freed
	r.log.Info("branch deleted", "branch", name, "versions", len(deleted.VersionIDs), "freed", freed)
	return result, nil
}

// SwitchBranch makes name the current branch. When closeCurrent is set and
// ETABS is running it is closed without saving first.
func (r *Repository) SwitchBranch(ctx context.Context, name string, closeCurrent bool) (*SwitchResult, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	next := r.state.Clone()
	g := branches.New(next)
	if _, err := g.Branch(name); err != nil {
		return nil, err
	}

	result := &SwitchResult{CurrentBranch: name}
	if closeCurrent && r.toolStatus().IsRunning {
		if _, err := r.tool.Close(ctx, false); err != nil && !errors.Is(err, errs.ErrNotRunning) {
			return nil, err
		}
		result.EtabsWasClosed = true
		for _, b := range next.Branches {
			if b.WorkingFile != nil {
				b.WorkingFile.IsOpen = false
			}
		}
	}

	if err := g.SetCurrent(name); err != nil {
		return nil, err
	}
	if err := r.commit(next); err != nil {
		return nil, err
	}

	r.log.Info("switched branch", "branch", name, "etabsClosed", result.EtabsWasClosed)
	return result, nil
}

// ownsPath reports whether path lies inside the storage of branch.
func (r *Repository) ownsPath(branch, path string) bool {
	if path == "" {
		return false
	}
	rel, err := filepath.Rel(r.store.BranchDir(branch), path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
