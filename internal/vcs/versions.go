package vcs

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/branches"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/store"
)

// SaveOptions describes a version to create.
type SaveOptions struct {
	Branch  string
	Message string
	Author  string
	// GenerateE2K exports the working file to E2K and stores the export
	// with the version. A failed export fails the save.
	GenerateE2K bool
}

// CheckoutResult reports a checkout.
type CheckoutResult struct {
	WorkingFilePath string `json:"workingFilePath"`
	EtabsOpened     bool   `json:"etabsOpened"`
	ProcessID       int    `json:"processId,omitempty"`
	// Warning explains why ETABS was not opened after a completed checkout.
	Warning string `json:"warning,omitempty"`
}

// SaveVersion snapshots the branch's working file as a new version.
func (r *Repository) SaveVersion(ctx context.Context, opts SaveOptions) (*models.Version, error) {
	message := strings.TrimSpace(opts.Message)
	if message == "" {
		return nil, errs.E(errs.EmptyMessage, "version message cannot be empty")
	}

	var saved *models.Version
	err := r.mutate(func(next *models.ProjectState, g *branches.Graph) error {
		b, err := g.Branch(opts.Branch)
		if err != nil {
			return err
		}
		if b.WorkingFile == nil || !b.WorkingFile.Exists {
			return errs.E(errs.NoWorkingFile, "branch %q has no working file", opts.Branch)
		}

		data, err := r.store.ReadWorkingFile(opts.Branch, r.designFile)
		if errors.Is(err, errs.ErrNotFound) {
			return errs.E(errs.NoWorkingFile, "working file of branch %q is missing", opts.Branch)
		} else if err != nil {
			return err
		}

		ref, err := r.store.PutSnapshot(opts.Branch, data)
		if err != nil {
			return err
		}

		digest := store.Digest(data)
		now := r.now()
		v := &models.Version{
			Timestamp:  now,
			Message:    message,
			Author:     strings.TrimSpace(opts.Author),
			CommitHash: digest,
			Snapshot:   ref,
			FileSize:   int64(len(data)),
		}

		if opts.GenerateE2K {
			if err := r.attachExport(ctx, opts.Branch, v); err != nil {
				return err
			}
		}

		if err := g.AppendVersion(opts.Branch, v); err != nil {
			return err
		}

		wf := b.WorkingFile
		wf.HasUnsavedChanges = false
		wf.SourceBranch = opts.Branch
		wf.SourceVersion = v.ID
		wf.BaseDigest = digest
		saved = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("version saved", "branch", opts.Branch, "version", saved.ID, "bytes", saved.FileSize, "e2k", saved.HasExport())
	return saved.Clone(), nil
}

// attachExport runs the E2K export of the branch's working file and stores
// the result as a snapshot of the same branch.
func (r *Repository) attachExport(ctx context.Context, branch string, v *models.Version) error {
	tool, err := r.requireTool()
	if err != nil {
		return err
	}

	input := r.store.WorkingFilePath(branch, r.designFile)
	res, err := tool.Export(ctx, input, r.store.ExportPath(branch, r.designFile), true)
	if err != nil {
		return err
	}

	data, err := afero.ReadFile(r.store.Fs(), res.OutputPath)
	if err != nil {
		return errs.Wrap(errs.ExportFailed, err, "failed to read E2K export")
	}
	ref, err := r.store.PutSnapshot(branch, data)
	if err != nil {
		return err
	}
	v.Export = ref
	v.ExportSize = int64(len(data))
	return nil
}

// CheckoutVersion overwrites the branch's working file with a version's
// snapshot. Unsaved changes are discarded without confirmation; there is no
// merge. With openInTool the file is then opened in ETABS; if that fails the
// checkout still succeeds and the result carries a warning.
func (r *Repository) CheckoutVersion(branch, versionID string, openInTool bool) (*CheckoutResult, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	next := r.state.Clone()
	g := branches.New(next)
	v, err := g.ResolveVersion(branch, versionID)
	if err != nil {
		return nil, err
	}
	if openInTool {
		if _, err := r.requireTool(); err != nil {
			return nil, err
		}
	}

	data, err := r.store.GetSnapshot(v.Snapshot)
	if err != nil {
		return nil, err
	}
	// Past this point the previous working file content is gone. If the
	// manifest write below fails, the stale base digest makes the next
	// Refresh report the file as unsaved.
	path, err := r.store.WriteWorkingFile(branch, r.designFile, data)
	if err != nil {
		return nil, err
	}

	now := r.now()
	b := next.Branches[branch]
	b.WorkingFile = &models.WorkingFile{
		Exists:        true,
		SourceBranch:  branch,
		SourceVersion: versionID,
		LastModified:  &now,
		Path:          path,
		BaseDigest:    store.Digest(data),
	}
	if err := r.commit(next); err != nil {
		return nil, err
	}
	r.log.Info("version checked out", "branch", branch, "version", versionID)

	result := &CheckoutResult{WorkingFilePath: path}
	if !openInTool {
		return result, nil
	}

	// The checkout is committed; a failed open only degrades the result.
	opened, err := r.tool.Open(path)
	if err != nil {
		r.log.Warn("checked out but could not open in ETABS", "branch", branch, "version", versionID, "err", err)
		result.Warning = "could not open in ETABS: " + err.Error()
		return result, nil
	}
	result.EtabsOpened = opened.Opened
	result.ProcessID = opened.ProcessID

	after := r.state.Clone()
	after.Branches[branch].WorkingFile.IsOpen = true
	if err := r.commit(after); err != nil {
		r.log.Warn("failed to record open working file", "branch", branch, "err", err)
	}
	return result, nil
}

// Versions returns copies of a branch's versions in creation order.
func (r *Repository) Versions(branch string) ([]*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, err := branches.New(r.state).Branch(branch)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Version, len(b.Versions))
	for i, v := range b.Versions {
		out[i] = v.Clone()
	}
	return out, nil
}

// Version returns a copy of one version.
func (r *Repository) Version(branch, versionID string) (*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, err := branches.New(r.state).ResolveVersion(branch, versionID)
	if err != nil {
		return nil, err
	}
	return v.Clone(), nil
}

// RecordAnalysis attaches analysis results to a version. The version's
// content references are left untouched.
func (r *Repository) RecordAnalysis(branch, versionID string, results *models.AnalysisResults) error {
	if results == nil {
		return errs.E(errs.InvalidRequest, "analysis results are required")
	}
	return r.mutate(func(next *models.ProjectState, g *branches.Graph) error {
		v, err := g.ResolveVersion(branch, versionID)
		if err != nil {
			return err
		}
		ar := *results
		if ar.Timestamp.IsZero() {
			ar.Timestamp = r.now()
		}
		v.Analyzed = true
		v.AnalysisResults = &ar
		return nil
	})
}
