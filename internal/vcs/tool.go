package vcs

import (
	"context"
	"errors"

	"github.com/tadoEng/EtabExtension/internal/branches"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/store"
)

// OpenResult reports which file was opened in ETABS.
type OpenResult struct {
	Path      string `json:"path"`
	Opened    bool   `json:"opened"`
	ProcessID int    `json:"processId,omitempty"`
	// ReadOnly is set when a saved version was opened through a read copy.
	ReadOnly bool `json:"readOnly"`
}

// OpenInTool opens a branch in ETABS. With an empty versionID the working
// file is opened; otherwise a read copy of that version is materialised
// and opened, leaving the working file alone.
func (r *Repository) OpenInTool(branch, versionID string) (*OpenResult, error) {
	tool, err := r.requireTool()
	if err != nil {
		return nil, err
	}

	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	next := r.state.Clone()
	g := branches.New(next)
	b, err := g.Branch(branch)
	if err != nil {
		return nil, err
	}

	result := &OpenResult{}
	if versionID == "" {
		if b.WorkingFile == nil || !b.WorkingFile.Exists {
			return nil, errs.E(errs.NoWorkingFile, "branch %q has no working file", branch)
		}
		result.Path = r.store.WorkingFilePath(branch, r.designFile)
	} else {
		v, err := g.ResolveVersion(branch, versionID)
		if err != nil {
			return nil, err
		}
		data, err := r.store.GetSnapshot(v.Snapshot)
		if err != nil {
			return nil, err
		}
		if result.Path, err = r.store.WriteView(branch, versionID, etabs.DesignExt, data); err != nil {
			return nil, err
		}
		result.ReadOnly = true
	}

	opened, err := tool.Open(result.Path)
	if err != nil {
		return nil, err
	}
	result.Opened = opened.Opened
	result.ProcessID = opened.ProcessID

	if !result.ReadOnly {
		b.WorkingFile.IsOpen = true
		if err := r.commit(next); err != nil {
			return nil, err
		}
	}

	r.log.Info("opened in ETABS", "branch", branch, "version", versionID, "pid", result.ProcessID)
	return result, nil
}

// CloseTool closes ETABS and re-derives working-file flags, so a model
// saved on close shows up as unsaved work of its branch.
func (r *Repository) CloseTool(ctx context.Context, save bool) (*etabs.CloseResult, error) {
	tool, err := r.requireTool()
	if err != nil {
		return nil, err
	}

	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := tool.Close(ctx, save)
	if err != nil {
		return nil, err
	}

	next := r.state.Clone()
	changed, err := r.refreshInto(next)
	if err != nil {
		return res, err
	}
	if changed {
		if err := r.commit(next); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ToolStatus polls ETABS. Without a configured tool it reports not running.
func (r *Repository) ToolStatus() etabs.Status {
	return r.toolStatus()
}

// ImportWorkingFile replaces a branch's working file with data from outside
// the store, e.g. a model edited elsewhere.
func (r *Repository) ImportWorkingFile(branch string, data []byte) (*models.WorkingFile, error) {
	var wf *models.WorkingFile
	err := r.mutate(func(next *models.ProjectState, g *branches.Graph) error {
		b, err := g.Branch(branch)
		if err != nil {
			return err
		}
		path, err := r.store.WriteWorkingFile(branch, r.designFile, data)
		if err != nil {
			return err
		}

		now := r.now()
		if b.WorkingFile == nil {
			b.WorkingFile = &models.WorkingFile{}
		}
		b.WorkingFile.Exists = true
		b.WorkingFile.Path = path
		b.WorkingFile.LastModified = &now
		b.WorkingFile.HasUnsavedChanges = store.Digest(data) != b.WorkingFile.BaseDigest
		wf = b.WorkingFile.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return wf, nil
}

// errUnchanged aborts a mutation that has nothing to persist.
var errUnchanged = errors.New("unchanged")

// MarkDirty flags a branch's working file as edited. It is the hook used by
// the file watcher.
func (r *Repository) MarkDirty(branch string) error {
	err := r.mutate(func(next *models.ProjectState, g *branches.Graph) error {
		b, err := g.Branch(branch)
		if err != nil {
			return err
		}
		if b.WorkingFile == nil || !b.WorkingFile.Exists || b.WorkingFile.HasUnsavedChanges {
			return errUnchanged
		}
		now := r.now()
		b.WorkingFile.HasUnsavedChanges = true
		b.WorkingFile.LastModified = &now
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}
