// Package vcs is the version control engine of a project: the transactional
// surface over the branch graph and the content store.
//
// Every mutating operation runs under the project's write lock, which also
// holds the lock file shared with other processes, reloads the manifest,
// applies its changes to a clone of the project state, persists the clone as
// the new manifest and only then swaps it in. A failed operation therefore leaves the
// in-memory state and the manifest exactly as they were. Snapshots are written
// before the manifest, so a failure can leave an unreferenced snapshot behind
// but never a version that references missing content.
package vcs

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/branches"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/logging"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/store"
)

// Tool is the external CAD process the engine drives. *etabs.Bridge
// implements it.
type Tool interface {
	Status() etabs.Status
	Open(path string) (*etabs.OpenResult, error)
	Close(ctx context.Context, save bool) (*etabs.CloseResult, error)
	Export(ctx context.Context, input, output string, overwrite bool) (*etabs.ExportResult, error)
}

// lockTimeout bounds the wait for another process holding the project lock.
const lockTimeout = 10 * time.Second

// Options configures a Repository.
type Options struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Tool may be nil, in which case tool operations fail with
	// ToolUnavailable.
	Tool Tool
	// DesignFile is the working file name inside each branch.
	DesignFile string
	Logger     *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Repository is the handle of one open project.
type Repository struct {
	mu sync.RWMutex

	store      *store.Store
	state      *models.ProjectState
	// digest is the manifest digest state was loaded from or written as.
	digest     string
	tool       Tool
	designFile string
	log        *log.Logger
	now        func() time.Time
}

func newRepository(path string, opts Options) *Repository {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.DesignFile == "" {
		opts.DesignFile = "model" + etabs.DesignExt
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Repository{
		store:      store.New(opts.Fs, path),
		tool:       opts.Tool,
		designFile: opts.DesignFile,
		log:        logging.OrDiscard(opts.Logger).WithPrefix("vcs"),
		now:        func() time.Time { return opts.Now().UTC() },
	}
}

// Create initialises a project at path with a main branch. A non-nil
// initialDesign becomes main's working file, marked as unsaved.
func Create(path, name string, initialDesign []byte, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidRequest, err, "invalid project path %q", path)
	}
	r := newRepository(abs, opts)
	r.mu.Lock()
	defer r.mu.Unlock()
	release, err := r.store.Lock(lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	if r.store.HasManifest() {
		return nil, errs.E(errs.DuplicateName, "a project already exists at %s", abs)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = filepath.Base(abs)
	}

	now := r.now()
	state := &models.ProjectState{
		ID:                uuid.NewString(),
		ProjectPath:       abs,
		ProjectName:       name,
		CurrentBranch:     models.MainBranch,
		Created:           now,
		VersionControlled: true,
		FormatVersion:     models.FormatVersion,
	}
	g := branches.New(state)
	main := g.InitMain(now)

	if initialDesign != nil {
		wpath, err := r.store.WriteWorkingFile(models.MainBranch, r.designFile, initialDesign)
		if err != nil {
			return nil, err
		}
		main.WorkingFile = &models.WorkingFile{
			Exists:            true,
			HasUnsavedChanges: true,
			LastModified:      &now,
			Path:              wpath,
		}
	}

	if err := r.commit(state); err != nil {
		return nil, err
	}

	r.log.Info("project created", "path", abs, "name", name)
	return r, nil
}

// Open loads the project at path.
func Open(path string, opts Options) (*Repository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidRequest, err, "invalid project path %q", path)
	}
	r := newRepository(abs, opts)
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// reload replaces the in-memory state with the manifest on disk.
func (r *Repository) reload() error {
	// Digest first: a write racing the load then shows up as a mismatch on
	// the next sync instead of going unnoticed.
	digest, err := r.store.ManifestDigest()
	if err != nil {
		return err
	}
	state, err := r.store.LoadManifest()
	if err != nil {
		return err
	}
	if _, ok := state.Branches[models.MainBranch]; !ok {
		return errs.E(errs.IOFailure, "corrupt project manifest: no %q branch", models.MainBranch)
	}
	if _, ok := state.Branches[state.CurrentBranch]; !ok {
		state.CurrentBranch = models.MainBranch
	}
	state.ProjectPath = r.Path()
	r.state = state
	r.digest = digest
	return nil
}

// sync reloads the manifest if another process rewrote it since this handle
// last read or wrote it. Callers hold the lock.
func (r *Repository) sync() error {
	digest, err := r.store.ManifestDigest()
	if err != nil {
		return err
	}
	if digest == r.digest {
		return nil
	}
	r.log.Debug("manifest changed on disk, reloading")
	return r.reload()
}

// lock takes the write lock and the project lock file, then syncs with the
// manifest, so a long-lived handle such as the watcher never writes back a
// state another process has since replaced. The returned function releases
// both locks.
func (r *Repository) lock() (func(), error) {
	r.mu.Lock()
	release, err := r.store.Lock(lockTimeout)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	unlock := func() {
		release()
		r.mu.Unlock()
	}
	if err := r.sync(); err != nil {
		unlock()
		return nil, err
	}
	return unlock, nil
}

// Path returns the project root.
func (r *Repository) Path() string {
	return filepath.Dir(r.store.Root())
}

// Store exposes the content store, read-only use intended.
func (r *Repository) Store() *store.Store {
	return r.store
}

// DesignFile returns the working file name used in every branch.
func (r *Repository) DesignFile() string {
	return r.designFile
}

// State returns a copy of the current project state.
func (r *Repository) State() *models.ProjectState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// commit persists next as the manifest and makes it current. Callers hold
// the lock.
func (r *Repository) commit(next *models.ProjectState) error {
	next.LastModified = r.now()
	if err := r.store.SaveManifest(next); err != nil {
		r.log.Error("manifest write failed", "err", err)
		return err
	}
	r.state = next
	r.digest, _ = r.store.ManifestDigest()
	return nil
}

// mutate runs fn on a clone of the state and commits the clone if fn
// succeeds.
func (r *Repository) mutate(fn func(next *models.ProjectState, g *branches.Graph) error) error {
	unlock, err := r.lock()
	if err != nil {
		return err
	}
	defer unlock()

	next := r.state.Clone()
	if err := fn(next, branches.New(next)); err != nil {
		return err
	}
	return r.commit(next)
}

// Refresh recomputes working-file flags from disk and the tool status, and
// persists the state if anything changed.
func (r *Repository) Refresh() (*models.ProjectState, error) {
	unlock, err := r.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	next := r.state.Clone()
	changed, err := r.refreshInto(next)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := r.commit(next); err != nil {
			return nil, err
		}
	}
	return r.state.Clone(), nil
}

// refreshInto updates the working-file records of state in place.
func (r *Repository) refreshInto(state *models.ProjectState) (bool, error) {
	status := r.toolStatus()
	changed := false

	for _, name := range state.BranchNames() {
		b := state.Branches[name]
		if b.WorkingFile == nil {
			continue
		}
		wf := b.WorkingFile
		before := *wf

		path := r.store.WorkingFilePath(name, r.designFile)
		info, statErr := r.store.Fs().Stat(path)
		if statErr != nil {
			wf.Exists = false
			wf.HasUnsavedChanges = false
			wf.IsOpen = false
		} else {
			data, err := r.store.ReadWorkingFile(name, r.designFile)
			if err != nil {
				return false, err
			}
			mod := info.ModTime().UTC()
			wf.Exists = true
			wf.Path = path
			wf.HasUnsavedChanges = store.Digest(data) != wf.BaseDigest
			wf.IsOpen = status.IsRunning && status.OpenFilePath == path
			if wf.LastModified == nil || !wf.LastModified.Equal(mod) {
				wf.LastModified = &mod
			}
		}

		if before.Exists != wf.Exists || before.HasUnsavedChanges != wf.HasUnsavedChanges ||
			before.IsOpen != wf.IsOpen || before.Path != wf.Path || !sameTime(before.LastModified, wf.LastModified) {
			changed = true
		}
	}
	return changed, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func (r *Repository) toolStatus() etabs.Status {
	if r.tool == nil {
		return etabs.Status{}
	}
	return r.tool.Status()
}

func (r *Repository) requireTool() (Tool, error) {
	if r.tool == nil {
		return nil, errs.E(errs.ToolUnavailable, "ETABS integration is not configured")
	}
	return r.tool, nil
}
