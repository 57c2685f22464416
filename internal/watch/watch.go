// Package watch notices edits made to working files outside the engine,
// typically by ETABS saving the open model, and brings the project state up
// to date.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/tadoEng/EtabExtension/internal/logging"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/store"
)

// DefaultDebounce is how long a burst of writes is coalesced.
const DefaultDebounce = 250 * time.Millisecond

// Target receives the changes. *vcs.Repository implements it.
type Target interface {
	Refresh() (*models.ProjectState, error)
	MarkDirty(branch string) error
}

// Options configures a Watcher.
type Options struct {
	Debounce time.Duration
	Logger   *log.Logger
	// OnSync is called after each handled batch with the affected branches.
	OnSync func(branches []string)
}

// Watcher watches the working directories of every branch.
type Watcher struct {
	root       string
	designFile string
	target     Target
	debounce   time.Duration
	onSync     func([]string)
	log        *log.Logger

	fsw      *fsnotify.Watcher
	stopOnce sync.Once
}

// New prepares a watcher over branchesDir (see store.Store.BranchesDir).
// Only files named designFile directly inside a branch's working directory
// are of interest.
func New(branchesDir, designFile string, target Target, opts Options) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:       branchesDir,
		designFile: designFile,
		target:     target,
		debounce:   opts.Debounce,
		onSync:     opts.OnSync,
		log:        logging.OrDiscard(opts.Logger).WithPrefix("watch"),
		fsw:        fsw,
	}, nil
}

// Run watches until ctx is cancelled or Close is called. Pending changes are
// flushed before it returns.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.log.Debug("watching", "dir", w.root)

	pending := map[string]struct{}{}
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) == 0 {
			return
		}
		names := make([]string, 0, len(pending))
		for b := range pending {
			names = append(names, b)
		}
		sort.Strings(names)
		clear(pending)
		w.sync(names)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				flush()
				return nil
			}
			if ev.Has(fsnotify.Create) && isDir(ev.Name) {
				if err := w.addTree(ev.Name); err != nil {
					w.log.Warn("cannot watch directory", "dir", ev.Name, "err", err)
				}
				continue
			}
			branch, ok := w.branchOf(ev.Name)
			if !ok || ev.Op == fsnotify.Chmod {
				continue
			}
			pending[branch] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			flush()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				flush()
				return nil
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

// Close stops the watcher. Run returns after flushing.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.fsw.Close()
	})
	return err
}

// sync brings the target up to date. A refresh reads every working file; when
// that fails, for instance because ETABS holds a lock on the model, the
// touched branches are flagged dirty directly.
func (w *Watcher) sync(branches []string) {
	if _, err := w.target.Refresh(); err != nil {
		w.log.Warn("refresh failed, marking branches dirty", "branches", branches, "err", err)
		for _, b := range branches {
			if err := w.target.MarkDirty(b); err != nil {
				w.log.Error("cannot mark branch dirty", "branch", b, "err", err)
			}
		}
	}
	w.log.Info("working files changed", "branches", branches)
	if w.onSync != nil {
		w.onSync(branches)
	}
}

// branchOf maps <root>/<branch>/working/<designFile> to its branch.
func (w *Watcher) branchOf(path string) (string, bool) {
	if filepath.Base(path) != w.designFile {
		return "", false
	}
	dir := filepath.Dir(path)
	if filepath.Base(dir) != store.WorkingDirName {
		return "", false
	}
	branchDir := filepath.Dir(dir)
	if filepath.Dir(branchDir) != filepath.Clean(w.root) {
		return "", false
	}
	return filepath.Base(branchDir), true
}

// addTree watches root, the branch directories below it and their working
// directories. Snapshot and view directories are skipped.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, _ := filepath.Rel(w.root, path); depth(rel) > 2 ||
			(depth(rel) == 2 && d.Name() != store.WorkingDirName) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func depth(rel string) int {
	if rel == "." || rel == "" {
		return 0
	}
	n := 1
	for _, r := range rel {
		if r == filepath.Separator {
			n++
		}
	}
	return n
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
