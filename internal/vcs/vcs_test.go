package vcs

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

const projectPath = "/projects/highrise"

const designV1 = `$ PROGRAM INFORMATION
  PROGRAM  "ETABS"  VERSION "21.0.0"
$ STORIES - IN SEQUENCE FROM TOP
  STORY "STORY1"  HEIGHT 144
  STORY "BASE"  ELEV 0
$ MATERIAL PROPERTIES
  MATERIAL  "A992Fy50"  TYPE "Steel"  FY 50
$ FRAME SECTIONS
  FRAMESECTION  "C1"  MATERIAL "A992Fy50"  SHAPE "W14X90"
$ POINT COORDINATES
  POINT "1"  0  0
$ LINE CONNECTIVITIES
  LINE  "C1"  COLUMN  "1"  "1"  1
$ LINE ASSIGNS
  LINEASSIGN  "C1"  "STORY1"  SECTION "C1"
$ END OF MODEL FILE
`

var designV2 = strings.Replace(designV1, `SHAPE "W14X90"`, `SHAPE "W14X120"`, 1)

// fakeTool stands in for ETABS. Its export copies the design file verbatim,
// so test design files are written as E2K text.
type fakeTool struct {
	mu        sync.Mutex
	fs        afero.Fs
	status    etabs.Status
	openErr   error
	exportErr error
	opened    []string
	closes    []bool
}

func (f *fakeTool) Status() etabs.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTool) Open(path string) (*etabs.OpenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened = append(f.opened, path)
	f.status = etabs.Status{IsRunning: true, OpenFilePath: path, ProcessID: 4242, CanSave: true}
	return &etabs.OpenResult{Opened: true, ProcessID: 4242}, nil
}

func (f *fakeTool) Close(_ context.Context, save bool) (*etabs.CloseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.status.IsRunning {
		return nil, errs.E(errs.NotRunning, "ETABS is not running")
	}
	f.closes = append(f.closes, save)
	f.status = etabs.Status{}
	return &etabs.CloseResult{Closed: true, ChangesSaved: save}, nil
}

func (f *fakeTool) Export(_ context.Context, input, output string, _ bool) (*etabs.ExportResult, error) {
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	data, err := afero.ReadFile(f.fs, input)
	if err != nil {
		return nil, err
	}
	if err := afero.WriteFile(f.fs, output, data, 0o644); err != nil {
		return nil, err
	}
	return &etabs.ExportResult{OutputPath: output, SizeBytes: int64(len(data))}, nil
}

// renameFailFs fails manifest renames while armed.
type renameFailFs struct {
	afero.Fs
	armed atomic.Bool
}

func (f *renameFailFs) Rename(oldname, newname string) error {
	if f.armed.Load() && filepath.Base(newname) == "project.json" {
		return errors.New("disk full")
	}
	return f.Fs.Rename(oldname, newname)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	repo *Repository
	fs   afero.Fs
	tool *fakeTool
}

func newFixture(t *testing.T, fsys afero.Fs) *fixture {
	t.Helper()
	if fsys == nil {
		fsys = afero.NewMemMapFs()
	}
	tool := &fakeTool{fs: fsys}
	c := &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	repo, err := Create(projectPath, "Highrise", []byte(designV1), Options{Fs: fsys, Tool: tool, Now: c.Now})
	require.NoError(t, err)
	return &fixture{repo: repo, fs: fsys, tool: tool}
}

func (f *fixture) save(t *testing.T, branch, message string) *models.Version {
	t.Helper()
	v, err := f.repo.SaveVersion(context.Background(), SaveOptions{Branch: branch, Message: message, GenerateE2K: true})
	require.NoError(t, err)
	return v
}

func (f *fixture) writeWorking(t *testing.T, branch, content string) {
	t.Helper()
	path := f.repo.Store().WorkingFilePath(branch, f.repo.DesignFile())
	require.NoError(t, afero.WriteFile(f.fs, path, []byte(content), 0o644))
}

func TestCreateProject(t *testing.T) {
	f := newFixture(t, nil)
	state := f.repo.State()

	assert.Equal(t, "Highrise", state.ProjectName)
	assert.Equal(t, models.MainBranch, state.CurrentBranch)
	assert.NotEmpty(t, state.ID)
	require.Contains(t, state.Branches, models.MainBranch)
	main := state.Branches[models.MainBranch]
	require.NotNil(t, main.WorkingFile)
	assert.True(t, main.WorkingFile.Exists)
	assert.True(t, main.WorkingFile.HasUnsavedChanges)

	_, err := Create(projectPath, "again", nil, Options{Fs: f.fs})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)
}

func TestOpenReloadsManifest(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")

	reopened, err := Open(projectPath, Options{Fs: f.fs})
	require.NoError(t, err)
	assert.Equal(t, f.repo.State().ID, reopened.State().ID)
	assert.Equal(t, "v1", reopened.State().Branches[models.MainBranch].LatestVersion)

	_, err = Open("/projects/missing", Options{Fs: f.fs})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSteelColumnsScenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	v1 := f.save(t, models.MainBranch, "Initial design")
	assert.Equal(t, "v1", v1.ID)
	assert.True(t, v1.HasExport())

	b, err := f.repo.CreateBranch("steel-columns", models.MainBranch, "v1", "Try steel columns")
	require.NoError(t, err)
	assert.Equal(t, models.MainBranch, b.ParentBranch)
	assert.Equal(t, "v1", b.ParentVersion)
	assert.Empty(t, b.Versions)
	require.NotNil(t, b.WorkingFile)
	assert.False(t, b.WorkingFile.HasUnsavedChanges)

	f.writeWorking(t, "steel-columns", designV2)
	state, err := f.repo.Refresh()
	require.NoError(t, err)
	assert.True(t, state.Branches["steel-columns"].WorkingFile.HasUnsavedChanges)

	sv1 := f.save(t, "steel-columns", "Bigger columns")
	assert.Equal(t, "v1", sv1.ID)
	assert.NotEqual(t, v1.Snapshot, sv1.Snapshot)

	res, err := f.repo.Compare(ctx,
		VersionRef{Branch: models.MainBranch, VersionID: "v1"},
		VersionRef{Branch: "steel-columns", VersionID: "v1"},
		models.DiffBoth, CompareOptions{})
	require.NoError(t, err)
	require.NotNil(t, res.E2KDiff)
	assert.Equal(t, 1, res.E2KDiff.Modified)
	require.Len(t, res.E2KDiff.Changes, 1)
	assert.Equal(t, models.CategorySection, res.E2KDiff.Changes[0].Category)
	assert.Equal(t, "W14X90", res.E2KDiff.Changes[0].OldValue)
	assert.Equal(t, "W14X120", res.E2KDiff.Changes[0].NewValue)
	require.NotNil(t, res.GeometryDiff)
	assert.Equal(t, 0, res.GeometryDiff.TotalChanges)

	lineage, err := f.repo.Lineage("steel-columns")
	require.NoError(t, err)
	assert.Equal(t, []string{"main@v1"}, lineage)

	del, err := f.repo.DeleteBranch(ctx, "steel-columns", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, del.DeletedVersions)
	assert.Positive(t, del.FreedSpaceBytes)

	// main's content is untouched by the deletion.
	data, err := f.repo.Store().GetSnapshot(v1.Snapshot)
	require.NoError(t, err)
	assert.Equal(t, designV1, string(data))
	exists, err := afero.DirExists(f.fs, f.repo.Store().BranchDir("steel-columns"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSaveVersionRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.repo.SaveVersion(context.Background(), SaveOptions{Branch: models.MainBranch, Message: "   "})
	require.ErrorIs(t, err, errs.ErrEmptyMessage)

	state := f.repo.State()
	assert.True(t, state.Branches[models.MainBranch].WorkingFile.HasUnsavedChanges)
	assert.Empty(t, state.Branches[models.MainBranch].Versions)
}

func TestSaveVersionWithoutWorkingFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	repo, err := Create(projectPath, "", nil, Options{Fs: fsys})
	require.NoError(t, err)
	assert.Equal(t, "highrise", repo.State().ProjectName)

	_, err = repo.SaveVersion(context.Background(), SaveOptions{Branch: models.MainBranch, Message: "x"})
	assert.ErrorIs(t, err, errs.ErrNoWorkingFile)
}

func TestSaveVersionExportFailureFailsSave(t *testing.T) {
	f := newFixture(t, nil)
	f.tool.exportErr = errs.E(errs.ExportFailed, "sidecar crashed")

	_, err := f.repo.SaveVersion(context.Background(), SaveOptions{Branch: models.MainBranch, Message: "x", GenerateE2K: true})
	require.ErrorIs(t, err, errs.ErrExportFailed)
	assert.Empty(t, f.repo.State().Branches[models.MainBranch].Versions)
}

func TestCheckoutIsDestructive(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")
	f.writeWorking(t, models.MainBranch, designV2)

	res, err := f.repo.CheckoutVersion(models.MainBranch, "v1", false)
	require.NoError(t, err)
	assert.False(t, res.EtabsOpened)

	data, err := afero.ReadFile(f.fs, res.WorkingFilePath)
	require.NoError(t, err)
	assert.Equal(t, designV1, string(data))

	wf := f.repo.State().Branches[models.MainBranch].WorkingFile
	assert.False(t, wf.HasUnsavedChanges)
	assert.Equal(t, "v1", wf.SourceVersion)

	_, err = f.repo.CheckoutVersion(models.MainBranch, "v9", false)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCheckoutOpensInTool(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")

	res, err := f.repo.CheckoutVersion(models.MainBranch, "v1", true)
	require.NoError(t, err)
	assert.True(t, res.EtabsOpened)
	assert.Equal(t, 4242, res.ProcessID)
	assert.True(t, f.repo.State().Branches[models.MainBranch].WorkingFile.IsOpen)
}

func TestCheckoutSurvivesToolOpenFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")
	f.writeWorking(t, models.MainBranch, designV2)
	f.tool.openErr = errs.E(errs.LaunchFailed, "ETABS crashed on startup")

	res, err := f.repo.CheckoutVersion(models.MainBranch, "v1", true)
	require.NoError(t, err)
	assert.False(t, res.EtabsOpened)
	assert.Contains(t, res.Warning, "ETABS crashed on startup")

	data, err := afero.ReadFile(f.fs, res.WorkingFilePath)
	require.NoError(t, err)
	assert.Equal(t, designV1, string(data))
	wf := f.repo.State().Branches[models.MainBranch].WorkingFile
	assert.False(t, wf.IsOpen)
	assert.Equal(t, "v1", wf.SourceVersion)
}

func TestDeleteMainIsProtected(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.repo.DeleteBranch(context.Background(), models.MainBranch, true)
	assert.ErrorIs(t, err, errs.ErrProtectedBranch)
}

func TestCreateBranchInvalidParentLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")
	before := f.repo.State()

	_, err := f.repo.CreateBranch("x", models.MainBranch, "v7", "")
	require.ErrorIs(t, err, errs.ErrInvalidParent)
	_, err = f.repo.CreateBranch("x", "nope", "v1", "")
	require.ErrorIs(t, err, errs.ErrInvalidParent)
	_, err = f.repo.CreateBranch("bad name", models.MainBranch, "v1", "")
	require.ErrorIs(t, err, errs.ErrInvalidName)
	_, err = f.repo.CreateBranch(models.MainBranch, models.MainBranch, "v1", "")
	require.ErrorIs(t, err, errs.ErrDuplicateName)

	assert.Equal(t, before, f.repo.State())
}

func TestManifestWriteFailureLeavesStateUnchanged(t *testing.T) {
	fsys := &renameFailFs{Fs: afero.NewMemMapFs()}
	f := newFixture(t, fsys)
	f.save(t, models.MainBranch, "Initial")
	before := f.repo.State()

	fsys.armed.Store(true)
	_, err := f.repo.CreateBranch("steel-columns", models.MainBranch, "v1", "")
	require.ErrorIs(t, err, errs.ErrIOFailure)
	_, err = f.repo.SaveVersion(context.Background(), SaveOptions{Branch: models.MainBranch, Message: "again"})
	require.ErrorIs(t, err, errs.ErrIOFailure)

	assert.Equal(t, before, f.repo.State())

	fsys.armed.Store(false)
	reopened, err := Open(projectPath, Options{Fs: fsys})
	require.NoError(t, err)
	assert.NotContains(t, reopened.State().Branches, "steel-columns")
	assert.Len(t, reopened.State().Branches[models.MainBranch].Versions, 1)
}

func TestConcurrentSavesGetUniqueIDs(t *testing.T) {
	f := newFixture(t, nil)
	const n = 8

	var wg sync.WaitGroup
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.repo.SaveVersion(context.Background(), SaveOptions{Branch: models.MainBranch, Message: fmt.Sprintf("save %d", i)})
			if assert.NoError(t, err) {
				ids <- v.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, fmt.Sprintf("v%d", n), f.repo.State().Branches[models.MainBranch].LatestVersion)
}

func TestDeleteBranchWithOpenSession(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.save(t, models.MainBranch, "Initial")
	_, err := f.repo.CreateBranch("concrete", models.MainBranch, "v1", "")
	require.NoError(t, err)

	_, err = f.repo.OpenInTool("concrete", "")
	require.NoError(t, err)

	_, err = f.repo.DeleteBranch(ctx, "concrete", false)
	require.ErrorIs(t, err, errs.ErrHasUncommittedChanges)
	assert.Contains(t, f.repo.State().Branches, "concrete")

	res, err := f.repo.DeleteBranch(ctx, "concrete", true)
	require.NoError(t, err)
	assert.True(t, res.EtabsClosed)
	assert.Equal(t, []bool{false}, f.tool.closes)
	assert.NotContains(t, f.repo.State().Branches, "concrete")
}

func TestDeleteBranchSeesUnrefreshedEdits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.save(t, models.MainBranch, "Initial")
	_, err := f.repo.CreateBranch("concrete", models.MainBranch, "v1", "")
	require.NoError(t, err)

	// Written by ETABS with no Refresh in between.
	f.writeWorking(t, "concrete", designV2)

	_, err = f.repo.DeleteBranch(ctx, "concrete", false)
	require.ErrorIs(t, err, errs.ErrHasUncommittedChanges)
	data, err := afero.ReadFile(f.fs, f.repo.Store().WorkingFilePath("concrete", f.repo.DesignFile()))
	require.NoError(t, err)
	assert.Equal(t, designV2, string(data))

	_, err = f.repo.DeleteBranch(ctx, "concrete", true)
	require.NoError(t, err)
}

func TestStaleHandleKeepsVersionsSavedElsewhere(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	watcher := f.repo

	other, err := Open(projectPath, Options{Fs: f.fs, Tool: f.tool})
	require.NoError(t, err)
	v, err := other.SaveVersion(ctx, SaveOptions{Branch: models.MainBranch, Message: "Saved by another process"})
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)

	f.writeWorking(t, models.MainBranch, designV2)
	state, err := watcher.Refresh()
	require.NoError(t, err)
	assert.Len(t, state.Branches[models.MainBranch].Versions, 1)
	assert.True(t, state.Branches[models.MainBranch].WorkingFile.HasUnsavedChanges)

	reopened, err := Open(projectPath, Options{Fs: f.fs})
	require.NoError(t, err)
	assert.Len(t, reopened.State().Branches[models.MainBranch].Versions, 1)

	v2, err := watcher.SaveVersion(ctx, SaveOptions{Branch: models.MainBranch, Message: "Saved by the watcher's handle"})
	require.NoError(t, err)
	assert.Equal(t, "v2", v2.ID)

	exists, err := afero.Exists(f.fs, watcher.Store().LockPath())
	require.NoError(t, err)
	assert.False(t, exists, "lock file left behind")
}

func TestMutationWaitsForProjectLock(t *testing.T) {
	f := newFixture(t, nil)

	release, err := f.repo.Store().Lock(time.Second)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := f.repo.SaveVersion(context.Background(), SaveOptions{Branch: models.MainBranch, Message: "Initial"})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("save finished while another process held the lock: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	release()
	require.NoError(t, <-done)
	assert.Len(t, f.repo.State().Branches[models.MainBranch].Versions, 1)
}

func TestDeleteCurrentBranchMovesToMain(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.save(t, models.MainBranch, "Initial")
	_, err := f.repo.CreateBranch("alt", models.MainBranch, "v1", "")
	require.NoError(t, err)
	_, err = f.repo.SwitchBranch(ctx, "alt", false)
	require.NoError(t, err)
	assert.Equal(t, "alt", f.repo.State().CurrentBranch)

	f.writeWorking(t, "alt", designV2)
	_, err = f.repo.Refresh()
	require.NoError(t, err)
	_, err = f.repo.DeleteBranch(ctx, "alt", false)
	require.ErrorIs(t, err, errs.ErrHasUncommittedChanges)

	_, err = f.repo.DeleteBranch(ctx, "alt", true)
	require.NoError(t, err)
	assert.Equal(t, models.MainBranch, f.repo.State().CurrentBranch)
}

func TestSwitchBranchClosesTool(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.save(t, models.MainBranch, "Initial")
	_, err := f.repo.CreateBranch("alt", models.MainBranch, "v1", "")
	require.NoError(t, err)
	_, err = f.repo.OpenInTool(models.MainBranch, "")
	require.NoError(t, err)

	res, err := f.repo.SwitchBranch(ctx, "alt", true)
	require.NoError(t, err)
	assert.True(t, res.EtabsWasClosed)
	assert.False(t, f.repo.State().Branches[models.MainBranch].WorkingFile.IsOpen)

	_, err = f.repo.SwitchBranch(ctx, "ghost", false)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCompareRequiresExports(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.repo.SaveVersion(ctx, SaveOptions{Branch: models.MainBranch, Message: "no export"})
	require.NoError(t, err)
	f.save(t, models.MainBranch, "with export")

	a := VersionRef{Branch: models.MainBranch, VersionID: "v1"}
	b := VersionRef{Branch: models.MainBranch, VersionID: "v2"}
	_, err = f.repo.Compare(ctx, a, b, models.DiffE2K, CompareOptions{})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.repo.Compare(ctx, b, b, models.DiffType("xml"), CompareOptions{})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	res, err := f.repo.Compare(ctx, b, b, models.DiffE2K, CompareOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.GeometryDiff)
	assert.Equal(t, 0, res.E2KDiff.Added+res.E2KDiff.Removed+res.E2KDiff.Modified)
}

func TestRefreshDetectsDirtyAndRevert(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")

	f.writeWorking(t, models.MainBranch, designV2)
	state, err := f.repo.Refresh()
	require.NoError(t, err)
	assert.True(t, state.Branches[models.MainBranch].WorkingFile.HasUnsavedChanges)

	f.writeWorking(t, models.MainBranch, designV1)
	state, err = f.repo.Refresh()
	require.NoError(t, err)
	assert.False(t, state.Branches[models.MainBranch].WorkingFile.HasUnsavedChanges)

	require.NoError(t, f.fs.Remove(f.repo.Store().WorkingFilePath(models.MainBranch, f.repo.DesignFile())))
	state, err = f.repo.Refresh()
	require.NoError(t, err)
	assert.False(t, state.Branches[models.MainBranch].WorkingFile.Exists)
}

func TestMarkDirtyAndImport(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")

	require.NoError(t, f.repo.MarkDirty(models.MainBranch))
	assert.True(t, f.repo.State().Branches[models.MainBranch].WorkingFile.HasUnsavedChanges)
	require.NoError(t, f.repo.MarkDirty(models.MainBranch))
	assert.ErrorIs(t, f.repo.MarkDirty("ghost"), errs.ErrNotFound)

	wf, err := f.repo.ImportWorkingFile(models.MainBranch, []byte(designV1))
	require.NoError(t, err)
	assert.False(t, wf.HasUnsavedChanges)

	wf, err = f.repo.ImportWorkingFile(models.MainBranch, []byte(designV2))
	require.NoError(t, err)
	assert.True(t, wf.HasUnsavedChanges)
}

func TestRecordAnalysis(t *testing.T) {
	f := newFixture(t, nil)
	v1 := f.save(t, models.MainBranch, "Initial")

	err := f.repo.RecordAnalysis(models.MainBranch, "v1", &models.AnalysisResults{MaxDrift: 0.42, PassedMembers: 120})
	require.NoError(t, err)

	v, err := f.repo.Version(models.MainBranch, "v1")
	require.NoError(t, err)
	assert.True(t, v.Analyzed)
	require.NotNil(t, v.AnalysisResults)
	assert.InDelta(t, 0.42, v.AnalysisResults.MaxDrift, 1e-9)
	assert.False(t, v.AnalysisResults.Timestamp.IsZero())
	assert.Equal(t, v1.Snapshot, v.Snapshot)

	assert.ErrorIs(t, f.repo.RecordAnalysis(models.MainBranch, "v1", nil), errs.ErrInvalidRequest)
}

func TestOpenVersionReadCopy(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")
	f.writeWorking(t, models.MainBranch, designV2)

	res, err := f.repo.OpenInTool(models.MainBranch, "v1")
	require.NoError(t, err)
	assert.True(t, res.ReadOnly)
	assert.Contains(t, res.Path, filepath.Join("views", "v1"+etabs.DesignExt))

	data, err := afero.ReadFile(f.fs, res.Path)
	require.NoError(t, err)
	assert.Equal(t, designV1, string(data))

	working, err := f.repo.Store().ReadWorkingFile(models.MainBranch, f.repo.DesignFile())
	require.NoError(t, err)
	assert.Equal(t, designV2, string(working))
	assert.False(t, f.repo.State().Branches[models.MainBranch].WorkingFile.IsOpen)
}

func TestCloseToolRefreshes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.save(t, models.MainBranch, "Initial")

	_, err := f.repo.OpenInTool(models.MainBranch, "")
	require.NoError(t, err)
	assert.True(t, f.repo.State().Branches[models.MainBranch].WorkingFile.IsOpen)

	f.writeWorking(t, models.MainBranch, designV2)
	res, err := f.repo.CloseTool(ctx, true)
	require.NoError(t, err)
	assert.True(t, res.ChangesSaved)

	wf := f.repo.State().Branches[models.MainBranch].WorkingFile
	assert.False(t, wf.IsOpen)
	assert.True(t, wf.HasUnsavedChanges)

	_, err = f.repo.CloseTool(ctx, false)
	assert.ErrorIs(t, err, errs.ErrNotRunning)
}

func TestToolUnavailable(t *testing.T) {
	fsys := afero.NewMemMapFs()
	repo, err := Create(projectPath, "", []byte(designV1), Options{Fs: fsys})
	require.NoError(t, err)

	_, err = repo.OpenInTool(models.MainBranch, "")
	assert.ErrorIs(t, err, errs.ErrToolUnavailable)
	_, err = repo.SaveVersion(context.Background(), SaveOptions{Branch: models.MainBranch, Message: "x", GenerateE2K: true})
	assert.ErrorIs(t, err, errs.ErrToolUnavailable)
	assert.False(t, repo.ToolStatus().IsRunning)
}

func TestPruneCandidates(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")
	for _, name := range []string{"old-idea", "keep-me", "dirty"} {
		_, err := f.repo.CreateBranch(name, models.MainBranch, "v1", "")
		require.NoError(t, err)
	}
	f.writeWorking(t, "dirty", designV2)
	_, err := f.repo.Refresh()
	require.NoError(t, err)

	preserve := func(name string) bool { return name == "keep-me" }
	got := map[string]PruneCandidate{}
	for _, c := range f.repo.PruneCandidates(0, preserve) {
		got[c.Branch] = c
	}

	require.Len(t, got, 4)
	assert.False(t, got[models.MainBranch].Prune)
	assert.Equal(t, "matches preserve list", got["keep-me"].Reason)
	assert.Equal(t, "unsaved working file", got["dirty"].Reason)
	assert.True(t, got["old-idea"].Prune)

	for _, c := range f.repo.PruneCandidates(24*time.Hour, nil) {
		assert.False(t, c.Prune, c.Branch)
	}
}

func TestArchiveBranch(t *testing.T) {
	f := newFixture(t, nil)
	f.save(t, models.MainBranch, "Initial")

	var buf bytes.Buffer
	n, err := f.repo.ArchiveBranch(models.MainBranch, &buf)
	require.NoError(t, err)
	// The fake export copies the design, so both share one object.
	assert.Equal(t, 2, n)

	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	require.Len(t, names, 2)
	assert.Equal(t, "main/branch.json", names[0])
	assert.True(t, strings.HasPrefix(names[1], "main/objects/"))

	_, err = f.repo.ArchiveBranch("ghost", io.Discard)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
