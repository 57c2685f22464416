package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/etabs"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/store"
)

// TempProject is a scratch directory holding one project
type TempProject struct {
	Path string
	T    *testing.T
}

// NewTempProject creates an empty directory to hold a project
func NewTempProject(t *testing.T) *TempProject {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "etabext-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	tmpDir, err = filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("failed to resolve temp dir: %v", err)
	}

	return &TempProject{
		Path: tmpDir,
		T:    t,
	}
}

// Cleanup removes the project directory
func (p *TempProject) Cleanup() {
	p.T.Helper()
	if err := os.RemoveAll(p.Path); err != nil {
		p.T.Errorf("failed to cleanup temp project: %v", err)
	}
}

// Chdir switches into the project until the test ends
func (p *TempProject) Chdir() {
	p.T.Helper()
	oldWd, err := os.Getwd()
	if err != nil {
		p.T.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(p.Path); err != nil {
		p.T.Fatalf("failed to chdir: %v", err)
	}
	p.T.Cleanup(func() { os.Chdir(oldWd) })
}

// CreateFile writes a file relative to the project directory and returns its
// absolute path
func (p *TempProject) CreateFile(name, content string) string {
	p.T.Helper()
	path := filepath.Join(p.Path, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		p.T.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.T.Fatalf("failed to create file: %v", err)
	}
	return path
}

// WriteWorkingFile replaces a branch's working file, as ETABS would on save
func (p *TempProject) WriteWorkingFile(branch, designFile, content string) {
	p.T.Helper()
	s := store.New(nil, p.Path)
	path := s.WorkingFilePath(branch, designFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		p.T.Fatalf("failed to create working directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.T.Fatalf("failed to write working file: %v", err)
	}
}

// Manifest reads the persisted project state
func (p *TempProject) Manifest() *models.ProjectState {
	p.T.Helper()
	data, err := os.ReadFile(store.New(nil, p.Path).ManifestPath())
	if err != nil {
		p.T.Fatalf("failed to read manifest: %v", err)
	}
	var state models.ProjectState
	if err := json.Unmarshal(data, &state); err != nil {
		p.T.Fatalf("failed to parse manifest: %v", err)
	}
	return &state
}

// Branch returns a branch from the persisted state, failing the test when it
// does not exist
func (p *TempProject) Branch(name string) *models.Branch {
	p.T.Helper()
	b, ok := p.Manifest().Branches[name]
	if !ok {
		p.T.Fatalf("branch %s not found in manifest", name)
	}
	return b
}

// BranchExists checks the persisted state for a branch
func (p *TempProject) BranchExists(name string) bool {
	p.T.Helper()
	_, ok := p.Manifest().Branches[name]
	return ok
}

// AgeBranch moves a branch's creation and version times back by d, as if it
// had been idle that long
func (p *TempProject) AgeBranch(name string, d time.Duration) {
	p.T.Helper()
	s := store.New(afero.NewOsFs(), p.Path)
	state, err := s.LoadManifest()
	if err != nil {
		p.T.Fatalf("failed to load manifest: %v", err)
	}
	b, ok := state.Branches[name]
	if !ok {
		p.T.Fatalf("branch %s not found in manifest", name)
	}
	b.Created = b.Created.Add(-d)
	for _, v := range b.Versions {
		v.Timestamp = v.Timestamp.Add(-d)
	}
	if err := s.SaveManifest(state); err != nil {
		p.T.Fatalf("failed to save manifest: %v", err)
	}
}

// SampleE2K returns a one-column E2K model whose column section has the
// given steel shape.
func SampleE2K(shape string) string {
	return fmt.Sprintf(`$ PROGRAM INFORMATION
  PROGRAM  "ETABS"  VERSION "21.0.0"
$ STORIES - IN SEQUENCE FROM TOP
  STORY "STORY1"  HEIGHT 144
  STORY "BASE"  ELEV 0
$ MATERIAL PROPERTIES
  MATERIAL  "A992Fy50"  TYPE "Steel"  FY 50
$ FRAME SECTIONS
  FRAMESECTION  "C1"  MATERIAL "A992Fy50"  SHAPE "%s"
$ POINT COORDINATES
  POINT "1"  0  0
$ LINE CONNECTIVITIES
  LINE  "C1"  COLUMN  "1"  "1"  1
$ LINE ASSIGNS
  LINEASSIGN  "C1"  "STORY1"  SECTION "C1"
$ END OF MODEL FILE
`, shape)
}

// FakeTool stands in for ETABS and its sidecar CLI. Export copies the
// design file to the output path, so a design file holding E2K text yields
// a diffable export.
type FakeTool struct {
	mu        sync.Mutex
	open      string
	pid       int
	ExportErr error
	Closes    int
}

// NewFakeTool returns a FakeTool with no open session
func NewFakeTool() *FakeTool {
	return &FakeTool{}
}

// Reset forgets the open session and any injected failure
func (f *FakeTool) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = ""
	f.ExportErr = nil
	f.Closes = 0
}

func (f *FakeTool) Status() etabs.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open == "" {
		return etabs.Status{}
	}
	return etabs.Status{IsRunning: true, OpenFilePath: f.open, ProcessID: 4000 + f.pid, CanSave: true}
}

func (f *FakeTool) Open(path string) (*etabs.OpenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open != "" {
		return nil, errs.E(errs.AlreadyRunning, "ETABS already has %s open", f.open)
	}
	f.pid++
	f.open = path
	return &etabs.OpenResult{Opened: true, ProcessID: 4000 + f.pid}, nil
}

func (f *FakeTool) Close(_ context.Context, save bool) (*etabs.CloseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.open == "" {
		return nil, errs.E(errs.NotRunning, "ETABS is not running")
	}
	f.open = ""
	f.Closes++
	return &etabs.CloseResult{Closed: true, ChangesSaved: save}, nil
}

func (f *FakeTool) Export(_ context.Context, input, output string, overwrite bool) (*etabs.ExportResult, error) {
	if f.ExportErr != nil {
		return nil, f.ExportErr
	}
	if output == "" {
		output = etabs.DefaultOutput(input)
	}
	if _, err := os.Stat(output); err == nil && !overwrite {
		return nil, errs.E(errs.OutputExists, "%s already exists", output)
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, errs.E(errs.NotFound, "%s not found", input)
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return nil, errs.IO(err, "failed to write %s", output)
	}
	return &etabs.ExportResult{OutputPath: output, SizeBytes: int64(len(data)), Messages: []string{"exported"}}, nil
}

func (f *FakeTool) Validate(_ context.Context, path string) (*etabs.ValidationReport, error) {
	if _, err := os.Stat(path); err != nil {
		return &etabs.ValidationReport{Valid: false, Error: "file not found"}, nil
	}
	valid := strings.EqualFold(filepath.Ext(path), etabs.DesignExt)
	exists := true
	return &etabs.ValidationReport{Valid: valid, Data: etabs.ValidationData{
		EtabsInstalled: true,
		FilePath:       path,
		FileExists:     &exists,
		FileValid:      &valid,
		FileExtension:  filepath.Ext(path),
	}}, nil
}

func (f *FakeTool) CLIAvailable() bool { return true }

func (f *FakeTool) CLIVersion(context.Context) (string, error) { return "etab-cli 1.0.0-test", nil }
