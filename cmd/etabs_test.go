package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/etabs"
)

func TestEtabsOpenAndClose(t *testing.T) {
	p := setupProject(t)

	if err := runEtabsOpen(nil, nil); err != nil {
		t.Fatalf("etabs open failed: %v", err)
	}
	status := fakeTool.Status()
	if !status.IsRunning {
		t.Fatal("expected ETABS to be running")
	}
	if status.OpenFilePath != p.Branch("main").WorkingFile.Path {
		t.Errorf("expected main's working file open, got %s", status.OpenFilePath)
	}

	err := runEtabsOpen(nil, nil)
	if errs.KindOf(err) != errs.AlreadyRunning {
		t.Errorf("expected AlreadyRunning on a second open, got %v", err)
	}

	if err := runEtabsClose(nil, nil); err != nil {
		t.Fatalf("etabs close failed: %v", err)
	}
	if fakeTool.Status().IsRunning {
		t.Error("expected ETABS to be closed")
	}

	err = runEtabsClose(nil, nil)
	if errs.KindOf(err) != errs.NotRunning {
		t.Errorf("expected NotRunning closing twice, got %v", err)
	}
}

func TestEtabsOpenVersion(t *testing.T) {
	p := setupProject(t)
	saveVersion(t, "main", "Initial design")

	if err := runEtabsOpen(nil, []string{"main/v1"}); err != nil {
		t.Fatalf("etabs open main/v1 failed: %v", err)
	}

	opened := fakeTool.Status().OpenFilePath
	if opened == p.Branch("main").WorkingFile.Path {
		t.Error("opening a version must not open the working file")
	}
	if !strings.HasSuffix(opened, "v1"+etabs.DesignExt) {
		t.Errorf("expected a view of v1, got %s", opened)
	}
}

func TestEtabsStatus(t *testing.T) {
	setupProject(t)

	etabsStatusOut.json = true
	out, err := captureStdout(t, func() error { return runEtabsStatus(nil, nil) })
	if err != nil {
		t.Fatalf("etabs status failed: %v", err)
	}
	var status etabs.Status
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if status.IsRunning {
		t.Error("ETABS should not be running")
	}
}

func TestEtabsValidate(t *testing.T) {
	p := setupProject(t)

	good := p.CreateFile("models/good.edb", "model")
	if err := runEtabsValidate(nil, []string{good}); err != nil {
		t.Fatalf("validate failed: %v", err)
	}

	etabsCheckOut.json = true
	bad := p.CreateFile("models/bad.txt", "text")
	out, err := captureStdout(t, func() error { return runEtabsValidate(nil, []string{bad}) })
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	var report etabs.ValidationReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if report.Valid {
		t.Error("a .txt file should not validate")
	}
}

func TestEtabsCLI(t *testing.T) {
	setupProject(t)

	out, err := captureStdout(t, func() error { return runEtabsCLI(nil, nil) })
	if err != nil {
		t.Fatalf("etabs cli failed: %v", err)
	}
	if !strings.Contains(out, "etab-cli 1.0.0-test") {
		t.Errorf("expected the CLI version in the output:\n%s", out)
	}
}

func TestSessionFileIsShared(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, ".config", "etabext", "etabs-session.json")
	if got := sessionFile(); got != want {
		t.Errorf("expected the session file in the config directory, got %s", got)
	}
}
