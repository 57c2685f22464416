package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/testutil"
)

func TestShowVersion(t *testing.T) {
	setupProject(t)
	saveVersion(t, "main", "Initial design")

	showOut.json = true
	out, err := captureStdout(t, func() error { return runShow(nil, []string{"main/v1"}) })
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}

	var v models.Version
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if v.ID != "v1" || v.Message != "Initial design" {
		t.Errorf("unexpected version %+v", v)
	}

	showOut.json = false
	out, err = captureStdout(t, func() error { return runShow(nil, []string{"v1"}) })
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "Initial design") {
		t.Errorf("expected the message in the output:\n%s", out)
	}
}

func TestShowMissingVersion(t *testing.T) {
	setupProject(t)

	err := runShow(nil, []string{"main/v4"})
	if errs.KindOf(err) != errs.NotFound {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestAnalysisRecordsResults(t *testing.T) {
	p := setupProject(t)
	saveVersion(t, "main", "Initial design")

	analysisFile = p.CreateFile("results.json", `{
  "maxDisplacement": 42.5,
  "maxDrift": 0.012,
  "baseShear": 1850,
  "passedMembers": 118,
  "failedMembers": 2,
  "utilizationRatio": 0.93
}`)
	if err := runAnalysis(nil, []string{"main/v1"}); err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	v := p.Branch("main").Versions[0]
	if !v.Analyzed || v.AnalysisResults == nil {
		t.Fatal("expected analysis results on the version")
	}
	ar := v.AnalysisResults
	if ar.PassedMembers != 118 || ar.FailedMembers != 2 {
		t.Errorf("unexpected member counts %d/%d", ar.PassedMembers, ar.FailedMembers)
	}
	if ar.Timestamp.IsZero() {
		t.Error("expected a timestamp to be filled in")
	}
	if v.CommitHash == "" || v.Message != "Initial design" {
		t.Error("recording analysis must not change the version itself")
	}
}

func TestAnalysisBadFile(t *testing.T) {
	p := setupProject(t)
	saveVersion(t, "main", "Initial design")

	analysisFile = p.CreateFile("results.json", "not json")
	if err := runAnalysis(nil, []string{"main/v1"}); err == nil {
		t.Fatal("expected error for malformed analysis results")
	}

	analysisFile = filepath.Join(p.Path, "missing.json")
	if err := runAnalysis(nil, []string{"main/v1"}); err == nil {
		t.Fatal("expected error for a missing results file")
	}
}

func TestOpenWritesVersionCopy(t *testing.T) {
	p := setupTwoBranches(t)

	if err := runOpen(nil, []string{"steel-columns/v1"}); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	path := filepath.Join(p.Path, "steel-columns-v1.edb")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("copy was not written: %v", err)
	}
	if string(data) != testutil.SampleE2K("W14X120") {
		t.Error("copy does not hold the saved design")
	}

	if err := runOpen(nil, []string{"steel-columns/v1"}); err == nil {
		t.Error("expected error when the copy already exists")
	}
	openOverwrite = true
	if err := runOpen(nil, []string{"steel-columns/v1"}); err != nil {
		t.Errorf("open --overwrite failed: %v", err)
	}
}

func TestRelatedVersions(t *testing.T) {
	setupTwoBranches(t)
	saveVersion(t, "main", "Second main version")

	relatedOut.json = true
	out, err := captureStdout(t, func() error { return runRelated(nil, []string{"main/v1"}) })
	if err != nil {
		t.Fatalf("related failed: %v", err)
	}

	var related []relatedVersion
	if err := json.Unmarshal([]byte(out), &related); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(related) != 2 {
		t.Fatalf("expected 2 related versions, got %+v", related)
	}
	if related[0].Branch != "steel-columns" || related[0].Score != 100 {
		t.Errorf("expected the branch started from main/v1 first, got %+v", related[0])
	}
	// main/v2 is adjacent and has identical content
	if related[1].Branch != "main" || related[1].Version != "v2" || related[1].Score != 70 {
		t.Errorf("unexpected second result %+v", related[1])
	}
}
