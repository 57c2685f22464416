package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
	"github.com/tadoEng/EtabExtension/internal/vcs"
)

func TestDiffCommand(t *testing.T) {
	setupTwoBranches(t)

	diffOut.json = true
	out, err := captureStdout(t, func() error {
		return runDiff(nil, []string{"main/v1", "steel-columns/v1"})
	})
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}

	var result vcs.CompareResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("diff --json output is not JSON: %v\n%s", err, out)
	}
	if result.E2KDiff == nil {
		t.Fatal("expected an E2K diff")
	}
	if result.E2KDiff.Modified != 1 || len(result.E2KDiff.Changes) != 1 {
		t.Fatalf("expected one modified section, got %+v", result.E2KDiff)
	}
	c := result.E2KDiff.Changes[0]
	if c.Category != models.CategorySection || c.OldValue != "W14X90" || c.NewValue != "W14X120" {
		t.Errorf("unexpected change %+v", c)
	}
	if result.GeometryDiff == nil || result.GeometryDiff.TotalChanges != 0 {
		t.Errorf("expected an empty geometry diff, got %+v", result.GeometryDiff)
	}
}

func TestDiffText(t *testing.T) {
	setupTwoBranches(t)

	out, err := captureStdout(t, func() error {
		return runDiff(nil, []string{"main/v1", "steel-columns/v1"})
	})
	if err != nil {
		t.Fatalf("diff failed: %v", err)
	}
	if !strings.Contains(out, "W14X120") {
		t.Errorf("expected the new section in the output:\n%s", out)
	}

	diffRaw = true
	out, err = captureStdout(t, func() error {
		return runDiff(nil, []string{"main/v1", "steel-columns/v1"})
	})
	if err != nil {
		t.Fatalf("diff --raw failed: %v", err)
	}
	if !strings.Contains(out, "@@") {
		t.Errorf("expected a unified diff hunk:\n%s", out)
	}
}

func TestDiffGeometryOnly(t *testing.T) {
	setupTwoBranches(t)

	diffType = string(models.DiffGeometry)
	diffOut.json = true
	out, err := captureStdout(t, func() error {
		return runDiff(nil, []string{"main/v1", "steel-columns/v1"})
	})
	if err != nil {
		t.Fatalf("diff --type geometry failed: %v", err)
	}

	var result vcs.CompareResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if result.E2KDiff != nil {
		t.Error("E2K diff was not requested")
	}
	if result.GeometryDiff == nil {
		t.Error("expected a geometry diff")
	}
}

func TestDiffErrors(t *testing.T) {
	setupProject(t)
	saveNoE2K = true
	saveVersion(t, "main", "No export")
	saveNoE2K = false
	saveVersion(t, "main", "With export")

	err := runDiff(nil, []string{"v1", "v2"})
	if errs.KindOf(err) != errs.NotFound {
		t.Errorf("expected NotFound for a version without export, got %v", err)
	}

	diffType = "xml"
	err = runDiff(nil, []string{"v2", "v2"})
	if errs.KindOf(err) != errs.InvalidRequest {
		t.Errorf("expected InvalidRequest for an unknown diff type, got %v", err)
	}
}
