package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Version is an immutable snapshot of a branch's design file.
type Version struct {
	ID              string           `json:"id"`
	Timestamp       time.Time        `json:"timestamp"`
	Message         string           `json:"message"`
	Author          string           `json:"author,omitempty"`
	CommitHash      string           `json:"commitHash"`
	Snapshot        SnapshotRef      `json:"snapshot"`
	Export          SnapshotRef      `json:"export,omitempty"`
	FileSize        int64            `json:"fileSize"`
	ExportSize      int64            `json:"exportSize,omitempty"`
	Analyzed        bool             `json:"analyzed"`
	AnalysisResults *AnalysisResults `json:"analysisResults,omitempty"`
}

// HasExport reports whether an E2K export was stored with the version.
func (v *Version) HasExport() bool {
	return v.Export != ""
}

// Clone returns a deep copy of the version.
func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	c := *v
	if v.AnalysisResults != nil {
		ar := *v.AnalysisResults
		ar.ReportPaths = append([]string(nil), v.AnalysisResults.ReportPaths...)
		c.AnalysisResults = &ar
	}
	return &c
}

// AnalysisResults holds structural analysis figures extracted from ETABS.
type AnalysisResults struct {
	Timestamp         time.Time `json:"timestamp"`
	MaxDisplacement   float64   `json:"maxDisplacement"`   // mm
	MaxDrift          float64   `json:"maxDrift"`          // %
	BaseShear         float64   `json:"baseShear"`         // kN
	OverturningMoment float64   `json:"overturningMoment"` // kN·m
	MaxColumnForce    float64   `json:"maxColumnForce"`    // kN
	MaxBeamMoment     float64   `json:"maxBeamMoment"`     // kN·m
	MaxShellStress    float64   `json:"maxShellStress"`    // MPa
	PassedMembers     int       `json:"passedMembers"`
	FailedMembers     int       `json:"failedMembers"`
	UtilizationRatio  float64   `json:"utilizationRatio"` // %
	ReportPaths       []string  `json:"reportPaths,omitempty"`
}

// VersionID formats the sequential id for the n-th version of a branch.
// Format: v<n>
func VersionID(n int) string {
	return fmt.Sprintf("v%d", n)
}

// VersionSequence parses a version id back into its sequence number.
func VersionSequence(id string) (int, bool) {
	if !strings.HasPrefix(id, "v") {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
