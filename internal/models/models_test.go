package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRefParse(t *testing.T) {
	ref := NewSnapshotRef("steel-columns", "ab12cd")

	branch, digest, err := ref.Parse()
	require.NoError(t, err)
	assert.Equal(t, "steel-columns", branch)
	assert.Equal(t, "ab12cd", digest)

	for _, bad := range []SnapshotRef{"", "nodigest", ":abc", "main:"} {
		_, _, err := bad.Parse()
		assert.Error(t, err, "ref %q", bad)
	}
}

func TestVersionSequence(t *testing.T) {
	n, ok := VersionSequence(VersionID(12))
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	for _, bad := range []string{"", "v", "v0", "x3", "v-1"} {
		_, ok := VersionSequence(bad)
		assert.False(t, ok, bad)
	}
}

func TestProjectStateCloneIsDeep(t *testing.T) {
	now := time.Now()
	state := &ProjectState{
		CurrentBranch: MainBranch,
		Branches: map[string]*Branch{
			MainBranch: {
				Name:     MainBranch,
				Versions: []*Version{{ID: "v1", Message: "Initial design"}},
				WorkingFile: &WorkingFile{
					Exists:       true,
					LastModified: &now,
				},
			},
		},
	}

	clone := state.Clone()
	clone.Branches[MainBranch].Versions[0].Message = "changed"
	clone.Branches[MainBranch].WorkingFile.HasUnsavedChanges = true
	clone.Branches["other"] = &Branch{Name: "other"}

	assert.Equal(t, "Initial design", state.Branches[MainBranch].Versions[0].Message)
	assert.False(t, state.Branches[MainBranch].WorkingFile.HasUnsavedChanges)
	assert.Len(t, state.Branches, 1)
}

func TestBranchNamesMainFirst(t *testing.T) {
	state := &ProjectState{Branches: map[string]*Branch{
		"alpha": {}, MainBranch: {}, "steel": {},
	}}
	assert.Equal(t, []string{MainBranch, "alpha", "steel"}, state.BranchNames())
}
