package models

import (
	"sort"
	"time"
)

const (
	// MainBranch is the root branch every project has. It cannot be deleted.
	MainBranch = "main"
	// FormatVersion is the manifest schema version.
	FormatVersion = 1
)

// ProjectState is the single source of truth for a project. It is persisted
// as the project manifest and returned to callers after every mutation.
type ProjectState struct {
	ID                string             `json:"id"`
	ProjectPath       string             `json:"projectPath"`
	ProjectName       string             `json:"projectName"`
	CurrentBranch     string             `json:"currentBranch"`
	Created           time.Time          `json:"created"`
	LastModified      time.Time          `json:"lastModified"`
	Branches          map[string]*Branch `json:"branches"`
	VersionControlled bool               `json:"versionControlled"`
	FormatVersion     int                `json:"formatVersion"`
}

// Branch is an independently versioned line of design development.
type Branch struct {
	Name          string       `json:"name"`
	LatestVersion string       `json:"latestVersion,omitempty"`
	ParentBranch  string       `json:"parentBranch,omitempty"`
	ParentVersion string       `json:"parentVersion,omitempty"`
	Created       time.Time    `json:"created"`
	Description   string       `json:"description,omitempty"`
	Versions      []*Version   `json:"versions"`
	NextSequence  int          `json:"nextSequence"`
	WorkingFile   *WorkingFile `json:"workingFile"`
}

// WorkingFile is the single mutable, uncommitted design file of a branch.
type WorkingFile struct {
	Exists            bool       `json:"exists"`
	SourceBranch      string     `json:"sourceBranch,omitempty"`
	SourceVersion     string     `json:"sourceVersion,omitempty"`
	IsOpen            bool       `json:"isOpen"`
	HasUnsavedChanges bool       `json:"hasUnsavedChanges"`
	LastModified      *time.Time `json:"lastModified"`
	Path              string     `json:"path"`
	BaseDigest        string     `json:"baseDigest,omitempty"`
}

// Clone returns a deep copy of the project state.
func (p *ProjectState) Clone() *ProjectState {
	if p == nil {
		return nil
	}
	c := *p
	c.Branches = make(map[string]*Branch, len(p.Branches))
	for name, b := range p.Branches {
		c.Branches[name] = b.Clone()
	}
	return &c
}

// BranchNames returns the branch names in lexical order, main first.
func (p *ProjectState) BranchNames() []string {
	names := make([]string, 0, len(p.Branches))
	for name := range p.Branches {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == MainBranch {
			return true
		}
		if names[j] == MainBranch {
			return false
		}
		return names[i] < names[j]
	})
	return names
}

// Clone returns a deep copy of the branch.
func (b *Branch) Clone() *Branch {
	if b == nil {
		return nil
	}
	c := *b
	c.Versions = make([]*Version, len(b.Versions))
	for i, v := range b.Versions {
		c.Versions[i] = v.Clone()
	}
	c.WorkingFile = b.WorkingFile.Clone()
	return &c
}

// Version returns the version with the given id, or nil.
func (b *Branch) Version(id string) *Version {
	for _, v := range b.Versions {
		if v.ID == id {
			return v
		}
	}
	return nil
}

// Latest returns the most recently saved version, or nil if none exist.
func (b *Branch) Latest() *Version {
	if len(b.Versions) == 0 {
		return nil
	}
	return b.Versions[len(b.Versions)-1]
}

// LastActivity returns the time of the newest version, or the branch
// creation time when no version exists.
func (b *Branch) LastActivity() time.Time {
	if v := b.Latest(); v != nil {
		return v.Timestamp
	}
	return b.Created
}

// HasUnsavedChanges reports whether the branch's working file is dirty.
func (b *Branch) HasUnsavedChanges() bool {
	return b.WorkingFile != nil && b.WorkingFile.Exists && b.WorkingFile.HasUnsavedChanges
}

// Clone returns a copy of the working file record.
func (w *WorkingFile) Clone() *WorkingFile {
	if w == nil {
		return nil
	}
	c := *w
	if w.LastModified != nil {
		t := *w.LastModified
		c.LastModified = &t
	}
	return &c
}
