// Package branches is the branch graph of a project: branch metadata,
// parent lineage and the append-only version sequence of every branch.
//
// A Graph operates in memory on a ProjectState. Persisting the state is the
// caller's job; the version control engine mutates a clone and only swaps it
// in once the manifest write succeeded.
package branches

import (
	"regexp"
	"strings"
	"time"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

const maxNameLength = 64

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Graph indexes the branches of one project state.
type Graph struct {
	state *models.ProjectState
}

// New wraps state. The graph mutates state in place.
func New(state *models.ProjectState) *Graph {
	if state.Branches == nil {
		state.Branches = make(map[string]*models.Branch)
	}
	return &Graph{state: state}
}

// ValidateName checks that name can be used as a branch name and as a
// directory name in the content store.
func ValidateName(name string) error {
	if name == "" {
		return errs.E(errs.InvalidName, "branch name is required")
	}
	if len(name) > maxNameLength {
		return errs.E(errs.InvalidName, "branch name %q is longer than %d characters", name, maxNameLength)
	}
	if !validName.MatchString(name) || strings.Contains(name, "..") {
		return errs.E(errs.InvalidName, "invalid branch name %q (use letters, digits, '.', '_' or '-')", name)
	}
	return nil
}

// Branch returns the named branch.
func (g *Graph) Branch(name string) (*models.Branch, error) {
	b, ok := g.state.Branches[name]
	if !ok {
		return nil, errs.E(errs.NotFound, "branch %q not found", name)
	}
	return b, nil
}

// List returns all branches, main first then by name.
func (g *Graph) List() []*models.Branch {
	names := g.state.BranchNames()
	out := make([]*models.Branch, 0, len(names))
	for _, name := range names {
		out = append(out, g.state.Branches[name])
	}
	return out
}

// ResolveVersion returns a version of a branch.
func (g *Graph) ResolveVersion(branch, versionID string) (*models.Version, error) {
	b, err := g.Branch(branch)
	if err != nil {
		return nil, err
	}
	v := b.Version(versionID)
	if v == nil {
		return nil, errs.E(errs.NotFound, "version %s not found on branch %q", versionID, branch)
	}
	return v, nil
}

// InitMain creates the root branch. It is a no-op if main already exists.
func (g *Graph) InitMain(now time.Time) *models.Branch {
	if b, ok := g.state.Branches[models.MainBranch]; ok {
		return b
	}
	b := &models.Branch{
		Name:     models.MainBranch,
		Created:  now,
		Versions: []*models.Version{},
	}
	g.state.Branches[models.MainBranch] = b
	return b
}

// Create adds a branch forked from fromBranch at fromVersion. The parent
// version is returned so the caller can seed the working file from its
// snapshot. Nothing is added on failure.
func (g *Graph) Create(name, fromBranch, fromVersion, description string, now time.Time) (*models.Branch, *models.Version, error) {
	if err := ValidateName(name); err != nil {
		return nil, nil, err
	}
	if _, exists := g.state.Branches[name]; exists {
		return nil, nil, errs.E(errs.DuplicateName, "branch %q already exists", name)
	}
	parent, ok := g.state.Branches[fromBranch]
	if !ok {
		return nil, nil, errs.E(errs.InvalidParent, "parent branch %q does not exist", fromBranch)
	}
	pv := parent.Version(fromVersion)
	if pv == nil {
		return nil, nil, errs.E(errs.InvalidParent, "version %q does not exist on branch %q", fromVersion, fromBranch)
	}

	b := &models.Branch{
		Name:          name,
		ParentBranch:  fromBranch,
		ParentVersion: fromVersion,
		Created:       now,
		Description:   strings.TrimSpace(description),
		Versions:      []*models.Version{},
	}
	g.state.Branches[name] = b
	return b, pv, nil
}

// Deleted describes a removed branch.
type Deleted struct {
	Branch     *models.Branch
	VersionIDs []string
}

// CheckDelete reports whether name may be deleted without mutating anything.
func (g *Graph) CheckDelete(name string, force bool) (*models.Branch, error) {
	if name == models.MainBranch {
		return nil, errs.E(errs.ProtectedBranch, "branch %q cannot be deleted", models.MainBranch)
	}
	b, err := g.Branch(name)
	if err != nil {
		return nil, err
	}
	if !force && b.HasUnsavedChanges() {
		return nil, errs.E(errs.HasUncommittedChanges, "branch %q has unsaved changes (use force to delete anyway)", name)
	}
	return b, nil
}

// Delete removes a branch from the graph. If it was the current branch the
// current pointer moves back to main.
func (g *Graph) Delete(name string, force bool) (*Deleted, error) {
	b, err := g.CheckDelete(name, force)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(b.Versions))
	for _, v := range b.Versions {
		ids = append(ids, v.ID)
	}
	delete(g.state.Branches, name)
	if g.state.CurrentBranch == name {
		g.state.CurrentBranch = models.MainBranch
	}
	return &Deleted{Branch: b, VersionIDs: ids}, nil
}

// AppendVersion allocates the next sequential id for branch, appends v and
// moves latestVersion to it. Ids are never reused.
func (g *Graph) AppendVersion(branch string, v *models.Version) error {
	b, err := g.Branch(branch)
	if err != nil {
		return err
	}
	next := b.NextSequence
	if next < 1 {
		next = 1
	}
	// A manifest edited by hand could have a stale counter; never go backwards.
	for _, existing := range b.Versions {
		if n, ok := models.VersionSequence(existing.ID); ok && n >= next {
			next = n + 1
		}
	}
	v.ID = models.VersionID(next)
	b.Versions = append(b.Versions, v)
	b.NextSequence = next + 1
	b.LatestVersion = v.ID
	return nil
}

// SetCurrent moves the current branch pointer.
func (g *Graph) SetCurrent(name string) error {
	if _, err := g.Branch(name); err != nil {
		return err
	}
	g.state.CurrentBranch = name
	return nil
}

// Lineage returns the chain of ancestors of a branch, nearest first, as
// "branch@version" pairs.
func (g *Graph) Lineage(name string) ([]string, error) {
	b, err := g.Branch(name)
	if err != nil {
		return nil, err
	}
	var chain []string
	seen := map[string]bool{name: true}
	for b.ParentBranch != "" {
		chain = append(chain, b.ParentBranch+"@"+b.ParentVersion)
		if seen[b.ParentBranch] {
			break
		}
		seen[b.ParentBranch] = true
		parent, ok := g.state.Branches[b.ParentBranch]
		if !ok {
			break
		}
		b = parent
	}
	return chain, nil
}
