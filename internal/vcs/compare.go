package vcs

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"github.com/tadoEng/EtabExtension/internal/diff"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

// VersionRef names a version of a branch.
type VersionRef struct {
	Branch    string `json:"branch" validate:"required"`
	VersionID string `json:"versionId" validate:"required"`
}

func (v VersionRef) String() string {
	return v.Branch + "/" + v.VersionID
}

// CompareResult holds the requested diffs. A diff that was not requested is
// nil.
type CompareResult struct {
	E2KDiff      *models.E2KDiffResult      `json:"e2kDiff,omitempty"`
	GeometryDiff *models.GeometryDiffResult `json:"geometryDiff,omitempty"`
}

// CompareOptions tunes the comparison.
type CompareOptions struct {
	// Context is the number of context lines in the raw E2K diff.
	Context int
}

// Compare diffs the E2K exports of two versions. Both versions must have
// been saved with an export. The read lock is held throughout, so neither
// branch can be deleted while the diff runs.
func (r *Repository) Compare(ctx context.Context, a, b VersionRef, diffType models.DiffType, opts CompareOptions) (*CompareResult, error) {
	if !diffType.WantsE2K() && !diffType.WantsGeometry() {
		return nil, errs.E(errs.InvalidRequest, "unknown diff type %q (use e2k, geometry or both)", diffType)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	left, err := r.exportOf(a)
	if err != nil {
		return nil, err
	}
	right, err := r.exportOf(b)
	if err != nil {
		return nil, err
	}

	result := &CompareResult{}
	p := pool.New().WithErrors().WithContext(ctx)
	if diffType.WantsE2K() {
		p.Go(func(context.Context) error {
			res, err := diff.E2K(left, right, diff.Options{
				FromLabel: a.String(),
				ToLabel:   b.String(),
				Context:   opts.Context,
			})
			result.E2KDiff = res
			return err
		})
	}
	if diffType.WantsGeometry() {
		p.Go(func(context.Context) error {
			res, err := diff.Geometry(left, right)
			result.GeometryDiff = res
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	r.log.Debug("versions compared", "a", a.String(), "b", b.String(), "type", diffType)
	return result, nil
}

// exportOf reads the E2K export of a version. Callers hold the read lock.
func (r *Repository) exportOf(ref VersionRef) ([]byte, error) {
	b, ok := r.state.Branches[ref.Branch]
	if !ok {
		return nil, errs.E(errs.NotFound, "branch %q not found", ref.Branch)
	}
	v := b.Version(ref.VersionID)
	if v == nil {
		return nil, errs.E(errs.NotFound, "version %s not found", ref)
	}
	if !v.HasExport() {
		return nil, errs.E(errs.NotFound, "version %s has no E2K export (save it with E2K generation)", ref)
	}
	return r.store.GetSnapshot(v.Export)
}
