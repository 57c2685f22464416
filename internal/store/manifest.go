package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

const manifestFileName = "project.json"

// ManifestPath returns the location of the project manifest.
func (s *Store) ManifestPath() string {
	return filepath.Join(s.root, manifestFileName)
}

// HasManifest reports whether the project has been initialised.
func (s *Store) HasManifest() bool {
	ok, err := afero.Exists(s.fs, s.ManifestPath())
	return err == nil && ok
}

// LoadManifest reads the project state.
func (s *Store) LoadManifest() (*models.ProjectState, error) {
	data, err := afero.ReadFile(s.fs, s.ManifestPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.E(errs.NotFound, "no project found at %s", filepath.Dir(s.root))
		}
		return nil, errs.IO(err, "failed to read project manifest")
	}
	var state models.ProjectState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errs.Wrap(errs.IOFailure, err, "corrupt project manifest")
	}
	if state.Branches == nil {
		state.Branches = make(map[string]*models.Branch)
	}
	return &state, nil
}

// ManifestDigest returns the digest of the manifest bytes on disk, so a
// handle can tell whether another process rewrote it.
func (s *Store) ManifestDigest() (string, error) {
	data, err := afero.ReadFile(s.fs, s.ManifestPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errs.E(errs.NotFound, "no project found at %s", filepath.Dir(s.root))
		}
		return "", errs.IO(err, "failed to read project manifest")
	}
	return Digest(data), nil
}

// SaveManifest rewrites the manifest atomically.
func (s *Store) SaveManifest(state *models.ProjectState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Internal, err, "failed to marshal project manifest")
	}
	if err := s.WriteFileAtomic(s.ManifestPath(), append(data, '\n')); err != nil {
		return errs.IO(err, "failed to write project manifest")
	}
	return nil
}
