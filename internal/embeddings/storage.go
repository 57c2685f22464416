// Package embeddings keeps vector embeddings of version messages next to the
// versions they describe and scores them against a search query.
package embeddings

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tadoEng/EtabExtension/internal/errs"
)

const dirName = "embeddings"

// Store reads and writes embeddings under each branch's directory, so a
// branch's embeddings go away with the branch.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a store over branchesDir (see store.Store.BranchesDir).
func NewStore(fsys afero.Fs, branchesDir string) *Store {
	return &Store{fs: fsys, root: branchesDir}
}

// Path returns where the embedding of a version lives.
// Layout: <branch>/embeddings/<version>.bin
func (s *Store) Path(branch, versionID string) string {
	return filepath.Join(s.root, branch, dirName, versionID+".bin")
}

// Put stores vec for a version, replacing any previous embedding.
func (s *Store) Put(branch, versionID string, vec []float64) error {
	data, err := Encode(vec)
	if err != nil {
		return err
	}
	path := s.Path(branch, versionID)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.IO(err, "failed to create embeddings directory")
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return errs.IO(err, "failed to write embedding of %s@%s", branch, versionID)
	}
	return nil
}

// Get loads the embedding of a version.
func (s *Store) Get(branch, versionID string) ([]float64, error) {
	data, err := afero.ReadFile(s.fs, s.Path(branch, versionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.E(errs.NotFound, "no embedding for %s@%s", branch, versionID)
		}
		return nil, errs.IO(err, "failed to read embedding of %s@%s", branch, versionID)
	}
	return Decode(data)
}

// Has reports whether a version has an embedding.
func (s *Store) Has(branch, versionID string) bool {
	ok, err := afero.Exists(s.fs, s.Path(branch, versionID))
	return err == nil && ok
}

// Encode serialises vec as little-endian float64 values.
func Encode(vec []float64) ([]byte, error) {
	if err := Validate(vec); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(vec) * 8)
	if err := binary.Write(&buf, binary.LittleEndian, vec); err != nil {
		return nil, fmt.Errorf("failed to encode embedding: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) ([]float64, error) {
	if len(data) == 0 {
		return nil, errs.E(errs.ParseError, "embedding is empty")
	}
	if len(data)%8 != 0 {
		return nil, errs.E(errs.ParseError, "invalid embedding size %d (not a multiple of 8)", len(data))
	}
	vec := make([]float64, len(data)/8)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, vec); err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "failed to decode embedding")
	}
	return vec, nil
}

// Validate rejects empty vectors and non-finite components.
func Validate(vec []float64) error {
	if len(vec) == 0 {
		return errs.E(errs.InvalidRequest, "embedding vector is empty")
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errs.E(errs.InvalidRequest, "embedding contains invalid value at index %d: %v", i, v)
		}
	}
	return nil
}
