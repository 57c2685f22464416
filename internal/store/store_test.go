package store

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(afero.NewMemMapFs(), "/projects/highrise")
}

func TestPutSnapshotIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	data := []byte("$ MATERIAL PROPERTIES\n  MATERIAL \"A992\" TYPE \"Steel\"\n")

	ref1, err := s.PutSnapshot("main", data)
	require.NoError(t, err)
	size1, err := s.DirSize(s.BranchDir("main"))
	require.NoError(t, err)

	ref2, err := s.PutSnapshot("main", data)
	require.NoError(t, err)
	size2, err := s.DirSize(s.BranchDir("main"))
	require.NoError(t, err)

	assert.Equal(t, ref1, ref2)
	assert.Equal(t, size1, size2)
	assert.Equal(t, int64(len(data)), size1)
}

func TestSnapshotRefsAreBranchScoped(t *testing.T) {
	s := newTestStore(t)
	data := []byte("same bytes")

	mainRef, err := s.PutSnapshot("main", data)
	require.NoError(t, err)
	childRef, err := s.PutSnapshot("steel-columns", data)
	require.NoError(t, err)

	assert.NotEqual(t, mainRef, childRef)
	assert.Equal(t, mainRef.Digest(), childRef.Digest())
}

func TestGetSnapshot(t *testing.T) {
	s := newTestStore(t)

	ref, err := s.PutSnapshot("main", []byte("payload"))
	require.NoError(t, err)

	got, err := s.GetSnapshot(ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
	assert.True(t, s.HasSnapshot(ref))

	_, err = s.GetSnapshot(models.NewSnapshotRef("main", Digest([]byte("other"))))
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = s.GetSnapshot("garbage")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestWorkingFileRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadWorkingFile("main", "model.edb")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	path, err := s.WriteWorkingFile("main", "model.edb", []byte("v1"))
	require.NoError(t, err)
	assert.Equal(t, s.WorkingFilePath("main", "model.edb"), path)

	_, err = s.WriteWorkingFile("main", "model.edb", []byte("v2"))
	require.NoError(t, err)

	got, err := s.ReadWorkingFile("main", "model.edb")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestDeleteBranchStorage(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PutSnapshot("scratch", []byte("0123456789"))
	require.NoError(t, err)
	_, err = s.WriteWorkingFile("scratch", "model.edb", []byte("abcde"))
	require.NoError(t, err)
	mainRef, err := s.PutSnapshot("main", []byte("keep me"))
	require.NoError(t, err)

	freed, err := s.DeleteBranchStorage("scratch")
	require.NoError(t, err)
	assert.Equal(t, int64(15), freed)

	exists, err := afero.DirExists(s.Fs(), s.BranchDir("scratch"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.True(t, s.HasSnapshot(mainRef))

	freed, err = s.DeleteBranchStorage("never-existed")
	require.NoError(t, err)
	assert.Zero(t, freed)
}

func TestManifestRoundTrip(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.HasManifest())

	_, err := s.LoadManifest()
	assert.ErrorIs(t, err, errs.ErrNotFound)

	now := time.Date(2025, 1, 26, 10, 0, 0, 0, time.UTC)
	state := &models.ProjectState{
		ID:            "c0ffee",
		ProjectName:   "HighRise",
		CurrentBranch: models.MainBranch,
		Created:       now,
		LastModified:  now,
		Branches: map[string]*models.Branch{
			models.MainBranch: {Name: models.MainBranch, Created: now},
		},
		FormatVersion: models.FormatVersion,
	}
	require.NoError(t, s.SaveManifest(state))
	assert.True(t, s.HasManifest())

	loaded, err := s.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, "HighRise", loaded.ProjectName)
	assert.Contains(t, loaded.Branches, models.MainBranch)

	entries, err := afero.ReadDir(s.Fs(), s.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temporary file left behind")
	}
}

func TestWritesFailOnReadOnlyFs(t *testing.T) {
	s := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/projects/ro")

	_, err := s.PutSnapshot("main", []byte("x"))
	assert.ErrorIs(t, err, errs.ErrIOFailure)

	err = s.SaveManifest(&models.ProjectState{})
	assert.ErrorIs(t, err, errs.ErrIOFailure)
}

func TestLockIsExclusive(t *testing.T) {
	s := newTestStore(t)

	release, err := s.Lock(time.Second)
	require.NoError(t, err)

	_, err = s.Lock(50 * time.Millisecond)
	assert.ErrorIs(t, err, errs.ErrIOFailure)

	release()
	release, err = s.Lock(50 * time.Millisecond)
	require.NoError(t, err)
	release()

	exists, err := afero.Exists(s.Fs(), s.LockPath())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStaleLockIsTakenOver(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, afero.WriteFile(s.Fs(), s.LockPath(), []byte("4242\n"), 0o644))
	old := time.Now().Add(-2 * StaleLockAge)
	require.NoError(t, s.Fs().Chtimes(s.LockPath(), old, old))

	release, err := s.Lock(50 * time.Millisecond)
	require.NoError(t, err)
	release()
}
