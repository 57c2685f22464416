package diff

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

const base = `$ PROGRAM INFORMATION
  PROGRAM  "ETABS"  VERSION "21.0.0"
$ STORIES - IN SEQUENCE FROM TOP
  STORY "STORY1"  HEIGHT 144
  STORY "BASE"  ELEV 0
$ MATERIAL PROPERTIES
  MATERIAL  "A992Fy50"  TYPE "Steel"  FY 50
$ FRAME SECTIONS
  FRAMESECTION  "C1"  MATERIAL "A992Fy50"  SHAPE "W14X90"
  FRAMESECTION  "B1"  MATERIAL "A992Fy50"  SHAPE "W18X35"
$ POINT COORDINATES
  POINT "1"  0  0
  POINT "2"  240  0
$ LINE CONNECTIVITIES
  LINE  "C1"  COLUMN  "1"  "1"  1
  LINE  "B1"  BEAM  "1"  "2"  0
$ LINE ASSIGNS
  LINEASSIGN  "C1"  "STORY1"  SECTION "C1"
  LINEASSIGN  "B1"  "STORY1"  SECTION "B1"
$ LOAD PATTERNS
  LOADPATTERN "DEAD"  TYPE  "Dead"  SELFWEIGHT  1
$ LOAD COMBINATIONS
  COMBO=LRFD-1 LOAD=DEAD SF=1.2 LOAD=LIVE SF=1.6
  COMBO "C1" LOAD "DEAD" SF 1.2
  COMBO "C1" LOAD "LIVE" SF 1.6
$ END OF MODEL FILE
`

func TestE2KSingleSectionChange(t *testing.T) {
	changed := strings.Replace(base, `SHAPE "W14X90"`, `SHAPE "W14X120"`, 1)

	result, err := E2K([]byte(base), []byte(changed), Options{FromLabel: "main/v1", ToLabel: "main/v2"})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 0, result.Removed)
	assert.Equal(t, 1, result.Modified)
	require.Len(t, result.Changes, 1)

	c := result.Changes[0]
	assert.Equal(t, models.ChangeModify, c.Type)
	assert.Equal(t, models.CategorySection, c.Category)
	assert.Equal(t, "W14X90", c.OldValue)
	assert.Equal(t, "W14X120", c.NewValue)
	assert.Equal(t, 9, c.LineNumber)
	assert.Contains(t, c.Description, "FRAMESECTION C1")

	assert.Contains(t, result.RawDiff, "--- main/v1")
	assert.Contains(t, result.RawDiff, `+  FRAMESECTION  "C1"  MATERIAL "A992Fy50"  SHAPE "W14X120"`)
	assert.Equal(t, models.LineStats{Hunks: 1, Insertions: 1, Deletions: 1}, result.LineStats)
}

func TestE2KIdenticalIsEmpty(t *testing.T) {
	result, err := E2K([]byte(base), []byte(base), Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Changes)
	assert.Zero(t, result.Added+result.Removed+result.Modified)
	assert.Empty(t, result.RawDiff)
	assert.Equal(t, models.LineStats{}, result.LineStats)
}

func TestE2KRepeatedFieldNames(t *testing.T) {
	changed := strings.Replace(base, "LOAD=LIVE SF=1.6", "LOAD=LIVE SF=1.0", 1)

	result, err := E2K([]byte(base), []byte(changed), Options{})
	require.NoError(t, err)
	require.Len(t, result.Changes, 1)

	c := result.Changes[0]
	assert.Equal(t, models.ChangeModify, c.Type)
	assert.Contains(t, c.Description, "SF[2]")
	assert.Equal(t, "1.6", c.OldValue)
	assert.Equal(t, "1.0", c.NewValue)
}

func TestE2KInsertIntoRepeatedIdentity(t *testing.T) {
	changed := strings.Replace(base, "  COMBO \"C1\" LOAD \"DEAD\" SF 1.2\n",
		"  COMBO \"C1\" LOAD \"WIND\" SF 1.0\n  COMBO \"C1\" LOAD \"DEAD\" SF 1.2\n", 1)

	result, err := E2K([]byte(base), []byte(changed), Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Zero(t, result.Removed)
	assert.Zero(t, result.Modified)
	require.Len(t, result.Changes, 1)
	assert.Equal(t, "Added COMBO C1 LOAD=WIND", result.Changes[0].Description)
}

func TestE2KRepeatedIdentityFirstFieldChange(t *testing.T) {
	changed := strings.Replace(base, `COMBO "C1" LOAD "LIVE" SF 1.6`, `COMBO "C1" LOAD "SDL" SF 1.6`, 1)

	result, err := E2K([]byte(base), []byte(changed), Options{})
	require.NoError(t, err)

	require.Len(t, result.Changes, 1)
	assert.Equal(t, models.ChangeModify, result.Changes[0].Type)
	assert.Equal(t, "LIVE", result.Changes[0].OldValue)
	assert.Equal(t, "SDL", result.Changes[0].NewValue)
}

func TestE2KLineEndingsOnlyIsEmpty(t *testing.T) {
	crlf := strings.ReplaceAll(base, "\n", "\r\n")

	result, err := E2K([]byte(base), []byte(crlf), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Changes)
	assert.Empty(t, result.RawDiff)
}

func TestE2KCountsMatchChanges(t *testing.T) {
	changed := strings.Replace(base, `  FRAMESECTION  "B1"  MATERIAL "A992Fy50"  SHAPE "W18X35"`+"\n", "", 1)
	changed = strings.Replace(changed, `FY 50`, `FY 65  FU 80`, 1)
	changed = strings.Replace(changed, "$ LOAD PATTERNS\n", "$ LOAD PATTERNS\n  LOADPATTERN \"LIVE\"  TYPE  \"Live\"  SELFWEIGHT  0\n", 1)

	result, err := E2K([]byte(base), []byte(changed), Options{})
	require.NoError(t, err)

	counts := map[models.ChangeType]int{}
	for _, c := range result.Changes {
		counts[c.Type]++
	}
	assert.Equal(t, counts[models.ChangeAdd], result.Added)
	assert.Equal(t, counts[models.ChangeRemove], result.Removed)
	assert.Equal(t, counts[models.ChangeModify], result.Modified)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Modified)

	// Ordered by category: material, section, load.
	require.Len(t, result.Changes, 3)
	assert.Equal(t, models.CategoryMaterial, result.Changes[0].Category)
	assert.Equal(t, "FY=50", result.Changes[0].OldValue)
	assert.Equal(t, "FY=65, FU=80", result.Changes[0].NewValue)
	assert.Equal(t, models.CategorySection, result.Changes[1].Category)
	assert.Equal(t, models.ChangeRemove, result.Changes[1].Type)
	assert.Equal(t, models.CategoryLoad, result.Changes[2].Category)
	assert.Equal(t, models.ChangeAdd, result.Changes[2].Type)
}

func TestE2KParseError(t *testing.T) {
	_, err := E2K([]byte(base), []byte("FRAMESECTION \"C1\"\n"), Options{ToLabel: "main/v2"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrParseError)
	assert.Contains(t, err.Error(), "main/v2")
	assert.Contains(t, err.Error(), "line 1")
}

func TestGeometry(t *testing.T) {
	changed := strings.Replace(base, `POINT "2"  240  0`, `POINT "2"  288  0`, 1)
	changed = strings.Replace(changed, "  LINEASSIGN  \"C1\"  \"STORY1\"  SECTION \"C1\"\n", "", 1)
	changed = strings.Replace(changed, "$ LINE ASSIGNS\n", "$ LINE ASSIGNS\n  LINEASSIGN  \"C1\"  \"BASE\"  SECTION \"C1\"\n", 1)

	result, err := Geometry([]byte(base), []byte(changed))
	require.NoError(t, err)

	require.Len(t, result.MembersAdded, 1)
	assert.Equal(t, "C1@BASE", result.MembersAdded[0].ID)
	require.Len(t, result.MembersRemoved, 1)
	assert.Equal(t, "C1@STORY1", result.MembersRemoved[0].ID)
	require.Len(t, result.MembersModified, 1)
	assert.Equal(t, "B1@STORY1", result.MembersModified[0].ID)
	assert.Equal(t, [3]float64{288, 0, 144}, result.MembersModified[0].Coordinates[1])
	assert.Equal(t, 3, result.TotalChanges)
}

func TestGeometryIdenticalIsEmpty(t *testing.T) {
	result, err := Geometry([]byte(base), []byte(base))
	require.NoError(t, err)
	assert.Zero(t, result.TotalChanges)
	assert.Empty(t, result.MembersAdded)
	assert.Empty(t, result.MembersRemoved)
	assert.Empty(t, result.MembersModified)
}

func TestElementsPropertyChange(t *testing.T) {
	a := []models.GeometryElement{{ID: "C1@L1", Type: models.ElementColumn, Properties: map[string]string{"SECTION": "C1"}}}
	b := []models.GeometryElement{{ID: "C1@L1", Type: models.ElementColumn, Properties: map[string]string{"SECTION": "C2"}}}

	result := Elements(a, b)
	assert.Len(t, result.MembersModified, 1)
	assert.Equal(t, len(result.MembersAdded)+len(result.MembersRemoved)+len(result.MembersModified), result.TotalChanges)
}

func TestStats(t *testing.T) {
	raw, err := Unified([]byte("a\nb\nc\n"), []byte("a\nB\nc\nd\n"), Options{Context: 1})
	require.NoError(t, err)

	stats, err := Stats(raw)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Hunks)
	assert.Equal(t, 2, stats.Insertions)
	assert.Equal(t, 1, stats.Deletions)
}
