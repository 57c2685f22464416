package models

// ChangeType classifies a single difference between two versions.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeRemove ChangeType = "remove"
	ChangeModify ChangeType = "modify"
)

// Category groups E2K records by the part of the model they describe.
type Category string

const (
	CategoryMaterial Category = "material"
	CategorySection  Category = "section"
	CategoryMember   Category = "member"
	CategoryLoad     Category = "load"
	CategoryAnalysis Category = "analysis"
	CategoryDesign   Category = "design"
	CategoryGeneral  Category = "general"
)

// DiffType selects which comparisons compareVersions runs.
type DiffType string

const (
	DiffE2K      DiffType = "e2k"
	DiffGeometry DiffType = "geometry"
	DiffBoth     DiffType = "both"
)

// WantsE2K reports whether the E2K comparison is requested.
func (d DiffType) WantsE2K() bool { return d == DiffE2K || d == DiffBoth }

// WantsGeometry reports whether the geometry comparison is requested.
func (d DiffType) WantsGeometry() bool { return d == DiffGeometry || d == DiffBoth }

// E2KChange is one classified difference between two E2K exports.
type E2KChange struct {
	Type        ChangeType `json:"type"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	LineNumber  int        `json:"lineNumber"`
	OldValue    string     `json:"oldValue,omitempty"`
	NewValue    string     `json:"newValue,omitempty"`
}

// LineStats summarises the raw unified diff.
type LineStats struct {
	Hunks      int `json:"hunks"`
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
}

// E2KDiffResult is the structural comparison of two E2K exports.
// Added, Removed and Modified always equal the per-type counts of Changes.
type E2KDiffResult struct {
	Added     int         `json:"added"`
	Removed   int         `json:"removed"`
	Modified  int         `json:"modified"`
	Changes   []E2KChange `json:"changes"`
	RawDiff   string      `json:"rawDiff"`
	LineStats LineStats   `json:"lineStats"`
}

// ElementType is the structural role of a geometry element.
type ElementType string

const (
	ElementColumn     ElementType = "column"
	ElementBeam       ElementType = "beam"
	ElementSlab       ElementType = "slab"
	ElementWall       ElementType = "wall"
	ElementFoundation ElementType = "foundation"
)

// GeometryElement is the 3D representation of one structural member.
type GeometryElement struct {
	ID          string            `json:"id"`
	Type        ElementType       `json:"type"`
	Coordinates [][3]float64      `json:"coordinates"`
	Properties  map[string]string `json:"properties"`
}

// GeometryDiffResult compares the derived geometry of two versions.
// TotalChanges always equals the sum of the three member lists.
type GeometryDiffResult struct {
	MembersAdded    []GeometryElement `json:"membersAdded"`
	MembersRemoved  []GeometryElement `json:"membersRemoved"`
	MembersModified []GeometryElement `json:"membersModified"`
	TotalChanges    int               `json:"totalChanges"`
}
