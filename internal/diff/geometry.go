package diff

import (
	"maps"
	"math"

	"github.com/tadoEng/EtabExtension/internal/e2k"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/geometry"
	"github.com/tadoEng/EtabExtension/internal/models"
)

const coordTolerance = 1e-9

// Geometry derives elements from both exports and compares them by id.
func Geometry(a, b []byte) (*models.GeometryDiffResult, error) {
	ea, err := derive(a, "first export")
	if err != nil {
		return nil, err
	}
	eb, err := derive(b, "second export")
	if err != nil {
		return nil, err
	}
	return Elements(ea, eb), nil
}

func derive(data []byte, label string) ([]models.GeometryElement, error) {
	f, err := e2k.Parse(data)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "failed to parse %s", label)
	}
	elements, err := geometry.Derive(f)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "failed to derive geometry from %s", label)
	}
	return elements, nil
}

// Elements compares two element lists. Modified entries carry the element
// as it appears in b.
func Elements(a, b []models.GeometryElement) *models.GeometryDiffResult {
	old := make(map[string]models.GeometryElement, len(a))
	for _, el := range a {
		old[el.ID] = el
	}
	seen := make(map[string]bool, len(b))

	result := &models.GeometryDiffResult{
		MembersAdded:    []models.GeometryElement{},
		MembersRemoved:  []models.GeometryElement{},
		MembersModified: []models.GeometryElement{},
	}
	for _, el := range b {
		seen[el.ID] = true
		prev, ok := old[el.ID]
		switch {
		case !ok:
			result.MembersAdded = append(result.MembersAdded, el)
		case !sameElement(prev, el):
			result.MembersModified = append(result.MembersModified, el)
		}
	}
	for _, el := range a {
		if !seen[el.ID] {
			result.MembersRemoved = append(result.MembersRemoved, el)
		}
	}

	result.TotalChanges = len(result.MembersAdded) + len(result.MembersRemoved) + len(result.MembersModified)
	return result
}

func sameElement(x, y models.GeometryElement) bool {
	if x.Type != y.Type || len(x.Coordinates) != len(y.Coordinates) {
		return false
	}
	for i := range x.Coordinates {
		for k := 0; k < 3; k++ {
			if math.Abs(x.Coordinates[i][k]-y.Coordinates[i][k]) > coordTolerance {
				return false
			}
		}
	}
	return maps.Equal(x.Properties, y.Properties)
}
