package e2k

import (
	"strings"

	"github.com/tadoEng/EtabExtension/internal/models"
)

// rules are checked in order; the first matching substring wins. Design and
// load headers often mention frames or points, so they come first.
var rules = []struct {
	category models.Category
	words    []string
}{
	{models.CategoryDesign, []string{"DESIGN", "OVERWRITE"}},
	{models.CategoryLoad, []string{"LOAD", "COMBINATION", "COMBO", "PATTERN"}},
	{models.CategoryAnalysis, []string{"ANALYSIS", "MASS SOURCE", "FUNCTION", "SPECTRUM", "PDELTA", "P-DELTA", "MODAL"}},
	{models.CategoryMaterial, []string{"MATERIAL"}},
	{models.CategorySection, []string{"SECTION", "SHELL PROP", "SLAB PROP", "WALL PROP", "DECK PROP", "LINK PROP", "REBAR"}},
	{models.CategoryMember, []string{"STOR", "GRID", "POINT", "LINE", "AREA", "ASSIGN", "CONNECTIVIT", "DIAPHRAGM", "PIER", "SPANDREL"}},
}

// Categorize maps a section header to its category. Unrecognised headers
// are general.
func Categorize(header string) models.Category {
	h := strings.ToUpper(header)
	for _, r := range rules {
		for _, w := range r.words {
			if strings.Contains(h, w) {
				return r.category
			}
		}
	}
	return models.CategoryGeneral
}

var order = map[models.Category]int{
	models.CategoryMaterial: 0,
	models.CategorySection:  1,
	models.CategoryMember:   2,
	models.CategoryLoad:     3,
	models.CategoryAnalysis: 4,
	models.CategoryDesign:   5,
	models.CategoryGeneral:  6,
}

// CategoryRank orders categories for display.
func CategoryRank(c models.Category) int {
	if r, ok := order[c]; ok {
		return r
	}
	return len(order)
}
