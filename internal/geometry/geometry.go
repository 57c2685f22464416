// Package geometry derives 3D structural elements from a parsed E2K export.
//
// Stories give elevations, points give plan coordinates, LINE and AREA
// records give connectivity, and LINEASSIGN/AREAASSIGN place a member on a
// story. Every (member, story) assignment becomes one element with id
// "member@story".
package geometry

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tadoEng/EtabExtension/internal/e2k"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

type story struct {
	name  string
	elev  float64
	below string
}

type point struct {
	x, y, z float64
}

type member struct {
	name   string
	kind   string
	points []string
}

type model struct {
	stories map[string]*story
	points  map[string]point
	lines   map[string]*member
	areas   map[string]*member
}

// Derive builds the element list for f, sorted by id.
func Derive(f *e2k.File) ([]models.GeometryElement, error) {
	m := &model{
		stories: make(map[string]*story),
		points:  make(map[string]point),
		lines:   make(map[string]*member),
		areas:   make(map[string]*member),
	}

	var storyRecs, memberRecs, assigns []*e2k.Record
	for i := range f.Records {
		r := &f.Records[i]
		switch strings.ToUpper(r.Keyword) {
		case "STORY":
			storyRecs = append(storyRecs, r)
		case "POINT":
			if err := m.addPoint(r); err != nil {
				return nil, err
			}
		case "LINE", "AREA":
			memberRecs = append(memberRecs, r)
		case "LINEASSIGN", "AREAASSIGN":
			assigns = append(assigns, r)
		}
	}

	if err := m.addStories(storyRecs); err != nil {
		return nil, err
	}
	for _, r := range memberRecs {
		if err := m.addMember(r, strings.EqualFold(r.Keyword, "AREA")); err != nil {
			return nil, err
		}
	}

	elements := make([]models.GeometryElement, 0, len(assigns))
	for _, r := range assigns {
		el, err := m.element(r)
		if err != nil {
			return nil, err
		}
		elements = append(elements, el)
	}

	sort.SliceStable(elements, func(i, j int) bool { return elements[i].ID < elements[j].ID })
	return elements, nil
}

// addStories computes elevations. Stories are listed top-down; the last one
// is the base and the others stack on it by HEIGHT unless ELEV is given.
func (m *model) addStories(recs []*e2k.Record) error {
	elev := 0.0
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		name := firstQuoted(r)
		if name == "" {
			return recordErr(r, "story has no name")
		}

		if v, ok := r.Field("ELEV"); ok {
			e, err := parseFloat(r, v)
			if err != nil {
				return err
			}
			elev = e
		} else if v, ok := r.Field("HEIGHT"); ok {
			h, err := parseFloat(r, v)
			if err != nil {
				return err
			}
			if i < len(recs)-1 {
				elev += h
			}
		}

		s := &story{name: name, elev: elev}
		if i < len(recs)-1 {
			s.below = firstQuoted(recs[i+1])
		}
		m.stories[name] = s
	}
	return nil
}

func (m *model) addPoint(r *e2k.Record) error {
	name := firstQuoted(r)
	if name == "" {
		return recordErr(r, "point has no name")
	}

	var coords []float64
	for _, fld := range r.Fields {
		if !strings.HasPrefix(fld.Name, "#") {
			continue
		}
		v, err := parseFloat(r, fld.Value)
		if err != nil {
			return err
		}
		coords = append(coords, v)
		if len(coords) == 3 {
			break
		}
	}
	if len(coords) < 2 {
		return recordErr(r, "point %q needs x and y coordinates", name)
	}

	p := point{x: coords[0], y: coords[1]}
	if len(coords) == 3 {
		p.z = coords[2]
	}
	m.points[name] = p
	return nil
}

func (m *model) addMember(r *e2k.Record, area bool) error {
	if len(r.Tokens) < 2 || !r.Tokens[0].Quoted {
		return recordErr(r, "%s has no name", strings.ToLower(r.Keyword))
	}

	mem := &member{name: r.Tokens[0].Text, kind: strings.ToUpper(r.Tokens[1].Text)}
	for _, t := range r.Tokens[2:] {
		if t.Quoted {
			mem.points = append(mem.points, t.Text)
		}
	}

	for _, p := range mem.points {
		if _, ok := m.points[p]; !ok {
			return recordErr(r, "%s %q references unknown point %q", strings.ToLower(r.Keyword), mem.name, p)
		}
	}

	if area {
		need := 3
		if isWall(mem.kind) {
			need = 2
		}
		if len(uniq(mem.points)) < need {
			return recordErr(r, "area %q needs at least %d points", mem.name, need)
		}
		m.areas[mem.name] = mem
		return nil
	}

	switch mem.kind {
	case "COLUMN", "BEAM", "BRACE":
	default:
		return recordErr(r, "line %q has unknown type %q", mem.name, mem.kind)
	}
	if len(mem.points) != 2 {
		return recordErr(r, "line %q needs two points", mem.name)
	}
	m.lines[mem.name] = mem
	return nil
}

func (m *model) element(r *e2k.Record) (models.GeometryElement, error) {
	var names []string
	for _, t := range r.Tokens {
		if !t.Quoted {
			break
		}
		names = append(names, t.Text)
	}
	if len(names) < 2 {
		return models.GeometryElement{}, recordErr(r, "assignment needs a member and a story")
	}

	area := strings.EqualFold(r.Keyword, "AREAASSIGN")
	mem := m.lines[names[0]]
	if area {
		mem = m.areas[names[0]]
	}
	if mem == nil {
		return models.GeometryElement{}, recordErr(r, "assignment references unknown member %q", names[0])
	}
	st, ok := m.stories[names[1]]
	if !ok {
		return models.GeometryElement{}, recordErr(r, "assignment references unknown story %q", names[1])
	}

	base := st.elev
	if st.below != "" {
		base = m.stories[st.below].elev
	}

	el := models.GeometryElement{
		ID:         mem.name + "@" + st.name,
		Properties: map[string]string{"story": st.name, "kind": mem.kind},
	}
	for _, fld := range r.Fields {
		el.Properties[fld.Name] = fld.Value
	}

	if area {
		pts := uniq(mem.points)
		switch {
		case st.below == "":
			el.Type = models.ElementFoundation
			el.Coordinates = m.ring(pts, st.elev)
		case isWall(mem.kind):
			el.Type = models.ElementWall
			bottom := m.ring(pts, base)
			top := m.ring(reversed(pts), st.elev)
			el.Coordinates = append(bottom, top...)
		default:
			el.Type = models.ElementSlab
			el.Coordinates = m.ring(pts, st.elev)
		}
		return el, nil
	}

	p1, p2 := m.points[mem.points[0]], m.points[mem.points[1]]
	switch mem.kind {
	case "COLUMN":
		el.Type = models.ElementColumn
		el.Coordinates = [][3]float64{{p1.x, p1.y, base + p1.z}, {p2.x, p2.y, st.elev + p2.z}}
	case "BRACE":
		el.Type = models.ElementBeam
		el.Coordinates = [][3]float64{{p1.x, p1.y, base + p1.z}, {p2.x, p2.y, st.elev + p2.z}}
	default:
		el.Type = models.ElementBeam
		el.Coordinates = [][3]float64{{p1.x, p1.y, st.elev + p1.z}, {p2.x, p2.y, st.elev + p2.z}}
	}
	return el, nil
}

func (m *model) ring(names []string, z float64) [][3]float64 {
	out := make([][3]float64, 0, len(names))
	for _, n := range names {
		p := m.points[n]
		out = append(out, [3]float64{p.x, p.y, z + p.z})
	}
	return out
}

func isWall(kind string) bool {
	return kind == "PANEL" || kind == "WALL"
}

// uniq drops repeated point names, keeping first occurrences in order.
func uniq(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func reversed(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}

func firstQuoted(r *e2k.Record) string {
	if len(r.Tokens) > 0 && r.Tokens[0].Quoted {
		return r.Tokens[0].Text
	}
	return ""
}

func parseFloat(r *e2k.Record, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, recordErr(r, "non-numeric value %q", s)
	}
	return v, nil
}

func recordErr(r *e2k.Record, format string, args ...any) error {
	e := errs.E(errs.ParseError, format, args...)
	return errs.Wrap(errs.ParseError, e, "line %d in section %q", r.Line, r.Section)
}
