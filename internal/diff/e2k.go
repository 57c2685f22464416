// Package diff compares two versions' E2K exports structurally and by the
// geometry derived from them. Every function here is read-only over its
// inputs and safe to call concurrently.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/tadoEng/EtabExtension/internal/e2k"
	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

// Options controls the raw unified diff.
type Options struct {
	// FromLabel and ToLabel name the two sides in the ---/+++ headers.
	FromLabel string
	ToLabel   string
	// Context is the number of context lines per hunk. Zero means 3.
	Context int
}

func (o Options) withDefaults() Options {
	if o.FromLabel == "" {
		o.FromLabel = "a"
	}
	if o.ToLabel == "" {
		o.ToLabel = "b"
	}
	if o.Context <= 0 {
		o.Context = 3
	}
	return o
}

// E2K compares two E2K exports. Records are matched by category and
// identity; unchanged records produce no change.
func E2K(a, b []byte, opts Options) (*models.E2KDiffResult, error) {
	fa, err := e2k.Parse(a)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "failed to parse %s", labelOr(opts.FromLabel, "first export"))
	}
	fb, err := e2k.Parse(b)
	if err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "failed to parse %s", labelOr(opts.ToLabel, "second export"))
	}

	result := &models.E2KDiffResult{Changes: Records(fa, fb)}
	for _, c := range result.Changes {
		switch c.Type {
		case models.ChangeAdd:
			result.Added++
		case models.ChangeRemove:
			result.Removed++
		case models.ChangeModify:
			result.Modified++
		}
	}

	raw, err := Unified(a, b, opts)
	if err != nil {
		return nil, err
	}
	result.RawDiff = raw

	stats, err := Stats(raw)
	if err != nil {
		return nil, err
	}
	result.LineStats = stats

	return result, nil
}

// Records classifies the record-level differences between two parsed files.
// Records pair by key first; the rest pair by identity in file order, so a
// record whose first field changed reads as a modification.
// Changes are ordered by category, then by position in the file.
func Records(a, b *e2k.File) []models.E2KChange {
	byKey := make(map[string]int, len(a.Records))
	for i := range a.Records {
		byKey[a.Records[i].CategoryKey()] = i
	}

	used := make([]bool, len(a.Records))
	pair := make([]int, len(b.Records))
	for i := range b.Records {
		pair[i] = -1
		if j, ok := byKey[b.Records[i].CategoryKey()]; ok && !used[j] {
			pair[i] = j
			used[j] = true
		}
	}

	spare := make(map[string][]int)
	for j := range a.Records {
		if !used[j] {
			k := a.Records[j].CategoryIdentity()
			spare[k] = append(spare[k], j)
		}
	}
	for i := range b.Records {
		if pair[i] >= 0 {
			continue
		}
		k := b.Records[i].CategoryIdentity()
		if q := spare[k]; len(q) > 0 {
			pair[i] = q[0]
			used[q[0]] = true
			spare[k] = q[1:]
		}
	}

	changes := []models.E2KChange{}
	for i := range b.Records {
		nr := &b.Records[i]
		if pair[i] < 0 {
			changes = append(changes, models.E2KChange{
				Type:        models.ChangeAdd,
				Category:    nr.Category,
				Description: "Added " + nr.Key,
				LineNumber:  nr.Line,
				NewValue:    nr.Raw,
			})
			continue
		}
		if c, changed := modification(&a.Records[pair[i]], nr); changed {
			changes = append(changes, c)
		}
	}

	for j := range a.Records {
		if used[j] {
			continue
		}
		or := &a.Records[j]
		changes = append(changes, models.E2KChange{
			Type:        models.ChangeRemove,
			Category:    or.Category,
			Description: "Removed " + or.Key,
			LineNumber:  or.Line,
			OldValue:    or.Raw,
		})
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return e2k.CategoryRank(changes[i].Category) < e2k.CategoryRank(changes[j].Category)
	})
	return changes
}

// modification compares two matched records field by field. The n-th
// occurrence of a repeated field name compares with the n-th on the other side.
func modification(or, nr *e2k.Record) (models.E2KChange, bool) {
	oldFields := or.FieldMap()
	newFields := nr.FieldMap()

	var names []string
	for _, f := range nr.IndexedFields() {
		if v, ok := oldFields[f.Name]; !ok || v != f.Value {
			names = appendOnce(names, f.Name)
		}
	}
	for _, f := range or.IndexedFields() {
		if _, ok := newFields[f.Name]; !ok {
			names = appendOnce(names, f.Name)
		}
	}
	if len(names) == 0 {
		return models.E2KChange{}, false
	}

	c := models.E2KChange{
		Type:        models.ChangeModify,
		Category:    nr.Category,
		Description: fmt.Sprintf("Modified %s (%s)", nr.Key, strings.Join(names, ", ")),
		LineNumber:  nr.Line,
	}
	if len(names) == 1 {
		c.OldValue = oldFields[names[0]]
		c.NewValue = newFields[names[0]]
		return c, true
	}

	var olds, news []string
	for _, n := range names {
		if v, ok := oldFields[n]; ok {
			olds = append(olds, n+"="+v)
		}
		if v, ok := newFields[n]; ok {
			news = append(news, n+"="+v)
		}
	}
	c.OldValue = strings.Join(olds, ", ")
	c.NewValue = strings.Join(news, ", ")
	return c, true
}

func appendOnce(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

// Unified renders the classic unified diff of a and b. Identical inputs
// yield an empty string.
func Unified(a, b []byte, opts Options) (string, error) {
	opts = opts.withDefaults()
	ua, ub := normalize(a), normalize(b)
	if ua == ub {
		return "", nil
	}

	u := difflib.UnifiedDiff{
		A:        difflib.SplitLines(ua),
		B:        difflib.SplitLines(ub),
		FromFile: opts.FromLabel,
		ToFile:   opts.ToLabel,
		Context:  opts.Context,
	}
	s, err := difflib.GetUnifiedDiffString(u)
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "failed to render unified diff")
	}
	return s, nil
}

// Stats counts hunks and changed lines of a unified diff.
func Stats(unified string) (models.LineStats, error) {
	var stats models.LineStats
	if unified == "" {
		return stats, nil
	}

	fd, err := godiff.ParseFileDiff([]byte(unified))
	if err != nil {
		return stats, errs.Wrap(errs.Internal, err, "failed to parse unified diff")
	}

	stats.Hunks = len(fd.Hunks)
	for _, h := range fd.Hunks {
		for _, line := range strings.Split(string(h.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				stats.Insertions++
			case strings.HasPrefix(line, "-"):
				stats.Deletions++
			}
		}
	}
	return stats, nil
}

// normalize unifies line endings and drops one trailing newline so that
// SplitLines does not produce a phantom empty line.
func normalize(b []byte) string {
	s := strings.ReplaceAll(string(b), "\r\n", "\n")
	return strings.TrimSuffix(s, "\n")
}

func labelOr(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return label
}
