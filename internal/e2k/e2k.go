// Package e2k parses ETABS E2K text exports into categorised records.
//
// An E2K file is a sequence of sections introduced by `$ NAME` header lines.
// Each non-blank line inside a section is a record: a keyword followed by
// quoted identity tokens and then `KEY value`, `KEY=VALUE` or positional
// fields.
package e2k

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/tadoEng/EtabExtension/internal/errs"
	"github.com/tadoEng/EtabExtension/internal/models"
)

const endOfModel = "END OF MODEL FILE"

// Field is one named value of a record. Positional values are named #1, #2...
type Field struct {
	Name  string
	Value string
}

// Record is one data line of an E2K section.
type Record struct {
	Section  string
	Category models.Category
	Keyword  string
	// Identity is the human-readable identity, e.g. "FRAMESECTION C1".
	Identity string
	// Key is unique within a file. A repeated identity is qualified by the
	// record's first field, then by an occurrence suffix if it still repeats.
	Key    string
	Fields []Field
	Line   int
	Raw    string
	// Tokens holds the tokens following the keyword.
	Tokens []Token
}

// Token is one whitespace-separated word of a record line.
type Token struct {
	Text   string
	Quoted bool
}

// File is a parsed E2K export.
type File struct {
	Records  []Record
	Sections []string
}

// IndexedFields returns the fields in order with repeated names made unique:
// the second LOAD becomes LOAD[2], the third LOAD[3].
func (r *Record) IndexedFields() []Field {
	seen := make(map[string]int, len(r.Fields))
	out := make([]Field, 0, len(r.Fields))
	for _, f := range r.Fields {
		seen[f.Name]++
		if n := seen[f.Name]; n > 1 {
			f.Name = fmt.Sprintf("%s[%d]", f.Name, n)
		}
		out = append(out, f)
	}
	return out
}

// FieldMap returns the record's fields keyed by their IndexedFields name.
func (r *Record) FieldMap() map[string]string {
	fields := r.IndexedFields()
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[f.Name] = f.Value
	}
	return m
}

// Field returns the value of the named field.
func (r *Record) Field(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// CategoryKey is the match key used across two files.
func (r *Record) CategoryKey() string {
	return string(r.Category) + "|" + r.Key
}

// CategoryIdentity groups records sharing an identity within a category.
func (r *Record) CategoryIdentity() string {
	return string(r.Category) + "|" + r.Identity
}

// Parse reads an E2K export. Malformed content fails with errs.ParseError
// naming the line and section.
func Parse(data []byte) (*File, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))

	f := &File{}
	section := ""
	category := models.CategoryGeneral
	inSection := false

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		if strings.HasPrefix(raw, "$") {
			name := strings.TrimSpace(strings.TrimPrefix(raw, "$"))
			if name == "" {
				return nil, parseErr(lineNo, section, "section header has no name")
			}
			if strings.EqualFold(name, endOfModel) {
				break
			}
			section = name
			category = Categorize(name)
			inSection = true
			f.Sections = append(f.Sections, name)
			continue
		}

		if !inSection {
			return nil, parseErr(lineNo, section, "record before any section header")
		}

		tokens, err := tokenize(raw)
		if err != nil {
			return nil, parseErr(lineNo, section, err.Error())
		}

		rec, err := newRecord(tokens)
		if err != nil {
			return nil, parseErr(lineNo, section, err.Error())
		}
		rec.Section = section
		rec.Category = category
		rec.Line = lineNo
		rec.Raw = raw

		f.Records = append(f.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.ParseError, err, "failed to read E2K content")
	}

	assignKeys(f.Records)
	return f, nil
}

// assignKeys gives every record a key that stays put when a sibling with the
// same identity is inserted or removed, e.g. COMBO "C1" LOAD "DEAD" keys as
// `COMBO C1 LOAD=DEAD` rather than by position.
func assignKeys(records []Record) {
	idents := make(map[string]int, len(records))
	for i := range records {
		idents[records[i].CategoryIdentity()]++
	}

	seen := make(map[string]int, len(records))
	for i := range records {
		r := &records[i]
		r.Key = r.Identity
		if idents[r.CategoryIdentity()] > 1 && len(r.Fields) > 0 {
			r.Key += " " + r.Fields[0].Name + "=" + r.Fields[0].Value
		}
		k := r.CategoryKey()
		seen[k]++
		if n := seen[k]; n > 1 {
			r.Key = fmt.Sprintf("%s #%d", r.Key, n)
		}
	}
}

func parseErr(line int, section, msg string) error {
	if section == "" {
		return errs.E(errs.ParseError, "line %d: %s", line, msg)
	}
	return errs.E(errs.ParseError, "line %d in section %q: %s", line, section, msg)
}

// newRecord splits tokens into keyword, identity and fields.
func newRecord(tokens []Token) (Record, error) {
	if len(tokens) == 0 || tokens[0].Quoted || tokens[0].Text == "" {
		return Record{}, fmt.Errorf("record has no keyword")
	}

	kw := tokens[0].Text
	if name, value, ok := strings.Cut(kw, "="); ok {
		if name == "" {
			return Record{}, fmt.Errorf("record has no identity")
		}
		rec := Record{Keyword: name, Identity: name + "=" + value, Tokens: tokens[1:]}
		rec.Fields = fieldsOf(tokens[1:])
		return rec, nil
	}

	rec := Record{Keyword: kw, Tokens: tokens[1:]}
	ident := []string{kw}
	i := 1
	for ; i < len(tokens) && tokens[i].Quoted; i++ {
		ident = append(ident, tokens[i].Text)
	}
	rec.Identity = strings.Join(ident, " ")
	rec.Fields = fieldsOf(tokens[i:])
	return rec, nil
}

func fieldsOf(tokens []Token) []Field {
	var fields []Field
	pos := 0
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if !t.Quoted {
			if name, value, ok := strings.Cut(t.Text, "="); ok && name != "" {
				fields = append(fields, Field{Name: name, Value: value})
				continue
			}
			if isName(t.Text) && i+1 < len(tokens) && !strings.Contains(tokens[i+1].Text, "=") {
				fields = append(fields, Field{Name: t.Text, Value: tokens[i+1].Text})
				i++
				continue
			}
		}
		pos++
		fields = append(fields, Field{Name: "#" + strconv.Itoa(pos), Value: t.Text})
	}
	return fields
}

// isName reports whether s looks like a field name rather than a value.
func isName(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' && r != '.' {
			return false
		}
	}
	return s[0] >= 'A' && s[0] <= 'Z'
}

// tokenize splits a line on whitespace, keeping double-quoted runs intact.
func tokenize(line string) ([]Token, error) {
	var tokens []Token
	i := 0
	for i < len(line) {
		c := line[i]
		if c == ' ' || c == '\t' {
			i++
			continue
		}
		if c == '"' {
			end := strings.IndexByte(line[i+1:], '"')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quote")
			}
			tokens = append(tokens, Token{Text: line[i+1 : i+1+end], Quoted: true})
			i += end + 2
			continue
		}

		start := i
		for i < len(line) && line[i] != ' ' && line[i] != '\t' {
			if line[i] == '"' {
				// KEY="VALUE" keeps the quoted value with its key.
				end := strings.IndexByte(line[i+1:], '"')
				if end < 0 {
					return nil, fmt.Errorf("unterminated quote")
				}
				i += end + 2
				continue
			}
			i++
		}
		tokens = append(tokens, Token{Text: strings.ReplaceAll(line[start:i], `"`, "")})
	}
	return tokens, nil
}
