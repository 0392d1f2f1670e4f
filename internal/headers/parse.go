// Package headers analyses raw RFC 5322 message headers.
package headers

import (
	"regexp"
	"strings"
)

// Field is one header line after unfolding. Name is lowercased.
type Field struct {
	Name  string
	Value string
}

// Fields is a header multimap in document order.
type Fields []Field

// Get returns the first value for name, or "".
func (fs Fields) Get(name string) string {
	name = strings.ToLower(name)
	for _, f := range fs {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func (fs Fields) Has(name string) bool {
	name = strings.ToLower(name)
	for _, f := range fs {
		if f.Name == name {
			return true
		}
	}
	return false
}

// All returns every value for name in document order.
func (fs Fields) All(name string) []string {
	name = strings.ToLower(name)
	var out []string
	for _, f := range fs {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

var fieldRe = regexp.MustCompile(`^([!-9;-~]+)[ \t]*:[ \t]*(.*)$`)

// headerBlock returns the text up to the first blank line, ignoring any
// blank lines before the headers start.
func headerBlock(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimLeft(raw, "\n")
	if i := strings.Index(raw, "\n\n"); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Unfold joins continuation lines (those starting with whitespace) onto the
// line they continue.
func Unfold(block string) []string {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += " " + strings.TrimLeft(line, " \t")
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Parse reads the header block of raw into fields. Lines that are not
// "name: value" are skipped.
func Parse(raw string) Fields {
	var fields Fields
	for _, line := range Unfold(headerBlock(raw)) {
		m := fieldRe.FindStringSubmatch(strings.TrimRight(line, " \t"))
		if m == nil {
			continue
		}
		fields = append(fields, Field{
			Name:  strings.ToLower(m[1]),
			Value: strings.TrimSpace(m[2]),
		})
	}
	return fields
}
