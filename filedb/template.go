package filedb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{(\w+)(?::([^}]*))?\}`)

type placeholder struct {
	name   string
	format string
}

// Template is a name pattern with {field} or {field:03d} placeholders. It
// builds names from key fields and parses key fields back out of names.
type Template struct {
	text   string
	parts  []string
	fields []placeholder
	re     *regexp.Regexp
}

func NewTemplate(text string) (*Template, error) {
	t := &Template{text: text}
	var expr strings.Builder
	expr.WriteString("^")
	last := 0
	for _, m := range placeholderRe.FindAllStringSubmatchIndex(text, -1) {
		literal := text[last:m[0]]
		t.parts = append(t.parts, literal)
		expr.WriteString(regexp.QuoteMeta(literal))
		p := placeholder{name: text[m[2]:m[3]]}
		if m[4] >= 0 {
			p.format = text[m[4]:m[5]]
		}
		if p.format != "" && !strings.HasSuffix(p.format, "d") && !strings.HasSuffix(p.format, "s") {
			return nil, fmt.Errorf("unsupported format %q in template %q", p.format, text)
		}
		t.fields = append(t.fields, p)
		if p.isInt() {
			expr.WriteString(`(\d+)`)
		} else {
			expr.WriteString(`([^/]+?)`)
		}
		last = m[1]
	}
	t.parts = append(t.parts, text[last:])
	expr.WriteString(regexp.QuoteMeta(text[last:]))
	expr.WriteString("$")
	re, err := regexp.Compile(expr.String())
	if err != nil {
		return nil, err
	}
	t.re = re
	return t, nil
}

func (p placeholder) isInt() bool {
	return strings.HasSuffix(p.format, "d")
}

func (p placeholder) fill(v string) (string, error) {
	if !p.isInt() {
		return v, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return "", fmt.Errorf("field %s needs an integer, got %q", p.name, v)
	}
	return fmt.Sprintf("%"+p.format, n), nil
}

func (t *Template) String() string {
	return t.text
}

// Fields lists the placeholder names in order of first appearance.
func (t *Template) Fields() []string {
	var res []string
	seen := map[string]bool{}
	for _, f := range t.fields {
		if !seen[f.name] {
			seen[f.name] = true
			res = append(res, f.name)
		}
	}
	return res
}

func (t *Template) Fill(values map[string]string) (string, error) {
	var res strings.Builder
	for i, f := range t.fields {
		res.WriteString(t.parts[i])
		v, ok := values[f.name]
		if !ok {
			return "", fmt.Errorf("template %q needs field %s", t.text, f.name)
		}
		s, err := f.fill(v)
		if err != nil {
			return "", err
		}
		res.WriteString(s)
	}
	res.WriteString(t.parts[len(t.parts)-1])
	return res.String(), nil
}

// Parse extracts the key fields from name. Integer fields come back without
// padding. A field used twice must hold the same value both times.
func (t *Template) Parse(name string) (map[string]string, bool) {
	m := t.re.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}
	res := make(map[string]string, len(t.fields))
	for i, f := range t.fields {
		v := m[i+1]
		if f.isInt() {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, false
			}
			v = strconv.FormatInt(n, 10)
		}
		if prev, ok := res[f.name]; ok && prev != v {
			return nil, false
		}
		res[f.name] = v
	}
	return res, true
}

// TableTemplate is a table path template with at most one placeholder, the
// table identifier.
type TableTemplate struct {
	*Template
}

func NewTableTemplate(text string) (*TableTemplate, error) {
	t, err := NewTemplate(text)
	if err != nil {
		return nil, err
	}
	if len(t.Fields()) > 1 {
		return nil, fmt.Errorf("table template %q has more than one placeholder", text)
	}
	return &TableTemplate{t}, nil
}

// Keyword is the placeholder name, empty when the template is a fixed path.
func (t *TableTemplate) Keyword() string {
	if len(t.fields) == 0 {
		return ""
	}
	return t.fields[0].name
}

// Name builds the table path for the given identifier. A fixed template
// ignores the identifier.
func (t *TableTemplate) Name(id string) (string, error) {
	if len(t.fields) == 0 {
		return t.text, nil
	}
	return t.Fill(map[string]string{t.fields[0].name: id})
}

// ID parses the table identifier out of a table path. For a fixed template the
// path itself is the identifier.
func (t *TableTemplate) ID(tablePath string) (string, bool) {
	if len(t.fields) == 0 {
		return tablePath, tablePath == t.text
	}
	values, ok := t.Parse(tablePath)
	if !ok {
		return "", false
	}
	return values[t.fields[0].name], true
}

// Normalize maps an identifier onto the form ID returns: integers lose their
// padding, and a fixed template maps every identifier onto its only table.
func (t *TableTemplate) Normalize(id string) string {
	if len(t.fields) == 0 {
		return t.text
	}
	if t.fields[0].isInt() {
		if n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil {
			return strconv.FormatInt(n, 10)
		}
	}
	return id
}
