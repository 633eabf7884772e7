// Package template implements the %(field)s output naming mini-language.
// Placeholders resolve against item/gallery metadata; unknown fields
// substitute the configured placeholder (empty by default).
package template

import (
	"strings"
	"unicode/utf8"

	"imagedl/pkg/errors"
)

// Options control how substituted values are sanitized.
type Options struct {
	// NAPlaceholder replaces fields that are missing from the metadata map.
	NAPlaceholder string
	// RestrictASCII strips every substituted value down to ASCII.
	RestrictASCII bool
	// TrimLength clamps each substituted value to this many characters
	// (0 means no limit).
	TrimLength int
}

type segment struct {
	literal string
	field   string // non-empty means placeholder
}

// Template is a parsed output naming template.
type Template struct {
	raw      string
	segments []segment
	opts     Options
}

// Parse validates and compiles a template string. Malformed placeholder
// syntax is a validation error, raised before any extraction begins.
func Parse(raw string, opts Options) (*Template, error) {
	var segs []segment
	var lit strings.Builder

	for i := 0; i < len(raw); {
		c := raw[i]
		if c != '%' {
			lit.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(raw) {
			return nil, errors.Newf(errors.KindValidation, "template %q: dangling %% at end", raw)
		}
		switch raw[i+1] {
		case '%':
			lit.WriteByte('%')
			i += 2
		case '(':
			end := strings.IndexByte(raw[i+2:], ')')
			if end < 0 {
				return nil, errors.Newf(errors.KindValidation, "template %q: unterminated placeholder", raw)
			}
			name := raw[i+2 : i+2+end]
			if name == "" {
				return nil, errors.Newf(errors.KindValidation, "template %q: empty placeholder name", raw)
			}
			rest := i + 2 + end + 1
			if rest >= len(raw) || raw[rest] != 's' {
				return nil, errors.Newf(errors.KindValidation, "template %q: placeholder %%(%s) must end with 's'", raw, name)
			}
			if lit.Len() > 0 {
				segs = append(segs, segment{literal: lit.String()})
				lit.Reset()
			}
			segs = append(segs, segment{field: name})
			i = rest + 1
		default:
			return nil, errors.Newf(errors.KindValidation, "template %q: unexpected %%%c", raw, raw[i+1])
		}
	}
	if lit.Len() > 0 {
		segs = append(segs, segment{literal: lit.String()})
	}

	return &Template{raw: raw, segments: segs, opts: opts}, nil
}

// Render substitutes metadata fields into the template. Unknown field
// references resolve to the NA placeholder rather than erroring.
func (t *Template) Render(fields map[string]string) string {
	var out strings.Builder
	for _, s := range t.segments {
		if s.field == "" {
			out.WriteString(s.literal)
			continue
		}
		v, ok := fields[s.field]
		if !ok || v == "" {
			v = t.opts.NAPlaceholder
		}
		out.WriteString(sanitizeValue(v, t.opts))
	}
	return out.String()
}

// Fields returns the distinct placeholder names referenced by the template.
func (t *Template) Fields() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range t.segments {
		if s.field != "" && !seen[s.field] {
			seen[s.field] = true
			names = append(names, s.field)
		}
	}
	return names
}

// String returns the original template text.
func (t *Template) String() string { return t.raw }

// Filename length limit accounts for NTFS.
const maxValueLength = 255

// sanitizeValue makes a substituted metadata value safe to use inside a
// path segment.
func sanitizeValue(v string, opts Options) string {
	v = removeForbiddenChars(v)
	if opts.RestrictASCII {
		v = restrictASCII(v)
	}
	limit := maxValueLength
	if opts.TrimLength > 0 && opts.TrimLength < limit {
		limit = opts.TrimLength
	}
	if len(v) > limit {
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := limit
		for cut > 0 && !utf8.RuneStart(v[cut]) {
			cut--
		}
		v = v[:cut]
	}
	return v
}

// removeForbiddenChars removes characters invalid in Linux/Windows filenames.
func removeForbiddenChars(name string) string {
	forbiddenChars := []rune{
		'\\', '/', '<', '>', ':', '"', '|', '?', '*',
		'#', '%', '&', '{', '}', '$', '!', '\'', '@', '+', '`', '=',
	}
	for _, c := range forbiddenChars {
		name = strings.ReplaceAll(name, string(c), "")
	}
	return name
}

func restrictASCII(name string) string {
	var out strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			out.WriteRune(r)
		default:
			out.WriteByte('_')
		}
	}
	return out.String()
}
