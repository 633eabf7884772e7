// Package selection implements the pure gallery filter: index ranges, date
// bounds and file size bounds compose conjunctively and never reorder items.
package selection

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"imagedl/pkg/errors"
	"imagedl/pkg/media"
)

// Criteria is the raw, user-supplied filter input. Parse validates it
// eagerly so malformed syntax fails before any extraction begins.
type Criteria struct {
	// Items is a comma-separated list of 1-based indices and closed ranges,
	// e.g. "1,3,5-10". Empty selects everything.
	Items string
	// Date selects items uploaded exactly on this date (YYYYMMDD or
	// YYYY-MM-DD).
	Date string
	// DateBefore and DateAfter are inclusive bounds.
	DateBefore string
	DateAfter  string
	// MinSize and MaxSize bound the known file size, e.g. "200k", "2M".
	MinSize string
	MaxSize string
}

// Filter is a parsed, validated Criteria ready to apply.
type Filter struct {
	indices    map[int]bool // nil means no index criterion
	date       time.Time
	dateBefore time.Time
	dateAfter  time.Time
	minSize    int64 // -1 means unset
	maxSize    int64
}

// Parse validates the criteria. Any syntax error is a validation error.
func Parse(c Criteria) (*Filter, error) {
	f := &Filter{minSize: -1, maxSize: -1}

	if c.Items != "" {
		set, err := ParseItemSpec(c.Items)
		if err != nil {
			return nil, err
		}
		f.indices = set
	}

	var err error
	if c.Date != "" {
		if f.date, err = ParseDate(c.Date); err != nil {
			return nil, err
		}
	}
	if c.DateBefore != "" {
		if f.dateBefore, err = ParseDate(c.DateBefore); err != nil {
			return nil, err
		}
	}
	if c.DateAfter != "" {
		if f.dateAfter, err = ParseDate(c.DateAfter); err != nil {
			return nil, err
		}
	}

	if c.MinSize != "" {
		if f.minSize, err = ParseByteSize(c.MinSize); err != nil {
			return nil, err
		}
	}
	if c.MaxSize != "" {
		if f.maxSize, err = ParseByteSize(c.MaxSize); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// Apply returns the ordered subsequence of gallery items passing every
// active criterion. The gallery is never mutated or reordered.
func (f *Filter) Apply(g *media.Gallery) []media.Item {
	out := make([]media.Item, 0, len(g.Items))
	for _, it := range g.Items {
		if f.pass(&it) {
			out = append(out, it)
		}
	}
	return out
}

func (f *Filter) pass(it *media.Item) bool {
	if f.indices != nil && !f.indices[it.Index] {
		return false
	}

	// Items lacking an upload date fail any date criterion.
	if !f.date.IsZero() || !f.dateBefore.IsZero() || !f.dateAfter.IsZero() {
		if it.UploadDate.IsZero() {
			return false
		}
		d := it.UploadDate.UTC().Truncate(24 * time.Hour)
		if !f.date.IsZero() && !d.Equal(f.date) {
			return false
		}
		if !f.dateBefore.IsZero() && d.After(f.dateBefore) {
			return false
		}
		if !f.dateAfter.IsZero() && d.Before(f.dateAfter) {
			return false
		}
	}

	// Unknown size passes bound criteria: blocking every item whose size is
	// not known pre-download would exclude most galleries.
	if it.SizeBytes > 0 {
		if f.minSize >= 0 && it.SizeBytes < f.minSize {
			return false
		}
		if f.maxSize >= 0 && it.SizeBytes > f.maxSize {
			return false
		}
	}

	return true
}

// SelectedIndices reports the sorted indices an index criterion would keep
// for a gallery of n items. Used by simulate output and tests.
func (f *Filter) SelectedIndices(n int) []int {
	out := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		if f.indices == nil || f.indices[i] {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}

// ParseItemSpec parses a comma-separated list of indices and closed ranges
// ("1,3,5-10") into a set. Duplicates collapse; out-of-range handling is the
// caller's concern since galleries can shrink between listing and filtering.
func ParseItemSpec(spec string) (map[int]bool, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.Newf(errors.KindValidation, "item spec %q: empty entry", spec)
		}
		lo, hi, err := parseRange(spec, part)
		if err != nil {
			return nil, err
		}
		for i := lo; i <= hi; i++ {
			set[i] = true
		}
	}
	return set, nil
}

func parseRange(spec, part string) (int, int, error) {
	if idx := strings.IndexByte(part, '-'); idx >= 0 {
		lo, err := parseIndex(spec, part[:idx])
		if err != nil {
			return 0, 0, err
		}
		hi, err := parseIndex(spec, part[idx+1:])
		if err != nil {
			return 0, 0, err
		}
		if lo > hi {
			return 0, 0, errors.Newf(errors.KindValidation, "item spec %q: range %q has high < low", spec, part)
		}
		return lo, hi, nil
	}
	n, err := parseIndex(spec, part)
	if err != nil {
		return 0, 0, err
	}
	return n, n, nil
}

func parseIndex(spec, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Newf(errors.KindValidation, "item spec %q: %q is not an index", spec, s)
	}
	if n < 1 {
		return 0, errors.Newf(errors.KindValidation, "item spec %q: index %d is not 1-based", spec, n)
	}
	return n, nil
}

// ParseDate accepts YYYYMMDD or YYYY-MM-DD and returns the date at UTC
// midnight.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Newf(errors.KindValidation, "invalid date %q (want YYYYMMDD or YYYY-MM-DD)", s)
}

// ParseByteSize parses a size like "500", "200k", "1.5M" or "2GiB" into
// bytes. Suffixes are k/m/g with optional i and/or B, case-insensitive;
// the i forms are binary (1024-based), the bare forms decimal.
func ParseByteSize(s string) (int64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.Newf(errors.KindValidation, "empty size")
	}

	mult := int64(1)
	lower := strings.ToLower(s)
	lower = strings.TrimSuffix(lower, "b")
	binary := strings.HasSuffix(lower, "i")
	lower = strings.TrimSuffix(lower, "i")

	unit := int64(1000)
	if binary {
		unit = 1024
	}
	switch {
	case strings.HasSuffix(lower, "k"):
		mult = unit
		lower = lower[:len(lower)-1]
	case strings.HasSuffix(lower, "m"):
		mult = unit * unit
		lower = lower[:len(lower)-1]
	case strings.HasSuffix(lower, "g"):
		mult = unit * unit * unit
		lower = lower[:len(lower)-1]
	}

	v, err := strconv.ParseFloat(lower, 64)
	if err != nil || v < 0 {
		return 0, errors.Newf(errors.KindValidation, "invalid size %q", orig)
	}
	return int64(v * float64(mult)), nil
}
