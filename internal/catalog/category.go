// Package catalog maps raw hierarchical category paths onto the closed set of
// top-level categories the recommenders are built for.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrMalformedCategory is returned when a category path does not resolve to
// exactly one category of the closed set.
var ErrMalformedCategory = errors.New("malformed category path")

// Category is a top-level category name drawn from a Taxonomy.
type Category string

// MalformedCategoryError carries the path that failed to cast and the closed
// set categories that matched it (none, or more than one).
type MalformedCategoryError struct {
	Path    string
	Matches []Category
}

func (e *MalformedCategoryError) Error() string {
	return fmt.Sprintf("wrong group cast for %q: matched %v", e.Path, e.Matches)
}

func (e *MalformedCategoryError) Unwrap() error {
	return ErrMalformedCategory
}

// Taxonomy is the closed set of categories plus the separator used between
// the segments of a category path.
type Taxonomy struct {
	categories []Category
	index      map[Category]struct{}
	separator  string
}

// NewTaxonomy builds a taxonomy from category names. Names are NFC
// normalised so that decomposed input still matches.
func NewTaxonomy(names []string, separator string) (*Taxonomy, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("taxonomy needs at least one category")
	}
	if separator == "" {
		return nil, fmt.Errorf("taxonomy separator must not be empty")
	}

	t := &Taxonomy{
		categories: make([]Category, 0, len(names)),
		index:      make(map[Category]struct{}, len(names)),
		separator:  separator,
	}
	for _, name := range names {
		c := Category(normalize(name))
		if c == "" {
			return nil, fmt.Errorf("taxonomy category must not be empty")
		}
		if strings.Contains(string(c), separator) {
			return nil, fmt.Errorf("taxonomy category %q contains the separator %q", c, separator)
		}
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("duplicate taxonomy category %q", c)
		}
		t.index[c] = struct{}{}
		t.categories = append(t.categories, c)
	}
	return t, nil
}

// Categories returns the closed set in configuration order.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Contains reports whether c belongs to the closed set.
func (t *Taxonomy) Contains(c Category) bool {
	_, ok := t.index[c]
	return ok
}

// Cast resolves a raw category path. Exactly one segment of the path must be
// a closed set category; zero or several matches yield a
// *MalformedCategoryError.
func (t *Taxonomy) Cast(path string) (Category, error) {
	seen := make(map[Category]struct{})
	var matches []Category
	for _, segment := range strings.Split(path, t.separator) {
		c := Category(normalize(segment))
		if _, ok := t.index[c]; !ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		matches = append(matches, c)
	}

	if len(matches) != 1 {
		sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
		return "", &MalformedCategoryError{Path: path, Matches: matches}
	}
	return matches[0], nil
}

// Parse resolves a category given at serving time. A bare category name is
// looked up directly; anything else is cast as a path.
func (t *Taxonomy) Parse(name string) (Category, error) {
	c := Category(normalize(name))
	if t.Contains(c) {
		return c, nil
	}
	return t.Cast(name)
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
