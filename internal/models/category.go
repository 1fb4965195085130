package models

import (
	"fmt"

	apierrors "github.com/maruel/gallery/internal/errors"
)

// Category classifies a record.
type Category string

const (
	// CategoryGeneral is the default category for single images.
	CategoryGeneral Category = "general"
	// CategorySpecialSet groups single images that belong to a special set.
	CategorySpecialSet Category = "specialSet"
	// CategoryPersonalizationCode is reserved for character/object/landscape triples.
	CategoryPersonalizationCode Category = "personalizationCode"
)

// Validate returns an error if c is not a known category.
func (c Category) Validate() error {
	switch c {
	case CategoryGeneral, CategorySpecialSet, CategoryPersonalizationCode:
		return nil
	default:
		return apierrors.Validation(fmt.Sprintf("unknown category %q", string(c))).WithDetail("field", "category")
	}
}

// Composite reports whether records of this category use the three-slot shape.
func (c Category) Composite() bool {
	return c == CategoryPersonalizationCode
}

// ParseCategory parses s as a category. An empty string means general, which
// is what the management form preselects.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryGeneral, nil
	}
	c := Category(s)
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// Selector picks which categories a gallery view shows: either one category
// or SelectAll.
type Selector string

// SelectAll matches every category.
const SelectAll Selector = "all"

// ParseSelector parses a category selector. An empty string selects all.
func ParseSelector(s string) (Selector, error) {
	if s == "" || Selector(s) == SelectAll {
		return SelectAll, nil
	}
	if err := Category(s).Validate(); err != nil {
		return "", err
	}
	return Selector(s), nil
}

// Matches reports whether a record of category c is visible under s.
func (s Selector) Matches(c Category) bool {
	return s == SelectAll || Category(s) == c
}

// CategoryInfo is a selector value with its display name.
type CategoryInfo struct {
	ID   Selector `json:"id"`
	Name string   `json:"name"`
}

// Categories returns the category menu in display order, starting with All.
func Categories() []CategoryInfo {
	return []CategoryInfo{
		{ID: SelectAll, Name: "All"},
		{ID: Selector(CategoryGeneral), Name: "General"},
		{ID: Selector(CategorySpecialSet), Name: "Special Set"},
		{ID: Selector(CategoryPersonalizationCode), Name: "Personalization Code"},
	}
}
