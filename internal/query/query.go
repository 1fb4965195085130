// Package query selects the visible subset of a gallery collection and
// resolves references between records.
//
// Every function is pure: results depend only on the arguments, and input
// slices are never modified.
package query

import (
	"strings"

	"github.com/maruel/gallery/internal/models"
)

// Filter returns the records in category sel whose tags or description
// contain term, ignoring case. An empty term matches every record. The
// original order is preserved.
func Filter(records []models.Record, term string, sel models.Selector) []models.Record {
	needle := strings.ToLower(term)
	out := make([]models.Record, 0, len(records))
	for i := range records {
		r := &records[i]
		if !sel.Matches(r.Category) {
			continue
		}
		if !Matches(r, needle) {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// Matches reports whether needle, which must already be lower case, is a
// substring of one of r's tags or of its description.
func Matches(r *models.Record, needle string) bool {
	if needle == "" {
		return true
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(r.Description), needle)
}

// ResolveRelated looks up each id in records, in the order given. Ids with no
// matching record are dropped. When several records share an id the first
// one wins.
func ResolveRelated(records []models.Record, ids []int64) []models.Record {
	if len(ids) == 0 {
		return []models.Record{}
	}
	byID := make(map[int64]int, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		byID[records[i].ID] = i
	}
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		if i, ok := byID[id]; ok {
			out = append(out, records[i])
		}
	}
	return out
}

// Find returns the first record with the given id.
func Find(records []models.Record, id int64) (models.Record, bool) {
	for i := range records {
		if records[i].ID == id {
			return records[i], true
		}
	}
	return models.Record{}, false
}
