package query

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/maruel/gallery/internal/models"
)

func fixture() []models.Record {
	return []models.Record{
		{Kind: models.KindSimple, ID: 1, URL: "u1", Tags: []string{"red", "cat"}, Description: "A cat", Category: models.CategoryGeneral},
		{Kind: models.KindSimple, ID: 2, URL: "u2", Tags: []string{"Blue"}, Description: "Ocean view", Category: models.CategorySpecialSet, RelatedImages: []int64{1, 42, 3}},
		{Kind: models.KindComposite, ID: 3, Tags: []string{"hero"}, Description: "Redwood ranger", Category: models.CategoryPersonalizationCode, Slots: &models.Slots{Character: "c", Object: "o", Landscape: "l"}},
		{Kind: models.KindSimple, ID: 4, URL: "u4", Tags: nil, Description: "", Category: models.CategoryGeneral},
	}
}

func ids(records []models.Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	records := fixture()
	tests := []struct {
		name string
		term string
		sel  models.Selector
		want []int64
	}{
		{"everything", "", models.SelectAll, []int64{1, 2, 3, 4}},
		{"category only", "", models.Selector(models.CategoryGeneral), []int64{1, 4}},
		{"tag case insensitive", "RED", models.SelectAll, []int64{1, 3}},
		{"tag substring", "lu", models.SelectAll, []int64{2}},
		{"description substring", "view", models.SelectAll, []int64{2}},
		{"both predicates", "red", models.Selector(models.CategoryPersonalizationCode), []int64{3}},
		{"no match", "dog", models.SelectAll, []int64{}},
		{"category without records", "cat", models.Selector(models.CategorySpecialSet), []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(records, tt.term, tt.sel))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Filter(%q, %q) mismatch (-want +got):\n%s", tt.term, tt.sel, diff)
			}
		})
	}

	t.Run("identity", func(t *testing.T) {
		if diff := cmp.Diff(records, Filter(records, "", models.SelectAll)); diff != "" {
			t.Errorf("Filter(all) changed the collection (-want +got):\n%s", diff)
		}
	})
}

func TestResolveRelated(t *testing.T) {
	records := fixture()
	tests := []struct {
		name string
		in   []int64
		want []int64
	}{
		{"missing dropped", []int64{1, 42, 3}, []int64{1, 3}},
		{"order kept", []int64{3, 1}, []int64{3, 1}},
		{"repeated ids", []int64{4, 4}, []int64{4, 4}},
		{"none", nil, []int64{}},
		{"all missing", []int64{7, 8}, []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(ResolveRelated(records, tt.in))); diff != "" {
				t.Errorf("ResolveRelated(%v) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}

	t.Run("first duplicate wins", func(t *testing.T) {
		dup := append(fixture(), models.Record{Kind: models.KindSimple, ID: 1, URL: "later"})
		got := ResolveRelated(dup, []int64{1})
		if len(got) != 1 || got[0].URL != "u1" {
			t.Errorf("ResolveRelated() = %+v", got)
		}
	})
}

func TestFind(t *testing.T) {
	records := fixture()
	if r, ok := Find(records, 3); !ok || r.Kind != models.KindComposite {
		t.Errorf("Find(3) = %+v, %t", r, ok)
	}
	if _, ok := Find(records, 99); ok {
		t.Error("Find(99) should not find anything")
	}
}
