package models

import (
	"strings"
	"sync"
	"time"

	apierrors "github.com/maruel/gallery/internal/errors"
)

// Draft holds the fields a user enters in the add-image form.
type Draft struct {
	Category    Category `json:"category"`
	URL         string   `json:"url,omitempty"`
	Tags        string   `json:"tags"` // Comma separated.
	Description string   `json:"description"`
	Character   string   `json:"character,omitempty"`
	Object      string   `json:"object,omitempty"`
	Landscape   string   `json:"landscape,omitempty"`
}

// Builder turns drafts into records and assigns their ids.
//
// Ids are the construction time in milliseconds since the Unix epoch. A
// Builder never returns the same id twice: when its clock has not moved past
// the previous id, the previous id plus one is used instead.
type Builder struct {
	now func() time.Time

	mu   sync.Mutex
	last int64
}

// NewBuilder returns a Builder reading time from now, or time.Now if nil.
func NewBuilder(now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{now: now}
}

// Build validates d and constructs the record variant its category calls for.
//
// It fails with a validation error, without producing a partial record, when
// a single image has no URL or a personalization code misses any slot.
func (b *Builder) Build(d Draft) (Record, error) {
	category := d.Category
	if category == "" {
		category = CategoryGeneral
	}
	if err := category.Validate(); err != nil {
		return Record{}, err
	}
	r := Record{
		Tags:          SplitTags(d.Tags),
		Description:   d.Description,
		Category:      category,
		RelatedImages: []int64{},
	}
	if category.Composite() {
		s := &Slots{Character: d.Character, Object: d.Object, Landscape: d.Landscape}
		if missing := s.Missing(); len(missing) != 0 {
			return Record{}, apierrors.MissingFields(errMissingSlots, missing)
		}
		r.Kind = KindComposite
		r.Slots = s
	} else {
		if d.URL == "" {
			return Record{}, apierrors.MissingField("url").WithDetail("message", "Please provide an image URL.")
		}
		r.Kind = KindSimple
		r.URL = d.URL
	}
	r.ID = b.nextID()
	return r, nil
}

func (b *Builder) nextID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.now().UnixMilli()
	if id <= b.last {
		id = b.last + 1
	}
	b.last = id
	return id
}

// SplitTags splits a comma separated tag list and trims each tag. Empty
// segments are kept, so "" yields a single empty tag.
func SplitTags(s string) []string {
	tags := strings.Split(s, ",")
	for i, t := range tags {
		tags[i] = strings.TrimSpace(t)
	}
	return tags
}
