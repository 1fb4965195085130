// Package models defines the image records stored in the gallery and their
// persisted JSON shape.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	apierrors "github.com/maruel/gallery/internal/errors"
)

// Kind discriminates the two record shapes.
type Kind int

const (
	// KindSimple is a single image referenced by URL.
	KindSimple Kind = iota + 1
	// KindComposite is a personalization code: three image slots.
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindComposite:
		return "composite"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Slots holds the three images of a personalization code. Each value is an
// image reference, usually an embedded data URL.
type Slots struct {
	Character string `json:"character"`
	Object    string `json:"object"`
	Landscape string `json:"landscape"`
}

// Missing returns the names of the empty slots, in display order.
func (s *Slots) Missing() []string {
	var missing []string
	if s.Character == "" {
		missing = append(missing, "character")
	}
	if s.Object == "" {
		missing = append(missing, "object")
	}
	if s.Landscape == "" {
		missing = append(missing, "landscape")
	}
	return missing
}

// Record is one addressable image entry.
//
// Kind selects which of URL or Slots is meaningful. Records are immutable once
// stored; there is no update, only delete then re-create.
type Record struct {
	Kind          Kind
	ID            int64
	Tags          []string
	Description   string
	Category      Category
	RelatedImages []int64

	// URL is set for KindSimple.
	URL string
	// Slots is set for KindComposite.
	Slots *Slots

	// Extra holds the members of a decoded record that this package does not
	// know. They are written back unchanged, after the known members.
	Extra map[string]json.RawMessage
}

// Validate checks that the record is well-formed and that its shape agrees
// with its category.
func (r *Record) Validate() error {
	if err := r.Category.Validate(); err != nil {
		return err
	}
	switch r.Kind {
	case KindSimple:
		if r.Category.Composite() {
			return apierrors.Validation("category personalizationCode requires character, object and landscape images")
		}
		if r.Slots != nil {
			return apierrors.Validation("a single image cannot carry personalization slots")
		}
		if r.URL == "" {
			return apierrors.MissingField("url")
		}
	case KindComposite:
		if !r.Category.Composite() {
			return apierrors.Validation(fmt.Sprintf("category %s requires a single image url", r.Category))
		}
		if r.URL != "" {
			return apierrors.Validation("a personalization code cannot carry a url")
		}
		if r.Slots == nil {
			return apierrors.MissingFields(errMissingSlots, []string{"character", "object", "landscape"})
		}
		if missing := r.Slots.Missing(); len(missing) != 0 {
			return apierrors.MissingFields(errMissingSlots, missing)
		}
	default:
		return apierrors.Validation(fmt.Sprintf("unknown record kind %s", r.Kind))
	}
	if r.ID <= 0 {
		return apierrors.Validation(fmt.Sprintf("id must be positive, got %d", r.ID))
	}
	return nil
}

// PreviewURL returns the image shown for the record in lists and in the
// related images strip: the URL, or the character slot of a personalization
// code.
func (r *Record) PreviewURL() string {
	switch r.Kind {
	case KindSimple:
		return r.URL
	case KindComposite:
		if r.Slots != nil {
			return r.Slots.Character
		}
	}
	return ""
}

// TagPreview returns at most n tags and the number of tags left out.
func (r *Record) TagPreview(n int) ([]string, int) {
	if n < 0 {
		n = 0
	}
	if len(r.Tags) <= n {
		return r.Tags, 0
	}
	return r.Tags[:n], len(r.Tags) - n
}

// Clone returns a deep copy.
func (r *Record) Clone() Record {
	c := *r
	c.Tags = slices.Clone(r.Tags)
	c.RelatedImages = slices.Clone(r.RelatedImages)
	if r.Slots != nil {
		s := *r.Slots
		c.Slots = &s
	}
	c.Extra = maps.Clone(r.Extra)
	return c
}

// SimpleImageDoc is the persisted form of a KindSimple record.
type SimpleImageDoc struct {
	ID            int64    `json:"id" jsonschema:"description=Creation time in milliseconds since the Unix epoch"`
	URL           string   `json:"url" jsonschema:"description=Image reference: http(s) URL or data URL"`
	Tags          []string `json:"tags"`
	Description   string   `json:"description"`
	Category      Category `json:"category" jsonschema:"enum=general,enum=specialSet"`
	RelatedImages []int64  `json:"relatedImages" jsonschema:"description=Ids of related records; may reference missing records"`
}

// PersonalizationCodeDoc is the persisted form of a KindComposite record.
type PersonalizationCodeDoc struct {
	ID            int64    `json:"id" jsonschema:"description=Creation time in milliseconds since the Unix epoch"`
	Character     string   `json:"character" jsonschema:"description=Character image reference"`
	Object        string   `json:"object" jsonschema:"description=Object image reference"`
	Landscape     string   `json:"landscape" jsonschema:"description=Landscape image reference"`
	Tags          []string `json:"tags"`
	Description   string   `json:"description"`
	Category      Category `json:"category" jsonschema:"enum=personalizationCode"`
	RelatedImages []int64  `json:"relatedImages" jsonschema:"description=Ids of related records; may reference missing records"`
}

// MarshalJSON emits the persisted shape for the record's kind. Empty sequences
// are written as [] rather than null.
func (r Record) MarshalJSON() ([]byte, error) {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	related := r.RelatedImages
	if related == nil {
		related = []int64{}
	}
	switch r.Kind {
	case KindSimple:
		return r.marshalDoc(&SimpleImageDoc{
			ID:            r.ID,
			URL:           r.URL,
			Tags:          tags,
			Description:   r.Description,
			Category:      r.Category,
			RelatedImages: related,
		})
	case KindComposite:
		var s Slots
		if r.Slots != nil {
			s = *r.Slots
		}
		return r.marshalDoc(&PersonalizationCodeDoc{
			ID:            r.ID,
			Character:     s.Character,
			Object:        s.Object,
			Landscape:     s.Landscape,
			Tags:          tags,
			Description:   r.Description,
			Category:      r.Category,
			RelatedImages: related,
		})
	default:
		return nil, fmt.Errorf("cannot marshal record %d: unknown kind %s", r.ID, r.Kind)
	}
}

// UnmarshalJSON decodes either persisted shape. Stored blobs carry no type
// tag, so the kind is taken from the presence of the "url" member; from then
// on only Kind is consulted.
func (r *Record) UnmarshalJSON(data []byte) error {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	if members == nil {
		return errNullRecord
	}
	if _, ok := members["url"]; ok {
		var d SimpleImageDoc
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		*r = Record{
			Kind:          KindSimple,
			ID:            d.ID,
			URL:           d.URL,
			Tags:          nonNil(d.Tags),
			Description:   d.Description,
			Category:      d.Category,
			RelatedImages: nonNil(d.RelatedImages),
			Extra:         unknownMembers(members, simpleMembers),
		}
		return nil
	}
	var d PersonalizationCodeDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	*r = Record{
		Kind:          KindComposite,
		ID:            d.ID,
		Tags:          nonNil(d.Tags),
		Description:   d.Description,
		Category:      d.Category,
		RelatedImages: nonNil(d.RelatedImages),
		Slots:         &Slots{Character: d.Character, Object: d.Object, Landscape: d.Landscape},
		Extra:         unknownMembers(members, compositeMembers),
	}
	return nil
}

var (
	simpleMembers    = []string{"id", "url", "tags", "description", "category", "relatedImages"}
	compositeMembers = []string{"id", "character", "object", "landscape", "tags", "description", "category", "relatedImages"}
)

// unknownMembers returns the members not in known, or nil if there are none.
func unknownMembers(members map[string]json.RawMessage, known []string) map[string]json.RawMessage {
	var extra map[string]json.RawMessage
	for k, v := range members {
		if slices.Contains(known, k) {
			continue
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = v
	}
	return extra
}

const errMissingSlots = "Please upload all three images for personalization code."

var errNullRecord = errors.New("record is null")

// marshalDoc encodes v followed by r.Extra in key order, without HTML
// escaping. json.Marshal escapes the result again; the store encodes with
// escaping off so '&', '<' and '>' are stored as is.
func (r *Record) marshalDoc(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	if len(r.Extra) == 0 {
		return out, nil
	}
	out = out[:len(out)-1]
	for _, k := range slices.Sorted(maps.Keys(r.Extra)) {
		buf.Reset()
		if err := enc.Encode(k); err != nil {
			return nil, err
		}
		out = append(out, ',')
		out = append(out, bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})...)
		out = append(out, ':')
		var value bytes.Buffer
		if err := json.Compact(&value, r.Extra[k]); err != nil {
			return nil, fmt.Errorf("member %q of record %d: %w", k, r.ID, err)
		}
		out = append(out, value.Bytes()...)
	}
	return append(out, '}'), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
