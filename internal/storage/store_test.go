package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	apierrors "github.com/maruel/gallery/internal/errors"
	"github.com/maruel/gallery/internal/kv"
	"github.com/maruel/gallery/internal/models"
)

func simple(id int64, tags ...string) models.Record {
	if tags == nil {
		tags = []string{}
	}
	return models.Record{
		Kind:          models.KindSimple,
		ID:            id,
		Tags:          tags,
		Category:      models.CategoryGeneral,
		RelatedImages: []int64{},
		URL:           fmt.Sprintf("https://example.com/%d.png", id),
	}
}

func composite(id int64) models.Record {
	return models.Record{
		Kind:          models.KindComposite,
		ID:            id,
		Tags:          []string{"code"},
		Category:      models.CategoryPersonalizationCode,
		RelatedImages: []int64{},
		Slots:         &models.Slots{Character: "c.png", Object: "o.png", Landscape: "l.png"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, b kv.Backend, opts ...Option) *Store {
	t.Helper()
	s, err := Open(t.Context(), b, append([]Option{WithLogger(quietLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	b := kv.NewMemory()
	s := newStore(t, b)
	ctx := t.Context()

	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("LoadAll() on empty = %#v", got)
	}

	want := []models.Record{simple(1, "cat", "dog"), composite(2)}
	want[0].Description = "a <b> & c"
	for _, r := range want {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save(%d) = %v", r.ID, err)
		}
	}
	got, err = s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadAll() mismatch (-want +got):\n%s", diff)
	}

	// Another Store over the same backend sees the same collection.
	again, err := newStore(t, b).LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, again); diff != "" {
		t.Errorf("reopened mismatch (-want +got):\n%s", diff)
	}

	blob, err := b.Get(ctx, DefaultKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(blob, []byte(`"a <b> & c"`)) {
		t.Errorf("stored blob escaped HTML: %s", blob)
	}
	used, err := s.UsageBytes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if used != len(blob) {
		t.Errorf("UsageBytes() = %d, stored %d", used, len(blob))
	}
}

func TestStoreSaveRejected(t *testing.T) {
	ctx := t.Context()

	t.Run("validation", func(t *testing.T) {
		b := kv.NewMemory()
		s := newStore(t, b)
		r := composite(1)
		r.Slots.Landscape = ""
		err := s.Save(ctx, r)
		if !apierrors.HasCode(err, apierrors.ErrMissingField) {
			t.Fatalf("Save() = %v, want MISSING_FIELD", err)
		}
		if !strings.Contains(err.Error(), "all three images") {
			t.Errorf("Save() = %v", err)
		}
		if _, err := b.Get(ctx, DefaultKey); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("blob written after a rejected save: %v", err)
		}
	})

	t.Run("zero id", func(t *testing.T) {
		b := kv.NewMemory()
		s := newStore(t, b)
		if err := s.Save(ctx, simple(0)); !apierrors.HasCode(err, apierrors.ErrValidationFailed) {
			t.Fatalf("Save() = %v, want VALIDATION_FAILED", err)
		}
		if _, err := b.Get(ctx, DefaultKey); !errors.Is(err, kv.ErrNotFound) {
			t.Errorf("blob written after a rejected save: %v", err)
		}
	})

	t.Run("duplicate id", func(t *testing.T) {
		s := newStore(t, kv.NewMemory())
		if err := s.Save(ctx, simple(1)); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, simple(1)); !apierrors.HasCode(err, apierrors.ErrConflict) {
			t.Fatalf("Save() = %v, want CONFLICT", err)
		}
	})

	t.Run("capacity", func(t *testing.T) {
		b := kv.NewMemory()
		s := newStore(t, b)
		big := simple(1)
		big.URL = "data:image/png;base64," + strings.Repeat("A", 44*1024*1024/10)
		if err := s.Save(ctx, big); err != nil {
			t.Fatalf("Save(4.4MiB) = %v", err)
		}
		before, err := b.Get(ctx, DefaultKey)
		if err != nil {
			t.Fatal(err)
		}

		second := simple(2)
		second.URL = "data:image/png;base64," + strings.Repeat("B", 200*1024)
		err = s.Save(ctx, second)
		if !apierrors.HasCode(err, apierrors.ErrCapacityExceeded) {
			t.Fatalf("Save() = %v, want CAPACITY_EXCEEDED", err)
		}
		var apiErr *apierrors.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode() != 413 {
			t.Errorf("Save() = %#v", err)
		}
		after, err := b.Get(ctx, DefaultKey)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(before, after) {
			t.Error("blob changed after a rejected save")
		}
		records, err := s.LoadAll(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(records) != 1 || records[0].ID != 1 {
			t.Errorf("LoadAll() has %d records", len(records))
		}
	})

	t.Run("exact capacity", func(t *testing.T) {
		r := simple(1)
		blob, err := encodeCollection([]models.Record{r})
		if err != nil {
			t.Fatal(err)
		}
		s := newStore(t, kv.NewMemory(), WithCapacity(len(blob)))
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save() at exactly the capacity = %v", err)
		}
	})
}

func TestStoreDelete(t *testing.T) {
	ctx := t.Context()
	b := kv.NewMemory()
	s := newStore(t, b)
	for _, id := range []int64{1, 2, 3} {
		if err := s.Save(ctx, simple(id)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete(ctx, 2); err != nil {
		t.Fatal(err)
	}
	records, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int64
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]int64{1, 3}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}

	// Unknown id still writes the collection.
	if err := b.Delete(ctx, DefaultKey); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, 42); err != nil {
		t.Fatal(err)
	}
	blob, err := b.Get(ctx, DefaultKey)
	if err != nil || string(blob) != "[]" {
		t.Errorf("blob = %q, %v", blob, err)
	}
}

func TestStoreDeleteDuplicates(t *testing.T) {
	ctx := t.Context()
	b := kv.NewMemory()
	// Written by another client that did not check ids.
	blob, err := encodeCollection([]models.Record{simple(1), simple(2), simple(1)})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Put(ctx, DefaultKey, blob); err != nil {
		t.Fatal(err)
	}
	s := newStore(t, b)
	if err := s.Delete(ctx, 1); err != nil {
		t.Fatal(err)
	}
	records, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != 2 {
		t.Errorf("LoadAll() = %+v", records)
	}
}

func TestStoreCorrupt(t *testing.T) {
	ctx := t.Context()
	for _, blob := range []string{"not json", `{"id":1}`, `[{"id":"x"}]`} {
		t.Run(blob, func(t *testing.T) {
			b := kv.NewMemory()
			if err := b.Put(ctx, DefaultKey, []byte(blob)); err != nil {
				t.Fatal(err)
			}
			_, err := Open(ctx, b, WithLogger(quietLogger()))
			if !apierrors.HasCode(err, apierrors.ErrCorruptData) {
				t.Fatalf("Open() = %v, want CORRUPT_DATA", err)
			}
			got, err := b.Get(ctx, DefaultKey)
			if err != nil || string(got) != blob {
				t.Errorf("blob = %q, %v", got, err)
			}

			s := newStore(t, b, WithCorruptPolicy(CorruptReset))
			records, err := s.LoadAll(ctx)
			if err != nil || len(records) != 0 {
				t.Fatalf("LoadAll() = %v, %v", records, err)
			}
			if err := s.Save(ctx, simple(1)); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestStoreUsage(t *testing.T) {
	ctx := t.Context()
	s := newStore(t, kv.NewMemory(), WithCapacity(1000))
	used, err := s.UsageBytes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if used != 2 {
		t.Errorf("UsageBytes() on empty = %d, want 2", used)
	}
	if s.CapacityBytes() != 1000 {
		t.Errorf("CapacityBytes() = %d", s.CapacityBytes())
	}
	if err := s.Save(ctx, simple(1)); err != nil {
		t.Fatal(err)
	}
	u, err := s.Usage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	blob, _ := encodeCollection([]models.Record{simple(1)})
	want := Usage{Used: len(blob), Capacity: 1000, Percent: (len(blob)*100 + 500) / 1000}
	if u != want {
		t.Errorf("Usage() = %+v, want %+v", u, want)
	}
	if def := newStore(t, kv.NewMemory()); def.CapacityBytes() != 4718592 {
		t.Errorf("default capacity = %d", def.CapacityBytes())
	}
}

func TestStoreQueries(t *testing.T) {
	ctx := t.Context()
	s := newStore(t, kv.NewMemory())
	cat := simple(1, "cat")
	code := composite(2)
	code.RelatedImages = []int64{99, 1}
	for _, r := range []models.Record{cat, code} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Get(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(code, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Get(ctx, 3); !apierrors.HasCode(err, apierrors.ErrNotFound) {
		t.Errorf("Get(3) = %v", err)
	}

	found, err := s.Search(ctx, "CA", models.SelectAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != 1 {
		t.Errorf("Search() = %+v", found)
	}
	found, err = s.Search(ctx, "", models.Selector(models.CategoryPersonalizationCode))
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 1 || found[0].ID != 2 {
		t.Errorf("Search() = %+v", found)
	}

	r, related, err := s.Related(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if r.ID != 2 || len(related) != 1 || related[0].ID != 1 {
		t.Errorf("Related() = %+v, %+v", r, related)
	}
}

func TestOpenOptions(t *testing.T) {
	ctx := t.Context()
	b := kv.NewMemory()
	for name, opt := range map[string]Option{
		"key":      WithKey("../x"),
		"capacity": WithCapacity(0),
		"policy":   WithCorruptPolicy("ignore"),
	} {
		if _, err := Open(ctx, b, opt); err == nil {
			t.Errorf("%s: Open() succeeded", name)
		}
	}
	s := newStore(t, b, WithKey("other"))
	if err := s.Save(ctx, simple(1)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get(ctx, "other"); err != nil {
		t.Errorf("Get(other) = %v", err)
	}
	if s.Key() != "other" {
		t.Errorf("Key() = %q", s.Key())
	}
}

func TestParseCorruptPolicy(t *testing.T) {
	for in, want := range map[string]CorruptPolicy{"": CorruptFail, "fail": CorruptFail, "reset": CorruptReset} {
		got, err := ParseCorruptPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseCorruptPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCorruptPolicy("drop"); err == nil {
		t.Error("ParseCorruptPolicy(drop) succeeded")
	}
}

func TestStoreGitBackend(t *testing.T) {
	ctx := t.Context()
	g, err := kv.NewGit(t.TempDir(), kv.Author{})
	if err != nil {
		t.Fatal(err)
	}
	s := newStore(t, g)
	if err := s.Save(ctx, simple(7)); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, 7); err != nil {
		t.Fatal(err)
	}
	history, err := g.History(ctx, DefaultKey, 0)
	if err != nil {
		t.Fatal(err)
	}
	var msgs []string
	for _, c := range history {
		msgs = append(msgs, c.Message)
	}
	if diff := cmp.Diff([]string{"Delete image 7", "Add image 7"}, msgs); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreWatch(t *testing.T) {
	defer goleak.VerifyNone(t)
	b := kv.NewMemory()
	s := newStore(t, b)
	ctx, cancel := context.WithCancel(t.Context())
	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()
	deadline := time.After(5 * time.Second)
	for id := int64(1); ; id++ {
		// Another Store sharing the backend.
		if err := newStore(t, b).Save(t.Context(), simple(id)); err != nil {
			t.Fatal(err)
		}
		select {
		case <-changed:
			got, err := s.LoadAll(t.Context())
			if err != nil {
				t.Fatal(err)
			}
			if len(got) == 0 {
				t.Error("LoadAll() after a reported change is empty")
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch() = %v", err)
			}
			return
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("no change reported")
		}
	}
}

type noWatch struct{ kv.Backend }

func TestStoreWatchUnsupported(t *testing.T) {
	s := newStore(t, noWatch{kv.NewMemory()})
	if err := s.Watch(t.Context(), func() {}); !errors.Is(err, ErrWatchUnsupported) {
		t.Errorf("Watch() = %v", err)
	}
}

// manualWatch is a Watcher whose notifications are sent by the test.
type manualWatch struct {
	kv.Backend
	ready chan func()
}

func (m *manualWatch) Watch(ctx context.Context, _ string, fn func()) error {
	m.ready <- fn
	<-ctx.Done()
	return nil
}

func storedIDs(t *testing.T, s *Store) []int64 {
	t.Helper()
	records, err := s.LoadAll(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	out := []int64{}
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestStoreWatchCache(t *testing.T) {
	defer goleak.VerifyNone(t)
	mem := kv.NewMemory()
	w := &manualWatch{Backend: mem, ready: make(chan func(), 1)}
	s := newStore(t, w)
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func() { calls++ })
	}()
	notify := <-w.ready

	if err := s.Save(t.Context(), simple(1)); err != nil {
		t.Fatal(err)
	}
	notify()
	if calls != 0 {
		t.Errorf("own Save reported as a change %d times", calls)
	}

	if err := newStore(t, mem).Save(t.Context(), simple(2)); err != nil {
		t.Fatal(err)
	}
	// Not notified yet: served from memory.
	if diff := cmp.Diff([]int64{1}, storedIDs(t, s)); diff != "" {
		t.Errorf("cached ids mismatch (-want +got):\n%s", diff)
	}
	notify()
	if calls != 1 {
		t.Errorf("change by another Store reported %d times, want 1", calls)
	}
	if diff := cmp.Diff([]int64{1, 2}, storedIDs(t, s)); diff != "" {
		t.Errorf("ids after change mismatch (-want +got):\n%s", diff)
	}
	notify()
	if calls != 1 {
		t.Errorf("unchanged blob reported as a change, %d calls", calls)
	}

	if err := s.Delete(t.Context(), 2); err != nil {
		t.Fatal(err)
	}
	notify()
	if calls != 1 {
		t.Errorf("own Delete reported as a change, %d calls", calls)
	}

	records, err := s.LoadAll(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	records[0].Tags = append(records[0].Tags, "mutated")
	if tags := mustGet(t, s, 1).Tags; len(tags) != 0 {
		t.Errorf("cached record aliased by LoadAll: tags = %v", tags)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch() = %v", err)
	}
	// Without a watch, reads go to the backend again.
	if err := newStore(t, mem).Save(t.Context(), simple(3)); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{1, 3}, storedIDs(t, s)); diff != "" {
		t.Errorf("ids after watch ended mismatch (-want +got):\n%s", diff)
	}
}

func mustGet(t *testing.T, s *Store, id int64) models.Record {
	t.Helper()
	r, err := s.Get(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestStoreKeepsUnknownMembers(t *testing.T) {
	ctx := t.Context()
	b := kv.NewMemory()
	old := `[{"id":1,"url":"u","tags":[],"description":"","category":"general","relatedImages":[],"title":"kept"}]`
	if err := b.Put(ctx, DefaultKey, []byte(old)); err != nil {
		t.Fatal(err)
	}
	s := newStore(t, b)
	if err := s.Save(ctx, simple(2)); err != nil {
		t.Fatal(err)
	}
	blob, err := b.Get(ctx, DefaultKey)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(blob), old[:len(old)-1]+",") {
		t.Errorf("blob = %s", blob)
	}
}
