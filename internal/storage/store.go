// Package storage persists the image collection as a single serialized blob
// in a kv.Backend.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	apierrors "github.com/maruel/gallery/internal/errors"
	"github.com/maruel/gallery/internal/kv"
	"github.com/maruel/gallery/internal/models"
	"github.com/maruel/gallery/internal/query"
)

const (
	// DefaultKey is the slot holding the collection.
	DefaultKey = "galleryImages"
	// DefaultCapacity is the size ceiling of the serialized collection.
	DefaultCapacity = 4.5 * 1024 * 1024
)

// CorruptPolicy decides what happens when the stored blob cannot be decoded.
type CorruptPolicy string

const (
	// CorruptFail reports CORRUPT_DATA and leaves the blob untouched.
	CorruptFail CorruptPolicy = "fail"
	// CorruptReset logs a warning and starts over from an empty collection.
	CorruptReset CorruptPolicy = "reset"
)

// ParseCorruptPolicy parses a policy name. The empty string is CorruptFail.
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	switch p := CorruptPolicy(s); p {
	case "":
		return CorruptFail, nil
	case CorruptFail, CorruptReset:
		return p, nil
	default:
		return "", fmt.Errorf("invalid corrupt data policy %q", s)
	}
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the slot name.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithCapacity sets the size ceiling in bytes.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithCorruptPolicy sets the corrupt data policy.
func WithCorruptPolicy(p CorruptPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Usage is the storage consumption as shown to users.
type Usage struct {
	Used     int `json:"used"`
	Capacity int `json:"capacity"`
	// Percent is Used/Capacity as a rounded percentage.
	Percent int `json:"percent"`
}

// Store is the gallery collection over a kv.Backend.
//
// Every operation reads the whole blob and writes it back whole. Operations
// in this process are serialized; writers in other processes sharing the
// backend are not, and the last write wins.
//
// While Watch runs, reads are served from the decoded collection kept in
// memory, and change notifications from other writers invalidate it.
type Store struct {
	backend  kv.Backend
	key      string
	capacity int
	policy   CorruptPolicy
	log      *slog.Logger

	mu       sync.Mutex
	watchers int

	// last is the blob as of the latest read or write through this Store,
	// nil when the slot is absent. It is meaningful when haveLast is set.
	last     []byte
	haveLast bool
	cached   []models.Record // valid when cacheOK
	cacheOK  bool
}

// Open returns a Store over backend. It reads the collection once so a
// corrupt blob is reported early.
func Open(ctx context.Context, backend kv.Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend:  backend,
		key:      DefaultKey,
		capacity: DefaultCapacity,
		policy:   CorruptFail,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := kv.ValidateKey(s.key); err != nil {
		return nil, err
	}
	if s.capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", s.capacity)
	}
	if _, err := ParseCorruptPolicy(string(s.policy)); err != nil {
		return nil, err
	}
	if _, err := s.LoadAll(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Key returns the slot name.
func (s *Store) Key() string {
	return s.key
}

// CapacityBytes returns the size ceiling.
func (s *Store) CapacityBytes() int {
	return s.capacity
}

// LoadAll returns every record in stored order. An absent collection is
// empty.
func (s *Store) LoadAll(ctx context.Context) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) ([]models.Record, error) {
	if s.watchers > 0 && s.cacheOK {
		return cloneRecords(s.cached), nil
	}
	blob, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		s.remember(nil, []models.Record{})
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, apierrors.Storage("read collection", err)
	}
	var records []models.Record
	if err := json.Unmarshal(blob, &records); err != nil {
		if s.policy != CorruptReset {
			return nil, apierrors.CorruptData(s.key, err)
		}
		s.log.WarnContext(ctx, "Discarding corrupt collection", "key", s.key, "size", len(blob), "err", err)
		if err := s.backend.Delete(kv.WithCommitMessage(ctx, "Reset corrupt collection"), s.key); err != nil {
			return nil, apierrors.Storage("reset collection", err)
		}
		s.remember(nil, []models.Record{})
		return []models.Record{}, nil
	}
	if records == nil {
		records = []models.Record{}
	}
	s.remember(blob, records)
	return cloneRecords(records), nil
}

// remember records blob as the current content of the slot.
func (s *Store) remember(blob []byte, records []models.Record) {
	s.last = blob
	s.haveLast = true
	s.cached = records
	s.cacheOK = true
}

func cloneRecords(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}

// Save appends r to the collection. Nothing is written when validation fails,
// when the id is already used or when the result would exceed the capacity.
func (s *Store) Save(ctx context.Context, r models.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if _, ok := query.Find(records, r.ID); ok {
		return apierrors.Conflict(fmt.Sprintf("image %d already exists", r.ID)).WithDetail("id", r.ID)
	}
	records = append(records, r.Clone())
	blob, err := encodeCollection(records)
	if err != nil {
		return apierrors.InternalWithError("failed to encode collection", err)
	}
	if len(blob) > s.capacity {
		s.log.InfoContext(ctx, "Rejected image over capacity", "id", r.ID, "size", len(blob), "capacity", s.capacity)
		return apierrors.CapacityExceeded(len(blob), s.capacity)
	}
	if err := s.backend.Put(kv.WithCommitMessage(ctx, fmt.Sprintf("Add image %d", r.ID)), s.key, blob); err != nil {
		s.haveLast, s.cacheOK = false, false
		return apierrors.Storage("write collection", err)
	}
	s.remember(blob, records)
	s.log.DebugContext(ctx, "Saved image", "id", r.ID, "kind", r.Kind, "size", len(blob))
	return nil
}

// Delete removes every record with the given id. The remainder is written
// back even when no record matched.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	n := len(records)
	records = slices.DeleteFunc(records, func(r models.Record) bool { return r.ID == id })
	blob, err := encodeCollection(records)
	if err != nil {
		return apierrors.InternalWithError("failed to encode collection", err)
	}
	if err := s.backend.Put(kv.WithCommitMessage(ctx, fmt.Sprintf("Delete image %d", id)), s.key, blob); err != nil {
		s.haveLast, s.cacheOK = false, false
		return apierrors.Storage("write collection", err)
	}
	s.remember(blob, records)
	s.log.DebugContext(ctx, "Deleted image", "id", id, "removed", n-len(records))
	return nil
}

// UsageBytes returns the serialized size of the current collection.
func (s *Store) UsageBytes(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	blob, err := encodeCollection(records)
	if err != nil {
		return 0, apierrors.InternalWithError("failed to encode collection", err)
	}
	return len(blob), nil
}

// Usage returns UsageBytes along with the capacity.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	used, err := s.UsageBytes(ctx)
	if err != nil {
		return Usage{}, err
	}
	return Usage{
		Used:     used,
		Capacity: s.capacity,
		Percent:  int(math.Round(float64(used) / float64(s.capacity) * 100)),
	}, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (models.Record, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return models.Record{}, err
	}
	r, ok := query.Find(records, id)
	if !ok {
		return models.Record{}, apierrors.NotFound("image").WithDetail("id", id)
	}
	return r, nil
}

// Search returns the records matching term within the selected category.
func (s *Store) Search(ctx context.Context, term string, sel models.Selector) ([]models.Record, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return query.Filter(records, term, sel), nil
}

// Related returns the record with the given id and the records it links to
// that still exist.
func (s *Store) Related(ctx context.Context, id int64) (models.Record, []models.Record, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return models.Record{}, nil, err
	}
	r, ok := query.Find(records, id)
	if !ok {
		return models.Record{}, nil, apierrors.NotFound("image").WithDetail("id", id)
	}
	return r, query.ResolveRelated(records, r.RelatedImages), nil
}

// ErrWatchUnsupported is returned by Watch when the backend cannot report
// changes.
var ErrWatchUnsupported = errors.New("backend does not support change notification")

// Watch calls fn each time another writer changes the collection in the
// backend, until ctx is canceled. Writes made through s are not reported.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	w, ok := s.backend.(kv.Watcher)
	if !ok {
		return ErrWatchUnsupported
	}
	s.mu.Lock()
	if s.watchers == 0 {
		s.cacheOK = false
	}
	s.watchers++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watchers--
		s.mu.Unlock()
	}()
	return w.Watch(ctx, s.key, func() {
		if s.refresh(ctx) {
			fn()
		}
	})
}

// refresh compares the stored blob with the last one s read or wrote. It
// drops the cached collection and reports true when they differ.
func (s *Store) refresh(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, kv.ErrNotFound) {
		blob, err = nil, nil
	}
	if err != nil {
		s.log.WarnContext(ctx, "Failed to read collection after change", "key", s.key, "err", err)
		s.cacheOK = false
		return false
	}
	if s.haveLast && bytes.Equal(blob, s.last) {
		return false
	}
	s.last, s.haveLast = blob, true
	s.cacheOK = false
	return true
}

// encodeCollection returns the compact JSON form of records. HTML characters
// are kept as is so the length is the stored size.
func encodeCollection(records []models.Record) ([]byte, error) {
	if records == nil {
		records = []models.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
