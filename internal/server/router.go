// Package server exposes the gallery over HTTP.
package server

import (
	"net/http"

	"github.com/maruel/gallery/internal/models"
	"github.com/maruel/gallery/internal/server/handlers"
	"github.com/maruel/gallery/internal/server/ratelimit"
	"github.com/maruel/gallery/internal/server/reqctx"
	"github.com/maruel/gallery/internal/storage"
)

// DefaultMaxUploadBytes is used when Options.MaxUploadBytes is not set.
const DefaultMaxUploadBytes = 10 << 20

// draftOverhead is the room left for the JSON syntax of a draft on top of
// the collection capacity.
const draftOverhead = 64 << 10

// Options configures NewRouter.
type Options struct {
	// Version is reported by /api/health.
	Version string
	// Builder assigns record ids; a new one reading time.Now is used if nil.
	Builder *models.Builder
	// Limiter throttles mutating requests per client IP; nil disables it.
	Limiter *ratelimit.Limiter
	// MaxUploadBytes bounds the request bodies that add images. JSON drafts
	// may always be as large as the collection capacity.
	MaxUploadBytes int64
}

// NewRouter creates and configures the HTTP router.
func NewRouter(store *storage.Store, opts Options) http.Handler {
	if opts.Builder == nil {
		opts.Builder = models.NewBuilder(nil)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(opts.Version)
	imageHandler := handlers.NewImageHandler(store, opts.Builder)
	storageHandler := handlers.NewStorageHandler(store)

	mux.Handle("GET /api/health", Wrap(healthHandler.Health))
	mux.Handle("GET /api/categories", Wrap(handlers.Categories))

	// Images endpoints
	mux.Handle("GET /api/images", Wrap(imageHandler.ListImages))
	mux.Handle("GET /api/images/{id}", Wrap(imageHandler.GetImage))
	draftLimit := max(opts.MaxUploadBytes, int64(store.CapacityBytes())+draftOverhead)
	mux.Handle("POST /api/images", WrapLimit(imageHandler.CreateImage, draftLimit))
	mux.Handle("POST /api/images/upload", WrapRaw(imageHandler.UploadImage, opts.MaxUploadBytes))
	mux.Handle("DELETE /api/images/{id}", Wrap(imageHandler.DeleteImage))

	mux.Handle("GET /api/storage", Wrap(storageHandler.Usage))

	limit := ratelimit.Middleware(opts.Limiter, func(r *http.Request) string {
		return "ip:" + reqctx.ClientIP(r.Context())
	}, writeRateLimitError)
	return requestMetadata(limit(mux))
}
