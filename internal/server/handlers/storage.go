package handlers

import (
	"context"

	"github.com/dustin/go-humanize"

	"github.com/maruel/gallery/internal/server/dto"
	"github.com/maruel/gallery/internal/storage"
)

// StorageHandler reports storage usage for the management view.
type StorageHandler struct {
	store *storage.Store
}

// NewStorageHandler creates a new storage handler.
func NewStorageHandler(store *storage.Store) *StorageHandler {
	return &StorageHandler{store: store}
}

// Usage returns the size of the collection against the capacity.
func (h *StorageHandler) Usage(ctx context.Context, req *dto.GetStorageRequest) (*dto.StorageResponse, error) {
	u, err := h.store.Usage(ctx)
	if err != nil {
		return nil, err
	}
	return &dto.StorageResponse{
		Used:          u.Used,
		Capacity:      u.Capacity,
		Percent:       u.Percent,
		UsedHuman:     humanize.IBytes(uint64(u.Used)),
		CapacityHuman: humanize.IBytes(uint64(u.Capacity)),
	}, nil
}
