package dto

import (
	"github.com/maruel/gallery/internal/models"
)

// HealthResponse is the response to a health check.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ListCategoriesResponse is the category menu, starting with All.
type ListCategoriesResponse struct {
	Categories []models.CategoryInfo `json:"categories"`
}

// ListImagesResponse is the filtered gallery.
type ListImagesResponse struct {
	Images []models.Record `json:"images"`
	Total  int             `json:"total"`
}

// ImageResponse is a single image.
type ImageResponse struct {
	Image models.Record `json:"image"`
}

// GetImageResponse is an image with the related images that still exist.
type GetImageResponse struct {
	Image   models.Record   `json:"image"`
	Related []models.Record `json:"related"`
}

// DeleteImageResponse is the response to a deletion.
type DeleteImageResponse struct{}

// StorageResponse is the storage usage.
type StorageResponse struct {
	Used          int    `json:"used"`
	Capacity      int    `json:"capacity"`
	Percent       int    `json:"percent"`
	UsedHuman     string `json:"used_human"`
	CapacityHuman string `json:"capacity_human"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error   ErrorDetails   `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorDetails describes the error.
type ErrorDetails struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
