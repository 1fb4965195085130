// Package dto defines the request and response bodies of the HTTP API.
package dto

import (
	"fmt"

	apierrors "github.com/maruel/gallery/internal/errors"
	"github.com/maruel/gallery/internal/models"
)

// Validatable is implemented by every request type.
type Validatable interface {
	Validate() error
}

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}

// ListCategoriesRequest is a request for the category menu.
type ListCategoriesRequest struct{}

// Validate is a no-op for ListCategoriesRequest.
func (r *ListCategoriesRequest) Validate() error {
	return nil
}

// --- Images ---

// ListImagesRequest filters the gallery.
type ListImagesRequest struct {
	Q        string `query:"q"`
	Category string `query:"category"`

	// Selector is set by Validate.
	Selector models.Selector `json:"-"`
}

// Validate parses the category selector.
func (r *ListImagesRequest) Validate() error {
	sel, err := models.ParseSelector(r.Category)
	if err != nil {
		return err
	}
	r.Selector = sel
	return nil
}

// GetImageRequest is a request for one image and its related images.
type GetImageRequest struct {
	ID int64 `path:"id"`
}

// Validate validates the get image request fields.
func (r *GetImageRequest) Validate() error {
	return validateID(r.ID)
}

// CreateImageRequest adds an image from the add-image form fields.
type CreateImageRequest struct {
	models.Draft
}

// Validate checks the category. The other fields are checked when the
// record is built.
func (r *CreateImageRequest) Validate() error {
	if r.Category == "" {
		return nil
	}
	return r.Category.Validate()
}

// DeleteImageRequest is a request to delete an image.
type DeleteImageRequest struct {
	ID int64 `path:"id"`
}

// Validate validates the delete image request fields.
func (r *DeleteImageRequest) Validate() error {
	return validateID(r.ID)
}

// validateID rejects ids no stored record can have.
func validateID(id int64) error {
	if id <= 0 {
		return apierrors.InvalidFormat("id", fmt.Errorf("must be positive, got %d", id))
	}
	return nil
}

// --- Storage ---

// GetStorageRequest is a request for the storage usage.
type GetStorageRequest struct{}

// Validate is a no-op for GetStorageRequest.
func (r *GetStorageRequest) Validate() error {
	return nil
}
