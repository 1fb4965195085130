package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"

	apierrors "github.com/maruel/gallery/internal/errors"
	"github.com/maruel/gallery/internal/models"
	"github.com/maruel/gallery/internal/server/dto"
	"github.com/maruel/gallery/internal/storage"
)

// maxMemory is the part of a multipart form kept in memory; the rest spills
// to temporary files.
const maxMemory = 8 << 20

// ImageHandler handles the gallery and the add-image form.
type ImageHandler struct {
	store   *storage.Store
	builder *models.Builder
}

// NewImageHandler creates a new image handler.
func NewImageHandler(store *storage.Store, builder *models.Builder) *ImageHandler {
	return &ImageHandler{store: store, builder: builder}
}

// ListImages returns the images matching the search term and category, in
// stored order.
func (h *ImageHandler) ListImages(ctx context.Context, req *dto.ListImagesRequest) (*dto.ListImagesResponse, error) {
	images, err := h.store.Search(ctx, req.Q, req.Selector)
	if err != nil {
		return nil, err
	}
	return &dto.ListImagesResponse{Images: images, Total: len(images)}, nil
}

// GetImage returns an image and its related images.
func (h *ImageHandler) GetImage(ctx context.Context, req *dto.GetImageRequest) (*dto.GetImageResponse, error) {
	r, related, err := h.store.Related(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	return &dto.GetImageResponse{Image: r, Related: related}, nil
}

// CreateImage builds a record from the form fields and saves it.
func (h *ImageHandler) CreateImage(ctx context.Context, req *dto.CreateImageRequest) (*dto.ImageResponse, error) {
	return h.save(ctx, req.Draft)
}

// UploadImage is CreateImage for a multipart form. Each of the url,
// character, object and landscape fields may be sent either as text or as a
// file; files are embedded as data URLs.
func (h *ImageHandler) UploadImage(ctx context.Context, r *http.Request) (*dto.ImageResponse, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		if mbe := (*http.MaxBytesError)(nil); errors.As(err, &mbe) {
			return nil, apierrors.PayloadTooLarge(mbe.Limit)
		}
		return nil, apierrors.InvalidFormat("form", err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()
	category, err := models.ParseCategory(r.FormValue("category"))
	if err != nil {
		return nil, err
	}
	d := models.Draft{
		Category:    category,
		Tags:        r.FormValue("tags"),
		Description: r.FormValue("description"),
	}
	fields := []struct {
		name string
		dst  *string
	}{
		{"url", &d.URL},
		{"character", &d.Character},
		{"object", &d.Object},
		{"landscape", &d.Landscape},
	}
	for _, f := range fields {
		v, err := formImage(r.MultipartForm, f.name)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return h.save(ctx, d)
}

// formImage returns the named field as a data URL when it was sent as a
// file, or as is otherwise.
func formImage(form *multipart.Form, name string) (string, error) {
	if files := form.File[name]; len(files) != 0 {
		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			return "", apierrors.InvalidFormat(name, err)
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			return "", apierrors.InvalidFormat(name, err)
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
		}
		return models.EncodeDataURL(ct, data), nil
	}
	if v := form.Value[name]; len(v) != 0 {
		return v[0], nil
	}
	return "", nil
}

func (h *ImageHandler) save(ctx context.Context, d models.Draft) (*dto.ImageResponse, error) {
	r, err := h.builder.Build(d)
	if err != nil {
		return nil, err
	}
	if err := h.store.Save(ctx, r); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Added image", "id", r.ID, "category", r.Category, "tags", len(r.Tags))
	return &dto.ImageResponse{Image: r}, nil
}

// DeleteImage removes an image. Deleting an unknown id succeeds.
func (h *ImageHandler) DeleteImage(ctx context.Context, req *dto.DeleteImageRequest) (*dto.DeleteImageResponse, error) {
	if err := h.store.Delete(ctx, req.ID); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Deleted image", "id", req.ID)
	return &dto.DeleteImageResponse{}, nil
}
