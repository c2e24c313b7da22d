// Package blobstore holds the uploaded legacy documents an import is built
// from. Files are stored by generated key; imports reference those keys in
// their source-file descriptors and the extraction service fetches the bytes
// by key. The in-memory implementation backs development and tests; a cloud
// object store can replace it behind the same interface.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinrec/clinrec/internal/platform/auth"
	"github.com/clinrec/clinrec/pkg/errs"
)

// MaxFileSize caps one uploaded document at 50 MB.
const MaxFileSize = 50 * 1024 * 1024

// allowedContentTypes are the formats legacy paper records arrive in.
var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
}

// Blob is one stored document plus its metadata.
type Blob struct {
	Key         string    `json:"key"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	UploadedBy  string    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Store persists uploaded documents by key.
type Store interface {
	Put(ctx context.Context, fileName, contentType string, r io.Reader, uploadedBy string) (*Blob, error)
	Get(ctx context.Context, key string) (*Blob, io.ReadCloser, error)
	Stat(ctx context.Context, key string) (*Blob, error)
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*Blob
	data  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs: make(map[string]*Blob),
		data:  make(map[string][]byte),
	}
}

func (s *MemoryStore) Put(ctx context.Context, fileName, contentType string, r io.Reader, uploadedBy string) (*Blob, error) {
	if fileName == "" {
		return nil, errs.New(errs.KindInvalidArgument, "file name is required")
	}
	if !allowedContentTypes[contentType] {
		return nil, errs.Newf(errs.KindInvalidArgument, "content type %q is not allowed", contentType)
	}

	buf, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(buf)) > MaxFileSize {
		return nil, errs.Newf(errs.KindInvalidArgument, "file exceeds maximum size of %d bytes", MaxFileSize)
	}

	blob := &Blob{
		Key:         "uploads/" + uuid.NewString(),
		FileName:    fileName,
		ContentType: contentType,
		Size:        int64(len(buf)),
		Checksum:    fmt.Sprintf("%x", sha256.Sum256(buf)),
		UploadedBy:  uploadedBy,
		UploadedAt:  time.Now().UTC(),
	}

	s.mu.Lock()
	s.blobs[blob.Key] = blob
	s.data[blob.Key] = buf
	s.mu.Unlock()
	return blob, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Blob, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, nil, errs.New(errs.KindNotFound, "upload not found").WithSubject(key)
	}
	return blob, io.NopCloser(bytes.NewReader(s.data[key])), nil
}

func (s *MemoryStore) Stat(ctx context.Context, key string) (*Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, errs.New(errs.KindNotFound, "upload not found").WithSubject(key)
	}
	return blob, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return errs.New(errs.KindNotFound, "upload not found").WithSubject(key)
	}
	delete(s.blobs, key)
	delete(s.data, key)
	return nil
}

// Handler serves multipart upload and download of import source documents.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleSystem))
	g.POST("/uploads", h.Upload)
	g.GET("/uploads/*", h.Download)
	g.DELETE("/uploads/*", h.Delete)
}

func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	uploadedBy := auth.ActorIDFromContext(c.Request().Context())
	blob, err := h.store.Put(c.Request().Context(), fh.Filename, fh.Header.Get("Content-Type"), src, uploadedBy)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, blob)
}

func (h *Handler) Download(c echo.Context) error {
	key := "uploads/" + c.Param("*")
	blob, rc, err := h.store.Get(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	defer rc.Close()
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", blob.FileName))
	return c.Stream(http.StatusOK, blob.ContentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	key := "uploads/" + c.Param("*")
	if err := h.store.Delete(c.Request().Context(), key); err != nil {
		return echo.NewHTTPError(errs.HTTPStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
