package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/drive-dataroom/internal/middleware"
	"github.com/iliyamo/drive-dataroom/internal/repository"
	"github.com/iliyamo/drive-dataroom/internal/service"
)

// driveListCacheTTL bounds how stale a cached Drive folder listing can be.
const driveListCacheTTL = 30 * time.Second

// FilesHandler bundles dependencies for the file endpoints: the local
// mirror store, the import pipeline and the Drive listing proxy.
type FilesHandler struct {
	Files    *repository.FileRepo
	Importer *service.Importer
	Creds    service.CredentialSource
	Drive    service.DriveOpener
	// Cache may be nil; Drive listings are then always fetched live.
	Cache *redis.Client
}

func NewFilesHandler(files *repository.FileRepo, imp *service.Importer, creds service.CredentialSource, drive service.DriveOpener, cache *redis.Client) *FilesHandler {
	return &FilesHandler{Files: files, Importer: imp, Creds: creds, Drive: drive, Cache: cache}
}

// ----- DTOs -----

type importReq struct {
	FileID    string `json:"fileId"`
	Overwrite bool   `json:"overwrite"`
}

type fileView struct {
	ID        uint64  `json:"id"`
	Name      string  `json:"name"`
	MimeType  string  `json:"mime_type"`
	Size      int64   `json:"size"`
	DriveID   *string `json:"drive_id"`
	CreatedAt string  `json:"created_at"`
}

func toFileView(f repository.File) fileView {
	return fileView{
		ID:        f.ID,
		Name:      f.Name,
		MimeType:  f.MimeType,
		Size:      f.Size,
		DriveID:   f.DriveID,
		CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List returns the caller's imported files, newest first.
func (h *FilesHandler) List(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	files, err := h.Files.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list files failed"})
	}
	views := make([]fileView, 0, len(files))
	for _, f := range files {
		views = append(views, toFileView(f))
	}
	return c.JSON(http.StatusOK, views)
}

// ListDrive proxies one page of the user's Drive folder listing, cached in
// Redis for a short TTL so rapid folder navigation does not hammer the
// Drive API.
func (h *FilesHandler) ListDrive(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	folderID := c.QueryParam("folderId")
	if folderID == "" {
		folderID = "root"
	}
	pageToken := c.QueryParam("pageToken")

	ctx := c.Request().Context()
	cacheKey := fmt.Sprintf("drivels:%d:%s:%s", uid, folderID, pageToken)
	if h.Cache != nil {
		if blob, err := h.Cache.Get(ctx, cacheKey).Bytes(); err == nil {
			return c.JSONBlob(http.StatusOK, blob)
		}
	}

	tok, err := h.Creds.Valid(ctx, uid)
	if err != nil {
		if errors.Is(err, service.ErrCredentialsInvalid) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "credential lookup failed"})
	}
	client, err := h.Drive.Open(ctx, tok)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "drive client failed"})
	}
	page, err := client.List(ctx, folderID, pageToken)
	if err != nil {
		log.Printf("files: drive list failed for user %d: %v", uid, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "drive listing failed"})
	}

	if h.Cache != nil {
		if blob, marshalErr := json.Marshal(page); marshalErr == nil {
			_ = h.Cache.Set(ctx, cacheKey, blob, driveListCacheTTL).Err()
		}
	}
	return c.JSON(http.StatusOK, page)
}

// Import runs the import pipeline for one Drive object.
func (h *FilesHandler) Import(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req importReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.FileID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "fileId is required"})
	}

	f, err := h.Importer.Import(c.Request().Context(), uid, strings.TrimSpace(req.FileID), req.Overwrite)
	if err != nil {
		var dup *service.AlreadyImportedError
		switch {
		case errors.As(err, &dup):
			return c.JSON(http.StatusConflict, echo.Map{
				"error": "file already imported",
				"file":  toFileView(dup.Existing),
			})
		case errors.Is(err, service.ErrUnsupportedFormat):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "this google workspace file type is not supported"})
		case errors.Is(err, service.ErrCredentialsInvalid):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired credentials"})
		case errors.Is(err, service.ErrRemoteFetch):
			log.Printf("files: import of %s failed for user %d: %v", req.FileID, uid, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "drive import failed"})
		default:
			log.Printf("files: import of %s failed for user %d: %v", req.FileID, uid, err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "import failed"})
		}
	}
	return c.JSON(http.StatusCreated, toFileView(f))
}

// Get returns metadata for one of the caller's files.
func (h *FilesHandler) Get(c echo.Context) error {
	f, errResp := h.ownedFile(c)
	if errResp != nil {
		return errResp(c)
	}
	return c.JSON(http.StatusOK, toFileView(f))
}

// View streams the blob inline (e.g. for an in-browser preview).
func (h *FilesHandler) View(c echo.Context) error {
	f, errResp := h.ownedFile(c)
	if errResp != nil {
		return errResp(c)
	}
	if _, err := os.Stat(f.LocalPath); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found on disk"})
	}
	c.Response().Header().Set(echo.HeaderContentType, f.MimeType)
	return c.Inline(f.LocalPath, f.Name)
}

// Download streams the blob as an attachment.
func (h *FilesHandler) Download(c echo.Context) error {
	f, errResp := h.ownedFile(c)
	if errResp != nil {
		return errResp(c)
	}
	if _, err := os.Stat(f.LocalPath); err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found on disk"})
	}
	c.Response().Header().Set(echo.HeaderContentType, f.MimeType)
	return c.Attachment(f.LocalPath, f.Name)
}

// Delete removes a file record and its blob in lock-step: the record goes
// first, then the blob, so a failure can never leave a record pointing at
// nothing while the client believes the file still exists.
func (h *FilesHandler) Delete(c echo.Context) error {
	f, errResp := h.ownedFile(c)
	if errResp != nil {
		return errResp(c)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Files.Delete(ctx, f.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	if err := os.Remove(f.LocalPath); err != nil && !os.IsNotExist(err) {
		log.Printf("files: blob cleanup failed for %s: %v", f.LocalPath, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "file deleted"})
}

// ownedFile loads the file addressed by the :id param, enforcing
// ownership.  On failure it returns a non-nil responder that writes the
// appropriate error.
func (h *FilesHandler) ownedFile(c echo.Context) (repository.File, func(echo.Context) error) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return repository.File{}, func(c echo.Context) error {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
		}
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return repository.File{}, func(c echo.Context) error {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid file id"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	f, err := h.Files.GetByIDForUser(ctx, id, uid)
	if err == sql.ErrNoRows {
		return repository.File{}, func(c echo.Context) error {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
		}
	}
	if err != nil {
		return repository.File{}, func(c echo.Context) error {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load file failed"})
		}
	}
	return f, nil
}
