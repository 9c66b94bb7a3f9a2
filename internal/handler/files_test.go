package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/iliyamo/drive-dataroom/internal/gdrive"
	"github.com/iliyamo/drive-dataroom/internal/repository"
	"github.com/iliyamo/drive-dataroom/internal/service"
)

type stubCredSource struct {
	tok *oauth2.Token
	err error
}

func (s stubCredSource) Valid(ctx context.Context, userID uint64) (*oauth2.Token, error) {
	return s.tok, s.err
}

// stubDrive serves a fixed listing and metadata for the handler tests.
type stubDrive struct {
	meta gdrive.FileMeta
	page gdrive.ListPage
}

func (d stubDrive) Metadata(ctx context.Context, fileID string) (gdrive.FileMeta, error) {
	return d.meta, nil
}

func (d stubDrive) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return nil, nil
}

func (d stubDrive) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	return nil, nil
}

func (d stubDrive) List(ctx context.Context, folderID, pageToken string) (gdrive.ListPage, error) {
	return d.page, nil
}

type stubOpener struct{ drive service.DriveClient }

func (o stubOpener) Open(ctx context.Context, tok *oauth2.Token) (service.DriveClient, error) {
	return o.drive, nil
}

// conflictStore reports every drive id as already imported.
type conflictStore struct{ existing repository.File }

func (s conflictStore) GetByDriveID(ctx context.Context, userID uint64, driveID string) (repository.File, error) {
	return s.existing, nil
}

func (s conflictStore) Replace(ctx context.Context, oldID uint64, f *repository.File) error {
	return nil
}

// emptyStore knows no files.
type emptyStore struct{}

func (emptyStore) GetByDriveID(ctx context.Context, userID uint64, driveID string) (repository.File, error) {
	return repository.File{}, sql.ErrNoRows
}

func (emptyStore) Replace(ctx context.Context, oldID uint64, f *repository.File) error { return nil }

func TestFilesImportRequiresAuth(t *testing.T) {
	h := &FilesHandler{}
	c, rec := newTestContext(http.MethodPost, "/api/files/import", `{"fileId":"d1"}`)

	require.NoError(t, h.Import(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFilesImportRequiresFileID(t *testing.T) {
	h := &FilesHandler{}
	c, rec := newTestContext(http.MethodPost, "/api/files/import", `{"fileId":"  "}`)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Import(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "fileId is required")
}

func TestFilesImportInvalidCredentials(t *testing.T) {
	imp := service.NewImporter(stubCredSource{err: service.ErrCredentialsInvalid}, emptyStore{}, nil, t.TempDir())
	h := &FilesHandler{Importer: imp}
	c, rec := newTestContext(http.MethodPost, "/api/files/import", `{"fileId":"d1"}`)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Import(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid or expired credentials")
}

func TestFilesImportConflict(t *testing.T) {
	driveID := "d1"
	existing := repository.File{ID: 3, UserID: 7, Name: "report.pdf", MimeType: "application/pdf", DriveID: &driveID}
	imp := service.NewImporter(
		stubCredSource{tok: &oauth2.Token{AccessToken: "access-1"}},
		conflictStore{existing: existing},
		stubOpener{drive: stubDrive{meta: gdrive.FileMeta{ID: "d1", Name: "report.pdf", MimeType: "application/pdf"}}},
		t.TempDir(),
	)
	h := &FilesHandler{Importer: imp}
	c, rec := newTestContext(http.MethodPost, "/api/files/import", `{"fileId":"d1"}`)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Import(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Error string   `json:"error"`
		File  fileView `json:"file"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "file already imported", body.Error)
	assert.Equal(t, uint64(3), body.File.ID)
}

func TestFilesImportUnsupportedFormat(t *testing.T) {
	imp := service.NewImporter(
		stubCredSource{tok: &oauth2.Token{AccessToken: "access-1"}},
		emptyStore{},
		stubOpener{drive: stubDrive{meta: gdrive.FileMeta{ID: "form1", Name: "Survey", MimeType: "application/vnd.google-apps.form"}}},
		t.TempDir(),
	)
	h := &FilesHandler{Importer: imp}
	c, rec := newTestContext(http.MethodPost, "/api/files/import", `{"fileId":"form1"}`)
	c.Set("user_id", uint64(7))

	require.NoError(t, h.Import(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not supported")
}

func TestListDriveInvalidCredentials(t *testing.T) {
	h := &FilesHandler{Creds: stubCredSource{err: service.ErrCredentialsInvalid}}
	c, rec := newTestContext(http.MethodGet, "/api/files/drive", "")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.ListDrive(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListDrive(t *testing.T) {
	page := gdrive.ListPage{Files: []gdrive.ListEntry{
		{ID: "f1", Name: "Reports", MimeType: "application/vnd.google-apps.folder"},
		{ID: "d1", Name: "report.pdf", MimeType: "application/pdf", Size: 9},
	}}
	h := &FilesHandler{
		Creds: stubCredSource{tok: &oauth2.Token{AccessToken: "access-1"}},
		Drive: stubOpener{drive: stubDrive{page: page}},
	}
	c, rec := newTestContext(http.MethodGet, "/api/files/drive?folderId=f0", "")
	c.Set("user_id", uint64(7))

	require.NoError(t, h.ListDrive(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got gdrive.ListPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Files, 2)
	assert.Equal(t, "Reports", got.Files[0].Name)
	assert.Equal(t, int64(9), got.Files[1].Size)
}
