package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/iliyamo/drive-dataroom/internal/gdrive"
	"github.com/iliyamo/drive-dataroom/internal/queue"
	"github.com/iliyamo/drive-dataroom/internal/repository"
)

type stubCreds struct {
	tok *oauth2.Token
	err error
}

func (s stubCreds) Valid(ctx context.Context, userID uint64) (*oauth2.Token, error) {
	return s.tok, s.err
}

type fakeFileStore struct {
	mu          sync.Mutex
	nextID      uint64
	byDrive     map[string]repository.File
	failReplace error
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{byDrive: map[string]repository.File{}}
}

func (s *fakeFileStore) GetByDriveID(ctx context.Context, userID uint64, driveID string) (repository.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.byDrive[fmt.Sprintf("%d:%s", userID, driveID)]
	if !ok {
		return repository.File{}, sql.ErrNoRows
	}
	return f, nil
}

func (s *fakeFileStore) Replace(ctx context.Context, oldID uint64, f *repository.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReplace != nil {
		return s.failReplace
	}
	s.nextID++
	f.ID = s.nextID
	s.byDrive[fmt.Sprintf("%d:%s", f.UserID, *f.DriveID)] = *f
	return nil
}

// fakeDrive serves canned metadata and content and records which transfer
// path the importer took.
type fakeDrive struct {
	meta      map[string]gdrive.FileMeta
	content   map[string][]byte
	exported  map[string][]byte
	downloads int
	exports   int
	streamErr error
}

func (d *fakeDrive) Metadata(ctx context.Context, fileID string) (gdrive.FileMeta, error) {
	m, ok := d.meta[fileID]
	if !ok {
		return gdrive.FileMeta{}, errors.New("not found")
	}
	return m, nil
}

func (d *fakeDrive) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	d.downloads++
	if d.streamErr != nil {
		return io.NopCloser(&failingReader{err: d.streamErr}), nil
	}
	return io.NopCloser(bytes.NewReader(d.content[fileID])), nil
}

func (d *fakeDrive) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	d.exports++
	return io.NopCloser(bytes.NewReader(d.exported[fileID])), nil
}

func (d *fakeDrive) List(ctx context.Context, folderID, pageToken string) (gdrive.ListPage, error) {
	return gdrive.ListPage{}, nil
}

type failingReader struct{ err error }

func (r *failingReader) Read(p []byte) (int, error) { return 0, r.err }

type fakeOpener struct{ drive *fakeDrive }

func (o fakeOpener) Open(ctx context.Context, tok *oauth2.Token) (DriveClient, error) {
	return o.drive, nil
}

func testImporter(t *testing.T, drive *fakeDrive) (*Importer, *fakeFileStore) {
	t.Helper()
	store := newFakeFileStore()
	imp := NewImporter(
		stubCreds{tok: &oauth2.Token{AccessToken: "access-1"}},
		store,
		fakeOpener{drive: drive},
		t.TempDir(),
	)
	return imp, store
}

func TestImportNativeFile(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"d1": {ID: "d1", Name: "report.pdf", MimeType: "application/pdf", Size: 999},
		},
		content: map[string][]byte{"d1": []byte("pdf-bytes")},
	}
	imp, store := testImporter(t, drive)

	f, err := imp.Import(context.Background(), 7, "d1", false)
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.MimeType)
	// Measured size wins over the remote-reported 999.
	assert.Equal(t, int64(len("pdf-bytes")), f.Size)
	require.NotNil(t, f.DriveID)
	assert.Equal(t, "d1", *f.DriveID)
	assert.Equal(t, filepath.Join(imp.StorageDir, "7_d1_report.pdf"), f.LocalPath)

	data, err := os.ReadFile(f.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(data))

	stored, err := store.GetByDriveID(context.Background(), 7, "d1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, stored.ID)
	assert.Equal(t, 1, drive.downloads)
	assert.Equal(t, 0, drive.exports)
}

func TestImportWorkspaceDocExports(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"doc1": {ID: "doc1", Name: "Q3 Notes", MimeType: "application/vnd.google-apps.document"},
		},
		exported: map[string][]byte{"doc1": []byte("%PDF-1.7")},
	}
	imp, _ := testImporter(t, drive)

	f, err := imp.Import(context.Background(), 7, "doc1", false)
	require.NoError(t, err)

	assert.Equal(t, "Q3 Notes.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.MimeType)
	assert.Equal(t, filepath.Join(imp.StorageDir, "7_doc1_Q3 Notes.pdf"), f.LocalPath)
	assert.Equal(t, 0, drive.downloads)
	assert.Equal(t, 1, drive.exports)

	data, err := os.ReadFile(f.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
}

func TestImportUnsupportedWorkspaceFormat(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"form1": {ID: "form1", Name: "Survey", MimeType: "application/vnd.google-apps.form"},
		},
	}
	imp, store := testImporter(t, drive)

	_, err := imp.Import(context.Background(), 7, "form1", false)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, 0, drive.downloads)
	assert.Equal(t, 0, drive.exports)

	// Rejected before any bytes moved: storage stays empty, no record.
	entries, err := os.ReadDir(imp.StorageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = store.GetByDriveID(context.Background(), 7, "form1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestImportDuplicateWithoutOverwrite(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"d1": {ID: "d1", Name: "report.pdf", MimeType: "application/pdf"},
		},
		content: map[string][]byte{"d1": []byte("pdf-bytes")},
	}
	imp, _ := testImporter(t, drive)

	first, err := imp.Import(context.Background(), 7, "d1", false)
	require.NoError(t, err)

	_, err = imp.Import(context.Background(), 7, "d1", false)
	var dup *AlreadyImportedError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.Existing.ID)
	assert.Equal(t, 1, drive.downloads, "a rejected duplicate must not re-download")
}

func TestImportOverwriteReplacesRecordAndBlob(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"d1": {ID: "d1", Name: "report.pdf", MimeType: "application/pdf"},
		},
		content: map[string][]byte{"d1": []byte("v1")},
	}
	imp, store := testImporter(t, drive)
	ctx := context.Background()

	first, err := imp.Import(ctx, 7, "d1", false)
	require.NoError(t, err)

	drive.content["d1"] = []byte("v2-longer")
	second, err := imp.Import(ctx, 7, "d1", true)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(len("v2-longer")), second.Size)

	data, err := os.ReadFile(second.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "v2-longer", string(data))

	// Exactly one blob and one record remain.
	entries, err := os.ReadDir(imp.StorageDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	stored, err := store.GetByDriveID(ctx, 7, "d1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ID)
}

func TestImportStreamFailureLeavesNothing(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"d1": {ID: "d1", Name: "report.pdf", MimeType: "application/pdf"},
		},
		streamErr: errors.New("connection reset"),
	}
	imp, store := testImporter(t, drive)

	_, err := imp.Import(context.Background(), 7, "d1", false)
	assert.ErrorIs(t, err, ErrRemoteFetch)

	// No final blob, no temp leftovers, no record.
	entries, err := os.ReadDir(imp.StorageDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	_, err = store.GetByDriveID(context.Background(), 7, "d1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestImportRecordFailureRemovesBlob(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"d1": {ID: "d1", Name: "report.pdf", MimeType: "application/pdf"},
		},
		content: map[string][]byte{"d1": []byte("pdf-bytes")},
	}
	imp, store := testImporter(t, drive)
	store.failReplace = errors.New("deadlock")

	_, err := imp.Import(context.Background(), 7, "d1", false)
	assert.Error(t, err)

	entries, err := os.ReadDir(imp.StorageDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "the blob must be removed when the record insert fails")
}

func TestImportCredentialFailure(t *testing.T) {
	imp := NewImporter(stubCreds{err: ErrCredentialsInvalid}, newFakeFileStore(), fakeOpener{drive: &fakeDrive{}}, t.TempDir())

	_, err := imp.Import(context.Background(), 7, "d1", false)
	assert.ErrorIs(t, err, ErrCredentialsInvalid)
}

func TestImportPublishesEvent(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"d1": {ID: "d1", Name: "report.pdf", MimeType: "application/pdf"},
		},
		content: map[string][]byte{"d1": []byte("pdf-bytes")},
	}
	imp, _ := testImporter(t, drive)

	var got queue.FileImportedEvent
	imp.Publish = func(ctx context.Context, ev queue.FileImportedEvent) error {
		got = ev
		return nil
	}

	f, err := imp.Import(context.Background(), 7, "d1", false)
	require.NoError(t, err)

	assert.Equal(t, f.ID, got.FileID)
	assert.Equal(t, uint64(7), got.UserID)
	assert.Equal(t, "report.pdf", got.Name)
	assert.Equal(t, "d1", got.DriveID)
	assert.False(t, got.Overwrite)
	assert.NotEmpty(t, got.ImportedAt)
}

func TestImportPublishFailureDoesNotFailImport(t *testing.T) {
	drive := &fakeDrive{
		meta: map[string]gdrive.FileMeta{
			"d1": {ID: "d1", Name: "report.pdf", MimeType: "application/pdf"},
		},
		content: map[string][]byte{"d1": []byte("pdf-bytes")},
	}
	imp, _ := testImporter(t, drive)
	imp.Publish = func(ctx context.Context, ev queue.FileImportedEvent) error {
		return errors.New("broker unreachable")
	}

	_, err := imp.Import(context.Background(), 7, "d1", false)
	assert.NoError(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"Q3 Notes.pdf", "Q3 Notes.pdf"},
		{"../../etc/passwd", "......etcpasswd"},
		{"budget (final)?.xlsx", "budget final.xlsx"},
		{"a/b\\c:d", "abcd"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), tt.in)
	}
}
