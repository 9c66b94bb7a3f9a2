package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/iliyamo/drive-dataroom/internal/gdrive"
	"github.com/iliyamo/drive-dataroom/internal/queue"
	"github.com/iliyamo/drive-dataroom/internal/repository"
)

// ErrUnsupportedFormat means the Drive object is a Google Workspace
// subtype with no export rule (e.g. a form).  No bytes are transferred and
// nothing is written before this error is returned.
var ErrUnsupportedFormat = errors.New("unsupported google workspace format")

// ErrRemoteFetch wraps failures talking to the Drive API (metadata,
// download, export).  Handlers map it to an upstream-failure response.
var ErrRemoteFetch = errors.New("drive request failed")

// AlreadyImportedError is returned when the (user, drive object) pair has
// already been imported and overwrite was not requested.  It carries the
// existing record so the caller can present it alongside the conflict.
type AlreadyImportedError struct {
	Existing repository.File
}

func (e *AlreadyImportedError) Error() string {
	return fmt.Sprintf("drive file %s already imported as file %d", deref(e.Existing.DriveID), e.Existing.ID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FileStore is the slice of the file repository the importer needs.
// *repository.FileRepo satisfies it.
type FileStore interface {
	GetByDriveID(ctx context.Context, userID uint64, driveID string) (repository.File, error)
	Replace(ctx context.Context, oldID uint64, f *repository.File) error
}

// CredentialSource yields a valid access token for a user.
// *CredentialManager satisfies it.
type CredentialSource interface {
	Valid(ctx context.Context, userID uint64) (*oauth2.Token, error)
}

// DriveClient is the remote drive capability the importer consumes.
// *gdrive.Client satisfies it.
type DriveClient interface {
	Metadata(ctx context.Context, fileID string) (gdrive.FileMeta, error)
	Download(ctx context.Context, fileID string) (io.ReadCloser, error)
	Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error)
	List(ctx context.Context, folderID, pageToken string) (gdrive.ListPage, error)
}

// DriveOpener builds a DriveClient for a given token.  The indirection
// exists so tests can substitute a fake drive without an HTTP server.
type DriveOpener interface {
	Open(ctx context.Context, tok *oauth2.Token) (DriveClient, error)
}

// ClientOpener is the production DriveOpener backed by the drive/v3 API.
type ClientOpener struct{}

func (ClientOpener) Open(ctx context.Context, tok *oauth2.Token) (DriveClient, error) {
	return gdrive.NewClient(ctx, oauth2.StaticTokenSource(tok))
}

// Importer copies one Drive object into local storage and records it.
// Concurrent imports of the same (user, drive object) are serialized on a
// per-key mutex so overwrite imports cannot double-delete a blob or leave
// an orphan.
type Importer struct {
	Creds      CredentialSource
	Files      FileStore
	Drive      DriveOpener
	StorageDir string
	// Publish, when set, emits a FileImportedEvent after a successful
	// import.  Best effort: a publish failure never fails the import.
	Publish func(ctx context.Context, ev queue.FileImportedEvent) error

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewImporter(creds CredentialSource, files FileStore, opener DriveOpener, storageDir string) *Importer {
	return &Importer{Creds: creds, Files: files, Drive: opener, StorageDir: storageDir}
}

// Import runs the full pipeline for one Drive object: credential, remote
// metadata, dedup/overwrite decision, content transfer (raw download or
// format-converted export), deterministic local placement, and the
// metadata record.  The on-disk write goes to a temporary path and is
// renamed only after the stream completed, so a failed transfer leaves
// neither a stale record nor a partial blob.
func (imp *Importer) Import(ctx context.Context, userID uint64, driveID string, overwrite bool) (repository.File, error) {
	unlock := imp.lock(fmt.Sprintf("%d:%s", userID, driveID))
	defer unlock()

	tok, err := imp.Creds.Valid(ctx, userID)
	if err != nil {
		return repository.File{}, err
	}
	client, err := imp.Drive.Open(ctx, tok)
	if err != nil {
		return repository.File{}, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}

	meta, err := client.Metadata(ctx, driveID)
	if err != nil {
		return repository.File{}, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}

	var oldID uint64
	existing, err := imp.Files.GetByDriveID(ctx, userID, driveID)
	switch {
	case err == nil && !overwrite:
		return repository.File{}, &AlreadyImportedError{Existing: existing}
	case err == nil:
		oldID = existing.ID
	case err != sql.ErrNoRows:
		return repository.File{}, err
	}

	name := meta.Name
	mimeType := meta.MimeType
	var open func() (io.ReadCloser, error)
	if gdrive.IsWorkspaceDoc(meta.MimeType) {
		rule, ok := gdrive.ExportRuleFor(meta.MimeType)
		if !ok {
			return repository.File{}, ErrUnsupportedFormat
		}
		mimeType = rule.MimeType
		if !strings.HasSuffix(name, rule.Suffix) {
			name += rule.Suffix
		}
		open = func() (io.ReadCloser, error) { return client.Export(ctx, driveID, rule.MimeType) }
	} else {
		open = func() (io.ReadCloser, error) { return client.Download(ctx, driveID) }
	}

	// Overwrite path: the stale blob goes first so the deterministic path
	// is free; the stale record is removed in the same transaction as the
	// new insert, never independently.
	if oldID != 0 {
		if rmErr := os.Remove(existing.LocalPath); rmErr != nil && !os.IsNotExist(rmErr) {
			return repository.File{}, rmErr
		}
	}

	src, err := open()
	if err != nil {
		return repository.File{}, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}
	defer src.Close()

	localPath := filepath.Join(imp.StorageDir, fmt.Sprintf("%d_%s_%s", userID, driveID, SanitizeName(name)))
	size, err := writeAtomically(localPath, src)
	if err != nil {
		return repository.File{}, fmt.Errorf("%w: %v", ErrRemoteFetch, err)
	}

	f := repository.File{
		UserID:    userID,
		Name:      name,
		MimeType:  mimeType,
		Size:      size,
		DriveID:   &driveID,
		LocalPath: localPath,
	}
	if err := imp.Files.Replace(ctx, oldID, &f); err != nil {
		// Compensating delete keeps disk and metadata in lock-step.
		_ = os.Remove(localPath)
		return repository.File{}, err
	}

	if imp.Publish != nil {
		ev := queue.FileImportedEvent{
			FileID:     f.ID,
			UserID:     userID,
			Name:       f.Name,
			MimeType:   f.MimeType,
			Size:       f.Size,
			DriveID:    driveID,
			Overwrite:  oldID != 0,
			ImportedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if pubErr := imp.Publish(ctx, ev); pubErr != nil {
			log.Printf("importer: publish file.imported failed: %v", pubErr)
		}
	}
	return f, nil
}

// writeAtomically streams src to path via a temporary sibling file and a
// rename, returning the number of bytes written.  The temporary file is
// removed on any failure.
func writeAtomically(path string, src io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part*")
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, err
	}
	// Stat the final blob: the measured size is authoritative over the
	// remote-reported one, which export conversion invalidates.
	info, err := os.Stat(path)
	if err != nil {
		return size, nil
	}
	return info.Size(), nil
}

// SanitizeName reduces a display name to characters that are safe in a
// filename: letters, digits, '.', '_', '-' and space.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lock acquires the per-key mutex for one (user, drive object) pair and
// returns its release function.
func (imp *Importer) lock(key string) func() {
	imp.mu.Lock()
	if imp.locks == nil {
		imp.locks = make(map[string]*sync.Mutex)
	}
	l, ok := imp.locks[key]
	if !ok {
		l = &sync.Mutex{}
		imp.locks[key] = l
	}
	imp.mu.Unlock()
	l.Lock()
	return l.Unlock
}
