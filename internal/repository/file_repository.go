package repository

import (
	"context"
	"database/sql"
	"time"
)

// File mirrors the 'files' table: one locally mirrored Drive object.  Size
// is the actual on-disk byte count measured after any export conversion,
// not the size Drive reported.  DriveID is nil for files that did not
// originate from Drive.
type File struct {
	ID        uint64
	UserID    uint64
	Name      string
	MimeType  string
	Size      int64
	DriveID   *string
	LocalPath string
	CreatedAt time.Time
}

type FileRepo struct{ DB *sql.DB }

func NewFileRepo(db *sql.DB) *FileRepo { return &FileRepo{DB: db} }

const fileColumns = "id,user_id,name,mime_type,size,drive_id,local_path,created_at"

func scanFile(row *sql.Row) (File, error) {
	var (
		f       File
		driveID sql.NullString
	)
	err := row.Scan(&f.ID, &f.UserID, &f.Name, &f.MimeType, &f.Size, &driveID, &f.LocalPath, &f.CreatedAt)
	if err != nil {
		return File{}, err
	}
	if driveID.Valid {
		s := driveID.String
		f.DriveID = &s
	}
	return f, nil
}

// GetByIDForUser fetches a file owned by the given user.  Files belonging
// to other users are indistinguishable from absent ones (sql.ErrNoRows).
func (r *FileRepo) GetByIDForUser(ctx context.Context, id, userID uint64) (File, error) {
	return scanFile(r.DB.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE id=? AND user_id=? LIMIT 1", id, userID))
}

// GetByDriveID fetches the user's mirror of a specific Drive object.
func (r *FileRepo) GetByDriveID(ctx context.Context, userID uint64, driveID string) (File, error) {
	return scanFile(r.DB.QueryRowContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE user_id=? AND drive_id=? LIMIT 1", userID, driveID))
}

// ListByUser returns the user's files, newest first.
func (r *FileRepo) ListByUser(ctx context.Context, userID uint64) ([]File, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files WHERE user_id=? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []File{}
	for rows.Next() {
		var (
			f       File
			driveID sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.MimeType, &f.Size, &driveID, &f.LocalPath, &f.CreatedAt); err != nil {
			return nil, err
		}
		if driveID.Valid {
			s := driveID.String
			f.DriveID = &s
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Replace inserts a new file record, deleting a prior record in the same
// transaction when oldID is non-zero.  The overwrite path of the import
// pipeline uses this so a crash can never leave two records pointing at
// the same Drive object.  The inserted row is read back to populate the
// generated id and creation timestamp.
func (r *FileRepo) Replace(ctx context.Context, oldID uint64, f *File) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if oldID != 0 {
		if _, err = tx.ExecContext(ctx, "DELETE FROM files WHERE id=?", oldID); err != nil {
			return err
		}
	}

	var driveID interface{}
	if f.DriveID != nil {
		driveID = *f.DriveID
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO files (user_id, name, mime_type, size, drive_id, local_path) VALUES (?,?,?,?,?,?)",
		f.UserID, f.Name, f.MimeType, f.Size, driveID, f.LocalPath)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = uint64(id)

	if err = tx.QueryRowContext(ctx,
		"SELECT created_at FROM files WHERE id=?", f.ID).Scan(&f.CreatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a single file record.
func (r *FileRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM files WHERE id=?", id)
	return err
}
