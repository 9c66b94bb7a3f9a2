// Package queue defines message payloads exchanged over the message broker.
package queue

// FileImportedEvent is published after a Drive object has been fully
// imported into local storage.  It carries enough information for
// downstream consumers to log, notify, or trigger analytics without
// querying the primary database.
type FileImportedEvent struct {
    FileID     uint64 `json:"file_id"`
    UserID     uint64 `json:"user_id"`
    Name       string `json:"name"`
    MimeType   string `json:"mime_type"`
    Size       int64  `json:"size"`
    DriveID    string `json:"drive_id"`
    Overwrite  bool   `json:"overwrite"`
    ImportedAt string `json:"imported_at"`
}
