package gdrive

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// FileMeta is the Drive metadata the import pipeline needs.  Size is the
// size Drive reports and is advisory only: exported documents change size,
// so the on-disk byte count after import is authoritative.
type FileMeta struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// ListEntry is one row of a Drive folder listing as shown to the client.
type ListEntry struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	Size          int64  `json:"size,omitempty"`
	ModifiedTime  string `json:"modifiedTime,omitempty"`
	IconLink      string `json:"iconLink,omitempty"`
	ThumbnailLink string `json:"thumbnailLink,omitempty"`
}

// ListPage is one page of a Drive folder listing.
type ListPage struct {
	Files         []ListEntry `json:"files"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// Client wraps a drive/v3 service authenticated as one user.
type Client struct {
	svc *drive.Service
}

// NewClient builds a Drive client from a token source.  Extra options are
// used by tests to point the client at a local server.
func NewClient(ctx context.Context, ts oauth2.TokenSource, extra ...option.ClientOption) (*Client, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, extra...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Metadata fetches name, content type and reported size for one object.
func (c *Client) Metadata(ctx context.Context, fileID string) (FileMeta, error) {
	f, err := c.svc.Files.Get(fileID).
		Fields("id, name, mimeType, size").
		Context(ctx).Do()
	if err != nil {
		return FileMeta{}, fmt.Errorf("drive metadata %s: %w", fileID, err)
	}
	return FileMeta{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size}, nil
}

// Download streams the raw bytes of a native binary object.  The caller
// must close the returned reader.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive download %s: %w", fileID, err)
	}
	return resp.Body, nil
}

// Export streams a Workspace document converted to the given content type.
// The caller must close the returned reader.
func (c *Client) Export(ctx context.Context, fileID, mimeType string) (io.ReadCloser, error) {
	resp, err := c.svc.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive export %s as %s: %w", fileID, mimeType, err)
	}
	return resp.Body, nil
}

// List returns one page of the given folder's contents, folders first.
// Trashed objects are excluded.
func (c *Client) List(ctx context.Context, folderID, pageToken string) (ListPage, error) {
	if folderID == "" {
		folderID = "root"
	}
	call := c.svc.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed = false", folderID)).
		PageSize(50).
		Fields("nextPageToken, files(id, name, mimeType, size, modifiedTime, iconLink, thumbnailLink)").
		OrderBy("folder,name").
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	list, err := call.Do()
	if err != nil {
		return ListPage{}, fmt.Errorf("drive list %s: %w", folderID, err)
	}

	page := ListPage{Files: make([]ListEntry, 0, len(list.Files)), NextPageToken: list.NextPageToken}
	for _, f := range list.Files {
		page.Files = append(page.Files, ListEntry{
			ID:            f.Id,
			Name:          f.Name,
			MimeType:      f.MimeType,
			Size:          f.Size,
			ModifiedTime:  f.ModifiedTime,
			IconLink:      f.IconLink,
			ThumbnailLink: f.ThumbnailLink,
		})
	}
	return page, nil
}
