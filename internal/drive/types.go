package drive

import (
	"io"
	"time"
)

// FileRecord is one row of the recent-files listing.
type FileRecord struct {
	// ID is the Drive file ID, unique within a listing
	ID string `json:"id"`

	// Name is the file's display name
	Name string `json:"name"`

	// MimeType is the content type Drive reports
	MimeType string `json:"mimeType"`

	// ModifiedTime is the last modification time
	ModifiedTime time.Time `json:"modifiedTime"`

	// Size is the decimal byte count, or "" when Drive reports none
	// (folders and Google-native documents)
	Size string `json:"size,omitempty"`
}

// UploadOptions describes the metadata sent with a new file.
type UploadOptions struct {
	// MimeType of the content. Defaults to DefaultMimeType.
	MimeType string

	// Description stored on the Drive file
	Description string
}

// Download is an open file body. The caller closes Content.
type Download struct {
	MimeType      string
	ContentLength int64
	Content       io.ReadCloser
}
