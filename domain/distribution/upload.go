package distribution

import (
	"errors"
	"io"
)

// ErrInsufficientStorage is returned when the Drive account cannot hold the upload
var ErrInsufficientStorage = errors.New("insufficient Google Drive storage")

// UploadRequest contains the parameters needed to upload a file to Google Drive
type UploadRequest struct {
	FileName string    // Target filename in Google Drive
	FolderID string    // Target folder ID in Google Drive
	MimeType string    // MIME type of the file
	Content  io.Reader // File bytes
	Size     int64
}

// UploadResult contains the result of a successful upload
type UploadResult struct {
	FileID       string // Google Drive file ID
	FileName     string // Name of the uploaded file
	ShareableURL string // URL for sharing the file
	Size         int64  // Size of the uploaded file in bytes
}
