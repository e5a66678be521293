package publish

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"mp4-mp3/domain/conversion"
	"mp4-mp3/domain/distribution"

	"github.com/dustin/go-humanize"
)

// UploadService publishes conversion results to a Google Drive folder
type UploadService struct {
	driveClient distribution.DriveClient
	folderID    string
	output      io.Writer
}

// NewUploadService creates a new upload service
func NewUploadService(client distribution.DriveClient, folderID string, output io.Writer) *UploadService {
	if output == nil {
		output = io.Discard
	}
	return &UploadService{
		driveClient: client,
		folderID:    folderID,
		output:      output,
	}
}

// Publish uploads the MP3, replacing a file of the same name, and shares it with anyone holding the link
func (s *UploadService) Publish(ctx context.Context, result *conversion.Result) (*distribution.UploadResult, error) {
	if result == nil || len(result.Data) == 0 {
		return nil, fmt.Errorf("nothing to upload")
	}

	quota, err := s.driveClient.GetStorageQuota(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check storage: %w", err)
	}

	existing, err := s.driveClient.FindFileByName(ctx, s.folderID, result.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing file: %w", err)
	}

	needed := result.Size()
	if existing != nil {
		needed -= existing.Size
	}
	if !quota.HasSpaceFor(needed) {
		return nil, fmt.Errorf("%w: need %s, %s available", distribution.ErrInsufficientStorage,
			humanize.Bytes(uint64(result.Size())), humanize.Bytes(uint64(quota.AvailableBytes)))
	}

	if existing != nil {
		fmt.Fprintf(s.output, "      Replacing existing %s (%s)\n", existing.Name, humanize.Bytes(uint64(existing.Size)))
		if err := s.driveClient.DeletePermanently(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("failed to delete existing file %s: %w", existing.Name, err)
		}
	}

	req := distribution.UploadRequest{
		FileName: result.FileName,
		FolderID: s.folderID,
		MimeType: result.MimeType,
		Content:  bytes.NewReader(result.Data),
		Size:     result.Size(),
	}

	uploaded, err := s.driveClient.UploadAndShare(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload and share %s: %w", result.FileName, err)
	}

	return uploaded, nil
}
