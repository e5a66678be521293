package drive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"mp4-mp3/domain/distribution"

	"google.golang.org/api/drive/v3"
)

// mockDriveService is a mock implementation for testing
type mockDriveService struct {
	files          []*drive.File
	shouldFail     bool
	failError      error
	permissionErr  error
	storageLimit   int64
	storageUsage   int64
	deletedFileIDs []string
	lastQuery      string
	uploaded       *drive.File
	uploadedBody   string
	permissions    []*drive.Permission
	uploadLink     string
}

func (m *mockDriveService) ListFiles(ctx context.Context, query string, fields string, orderBy string) ([]*drive.File, error) {
	m.lastQuery = query
	if m.shouldFail {
		return nil, m.failError
	}
	return m.files, nil
}

func (m *mockDriveService) GetAbout(ctx context.Context, fields string) (*drive.About, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	return &drive.About{
		StorageQuota: &drive.AboutStorageQuota{
			Limit: m.storageLimit,
			Usage: m.storageUsage,
		},
	}, nil
}

func (m *mockDriveService) UploadFile(ctx context.Context, file *drive.File, content io.Reader) (*drive.File, error) {
	if m.shouldFail {
		return nil, m.failError
	}
	body, _ := io.ReadAll(content)
	m.uploaded = file
	m.uploadedBody = string(body)
	return &drive.File{
		Id:          "uploaded-file-id",
		Name:        file.Name,
		MimeType:    file.MimeType,
		Size:        int64(len(body)),
		WebViewLink: m.uploadLink,
	}, nil
}

func (m *mockDriveService) CreatePermission(ctx context.Context, fileID string, permission *drive.Permission) error {
	if m.permissionErr != nil {
		return m.permissionErr
	}
	m.permissions = append(m.permissions, permission)
	return nil
}

func (m *mockDriveService) DeleteFile(ctx context.Context, fileID string) error {
	if m.shouldFail {
		return m.failError
	}
	m.deletedFileIDs = append(m.deletedFileIDs, fileID)
	return nil
}

func TestClient_FindFileByName(t *testing.T) {
	testTime := time.Date(2025, 12, 28, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		mock     *mockDriveService
		fileName string
		wantID   string
		wantNil  bool
		wantErr  bool
	}{
		{
			name: "finds existing file",
			mock: &mockDriveService{
				files: []*drive.File{
					{Id: "file-1", Name: "clip.mp3", MimeType: "audio/mpeg", Size: 4000, CreatedTime: testTime.Format(time.RFC3339)},
				},
			},
			fileName: "clip.mp3",
			wantID:   "file-1",
		},
		{
			name:     "no match",
			mock:     &mockDriveService{},
			fileName: "clip.mp3",
			wantNil:  true,
		},
		{
			name:     "api error",
			mock:     &mockDriveService{shouldFail: true, failError: errors.New("quota exceeded")},
			fileName: "clip.mp3",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(context.Background(), "", WithDriveService(tt.mock))
			if err != nil {
				t.Fatalf("NewClient() error: %v", err)
			}

			got, err := client.FindFileByName(context.Background(), "folder-1", tt.fileName)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("got %+v, want nil", got)
				}
				return
			}
			if got.ID != tt.wantID || !got.CreatedTime.Equal(testTime) {
				t.Errorf("got %+v", got)
			}
			if !strings.Contains(tt.mock.lastQuery, "'folder-1' in parents") || !strings.Contains(tt.mock.lastQuery, "name = 'clip.mp3'") {
				t.Errorf("query = %q", tt.mock.lastQuery)
			}
		})
	}
}

func TestClient_FindFileByName_EscapesQuotes(t *testing.T) {
	mock := &mockDriveService{}
	client, _ := NewClient(context.Background(), "", WithDriveService(mock))

	client.FindFileByName(context.Background(), "folder-1", "it's.mp3")

	if !strings.Contains(mock.lastQuery, `name = 'it\'s.mp3'`) {
		t.Errorf("query = %q, want escaped quote", mock.lastQuery)
	}
}

func TestClient_UploadAndShare(t *testing.T) {
	tests := []struct {
		name        string
		mock        *mockDriveService
		wantURL     string
		wantErr     bool
		errContains string
	}{
		{
			name:    "uses web view link",
			mock:    &mockDriveService{uploadLink: "https://drive.google.com/file/d/uploaded-file-id/view"},
			wantURL: "https://drive.google.com/file/d/uploaded-file-id/view",
		},
		{
			name:    "builds link when missing",
			mock:    &mockDriveService{},
			wantURL: "https://drive.google.com/file/d/uploaded-file-id/view?usp=sharing",
		},
		{
			name:        "upload fails",
			mock:        &mockDriveService{shouldFail: true, failError: errors.New("network down")},
			wantErr:     true,
			errContains: "failed to upload",
		},
		{
			name:        "sharing fails",
			mock:        &mockDriveService{permissionErr: errors.New("forbidden")},
			wantErr:     true,
			errContains: "sharing permissions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := NewClient(context.Background(), "", WithDriveService(tt.mock))

			result, err := client.UploadAndShare(context.Background(), distribution.UploadRequest{
				FileName: "clip.mp3",
				FolderID: "folder-1",
				MimeType: "audio/mpeg",
				Content:  strings.NewReader("mp3data"),
				Size:     7,
			})
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if result.ShareableURL != tt.wantURL {
				t.Errorf("ShareableURL = %q, want %q", result.ShareableURL, tt.wantURL)
			}
			if result.Size != 7 || result.FileName != "clip.mp3" {
				t.Errorf("result = %+v", result)
			}
			if tt.mock.uploadedBody != "mp3data" {
				t.Errorf("uploaded body = %q", tt.mock.uploadedBody)
			}
			if len(tt.mock.uploaded.Parents) != 1 || tt.mock.uploaded.Parents[0] != "folder-1" {
				t.Errorf("parents = %v", tt.mock.uploaded.Parents)
			}
			if len(tt.mock.permissions) != 1 || tt.mock.permissions[0].Type != "anyone" || tt.mock.permissions[0].Role != "reader" {
				t.Errorf("permissions = %+v", tt.mock.permissions)
			}
		})
	}
}

func TestClient_GetStorageQuota(t *testing.T) {
	tests := []struct {
		name          string
		mock          *mockDriveService
		wantAvailable int64
		wantErr       bool
	}{
		{
			name:          "limited account",
			mock:          &mockDriveService{storageLimit: 15_000, storageUsage: 5_000},
			wantAvailable: 10_000,
		},
		{
			name:          "unlimited account",
			mock:          &mockDriveService{storageUsage: 5_000},
			wantAvailable: 0,
		},
		{
			name:    "api error",
			mock:    &mockDriveService{shouldFail: true, failError: errors.New("unauthorized")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := NewClient(context.Background(), "", WithDriveService(tt.mock))

			info, err := client.GetStorageQuota(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.AvailableBytes != tt.wantAvailable {
				t.Errorf("AvailableBytes = %d, want %d", info.AvailableBytes, tt.wantAvailable)
			}
		})
	}
}

func TestClient_DeletePermanently(t *testing.T) {
	mock := &mockDriveService{}
	client, _ := NewClient(context.Background(), "", WithDriveService(mock))

	if err := client.DeletePermanently(context.Background(), "file-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.deletedFileIDs) != 1 || mock.deletedFileIDs[0] != "file-1" {
		t.Errorf("deleted = %v", mock.deletedFileIDs)
	}

	mock.shouldFail = true
	mock.failError = errors.New("not found")
	if err := client.DeletePermanently(context.Background(), "file-2"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"valid RFC3339", "2025-12-28T10:00:00Z", time.Date(2025, 12, 28, 10, 0, 0, 0, time.UTC)},
		{"empty string", "", time.Time{}},
		{"invalid format", "not-a-time", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseTime(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTime(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), "/nonexistent/credentials.json")
	if err == nil || !strings.Contains(err.Error(), "unable to read credentials file") {
		t.Errorf("error = %v, want credentials read failure", err)
	}
}
