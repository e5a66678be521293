package distribution

import "testing"

func TestStorageInfo_HasSpaceFor(t *testing.T) {
	tests := []struct {
		name  string
		info  StorageInfo
		bytes int64
		want  bool
	}{
		{"enough space", StorageInfo{TotalBytes: 100, UsedBytes: 40, AvailableBytes: 60}, 50, true},
		{"exactly enough", StorageInfo{TotalBytes: 100, UsedBytes: 40, AvailableBytes: 60}, 60, true},
		{"not enough", StorageInfo{TotalBytes: 100, UsedBytes: 90, AvailableBytes: 10}, 50, false},
		{"unlimited account", StorageInfo{UsedBytes: 1 << 40}, 1 << 30, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.HasSpaceFor(tt.bytes); got != tt.want {
				t.Errorf("HasSpaceFor(%d) = %v, want %v", tt.bytes, got, tt.want)
			}
		})
	}
}
