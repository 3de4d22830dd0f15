package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLocalFilesystem(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "state.db")

	tests := []struct {
		name    string
		fsType  string
		detErr  error
		wantErr bool
	}{
		{name: "local", fsType: "apfs"},
		{name: "linux magic", fsType: "0xef53"},
		{name: "network", fsType: "NFS", wantErr: true},
		{name: "smb", fsType: "smbfs", wantErr: true},
		{name: "undetectable", detErr: errors.New("unsupported")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var inspected string
			err := checkLocalFilesystem(dbPath, func(p string) (string, error) {
				inspected = p
				return tt.fsType, tt.detErr
			})
			assert.Equal(t, root, inspected, "detector sees the nearest existing ancestor")
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNetworkFilesystem)
				assert.Contains(t, err.Error(), "state.path")
				return
			}
			assert.NoError(t, err)
		})
	}
}
