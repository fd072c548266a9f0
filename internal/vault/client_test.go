package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeStorageCredentials(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		want    StorageCredentials
		wantErr bool
	}{
		{
			name: "kv v1",
			data: map[string]any{"access_key": "ak", "secret_key": "sk"},
			want: StorageCredentials{AccessKey: "ak", SecretKey: "sk"},
		},
		{
			name: "kv v2",
			data: map[string]any{
				"data":     map[string]any{"access_key": "ak2", "secret_key": "sk2"},
				"metadata": map[string]any{"version": 3},
			},
			want: StorageCredentials{AccessKey: "ak2", SecretKey: "sk2"},
		},
		{
			name:    "missing secret",
			data:    map[string]any{"access_key": "ak"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeStorageCredentials(tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
