package vault

import (
	"context"
	"testing"

	"fieldsync/internal/config"
)

func TestNewVaultFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StorageConfig
		wantErr bool
		wantNil bool
	}{
		{
			name:    "memory vault",
			cfg:     config.StorageConfig{Type: "memory", Bucket: "test-memory"},
			wantErr: false,
			wantNil: false,
		},
		{
			name:    "filesystem vault",
			cfg:     config.StorageConfig{Type: "filesystem", Root: t.TempDir()},
			wantErr: false,
			wantNil: false,
		},
		{
			name:    "filesystem vault without root",
			cfg:     config.StorageConfig{Type: "filesystem"},
			wantErr: true,
			wantNil: true,
		},
		{
			name:    "s3 vault without bucket",
			cfg:     config.StorageConfig{Type: "s3", Region: "us-east-1"},
			wantErr: true,
			wantNil: true,
		},
		{
			name:    "minio vault without endpoint",
			cfg:     config.StorageConfig{Type: "minio", Bucket: "fotos"},
			wantErr: true,
			wantNil: true,
		},
		{
			name:    "minio vault",
			cfg:     config.StorageConfig{Type: "minio", Bucket: "fotos", Endpoint: "localhost:9000"},
			wantErr: false,
			wantNil: false,
		},
		{
			name:    "unknown storage type",
			cfg:     config.StorageConfig{Type: "unknown"},
			wantErr: true,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewVaultFromConfig(context.Background(), tt.cfg)

			if (err != nil) != tt.wantErr {
				t.Errorf("NewVaultFromConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if (got == nil) != tt.wantNil {
				t.Errorf("NewVaultFromConfig() returned nil = %v, wantNil %v", got == nil, tt.wantNil)
			}
		})
	}
}
