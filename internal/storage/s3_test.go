package storage

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "empty endpoint",
			config:  Config{Endpoint: "", Bucket: "test"},
			wantErr: true,
		},
		{
			name:    "empty bucket",
			config:  Config{Endpoint: "localhost:9000", Bucket: ""},
			wantErr: true,
		},
		{
			name: "valid config",
			config: Config{
				Endpoint:        "localhost:9000",
				Bucket:          "test",
				AccessKeyID:     "minioadmin",
				SecretAccessKey: "minioadmin",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestIntegration_S3Operations tests actual S3 operations against MinIO.
// Skip if MinIO is not running.
func TestIntegration_S3Operations(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	client, err := New(Config{
		Endpoint:        endpoint,
		Bucket:          "blog-harvester-test",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		UseSSL:          false,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()

	// Try to ensure bucket - skip if MinIO is not available
	if err := client.EnsureBucket(ctx); err != nil {
		t.Skipf("MinIO not available, skipping integration test: %v", err)
	}

	key := "test/links.json"

	t.Run("PutJSON", func(t *testing.T) {
		links := []map[string]string{{"url": "https://example.com/blog/a"}}
		if err := client.PutJSON(ctx, key, links); err != nil {
			t.Fatalf("PutJSON() error = %v", err)
		}
	})

	t.Run("GetJSON", func(t *testing.T) {
		var links []map[string]string
		if err := client.GetJSON(ctx, key, &links); err != nil {
			t.Fatalf("GetJSON() error = %v", err)
		}
		if len(links) != 1 || links[0]["url"] != "https://example.com/blog/a" {
			t.Errorf("GetJSON() = %v", links)
		}
	})

	t.Run("GetJSON missing", func(t *testing.T) {
		var links []map[string]string
		err := client.GetJSON(ctx, "test/does-not-exist.json", &links)
		if !errors.Is(err, ErrObjectNotFound) {
			t.Errorf("GetJSON() error = %v, want ErrObjectNotFound", err)
		}
	})
}
