package storage

import (
	"context"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sua-org/cam-recorder/internal/config"
)

func TestMinioStore_ObjectURL(t *testing.T) {
	cli, err := minio.New("minio.local:9000", &minio.Options{Creds: credentials.NewStaticV4("ak", "sk", "")})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		cfg  config.ArchiveConfig
		want string
	}{
		{
			name: "endpoint",
			cfg:  config.ArchiveConfig{Bucket: "cam-recordings"},
			want: "http://minio.local:9000/cam-recordings/host-1/Front_Door/a.mp4",
		},
		{
			name: "public base url",
			cfg:  config.ArchiveConfig{Bucket: "cam-recordings", PublicBaseURL: "https://cdn.example.com/rec/"},
			want: "https://cdn.example.com/rec/host-1/Front_Door/a.mp4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := publicURL(cli, tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			s := &MinioStore{client: cli, bucket: tt.cfg.Bucket, public: u}
			if got := s.objectURL("host-1/Front_Door/a.mp4"); got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewMinioStore_RequiresCredentials(t *testing.T) {
	for _, cfg := range []config.ArchiveConfig{
		{},
		{Endpoint: "minio.local:9000", Bucket: "b"},
		{Endpoint: "minio.local:9000", Bucket: "b", AccessKey: "ak"},
	} {
		if _, err := NewMinioStore(context.Background(), cfg); err == nil {
			t.Errorf("cfg %+v: expected error", cfg)
		}
	}
}
