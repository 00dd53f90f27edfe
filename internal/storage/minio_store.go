// internal/storage/minio_store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sua-org/cam-recorder/internal/config"
)

// Uploader envia um arquivo local para o object store e devolve a URL do objeto.
type Uploader interface {
	UploadFile(ctx context.Context, key, filePath, contentType string) (string, error)
}

// MinioStore guarda as gravações concluídas num bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	// prefixo das URLs devolvidas; sem MINIO_PUBLIC_BASE_URL, o próprio endpoint
	public *url.URL
}

// NewMinioStore conecta e garante que o bucket existe.
func NewMinioStore(ctx context.Context, cfg config.ArchiveConfig) (*MinioStore, error) {
	if !cfg.Enabled() {
		return nil, errors.New("minio: endpoint vazio")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("minio: MINIO_ACCESS_KEY / MINIO_SECRET_KEY não configurados")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: cliente: %w", err)
	}

	public, err := publicURL(cli, cfg)
	if err != nil {
		return nil, err
	}
	s := &MinioStore{client: cli, bucket: cfg.Bucket, public: public}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Printf("[minio] endpoint %s, bucket=%s", cfg.Endpoint, cfg.Bucket)
	return s, nil
}

func publicURL(cli *minio.Client, cfg config.ArchiveConfig) (*url.URL, error) {
	if cfg.PublicBaseURL == "" {
		u := *cli.EndpointURL()
		u.Path = "/" + cfg.Bucket
		return &u, nil
	}
	u, err := url.Parse(cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("minio: MINIO_PUBLIC_BASE_URL inválida: %w", err)
	}
	return u, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio: bucket %s: %w", s.bucket, err)
	}
	if ok {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("minio: criar bucket %s: %w", s.bucket, err)
	}
	log.Printf("[minio] bucket %s criado", s.bucket)
	return nil
}

// UploadFile envia filePath como key (video/mp4 se contentType vazio).
func (s *MinioStore) UploadFile(ctx context.Context, key, filePath, contentType string) (string, error) {
	if contentType == "" {
		contentType = "video/mp4"
	}
	info, err := s.client.FPutObject(ctx, s.bucket, key, filePath, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("minio: enviar %s: %w", filePath, err)
	}
	log.Printf("[minio] %s -> %s/%s (%d bytes)", filePath, s.bucket, key, info.Size)
	return s.objectURL(key), nil
}

func (s *MinioStore) objectURL(key string) string {
	u := *s.public
	u.Path = path.Join("/", strings.TrimSuffix(u.Path, "/"), key)
	return u.String()
}
