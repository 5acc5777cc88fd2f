// Package storage mirrors run artifacts (checkpoints, density history,
// metrics) to S3-compatible object storage. Optional: runs work entirely
// from the local run directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Credentials configures access to an S3-compatible endpoint.
type Credentials struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// NewMinioClient creates a minio client from the credentials.
func (c *Credentials) NewMinioClient() (*minio.Client, error) {
	if c.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if c.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if c.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}

	client, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		Secure: c.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating S3 client for endpoint %s: %w", c.Endpoint, err)
	}
	return client, nil
}

// UploadRunDir uploads every regular file under dir to
// bucket/prefix/<relative path>. Individual file failures abort the
// upload; the local run directory remains the source of truth.
func UploadRunDir(ctx context.Context, creds *Credentials, bucket, prefix, dir string, logger *zap.Logger) error {
	client, err := creds.NewMinioClient()
	if err != nil {
		return err
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		info, err := os.Stat(p)
		if err != nil {
			return err
		}

		if _, err := client.FPutObject(ctx, bucket, key, p, minio.PutObjectOptions{}); err != nil {
			return fmt.Errorf("uploading %s to %s/%s: %w", p, bucket, key, err)
		}
		logger.Debug("uploaded run artifact",
			zap.String("key", key),
			zap.Int64("bytes", info.Size()),
		)
		return nil
	})
}
