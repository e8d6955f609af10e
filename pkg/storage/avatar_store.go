package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// AvatarStore persists user avatar images and hands back URLs the
// frontend can render directly.
type AvatarStore interface {
	Upload(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, userID string) error
}

// MinioAvatarStore implements AvatarStore on MinIO/S3 compatible
// storage. When publicURL is set the returned URL is a stable
// publicURL/bucket/key path; otherwise a presigned GET URL is issued.
type MinioAvatarStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewMinioAvatarStore connects to MinIO and ensures the bucket exists.
func NewMinioAvatarStore(endpoint, accessKey, secretKey, bucket, publicURL string, useSSL bool) (*MinioAvatarStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioAvatarStore{
		client:    client,
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
	}, nil
}

// Upload stores the avatar under a per-user key, replacing any previous
// one, and returns the URL to store on the profile.
func (m *MinioAvatarStore) Upload(ctx context.Context, userID string, r io.Reader, size int64, contentType string) (string, error) {
	key := avatarKey(userID, contentType)
	_, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put avatar: %w", err)
	}
	if m.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", m.publicURL, m.bucket, key), nil
	}
	url, err := m.client.PresignedGetObject(ctx, m.bucket, key, 7*24*time.Hour, nil)
	if err != nil {
		return "", fmt.Errorf("presign avatar: %w", err)
	}
	return url.String(), nil
}

// Delete removes the user's avatar objects for all known extensions.
func (m *MinioAvatarStore) Delete(ctx context.Context, userID string) error {
	for _, ext := range []string{".png", ".jpg", ".webp"} {
		key := path.Join("avatars", userID+ext)
		if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("delete avatar: %w", err)
		}
	}
	return nil
}

func avatarKey(userID, contentType string) string {
	ext := ".png"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return path.Join("avatars", userID+ext)
}
