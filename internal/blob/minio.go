// Package blob stores editor image uploads in S3-compatible object
// storage and hands back a retrievable URL.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"banter/api/internal/util"
)

type Store struct {
	client    *minio.Client
	bucket    string
	publicURL string
	useSSL    bool
	endpoint  string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL overrides the endpoint in returned URLs when the
	// bucket is served through a CDN or reverse proxy.
	PublicURL string
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect blob store: %w", err)
	}

	ensureCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ensureCtx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ensureCtx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Store{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		useSSL:    opts.UseSSL,
		endpoint:  opts.Endpoint,
	}, nil
}

// Upload writes the object and returns its retrievable URL. Object
// names are prefixed with a fresh id so equal file names never collide.
func (s *Store) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	objectName := path.Join("images", util.NewID("img")+"-"+sanitizeName(name))
	_, err := s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload blob: %w", err)
	}
	return s.objectURL(objectName), nil
}

func (s *Store) objectURL(objectName string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + s.bucket + "/" + objectName
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return scheme + "://" + s.endpoint + "/" + s.bucket + "/" + objectName
}

func sanitizeName(name string) string {
	base := path.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		return "upload"
	}
	return url.PathEscape(base)
}
