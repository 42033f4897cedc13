// Package minio provides a cache.Backend on an S3-compatible object store.
//
// Every entry is one object; its expiry travels in user metadata and is
// checked on read. Object stores have neither tag deletion nor locks, so
// the Gateway falls back to key-list invalidation through the backend and
// to in-process single-flight only.
//
// Usage:
//
//	backend, err := minio.New(ctx, &minio.Config{
//	    Endpoint: "localhost:9000", AccessKey: "minioadmin", SecretKey: "minioadmin",
//	    Bucket: "dbparser-cache",
//	})
//	gw := cache.New(backend, nil)
package minio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/koustreak/dbparser/internal/cache"
	"github.com/koustreak/dbparser/internal/errs"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const expiresMeta = "Expires-At"

// Config holds the settings needed to reach the object store.
type Config struct {
	// Endpoint is the host:port of the storage server.
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	// Bucket holds the cache objects. It is created if missing.
	Bucket string

	// Prefix is prepended to every object name.
	Prefix string
}

// Backend is safe for concurrent use.
type Backend struct {
	client *miniogo.Client
	bucket string
	prefix string
	now    func() time.Time
}

var (
	_ cache.Backend = (*Backend)(nil)
	_ cache.Purger  = (*Backend)(nil)
)

// New connects to the object store and makes sure the bucket exists.
func New(ctx context.Context, cfg *Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "minio cache bucket is empty")
	}

	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, mapError(err, "check bucket "+cfg.Bucket)
	}
	if !exists {
		err := client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, mapError(err, "create bucket "+cfg.Bucket)
		}
	}

	return &Backend{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, now: time.Now}, nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, b.object(key), miniogo.GetObjectOptions{})
	if err != nil {
		return nil, false, mapError(err, "get "+key)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		if errs.IsNotFound(mapError(err, "")) {
			return nil, false, nil
		}
		return nil, false, mapError(err, "stat "+key)
	}

	if expired(stat.UserMetadata, b.now()) {
		_ = b.Delete(ctx, key)
		return nil, false, nil
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, false, mapError(err, "read "+key)
	}
	return data, true, nil
}

func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	opts := miniogo.PutObjectOptions{ContentType: "application/json"}
	if ttl > 0 {
		opts.UserMetadata = map[string]string{
			expiresMeta: b.now().Add(ttl).UTC().Format(time.RFC3339Nano),
		}
	}

	_, err := b.client.PutObject(ctx, b.bucket, b.object(key),
		bytes.NewReader(value), int64(len(value)), opts)
	if err != nil {
		return mapError(err, "put "+key)
	}
	return nil
}

// Delete removes each key. Missing objects are not an error.
func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		err := b.client.RemoveObject(ctx, b.bucket, b.object(key), miniogo.RemoveObjectOptions{})
		if err != nil && !errs.IsNotFound(mapError(err, "")) {
			return mapError(err, "remove "+key)
		}
	}
	return nil
}

// Purge removes expired objects under the prefix. Objects are only
// checked for expiry when read, so without it unread entries accumulate.
func (b *Backend) Purge(ctx context.Context) (int64, error) {
	var n int64
	objects := b.client.ListObjects(ctx, b.bucket, miniogo.ListObjectsOptions{
		Prefix:    b.prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return n, mapError(obj.Err, "list objects")
		}
		stat, err := b.client.StatObject(ctx, b.bucket, obj.Key, miniogo.StatObjectOptions{})
		if err != nil {
			if errs.IsNotFound(mapError(err, "")) {
				continue
			}
			return n, mapError(err, "stat "+obj.Key)
		}
		if !expired(stat.UserMetadata, b.now()) {
			continue
		}
		err = b.client.RemoveObject(ctx, b.bucket, obj.Key, miniogo.RemoveObjectOptions{})
		if err != nil && !errs.IsNotFound(mapError(err, "")) {
			return n, mapError(err, "remove "+obj.Key)
		}
		n++
	}
	return n, nil
}

func (b *Backend) object(key string) string {
	return b.prefix + key
}

// expired reads the expiry from user metadata. Header names come back
// canonicalised, so the lookup ignores case.
func expired(meta map[string]string, now time.Time) bool {
	for k, v := range meta {
		if !strings.EqualFold(k, expiresMeta) {
			continue
		}
		at, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return true
		}
		return !now.Before(at)
	}
	return false
}
