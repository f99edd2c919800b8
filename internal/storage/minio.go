// Package storage wraps the object store holding boundary descriptors
// and analysis artifacts.
package storage

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/terralens/forestmap/internal/config"
)

const uploadPrefix = "uploads"

// Client talks to an S3-compatible object store.
type Client struct {
	mc             *minio.Client
	bucket         string
	outputPrefix   string
	uploadExpiry   time.Duration
	downloadExpiry time.Duration
}

// New connects to the object store and makes sure the configured bucket
// exists.
func New(ctx context.Context, cfg config.StorageConfig) (*Client, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, eris.Wrap(err, "storage: init client")
	}

	c := &Client{
		mc:             mc,
		bucket:         cfg.Bucket,
		outputPrefix:   cfg.OutputPrefix,
		uploadExpiry:   time.Duration(cfg.UploadExpirySecs) * time.Second,
		downloadExpiry: time.Duration(cfg.DownloadExpirySecs) * time.Second,
	}

	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, eris.Wrapf(err, "storage: create bucket %s", cfg.Bucket)
		}
		zap.L().Info("created bucket", zap.String("bucket", cfg.Bucket))
	}

	return c, nil
}

// DownloadDescriptor fetches a boundary descriptor document by object key.
func (c *Client) DownloadDescriptor(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, eris.Wrapf(err, "storage: get %s", key)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", key)
	}
	return data, nil
}

// UploadPNG encodes the image as PNG and stores it under the output
// prefix. Returns the object key.
func (c *Client) UploadPNG(ctx context.Context, name string, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", eris.Wrap(err, "storage: encode png")
	}

	key := path.Join(c.outputPrefix, name)
	_, err := c.mc.PutObject(ctx, c.bucket, key, &buf, int64(buf.Len()),
		minio.PutObjectOptions{ContentType: "image/png"})
	if err != nil {
		return "", eris.Wrapf(err, "storage: put %s", key)
	}

	zap.L().Info("uploaded artifact",
		zap.String("key", key),
		zap.Int("bytes", buf.Len()))
	return key, nil
}

// UploadJSON stores a JSON document under the output prefix. Returns the
// object key.
func (c *Client) UploadJSON(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(c.outputPrefix, name)
	_, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", eris.Wrapf(err, "storage: put %s", key)
	}
	return key, nil
}

// PresignedUpload returns a presigned PUT URL for a descriptor upload,
// plus the object key the caller should reference afterwards. An empty
// name gets a generated one.
func (c *Client) PresignedUpload(ctx context.Context, name string) (string, string, error) {
	if name == "" {
		name = uuid.NewString()
	}
	key := uploadKey(name)

	u, err := c.mc.PresignedPutObject(ctx, c.bucket, key, c.uploadExpiry)
	if err != nil {
		return "", "", eris.Wrapf(err, "storage: presign put %s", key)
	}
	return u.String(), key, nil
}

// PresignedDownload returns a presigned GET URL that downloads the
// object as an attachment named filename.
func (c *Client) PresignedDownload(ctx context.Context, key, filename string) (string, error) {
	params := make(url.Values)
	params.Set("response-content-disposition", `attachment; filename="`+filename+`"`)

	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, c.downloadExpiry, params)
	if err != nil {
		return "", eris.Wrapf(err, "storage: presign get %s", key)
	}
	return u.String(), nil
}

// uploadKey builds the descriptor object key, appending the .json
// extension only when the sanitized name does not already carry it.
func uploadKey(name string) string {
	return path.Join(uploadPrefix, strings.TrimSuffix(sanitizeName(name), ".json")+".json")
}

// sanitizeName strips anything that could escape the upload prefix or
// confuse downstream key handling.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), ".")
}
