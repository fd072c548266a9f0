package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/logger"
)

const DriverMinio = "minio"

// MinioProvider implements Provider with the MinIO client. The endpoint must
// be a bare scheme://host[:port]; minio-go does not accept a path prefix.
type MinioProvider struct {
	cli    *minio.Client
	region string
	log    logger.Logger
}

var _ Provider = (*MinioProvider)(nil)

// NewMinioProvider returns a provider for the endpoint described by cfg.
func NewMinioProvider(cfg config.StorageConfig, log logger.Logger) (*MinioProvider, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", cfg.Endpoint, err)
	}
	if strings.Trim(u.Path, "/") != "" {
		return nil, fmt.Errorf("minio endpoint %q must not contain a path", cfg.Endpoint)
	}

	lookup := minio.BucketLookupAuto
	if cfg.UsePathStyle {
		lookup = minio.BucketLookupPath
	}
	cli, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       u.Scheme == "https",
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &MinioProvider{cli: cli, region: cfg.Region, log: log.With("driver", DriverMinio)}, nil
}

func (p *MinioProvider) ListBuckets(ctx context.Context) ([]Bucket, error) {
	infos, err := p.cli.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	buckets := make([]Bucket, 0, len(infos))
	for _, bi := range infos {
		created := bi.CreationDate
		buckets = append(buckets, Bucket{
			ID:        bi.Name,
			Name:      bi.Name,
			Public:    p.isPublic(ctx, bi.Name),
			CreatedAt: &created,
		})
	}
	return buckets, nil
}

func (p *MinioProvider) isPublic(ctx context.Context, bucket string) bool {
	doc, err := p.cli.GetBucketPolicy(ctx, bucket)
	if err != nil {
		p.log.Debug("bucket policy unavailable", "bucket", bucket, "error", err.Error())
		return false
	}
	return policyAllowsPublicRead(doc)
}

func (p *MinioProvider) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	keyPrefix := ""
	if prefix != "" {
		keyPrefix = strings.Trim(prefix, "/") + "/"
	}

	var entries []Entry
	for obj := range p.cli.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: keyPrefix}) {
		if obj.Err != nil {
			return nil, translateMinioError(obj.Err, bucket, keyPrefix)
		}
		name := strings.TrimPrefix(obj.Key, keyPrefix)
		if name == "" {
			continue
		}
		if strings.HasSuffix(name, "/") {
			entries = append(entries, Entry{Name: strings.TrimSuffix(name, "/")})
			continue
		}
		entries = append(entries, Entry{
			Name: name,
			Metadata: map[string]any{
				"size":         obj.Size,
				"eTag":         obj.ETag,
				"lastModified": obj.LastModified,
				"mimetype":     obj.ContentType,
			},
		})
	}
	return entries, nil
}

func (p *MinioProvider) Download(ctx context.Context, bucket, objectPath string) (io.ReadCloser, error) {
	obj, err := p.cli.GetObject(ctx, bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err, bucket, objectPath)
	}
	// GetObject is lazy; Stat surfaces a missing object before any bytes are
	// written locally.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translateMinioError(err, bucket, objectPath)
	}
	return obj, nil
}

func (p *MinioProvider) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, size int64, opts UploadOptions) error {
	if !opts.Upsert {
		if _, err := p.cli.StatObject(ctx, bucket, objectPath, minio.StatObjectOptions{}); err == nil {
			return fmt.Errorf("%w: %s/%s", ErrObjectExists, bucket, objectPath)
		}
	}
	_, err := p.cli.PutObject(ctx, bucket, objectPath, body, size, minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	if err != nil {
		return translateMinioError(err, bucket, objectPath)
	}
	return nil
}

func (p *MinioProvider) CreateBucket(ctx context.Context, name string, public bool) error {
	if err := p.cli.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: p.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	if !public {
		return nil
	}
	policy, err := publicReadPolicy(name)
	if err != nil {
		return err
	}
	if err := p.cli.SetBucketPolicy(ctx, name, policy); err != nil {
		return fmt.Errorf("set public policy on %s: %w", name, err)
	}
	return nil
}

func translateMinioError(err error, bucket, key string) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchBucket":
		return fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}
	return err
}
