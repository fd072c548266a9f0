package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/logger"
)

const DriverS3 = "s3"

// S3Provider implements Provider on top of an S3-compatible endpoint using
// the AWS SDK.
type S3Provider struct {
	client *s3.Client
	log    logger.Logger
}

var _ Provider = (*S3Provider)(nil)

// NewS3Provider returns a provider for the endpoint described by cfg.
func NewS3Provider(cfg config.StorageConfig, log logger.Logger) *S3Provider {
	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	})
	return &S3Provider{client: client, log: log.With("driver", DriverS3)}
}

func (p *S3Provider) ListBuckets(ctx context.Context) ([]Bucket, error) {
	out, err := p.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	buckets := make([]Bucket, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		name := aws.ToString(b.Name)
		buckets = append(buckets, Bucket{
			ID:        name,
			Name:      name,
			Public:    p.isPublic(ctx, name),
			CreatedAt: b.CreationDate,
			Metadata: map[string]any{
				"region": aws.ToString(b.BucketRegion),
			},
		})
	}
	return buckets, nil
}

// isPublic inspects the bucket policy. Endpoints that do not support
// policies report every bucket as private.
func (p *S3Provider) isPublic(ctx context.Context, bucket string) bool {
	out, err := p.client.GetBucketPolicy(ctx, &s3.GetBucketPolicyInput{Bucket: aws.String(bucket)})
	if err != nil {
		p.log.Debug("bucket policy unavailable", "bucket", bucket, "error", err.Error())
		return false
	}
	return policyAllowsPublicRead(aws.ToString(out.Policy))
}

func (p *S3Provider) List(ctx context.Context, bucket, prefix string) ([]Entry, error) {
	keyPrefix := ""
	if prefix != "" {
		keyPrefix = strings.Trim(prefix, "/") + "/"
	}

	var entries []Entry
	paginator := s3.NewListObjectsV2Paginator(p.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(keyPrefix),
		Delimiter: aws.String("/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var nsb *s3types.NoSuchBucket
			if errors.As(err, &nsb) {
				return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
			}
			return nil, fmt.Errorf("list %s/%s: %w", bucket, keyPrefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), keyPrefix), "/")
			if name != "" {
				entries = append(entries, Entry{Name: name})
			}
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), keyPrefix)
			// Folder placeholder objects end with the delimiter.
			if name == "" || strings.HasSuffix(name, "/") {
				continue
			}
			entries = append(entries, Entry{
				Name: name,
				Metadata: map[string]any{
					"size":         aws.ToInt64(obj.Size),
					"eTag":         strings.Trim(aws.ToString(obj.ETag), `"`),
					"lastModified": aws.ToTime(obj.LastModified),
				},
			})
		}
	}
	return entries, nil
}

func (p *S3Provider) Download(ctx context.Context, bucket, objectPath string) (io.ReadCloser, error) {
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, objectPath)
		}
		return nil, err
	}
	return out.Body, nil
}

func (p *S3Provider) Upload(ctx context.Context, bucket, objectPath string, body io.Reader, size int64, opts UploadOptions) error {
	if !opts.Upsert {
		_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(objectPath),
		})
		if err == nil {
			return fmt.Errorf("%w: %s/%s", ErrObjectExists, bucket, objectPath)
		}
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(objectPath),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	_, err := p.client.PutObject(ctx, input)
	return err
}

func (p *S3Provider) CreateBucket(ctx context.Context, name string, public bool) error {
	_, err := p.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", name, err)
	}
	if !public {
		return nil
	}
	policy, err := publicReadPolicy(name)
	if err != nil {
		return err
	}
	_, err = p.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(name),
		Policy: aws.String(policy),
	})
	if err != nil {
		return fmt.Errorf("set public policy on %s: %w", name, err)
	}
	return nil
}
