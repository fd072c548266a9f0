// Package storage talks to the project's object storage: it defines the
// capability set a provider must offer, walks bucket namespaces and moves
// single objects between a bucket and the local filesystem.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrBucketNotFound = errors.New("bucket not found")
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
	ErrUnsafePath     = errors.New("unsafe object path")
)

// Bucket is one top-level container as reported by the provider. It is
// persisted next to the bucket's objects and read back on restore.
type Bucket struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Public    bool           `json:"public"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Entry is a single listing result directly under a prefix. Name is the
// final path segment only.
type Entry struct {
	Name     string
	Metadata map[string]any
}

// ObjectRecord is a leaf object found by the Walker.
type ObjectRecord struct {
	// Path is the full object key, segments joined by "/".
	Path     string
	Metadata map[string]any
}

// UploadOptions controls a single upload.
type UploadOptions struct {
	ContentType string
	// Upsert overwrites an existing object instead of failing with
	// ErrObjectExists.
	Upsert bool
}

// Lister lists the immediate children of a prefix.
type Lister interface {
	List(ctx context.Context, bucket, prefix string) ([]Entry, error)
}

// Provider is the object-storage capability set used by backup and restore.
type Provider interface {
	Lister
	ListBuckets(ctx context.Context) ([]Bucket, error)
	Download(ctx context.Context, bucket, objectPath string) (io.ReadCloser, error)
	Upload(ctx context.Context, bucket, objectPath string, body io.Reader, size int64, opts UploadOptions) error
	CreateBucket(ctx context.Context, name string, public bool) error
}
