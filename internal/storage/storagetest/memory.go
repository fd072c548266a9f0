// Package storagetest provides an in-memory storage.Provider for tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kebairia/sbackup/internal/storage"
)

// Memory is a storage.Provider keeping buckets and objects in maps. Listing
// emulates a delimiter listing: the immediate children of a prefix, folders
// first-class and without metadata.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*memBucket

	// ListErrors fails List for "bucket/prefix" keys.
	ListErrors map[string]error
	// DownloadErrors and UploadErrors fail transfers for "bucket/key" keys.
	DownloadErrors map[string]error
	UploadErrors   map[string]error
	// ListBucketsErr and CreateBucketErr fail the whole call when set.
	ListBucketsErr  error
	CreateBucketErr error

	Uploads          int
	BucketsCreated   []string
	ListBucketsCalls int
}

type memBucket struct {
	info    storage.Bucket
	objects map[string][]byte
}

var _ storage.Provider = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		buckets:        map[string]*memBucket{},
		ListErrors:     map[string]error{},
		DownloadErrors: map[string]error{},
		UploadErrors:   map[string]error{},
	}
}

// AddBucket registers a bucket without going through CreateBucket.
func (m *Memory) AddBucket(name string, public bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[name]; !ok {
		m.buckets[name] = &memBucket{
			info:    storage.Bucket{ID: name, Name: name, Public: public},
			objects: map[string][]byte{},
		}
	}
}

// Put stores an object, creating the bucket if needed.
func (m *Memory) Put(bucket, key string, data []byte) {
	m.AddBucket(bucket, false)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket].objects[key] = append([]byte(nil), data...)
}

// Objects returns a copy of the objects in bucket.
func (m *Memory) Objects(bucket string) map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]byte{}
	if b, ok := m.buckets[bucket]; ok {
		for k, v := range b.objects {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out
}

// Bucket returns the stored bucket record.
func (m *Memory) Bucket(name string) (storage.Bucket, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return storage.Bucket{}, false
	}
	return b.info, true
}

func (m *Memory) ListBuckets(ctx context.Context) ([]storage.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListBucketsCalls++
	if m.ListBucketsErr != nil {
		return nil, m.ListBucketsErr
	}
	out := make([]storage.Bucket, 0, len(m.buckets))
	for _, b := range m.buckets {
		out = append(out, b.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) List(ctx context.Context, bucket, prefix string) ([]storage.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix = strings.Trim(prefix, "/")
	if err, ok := m.ListErrors[bucket+"/"+prefix]; ok {
		return nil, err
	}
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrBucketNotFound, bucket)
	}

	keyPrefix := ""
	if prefix != "" {
		keyPrefix = prefix + "/"
	}
	folders := map[string]bool{}
	var entries []storage.Entry
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.HasPrefix(k, keyPrefix) {
			continue
		}
		rest := strings.TrimPrefix(k, keyPrefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			if !folders[name] {
				folders[name] = true
				entries = append(entries, storage.Entry{Name: name})
			}
			continue
		}
		entries = append(entries, storage.Entry{
			Name:     rest,
			Metadata: map[string]any{"size": int64(len(b.objects[k]))},
		})
	}
	return entries, nil
}

func (m *Memory) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.DownloadErrors[bucket+"/"+key]; ok {
		return nil, err
	}
	b, ok := m.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrBucketNotFound, bucket)
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, bucket, key)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), data...))), nil
}

func (m *Memory) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, opts storage.UploadOptions) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.UploadErrors[bucket+"/"+key]; ok {
		return err
	}
	b, ok := m.buckets[bucket]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrBucketNotFound, bucket)
	}
	if _, exists := b.objects[key]; exists && !opts.Upsert {
		return fmt.Errorf("%w: %s/%s", storage.ErrObjectExists, bucket, key)
	}
	b.objects[key] = data
	m.Uploads++
	return nil
}

func (m *Memory) CreateBucket(ctx context.Context, name string, public bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateBucketErr != nil {
		return m.CreateBucketErr
	}
	if _, ok := m.buckets[name]; ok {
		return fmt.Errorf("bucket %s already exists", name)
	}
	m.buckets[name] = &memBucket{
		info:    storage.Bucket{ID: name, Name: name, Public: public},
		objects: map[string][]byte{},
	}
	m.BucketsCreated = append(m.BucketsCreated, name)
	return nil
}
