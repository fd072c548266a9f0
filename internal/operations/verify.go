package operations

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Verification statuses.
const (
	StatusPassed   = "passed"
	StatusWarnings = "passed with warnings"
	StatusFailed   = "failed"
)

// FileSummary describes one SQL dump found in a backup.
type FileSummary struct {
	Name      string
	SizeBytes int64
}

// BucketSummary describes one mirrored bucket.
type BucketSummary struct {
	Name        string
	Files       int
	HasMetadata bool
}

// Report is the result of verifying a backup directory. Issues fail the
// verification, warnings do not.
type Report struct {
	Dir           string
	Manifest      *Manifest
	Issues        []string
	Warnings      []string
	DatabaseFiles []FileSummary
	// Buckets is nil when the backup has no storage directory.
	Buckets []BucketSummary
	// AuthUsers is nil when the backup has no readable auth users file.
	AuthUsers *int
	Config    *RunConfig
}

// Passed reports whether verification found no issues.
func (r *Report) Passed() bool {
	return len(r.Issues) == 0
}

// Status returns passed, passed with warnings or failed.
func (r *Report) Status() string {
	switch {
	case !r.Passed():
		return StatusFailed
	case len(r.Warnings) > 0:
		return StatusWarnings
	default:
		return StatusPassed
	}
}

func (r *Report) issue(format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Verify checks the backup in dir using only what is on disk.
func Verify(dir string) *Report {
	r := &Report{Dir: dir}
	if !dirExists(dir) {
		r.issue("backup directory does not exist")
		return r
	}

	r.verifyManifest()
	r.verifyDatabase()
	r.verifyStorage()
	r.verifyAuthUsers()
	r.verifyConfig()
	return r
}

func (r *Report) verifyManifest() {
	m, err := readManifest(r.Dir)
	switch {
	case isNotExist(err):
		r.issue("%s is missing", ManifestFile)
		return
	case err != nil:
		r.issue("Invalid %s: %v", ManifestFile, err)
		return
	}
	r.Manifest = m

	if failed := m.Results.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, t := range failed {
			names[i] = string(t)
		}
		r.warn("Backup recorded failed steps: %s", strings.Join(names, ", "))
	}
}

func (r *Report) verifyDatabase() {
	for _, name := range []string{FullBackupFile, SchemaFile, DataFile} {
		info, err := os.Stat(filepath.Join(r.Dir, name))
		if err != nil || info.IsDir() {
			continue
		}
		r.DatabaseFiles = append(r.DatabaseFiles, FileSummary{Name: name, SizeBytes: info.Size()})
		if info.Size() == 0 {
			r.warn("%s is empty (0 bytes)", name)
		}
	}
	if len(r.DatabaseFiles) == 0 {
		r.issue("No database backup files found")
	}
}

func (r *Report) verifyStorage() {
	storageDir := filepath.Join(r.Dir, StorageDir)
	if !dirExists(storageDir) {
		r.warn("No storage backup found (this may be intentional)")
		return
	}
	entries, err := os.ReadDir(storageDir)
	if err != nil {
		r.issue("Cannot read storage backup: %v", err)
		return
	}

	r.Buckets = []BucketSummary{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		bucketDir := filepath.Join(storageDir, entry.Name())
		metadataPath := filepath.Join(bucketDir, BucketMetadataFile)
		summary := BucketSummary{Name: entry.Name(), HasMetadata: fileExists(metadataPath)}
		if !summary.HasMetadata {
			r.warn("Bucket %s is missing %s", entry.Name(), BucketMetadataFile)
		}
		_ = filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
			if err == nil && !d.IsDir() && path != metadataPath {
				summary.Files++
			}
			return nil
		})
		r.Buckets = append(r.Buckets, summary)
	}
	if len(r.Buckets) == 0 {
		r.warn("Storage backup contains no buckets")
	}
}

func (r *Report) verifyAuthUsers() {
	var users []json.RawMessage
	err := readJSON(filepath.Join(r.Dir, AuthUsersFile), &users)
	switch {
	case isNotExist(err):
		r.warn("No auth users backup found")
		return
	case err != nil:
		r.issue("Invalid %s: %v", AuthUsersFile, err)
		return
	}
	n := len(users)
	r.AuthUsers = &n
	if n == 0 {
		r.warn("%s contains no users", AuthUsersFile)
	}
}

func (r *Report) verifyConfig() {
	var rc RunConfig
	err := readJSON(filepath.Join(r.Dir, RunConfigFile), &rc)
	switch {
	case isNotExist(err):
		r.warn("No configuration backup found")
		return
	case err != nil:
		r.issue("Invalid %s: %v", RunConfigFile, err)
		return
	}
	r.Config = &rc
	if rc.ProjectID == "" {
		r.warn("Configuration missing project_id")
	}
}
