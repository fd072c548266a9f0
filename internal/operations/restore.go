package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kebairia/sbackup/internal/database"
	"github.com/kebairia/sbackup/internal/storage"
)

// ErrNotConfirmed is returned when a full restore is not confirmed.
var ErrNotConfirmed = errors.New("restore not confirmed")

// ConfirmFunc is asked before a full restore overwrites anything.
type ConfirmFunc func(m *Manifest) bool

// RestoreResult is the outcome of one restore run.
type RestoreResult struct {
	Dir      string
	Mode     RestoreMode
	Manifest *Manifest
	Steps    []StepResult
}

// Succeeded reports whether every step that ran succeeded. Skipped steps do
// not count.
func (r *RestoreResult) Succeeded() bool {
	for _, s := range r.Steps {
		if !s.Skipped && !s.OK {
			return false
		}
	}
	return true
}

// Restore replays the backup in dir. The returned error covers setup
// problems only (missing directory or manifest, invalid configuration,
// refused confirmation); per-step outcomes are in the result.
func (om *OperationManager) Restore(ctx context.Context, dir string, mode RestoreMode, confirm ConfirmFunc) (*RestoreResult, error) {
	log := om.log
	steps, err := mode.Steps()
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = RestoreFull
	}

	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	result := &RestoreResult{Dir: dir, Mode: mode, Manifest: manifest}

	if mode == RestoreFull && (confirm == nil || !confirm(manifest)) {
		return result, ErrNotConfirmed
	}
	if err := om.prepareRestore(ctx, steps); err != nil {
		return result, err
	}

	log.Info("restore started",
		"path", dir,
		"mode", string(mode),
		"backup", manifest.Timestamp,
		"project", manifest.ProjectID,
	)
	for _, name := range steps {
		start := time.Now()
		var step StepResult
		switch name {
		case StepDatabase:
			step = om.restoreDatabase(ctx, dir)
		case StepStorage:
			step = om.restoreStorage(ctx, dir)
		case StepAuth:
			step = om.restoreAuthUsers(ctx, dir)
		}
		step.Duration = time.Since(start)
		switch {
		case step.Skipped:
			log.Info("restore step skipped", "step", name)
		case step.Err != nil:
			log.Error("restore step failed", "step", name, "error", step.Err.Error())
		}
		result.Steps = append(result.Steps, step)
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("restore interrupted: %w", err)
	}
	log.Info("restore completed", "path", dir, "succeeded", result.Succeeded())
	return result, nil
}

func (om *OperationManager) prepareRestore(ctx context.Context, steps []string) error {
	for _, s := range steps {
		var err error
		switch s {
		case StepDatabase:
			err = om.requireDumper(ctx)
		case StepStorage:
			err = om.requireStorage(ctx)
		case StepAuth:
			err = om.requireUsers(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// restoreDatabase prefers the full dump and falls back to schema then data.
// A failed schema replay stops the step.
func (om *OperationManager) restoreDatabase(ctx context.Context, dir string) StepResult {
	step := StepResult{Name: StepDatabase}

	var files []string
	if full := filepath.Join(dir, FullBackupFile); fileExists(full) {
		files = []string{full}
	} else {
		om.log.Warn("full backup file not found, trying schema and data separately")
		for _, name := range []string{SchemaFile, DataFile} {
			if p := filepath.Join(dir, name); fileExists(p) {
				files = append(files, p)
			}
		}
	}
	if len(files) == 0 {
		step.Skipped = true
		return step
	}

	step.Items = len(files)
	for _, f := range files {
		if err := om.dumper.Replay(ctx, f); err != nil {
			step.fail(fmt.Errorf("replay %s: %w", filepath.Base(f), err))
			return step
		}
		step.ItemsOK++
	}
	step.OK = true
	return step
}

// restoreStorage recreates missing buckets and uploads every mirrored file
// with overwrite semantics, so running it twice converges.
func (om *OperationManager) restoreStorage(ctx context.Context, dir string) StepResult {
	log := om.log
	step := StepResult{Name: StepStorage}
	storageDir := filepath.Join(dir, StorageDir)
	if !dirExists(storageDir) {
		step.Skipped = true
		return step
	}

	entries, err := os.ReadDir(storageDir)
	if err != nil {
		step.fail(fmt.Errorf("read storage backup: %w", err))
		return step
	}

	listed, err := om.provider.ListBuckets(ctx)
	if err != nil {
		step.fail(fmt.Errorf("list buckets: %w", err))
		return step
	}
	existing := make(map[string]bool, len(listed))
	for _, b := range listed {
		existing[b.Name] = true
	}

	transfer := storage.NewTransfer(om.provider, log)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			step.fail(err)
			return step
		}
		name := entry.Name()
		blog := log.With("bucket", name)
		bucketDir := filepath.Join(storageDir, name)

		if err := om.ensureBucket(ctx, existing, om.readBucketEntry(bucketDir)); err != nil {
			blog.Error("bucket not restored", "error", err.Error())
			step.BucketsFailed++
			continue
		}
		step.Buckets++

		metadataPath := filepath.Join(bucketDir, BucketMetadataFile)
		attempted, succeeded := 0, 0
		walkErr := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				blog.Warn("cannot read backup path", "path", path, "error", err.Error())
				return nil
			}
			if d.IsDir() || path == metadataPath {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			attempted++
			key, err := storage.ObjectPath(bucketDir, path)
			if err != nil {
				blog.Warn("file skipped", "path", path, "error", err.Error())
				return nil
			}
			if err := transfer.Upload(ctx, name, key, path); err != nil {
				blog.Warn("object upload failed", "object", key, "error", err.Error())
				return nil
			}
			succeeded++
			return nil
		})
		step.Items += attempted
		step.ItemsOK += succeeded
		if walkErr != nil {
			step.fail(walkErr)
			return step
		}
		blog.Info("bucket restored", "succeeded", succeeded, "attempted", attempted)
	}

	step.OK = true
	return step
}

// readBucketEntry returns the bucket's saved metadata, or a private bucket
// when the file is missing or unreadable. The directory name is the bucket
// name either way.
func (om *OperationManager) readBucketEntry(bucketDir string) storage.Bucket {
	name := filepath.Base(bucketDir)
	var entry storage.Bucket
	if err := readJSON(filepath.Join(bucketDir, BucketMetadataFile), &entry); err != nil {
		om.log.Warn("bucket metadata unavailable, restoring as private",
			"bucket", name,
			"error", err.Error(),
		)
		return storage.Bucket{Name: name}
	}
	entry.Name = name
	return entry
}

// ensureBucket creates the bucket unless existing already names it, and
// records it there. Existing buckets keep their current visibility.
func (om *OperationManager) ensureBucket(ctx context.Context, existing map[string]bool, entry storage.Bucket) error {
	if existing[entry.Name] {
		om.log.Info("bucket already exists", "bucket", entry.Name)
		return nil
	}
	if err := om.provider.CreateBucket(ctx, entry.Name, entry.Public); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	existing[entry.Name] = true
	om.log.Info("bucket created", "bucket", entry.Name, "public", entry.Public)
	return nil
}

// restoreAuthUsers upserts every saved user. One user's failure does not
// stop the batch.
func (om *OperationManager) restoreAuthUsers(ctx context.Context, dir string) StepResult {
	step := StepResult{Name: StepAuth}
	path := filepath.Join(dir, AuthUsersFile)
	if !fileExists(path) {
		step.Skipped = true
		return step
	}

	data, err := os.ReadFile(path)
	if err != nil {
		step.fail(err)
		return step
	}
	var users []database.AuthUser
	if err := json.Unmarshal(data, &users); err != nil {
		step.fail(fmt.Errorf("parse %s: %w", AuthUsersFile, err))
		return step
	}
	step.Items = len(users)

	store, err := om.openUsers(ctx)
	if err != nil {
		step.fail(err)
		return step
	}
	defer func() {
		if err := store.Close(ctx); err != nil {
			om.log.Warn("closing auth user connection", "error", err.Error())
		}
	}()

	for _, u := range users {
		if err := store.UpsertUser(ctx, u); err != nil {
			email := ""
			if u.Email != nil {
				email = *u.Email
			}
			om.log.Warn("auth user not restored", "id", u.ID.String(), "email", email, "error", err.Error())
			continue
		}
		step.ItemsOK++
	}
	om.log.Info("auth users restored", "succeeded", step.ItemsOK, "total", step.Items)
	step.OK = true
	return step
}
