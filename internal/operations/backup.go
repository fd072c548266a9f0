package operations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kebairia/sbackup/internal/database"
	"github.com/kebairia/sbackup/internal/storage"
)

// ErrIncomplete is returned by commands when at least one attempted step
// failed.
var ErrIncomplete = errors.New("one or more steps failed")

// ErrBackupExists is returned when the timestamped directory of a new run is
// already taken by an earlier one.
var ErrBackupExists = errors.New("backup directory already exists")

// BackupResult is the outcome of one backup run.
type BackupResult struct {
	Timestamp string
	Dir       string
	Mode      Mode
	Steps     []StepResult
	Results   ArtifactSet
	Storage   *StorageCounts
	Manifest  *Manifest
}

// Succeeded reports whether every attempted target succeeded.
func (r *BackupResult) Succeeded() bool {
	return r.Results.Succeeded()
}

// Backup creates a timestamped directory under outputDir and captures every
// target of mode into it. A target's failure never stops the others. The
// returned error covers setup problems only; per-target outcomes are in the
// result.
func (om *OperationManager) Backup(ctx context.Context, mode Mode, outputDir string) (*BackupResult, error) {
	log := om.log
	targets, err := mode.Targets()
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeFull
	}
	if err := om.cfg.ValidateProject(); err != nil {
		return nil, err
	}
	if err := om.prepareBackup(ctx, targets); err != nil {
		return nil, err
	}

	if outputDir == "" {
		outputDir = om.cfg.Backup.OutputDirectory
	}
	start := om.now()
	timestamp := FormatTimestamp(start)
	dir, err := filepath.Abs(filepath.Join(outputDir, timestamp))
	if err != nil {
		return nil, fmt.Errorf("resolve backup directory: %w", err)
	}
	if err := createBackupDir(dir); err != nil {
		return nil, err
	}

	log.Info("backup started",
		"project", om.cfg.Project.ID,
		"mode", string(mode),
		"path", dir,
	)

	result := &BackupResult{
		Timestamp: timestamp,
		Dir:       dir,
		Mode:      mode,
		Results:   ArtifactSet{},
	}
	for _, target := range targets {
		stepStart := time.Now()
		step := om.backupTarget(ctx, target, dir, timestamp, result)
		step.Duration = time.Since(stepStart)
		if step.Err != nil {
			log.Error("backup target failed", "target", string(target), "error", step.Err.Error())
		}
		result.Steps = append(result.Steps, step)
		result.Results[target] = step.OK
	}

	// An interrupted run leaves no manifest so verify and restore reject it.
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("backup interrupted: %w", err)
	}

	result.Manifest = &Manifest{
		Timestamp:   timestamp,
		ProjectID:   om.cfg.Project.ID,
		BackupDir:   dir,
		Mode:        mode,
		Results:     result.Results,
		Storage:     result.Storage,
		ToolVersion: om.version,
		CreatedAt:   om.now().UTC(),
	}
	if err := result.Manifest.Write(dir); err != nil {
		return result, err
	}

	log.Info("backup completed",
		"path", dir,
		"succeeded", result.Succeeded(),
		"duration", time.Since(start).String(),
	)
	return result, nil
}

// createBackupDir creates the run directory itself exclusively so a run
// never writes into the directory of another.
func createBackupDir(dir string) error {
	if err := EnsureDirectoryExist(filepath.Dir(dir)); err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrBackupExists, dir)
		}
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// prepareBackup builds the collaborators the selected targets need so that
// configuration problems surface before anything is written.
func (om *OperationManager) prepareBackup(ctx context.Context, targets []Target) error {
	for _, t := range targets {
		var err error
		switch t {
		case TargetFullBackup, TargetSchema, TargetData:
			err = om.requireDumper(ctx)
		case TargetStorage:
			err = om.requireStorage(ctx)
		case TargetAuthUsers:
			err = om.requireUsers(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (om *OperationManager) backupTarget(ctx context.Context, target Target, dir, timestamp string, result *BackupResult) StepResult {
	switch target {
	case TargetFullBackup:
		return om.backupDump(ctx, target, database.DumpFull, filepath.Join(dir, FullBackupFile))
	case TargetSchema:
		return om.backupDump(ctx, target, database.DumpSchema, filepath.Join(dir, SchemaFile))
	case TargetData:
		return om.backupDump(ctx, target, database.DumpData, filepath.Join(dir, DataFile))
	case TargetStorage:
		step, counts := om.backupStorage(ctx, dir)
		result.Storage = counts
		return step
	case TargetAuthUsers:
		return om.backupAuthUsers(ctx, filepath.Join(dir, AuthUsersFile))
	case TargetConfig:
		return om.backupConfig(filepath.Join(dir, RunConfigFile), timestamp)
	}
	return StepResult{Name: string(target), Err: fmt.Errorf("unknown target %q", target)}
}

func (om *OperationManager) backupDump(ctx context.Context, target Target, kind database.DumpKind, path string) StepResult {
	step := StepResult{Name: string(target), Path: path}
	if err := om.dumper.Dump(ctx, kind, path); err != nil {
		step.fail(err)
		return step
	}
	info, err := os.Stat(path)
	if err != nil {
		step.fail(fmt.Errorf("%w: %s missing after dump: %w", database.ErrDumpFailed, filepath.Base(path), err))
		return step
	}
	step.OK = true
	step.SizeBytes = info.Size()
	return step
}

// backupStorage mirrors every bucket under dir/storage. Failing to list the
// buckets fails the target; failures of single objects are only counted.
func (om *OperationManager) backupStorage(ctx context.Context, dir string) (StepResult, *StorageCounts) {
	log := om.log
	step := StepResult{Name: string(TargetStorage)}
	storageDir := filepath.Join(dir, StorageDir)
	step.Path = storageDir

	buckets, err := om.provider.ListBuckets(ctx)
	if err != nil {
		step.fail(fmt.Errorf("list buckets: %w", err))
		return step, nil
	}
	if err := EnsureDirectoryExist(storageDir); err != nil {
		step.fail(err)
		return step, nil
	}

	counts := &StorageCounts{}
	walker := storage.NewWalker(om.provider, log, om.cfg.Storage.MaxDepth)
	transfer := storage.NewTransfer(om.provider, log)

	for _, bucket := range buckets {
		blog := log.With("bucket", bucket.Name)
		bucketDir, err := storage.LocalPath(storageDir, bucket.Name)
		if err != nil || filepath.Dir(bucketDir) != storageDir {
			blog.Warn("skipping bucket with unsafe name")
			step.BucketsFailed++
			continue
		}
		if err := EnsureDirectoryExist(bucketDir); err != nil {
			blog.Warn("skipping bucket", "error", err.Error())
			step.BucketsFailed++
			continue
		}
		counts.Buckets++

		if err := writeJSON(filepath.Join(bucketDir, BucketMetadataFile), bucket); err != nil {
			counts.ObjectsAttempted++
			blog.Warn("bucket metadata not written", "error", err.Error())
		}

		records, err := walker.Walk(ctx, bucket.Name, "")
		if err != nil {
			step.fail(err)
			return step, counts
		}
		blog.Info("downloading bucket", "objects", len(records))

		bucketOK := 0
		for _, rec := range records {
			counts.ObjectsAttempted++
			if rec.Path == BucketMetadataFile {
				blog.Warn("object name collides with bucket metadata file, skipped", "object", rec.Path)
				continue
			}
			localPath, err := storage.LocalPath(bucketDir, rec.Path)
			if err != nil {
				blog.Warn("object skipped", "object", rec.Path, "error", err.Error())
				continue
			}
			if err := transfer.Download(ctx, bucket.Name, rec.Path, localPath); err != nil {
				blog.Warn("object download failed", "object", rec.Path, "error", err.Error())
				continue
			}
			counts.ObjectsSucceeded++
			bucketOK++
		}
		blog.Info("bucket downloaded", "succeeded", bucketOK, "attempted", len(records))
	}

	step.OK = true
	step.Buckets = counts.Buckets
	step.Items = counts.ObjectsAttempted
	step.ItemsOK = counts.ObjectsSucceeded
	return step, counts
}

func (om *OperationManager) backupAuthUsers(ctx context.Context, path string) StepResult {
	step := StepResult{Name: string(TargetAuthUsers), Path: path}
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

	users, err := store.ListUsers(ctx)
	if err != nil {
		step.fail(err)
		return step
	}
	if users == nil {
		users = []database.AuthUser{}
	}
	if err := writeJSON(path, users); err != nil {
		step.fail(err)
		return step
	}
	step.OK = true
	step.Items = len(users)
	step.ItemsOK = len(users)
	if info, err := os.Stat(path); err == nil {
		step.SizeBytes = info.Size()
	}
	om.log.Info("auth users exported", "users", len(users), "path", path)
	return step
}

func (om *OperationManager) backupConfig(path, timestamp string) StepResult {
	step := StepResult{Name: string(TargetConfig), Path: path}
	rc := RunConfig{
		ProjectID:     om.cfg.Project.ID,
		URL:           om.cfg.Project.URL,
		Timestamp:     timestamp,
		BackupVersion: BackupVersion,
		Database: RunConfigDatabase{
			Host:     om.cfg.Database.Host,
			Port:     om.cfg.Database.Port,
			Database: om.cfg.Database.Name,
		},
	}
	if err := writeJSON(path, rc); err != nil {
		step.fail(err)
		return step
	}
	step.OK = true
	if info, err := os.Stat(path); err == nil {
		step.SizeBytes = info.Size()
	}
	return step
}
