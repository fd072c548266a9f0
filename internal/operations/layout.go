package operations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/natefinch/atomic"
)

// Files and directories inside one backup directory.
const (
	ManifestFile       = "MANIFEST.json"
	FullBackupFile     = "full_backup.sql"
	SchemaFile         = "schema.sql"
	DataFile           = "data.sql"
	StorageDir         = "storage"
	BucketMetadataFile = "_bucket_metadata.json"
	AuthUsersFile      = "auth_users.json"
	RunConfigFile      = "backup_config.json"
)

// TimestampFormat names backup directories. It carries no colons and no
// fractional seconds so it is safe on every filesystem.
const TimestampFormat = "2006-01-02T15-04-05"

// BackupVersion is the layout version recorded in backup_config.json.
const BackupVersion = "1.0.0"

// FormatTimestamp renders t in UTC using TimestampFormat.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// EnsureDirectoryExist creates dirPath and any missing parents.
func EnsureDirectoryExist(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dirPath, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// writeJSON replaces path atomically with the indented JSON encoding of v.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %q: %w", path, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}
	return nil
}

// readJSON decodes path into v. A missing file is reported with an error
// matching fs.ErrNotExist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return err
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
