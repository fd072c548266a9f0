package operations

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

var (
	// ErrInvalidBackup means the directory has no readable manifest.
	ErrInvalidBackup = errors.New("invalid backup")
	// ErrBackupDirNotFound means the backup directory does not exist.
	ErrBackupDirNotFound = errors.New("backup directory not found")
)

// StorageCounts holds the per-item tally of a storage backup.
type StorageCounts struct {
	Buckets          int `json:"buckets"`
	ObjectsAttempted int `json:"objects_attempted"`
	ObjectsSucceeded int `json:"objects_succeeded"`
}

// Manifest identifies one backup run and what it produced. It is written
// once, after every target has resolved.
type Manifest struct {
	Timestamp   string         `json:"timestamp"`
	ProjectID   string         `json:"project_id"`
	BackupDir   string         `json:"backup_dir"`
	Mode        Mode           `json:"mode"`
	Results     ArtifactSet    `json:"results"`
	Storage     *StorageCounts `json:"storage,omitempty"`
	ToolVersion string         `json:"tool_version,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Write stores the manifest in dirPath.
func (m *Manifest) Write(dirPath string) error {
	if err := writeJSON(filepath.Join(dirPath, ManifestFile), m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// readManifest returns the raw read or decode error so callers can tell a
// missing manifest from a corrupt one.
func readManifest(dirPath string) (*Manifest, error) {
	var m Manifest
	if err := readJSON(filepath.Join(dirPath, ManifestFile), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads the manifest of the backup in dirPath.
func LoadManifest(dirPath string) (*Manifest, error) {
	if !dirExists(dirPath) {
		return nil, fmt.Errorf("%w: %s", ErrBackupDirNotFound, dirPath)
	}
	m, err := readManifest(dirPath)
	if isNotExist(err) {
		return nil, fmt.Errorf("%w: %s not found", ErrInvalidBackup, ManifestFile)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidBackup, ManifestFile, err)
	}
	return m, nil
}

// RunConfig is the non-secret run description stored in backup_config.json.
type RunConfig struct {
	ProjectID     string            `json:"project_id"`
	URL           string            `json:"url"`
	Timestamp     string            `json:"timestamp"`
	BackupVersion string            `json:"backup_version"`
	Database      RunConfigDatabase `json:"database"`
}

type RunConfigDatabase struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
}
