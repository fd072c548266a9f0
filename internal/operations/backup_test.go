package operations

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/database"
	"github.com/kebairia/sbackup/internal/storage"
	"github.com/kebairia/sbackup/internal/storage/storagetest"
)

func sampleStorage() *storagetest.Memory {
	m := storagetest.NewMemory()
	m.AddBucket("avatars", true)
	m.Put("avatars", "a.png", []byte("png-bytes"))
	m.Put("avatars", "2024/01/b.jpg", []byte("jpg-bytes"))
	m.Put("docs", "handbook/intro.md", []byte("# intro"))
	m.Put("docs", "terms.pdf", []byte("%PDF-1.4"))
	return m
}

func TestArtifactSetExitRule(t *testing.T) {
	cases := []struct {
		name string
		set  ArtifactSet
		ok   bool
	}{
		{"nothing attempted", ArtifactSet{}, true},
		{"all attempted succeeded", ArtifactSet{TargetFullBackup: true, TargetAuthUsers: true}, true},
		{"one attempted failed", ArtifactSet{TargetFullBackup: true, TargetAuthUsers: false}, false},
		{"storage only", ArtifactSet{TargetStorage: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.set.Succeeded())
		})
	}

	set := ArtifactSet{TargetConfig: false, TargetSchema: false, TargetStorage: true}
	assert.Equal(t, []Target{TargetSchema, TargetConfig}, set.Failed())
}

func TestModeTargets(t *testing.T) {
	targets, err := ModeDatabase.Targets()
	require.NoError(t, err)
	assert.Equal(t, []Target{TargetFullBackup, TargetAuthUsers}, targets)

	targets, err = ModeFull.Targets()
	require.NoError(t, err)
	assert.Len(t, targets, 6)

	_, err = Mode("weekly").Targets()
	assert.Error(t, err)
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, testTimestamp, FormatTimestamp(testClock()))
}

func TestBackupFull(t *testing.T) {
	dumper := &fakeDumper{}
	users := &fakeUsers{users: sampleUsers()}
	store := sampleStorage()
	om := newTestManager(t, WithDumper(dumper), WithStorage(store), WithUserStore(users.open))

	out := t.TempDir()
	res, err := om.Backup(context.Background(), ModeFull, out)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, testTimestamp), res.Dir)
	assert.True(t, res.Succeeded())
	assert.Len(t, res.Results, 6)
	assert.Equal(t, []database.DumpKind{database.DumpFull, database.DumpSchema, database.DumpData}, dumper.dumped)
	assert.Equal(t, 1, users.closed)

	for _, name := range []string{FullBackupFile, SchemaFile, DataFile, AuthUsersFile, RunConfigFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(res.Dir, name))
	}
	assert.FileExists(t, filepath.Join(res.Dir, StorageDir, "avatars", "2024", "01", "b.jpg"))
	assert.FileExists(t, filepath.Join(res.Dir, StorageDir, "docs", "handbook", "intro.md"))

	require.NotNil(t, res.Storage)
	assert.Equal(t, StorageCounts{Buckets: 2, ObjectsAttempted: 4, ObjectsSucceeded: 4}, *res.Storage)

	var entry storage.Bucket
	require.NoError(t, readJSON(filepath.Join(res.Dir, StorageDir, "avatars", BucketMetadataFile), &entry))
	assert.Equal(t, "avatars", entry.Name)
	assert.True(t, entry.Public)

	var rc RunConfig
	require.NoError(t, readJSON(filepath.Join(res.Dir, RunConfigFile), &rc))
	assert.Equal(t, RunConfig{
		ProjectID:     "abcd1234",
		URL:           "https://abcd1234.supabase.co",
		Timestamp:     testTimestamp,
		BackupVersion: "1.0.0",
		Database:      RunConfigDatabase{Host: "db.abcd1234.supabase.co", Port: 5432, Database: "postgres"},
	}, rc)
	raw, err := os.ReadFile(filepath.Join(res.Dir, RunConfigFile))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	m, err := LoadManifest(res.Dir)
	require.NoError(t, err)
	assert.Equal(t, testTimestamp, m.Timestamp)
	assert.Equal(t, "abcd1234", m.ProjectID)
	assert.Equal(t, res.Dir, m.BackupDir)
	assert.Equal(t, ModeFull, m.Mode)
	assert.Equal(t, res.Results, m.Results)
	assert.Equal(t, "test", m.ToolVersion)
}

func TestBackupTargetFailureDoesNotStopOthers(t *testing.T) {
	dumper := &fakeDumper{dumpErr: map[database.DumpKind]error{
		database.DumpSchema: errors.New("pg_dump: connection refused"),
	}}
	users := &fakeUsers{users: sampleUsers()}
	om := newTestManager(t, WithDumper(dumper), WithStorage(sampleStorage()), WithUserStore(users.open))

	res, err := om.Backup(context.Background(), ModeFull, t.TempDir())
	require.NoError(t, err)

	assert.False(t, res.Succeeded())
	assert.Equal(t, ArtifactSet{
		TargetFullBackup: true,
		TargetSchema:     false,
		TargetData:       true,
		TargetStorage:    true,
		TargetAuthUsers:  true,
		TargetConfig:     true,
	}, res.Results)
	assert.FileExists(t, filepath.Join(res.Dir, ManifestFile))
}

func TestBackupDatabaseModeRecordsOnlyAttemptedTargets(t *testing.T) {
	dumper := &fakeDumper{}
	users := &fakeUsers{users: sampleUsers()}
	om := newTestManager(t, WithDumper(dumper), WithUserStore(users.open))

	res, err := om.Backup(context.Background(), ModeDatabase, t.TempDir())
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	assert.Equal(t, ArtifactSet{TargetFullBackup: true, TargetAuthUsers: true}, res.Results)
	assert.NoDirExists(t, filepath.Join(res.Dir, StorageDir))
	assert.NoFileExists(t, filepath.Join(res.Dir, SchemaFile))

	raw, err := os.ReadFile(filepath.Join(res.Dir, ManifestFile))
	require.NoError(t, err)
	var doc struct {
		Results map[string]bool `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, map[string]bool{"fullBackup": true, "authUsers": true}, doc.Results)
}

func TestBackupAuthFailureFailsOnlyAuthTarget(t *testing.T) {
	users := &fakeUsers{listErr: errors.New("permission denied for schema auth")}
	om := newTestManager(t, WithDumper(&fakeDumper{}), WithUserStore(users.open))

	res, err := om.Backup(context.Background(), ModeDatabase, t.TempDir())
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, ArtifactSet{TargetFullBackup: true, TargetAuthUsers: false}, res.Results)
	assert.NoFileExists(t, filepath.Join(res.Dir, AuthUsersFile))
}

func TestBackupEmptyUserTableWritesEmptyArray(t *testing.T) {
	users := &fakeUsers{}
	om := newTestManager(t, WithDumper(&fakeDumper{}), WithUserStore(users.open))

	res, err := om.Backup(context.Background(), ModeDatabase, t.TempDir())
	require.NoError(t, err)
	raw, err := os.ReadFile(filepath.Join(res.Dir, AuthUsersFile))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestBackupStorageListFailure(t *testing.T) {
	store := sampleStorage()
	store.ListBucketsErr = errors.New("403 forbidden")
	om := newTestManager(t, WithStorage(store))

	res, err := om.Backup(context.Background(), ModeStorage, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ArtifactSet{TargetStorage: false}, res.Results)
	assert.False(t, res.Succeeded())
}

func TestBackupStorageItemFailuresAreCounted(t *testing.T) {
	store := sampleStorage()
	store.DownloadErrors["docs/terms.pdf"] = errors.New("timeout")
	store.ListErrors["avatars/2024"] = errors.New("throttled")
	om := newTestManager(t, WithStorage(store))

	res, err := om.Backup(context.Background(), ModeStorage, t.TempDir())
	require.NoError(t, err)

	assert.True(t, res.Succeeded())
	require.NotNil(t, res.Storage)
	assert.Equal(t, StorageCounts{Buckets: 2, ObjectsAttempted: 3, ObjectsSucceeded: 2}, *res.Storage)
	assert.NoFileExists(t, filepath.Join(res.Dir, StorageDir, "docs", "terms.pdf"))

	m, err := LoadManifest(res.Dir)
	require.NoError(t, err)
	assert.Equal(t, res.Storage, m.Storage)
}

func TestBackupSetupErrors(t *testing.T) {
	om := NewOperationManager(config.Config{}, nil)
	_, err := om.Backup(context.Background(), ModeConfig, t.TempDir())
	require.ErrorIs(t, err, config.ErrValidateConfig)

	cfg := testConfig(t)
	cfg.Database.Host = ""
	om = NewOperationManager(cfg, nil)
	out := t.TempDir()
	_, err = om.Backup(context.Background(), ModeDatabase, out)
	require.ErrorIs(t, err, config.ErrValidateConfig)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing is written before setup succeeds")
}

func TestBackupInterruptedLeavesNoManifest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	om := newTestManager(t, WithStorage(sampleStorage()))

	res, err := om.Backup(ctx, ModeStorage, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.NoFileExists(t, filepath.Join(res.Dir, ManifestFile))
}

func TestBackupNeverReusesAnExistingDirectory(t *testing.T) {
	out := t.TempDir()
	om := newTestManager(t, WithDumper(&fakeDumper{}), WithStorage(sampleStorage()), WithUserStore((&fakeUsers{}).open))

	first, err := om.Backup(context.Background(), ModeFull, out)
	require.NoError(t, err)
	require.True(t, first.Succeeded())

	second, err := om.Backup(context.Background(), ModeConfig, out)
	require.ErrorIs(t, err, ErrBackupExists)
	assert.Nil(t, second)

	m, err := LoadManifest(first.Dir)
	require.NoError(t, err)
	assert.Equal(t, ModeFull, m.Mode)
	assert.Len(t, m.Results, 6)
	assert.Empty(t, Verify(first.Dir).Issues)
}
