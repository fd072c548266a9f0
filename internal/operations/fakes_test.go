package operations

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/database"
	"github.com/kebairia/sbackup/internal/logger"
)

var testClock = func() time.Time {
	return time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
}

const testTimestamp = "2024-01-15T10-30-00"

// fakeDumper writes a small SQL file per dump and records replays.
type fakeDumper struct {
	dumpErr   map[database.DumpKind]error
	replayErr map[string]error
	dumped    []database.DumpKind
	replayed  []string
}

func (f *fakeDumper) Dump(ctx context.Context, kind database.DumpKind, outputPath string) error {
	f.dumped = append(f.dumped, kind)
	if err := f.dumpErr[kind]; err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("-- "+string(kind)+" dump\n"), 0o644)
}

func (f *fakeDumper) Replay(ctx context.Context, sqlFile string) error {
	name := filepath.Base(sqlFile)
	f.replayed = append(f.replayed, name)
	return f.replayErr[name]
}

// fakeUsers is an in-memory auth.users table.
type fakeUsers struct {
	users     []database.AuthUser
	listErr   error
	upsertErr map[uuid.UUID]error
	upserted  map[uuid.UUID]database.AuthUser
	opened    int
	closed    int
}

func (f *fakeUsers) open(ctx context.Context) (UserStore, error) {
	f.opened++
	return f, nil
}

func (f *fakeUsers) ListUsers(ctx context.Context) ([]database.AuthUser, error) {
	return f.users, f.listErr
}

func (f *fakeUsers) UpsertUser(ctx context.Context, u database.AuthUser) error {
	if err := f.upsertErr[u.ID]; err != nil {
		return err
	}
	if f.upserted == nil {
		f.upserted = map[uuid.UUID]database.AuthUser{}
	}
	f.upserted[u.ID] = u
	return nil
}

func (f *fakeUsers) Close(ctx context.Context) error {
	f.closed++
	return nil
}

func strPtr(s string) *string { return &s }

func sampleUsers() []database.AuthUser {
	created := time.Date(2023, 5, 1, 8, 0, 0, 0, time.UTC)
	return []database.AuthUser{
		{ID: uuid.New(), Email: strPtr("ada@example.com"), Role: strPtr("authenticated"), CreatedAt: &created},
		{ID: uuid.New(), Email: strPtr("linus@example.com"), Role: strPtr("authenticated"), CreatedAt: &created},
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Project: config.ProjectConfig{ID: "abcd1234", URL: "https://abcd1234.supabase.co"},
		Backup:  config.BackupConfig{OutputDirectory: t.TempDir()},
		Database: config.DatabaseConfig{
			Host:     "db.abcd1234.supabase.co",
			Port:     5432,
			Name:     "postgres",
			User:     "postgres",
			Password: "secret",
		},
	}
}

func newTestManager(t *testing.T, opts ...Option) *OperationManager {
	t.Helper()
	opts = append([]Option{WithClock(testClock), WithVersion("test")}, opts...)
	return NewOperationManager(testConfig(t), logger.Nop(), opts...)
}
