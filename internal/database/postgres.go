package database

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/logger"
)

const EnginePostgres = "postgres"

// DumpKind selects what pg_dump captures.
type DumpKind string

const (
	DumpFull   DumpKind = "full"
	DumpSchema DumpKind = "schema"
	DumpData   DumpKind = "data"
)

// PostgresOption lets you override default settings on a Postgres.
type PostgresOption func(*Postgres)

// Postgres dumps and replays a PostgreSQL database as plain SQL files using
// pg_dump and psql.
type Postgres struct {
	Username    string
	Password    string
	Database    string
	Host        string
	Port        string
	SSLMode     string
	PgDumpPath  string
	PsqlPath    string
	StopOnError bool
	Timeout     time.Duration
	Logger      logger.Logger
}

// NewPostgres returns a Postgres configured from cfg plus any overrides.
func NewPostgres(cfg config.DatabaseConfig, log logger.Logger, opts ...PostgresOption) *Postgres {
	p := &Postgres{
		Username:    cfg.User,
		Password:    cfg.Password,
		Database:    cfg.Name,
		Host:        cfg.Host,
		Port:        strconv.Itoa(cfg.Port),
		SSLMode:     cfg.SSLMode,
		PgDumpPath:  cfg.PgDumpPath,
		PsqlPath:    cfg.PsqlPath,
		StopOnError: cfg.StopOnError,
		Timeout:     cfg.Timeout,
		Logger:      log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithPostgresCredentials sets username and password.
func WithPostgresCredentials(user, pass string) PostgresOption {
	return func(p *Postgres) {
		if user != "" {
			p.Username = user
		}
		if pass != "" {
			p.Password = pass
		}
	}
}

// WithPostgresTimeout overrides the per-command timeout.
func WithPostgresTimeout(timeout time.Duration) PostgresOption {
	return func(p *Postgres) {
		if timeout > 0 {
			p.Timeout = timeout
		}
	}
}

func (p *Postgres) connArgs() []string {
	return []string{
		"-h", p.Host,
		"-p", p.Port,
		"-U", p.Username,
		"-d", p.Database,
	}
}

func (p *Postgres) env() []string {
	// Pass PGPASSWORD for non-interactive auth
	env := append(os.Environ(), "PGPASSWORD="+p.Password)
	if p.SSLMode != "" {
		env = append(env, "PGSSLMODE="+p.SSLMode)
	}
	return env
}

func (p *Postgres) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, p.Timeout, ErrTimeout)
}

// Dump runs pg_dump and writes a plain SQL file to outputPath. Ownership and
// privilege statements are left out so the file replays into another
// project.
func (p *Postgres) Dump(ctx context.Context, kind DumpKind, outputPath string) error {
	log := p.Logger
	ctx, cancel := p.commandContext(ctx)
	defer cancel()

	args := append(p.connArgs(), "--no-owner", "--no-acl")
	switch kind {
	case DumpSchema:
		args = append(args, "--schema-only")
	case DumpData:
		args = append(args, "--data-only")
	case DumpFull:
	default:
		return fmt.Errorf("%w: unknown dump kind %q", ErrDumpFailed, kind)
	}
	args = append(args, "-f", outputPath)

	cmd := exec.CommandContext(ctx, p.PgDumpPath, args...)
	cmd.Env = p.env()
	cmd.Stdout = io.Discard
	cmd.Stderr = os.Stderr

	log.Info("dump started",
		"database", p.Database,
		"engine", EnginePostgres,
		"kind", string(kind),
		"path", outputPath,
	)
	startTime := time.Now()
	if err := cmd.Run(); err != nil {
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			err = cause
		}
		return fmt.Errorf("%w: pg_dump (%s): %w", ErrDumpFailed, kind, err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("%w: pg_dump (%s) produced no file: %w", ErrDumpFailed, kind, err)
	}

	log.Info("dump completed",
		"database", p.Database,
		"engine", EnginePostgres,
		"kind", string(kind),
		"path", outputPath,
		"duration", time.Since(startTime).String(),
	)
	return nil
}

// Replay feeds a plain SQL file to psql.
func (p *Postgres) Replay(ctx context.Context, sqlFile string) error {
	log := p.Logger
	ctx, cancel := p.commandContext(ctx)
	defer cancel()

	if _, err := os.Stat(sqlFile); err != nil {
		return fmt.Errorf("%w: backup file %q not found: %w", ErrReplayFailed, sqlFile, err)
	}

	args := p.connArgs()
	if p.StopOnError {
		args = append(args, "-v", "ON_ERROR_STOP=1")
	}
	args = append(args, "-f", sqlFile)

	cmd := exec.CommandContext(ctx, p.PsqlPath, args...)
	cmd.Env = p.env()
	cmd.Stdout = io.Discard // I don't want to see the restoring output of postgres
	cmd.Stderr = os.Stderr

	log.Info("replay started",
		"database", p.Database,
		"engine", EnginePostgres,
		"source", sqlFile,
	)
	startTime := time.Now()
	if err := cmd.Run(); err != nil {
		if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
			err = cause
		}
		return fmt.Errorf("%w: psql: %w", ErrReplayFailed, err)
	}

	log.Info("replay completed",
		"database", p.Database,
		"engine", EnginePostgres,
		"source", sqlFile,
		"duration", time.Since(startTime).String(),
	)
	return nil
}
