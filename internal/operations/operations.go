// Package operations runs backups, restores and verification of a hosted
// project: SQL dumps, object storage buckets, auth users and run config.
package operations

import (
	"context"
	"fmt"
	"time"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/database"
	"github.com/kebairia/sbackup/internal/logger"
	"github.com/kebairia/sbackup/internal/storage"
	"github.com/kebairia/sbackup/internal/vault"
)

// Dumper produces and replays plain SQL dumps.
type Dumper interface {
	Dump(ctx context.Context, kind database.DumpKind, outputPath string) error
	Replay(ctx context.Context, sqlFile string) error
}

// UserStore reads and writes the authentication user table.
type UserStore interface {
	ListUsers(ctx context.Context) ([]database.AuthUser, error)
	UpsertUser(ctx context.Context, u database.AuthUser) error
	Close(ctx context.Context) error
}

// UserStoreOpener opens a connection for one backup or restore step.
type UserStoreOpener func(ctx context.Context) (UserStore, error)

// Option overrides a collaborator of an OperationManager.
type Option func(*OperationManager)

// WithDumper sets the SQL dump collaborator.
func WithDumper(d Dumper) Option {
	return func(om *OperationManager) { om.dumper = d }
}

// WithStorage sets the object storage provider.
func WithStorage(p storage.Provider) Option {
	return func(om *OperationManager) { om.provider = p }
}

// WithUserStore sets how the auth user table is reached.
func WithUserStore(open UserStoreOpener) Option {
	return func(om *OperationManager) { om.openUsers = open }
}

// WithClock sets the time source used for backup timestamps.
func WithClock(now func() time.Time) Option {
	return func(om *OperationManager) { om.now = now }
}

// WithVersion sets the tool version recorded in manifests.
func WithVersion(v string) Option {
	return func(om *OperationManager) { om.version = v }
}

// OperationManager manages the backup and restore operations of one
// project. Collaborators not supplied as options are built from the
// configuration the first time a run needs them.
type OperationManager struct {
	cfg config.Config
	log logger.Logger

	dumper    Dumper
	provider  storage.Provider
	openUsers UserStoreOpener

	now     func() time.Time
	version string

	secretsResolved bool
}

// NewOperationManager returns a manager for cfg.
func NewOperationManager(cfg config.Config, log logger.Logger, opts ...Option) *OperationManager {
	om := &OperationManager{
		cfg: cfg,
		log: log,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(om)
	}
	return om
}

// resolveSecrets replaces configured credentials with those held in Vault
// when a Vault address is set.
func (om *OperationManager) resolveSecrets(ctx context.Context) error {
	if om.secretsResolved || om.cfg.Vault.Address == "" {
		return nil
	}
	if om.cfg.Database.VaultRole == "" && om.cfg.Storage.VaultPath == "" {
		om.secretsResolved = true
		return nil
	}

	vaultOpts := []vault.Option{
		vault.WithAddress(om.cfg.Vault.Address),
		vault.WithToken(om.cfg.Vault.Token),
		vault.WithAppRole(om.cfg.Vault.RoleID, om.cfg.Vault.RoleName),
	}
	client, err := vault.NewClient(ctx, vaultOpts...)
	if err != nil {
		return fmt.Errorf("vault client init: %w", err)
	}

	if role := om.cfg.Database.VaultRole; role != "" {
		creds, err := client.GetDynamicCredentials(ctx, role)
		if err != nil {
			return fmt.Errorf("get database credentials from vault: %w", err)
		}
		om.cfg.Database.User = creds.Username
		om.cfg.Database.Password = creds.Password
		om.log.Info("database credentials leased from vault", "role", role, "ttl", creds.TTL.String())
	}
	if path := om.cfg.Storage.VaultPath; path != "" {
		creds, err := client.GetStorageCredentials(ctx, path)
		if err != nil {
			return fmt.Errorf("get storage credentials from vault: %w", err)
		}
		om.cfg.Storage.AccessKey = creds.AccessKey
		om.cfg.Storage.SecretKey = creds.SecretKey
	}
	om.secretsResolved = true
	return nil
}

func (om *OperationManager) requireDumper(ctx context.Context) error {
	if om.dumper != nil {
		return nil
	}
	if err := om.resolveSecrets(ctx); err != nil {
		return err
	}
	if err := om.cfg.ValidateDatabase(); err != nil {
		return err
	}
	om.dumper = database.NewPostgres(om.cfg.Database, om.log)
	return nil
}

func (om *OperationManager) requireUsers(ctx context.Context) error {
	if om.openUsers != nil {
		return nil
	}
	if err := om.resolveSecrets(ctx); err != nil {
		return err
	}
	if err := om.cfg.ValidateDatabase(); err != nil {
		return err
	}
	dbCfg := om.cfg.Database
	om.openUsers = func(ctx context.Context) (UserStore, error) {
		store, err := database.OpenAuthStore(ctx, dbCfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil
}

func (om *OperationManager) requireStorage(ctx context.Context) error {
	if om.provider != nil {
		return nil
	}
	if err := om.resolveSecrets(ctx); err != nil {
		return err
	}
	if err := om.cfg.ValidateStorage(); err != nil {
		return err
	}
	p, err := storage.NewProvider(om.cfg.Storage, om.log)
	if err != nil {
		return fmt.Errorf("init storage provider: %w", err)
	}
	om.provider = p
	return nil
}
