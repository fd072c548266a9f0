package operations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/sbackup/internal/config"
	"github.com/kebairia/sbackup/internal/logger"
)

const (
	vaultToken     = "s.test-token"
	vaultDBRole    = "database/creds/sbackup"
	vaultKVPath    = "secret/data/sbackup/storage"
	leasedUser     = "v-sbackup-5f2a"
	leasedPassword = "leased-password"
)

// vaultStub serves one database role and one KV v2 secret.
type vaultStub struct {
	*httptest.Server
	dbReads atomic.Int32
	kvReads atomic.Int32
}

func newVaultStub(t *testing.T) *vaultStub {
	t.Helper()
	stub := &vaultStub{}
	reply := func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		if r.Header.Get("X-Vault-Token") != vaultToken {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/"+vaultDBRole, func(w http.ResponseWriter, r *http.Request) {
		stub.dbReads.Add(1)
		reply(w, r, map[string]any{
			"lease_id":       vaultDBRole + "/abc",
			"lease_duration": 3600,
			"data":           map[string]any{"username": leasedUser, "password": leasedPassword},
		})
	})
	mux.HandleFunc("/v1/"+vaultKVPath, func(w http.ResponseWriter, r *http.Request) {
		stub.kvReads.Add(1)
		reply(w, r, map[string]any{
			"data": map[string]any{
				"data":     map[string]any{"access_key": "AKIAVAULT", "secret_key": "vault-secret"},
				"metadata": map[string]any{"version": 2},
			},
		})
	})
	stub.Server = httptest.NewServer(mux)
	t.Cleanup(stub.Close)
	return stub
}

func vaultConfig(t *testing.T, addr, token string) config.Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Vault = config.VaultConfig{Address: addr, Token: token}
	cfg.Database.User = ""
	cfg.Database.Password = ""
	cfg.Database.PgDumpPath = "pg_dump"
	cfg.Database.PsqlPath = "psql"
	cfg.Database.VaultRole = vaultDBRole
	cfg.Storage = config.StorageConfig{
		Driver:       "s3",
		Endpoint:     "http://127.0.0.1:9000",
		Region:       "us-east-1",
		UsePathStyle: true,
		VaultPath:    vaultKVPath,
	}
	return cfg
}

func TestResolveSecretsFromVault(t *testing.T) {
	stub := newVaultStub(t)
	om := NewOperationManager(vaultConfig(t, stub.URL, vaultToken), logger.Nop())
	ctx := context.Background()

	require.NoError(t, om.requireDumper(ctx))
	assert.Equal(t, leasedUser, om.cfg.Database.User)
	assert.Equal(t, leasedPassword, om.cfg.Database.Password)
	assert.Equal(t, "AKIAVAULT", om.cfg.Storage.AccessKey)
	assert.Equal(t, "vault-secret", om.cfg.Storage.SecretKey)

	require.NoError(t, om.requireStorage(ctx))
	require.NoError(t, om.requireUsers(ctx))
	assert.NotNil(t, om.provider)
	assert.EqualValues(t, 1, stub.dbReads.Load(), "credentials are leased once per manager")
	assert.EqualValues(t, 1, stub.kvReads.Load())
}

func TestResolveSecretsVaultDenied(t *testing.T) {
	stub := newVaultStub(t)
	om := NewOperationManager(vaultConfig(t, stub.URL, "wrong-token"), logger.Nop())

	err := om.requireDumper(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get database credentials from vault")
	assert.Nil(t, om.dumper)
	assert.Empty(t, om.cfg.Database.Password)
}

func TestResolveSecretsWithoutVault(t *testing.T) {
	cfg := vaultConfig(t, "", "")
	om := NewOperationManager(cfg, logger.Nop())

	err := om.requireDumper(context.Background())
	require.ErrorIs(t, err, config.ErrValidateConfig, "credentials stay empty without a vault address")
}
