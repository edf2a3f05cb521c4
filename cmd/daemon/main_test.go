// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/restream/internal/config"
	"github.com/ManuGH/restream/internal/store/sqlite"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigValidate(t *testing.T) {
	var out, errOut bytes.Buffer

	good := writeFile(t, "config.yaml", "server:\n  listen: \":9090\"\n")
	assert.Equal(t, 0, configCLI([]string{"validate", "-f", good}, &out, &errOut, envMap(nil)))
	assert.Contains(t, out.String(), "is valid")

	bad := writeFile(t, "config.yaml", "server:\n  lisen: \":9090\"\n")
	errOut.Reset()
	assert.Equal(t, 1, configCLI([]string{"validate", "--file", bad}, &out, &errOut, envMap(nil)))
	assert.Contains(t, errOut.String(), "lisen")
}

func TestConfigDumpRedactsSecrets(t *testing.T) {
	var out, errOut bytes.Buffer
	env := envMap(map[string]string{
		"RESTREAM_REDIS_PASSWORD": "hunter2",
		"RESTREAM_STORE_DRIVER":   "memory",
	})

	require.Equal(t, 0, configCLI([]string{"dump"}, &out, &errOut, env), errOut.String())
	assert.NotContains(t, out.String(), "hunter2")
	assert.Contains(t, out.String(), redacted)
	assert.Contains(t, out.String(), "driver: memory")

	out.Reset()
	require.Equal(t, 0, configCLI([]string{"dump", "--format", "json"}, &out, &errOut, env))
	assert.Contains(t, out.String(), `"Driver": "memory"`)

	assert.Equal(t, 2, configCLI([]string{"dump", "--format", "toml"}, &out, &errOut, env))
}

func TestConfigUnknownSubcommand(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, configCLI([]string{"frobnicate"}, &out, &errOut, envMap(nil)))
	assert.Contains(t, errOut.String(), "Unknown subcommand")
	assert.Equal(t, 0, configCLI(nil, &out, &errOut, envMap(nil)))
}

func TestStorageVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restream.db")
	st, err := sqlite.New(path, sqlite.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	for _, mode := range []string{"quick", "full"} {
		t.Run(mode, func(t *testing.T) {
			var out, errOut bytes.Buffer
			code := storageCLI([]string{"verify", "--path", path, "--mode", mode}, &out, &errOut)
			assert.Equal(t, 0, code, errOut.String())
			assert.Contains(t, out.String(), "ok")
		})
	}
}

func TestStorageVerifyUsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, storageCLI([]string{"verify"}, &out, &errOut))
	assert.Equal(t, 2, storageCLI([]string{"verify", "--path", "x.db", "--mode", "deep"}, &out, &errOut))
	assert.Equal(t, 2, storageCLI([]string{"verify", "--path", filepath.Join(t.TempDir(), "missing.db")}, &out, &errOut))
	assert.Equal(t, 2, storageCLI([]string{"repair"}, &out, &errOut))
}

func TestHealthcheck(t *testing.T) {
	var ready atomic.Bool
	ready.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/readyz":
			if ready.Load() {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var out, errOut bytes.Buffer
	assert.Equal(t, 0, healthcheckCLI([]string{"--addr", srv.URL}, &out, &errOut))
	assert.Contains(t, out.String(), "ready")

	ready.Store(false)
	assert.Equal(t, 1, healthcheckCLI([]string{"--addr", srv.URL}, &out, &errOut))
	assert.Contains(t, errOut.String(), "503")
	assert.Equal(t, 0, healthcheckCLI([]string{"--addr", srv.URL, "--mode", "live"}, &out, &errOut))
}

func TestOpenBackendMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.StoreMemory

	be, err := openBackend(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, be.Close(context.Background())) })

	assert.NotNil(t, be.accounts)
	assert.NotNil(t, be.assets)
	assert.NotNil(t, be.sessions)
	assert.NotNil(t, be.activity)
	assert.Empty(t, be.checks)
}

func TestOpenBackendSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = config.StoreSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "restream.db")
	cfg.Store.VerifyOnStart = true

	be, err := openBackend(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, be.Close(context.Background())) })

	require.Len(t, be.checks, 1)
	res := be.checks[0].Check(context.Background())
	assert.Equal(t, "store", be.checks[0].Name())
	assert.Empty(t, res.Error)
}
