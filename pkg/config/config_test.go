package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into a clean directory so a stray tormsh.toml or .env in the
// package directory cannot leak into the test.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"TORM_DRIVER", "TORM_DSN", "DATABASE_URL", "TORM_FORMAT", "TORM_LOG_LEVEL", "TORM_AUTO_MIGRATE"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := chdir(t)
	clearEnv(t)

	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver = "postgres"
dsn = "postgres://localhost/pets"
auto_migrate = false
format = "json"
log_level = "debug"
prompt = "pets> "
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "postgres://localhost/pets", cfg.DSN)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "pets> ", cfg.Prompt)
	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	t.Setenv("TORM_FORMAT", "yaml")
	t.Setenv("DATABASE_URL", "postgres://db.internal/pets")
	t.Setenv("TORM_AUTO_MIGRATE", "true")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, "postgres://db.internal/pets", cfg.DSN)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoad_DotEnvAndEnvReference(t *testing.T) {
	dir := chdir(t)
	clearEnv(t)
	os.Unsetenv("PETS_DB")
	t.Cleanup(func() { os.Unsetenv("PETS_DB") })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PETS_DB=file:pets.db\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultPath), []byte(`dsn = 'env("PETS_DB")'`), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file:pets.db", cfg.DSN)
}

func TestLoad_Errors(t *testing.T) {
	dir := chdir(t)
	clearEnv(t)

	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	t.Setenv("TORM_DRIVER", "oracle")
	_, err = Load("")
	assert.ErrorContains(t, err, "unsupported driver")

	t.Setenv("TORM_DRIVER", "")
	t.Setenv("TORM_FORMAT", "xml")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid format")

	t.Setenv("TORM_FORMAT", "")
	t.Setenv("TORM_LOG_LEVEL", "loud")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestResolveDSN(t *testing.T) {
	t.Setenv("PETS_URL", "postgres://pets")

	got, err := ResolveDSN(`env("PETS_URL")`)
	require.NoError(t, err)
	assert.Equal(t, "postgres://pets", got)

	got, err = ResolveDSN(" pets.db ")
	require.NoError(t, err)
	assert.Equal(t, "pets.db", got)

	_, err = ResolveDSN(`env("NOT_SET_ANYWHERE")`)
	assert.Error(t, err)
}
