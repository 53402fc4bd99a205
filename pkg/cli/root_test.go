package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func testDSN(t *testing.T) string {
	t.Helper()
	for _, k := range []string{"TORM_DRIVER", "TORM_DSN", "DATABASE_URL", "TORM_FORMAT", "TORM_LOG_LEVEL", "TORM_AUTO_MIGRATE"} {
		t.Setenv(k, "")
	}
	return filepath.Join(t.TempDir(), "pets.db")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "tormsh "+Version+"\n", out)
}

func TestInit(t *testing.T) {
	dsn := testDSN(t)

	out, err := run(t, "", "init", "--dsn", dsn)
	require.NoError(t, err)
	assert.Equal(t, "created tables: pets\n", out)

	out, err = run(t, "", "init", "--dry-run", "--driver", "postgres", "--dsn", "postgres://localhost/pets")
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS pets (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL UNIQUE, species TEXT NOT NULL, age BIGINT NOT NULL DEFAULT 0);\n", out)
}

func TestExec_Statements(t *testing.T) {
	dsn := testDSN(t)

	out, err := run(t, "", "exec", "--dsn", dsn,
		"-e", `session.add(Pet.new{name = "Fido", species = "Dog"})`,
		"-e", `session.add(Pet.new{name = "Whiskers", species = "Cat"})`,
		"-e", "session.commit()",
		"-e", "Pet.query.all()",
	)
	require.NoError(t, err)
	assert.Equal(t, "[<Pet Fido>, <Pet Whiskers>]\n", out)

	// Uncommitted changes from a previous run are gone.
	out, err = run(t, "", "exec", "--dsn", dsn, "--format", "json",
		"-e", `session.add(Pet.new{name = "Rex", species = "Dog"})`,
		"-e", `Pet.query.filter_by{species = "Cat"}.first()`,
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 2, "name": "Whiskers", "species": "Cat", "age": 0}`, out)

	out, err = run(t, "", "exec", "--dsn", dsn, "-e", "Pet.query.count()")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestExec_Script(t *testing.T) {
	dsn := testDSN(t)
	script := filepath.Join(t.TempDir(), "seed.lua")
	require.NoError(t, os.WriteFile(script, []byte(`
for _, name in ipairs({"Rex", "Bella"}) do
  session.add(Pet.new{name = name, species = "Dog"})
end
session.commit()
print(Pet.query.count())
`), 0o644))

	out, err := run(t, "", "exec", "--dsn", dsn, script)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, err = run(t, `print(Pet.query.order_by("name").first().name)`, "exec", "--dsn", dsn, "-")
	require.NoError(t, err)
	assert.Equal(t, "Bella\n", out)
}

func TestExec_Errors(t *testing.T) {
	dsn := testDSN(t)

	_, err := run(t, "", "exec", "--dsn", dsn)
	assert.ErrorContains(t, err, "nothing to run")

	_, err = run(t, "", "exec", "--dsn", dsn, "-e", `session.add(Pet.new{name = "Rex"})`)
	assert.ErrorContains(t, err, "missing required field")

	_, err = run(t, "", "exec", "--driver", "oracle", "--dsn", dsn, "-e", "1")
	assert.ErrorContains(t, err, "unsupported driver")

	_, err = run(t, "", "exec", "--dsn", dsn, "--format", "xml", "-e", "1")
	assert.ErrorContains(t, err, "invalid format")
}

func TestShell_ReadsStdin(t *testing.T) {
	dsn := testDSN(t)

	in := strings.Join([]string{
		`rex = Pet.new{name = "Rex", species = "Dog"}`,
		`session.add(rex)`,
		`session.commit()`,
		`rex.id`,
		`rex.owner`,
		`Pet.query.count()`,
	}, "\n")
	out, err := run(t, in, "shell", "--dsn", dsn, "--prompt", "")
	require.NoError(t, err)
	assert.Equal(t, "1\nerror: Pet has no field \"owner\"\n1\n", out)
}
