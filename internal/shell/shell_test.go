package shell

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TechXTT/tormsh/models"
	"github.com/TechXTT/tormsh/pkg/torm"
)

func newTestShell(t *testing.T, opts ...Option) (*Shell, *bytes.Buffer) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := torm.Open("sqlite3", filepath.Join(t.TempDir(), "pets.db"), torm.WithLogger(log))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate(context.Background(), &models.Pet{}))

	var out bytes.Buffer
	opts = append([]Option{WithOutput(&out), WithLogger(log)}, opts...)
	sh := New(db, opts...)
	t.Cleanup(sh.Close)
	for name, proto := range models.All() {
		require.NoError(t, sh.Register(name, proto))
	}
	return sh, &out
}

const transcript = `
fido = Pet.new{name = "Fido", species = "Dog"}
whiskers = Pet.new{name = "Whiskers", species = "Cat"}
session.add(fido)
session:add(whiskers)
session.pending()
session.commit()
fido
fido.id
Pet.query.count()
Pet.query.all()
Pet.query.filter_by{species = "Cat"}.all()
fido.name = "Fido the mighty"
session.state(fido)
session.add(fido)
session.commit()
Pet.query.get(1).name
Pet.query.get(42)
fido.id = 7
fido.age = 1.5
session.delete(fido)
session.commit()
session.state(fido)
Pet.query:all()
Pet.query.count()
for _, p in ipairs(Pet.query.all()) do
  print(p.name, p.species)
end
`

func TestRun_PetTranscript(t *testing.T) {
	sh, out := newTestShell(t)

	require.NoError(t, sh.Run(context.Background(), strings.NewReader(transcript)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "pet_transcript", out.Bytes())
}

func TestRun_Prompt(t *testing.T) {
	sh, out := newTestShell(t, WithPrompt(">>> "))

	require.NoError(t, sh.Run(context.Background(), strings.NewReader("x = 1\nif x then\nprint(x) end\n")))
	assert.Equal(t, ">>> >>> ... 1\n>>> ", out.String())
}

func TestRun_UnfinishedInput(t *testing.T) {
	sh, out := newTestShell(t)

	require.NoError(t, sh.Run(context.Background(), strings.NewReader("print(\n")))
	assert.Equal(t, "error: unexpected end of input\n", out.String())
}

func TestExec_DoesNotEcho(t *testing.T) {
	sh, out := newTestShell(t)

	err := sh.Exec(context.Background(), `
local rex = Pet.new{name = "Rex", species = "Dog", age = 3}
db.session:add(rex)
db.session.commit()
Pet.query.count()
print(rex.id, rex.name, rex.age)
`)
	require.NoError(t, err)
	assert.Equal(t, "1\tRex\t3\n", out.String())
}

func TestEval_JSONAndYAML(t *testing.T) {
	sh, out := newTestShell(t, WithFormat(JSON))
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, `session.add(Pet.new{name = "Fido", species = "Dog"}) session.commit()`))

	require.NoError(t, sh.Eval(ctx, "Pet.query.first()"))
	assert.JSONEq(t, `{"id": 1, "name": "Fido", "species": "Dog", "age": 0}`, out.String())

	out.Reset()
	require.NoError(t, sh.Eval(ctx, `format("yaml")`))
	require.NoError(t, sh.Eval(ctx, "Pet.query.all()"))
	assert.Equal(t, "- id: 1\n  name: Fido\n  species: Dog\n  age: 0\n", out.String())

	out.Reset()
	require.NoError(t, sh.Eval(ctx, "format()"))
	assert.Equal(t, "yaml\n", out.String())

	assert.Error(t, sh.Eval(ctx, `format("xml")`))
}

func TestEval_FailedCommitKeepsPendingChanges(t *testing.T) {
	sh, out := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, `session.add(Pet.new{name = "Fido", species = "Dog"}) session.commit()`))
	require.NoError(t, sh.Exec(ctx, `imposter = Pet.new{name = "Fido", species = "Cat"} session.add(imposter)`))

	err := sh.Eval(ctx, "session.commit()")
	assert.ErrorIs(t, err, torm.ErrUniqueViolation)

	require.NoError(t, sh.Eval(ctx, "session.pending()"))
	require.NoError(t, sh.Eval(ctx, "imposter.id"))
	require.NoError(t, sh.Eval(ctx, "session.rollback()"))
	require.NoError(t, sh.Eval(ctx, "session:pending()"))
	assert.Equal(t, "1\n0\n0\n", out.String())
}

func TestEval_Errors(t *testing.T) {
	sh, _ := newTestShell(t)
	ctx := context.Background()

	err := sh.Eval(ctx, `Pet.new{color = "red"}`)
	assert.ErrorContains(t, err, `Pet has no field "color"`)

	err = sh.Eval(ctx, `Pet.new{name = 7}`)
	assert.ErrorContains(t, err, "Pet.name expects a string, got number")

	err = sh.Eval(ctx, `Pet.query.filter_by{color = "red"}.all()`)
	assert.ErrorIs(t, err, torm.ErrUnknownColumn)

	err = sh.Eval(ctx, `session.add(Pet.new{name = "Rex", species = "Dog", age = -1})`)
	assert.ErrorContains(t, err, "invalid Pet: age cannot be negative")

	err = sh.Eval(ctx, `session.add(Pet.new{name = "Rex"})`)
	assert.ErrorIs(t, err, torm.ErrMissingField)

	err = sh.Eval(ctx, `session.delete(Pet.new{name = "Rex", species = "Dog"})`)
	assert.ErrorIs(t, err, torm.ErrNotPersisted)

	err = sh.Eval(ctx, "session.update(Pet.new{name = \"Rex\", species = \"Dog\"})")
	assert.ErrorIs(t, err, torm.ErrNotPersisted)

	err = sh.Eval(ctx, "this is not lua")
	assert.Error(t, err)
}

func TestEval_QueryBuilders(t *testing.T) {
	sh, out := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, `
for _, name in ipairs({"Rex", "Fido", "Bella"}) do
  session.add(Pet.new{name = name, species = "Dog"})
end
session.add(Pet.new{name = "Whiskers", species = "Cat"})
session.commit()
`))

	for _, stmt := range []string{
		`Pet.query.order_by("name").limit(2).all()`,
		`Pet.query:order_by("name", "desc"):first()`,
		`Pet.query.filter_by{species = "Dog"}.count()`,
		`Pet.query.filter_by{species = "Dog"}.delete()`,
		`session.pending()`,
		`Pet.query.count()`,
		`session.commit()`,
		`Pet.query.all()`,
		`db.exec("UPDATE pets SET age = age + ? WHERE species = ?", 2, "Cat")`,
		`Pet.query.first().age`,
		`db.driver`,
	} {
		require.NoError(t, sh.Eval(ctx, stmt), stmt)
	}
	assert.Equal(t, strings.Join([]string{
		"[<Pet Bella>, <Pet Fido>]",
		"<Pet Whiskers>",
		"3",
		"3",
		"1",
		"4",
		"[<Pet Whiskers>]",
		"1",
		"2",
		"sqlite3",
	}, "\n")+"\n", out.String())
}

func TestEval_LimitedDeleteRemovesOnlyThePage(t *testing.T) {
	sh, out := newTestShell(t)
	ctx := context.Background()

	require.NoError(t, sh.Exec(ctx, `
for _, name in ipairs({"Rex", "Fido", "Bella", "Whiskers"}) do
  session.add(Pet.new{name = name, species = "Dog"})
end
session.commit()
`))

	for _, stmt := range []string{
		`Pet.query.order_by("name").offset(1).limit(2).all()`,
		`Pet.query.offset(3).all()`,
		`Pet.query.limit(2).count()`,
		`Pet.query.limit(1).delete()`,
		`session.commit()`,
		`Pet.query.count()`,
		`Pet.query.order_by("name", "desc").limit(2).delete()`,
		`session.commit()`,
		`Pet.query.all()`,
	} {
		require.NoError(t, sh.Eval(ctx, stmt), stmt)
	}
	assert.Equal(t, strings.Join([]string{
		"[<Pet Fido>, <Pet Rex>]",
		"[<Pet Whiskers>]",
		"2",
		"1",
		"3",
		"2",
		"[<Pet Bella>]",
	}, "\n")+"\n", out.String())
}

func TestEval_NumbersMustFitTheField(t *testing.T) {
	sh, out := newTestShell(t)
	ctx := context.Background()
	require.NoError(t, sh.Exec(ctx, `rex = Pet.new{name = "Rex", species = "Dog", age = 3}`))

	for _, stmt := range []string{
		"rex.age = math.huge",
		"rex.age = -math.huge",
		"rex.age = 2^63",
		`Pet.new{name = "Max", species = "Dog", age = math.huge}`,
	} {
		assert.ErrorContains(t, sh.Eval(ctx, stmt), "is out of range", stmt)
	}
	assert.ErrorContains(t, sh.Eval(ctx, "rex.age = 0/0"), "Pet.age expects an integer")

	require.NoError(t, sh.Eval(ctx, "rex.age"))
	require.NoError(t, sh.Eval(ctx, "session.add(rex)"))
	require.NoError(t, sh.Eval(ctx, "session.commit()"))
	require.NoError(t, sh.Eval(ctx, "Pet.query.filter_by{age = math.huge}.count()"))
	assert.Equal(t, "3\n0\n", out.String())
}

func TestText_PlainRecordsAndTables(t *testing.T) {
	type Toy struct {
		ID    int64
		Label string
	}
	sh, out := newTestShell(t)
	require.NoError(t, sh.Register("Toy", &Toy{}))

	require.NoError(t, sh.Eval(context.Background(), `Toy.new{label = "ball"}`))
	require.NoError(t, sh.Eval(context.Background(), `{b = 2, a = "x"}`))
	require.NoError(t, sh.Eval(context.Background(), `{}`))
	assert.Equal(t, "<Toy id=0 label=ball>\n{a = \"x\", b = 2}\n[]\n", out.String())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}
