// Package shell is the interactive statement surface over a torm session.
// Statements are Lua. Each registered model becomes a global table and the
// session is exposed as `session` (and `db.session`).
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/TechXTT/tormsh/pkg/torm"
)

// Shell evaluates statements against one long-lived session. A Shell is not
// safe for concurrent use.
type Shell struct {
	L      *lua.LState
	db     *torm.DB
	sess   *torm.Session
	out    io.Writer
	format Format
	prompt string
	log    *slog.Logger

	// lastErr is the Go error behind the most recent raised Lua error, so
	// callers can still match it with errors.Is.
	lastErr error
}

// Option configures a Shell.
type Option func(*Shell)

// WithOutput sets where results are written. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(s *Shell) { s.out = w }
}

// WithFormat sets the result format.
func WithFormat(f Format) Option {
	return func(s *Shell) { s.format = f }
}

// WithPrompt sets the prompt printed by Run before each statement. An empty
// prompt prints nothing.
func WithPrompt(p string) Option {
	return func(s *Shell) { s.prompt = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Shell) { s.log = l }
}

// New creates a shell with a fresh session on db.
func New(db *torm.DB, opts ...Option) *Shell {
	s := &Shell{
		db:     db,
		sess:   db.Session(),
		out:    os.Stdout,
		format: Text,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	s.L = L

	s.registerRecordType()
	s.registerGlobals()
	return s
}

// Session returns the session statements operate on.
func (s *Shell) Session() *torm.Session { return s.sess }

// Close releases the Lua state. The database is left open.
func (s *Shell) Close() {
	s.L.Close()
}

// Eval runs a single statement. When the statement is an expression its
// values are written to the output, the way an interactive interpreter echoes
// them.
func (s *Shell) Eval(ctx context.Context, src string) error {
	fn, err := s.L.LoadString("return " + src)
	if err != nil {
		fn, err = s.L.LoadString(src)
		if err != nil {
			return syntaxError(err)
		}
	}
	return s.call(ctx, fn, true)
}

// Exec runs a chunk of statements without echoing values. Output only comes
// from print.
func (s *Shell) Exec(ctx context.Context, src string) error {
	fn, err := s.L.LoadString(src)
	if err != nil {
		return syntaxError(err)
	}
	return s.call(ctx, fn, false)
}

// Run reads statements from in until EOF. Input that ends mid-statement is
// buffered until it parses. Errors are reported on the output and the loop
// continues.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	var buf strings.Builder

	s.showPrompt(false)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		if buf.Len() == 0 && strings.TrimSpace(line) == "" {
			s.showPrompt(false)
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)

		err := s.Eval(ctx, buf.String())
		if err != nil && incomplete(err) {
			s.showPrompt(true)
			continue
		}
		buf.Reset()
		if err != nil {
			s.report(err)
		}
		s.showPrompt(false)
	}
	if buf.Len() > 0 {
		s.report(errors.New("unexpected end of input"))
	}
	return sc.Err()
}

func (s *Shell) report(err error) {
	s.log.Debug("statement failed", "session", s.sess.ID().String(), "err", err)
	fmt.Fprintf(s.out, "error: %s\n", err)
}

func (s *Shell) showPrompt(continued bool) {
	if s.prompt == "" {
		return
	}
	if continued {
		fmt.Fprint(s.out, strings.Repeat(".", len(strings.TrimRight(s.prompt, " ")))+" ")
		return
	}
	fmt.Fprint(s.out, s.prompt)
}

func (s *Shell) call(ctx context.Context, fn *lua.LFunction, echo bool) error {
	L := s.L
	L.SetContext(ctx)
	defer L.RemoveContext()
	s.lastErr = nil

	top := L.GetTop()
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.SetTop(top)
		return s.runtimeError(err)
	}
	results := make([]lua.LValue, L.GetTop()-top)
	for i := range results {
		results[i] = L.Get(top + 1 + i)
	}
	L.SetTop(top)

	if !echo || len(results) == 0 {
		return nil
	}
	return s.write(results...)
}

func (s *Shell) write(vals ...lua.LValue) error {
	text, err := s.render(vals)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(s.out, text)
	return err
}

// raise aborts the running Lua function with err.
func (s *Shell) raise(L *lua.LState, err error) int {
	s.lastErr = err
	L.Error(lua.LString(err.Error()), 0)
	return 0
}

func (s *Shell) runtimeError(err error) error {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.TrimSpace(apiErr.Object.String())
	if s.lastErr != nil && msg == s.lastErr.Error() {
		return s.lastErr
	}
	return errors.New(msg)
}

func syntaxError(err error) error {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		return errors.New(strings.TrimSpace(apiErr.Object.String()))
	}
	return err
}

// incomplete reports whether a syntax error was caused by input ending early.
func incomplete(err error) bool {
	return strings.Contains(err.Error(), "at EOF")
}
