package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/TechXTT/tormsh/internal/shell"
	"github.com/TechXTT/tormsh/models"
	"github.com/TechXTT/tormsh/pkg/config"
	"github.com/TechXTT/tormsh/pkg/torm"
)

func newShell(cmd *cobra.Command, db *torm.DB, cfg *config.Config, log *slog.Logger, prompt string) (*shell.Shell, error) {
	format, err := shell.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	sh := shell.New(db,
		shell.WithOutput(cmd.OutOrStdout()),
		shell.WithFormat(format),
		shell.WithPrompt(prompt),
		shell.WithLogger(log),
	)
	all := models.All()
	for _, name := range modelNames() {
		if err := sh.Register(name, all[name]); err != nil {
			sh.Close()
			return nil, err
		}
	}
	return sh, nil
}

// NewShellCmd builds the interactive `shell` command.
func NewShellCmd(opts *options) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive statement shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, log, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if !cmd.Flags().Changed("prompt") {
				prompt = cfg.Prompt
			}
			sh, err := newShell(cmd, db, cfg, log, prompt)
			if err != nil {
				return err
			}
			defer sh.Close()

			log.Info("shell started", "session", sh.Session().ID().String(), "driver", cfg.Driver)
			err = sh.Run(cmd.Context(), cmd.InOrStdin())
			if n := sh.Session().Pending(); n > 0 {
				log.Warn("uncommitted changes discarded", "pending", n)
			}
			log.Debug("shell closed", "tracked", sh.Session().Tracked())
			return err
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt shown before each statement (default from config)")
	return cmd
}

// NewExecCmd builds the `exec` command. A script file ("-" for stdin) runs
// as one chunk; each -e statement runs on its own with its value printed.
func NewExecCmd(opts *options) *cobra.Command {
	var stmts []string

	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Run a statement script or -e statements",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(stmts) == 0 {
				return errors.New("nothing to run: give a script file or -e")
			}
			db, cfg, log, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			sh, err := newShell(cmd, db, cfg, log, "")
			if err != nil {
				return err
			}
			defer sh.Close()

			ctx := cmd.Context()
			if len(args) == 1 {
				src, err := readScript(cmd, args[0])
				if err != nil {
					return err
				}
				if err := sh.Exec(ctx, src); err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
			}
			for _, stmt := range stmts {
				if err := sh.Eval(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&stmts, "eval", "e", nil, "statement to evaluate (repeatable)")
	return cmd
}

func readScript(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(b), nil
}
