package cli

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TechXTT/tormsh/internal/plugin"
	"github.com/TechXTT/tormsh/models"
	"github.com/TechXTT/tormsh/pkg/config"
	"github.com/TechXTT/tormsh/pkg/torm"
)

// Version is overridden at build time with -ldflags "-X".
var Version = "v0.1.0"

const help = `tormsh runs statements against a database through a unit-of-work session.

Statements are Lua. Every model is a global table:
  fido = Pet.new{name = "Fido", species = "Dog"}
  session.add(fido)
  session.commit()
  Pet.query.filter_by{species = "Dog"}.all()

Changes are staged until session.commit() applies them in one transaction.`

// options holds the persistent flags. Flags left unset fall back to the
// config file and environment.
type options struct {
	configPath string
	driver     string
	dsn        string
	format     string
	logLevel   string
}

// NewVersionCmd builds the `version` command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tormsh", Version)
		},
	}
}

// NewRootCmd builds the top-level `tormsh` command.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "tormsh",
		Short:         "A session shell over SQL databases",
		Long:          help,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultPath, "TOML config file")
	flags.StringVar(&opts.driver, "driver", "", "database driver (sqlite3, postgres, mysql)")
	flags.StringVar(&opts.dsn, "dsn", "", `datasource name, or env("NAME")`)
	flags.StringVar(&opts.format, "format", "", "result format (text, json, yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(NewShellCmd(opts))
	root.AddCommand(NewExecCmd(opts))
	root.AddCommand(NewInitCmd(opts))
	root.AddCommand(NewVersionCmd())
	return root
}

// load merges flags over the file and environment configuration.
func (o *options) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Driver = o.driver
	}
	if flags.Changed("dsn") {
		if cfg.DSN, err = config.ResolveDSN(o.dsn); err != nil {
			return nil, err
		}
	}
	if flags.Changed("format") {
		cfg.Format = o.format
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl})), nil
}

// open connects to the configured database, with entity hooks logged at
// debug level. Tables are created first when auto_migrate is on.
func (o *options) open(cmd *cobra.Command) (*torm.DB, *config.Config, *slog.Logger, error) {
	cfg, err := o.load(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := torm.Open(cfg.Driver, cfg.DSN, torm.WithLogger(log), torm.WithHooks(plugin.Logger{Log: log}))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	log.Debug("connected", "driver", cfg.Driver)
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(cmd.Context(), registered()...); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	}
	return db, cfg, log, nil
}

// modelNames lists the registered models in a stable order.
func modelNames() []string {
	all := models.All()
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func registered() []interface{} {
	all := models.All()
	out := make([]interface{}, 0, len(all))
	for _, name := range modelNames() {
		out = append(out, all[name])
	}
	return out
}
