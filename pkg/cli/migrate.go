package cli

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TechXTT/tormsh/internal/core"
	"github.com/TechXTT/tormsh/pkg/torm"
)

// NewInitCmd builds the `init` command, which creates the table of every
// registered model that does not exist yet.
func NewInitCmd(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"migrate"},
		Short:   "Create tables for the registered models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				cfg, err := opts.load(cmd)
				if err != nil {
					return err
				}
				return printSchema(cmd, cfg.Driver)
			}

			db, _, log, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.AutoMigrate(cmd.Context(), registered()...); err != nil {
				return err
			}
			tables, err := tableNames()
			if err != nil {
				return err
			}
			log.Info("tables ready", "tables", tables)
			fmt.Fprintf(cmd.OutOrStdout(), "created tables: %s\n", strings.Join(tables, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the CREATE TABLE statements instead of running them")
	return cmd
}

func printSchema(cmd *cobra.Command, driver string) error {
	for _, model := range registered() {
		schema, err := core.SchemaOf(reflect.TypeOf(model))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s;\n", torm.CreateTableSQL(schema, driver))
	}
	return nil
}

func tableNames() ([]string, error) {
	var names []string
	for _, model := range registered() {
		schema, err := core.SchemaOf(reflect.TypeOf(model))
		if err != nil {
			return nil, err
		}
		names = append(names, schema.Table)
	}
	return names, nil
}
