package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbparser/internal/app"
	"github.com/koustreak/dbparser/internal/schema"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the tables of the configured database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			tables, err := a.Parser.Tables(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		})
	},
}

var describeVirtual []string

var describeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Print the decoded column model of one table as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			t, err := a.Parser.Table(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(describeVirtual) > 0 {
				cols, err := virtualColumns(describeVirtual)
				if err != nil {
					return err
				}
				t = t.WithVirtualColumns(cols...)
			}
			return printJSON(cmd.OutOrStdout(), t)
		})
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush [table...]",
	Short: "Drop cached metadata for the given tables, or for all tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			if len(args) == 0 {
				return a.Parser.Flush(cmd.Context())
			}
			for _, name := range args {
				if err := a.Parser.Invalidate(cmd.Context(), name); err != nil {
					return fmt.Errorf("invalidate %s: %w", name, err)
				}
			}
			return nil
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired entries from the cache backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			n, err := a.Gateway.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired entries\n", n)
			return nil
		})
	},
}

func init() {
	describeCmd.Flags().StringArrayVar(&describeVirtual, "virtual", nil, "extra undeclared column as name:type, repeatable (e.g. price:decimal(10,2))")
	rootCmd.AddCommand(tablesCmd, describeCmd, flushCmd, purgeCmd)
}

// virtualColumns parses name:type flags into undeclared columns.
func virtualColumns(specs []string) ([]schema.Column, error) {
	cols := make([]schema.Column, 0, len(specs))
	for _, spec := range specs {
		name, typ, ok := strings.Cut(spec, ":")
		if !ok || name == "" || typ == "" {
			return nil, fmt.Errorf("virtual column %q: want name:type", spec)
		}
		kind, length, unsigned := schema.DecodeType(typ)
		cols = append(cols, schema.Column{
			Name:     name,
			Kind:     kind,
			Length:   length,
			Unsigned: unsigned,
			Nullable: true,
		})
	}
	return cols, nil
}
