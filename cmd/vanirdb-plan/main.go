// Package main provides the VanirDB plan explainer CLI.
//
// The binary drives the full planning pipeline without a running database:
// parse a query, resolve symbols, plan against the index catalog and print
// the logical operator tree.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vanirdb/vanirdb/pkg/catalog"
	"github.com/vanirdb/vanirdb/pkg/config"
	"github.com/vanirdb/vanirdb/pkg/parser"
	"github.com/vanirdb/vanirdb/pkg/plan"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

var version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type appFlags struct {
	configPath  string
	dataDir     string
	expandCount int64
}

func newRootCommand() *cobra.Command {
	flags := &appFlags{}
	root := &cobra.Command{
		Use:           "vanirdb-plan",
		Short:         "VanirDB Cypher query planner",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "",
		"path to config.yaml (default: auto-discover)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "",
		"catalog directory (default: in-memory)")
	root.PersistentFlags().Int64Var(&flags.expandCount, "vertex-count-to-expand-existing", -2,
		"maximum indexed vertex count that switches an expansion to an indexed lookup; -1 disables")

	root.AddCommand(newExplainCommand(flags))
	root.AddCommand(newIndexCommand(flags))
	return root
}

// loadConfig resolves config file, environment and flag overrides in that
// precedence order.
func loadConfig(cmd *cobra.Command, flags *appFlags) (*config.Config, error) {
	path := flags.configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Catalog.DataDir = flags.dataDir
	}
	if flags.expandCount >= -1 {
		cfg.Planner.VertexCountToExpandExisting = flags.expandCount
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.Open(cfg.Catalog.DataDir)
}

func newExplainCommand(flags *appFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "explain QUERY",
		Short: "Print the logical plan for a Cypher query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := cat.Close(); err != nil {
					log.Printf("closing catalog: %v", err)
				}
			}()

			query, storage, err := parser.Parse(args[0])
			if err != nil {
				return err
			}
			table, err := symbols.Generate(query)
			if err != nil {
				return err
			}
			planner := plan.NewRuleBasedPlanner(storage, table, cat, plan.Options{
				VertexCountToExpandExisting: cfg.Planner.VertexCountToExpandExisting,
			})
			root, err := planner.Plan(context.Background(), query)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), plan.Format(root, table))
			return nil
		},
	}
}

func newIndexCommand(flags *appFlags) *cobra.Command {
	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the index catalog the planner consults",
	}

	indexCmd.AddCommand(&cobra.Command{
		Use:   "create LABEL PROPERTY [COUNT]",
		Short: "Register a label+property index, optionally with a vertex count estimate",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer cat.Close()
			if err := cat.CreateIndex(args[0], args[1]); err != nil {
				return err
			}
			if len(args) == 3 {
				count, err := strconv.ParseInt(args[2], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid count %q: %w", args[2], err)
				}
				if err := cat.SetApproxVertexCount(args[0], args[1], count); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created index :%s(%s)\n", args[0], args[1])
			return nil
		},
	})

	indexCmd.AddCommand(&cobra.Command{
		Use:   "drop LABEL PROPERTY",
		Short: "Remove a label+property index registration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer cat.Close()
			if err := cat.DropIndex(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped index :%s(%s)\n", args[0], args[1])
			return nil
		},
	})

	indexCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			cat, err := openCatalog(cfg)
			if err != nil {
				return err
			}
			defer cat.Close()
			for _, desc := range cat.Indexes() {
				fmt.Fprintf(cmd.OutOrStdout(), ":%s(%s) ~%d vertices\n",
					desc.Label, desc.Property, desc.ApproxCount)
			}
			return nil
		},
	})

	return indexCmd
}
