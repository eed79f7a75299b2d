package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"knowtrace/internal/graph"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and validate concept catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a catalog file without installing it",
	Long: `Parses a catalog file and runs the full structural checks: dangling
edges, self-loops, weight ranges, and prerequisite cycles. Exits non-zero on
the first violation. With no argument the configured catalog is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Catalog.Path
		if len(args) == 1 {
			path = args[0]
		}
		g, err := graph.LoadCatalogFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("OK: %d concepts across %d subjects\n", g.Len(), g.SubjectCount())
		return nil
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the installed catalog's concepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := ensureEngine()
		if err != nil {
			return err
		}
		g := e.Catalog().Get()
		ids := g.Concepts()
		sort.Strings(ids)
		for _, id := range ids {
			c, err := g.Get(id)
			if err != nil {
				continue
			}
			prereqs, _ := g.Prerequisites(id)
			fmt.Printf("%-28s %-12s L%d  prereqs:%d\n", id, c.Subject, c.DifficultyLevel, len(prereqs))
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	rootCmd.AddCommand(catalogCmd)
}
