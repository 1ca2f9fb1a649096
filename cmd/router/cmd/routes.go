package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/lexfrei/ingress-router/internal/routing"
)

//nolint:gochecknoglobals // cobra command pattern
var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the compiled routing table in evaluation order",
	Args:  cobra.NoArgs,
	RunE:  runRoutes,
}

func init() {
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(cmd *cobra.Command, _ []string) error {
	table, err := loadTable(cmd.Context(), setupLogger(os.Stderr))
	if err != nil {
		return err
	}

	return writeRoutes(cmd.OutOrStdout(), table)
}

func writeRoutes(out io.Writer, table *routing.Table) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "HOST\tMODE\tPATH\tREWRITE\tBACKEND\tSOURCE")

	for _, rule := range table.Rules() {
		host := rule.Host
		if host == "" {
			host = "*"
		}

		rewrite := rule.Rewrite()
		if rewrite == "" {
			rewrite = "-"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			host, rule.Mode, rule.Path, rewrite, rule.Backend, rule.Source)
	}

	return errors.Wrap(tw.Flush(), "failed to write routes")
}
