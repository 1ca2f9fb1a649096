package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/lexfrei/ingress-router/internal/routing"
)

// errNotFound makes match exit non-zero without an error message.
var errNotFound = errors.New("not found")

//nolint:gochecknoglobals // cobra command pattern
var matchCmd = &cobra.Command{
	Use:   "match <path>",
	Short: "Evaluate one request path against the routing table",
	Long: `Evaluate one request path and print the selected backend and the
forwarded path. Prints "not found" and exits 1 when no rule matches.`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().String("host", "", "Request Host header")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	table, err := loadTable(cmd.Context(), setupLogger(os.Stderr))
	if err != nil {
		return err
	}

	host, err := cmd.Flags().GetString("host")
	if err != nil {
		return errors.Wrap(err, "failed to read --host")
	}

	return writeMatch(cmd.OutOrStdout(), table, host, args[0])
}

func writeMatch(out io.Writer, table *routing.Table, host, path string) error {
	match, ok := table.Match(host, path)
	if !ok {
		_, _ = fmt.Fprintln(out, "not found")

		return errNotFound
	}

	if match.Backend.IsStatus() {
		_, _ = fmt.Fprintf(out, "not found\nstatus %d\nrule %s\n", match.Backend.Status, match.Rule.Source)

		return errNotFound
	}

	_, _ = fmt.Fprintf(out, "backend %s\npath %s\nrule %s\n", match.Backend, match.Path, match.Rule.Source)

	return nil
}
