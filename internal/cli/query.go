package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/routecast/routecast/internal/client"
	"github.com/routecast/routecast/internal/protocol"
)

// NewQueryCommand creates the query command: submits a read-only SQL
// statement through the broker protocol.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only SQL query through the broker",
		Long: `Submit a read-only SQL statement to the broker and print the rows.

The statement travels through the request protocol like any other
operation; statements containing write verbs are rejected by the broker
before reaching the database.

Example:
  routecast query "SELECT route_id, status FROM routes"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runQuery(rootOpts *RootOptions, sql string, cmd *cobra.Command) error {
	configureLogging(rootOpts.Verbose)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, cleanup, err := newClient(ctx, rootOpts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build client", err)
	}
	defer cleanup()

	var result protocol.QueryResult
	if err := c.SubmitTyped(ctx, protocol.OpQuery, protocol.QueryPayload{SQL: sql}, &result); err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
	if rootOpts.Format == "json" {
		return out.Success(result)
	}
	return out.Success(func(w io.Writer) { renderRows(w, result) })
}

func renderRows(w io.Writer, result protocol.QueryResult) {
	fmt.Fprintln(w, strings.Join(result.Columns, "\t"))
	for _, row := range result.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(w, "(%d rows)\n", result.RowCount)
}

// newClient builds a client stub over the configured mediating store.
func newClient(ctx context.Context, rootOpts *RootOptions) (*client.Client, func(), error) {
	cfg, err := loadConfig(rootOpts)
	if err != nil {
		return nil, func() {}, err
	}
	docs, cleanup, err := openDocstore(ctx, cfg.Docstore)
	if err != nil {
		return nil, func() {}, err
	}
	c := client.New(docs,
		client.WithTimeout(cfg.Client.Timeout.Std()),
		client.WithPollInterval(cfg.Client.PollInterval.Std()),
		client.WithRequestCollection(cfg.Docstore.Collections.Requests),
	)
	return c, cleanup, nil
}
