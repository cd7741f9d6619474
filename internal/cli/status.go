package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/routecast/routecast/internal/protocol"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	RouteID string
}

// NewStatusCommand creates the status command: route sync check plus
// archived history coverage.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a route's sync status and archived history",
		Long: `Check whether a route's reference data is synced into the
analytical store and list the delivery dates present in its history.

Example:
  routecast status --route R042`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RouteID, "route", "", "route id (required)")
	_ = cmd.MarkFlagRequired("route")

	return cmd
}

type statusReport struct {
	RouteID       string   `json:"route_id"`
	Synced        bool     `json:"synced"`
	Status        string   `json:"status"`
	ArchivedDates []string `json:"archived_dates"`
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	c, cleanup, err := newClient(ctx, opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build client", err)
	}
	defer cleanup()

	var synced protocol.CheckRouteSyncedResult
	err = c.SubmitTyped(ctx, protocol.OpCheckRouteSynced,
		protocol.CheckRouteSyncedPayload{RouteID: opts.RouteID}, &synced)
	if err != nil {
		return WrapExitError(ExitFailure, "check_route_synced failed", err)
	}

	var dates protocol.ArchivedDatesResult
	err = c.SubmitTyped(ctx, protocol.OpGetArchivedDates,
		protocol.ArchivedDatesPayload{RouteID: opts.RouteID}, &dates)
	if err != nil {
		return WrapExitError(ExitFailure, "get_archived_dates failed", err)
	}

	report := statusReport{
		RouteID:       opts.RouteID,
		Synced:        synced.Synced,
		Status:        synced.Status,
		ArchivedDates: dates.Dates,
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.Success(report)
	}
	return out.Success(func(w io.Writer) {
		fmt.Fprintf(w, "Route %s: %s\n", report.RouteID, report.Status)
		if len(report.ArchivedDates) == 0 {
			fmt.Fprintln(w, "no archived deliveries")
			return
		}
		fmt.Fprintf(w, "%d archived deliveries, %s through %s\n",
			len(report.ArchivedDates),
			report.ArchivedDates[0],
			report.ArchivedDates[len(report.ArchivedDates)-1])
	})
}
