package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/routecast/routecast/internal/allocation"
	"github.com/routecast/routecast/internal/catalog"
	"github.com/routecast/routecast/internal/client"
	"github.com/routecast/routecast/internal/protocol"
)

// SharesOptions holds flags for the shares command.
type SharesOptions struct {
	*RootOptions
	RouteID     string
	SAP         string
	ScheduleKey string
	Demand      int
	CasePack    int
	RoundCases  bool
}

// NewSharesCommand creates the shares command: historical shares plus an
// optional case allocation of a forecast total.
func NewSharesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SharesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "shares",
		Short: "Show per-store demand shares and allocate a forecast total",
		Long: `Compute each store's share of historical demand for a SKU and,
when --demand is given, allocate that many units across stores with
case-pack rounding.

Example:
  routecast shares --route R042 --sap 110087 --schedule TUE
  routecast shares --route R042 --sap 110087 --schedule TUE --demand 120 --case-pack 12`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShares(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RouteID, "route", "", "route id (required)")
	cmd.Flags().StringVar(&opts.SAP, "sap", "", "SKU / SAP number (required)")
	cmd.Flags().StringVar(&opts.ScheduleKey, "schedule", "", "delivery schedule key")
	cmd.Flags().IntVar(&opts.Demand, "demand", 0, "forecast total units to allocate")
	cmd.Flags().IntVar(&opts.CasePack, "case-pack", 0, "units per case (fetched from catalog when omitted)")
	cmd.Flags().BoolVar(&opts.RoundCases, "round-cases", true, "round the allocated total up to full cases")
	_ = cmd.MarkFlagRequired("route")
	_ = cmd.MarkFlagRequired("sap")

	return cmd
}

// sharesReport is the shares command output in both formats.
type sharesReport struct {
	RouteID     string                          `json:"route_id"`
	SAP         string                          `json:"sap"`
	ScheduleKey string                          `json:"schedule_key,omitempty"`
	Shares      map[string]protocol.StoreShare  `json:"shares"`
	Demand      int                             `json:"demand,omitempty"`
	CasePack    int                             `json:"case_pack,omitempty"`
	Allocation  map[string]allocation.StoreAllocation `json:"allocation,omitempty"`
}

func runShares(opts *SharesOptions, cmd *cobra.Command) error {
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

	var shares protocol.HistoricalSharesResult
	payload := protocol.HistoricalSharesPayload{
		RouteID:     opts.RouteID,
		SAP:         opts.SAP,
		ScheduleKey: opts.ScheduleKey,
	}
	if err := c.SubmitTyped(ctx, protocol.OpGetHistoricalShares, payload, &shares); err != nil {
		return WrapExitError(ExitFailure, "get_historical_shares failed", err)
	}

	report := sharesReport{
		RouteID:     opts.RouteID,
		SAP:         opts.SAP,
		ScheduleKey: opts.ScheduleKey,
		Shares:      shares.Shares,
	}

	if opts.Demand > 0 {
		casePack := opts.CasePack
		if casePack == 0 {
			info, err := (&queryCatalog{c: c}).Pack(ctx, opts.SAP)
			if err != nil {
				return WrapExitError(ExitFailure, "catalog lookup failed", err)
			}
			casePack = info.CasePack
		}

		fractions := make(map[string]float64, len(shares.Shares))
		for storeID, sh := range shares.Shares {
			fractions[storeID] = sh.Share
		}
		report.Demand = opts.Demand
		report.CasePack = casePack
		report.Allocation = allocation.Allocate(opts.Demand, fractions, casePack, opts.RoundCases)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if opts.Format == "json" {
		return out.Success(report)
	}
	return out.Success(func(w io.Writer) { renderShares(w, report) })
}

// queryCatalog resolves packaging data from the synced catalog via
// the query operation, since only the broker can read the database.
type queryCatalog struct {
	c *client.Client
}

// Pack implements catalog.Lookup.
func (q *queryCatalog) Pack(ctx context.Context, sap string) (catalog.PackInfo, error) {
	var result protocol.QueryResult
	err := q.c.SubmitTyped(ctx, protocol.OpQuery, protocol.QueryPayload{
		SQL:    "SELECT case_pack, tray_size FROM products WHERE sap = ?",
		Params: []any{sap},
	}, &result)
	if err != nil {
		return catalog.PackInfo{}, err
	}
	if result.RowCount == 0 {
		return catalog.PackInfo{}, fmt.Errorf("%w: %s (pass --case-pack to override)", catalog.ErrUnknownSKU, sap)
	}
	// Numeric values come back as float64 after the JSON round trip.
	casePack, ok := result.Rows[0][0].(float64)
	if !ok {
		return catalog.PackInfo{}, fmt.Errorf("unexpected case_pack value %v", result.Rows[0][0])
	}
	traySize, _ := result.Rows[0][1].(float64)
	return catalog.PackInfo{SAP: sap, CasePack: int(casePack), TraySize: int(traySize)}, nil
}

func renderShares(w io.Writer, r sharesReport) {
	storeIDs := make([]string, 0, len(r.Shares))
	for id := range r.Shares {
		storeIDs = append(storeIDs, id)
	}
	sort.Strings(storeIDs)

	fmt.Fprintf(w, "Shares for %s / %s", r.RouteID, r.SAP)
	if r.ScheduleKey != "" {
		fmt.Fprintf(w, " (%s)", r.ScheduleKey)
	}
	fmt.Fprintln(w)

	if len(storeIDs) == 0 {
		fmt.Fprintln(w, "no history for this SKU and schedule")
		return
	}

	for _, id := range storeIDs {
		sh := r.Shares[id]
		fmt.Fprintf(w, "  %s\t%.4f\t%s\n", id, sh.Share, FormatUnits(sh.TotalQuantity))
	}

	if r.Allocation != nil {
		fmt.Fprintf(w, "Allocation of %s (case pack %d):\n", FormatUnits(r.Demand), r.CasePack)
		total := 0
		for _, id := range storeIDs {
			a := r.Allocation[id]
			fmt.Fprintf(w, "  %s\t%s\t%d cases\n", id, FormatUnits(a.Units), a.Cases)
			total += a.Units
		}
		fmt.Fprintf(w, "  total\t%s\n", FormatUnits(total))
	}
}
