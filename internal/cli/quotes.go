package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nosark/polygon-io-playground/polygon"
)

func newLastCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "last <from> <to>",
		Short: "Print the last trade for a crypto pair",
		Long: `Print the most recent trade for a crypto pair.

Example:
  candles last BTC USD`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ro.client()
			if err != nil {
				return err
			}

			last, err := c.LastCryptoTrade(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			t := last.Trade
			fmt.Fprintf(cmd.OutOrStdout(), "%s  price=%s  size=%s  exchange=%d  time=%s\n",
				last.Symbol, t.Price, t.Size, t.Exchange, t.Timestamp.Time().Format(time.RFC3339Nano))
			return nil
		},
	}
}

func newPrevCloseCmd(ro *rootOptions) *cobra.Command {
	var adjusted bool

	cmd := &cobra.Command{
		Use:   "prev-close <ticker>",
		Short: "Print the previous day's bar for a ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ro.client()
			if err != nil {
				return err
			}

			bars, err := c.PreviousClose(cmd.Context(), args[0], adjusted)
			if err != nil {
				return err
			}
			writeBars(cmd.OutOrStdout(), bars)
			return nil
		},
	}

	cmd.Flags().BoolVar(&adjusted, "adjusted", true, "Adjust for splits")
	return cmd
}

func newBarsCmd(ro *rootOptions) *cobra.Command {
	var (
		req      polygon.AggregatesRequest
		timespan string
		order    string
	)

	cmd := &cobra.Command{
		Use:   "bars <ticker>",
		Short: "Print aggregate bars computed by polygon.io",
		Long: `Print polygon.io's own aggregate bars, e.g. to compare with "candles build".

Example:
  candles bars X:BTC-USD --timespan minute --from 2024-01-02 --to 2024-01-02`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := polygon.ParseTimespan(timespan)
			if err != nil {
				return err
			}
			req.Ticker = args[0]
			req.Timespan = ts
			req.Order = polygon.Order(order)

			c, err := ro.client()
			if err != nil {
				return err
			}

			bars, err := c.Aggregates(cmd.Context(), req)
			if err != nil {
				return err
			}
			writeBars(cmd.OutOrStdout(), bars)
			return nil
		},
	}

	cmd.Flags().IntVar(&req.Multiplier, "multiplier", 1, "Timespan multiplier")
	cmd.Flags().StringVar(&timespan, "timespan", "day", "minute|hour|day|week|month|quarter|year")
	cmd.Flags().StringVar(&req.From, "from", "", "Start date YYYY-MM-DD or unix ms (required)")
	cmd.Flags().StringVar(&req.To, "to", "", "End date YYYY-MM-DD or unix ms (required)")
	cmd.Flags().BoolVar(&req.Adjusted, "adjusted", true, "Adjust for splits")
	cmd.Flags().StringVar(&order, "order", "asc", "asc|desc")
	cmd.Flags().IntVar(&req.Limit, "limit", 0, "Max bars (default 5000)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func writeBars(w io.Writer, bars []polygon.Bar) {
	fmt.Fprintf(w, "%-12s  %-20s  %s\n", "TICKER", "START", "O/H/L/C  VOLUME  VWAP  N")
	for _, b := range bars {
		fmt.Fprintf(w, "%-12s  %-20s  %s/%s/%s/%s  %s  %s  %d\n",
			b.Ticker, b.Start.Time().Format(time.RFC3339),
			b.Open, b.High, b.Low, b.Close, b.Volume, b.VWAP, b.Transactions)
	}
}
