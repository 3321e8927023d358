package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nosark/polygon-io-playground/pkg/id"
	"github.com/nosark/polygon-io-playground/polygon"
	"github.com/nosark/polygon-io-playground/store"
)

func newTradesCmd(ro *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Download and inspect stored trades",
	}
	cmd.AddCommand(
		newTradesFetchCmd(ro),
		newTradesRunsCmd(ro),
		newTradesExportCmd(ro),
	)
	return cmd
}

func newTradesFetchCmd(ro *rootOptions) *cobra.Command {
	var tf tradeFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download trades into the configured store",
		Long: `Download trades page by page into the store so candles can be rebuilt
offline with "candles build --run <id>". Prints the run id.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := ro.client()
			if err != nil {
				return err
			}
			req, maxPages, err := tf.request(ro)
			if err != nil {
				return err
			}

			st, err := store.Open(ctx, ro.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			run := store.Run{ID: id.New(), Ticker: req.Ticker, Created: time.Now().UTC()}
			it := polygon.NewTradeIterator(c, req, maxPages)

			total := 0
			for {
				page, ok, err := it.Next(ctx)
				if err != nil {
					return fmt.Errorf("run %s after %d trades: %w", run.ID, total, err)
				}
				if !ok {
					break
				}
				// one SaveTrades per page so an interrupted download keeps what it got
				if err := st.SaveTrades(ctx, run, page); err != nil {
					return err
				}
				total += len(page)
				ro.log.Debug("page stored", "run", run.ID, "page", it.Pages(), "trades", len(page))
			}

			ro.log.Info("trades stored",
				"run", run.ID,
				"ticker", run.Ticker,
				"pages", it.Pages(),
				"trades", total,
				"more", it.More(),
			)
			fmt.Fprintln(cmd.OutOrStdout(), run.ID)
			return nil
		},
	}

	tf.register(cmd)
	return cmd
}

func newTradesRunsCmd(ro *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored trade downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := store.Open(ctx, ro.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			runs, err := st.Runs(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-26s  %-14s  %8s  %s\n", "RUN", "TICKER", "TRADES", "CREATED")
			for _, r := range runs {
				fmt.Fprintf(out, "%-26s  %-14s  %8d  %s\n", r.ID, r.Ticker, r.Trades, r.Created.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newTradesExportCmd(ro *rootOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Write a stored download as trade CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := store.Open(ctx, ro.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			trades, err := st.LoadTrades(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return store.WriteTrades(out, trades)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default stdout)")
	return cmd
}
