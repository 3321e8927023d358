package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nosark/polygon-io-playground/internal/candles"
	"github.com/nosark/polygon-io-playground/market"
	"github.com/nosark/polygon-io-playground/market/window"
	"github.com/nosark/polygon-io-playground/pkg/id"
	"github.com/nosark/polygon-io-playground/polygon"
	"github.com/nosark/polygon-io-playground/store"
)

// tradeFlags are shared by build and trades fetch.
type tradeFlags struct {
	ticker      string
	date        string
	fromStr     string
	toStr       string
	limit       int
	maxPages    int
	skipInvalid bool
}

func (tf *tradeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&tf.ticker, "ticker", "", "Ticker, e.g. X:BTC-USD (default from config)")
	cmd.Flags().StringVar(&tf.date, "date", "", "Single day YYYY-MM-DD")
	cmd.Flags().StringVar(&tf.fromStr, "from", "", "Start (inclusive), RFC3339 or YYYY-MM-DD")
	cmd.Flags().StringVar(&tf.toStr, "to", "", "End (exclusive), RFC3339 or YYYY-MM-DD")
	cmd.Flags().IntVar(&tf.limit, "limit", 0, "Trades per page (default from config)")
	cmd.Flags().IntVar(&tf.maxPages, "max-pages", -1, "Stop after this many pages, 0 = all (default from config)")
	cmd.Flags().BoolVar(&tf.skipInvalid, "skip-invalid", false, "Drop invalid trades instead of failing")
}

func (tf *tradeFlags) request(ro *rootOptions) (polygon.TradesRequest, int, error) {
	agg := ro.cfg.Aggregation

	req := polygon.TradesRequest{
		Ticker:      tf.ticker,
		Date:        tf.date,
		Order:       polygon.Desc,
		Limit:       tf.limit,
		SkipInvalid: tf.skipInvalid || agg.SkipInvalid,
	}
	if req.Ticker == "" {
		req.Ticker = agg.Ticker
	}
	if req.Limit == 0 {
		req.Limit = agg.Limit
	}

	var err error
	if req.From, err = parseTime("from", tf.fromStr); err != nil {
		return req, 0, err
	}
	if req.To, err = parseTime("to", tf.toStr); err != nil {
		return req, 0, err
	}

	maxPages := tf.maxPages
	if maxPages < 0 {
		maxPages = agg.MaxPages
	}
	return req, maxPages, nil
}

func newBuildCmd(ro *rootOptions) *cobra.Command {
	var (
		tf        tradeFlags
		windowStr string
		finalize  bool
		format    string
		outPath   string
		inputPath string
		runID     string
		save      bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Aggregate trades into OHLC candles",
		Long: `Fetch trades newest first and aggregate them into fixed-duration candles.

Trades come from polygon.io by default, from a trade CSV with --input, or
from a stored download with --run. The trailing window is left open and
reported on stderr unless --finalize is given.

Examples:
  candles build --ticker X:BTC-USD --date 2024-01-02 --window 1m
  candles build --input trades.csv --window 30s --finalize --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath != "" && runID != "" {
				return fmt.Errorf("--input and --run are mutually exclusive")
			}
			if save && (inputPath != "" || runID != "") {
				return fmt.Errorf("--save only applies to trades fetched from polygon.io")
			}
			if windowStr == "" {
				windowStr = ro.cfg.Aggregation.Window
			}
			agg := ro.cfg.Aggregation
			agg.Window = windowStr
			d, err := agg.WindowDuration()
			if err != nil {
				return fmt.Errorf("bad --window: %w", err)
			}
			if d < 0 {
				return fmt.Errorf("bad --window: %w", window.ErrNegativeWindow)
			}
			if !validFormat(format) {
				return fmt.Errorf("unknown --format %q (want csv|json)", format)
			}

			ctx := cmd.Context()
			src, done, err := ro.buildSource(ctx, &tf, inputPath, runID)
			if err != nil {
				return err
			}
			defer done()

			// create the output only once the inputs are known to be good
			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			emit, flush, err := candleWriter(out, format)
			if err != nil {
				return err
			}

			var rec *candles.Recorder
			if save {
				rec = &candles.Recorder{Source: src}
				src = rec
			}

			b := &candles.Builder{
				Window:   d,
				Finalize: finalize || ro.cfg.Aggregation.Finalize,
				Emit:     emit,
				Logger:   ro.log,
			}
			res, err := b.Build(ctx, src)
			if ferr := flush(); err == nil {
				err = ferr
			}
			if err != nil {
				return err
			}

			if rec != nil {
				ticker := tf.ticker
				if ticker == "" {
					ticker = ro.cfg.Aggregation.Ticker
				}
				saved, err := ro.saveRun(ctx, ticker, rec.Trades)
				if err != nil {
					return err
				}
				ro.log.Info("trades stored", "run", saved, "trades", len(rec.Trades))
			}

			ro.log.Info("build complete",
				"window", d,
				"pages", res.Pages,
				"trades", res.TradesSeen,
				"candles", res.Emitted,
			)
			if it, ok := unwrapSource(src).(*polygon.TradeIterator); ok && it.More() {
				ro.log.Warn("stopped at page cap with more trades available", "pages", it.Pages())
			}
			if len(res.Pending) > 0 {
				ro.log.Warn("trailing window left open",
					"trades", len(res.Pending),
					"anchor", res.Pending[0].Timestamp,
					"last", res.Pending[len(res.Pending)-1].Timestamp,
				)
			}
			return nil
		},
	}

	tf.register(cmd)
	cmd.Flags().StringVar(&windowStr, "window", "", "Window duration, e.g. 30s, 1m (default from config)")
	cmd.Flags().BoolVar(&finalize, "finalize", false, "Close the trailing window into a final candle")
	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv|json")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write candles to this file instead of stdout")
	cmd.Flags().StringVar(&inputPath, "input", "", "Read trades from a trade CSV file")
	cmd.Flags().StringVar(&runID, "run", "", "Replay a stored trades download")
	cmd.Flags().BoolVar(&save, "save", false, "Also store the fetched trades as a new run")

	return cmd
}

// buildSource picks the trade source for build. done releases it.
func (ro *rootOptions) buildSource(ctx context.Context, tf *tradeFlags, inputPath, runID string) (candles.TradeSource, func(), error) {
	limit := tf.limit
	if limit == 0 {
		limit = ro.cfg.Aggregation.Limit
	}

	switch {
	case inputPath != "":
		tr, closer, err := store.OpenTradeFile(inputPath, limit)
		if err != nil {
			return nil, nil, err
		}
		return tr, func() { _ = closer.Close() }, nil

	case runID != "":
		st, err := store.Open(ctx, ro.cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		defer st.Close()

		trades, err := st.LoadTrades(ctx, runID)
		if err != nil {
			return nil, nil, err
		}
		ro.log.Debug("replaying stored run", "run", runID, "trades", len(trades))
		return candles.Paginate(trades, limit), func() {}, nil

	default:
		c, err := ro.client()
		if err != nil {
			return nil, nil, err
		}
		req, maxPages, err := tf.request(ro)
		if err != nil {
			return nil, nil, err
		}
		return polygon.NewTradeIterator(c, req, maxPages), func() {}, nil
	}
}

func unwrapSource(src candles.TradeSource) candles.TradeSource {
	if rec, ok := src.(*candles.Recorder); ok {
		return rec.Source
	}
	return src
}

// saveRun stores trades under a new run id.
func (ro *rootOptions) saveRun(ctx context.Context, ticker string, trades []market.Trade) (string, error) {
	st, err := store.Open(ctx, ro.cfg.Store)
	if err != nil {
		return "", err
	}
	defer st.Close()

	run := store.Run{ID: id.New(), Ticker: ticker, Created: time.Now().UTC()}
	if err := st.SaveTrades(ctx, run, trades); err != nil {
		return "", err
	}
	return run.ID, nil
}

func validFormat(format string) bool {
	return format == "csv" || format == "json"
}

// candleWriter streams candles to w. flush must be called once at the end.
func candleWriter(w io.Writer, format string) (emit func(market.Candle) error, flush func() error, err error) {
	switch format {
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write(market.CandleCSVHeader); err != nil {
			return nil, nil, err
		}
		emit = func(c market.Candle) error { return cw.Write(c.CSVRecord()) }
		flush = func() error {
			cw.Flush()
			return cw.Error()
		}
		return emit, flush, nil

	case "json":
		enc := json.NewEncoder(w)
		emit = func(c market.Candle) error { return enc.Encode(c) }
		return emit, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unknown --format %q (want csv|json)", format)
	}
}
