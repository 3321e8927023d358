package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nosark/polygon-io-playground/market"
)

// WriteTrades writes a header row and one row per trade.
func WriteTrades(w io.Writer, trades []market.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(market.TradeCSVHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write(t.CSVRecord()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTrades reads every trade from r.
func ReadTrades(r io.Reader) ([]market.Trade, error) {
	tr := NewTradeReader(r, 0)
	var out []market.Trade
	for {
		page, ok, err := tr.Next(context.Background())
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, page...)
	}
}

// TradeReader reads trade CSV rows in pages:
//
//	timestamp,id,exchange,conditions,price,size
//
// A single header row is allowed. Empty rows are skipped.
type TradeReader struct {
	r        *csv.Reader
	pageSize int
	sawFirst bool
	done     bool
}

// NewTradeReader returns pages of at most pageSize trades (0 means 1000).
func NewTradeReader(r io.Reader, pageSize int) *TradeReader {
	if pageSize <= 0 {
		pageSize = 1000
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	return &TradeReader{r: cr, pageSize: pageSize}
}

func (tr *TradeReader) Next(ctx context.Context) ([]market.Trade, bool, error) {
	if tr.done {
		return nil, false, nil
	}

	var page []market.Trade
	for len(page) < tr.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		row, err := tr.r.Read()
		if errors.Is(err, io.EOF) {
			tr.done = true
			break
		}
		if err != nil {
			return nil, false, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		// Allow a single header row
		if !tr.sawFirst {
			tr.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(row[0]), market.TradeCSVHeader[0]) {
				continue
			}
		}

		t, err := market.ParseTradeRecord(row)
		if err != nil {
			line, _ := tr.r.FieldPos(0)
			return nil, false, fmt.Errorf("line %d: %w", line, err)
		}
		page = append(page, t)
	}

	if len(page) == 0 {
		return nil, false, nil
	}
	return page, true, nil
}

// OpenTradeFile opens a trade CSV file for paged reading.
func OpenTradeFile(path string, pageSize int) (*TradeReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return NewTradeReader(f, pageSize), f, nil
}

const runsIndex = "runs.csv"

var runsHeader = []string{"run_id", "ticker", "created"}

// CSVDir keeps one <run id>.csv per run plus a runs.csv index in a directory.
type CSVDir struct {
	dir string
	mu  sync.Mutex
}

func NewCSVDir(dir string) (*CSVDir, error) {
	if dir == "" {
		return nil, fmt.Errorf("csv: path is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	return &CSVDir{dir: dir}, nil
}

func (s *CSVDir) runPath(id string) string {
	return filepath.Join(s.dir, id+".csv")
}

// validRunID reports whether id names a file directly inside the directory
// without clashing with the index.
func validRunID(id string) bool {
	return id != "" && id != "." && id != ".." &&
		id+".csv" != runsIndex &&
		!strings.ContainsAny(id, `/\`)
}

func (s *CSVDir) SaveTrades(ctx context.Context, run Run, trades []market.Trade) error {
	if err := validateRun(run); err != nil {
		return err
	}
	if !validRunID(run.ID) {
		return fmt.Errorf("csv: bad run id %q", run.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.readIndex()
	if err != nil {
		return err
	}

	path := s.runPath(run.ID)
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(market.TradeCSVHeader); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	for _, t := range trades {
		if err := w.Write(t.CSVRecord()); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}

	for _, r := range runs {
		if r.ID == run.ID {
			return nil
		}
	}
	if run.Created.IsZero() {
		run.Created = time.Now()
	}
	return s.appendIndex(run)
}

func (s *CSVDir) LoadTrades(ctx context.Context, runID string) ([]market.Trade, error) {
	if !validRunID(runID) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.runPath(runID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	defer f.Close()

	trades, err := ReadTrades(f)
	if err != nil {
		return nil, fmt.Errorf("csv: run %s: %w", runID, err)
	}
	return trades, nil
}

func (s *CSVDir) Runs(ctx context.Context) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	for i := range runs {
		f, err := os.Open(s.runPath(runs[i].ID))
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		trades, err := ReadTrades(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("csv: run %s: %w", runs[i].ID, err)
		}
		runs[i].Trades = len(trades)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].Created.Equal(runs[j].Created) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].Created.After(runs[j].Created)
	})
	return runs, nil
}

func (s *CSVDir) Close() error { return nil }

func (s *CSVDir) readIndex() ([]Run, error) {
	f, err := os.Open(filepath.Join(s.dir, runsIndex))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: %s: %w", runsIndex, err)
	}

	var runs []Run
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == runsHeader[0] {
			continue
		}
		if len(row) < len(runsHeader) {
			return nil, fmt.Errorf("csv: %s row %d: want %d columns", runsIndex, i+1, len(runsHeader))
		}
		ns, err := strconv.ParseInt(row[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("csv: %s row %d: bad created %q", runsIndex, i+1, row[2])
		}
		runs = append(runs, Run{ID: row[0], Ticker: row[1], Created: time.Unix(0, ns).UTC()})
	}
	return runs, nil
}

func (s *CSVDir) appendIndex(run Run) error {
	path := filepath.Join(s.dir, runsIndex)
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(runsHeader); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	if err := w.Write([]string{run.ID, run.Ticker, strconv.FormatInt(run.Created.UnixNano(), 10)}); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv: %w", err)
	}
	return nil
}
