// Package feed reads daily bars and instrument universes from local files.
package feed

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"pivotscan/internal/errors"
	"pivotscan/internal/models"
)

// MarketDataFeed supplies daily bars per instrument.
type MarketDataFeed interface {
	Symbols(ctx context.Context) ([]string, error)
	Bars(ctx context.Context, symbol string) ([]models.Bar, error)
}

// csvDate parses the leading calendar date of a timestamp cell.
type csvDate struct {
	time.Time
}

func (d *csvDate) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if len(s) > len(models.DateLayout) {
		s = s[:len(models.DateLayout)]
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

type csvBar struct {
	Date   csvDate `csv:"date"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume int64   `csv:"volume"`
}

// CSVFeed reads one SYMBOL.csv file per instrument from a directory. Files
// carry a date,open,high,low,close,volume header in any letter case; other
// columns are ignored. Rows are returned in file order.
type CSVFeed struct {
	dir string
}

var _ MarketDataFeed = (*CSVFeed)(nil)

// NewCSVFeed creates a feed over dir.
func NewCSVFeed(dir string) *CSVFeed {
	return &CSVFeed{dir: dir}
}

// Symbols returns the instruments with a CSV file in the feed directory.
func (f *CSVFeed) Symbols(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading feed directory %s", f.dir)
	}
	var symbols []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		symbols = append(symbols, SymbolFromPath(e.Name()))
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Bars reads the file of symbol.
func (f *CSVFeed) Bars(ctx context.Context, symbol string) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(f.dir, symbol+".csv")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Join(f.dir, strings.ToLower(symbol)+".csv")
	}
	bars, err := ReadFile(path)
	if err != nil {
		return nil, errors.NewDataError("csv", symbol, "reading bars", err)
	}
	return bars, nil
}

// SymbolFromPath derives an instrument symbol from a file name.
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
}

// ReadFile reads bars from a CSV file.
func ReadFile(path string) ([]models.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file)
}

// Read reads bars from CSV content.
func Read(r io.Reader) ([]models.Bar, error) {
	normalized, err := normalizeHeader(r)
	if err != nil {
		return nil, err
	}
	var rows []*csvBar
	if err := gocsv.Unmarshal(normalized, &rows); err != nil {
		return nil, errors.Wrap(err, "parsing csv")
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, models.Bar{
			Date:   row.Date.Time,
			Open:   row.Open,
			High:   row.High,
			Low:    row.Low,
			Close:  row.Close,
			Volume: row.Volume,
		})
	}
	return bars, nil
}

// normalizeHeader lower-cases the header row so "Date,Open,..." files
// match the csv tags.
func normalizeHeader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, err
	}
	header = strings.TrimPrefix(header, "\ufeff")
	fields := strings.Split(strings.TrimRight(header, "\r\n"), ",")
	for i, f := range fields {
		fields[i] = strings.ToLower(strings.TrimSpace(f))
	}
	var buf bytes.Buffer
	buf.WriteString(strings.Join(fields, ","))
	buf.WriteByte('\n')
	return io.MultiReader(&buf, br), nil
}
