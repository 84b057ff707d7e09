package provider

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"orbtrader/pkg/model"
)

var csvHeader = []string{"time", "open", "high", "low", "close", "volume"}

// CSVProvider reads bars from DIR/SYMBOL.csv files with the header
// time,open,high,low,close,volume. Times are RFC3339, or
// "2006-01-02 15:04[:05]" in loc.
type CSVProvider struct {
	dir string
	loc *time.Location
}

// NewCSVProvider creates a provider over dir; a nil loc means UTC
func NewCSVProvider(dir string, loc *time.Location) *CSVProvider {
	if loc == nil {
		loc = time.UTC
	}
	return &CSVProvider{dir: dir, loc: loc}
}

func (p *CSVProvider) Name() string {
	return "csv"
}

// IsAvailable reports whether the directory exists
func (p *CSVProvider) IsAvailable() bool {
	info, err := os.Stat(p.dir)
	return err == nil && info.IsDir()
}

// GetBars returns the file's bars in [start, end)
func (p *CSVProvider) GetBars(_ context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	all, err := p.load(symbol)
	if err != nil {
		return nil, err
	}

	var bars []model.Bar
	for _, b := range all {
		if !b.Time.Before(start) && b.Time.Before(end) {
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}
	return bars, nil
}

// GetLatestBars returns the last n bars of the file
func (p *CSVProvider) GetLatestBars(_ context.Context, symbol string, n int) ([]model.Bar, error) {
	all, err := p.load(symbol)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}
	return lastN(all, n), nil
}

// Path returns the file holding symbol's bars
func (p *CSVProvider) Path(symbol string) string {
	return filepath.Join(p.dir, strings.ToUpper(symbol)+".csv")
}

func (p *CSVProvider) load(symbol string) ([]model.Bar, error) {
	f, err := os.Open(p.Path(symbol))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s: %w", symbol, ErrNoData)}
		}
		return nil, &ProviderError{Provider: p.Name(), Err: err}
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f, p.loc)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s: %w", symbol, err)}
	}
	sortBars(bars)
	return bars, nil
}

// ReadBarsCSV parses bars written by WriteBarsCSV
func ReadBarsCSV(r io.Reader, loc *time.Location) ([]model.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, col := range csvHeader {
		if strings.ToLower(strings.TrimSpace(header[i])) != col {
			return nil, fmt.Errorf("unexpected header %v (want %v)", header, csvHeader)
		}
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		bar, err := parseBar(rec, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(rec []string, loc *time.Location) (model.Bar, error) {
	ts, err := parseTime(rec[0], loc)
	if err != nil {
		return model.Bar{}, err
	}

	var prices [4]float64
	for i := range prices {
		prices[i], err = strconv.ParseFloat(rec[i+1], 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("%s: %w", csvHeader[i+1], err)
		}
	}
	volume, err := strconv.ParseInt(rec[5], 10, 64)
	if err != nil {
		// some exports write volume as a float
		v, ferr := strconv.ParseFloat(rec[5], 64)
		if ferr != nil {
			return model.Bar{}, fmt.Errorf("volume: %w", err)
		}
		volume = int64(v)
	}

	return model.Bar{
		Time:   ts,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume,
	}, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

// WriteBarsCSV writes bars with RFC3339 timestamps
func WriteBarsCSV(w io.Writer, bars []model.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, b := range bars {
		rec := []string{
			b.Time.Format(time.RFC3339),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// SaveBars writes symbol's bars to DIR/SYMBOL.csv, creating dir
func (p *CSVProvider) SaveBars(symbol string, bars []model.Bar) error {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", p.dir, err)
	}
	f, err := os.Create(p.Path(symbol))
	if err != nil {
		return err
	}
	if err := WriteBarsCSV(f, bars); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
