package market

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultStooqURL = "https://stooq.com"

// StooqConfig configures the keyless CSV fallback source.
type StooqConfig struct {
	BaseURL string
	Suffix  string // exchange suffix appended to tickers, default ".us"
	Timeout time.Duration
}

// Stooq serves delayed daily quotes from stooq.com's CSV endpoint. It
// needs no credentials, which is exactly why it is the fallback: it
// keeps a session limping when the primary is down, at the cost of
// having no bid/ask or intraday volume.
type Stooq struct {
	baseURL string
	suffix  string
	http    *http.Client
}

// NewStooq creates the fallback provider.
func NewStooq(cfg StooqConfig) *Stooq {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultStooqURL
	}
	suffix := cfg.Suffix
	if suffix == "" {
		suffix = ".us"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Stooq{
		baseURL: strings.TrimRight(baseURL, "/"),
		suffix:  suffix,
		http:    &http.Client{Timeout: timeout},
	}
}

func (s *Stooq) Name() string { return "stooq" }

// LatestQuotes returns each symbol's most recent close as a delayed
// price. Microstructure fields stay unknown.
func (s *Stooq) LatestQuotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	rows, err := s.fetch(ctx, symbols)
	if err != nil {
		return nil, err
	}
	quotes := make(map[string]Quote, len(rows))
	for _, row := range rows {
		quotes[row.symbol] = Quote{
			Symbol:    row.symbol,
			Price:     row.close,
			Timestamp: row.stamp,
		}
	}
	return quotes, nil
}

// Snapshots is the same delayed data; this source has nothing extra to
// offer the manage phase.
func (s *Stooq) Snapshots(ctx context.Context, symbols []string) (map[string]Quote, error) {
	return s.LatestQuotes(ctx, symbols)
}

// OfficialCloses returns the daily close for rows stamped with the
// requested trading day.
func (s *Stooq) OfficialCloses(ctx context.Context, symbols []string, date string) (map[string]float64, error) {
	rows, err := s.fetch(ctx, symbols)
	if err != nil {
		return nil, err
	}
	closes := make(map[string]float64, len(rows))
	for _, row := range rows {
		if row.date != date {
			continue
		}
		closes[row.symbol] = row.close
	}
	return closes, nil
}

type stooqRow struct {
	symbol string
	date   string
	close  float64
	stamp  time.Time
}

func (s *Stooq) fetch(ctx context.Context, symbols []string) ([]stooqRow, error) {
	ids := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		ids = append(ids, strings.ToLower(symbol)+s.suffix)
	}
	// The multi-symbol separator is a literal plus, which url.Values
	// would escape, so the query is assembled by hand.
	endpoint := s.baseURL + "/q/l/?s=" + strings.Join(ids, "+") + "&f=sd2t2ohlcv&h&e=csv"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("stooq: build request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stooq: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stooq: HTTP %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("stooq: parse csv: %w", err)
	}

	upperSuffix := strings.ToUpper(s.suffix)
	rows := make([]stooqRow, 0, len(records))
	for _, rec := range records {
		// Layout: Symbol,Date,Time,Open,High,Low,Close,Volume.
		// The header row and "N/D" placeholders fall out of the
		// numeric parse below.
		if len(rec) < 8 {
			continue
		}
		closePrice, err := strconv.ParseFloat(rec[6], 64)
		if err != nil || closePrice <= 0 {
			continue
		}
		row := stooqRow{
			symbol: strings.TrimSuffix(strings.ToUpper(rec[0]), upperSuffix),
			date:   rec[1],
			close:  closePrice,
		}
		if stamp, err := time.Parse("2006-01-02 15:04:05", rec[1]+" "+rec[2]); err == nil {
			row.stamp = stamp
		} else {
			row.stamp = time.Now()
		}
		rows = append(rows, row)
	}
	return rows, nil
}
