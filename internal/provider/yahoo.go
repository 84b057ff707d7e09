package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"orbtrader/internal/ratelimit"
	"orbtrader/pkg/model"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

	// Yahoo serves at most 7 days of 1m bars per request
	yahooMaxSpan = 7 * 24 * time.Hour
)

// YahooProvider serves 1-minute bars from the Yahoo Finance chart API (unofficial)
type YahooProvider struct {
	client  *http.Client
	limiter *ratelimit.Limiter
	baseURL string
}

// NewYahooProvider creates a Yahoo provider limited to perMinute requests
func NewYahooProvider(perMinute int, timeout time.Duration) *YahooProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YahooProvider{
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewLimiter("yahoo", perMinute),
		baseURL: yahooBaseURL,
	}
}

// WithBaseURL points the provider at another chart endpoint
func (p *YahooProvider) WithBaseURL(base string) *YahooProvider {
	p.baseURL = base
	return p
}

func (p *YahooProvider) Name() string {
	return "yahoo"
}

// IsAvailable always returns true (no API key needed)
func (p *YahooProvider) IsAvailable() bool {
	return true
}

// yahooResponse represents the chart API response. Prices are pointers
// because Yahoo reports missing minutes as null.
type yahooResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol           string `json:"symbol"`
				ExchangeTimezone string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetBars fetches regular-session 1m bars in [start, end), splitting long
// ranges into 7-day requests
func (p *YahooProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error) {
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid range %s - %s", start, end)
	}

	var bars []model.Bar
	for from := start; from.Before(end); from = from.Add(yahooMaxSpan) {
		to := from.Add(yahooMaxSpan)
		if to.After(end) {
			to = end
		}

		q := url.Values{}
		q.Set("period1", fmt.Sprint(from.Unix()))
		q.Set("period2", fmt.Sprint(to.Unix()))
		q.Set("interval", "1m")
		q.Set("includePrePost", "false")

		chunk, err := p.fetch(ctx, symbol, q)
		if err != nil {
			return nil, err
		}
		for _, b := range chunk {
			if !b.Time.Before(from) && b.Time.Before(to) {
				bars = append(bars, b)
			}
		}
	}

	if len(bars) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}
	sortBars(bars)
	return bars, nil
}

// GetLatestBars fetches today's 1m bars and returns the last n
func (p *YahooProvider) GetLatestBars(ctx context.Context, symbol string, n int) ([]model.Bar, error) {
	q := url.Values{}
	q.Set("range", "1d")
	q.Set("interval", "1m")
	q.Set("includePrePost", "false")

	bars, err := p.fetch(ctx, symbol, q)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Err: ErrNoData}
	}
	sortBars(bars)
	return lastN(bars, n), nil
}

func (p *YahooProvider) fetch(ctx context.Context, symbol string, q url.Values) ([]model.Bar, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%s?%s", p.baseURL, url.PathEscape(symbol), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		p.limiter.SignalRateLimited()
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("rate limited"), Retryable: true}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider:  p.Name(),
			Err:       fmt.Errorf("%s: status %d", symbol, resp.StatusCode),
			Retryable: resp.StatusCode >= 500,
		}
	}

	p.limiter.ResetBackoff()

	var data yahooResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if data.Chart.Error != nil {
		return nil, &ProviderError{Provider: p.Name(), Err: fmt.Errorf("%s", data.Chart.Error.Description)}
	}
	if len(data.Chart.Result) == 0 || len(data.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := data.Chart.Result[0]
	quotes := result.Indicators.Quote[0]

	bars := make([]model.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		open, high, low, cl := at(quotes.Open, i), at(quotes.High, i), at(quotes.Low, i), at(quotes.Close, i)
		// skip minutes with missing prices
		if open == 0 || high == 0 || low == 0 || cl == 0 {
			continue
		}

		var volume int64
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			volume = *quotes.Volume[i]
		}

		bars = append(bars, model.Bar{
			Time:   time.Unix(ts, 0).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  cl,
			Volume: volume,
		})
	}
	return bars, nil
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return 0
	}
	return *values[i]
}

func sortBars(bars []model.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
}
