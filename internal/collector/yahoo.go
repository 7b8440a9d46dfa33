package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"GapSentinel/internal/logging"
	"GapSentinel/internal/timeframe"

	"github.com/sirupsen/logrus"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// yahooInterval maps a canonical timeframe to the chart API interval and the widest
// range Yahoo serves for it. H4 has no Yahoo equivalent.
var yahooInterval = map[string]struct{ interval, rng string }{
	"M1":  {"1m", "5d"},
	"M5":  {"5m", "1mo"},
	"M15": {"15m", "1mo"},
	"M30": {"30m", "1mo"},
	"H1":  {"60m", "3mo"},
	"D1":  {"1d", "2y"},
	"W1":  {"1wk", "5y"},
	"MN1": {"1mo", "10y"},
}

// YahooSource loads bars from the Yahoo Finance public chart API. Market closures and
// null bars are simply absent, which is what the detector's closure ceiling is for.
type YahooSource struct {
	BaseURL    string
	Client     *http.Client
	SymbolMap  map[string]string // maps internal symbol to Yahoo ticker
	Timeframes []string
	logger     *logrus.Logger
}

// NewYahooSource creates a Yahoo source with optional proxy support.
func NewYahooSource(timeframes []string, proxyURL string, logger *logrus.Logger) *YahooSource {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &YahooSource{
		BaseURL: yahooBaseURL,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		SymbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
		Timeframes: timeframes,
		logger:     logging.OrDiscard(logger),
	}
}

func (f *YahooSource) Name() string { return "yahoo" }

func (f *YahooSource) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// Load fetches every configured timeframe. Unsupported timeframes are skipped with a
// warning; any fetch error fails the whole load.
func (f *YahooSource) Load(ctx context.Context, symbol string) (map[string]any, error) {
	if err := checkSymbol(symbol); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(f.Timeframes))
	for _, tf := range f.Timeframes {
		label, _ := timeframe.Canonical(tf)
		yi, ok := yahooInterval[label]
		if !ok {
			f.logger.WithFields(logrus.Fields{"symbol": symbol, "timeframe": tf}).Warn("timeframe not served by yahoo, skipping")
			continue
		}
		bars, err := f.fetchChart(ctx, symbol, yi.interval, yi.rng)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", symbol, tf, err)
		}
		out[tf] = barsToSeries(symbol, tf, bars)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("yahoo: no supported timeframes in %v", f.Timeframes)
	}
	return out, nil
}

// yahooChart is the response structure from Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func at(vals []interface{}, i int) float64 {
	if i >= len(vals) {
		return 0
	}
	return toFloat(vals[i])
}

func (f *YahooSource) fetchChart(ctx context.Context, symbol, interval, rng string) ([]bar, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		f.BaseURL, url.PathEscape(f.yahooSymbol(symbol)), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 ||
		len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned")
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		b := bar{
			Time:   time.Unix(ts, 0),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: at(quote.Volume, i),
		}
		if b.Open == 0 && b.High == 0 && b.Low == 0 && b.Close == 0 {
			continue // null bar
		}
		bars = append(bars, b)
	}
	return bars, nil
}
