// Package feed fetches oracle prices from the Pyth Hermes API, the same
// price source Turbine uses to resolve quick markets.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/quantfold/turbinebot/internal/domain"
)

// PythClient fetches the latest price for a single Pyth feed.
type PythClient struct {
	baseURL    string
	feedID     string
	httpClient *http.Client
}

// NewPythClient creates a client for the Hermes endpoint and feed ID.
//
// baseURL is the Hermes root, e.g. "https://hermes.pyth.network". feedID is
// the hex feed identifier, with or without 0x prefix.
func NewPythClient(baseURL, feedID string, timeout time.Duration) *PythClient {
	return &PythClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		feedID:  strings.TrimPrefix(feedID, "0x"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// LatestPrice returns the feed's latest price in 1e6 fixed point. Pyth
// publishes an integer price with an exponent (usually -8); the result is
// price * 10^expo rescaled to ticks.
func (p *PythClient) LatestPrice(ctx context.Context) (int64, error) {
	params := url.Values{}
	params.Set("ids[]", p.feedID)

	reqURL := p.baseURL + "/v2/updates/price/latest?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("feed/pyth: create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feed/pyth: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("feed/pyth: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed/pyth: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Parsed []struct {
			Price struct {
				Price string `json:"price"`
				Expo  int    `json:"expo"`
			} `json:"price"`
		} `json:"parsed"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("feed/pyth: decode response: %w", err)
	}
	if len(parsed.Parsed) == 0 {
		return 0, fmt.Errorf("feed/pyth: %w: no price data", domain.ErrNotFound)
	}

	raw, err := strconv.ParseInt(parsed.Parsed[0].Price.Price, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("feed/pyth: parse price: %w", err)
	}
	expo := parsed.Parsed[0].Price.Expo

	return rescale(raw, expo), nil
}

// rescale converts price * 10^expo into 1e6 fixed point without going
// through floats when the exponents line up.
func rescale(price int64, expo int) int64 {
	shift := expo + 6
	switch {
	case shift == 0:
		return price
	case shift > 0 && shift < 18:
		return price * pow10(shift)
	case shift < 0 && shift > -18:
		return price / pow10(-shift)
	default:
		return int64(float64(price) * math.Pow10(shift))
	}
}

func pow10(n int) int64 {
	out := int64(1)
	for i := 0; i < n; i++ {
		out *= 10
	}
	return out
}
