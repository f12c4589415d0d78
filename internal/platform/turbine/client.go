// Package turbine is the gateway to the Turbine exchange: a REST client for
// markets, orders, trades and positions, a relayer client for gasless
// permits and claims, and a websocket client for the market data stream.
package turbine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
)

// Client is the REST client for the Turbine API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	apiKey     string
	bearer     string
}

// NewClient creates a Turbine REST client.
//
// baseURL is the API root, e.g. "https://api.turbine.fun". signer may be nil
// for read-only use; apiKey is sent on every request when set.
func NewClient(baseURL string, signer *crypto.Signer, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
		apiKey: apiKey,
	}
}

// Authenticate performs the wallet-signature login flow and stores the bearer
// token for subsequent authenticated requests.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("turbine: %w: no signer configured", domain.ErrUnauthorized)
	}

	address := c.signer.Address().Hex()
	timestamp := time.Now().Unix()
	message := fmt.Sprintf("turbine-auth:%s:%d", strings.ToLower(address), timestamp)

	sig, err := c.signer.SignAuthMessage(message)
	if err != nil {
		return fmt.Errorf("turbine: sign auth message: %w", err)
	}

	body := map[string]any{
		"address":   address,
		"timestamp": timestamp,
		"signature": sig,
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", nil, body)
	if err != nil {
		return fmt.Errorf("turbine: authenticate: %w", err)
	}

	var authResp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("turbine: decode auth response: %w", err)
	}
	if authResp.Token == "" {
		return fmt.Errorf("turbine: %w: empty token", domain.ErrUnauthorized)
	}

	c.bearer = authResp.Token
	return nil
}

// GetMarket retrieves a single market by ID.
func (c *Client) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	path := fmt.Sprintf("/api/v1/markets/%s", marketID)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("turbine: get market %s: %w", marketID, err)
	}

	var m APIMarket
	if err := json.Unmarshal(respBody, &m); err != nil {
		return domain.Market{}, fmt.Errorf("turbine: decode market: %w", err)
	}
	return m.ToDomain(), nil
}

// GetQuickMarket retrieves the currently active quick market for an asset.
func (c *Client) GetQuickMarket(ctx context.Context, asset string) (domain.QuickMarket, error) {
	path := fmt.Sprintf("/api/v1/quick-markets/%s", asset)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return domain.QuickMarket{}, fmt.Errorf("turbine: get quick market %s: %w", asset, err)
	}

	var qm APIQuickMarket
	if err := json.Unmarshal(respBody, &qm); err != nil {
		return domain.QuickMarket{}, fmt.Errorf("turbine: decode quick market: %w", err)
	}
	return qm.ToDomain(), nil
}

// GetOrderbook retrieves the full orderbook for a market.
func (c *Client) GetOrderbook(ctx context.Context, marketID string) (domain.OrderbookSnapshot, error) {
	path := fmt.Sprintf("/api/v1/markets/%s/orderbook", marketID)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("turbine: get orderbook %s: %w", marketID, err)
	}

	var book APIOrderbook
	if err := json.Unmarshal(respBody, &book); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("turbine: decode orderbook: %w", err)
	}
	return book.ToDomain(), nil
}

// GetTrades retrieves recent trades for a market, newest first.
func (c *Client) GetTrades(ctx context.Context, marketID string, limit int) ([]domain.Trade, error) {
	path := fmt.Sprintf("/api/v1/markets/%s/trades", marketID)
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, fmt.Errorf("turbine: get trades %s: %w", marketID, err)
	}

	var apiTrades []APITrade
	if err := json.Unmarshal(respBody, &apiTrades); err != nil {
		return nil, fmt.Errorf("turbine: decode trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(apiTrades))
	for _, t := range apiTrades {
		trades = append(trades, t.ToDomain())
	}
	return trades, nil
}

// GetFailedTrades retrieves trades whose settlement was rejected on-chain.
func (c *Client) GetFailedTrades(ctx context.Context) ([]domain.FailedTrade, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/v1/trades/failed", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("turbine: get failed trades: %w", err)
	}

	var apiTrades []APIFailedTrade
	if err := json.Unmarshal(respBody, &apiTrades); err != nil {
		return nil, fmt.Errorf("turbine: decode failed trades: %w", err)
	}

	trades := make([]domain.FailedTrade, 0, len(apiTrades))
	for _, t := range apiTrades {
		trades = append(trades, t.ToDomain())
	}
	return trades, nil
}

// GetPendingTrades retrieves trades whose settlement is still in flight.
func (c *Client) GetPendingTrades(ctx context.Context) ([]domain.PendingTrade, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/api/v1/trades/pending", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("turbine: get pending trades: %w", err)
	}

	var apiTrades []APIPendingTrade
	if err := json.Unmarshal(respBody, &apiTrades); err != nil {
		return nil, fmt.Errorf("turbine: decode pending trades: %w", err)
	}

	trades := make([]domain.PendingTrade, 0, len(apiTrades))
	for _, t := range apiTrades {
		trades = append(trades, t.ToDomain())
	}
	return trades, nil
}

// GetResolution retrieves a market's resolution status.
func (c *Client) GetResolution(ctx context.Context, marketID string) (domain.Resolution, error) {
	path := fmt.Sprintf("/api/v1/markets/%s/resolution", marketID)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return domain.Resolution{}, fmt.Errorf("turbine: get resolution %s: %w", marketID, err)
	}

	var res APIResolution
	if err := json.Unmarshal(respBody, &res); err != nil {
		return domain.Resolution{}, fmt.Errorf("turbine: decode resolution: %w", err)
	}
	return res.ToDomain(), nil
}

// PostOrder submits a signed order to the orderbook.
func (c *Client) PostOrder(ctx context.Context, order SignedOrder) (domain.OrderResult, error) {
	body := map[string]any{
		"order": map[string]any{
			"marketId":          order.Payload.MarketID,
			"trader":            order.Payload.Trader,
			"side":              order.Payload.Side,
			"outcome":           order.Payload.Outcome,
			"price":             order.Payload.Price,
			"size":              order.Payload.Size,
			"nonce":             order.Payload.Nonce,
			"expiration":        order.Payload.Expiration,
			"makerFeeRecipient": order.Payload.MakerFeeRecipient,
		},
		"signature": order.Signature,
	}
	if order.Permit != nil {
		body["permitSignature"] = map[string]any{
			"nonce":    order.Permit.Nonce,
			"value":    order.Permit.Value.String(),
			"deadline": order.Permit.Deadline.String(),
			"v":        order.Permit.V,
			"r":        order.Permit.R,
			"s":        order.Permit.S,
		}
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/api/v1/orders", nil, body)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("turbine: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("turbine: decode order result: %w", err)
	}

	result := apiResult.ToDomain()
	if !result.Accepted {
		return result, fmt.Errorf("turbine: %w: %s", domain.ErrRejected, result.Message)
	}
	return result, nil
}

// CancelOrder cancels a single order by its hash.
func (c *Client) CancelOrder(ctx context.Context, orderHash string) error {
	path := fmt.Sprintf("/api/v1/orders/%s", orderHash)

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("turbine: cancel order %s: %w", orderHash, err)
	}

	var result struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("turbine: decode cancel response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("turbine: cancel failed: %s", result.Message)
	}
	return nil
}

// GetOpenOrders returns open orders, optionally filtered by trader and market.
func (c *Client) GetOpenOrders(ctx context.Context, trader, marketID string) ([]domain.VenueOrder, error) {
	params := url.Values{}
	params.Set("status", "open")
	if trader != "" {
		params.Set("trader", trader)
	}
	if marketID != "" {
		params.Set("market_id", marketID)
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/api/v1/orders", params, nil)
	if err != nil {
		return nil, fmt.Errorf("turbine: get open orders: %w", err)
	}

	var apiOrders []APIOrder
	if err := json.Unmarshal(respBody, &apiOrders); err != nil {
		return nil, fmt.Errorf("turbine: decode orders: %w", err)
	}

	orders := make([]domain.VenueOrder, 0, len(apiOrders))
	for _, o := range apiOrders {
		orders = append(orders, o.ToDomain())
	}
	return orders, nil
}

// GetPosition retrieves the caller's position in a market.
func (c *Client) GetPosition(ctx context.Context, address, marketID string) (domain.Position, error) {
	positions, err := c.GetUserPositions(ctx, address)
	if err != nil {
		return domain.Position{}, err
	}
	for _, p := range positions {
		if p.MarketID == marketID {
			return p, nil
		}
	}
	return domain.Position{MarketID: marketID}, nil
}

// GetUserPositions retrieves all positions held by an address.
func (c *Client) GetUserPositions(ctx context.Context, address string) ([]domain.Position, error) {
	path := fmt.Sprintf("/api/v1/users/%s/positions", address)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("turbine: get positions for %s: %w", address, err)
	}

	var apiPositions []APIPosition
	if err := json.Unmarshal(respBody, &apiPositions); err != nil {
		return nil, fmt.Errorf("turbine: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(apiPositions))
	for _, p := range apiPositions {
		positions = append(positions, p.ToDomain())
	}
	return positions, nil
}

// GetClaimable retrieves resolved markets where the address holds winning
// shares.
func (c *Client) GetClaimable(ctx context.Context, address string) ([]domain.ClaimablePosition, error) {
	path := fmt.Sprintf("/api/v1/users/%s/claimable", address)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("turbine: get claimable for %s: %w", address, err)
	}

	var apiClaimable []APIClaimable
	if err := json.Unmarshal(respBody, &apiClaimable); err != nil {
		return nil, fmt.Errorf("turbine: decode claimable: %w", err)
	}

	claimable := make([]domain.ClaimablePosition, 0, len(apiClaimable))
	for _, cl := range apiClaimable {
		claimable = append(claimable, cl.ToDomain())
	}
	return claimable, nil
}

// GetClaimData retrieves the signing material for gasless redemptions in the
// given market contracts.
func (c *Client) GetClaimData(ctx context.Context, owner string, chainID int, marketAddresses []string) ([]ClaimData, error) {
	path := fmt.Sprintf("/api/v1/users/%s/claim-data", owner)
	params := url.Values{}
	params.Set("chain_id", fmt.Sprintf("%d", chainID))
	params.Set("markets", strings.Join(marketAddresses, ","))

	respBody, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, fmt.Errorf("turbine: get claim data: %w", err)
	}

	var resp struct {
		Markets []ClaimData `json:"markets"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("turbine: decode claim data: %w", err)
	}
	return resp.Markets, nil
}

// GetContractNonce retrieves the owner's current nonce from a contract's
// nonces() view, routed through the API to avoid direct RPC.
func (c *Client) GetContractNonce(ctx context.Context, contractAddress, owner string, chainID int) (int64, error) {
	path := fmt.Sprintf("/api/v1/contracts/nonce/%s/%s", contractAddress, owner)
	params := url.Values{}
	params.Set("chain_id", fmt.Sprintf("%d", chainID))

	respBody, err := c.doRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return 0, fmt.Errorf("turbine: get nonce for %s: %w", contractAddress, err)
	}

	var resp struct {
		Nonce int64 `json:"nonce"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("turbine: decode nonce: %w", err)
	}
	return resp.Nonce, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticatedRequest ensures a bearer token exists before issuing the
// request, authenticating on first use.
func (c *Client) doAuthenticatedRequest(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	if c.bearer == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}
	return c.doRequest(ctx, method, path, params, body)
}

// doRequest builds, sends, and reads an HTTP request against the Turbine
// API. It returns the raw response body.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
