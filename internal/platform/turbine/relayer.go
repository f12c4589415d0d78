package turbine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
)

// RelayerClient submits signed permits and redemptions to the Turbine
// relayer, which executes them on-chain so the wallet needs no native gas.
type RelayerClient struct {
	api     *Client
	chainID int
}

// NewRelayerClient creates a RelayerClient routed through the given API
// client's transport and auth.
func NewRelayerClient(api *Client, chainID int) *RelayerClient {
	return &RelayerClient{api: api, chainID: chainID}
}

// SubmitUSDCPermit submits a signed EIP-2612 permit granting spender the
// permit's value of USDC.
func (r *RelayerClient) SubmitUSDCPermit(ctx context.Context, owner, spender string, permit crypto.PermitSignature) (RelayerResult, error) {
	body := map[string]any{
		"chainId":  r.chainID,
		"owner":    owner,
		"spender":  spender,
		"value":    permit.Value.String(),
		"deadline": permit.Deadline.String(),
		"v":        permit.V,
		"r":        permit.R,
		"s":        permit.S,
	}

	respBody, err := r.api.doAuthenticatedRequest(ctx, http.MethodPost, "/api/v1/relayer/usdc-permit", nil, body)
	if err != nil {
		return RelayerResult{}, fmt.Errorf("turbine/relayer: usdc permit: %w", err)
	}

	var result RelayerResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return RelayerResult{}, fmt.Errorf("turbine/relayer: decode permit response: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("turbine/relayer: permit rejected: %s", result.Message)
	}
	return result, nil
}

// Redemption is one market's gasless claim request.
type Redemption struct {
	Owner           string   `json:"owner"`
	CollateralToken string   `json:"collateralToken"`
	ConditionID     string   `json:"conditionId"`
	IndexSets       []string `json:"indexSets"`
	Deadline        string   `json:"deadline"`
	V               int      `json:"v"`
	R               string   `json:"r"`
	S               string   `json:"s"`
	MarketAddress   string   `json:"marketAddress,omitempty"`
}

// zeroParentCollection marks plain-collateral positions in redemption
// requests.
const zeroParentCollection = "0x0000000000000000000000000000000000000000000000000000000000000000"

// SubmitRedemption submits a single signed redemption. The venue reports a
// resolved market with nothing to pay out as "no winning tokens"; that is
// surfaced as domain.ErrNoWinningTokens so callers can treat it as done.
func (r *RelayerClient) SubmitRedemption(ctx context.Context, red Redemption) (RelayerResult, error) {
	body := map[string]any{
		"chainId":            r.chainID,
		"owner":              red.Owner,
		"collateralToken":    red.CollateralToken,
		"parentCollectionId": zeroParentCollection,
		"conditionId":        red.ConditionID,
		"indexSets":          red.IndexSets,
		"deadline":           red.Deadline,
		"v":                  red.V,
		"r":                  red.R,
		"s":                  red.S,
	}
	if red.MarketAddress != "" {
		body["marketAddress"] = red.MarketAddress
	}

	respBody, err := r.api.doAuthenticatedRequest(ctx, http.MethodPost, "/api/v1/relayer/redeem", nil, body)
	if err != nil {
		return RelayerResult{}, fmt.Errorf("turbine/relayer: redeem: %w", err)
	}

	var result RelayerResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return RelayerResult{}, fmt.Errorf("turbine/relayer: decode redeem response: %w", err)
	}
	if !result.Success {
		if strings.Contains(strings.ToLower(result.Message), "no winning tokens") {
			return result, fmt.Errorf("turbine/relayer: %w", domain.ErrNoWinningTokens)
		}
		return result, fmt.Errorf("turbine/relayer: redeem rejected: %s", result.Message)
	}
	return result, nil
}

// SubmitBatchRedemption submits several redemptions in one relayer
// transaction.
func (r *RelayerClient) SubmitBatchRedemption(ctx context.Context, owner string, reds []Redemption) (RelayerResult, error) {
	if len(reds) == 0 {
		return RelayerResult{}, fmt.Errorf("turbine/relayer: empty batch")
	}

	items := make([]map[string]any, 0, len(reds))
	for _, red := range reds {
		items = append(items, map[string]any{
			"owner":              red.Owner,
			"collateralToken":    red.CollateralToken,
			"parentCollectionId": zeroParentCollection,
			"conditionId":        red.ConditionID,
			"indexSets":          red.IndexSets,
			"deadline":           red.Deadline,
			"v":                  red.V,
			"r":                  red.R,
			"s":                  red.S,
			"marketAddress":      red.MarketAddress,
		})
	}

	body := map[string]any{
		"chainId":     r.chainID,
		"owner":       owner,
		"redemptions": items,
	}

	respBody, err := r.api.doAuthenticatedRequest(ctx, http.MethodPost, "/api/v1/relayer/redeem-batch", nil, body)
	if err != nil {
		return RelayerResult{}, fmt.Errorf("turbine/relayer: batch redeem: %w", err)
	}

	var result RelayerResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return RelayerResult{}, fmt.Errorf("turbine/relayer: decode batch response: %w", err)
	}
	if !result.Success {
		return result, fmt.Errorf("turbine/relayer: batch rejected: %s", result.Message)
	}
	return result, nil
}
