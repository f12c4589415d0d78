package turbine

import (
	"time"

	"github.com/quantfold/turbinebot/internal/crypto"
	"github.com/quantfold/turbinebot/internal/domain"
)

// --------------------------------------------------------------------------
// Wire types. The Turbine API speaks camelCase JSON with integer fixed-point
// amounts at 1e6 scale and unix-second timestamps.
// --------------------------------------------------------------------------

// APIMarket mirrors /api/v1/markets/{id}.
type APIMarket struct {
	ID                string `json:"id"`
	ChainID           int    `json:"chainId"`
	ContractAddress   string `json:"contractAddress"`
	SettlementAddress string `json:"settlementAddress"`
	Question          string `json:"question"`
	Expiration        int64  `json:"expiration"`
	Resolved          bool   `json:"resolved"`
	WinningOutcome    *int   `json:"winningOutcome"`
	Volume            int64  `json:"volume"`
}

// ToDomain converts the wire market to the domain type.
func (m APIMarket) ToDomain() domain.Market {
	out := domain.Market{
		ID:                m.ID,
		ChainID:           m.ChainID,
		ContractAddress:   m.ContractAddress,
		SettlementAddress: m.SettlementAddress,
		Question:          m.Question,
		Expiration:        time.Unix(m.Expiration, 0).UTC(),
		Resolved:          m.Resolved,
		Volume:            m.Volume,
	}
	if m.WinningOutcome != nil {
		o := domain.Outcome(*m.WinningOutcome)
		out.WinningOutcome = &o
	}
	return out
}

// APIQuickMarket mirrors /api/v1/quick-markets/{asset}.
type APIQuickMarket struct {
	MarketID        string `json:"marketId"`
	Asset           string `json:"asset"`
	IntervalMinutes int    `json:"intervalMinutes"`
	StartPrice      int64  `json:"startPrice"`
	EndPrice        *int64 `json:"endPrice"`
	StartTime       int64  `json:"startTime"`
	EndTime         int64  `json:"endTime"`
	Resolved        bool   `json:"resolved"`
	Outcome         *int   `json:"outcome"`
	ContractAddress string `json:"contractAddress"`
}

// ToDomain converts the wire quick market to the domain type.
func (q APIQuickMarket) ToDomain() domain.QuickMarket {
	out := domain.QuickMarket{
		MarketID:        q.MarketID,
		Asset:           q.Asset,
		IntervalMinutes: q.IntervalMinutes,
		StrikeTicks:     q.StartPrice,
		EndTicks:        q.EndPrice,
		StartTime:       time.Unix(q.StartTime, 0).UTC(),
		EndTime:         time.Unix(q.EndTime, 0).UTC(),
		Resolved:        q.Resolved,
		ContractAddress: q.ContractAddress,
	}
	if q.Outcome != nil {
		o := domain.Outcome(*q.Outcome)
		out.Outcome = &o
	}
	return out
}

// APIPriceLevel is one orderbook level.
type APIPriceLevel struct {
	Price int64 `json:"price"`
	Size  int64 `json:"size"`
}

// APIOrderbook mirrors /api/v1/markets/{id}/orderbook.
type APIOrderbook struct {
	MarketID   string          `json:"marketId"`
	Bids       []APIPriceLevel `json:"bids"`
	Asks       []APIPriceLevel `json:"asks"`
	LastUpdate int64           `json:"lastUpdate"`
}

// ToDomain converts the wire orderbook to a domain snapshot.
func (b APIOrderbook) ToDomain() domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{
		MarketID:   b.MarketID,
		Bids:       make([]domain.PriceLevel, 0, len(b.Bids)),
		Asks:       make([]domain.PriceLevel, 0, len(b.Asks)),
		LastUpdate: time.Unix(b.LastUpdate, 0).UTC(),
	}
	for _, l := range b.Bids {
		snap.Bids = append(snap.Bids, domain.PriceLevel{PriceTicks: l.Price, SizeUnits: l.Size})
	}
	for _, l := range b.Asks {
		snap.Asks = append(snap.Asks, domain.PriceLevel{PriceTicks: l.Price, SizeUnits: l.Size})
	}
	return snap
}

// APITrade mirrors the trade objects of /api/v1/markets/{id}/trades and the
// stream's "trade" messages.
type APITrade struct {
	ID        int64  `json:"id"`
	MarketID  string `json:"marketId"`
	Buyer     string `json:"buyer"`
	Seller    string `json:"seller"`
	Price     int64  `json:"price"`
	Size      int64  `json:"size"`
	Outcome   int    `json:"outcome"`
	Timestamp int64  `json:"timestamp"`
	TxHash    string `json:"txHash"`
}

// ToDomain converts the wire trade to the domain type.
func (t APITrade) ToDomain() domain.Trade {
	return domain.Trade{
		ID:         t.ID,
		MarketID:   t.MarketID,
		Buyer:      t.Buyer,
		Seller:     t.Seller,
		Outcome:    domain.Outcome(t.Outcome),
		PriceTicks: t.Price,
		SizeUnits:  t.Size,
		Timestamp:  time.Unix(t.Timestamp, 0).UTC(),
		TxHash:     t.TxHash,
	}
}

// APIFailedTrade mirrors /api/v1/trades/failed.
type APIFailedTrade struct {
	MarketID     string `json:"marketId"`
	TxHash       string `json:"txHash"`
	BuyerAddress string `json:"buyerAddress"`
	FillSize     int64  `json:"fillSize"`
	FillPrice    int64  `json:"fillPrice"`
	Reason       string `json:"reason"`
	Timestamp    int64  `json:"timestamp"`
}

// ToDomain converts the wire failed trade to the domain type.
func (t APIFailedTrade) ToDomain() domain.FailedTrade {
	return domain.FailedTrade{
		MarketID:     t.MarketID,
		TxHash:       t.TxHash,
		BuyerAddress: t.BuyerAddress,
		FillSize:     t.FillSize,
		FillPrice:    t.FillPrice,
		Reason:       t.Reason,
		Timestamp:    time.Unix(t.Timestamp, 0).UTC(),
	}
}

// APIPendingTrade mirrors /api/v1/trades/pending.
type APIPendingTrade struct {
	MarketID     string `json:"marketId"`
	TxHash       string `json:"txHash"`
	BuyerAddress string `json:"buyerAddress"`
	FillSize     int64  `json:"fillSize"`
	FillPrice    int64  `json:"fillPrice"`
	Timestamp    int64  `json:"timestamp"`
}

// ToDomain converts the wire pending trade to the domain type.
func (t APIPendingTrade) ToDomain() domain.PendingTrade {
	return domain.PendingTrade{
		MarketID:     t.MarketID,
		TxHash:       t.TxHash,
		BuyerAddress: t.BuyerAddress,
		FillSize:     t.FillSize,
		FillPrice:    t.FillPrice,
		Timestamp:    time.Unix(t.Timestamp, 0).UTC(),
	}
}

// APIPosition mirrors /api/v1/users/{address}/positions entries.
type APIPosition struct {
	MarketID    string `json:"marketId"`
	UserAddress string `json:"userAddress"`
	YesShares   int64  `json:"yesShares"`
	NoShares    int64  `json:"noShares"`
	YesCost     int64  `json:"yesCost"`
	NoCost      int64  `json:"noCost"`
	YesRevenue  int64  `json:"yesRevenue"`
	NoRevenue   int64  `json:"noRevenue"`
	LastUpdated int64  `json:"lastUpdated"`
}

// ToDomain converts the wire position to the domain type.
func (p APIPosition) ToDomain() domain.Position {
	return domain.Position{
		MarketID:   p.MarketID,
		YesShares:  p.YesShares,
		NoShares:   p.NoShares,
		YesCost:    p.YesCost,
		NoCost:     p.NoCost,
		YesRevenue: p.YesRevenue,
		NoRevenue:  p.NoRevenue,
		UpdatedAt:  time.Unix(p.LastUpdated, 0).UTC(),
	}
}

// APIOrder mirrors the order objects of /api/v1/orders.
type APIOrder struct {
	OrderHash  string `json:"orderHash"`
	MarketID   string `json:"marketId"`
	Trader     string `json:"trader"`
	Side       int    `json:"side"`
	Outcome    int    `json:"outcome"`
	Price      int64  `json:"price"`
	Size       int64  `json:"size"`
	Filled     int64  `json:"filled"`
	Remaining  int64  `json:"remaining"`
	Expiration int64  `json:"expiration"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"createdAt"`
}

// ToDomain converts the wire order to the domain type.
func (o APIOrder) ToDomain() domain.VenueOrder {
	return domain.VenueOrder{
		Hash:          o.OrderHash,
		MarketID:      o.MarketID,
		Trader:        o.Trader,
		Side:          domain.Side(o.Side),
		Outcome:       domain.Outcome(o.Outcome),
		PriceTicks:    o.Price,
		SizeUnits:     o.Size,
		FilledUnits:   o.Filled,
		RemainingUnit: o.Remaining,
		Expiration:    time.Unix(o.Expiration, 0).UTC(),
		Status:        o.Status,
		CreatedAt:     time.Unix(o.CreatedAt, 0).UTC(),
	}
}

// APIResolution mirrors /api/v1/markets/{id}/resolution.
type APIResolution struct {
	MarketID       string `json:"marketId"`
	WinningOutcome int    `json:"winningOutcome"`
	Resolved       bool   `json:"resolved"`
	Timestamp      int64  `json:"timestamp"`
}

// ToDomain converts the wire resolution to the domain type.
func (r APIResolution) ToDomain() domain.Resolution {
	return domain.Resolution{
		MarketID: r.MarketID,
		Resolved: r.Resolved,
		Outcome:  domain.Outcome(r.WinningOutcome),
		At:       time.Unix(r.Timestamp, 0).UTC(),
	}
}

// APIClaimable mirrors /api/v1/users/{address}/claimable entries.
type APIClaimable struct {
	MarketID        string `json:"marketId"`
	ContractAddress string `json:"contractAddress"`
	WinningOutcome  int    `json:"winningOutcome"`
	WinningShares   int64  `json:"winningShares"`
	Payout          int64  `json:"payout"`
}

// ToDomain converts the wire claimable position to the domain type.
func (c APIClaimable) ToDomain() domain.ClaimablePosition {
	return domain.ClaimablePosition{
		MarketID:        c.MarketID,
		ContractAddress: c.ContractAddress,
		Outcome:         domain.Outcome(c.WinningOutcome),
		Shares:          c.WinningShares,
		PayoutUnits:     c.Payout,
	}
}

// ClaimData is one market entry of /api/v1/users/{owner}/claim-data. It holds
// everything needed to sign a gasless redemption without an RPC call.
type ClaimData struct {
	MarketAddress   string `json:"market_address"`
	Resolved        bool   `json:"resolved"`
	WinningOutcome  int    `json:"winning_outcome"`
	WinningBalance  int64  `json:"winning_balance,string"`
	CTFAddress      string `json:"ctf_address"`
	CollateralToken string `json:"collateral_token"`
	ConditionID     string `json:"condition_id"`
	CTFNonce        int64  `json:"ctf_nonce,string"`
}

// SignedOrder is an order plus its EIP-712 signature, ready for submission.
// The optional permit covers the order's cost when no max approval exists.
type SignedOrder struct {
	Payload   crypto.OrderPayload
	Signature string
	OrderHash string
	Permit    *crypto.PermitSignature
}

// APIOrderResult mirrors the order submission response.
type APIOrderResult struct {
	Success   bool   `json:"success"`
	OrderHash string `json:"orderHash"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

// ToDomain converts the wire result to the domain type.
func (r APIOrderResult) ToDomain() domain.OrderResult {
	return domain.OrderResult{
		Accepted: r.Success,
		Hash:     r.OrderHash,
		Status:   r.Status,
		Message:  r.Message,
	}
}

// RelayerResult mirrors the relayer's permit/claim responses.
type RelayerResult struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Message string `json:"message"`
}

// wsCommand is the subscribe/unsubscribe frame of the venue stream.
type wsCommand struct {
	Type     string `json:"type"`
	MarketID string `json:"marketId"`
}

// wsEnvelope is the outer frame of every stream message.
type wsEnvelope struct {
	Type     string `json:"type"`
	MarketID string `json:"marketId"`
}

// wsOrderbookMessage is a full book snapshot pushed on market activity.
type wsOrderbookMessage struct {
	Type     string       `json:"type"`
	MarketID string       `json:"marketId"`
	Data     APIOrderbook `json:"data"`
}

// wsTradeMessage is pushed on every execution in a subscribed market.
type wsTradeMessage struct {
	Type     string   `json:"type"`
	MarketID string   `json:"marketId"`
	Data     APITrade `json:"data"`
}

// wsOrderCancelledMessage is pushed when a resting order is cancelled.
type wsOrderCancelledMessage struct {
	Type      string `json:"type"`
	MarketID  string `json:"marketId"`
	OrderHash string `json:"orderHash"`
}
